package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/asmorodws/simlok2-sub003/internal/config"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/client"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/console"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/draft"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/lifecycle"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/sse"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/syncer"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/workflow"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultLogFile = "simlok-console.log"

func main() {
	var (
		id           = flag.String("id", "", "submission id to open in the detail view")
		role         = flag.String("role", "", "vendor, reviewer or approver; lists the actions available")
		draftSave    = flag.String("draft-save", "", "store the create form in this JSON file as the draft")
		draftSubmit  = flag.Bool("draft-submit", false, "create a submission from the stored draft")
		draftDiscard = flag.Bool("draft-discard", false, "delete the stored draft after confirmation")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.New(cfg.Client.BaseURL,
		client.WithToken(cfg.Client.Token),
		client.WithTimeout(cfg.Client.Timeout),
		client.WithLogger(logger),
	)

	switch {
	case *draftSave != "" || *draftSubmit || *draftDiscard:
		drafts, closeStore, err := openDrafts(cfg, logger)
		if err != nil {
			log.Fatalf("Failed to open draft storage: %v", err)
		}
		defer closeStore()
		defer drafts.Close()

		switch {
		case *draftSave != "":
			err = saveDraft(ctx, drafts, *draftSave)
		case *draftSubmit:
			err = submitDraft(ctx, api, drafts, logger)
		default:
			err = discardDraft(ctx, drafts)
		}
		if err != nil {
			drafts.Close()
			closeStore()
			log.Fatal(err)
		}

	case *id != "":
		if err := runDetail(ctx, cfg, api, *id, lifecycle.Role(*role), logger); err != nil {
			log.Fatalf("Console stopped: %v", err)
		}

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runDetail(ctx context.Context, cfg *config.Config, api *client.Client, id string, role lifecycle.Role, logger *zap.Logger) error {
	source := sse.NewSource(strings.TrimRight(cfg.Client.BaseURL, "/")+"/sse/events",
		sse.WithBearerToken(cfg.Client.Token),
		sse.WithRetry(cfg.Push.RetryDelay),
		sse.WithSourceLogger(logger),
	)
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := source.Run(streamCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("Push stream stopped", zap.Error(err))
		}
	}()

	events := make(chan tea.Msg, 64)
	ctrl := syncer.New(api, source, console.Hooks(events), syncer.Options{
		PollInterval: cfg.Sync.PollInterval,
		ReloadDelay:  cfg.Sync.ReloadDelay,
		ClearDelay:   cfg.Sync.ClearDelay,
		Logger:       logger,
	})
	defer ctrl.Shutdown()

	_, err := tea.NewProgram(console.New(ctrl, events, id, role), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// openDrafts builds the draft persistence over the configured backend.
func openDrafts(cfg *config.Config, logger *zap.Logger) (*draft.Persistence, func(), error) {
	var (
		store   draft.Storage
		closeFn = func() {}
	)
	switch cfg.Draft.Backend {
	case "memory":
		store = draft.NewMemoryStorage()
	case "redis":
		if !cfg.Redis.Enabled() {
			return nil, nil, fmt.Errorf("draft backend redis needs redis.host")
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = draft.NewRedisStorage(rdb, cfg.Draft.TTL)
		closeFn = func() { rdb.Close() }
	case "", "file":
		fs, err := draft.NewFileStorage(cfg.Draft.Dir)
		if err != nil {
			return nil, nil, err
		}
		store = fs
	default:
		return nil, nil, fmt.Errorf("unknown draft backend %q", cfg.Draft.Backend)
	}

	p := draft.New(store, draft.Options{
		Key:      cfg.Draft.Key,
		Version:  cfg.Draft.Version,
		Debounce: cfg.Draft.Debounce,
		Logger:   logger,
	})
	return p, closeFn, nil
}

func saveDraft(ctx context.Context, drafts *draft.Persistence, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read form: %w", err)
	}
	form := draft.DefaultForm()
	if err := json.Unmarshal(data, &form); err != nil {
		return fmt.Errorf("decode form %s: %w", path, err)
	}
	drafts.Schedule(form)
	if err := drafts.Flush(ctx); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	fmt.Printf("Draft saved under %s\n", drafts.Key())
	return nil
}

func submitDraft(ctx context.Context, api *client.Client, drafts *draft.Persistence, logger *zap.Logger) error {
	form, restored := drafts.Restore(ctx)
	if restored {
		fmt.Println("Restored the saved draft.")
	}
	wf := workflow.New(api, workflow.WithDrafts(drafts), workflow.WithLogger(logger))
	created, err := wf.Create(ctx, form)
	if err != nil {
		switch workflow.Classify(err) {
		case workflow.KindValidation:
			return fmt.Errorf("draft is incomplete (%s): %w", strings.Join(workflow.Fields(err), ", "), err)
		default:
			return fmt.Errorf("create submission: %w", err)
		}
	}
	fmt.Printf("Created submission %s (version %d)\n", created.ID, created.Version)
	return nil
}

func discardDraft(ctx context.Context, drafts *draft.Persistence) error {
	_, deleted, err := drafts.Delete(ctx, confirm("Delete the saved draft? [y/N] "))
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	if deleted {
		fmt.Println("Draft deleted.")
	} else {
		fmt.Println("Draft kept.")
	}
	return nil
}

func confirm(prompt string) func() bool {
	return func() bool {
		fmt.Print(prompt)
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

// initLogger writes to a file since the terminal belongs to the view.
func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
		zapCfg.Level = level
	}
	output := cfg.Output
	if output == "" || output == "stdout" || output == "stderr" {
		output = defaultLogFile
	}
	zapCfg.OutputPaths = []string{output}
	zapCfg.ErrorOutputPaths = []string{output}
	return zapCfg.Build()
}
