// Package draft persists the create form between sessions.
package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultKey      = "simlok:submission-draft"
	CurrentVersion  = 2
	DefaultDebounce = 500 * time.Millisecond
	writeTimeout    = 5 * time.Second
)

// envelope is the stored shape.
type envelope struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Form    Form      `json:"form"`
}

// Options tunes a Persistence. Zero values take the defaults.
type Options struct {
	Key      string
	Version  int
	Debounce time.Duration
	Logger   *zap.Logger
}

// Persistence owns one draft: a debounced writer plus restore and delete.
type Persistence struct {
	store    Storage
	key      string
	version  int
	debounce time.Duration
	logger   *zap.Logger

	// writeMu orders storage writes against Clear/Delete.
	writeMu sync.Mutex

	mu       sync.Mutex
	gen      uint64
	timer    *time.Timer
	pending  *Form
	notified bool
	closed   bool
}

func New(store Storage, opts Options) *Persistence {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.Version <= 0 {
		opts.Version = CurrentVersion
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Persistence{
		store:    store,
		key:      opts.Key,
		version:  opts.Version,
		debounce: opts.Debounce,
		logger:   opts.Logger.Named("draft"),
	}
}

// Key is the versioned storage key.
func (p *Persistence) Key() string {
	return fmt.Sprintf("%s:v%d", p.key, p.version)
}

// Restore loads the stored draft. notify is true the first time a draft is restored
// and false on every later call. Missing, corrupt and other-version entries yield
// the default form.
func (p *Persistence) Restore(ctx context.Context) (form Form, notify bool) {
	raw, ok, err := p.store.Get(ctx, p.Key())
	if err != nil {
		p.logger.Warn("read draft failed", zap.String("key", p.Key()), zap.Error(err))
		return DefaultForm(), false
	}
	if !ok {
		return DefaultForm(), false
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		p.logger.Warn("ignore corrupt draft", zap.String("key", p.Key()), zap.Error(err))
		return DefaultForm(), false
	}
	if env.Version != p.version {
		p.logger.Info("ignore draft of another version", zap.Int("stored", env.Version), zap.Int("current", p.version))
		return DefaultForm(), false
	}
	if len(env.Form.Workers) == 0 {
		env.Form.Workers = DefaultForm().Workers
	}

	p.mu.Lock()
	notify = !p.notified
	p.notified = true
	p.mu.Unlock()
	return env.Form, notify
}

// Schedule queues form for writing once no further change arrives for the debounce
// interval. Each call restarts the timer.
func (p *Persistence) Schedule(form Form) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	f := form.clone()
	p.pending = &f
	if p.timer != nil {
		p.timer.Stop()
	}
	gen := p.gen
	p.timer = time.AfterFunc(p.debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := p.flush(ctx, gen); err != nil {
			p.logger.Warn("write draft failed", zap.String("key", p.Key()), zap.Error(err))
		}
	})
}

// Flush writes a scheduled form now.
func (p *Persistence) Flush(ctx context.Context) error {
	p.mu.Lock()
	gen := p.gen
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()
	return p.flush(ctx, gen)
}

func (p *Persistence) flush(ctx context.Context, gen uint64) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	if gen != p.gen || p.pending == nil {
		p.mu.Unlock()
		return nil
	}
	form := *p.pending
	p.pending = nil
	p.mu.Unlock()

	b, err := json.Marshal(envelope{Version: p.version, SavedAt: time.Now(), Form: form})
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	return p.store.Set(ctx, p.Key(), string(b))
}

// Pending reports whether a write is scheduled.
func (p *Persistence) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}

// ShowDelete reports whether the delete affordance applies to form.
func (p *Persistence) ShowDelete(form Form) bool {
	return form.HasContent()
}

// Delete removes the draft after confirm returns true and hands back the default form.
// A declined confirmation leaves everything untouched and returns deleted=false.
func (p *Persistence) Delete(ctx context.Context, confirm func() bool) (form Form, deleted bool, err error) {
	if confirm != nil && !confirm() {
		return Form{}, false, nil
	}
	if err := p.Clear(ctx); err != nil {
		return Form{}, false, err
	}
	return DefaultForm(), true, nil
}

// Clear drops any scheduled write and removes the stored draft. Called after a
// successful submission.
func (p *Persistence) Clear(ctx context.Context) error {
	p.cancelPending()
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.store.Remove(ctx, p.Key()); err != nil {
		return fmt.Errorf("remove draft: %w", err)
	}
	return nil
}

// Close cancels the pending write. Later Schedule calls are ignored.
func (p *Persistence) Close() {
	p.cancelPending()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *Persistence) cancelPending() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.pending = nil
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
