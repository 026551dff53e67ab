package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/testutil"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// dryRunDB builds statements with the postgres dialect without connecting.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=127.0.0.1 user=simlok dbname=simlok sslmode=disable"}), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	return db
}

func TestVersionedUpdateStatement(t *testing.T) {
	db := dryRunDB(t)
	sub := &entity.Submission{ID: "sub-1", Version: 3, ReviewStatus: entity.ReviewStatusMeets, WorkingHours: "08:00-16:00"}

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB { return versionedUpdate(tx, sub) })
	for _, want := range []string{
		`UPDATE "simlok_submissions"`,
		`"version"=version + 1`,
		`"review_status"='MEETS_REQUIREMENTS'`,
		`WHERE id = 'sub-1' AND version = 3`,
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("statement missing %q:\n%s", want, sql)
		}
	}
	if sub.Version != 3 {
		t.Errorf("building the statement must not touch the version, got %d", sub.Version)
	}
}

func TestPruneRosterStatement(t *testing.T) {
	db := dryRunDB(t)

	keep := []entity.Worker{{ID: "w1"}, {ID: "w2"}}
	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB { return pruneRoster(tx, "sub-1", keep) })
	if !strings.Contains(sql, `DELETE FROM "simlok_workers"`) ||
		!strings.Contains(sql, `submission_id = 'sub-1'`) ||
		!strings.Contains(sql, `id NOT IN ('w1','w2')`) {
		t.Errorf("unexpected prune statement:\n%s", sql)
	}

	sql = db.ToSQL(func(tx *gorm.DB) *gorm.DB { return pruneRoster(tx, "sub-1", nil) })
	if strings.Contains(sql, "NOT IN") || !strings.Contains(sql, `submission_id = 'sub-1'`) {
		t.Errorf("empty roster should clear every worker of the submission:\n%s", sql)
	}
}

func TestMissError(t *testing.T) {
	if err := missError(0); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing row: got %v, want ErrNotFound", err)
	}
	if err := missError(1); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("row present: got %v, want ErrVersionConflict", err)
	}
}

func TestSaveVersionedAgainstPostgres(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()
	testutil.SeedSubmission(t, db, "sub-1", entity.ReviewStatusPending, entity.ApprovalStatusPending)

	first, err := repo.FindByID(ctx, "sub-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	stale := *first

	first.WorkingHours = "07:00-15:00"
	first.Workers = append(first.Workers, entity.Worker{ID: "sub-1-w2", Name: "Sari"})
	first.WorkerCount = 2
	if err := repo.SaveVersioned(ctx, first, true); err != nil {
		t.Fatalf("save: %v", err)
	}
	if first.Version != 2 {
		t.Fatalf("version = %d, want 2", first.Version)
	}

	stale.WorkingHours = "09:00-17:00"
	if err := repo.SaveVersioned(ctx, &stale, false); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale save: got %v, want ErrVersionConflict", err)
	}

	got, err := repo.FindByID(ctx, "sub-1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Version != 2 || got.WorkingHours != "07:00-15:00" || len(got.Workers) != 2 {
		t.Errorf("unexpected stored state: version=%d hours=%q workers=%d", got.Version, got.WorkingHours, len(got.Workers))
	}

	got.Workers = got.Workers[1:]
	if err := repo.SaveVersioned(ctx, got, true); err != nil {
		t.Fatalf("shrink roster: %v", err)
	}
	workers, err := repo.ListWorkers(ctx, "sub-1")
	if err != nil || len(workers) != 1 || workers[0].ID != "sub-1-w2" {
		t.Errorf("roster replace should keep only sub-1-w2, got %v (err %v)", workers, err)
	}

	missing := &entity.Submission{ID: "nope", Version: 1}
	if err := repo.SaveVersioned(ctx, missing, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing submission: got %v, want ErrNotFound", err)
	}
}
