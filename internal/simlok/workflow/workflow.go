// Package workflow drives submission transitions from the client side: local
// validation first, then the store calls in the required order.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asmorodws/simlok2-sub003/internal/simlok/client"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/draft"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/lifecycle"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/roster"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/validation"
	"go.uber.org/zap"
)

// Store is the write side of the submission store. *client.Client implements it.
type Store interface {
	CreateSubmission(ctx context.Context, sub *entity.Submission) (*entity.Submission, error)
	UpdateSubmission(ctx context.Context, id string, version int, patch entity.SubmissionPatch) (*entity.Submission, error)
	SubmitReview(ctx context.Context, id string, version int, in validation.ReviewInput) (*entity.Submission, error)
	SubmitApproval(ctx context.Context, id string, version int, in validation.ApprovalInput) (*entity.Submission, error)
	Resubmit(ctx context.Context, id string, version int) (*entity.Submission, error)
	DeleteWorker(ctx context.Context, id, workerID string) error
	NextSimlokNumber(ctx context.Context, year int) (string, error)
}

// PlaceholderNumber is the SIMLOK number offered when the numbering service fails.
func PlaceholderNumber(year int) string {
	return fmt.Sprintf("XXX/S00330/%d-S0", year)
}

// Workflow is stateless apart from its collaborators.
type Workflow struct {
	store  Store
	drafts *draft.Persistence
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithDrafts clears the create draft after a successful create.
func WithDrafts(p *draft.Persistence) Option {
	return func(w *Workflow) { w.drafts = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

func New(store Store, opts ...Option) *Workflow {
	w := &Workflow{store: store, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named("workflow")
	return w
}

// SubmitReview runs the two-step review submit: save the schedule fields, then the
// review decision. The second step never runs when the first fails. Local checks run
// before any network call.
func (w *Workflow) SubmitReview(ctx context.Context, sub *entity.Submission, in validation.ReviewInput) (*entity.Submission, error) {
	if err := validation.ValidateReviewSubmission(in).Err(); err != nil {
		return sub, err
	}
	in = in.Normalize()
	if _, err := lifecycle.Next(lifecycle.StateOf(sub), lifecycle.EventSubmitReview, in.Outcome); err != nil {
		return sub, err
	}

	start, end := in.ImplementationStartDate, in.ImplementationEndDate
	patch := entity.SubmissionPatch{
		ImplementationStartDate: &start,
		ImplementationEndDate:   &end,
		WorkingHours:            &in.WorkingHours,
		HolidayWorkingHours:     &in.HolidayWorkingHours,
	}
	if in.ContentTemplate != "" {
		patch.ContentTemplate = &in.ContentTemplate
	}
	scheduled, err := w.store.UpdateSubmission(ctx, sub.ID, sub.Version, patch)
	if err != nil {
		return sub, &PhaseError{Phase: PhaseSchedule, Err: err}
	}

	reviewed, err := w.store.SubmitReview(ctx, sub.ID, scheduled.Version, in)
	if err != nil {
		w.logger.Warn("review step failed after schedule was saved",
			zap.String("submission_id", sub.ID), zap.Error(err))
		return scheduled, &PhaseError{Phase: PhaseReview, Err: err}
	}
	return reviewed, nil
}

// SuggestSimlokNumber asks the numbering service and falls back to the placeholder.
func (w *Workflow) SuggestSimlokNumber(ctx context.Context, year int) string {
	n, err := w.store.NextSimlokNumber(ctx, year)
	if err != nil {
		w.logger.Warn("numbering service failed, using placeholder", zap.Int("year", year), zap.Error(err))
		return PlaceholderNumber(year)
	}
	return n
}

// PrepareApproval pre-fills an approval form with a suggested number and today's date.
func (w *Workflow) PrepareApproval(ctx context.Context) validation.ApprovalInput {
	today := w.now()
	return validation.ApprovalInput{
		Decision:     entity.ApprovalStatusApproved,
		SimlokNumber: w.SuggestSimlokNumber(ctx, today.Year()),
		SimlokDate:   entity.NewDate(today.Year(), today.Month(), today.Day()),
	}
}

// SubmitApproval validates the decision locally and sends it.
func (w *Workflow) SubmitApproval(ctx context.Context, sub *entity.Submission, in validation.ApprovalInput) (*entity.Submission, error) {
	if err := validation.ValidateApprovalDecision(in).Err(); err != nil {
		return sub, err
	}
	ev := lifecycle.EventApprove
	if in.Decision == entity.ApprovalStatusRejected {
		ev = lifecycle.EventReject
	}
	if _, err := lifecycle.Next(lifecycle.StateOf(sub), ev, ""); err != nil {
		return sub, err
	}
	return w.store.SubmitApproval(ctx, sub.ID, sub.Version, in)
}

// Resubmit fires the vendor resubmission after a NOT_MEETS review.
func (w *Workflow) Resubmit(ctx context.Context, sub *entity.Submission) (*entity.Submission, error) {
	if _, err := lifecycle.Next(lifecycle.StateOf(sub), lifecycle.EventVendorResubmit, ""); err != nil {
		return sub, err
	}
	return w.store.Resubmit(ctx, sub.ID, sub.Version)
}

// RosterSaveResult reports a roster save. FailedDeletions lists worker ids whose
// delete failed; they are not retried.
type RosterSaveResult struct {
	Deleted         []string
	FailedDeletions []string
	Saved           *entity.Submission
}

// ConfirmCount is asked when the declared count and the roster length differ.
type ConfirmCount func(declared, actual int) bool

// SaveRoster persists an edited roster: confirm a count mismatch, delete removed
// workers one by one (best effort), then write the roster and the declared count.
func (w *Workflow) SaveRoster(ctx context.Context, sub *entity.Submission, rec *roster.Reconciler, confirm ConfirmCount) (RosterSaveResult, error) {
	var result RosterSaveResult
	if !lifecycle.Editable(sub) {
		return result, lifecycle.ErrFrozen
	}
	if err := validation.ValidateRoster(rec.Roster()).Err(); err != nil {
		return result, err
	}
	if declared, actual, mismatch := rec.Mismatch(); mismatch {
		if confirm == nil || !confirm(declared, actual) {
			return result, &CountMismatchError{Declared: declared, Actual: actual}
		}
	}

	plan := rec.ReconcileForSave()
	var failed []string
	for _, workerID := range plan.ToDelete {
		err := w.store.DeleteWorker(ctx, sub.ID, workerID)
		switch {
		case err == nil, errors.Is(err, client.ErrNotFound):
			result.Deleted = append(result.Deleted, workerID)
		default:
			w.logger.Warn("delete worker failed",
				zap.String("submission_id", sub.ID), zap.String("worker_id", workerID), zap.Error(err))
			failed = append(failed, workerID)
		}
	}
	result.FailedDeletions = rec.Settle(failed)

	workers := plan.FinalRoster
	for i := range workers {
		if workers[i].IsTemporary() {
			workers[i].ID = ""
		}
	}
	if workers == nil {
		workers = []entity.Worker{}
	}
	count := plan.FinalCount
	saved, err := w.store.UpdateSubmission(ctx, sub.ID, sub.Version, entity.SubmissionPatch{
		WorkerCount: &count,
		Workers:     workers,
	})
	if err != nil {
		return result, fmt.Errorf("save roster: %w", err)
	}
	rec.Rebase(saved.WorkerCount, saved.Workers)
	result.Saved = saved
	return result, nil
}

// Create validates the form, sends it, and clears the draft on success.
func (w *Workflow) Create(ctx context.Context, form draft.Form) (*entity.Submission, error) {
	sub := form.Submission()
	if err := validation.ValidateSubmissionForCreate(sub).Err(); err != nil {
		return nil, err
	}
	for i := range sub.Workers {
		if sub.Workers[i].IsTemporary() {
			sub.Workers[i].ID = ""
		}
	}
	created, err := w.store.CreateSubmission(ctx, sub)
	if err != nil {
		return nil, err
	}
	if w.drafts != nil {
		if err := w.drafts.Clear(ctx); err != nil {
			w.logger.Warn("clear draft after create failed", zap.Error(err))
		}
	}
	return created, nil
}
