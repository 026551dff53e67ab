package workflow

import (
	"errors"
	"fmt"

	"github.com/asmorodws/simlok2-sub003/internal/simlok/client"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/lifecycle"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/validation"
)

// Phase names a step of the two-step review submit.
type Phase string

const (
	PhaseSchedule Phase = "schedule"
	PhaseReview   Phase = "review"
)

// PhaseError reports which step of submit review failed. After a PhaseReview failure
// the schedule fields are already saved; retrying the whole submit is safe.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("submit review: %s step failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// CountMismatchError: the declared worker count differs from the roster and the user
// did not confirm.
type CountMismatchError struct {
	Declared int
	Actual   int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("worker_count is %d but the roster lists %d workers; confirmation required", e.Declared, e.Actual)
}

// Kind is the user-facing error taxonomy.
type Kind int

const (
	KindNone Kind = iota
	// KindValidation blocks locally; nothing reached the network.
	KindValidation
	// KindNotFound is terminal for the view: notify, close, reload.
	KindNotFound
	// KindConflict means the submission changed underneath; reload and retry.
	KindConflict
	// KindRetryable keeps the view open; the same action may be retried.
	KindRetryable
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "retryable"
	}
}

// Classify maps any error from this package, the client or the lifecycle to a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		verr     *validation.Error
		mismatch *CountMismatchError
		terr     *lifecycle.TransitionError
		apiErr   *client.APIError
	)
	switch {
	case errors.Is(err, client.ErrNotFound):
		return KindNotFound
	case errors.Is(err, client.ErrConflict):
		return KindConflict
	case errors.As(err, &verr), errors.As(err, &mismatch), errors.As(err, &terr),
		errors.Is(err, lifecycle.ErrFrozen), errors.Is(err, lifecycle.ErrNotReviewed):
		return KindValidation
	case errors.As(err, &apiErr) && len(apiErr.Failures) > 0:
		return KindValidation
	}
	return KindRetryable
}

// Fields lists the field ids an error points at, for highlighting.
func Fields(err error) []string {
	var verr *validation.Error
	if errors.As(err, &verr) {
		return validation.Result{Failures: verr.Failures}.Fields()
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return validation.Result{Failures: apiErr.Failures}.Fields()
	}
	var mismatch *CountMismatchError
	if errors.As(err, &mismatch) {
		return []string{"worker_count"}
	}
	return nil
}
