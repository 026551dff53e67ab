// Package lifecycle is the submission state machine over (review_status, approval_status).
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/validation"
)

// Event is a transition trigger.
type Event string

const (
	EventSubmitReview   Event = "submit_review"
	EventApprove        Event = "approve"
	EventReject         Event = "reject"
	EventVendorResubmit Event = "vendor_resubmit"
)

// Role is the actor that may fire an event.
type Role string

const (
	RoleVendor   Role = "vendor"
	RoleReviewer Role = "reviewer"
	RoleApprover Role = "approver"
)

var (
	// ErrFrozen: approval already decided, no transition is legal any more.
	ErrFrozen = errors.New("submission is frozen after the approval decision")
	// ErrNotReviewed: approval decisions need a review outcome first.
	ErrNotReviewed = errors.New("submission has not been reviewed yet")
)

// TransitionError is an illegal event for the current state.
type TransitionError struct {
	From  State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s not allowed from %s", e.Event, e.From)
}

// State is the product of the two workflow fields.
type State struct {
	Review   entity.ReviewStatus
	Approval entity.ApprovalStatus
}

// StateOf reads the state of a submission.
func StateOf(sub *entity.Submission) State {
	return State{Review: sub.ReviewStatus, Approval: sub.ApprovalStatus}
}

func (s State) String() string {
	return fmt.Sprintf("(%s, %s)", s.Review, s.Approval)
}

// Frozen reports the terminal states.
func (s State) Frozen() bool {
	return s.Approval.IsDecision()
}

// Reviewed reports whether the review has left PENDING_REVIEW.
func (s State) Reviewed() bool {
	return s.Review.IsOutcome()
}

// open: approval not decided. PENDING_REVIEW on the approval side is the legacy
// "waiting for review" value and is treated like PENDING_APPROVAL for review events.
func (s State) open() bool {
	return s.Approval == entity.ApprovalStatusPending || s.Approval == entity.ApprovalStatusPendingReview
}

// rule is one row of the transition table.
type rule struct {
	event   Event
	role    Role
	from    func(State) bool
	to      func(State, entity.ReviewStatus) State
	payload []string
}

var rules = []rule{
	{
		event: EventSubmitReview,
		role:  RoleReviewer,
		from:  func(s State) bool { return s.open() },
		to: func(s State, outcome entity.ReviewStatus) State {
			return State{Review: outcome, Approval: entity.ApprovalStatusPending}
		},
		payload: []string{"review_status", "implementation_start_date", "implementation_end_date", "working_hours"},
	},
	{
		event: EventApprove,
		role:  RoleApprover,
		from:  func(s State) bool { return s.Approval == entity.ApprovalStatusPending && s.Reviewed() },
		to: func(s State, _ entity.ReviewStatus) State {
			return State{Review: s.Review, Approval: entity.ApprovalStatusApproved}
		},
		payload: []string{"simlok_number", "simlok_date"},
	},
	{
		event: EventReject,
		role:  RoleApprover,
		from:  func(s State) bool { return s.Approval == entity.ApprovalStatusPending && s.Reviewed() },
		to: func(s State, _ entity.ReviewStatus) State {
			return State{Review: s.Review, Approval: entity.ApprovalStatusRejected}
		},
	},
	{
		event: EventVendorResubmit,
		role:  RoleVendor,
		from: func(s State) bool {
			return s.Review == entity.ReviewStatusNotMeets && s.Approval == entity.ApprovalStatusPending
		},
		to: func(s State, _ entity.ReviewStatus) State {
			return State{Review: entity.ReviewStatusPending, Approval: entity.ApprovalStatusPending}
		},
	},
}

func ruleFor(ev Event) (rule, bool) {
	for _, r := range rules {
		if r.event == ev {
			return r, true
		}
	}
	return rule{}, false
}

// Next computes the target state. outcome is only read for EventSubmitReview.
func Next(s State, ev Event, outcome entity.ReviewStatus) (State, error) {
	if s.Frozen() {
		return s, ErrFrozen
	}
	r, ok := ruleFor(ev)
	if !ok {
		return s, &TransitionError{From: s, Event: ev}
	}
	if ev == EventSubmitReview && !outcome.IsOutcome() {
		return s, &TransitionError{From: s, Event: ev}
	}
	if !r.from(s) {
		if (ev == EventApprove || ev == EventReject) && !s.Reviewed() {
			return s, ErrNotReviewed
		}
		return s, &TransitionError{From: s, Event: ev}
	}
	return r.to(s, outcome), nil
}

// Can reports whether ev is legal from s, ignoring payload.
func Can(s State, ev Event) bool {
	if s.Frozen() {
		return false
	}
	r, ok := ruleFor(ev)
	return ok && r.from(s)
}

// Actions lists the events role may fire from s, in table order.
func Actions(role Role, s State) []Event {
	var out []Event
	for _, r := range rules {
		if r.role == role && Can(s, r.event) {
			out = append(out, r.event)
		}
	}
	return out
}

// RequiredPayload names the side-payload fields an event needs. For a review the note
// depends on the outcome.
func RequiredPayload(ev Event, outcome entity.ReviewStatus) []string {
	r, ok := ruleFor(ev)
	if !ok {
		return nil
	}
	fields := append([]string(nil), r.payload...)
	if ev == EventSubmitReview {
		switch outcome {
		case entity.ReviewStatusMeets:
			fields = append(fields, "note_for_approver")
		case entity.ReviewStatusNotMeets:
			fields = append(fields, "note_for_vendor")
		}
	}
	return fields
}

// ApplyReview validates a review payload, moves sub to the review outcome and writes the
// payload onto it. A re-review overwrites the previous payload.
func ApplyReview(sub *entity.Submission, in validation.ReviewInput, reviewerID string, now time.Time) error {
	if err := validation.ValidateReviewSubmission(in).Err(); err != nil {
		return err
	}
	in = in.Normalize()
	next, err := Next(StateOf(sub), EventSubmitReview, in.Outcome)
	if err != nil {
		return err
	}
	sub.ReviewStatus = next.Review
	sub.ApprovalStatus = next.Approval
	sub.ImplementationStartDate = in.ImplementationStartDate
	sub.ImplementationEndDate = in.ImplementationEndDate
	sub.WorkingHours = in.WorkingHours
	sub.HolidayWorkingHours = in.HolidayWorkingHours
	if in.ContentTemplate != "" {
		sub.ContentTemplate = in.ContentTemplate
	}
	sub.NoteForApprover = in.NoteForApprover
	sub.NoteForVendor = in.NoteForVendor
	sub.ReviewedBy = reviewerID
	sub.ReviewedAt = &now
	return nil
}

// ApplyApproval validates an approval decision and applies it. The SIMLOK number and
// date are written only on approval and never overwritten once set.
func ApplyApproval(sub *entity.Submission, in validation.ApprovalInput, approverID string, now time.Time) error {
	if err := validation.ValidateApprovalDecision(in).Err(); err != nil {
		return err
	}
	ev := EventApprove
	if in.Decision == entity.ApprovalStatusRejected {
		ev = EventReject
	}
	next, err := Next(StateOf(sub), ev, "")
	if err != nil {
		return err
	}
	sub.ApprovalStatus = next.Approval
	if ev == EventApprove {
		if sub.SimlokNumber == "" {
			sub.SimlokNumber = in.SimlokNumber
		}
		if sub.SimlokDate.IsZero() {
			sub.SimlokDate = in.SimlokDate
		}
	} else if in.NoteForVendor != "" {
		sub.NoteForVendor = in.NoteForVendor
	}
	sub.ApprovedBy = approverID
	sub.ApprovedAt = &now
	return nil
}

// ApplyResubmit handles the vendor resubmission event after a NOT_MEETS review.
func ApplyResubmit(sub *entity.Submission) error {
	next, err := Next(StateOf(sub), EventVendorResubmit, "")
	if err != nil {
		return err
	}
	sub.ReviewStatus = next.Review
	sub.ApprovalStatus = next.Approval
	sub.ReviewedBy = ""
	sub.ReviewedAt = nil
	return nil
}

// Editable reports whether the reviewer may still edit schedule fields.
func Editable(sub *entity.Submission) bool {
	return !StateOf(sub).Frozen()
}
