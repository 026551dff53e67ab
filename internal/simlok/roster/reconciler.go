// Package roster keeps the editable working copy of a submission's worker roster and
// computes what a save has to persist.
package roster

import (
	"errors"
	"fmt"

	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
	"github.com/google/uuid"
)

// MaxDeclaredCount bounds the declared worker count.
const MaxDeclaredCount = 9999

var (
	ErrLastEntry     = errors.New("roster must keep at least one worker")
	ErrUnknownWorker = errors.New("worker not found in roster")
)

type deletionState int

const (
	deletionPending deletionState = iota
	deletionInFlight
)

// Plan is the outcome of ReconcileForSave.
type Plan struct {
	ToDelete    []string
	FinalRoster []entity.Worker
	FinalCount  int
}

// NeedsConfirmation reports a mismatch between the declared count and the roster; the
// caller must confirm both numbers with the user before persisting.
func (p Plan) NeedsConfirmation() bool {
	return p.FinalCount != len(p.FinalRoster)
}

// Reconciler is a local working copy, never merged with server pushes.
// It is not safe for concurrent use.
type Reconciler struct {
	declared int
	roster   []entity.Worker
	deletion map[string]deletionState
	order    []string
}

// New starts an edit session from the last synced roster.
func New(declaredCount int, workers []entity.Worker) *Reconciler {
	r := &Reconciler{
		roster:   append([]entity.Worker(nil), workers...),
		deletion: make(map[string]deletionState),
	}
	r.SetDeclaredCount(declaredCount)
	return r
}

// FromSubmission starts an edit session from a synced submission.
func FromSubmission(sub *entity.Submission) *Reconciler {
	return New(sub.WorkerCount, sub.Workers)
}

// SetDeclaredCount clamps n to [0, MaxDeclaredCount] and returns the stored value.
// The roster is left untouched.
func (r *Reconciler) SetDeclaredCount(n int) int {
	switch {
	case n < 0:
		n = 0
	case n > MaxDeclaredCount:
		n = MaxDeclaredCount
	}
	r.declared = n
	return n
}

func (r *Reconciler) DeclaredCount() int {
	return r.declared
}

func (r *Reconciler) Len() int {
	return len(r.roster)
}

// Roster returns a copy of the visible roster.
func (r *Reconciler) Roster() []entity.Worker {
	return append([]entity.Worker(nil), r.roster...)
}

// Add appends an entry. Entries without an id get a temporary one.
func (r *Reconciler) Add(w entity.Worker) entity.Worker {
	if w.ID == "" {
		w.ID = entity.TempWorkerPrefix + uuid.New().String()
	}
	r.roster = append(r.roster, w)
	return w
}

// Update edits an entry in place.
func (r *Reconciler) Update(id string, fn func(w *entity.Worker)) error {
	for i := range r.roster {
		if r.roster[i].ID == id {
			fn(&r.roster[i])
			r.roster[i].ID = id
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownWorker, id)
}

// RemoveEntry drops an entry from the visible roster. Persisted entries are queued for
// deletion at save time, temporary ones are simply forgotten. The last entry cannot be
// removed.
func (r *Reconciler) RemoveEntry(id string) error {
	idx := -1
	for i, w := range r.roster {
		if w.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}
	if len(r.roster) <= 1 {
		return ErrLastEntry
	}
	w := r.roster[idx]
	r.roster = append(r.roster[:idx:idx], r.roster[idx+1:]...)
	if !w.IsTemporary() {
		if _, queued := r.deletion[w.ID]; !queued {
			r.deletion[w.ID] = deletionPending
			r.order = append(r.order, w.ID)
		}
	}
	return nil
}

// PendingDeletion lists queued and in-flight deletions in removal order.
func (r *Reconciler) PendingDeletion() []string {
	return append([]string(nil), r.order...)
}

// Mismatch reports the declared count and the roster length, and whether they differ.
func (r *Reconciler) Mismatch() (declared, actual int, mismatch bool) {
	return r.declared, len(r.roster), r.declared != len(r.roster)
}

// ReconcileForSave computes the save plan. Queued deletions are handed out once: they
// move to in-flight and stay listed in PendingDeletion until Settle, so a second call
// without edits returns nothing to delete. FinalCount is always the declared count.
func (r *Reconciler) ReconcileForSave() Plan {
	var toDelete []string
	for _, id := range r.order {
		if r.deletion[id] == deletionPending {
			r.deletion[id] = deletionInFlight
			toDelete = append(toDelete, id)
		}
	}
	return Plan{
		ToDelete:    toDelete,
		FinalRoster: r.Roster(),
		FinalCount:  r.declared,
	}
}

// Settle closes the in-flight batch. Failed ids are not retried; they are returned so
// the caller can report them, and can be queued again with Requeue.
func (r *Reconciler) Settle(failed []string) []string {
	failedSet := make(map[string]bool, len(failed))
	for _, id := range failed {
		failedSet[id] = true
	}
	var unresolved []string
	kept := r.order[:0]
	for _, id := range r.order {
		if r.deletion[id] != deletionInFlight {
			kept = append(kept, id)
			continue
		}
		delete(r.deletion, id)
		if failedSet[id] {
			unresolved = append(unresolved, id)
		}
	}
	r.order = kept
	return unresolved
}

// Requeue queues ids for deletion again, e.g. after the user asks to retry.
func (r *Reconciler) Requeue(ids []string) {
	for _, id := range ids {
		if _, ok := r.deletion[id]; ok {
			continue
		}
		r.deletion[id] = deletionPending
		r.order = append(r.order, id)
	}
}

// Rebase replaces the working copy with a freshly persisted roster after a save.
// Queued deletions that were not part of the saved batch are kept.
func (r *Reconciler) Rebase(declaredCount int, workers []entity.Worker) {
	r.roster = append([]entity.Worker(nil), workers...)
	r.SetDeclaredCount(declaredCount)
}
