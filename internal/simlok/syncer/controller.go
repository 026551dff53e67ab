// Package syncer keeps one displayed submission fresh while its detail view is open.
//
// A Controller fetches on open, refetches whenever the push channel reports a change
// for the submission, and polls instead while the push channel is down. At most one
// detail fetch is outstanding; a newer fetch cancels the older one and a late answer
// for a superseded fetch is dropped.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/asmorodws/simlok2-sub003/internal/simlok/client"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
	"go.uber.org/zap"
)

// Store is the read side of the submission store.
type Store interface {
	GetSubmission(ctx context.Context, id string) (*entity.Submission, error)
	ListScans(ctx context.Context, id string) ([]entity.ScanRecord, error)
}

// PushChannel reports submission changes. sse.Source implements it.
type PushChannel interface {
	Subscribe(submissionID string, fn func()) (unsubscribe func())
	Connected() bool
	OnConnectionChange(fn func(connected bool)) (unwatch func())
}

// Hooks receive the controller's output. Any of them may be nil. They are called from
// controller goroutines, never while the controller's lock is held.
type Hooks struct {
	OnUpdate   func(sub *entity.Submission)
	OnScans    func(scans []entity.ScanRecord)
	OnNotFound func(id string)
	OnError    func(err error)
	// OnClose fires when the controller closes the view itself (submission gone).
	OnClose func()
	// Reload fires ReloadDelay after a not-found close so the list view can re-sync.
	Reload func()
	// OnClear fires ClearDelay after teardown, when the displayed state is dropped.
	OnClear func()
}

// Options tunes timings. Zero values take the defaults.
type Options struct {
	PollInterval time.Duration
	ReloadDelay  time.Duration
	ClearDelay   time.Duration
	Logger       *zap.Logger
}

const (
	DefaultPollInterval = 5 * time.Second
	DefaultReloadDelay  = 2 * time.Second
	DefaultClearDelay   = 300 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ReloadDelay <= 0 {
		o.ReloadDelay = DefaultReloadDelay
	}
	if o.ClearDelay <= 0 {
		o.ClearDelay = DefaultClearDelay
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Mode is how the open view learns about changes.
type Mode string

const (
	ModeIdle Mode = "idle"
	ModePush Mode = "push"
	ModePoll Mode = "poll"
)

// Controller owns one detail view session at a time.
type Controller struct {
	store  Store
	push   PushChannel
	hooks  Hooks
	opts   Options
	logger *zap.Logger

	// emitMu serializes "is this result still current?" with the hook call so a
	// superseded result can never be delivered after a newer one.
	emitMu sync.Mutex

	mu            sync.Mutex
	id            string
	open          bool
	gen           uint64
	seq           uint64
	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	cancelFetch   context.CancelFunc
	unsubscribe   func()
	unwatch       func()
	pollStop      chan struct{}
	editing       bool
	suppressed    bool
	current       *entity.Submission
	clearTimer    *time.Timer
	reloadTimer   *time.Timer
}

// New creates a Controller. push may be nil, in which case the view always polls.
func New(store Store, push PushChannel, hooks Hooks, opts Options) *Controller {
	opts = opts.withDefaults()
	return &Controller{
		store:  store,
		push:   push,
		hooks:  hooks,
		opts:   opts,
		logger: opts.Logger.Named("syncer"),
	}
}

// Open starts a session for id. Opening a different id tears the previous session
// down first; re-opening the current id is a no-op.
func (c *Controller) Open(id string) {
	c.mu.Lock()
	if c.open && c.id == id {
		c.mu.Unlock()
		return
	}
	c.teardownLocked(false)
	if c.clearTimer != nil {
		c.clearTimer.Stop()
		c.clearTimer = nil
	}
	// a reload left over from an earlier not-found must not fire into this session
	if c.reloadTimer != nil {
		c.reloadTimer.Stop()
		c.reloadTimer = nil
	}

	c.id = id
	c.open = true
	c.gen++
	c.current = nil
	c.editing = false
	c.suppressed = false
	gen := c.gen
	c.sessionCtx, c.sessionCancel = context.WithCancel(context.Background())

	if c.push != nil {
		c.unsubscribe = c.push.Subscribe(id, func() { c.autoRefresh(gen) })
		c.unwatch = c.push.OnConnectionChange(func(up bool) { c.connectionChanged(gen, up) })
	}
	if c.push == nil || !c.push.Connected() {
		c.startPollLocked(gen)
	}
	c.startFetchLocked()
	sessionCtx := c.sessionCtx
	c.mu.Unlock()

	c.logger.Debug("view opened", zap.String("submission_id", id))
	go c.fetchScans(sessionCtx, gen, id)
}

// Close tears the session down: unsubscribe, stop polling, cancel the fetch, and drop
// the displayed state after ClearDelay.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked(true)
}

// Shutdown is Close plus cancelling the clear and reload timers.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked(false)
	if c.clearTimer != nil {
		c.clearTimer.Stop()
		c.clearTimer = nil
	}
	if c.reloadTimer != nil {
		c.reloadTimer.Stop()
		c.reloadTimer = nil
	}
}

// Refresh refetches now, cancelling any fetch in flight. It ignores the edit gate.
func (c *Controller) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return
	}
	c.startFetchLocked()
}

// BeginEdit opens an edit session; automatic refreshes are held until EndEdit.
func (c *Controller) BeginEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		c.editing = true
	}
}

// EndEdit closes the edit session and runs a refresh that was held back, if any.
func (c *Controller) EndEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editing = false
	if c.suppressed && c.open {
		c.suppressed = false
		c.startFetchLocked()
	}
}

// Editing reports whether an edit session is open.
func (c *Controller) Editing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editing
}

// Current returns a copy of the displayed submission, nil before the first fetch and
// after the state was cleared.
func (c *Controller) Current() *entity.Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Clone()
}

// ID returns the submission id of the open session.
func (c *Controller) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ""
	}
	return c.id
}

// Mode reports push or poll while open.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case !c.open:
		return ModeIdle
	case c.pollStop != nil:
		return ModePoll
	default:
		return ModePush
	}
}

func (c *Controller) autoRefresh(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || gen != c.gen {
		return
	}
	if c.editing {
		c.suppressed = true
		return
	}
	c.startFetchLocked()
}

func (c *Controller) connectionChanged(gen uint64, up bool) {
	c.mu.Lock()
	if !c.open || gen != c.gen {
		c.mu.Unlock()
		return
	}
	if !up {
		c.startPollLocked(gen)
		id := c.id
		c.mu.Unlock()
		c.logger.Debug("push down, polling", zap.String("submission_id", id))
		return
	}
	c.stopPollLocked()
	c.mu.Unlock()
	// events may have been missed while disconnected
	c.autoRefresh(gen)
}

func (c *Controller) startPollLocked(gen uint64) {
	if c.pollStop != nil {
		return
	}
	stop := make(chan struct{})
	c.pollStop = stop
	interval := c.opts.PollInterval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.autoRefresh(gen)
			}
		}
	}()
}

func (c *Controller) stopPollLocked() {
	if c.pollStop != nil {
		close(c.pollStop)
		c.pollStop = nil
	}
}

func (c *Controller) startFetchLocked() {
	if c.cancelFetch != nil {
		c.cancelFetch()
	}
	c.seq++
	seq := c.seq
	ctx, cancel := context.WithCancel(c.sessionCtx)
	c.cancelFetch = cancel
	go c.runFetch(ctx, cancel, c.id, seq)
}

func (c *Controller) runFetch(ctx context.Context, cancel context.CancelFunc, id string, seq uint64) {
	defer cancel()
	sub, err := c.store.GetSubmission(ctx, id)

	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if seq != c.seq || !c.open {
		c.mu.Unlock()
		c.logger.Debug("drop superseded fetch", zap.String("submission_id", id), zap.Uint64("seq", seq))
		return
	}
	c.cancelFetch = nil
	switch {
	case err == nil:
		c.current = sub
		c.mu.Unlock()
		if c.hooks.OnUpdate != nil {
			c.hooks.OnUpdate(sub.Clone())
		}
	case errors.Is(err, client.ErrNotFound):
		c.mu.Unlock()
		c.notFound(id)
	case ctx.Err() != nil:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		c.logger.Warn("fetch submission failed", zap.String("submission_id", id), zap.Error(err))
		if c.hooks.OnError != nil {
			c.hooks.OnError(err)
		}
	}
}

// notFound is the hard stop: notify, close the view, reload after ReloadDelay.
func (c *Controller) notFound(id string) {
	c.logger.Info("submission gone, closing view", zap.String("submission_id", id))
	if c.hooks.OnNotFound != nil {
		c.hooks.OnNotFound(id)
	}

	c.mu.Lock()
	c.teardownLocked(true)
	if c.reloadTimer != nil {
		c.reloadTimer.Stop()
	}
	reload := c.hooks.Reload
	c.reloadTimer = time.AfterFunc(c.opts.ReloadDelay, func() {
		if reload != nil {
			reload()
		}
	})
	c.mu.Unlock()

	if c.hooks.OnClose != nil {
		c.hooks.OnClose()
	}
}

func (c *Controller) fetchScans(ctx context.Context, gen uint64, id string) {
	scans, err := c.store.ListScans(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("fetch scan history failed", zap.String("submission_id", id), zap.Error(err))
		}
		return
	}
	c.mu.Lock()
	current := c.open && gen == c.gen
	c.mu.Unlock()
	if current && c.hooks.OnScans != nil {
		c.hooks.OnScans(scans)
	}
}

// teardownLocked is the single release point of a session. With clear set the
// displayed state is dropped after ClearDelay, otherwise immediately.
func (c *Controller) teardownLocked(clear bool) {
	if !c.open {
		return
	}
	c.open = false
	c.gen++
	c.seq++
	c.editing = false
	c.suppressed = false
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	if c.unwatch != nil {
		c.unwatch()
		c.unwatch = nil
	}
	c.stopPollLocked()
	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}
	if c.sessionCancel != nil {
		c.sessionCancel()
		c.sessionCancel = nil
	}

	if !clear {
		c.current = nil
		return
	}
	if c.clearTimer != nil {
		c.clearTimer.Stop()
	}
	gen := c.gen
	c.clearTimer = time.AfterFunc(c.opts.ClearDelay, func() {
		c.mu.Lock()
		if c.open || c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.current = nil
		c.clearTimer = nil
		c.mu.Unlock()
		if c.hooks.OnClear != nil {
			c.hooks.OnClear()
		}
	})
}
