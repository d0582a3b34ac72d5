package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ///////////////////////////////////////////////
// Defaults
// ///////////////////////////////////////////////

const (
	// DefaultSendTimeout bounds a single presence send.
	DefaultSendTimeout = time.Second
	// DefaultCheckInterval is the delay between liveness checks.
	DefaultCheckInterval = 20 * time.Second
)

// ///////////////////////////////////////////////
// Options
// ///////////////////////////////////////////////

// Option configures a [Syncer].
type Option func(*Syncer)

// WithSendTimeout overrides [DefaultSendTimeout]. Non-positive values are ignored.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// WithCheckInterval overrides [DefaultCheckInterval]. Non-positive values are ignored.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.checkInterval = d
		}
	}
}

// WithLogger sets the logger used for update failures and lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.log = l
		}
	}
}

// UpdateOption modifies a single [Syncer.Update] call.
type UpdateOption func(*job)

// ForceUpdate sends the presence even when it equals the last one.
func ForceUpdate() UpdateOption {
	return func(j *job) { j.force = true }
}

// ForceReconnect replaces the connection before sending.
func ForceReconnect() UpdateOption {
	return func(j *job) { j.reconnect = true }
}

// ///////////////////////////////////////////////
// Jobs
// ///////////////////////////////////////////////

type jobKind int

const (
	jobUpdate jobKind = iota
	jobCheck
)

// job is one unit of work for the Syncer's worker.
type job struct {
	kind      jobKind
	presence  *Presence
	force     bool
	reconnect bool
	// gen is the checker generation a jobCheck was scheduled under.
	gen  uint64
	done chan struct{}
}

// ///////////////////////////////////////////////
// Syncer
// ///////////////////////////////////////////////

// Syncer publishes presence updates over a single [Connection].
//
// All updates and liveness checks run on one worker goroutine in FIFO order,
// and the worker holds mu for the full body of each job, so transport side
// effects never interleave.
type Syncer struct {
	dial          Dialer
	sendTimeout   time.Duration
	checkInterval time.Duration
	log           *slog.Logger

	// ctx is cancelled by Dispose to abort in-flight connects and sends.
	ctx    context.Context
	cancel context.CancelFunc

	// qmu guards queue and closed.
	qmu    sync.Mutex
	queue  []job
	closed bool
	// wake is signalled (buffered, coalescing) whenever the queue grows or closes.
	wake chan struct{}
	// stopped is closed when the worker exits.
	stopped chan struct{}

	// mu guards every field below. The worker holds it while processing a job.
	mu   sync.Mutex
	conn Connection
	last *Presence
	// started is false until the first update has been processed, so the
	// first update is never skipped by the equality check.
	started    bool
	checkTimer *time.Timer
	checkGen   uint64

	user        atomic.Pointer[User]
	disposeOnce sync.Once
}

// NewSyncer creates a Syncer that builds connections with dial and starts
// its worker.
func NewSyncer(dial Dialer, opts ...Option) *Syncer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Syncer{
		dial:          dial,
		sendTimeout:   DefaultSendTimeout,
		checkInterval: DefaultCheckInterval,
		log:           slog.Default().With("component", "presence"),
		ctx:           ctx,
		cancel:        cancel,
		wake:          make(chan struct{}, 1),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// Update schedules p to be published. It never blocks on the transport and
// never returns an error; failures are logged and recovered by the liveness
// checker. The returned channel is closed once the update has been applied
// or discarded.
//
// A nil p, or one without an AppID, tears down the active connection.
func (s *Syncer) Update(p *Presence, opts ...UpdateOption) <-chan struct{} {
	j := job{kind: jobUpdate, presence: p, done: make(chan struct{})}
	for _, opt := range opts {
		opt(&j)
	}
	if !s.enqueue(j) {
		close(j.done)
	}
	return j.done
}

// Dispose stops the liveness checker, cancels in-flight work, drains the
// queue, and tears down the connection before returning. Calls after the
// first are no-ops.
func (s *Syncer) Dispose() {
	s.disposeOnce.Do(func() {
		s.qmu.Lock()
		s.closed = true
		s.qmu.Unlock()
		s.signal()

		s.cancel()
		<-s.stopped

		s.mu.Lock()
		defer s.mu.Unlock()
		s.stopChecker()
		s.teardown()
		s.last = nil
		s.log.Debug("presence syncer disposed")
	})
}

// User returns the account reported by the most recent handshake, or
// [UnknownUser].
func (s *Syncer) User() User {
	if u := s.user.Load(); u != nil {
		return *u
	}
	return UnknownUser
}

// Connected reports whether a connection exists and is running.
func (s *Syncer) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.conn.Running()
}

// LastPresence returns the most recently accepted presence.
func (s *Syncer) LastPresence() *Presence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// ///////////////////////////////////////////////
// Queue
// ///////////////////////////////////////////////

// enqueue appends j to the queue. It returns false once the Syncer is closed.
func (s *Syncer) enqueue(j job) bool {
	s.qmu.Lock()
	if s.closed {
		s.qmu.Unlock()
		return false
	}
	s.queue = append(s.queue, j)
	s.qmu.Unlock()
	s.signal()
	return true
}

// signal wakes the worker without blocking.
func (s *Syncer) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next blocks until a job is queued or the Syncer is closed and drained.
func (s *Syncer) next() (job, bool) {
	for {
		s.qmu.Lock()
		if len(s.queue) > 0 {
			j := s.queue[0]
			s.queue[0] = job{}
			s.queue = s.queue[1:]
			s.qmu.Unlock()
			return j, true
		}
		closed := s.closed
		s.qmu.Unlock()
		if closed {
			return job{}, false
		}
		<-s.wake
	}
}

func (s *Syncer) run() {
	defer close(s.stopped)
	for {
		j, ok := s.next()
		if !ok {
			return
		}
		s.process(j)
		close(j.done)
	}
}

// process runs one job under mu. Panics and errors stop here.
func (s *Syncer) process(j job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("presence update panicked", "panic", r)
		}
	}()

	if s.ctx.Err() != nil {
		return
	}

	switch j.kind {
	case jobCheck:
		s.check(j.gen)
	case jobUpdate:
		if err := s.apply(j.presence, j.force, j.reconnect); err != nil {
			s.logFailure(err)
		}
	}
}

func (s *Syncer) logFailure(err error) {
	if errors.Is(err, context.Canceled) {
		s.log.Debug("presence update cancelled", "error", err)
		return
	}
	s.log.Warn("presence update failed", "error", err)
}

// ///////////////////////////////////////////////
// Update Body
// ///////////////////////////////////////////////

// apply is the update body. The caller must hold s.mu.
func (s *Syncer) apply(p *Presence, force, reconnect bool) error {
	if !force && !reconnect && s.started && p.Equal(s.last) {
		return nil
	}
	s.started = true
	s.last = p

	if !p.HasIdentity() {
		s.teardown()
		return nil
	}

	if reconnect || s.conn == nil || s.conn.AppID() != p.AppID {
		if err := s.replace(p.AppID); err != nil {
			return err
		}
	}

	sendCtx, cancel := context.WithTimeout(s.ctx, s.sendTimeout)
	defer cancel()
	if err := s.conn.Send(sendCtx, p); err != nil {
		if errors.Is(sendCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			s.log.Debug("presence send timed out", "app_id", p.AppID, "timeout", s.sendTimeout)
			return nil
		}
		return fmt.Errorf("send presence: %w", err)
	}
	s.log.Debug("presence sent", "app_id", p.AppID, "details", p.Details, "state", p.State)
	return nil
}

// replace disposes the current connection, then dials and connects a new
// one bound to appID. The new connection stays in the slot even when
// Connect fails so the liveness checker retries it. The caller must hold s.mu.
func (s *Syncer) replace(appID string) error {
	s.teardown()

	conn := s.dial(appID, s.setUser)
	s.conn = conn
	s.startChecker()

	if err := conn.Connect(s.ctx); err != nil {
		return fmt.Errorf("connect app %s: %w", appID, err)
	}
	s.log.Info("connected to chat client", "app_id", appID, "user", s.User().DisplayName())
	return nil
}

// teardown stops the checker and releases the active connection. It is a
// no-op without one. The caller must hold s.mu.
func (s *Syncer) teardown() {
	if s.conn == nil {
		return
	}
	s.stopChecker()
	if err := s.conn.Disconnect(); err != nil {
		s.log.Debug("disconnect failed", "app_id", s.conn.AppID(), "error", err)
	}
	s.conn = nil
	s.user.Store(nil)
}

func (s *Syncer) setUser(u User) {
	s.user.Store(&u)
}

// ///////////////////////////////////////////////
// Liveness Checker
// ///////////////////////////////////////////////

// startChecker (re)arms the liveness timer under a fresh generation. The
// caller must hold s.mu.
func (s *Syncer) startChecker() {
	s.stopChecker()
	s.schedule(s.checkGen)
}

// stopChecker disarms the timer and invalidates queued checks. The caller
// must hold s.mu.
func (s *Syncer) stopChecker() {
	if s.checkTimer != nil {
		s.checkTimer.Stop()
		s.checkTimer = nil
	}
	s.checkGen++
}

func (s *Syncer) schedule(gen uint64) {
	s.checkTimer = time.AfterFunc(s.checkInterval, func() {
		s.enqueue(job{kind: jobCheck, gen: gen, done: make(chan struct{})})
	})
}

// check runs one liveness check. A dead connection is replaced using the
// last presence; a live one reschedules the check. The caller must hold s.mu.
func (s *Syncer) check(gen uint64) {
	if gen != s.checkGen || s.conn == nil {
		return
	}
	if s.conn.Running() {
		s.schedule(gen)
		return
	}

	s.log.Info("chat client connection lost, reconnecting", "app_id", s.conn.AppID())
	if err := s.apply(s.last, false, true); err != nil {
		s.logFailure(err)
	}
}
