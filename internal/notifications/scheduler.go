package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wellnessapp/notification-service/internal/joblock"
	"github.com/wellnessapp/notification-service/internal/push"
)

// --------------------------------------------------------------------------
// Collaborators
// --------------------------------------------------------------------------

// PreferenceSource lists users that could receive a tip.
type PreferenceSource interface {
	ListNotifiable(ctx context.Context) ([]Preference, error)
}

// TipPicker chooses a tip for a user at nowUTC; nil means the catalog has
// none.
type TipPicker interface {
	GetRandomTip(ctx context.Context, userID uuid.UUID, nowUTC time.Time) (*Tip, error)
}

// DeliveryLog is the append-only attempt log and its idempotency read.
type DeliveryLog interface {
	LogAttempt(ctx context.Context, a Attempt) (int64, error)
	HasSentToday(ctx context.Context, userID uuid.UUID, loc *time.Location, nowUTC time.Time) (bool, error)
}

// Deliverer sends one push with the gateway's retry policy.
type Deliverer interface {
	Deliver(ctx context.Context, msg push.Message) push.Result
}

// Clock is the scheduler's source of time. Tests substitute a virtual clock.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Deps are the scheduler's collaborators.
type Deps struct {
	Preferences PreferenceSource
	Tips        TipPicker
	Log         DeliveryLog
	Sender      Deliverer
	Lock        joblock.Lock
	Clock       Clock
	Zones       ZoneResolver
	Logger      *slog.Logger
}

// Options tune the scheduler loop. Zero values take defaults, except
// InterUserDelay where a negative value disables the pause.
type Options struct {
	Interval       time.Duration
	StartupDelay   time.Duration
	InterUserDelay time.Duration
	ReleaseTimeout time.Duration
}

// --------------------------------------------------------------------------
// State machine
// --------------------------------------------------------------------------

// State is Idle or Processing.
type State int32

const (
	StateIdle State = iota
	StateProcessing
)

func (s State) String() string {
	if s == StateProcessing {
		return "processing"
	}
	return "idle"
}

// Status is a snapshot for operators.
type Status struct {
	State     string      `json:"state"`
	Cycles    int         `json:"cycles"`
	LastRunAt *time.Time  `json:"last_run_at,omitempty"`
	NextRunAt *time.Time  `json:"next_run_at,omitempty"`
	LastCycle *CycleStats `json:"last_cycle,omitempty"`
	LastError string      `json:"last_error,omitempty"`
}

// Scheduler runs one notification cycle per tick. Cycles never overlap within
// a process; the job lock keeps them from overlapping across processes.
type Scheduler struct {
	deps      Deps
	opts      Options
	evaluator Evaluator
	logger    *slog.Logger

	state   atomic.Int32
	trigger chan struct{}

	mu        sync.Mutex
	cycles    int
	lastRunAt time.Time
	nextRunAt time.Time
	lastStats *CycleStats
	lastErr   error
}

// NewScheduler wires a scheduler. Clock and Logger default to the wall clock
// and slog.Default().
func NewScheduler(deps Deps, opts Options) *Scheduler {
	if deps.Clock == nil {
		deps.Clock = RealClock
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.StartupDelay < 0 {
		opts.StartupDelay = 0
	}
	if opts.InterUserDelay == 0 {
		opts.InterUserDelay = defaultInterUserDelay
	}
	if opts.ReleaseTimeout <= 0 {
		opts.ReleaseTimeout = 10 * time.Second
	}
	return &Scheduler{
		deps:      deps,
		opts:      opts,
		evaluator: Evaluator{Zones: deps.Zones, Logger: deps.Logger},
		logger:    deps.Logger,
		trigger:   make(chan struct{}, 1),
	}
}

// State returns the current state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Trigger requests an immediate cycle. Requests made while one is pending
// coalesce; returns false if a request was already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run waits the startup delay, runs a cycle, then one per interval until ctx
// is cancelled. Blocks; intended to be called with `go`.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Notification scheduler started",
		"interval", s.opts.Interval, "startup_delay", s.opts.StartupDelay)

	if s.opts.StartupDelay > 0 {
		select {
		case <-s.deps.Clock.After(s.opts.StartupDelay):
		case <-ctx.Done():
			s.logger.Info("Notification scheduler stopped")
			return
		}
	}

	next := s.deps.Clock.Now().Add(s.opts.Interval)
	s.runAndLog(ctx)

	for {
		// Keep a fixed cadence; a cycle that overruns skips the missed ticks.
		now := s.deps.Clock.Now()
		for !next.After(now) {
			next = next.Add(s.opts.Interval)
		}
		s.setNextRun(next)

		select {
		case <-ctx.Done():
			s.logger.Info("Notification scheduler stopped")
			return
		case <-s.deps.Clock.After(next.Sub(now)):
			s.runAndLog(ctx)
		case <-s.trigger:
			s.logger.Info("Notification cycle triggered")
			s.runAndLog(ctx)
		}
	}
}

func (s *Scheduler) runAndLog(ctx context.Context) {
	stats, err := s.RunCycle(ctx)
	switch {
	case err != nil:
		s.logger.Error("Notification cycle failed", "error", err, "summary", stats.Summary())
	case stats.LockAcquired:
		s.logger.Info("Notification cycle complete",
			"candidates", stats.Candidates, "due", stats.Due, "sent", stats.Sent,
			"skipped", stats.Skipped, "failed", stats.Failed,
			"duration", stats.Duration.Round(time.Millisecond))
	}
}

// RunCycle performs one Processing pass and returns to Idle. A cycle refused
// by the lock returns zero counts and no error. Errors acquiring the lock or
// listing users abort the cycle; per-user failures never do.
func (s *Scheduler) RunCycle(ctx context.Context) (stats CycleStats, err error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateProcessing)) {
		return stats, ErrCycleInProgress
	}
	defer s.state.Store(int32(StateIdle))

	stats.StartedAt = s.deps.Clock.Now().UTC()
	defer func() {
		stats.Duration = s.deps.Clock.Now().Sub(stats.StartedAt)
		s.recordCycle(stats, err)
	}()

	s.logger.Info("Starting notification cycle", "at", stats.StartedAt)

	// Converts a panic anywhere in the cycle, lock calls included, into an
	// error. The release registered below runs first.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notification cycle panic: %v", r)
		}
	}()

	acquired, err := s.deps.Lock.Acquire(ctx)
	if err != nil {
		return stats, fmt.Errorf("acquire job lock: %w", err)
	}
	if !acquired {
		s.logger.Info("Job lock held by another instance; skipping cycle")
		return stats, nil
	}
	stats.LockAcquired = true
	defer s.releaseLock()
	renewer, _ := s.deps.Lock.(joblock.Renewer)

	nowUTC := s.deps.Clock.Now().UTC()
	stats.CurrentHour = nowUTC.Hour()

	due, err := s.GetUsersDueForNotification(ctx, nowUTC, &stats)
	if err != nil {
		return stats, err
	}
	s.logger.Info("Users due for notification", "count", len(due), "utc_hour", stats.CurrentHour)

	for i, u := range due {
		if ctx.Err() != nil {
			remaining := len(due) - i
			stats.Skipped += remaining
			s.logger.Warn("Shutdown requested; stopping cycle", "remaining", remaining)
			break
		}
		if i > 0 && renewer != nil {
			if err := renewLock(ctx, renewer); err != nil {
				remaining := len(due) - i
				stats.Skipped += remaining
				s.logger.Error("Stopping cycle without the job lock", "remaining", remaining, "error", err)
				return stats, err
			}
		}

		if s.processUserSafely(ctx, u) {
			stats.Sent++
		} else {
			stats.Failed++
		}

		if i < len(due)-1 && s.opts.InterUserDelay > 0 {
			select {
			case <-s.deps.Clock.After(s.opts.InterUserDelay):
			case <-ctx.Done():
			}
		}
	}
	return stats, nil
}

// GetUsersDueForNotification lists notifiable users and keeps those the
// evaluator finds due at nowUTC. stats may be nil.
func (s *Scheduler) GetUsersDueForNotification(ctx context.Context, nowUTC time.Time, stats *CycleStats) ([]DueUser, error) {
	if stats == nil {
		stats = &CycleStats{}
	}

	prefs, err := s.deps.Preferences.ListNotifiable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notifiable users: %w", err)
	}
	stats.Candidates = len(prefs)

	var due []DueUser
	for _, p := range prefs {
		d := s.evaluateSafely(ctx, p, nowUTC)
		if !d.Eligible {
			if d.skippable() {
				stats.Skipped++
				s.logger.Debug("User skipped", "user_id", p.UserID, "reason", d.Reason)
			}
			continue
		}
		due = append(due, DueUser{
			UserID:           p.UserID,
			DeviceToken:      p.DeviceToken,
			Timezone:         p.Timezone,
			PreferredTimeUTC: p.PreferredTimeUTC,
			Location:         d.Location,
		})
	}
	stats.Due = len(due)
	return due, nil
}

// evaluateSafely turns a panic in the evaluator or the sent-today read into
// a failed check for that user alone.
func (s *Scheduler) evaluateSafely(ctx context.Context, p Preference, nowUTC time.Time) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while evaluating user", "user_id", p.UserID, "panic", r)
			d = Decision{Reason: ReasonCheckFailed, Err: fmt.Errorf("eligibility check panic: %v", r)}
		}
	}()
	return s.evaluator.Evaluate(p, nowUTC, func(loc *time.Location, now time.Time) (bool, error) {
		return s.deps.Log.HasSentToday(ctx, p.UserID, loc, now)
	})
}

func renewLock(ctx context.Context, r joblock.Renewer) error {
	held, err := r.Renew(ctx)
	if err != nil {
		return fmt.Errorf("renew job lock: %w", err)
	}
	if !held {
		return ErrLockLost
	}
	return nil
}

// releaseLock runs on a fresh context so shutdown cannot strand the lock.
func (s *Scheduler) releaseLock() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ReleaseTimeout)
	defer cancel()

	released, err := s.deps.Lock.Release(ctx)
	switch {
	case err != nil:
		s.logger.Error("Failed to release job lock", "error", err)
	case !released:
		s.logger.Warn("Job lock release reported not held", "error", joblock.ErrNotHeld)
	default:
		s.logger.Info("Job lock released")
	}
}

func (s *Scheduler) setNextRun(t time.Time) {
	s.mu.Lock()
	s.nextRunAt = t
	s.mu.Unlock()
}

func (s *Scheduler) recordCycle(stats CycleStats, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	s.lastRunAt = stats.StartedAt
	s.lastStats = &stats
	s.lastErr = err
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{State: s.State().String(), Cycles: s.cycles}
	if !s.lastRunAt.IsZero() {
		t := s.lastRunAt
		st.LastRunAt = &t
	}
	if !s.nextRunAt.IsZero() {
		t := s.nextRunAt
		st.NextRunAt = &t
	}
	if s.lastStats != nil {
		c := *s.lastStats
		st.LastCycle = &c
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
