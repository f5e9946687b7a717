package notifications

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wellnessapp/notification-service/internal/joblock"
	"github.com/wellnessapp/notification-service/internal/push"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := LoadZone(name)
	if err != nil {
		t.Fatalf("load zone %s: %v", name, err)
	}
	return loc
}

func tod(h, m int) time.Duration {
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
}

// --------------------------------------------------------------------------
// Virtual clock: After fires immediately and advances Now by d.
// --------------------------------------------------------------------------

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// --------------------------------------------------------------------------
// In-memory store
// --------------------------------------------------------------------------

type memStore struct {
	mu       sync.Mutex
	prefs    []Preference
	tips     []Tip
	attempts []Attempt
	next     int

	listErr     error
	listPanic   bool
	tipErr      error
	tipPanicOn  map[uuid.UUID]bool
	tipAsked    []time.Time
	sentErr     error
	sentPanicOn map[uuid.UUID]bool
}

func newMemStore(prefs ...Preference) *memStore {
	return &memStore{
		prefs: prefs,
		tips: []Tip{
			{ID: 1, Content: "Drink a glass of water.", Category: "hydration"},
			{ID: 2, Content: "Take a short walk.", Category: "movement"},
		},
		tipPanicOn:  map[uuid.UUID]bool{},
		sentPanicOn: map[uuid.UUID]bool{},
	}
}

func (s *memStore) ListNotifiable(ctx context.Context) ([]Preference, error) {
	if s.listPanic {
		panic("list exploded")
	}
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Preference
	for _, p := range s.prefs {
		if p.IsEnabled && p.DeviceToken != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) GetRandomTip(ctx context.Context, userID uuid.UUID, nowUTC time.Time) (*Tip, error) {
	if s.tipPanicOn[userID] {
		panic("tip lookup exploded")
	}
	if s.tipErr != nil {
		return nil, s.tipErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tipAsked = append(s.tipAsked, nowUTC)
	if len(s.tips) == 0 {
		return nil, nil
	}
	t := s.tips[s.next%len(s.tips)]
	s.next++
	return &t, nil
}

func (s *memStore) LogAttempt(ctx context.Context, a Attempt) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = int64(len(s.attempts) + 1)
	s.attempts = append(s.attempts, a)
	return a.ID, nil
}

func (s *memStore) HasSentToday(ctx context.Context, userID uuid.UUID, loc *time.Location, nowUTC time.Time) (bool, error) {
	if s.sentPanicOn[userID] {
		panic("sent-today exploded")
	}
	if s.sentErr != nil {
		return false, s.sentErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var times []time.Time
	for _, a := range s.attempts {
		if a.UserID == userID && a.Status == StatusSent {
			times = append(times, a.SentAt)
		}
	}
	return SentOnLocalDay(times, loc, nowUTC), nil
}

func (s *memStore) Attempts() []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Attempt(nil), s.attempts...)
}

func (s *memStore) attemptsFor(userID uuid.UUID) []Attempt {
	var out []Attempt
	for _, a := range s.Attempts() {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out
}

// --------------------------------------------------------------------------
// Deliverer
// --------------------------------------------------------------------------

type fakeDeliverer struct {
	mu      sync.Mutex
	sent    []push.Message
	failFor map[string]error
	onSend  func(msg push.Message)
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{failFor: map[string]error{}}
}

func (d *fakeDeliverer) Deliver(ctx context.Context, msg push.Message) push.Result {
	if d.onSend != nil {
		d.onSend(msg)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	if err, ok := d.failFor[msg.To]; ok {
		return push.Result{Attempts: 3, Err: err}
	}
	return push.Result{OK: true, Attempts: 1, TicketID: "ticket-" + msg.To}
}

func (d *fakeDeliverer) Sent() []push.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]push.Message(nil), d.sent...)
}

// --------------------------------------------------------------------------
// Locks
// --------------------------------------------------------------------------

// panickyLock panics on Acquire.
type panickyLock struct{}

func (panickyLock) Acquire(ctx context.Context) (bool, error) { panic("acquire exploded") }
func (panickyLock) Release(ctx context.Context) (bool, error) { return false, nil }

// expiringLock is a renewable lock that is lost after keepFor renewals.
type expiringLock struct {
	mu       sync.Mutex
	held     bool
	keepFor  int
	renewals int
	renewErr error
	released bool
}

func (l *expiringLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = true
	return true, nil
}

func (l *expiringLock) Renew(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.renewals++
	if l.renewErr != nil {
		return false, l.renewErr
	}
	if l.renewals > l.keepFor {
		l.held = false
	}
	return l.held, nil
}

func (l *expiringLock) Release(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
	was := l.held
	l.held = false
	return was, nil
}

// --------------------------------------------------------------------------
// Fixture
// --------------------------------------------------------------------------

type fixture struct {
	store  *memStore
	sender *fakeDeliverer
	lock   *joblock.Memory
	clock  *fakeClock
	sched  *Scheduler
}

func newFixture(now time.Time, prefs ...Preference) *fixture {
	f := &fixture{
		store:  newMemStore(prefs...),
		sender: newFakeDeliverer(),
		lock:   joblock.NewMemory(),
		clock:  newFakeClock(now),
	}
	f.sched = f.schedulerWith(f.lock)
	return f
}

func (f *fixture) schedulerWith(lock joblock.Lock) *Scheduler {
	return NewScheduler(Deps{
		Preferences: f.store,
		Tips:        f.store,
		Log:         f.store,
		Sender:      f.sender,
		Lock:        lock,
		Clock:       f.clock,
		Logger:      discardLogger(),
	}, Options{})
}

func pref(timezone string, preferredUTC time.Duration, token string) Preference {
	return Preference{
		UserID:           uuid.New(),
		IsEnabled:        true,
		PreferredTimeUTC: preferredUTC,
		Timezone:         timezone,
		DeviceToken:      token,
	}
}
