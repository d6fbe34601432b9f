package budget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/events"
	"kageforge-hq/forge/pkg/limits/ledger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type emitted struct {
	kind events.Kind
	sync bool
	e    events.Event
}

type recorder struct {
	mu  sync.Mutex
	got []emitted
}

func (r *recorder) Emit(e events.Event) {
	r.mu.Lock()
	r.got = append(r.got, emitted{kind: e.Kind, e: e})
	r.mu.Unlock()
}

func (r *recorder) EmitSync(e events.Event) {
	r.mu.Lock()
	r.got = append(r.got, emitted{kind: e.Kind, sync: true, e: e})
	r.mu.Unlock()
}

func (r *recorder) count(kind events.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.got {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) find(kind events.Kind) (emitted, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.got {
		if e.kind == kind {
			return e, true
		}
	}
	return emitted{}, false
}

var noon = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	tracker *Tracker
	ledger  *ledger.MemoryLedger
	clock   *fakeClock
	events  *recorder
}

func newFixture(t *testing.T, cfg config.BudgetConfig) *fixture {
	t.Helper()
	f := &fixture{
		ledger: ledger.NewMemoryLedger(),
		clock:  &fakeClock{t: noon},
		events: &recorder{},
	}
	tr, err := NewTracker(cfg, f.ledger, WithClock(f.clock.Now), WithEmitter(f.events))
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	f.tracker = tr
	return f
}

func (f *fixture) status(t *testing.T, scope Scope, userID string) ScopeStatus {
	t.Helper()
	for _, s := range f.tracker.Status() {
		if s.Scope == scope && s.UserID == userID {
			return s
		}
	}
	t.Fatalf("no status for scope %s user %q", scope, userID)
	return ScopeStatus{}
}

func TestNewTracker(t *testing.T) {
	if _, err := NewTracker(config.BudgetConfig{}, nil); err == nil {
		t.Error("NewTracker() without ledger should fail")
	}
	if _, err := NewTracker(config.BudgetConfig{Timezone: "Mars/Olympus_Mons"}, ledger.NewMemoryLedger()); err == nil {
		t.Error("NewTracker() with invalid timezone should fail")
	}
}

func TestTracker_ReserveCommit(t *testing.T) {
	f := newFixture(t, config.BudgetConfig{Daily: 10})
	ctx := context.Background()

	res, err := f.tracker.Reserve(ctx, "alice", 3)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if got := f.status(t, ScopeDaily, "").Reserved; got != 3 {
		t.Errorf("Reserved = %v, want 3", got)
	}

	if err := res.Commit(ctx, &ledger.Record{RequestID: "r1", UserID: "alice", Cost: 2.5}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	st := f.status(t, ScopeDaily, "")
	if st.Consumed != 2.5 || st.Reserved != 0 {
		t.Errorf("Consumed/Reserved = %v/%v, want 2.5/0", st.Consumed, st.Reserved)
	}
	if st.Remaining != 7.5 {
		t.Errorf("Remaining = %v, want 7.5", st.Remaining)
	}

	recs, _ := f.ledger.Query(ctx, ledger.Filter{})
	if len(recs) != 1 {
		t.Fatalf("ledger has %d records, want 1", len(recs))
	}
	if recs[0].Status != ledger.StatusSuccess || !recs[0].Timestamp.Equal(noon) {
		t.Errorf("record = %+v, want success at %v", recs[0], noon)
	}
}

func TestTracker_ConcurrentReservations(t *testing.T) {
	f := newFixture(t, config.BudgetConfig{Daily: 10})
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		mu       sync.Mutex
		admitted int
		rejected int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			<-start

			rec := &ledger.Record{RequestID: string(rune('a' + id)), Cost: 6}
			res, err := f.tracker.Reserve(ctx, "", 6)
			if err != nil {
				if !errors.Is(err, ErrBudgetExceeded) {
					t.Errorf("Reserve() error = %v, want ErrBudgetExceeded", err)
				}
				f.tracker.RecordRejected(ctx, rec)
				mu.Lock()
				rejected++
				mu.Unlock()
				return
			}
			res.Commit(ctx, rec)
			mu.Lock()
			admitted++
			mu.Unlock()
		}(i)
	}
	close(start)
	wg.Wait()

	if admitted != 1 || rejected != 1 {
		t.Fatalf("admitted/rejected = %d/%d, want 1/1", admitted, rejected)
	}

	recs, _ := f.ledger.Query(ctx, ledger.Filter{})
	if len(recs) != 2 {
		t.Fatalf("ledger has %d records, want 2", len(recs))
	}
	statuses := map[ledger.Status]int{}
	for _, r := range recs {
		statuses[r.Status]++
	}
	if statuses[ledger.StatusSuccess] != 1 || statuses[ledger.StatusRejected] != 1 {
		t.Errorf("statuses = %v, want one success and one rejected", statuses)
	}

	if got := f.status(t, ScopeDaily, "").Consumed; got != 6 {
		t.Errorf("Consumed = %v, want 6", got)
	}
}

func TestTracker_RejectionReservesNothing(t *testing.T) {
	f := newFixture(t, config.BudgetConfig{Daily: 10, Monthly: 5})
	ctx := context.Background()

	_, err := f.tracker.Reserve(ctx, "", 6)
	var be *BudgetExceededError
	if !errors.As(err, &be) {
		t.Fatalf("Reserve() error = %v, want *BudgetExceededError", err)
	}
	if be.Scope != ScopeMonthly || be.Limit != 5 || be.Requested != 6 {
		t.Errorf("error = %+v, want monthly limit 5 requested 6", be)
	}
	if got := f.status(t, ScopeDaily, "").Reserved; got != 0 {
		t.Errorf("daily Reserved = %v, want 0", got)
	}
}

func TestTracker_ReservationsCountAgainstLimit(t *testing.T) {
	f := newFixture(t, config.BudgetConfig{Daily: 10})
	ctx := context.Background()

	if _, err := f.tracker.Reserve(ctx, "", 7); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	_, err := f.tracker.Reserve(ctx, "", 4)
	var be *BudgetExceededError
	if !errors.As(err, &be) {
		t.Fatalf("Reserve() error = %v, want *BudgetExceededError", err)
	}
	if be.Reserved != 7 {
		t.Errorf("Reserved = %v, want 7", be.Reserved)
	}
	if _, err := f.tracker.Reserve(ctx, "", 3); err != nil {
		t.Errorf("Reserve(3) error = %v, want it to fit exactly", err)
	}
}

func TestTracker_Release(t *testing.T) {
	f := newFixture(t, config.BudgetConfig{Daily: 10})
	ctx := context.Background()

	res, _ := f.tracker.Reserve(ctx, "", 4)
	rec := &ledger.Record{RequestID: "r1", Cost: 4, Error: "context canceled"}
	if err := res.Release(ctx, rec); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	st := f.status(t, ScopeDaily, "")
	if st.Consumed != 0 || st.Reserved != 0 {
		t.Errorf("Consumed/Reserved = %v/%v, want 0/0", st.Consumed, st.Reserved)
	}
	if rec.Status != ledger.StatusCancelled || rec.Cost != 0 {
		t.Errorf("record status/cost = %s/%v, want cancelled/0", rec.Status, rec.Cost)
	}

	if err := res.Commit(ctx, &ledger.Record{}); !errors.Is(err, ErrReservationClosed) {
		t.Errorf("second settle error = %v, want ErrReservationClosed", err)
	}
}

func TestTracker_Thresholds(t *testing.T) {
	f := newFixture(t, config.BudgetConfig{Daily: 10, AlertThreshold: 0.8})
	ctx := context.Background()

	commit := func(cost float64) {
		t.Helper()
		res, err := f.tracker.Reserve(ctx, "", 0)
		if err != nil {
			t.Fatalf("Reserve() error = %v", err)
		}
		if err := res.Commit(ctx, &ledger.Record{Cost: cost}); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
	}

	commit(7)
	if n := f.events.count(events.KindBudgetWarning); n != 0 {
		t.Errorf("warnings after $7 = %d, want 0", n)
	}

	commit(1)
	commit(0.5)
	if n := f.events.count(events.KindBudgetWarning); n != 1 {
		t.Errorf("warnings after $8.5 = %d, want 1", n)
	}
	w, _ := f.events.find(events.KindBudgetWarning)
	if w.sync {
		t.Error("budget-warning should be emitted asynchronously")
	}
	if w.e.Scope != string(ScopeDaily) || w.e.Limit != 10 || w.e.Consumed != 8 {
		t.Errorf("warning = %+v, want daily limit 10 consumed 8", w.e)
	}

	commit(1.5)
	if n := f.events.count(events.KindBudgetExceeded); n != 1 {
		t.Fatalf("exceeded events = %d, want 1", n)
	}
	x, _ := f.events.find(events.KindBudgetExceeded)
	if !x.sync {
		t.Error("budget-exceeded should be emitted synchronously")
	}
	if n := f.events.count(events.KindBudgetOvershoot); n != 0 {
		t.Errorf("overshoot events = %d, want 0 at exactly the limit", n)
	}

	st := f.status(t, ScopeDaily, "")
	if !st.AlertTriggered || !st.Exceeded {
		t.Errorf("AlertTriggered/Exceeded = %v/%v, want true/true", st.AlertTriggered, st.Exceeded)
	}
}

func TestTracker_Overshoot(t *testing.T) {
	f := newFixture(t, config.BudgetConfig{Daily: 10, AlertThreshold: 0.8})
	ctx := context.Background()

	res, err := f.tracker.Reserve(ctx, "", 1)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if err := res.Commit(ctx, &ledger.Record{RequestID: "big", Cost: 12}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if got := f.tracker.Overshoots(); got != 1 {
		t.Errorf("Overshoots() = %d, want 1", got)
	}
	o, ok := f.events.find(events.KindBudgetOvershoot)
	if !ok {
		t.Fatal("no budget-overshoot event")
	}
	if o.e.RequestID != "big" || o.e.Consumed != 12 {
		t.Errorf("overshoot = %+v, want request big consumed 12", o.e)
	}
	if n := f.events.count(events.KindBudgetExceeded); n != 1 {
		t.Errorf("exceeded events = %d, want 1", n)
	}
	if n := f.events.count(events.KindBudgetWarning); n != 0 {
		t.Errorf("warning events = %d, want 0 when jumping past the limit", n)
	}
	if got := f.status(t, ScopeDaily, "").Remaining; got != 0 {
		t.Errorf("Remaining = %v, want 0", got)
	}
}

func TestTracker_FirstRejectionEmitsExceededOnce(t *testing.T) {
	f := newFixture(t, config.BudgetConfig{Daily: 1})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.tracker.Reserve(ctx, "", 2); err == nil {
			t.Fatal("Reserve() should fail")
		}
	}
	if n := f.events.count(events.KindBudgetExceeded); n != 1 {
		t.Errorf("exceeded events = %d, want 1", n)
	}
}

func TestTracker_RejectionThenLimitReached(t *testing.T) {
	f := newFixture(t, config.BudgetConfig{Daily: 10})
	ctx := context.Background()

	if _, err := f.tracker.Reserve(ctx, "", 50); err == nil {
		t.Fatal("Reserve(50) should fail")
	}
	st := f.status(t, ScopeDaily, "")
	if st.Exceeded || st.Consumed != 0 {
		t.Errorf("after rejection Exceeded = %v, Consumed = %v, want false, 0", st.Exceeded, st.Consumed)
	}

	res, err := f.tracker.Reserve(ctx, "", 5)
	if err != nil {
		t.Fatalf("Reserve(5) error = %v", err)
	}
	if err := res.Commit(ctx, &ledger.Record{RequestID: "r1", Cost: 11}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	var syncExceeded int
	for _, e := range f.events.got {
		if e.kind == events.KindBudgetExceeded && e.sync {
			syncExceeded++
		}
	}
	if syncExceeded != 2 {
		t.Errorf("synchronous exceeded events = %d, want 2 (rejection, then limit reached)", syncExceeded)
	}
	if st := f.status(t, ScopeDaily, ""); !st.Exceeded || st.Consumed != 11 {
		t.Errorf("Exceeded = %v, Consumed = %v, want true, 11", st.Exceeded, st.Consumed)
	}

	if _, err := f.tracker.Reserve(ctx, "", 1); err == nil {
		t.Fatal("Reserve() over the limit should fail")
	}
	if n := f.events.count(events.KindBudgetExceeded); n != 2 {
		t.Errorf("exceeded events = %d, want no more after the limit was reached", n)
	}
}

func TestTracker_UserScope(t *testing.T) {
	f := newFixture(t, config.BudgetConfig{PerUserDaily: 5})
	ctx := context.Background()

	res, err := f.tracker.Reserve(ctx, "alice", 4)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	res.Commit(ctx, &ledger.Record{UserID: "alice", Cost: 4})

	_, err = f.tracker.Reserve(ctx, "alice", 2)
	var be *BudgetExceededError
	if !errors.As(err, &be) || be.Scope != ScopeUser || be.UserID != "alice" {
		t.Fatalf("Reserve() error = %v, want user scope for alice", err)
	}

	if _, err := f.tracker.Reserve(ctx, "bob", 2); err != nil {
		t.Errorf("Reserve() for bob error = %v", err)
	}
	if _, err := f.tracker.Reserve(ctx, "", 100); err != nil {
		t.Errorf("Reserve() without user error = %v, want no user scope", err)
	}
}

func TestTracker_Rollover(t *testing.T) {
	f := newFixture(t, config.BudgetConfig{Daily: 10, Monthly: 100, AlertThreshold: 0.5})
	ctx := context.Background()
	f.clock.Advance(11*time.Hour + 30*time.Minute) // 23:30

	res, _ := f.tracker.Reserve(ctx, "", 8)
	res.Commit(ctx, &ledger.Record{Cost: 8})

	pending, err := f.tracker.Reserve(ctx, "", 2)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	f.clock.Advance(time.Hour) // next day

	daily := f.status(t, ScopeDaily, "")
	if daily.Consumed != 0 || daily.AlertTriggered {
		t.Errorf("daily after rollover = %+v, want reset", daily)
	}
	if daily.Reserved != 2 {
		t.Errorf("daily Reserved = %v, want 2 carried over", daily.Reserved)
	}
	if got := f.status(t, ScopeMonthly, "").Consumed; got != 8 {
		t.Errorf("monthly Consumed = %v, want 8", got)
	}

	pending.Commit(ctx, &ledger.Record{Cost: 2})
	daily = f.status(t, ScopeDaily, "")
	if daily.Consumed != 2 || daily.Reserved != 0 {
		t.Errorf("daily Consumed/Reserved = %v/%v, want 2/0", daily.Consumed, daily.Reserved)
	}
	if !daily.PeriodStart.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("PeriodStart = %v, want 2026-03-15", daily.PeriodStart)
	}
}

func TestTracker_MonthRollover(t *testing.T) {
	f := newFixture(t, config.BudgetConfig{Monthly: 100})
	ctx := context.Background()

	res, _ := f.tracker.Reserve(ctx, "", 1)
	res.Commit(ctx, &ledger.Record{Cost: 40})

	f.clock.Advance(18 * 24 * time.Hour) // April 1st

	st := f.status(t, ScopeMonthly, "")
	if st.Consumed != 0 {
		t.Errorf("monthly Consumed = %v, want 0", st.Consumed)
	}
	if !st.Reset.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Reset = %v, want 2026-05-01", st.Reset)
	}
}

func TestTracker_Rebuild(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ctx := context.Background()
	for _, r := range []ledger.Record{
		{UserID: "alice", Cost: 4, Status: ledger.StatusSuccess, Timestamp: noon.Add(-time.Hour)},
		{UserID: "bob", Cost: 3, Status: ledger.StatusSuccess, Timestamp: noon.Add(-2 * time.Hour)},
		{UserID: "bob", Cost: 2, Status: ledger.StatusSuccess, Timestamp: noon.AddDate(0, 0, -3)},
		{UserID: "carol", Cost: 50, Status: ledger.StatusSuccess, Timestamp: noon.AddDate(0, -1, 0)},
	} {
		r := r
		l.Append(ctx, &r)
	}

	em := &recorder{}
	tr, err := NewTracker(config.BudgetConfig{Daily: 10, Monthly: 100, PerUserDaily: 5, AlertThreshold: 0.8},
		l, WithClock(func() time.Time { return noon }), WithEmitter(em))
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	if err := tr.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	want := map[string]float64{"daily": 7, "monthly": 9, "user:alice": 4, "user:bob": 3}
	got := map[string]float64{}
	var aliceWarned bool
	for _, s := range tr.Status() {
		k := string(s.Scope)
		if s.UserID != "" {
			k += ":" + s.UserID
		}
		got[k] = s.Consumed
		if s.UserID == "alice" {
			aliceWarned = s.AlertTriggered
		}
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s Consumed = %v, want %v", k, got[k], v)
		}
	}
	if _, ok := got["user:carol"]; ok {
		t.Error("carol has no spend today and should not be tracked")
	}
	if !aliceWarned {
		t.Error("alice at 80% should be flagged as warned")
	}
	if len(em.got) != 0 {
		t.Errorf("Rebuild emitted %d events, want 0", len(em.got))
	}
}

func TestTracker_Record(t *testing.T) {
	f := newFixture(t, config.BudgetConfig{Daily: 10})
	ctx := context.Background()

	rec := &ledger.Record{RequestID: "hit", Provider: "openai", CacheLayer: "memory"}
	if err := f.tracker.Record(ctx, rec); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if rec.Status != ledger.StatusSuccess {
		t.Errorf("Status = %s, want success", rec.Status)
	}
	if got := f.status(t, ScopeDaily, "").Consumed; got != 0 {
		t.Errorf("Consumed = %v, want 0", got)
	}
}

func TestBudgetExceededError(t *testing.T) {
	err := error(&BudgetExceededError{Scope: ScopeUser, UserID: "alice", Limit: 5, Consumed: 4, Requested: 2})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Error("errors.Is(err, ErrBudgetExceeded) = false")
	}
	want := "user:alice budget exceeded: limit $5.0000, consumed $4.0000, reserved $0.0000, requested $2.0000"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
