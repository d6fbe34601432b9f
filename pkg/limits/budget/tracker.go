package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/events"
	"kageforge-hq/forge/pkg/limits/ledger"
)

// counter holds one scope's state for the current period.
type counter struct {
	consumed float64
	reserved float64
	warned   bool

	// exceeded is set once consumed reaches the limit. rejected is set by
	// the first rejection of the period, which may happen well below it.
	exceeded bool
	rejected bool
}

// Tracker enforces budget limits and writes the usage ledger.
type Tracker struct {
	cfg       config.BudgetConfig
	loc       *time.Location
	ledger    ledger.Ledger
	emitter   events.Emitter
	logger    *slog.Logger
	now       func() time.Time
	overshoot atomic.Int64

	mu         sync.Mutex
	dayStart   time.Time
	monthStart time.Time
	daily      counter
	monthly    counter
	users      map[string]*counter
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithEmitter sets the emitter for budget events.
func WithEmitter(em events.Emitter) Option {
	return func(t *Tracker) { t.emitter = em }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker writing to l. Zero limits disable their
// scope.
func NewTracker(cfg config.BudgetConfig, l ledger.Ledger, opts ...Option) (*Tracker, error) {
	if l == nil {
		return nil, fmt.Errorf("budget tracker requires a ledger")
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid budget timezone %q: %w", cfg.Timezone, err)
		}
	}

	t := &Tracker{
		cfg:     cfg,
		loc:     loc,
		ledger:  l,
		emitter: events.Nop{},
		logger:  slog.Default(),
		now:     time.Now,
		users:   make(map[string]*counter),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "budget")

	t.rollover(t.now())
	return t, nil
}

// Reservation holds an estimated cost against every applicable scope until
// it is committed or released.
type Reservation struct {
	tracker *Tracker
	userID  string
	amount  float64
	settled bool
}

// Amount returns the reserved estimate.
func (r *Reservation) Amount() float64 { return r.amount }

// Reserve checks that estimate fits every applicable scope and reserves it.
// Nothing is reserved when any scope would be exceeded.
func (t *Tracker) Reserve(ctx context.Context, userID string, estimate float64) (*Reservation, error) {
	if estimate < 0 {
		estimate = 0
	}

	var pending []events.Event

	t.mu.Lock()
	t.rollover(t.now())

	for _, s := range t.scopes(userID, true) {
		c := s.counter
		if c.consumed+c.reserved+estimate <= s.limit {
			continue
		}

		err := &BudgetExceededError{
			Scope:     s.scope,
			UserID:    s.userID,
			Limit:     s.limit,
			Consumed:  c.consumed,
			Reserved:  c.reserved,
			Requested: estimate,
		}
		if !c.rejected && !c.exceeded {
			c.rejected = true
			pending = append(pending, t.event(events.KindBudgetExceeded, s))
		}
		t.mu.Unlock()

		t.logger.Warn("request rejected by budget",
			"scope", err.Scope,
			"user_id", userID,
			"limit", err.Limit,
			"consumed", err.Consumed,
			"reserved", err.Reserved,
			"requested", estimate,
		)
		t.publish(pending)
		return nil, err
	}

	for _, s := range t.scopes(userID, true) {
		s.counter.reserved += estimate
	}
	t.mu.Unlock()

	return &Reservation{tracker: t, userID: userID, amount: estimate}, nil
}

// Commit replaces the reservation with rec.Cost and appends rec to the
// ledger. Status defaults to success.
func (r *Reservation) Commit(ctx context.Context, rec *ledger.Record) error {
	if rec.Status == "" {
		rec.Status = ledger.StatusSuccess
	}
	return r.settle(ctx, rec, true)
}

// Release drops the reservation without consuming budget and appends rec.
// It is used for cancelled and failed requests. Status defaults to
// cancelled.
func (r *Reservation) Release(ctx context.Context, rec *ledger.Record) error {
	if rec != nil && rec.Status == "" {
		rec.Status = ledger.StatusCancelled
	}
	return r.settle(ctx, rec, false)
}

func (r *Reservation) settle(ctx context.Context, rec *ledger.Record, consume bool) error {
	t := r.tracker

	t.mu.Lock()
	if r.settled {
		t.mu.Unlock()
		return ErrReservationClosed
	}
	r.settled = true

	t.rollover(t.now())
	for _, s := range t.scopes(r.userID, false) {
		s.counter.reserved -= r.amount
		if s.counter.reserved < 0 {
			s.counter.reserved = 0
		}
	}

	var pending []events.Event
	if consume && rec != nil {
		pending = t.consume(rec)
	} else if rec != nil {
		rec.Cost = 0
	}
	t.mu.Unlock()

	t.publish(pending)

	if rec == nil {
		return nil
	}
	return t.append(ctx, rec)
}

// Record appends rec without a reservation, consuming rec.Cost. It is used
// for records attributed to cache hits.
func (t *Tracker) Record(ctx context.Context, rec *ledger.Record) error {
	if rec.Status == "" {
		rec.Status = ledger.StatusSuccess
	}

	t.mu.Lock()
	t.rollover(t.now())
	pending := t.consume(rec)
	t.mu.Unlock()

	t.publish(pending)
	return t.append(ctx, rec)
}

// RecordRejected appends a zero-cost rejected record.
func (t *Tracker) RecordRejected(ctx context.Context, rec *ledger.Record) error {
	rec.Status = ledger.StatusRejected
	rec.Cost = 0
	return t.append(ctx, rec)
}

// consume adds rec.Cost to every applicable scope and returns the events to
// publish. Callers hold t.mu.
func (t *Tracker) consume(rec *ledger.Record) []events.Event {
	if rec.Cost <= 0 {
		return nil
	}

	var pending []events.Event
	for _, s := range t.scopes(rec.UserID, true) {
		c := s.counter
		c.consumed += rec.Cost

		if c.consumed > s.limit {
			t.overshoot.Add(1)
			t.logger.Warn("budget overshoot",
				"scope", s.scope,
				"user_id", s.userID,
				"request_id", rec.RequestID,
				"limit", s.limit,
				"consumed", c.consumed,
				"overshoot", c.consumed-s.limit,
				"cost", rec.Cost,
			)
			e := t.event(events.KindBudgetOvershoot, s)
			e.RequestID = rec.RequestID
			e.Cost = rec.Cost
			pending = append(pending, e)
		}

		switch {
		case c.consumed >= s.limit && !c.exceeded:
			c.exceeded = true
			t.logger.Error("budget limit reached",
				"scope", s.scope,
				"user_id", s.userID,
				"limit", s.limit,
				"consumed", c.consumed,
			)
			pending = append(pending, t.event(events.KindBudgetExceeded, s))
		case c.consumed < s.limit && t.cfg.AlertThreshold > 0 &&
			c.consumed >= t.cfg.AlertThreshold*s.limit && !c.warned:
			c.warned = true
			t.logger.Warn("budget alert threshold crossed",
				"scope", s.scope,
				"user_id", s.userID,
				"limit", s.limit,
				"consumed", c.consumed,
				"threshold", t.cfg.AlertThreshold,
			)
			pending = append(pending, t.event(events.KindBudgetWarning, s))
		}
	}
	return pending
}

func (t *Tracker) append(ctx context.Context, rec *ledger.Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = t.now()
	}
	if err := t.ledger.Append(ctx, rec); err != nil {
		t.logger.Error("failed to append usage record",
			"request_id", rec.RequestID,
			"error", err,
		)
		return err
	}
	return nil
}

// publish delivers exceeded events inline and everything else through the
// async queue. Callers must not hold t.mu.
func (t *Tracker) publish(pending []events.Event) {
	for _, e := range pending {
		if e.Kind == events.KindBudgetExceeded {
			t.emitter.EmitSync(e)
		} else {
			t.emitter.Emit(e)
		}
	}
}

func (t *Tracker) event(kind events.Kind, s scopeRef) events.Event {
	return events.Event{
		Kind:     kind,
		Scope:    string(s.scope),
		UserID:   s.userID,
		Limit:    s.limit,
		Consumed: s.counter.consumed,
	}
}

// scopeRef pairs a scope with its counter and limit.
type scopeRef struct {
	scope   Scope
	userID  string
	limit   float64
	counter *counter
}

// scopes returns the enabled scopes for userID. create controls whether a
// missing user counter is allocated. Callers hold t.mu.
func (t *Tracker) scopes(userID string, create bool) []scopeRef {
	out := make([]scopeRef, 0, 3)
	if t.cfg.Daily > 0 {
		out = append(out, scopeRef{scope: ScopeDaily, limit: t.cfg.Daily, counter: &t.daily})
	}
	if t.cfg.Monthly > 0 {
		out = append(out, scopeRef{scope: ScopeMonthly, limit: t.cfg.Monthly, counter: &t.monthly})
	}
	if t.cfg.PerUserDaily > 0 && userID != "" {
		c, ok := t.users[userID]
		if !ok && create {
			c = &counter{}
			t.users[userID] = c
		}
		if c != nil {
			out = append(out, scopeRef{scope: ScopeUser, userID: userID, limit: t.cfg.PerUserDaily, counter: c})
		}
	}
	return out
}

// rollover resets consumed counters when now is in a new day or month.
// Reservations carry over. Callers hold t.mu.
func (t *Tracker) rollover(now time.Time) {
	day, month := t.periods(now)

	if !day.Equal(t.dayStart) {
		if !t.dayStart.IsZero() {
			t.logger.Info("daily budget period rolled over", "period_start", day)
		}
		t.dayStart = day
		t.daily = counter{reserved: t.daily.reserved}
		for id, c := range t.users {
			if c.reserved == 0 {
				delete(t.users, id)
				continue
			}
			*c = counter{reserved: c.reserved}
		}
	}

	if !month.Equal(t.monthStart) {
		if !t.monthStart.IsZero() {
			t.logger.Info("monthly budget period rolled over", "period_start", month)
		}
		t.monthStart = month
		t.monthly = counter{reserved: t.monthly.reserved}
	}
}

// periods returns the start of the day and month containing now.
func (t *Tracker) periods(now time.Time) (day, month time.Time) {
	n := now.In(t.loc)
	day = time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, t.loc)
	month = time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, t.loc)
	return day, month
}

// Rebuild restores the current periods' consumed totals from the ledger.
// Alert flags are set for thresholds already crossed, without emitting.
func (t *Tracker) Rebuild(ctx context.Context) error {
	now := t.now()
	day, month := t.periods(now)
	dayEnd := day.AddDate(0, 0, 1)
	monthEnd := month.AddDate(0, 1, 0)

	daily, err := t.ledger.Sum(ctx, day, dayEnd, "")
	if err != nil {
		return fmt.Errorf("failed to rebuild daily budget: %w", err)
	}
	monthly, err := t.ledger.Sum(ctx, month, monthEnd, "")
	if err != nil {
		return fmt.Errorf("failed to rebuild monthly budget: %w", err)
	}

	perUser := make(map[string]float64)
	if t.cfg.PerUserDaily > 0 {
		recs, err := t.ledger.Query(ctx, ledger.Filter{Since: day, Until: dayEnd})
		if err != nil {
			return fmt.Errorf("failed to rebuild user budgets: %w", err)
		}
		for _, r := range recs {
			if r.UserID != "" && r.Cost > 0 {
				perUser[r.UserID] += r.Cost
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover(now)
	t.restore(&t.daily, daily, t.cfg.Daily)
	t.restore(&t.monthly, monthly, t.cfg.Monthly)
	for id, spent := range perUser {
		c, ok := t.users[id]
		if !ok {
			c = &counter{}
			t.users[id] = c
		}
		t.restore(c, spent, t.cfg.PerUserDaily)
	}

	t.logger.Info("budget rebuilt from ledger",
		"daily", daily,
		"monthly", monthly,
		"users", len(perUser),
	)
	return nil
}

func (t *Tracker) restore(c *counter, consumed, limit float64) {
	c.consumed = consumed
	if limit <= 0 {
		return
	}
	c.exceeded = consumed >= limit
	c.warned = t.cfg.AlertThreshold > 0 && consumed >= t.cfg.AlertThreshold*limit
}

// Status returns the enabled scopes: daily, monthly, then users in id order.
func (t *Tracker) Status() []ScopeStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover(t.now())

	var out []ScopeStatus
	if t.cfg.Daily > 0 {
		out = append(out, t.status(ScopeDaily, "", t.cfg.Daily, &t.daily, t.dayStart, t.dayStart.AddDate(0, 0, 1)))
	}
	if t.cfg.Monthly > 0 {
		out = append(out, t.status(ScopeMonthly, "", t.cfg.Monthly, &t.monthly, t.monthStart, t.monthStart.AddDate(0, 1, 0)))
	}
	if t.cfg.PerUserDaily > 0 {
		ids := make([]string, 0, len(t.users))
		for id := range t.users {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			out = append(out, t.status(ScopeUser, id, t.cfg.PerUserDaily, t.users[id], t.dayStart, t.dayStart.AddDate(0, 0, 1)))
		}
	}
	return out
}

func (t *Tracker) status(scope Scope, userID string, limit float64, c *counter, start, reset time.Time) ScopeStatus {
	return ScopeStatus{
		Scope:          scope,
		UserID:         userID,
		Limit:          limit,
		Consumed:       c.consumed,
		Reserved:       c.reserved,
		Remaining:      max(0, limit-c.consumed-c.reserved),
		Percentage:     c.consumed / limit,
		PeriodStart:    start,
		Reset:          reset,
		AlertTriggered: c.warned,
		Exceeded:       c.exceeded,
	}
}

// Overshoots returns how many commits ended above a limit.
func (t *Tracker) Overshoots() int64 {
	return t.overshoot.Load()
}

// Location returns the time zone used for period boundaries.
func (t *Tracker) Location() *time.Location {
	return t.loc
}

// Ledger returns the underlying usage ledger.
func (t *Tracker) Ledger() ledger.Ledger {
	return t.ledger
}
