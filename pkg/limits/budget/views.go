package budget

import (
	"context"
	"fmt"
	"sort"
	"time"

	"kageforge-hq/forge/pkg/limits/ledger"
)

// Grouping keys accepted by GroupBy.
const (
	GroupProvider = "provider"
	GroupModel    = "model"
	GroupUser     = "user"
	GroupDay      = "day"
)

// ByProvider aggregates ledger records in [from, to) by provider.
func (t *Tracker) ByProvider(ctx context.Context, from, to time.Time) ([]Group, error) {
	return t.GroupBy(ctx, GroupProvider, from, to)
}

// ByModel aggregates ledger records in [from, to) by model.
func (t *Tracker) ByModel(ctx context.Context, from, to time.Time) ([]Group, error) {
	return t.GroupBy(ctx, GroupModel, from, to)
}

// ByUser aggregates ledger records in [from, to) by user id.
func (t *Tracker) ByUser(ctx context.Context, from, to time.Time) ([]Group, error) {
	return t.GroupBy(ctx, GroupUser, from, to)
}

// ByDay aggregates ledger records in [from, to) by calendar day in the
// tracker's time zone. Keys are formatted as 2006-01-02.
func (t *Tracker) ByDay(ctx context.Context, from, to time.Time) ([]Group, error) {
	return t.GroupBy(ctx, GroupDay, from, to)
}

// GroupBy aggregates ledger records in [from, to) by the named key. Groups
// are sorted by key.
func (t *Tracker) GroupBy(ctx context.Context, by string, from, to time.Time) ([]Group, error) {
	var key func(*ledger.Record) string
	switch by {
	case GroupProvider:
		key = func(r *ledger.Record) string { return r.Provider }
	case GroupModel:
		key = func(r *ledger.Record) string { return r.Model }
	case GroupUser:
		key = func(r *ledger.Record) string { return r.UserID }
	case GroupDay:
		key = func(r *ledger.Record) string { return r.Timestamp.In(t.loc).Format(time.DateOnly) }
	default:
		return nil, fmt.Errorf("unknown grouping %q", by)
	}

	recs, err := t.ledger.Query(ctx, ledger.Filter{Since: from, Until: to})
	if err != nil {
		return nil, err
	}
	return aggregate(recs, key), nil
}

// Totals aggregates every ledger record in [from, to) into one group.
func (t *Tracker) Totals(ctx context.Context, from, to time.Time) (Group, error) {
	recs, err := t.ledger.Query(ctx, ledger.Filter{Since: from, Until: to})
	if err != nil {
		return Group{}, err
	}
	groups := aggregate(recs, func(*ledger.Record) string { return "total" })
	if len(groups) == 0 {
		return Group{Key: "total"}, nil
	}
	return groups[0], nil
}

func aggregate(recs []ledger.Record, key func(*ledger.Record) string) []Group {
	byKey := make(map[string]*Group)
	for i := range recs {
		r := &recs[i]
		k := key(r)
		g, ok := byKey[k]
		if !ok {
			g = &Group{Key: k}
			byKey[k] = g
		}

		g.Requests++
		switch r.Status {
		case ledger.StatusSuccess:
			g.Successes++
		case ledger.StatusRejected:
			g.Rejected++
		default:
			g.Failures++
		}
		if r.CacheLayer != "" {
			g.CacheHits++
		}
		g.InputTokens += r.InputTokens
		g.OutputTokens += r.OutputTokens
		g.CachedTokens += r.CachedTokens
		g.ThinkingTokens += r.ThinkingTokens
		g.Cost += r.Cost
	}

	out := make([]Group, 0, len(byKey))
	for _, g := range byKey {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
