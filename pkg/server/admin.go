package server

import (
	"net/http"
	"slices"
	"time"

	"kageforge-hq/forge/pkg/limits/budget"
	"kageforge-hq/forge/pkg/routing"
)

// DefaultUsageWindow is the usage report range when from is omitted.
const DefaultUsageWindow = 30 * 24 * time.Hour

var groupings = []string{budget.GroupProvider, budget.GroupModel, budget.GroupUser, budget.GroupDay}

// UsageResponse is the body of GET /v1/usage.
type UsageResponse struct {
	GroupBy string         `json:"group_by"`
	From    time.Time      `json:"from"`
	To      time.Time      `json:"to"`
	Groups  []budget.Group `json:"groups"`
	Totals  budget.Group   `json:"totals"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	tracker := s.deps.Gateway.Budget()
	q := r.URL.Query()

	groupBy := q.Get("group_by")
	if groupBy == "" {
		groupBy = budget.GroupProvider
	}
	if !slices.Contains(groupings, groupBy) {
		writeError(w, http.StatusBadRequest, ErrorDetail{
			Message: "group_by must be one of: provider, model, user, day",
			Type:    ErrorTypeInvalidRequest,
			Param:   "group_by",
			Code:    CodeInvalidValue,
		})
		return
	}

	now := time.Now()
	to, err := parseTime(q.Get("to"), now, tracker.Location(), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, invalidParam("to", err))
		return
	}
	from, err := parseTime(q.Get("from"), to.Add(-DefaultUsageWindow), tracker.Location(), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, invalidParam("from", err))
		return
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, ErrorDetail{
			Message: "from must be before to",
			Type:    ErrorTypeInvalidRequest,
			Param:   "from",
			Code:    CodeInvalidValue,
		})
		return
	}

	groups, err := tracker.GroupBy(r.Context(), groupBy, from, to)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	totals, err := tracker.Totals(r.Context(), from, to)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	totals.Key = "total"
	if groups == nil {
		groups = []budget.Group{}
	}

	writeJSON(w, http.StatusOK, UsageResponse{
		GroupBy: groupBy,
		From:    from,
		To:      to,
		Groups:  groups,
		Totals:  totals,
	})
}

// parseTime accepts RFC 3339 timestamps or dates. A date used as the upper
// bound includes the whole day.
func parseTime(v string, def time.Time, loc *time.Location, upper bool) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, loc)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

func invalidParam(name string, err error) ErrorDetail {
	return ErrorDetail{
		Message: name + " must be an RFC 3339 timestamp or a YYYY-MM-DD date: " + err.Error(),
		Type:    ErrorTypeInvalidRequest,
		Param:   name,
		Code:    CodeInvalidValue,
	}
}

// BudgetResponse is the body of GET /v1/budget.
type BudgetResponse struct {
	Timezone   string               `json:"timezone"`
	Scopes     []budget.ScopeStatus `json:"scopes"`
	Overshoots int64                `json:"overshoots"`
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	tracker := s.deps.Gateway.Budget()
	scopes := tracker.Status()
	if scopes == nil {
		scopes = []budget.ScopeStatus{}
	}
	writeJSON(w, http.StatusOK, BudgetResponse{
		Timezone:   tracker.Location().String(),
		Scopes:     scopes,
		Overshoots: tracker.Overshoots(),
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	engine := s.deps.Gateway.Cache()
	if engine == nil {
		writeError(w, http.StatusNotFound, cacheDisabled())
		return
	}
	writeJSON(w, http.StatusOK, engine.Stats(r.Context()))
}

func (s *Server) handleCachePurge(w http.ResponseWriter, r *http.Request) {
	engine := s.deps.Gateway.Cache()
	if engine == nil {
		writeError(w, http.StatusNotFound, cacheDisabled())
		return
	}
	if err := engine.Purge(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "cache purge failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrorDetail{
			Message: "cache purge failed: " + err.Error(),
			Type:    ErrorTypeServerError,
			Code:    CodeInternalError,
		})
		return
	}
	s.logger.InfoContext(r.Context(), "cache purged")
	w.WriteHeader(http.StatusNoContent)
}

func cacheDisabled() ErrorDetail {
	return ErrorDetail{
		Message: "response cache is disabled",
		Type:    ErrorTypeNotFound,
		Code:    CodeCacheDisabled,
	}
}

// ProvidersResponse is the body of GET /v1/providers.
type ProvidersResponse struct {
	Strategy  string                   `json:"strategy"`
	Providers []routing.ProviderStatus `json:"providers"`
	Stats     *routing.RoutingStats    `json:"stats"`
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	router := s.deps.Gateway.Router()
	writeJSON(w, http.StatusOK, ProvidersResponse{
		Strategy:  router.Strategy(),
		Providers: router.Status(),
		Stats:     router.Stats(),
	})
}
