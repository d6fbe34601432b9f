package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"kageforge-hq/forge/pkg/admission"
	"kageforge-hq/forge/pkg/breaker"
	"kageforge-hq/forge/pkg/limits/budget"
	"kageforge-hq/forge/pkg/providers"
	"kageforge-hq/forge/pkg/routing"
)

// Error types.
const (
	ErrorTypeInvalidRequest     = "invalid_request_error"
	ErrorTypeBudgetExceeded     = "budget_exceeded"
	ErrorTypeRateLimitExceeded  = "rate_limit_exceeded"
	ErrorTypeBadGateway         = "bad_gateway"
	ErrorTypeServiceUnavailable = "service_unavailable"
	ErrorTypeGatewayTimeout     = "gateway_timeout"
	ErrorTypeNotFound           = "not_found"
	ErrorTypeServerError        = "server_error"
)

// Error codes.
const (
	CodeInvalidJSON     = "invalid_json"
	CodeInvalidValue    = "invalid_value"
	CodeRequestTooLarge = "request_too_large"
	CodeModelNotFound   = "model_not_found"
	CodeBudgetExceeded  = "budget_exceeded"
	CodeBackpressure    = "backpressure"
	CodeRateLimited     = "rate_limited"
	CodeCircuitOpen     = "circuit_open"
	CodeProviderError   = "provider_error"
	CodeProviderInvalid = "provider_rejected_request"
	CodeCancelled       = "cancelled"
	CodeTimeout         = "timeout"
	CodeCacheDisabled   = "cache_disabled"
	CodeInternalError   = "internal_error"
)

// StatusClientClosedRequest is reported when the caller went away.
const StatusClientClosedRequest = 499

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure. Attempts and Breakers enumerate the
// failover path for provider errors.
type ErrorDetail struct {
	Message  string             `json:"message"`
	Type     string             `json:"type"`
	Param    string             `json:"param,omitempty"`
	Code     string             `json:"code,omitempty"`
	Fields   map[string]string  `json:"fields,omitempty"`
	Attempts []routing.Attempt  `json:"attempts,omitempty"`
	Breakers []breaker.Snapshot `json:"breakers,omitempty"`
	Budget   *BudgetDetail      `json:"budget,omitempty"`
}

// BudgetDetail describes the scope that rejected a request.
type BudgetDetail struct {
	Scope     string  `json:"scope"`
	UserID    string  `json:"user_id,omitempty"`
	Limit     float64 `json:"limit"`
	Consumed  float64 `json:"consumed"`
	Reserved  float64 `json:"reserved"`
	Requested float64 `json:"requested"`
}

// mapError converts a gateway error into an HTTP status and error body.
func mapError(err error) (int, ErrorDetail) {
	detail := ErrorDetail{Message: err.Error()}

	var validation *ValidationError
	if errors.As(err, &validation) {
		detail.Type = ErrorTypeInvalidRequest
		detail.Code = CodeInvalidValue
		detail.Fields = validation.Fields
		return http.StatusBadRequest, detail
	}

	var be *budget.BudgetExceededError
	if errors.As(err, &be) {
		detail.Type = ErrorTypeBudgetExceeded
		detail.Code = CodeBudgetExceeded
		detail.Budget = &BudgetDetail{
			Scope:     string(be.Scope),
			UserID:    be.UserID,
			Limit:     be.Limit,
			Consumed:  be.Consumed,
			Reserved:  be.Reserved,
			Requested: be.Requested,
		}
		return http.StatusPaymentRequired, detail
	}

	var noCandidates *routing.NoCandidatesError
	if errors.As(err, &noCandidates) {
		detail.Type = ErrorTypeInvalidRequest
		detail.Code = CodeModelNotFound
		detail.Param = "model"
		return http.StatusBadRequest, detail
	}

	var circuit *routing.CircuitOpenError
	if errors.As(err, &circuit) {
		detail.Type = ErrorTypeServiceUnavailable
		detail.Code = CodeCircuitOpen
		detail.Breakers = circuit.Breakers
		return http.StatusServiceUnavailable, detail
	}

	var failed *routing.AllProvidersFailedError
	if errors.As(err, &failed) {
		detail.Attempts = failed.Attempts
		detail.Breakers = failed.Breakers
		if onlyBackpressure(failed.Attempts) {
			detail.Type = ErrorTypeRateLimitExceeded
			detail.Code = CodeBackpressure
			return http.StatusTooManyRequests, detail
		}
		detail.Type = ErrorTypeBadGateway
		detail.Code = CodeProviderError
		return http.StatusBadGateway, detail
	}

	var aborted *routing.AbortedError
	if errors.As(err, &aborted) {
		detail.Attempts = aborted.Attempts
	}

	switch {
	case errors.Is(err, context.Canceled):
		detail.Type = ErrorTypeInvalidRequest
		detail.Code = CodeCancelled
		return StatusClientClosedRequest, detail
	case errors.Is(err, context.DeadlineExceeded):
		detail.Type = ErrorTypeGatewayTimeout
		detail.Code = CodeTimeout
		return http.StatusGatewayTimeout, detail
	case errors.Is(err, admission.ErrBackpressure):
		detail.Type = ErrorTypeRateLimitExceeded
		detail.Code = CodeBackpressure
		return http.StatusTooManyRequests, detail
	}

	var pe *providers.Error
	if errors.As(err, &pe) {
		switch pe.Kind {
		case providers.KindInvalidRequest:
			detail.Type = ErrorTypeInvalidRequest
			detail.Code = CodeProviderInvalid
			return http.StatusBadRequest, detail
		case providers.KindRateLimited:
			detail.Type = ErrorTypeRateLimitExceeded
			detail.Code = CodeRateLimited
			return http.StatusTooManyRequests, detail
		default:
			detail.Type = ErrorTypeBadGateway
			detail.Code = CodeProviderError
			return http.StatusBadGateway, detail
		}
	}

	detail.Type = ErrorTypeServerError
	detail.Code = CodeInternalError
	return http.StatusInternalServerError, detail
}

// onlyBackpressure reports whether every attempt was shed by admission
// control or rate limited by the provider.
func onlyBackpressure(attempts []routing.Attempt) bool {
	if len(attempts) == 0 {
		return false
	}
	for _, a := range attempts {
		if a.Kind != routing.AttemptBackpressure && a.Kind != string(providers.KindRateLimited) {
			return false
		}
	}
	return true
}

func writeError(w http.ResponseWriter, status int, detail ErrorDetail) {
	writeJSON(w, status, ErrorResponse{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
