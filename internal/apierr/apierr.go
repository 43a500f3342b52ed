// Package apierr maps internal sentinel errors to the wire error taxonomy
// of §6/§7: {error: <code>, message: <human string>} with an HTTP status
// in {400, 401, 403, 429, 500}.
package apierr

import (
	"errors"
	"net/http"
)

// Code is a wire error code from §6's Error response shape.
type Code string

const (
	CodeInvalidRequest      Code = "invalid_request"
	CodeUnauthorized        Code = "unauthorized"
	CodeTierForbidden       Code = "tier_forbidden"
	CodeDailyExceeded       Code = "daily_exceeded"
	CodeMonthlyExceeded     Code = "monthly_exceeded"
	CodeTokensExceeded      Code = "tokens_exceeded"
	CodeLLMInvalidOutput    Code = "llm_invalid_output"
	CodeLLMTimeout          Code = "llm_timeout"
	CodeRegistryUnavailable Code = "registry_unavailable"
	CodeInternal            Code = "internal"
)

// no_viable_selection and cancelled (§7) are internal taxonomy labels, not
// wire codes — §6 fixes the wire code set and the {400,401,403,429,500}
// status set, so both map onto the nearest wire code below rather than
// minting new ones.

// Sentinel errors that production code returns; HTTP handlers translate
// these (via Map) into the wire shape without domain packages importing
// net/http themselves.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTierForbidden       = errors.New("tier forbidden")
	ErrDailyExceeded       = errors.New("daily request limit exceeded")
	ErrMonthlyExceeded     = errors.New("monthly request limit exceeded")
	ErrTokensExceeded      = errors.New("ai token limit exceeded")
	ErrLLMInvalidOutput    = errors.New("llm returned invalid output")
	ErrLLMTimeout          = errors.New("llm call timed out")
	ErrRegistryUnavailable = errors.New("mod registry unavailable")
	ErrNoViableSelection   = errors.New("no viable selection")
	ErrCancelled           = errors.New("request cancelled")
)

// APIError is a domain error tagged with its wire code and HTTP status.
// Pipeline code wraps a sentinel with fmt.Errorf("%w: ...") as usual;
// Map() unwraps to find the sentinel and produces the wire response.
type APIError struct {
	Code    Code
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// sentinelTable maps each sentinel to its wire code and HTTP status.
var sentinelTable = []struct {
	err    error
	code   Code
	status int
}{
	{ErrInvalidRequest, CodeInvalidRequest, http.StatusBadRequest},
	{ErrUnauthorized, CodeUnauthorized, http.StatusUnauthorized},
	{ErrTierForbidden, CodeTierForbidden, http.StatusForbidden},
	{ErrDailyExceeded, CodeDailyExceeded, http.StatusTooManyRequests},
	{ErrMonthlyExceeded, CodeMonthlyExceeded, http.StatusTooManyRequests},
	{ErrTokensExceeded, CodeTokensExceeded, http.StatusTooManyRequests},
	{ErrLLMInvalidOutput, CodeLLMInvalidOutput, http.StatusInternalServerError},
	{ErrLLMTimeout, CodeLLMTimeout, http.StatusInternalServerError},
	{ErrRegistryUnavailable, CodeRegistryUnavailable, http.StatusInternalServerError},
	{ErrNoViableSelection, CodeInvalidRequest, http.StatusBadRequest},
	{ErrCancelled, CodeInternal, http.StatusInternalServerError},
}

// Map translates any error into an APIError. Unrecognized errors map to
// CodeInternal/500, never leaking internal detail into Message.
func Map(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, entry := range sentinelTable {
		if errors.Is(err, entry.err) {
			return &APIError{Code: entry.code, Status: entry.status, Message: err.Error()}
		}
	}
	return &APIError{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "internal error"}
}
