package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Standard gateway error types. Every failure crossing the gateway boundary
// is one of these, as a returned value.
var (
	// ErrNoCredential indicates neither the caller nor the environment
	// supplies an API credential for the resolved provider family.
	ErrNoCredential = errors.New("no credential available for provider")

	// ErrUnknownModel indicates a model name matching no known provider family.
	ErrUnknownModel = errors.New("unknown model")

	// ErrTimeout indicates the provider call exceeded its bounded timeout.
	ErrTimeout = errors.New("provider call timed out")

	// ErrMalformed indicates the provider returned a response the gateway
	// could not interpret.
	ErrMalformed = errors.New("malformed provider response")
)

// ProviderHTTPError is a non-2xx provider response, surfaced after the
// gateway has exhausted its retries. StatusCode is zero when the failure was
// at the network level rather than an HTTP response.
type ProviderHTTPError struct {
	Family     Family
	Model      string
	StatusCode int
	Err        error
}

func (e *ProviderHTTPError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s returned status %d for model %s: %v", e.Family, e.StatusCode, e.Model, e.Err)
	}

	return fmt.Sprintf("provider %s call failed for model %s: %v", e.Family, e.Model, e.Err)
}

func (e *ProviderHTTPError) Unwrap() error {
	return e.Err
}

// IsNoCredential checks whether an error indicates a missing credential.
func IsNoCredential(err error) bool {
	return errors.Is(err, ErrNoCredential)
}

// IsUnknownModel checks whether an error indicates an unroutable model name.
func IsUnknownModel(err error) bool {
	return errors.Is(err, ErrUnknownModel)
}

// IsTimeout checks whether an error indicates a provider timeout, so callers
// can tell slow-provider from broken-provider.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// classify extracts an HTTP status code from a provider error, if one is
// recognizable. Provider SDKs fold status codes into error strings, so this
// is pattern matching by necessity.
func classify(err error) int {
	if err == nil {
		return 0
	}

	msg := strings.ToLower(err.Error())

	for _, prefix := range []string{"status code: ", "status code ", "status: ", "http "} {
		if idx := strings.Index(msg, prefix); idx >= 0 {
			digits := msg[idx+len(prefix):]
			if len(digits) >= 3 {
				if code, convErr := strconv.Atoi(digits[:3]); convErr == nil && code >= 100 && code < 600 {
					return code
				}
			}
		}
	}

	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"), strings.Contains(msg, "429"):
		return http.StatusTooManyRequests
	case strings.Contains(msg, "overloaded"), strings.Contains(msg, "service unavailable"):
		return http.StatusServiceUnavailable
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"), strings.Contains(msg, "authentication"):
		return http.StatusUnauthorized
	}

	return 0
}

// transient reports whether a failed attempt is worth retrying: network
// errors, 5xx responses, and 429s. Other 4xx responses and timeouts of the
// overall call budget are permanent.
func transient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	code := classify(err)
	switch {
	case code == 0:
		// No recognizable status: assume a network-level failure.
		return true
	case code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
