// Package gateway provides a uniform interface to the text-completion
// backends that agents run on. It resolves model names to provider families,
// performs the network call with timeout and retry, and normalizes failures
// into typed errors.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"github.com/tmc/langchaingo/llms"
)

const (
	// DefaultTimeout bounds a single completion attempt.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the ceiling on network-level retries after the
	// first attempt.
	DefaultMaxRetries = 3

	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
)

// Config tunes the gateway's call budget.
type Config struct {
	Timeout        time.Duration
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns the baseline call budget.
func DefaultConfig() Config {
	return Config{
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
	}
}

// Request is one completion request against a resolved provider. Context
// entries and the workflow input are encoded deterministically and prepended
// to the prompt.
type Request struct {
	Provider      Provider
	Prompt        string
	Context       []ContextEntry
	WorkflowInput map[string]any
	Temperature   float64
	MaxTokens     int
}

// Gateway performs completion calls. It keeps no per-call state, so a single
// instance serves any number of concurrent invocations.
type Gateway struct {
	config    Config
	logger    *slog.Logger
	breakers  *breakerRegistry
	newClient func(Provider) (llms.Model, error)
}

// New creates a gateway with the given call budget.
func New(logger *slog.Logger, config Config) *Gateway {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	if config.MaxRetries == 0 {
		config.MaxRetries = DefaultMaxRetries
	}

	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaultInitialBackoff
	}

	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaultMaxBackoff
	}

	return &Gateway{
		config:    config,
		logger:    logger.With("module", "gateway"),
		breakers:  newBreakerRegistry(logger),
		newClient: newClient,
	}
}

// Complete issues the completion call for the request. Transient failures
// (network errors, 5xx, 429) are retried with exponential backoff and
// jitter; other 4xx responses fail immediately. Every failure is returned as
// a typed error value.
func (g *Gateway) Complete(ctx context.Context, req Request) (string, error) {
	client, err := g.newClient(req.Provider)
	if err != nil {
		return "", err
	}

	prompt := req.Prompt
	if block := EncodeContext(req.Context, req.WorkflowInput); block != "" {
		prompt = block + "\n" + prompt
	}

	options := []llms.CallOption{}
	if req.Temperature > 0 {
		options = append(options, llms.WithTemperature(req.Temperature))
	}

	if req.MaxTokens > 0 {
		options = append(options, llms.WithMaxTokens(req.MaxTokens))
	}

	breaker := g.breakers.Get(req.Provider.Family)

	var output string

	attempt := 0
	operation := func() error {
		attempt++

		result, callErr := breaker.Execute(func() (any, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
			defer cancel()

			return llms.GenerateFromSinglePrompt(attemptCtx, client, prompt, options...)
		})
		if callErr != nil {
			if errors.Is(callErr, gobreaker.ErrOpenState) || errors.Is(callErr, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(callErr)
			}

			if errors.Is(callErr, context.DeadlineExceeded) {
				return backoff.Permanent(fmt.Errorf("model %s after %v: %w", req.Provider.Model, g.config.Timeout, ErrTimeout))
			}

			g.logger.Warn("completion attempt failed",
				"family", string(req.Provider.Family),
				"model", req.Provider.Model,
				"attempt", attempt,
				"error", callErr)

			if !transient(callErr) {
				return backoff.Permanent(&ProviderHTTPError{
					Family:     req.Provider.Family,
					Model:      req.Provider.Model,
					StatusCode: classify(callErr),
					Err:        callErr,
				})
			}

			return callErr
		}

		text, ok := result.(string)
		if !ok || strings.TrimSpace(text) == "" {
			return backoff.Permanent(fmt.Errorf("model %s: %w", req.Provider.Model, ErrMalformed))
		}

		output = text

		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(g.retryPolicy(), g.config.MaxRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		var httpErr *ProviderHTTPError
		if errors.As(err, &httpErr) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrMalformed) {
			return "", err
		}

		// Transient failure that outlived the retry budget.
		return "", &ProviderHTTPError{
			Family:     req.Provider.Family,
			Model:      req.Provider.Model,
			StatusCode: classify(err),
			Err:        err,
		}
	}

	return output, nil
}

func (g *Gateway) retryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.config.InitialBackoff
	policy.MaxInterval = g.config.MaxBackoff
	policy.MaxElapsedTime = 0

	return policy
}
