package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every provider in a [FallbackGroup] either
// failed or was skipped because its breaker is open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [FallbackGroup]. The embedded breaker config is
// applied per provider; each entry gets its own breaker.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// FallbackGroup chains a primary provider and any number of fallbacks of the
// same type T. Calls go to the first entry whose breaker admits them and that
// returns success; failures cascade down the chain in registration order.
//
// Safe for concurrent use once all fallbacks are registered.
type FallbackGroup[T any] struct {
	names    []string
	values   []T
	breakers []*CircuitBreaker
	cfg      FallbackConfig
}

// NewFallbackGroup builds a group with primary as its only entry. Register
// fallbacks with [FallbackGroup.AddFallback] before serving traffic.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a provider to the end of the chain with its own breaker.
func (fg *FallbackGroup[T]) AddFallback(name string, provider T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.names = append(fg.names, name)
	fg.values = append(fg.values, provider)
	fg.breakers = append(fg.breakers, NewCircuitBreaker(cbCfg))
}

// Primary returns the first provider in the chain. Useful for metadata
// queries that should not participate in failover.
func (fg *FallbackGroup[T]) Primary() T {
	return fg.values[0]
}

// Execute runs fn against each provider in order until one succeeds. Entries
// with an open breaker are skipped. If no provider succeeds the last error is
// wrapped in [ErrAllFailed].
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(p T) (struct{}, error) {
		return struct{}{}, fn(p)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that return a value.
// It is a free function because methods cannot introduce the result type
// parameter R.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i, provider := range fg.values {
		var res R
		err := fg.breakers[i].Execute(func() error {
			var callErr error
			res, callErr = fn(provider)
			return callErr
		})
		if err == nil {
			return res, nil
		}
		lastErr = err

		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("provider skipped, circuit open", "provider", fg.names[i])
			continue
		}
		slog.Warn("provider failed, trying next in chain",
			"provider", fg.names[i], "error", err)
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
