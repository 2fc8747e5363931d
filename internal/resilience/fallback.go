package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllBackendsFailed is returned when every backend in a [FallbackGroup]
// failed or was rejected by its breaker.
var ErrAllBackendsFailed = errors.New("resilience: all backends failed")

// FallbackGroup orders a primary and zero or more fallback instances of one
// backend type, each guarded by its own [Breaker]. A failing primary is
// bypassed in favour of the next healthy backend in registration order.
type FallbackGroup[T any] struct {
	log     *slog.Logger
	breaker BreakerConfig
	entries []groupEntry[T]
}

type groupEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// NewFallbackGroup creates a group with primary as the first entry. The
// breaker config (minus Name) is applied per entry.
func NewFallbackGroup[T any](primaryName string, primary T, breaker BreakerConfig) *FallbackGroup[T] {
	if breaker.Logger == nil {
		breaker.Logger = slog.Default()
	}
	fg := &FallbackGroup[T]{log: breaker.Logger, breaker: breaker}
	fg.Add(primaryName, primary)
	return fg
}

// Add appends a fallback backend. Backends are tried in the order added.
func (fg *FallbackGroup[T]) Add(name string, value T) {
	cfg := fg.breaker
	cfg.Name = name
	fg.entries = append(fg.entries, groupEntry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg),
	})
}

// Names returns the backend names in trial order.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// RunValue tries fn against each backend in order until one succeeds,
// skipping entries whose breaker is open. It is a package-level function
// because Go does not support method-level type parameters.
func RunValue[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Run(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			fg.log.Debug("skipping backend, breaker open", "backend", entry.name)
		} else {
			fg.log.Warn("backend failed, trying next", "backend", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}
