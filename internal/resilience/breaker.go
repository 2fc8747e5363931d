package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Run] while the breaker is open and
// the cooldown has not yet elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls until the cooldown elapses.
	BreakerOpen

	// BreakerProbing lets a single call through after the cooldown; its
	// outcome decides whether the breaker closes or re-opens.
	BreakerProbing
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker].
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// Trip is the number of consecutive failures that opens the breaker.
	// Default: 5.
	Trip int

	// Cooldown is how long the breaker stays open before probing.
	// Default: 30s.
	Cooldown time.Duration

	// Logger receives state-transition messages. Default: slog.Default().
	Logger *slog.Logger
}

// Breaker is a three-state circuit breaker guarding one oracle backend.
// After Trip consecutive failures it rejects calls for Cooldown, then lets a
// single probe through.
type Breaker struct {
	name     string
	trip     int
	cooldown time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
}

// NewBreaker creates a [Breaker] with defaults filled in.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Trip <= 0 {
		cfg.Trip = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Breaker{
		name:     cfg.Name,
		trip:     cfg.Trip,
		cooldown: cfg.Cooldown,
		log:      cfg.Logger,
		state:    BreakerClosed,
	}
}

// Run executes fn if the breaker allows it. While open it returns
// [ErrBreakerOpen] without calling fn; after the cooldown exactly one probe
// call is admitted at a time.
func (b *Breaker) Run(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = BreakerProbing
		b.log.Info("breaker probing after cooldown", "breaker", b.name)
	case BreakerProbing:
		// Another probe is already in flight.
		b.mu.Unlock()
		return ErrBreakerOpen
	}
	probing := b.state == BreakerProbing
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

func (b *Breaker) onFailure(probing bool) {
	if probing {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		b.log.Warn("breaker re-opened, probe failed", "breaker", b.name)
		return
	}
	b.failures++
	if b.failures >= b.trip {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		b.log.Warn("breaker opened",
			"breaker", b.name, "consecutive_failures", b.failures)
	}
}

func (b *Breaker) onSuccess(probing bool) {
	if probing {
		b.log.Info("breaker closed, probe succeeded", "breaker", b.name)
	}
	b.state = BreakerClosed
	b.failures = 0
}

// State reports the breaker's current mode. An open breaker whose cooldown
// has elapsed reports [BreakerProbing]; the actual transition happens on the
// next [Breaker.Run].
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cooldown {
		return BreakerProbing
	}
	return b.state
}

// Reset forces the breaker closed and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
}
