package dispatch

import (
	"context"
	"loggingturtle/internal/components/telemetry"
	"loggingturtle/internal/stage"
	"loggingturtle/internal/table"
	"time"

	"github.com/sony/gobreaker"
)

const report_breaker_state = "breaker.state"

type BreakerOptions struct {
	// ConsecutiveFailures opens the breaker, 0 means 3.
	ConsecutiveFailures uint32
	// Cooldown is how long the breaker stays open before letting a probe through, 0 means 1 hour.
	Cooldown time.Duration
}

type breakerFetcher struct {
	inner Fetcher
	cb    *gobreaker.CircuitBreaker
}

// WithBreaker wraps a Fetcher in a circuit breaker so a source that keeps
// failing is not requested on every scheduled run. While open, Fetch fails
// immediately with a stage.Fetch error.
func WithBreaker(inner Fetcher, name string, tel telemetry.API, opts BreakerOptions) Fetcher {
	if opts.ConsecutiveFailures == 0 {
		opts.ConsecutiveFailures = 3
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = time.Hour
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     opts.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			tel.ReportWarning(report_breaker_state, name, from.String(), to.String())
		},
	})
	return breakerFetcher{inner: inner, cb: cb}
}

func (b breakerFetcher) Fetch(ctx context.Context, url string) ([]table.Raw, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.inner.Fetch(ctx, url)
	})
	if err != nil {
		return nil, stage.Wrap(stage.Fetch, err)
	}
	return out.([]table.Raw), nil
}
