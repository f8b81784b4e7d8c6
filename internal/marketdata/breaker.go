package marketdata

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/schrute_spreads/internal/spread"
)

// BreakerProvider wraps a Provider with a circuit breaker so a flapping
// upstream fails fast instead of being hammered while it is down.
type BreakerProvider struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

var _ Provider = (*BreakerProvider)(nil)

// execBreaker is a generic helper for the wrapper methods.
func execBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	provider Provider,
	fn func(Provider) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(provider) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// BreakerSettings configures trip thresholds and recovery cadence.
type BreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewBreakerProvider wraps provider with sensible defaults.
func NewBreakerProvider(provider Provider, logger *log.Logger) *BreakerProvider {
	return NewBreakerProviderWithSettings(provider, logger, BreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewBreakerProviderWithSettings wraps provider with custom settings.
func NewBreakerProviderWithSettings(provider Provider, logger *log.Logger, settings BreakerSettings) *BreakerProvider {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	gbSettings := gobreaker.Settings{
		Name:        "MarketDataCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &BreakerProvider{
		provider: provider,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// GetQuote wraps the underlying provider call with the circuit breaker.
func (b *BreakerProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	return execBreaker(b.breaker, b.provider, func(p Provider) (*Quote, error) {
		return p.GetQuote(ctx, symbol)
	})
}

// GetDailyHistory wraps the underlying provider call with the circuit breaker.
func (b *BreakerProvider) GetDailyHistory(ctx context.Context, symbol string, days int) ([]Bar, error) {
	return execBreaker(b.breaker, b.provider, func(p Provider) ([]Bar, error) {
		return p.GetDailyHistory(ctx, symbol, days)
	})
}

// GetExpirations wraps the underlying provider call with the circuit breaker.
func (b *BreakerProvider) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	return execBreaker(b.breaker, b.provider, func(p Provider) ([]time.Time, error) {
		return p.GetExpirations(ctx, symbol)
	})
}

// GetChain wraps the underlying provider call with the circuit breaker.
func (b *BreakerProvider) GetChain(ctx context.Context, symbol string, expiration time.Time) (*spread.ChainSnapshot, error) {
	return execBreaker(b.breaker, b.provider, func(p Provider) (*spread.ChainSnapshot, error) {
		return p.GetChain(ctx, symbol, expiration)
	})
}

// GetChainNearestDTE wraps the underlying provider call with the circuit breaker.
func (b *BreakerProvider) GetChainNearestDTE(ctx context.Context, symbol string, targetDTE int) (*spread.ChainSnapshot, error) {
	return execBreaker(b.breaker, b.provider, func(p Provider) (*spread.ChainSnapshot, error) {
		return p.GetChainNearestDTE(ctx, symbol, targetDTE)
	})
}
