// Package retry runs failure-prone provider calls with bounded retries and
// jittered exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log"
	"math/big"
	"strings"
	"time"
)

// Config bounds a retried operation.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Timeout caps the whole operation, backoff waits included. Zero means
	// the caller's context is the only deadline.
	Timeout time.Duration
	// Classify reports whether an error is worth retrying. Nil means
	// Transient.
	Classify func(error) bool
}

// DefaultConfig suits interactive use: a few quick attempts, then give up.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Do runs fn until it succeeds, a non-retryable error occurs, the attempt
// budget is spent, or the overall timeout expires. The op name is used only
// for logging and error messages.
func Do[T any](ctx context.Context, cfg Config, logger *log.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	classify := cfg.Classify
	if classify == nil {
		classify = Transient
	}

	opCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var lastErr error
	attempts := 0
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := opCtx.Err(); err != nil {
			return zero, fmt.Errorf("%s canceled: %w", op, err)
		}
		attempts = attempt + 1

		res, err := fn(opCtx)
		if err == nil {
			if attempt > 0 {
				logger.Printf("%s succeeded on attempt %d", op, attempts)
			}
			return res, nil
		}

		lastErr = err
		logger.Printf("%s attempt %d failed: %v", op, attempts, err)

		if !classify(err) || attempt == cfg.MaxRetries {
			break
		}

		logger.Printf("Transient error detected, retrying in %v", backoff)
		select {
		case <-time.After(backoff):
			backoff = nextBackoff(backoff, cfg.MaxBackoff)
		case <-opCtx.Done():
			return zero, fmt.Errorf("%s timed out during backoff: %w", op, opCtx.Err())
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}

// nextBackoff grows the delay by half again, caps it, then adds up to 25%
// jitter so synchronized callers spread out.
func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := time.Duration(float64(current) * 1.5)
	if next > maxBackoff {
		next = maxBackoff
	}

	if maxJitter := int64(next / 4); maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			log.Printf("Failed to generate jitter: %v", err)
		} else {
			next += time.Duration(jitterVal.Int64())
		}
	}

	return next
}

var transientPatterns = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"temporary failure",
	"server error",
	"rate limit",
	"429", // HTTP 429 Too Many Requests
	"502", // HTTP 502 Bad Gateway
	"503", // HTTP 503 Service Unavailable
	"504", // HTTP 504 Gateway Timeout
	"network",
	"dns",
	"tcp",
}

// Transient reports whether err looks like a temporary network or server
// failure worth repeating the call for.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
