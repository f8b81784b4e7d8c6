package retry

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"
)

var discard = log.New(io.Discard, "", 0)

func fastConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Timeout:        time.Second,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig(), discard, "fetch", func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if got != 42 {
		t.Errorf("Do() = %d, want 42", got)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig(), discard, "fetch", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection refused")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if got != "ok" {
		t.Errorf("Do() = %q, want %q", got, "ok")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(), discard, "fetch", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("invalid symbol")
	})
	if err == nil {
		t.Fatal("Do() error = nil, want error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (permanent errors should not retry)", calls)
	}
	if !strings.Contains(err.Error(), "failed after 1 attempts") {
		t.Errorf("error = %q, want attempt count of 1", err)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	sentinel := errors.New("tcp reset by peer")
	calls := 0
	got, err := Do(context.Background(), fastConfig(), discard, "fetch", func(ctx context.Context) (float64, error) {
		calls++
		return 1.5, sentinel
	})
	if err == nil {
		t.Fatal("Do() error = nil, want error")
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (MaxRetries+1)", calls)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("error %v does not wrap the last failure", err)
	}
	if got != 0 {
		t.Errorf("Do() = %v, want zero value on failure", got)
	}
	if !strings.Contains(err.Error(), "fetch failed after 4 attempts") {
		t.Errorf("error = %q, want op name and attempt count", err)
	}
}

func TestDo_RespectsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, fastConfig(), discard, "fetch", func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})
	if err == nil {
		t.Fatal("Do() error = nil, want cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want wrapped context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestDo_TimeoutDuringBackoff(t *testing.T) {
	cfg := Config{
		MaxRetries:     5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Timeout:        10 * time.Millisecond,
	}
	calls := 0
	_, err := Do(context.Background(), cfg, discard, "fetch", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("timeout talking to upstream")
	})
	if err == nil {
		t.Fatal("Do() error = nil, want timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want wrapped context.DeadlineExceeded", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_CustomClassify(t *testing.T) {
	retryMe := errors.New("quota drained")
	cfg := fastConfig()
	cfg.Classify = func(err error) bool { return errors.Is(err, retryMe) }

	calls := 0
	got, err := Do(context.Background(), cfg, discard, "fetch", func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, retryMe
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if got != 7 || calls != 2 {
		t.Errorf("got %d after %d calls, want 7 after 2", got, calls)
	}
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", errors.New("request timeout"), true},
		{"connection refused", errors.New("dial tcp 127.0.0.1:443: connection refused"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"http 429", errors.New("API error 429: too many requests"), true},
		{"http 502", errors.New("API error 502: bad gateway"), true},
		{"http 503", errors.New("API error 503: service unavailable"), true},
		{"http 504", errors.New("API error 504: gateway timeout"), true},
		{"dns", errors.New("lookup api.tradier.com: no such host (dns)"), true},
		{"bad request", errors.New("API error 400: invalid expiration"), false},
		{"not found", errors.New("API error 404: unknown symbol"), false},
		{"validation", errors.New("strike must be positive"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transient(tt.err); got != tt.want {
				t.Errorf("Transient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNextBackoff_GrowsAndCaps(t *testing.T) {
	got := nextBackoff(time.Second, 30*time.Second)
	if got < 1500*time.Millisecond {
		t.Errorf("nextBackoff(1s) = %v, want >= 1.5s", got)
	}
	if got > 1875*time.Millisecond {
		t.Errorf("nextBackoff(1s) = %v, want <= 1.5s plus 25%% jitter", got)
	}

	capped := nextBackoff(29*time.Second, 30*time.Second)
	if capped < 30*time.Second {
		t.Errorf("nextBackoff(29s) = %v, want >= 30s cap", capped)
	}
	if capped > 37500*time.Millisecond {
		t.Errorf("nextBackoff(29s) = %v, want <= cap plus 25%% jitter", capped)
	}
}
