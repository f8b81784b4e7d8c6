package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/spread"
)

var discard = log.New(io.Discard, "", 0)

type fakeSender struct {
	sent []string // "title\n\nmessage" per delivery
	fail error
}

func (f *fakeSender) Send(_ context.Context, title, message string) error {
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, title+"\n\n"+message)
	return nil
}

func (f *fakeSender) Name() string { return "fake" }

func pick(score float64) spread.SelectionResult {
	return spread.SelectionResult{
		Primary: &spread.Recommendation{
			LongStrike:          180,
			ShortStrike:         185,
			Expiration:          time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC),
			EstimatedDebit:      4.05,
			MaxProfit:           0.95,
			ReturnOnRiskPct:     23.5,
			ProbabilityOfProfit: 62,
			TotalScore:          score,
		},
	}
}

func TestScanAlert_ScoreGate(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, 60, discard)

	if err := n.ScanAlert(context.Background(), "SPY", 500.10, pick(55)); err != nil {
		t.Fatalf("ScanAlert: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("Expected low score to be dropped, got %d deliveries", len(sender.sent))
	}

	if err := n.ScanAlert(context.Background(), "SPY", 500.10, pick(72)); err != nil {
		t.Fatalf("ScanAlert: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("Expected 1 delivery, got %d", len(sender.sent))
	}
	got := sender.sent[0]
	for _, want := range []string{"SPY", "180/185", "exp 2026-09-18", "4.05 debit", "ROI 23.5%", "PoP 62%", "score 72.0"} {
		if !strings.Contains(got, want) {
			t.Errorf("Alert missing %q:\n%s", want, got)
		}
	}
}

func TestScanAlert_SkipsEmptyResult(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, 0, discard)

	empty := spread.SelectionResult{Reason: "no viable candidates"}
	if err := n.ScanAlert(context.Background(), "SPY", 500.10, empty); err != nil {
		t.Fatalf("ScanAlert: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("Expected no delivery for empty result, got %d", len(sender.sent))
	}
}

func TestPositionAlert_OnlyOnChange(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, 0, discard)
	ctx := context.Background()

	pos := models.Position{ID: "p1", Symbol: "SPY", LongStrike: 180, ShortStrike: 185, DTE: 21}
	hold := spread.Assessment{Recommendation: spread.ActionHold, Confidence: 60, ProfitCapturedPct: 30}
	closeOut := spread.Assessment{Recommendation: spread.ActionClose, Confidence: 85, ProfitCapturedPct: 92,
		Reasoning: []string{"Captured 92% of max profit; almost nothing left to earn."}}

	if err := n.PositionAlert(ctx, pos, hold); err != nil {
		t.Fatalf("PositionAlert: %v", err)
	}
	if err := n.PositionAlert(ctx, pos, hold); err != nil {
		t.Fatalf("PositionAlert repeat: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("Expected repeat action suppressed, got %d deliveries", len(sender.sent))
	}

	if err := n.PositionAlert(ctx, pos, closeOut); err != nil {
		t.Fatalf("PositionAlert on change: %v", err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("Expected action change to fire, got %d deliveries", len(sender.sent))
	}
	if !strings.Contains(sender.sent[1], "CLOSE") {
		t.Errorf("Alert missing new action:\n%s", sender.sent[1])
	}
	if !strings.Contains(sender.sent[1], "Captured 92%") {
		t.Errorf("Alert missing reasoning line:\n%s", sender.sent[1])
	}

	// Other positions track their own state
	other := models.Position{ID: "p2", Symbol: "QQQ", LongStrike: 420, ShortStrike: 430}
	if err := n.PositionAlert(ctx, other, hold); err != nil {
		t.Fatalf("PositionAlert other: %v", err)
	}
	if len(sender.sent) != 3 {
		t.Errorf("Expected per-position tracking, got %d deliveries", len(sender.sent))
	}
}

func TestPositionAlert_FailureStaysArmed(t *testing.T) {
	sender := &fakeSender{fail: errors.New("webhook down")}
	n := New(sender, 0, discard)
	ctx := context.Background()

	pos := models.Position{ID: "p1", Symbol: "SPY", LongStrike: 180, ShortStrike: 185}
	hold := spread.Assessment{Recommendation: spread.ActionHold}

	if err := n.PositionAlert(ctx, pos, hold); err == nil {
		t.Fatal("Expected delivery error, got nil")
	}

	sender.fail = nil
	if err := n.PositionAlert(ctx, pos, hold); err != nil {
		t.Fatalf("PositionAlert retry: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("Expected failed alert to retry on next evaluation, got %d deliveries", len(sender.sent))
	}
}

func TestNotifier_QuietWhenUnconfigured(t *testing.T) {
	ctx := context.Background()
	pos := models.Position{ID: "p1", Symbol: "SPY"}

	var nilNotifier *Notifier
	if nilNotifier.Enabled() {
		t.Error("nil notifier must report disabled")
	}
	if err := nilNotifier.ScanAlert(ctx, "SPY", 500, pick(99)); err != nil {
		t.Errorf("nil notifier ScanAlert: %v", err)
	}
	if err := nilNotifier.PositionAlert(ctx, pos, spread.Assessment{}); err != nil {
		t.Errorf("nil notifier PositionAlert: %v", err)
	}

	n := New(nil, 0, discard)
	if n.Enabled() {
		t.Error("senderless notifier must report disabled")
	}
	if err := n.ScanAlert(ctx, "SPY", 500, pick(99)); err != nil {
		t.Errorf("senderless ScanAlert: %v", err)
	}
}

func TestDiscordSender_Send(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	if err := sender.Send(context.Background(), "SPY spread pick", "180/185 for 4.05"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(got.Embeds) != 1 {
		t.Fatalf("Expected 1 embed, got %d", len(got.Embeds))
	}
	if got.Embeds[0].Title != "SPY spread pick" || got.Embeds[0].Description != "180/185 for 4.05" {
		t.Errorf("Embed fields wrong: %+v", got.Embeds[0])
	}
	if got.Embeds[0].Color != embedColor {
		t.Errorf("Expected accent color %d, got %d", embedColor, got.Embeds[0].Color)
	}
}

func TestDiscordSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message": "Invalid Webhook Token"}`))
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	err := sender.Send(context.Background(), "title", "message")
	if err == nil {
		t.Fatal("Expected error for 400 response, got nil")
	}
	if !strings.Contains(err.Error(), "unexpected status 400") {
		t.Errorf("Expected status in error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid Webhook Token") {
		t.Errorf("Expected response body in error, got: %v", err)
	}
}

func TestDiscordSender_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sender := NewDiscordSender(srv.URL)
	if err := sender.Send(ctx, "title", "message"); err == nil {
		t.Error("Expected error for cancelled context, got nil")
	}
}
