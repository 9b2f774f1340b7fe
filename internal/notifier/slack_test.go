package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/pathwise/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleReport(failed ...string) model.RefreshReport {
	return model.RefreshReport{
		Stale:     len(failed) + 2,
		Refreshed: 2,
		Failed:    failed,
		StartedAt: time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
		Duration:  3 * time.Second,
	}
}

func TestSlackNotifier_OnlyFailuresSkipsCleanCycles(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, srv.Client(), true, discardLogger())

	if err := n.Notify(context.Background(), sampleReport()); err != nil {
		t.Errorf("Notify() = %v, want nil", err)
	}
	if c := calls.Load(); c != 0 {
		t.Errorf("expected 0 HTTP calls, got %d", c)
	}

	if err := n.Notify(context.Background(), sampleReport("tech")); err != nil {
		t.Errorf("Notify() = %v, want nil", err)
	}
	if c := calls.Load(); c != 1 {
		t.Errorf("expected 1 HTTP call for a failed cycle, got %d", c)
	}
}

func TestSlackNotifier_PayloadFormat(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, srv.Client(), false, discardLogger())
	if err := n.Notify(context.Background(), sampleReport("tech-software-development", "finance-banking")); err != nil {
		t.Fatalf("Notify() = %v", err)
	}

	var payload slackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(payload.Blocks) != 5 {
		t.Fatalf("expected 5 blocks, got %d", len(payload.Blocks))
	}
	if payload.Blocks[0].Type != "header" || payload.Blocks[0].Text.Text != "Insight refresh finished with failures" {
		t.Errorf("block[0] = %+v, want failure header", payload.Blocks[0])
	}
	if payload.Blocks[1].Fields[0].Text != "*Stale:*\n4" {
		t.Errorf("stale field = %q", payload.Blocks[1].Fields[0].Text)
	}
	if payload.Blocks[2].Fields[0].Text != "*Failed:*\n2" {
		t.Errorf("failed field = %q", payload.Blocks[2].Fields[0].Text)
	}
	if payload.Blocks[2].Fields[1].Text != "*Duration:*\n3s" {
		t.Errorf("duration field = %q", payload.Blocks[2].Fields[1].Text)
	}
	if !strings.Contains(payload.Blocks[3].Text.Text, "• finance-banking") {
		t.Errorf("failed keys block = %q", payload.Blocks[3].Text.Text)
	}
	if payload.Blocks[4].Type != "divider" {
		t.Errorf("block[4] type = %q, want divider", payload.Blocks[4].Type)
	}
}

func TestSlackNotifier_CleanCyclePayload(t *testing.T) {
	p := buildPayload(sampleReport())
	if len(p.Blocks) != 4 {
		t.Fatalf("expected 4 blocks without a failure list, got %d", len(p.Blocks))
	}
	if p.Blocks[0].Text.Text != "Insight refresh complete" {
		t.Errorf("header = %q", p.Blocks[0].Text.Text)
	}
}

func TestSlackNotifier_CycleErrorPayload(t *testing.T) {
	p := buildPayload(model.RefreshReport{Err: errors.New("database is locked")})
	if len(p.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(p.Blocks))
	}
	if p.Blocks[0].Text.Text != "Insight refresh failed" {
		t.Errorf("header = %q", p.Blocks[0].Text.Text)
	}
	if !strings.Contains(p.Blocks[1].Text.Text, "database is locked") {
		t.Errorf("error block = %q", p.Blocks[1].Text.Text)
	}
}

func TestSlackNotifier_TruncatesLongFailureList(t *testing.T) {
	failed := make([]string, maxListedFailures+5)
	for i := range failed {
		failed[i] = "industry"
	}
	p := buildPayload(sampleReport(failed...))
	text := p.Blocks[3].Text.Text
	if got := strings.Count(text, "• "); got != maxListedFailures {
		t.Errorf("listed %d keys, want %d", got, maxListedFailures)
	}
	if !strings.Contains(text, "and 5 more") {
		t.Errorf("missing overflow note: %q", text)
	}
}

func TestSlackNotifier_SlackReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, srv.Client(), false, discardLogger())
	if err := n.Notify(context.Background(), sampleReport("tech")); err == nil {
		t.Error("expected error when slack returns 500, got nil")
	}
}

func TestSlackNotifier_RateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := calls.Add(1)
		if c == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
		} else {
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, srv.Client(), false, discardLogger())
	if err := n.Notify(context.Background(), sampleReport()); err != nil {
		t.Fatalf("expected nil after retry, got %v", err)
	}
	if c := calls.Load(); c != 2 {
		t.Errorf("expected 2 HTTP calls (initial + retry), got %d", c)
	}
}

func TestSlackNotifier_RateLimitedCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	n := NewSlackNotifier(srv.URL, srv.Client(), false, discardLogger())
	if err := n.Notify(ctx, sampleReport()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded while waiting out Retry-After, got %v", err)
	}
}

func TestSendTestMessage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, srv.Client(), true, discardLogger())
	if err := SendTestMessage(context.Background(), n); err != nil {
		t.Fatalf("SendTestMessage() = %v", err)
	}
	if c := calls.Load(); c != 1 {
		t.Errorf("expected 1 HTTP call, got %d", c)
	}
}
