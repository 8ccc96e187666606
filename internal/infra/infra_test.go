package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := NewCache[[]float64](time.Minute)
	c.Set("AAPL", []float64{1, 2})
	got, ok := c.Get("AAPL")
	if !ok || len(got) != 2 {
		t.Fatalf("Get = %v, %v", got, ok)
	}
	if _, ok := c.Get("MSFT"); ok {
		t.Error("expected miss for unknown key")
	}
	c.Invalidate("AAPL")
	if _, ok := c.Get("AAPL"); ok {
		t.Error("expected miss after Invalidate")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache[string](time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", "fresh")
	c.SetWithTTL("b", "short", time.Second)

	now = now.Add(2 * time.Second)
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to have expired")
	}
	if v, ok := c.Get("a"); !ok || v != "fresh" {
		t.Errorf("a = %q, %v", v, ok)
	}

	c.Cleanup()
	if c.Len() != 1 {
		t.Errorf("Len after Cleanup = %d, want 1", c.Len())
	}
}

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(3, time.Hour)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("expected the fourth Wait to block until the context expired")
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}
}

func TestPerSecond_Disabled(t *testing.T) {
	rl := PerSecond(0)
	if rl != nil {
		t.Fatal("PerSecond(0) should disable limiting")
	}
	if err := rl.Wait(context.Background()); err != nil {
		t.Errorf("nil limiter Wait: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("warn", "json", &buf)
	log.Info("hidden")
	log.Warn("shown", "ticker", "AAPL")

	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", out, err)
	}
	if rec["msg"] != "shown" || rec["ticker"] != "AAPL" {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	NewLogger("info", "text", &buf).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output = %q", buf.String())
	}
}
