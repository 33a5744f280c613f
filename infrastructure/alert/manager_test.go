package alert

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"pair-regress-go/infrastructure/logger"
)

func TestSendAlert(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, 5*time.Minute)

	err := mgr.SendWarning("Price change: +1% - Current Price: 101.2 USDT", map[string]interface{}{"symbol": "ETHUSDT"})
	if err != nil {
		t.Fatalf("SendWarning failed: %v", err)
	}
	if mock.Count() != 1 {
		t.Fatalf("expected 1 alert, got %d", mock.Count())
	}
	a := mock.GetAlerts()[0]
	if a.Level != LevelWarning {
		t.Errorf("level = %s, want WARNING", a.Level)
	}
	if a.Fields["symbol"] != "ETHUSDT" {
		t.Errorf("field symbol = %v", a.Fields["symbol"])
	}
	if a.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestThrottling(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, 100*time.Millisecond)

	_ = mgr.SendInfo("test", nil)
	_ = mgr.SendInfo("test", nil)
	if mock.Count() != 1 {
		t.Fatalf("throttled send should not increase count, got %d", mock.Count())
	}

	time.Sleep(150 * time.Millisecond)
	_ = mgr.SendInfo("test", nil)
	if mock.Count() != 2 {
		t.Errorf("after throttle period: expected 2 alerts, got %d", mock.Count())
	}

	mgr.ResetThrottle()
	_ = mgr.SendInfo("test", nil)
	if mock.Count() != 3 {
		t.Errorf("after reset: expected 3 alerts, got %d", mock.Count())
	}
}

func TestZeroIntervalDisablesThrottle(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, 0)
	for i := 0; i < 5; i++ {
		_ = mgr.SendWarning("same", nil)
	}
	if mock.Count() != 5 {
		t.Errorf("expected 5 alerts, got %d", mock.Count())
	}
}

func TestAllChannelsFailing(t *testing.T) {
	mock := NewMockChannel("mock")
	mock.SetShouldError(true)
	mgr := NewManager([]Channel{mock}, 0)
	sent := 0
	mgr.OnSent(func(Alert) { sent++ })

	if err := mgr.SendError("x", nil); err == nil {
		t.Fatal("expected error when every channel fails")
	}
	if sent != 0 {
		t.Errorf("OnSent should not fire on failure")
	}

	mgr.AddChannel(NewMockChannel("ok"))
	if err := mgr.SendError("y", nil); err != nil {
		t.Fatalf("one healthy channel should be enough: %v", err)
	}
	if sent != 1 {
		t.Errorf("OnSent fired %d times, want 1", sent)
	}
	if got := mgr.GetChannels(); len(got) != 2 || got[1] != "ok" {
		t.Errorf("channels = %v", got)
	}
}

func TestConsoleChannel(t *testing.T) {
	var buf bytes.Buffer
	ch := NewConsoleChannel("console", &buf)
	err := ch.Send(Alert{Level: LevelWarning, Message: "hello", Timestamp: time.Now(), Fields: map[string]interface{}{"b": 2, "a": 1}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "hello") || !strings.Contains(out, "a=1 b=2") {
		t.Errorf("unexpected console output %q", out)
	}
}

func TestLogChannel(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ch := NewLogChannel("log", logger.Wrap(zap.New(core)))
	if err := ch.Send(Alert{Level: LevelWarning, Message: "moved", Fields: map[string]interface{}{"symbol": "ETHUSDT"}}); err != nil {
		t.Fatalf("send: %v", err)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["alert"] != "moved" || ctx["symbol"] != "ETHUSDT" || ctx["level"] != LevelWarning {
		t.Errorf("unexpected context %v", ctx)
	}
}
