package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatcherStopsOnCancel(t *testing.T) {
	path := writeTempConfig(t, "env: dev\nstore:\n  dsn: postgres://x\n")
	w := Watcher{Path: path}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Start(ctx, nil); err == nil {
		t.Fatalf("expected context cancellation")
	}
}

func TestWatcherTriggersOnChange(t *testing.T) {
	path := writeTempConfig(t, "env: dev\nstore:\n  dsn: postgres://x\n")

	w := Watcher{Path: path}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan AppConfig, 4)
	go func() {
		_ = w.Start(ctx, func(cfg AppConfig) { ch <- cfg })
	}()

	// 给 fsnotify 一点时间注册目录
	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case cfg := <-ch:
			if cfg.Watcher.ThresholdPct != 3 {
				t.Fatalf("expected reloaded threshold 3, got %v", cfg.Watcher.ThresholdPct)
			}
			return
		case <-ticker.C:
			_ = os.WriteFile(path, []byte("env: dev\nstore:\n  dsn: postgres://x\nwatcher:\n  thresholdPct: 3\n"), 0o644)
		case <-deadline:
			t.Fatalf("expected update callback")
		}
	}
}

func TestWatcherReportsInvalidConfig(t *testing.T) {
	path := writeTempConfig(t, "env: dev\nstore:\n  dsn: postgres://x\n")
	errs := make(chan error, 4)
	w := Watcher{Path: path, OnError: func(err error) { errs <- err }}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = w.Start(ctx, func(AppConfig) { t.Errorf("invalid config must not be applied") })
	}()

	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-errs:
			return
		case <-ticker.C:
			_ = os.WriteFile(path, []byte("env: dev\nstore:\n  dsn: postgres://x\nwatcher:\n  thresholdPct: -1\n"), 0o644)
		case <-deadline:
			t.Fatalf("expected error callback")
		}
	}
}
