package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidateParams 验证除 store 以外的运行参数。
func ValidateParams(cfg AppConfig) error {
	if cfg.Env == "" {
		return ErrInvalid("env is required")
	}
	if cfg.Feed.Endpoint == "" {
		return ErrInvalid("feed.endpoint is required")
	}
	if cfg.Feed.QueueSize < 1 {
		return ErrInvalid("feed.queueSize must be >= 1")
	}
	if cfg.Feed.PingIntervalSec < 0 || cfg.Feed.ReadTimeoutSec < 0 || cfg.Feed.MaxBackoffSec < 0 {
		return ErrInvalid("feed intervals must be >= 0")
	}
	w, r := strings.TrimSpace(cfg.Symbols.Watched), strings.TrimSpace(cfg.Symbols.Reference)
	if w == "" || r == "" {
		return ErrInvalid("symbols.watched and symbols.reference are required")
	}
	if strings.EqualFold(w, r) {
		return ErrInvalid(fmt.Sprintf("symbols.watched and symbols.reference must differ (both %s)", w))
	}
	if cfg.Ingest.RetentionMinutes <= 0 {
		return ErrInvalid("ingest.retentionMinutes must be > 0")
	}
	if cfg.Ingest.SuccessPauseMs < 0 || cfg.Ingest.ErrorPauseMs < 0 {
		return ErrInvalid("ingest pauses must be >= 0")
	}
	if cfg.Watcher.ThresholdPct <= 0 {
		return ErrInvalid("watcher.thresholdPct must be > 0")
	}
	if cfg.Watcher.AlertThrottleSec < 0 {
		return ErrInvalid("watcher.alertThrottleSec must be >= 0")
	}
	if cfg.Regression.RoundToMs <= 0 {
		return ErrInvalid("regression.roundToMs must be > 0")
	}
	if cfg.Regression.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Regression.Schedule); err != nil {
			return ErrInvalid(fmt.Sprintf("regression.schedule: %v", err))
		}
	}
	return nil
}

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }
