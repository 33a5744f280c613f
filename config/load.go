package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pair-regress-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env        string           `yaml:"env"`
	Store      StoreConfig      `yaml:"store"`
	Feed       FeedConfig       `yaml:"feed"`
	Symbols    SymbolsConfig    `yaml:"symbols"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Watcher    WatcherConfig    `yaml:"watcher"`
	Regression RegressionConfig `yaml:"regression"`
	Log        logger.Config    `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// StoreConfig 成交表所在的数据库。
type StoreConfig struct {
	DSN          string `yaml:"dsn"`
	Table        string `yaml:"table"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
	MaxIdleConns int    `yaml:"maxIdleConns"`
}

// FeedConfig 行情 WebSocket 参数。
type FeedConfig struct {
	Endpoint        string `yaml:"endpoint"`        // wss://host:port，路径 /ws/{symbol}@trade 自动拼接
	PingIntervalSec int    `yaml:"pingIntervalSec"` // keepalive ping 周期
	ReadTimeoutSec  int    `yaml:"readTimeoutSec"`  // 无任何帧到达时判定断线
	QueueSize       int    `yaml:"queueSize"`       // 入站消息队列深度
	MaxBackoffSec   int    `yaml:"maxBackoffSec"`   // 重连退避上限
}

// SymbolsConfig 两个跟踪的交易对。Watched 同时是回归的因变量。
type SymbolsConfig struct {
	Watched   string `yaml:"watched"`
	Reference string `yaml:"reference"`
}

// IngestConfig 接入节流与保留窗口。
type IngestConfig struct {
	RetentionMinutes int `yaml:"retentionMinutes"`
	SuccessPauseMs   int `yaml:"successPauseMs"`
	ErrorPauseMs     int `yaml:"errorPauseMs"`
}

// WatcherConfig 价格异动阈值。
type WatcherConfig struct {
	ThresholdPct     float64 `yaml:"thresholdPct"`
	AlertThrottleSec int     `yaml:"alertThrottleSec"`
}

// RegressionConfig 回归任务；Schedule 为空时只在启动时跑一次。
type RegressionConfig struct {
	Schedule  string `yaml:"schedule"`
	RoundToMs int    `yaml:"roundToMs"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() AppConfig {
	return AppConfig{
		Env: "dev",
		Store: StoreConfig{
			Table:        "futures_trades",
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		Feed: FeedConfig{
			Endpoint:        "wss://stream.binance.com:9443",
			PingIntervalSec: 20,
			ReadTimeoutSec:  60,
			QueueSize:       32,
			MaxBackoffSec:   30,
		},
		Symbols: SymbolsConfig{
			Watched:   "ethusdt",
			Reference: "btcusdt",
		},
		Ingest: IngestConfig{
			RetentionMinutes: 60,
			SuccessPauseMs:   1000,
			ErrorPauseMs:     10000,
		},
		Watcher: WatcherConfig{
			ThresholdPct: 1,
		},
		Regression: RegressionConfig{
			RoundToMs: 1000,
		},
		Log: logger.DefaultConfig(),
	}
}

func (c IngestConfig) Retention() time.Duration {
	return time.Duration(c.RetentionMinutes) * time.Minute
}

func (c IngestConfig) SuccessPause() time.Duration {
	return time.Duration(c.SuccessPauseMs) * time.Millisecond
}

func (c IngestConfig) ErrorPause() time.Duration {
	return time.Duration(c.ErrorPauseMs) * time.Millisecond
}

func (c FeedConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSec) * time.Second
}

func (c FeedConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSec) * time.Second
}

func (c FeedConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffSec) * time.Second
}

func (c WatcherConfig) AlertThrottle() time.Duration {
	return time.Duration(c.AlertThrottleSec) * time.Second
}

func (c RegressionConfig) RoundTo() time.Duration {
	return time.Duration(c.RoundToMs) * time.Millisecond
}

// LoadWithEnvOverrides loads the .env file sitting next to the config (if any),
// then the YAML, then overrides connection and symbol fields from env vars.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := readWithEnv(path)
	if err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

// LoadParams 与 LoadWithEnvOverrides 相同，但不要求 store 段（dry-run 用内存存储）。
func LoadParams(path string) (AppConfig, error) {
	cfg, err := readWithEnv(path)
	if err != nil {
		return cfg, err
	}
	return cfg, ValidateParams(cfg)
}

func readWithEnv(path string) (AppConfig, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load %s: %w", envPath, err)
	}

	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("PR_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("PR_STORE_TABLE"); v != "" {
		cfg.Store.Table = v
	}
	if v := os.Getenv("PR_SYMBOL_WATCHED"); v != "" {
		cfg.Symbols.Watched = v
	}
	if v := os.Getenv("PR_SYMBOL_REFERENCE"); v != "" {
		cfg.Symbols.Reference = v
	}
}
