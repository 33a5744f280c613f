package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pair-regress-go/config"
	"pair-regress-go/gateway"
	"pair-regress-go/infrastructure/alert"
	"pair-regress-go/infrastructure/logger"
	"pair-regress-go/internal/ingest"
	"pair-regress-go/internal/store"
	"pair-regress-go/market"
	"pair-regress-go/metrics"
	"pair-regress-go/regression"
)

// ErrNotBuilt 在 Build 之前调用 Run 时返回。
var ErrNotBuilt = errors.New("container: not built")

// Options 控制容器的构建方式。Dialer/Store 非空时替换默认实现（测试用）。
type Options struct {
	ConfigPath    string
	DryRun        bool   // 使用内存存储，不需要 store.dsn
	MetricsAddr   string // 覆盖 metrics.addr
	WatchConfig   bool   // 监听配置文件变更
	AlertOut      io.Writer
	AlertChannels []alert.Channel // 追加在默认 log/console 通道之后

	Dialer gateway.Dialer
	Store  store.TradeStore
	Logger *logger.Logger
}

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	cfg  config.AppConfig
	opts Options

	// 基础设施
	logger *logger.Logger
	alerts *alert.Manager

	// 核心服务
	store     store.TradeStore
	watcher   *market.PriceWatcher
	ingestors []*ingest.Ingestor
	job       *regression.Job

	lifecycle *LifecycleManager
}

// New 读取配置并创建 Container
func New(opts Options) (*Container, error) {
	load := config.LoadWithEnvOverrides
	if opts.DryRun {
		load = config.LoadParams
	}
	cfg, err := load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(cfg, opts), nil
}

// NewWithConfig 使用已加载的配置创建 Container
func NewWithConfig(cfg config.AppConfig, opts Options) *Container {
	if opts.MetricsAddr != "" {
		cfg.Metrics.Addr = opts.MetricsAddr
	}
	return &Container{
		cfg:       cfg,
		opts:      opts,
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	if err := c.buildStore(); err != nil {
		return fmt.Errorf("build store failed: %w", err)
	}
	c.buildPipeline()
	c.registerLifecycleComponents()
	c.logger.Info("container built",
		zap.String("env", c.cfg.Env),
		zap.Bool("dry_run", c.opts.DryRun),
		zap.String("watched", c.cfg.Symbols.Watched),
		zap.String("reference", c.cfg.Symbols.Reference),
		zap.Strings("alert_channels", c.alerts.GetChannels()),
	)
	return nil
}

func (c *Container) buildInfrastructure() error {
	if c.opts.Logger != nil {
		c.logger = c.opts.Logger
	} else {
		var err error
		c.logger, err = logger.New(c.cfg.Log)
		if err != nil {
			return fmt.Errorf("create logger failed: %w", err)
		}
	}

	out := c.opts.AlertOut
	if out == nil {
		out = os.Stdout
	}
	c.alerts = alert.NewManager([]alert.Channel{
		alert.NewLogChannel("log", c.logger),
		alert.NewConsoleChannel("console", out),
	}, c.cfg.Watcher.AlertThrottle())
	for _, ch := range c.opts.AlertChannels {
		c.alerts.AddChannel(ch)
	}
	c.alerts.OnSent(func(a alert.Alert) {
		metrics.AlertsDelivered.WithLabelValues(a.Level).Inc()
	})
	return nil
}

func (c *Container) buildStore() error {
	switch {
	case c.opts.Store != nil:
		c.store = c.opts.Store
	case c.opts.DryRun:
		c.store = store.NewMemoryStore()
	default:
		st, err := store.Open(store.Options{
			DSN:          c.cfg.Store.DSN,
			Table:        c.cfg.Store.Table,
			MaxOpenConns: c.cfg.Store.MaxOpenConns,
			MaxIdleConns: c.cfg.Store.MaxIdleConns,
		})
		if err != nil {
			return err
		}
		c.store = st
	}
	return nil
}

func (c *Container) buildPipeline() {
	dial := c.opts.Dialer
	if dial == nil {
		dial = gateway.NewDialer(gateway.StreamConfig{
			Endpoint:     c.cfg.Feed.Endpoint,
			PingInterval: c.cfg.Feed.PingInterval(),
			ReadTimeout:  c.cfg.Feed.ReadTimeout(),
			QueueSize:    c.cfg.Feed.QueueSize,
		})
	}

	watched := market.CanonicalSymbol(c.cfg.Symbols.Watched)
	reference := market.CanonicalSymbol(c.cfg.Symbols.Reference)
	c.watcher = market.NewPriceWatcher(watched, c.cfg.Watcher.ThresholdPct, c.alerts)

	for _, sym := range []string{watched, reference} {
		icfg := ingest.DefaultConfig(sym)
		icfg.SuccessPause = c.cfg.Ingest.SuccessPause()
		icfg.ErrorPause = c.cfg.Ingest.ErrorPause()
		if mb := c.cfg.Feed.MaxBackoff(); mb > 0 {
			icfg.MaxBackoff = mb
		}
		var w *market.PriceWatcher
		if sym == watched {
			w = c.watcher
			icfg.EchoTrades = true
		}
		ev := ingest.NewEvictor(c.store, sym, c.cfg.Ingest.Retention(), c.logger)
		c.ingestors = append(c.ingestors, ingest.New(icfg, dial, c.store, ev, w, c.logger))
	}

	c.job = &regression.Job{
		Engine:      regression.NewEngine(c.store, c.cfg.Regression.RoundTo(), c.logger),
		Store:       c.store,
		Dependent:   watched,
		Independent: reference,
		Log:         c.logger,
	}
}

func (c *Container) registerLifecycleComponents() {
	c.lifecycle.Register(&storeComponent{store: c.store, logger: c.logger})
	if c.cfg.Metrics.Addr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:   "metrics_server",
			addr:   c.cfg.Metrics.Addr,
			logger: c.logger,
		})
	}
}

// Start 启动存储与 metrics 服务器
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")
	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	c.logger.Info("container started")
	return nil
}

// Run 读取两个交易对的历史快照，然后并发运行两条接入流水线与回归任务，
// 直到 ctx 结束或其中一个单元以非取消错误退出。
func (c *Container) Run(ctx context.Context) error {
	if c.job == nil {
		return ErrNotBuilt
	}
	dep, err := regression.Snapshot(ctx, c.store, c.job.Dependent)
	if err != nil {
		return err
	}
	indep, err := regression.Snapshot(ctx, c.store, c.job.Independent)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ing := range c.ingestors {
		ing := ing
		g.Go(func() error {
			err := ing.Run(gctx)
			if err != nil && gctx.Err() == nil {
				_ = c.alerts.SendError("trade stream stopped", map[string]interface{}{
					"symbol": ing.Symbol(),
					"kind":   ingest.KindName(err),
					"error":  err.Error(),
				})
			}
			return err
		})
	}
	g.Go(func() error {
		return c.runRegression(gctx, dep, indep)
	})
	if c.opts.WatchConfig && c.opts.ConfigPath != "" {
		g.Go(func() error {
			return c.watchConfig(gctx)
		})
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		c.logger.Warn("sd_notify failed", zap.Error(err))
	} else if ok {
		c.logger.Info("readiness reported to systemd")
	}

	err = g.Wait()
	if ctx.Err() != nil && (err == nil || ingest.IsCanceled(err)) {
		return nil
	}
	return err
}

func (c *Container) runRegression(ctx context.Context, dep, indep []regression.Sample) error {
	if _, err := c.job.RunWith(ctx, dep, indep); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if c.cfg.Regression.Schedule == "" {
		return nil
	}
	c.logger.Info("regression scheduled", zap.String("schedule", c.cfg.Regression.Schedule))
	return c.job.Schedule(ctx, c.cfg.Regression.Schedule)
}

func (c *Container) watchConfig(ctx context.Context) error {
	check := config.Validate
	if c.opts.DryRun {
		check = config.ValidateParams
	}
	w := config.Watcher{
		Path:     c.opts.ConfigPath,
		Cooldown: time.Second,
		Check:    check,
		OnError: func(err error) {
			c.logger.LogError(err, map[string]interface{}{"action": "config_reload"})
		},
	}
	return w.Start(ctx, c.ApplyConfig)
}

// ApplyConfig 应用可热更新的参数：告警阈值与日志级别，并清空告警限流记录。
// 其余参数需要重启。
func (c *Container) ApplyConfig(cfg config.AppConfig) {
	fields := map[string]interface{}{}
	if c.watcher != nil && cfg.Watcher.ThresholdPct > 0 {
		fields["previous_threshold_pct"] = c.watcher.Threshold().String()
		c.watcher.SetThreshold(cfg.Watcher.ThresholdPct)
		fields["threshold_pct"] = c.watcher.Threshold().String()
	}
	if cfg.Log.Level != "" {
		if err := c.logger.SetLevel(cfg.Log.Level); err != nil {
			c.logger.LogError(err, map[string]interface{}{"action": "set_level"})
		} else {
			fields["log_level"] = cfg.Log.Level
		}
	}
	c.alerts.ResetThrottle()
	_ = c.alerts.SendInfo("config reloaded", fields)
}

// Stop 逆序停止组件并刷新日志
func (c *Container) Stop() error {
	c.logger.Info("stopping container...")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	for _, ing := range c.ingestors {
		s := ing.Stats()
		c.logger.Info("ingestor stats",
			zap.String("symbol", ing.Symbol()),
			zap.Int64("received", s.Received),
			zap.Int64("stored", s.Stored),
			zap.Int64("dropped", s.Dropped),
			zap.Int64("evicted", s.Evicted),
			zap.Int64("reconnects", s.Reconnects),
		)
	}
	if c.opts.Logger == nil {
		_ = c.logger.Close()
	}
	return err
}

// HealthCheck 检查所有组件
func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Config 返回生效中的配置
func (c *Container) Config() config.AppConfig { return c.cfg }

// Watcher 返回监控交易对的 PriceWatcher
func (c *Container) Watcher() *market.PriceWatcher { return c.watcher }

// Ingestors 返回两条接入流水线，顺序为 watched、reference
func (c *Container) Ingestors() []*ingest.Ingestor { return c.ingestors }
