package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pair-regress-go/infrastructure/logger"
	"pair-regress-go/internal/store"
	"pair-regress-go/metrics"
)

// Lifecycle 生命周期接口
type Lifecycle interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

// LifecycleManager 生命周期管理器
type LifecycleManager struct {
	components []Lifecycle
	started    int
	mu         sync.Mutex
}

// NewLifecycleManager 创建新的生命周期管理器
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{}
}

// Register 注册组件
func (m *LifecycleManager) Register(component Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component)
}

// StartAll 按注册顺序启动；失败时逆序回滚已启动的组件
func (m *LifecycleManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, component := range m.components[m.started:] {
		if err := component.Start(ctx); err != nil {
			for j := m.started + i - 1; j >= 0; j-- {
				_ = m.components[j].Stop()
			}
			m.started = 0
			return fmt.Errorf("start %s: %w", component.Name(), err)
		}
	}
	m.started = len(m.components)
	return nil
}

// StopAll 逆序停止已启动的组件，返回所有错误的合并
func (m *LifecycleManager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i := m.started - 1; i >= 0; i-- {
		if err := m.components[i].Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", m.components[i].Name(), err))
		}
	}
	m.started = 0
	return errors.Join(errs...)
}

// CheckHealth 检查所有组件健康状态
func (m *LifecycleManager) CheckHealth() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, component := range m.components {
		if err := component.Health(); err != nil {
			return fmt.Errorf("%s unhealthy: %w", component.Name(), err)
		}
	}
	return nil
}

// httpServerComponent 承载 /metrics 的 HTTP 服务器
type httpServerComponent struct {
	name   string
	addr   string
	logger *logger.Logger

	server  *http.Server
	started bool
	mu      sync.Mutex
}

func (h *httpServerComponent) Name() string { return h.name }

func (h *httpServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil
	}
	srv := metrics.NewServer(h.addr)
	if srv == nil {
		return fmt.Errorf("%s: empty listen address", h.name)
	}
	h.server = srv
	go func() {
		h.logger.Info(fmt.Sprintf("%s listening on %s", h.name, h.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.LogError(err, map[string]interface{}{
				"component": h.name,
				"action":    "listen",
			})
		}
	}()
	h.started = true
	return nil
}

func (h *httpServerComponent) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started || h.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", h.name, err)
	}
	h.logger.Info(fmt.Sprintf("%s stopped", h.name))
	h.started = false
	return nil
}

func (h *httpServerComponent) Health() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return fmt.Errorf("%s not started", h.name)
	}
	return nil
}

// migrator 由 GormStore 实现；内存存储没有表结构
type migrator interface {
	Migrate(ctx context.Context) error
}

// storeComponent 启动时建表，停止时关闭连接池
type storeComponent struct {
	store  store.TradeStore
	logger *logger.Logger
	open   bool
}

func (s *storeComponent) Name() string { return "trade_store" }

func (s *storeComponent) Start(ctx context.Context) error {
	if m, ok := s.store.(migrator); ok {
		if err := m.Migrate(ctx); err != nil {
			return err
		}
	}
	n, err := s.store.Count(ctx)
	if err != nil {
		return err
	}
	s.logger.Info(fmt.Sprintf("trade store ready (%d rows)", n))
	s.open = true
	return nil
}

func (s *storeComponent) Stop() error {
	if !s.open {
		return nil
	}
	s.open = false
	return s.store.Close()
}

func (s *storeComponent) Health() error {
	if !s.open {
		return errors.New("store closed")
	}
	return nil
}
