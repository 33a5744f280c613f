package alert

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"pair-regress-go/infrastructure/logger"
)

// LogChannel 把告警写入结构化日志
type LogChannel struct {
	log  *logger.Logger
	name string
}

// NewLogChannel 创建日志告警通道
func NewLogChannel(name string, log *logger.Logger) *LogChannel {
	if log == nil {
		log = logger.NewNop()
	}
	return &LogChannel{log: log, name: name}
}

// Send 发送告警到日志
func (c *LogChannel) Send(alert Alert) error {
	fields := make(map[string]interface{}, len(alert.Fields)+1)
	for k, v := range alert.Fields {
		fields[k] = v
	}
	fields["level"] = alert.Level
	c.log.LogAlert(alert.Message, fields)
	return nil
}

// Name 返回通道名称
func (c *LogChannel) Name() string {
	return c.name
}

// ConsoleChannel 控制台告警通道（彩色输出）
type ConsoleChannel struct {
	name string
	out  io.Writer
}

// NewConsoleChannel 创建控制台告警通道，out 为空时写 stdout
func NewConsoleChannel(name string, out io.Writer) *ConsoleChannel {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleChannel{name: name, out: out}
}

// Send 发送告警到控制台（带颜色）
func (c *ConsoleChannel) Send(alert Alert) error {
	colorReset := "\033[0m"
	colorCode := colorReset
	switch alert.Level {
	case LevelInfo:
		colorCode = "\033[32m"
	case LevelWarning:
		colorCode = "\033[33m"
	case LevelError:
		colorCode = "\033[31m"
	case LevelCritical:
		colorCode = "\033[35m"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]%s %s - %s",
		colorCode,
		alert.Level,
		colorReset,
		alert.Timestamp.Format("2006-01-02 15:04:05"),
		alert.Message,
	)
	if len(alert.Fields) > 0 {
		keys := make([]string, 0, len(alert.Fields))
		for k := range alert.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, alert.Fields[k])
		}
	}
	b.WriteString("\n")
	_, err := io.WriteString(c.out, b.String())
	return err
}

// Name 返回通道名称
func (c *ConsoleChannel) Name() string {
	return c.name
}

// MockChannel 模拟告警通道（用于测试）
type MockChannel struct {
	name      string
	mu        sync.Mutex
	alerts    []Alert
	shouldErr bool
}

// NewMockChannel 创建模拟告警通道
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{
		name:   name,
		alerts: make([]Alert, 0),
	}
}

// Send 记录告警（用于测试验证）
func (c *MockChannel) Send(alert Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shouldErr {
		return fmt.Errorf("mock error")
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

// Name 返回通道名称
func (c *MockChannel) Name() string {
	return c.name
}

// GetAlerts 获取所有接收到的告警
func (c *MockChannel) GetAlerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

// SetShouldError 设置是否返回错误
func (c *MockChannel) SetShouldError(shouldErr bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shouldErr = shouldErr
}

// Count 返回接收到的告警数量
func (c *MockChannel) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}
