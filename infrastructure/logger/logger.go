package logger

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pair-regress-go/monitor/logschema"
)

// Logger 封装zap日志器，提供结构化日志功能
type Logger struct {
	*zap.Logger
	level  zap.AtomicLevel
	config Config
	file   *os.File // 仅根 Logger 持有，Close 时关闭
}

// Config 日志配置
type Config struct {
	Level      string   `yaml:"level"`      // debug, info, warn, error
	Outputs    []string `yaml:"outputs"`    // stdout, file
	OutputFile string   `yaml:"outputFile"` // 日志文件路径
	Format     string   `yaml:"format"`     // json 或 console
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stdout"},
		Format:  "console",
	}
}

// New 创建新的Logger实例
func New(cfg Config) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}
	atom := zap.NewAtomicLevelAt(lvl)

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	cores := []zapcore.Core{}
	var logFile *os.File

	if contains(cfg.Outputs, "stdout") {
		var encoder zapcore.Encoder
		if cfg.Format == "console" {
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), atom))
	}

	if contains(cfg.Outputs, "file") && cfg.OutputFile != "" {
		fileWriter, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file failed: %w", err)
		}
		logFile = fileWriter
		// 文件统一用 JSON，方便采集
		fileEnc := zap.NewProductionEncoderConfig()
		fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), zapcore.AddSync(fileWriter), atom))
	}

	core := zapcore.NewTee(cores...)
	zapLogger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{
		Logger: zapLogger,
		level:  atom,
		config: cfg,
		file:   logFile,
	}, nil
}

// NewNop 返回丢弃所有输出的Logger（测试用）
func NewNop() *Logger {
	return &Logger{
		Logger: zap.NewNop(),
		level:  zap.NewAtomicLevel(),
		config: DefaultConfig(),
	}
}

// Wrap 用已有的zap日志器构造Logger（测试中配合 zaptest/observer 使用）
func Wrap(z *zap.Logger) *Logger {
	return &Logger{
		Logger: z,
		level:  zap.NewAtomicLevel(),
		config: DefaultConfig(),
	}
}

// SetLevel 运行期调整日志级别
func (l *Logger) SetLevel(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %s: %w", level, err)
	}
	l.level.SetLevel(lvl)
	return nil
}

// Level 当前日志级别
func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

// WithFields 添加字段返回新的logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{
		Logger: l.Logger.With(toFields(fields)...),
		level:  l.level,
		config: l.config,
	}
}

// LogTrade 记录成交相关事件
func (l *Logger) LogTrade(event string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	checkSchema(event, fields)
	fields["event"] = event
	fields["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	l.Info("trade_event", toFields(fields)...)
}

// LogError 记录错误并附带上下文
func (l *Logger) LogError(err error, context map[string]interface{}) {
	if context == nil {
		context = make(map[string]interface{})
	}
	context["error"] = err.Error()
	context["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	l.Error("error_event", toFields(context)...)
}

// LogAlert 记录价格告警
func (l *Logger) LogAlert(message string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["alert"] = message
	checkSchema(logschema.EventAlert, fields)
	fields["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	l.Warn("alert_event", toFields(fields)...)
}

// Close 刷新缓冲并关闭日志文件；可重复调用
func (l *Logger) Close() error {
	err := l.Sync()
	if l.file != nil {
		err = errors.Join(err, l.file.Close())
		l.file = nil
	}
	return err
}

// checkSchema 字段缺失时附加 schema_error，不阻断日志输出
func checkSchema(event string, fields map[string]interface{}) {
	if err := logschema.Validate(event, fields); err != nil {
		fields["schema_error"] = err.Error()
	}
}

func toFields(m map[string]interface{}) []zap.Field {
	zapFields := make([]zap.Field, 0, len(m))
	for k, v := range m {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return zapFields
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
