package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pair-regress-go/market"
)

// BinanceSpotWSEndpoint 现货行情默认入口。
const BinanceSpotWSEndpoint = "wss://stream.binance.com:9443"

// ErrStreamClosed 表示连接已断开或已被关闭。
var ErrStreamClosed = errors.New("trade stream closed")

// Source 是逐条拉取原始消息的行情源。
type Source interface {
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer 为某个交易对建立 Source。
type Dialer func(ctx context.Context, symbol string) (Source, error)

// StreamConfig 单连接参数。
type StreamConfig struct {
	Endpoint     string        // 默认 BinanceSpotWSEndpoint
	PingInterval time.Duration // keepalive ping 周期，0 表示不主动 ping
	ReadTimeout  time.Duration // 超过该时间没有任何帧视为断线，0 表示不限
	QueueSize    int           // 入站队列深度，满时停止读 socket
	Dialer       *websocket.Dialer
}

// StreamURL 返回 {endpoint}/ws/{symbol}@trade。
func StreamURL(endpoint, symbol string) string {
	if endpoint == "" {
		endpoint = BinanceSpotWSEndpoint
	}
	return fmt.Sprintf("%s/ws/%s@trade", strings.TrimRight(endpoint, "/"), market.StreamSymbol(symbol))
}

// NewDialer 返回使用 cfg 建立 TradeStream 的 Dialer。
func NewDialer(cfg StreamConfig) Dialer {
	return func(ctx context.Context, symbol string) (Source, error) {
		return DialTradeStream(ctx, symbol, cfg)
	}
}

// TradeStream 管理单个 @trade 订阅：后台 goroutine 读 socket 写入有界队列，
// 另一个 goroutine 定时 ping。队列满时读 goroutine 阻塞，TCP 窗口随之收紧，
// 慢消费者不会导致内存无限增长。
type TradeStream struct {
	symbol string
	conn   *websocket.Conn
	msgs   chan []byte
	done   chan struct{}

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

// DialTradeStream 建立连接并启动读/ping 循环。
func DialTradeStream(ctx context.Context, symbol string, cfg StreamConfig) (*TradeStream, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = 32
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	conn, _, err := dialer.DialContext(ctx, StreamURL(cfg.Endpoint, symbol), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", symbol, err)
	}

	s := &TradeStream{
		symbol: symbol,
		conn:   conn,
		msgs:   make(chan []byte, queue),
		done:   make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		s.extendDeadline(cfg.ReadTimeout)
		return nil
	})
	go s.readLoop(cfg.ReadTimeout)
	if cfg.PingInterval > 0 {
		go s.pingLoop(cfg.PingInterval)
	}
	return s, nil
}

// Symbol 订阅的交易对。
func (s *TradeStream) Symbol() string { return s.symbol }

// Recv 阻塞直到下一条消息；连接断开后返回包装了 ErrStreamClosed 的错误。
func (s *TradeStream) Recv(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-s.msgs:
		if !ok {
			return nil, s.closeErr()
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close 发送 close 帧并关闭底层连接；不等待对端回应。
func (s *TradeStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

func (s *TradeStream) readLoop(readTimeout time.Duration) {
	defer close(s.msgs)
	for {
		s.extendDeadline(readTimeout)
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(err)
			return
		}
		select {
		case s.msgs <- msg:
		case <-s.done:
			s.setErr(nil)
			return
		}
	}
}

func (s *TradeStream) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (s *TradeStream) extendDeadline(d time.Duration) {
	if d > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(d))
	}
}

func (s *TradeStream) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		if err == nil {
			s.err = ErrStreamClosed
		} else {
			s.err = fmt.Errorf("%w: %v", ErrStreamClosed, err)
		}
	}
}

func (s *TradeStream) closeErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		return ErrStreamClosed
	}
	return s.err
}
