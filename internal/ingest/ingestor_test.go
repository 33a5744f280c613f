package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"pair-regress-go/gateway"
	"pair-regress-go/infrastructure/alert"
	"pair-regress-go/infrastructure/logger"
	"pair-regress-go/internal/store"
	"pair-regress-go/market"
)

// scriptSource 依次返回预置消息，耗尽后执行 onDrain 并返回 tailErr（为空时等待 ctx 结束）。
type scriptSource struct {
	msgs    []string
	onDrain func()
	tailErr error
	closed  bool
}

func (s *scriptSource) Recv(ctx context.Context) ([]byte, error) {
	if len(s.msgs) > 0 {
		m := s.msgs[0]
		s.msgs = s.msgs[1:]
		return []byte(m), nil
	}
	if s.onDrain != nil {
		s.onDrain()
		s.onDrain = nil
	}
	if s.tailErr != nil {
		return nil, s.tailErr
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *scriptSource) Close() error {
	s.closed = true
	return nil
}

type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.calls = append(r.calls, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) count(d time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == d {
			n++
		}
	}
	return n
}

func testConfig(symbol string) Config {
	cfg := DefaultConfig(symbol)
	cfg.SuccessPause = time.Second
	cfg.ErrorPause = 10 * time.Second
	cfg.MinBackoff = 3 * time.Second
	cfg.MaxBackoff = 12 * time.Second
	return cfg
}

func dialSources(sources ...gateway.Source) gateway.Dialer {
	var mu sync.Mutex
	return func(ctx context.Context, symbol string) (gateway.Source, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(sources) == 0 {
			return nil, errors.New("no more sources")
		}
		s := sources[0]
		sources = sources[1:]
		return s, nil
	}
}

func TestRunEndToEndDropsMalformedTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptSource{
		msgs: []string{
			`{"s":"ETHUSDT","p":"2000.00"}`,
			`{"s":"ETHUSDT","p":"2001.00"}`,
			`{"s":"ETHUSDT","p":"2002.00"}`,
			`{"s":"ETHUSDT"`,
			`{"s":"ETHUSDT","p":"2003.00"}`,
			`{"s":"ETHUSDT","p":"2004.00"}`,
		},
		onDrain: cancel,
	}
	st := store.NewMemoryStore()
	rec := &sleepRecorder{}
	ing := New(testConfig("ethusdt"), dialSources(src), st, nil, nil, nil)
	ing.SetSleeper(rec.sleep)

	err := ing.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsCanceled(err))

	rows, err := st.QueryBySymbol(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Len(t, rows, 5)
	assert.Equal(t, 1, rec.count(10*time.Second), "backoff observed once")
	assert.Equal(t, 5, rec.count(time.Second))

	stats := ing.Stats()
	assert.Equal(t, int64(6), stats.Received)
	assert.Equal(t, int64(5), stats.Stored)
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, int64(1), stats.Backoffs)
	assert.True(t, src.closed)
}

func TestHandleTradeStoresCanonicalRecord(t *testing.T) {
	st := store.NewMemoryStore()
	fixed := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	ing := New(testConfig("btcusdt"), nil, st, nil, nil, nil)
	ing.SetClock(func() time.Time { return fixed })

	require.NoError(t, ing.HandleTrade(context.Background(), []byte(`{"s":"btcusdt","p":"42000.5"}`)))

	rows, _ := st.All(context.Background())
	require.Len(t, rows, 1)
	assert.Equal(t, "BTCUSDT", rows[0].Symbol)
	assert.True(t, rows[0].Price.Equal(decimal.RequireFromString("42000.5")))
	assert.Equal(t, fixed, rows[0].Timestamp)
}

func TestHandleTradeErrorKinds(t *testing.T) {
	st := store.NewMemoryStore()
	ing := New(testConfig("ethusdt"), nil, st, nil, nil, nil)

	err := ing.HandleTrade(context.Background(), []byte(`{"p":"1"}`))
	assert.ErrorIs(t, err, ErrParse)
	assert.ErrorIs(t, err, gateway.ErrMalformedTrade)

	st.InsertErr = errors.New("disk full")
	err = ing.HandleTrade(context.Background(), []byte(`{"s":"ETHUSDT","p":"1"}`))
	assert.ErrorIs(t, err, ErrStore)
	assert.Equal(t, "store", KindName(err))
}

func TestStoreErrorTriggersErrorPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := store.NewMemoryStore()
	st.InsertErr = errors.New("read-only transaction")
	src := &scriptSource{msgs: []string{`{"s":"ETHUSDT","p":"1"}`}, onDrain: cancel}
	rec := &sleepRecorder{}
	ing := New(testConfig("ethusdt"), dialSources(src), st, nil, nil, nil)
	ing.SetSleeper(rec.sleep)

	_ = ing.Run(ctx)
	assert.Equal(t, 1, rec.count(10*time.Second))
	assert.Zero(t, ing.Stats().Stored)
}

func TestWatchedIngestorRaisesAlert(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mock := alert.NewMockChannel("mock")
	w := market.NewPriceWatcher("ethusdt", 1, alert.NewManager([]alert.Channel{mock}, 0))
	src := &scriptSource{
		msgs:    []string{`{"s":"ETHUSDT","p":"100"}`, `{"s":"ETHUSDT","p":"101.2"}`, `{"s":"ETHUSDT","p":"101.3"}`},
		onDrain: cancel,
	}
	rec := &sleepRecorder{}
	ing := New(testConfig("ethusdt"), dialSources(src), store.NewMemoryStore(), nil, w, nil)
	ing.SetSleeper(rec.sleep)

	_ = ing.Run(ctx)
	require.Equal(t, 1, mock.Count())
	assert.Contains(t, mock.GetAlerts()[0].Message, "+1%")
	assert.Equal(t, int64(1), ing.Stats().Alerts)
}

func TestRunEvictsAlongsideIngestion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := store.NewMemoryStore()
	now := time.Now()
	_, _ = st.Insert(context.Background(), "ETHUSDT", decimal.NewFromInt(1), now.Add(-2*time.Hour))
	_, _ = st.Insert(context.Background(), "BTCUSDT", decimal.NewFromInt(1), now.Add(-2*time.Hour))

	src := &scriptSource{msgs: []string{`{"s":"ETHUSDT","p":"5"}`}, onDrain: cancel}
	rec := &sleepRecorder{}
	ev := NewEvictor(st, "ETHUSDT", time.Hour, nil)
	ing := New(testConfig("ethusdt"), dialSources(src), st, ev, nil, nil)
	ing.SetSleeper(rec.sleep)

	_ = ing.Run(ctx)
	rows, _ := st.All(context.Background())
	require.Len(t, rows, 2)
	assert.Equal(t, "BTCUSDT", rows[0].Symbol)
	assert.Equal(t, int64(1), ing.Stats().Evicted)
}

func TestRunReconnectsWithBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := &scriptSource{msgs: []string{`{"s":"ETHUSDT","p":"1"}`}, tailErr: gateway.ErrStreamClosed}
	second := &scriptSource{msgs: []string{`{"s":"ETHUSDT","p":"2"}`}, onDrain: cancel}
	st := store.NewMemoryStore()
	rec := &sleepRecorder{}
	ing := New(testConfig("ethusdt"), dialSources(first, second), st, nil, nil, nil)
	ing.SetSleeper(rec.sleep)

	err := ing.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1), ing.Stats().Reconnects)
	assert.Equal(t, 1, rec.count(3*time.Second), "first reconnect waits MinBackoff")
	cnt, _ := st.Count(context.Background())
	assert.Equal(t, int64(2), cnt)
	assert.True(t, first.closed)
}

func TestRunLogsRetentionOnConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	core, logs := observer.New(zap.InfoLevel)
	log := logger.Wrap(zap.New(core))
	st := store.NewMemoryStore()
	src := &scriptSource{onDrain: cancel}
	ev := NewEvictor(st, "ETHUSDT", 90*time.Minute, log)
	ing := New(testConfig("ethusdt"), dialSources(src), st, ev, nil, log)

	_ = ing.Run(ctx)
	entries := logs.FilterMessage("trade stream connected").All()
	require.Len(t, entries, 1)
	assert.Equal(t, 90*time.Minute, entries[0].ContextMap()["retention"])
	assert.Equal(t, "ETHUSDT", entries[0].ContextMap()["symbol"])
}

func TestRunInitialDialFailure(t *testing.T) {
	ing := New(testConfig("ethusdt"), dialSources(), store.NewMemoryStore(), nil, nil, nil)
	err := ing.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestNextBackoffIsBounded(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextBackoff(time.Second, 30*time.Second))
	assert.Equal(t, 30*time.Second, nextBackoff(20*time.Second, 30*time.Second))
}
