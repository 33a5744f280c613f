package regression

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"pair-regress-go/infrastructure/logger"
	"pair-regress-go/internal/store"
)

// Job 绑定存储与两个交易对，可一次性执行或按 cron 周期执行。
type Job struct {
	Engine      *Engine
	Store       store.TradeStore
	Dependent   string
	Independent string
	Log         *logger.Logger
}

// RunWith 用给定快照跑一次。
func (j *Job) RunWith(ctx context.Context, dependent, independent []Sample) (Result, error) {
	res, err := j.Engine.Run(ctx, dependent, independent)
	j.report(err)
	return res, err
}

// RunOnce 重新读取两个快照后跑一次。
func (j *Job) RunOnce(ctx context.Context) (Result, error) {
	dep, err := Snapshot(ctx, j.Store, j.Dependent)
	if err != nil {
		j.report(err)
		return Result{}, err
	}
	indep, err := Snapshot(ctx, j.Store, j.Independent)
	if err != nil {
		j.report(err)
		return Result{}, err
	}
	return j.RunWith(ctx, dep, indep)
}

// Schedule 按 cron 表达式周期执行直到 ctx 结束。
func (j *Job) Schedule(ctx context.Context, spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		_, _ = j.RunOnce(ctx)
	}); err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

func (j *Job) report(err error) {
	if err == nil || j.Log == nil {
		return
	}
	if errors.Is(err, ErrEmptyStore) {
		return
	}
	j.Log.Warn("regression skipped", zap.Error(err))
}
