package ingest

import (
	"errors"
	"fmt"
)

// 错误类型，调用方用 errors.Is 区分并选择不同的退避策略。
var (
	ErrParse     = errors.New("parse error")
	ErrStore     = errors.New("store error")
	ErrTransport = errors.New("transport error")
)

// PipelineError 带上下文的处理错误。
type PipelineError struct {
	Kind   error // ErrParse / ErrStore / ErrTransport
	Symbol string
	Op     string
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Symbol, e.Op, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindName 返回错误类别的指标标签。
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrStore):
		return "store"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}

func newError(kind error, symbol, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Symbol: symbol, Op: op, Err: err}
}
