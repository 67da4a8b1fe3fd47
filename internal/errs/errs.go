// Package errs содержит таксономию ошибок записи.
package errs

import (
	"context"
	"errors"
	"fmt"
)

type Kind int

const (
	Other Kind = iota
	Asset
	TrackNotFound
	Codec
	Encoder
	Cancelled
	BackpressureTimeout
	Index
	Config
)

func (k Kind) String() string {
	switch k {
	case Asset:
		return "asset"
	case TrackNotFound:
		return "track not found"
	case Codec:
		return "codec"
	case Encoder:
		return "encoder"
	case Cancelled:
		return "cancelled"
	case BackpressureTimeout:
		return "backpressure timeout"
	case Index:
		return "index out of range"
	case Config:
		return "config"
	default:
		return "error"
	}
}

// Error связывает ошибку с видом и операцией, в которой она возникла.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is позволяет сравнивать по виду: errors.Is(err, &Error{Kind: Codec}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf возвращает вид первой *Error в цепочке. Отмена контекста
// считается Cancelled, даже если не была обёрнута.
func KindOf(err error) Kind {
	if err == nil {
		return Other
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}
	return Other
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// FromContext переводит ошибку контекста в Cancelled.
func FromContext(op string, ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return E(Cancelled, op, err)
	}
	return nil
}
