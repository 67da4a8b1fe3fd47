// Package result publishes the state of a recording: Idle, Rendering with
// progress, then exactly one Success or Error.
package result

import (
	"fmt"

	"github.com/ivlev/scene2video/internal/errs"
)

type State int

const (
	StateIdle State = iota
	StateRendering
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateRendering:
		return "rendering"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Result is an immutable snapshot.
type Result struct {
	State     State
	Progress  float64 // [0,1) while rendering
	OutputURI string
	ByteSize  int64
	Message   string
	Err       error
}

func Idle() Result { return Result{State: StateIdle} }

func Rendering(progress float64) Result {
	return Result{State: StateRendering, Progress: progress}
}

func Success(uri string, size int64) Result {
	return Result{State: StateSuccess, Progress: 1, OutputURI: uri, ByteSize: size}
}

func Failure(err error) Result {
	if err == nil {
		err = errs.Errorf(errs.Other, "result", "unknown error")
	}
	return Result{State: StateError, Message: err.Error(), Err: err}
}

func (r Result) Terminal() bool {
	return r.State == StateSuccess || r.State == StateError
}

func (r Result) String() string {
	switch r.State {
	case StateRendering:
		return fmt.Sprintf("rendering %.1f%%", r.Progress*100)
	case StateSuccess:
		return fmt.Sprintf("success %s (%d bytes)", r.OutputURI, r.ByteSize)
	case StateError:
		return "error: " + r.Message
	default:
		return "idle"
	}
}
