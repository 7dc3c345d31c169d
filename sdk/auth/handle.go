package auth

import (
	"errors"
	"strings"
	"sync"
)

// ErrHandleClosed is returned by SubmitCode once the attempt has finished.
var ErrHandleClosed = errors.New("auth: authentication attempt has finished")

// Handle is the caller's side of one authentication attempt.
//
// States yields the attempt's progress in order and is closed after the terminal
// state. Callers should drain it. SubmitCode and Cancel steer the attempt while it runs.
type Handle struct {
	States <-chan AuthState

	codes  chan<- string
	cancel chan struct{}
	done   chan struct{}

	triggerOnce sync.Once
}

func newHandle() (*Handle, *flow) {
	done := make(chan struct{})
	stateIn, stateOut := unbounded[AuthState](nil)
	codeIn, codeOut := unbounded[string](done)
	cancel := make(chan struct{}, 1)

	h := &Handle{
		States: stateOut,
		codes:  codeIn,
		cancel: cancel,
		done:   done,
	}
	f := &flow{
		states: stateIn,
		codes:  codeOut,
		cancel: cancel,
		done:   done,
	}
	return h, f
}

// SubmitCode queues an authorization code for the attempt. Codes submitted before
// the attempt asks for one are kept until it does.
func (h *Handle) SubmitCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("auth: authorization code is empty")
	}
	select {
	case <-h.done:
		return ErrHandleClosed
	default:
	}
	select {
	case h.codes <- code:
		return nil
	case <-h.done:
		return ErrHandleClosed
	}
}

// Cancel fires the single-use cancellation trigger. It returns true only for the
// call that fired it while the attempt was still running.
func (h *Handle) Cancel() bool {
	fired := false
	h.triggerOnce.Do(func() {
		select {
		case <-h.done:
			return
		default:
		}
		h.cancel <- struct{}{}
		fired = true
	})
	return fired
}

// Release gives up the cancellation trigger without firing it. The attempt keeps
// running to its own conclusion and Cancel becomes a no-op.
func (h *Handle) Release() {
	h.triggerOnce.Do(func() {
		close(h.cancel)
	})
}

// Done is closed once the attempt has emitted its terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait drains States and returns the terminal state.
func (h *Handle) Wait() AuthState {
	var last AuthState
	for s := range h.States {
		last = s
	}
	return last
}
