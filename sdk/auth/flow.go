package auth

import (
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

// flow is the background side of a Handle. It is the only writer of the state stream.
type flow struct {
	states chan<- AuthState
	codes  <-chan string
	cancel <-chan struct{}
	done   chan struct{}

	entry    *log.Entry
	terminal bool
}

// emit forwards s unless a terminal state was already sent.
func (f *flow) emit(s AuthState) {
	if f.terminal {
		f.entry.WithField("state", s.Kind).Warn("dropping state emitted after the terminal state")
		return
	}
	f.terminal = s.Terminal()
	f.entry.WithField("state", s.Kind).Debug("authentication state")
	f.states <- s
}

// fail emits Failed with a formatted diagnostic.
func (f *flow) fail(format string, args ...any) {
	f.emit(Failed(fmt.Sprintf(format, args...)))
}

// finish runs after the strategy returns. It converts a panic into Failed, makes
// sure a terminal state was sent, marks the attempt done and closes the stream.
func (f *flow) finish(recovered any) {
	if recovered != nil {
		f.entry.WithFields(log.Fields{
			"panic": recovered,
			"stack": string(debug.Stack()),
		}).Error("authentication flow panicked")
		f.fail("internal error: %v", recovered)
	}
	if !f.terminal {
		f.fail("authentication ended without a result")
	}
	close(f.done)
	close(f.states)
}

// cancelled polls the cancellation trigger without blocking. A closed trigger was
// released by the caller and is never read again.
func (f *flow) cancelled() bool {
	if f.cancel == nil {
		return false
	}
	select {
	case _, ok := <-f.cancel:
		if !ok {
			f.cancel = nil
			return false
		}
		return true
	default:
		return false
	}
}
