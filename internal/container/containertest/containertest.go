// Package containertest provides in-memory implementations of the container
// interfaces for tests: a transport that replays scripted terminal output and
// a file map standing in for a container filesystem.
package containertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/router-for-me/ClaudeSessionAuth/internal/container"
)

// Step is one scripted screen. When WaitFor is set, Output is held back until
// the driver has written input containing WaitFor since the previous step.
type Step struct {
	WaitFor string
	Output  string
}

// ScriptedTransport replays Steps on every started exec.
type ScriptedTransport struct {
	Steps []Step
	// ExitCode is reported by InspectExec once the script is exhausted.
	ExitCode int
	// HoldOpen keeps the output stream open after the last step until Close.
	HoldOpen bool

	CreateErr error
	StartErr  error

	mu      sync.Mutex
	specs   []container.ExecSpec
	input   strings.Builder
	writes  []string
	written chan struct{}
	closed  int
}

var _ container.Transport = (*ScriptedTransport)(nil)

// CreateExec records spec and returns a sequential exec ID.
func (s *ScriptedTransport) CreateExec(_ context.Context, containerID string, spec container.ExecSpec) (string, error) {
	if s.CreateErr != nil {
		return "", s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs = append(s.specs, spec)
	return fmt.Sprintf("%s-exec-%d", containerID, len(s.specs)), nil
}

// StartExec starts replaying the script.
func (s *ScriptedTransport) StartExec(_ context.Context, _ string, _ bool) (*container.Session, error) {
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	s.mu.Lock()
	s.written = make(chan struct{}, 1)
	written := s.written
	s.mu.Unlock()

	out := make(chan container.Chunk)
	done := make(chan struct{})
	var once sync.Once
	sess := container.NewSession(stdinRecorder{s}, out, func() error {
		once.Do(func() {
			close(done)
			s.mu.Lock()
			s.closed++
			s.mu.Unlock()
		})
		return nil
	})

	go func() {
		defer close(out)
		pos := 0
		for _, step := range s.Steps {
			if step.WaitFor != "" {
				for {
					s.mu.Lock()
					all := s.input.String()
					s.mu.Unlock()
					if idx := strings.Index(all[pos:], step.WaitFor); idx >= 0 {
						pos += idx + len(step.WaitFor)
						break
					}
					select {
					case <-written:
					case <-done:
						return
					}
				}
			}
			if step.Output == "" {
				continue
			}
			select {
			case out <- container.Chunk{Stream: container.Console, Data: []byte(step.Output)}:
			case <-done:
				return
			}
		}
		if s.HoldOpen {
			<-done
		}
	}()
	return sess, nil
}

// InspectExec reports the configured exit code.
func (s *ScriptedTransport) InspectExec(context.Context, string) (container.ExecStatus, error) {
	return container.ExecStatus{Running: false, ExitCode: s.ExitCode}, nil
}

// Writes returns every stdin write in order.
func (s *ScriptedTransport) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

// Specs returns the specs passed to CreateExec.
func (s *ScriptedTransport) Specs() []container.ExecSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]container.ExecSpec(nil), s.specs...)
}

// Closed reports how many sessions were closed.
func (s *ScriptedTransport) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type stdinRecorder struct{ s *ScriptedTransport }

func (r stdinRecorder) Write(p []byte) (int, error) {
	r.s.mu.Lock()
	r.s.writes = append(r.s.writes, string(p))
	r.s.input.Write(p)
	written := r.s.written
	r.s.mu.Unlock()
	select {
	case written <- struct{}{}:
	default:
	}
	return len(p), nil
}

// Files is an in-memory container filesystem keyed by container ID and path.
type Files struct {
	mu    sync.Mutex
	files map[string][]byte
	// Err, when set, is returned by every operation.
	Err error
}

var _ container.FileAccess = (*Files)(nil)

// NewFiles returns an empty filesystem.
func NewFiles() *Files {
	return &Files{files: make(map[string][]byte)}
}

func fileKey(containerID, path string) string { return containerID + ":" + path }

func (f *Files) ReadFile(_ context.Context, containerID, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	data, ok := f.files[fileKey(containerID, path)]
	if !ok {
		return nil, container.ErrFileNotFound
	}
	return append([]byte(nil), data...), nil
}

func (f *Files) WriteFile(_ context.Context, containerID, path string, data []byte, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.files[fileKey(containerID, path)] = append([]byte(nil), data...)
	return nil
}

func (f *Files) RemoveFile(_ context.Context, containerID, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	delete(f.files, fileKey(containerID, path))
	return nil
}

// Has reports whether path exists in the container.
func (f *Files) Has(containerID, path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[fileKey(containerID, path)]
	return ok
}
