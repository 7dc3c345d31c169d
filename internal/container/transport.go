// Package container defines the boundary between the authentication flows and the
// container runtime: creating and driving exec sessions, and reading or writing
// files inside a running container.
package container

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrFileNotFound is returned by FileAccess when the requested path does not exist.
var ErrFileNotFound = errors.New("container: file not found")

// ErrContainerNotFound is returned when no container matches a lookup.
var ErrContainerNotFound = errors.New("container: no such container")

// StreamKind tags an output chunk with the stream it came from.
type StreamKind int

const (
	Stdout StreamKind = iota
	Stderr
	Console
)

func (k StreamKind) String() string {
	switch k {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "console"
	}
}

// ExecSpec describes a process to run inside a container.
type ExecSpec struct {
	Cmd        []string
	Env        []string
	WorkingDir string
	// Tty allocates a pseudo-terminal. Output then arrives as a single Console stream.
	Tty bool
}

// Chunk is one read from an exec session's output.
type Chunk struct {
	Stream StreamKind
	Data   []byte
}

// ExecStatus reports the state of an exec session.
type ExecStatus struct {
	Running  bool
	ExitCode int
}

// Session is a started exec: stdin for keystrokes and a channel of output chunks.
// Output is closed once the process output ends; Err then reports the read error, if any.
type Session struct {
	Stdin  io.Writer
	Output <-chan Chunk

	mu     sync.Mutex
	err    error
	closer func() error
	once   sync.Once
}

// NewSession wires a session from its parts. closer is invoked once by Close.
func NewSession(stdin io.Writer, output <-chan Chunk, closer func() error) *Session {
	return &Session{Stdin: stdin, Output: output, closer: closer}
}

// SetErr records the error that terminated the output stream.
func (s *Session) SetErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Err returns the error that terminated the output stream.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the underlying connection. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		if s.closer != nil {
			err = s.closer()
		}
	})
	return err
}

// Transport creates and drives exec sessions inside containers.
type Transport interface {
	CreateExec(ctx context.Context, containerID string, spec ExecSpec) (string, error)
	StartExec(ctx context.Context, execID string, tty bool) (*Session, error)
	InspectExec(ctx context.Context, execID string) (ExecStatus, error)
}

// FileAccess reads and writes single files inside a container.
type FileAccess interface {
	// ReadFile returns ErrFileNotFound when path does not exist.
	ReadFile(ctx context.Context, containerID, path string) ([]byte, error)
	WriteFile(ctx context.Context, containerID, path string, data []byte, mode int64) error
	// RemoveFile succeeds when path is already absent.
	RemoveFile(ctx context.Context, containerID, path string) error
}

// Locator resolves a container name to its ID.
type Locator interface {
	FindContainer(ctx context.Context, name string) (string, error)
}
