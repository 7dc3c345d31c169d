package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	log "github.com/sirupsen/logrus"
)

const outputBufferSize = 4096

// Docker implements Transport, FileAccess and Locator on top of the Docker Engine API.
type Docker struct {
	cli *client.Client
}

var (
	_ Transport  = (*Docker)(nil)
	_ FileAccess = (*Docker)(nil)
	_ Locator    = (*Docker)(nil)
)

// NewDocker connects to the engine described by the DOCKER_* environment variables,
// negotiating the API version with the daemon.
func NewDocker() (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker: create client: %w", err)
	}
	return &Docker{cli: cli}, nil
}

// Close releases the engine client.
func (d *Docker) Close() error {
	if d == nil || d.cli == nil {
		return nil
	}
	return d.cli.Close()
}

// FindContainer returns the ID of the running container whose name is exactly name.
func (d *Docker) FindContainer(ctx context.Context, name string) (string, error) {
	list, err := d.cli.ContainerList(ctx, dockercontainer.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return "", fmt.Errorf("docker: list containers: %w", err)
	}
	for _, c := range list {
		for _, n := range c.Names {
			if strings.TrimPrefix(n, "/") == name {
				return c.ID, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrContainerNotFound, name)
}

// CreateExec registers a process inside the container without starting it.
func (d *Docker) CreateExec(ctx context.Context, containerID string, spec ExecSpec) (string, error) {
	resp, err := d.cli.ContainerExecCreate(ctx, containerID, dockercontainer.ExecOptions{
		Cmd:          spec.Cmd,
		Env:          spec.Env,
		WorkingDir:   spec.WorkingDir,
		Tty:          spec.Tty,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("docker: create exec in %s: %w", containerID, err)
	}
	return resp.ID, nil
}

// StartExec starts a created exec and attaches to its streams.
func (d *Docker) StartExec(ctx context.Context, execID string, tty bool) (*Session, error) {
	hijacked, err := d.cli.ContainerExecAttach(ctx, execID, dockercontainer.ExecAttachOptions{Tty: tty})
	if err != nil {
		return nil, fmt.Errorf("docker: start exec %s: %w", execID, err)
	}

	out := make(chan Chunk, 16)
	done := make(chan struct{})
	var closeOnce sync.Once
	sess := NewSession(hijacked.Conn, out, func() error {
		closeOnce.Do(func() {
			close(done)
			hijacked.Close()
		})
		return nil
	})

	go func() {
		defer close(out)
		var errRead error
		if tty {
			_, errRead = io.CopyBuffer(&chunkWriter{kind: Console, out: out, done: done}, hijacked.Reader, make([]byte, outputBufferSize))
		} else {
			_, errRead = stdcopy.StdCopy(
				&chunkWriter{kind: Stdout, out: out, done: done},
				&chunkWriter{kind: Stderr, out: out, done: done},
				hijacked.Reader,
			)
		}
		select {
		case <-done:
			return
		default:
		}
		if errRead != nil && !errors.Is(errRead, io.EOF) {
			log.WithField("exec", execID).Debugf("exec output stream ended: %v", errRead)
			sess.SetErr(errRead)
		}
	}()
	return sess, nil
}

// InspectExec reports whether the exec is still running and its exit code.
func (d *Docker) InspectExec(ctx context.Context, execID string) (ExecStatus, error) {
	resp, err := d.cli.ContainerExecInspect(ctx, execID)
	if err != nil {
		return ExecStatus{}, fmt.Errorf("docker: inspect exec %s: %w", execID, err)
	}
	return ExecStatus{Running: resp.Running, ExitCode: resp.ExitCode}, nil
}

// ReadFile downloads a single file from the container.
func (d *Docker) ReadFile(ctx context.Context, containerID, filePath string) ([]byte, error) {
	rc, _, err := d.cli.CopyFromContainer(ctx, containerID, filePath)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("docker: read %s: %w", filePath, err)
	}
	defer func() {
		if errClose := rc.Close(); errClose != nil {
			log.Errorf("docker: failed to close archive stream: %v", errClose)
		}
	}()
	return extractSingleFile(rc)
}

// WriteFile uploads data as path, creating the parent directory when it is missing.
func (d *Docker) WriteFile(ctx context.Context, containerID, filePath string, data []byte, mode int64) error {
	archive, err := buildSingleFileArchive(path.Base(filePath), data, mode)
	if err != nil {
		return err
	}
	dir := path.Dir(filePath)
	err = d.cli.CopyToContainer(ctx, containerID, dir, bytes.NewReader(archive), dockercontainer.CopyToContainerOptions{})
	if err != nil && errdefs.IsNotFound(err) {
		if _, errMkdir := d.run(ctx, containerID, []string{"mkdir", "-p", dir}); errMkdir != nil {
			return fmt.Errorf("docker: create %s: %w", dir, errMkdir)
		}
		err = d.cli.CopyToContainer(ctx, containerID, dir, bytes.NewReader(archive), dockercontainer.CopyToContainerOptions{})
	}
	if err != nil {
		return fmt.Errorf("docker: write %s: %w", filePath, err)
	}
	return nil
}

// RemoveFile deletes path with rm -f, so a missing file is not an error.
func (d *Docker) RemoveFile(ctx context.Context, containerID, filePath string) error {
	if _, err := d.run(ctx, containerID, []string{"rm", "-f", filePath}); err != nil {
		return fmt.Errorf("docker: remove %s: %w", filePath, err)
	}
	return nil
}

// run executes cmd to completion and returns its combined output.
func (d *Docker) run(ctx context.Context, containerID string, cmd []string) (string, error) {
	return RunCommand(ctx, d, containerID, cmd)
}

// RunCommand executes cmd without a TTY, waits for its output to end and
// fails when the exit code is non-zero.
func RunCommand(ctx context.Context, t Transport, containerID string, cmd []string) (string, error) {
	execID, err := t.CreateExec(ctx, containerID, ExecSpec{Cmd: cmd})
	if err != nil {
		return "", err
	}
	sess, err := t.StartExec(ctx, execID, false)
	if err != nil {
		return "", err
	}
	defer func() { _ = sess.Close() }()

	var buf bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			return buf.String(), ctx.Err()
		case chunk, ok := <-sess.Output:
			if !ok {
				if errStream := sess.Err(); errStream != nil {
					return buf.String(), errStream
				}
				status, errInspect := t.InspectExec(ctx, execID)
				if errInspect != nil {
					return buf.String(), errInspect
				}
				if status.ExitCode != 0 {
					return buf.String(), fmt.Errorf("%s exited with code %d: %s", cmd[0], status.ExitCode, strings.TrimSpace(buf.String()))
				}
				return buf.String(), nil
			}
			buf.Write(chunk.Data)
		}
	}
}

// chunkWriter forwards each write as a Chunk until done is closed.
type chunkWriter struct {
	kind StreamKind
	out  chan<- Chunk
	done <-chan struct{}
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	data := make([]byte, len(p))
	copy(data, p)
	select {
	case w.out <- Chunk{Stream: w.kind, Data: data}:
		return len(p), nil
	case <-w.done:
		return 0, io.ErrClosedPipe
	}
}
