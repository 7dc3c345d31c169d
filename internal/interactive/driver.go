package interactive

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/router-for-me/ClaudeSessionAuth/internal/config"
	"github.com/router-for-me/ClaudeSessionAuth/internal/container"
	log "github.com/sirupsen/logrus"
)

const (
	keyEnter      = "\r"
	exitDirective = "/exit" + keyEnter

	defaultTimeout = 120 * time.Second
	defaultSettle  = 200 * time.Millisecond
)

// Options configures a Driver.
type Options struct {
	// ContainerID is the container the CLI runs in.
	ContainerID string
	// Spec describes the CLI process. Tty is always enabled.
	Spec container.ExecSpec
	// Timeout bounds the whole run.
	Timeout time.Duration
	// Settle is the pause after each reaction that lets partially written screens finish.
	Settle time.Duration
}

// OptionsFromConfig builds Options for containerID from the interactive config section.
func OptionsFromConfig(cfg config.InteractiveConfig, containerID string) Options {
	return Options{
		ContainerID: containerID,
		Spec: container.ExecSpec{
			Cmd:        append([]string(nil), cfg.Command...),
			Env:        append([]string(nil), cfg.Env...),
			WorkingDir: cfg.WorkingDir,
			Tty:        true,
		},
		Timeout: cfg.Timeout(),
		Settle:  cfg.Settle(),
	}
}

// Driver runs one interactive CLI login.
type Driver struct {
	transport container.Transport
	opts      Options
}

// NewDriver creates a driver that starts the CLI through transport.
func NewDriver(transport container.Transport, opts Options) *Driver {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	} else if opts.Settle == 0 {
		opts.Settle = defaultSettle
	}
	if len(opts.Spec.Cmd) == 0 {
		opts.Spec.Cmd = []string{"claude"}
	}
	opts.Spec.Tty = true
	return &Driver{transport: transport, opts: opts}
}

// Run starts the CLI and answers its screens until login completes or fails.
//
// A value received on cancel aborts the run with Error("cancelled"); a closed cancel
// channel only means nobody will cancel. Codes received on codes are typed at the
// code prompt, queued if they arrive before it. notify observes ProvideURL and
// WaitingForCode, each at most once per distinct value, in the order the screens appear.
//
// Returns:
//   - LoginState: Completed, or Error with a diagnostic message
func (d *Driver) Run(ctx context.Context, cancel <-chan struct{}, codes <-chan string, notify func(LoginState)) LoginState {
	if notify == nil {
		notify = func(LoginState) {}
	}
	entry := log.WithField("container", d.opts.ContainerID)

	execID, err := d.transport.CreateExec(ctx, d.opts.ContainerID, d.opts.Spec)
	if err != nil {
		return loginError("failed to create login process: %v", err)
	}
	entry = entry.WithField("exec", execID)
	sess, err := d.transport.StartExec(ctx, execID, true)
	if err != nil {
		return loginError("failed to start login process: %v", err)
	}
	defer func() {
		if errClose := sess.Close(); errClose != nil {
			entry.Debugf("failed to close login process: %v", errClose)
		}
	}()

	r := &loginRun{
		driver: d,
		entry:  entry,
		stdin:  sess.Stdin,
		notify: notify,
		last:   LoginState{Kind: DarkMode},
	}

	deadline := time.NewTimer(d.opts.Timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return loginError("%v", ctx.Err())

		case <-deadline.C:
			entry.Warn("interactive login timed out")
			return loginError("timed out")

		case _, ok := <-cancel:
			if !ok {
				cancel = nil
				continue
			}
			return loginError("cancelled")

		case code, ok := <-codes:
			if !ok {
				codes = nil
				continue
			}
			if cancelFired(&cancel) {
				return loginError("cancelled")
			}
			if result, done := r.submit(code); done {
				return result
			}

		case chunk, ok := <-sess.Output:
			if !ok {
				return r.exited(ctx, sess, execID)
			}
			if cancelFired(&cancel) {
				return loginError("cancelled")
			}
			acted, result, done := r.handle(string(chunk.Data))
			if done {
				return result
			}
			if !acted {
				continue
			}
			if result, done = d.settle(ctx, &cancel, deadline.C); done {
				return result
			}
		}
	}
}

// settle waits out the settle delay. Cancellation and the deadline end the run early.
func (d *Driver) settle(ctx context.Context, cancel *<-chan struct{}, deadline <-chan time.Time) (LoginState, bool) {
	if d.opts.Settle == 0 {
		return LoginState{}, false
	}
	timer := time.NewTimer(d.opts.Settle)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return LoginState{}, false
		case <-ctx.Done():
			return loginError("%v", ctx.Err()), true
		case <-deadline:
			return loginError("timed out"), true
		case _, ok := <-*cancel:
			if !ok {
				*cancel = nil
				continue
			}
			return loginError("cancelled"), true
		}
	}
}

// cancelFired polls cancel without blocking. A closed channel is replaced by nil so
// it is never read again.
func cancelFired(cancel *<-chan struct{}) bool {
	if *cancel == nil {
		return false
	}
	select {
	case _, ok := <-*cancel:
		if !ok {
			*cancel = nil
			return false
		}
		return true
	default:
		return false
	}
}

// loginRun is the bookkeeping of a single Run.
type loginRun struct {
	driver *Driver
	entry  *log.Entry
	stdin  io.Writer
	notify func(LoginState)

	last          LoginState
	url           string
	urlPending    bool
	notifiedURL   string
	notifiedCode  bool
	awaitingCode  bool
	pendingCodes  []string
	promptPending bool
	loginFinished bool
}

// handle classifies one output chunk and reacts to it. acted reports whether the
// screen caused a keystroke or a notification.
func (r *loginRun) handle(raw string) (acted bool, result LoginState, done bool) {
	text := StripANSI(raw)
	state, matched := classify(text)
	if !matched {
		if r.urlPending {
			if u := extractURL(text); u != "" {
				state, matched = LoginState{Kind: ProvideURL, URL: u}, true
			}
		}
		if !matched && (r.awaitingCode || r.loginFinished) {
			// Unrecognized output while a prompt is pending carries no new screen.
			return false, LoginState{}, false
		}
	}
	if state.Kind != r.last.Kind {
		r.entry.WithField("state", state.Kind).Debug("login screen changed")
	}
	r.last = state

	switch state.Kind {
	case DarkMode, SelectLoginMethod, PressEnterToRetry, SecurityNotes:
		if state.Kind == PressEnterToRetry {
			r.awaitingCode = false
		}
		return r.write(keyEnter)

	case ProvideURL:
		if state.URL == "" {
			r.urlPending = true
			r.promptPending = r.promptPending || showsCodePrompt(text)
			return false, LoginState{}, false
		}
		r.publishURL(state.URL)
		if r.promptPending || showsCodePrompt(text) {
			r.promptPending = false
			return r.awaitCode()
		}
		return true, LoginState{}, false

	case WaitingForCode:
		if r.urlPending {
			if u := extractURL(text); u != "" {
				r.publishURL(u)
			}
		}
		return r.awaitCode()

	case LoginSuccessful:
		r.awaitingCode = false
		r.loginFinished = true
		return r.write(exitDirective)

	case TrustFiles:
		if _, result, done := r.write(keyEnter); done {
			return true, result, true
		}
		return true, LoginState{Kind: Completed, Message: "login completed"}, true
	}
	return false, LoginState{}, false
}

// publishURL records the sign-in URL and notifies it once per distinct URL.
func (r *loginRun) publishURL(u string) {
	r.urlPending = false
	r.url = u
	if u != r.notifiedURL {
		r.notifiedURL = u
		r.notifiedCode = false
		r.notify(LoginState{Kind: ProvideURL, URL: u})
	}
}

// awaitCode marks the code prompt as showing and types the oldest queued code.
func (r *loginRun) awaitCode() (bool, LoginState, bool) {
	r.awaitingCode = true
	if !r.notifiedCode {
		r.notifiedCode = true
		r.notify(LoginState{Kind: WaitingForCode})
	}
	if len(r.pendingCodes) > 0 {
		code := r.pendingCodes[0]
		r.pendingCodes = r.pendingCodes[1:]
		return r.typeCode(code)
	}
	return true, LoginState{}, false
}

// submit types code when the prompt is showing and queues it otherwise.
func (r *loginRun) submit(code string) (LoginState, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return LoginState{}, false
	}
	if !r.awaitingCode {
		r.pendingCodes = append(r.pendingCodes, code)
		r.entry.Debug("authorization code queued until the prompt appears")
		return LoginState{}, false
	}
	_, result, done := r.typeCode(code)
	return result, done
}

func (r *loginRun) typeCode(code string) (bool, LoginState, bool) {
	r.awaitingCode = false
	r.entry.Info("submitting authorization code to login process")
	return r.write(code + keyEnter)
}

func (r *loginRun) write(input string) (bool, LoginState, bool) {
	if _, err := io.WriteString(r.stdin, input); err != nil {
		return true, loginError("failed to write to login process: %v", err), true
	}
	return true, LoginState{}, false
}

// exited decides the outcome once the CLI's output has ended.
func (r *loginRun) exited(ctx context.Context, sess *container.Session, execID string) LoginState {
	if errStream := sess.Err(); errStream != nil {
		return loginError("login process output failed: %v", errStream)
	}
	if r.loginFinished {
		return LoginState{Kind: Completed, Message: "login completed"}
	}
	status, err := r.driver.transport.InspectExec(ctx, execID)
	if err != nil {
		return loginError("login process exited before completing: %v", err)
	}
	r.entry.WithField("status", status.ExitCode).Warn("login process exited before completing")
	return loginError("login process exited before completing (exit code %d)", status.ExitCode)
}

