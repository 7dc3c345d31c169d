package interactive

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/router-for-me/ClaudeSessionAuth/internal/config"
	"github.com/router-for-me/ClaudeSessionAuth/internal/container"
	"github.com/router-for-me/ClaudeSessionAuth/internal/container/containertest"
)

func loginScript() []containertest.Step {
	return []containertest.Step{
		{Output: "Dark mode"},
		{Output: "Select login method:"},
		{Output: "Use the url below to sign in: https://x"},
		{Output: "Paste code here if prompted:"},
		{WaitFor: "ABC123", Output: "Login successful"},
		{Output: "Do you trust the files in this folder?"},
	}
}

type recorder struct {
	mu     sync.Mutex
	states []LoginState
	hooks  map[LoginKind]func()
}

func (r *recorder) notify(s LoginState) {
	r.mu.Lock()
	r.states = append(r.states, s)
	hook := r.hooks[s.Kind]
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (r *recorder) seen() []LoginState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LoginState(nil), r.states...)
}

func testDriver(tr *containertest.ScriptedTransport, timeout time.Duration) *Driver {
	return NewDriver(tr, Options{
		ContainerID: "c1",
		Spec:        container.ExecSpec{Cmd: []string{"claude"}, WorkingDir: "/workspace"},
		Timeout:     timeout,
		Settle:      time.Millisecond,
	})
}

func TestDriverCompletesScriptedLogin(t *testing.T) {
	tr := &containertest.ScriptedTransport{Steps: loginScript()}
	codes := make(chan string, 1)
	rec := &recorder{hooks: map[LoginKind]func(){
		WaitingForCode: func() { codes <- "ABC123" },
	}}

	result := testDriver(tr, 5*time.Second).Run(context.Background(), make(chan struct{}), codes, rec.notify)
	if result.Kind != Completed {
		t.Fatalf("result = %v, want completed", result)
	}

	wantStates := []LoginState{{Kind: ProvideURL, URL: "https://x"}, {Kind: WaitingForCode}}
	if got := rec.seen(); !reflect.DeepEqual(got, wantStates) {
		t.Fatalf("notifications = %v, want %v", got, wantStates)
	}
	wantWrites := []string{"\r", "\r", "ABC123\r", "/exit\r", "\r"}
	if got := tr.Writes(); !reflect.DeepEqual(got, wantWrites) {
		t.Fatalf("writes = %q, want %q", got, wantWrites)
	}
	specs := tr.Specs()
	if len(specs) != 1 || !specs[0].Tty {
		t.Fatalf("exec specs = %+v, want one tty exec", specs)
	}
	if tr.Closed() != 1 {
		t.Fatalf("closed sessions = %d, want 1", tr.Closed())
	}
}

func TestDriverQueuesEarlyCode(t *testing.T) {
	tr := &containertest.ScriptedTransport{Steps: loginScript()}
	codes := make(chan string, 1)
	codes <- "ABC123"
	rec := &recorder{}

	result := testDriver(tr, 5*time.Second).Run(context.Background(), nil, codes, rec.notify)
	if result.Kind != Completed {
		t.Fatalf("result = %v, want completed", result)
	}
	writes := tr.Writes()
	if len(writes) < 3 || writes[2] != "ABC123\r" {
		t.Fatalf("writes = %q, want the code typed at the prompt", writes)
	}
}

func TestDriverIgnoresClosedCancel(t *testing.T) {
	tr := &containertest.ScriptedTransport{Steps: loginScript()}
	cancel := make(chan struct{})
	close(cancel)
	codes := make(chan string, 1)
	rec := &recorder{hooks: map[LoginKind]func(){
		WaitingForCode: func() { codes <- "ABC123" },
	}}

	result := testDriver(tr, 5*time.Second).Run(context.Background(), cancel, codes, rec.notify)
	if result.Kind != Completed {
		t.Fatalf("result = %v, want completed despite closed cancel channel", result)
	}
}

func TestDriverCancelMidRun(t *testing.T) {
	tr := &containertest.ScriptedTransport{Steps: loginScript()[:4], HoldOpen: true}
	cancel := make(chan struct{}, 1)
	rec := &recorder{hooks: map[LoginKind]func(){
		WaitingForCode: func() { cancel <- struct{}{} },
	}}

	result := testDriver(tr, 5*time.Second).Run(context.Background(), cancel, nil, rec.notify)
	if result.Kind != Error || result.Message != "cancelled" {
		t.Fatalf("result = %v, want error(cancelled)", result)
	}
	if tr.Closed() != 1 {
		t.Fatalf("closed sessions = %d, want 1", tr.Closed())
	}
}

func TestDriverCancelWinsOverPendingCode(t *testing.T) {
	tr := &containertest.ScriptedTransport{Steps: loginScript()[:4], HoldOpen: true}
	cancel := make(chan struct{}, 1)
	codes := make(chan string, 1)
	rec := &recorder{hooks: map[LoginKind]func(){
		WaitingForCode: func() {
			cancel <- struct{}{}
			codes <- "ABC123"
		},
	}}

	result := testDriver(tr, 5*time.Second).Run(context.Background(), cancel, codes, rec.notify)
	if result.Kind != Error || result.Message != "cancelled" {
		t.Fatalf("result = %v, want error(cancelled)", result)
	}
	for _, w := range tr.Writes() {
		if strings.Contains(w, "ABC123") {
			t.Fatalf("writes = %q, code typed after cancellation", tr.Writes())
		}
	}
}

func TestDriverCombinedURLAndPrompt(t *testing.T) {
	cases := []struct {
		name  string
		steps []containertest.Step
	}{
		{"one chunk", []containertest.Step{
			{Output: "Use the url below to sign in:\r\nhttps://x\r\n\r\nPaste code here if prompted >"},
		}},
		{"url after header", []containertest.Step{
			{Output: "Use the url below to sign in:"},
			{Output: "https://x\r\n\r\nPaste code here if prompted >"},
		}},
		{"prompt with header", []containertest.Step{
			{Output: "Use the url below to sign in:\r\nPaste code here if prompted >"},
			{Output: "https://x\r\n"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			steps := append([]containertest.Step{{Output: "Select login method:"}}, tc.steps...)
			steps = append(steps,
				containertest.Step{WaitFor: "ABC123", Output: "Login successful"},
				containertest.Step{Output: "Do you trust the files in this folder?"},
			)
			tr := &containertest.ScriptedTransport{Steps: steps}
			codes := make(chan string, 1)
			rec := &recorder{hooks: map[LoginKind]func(){
				WaitingForCode: func() { codes <- "ABC123" },
			}}

			result := testDriver(tr, 5*time.Second).Run(context.Background(), nil, codes, rec.notify)
			if result.Kind != Completed {
				t.Fatalf("result = %v, want completed", result)
			}
			wantStates := []LoginState{{Kind: ProvideURL, URL: "https://x"}, {Kind: WaitingForCode}}
			if got := rec.seen(); !reflect.DeepEqual(got, wantStates) {
				t.Fatalf("notifications = %v, want %v", got, wantStates)
			}
			wantWrites := []string{"\r", "ABC123\r", "/exit\r", "\r"}
			if got := tr.Writes(); !reflect.DeepEqual(got, wantWrites) {
				t.Fatalf("writes = %q, want %q", got, wantWrites)
			}
		})
	}
}

func TestDriverTimesOut(t *testing.T) {
	tr := &containertest.ScriptedTransport{
		Steps:    []containertest.Step{{Output: "Paste code here if prompted:"}},
		HoldOpen: true,
	}
	start := time.Now()
	result := testDriver(tr, 50*time.Millisecond).Run(context.Background(), nil, nil, nil)
	if result.Kind != Error || result.Message != "timed out" {
		t.Fatalf("result = %v, want error(timed out)", result)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout took %v", elapsed)
	}
}

func TestDriverProcessExit(t *testing.T) {
	t.Run("before login", func(t *testing.T) {
		tr := &containertest.ScriptedTransport{Steps: []containertest.Step{{Output: "Dark mode"}}, ExitCode: 3}
		result := testDriver(tr, 5*time.Second).Run(context.Background(), nil, nil, nil)
		if result.Kind != Error || !strings.Contains(result.Message, "exit code 3") {
			t.Fatalf("result = %v, want error with exit code", result)
		}
	})

	t.Run("after login", func(t *testing.T) {
		steps := loginScript()[:5]
		tr := &containertest.ScriptedTransport{Steps: steps}
		codes := make(chan string, 1)
		codes <- "ABC123"
		result := testDriver(tr, 5*time.Second).Run(context.Background(), nil, codes, nil)
		if result.Kind != Completed {
			t.Fatalf("result = %v, want completed", result)
		}
	})
}

func TestDriverURLOnFollowingChunk(t *testing.T) {
	tr := &containertest.ScriptedTransport{
		Steps: []containertest.Step{
			{Output: "\x1b[1mUse the url below to sign in\x1b[0m"},
			{Output: "\x1b[4mhttps://claude.ai/oauth/authorize?code=true\x1b[24m\r\n"},
		},
		HoldOpen: true,
	}
	got := make(chan LoginState, 1)
	cancel := make(chan struct{}, 1)
	rec := &recorder{hooks: map[LoginKind]func(){
		ProvideURL: func() { cancel <- struct{}{} },
	}}
	go func() {
		got <- testDriver(tr, 5*time.Second).Run(context.Background(), cancel, nil, rec.notify)
	}()

	select {
	case result := <-got:
		if result.Message != "cancelled" {
			t.Fatalf("result = %v", result)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("driver did not finish")
	}
	states := rec.seen()
	if len(states) != 1 || states[0].URL != "https://claude.ai/oauth/authorize?code=true" {
		t.Fatalf("notifications = %v", states)
	}
}

func TestDriverStartErrors(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name string
		tr   *containertest.ScriptedTransport
		want string
	}{
		{"create", &containertest.ScriptedTransport{CreateErr: boom}, "failed to create login process"},
		{"start", &containertest.ScriptedTransport{StartErr: boom}, "failed to start login process"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := testDriver(tc.tr, time.Second).Run(context.Background(), nil, nil, nil)
			if result.Kind != Error || !strings.Contains(result.Message, tc.want) {
				t.Fatalf("result = %v, want error containing %q", result, tc.want)
			}
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	opts := OptionsFromConfig(cfg.Interactive, "abc")
	if opts.ContainerID != "abc" || !opts.Spec.Tty {
		t.Fatalf("options = %+v", opts)
	}
	if len(opts.Spec.Cmd) != 1 || opts.Spec.Cmd[0] != "claude" {
		t.Fatalf("command = %v", opts.Spec.Cmd)
	}
	if opts.Spec.WorkingDir != "/workspace" {
		t.Fatalf("working dir = %q", opts.Spec.WorkingDir)
	}
	if opts.Timeout != 120*time.Second || opts.Settle != 200*time.Millisecond {
		t.Fatalf("timing = %v/%v", opts.Timeout, opts.Settle)
	}
}
