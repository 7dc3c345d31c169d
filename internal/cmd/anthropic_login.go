package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/router-for-me/ClaudeSessionAuth/internal/api"
	"github.com/router-for-me/ClaudeSessionAuth/internal/browser"
	"github.com/router-for-me/ClaudeSessionAuth/internal/config"
	"github.com/router-for-me/ClaudeSessionAuth/sdk/auth"
	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// LoginOptions contains options for the console login.
type LoginOptions struct {
	// NoBrowser indicates whether to skip opening the browser automatically.
	NoBrowser bool

	// Prompt allows the caller to provide interactive input when needed.
	Prompt func(prompt string) (string, error)

	// Out receives the messages meant for the operator. Defaults to stdout.
	Out io.Writer
}

// DoClaudeLogin authenticates the session identified by key from the terminal:
// it prints the sign-in link, asks for the authorization code and waits for the
// attempt to finish. Cancelling ctx cancels the attempt.
//
// Parameters:
//   - ctx: The context controlling the login
//   - cfg: The application configuration
//   - factory: Builds the orchestrator for the session
//   - key: The session key
//   - options: Login options including browser behavior and prompts
//
// Returns:
//   - error: An error if the attempt could not start or ended in failure
func DoClaudeLogin(ctx context.Context, cfg *config.Config, factory api.OrchestratorFactory, key string, options *LoginOptions) error {
	if options == nil {
		options = &LoginOptions{}
	}
	out := options.Out
	if out == nil {
		out = os.Stdout
	}
	promptFn := options.Prompt
	if promptFn == nil {
		promptFn = defaultCodePrompt()
	}

	orch, err := factory(ctx, cfg, key)
	if err != nil {
		return fmt.Errorf("claude authentication failed: %w", err)
	}
	handle, err := orch.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("claude authentication failed: %w", err)
	}
	defer handle.Release()
	stop := context.AfterFunc(ctx, func() { handle.Cancel() })
	defer stop()

	attended := term.IsTerminal(int(os.Stdout.Fd()))
	var final auth.AuthState
	for state := range handle.States {
		switch state.Kind {
		case auth.StateURLReady:
			_, _ = fmt.Fprintf(out, "Open this link to sign in to Claude:\n\n  %s\n\n", state.URL)
			if attended {
				announceURL(out, state.URL, options.NoBrowser)
			}
		case auth.StateWaitingForCode:
			go func() {
				code, errPrompt := promptFn("Paste the authorization code: ")
				if errPrompt != nil {
					log.Warnf("failed to read authorization code: %v", errPrompt)
					handle.Cancel()
					return
				}
				if errSubmit := handle.SubmitCode(code); errSubmit != nil {
					log.Debugf("authorization code not delivered: %v", errSubmit)
				}
			}()
		case auth.StateCompleted, auth.StateFailed:
			final = state
		default:
			log.Debugf("authentication state: %s", state)
		}
	}

	if final.Kind != auth.StateCompleted {
		return fmt.Errorf("claude authentication failed: %s", final.Message)
	}
	_, _ = fmt.Fprintln(out, "Claude authentication successful!")
	return nil
}

func announceURL(out io.Writer, url string, noBrowser bool) {
	if errCopy := browser.CopyToClipboard(url); errCopy == nil {
		_, _ = fmt.Fprintln(out, "The link has been copied to the clipboard.")
	} else {
		log.Debugf("clipboard unavailable: %v", errCopy)
	}
	if noBrowser || !browser.IsAvailable() {
		return
	}
	if errOpen := browser.OpenURL(url); errOpen != nil {
		log.Warnf("failed to open browser: %v", errOpen)
	}
}

func defaultCodePrompt() func(string) (string, error) {
	reader := bufio.NewReader(os.Stdin)
	return func(prompt string) (string, error) {
		fmt.Print(prompt)
		value, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || value == "") {
			return "", err
		}
		return strings.TrimSpace(value), nil
	}
}
