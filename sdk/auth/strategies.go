package auth

import (
	"context"
	"time"

	"github.com/router-for-me/ClaudeSessionAuth/internal/interactive"
)

// runOAuth performs the PKCE flow: publish the login URL, wait for the pasted
// code and redeem it.
func (o *Orchestrator) runOAuth(ctx context.Context, f *flow) {
	f.emit(Starting())

	url, err := o.auth.GenerateLoginURL(ctx)
	if err != nil {
		f.fail("failed to create login url: %v", err)
		return
	}
	f.emit(URLReady(url))
	f.emit(WaitingForCode())

	deadline := time.NewTimer(o.cfg.OAuth.CodeWait())
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			o.cleanupState(ctx, f)
			f.fail("%v", ctx.Err())
			return

		case <-deadline.C:
			o.cleanupState(ctx, f)
			f.fail("timed out")
			return

		case _, ok := <-f.cancel:
			if !ok {
				f.cancel = nil
				continue
			}
			o.cleanupState(ctx, f)
			f.fail("cancelled")
			return

		case code, ok := <-f.codes:
			if !ok {
				f.codes = nil
				continue
			}
			if f.cancelled() {
				o.cleanupState(ctx, f)
				f.fail("cancelled")
				return
			}
			f.entry.Info("exchanging authorization code")
			creds, errExchange := o.auth.ExchangeCode(ctx, code)
			if errExchange != nil {
				f.fail("token exchange failed: %v", errExchange)
				return
			}
			if errSave := o.auth.SaveCredentials(ctx, creds); errSave != nil {
				f.fail("%v", errSave)
				return
			}
			o.cleanupState(ctx, f)
			f.emit(Completed("authentication completed"))
			return
		}
	}
}

func (o *Orchestrator) cleanupState(ctx context.Context, f *flow) {
	if err := o.auth.CleanupState(ctx); err != nil {
		f.entry.Warnf("failed to remove oauth state: %v", err)
	}
}

// runInteractive drives the CLI's own login inside the session container.
func (o *Orchestrator) runInteractive(ctx context.Context, f *flow) {
	f.emit(Starting())

	f.entry = f.entry.WithField("container", o.container)
	driver := interactive.NewDriver(o.transport, interactive.OptionsFromConfig(o.cfg.Interactive, o.container))
	result := driver.Run(ctx, f.cancel, f.codes, func(s interactive.LoginState) {
		switch s.Kind {
		case interactive.ProvideURL:
			f.emit(URLReady(s.URL))
		case interactive.WaitingForCode:
			f.emit(WaitingForCode())
		}
	})

	if result.Kind == interactive.Completed {
		f.emit(Completed("authentication completed"))
		return
	}
	f.fail("%s", result.Message)
}
