package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/router-for-me/ClaudeSessionAuth/internal/auth/claude"
	"github.com/router-for-me/ClaudeSessionAuth/internal/config"
	"github.com/router-for-me/ClaudeSessionAuth/internal/container"
	"github.com/router-for-me/ClaudeSessionAuth/internal/logging"
	"github.com/router-for-me/ClaudeSessionAuth/internal/store"
	log "github.com/sirupsen/logrus"
)

const refreshAttempts = 2

// CredentialValidator performs an additional check on stored, unexpired credentials,
// such as probing the API with them. A non-nil error forces a new login.
type CredentialValidator func(ctx context.Context, creds *claude.Credentials) error

// Options configures an Orchestrator.
type Options struct {
	// Config supplies OAuth, interactive and proxy settings. Required.
	Config *config.Config
	// Store holds the session's credentials and pending OAuth state. Required.
	Store store.CredentialStore
	// Strategy overrides Config.Strategy when set.
	Strategy string

	// Transport and ContainerID locate the CLI for the interactive strategy.
	Transport   container.Transport
	ContainerID string

	// Session labels log entries.
	Session string

	Validator  CredentialValidator
	HTTPClient *http.Client
	Now        func() time.Time
}

// Orchestrator runs authentication attempts for one session.
type Orchestrator struct {
	cfg       *config.Config
	strategy  string
	auth      *claude.ClaudeAuth
	transport container.Transport
	container string
	session   string
	validator CredentialValidator
}

// NewOrchestrator validates opts and builds an orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Config == nil {
		return nil, errors.New("auth: configuration is required")
	}
	if opts.Store == nil {
		return nil, errors.New("auth: credential store is required")
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = opts.Config.Strategy
	}
	switch strategy {
	case config.StrategyOAuth:
	case config.StrategyInteractive:
		if opts.Transport == nil || opts.ContainerID == "" {
			return nil, errors.New("auth: interactive strategy requires an exec transport and a container")
		}
	default:
		return nil, fmt.Errorf("auth: unknown strategy %q", strategy)
	}

	var clientOpts []claude.Option
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, claude.WithHTTPClient(opts.HTTPClient))
	}
	if opts.Now != nil {
		clientOpts = append(clientOpts, claude.WithClock(opts.Now))
	}

	return &Orchestrator{
		cfg:       opts.Config,
		strategy:  strategy,
		auth:      claude.NewClaudeAuth(opts.Config, opts.Store, clientOpts...),
		transport: opts.Transport,
		container: opts.ContainerID,
		session:   opts.Session,
		validator: opts.Validator,
	}, nil
}

// Authenticate starts an attempt and returns its handle.
//
// Valid stored credentials produce a handle whose only state is
// Completed("already authenticated"). Otherwise the configured strategy runs in
// the background; every failure it meets is reported as Failed on the handle.
// The attempt outlives ctx's cancellation but keeps its values.
//
// Returns:
//   - *Handle: The live handle
//   - error: ctx's error when it is already done
func (o *Orchestrator) Authenticate(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry := logging.FromContext(ctx).WithFields(log.Fields{"session": o.session, "strategy": o.strategy})

	creds, err := o.auth.LoadCredentials(ctx)
	if err != nil {
		entry.Warnf("failed to load stored credentials, starting a new login: %v", err)
		creds = nil
	}
	if creds != nil && !creds.IsExpired(o.auth.Now()) {
		if o.validate(ctx, creds, entry) {
			entry.Info("session already authenticated")
			return o.spawn(ctx, entry, func(_ context.Context, f *flow) {
				f.emit(Completed("already authenticated"))
			}), nil
		}
	}

	var expired *claude.Credentials
	if creds != nil && creds.IsExpired(o.auth.Now()) && creds.RefreshToken != "" && o.cfg.RefreshExpired {
		expired = creds
	}

	return o.spawn(ctx, entry, func(runCtx context.Context, f *flow) {
		if expired != nil && o.refresh(runCtx, f, expired) {
			return
		}
		switch o.strategy {
		case config.StrategyOAuth:
			o.runOAuth(runCtx, f)
		default:
			o.runInteractive(runCtx, f)
		}
	}), nil
}

func (o *Orchestrator) validate(ctx context.Context, creds *claude.Credentials, entry *log.Entry) bool {
	if o.validator == nil {
		return true
	}
	if err := o.validator(ctx, creds); err != nil {
		entry.Infof("stored credentials rejected by validator: %v", err)
		return false
	}
	return true
}

// spawn starts run in the background and returns the handle observing it.
func (o *Orchestrator) spawn(ctx context.Context, entry *log.Entry, run func(context.Context, *flow)) *Handle {
	h, f := newHandle()
	f.entry = entry
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			f.finish(recover())
		}()
		run(runCtx, f)
	}()
	return h
}

// refresh exchanges the refresh token of expired credentials. It reports whether
// the attempt completed; on failure the caller falls back to a full login.
func (o *Orchestrator) refresh(ctx context.Context, f *flow, expired *claude.Credentials) bool {
	creds, err := o.auth.RefreshCredentialsWithRetry(ctx, expired, refreshAttempts)
	if err != nil {
		f.entry.Warnf("credential refresh failed, starting a new login: %v", err)
		return false
	}
	if err = o.auth.SaveCredentials(ctx, creds); err != nil {
		f.entry.Warnf("failed to save refreshed credentials, starting a new login: %v", err)
		return false
	}
	f.entry.Info("expired credentials refreshed")
	f.emit(Completed("credentials refreshed"))
	return true
}
