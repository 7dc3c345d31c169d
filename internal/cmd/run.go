package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/ClaudeSessionAuth/internal/api"
	"github.com/router-for-me/ClaudeSessionAuth/internal/config"
	"github.com/router-for-me/ClaudeSessionAuth/internal/container"
	"github.com/router-for-me/ClaudeSessionAuth/internal/session"
	"github.com/router-for-me/ClaudeSessionAuth/internal/store"
	"github.com/router-for-me/ClaudeSessionAuth/internal/watcher"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// NewBackend connects the container runtime when cfg needs one, opens the
// configured credential store and returns the orchestrator factory built on them.
// release closes everything that was opened.
func NewBackend(ctx context.Context, cfg *config.Config) (factory api.OrchestratorFactory, release func(), err error) {
	var (
		transport container.Transport
		files     container.FileAccess
		locator   container.Locator
		docker    *container.Docker
	)
	if cfg.Strategy == config.StrategyInteractive || cfg.Store.Type == config.StoreTypeContainer {
		docker, err = container.NewDocker()
		if err != nil {
			return nil, nil, err
		}
		transport, files, locator = docker, docker, docker
	}

	provider, closeStore, err := store.NewProvider(ctx, cfg, files, locator)
	if err != nil {
		if docker != nil {
			_ = docker.Close()
		}
		return nil, nil, err
	}

	release = func() {
		if errClose := closeStore(); errClose != nil {
			log.Errorf("failed to close credential store: %v", errClose)
		}
		if docker != nil {
			if errClose := docker.Close(); errClose != nil {
				log.Errorf("failed to close docker client: %v", errClose)
			}
		}
	}
	return api.NewOrchestratorFactory(transport, locator, provider), release, nil
}

// StartService runs the HTTP API until ctx is cancelled. When configPath is set the
// file is watched and reloaded configurations are applied to the running server,
// after adjust (when non-nil) has re-applied settings that do not come from the file.
func StartService(ctx context.Context, cfg *config.Config, configPath string, adjust func(*config.Config) error) error {
	factory, release, err := NewBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to prepare backend: %w", err)
	}
	defer release()

	registry := session.NewRegistry(cfg.SessionTTL())
	server := api.NewServer(cfg, registry, factory)

	if configPath != "" {
		w, errWatcher := watcher.NewWatcher(configPath, func(newCfg *config.Config) {
			if adjust != nil {
				if errAdjust := adjust(newCfg); errAdjust != nil {
					log.Errorf("reloaded configuration rejected: %v", errAdjust)
					return
				}
			}
			server.UpdateConfig(newCfg)
		})
		if errWatcher != nil {
			return fmt.Errorf("failed to create config watcher: %w", errWatcher)
		}
		w.SetConfig(cfg)
		if errStart := w.Start(ctx); errStart != nil {
			log.Warnf("config hot reload disabled: %v", errStart)
		}
		defer func() {
			if errStop := w.Stop(); errStop != nil {
				log.Debugf("failed to stop config watcher: %v", errStop)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Stop(shutdownCtx)
	})
	if err = g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
