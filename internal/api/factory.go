package api

import (
	"context"
	"fmt"

	"github.com/router-for-me/ClaudeSessionAuth/internal/config"
	"github.com/router-for-me/ClaudeSessionAuth/internal/container"
	"github.com/router-for-me/ClaudeSessionAuth/internal/store"
	"github.com/router-for-me/ClaudeSessionAuth/sdk/auth"
)

// NewOrchestratorFactory returns a factory that resolves the key's credential store
// through provider and, for the interactive strategy, the key's container through locator.
func NewOrchestratorFactory(transport container.Transport, locator container.Locator, provider store.Provider) OrchestratorFactory {
	return func(ctx context.Context, cfg *config.Config, key string) (*auth.Orchestrator, error) {
		st, err := provider.For(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("resolve credential store: %w", err)
		}
		opts := auth.Options{
			Config:  cfg,
			Store:   st,
			Session: key,
		}
		if cfg.Strategy == config.StrategyInteractive {
			if transport == nil || locator == nil {
				return nil, fmt.Errorf("interactive strategy requires a container runtime")
			}
			id, errFind := locator.FindContainer(ctx, cfg.Container.ContainerName(key))
			if errFind != nil {
				return nil, errFind
			}
			opts.Transport = transport
			opts.ContainerID = id
		}
		return auth.NewOrchestrator(opts)
	}
}
