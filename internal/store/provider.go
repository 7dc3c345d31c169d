package store

import (
	"context"
	"fmt"

	"github.com/router-for-me/ClaudeSessionAuth/internal/config"
	"github.com/router-for-me/ClaudeSessionAuth/internal/container"
	log "github.com/sirupsen/logrus"
)

// NewProvider builds the backend selected by cfg.Store.Type. The returned close
// function releases backend resources and is never nil.
func NewProvider(ctx context.Context, cfg *config.Config, files container.FileAccess, locator container.Locator) (Provider, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store.Type {
	case config.StoreTypeContainer:
		if files == nil || locator == nil {
			return nil, noop, fmt.Errorf("store: container backend requires a container runtime")
		}
		log.WithField("store", "container").Infof("credentials kept inside session containers at %s", cfg.Container.CredentialsPath)
		return NewContainerProvider(files, locator, cfg.Container.ContainerName, cfg.Container.CredentialsPath, cfg.Container.StatePath), noop, nil
	case config.StoreTypeFile:
		log.WithField("store", "file").Infof("credentials kept under %s", cfg.Store.File.Dir)
		return NewFileProvider(cfg.Store.File.Dir), noop, nil
	case config.StoreTypePostgres:
		pg, err := NewPostgresStore(ctx, PostgresStoreConfig{
			DSN:    cfg.Store.Postgres.DSN,
			Schema: cfg.Store.Postgres.Schema,
			Table:  cfg.Store.Postgres.Table,
		})
		if err != nil {
			return nil, noop, err
		}
		log.WithField("store", "postgres").Info("postgres-backed credential store enabled")
		return pg, pg.Close, nil
	case config.StoreTypeObject:
		o := cfg.Store.Object
		obj, err := NewObjectStore(ObjectStoreConfig{
			Endpoint:  o.Endpoint,
			Bucket:    o.Bucket,
			AccessKey: o.AccessKey,
			SecretKey: o.SecretKey,
			Region:    o.Region,
			Prefix:    o.Prefix,
			UseSSL:    o.UseSSL,
			PathStyle: o.PathStyle,
		})
		if err != nil {
			return nil, noop, err
		}
		log.WithField("store", "object").Infof("object-backed credential store enabled, bucket: %s", o.Bucket)
		return obj, noop, nil
	default:
		return nil, noop, fmt.Errorf("store: unknown type %q", cfg.Store.Type)
	}
}
