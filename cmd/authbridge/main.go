// Package main provides the entry point for the Claude session authentication bridge.
// It serves the session API used by the chat bot, or runs a single login from the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/router-for-me/ClaudeSessionAuth/internal/buildinfo"
	"github.com/router-for-me/ClaudeSessionAuth/internal/cmd"
	"github.com/router-for-me/ClaudeSessionAuth/internal/config"
	"github.com/router-for-me/ClaudeSessionAuth/internal/logging"
	log "github.com/sirupsen/logrus"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = ""
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	fmt.Printf("ClaudeSessionAuth %s\n", buildinfo.String())

	var configPath string
	var loginKey string
	var strategy string
	var noBrowser bool

	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.StringVar(&loginKey, "login", "", "Authenticate the given session key from this terminal and exit")
	flag.StringVar(&strategy, "strategy", "", "Override the configured strategy (interactive or oauth)")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open browser automatically for OAuth")
	flag.Parse()

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	configFilePath := configPath
	if configFilePath == "" {
		configFilePath = filepath.Join(wd, "config.yaml")
	}
	cfg, err := config.LoadConfigOptional(configFilePath, configPath == "")
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		os.Exit(1)
	}
	if errEnv := applyEnvOverrides(cfg, strategy); errEnv != nil {
		log.Errorf("invalid configuration: %v", errEnv)
		os.Exit(1)
	}

	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return
	}
	logging.SetLogLevel(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if loginKey != "" {
		factory, release, errBackend := cmd.NewBackend(ctx, cfg)
		if errBackend != nil {
			log.Errorf("failed to prepare backend: %v", errBackend)
			os.Exit(1)
		}
		errLogin := cmd.DoClaudeLogin(ctx, cfg, factory, loginKey, &cmd.LoginOptions{NoBrowser: noBrowser})
		release()
		if errLogin != nil {
			fmt.Println(errLogin)
			os.Exit(1)
		}
		return
	}

	watchPath := ""
	if _, errStat := os.Stat(configFilePath); errStat == nil {
		watchPath = configFilePath
	}
	adjust := func(c *config.Config) error { return applyEnvOverrides(c, strategy) }
	if err = cmd.StartService(ctx, cfg, watchPath, adjust); err != nil {
		log.Errorf("service stopped with error: %v", err)
		os.Exit(1)
	}
}

// applyEnvOverrides lets deployments configure secrets and the store backend
// through the environment instead of the config file.
func applyEnvOverrides(cfg *config.Config, strategy string) error {
	lookupEnv := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if value, ok := os.LookupEnv(key); ok {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					return trimmed, true
				}
			}
		}
		return "", false
	}

	if strategy != "" {
		cfg.Strategy = strings.ToLower(strategy)
	}
	if value, ok := lookupEnv("CLAUDE_OAUTH_CLIENT_ID", "claude_oauth_client_id"); ok {
		cfg.OAuth.ClientID = value
	}
	if value, ok := lookupEnv("AUTHBRIDGE_API_KEYS", "authbridge_api_keys"); ok {
		cfg.APIKeys = strings.Split(value, ",")
	}
	if value, ok := lookupEnv("PGSTORE_DSN", "pgstore_dsn"); ok {
		cfg.Store.Type = config.StoreTypePostgres
		cfg.Store.Postgres.DSN = value
		if schema, okSchema := lookupEnv("PGSTORE_SCHEMA", "pgstore_schema"); okSchema {
			cfg.Store.Postgres.Schema = schema
		}
	}
	if value, ok := lookupEnv("OBJECTSTORE_ENDPOINT", "objectstore_endpoint"); ok {
		cfg.Store.Type = config.StoreTypeObject
		cfg.Store.Object.Endpoint = value
		if v, okV := lookupEnv("OBJECTSTORE_ACCESS_KEY", "objectstore_access_key"); okV {
			cfg.Store.Object.AccessKey = v
		}
		if v, okV := lookupEnv("OBJECTSTORE_SECRET_KEY", "objectstore_secret_key"); okV {
			cfg.Store.Object.SecretKey = v
		}
		if v, okV := lookupEnv("OBJECTSTORE_BUCKET", "objectstore_bucket"); okV {
			cfg.Store.Object.Bucket = v
		}
	}
	return cfg.Validate()
}
