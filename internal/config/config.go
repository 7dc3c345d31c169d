package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StrategyInteractive = "interactive"
	StrategyOAuth       = "oauth"

	StoreTypeContainer = "container"
	StoreTypeFile      = "file"
	StoreTypePostgres  = "postgres"
	StoreTypeObject    = "object"
)

// Default OAuth endpoints and client registration used by the companion CLI.
const (
	DefaultAuthorizeURL     = "https://claude.ai/oauth/authorize"
	DefaultTokenURL         = "https://console.anthropic.com/v1/oauth/token"
	DefaultClientID         = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	DefaultRedirectURI      = "https://console.anthropic.com/oauth/code/callback"
	DefaultSubscriptionType = "pro"
)

// DefaultScopes is the scope set requested by the authorize URL.
var DefaultScopes = []string{"org:create_api_key", "user:profile", "user:inference"}

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	SDKConfig `yaml:",inline"`

	// Host is the network host/interface on which the API server will bind.
	// Default is empty ("") to bind all interfaces.
	Host string `yaml:"host" json:"-"`

	// Port is the network port on which the API server will listen.
	Port int `yaml:"port" json:"-"`

	// Debug enables or disables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile controls whether application logs are written to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir overrides the directory that receives main.log when LoggingToFile is set.
	LogDir string `yaml:"log-dir" json:"log-dir"`

	// LogsMaxBackups caps the number of rotated log files kept next to main.log.
	// <= 0 keeps every rotated file.
	LogsMaxBackups int `yaml:"logs-max-backups" json:"logs-max-backups"`

	// SessionTTLSeconds controls how long finished sessions remain queryable.
	SessionTTLSeconds int `yaml:"session-ttl-seconds" json:"session-ttl-seconds"`

	OAuth       OAuthConfig       `yaml:"oauth" json:"oauth"`
	Interactive InteractiveConfig `yaml:"interactive" json:"interactive"`
	Container   ContainerConfig   `yaml:"container" json:"container"`
	Store       StoreConfig       `yaml:"store" json:"store"`
}

// OAuthConfig configures the direct PKCE flow.
type OAuthConfig struct {
	AuthorizeURL string   `yaml:"authorize-url" json:"authorize-url"`
	TokenURL     string   `yaml:"token-url" json:"token-url"`
	ClientID     string   `yaml:"client-id" json:"client-id"`
	RedirectURI  string   `yaml:"redirect-uri" json:"redirect-uri"`
	Scopes       []string `yaml:"scopes" json:"scopes"`

	// StateTTLSeconds bounds how long a generated login URL stays redeemable.
	StateTTLSeconds int `yaml:"state-ttl-seconds" json:"state-ttl-seconds"`

	// CodeWaitSeconds bounds how long the flow waits for the user to paste a code.
	CodeWaitSeconds int `yaml:"code-wait-seconds" json:"code-wait-seconds"`

	// SubscriptionType is written into saved credentials as the plan descriptor.
	SubscriptionType string `yaml:"subscription-type" json:"subscription-type"`
}

// InteractiveConfig configures the terminal-driven login.
type InteractiveConfig struct {
	Command        []string `yaml:"command" json:"command"`
	WorkingDir     string   `yaml:"working-dir" json:"working-dir"`
	Env            []string `yaml:"env" json:"env"`
	TimeoutSeconds int      `yaml:"timeout-seconds" json:"timeout-seconds"`
	SettleMillis   int      `yaml:"settle-millis" json:"settle-millis"`
}

// ContainerConfig locates the per-session container and the files inside it.
type ContainerConfig struct {
	// NameTemplate is formatted with the session key to find the container.
	NameTemplate    string `yaml:"name-template" json:"name-template"`
	CredentialsPath string `yaml:"credentials-path" json:"credentials-path"`
	StatePath       string `yaml:"state-path" json:"state-path"`
}

// StoreConfig selects and configures the credential/state backend.
type StoreConfig struct {
	Type     string              `yaml:"type" json:"type"`
	File     FileStoreConfig     `yaml:"file" json:"file"`
	Postgres PostgresStoreConfig `yaml:"postgres" json:"postgres"`
	Object   ObjectStoreConfig   `yaml:"object" json:"object"`
}

type FileStoreConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

type PostgresStoreConfig struct {
	DSN    string `yaml:"dsn" json:"-"`
	Schema string `yaml:"schema" json:"schema"`
	Table  string `yaml:"table" json:"table"`
}

type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	AccessKey string `yaml:"access-key" json:"-"`
	SecretKey string `yaml:"secret-key" json:"-"`
	Region    string `yaml:"region" json:"region"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	UseSSL    bool   `yaml:"use-ssl" json:"use-ssl"`
	PathStyle bool   `yaml:"path-style" json:"path-style"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a YAML configuration file from the given path and applies defaults.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional behaves like LoadConfig but returns the defaults when the
// file is missing and optional is true.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if len(strings.TrimSpace(string(data))) > 0 {
		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that cannot be satisfied at runtime.
func (c *Config) Validate() error {
	switch c.Strategy {
	case StrategyInteractive, StrategyOAuth:
	default:
		return fmt.Errorf("config: unknown strategy %q", c.Strategy)
	}
	switch c.Store.Type {
	case StoreTypeContainer, StoreTypeFile:
	case StoreTypePostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("config: store.postgres.dsn is required for the postgres store")
		}
	case StoreTypeObject:
		if c.Store.Object.Endpoint == "" || c.Store.Object.Bucket == "" {
			return fmt.Errorf("config: store.object.endpoint and store.object.bucket are required for the object store")
		}
	default:
		return fmt.Errorf("config: unknown store type %q", c.Store.Type)
	}
	if !strings.Contains(c.Container.NameTemplate, "%s") {
		return fmt.Errorf("config: container.name-template must contain %%s")
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.Strategy = strings.ToLower(strings.TrimSpace(c.Strategy))
	if c.Strategy == "" {
		c.Strategy = StrategyInteractive
	}
	if c.Port == 0 {
		c.Port = 8317
	}
	if c.SessionTTLSeconds <= 0 {
		c.SessionTTLSeconds = 600
	}

	o := &c.OAuth
	if o.AuthorizeURL == "" {
		o.AuthorizeURL = DefaultAuthorizeURL
	}
	if o.TokenURL == "" {
		o.TokenURL = DefaultTokenURL
	}
	if o.ClientID == "" {
		o.ClientID = DefaultClientID
	}
	if o.RedirectURI == "" {
		o.RedirectURI = DefaultRedirectURI
	}
	if len(o.Scopes) == 0 {
		o.Scopes = append([]string(nil), DefaultScopes...)
	}
	if o.StateTTLSeconds <= 0 {
		o.StateTTLSeconds = 600
	}
	if o.CodeWaitSeconds <= 0 {
		o.CodeWaitSeconds = 300
	}
	if o.SubscriptionType == "" {
		o.SubscriptionType = DefaultSubscriptionType
	}

	i := &c.Interactive
	if len(i.Command) == 0 {
		i.Command = []string{"claude"}
	}
	if i.WorkingDir == "" {
		i.WorkingDir = "/workspace"
	}
	if len(i.Env) == 0 {
		i.Env = []string{"TERM=xterm-256color"}
	}
	if i.TimeoutSeconds <= 0 {
		i.TimeoutSeconds = 120
	}
	if i.SettleMillis <= 0 {
		i.SettleMillis = 200
	}

	ct := &c.Container
	if ct.NameTemplate == "" {
		ct.NameTemplate = "coding-session-%s"
	}
	if ct.CredentialsPath == "" {
		ct.CredentialsPath = "/volume_data/claude/.credentials.json"
	}
	if ct.StatePath == "" {
		ct.StatePath = "/volume_data/claude/claude_oauth_state.json"
	}

	s := &c.Store
	s.Type = strings.ToLower(strings.TrimSpace(s.Type))
	if s.Type == "" {
		s.Type = StoreTypeContainer
	}
	if s.File.Dir == "" {
		s.File.Dir = "auths"
	}
	if s.Postgres.Table == "" {
		s.Postgres.Table = "claude_session_store"
	}
}

// StateTTL returns the lifetime of a generated OAuth state.
func (o OAuthConfig) StateTTL() time.Duration {
	return time.Duration(o.StateTTLSeconds) * time.Second
}

// CodeWait returns how long the OAuth flow waits for a pasted code.
func (o OAuthConfig) CodeWait() time.Duration {
	return time.Duration(o.CodeWaitSeconds) * time.Second
}

// Timeout returns the overall deadline of an interactive login.
func (i InteractiveConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutSeconds) * time.Second
}

// Settle returns the pause between interactive transitions.
func (i InteractiveConfig) Settle() time.Duration {
	return time.Duration(i.SettleMillis) * time.Millisecond
}

// ContainerName returns the container name for a session key.
func (c ContainerConfig) ContainerName(key string) string {
	return fmt.Sprintf(c.NameTemplate, key)
}

// SessionTTL returns how long finished sessions stay queryable.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}
