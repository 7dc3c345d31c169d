// Package config provides configuration management for the Claude session
// authentication bridge. It handles loading and parsing YAML configuration files
// and exposes structured access to server, OAuth, interactive login, container
// and credential store settings.
package config

// SDKConfig holds the settings shared by every embedding of the authentication
// orchestrator, whether it runs behind the HTTP surface or from the console.
type SDKConfig struct {
	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// APIKeys is a list of keys accepted by the HTTP surface. Empty disables the check.
	APIKeys []string `yaml:"api-keys" json:"api-keys"`

	// Strategy selects how a session authenticates: "interactive" drives the
	// companion CLI inside the container, "oauth" performs the PKCE flow directly.
	Strategy string `yaml:"strategy" json:"strategy"`

	// RefreshExpired enables a refresh-token exchange before falling back to a full login
	// when stored credentials have expired.
	RefreshExpired bool `yaml:"refresh-expired" json:"refresh-expired"`
}
