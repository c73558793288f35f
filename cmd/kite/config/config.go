// Package config provides configuration structures for the kite CLI.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the CLI configuration.
type Config struct {
	// Connection settings
	Address        string        `yaml:"address" json:"address"`
	LogLevel       string        `yaml:"log_level" json:"log_level"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	MaxMessageSize int           `yaml:"max_message_size" json:"max_message_size"`

	// TLS configuration
	TLS TLSConfig `yaml:"tls" json:"tls"`

	// Authentication configuration
	Auth AuthConfig `yaml:"auth" json:"auth"`
}

// TLSConfig represents transport security configuration.
type TLSConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	SkipVerify bool `yaml:"skip_verify" json:"skip_verify"`
}

// AuthConfig represents client credential configuration. Token and OAuth
// are mutually exclusive; extra headers combine with either.
type AuthConfig struct {
	Token   string            `yaml:"token" json:"token"`
	Headers map[string]string `yaml:"headers" json:"headers"`
	OAuth   OAuthConfig       `yaml:"oauth" json:"oauth"`
}

// OAuthConfig represents client-credentials grant configuration.
type OAuthConfig struct {
	Issuer       string   `yaml:"issuer" json:"issuer"`
	TokenURL     string   `yaml:"token_url" json:"token_url"`
	ClientID     string   `yaml:"client_id" json:"client_id"`
	ClientSecret string   `yaml:"client_secret" json:"client_secret"`
	Audience     string   `yaml:"audience" json:"audience"`
	Scopes       []string `yaml:"scopes" json:"scopes"`
}

// Enabled reports whether OAuth is configured at all.
func (o OAuthConfig) Enabled() bool {
	return o.ClientID != "" || o.ClientSecret != "" || o.Issuer != "" || o.TokenURL != ""
}

// Validate validates the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}

	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 16 * 1024 * 1024 // 16MB
	}

	if c.TLS.SkipVerify && !c.TLS.Enabled {
		return fmt.Errorf("tls-skip-verify requires tls")
	}

	if c.Auth.OAuth.Enabled() {
		if c.Auth.Token != "" {
			return fmt.Errorf("token and OAuth credentials are mutually exclusive")
		}
		if c.Auth.OAuth.ClientID == "" || c.Auth.OAuth.ClientSecret == "" {
			return fmt.Errorf("OAuth requires client ID and secret")
		}
		if c.Auth.OAuth.Issuer == "" && c.Auth.OAuth.TokenURL == "" {
			return fmt.Errorf("OAuth requires an issuer or a token URL")
		}
	}

	return nil
}

// ParseHeaders turns repeated name=value flag values into a header map.
func ParseHeaders(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, expected name=value", pair)
		}
		headers[strings.TrimSpace(name)] = value
	}
	return headers, nil
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:        "localhost:32010",
		LogLevel:       "info",
		Timeout:        5 * time.Minute,
		MaxMessageSize: 16 * 1024 * 1024,
	}
}
