// Package config loads runtime configuration from a YAML file and
// PORTCULLIS_-prefixed environment variables, with env taking precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/portcullis-io/portcullis/internal/core/domain"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Contract   ContractConfig   `koanf:"contract"`
	Policy     PolicyConfig     `koanf:"policy"`
	Validation ValidationConfig `koanf:"validation"`
	Audit      AuditConfig      `koanf:"audit"`

	// Environment is passed to the policy engine as input.environment.
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type ContractConfig struct {
	// Path to the checksummed contract artifact. Required; a missing or
	// corrupt artifact is a startup-blocking error.
	Path string `koanf:"path"`

	// Watch enables file-watch hot reload of the artifact.
	Watch bool `koanf:"watch"`
}

type PolicyConfig struct {
	// Path to the Rego policy bundle file.
	Path string `koanf:"path"`

	// Query is the Rego query evaluated per request.
	Query string `koanf:"query"`

	Watch bool `koanf:"watch"`

	// CacheTTL bounds how long a policy decision may be served from cache.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// CacheSize is the maximum number of cached decisions.
	CacheSize int `koanf:"cache_size"`
}

type ValidationConfig struct {
	// Request mode: enforced (default), monitor, or disabled.
	Request string `koanf:"request"`

	// Response mode: disabled by default; response schemas are advisory.
	Response string `koanf:"response"`
}

type AuditConfig struct {
	// Path to the SQLite audit database. Empty disables the audit store.
	Path string `koanf:"path"`
}

// RequestMode returns the parsed request validation mode.
func (v ValidationConfig) RequestMode() (domain.ValidationMode, error) {
	return domain.ParseValidationMode(v.Request)
}

// ResponseMode returns the parsed response validation mode.
func (v ValidationConfig) ResponseMode() (domain.ValidationMode, error) {
	if v.Response == "" {
		return domain.ValidationDisabled, nil
	}
	return domain.ParseValidationMode(v.Response)
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("PORTCULLIS_", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if _, err := cfg.Validation.RequestMode(); err != nil {
		return nil, err
	}
	if _, err := cfg.Validation.ResponseMode(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envCompoundKeys restores multi-word leaf keys after the underscore-to-dot
// rewrite, where the section separator and a key's own words are
// indistinguishable.
var envCompoundKeys = strings.NewReplacer(
	"request.timeout", "request_timeout",
	"cache.ttl", "cache_ttl",
	"cache.size", "cache_size",
)

// envKey maps PORTCULLIS_SERVER_REQUEST_TIMEOUT to server.request_timeout.
func envKey(s string) string {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "PORTCULLIS_")), "_", ".")
	return envCompoundKeys.Replace(s)
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":            8080,
		"server.request_timeout": "30s",
		"policy.query":           "data.authz.allow",
		"policy.cache_ttl":       "60s",
		"policy.cache_size":      10000,
		"validation.request":     "enforced",
		"validation.response":    "disabled",
		"environment":            "production",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}
}
