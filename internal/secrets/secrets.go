// Package secrets resolves credentials that are kept out of the config file:
// environment variables, a local JSON file or HashiCorp Vault.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Well-known secret keys.
const (
	LLMAPIKey       = "llm_api_key"
	EmbeddingAPIKey = "embedding_api_key"
	Neo4jPassword   = "neo4j_password"
)

// ErrNotFound is returned when no backend holds the key.
var ErrNotFound = errors.New("secret not found")

// Provider is a read-only secret backend.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Name() string
}

// Config selects the backend. An empty backend disables secret resolution.
type Config struct {
	// Backend is "", "none", "env", "file" or "vault".
	Backend   string      `mapstructure:"backend"`
	EnvPrefix string      `mapstructure:"env_prefix"`
	File      string      `mapstructure:"file"`
	Vault     VaultConfig `mapstructure:"vault"`
}

const defaultEnvPrefix = "SIFT_SECRET_"

// Manager reads secrets from a primary backend, falling back to the
// environment. Values are cached for the life of the process.
type Manager struct {
	primary  Provider
	fallback Provider

	mu    sync.RWMutex
	cache map[string]string
}

// NewManager creates a manager for cfg. It returns nil, nil when secret
// resolution is disabled.
func NewManager(cfg Config) (*Manager, error) {
	var primary Provider
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "env":
		primary = NewEnvProvider(cfg.EnvPrefix)
	case "file":
		p, err := NewFileProvider(cfg.File)
		if err != nil {
			return nil, err
		}
		primary = p
	case "vault":
		p, err := NewVaultProvider(cfg.Vault)
		if err != nil {
			return nil, fmt.Errorf("vault: %w", err)
		}
		primary = p
	default:
		return nil, fmt.Errorf("unknown secrets backend %q (want env, file or vault)", cfg.Backend)
	}

	m := &Manager{primary: primary, cache: make(map[string]string)}
	if primary.Name() != "env" {
		m.fallback = NewEnvProvider(cfg.EnvPrefix)
	}
	return m, nil
}

// Backend names the primary backend.
func (m *Manager) Backend() string { return m.primary.Name() }

// Get returns the secret for key from the primary backend or the fallback.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	val, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return val, nil
	}

	val, err := m.primary.Get(ctx, key)
	if (err != nil || val == "") && m.fallback != nil {
		if fv, ferr := m.fallback.Get(ctx, key); ferr == nil && fv != "" {
			val, err = fv, nil
		}
	}
	if err != nil {
		return "", err
	}
	if val == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	m.mu.Lock()
	m.cache[key] = val
	m.mu.Unlock()
	return val, nil
}

// Fill sets *dst to the secret for key when *dst is empty. A missing secret
// leaves *dst untouched; backend failures are returned.
func (m *Manager) Fill(ctx context.Context, key string, dst *string) error {
	if m == nil || *dst != "" {
		return nil
	}
	val, err := m.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("secret %s: %w", key, err)
	}
	*dst = val
	return nil
}

// EnvProvider reads PREFIX_KEY from the environment.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment provider. An empty prefix means
// SIFT_SECRET_.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = defaultEnvPrefix
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	name := p.prefix + strings.ToUpper(key)
	if val := os.Getenv(name); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}
