// Package secrets resolves "secret:NAME" references in configuration
// against environment, file or Vault backends.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// RefPrefix marks a config value as a secret reference.
const RefPrefix = "secret:"

// ErrNotFound is returned when no source holds the key.
var ErrNotFound = errors.New("secrets: not found")

// Source is a read-only secret backend.
type Source interface {
	Get(ctx context.Context, key string) (string, error)
	Name() string
}

// Config selects the primary backend. The environment is always consulted
// as a fallback.
type Config struct {
	Backend   string // env (default), file, vault
	EnvPrefix string // default "QUILL_"
	File      string
	Vault     *VaultConfig
}

// Resolver looks secrets up in order and caches hits.
type Resolver struct {
	sources []Source

	mu    sync.RWMutex
	cache map[string]string
}

// NewResolver builds a Resolver for cfg.
func NewResolver(cfg Config) (*Resolver, error) {
	env := NewEnvSource(cfg.EnvPrefix)

	var sources []Source
	switch cfg.Backend {
	case "", "env":
		sources = []Source{env}
	case "file":
		f, err := NewFileSource(cfg.File)
		if err != nil {
			return nil, err
		}
		sources = []Source{f, env}
	case "vault":
		v, err := NewVaultSource(cfg.Vault)
		if err != nil {
			return nil, err
		}
		sources = []Source{v, env}
	default:
		return nil, fmt.Errorf("secrets: unknown backend %q", cfg.Backend)
	}
	return NewResolverFrom(sources...), nil
}

// NewResolverFrom returns a Resolver over explicit sources.
func NewResolverFrom(sources ...Source) *Resolver {
	return &Resolver{sources: sources, cache: make(map[string]string)}
}

// Get returns the first non-empty value for key.
func (r *Resolver) Get(ctx context.Context, key string) (string, error) {
	r.mu.RLock()
	val, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return val, nil
	}

	var errs []error
	for _, s := range r.sources {
		val, err := s.Get(ctx, key)
		if err == nil && val != "" {
			r.mu.Lock()
			r.cache[key] = val
			r.mu.Unlock()
			return val, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Resolve returns value unchanged unless it is a "secret:NAME" reference,
// in which case NAME is looked up.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	key, ok := strings.CutPrefix(value, RefPrefix)
	if !ok {
		return value, nil
	}
	if key == "" {
		return "", errors.New("secrets: empty reference")
	}
	return r.Get(ctx, key)
}

// ResolveAll resolves every pointed-to string in place and stops at the
// first failure.
func (r *Resolver) ResolveAll(ctx context.Context, values ...*string) error {
	for _, v := range values {
		resolved, err := r.Resolve(ctx, *v)
		if err != nil {
			return err
		}
		*v = resolved
	}
	return nil
}

// EnvSource reads PREFIX+KEY, then KEY, from the environment. Keys are
// upper-cased.
type EnvSource struct {
	prefix string
}

func NewEnvSource(prefix string) *EnvSource {
	if prefix == "" {
		prefix = "QUILL_"
	}
	return &EnvSource{prefix: prefix}
}

func (s *EnvSource) Name() string { return "env" }

func (s *EnvSource) Get(_ context.Context, key string) (string, error) {
	name := strings.ToUpper(key)
	if val := os.Getenv(s.prefix + name); val != "" {
		return val, nil
	}
	if val := os.Getenv(name); val != "" {
		return val, nil
	}
	return "", ErrNotFound
}
