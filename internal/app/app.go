// Package app assembles configuration, logging, tracing, providers and the
// template catalog for the quill binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/efebarandurmaz/quill/internal/catalog"
	"github.com/efebarandurmaz/quill/internal/chain"
	"github.com/efebarandurmaz/quill/internal/config"
	"github.com/efebarandurmaz/quill/internal/fewshot"
	"github.com/efebarandurmaz/quill/internal/history"
	"github.com/efebarandurmaz/quill/internal/llm"
	"github.com/efebarandurmaz/quill/internal/llmutil"
	"github.com/efebarandurmaz/quill/internal/logging"
	"github.com/efebarandurmaz/quill/internal/observability"
	"github.com/efebarandurmaz/quill/internal/output"
	"github.com/efebarandurmaz/quill/internal/secrets"
	"github.com/efebarandurmaz/quill/internal/vector"
	"github.com/efebarandurmaz/quill/internal/vector/qdrant"
)

// App holds the process-wide dependencies.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Catalog *catalog.Catalog
	Tracing *observability.TracerProvider
	Metrics *observability.Metrics

	factory *llm.ProviderFactory

	mu        sync.Mutex
	providers map[providerKey]llm.Provider
	closers   []func() error
}

type providerKey struct {
	provider, model, baseURL, apiKey string
}

// Options overrides parts of the loaded configuration.
type Options struct {
	ConfigPath string
	Provider   string // overrides llm.provider when set
	Model      string // overrides llm.model when set
	LogLevel   string
}

// New loads configuration and builds the shared dependencies.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Provider != "" {
		cfg.LLM.Provider = opts.Provider
	}
	if opts.Model != "" {
		cfg.LLM.Model = opts.Model
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	return FromConfig(ctx, cfg)
}

// FromConfig builds an App from an already loaded configuration.
func FromConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}
	if err := resolveSecrets(ctx, cfg); err != nil {
		return nil, err
	}
	for _, w := range cfg.Validate() {
		logger.Warn().Msg(w)
	}

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: observability.DefaultTracingConfig().ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	cat := catalog.New()
	if cfg.Templates.Dir != "" {
		n, err := cat.LoadDir(cfg.Templates.Dir)
		if err != nil {
			return nil, err
		}
		logger.Debug().Int("count", n).Str("dir", cfg.Templates.Dir).Msg("templates loaded")
	}

	factory := llm.NewFactory()
	llmutil.RegisterDefaultProviders(factory)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Catalog:   cat,
		Tracing:   tp,
		Metrics:   metrics,
		factory:   factory,
		providers: make(map[providerKey]llm.Provider),
	}, nil
}

// resolveSecrets replaces "secret:NAME" config values using the configured
// secrets backend.
func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	sc := cfg.Secrets
	r, err := secrets.NewResolver(secrets.Config{
		Backend: sc.Backend,
		File:    sc.File,
		Vault: &secrets.VaultConfig{
			Address:    sc.VaultAddr,
			Token:      sc.VaultToken,
			MountPath:  sc.VaultMount,
			SecretPath: sc.VaultPath,
		},
	})
	if err != nil {
		return err
	}
	return cfg.ResolveSecrets(func(v string) (string, error) {
		return r.Resolve(ctx, v)
	})
}

// Factory exposes the provider factory so callers can register extra
// constructors before the first Provider call.
func (a *App) Factory() *llm.ProviderFactory { return a.factory }

// Provider returns the traced provider for template, honoring per-template
// overrides. It returns nil when no provider is configured.
func (a *App) Provider(template string) (llm.Provider, error) {
	resolved := a.Config.LLM.ResolveFor(template)
	key := providerKey{resolved.Provider, resolved.Model, resolved.BaseURL, resolved.APIKey}

	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.providers[key]; ok {
		return p, nil
	}

	raw, err := a.factory.Create(resolved.ProviderConfig())
	if err != nil {
		return nil, err
	}
	var p llm.Provider
	if raw != nil {
		p = observability.NewTracedProvider(raw,
			observability.WithTracer(a.Tracing.Tracer()),
			observability.WithLogger(a.Logger),
			observability.WithMetrics(a.Metrics),
			observability.WithPromptCapture(a.Config.Tracing.CapturePrompts),
		)
	}
	a.providers[key] = p
	return p, nil
}

// Chain builds a chain for the named catalog template.
func (a *App) Chain(name string, opts ...chain.Option) (*chain.Chain, error) {
	e, err := a.Catalog.Get(name)
	if err != nil {
		return nil, err
	}
	parser, err := output.ByName(e.Parser)
	if err != nil {
		return nil, err
	}
	provider, err := a.Provider(name)
	if err != nil {
		return nil, err
	}
	base := []chain.Option{
		chain.WithName(e.Name),
		chain.WithParser(parser),
		chain.WithRequestOptions(a.Config.LLM.RequestOptions()),
		chain.WithLogger(a.Logger),
	}
	return chain.New(e.Template, provider, append(base, opts...)...), nil
}

// History opens the configured conversation store. The App closes it.
func (a *App) History(ctx context.Context) (history.Store, error) {
	h := a.Config.History
	store, err := history.Open(ctx, history.Options{
		Backend:  h.Backend,
		DSN:      h.DSN,
		URI:      h.URI,
		Username: h.Username,
		Password: h.Password,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(store.Close)
	return store, nil
}

// ExampleSelector indexes examples for semantic selection. Vectors go to
// Qdrant when vector.host is set and to memory otherwise. Providers that
// cannot embed fall back to a static selection of the first k examples.
func (a *App) ExampleSelector(ctx context.Context, provider llm.Provider, set string, examples []fewshot.Example, k int) (fewshot.Selector, error) {
	static := fewshot.StaticSelector{Examples: examples, K: k}
	if provider == nil || len(examples) == 0 {
		return static, nil
	}

	probe, err := provider.Embed(ctx, []string{examples[0].Input})
	if err != nil || len(probe) == 0 {
		a.Logger.Warn().Err(err).Str("provider", provider.Name()).Msg("embeddings unavailable, using static examples")
		return static, nil
	}

	repo, err := a.vectorRepository(ctx, len(probe[0]))
	if err != nil {
		return nil, err
	}
	sel, err := fewshot.NewSemanticSelector(provider, repo, set, k)
	if err != nil {
		return nil, err
	}
	if err := sel.Add(ctx, examples...); err != nil {
		return nil, err
	}
	return sel, nil
}

func (a *App) vectorRepository(ctx context.Context, dim int) (vector.Repository, error) {
	v := a.Config.Vector
	if v.Host == "" {
		return vector.NewMemoryRepository(), nil
	}
	repo, err := qdrant.New(v.Host, v.Port, v.Collection)
	if err != nil {
		return nil, err
	}
	a.onClose(repo.Close)
	if err := repo.EnsureCollection(ctx, dim); err != nil {
		return nil, err
	}
	return repo, nil
}

func (a *App) onClose(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// Close releases stores, stops metrics and flushes traces.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		errs = append(errs, closers[i]())
	}
	errs = append(errs, a.Metrics.Shutdown(ctx), a.Tracing.Shutdown(ctx))
	return errors.Join(errs...)
}
