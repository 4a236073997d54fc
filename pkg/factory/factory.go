package factory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	internalhttp "github.com/cecil-the-coder/resource-loader-kit/internal/http"
	"github.com/cecil-the-coder/resource-loader-kit/internal/logger"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/config"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/dual"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/events"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

// Env carries the shared dependencies a Builder may use
type Env struct {
	// Context bounds background work started while building, such as
	// OAuth2 token refreshes.
	Context context.Context
	HTTP    config.HTTPConfig
	Logger  *slog.Logger

	// Slot is "primary" or "secondary"
	Slot string

	clients map[string]*internalhttp.HTTPClient
}

// trackClient records the HTTP client built for the current slot
func (e Env) trackClient(c *internalhttp.HTTPClient) {
	if e.clients != nil && e.Slot != "" {
		e.clients[e.Slot] = c
	}
}

// HTTPMetrics is a snapshot of one HTTP strategy's client counters
type HTTPMetrics = internalhttp.ClientMetrics

// Builder creates the loaders of one strategy type. Either function may be
// nil when the type does not support that slot.
type Builder struct {
	Stream func(sc *config.StrategyConfig, env Env) (types.StreamLoader[string], error)
	Handle func(sc *config.StrategyConfig, env Env) (types.HandleLoader[string], error)
}

// Factory maps strategy types to builders
type Factory struct {
	builders map[string]Builder
	mutex    sync.RWMutex
}

// NewFactory creates an empty factory
func NewFactory() *Factory {
	return &Factory{
		builders: make(map[string]Builder),
	}
}

// New creates a factory with the default strategies registered
func New() *Factory {
	f := NewFactory()
	RegisterDefaultStrategies(f)
	return f
}

// Register adds or replaces the builder for a strategy type
func (f *Factory) Register(strategyType string, builder Builder) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.builders[strategyType] = builder
}

// SupportedTypes returns the registered strategy types in sorted order
func (f *Factory) SupportedTypes() []string {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	out := make([]string, 0, len(f.builders))
	for name := range f.builders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (f *Factory) builder(strategyType string) (Builder, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	b, ok := f.builders[strategyType]
	if !ok {
		return Builder{}, types.NewConfigurationError(fmt.Sprintf("strategy type %s not registered", strategyType))
	}
	return b, nil
}

// Built is an assembled loader with the components it was wired to
type Built struct {
	Loader *dual.Loader[string]

	// Collector is nil unless events are enabled
	Collector *events.Collector
	Logger    *slog.Logger

	// Defaults are the configured request defaults
	Defaults config.FetchConfig

	clients map[string]*internalhttp.HTTPClient
}

// HTTPMetrics returns the client counters of each HTTP strategy, keyed by
// slot. Slots served by other strategy types are absent.
func (b *Built) HTTPMetrics() map[string]HTTPMetrics {
	out := make(map[string]HTTPMetrics, len(b.clients))
	for slot, c := range b.clients {
		out[slot] = c.GetMetrics()
	}
	return out
}

// ResetHTTPMetrics zeroes the counters reported by HTTPMetrics
func (b *Built) ResetHTTPMetrics() {
	for _, c := range b.clients {
		c.ResetMetrics()
	}
}

// Fetch derives a fetcher for model with the configured size and runs it
// at the configured priority. The caller must call Cleanup on the returned
// fetcher once done with the result, also when Fetch fails.
func (b *Built) Fetch(ctx context.Context, model string) (*dual.Fetcher, *dual.Result, error) {
	f := b.Loader.Derive(model, b.Defaults.Width, b.Defaults.Height)
	result, err := f.Fetch(ctx, b.Defaults.FetchPriority())
	return f, result, err
}

// Close releases the event collector
func (b *Built) Close() error {
	if b.Collector == nil {
		return nil
	}
	return b.Collector.Close()
}

// Build assembles a dual loader from cfg. cfg must already be validated, as
// config.Load and config.Parse do.
func (f *Factory) Build(ctx context.Context, cfg *config.Config) (*Built, error) {
	if cfg == nil {
		return nil, types.NewConfigurationError("config is nil")
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, types.NewConfigurationError(err.Error()).WithOriginalErr(err)
	}
	log = log.With(slog.String(logger.KeyLoader, cfg.Name))

	clients := make(map[string]*internalhttp.HTTPClient, 2)
	env := Env{Context: ctx, HTTP: cfg.HTTP, Logger: log, clients: clients}

	var stream types.StreamLoader[string]
	if cfg.Primary != nil {
		b, err := f.builder(cfg.Primary.Type)
		if err != nil {
			return nil, err
		}
		if b.Stream == nil {
			return nil, types.NewConfigurationError(fmt.Sprintf("strategy type %s cannot serve the primary slot", cfg.Primary.Type))
		}
		env.Slot = "primary"
		l, err := b.Stream(cfg.Primary, env)
		if err != nil {
			return nil, fmt.Errorf("primary: %w", err)
		}
		stream = l
	}

	var handle types.HandleLoader[string]
	if cfg.Secondary != nil {
		b, err := f.builder(cfg.Secondary.Type)
		if err != nil {
			return nil, err
		}
		if b.Handle == nil {
			return nil, types.NewConfigurationError(fmt.Sprintf("strategy type %s cannot serve the secondary slot", cfg.Secondary.Type))
		}
		env.Slot = "secondary"
		l, err := b.Handle(cfg.Secondary, env)
		if err != nil {
			return nil, fmt.Errorf("secondary: %w", err)
		}
		handle = l
	}

	opts := []dual.Option{
		dual.WithName(cfg.Name),
		dual.WithLogger(log),
		dual.WithCleanupPolicy(cfg.CleanupPolicy),
		dual.WithIDCacheLimit(cfg.IDCacheLimit),
	}

	var collector *events.Collector
	if cfg.Events.Enabled {
		collector = events.NewCollector()
		opts = append(opts, dual.WithCollector(collector))
	}

	loader, err := dual.NewLoader[string](stream, handle, opts...)
	if err != nil {
		return nil, err
	}

	log.Info("loader assembled",
		slog.String("slots", loader.Slots().String()),
		slog.String("cleanup_policy", string(cfg.CleanupPolicy)),
		slog.Bool("events", collector != nil),
	)

	return &Built{
		Loader:    loader,
		Collector: collector,
		Logger:    log,
		Defaults:  cfg.Fetch,
		clients:   clients,
	}, nil
}

// Build assembles cfg with the default strategies
func Build(ctx context.Context, cfg *config.Config) (*Built, error) {
	return New().Build(ctx, cfg)
}
