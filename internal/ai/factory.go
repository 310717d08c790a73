package ai

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jeffepok/botnet/internal/llm"
	"github.com/jeffepok/botnet/pkg/models"
)

// Factory hands out adapters. Remote clients are built once per provider
// and model; the rate limiter of a provider is shared by all its adapters.
type Factory struct {
	cfg      Config
	rng      *rand.Rand
	newModel ModelConstructor
	logger   zerolog.Logger

	mu       sync.Mutex
	adapters map[string]Adapter
	limiters map[models.ProviderType]*rate.Limiter
	locals   map[models.ProviderType]*LocalAdapter
}

// FactoryOption customizes a Factory
type FactoryOption func(*Factory)

// WithModelConstructor replaces the langchaingo client constructor
func WithModelConstructor(fn ModelConstructor) FactoryOption {
	return func(f *Factory) { f.newModel = fn }
}

// WithLogger sets the logger handed to adapters
func WithLogger(l zerolog.Logger) FactoryOption {
	return func(f *Factory) { f.logger = l }
}

// NewFactory creates a factory. rng must be safe for concurrent use when
// adapters are shared between goroutines.
func NewFactory(cfg Config, rng *rand.Rand, opts ...FactoryOption) *Factory {
	f := &Factory{
		cfg:      cfg,
		rng:      rng,
		newModel: NewModel,
		logger:   log.Logger,
		adapters: make(map[string]Adapter),
		limiters: make(map[models.ProviderType]*rate.Limiter),
		locals:   make(map[models.ProviderType]*LocalAdapter),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// For returns the adapter serving provider and model. Unknown providers and
// providers without usable credentials get a LocalAdapter.
func (f *Factory) For(provider models.ProviderType, model string) Adapter {
	switch provider {
	case models.ProviderOpenAI, models.ProviderAnthropic, models.ProviderGemini:
		return f.remote(provider, model)
	case models.ProviderLocal:
		return f.local(models.ProviderLocal)
	default:
		return f.local(models.ProviderLocal)
	}
}

func (f *Factory) remote(provider models.ProviderType, model string) Adapter {
	settings, _ := f.cfg.Settings(provider)
	if IsPlaceholderKey(settings.APIKey) {
		return f.local(provider)
	}
	if model == "" || model == "local" {
		model = settings.Model
	}

	key := string(provider) + "|" + model
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.adapters[key]; ok {
		return a
	}

	m, err := f.newModel(context.Background(), provider, settings, model)
	if err != nil {
		f.logger.Error().Err(err).
			Str("provider", string(provider)).
			Str("model", model).
			Msg("could not create provider client, using fallback content")
		return f.localLocked(provider)
	}

	client := llm.NewResilientClient(m, f.limiterLocked(provider, settings), f.cfg.Retry, f.logger).
		WithErrorMapper(ErrorMapper(provider))
	a := NewRemoteAdapter(provider, model, client, settings.Timeout, f.rng, f.logger)
	f.adapters[key] = a
	return a
}

func (f *Factory) local(pool models.ProviderType) *LocalAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.localLocked(pool)
}

func (f *Factory) localLocked(pool models.ProviderType) *LocalAdapter {
	if a, ok := f.locals[pool]; ok {
		return a
	}
	a := NewLocalAdapter(pool, NewFallback(f.rng))
	f.locals[pool] = a
	return a
}

// limiterLocked returns the provider's shared limiter, nil when unlimited
func (f *Factory) limiterLocked(provider models.ProviderType, settings ProviderConfig) *rate.Limiter {
	if l, ok := f.limiters[provider]; ok {
		return l
	}
	if settings.RequestsPerMinute <= 0 {
		return nil
	}
	burst := settings.Burst
	if burst < 1 {
		burst = 1
	}
	interval := time.Duration(math.Round(float64(time.Minute) / settings.RequestsPerMinute))
	l := rate.NewLimiter(rate.Every(interval), burst)
	f.limiters[provider] = l
	return l
}
