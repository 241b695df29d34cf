// Package translate implements best-effort claim translation over an ordered list
// of providers with exponential backoff between rounds.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/IshaanNene/itemreviewed/internal/backoff"
	"github.com/IshaanNene/itemreviewed/internal/config"
	"github.com/IshaanNene/itemreviewed/internal/observability"
	"github.com/IshaanNene/itemreviewed/internal/types"
)

var (
	translateSleepFunc = backoff.Sleep
	jitterFunc         = rand.Float64
)

// Provider translates text into a target language.
type Provider interface {
	Name() string
	Translate(ctx context.Context, text, target string) (string, error)
}

// Translator tries its providers in order on every round and retries whole rounds
// with exponential backoff.
type Translator struct {
	providers   []Provider
	target      string
	retries     int
	backoffBase float64
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// New creates a Translator. Providers are tried in the order given.
func New(providers []Provider, cfg config.TranslateConfig, logger *slog.Logger) *Translator {
	target := cfg.TargetLanguage
	if target == "" {
		target = "en"
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &Translator{
		providers:   providers,
		target:      target,
		retries:     retries,
		backoffBase: cfg.BackoffBase,
		logger:      logger.With("component", "translator"),
	}
}

// NewFromConfig builds the provider list named in cfg.Translate.Providers.
// Providers that cannot be configured are skipped with a warning.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Translator, error) {
	tc := cfg.Translate
	var providers []Provider
	for _, name := range tc.Providers {
		switch strings.ToLower(name) {
		case "google":
			providers = append(providers, NewGoogleProvider(tc.GoogleEndpoint, tc.Timeout, cfg.Fetcher.UserAgent))
		case "openai":
			p, err := NewOpenAIProvider(tc.OpenAI, tc.Timeout)
			if err != nil {
				logger.Warn("skipping openai translation provider", "error", err)
				continue
			}
			providers = append(providers, p)
		case "ollama":
			providers = append(providers, NewOllamaProvider(tc.Ollama, tc.Timeout))
		default:
			return nil, fmt.Errorf("unknown translation provider %q", name)
		}
	}
	if len(providers) == 0 {
		return nil, types.ErrNoProviders
	}
	return New(providers, tc, logger), nil
}

// SetMetrics attaches a metrics sink.
func (t *Translator) SetMetrics(m *observability.Metrics) {
	t.metrics = m
}

// Providers returns the provider names in the order they are tried.
func (t *Translator) Providers() []string {
	names := make([]string, len(t.providers))
	for i, p := range t.providers {
		names[i] = p.Name()
	}
	return names
}

// Translate returns text translated into the target language.
// Blank text yields ErrEmptyText without calling any provider. When every provider
// fails on every round the result is a *types.TranslationError.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", types.ErrEmptyText
	}
	if len(t.providers) == 0 {
		return "", types.ErrNoProviders
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		out, err := t.round(ctx, text)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt >= t.retries {
			break
		}

		delay := backoff.Exponential(t.backoffBase, attempt, jitterFunc())
		t.logger.Warn("translation failed, backing off",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		if err := translateSleepFunc(ctx, delay); err != nil {
			return "", &types.TranslationError{Text: text, Attempts: attempt + 1, Err: err}
		}
	}
	return "", &types.TranslationError{Text: text, Attempts: t.retries + 1, Err: lastErr}
}

// round tries each provider once, returning the first non-empty translation.
func (t *Translator) round(ctx context.Context, text string) (string, error) {
	var errs []error
	for _, p := range t.providers {
		out, err := p.Translate(ctx, text, t.target)
		if err == nil && strings.TrimSpace(out) == "" {
			err = errors.New("empty translation")
		}
		if err != nil {
			t.metrics.TranslationAttempt(p.Name(), "error")
			t.logger.Debug("translation provider failed", "provider", p.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			if ctx.Err() != nil {
				return "", errors.Join(errs...)
			}
			continue
		}
		t.metrics.TranslationAttempt(p.Name(), "success")
		return out, nil
	}
	return "", errors.Join(errs...)
}
