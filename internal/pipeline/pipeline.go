package pipeline

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/IshaanNene/itemreviewed/internal/config"
	"github.com/IshaanNene/itemreviewed/internal/observability"
	"github.com/IshaanNene/itemreviewed/internal/types"
)

// Middleware processes a record and returns the (possibly modified) record.
// Return nil to drop the record from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a record. Return nil to drop it.
	Process(rec *types.ClaimReviewRecord) (*types.ClaimReviewRecord, error)
}

// Resetter is implemented by middleware that keeps state across records.
// Reset clears it so a new run starts fresh.
type Resetter interface {
	Reset()
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Default returns the chain applied before records are stored: drop records without
// a fact-check URL or reviewed items, then drop duplicate claims.
func Default(logger *slog.Logger) *Pipeline {
	return NewFromConfig(config.PipelineConfig{}, logger)
}

// NewFromConfig builds the storage chain. Excluded hosts are filtered before the
// required-fields check so records left without items are dropped.
func NewFromConfig(cfg config.PipelineConfig, logger *slog.Logger) *Pipeline {
	p := New(logger)
	if len(cfg.ExcludeHosts) > 0 {
		p.Use(NewItemsFilterMiddleware(cfg.ExcludeHosts))
	}
	p.Use(&RequiredFieldsMiddleware{KeepWithoutItems: cfg.KeepWithoutItems})
	if cfg.CleanClaims {
		p.Use(NewClaimCleanMiddleware())
	}
	p.Use(NewDedupMiddleware())
	return p
}

// SetMetrics attaches a metrics sink that counts drops per stage.
func (p *Pipeline) SetMetrics(m *observability.Metrics) {
	p.metrics = m
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the record through all middleware in order.
func (p *Pipeline) Process(rec *types.ClaimReviewRecord) (*types.ClaimReviewRecord, error) {
	current := rec

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage:  mw.Name(),
				Record: current,
				Err:    err,
			}
		}
		if result == nil {
			p.metrics.RecordDropped(mw.Name())
			p.logger.Debug("record dropped", "stage", mw.Name(), "factcheck_url", rec.FactcheckURL)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Reset clears per-run middleware state such as the dedup set.
func (p *Pipeline) Reset() {
	for _, mw := range p.middlewares {
		if r, ok := mw.(Resetter); ok {
			r.Reset()
		}
	}
}

// ProcessAll runs one batch through the chain, keeping input order. Duplicates are
// detected within the batch only, so a reused pipeline gives the same result on
// every run. Records that fail a stage are reported in errs and left out of kept.
func (p *Pipeline) ProcessAll(records []*types.ClaimReviewRecord) (kept []*types.ClaimReviewRecord, errs []error) {
	p.Reset()
	for _, rec := range records {
		if rec == nil {
			continue
		}
		out, err := p.Process(rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if out != nil {
			kept = append(kept, out)
		}
	}
	return kept, errs
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// --- Built-in Middleware ---

// RequiredFieldsMiddleware drops records with no fact-check URL or no reviewed items.
// Such records carry no claim-to-source mapping.
type RequiredFieldsMiddleware struct {
	// KeepWithoutItems keeps records whose items_reviewed is null.
	KeepWithoutItems bool
}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(rec *types.ClaimReviewRecord) (*types.ClaimReviewRecord, error) {
	if strings.TrimSpace(rec.FactcheckURL) == "" {
		return nil, nil
	}
	if !m.KeepWithoutItems && !rec.HasItems() {
		return nil, nil
	}
	return rec, nil
}

// DedupMiddleware drops records whose key was already seen. The key covers the
// canonical fact-check URL, the claim and the reviewed URLs, so every claim of a
// multi-claim article is kept.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDedupMiddleware() *DedupMiddleware {
	return &DedupMiddleware{
		seen: make(map[string]struct{}),
	}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(rec *types.ClaimReviewRecord) (*types.ClaimReviewRecord, error) {
	key := rec.Key()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.seen[key]; exists {
		return nil, nil
	}
	m.seen[key] = struct{}{}
	return rec, nil
}

// Reset forgets every key seen so far.
func (m *DedupMiddleware) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = make(map[string]struct{})
}

// Seen returns how many distinct records passed through.
func (m *DedupMiddleware) Seen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
