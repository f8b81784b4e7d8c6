package spread

import (
	"fmt"
	"log"
	"os"
	"time"
)

// Engine runs selection passes and position assessments. It holds no mutable
// state beyond its configuration, so a single Engine is safe for concurrent
// use across tickers.
type Engine struct {
	cfg    Config
	now    func() time.Time
	logger *log.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock injects the time source used to derive days to expiration when a
// snapshot does not carry them. Tests use this to stay deterministic.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger used for diagnostic lines such as discarded
// defective candidates.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New validates the configuration and builds an Engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("spread engine config: %w", err)
	}
	e := &Engine{
		cfg:    cfg,
		now:    time.Now,
		logger: log.New(os.Stderr, "spread: ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() Config {
	cfg := e.cfg
	cfg.Widths = append([]float64(nil), e.cfg.Widths...)
	return cfg
}

// WithBudget returns a copy of the engine that selects under a different
// budget. The receiver is not modified.
func (e *Engine) WithBudget(maxDebit float64, strict bool) *Engine {
	clone := *e
	clone.cfg.MaxDebit = maxDebit
	clone.cfg.BudgetStrict = strict
	return &clone
}

// SelectSpreads runs one full selection pass over a chain snapshot:
// generation, scoring and selection. Missing or empty upstream data yields
// an empty result, never an error; a scan must not fail because one symbol's
// feed came back hollow.
func (e *Engine) SelectSpreads(snap ChainSnapshot, tc *SelectionContext) SelectionResult {
	if snap.Spot <= 0 || len(snap.Calls) == 0 {
		return SelectionResult{Alternatives: []Recommendation{}}
	}

	dte := e.resolveDTE(snap)
	candidates, discarded := e.generateCandidates(snap, dte)
	if discarded > 0 {
		e.logger.Printf("%s: discarded %d spread(s) whose debit could not be priced inside (0, width)",
			snap.Symbol, discarded)
	}

	e.scoreCandidates(candidates, snap.Spot, tc)
	return e.selectFrom(candidates)
}

// resolveDTE prefers the provider-computed days to expiration and falls back
// to deriving them from the snapshot's expiration date and the engine clock.
func (e *Engine) resolveDTE(snap ChainSnapshot) int {
	if snap.DTE > 0 {
		return snap.DTE
	}
	if snap.Expiration.IsZero() {
		return 0
	}
	now := e.now().UTC().Truncate(24 * time.Hour)
	exp := snap.Expiration.UTC().Truncate(24 * time.Hour)
	days := int(exp.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
