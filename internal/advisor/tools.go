package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/marketdata"
	"github.com/eddiefleurent/schrute_spreads/internal/spread"
	"github.com/eddiefleurent/schrute_spreads/internal/storage"
	"github.com/eddiefleurent/schrute_spreads/internal/technical"
)

const (
	defaultHistoryDays = 250
	defaultTargetDTE   = 45
)

// Registry executes the model's tool calls against the live collaborators.
// Every tool returns a JSON payload the model can quote from; failures come
// back as errors for the session to report as error tool results.
type Registry struct {
	provider    marketdata.Provider
	engine      *spread.Engine
	builder     *technical.Builder
	store       storage.Interface
	historyDays int
	targetDTE   int
	now         func() time.Time
}

// NewRegistry wires the tools. builder may be nil (selection then runs
// without technical context); store may be nil (evaluate_position then only
// accepts inline parameters).
func NewRegistry(provider marketdata.Provider, engine *spread.Engine, builder *technical.Builder, store storage.Interface, historyDays, targetDTE int) *Registry {
	if historyDays <= 0 {
		historyDays = defaultHistoryDays
	}
	if targetDTE <= 0 {
		targetDTE = defaultTargetDTE
	}
	return &Registry{
		provider:    provider,
		engine:      engine,
		builder:     builder,
		store:       store,
		historyDays: historyDays,
		targetDTE:   targetDTE,
		now:         time.Now,
	}
}

// Definitions returns the tool list sent with every API turn.
func (r *Registry) Definitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name: "recommend_spread",
			Description: "Scan the option chain for a symbol and recommend bull call debit spreads ranked by score. " +
				"Returns the primary pick, alternatives and the selection reason as JSON.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"symbol": {"type": "string", "description": "Ticker symbol, e.g. SPY"},
					"budget": {"type": "number", "description": "Optional budget in dollars for one spread contract"}
				},
				"required": ["symbol"]
			}`),
		},
		{
			Name: "evaluate_position",
			Description: "Assess an open bull call debit spread and recommend HOLD, CLOSE or ROLL. " +
				"Pass position_id for a stored position, or describe one inline with ticker, long_strike, short_strike, cost_basis and dte.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"position_id": {"type": "string", "description": "ID of a stored position"},
					"ticker": {"type": "string", "description": "Ticker symbol for an inline position"},
					"long_strike": {"type": "number"},
					"short_strike": {"type": "number"},
					"cost_basis": {"type": "number", "description": "Debit paid per spread"},
					"current_value": {"type": "number", "description": "Observed live value of the spread, if known"},
					"dte": {"type": "integer", "description": "Days to expiration"}
				}
			}`),
		},
		{
			Name:        "get_quote",
			Description: "Fetch the latest quote for a symbol: last, bid, ask, previous close and volume.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"symbol": {"type": "string", "description": "Ticker symbol, e.g. SPY"}
				},
				"required": ["symbol"]
			}`),
		},
	}
}

// Execute runs the named tool and returns its JSON payload.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	switch name {
	case "recommend_spread":
		return r.recommendSpread(ctx, input)
	case "evaluate_position":
		return r.evaluatePosition(ctx, input)
	case "get_quote":
		return r.getQuote(ctx, input)
	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
}

func (r *Registry) recommendSpread(ctx context.Context, input json.RawMessage) (string, error) {
	var in struct {
		Symbol string  `json:"symbol"`
		Budget float64 `json:"budget"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing input: %w", err)
	}
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if symbol == "" {
		return "", fmt.Errorf("symbol is required")
	}

	chain, err := r.provider.GetChainNearestDTE(ctx, symbol, r.targetDTE)
	if err != nil {
		return "", fmt.Errorf("fetching chain for %s: %w", symbol, err)
	}

	var tc *spread.SelectionContext
	if r.builder != nil {
		// History is optional context; selection still works without it.
		bars, histErr := r.provider.GetDailyHistory(ctx, symbol, r.historyDays)
		if histErr != nil {
			bars = nil
		}
		tc = r.builder.Build(symbol, bars, chain)
	}

	engine := r.engine
	if in.Budget > 0 {
		engine = engine.WithBudget(in.Budget, false)
	}
	result := engine.SelectSpreads(*chain, tc)

	return marshalResult(struct {
		Symbol     string                 `json:"symbol"`
		Spot       float64                `json:"spot"`
		Expiration time.Time              `json:"expiration"`
		DTE        int                    `json:"dte"`
		Selection  spread.SelectionResult `json:"selection"`
	}{symbol, chain.Spot, chain.Expiration, chain.DTE, result})
}

func (r *Registry) evaluatePosition(ctx context.Context, input json.RawMessage) (string, error) {
	var in struct {
		PositionID   string   `json:"position_id"`
		Ticker       string   `json:"ticker"`
		LongStrike   float64  `json:"long_strike"`
		ShortStrike  float64  `json:"short_strike"`
		CostBasis    float64  `json:"cost_basis"`
		CurrentValue *float64 `json:"current_value"`
		DTE          int      `json:"dte"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing input: %w", err)
	}

	var pos spread.Position
	switch {
	case in.PositionID != "":
		if r.store == nil {
			return "", fmt.Errorf("no storage configured; describe the position inline instead")
		}
		stored, err := r.store.GetPositionByID(ctx, in.PositionID)
		if err != nil {
			return "", fmt.Errorf("loading position: %w", err)
		}
		pos = stored.ToSpreadInput(r.now(), in.CurrentValue)
	case in.Ticker != "":
		pos = spread.Position{
			Ticker:       strings.ToUpper(strings.TrimSpace(in.Ticker)),
			LongStrike:   in.LongStrike,
			ShortStrike:  in.ShortStrike,
			CostBasis:    in.CostBasis,
			CurrentValue: in.CurrentValue,
			DTE:          in.DTE,
		}
	default:
		return "", fmt.Errorf("pass position_id or an inline position with at least a ticker")
	}

	quote, err := r.provider.GetQuote(ctx, pos.Ticker)
	if err != nil {
		return "", fmt.Errorf("fetching quote for %s: %w", pos.Ticker, err)
	}
	assessment := r.engine.EvaluatePosition(pos, quote.Last)

	return marshalResult(struct {
		Ticker      string            `json:"ticker"`
		LongStrike  float64           `json:"long_strike"`
		ShortStrike float64           `json:"short_strike"`
		Spot        float64           `json:"spot"`
		DTE         int               `json:"dte"`
		Assessment  spread.Assessment `json:"assessment"`
	}{pos.Ticker, pos.LongStrike, pos.ShortStrike, quote.Last, pos.DTE, assessment})
}

func (r *Registry) getQuote(ctx context.Context, input json.RawMessage) (string, error) {
	var in struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing input: %w", err)
	}
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if symbol == "" {
		return "", fmt.Errorf("symbol is required")
	}

	quote, err := r.provider.GetQuote(ctx, symbol)
	if err != nil {
		return "", fmt.Errorf("fetching quote for %s: %w", symbol, err)
	}
	return marshalResult(quote)
}

func marshalResult(v any) (string, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	return string(raw), nil
}
