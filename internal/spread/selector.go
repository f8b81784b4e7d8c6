package spread

import (
	"fmt"
	"math"
	"sort"
)

// maxAlternatives is how many runner-up spreads a selection reports.
const maxAlternatives = 2

// rankByScore returns the candidates ordered by total score descending.
// Sorting is stable so identical inputs always rank identically.
func rankByScore(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalScore > ranked[j].TotalScore
	})
	return ranked
}

// selectFrom picks the primary recommendation and up to two alternatives
// from scored candidates.
//
// The primary defaults to the best-scoring candidate of the canonical width
// (the middle of the configured width set) as long as it scores within the
// configured window of the overall best; the canonical width is the easiest
// to communicate and to fill. Otherwise the overall best wins regardless of
// width. A budget, when configured, substitutes the best affordable
// candidate with an explanation, or reports the constraint when nothing
// fits.
func (e *Engine) selectFrom(candidates []Candidate) SelectionResult {
	result := SelectionResult{Alternatives: []Recommendation{}}
	if len(candidates) == 0 {
		return result
	}

	ranked := rankByScore(candidates)
	best := ranked[0]
	primary := best

	canonical := e.cfg.CanonicalWidth()
	if c, ok := bestOfWidth(ranked, canonical, e.cfg.StrikeTolerance); ok {
		if c.TotalScore >= best.TotalScore-e.cfg.CanonicalWindow {
			primary = c
		}
	}

	havePrimary := true
	if budget := e.cfg.MaxDebit; budget > 0 && primary.Cost() > budget {
		if affordable, ok := bestAffordable(ranked, budget); ok {
			result.Reason = fmt.Sprintf(
				"Top spread %s costs $%.0f, over the $%.0f budget; substituting the best affordable candidate, a $%.2f-wide %s for $%.0f.",
				describeStrikes(primary), primary.Cost(), budget,
				affordable.Width, describeStrikes(affordable), affordable.Cost())
			primary = affordable
		} else if e.cfg.BudgetStrict {
			result.Reason = fmt.Sprintf(
				"No candidate fits the $%.0f budget (cheapest is $%.0f); consider waiting for better pricing or scanning a shorter-dated expiration.",
				budget, cheapestCost(ranked))
			havePrimary = false
		} else {
			result.Reason = fmt.Sprintf(
				"Every candidate exceeds the $%.0f budget (cheapest is $%.0f); showing the unconstrained best for reference.",
				budget, cheapestCost(ranked))
		}
	}

	if havePrimary {
		rec := primary.Recommendation()
		result.Primary = &rec
	}

	for _, c := range ranked {
		if len(result.Alternatives) == maxAlternatives {
			break
		}
		if havePrimary && c.SameSpread(primary) {
			continue
		}
		if containsSpread(result.Alternatives, c) {
			continue
		}
		result.Alternatives = append(result.Alternatives, c.Recommendation())
	}

	return result
}

// bestOfWidth returns the highest-ranked candidate whose width matches
// target within tolerance.
func bestOfWidth(ranked []Candidate, target, tolerance float64) (Candidate, bool) {
	for _, c := range ranked {
		if math.Abs(c.Width-target) <= tolerance {
			return c, true
		}
	}
	return Candidate{}, false
}

// bestAffordable returns the highest-ranked candidate whose dollar cost fits
// the budget.
func bestAffordable(ranked []Candidate, budget float64) (Candidate, bool) {
	for _, c := range ranked {
		if c.Cost() <= budget {
			return c, true
		}
	}
	return Candidate{}, false
}

func cheapestCost(candidates []Candidate) float64 {
	cheapest := math.MaxFloat64
	for _, c := range candidates {
		if cost := c.Cost(); cost < cheapest {
			cheapest = cost
		}
	}
	return cheapest
}

func containsSpread(recs []Recommendation, c Candidate) bool {
	for _, r := range recs {
		if r.LongStrike == c.LongStrike && r.ShortStrike == c.ShortStrike {
			return true
		}
	}
	return false
}

func describeStrikes(c Candidate) string {
	return fmt.Sprintf("%.2f/%.2f", c.LongStrike, c.ShortStrike)
}

// Recommendation converts the candidate to its consumer-facing view.
func (c Candidate) Recommendation() Recommendation {
	return Recommendation{
		LongStrike:          c.LongStrike,
		ShortStrike:         c.ShortStrike,
		Expiration:          c.Expiration,
		DTE:                 c.DTE,
		EstimatedDebit:      c.Debit,
		MaxProfit:           c.MaxProfit,
		Breakeven:           c.Breakeven,
		CushionPct:          c.CushionPct,
		ReturnOnRiskPct:     c.ReturnOnRiskPct,
		SpreadWidth:         c.Width,
		ProbabilityOfProfit: c.ProbabilityOfProfit,
		TotalScore:          c.TotalScore,
	}
}
