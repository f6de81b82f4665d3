// Package brains holds the decision agents that map a market snapshot to a
// trade intent or a skip.
//
// Brains are pure: their only inputs are the Context value and constants
// compiled into them. They never read external state, never error, and
// return exactly one of intent or skip.
package brains

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/quantarch/helmsman/internal/domain"
)

// Context is what a brain sees: the snapshot plus symbol and correlation
// metadata, and the price context the orchestrator resolved from the bars.
type Context struct {
	Snapshot      domain.MarketSnapshot
	Symbol        string
	CorrelationID string
	LastClose     float64          // last H1 close
	Bias          domain.Direction // H1 momentum direction, FLAT when unclear
}

// Skip is a brain's decision not to trade, with its catalogued reason.
type Skip struct {
	ReasonCode string `json:"reason_code"`
	Message    string `json:"message"`
}

// Output is the result of one brain run: exactly one of Intent or Skip is set.
type Output struct {
	Intent *domain.Intent `json:"intent,omitempty"`
	Skip   *Skip          `json:"skip,omitempty"`
}

// Brain maps a context to an output. Implementations must be deterministic
// apart from the generated intent id.
type Brain func(ctx Context) Output

// Entry pairs a brain id with its function.
type Entry struct {
	ID    string
	Brain Brain
}

// Registry is the ordered collection of brains. Iteration order is fixed so
// replays are deterministic.
type Registry struct {
	entries []Entry
}

// NewRegistry returns the production registry in its fixed order.
func NewRegistry() *Registry {
	return &Registry{entries: []Entry{
		{ID: "A2", Brain: MomentumContinuation},
		{ID: "B3", Brain: RangeFade},
		{ID: "C3", Brain: RaidReversal},
		{ID: "D2", Brain: SessionBreakout},
	}}
}

// IterateInFixedOrder returns the entries in registration order.
func (r *Registry) IterateInFixedOrder() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// IDs returns the brain ids in iteration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.ID
	}
	return ids
}

// skip builds a skip output from a catalogued reason.
func skip(code, detail string) Output {
	msg := domain.ReasonDescription(code)
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}
	return Output{Skip: &Skip{ReasonCode: code, Message: msg}}
}

// intent assembles an intent with a fresh id.
func intent(ctx Context, brainID string, typ domain.IntentType, riskPct float64, plan domain.TradePlan, reason string) Output {
	return Output{Intent: &domain.Intent{
		IntentID:      uuid.NewString(),
		CorrelationID: ctx.CorrelationID,
		Symbol:        ctx.Symbol,
		BrainID:       brainID,
		Type:          typ,
		RiskPct:       decimalFromPct(riskPct),
		Plan:          plan,
		Constraints: domain.Constraints{
			MaxSlippageBps: maxSlippageBps,
			ValidUntil:     ctx.Snapshot.Timestamp.Add(intentValidity),
			MinRewardRisk:  minRewardRisk,
		},
		Why: domain.Why{ReasonCode: reason, Message: domain.ReasonDescription(reason)},
	}}
}

// rewardRisk computes the plan's reward/risk ratio; zero when undefined.
func rewardRisk(plan domain.TradePlan) float64 {
	risk := plan.Entry - plan.Stop
	reward := plan.Target - plan.Entry
	if risk < 0 {
		risk = -risk
	}
	if reward < 0 {
		reward = -reward
	}
	if risk == 0 {
		return 0
	}
	return reward / risk
}
