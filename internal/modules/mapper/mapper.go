// Package mapper translates approved decisions into the closed set of
// executor commands. It is a pure function of its input.
package mapper

import (
	"fmt"

	"github.com/quantarch/helmsman/internal/domain"
)

// lotsPerRiskPct converts approved risk percent into simulator quantity.
const lotsPerRiskPct = 1.0

// EmergencyAction is an edge-health monitor directive passed to the mapper.
type EmergencyAction struct {
	ExitNow bool     `json:"exit_now"`
	Symbols []string `json:"symbols"`
	Reason  string   `json:"reason"`
}

// Input is everything the mapper is allowed to look at.
type Input struct {
	Gate            domain.Gate
	Arm             domain.ArmState
	Emergency       *EmergencyAction
	Intent          domain.Intent
	Decision        domain.Decision
	CurrentStrategy string
	ActiveSymbols   []string
}

// Note records a need the command set cannot express; the caller ledgers it.
type Note struct {
	ReasonCode string `json:"reason_code"`
	Message    string `json:"message"`
}

// Map applies the mapping rules in order and returns the commands to send
// plus notes for anything the command set does not support.
func Map(in Input) ([]domain.ExecutorCommand, []Note) {
	// Gate G0 means observation only, no commands under any circumstance.
	if in.Gate == domain.GateG0 {
		return nil, nil
	}

	// Emergency exit preempts everything else in the tick.
	if in.Emergency != nil && in.Emergency.ExitNow {
		return []domain.ExecutorCommand{{
			Type: domain.CommandCloseDay,
			Payload: domain.CloseDayPayload{
				Symbols: in.Emergency.Symbols,
				Reason:  in.Emergency.Reason,
			},
			CorrelationID: in.Intent.CorrelationID,
		}}, nil
	}

	// Only approved decisions produce commands; MODIFY is an approval with
	// an adjusted risk.
	if in.Decision.Verdict != domain.VerdictAllow && in.Decision.Verdict != domain.VerdictModify {
		return nil, nil
	}

	switch in.Intent.Type {
	case domain.IntentClose:
		// Position lifecycle is the executor's job.
		return nil, nil
	case domain.IntentOpenLong, domain.IntentOpenShort, domain.IntentScaleIn:
		// Mapped below.
	default:
		return nil, []Note{{
			ReasonCode: domain.ReasonExecOrderFailed,
			Message:    fmt.Sprintf("no executor command for intent type %s", in.Intent.Type),
		}}
	}

	approved := in.Decision.ApprovedRiskPct(in.Intent.RiskPct)
	qty, _ := approved.Float64()
	qty *= lotsPerRiskPct

	var cmds []domain.ExecutorCommand
	emit := func(t domain.CommandType, payload any) {
		cmds = append(cmds, domain.ExecutorCommand{
			Type:          t,
			Payload:       payload,
			CorrelationID: in.Intent.CorrelationID,
		})
	}

	if in.Intent.BrainID != in.CurrentStrategy {
		emit(domain.CommandSetStrategy, domain.StrategyPayload{Strategy: in.Intent.BrainID})
	}

	emit(domain.CommandSetParams, domain.ParamsPayload{
		Symbol:    in.Intent.Symbol,
		Direction: in.Intent.Direction(),
		Entry:     in.Intent.Plan.Entry,
		Stop:      in.Intent.Plan.Stop,
		Target:    in.Intent.Plan.Target,
		Timeframe: in.Intent.Plan.Timeframe,
		Quantity:  qty,
	})

	if in.Decision.Verdict == domain.VerdictModify && in.Decision.Adjustment != nil {
		emit(domain.CommandSetRisk, domain.RiskPayload{RiskPct: in.Decision.Adjustment.AdjustedPct})
	}

	if !contains(in.ActiveSymbols, in.Intent.Symbol) {
		symbols := make([]string, len(in.ActiveSymbols), len(in.ActiveSymbols)+1)
		copy(symbols, in.ActiveSymbols)
		symbols = append(symbols, in.Intent.Symbol)
		emit(domain.CommandSetSymbols, domain.SymbolsPayload{Symbols: symbols})
	}

	if in.Arm == domain.ArmDisarmed && in.Gate.Rank() >= domain.GateG1.Rank() {
		emit(domain.CommandArm, nil)
	}

	return cmds, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
