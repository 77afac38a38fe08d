package risk

import (
	"sync/atomic"

	"tickcore/internal/schema"
)

// Guardian is the loss based circuit breaker. Once a limit is breached
// the halt latches: later updates are no-ops until ResetHalt.
type Guardian struct {
	limits   schema.RiskLimits
	halted   atomic.Bool
	trades   int
	lastMtm  float64
	lastHalt schema.Halt
}

// NewGuardian creates a guardian with the initial limits.
func NewGuardian(limits schema.RiskLimits) *Guardian {
	return &Guardian{limits: limits}
}

// Limits returns the active limits.
func (g *Guardian) Limits() schema.RiskLimits {
	return g.limits
}

// UpdateLimits replaces the limits; they apply from the next evaluation.
// A latched halt stays latched. MaxLoss 0 and MaxTrades 0 disable their checks.
func (g *Guardian) UpdateLimits(limits schema.RiskLimits) {
	g.limits = limits
}

// Halted reports whether the halt has latched.
func (g *Guardian) Halted() bool {
	return g.halted.Load()
}

// LastHalt returns the halt that latched the guardian.
func (g *Guardian) LastHalt() (schema.Halt, bool) {
	if !g.halted.Load() {
		return schema.Halt{}, false
	}
	return g.lastHalt, true
}

// OnMtmUpdate evaluates a mark-to-market figure. It returns the halt and
// true only on the evaluation that first breaches MaxLoss.
func (g *Guardian) OnMtmUpdate(mtm float64) (schema.Halt, bool) {
	g.lastMtm = mtm
	if g.halted.Load() {
		return schema.Halt{}, false
	}
	if !breachesLoss(mtm, g.limits.MaxLoss) {
		return schema.Halt{}, false
	}
	return g.latch(schema.Halt{
		Reason:    schema.HaltReasonMaxLoss,
		Threshold: g.limits.MaxLoss,
		Value:     mtm,
	})
}

// OnTrade counts an executed trade and halts once MaxTrades is exceeded.
func (g *Guardian) OnTrade() (schema.Halt, bool) {
	g.trades++
	if g.halted.Load() || g.limits.MaxTrades <= 0 || g.trades <= g.limits.MaxTrades {
		return schema.Halt{}, false
	}
	return g.latch(schema.Halt{
		Reason:    schema.HaltReasonMaxTrades,
		Threshold: float64(g.limits.MaxTrades),
		Value:     float64(g.trades),
	})
}

// Trades returns the number of trades counted since the last reset.
func (g *Guardian) Trades() int {
	return g.trades
}

// ResetHalt clears the latch and the trade count.
func (g *Guardian) ResetHalt() {
	g.trades = 0
	g.lastHalt = schema.Halt{}
	g.halted.Store(false)
}

func (g *Guardian) latch(h schema.Halt) (schema.Halt, bool) {
	if !g.halted.CompareAndSwap(false, true) {
		return schema.Halt{}, false
	}
	g.lastHalt = h
	return h, true
}

// breachesLoss treats a zero limit as disabled. Positive limits are
// rejected before they reach the guardian.
func breachesLoss(mtm, maxLoss float64) bool {
	if maxLoss >= 0 {
		return false
	}
	return mtm <= maxLoss
}

// LastMtm returns the most recent mark-to-market figure seen.
func (g *Guardian) LastMtm() float64 {
	return g.lastMtm
}
