package model

const (
	// DefaultContextLimit is the context-token budget of the completion backend.
	DefaultContextLimit = 4096
	// DefaultResetMargin is the remaining headroom, in percentage points, at or below which
	// the history is reset.
	DefaultResetMargin = 0.01
)

// QuotaState is derived each turn from reported usage and is never persisted.
type QuotaState struct {
	TotalTokens    int
	ContextLimit   int
	UtilizationPct float64
	// Known is false when the backend reported no usage or the limit is unset.
	Known       bool
	ShouldReset bool
}

// QuotaPolicy decides when a conversation has exhausted its context budget.
// Full reset is the only eviction strategy.
type QuotaPolicy struct {
	ContextLimit int
	ResetMargin  float64
}

func NewQuotaPolicy(contextLimit int) QuotaPolicy {
	return QuotaPolicy{ContextLimit: contextLimit, ResetMargin: DefaultResetMargin}
}

// Evaluate computes utilization for totalTokens. Missing data never forces a reset.
//
// Backends report usage in whole tokens, so headroom moves in steps of
// 100/ContextLimit points. At the default limit one token is ~0.024 points,
// wider than the default margin, and only a full budget triggers a reset.
func (p QuotaPolicy) Evaluate(totalTokens int) QuotaState {
	q := QuotaState{TotalTokens: totalTokens, ContextLimit: p.ContextLimit}
	if totalTokens <= 0 || p.ContextLimit <= 0 {
		return q
	}
	q.Known = true
	q.UtilizationPct = float64(totalTokens) * 100 / float64(p.ContextLimit)
	// Compared in token units so a headroom of exactly the margin resets.
	q.ShouldReset = float64(p.ContextLimit-totalTokens)*100 <= p.margin()*float64(p.ContextLimit)
	return q
}

func (p QuotaPolicy) margin() float64 {
	if p.ResetMargin <= 0 {
		return DefaultResetMargin
	}
	return p.ResetMargin
}
