package oracle

import "sync"

// Cost holds per-million-token prices in USD.
type Cost struct {
	Prompt     float64 `yaml:"prompt"`
	Completion float64 `yaml:"completion"`
}

// Estimate returns the estimated cost of a request with the given token count.
// The upstream API does not report exact usage, so callers estimate tokens
// from character counts and both prices apply to the whole estimate.
func (c Cost) Estimate(tokens int64) float64 {
	return float64(tokens) * (c.Prompt + c.Completion) / 1_000_000
}

// BudgetTracker accumulates estimated spend across oracle requests and stops
// admitting new requests once the configured budget is exhausted.
type BudgetTracker struct {
	mu     sync.Mutex
	cost   Cost
	max    float64
	tokens int64
	spent  float64
}

// NewBudgetTracker creates a tracker with the given prices and budget in USD.
// A non-positive max disables the budget check.
func NewBudgetTracker(cost Cost, max float64) *BudgetTracker {
	return &BudgetTracker{cost: cost, max: max}
}

// Allow reports whether another request fits within the budget.
func (b *BudgetTracker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.max <= 0 || b.spent < b.max
}

// Record accumulates the estimated usage of one completed request.
func (b *BudgetTracker) Record(tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens += tokens
	b.spent += b.cost.Estimate(tokens)
}

// Usage returns the accumulated token estimate and spend.
func (b *BudgetTracker) Usage() (tokens int64, spent float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens, b.spent
}
