package oracle

import (
	"context"
	"math"
	"testing"
)

func TestCostEstimate(t *testing.T) {
	c := Cost{Prompt: 0.5, Completion: 1.5}
	got := c.Estimate(1_000_000)
	if math.Abs(got-2.0) > 1e-9 {
		t.Fatalf("Estimate(1M) = %f, want 2.0", got)
	}
}

func TestBudgetTrackerExhaustion(t *testing.T) {
	b := NewBudgetTracker(Cost{Prompt: 0.5, Completion: 1.5}, 2.0)

	if !b.Allow() {
		t.Fatalf("fresh tracker refused a request")
	}

	b.Record(1_000_000) // spends exactly the budget
	if b.Allow() {
		t.Fatalf("tracker allowed a request past the budget")
	}

	tokens, spent := b.Usage()
	if tokens != 1_000_000 {
		t.Fatalf("tokens = %d, want 1000000", tokens)
	}
	if math.Abs(spent-2.0) > 1e-9 {
		t.Fatalf("spent = %f, want 2.0", spent)
	}
}

func TestBudgetTrackerDisabled(t *testing.T) {
	b := NewBudgetTracker(Cost{Prompt: 0.5, Completion: 1.5}, 0)
	b.Record(10_000_000)
	if !b.Allow() {
		t.Fatalf("zero budget must disable the check, not deny everything")
	}
}

func TestAskRefusesOverBudgetWithoutCallingAPI(t *testing.T) {
	o := New(Config{
		APIKey:    "test",
		Model:     "test-model",
		MaxBudget: 0.01,
		Cost:      Cost{Prompt: 0.5, Completion: 1.5},
	}, nil, nil)

	// Exhaust the budget; the next Ask must refuse before any network I/O.
	o.budget.Record(1_000_000)

	got := o.Ask(context.Background(), "hello")
	if got != OverBudgetAnswer {
		t.Fatalf("Ask = %q, want the over-budget refusal", got)
	}
}
