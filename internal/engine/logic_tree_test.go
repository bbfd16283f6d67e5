package engine

import (
	"context"
	"encoding/json"
	"testing"

	"strategy-monitor/internal/database"
)

func leaf(ref string) *database.LogicNode {
	return &database.LogicNode{Ref: ref}
}

func group(op string, children ...*database.LogicNode) *database.LogicNode {
	return &database.LogicNode{Operator: op, Conditions: children}
}

// TestANDGroupShortCircuit mirrors the classic two-leaf AND: first true,
// second false, one price fetch total.
func TestANDGroupShortCircuit(t *testing.T) {
	data := &fakeData{prices: map[string]float64{"BTC": 60}}
	above := newCondition(t, database.ConditionPriceAlert, database.PriceAlertPayload{
		Asset: "BTC", Direction: "above", TargetPrice: f64(50),
	})
	below := newCondition(t, database.ConditionPriceAlert, database.PriceAlertPayload{
		Asset: "BTC", Direction: "below", TargetPrice: f64(50),
	})
	strategy := newTestStrategy(above, below)
	strategy.LogicTree = group(database.OperatorAnd, leaf(above.ID.String()), leaf(below.ID.String()))
	ec := NewEvalContext(strategy, data, "usd")

	result := EvaluateTree(context.Background(), ec, strategy.LogicTree)
	if result.Met {
		t.Error("AND(true, false) should be false")
	}
	if len(result.Evaluated) != 2 {
		t.Errorf("evaluated %d conditions, want 2", len(result.Evaluated))
	}
	if !result.Evaluated[above.ID.String()].Met {
		t.Error("first child should be met")
	}
	if result.Evaluated[below.ID.String()].Met {
		t.Error("second child should not be met")
	}
	if data.priceCalls != 1 {
		t.Errorf("priceCalls = %d, want 1 (shared spot price)", data.priceCalls)
	}
}

// TestANDStopsAtFirstFalse verifies later children are never visited.
func TestANDStopsAtFirstFalse(t *testing.T) {
	data := &fakeData{prices: map[string]float64{"BTC": 10}}
	failing := newCondition(t, database.ConditionPriceAlert, database.PriceAlertPayload{
		Asset: "BTC", Direction: "above", TargetPrice: f64(50),
	})
	skipped := newCondition(t, database.ConditionPriceAlert, database.PriceAlertPayload{
		Asset: "ETH", Direction: "above", TargetPrice: f64(1),
	})
	strategy := newTestStrategy(failing, skipped)
	strategy.LogicTree = group(database.OperatorAnd, leaf(failing.ID.String()), leaf(skipped.ID.String()))
	ec := NewEvalContext(strategy, data, "usd")

	result := EvaluateTree(context.Background(), ec, strategy.LogicTree)
	if result.Met {
		t.Error("group should be false")
	}
	if _, visited := result.Evaluated[skipped.ID.String()]; visited {
		t.Error("second child should be short-circuited away")
	}
}

func TestORShortCircuit(t *testing.T) {
	data := &fakeData{prices: map[string]float64{"BTC": 60}}
	hit := newCondition(t, database.ConditionPriceAlert, database.PriceAlertPayload{
		Asset: "BTC", Direction: "above", TargetPrice: f64(50),
	})
	skipped := newCondition(t, database.ConditionPriceAlert, database.PriceAlertPayload{
		Asset: "ETH", Direction: "above", TargetPrice: f64(1),
	})
	strategy := newTestStrategy(hit, skipped)
	strategy.LogicTree = group(database.OperatorOr, leaf(hit.ID.String()), leaf(skipped.ID.String()))
	ec := NewEvalContext(strategy, data, "usd")

	result := EvaluateTree(context.Background(), ec, strategy.LogicTree)
	if !result.Met {
		t.Error("OR with a true first child should be true")
	}
	if _, visited := result.Evaluated[skipped.ID.String()]; visited {
		t.Error("OR should short-circuit after the first true child")
	}
}

func TestMissingConditionRef(t *testing.T) {
	data := &fakeData{}
	strategy := newTestStrategy()
	strategy.LogicTree = leaf("00000000-0000-0000-0000-000000000001")
	ec := NewEvalContext(strategy, data, "usd")

	result := EvaluateTree(context.Background(), ec, strategy.LogicTree)
	if result.Met {
		t.Error("dangling ref should be false")
	}
	memo := result.Evaluated["00000000-0000-0000-0000-000000000001"]
	if memo == nil || memo.Details["missing_condition"] != true {
		t.Errorf("memo = %+v, want missing_condition", memo)
	}
}

// TestMemoisedRef verifies a condition referenced twice evaluates once.
func TestMemoisedRef(t *testing.T) {
	data := &fakeData{prices: map[string]float64{"BTC": 60}}
	cond := newCondition(t, database.ConditionPriceAlert, database.PriceAlertPayload{
		Asset: "BTC", Direction: "above", TargetPrice: f64(50),
	})
	strategy := newTestStrategy(cond)
	strategy.LogicTree = group(database.OperatorAnd, leaf(cond.ID.String()), leaf(cond.ID.String()))
	ec := NewEvalContext(strategy, data, "usd")

	result := EvaluateTree(context.Background(), ec, strategy.LogicTree)
	if !result.Met {
		t.Error("AND of the same true leaf twice should be true")
	}
	if data.priceCalls != 1 {
		t.Errorf("priceCalls = %d, want 1 (memoised verdict)", data.priceCalls)
	}
}

func TestDegenerateGroups(t *testing.T) {
	data := &fakeData{}
	strategy := newTestStrategy()
	ec := NewEvalContext(strategy, data, "usd")

	if EvaluateTree(context.Background(), ec, nil).Met {
		t.Error("nil tree should be false")
	}
	if EvaluateTree(context.Background(), ec, group(database.OperatorAnd)).Met {
		t.Error("empty group should be false")
	}
	if EvaluateTree(context.Background(), ec, group("XOR", leaf("x"))).Met {
		t.Error("unknown operator should be false")
	}
}

func TestSnapshotShape(t *testing.T) {
	data := &fakeData{prices: map[string]float64{"BTC": 60}}
	cond := newCondition(t, database.ConditionPriceAlert, database.PriceAlertPayload{
		Asset: "BTC", Direction: "above", TargetPrice: f64(50),
	})
	strategy := newTestStrategy(cond)
	strategy.LogicTree = leaf(cond.ID.String())
	ec := NewEvalContext(strategy, data, "usd")

	snapshot := EvaluateTree(context.Background(), ec, strategy.LogicTree).Snapshot()

	var decoded struct {
		Met       bool `json:"met"`
		Evaluated map[string]struct {
			Met   bool     `json:"met"`
			Value *float64 `json:"value"`
		} `json:"evaluated"`
	}
	if err := json.Unmarshal(snapshot, &decoded); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if !decoded.Met {
		t.Error("snapshot met should be true")
	}
	entry, ok := decoded.Evaluated[cond.ID.String()]
	if !ok {
		t.Fatal("snapshot should contain the evaluated condition")
	}
	if entry.Value == nil || *entry.Value != 60 {
		t.Errorf("snapshot value = %v, want 60", entry.Value)
	}
}
