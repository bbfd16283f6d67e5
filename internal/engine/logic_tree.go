package engine

import (
	"context"
	"encoding/json"

	"strategy-monitor/internal/database"
)

// TreeResult is the outcome of a full logic-tree evaluation: the overall
// verdict plus the memoised verdict for every condition visited.
type TreeResult struct {
	Met       bool                        `json:"met"`
	Evaluated map[string]*ConditionResult `json:"evaluated"`
}

// Snapshot serialises the result for a trigger log. The shape is part of
// the audit contract: {"met": bool, "evaluated": {id: {met, value, details}}}.
func (tr *TreeResult) Snapshot() json.RawMessage {
	data, err := json.Marshal(tr)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// EvaluateTree walks a strategy's logic tree depth-first. Condition
// verdicts are memoised in the EvalContext, so a condition referenced
// from several leaves is evaluated once. AND and OR short-circuit.
func EvaluateTree(ctx context.Context, ec *EvalContext, node *database.LogicNode) *TreeResult {
	met := evaluateNode(ctx, ec, node)
	return &TreeResult{Met: met, Evaluated: ec.Results()}
}

func evaluateNode(ctx context.Context, ec *EvalContext, node *database.LogicNode) bool {
	if node == nil {
		return false
	}

	if node.IsLeaf() {
		if memo, ok := ec.results[node.Ref]; ok {
			return memo.Met
		}
		cond := ec.Strategy.ConditionByID(node.Ref)
		if cond == nil {
			ec.results[node.Ref] = &ConditionResult{
				Met:     false,
				Details: map[string]interface{}{"missing_condition": true},
			}
			return false
		}
		result := EvaluateCondition(ctx, ec, cond)
		ec.results[node.Ref] = result
		return result.Met
	}

	if len(node.Conditions) == 0 {
		return false
	}
	switch node.Operator {
	case database.OperatorAnd:
		for _, child := range node.Conditions {
			if !evaluateNode(ctx, ec, child) {
				return false
			}
		}
		return true
	case database.OperatorOr:
		for _, child := range node.Conditions {
			if evaluateNode(ctx, ec, child) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
