package database

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Strategy status values
const (
	StatusActive   = "active"
	StatusPaused   = "paused"
	StatusArchived = "archived"
	StatusError    = "error"
)

// Condition types
const (
	ConditionPriceAlert         = "price_alert"
	ConditionTechnicalIndicator = "technical_indicator"
	ConditionVolumeAlert        = "volume_alert"
)

// Logic tree operators
const (
	OperatorAnd = "AND"
	OperatorOr  = "OR"
)

// Strategy is a user-defined rule tree evaluated on a schedule.
type Strategy struct {
	ID              uuid.UUID    `json:"id"`
	UserID          uuid.UUID    `json:"user_id"`
	Name            string       `json:"name"`
	Description     *string      `json:"description,omitempty"`
	LogicTree       *LogicNode   `json:"logic_tree"`
	Schedule        string       `json:"schedule"`
	Assets          []string     `json:"assets"`
	Status          string       `json:"status"`
	LastRunAt       *time.Time   `json:"last_run_at,omitempty"`
	LastTriggeredAt *time.Time   `json:"last_triggered_at,omitempty"`
	TriggerCount    int          `json:"trigger_count"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	Conditions      []*Condition `json:"conditions"`
}

// ConditionByID finds an owned condition by its id string.
func (s *Strategy) ConditionByID(id string) *Condition {
	for _, c := range s.Conditions {
		if c.ID.String() == id {
			return c
		}
	}
	return nil
}

// Condition is one atomic predicate owned by a strategy. Payload is kept
// as raw JSON; the evaluator parses it per type and treats malformed
// payloads as a diagnostic, never an error.
type Condition struct {
	ID         uuid.UUID       `json:"id"`
	StrategyID uuid.UUID       `json:"strategy_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Label      *string         `json:"label,omitempty"`
	Enabled    bool            `json:"enabled"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TriggerLog is an append-only audit record of one trigger.
type TriggerLog struct {
	ID          uuid.UUID       `json:"id"`
	StrategyID  uuid.UUID       `json:"strategy_id"`
	TriggeredAt time.Time       `json:"triggered_at"`
	Snapshot    json.RawMessage `json:"snapshot"`
	Message     *string         `json:"message,omitempty"`
}

// LogicNode is one node of a strategy's Boolean tree. A leaf carries Ref
// (a condition id); a group carries Operator and a non-empty child list.
type LogicNode struct {
	Ref        string       `json:"ref,omitempty"`
	Operator   string       `json:"operator,omitempty"`
	Conditions []*LogicNode `json:"conditions,omitempty"`
}

// IsLeaf reports whether the node references a condition.
func (n *LogicNode) IsLeaf() bool { return n != nil && n.Ref != "" }

// PriceAlertPayload is the payload for price_alert conditions.
type PriceAlertPayload struct {
	Asset       string   `json:"asset"`
	Direction   string   `json:"direction"` // "above" or "below"
	TargetPrice *float64 `json:"target_price"`
}

// TechnicalIndicatorPayload is the payload for technical_indicator
// conditions. Params carries per-indicator settings (period, fast, slow,
// signal, mult, band).
type TechnicalIndicatorPayload struct {
	Indicator string          `json:"indicator"`
	Params    IndicatorParams `json:"params"`
	Operator  string          `json:"operator"`
	Value     *float64        `json:"value"`
	Asset     string          `json:"asset"`
	Timeframe string          `json:"timeframe"`
}

// IndicatorParams holds the tunables shared by the indicator set. Zero
// values select the conventional defaults at evaluation time.
type IndicatorParams struct {
	Period int     `json:"period,omitempty"`
	Fast   int     `json:"fast,omitempty"`
	Slow   int     `json:"slow,omitempty"`
	Signal int     `json:"signal,omitempty"`
	Mult   float64 `json:"mult,omitempty"`
	Band   string  `json:"band,omitempty"` // "middle", "upper", "lower"
}

// VolumeAlertPayload is the payload for volume_alert conditions.
type VolumeAlertPayload struct {
	Asset     string   `json:"asset"`
	Timeframe string   `json:"timeframe"`
	Operator  string   `json:"operator"`
	Threshold *float64 `json:"threshold"`
}

// CycleUpdate is the bookkeeping produced by evaluating one strategy in a
// scheduler cycle. All updates for a cycle commit in one transaction.
type CycleUpdate struct {
	StrategyID uuid.UUID
	RanAt      time.Time
	Triggered  bool
	Snapshot   json.RawMessage
	Message    *string
}
