// Package core defines the domain types shared by the monitor, strategy
// and persistence packages: the closed enums from the wire contract and
// the four record types (MonitorTask, StrategyLevel, TradingStrategy,
// TradeRecord) that get read and written as JSON.
package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentType distinguishes the two symbol kinds a MonitorTask can track.
type InstrumentType string

const (
	InstrumentOption InstrumentType = "option"
	InstrumentSpot   InstrumentType = "spot"
)

func (t InstrumentType) Valid() bool {
	switch t {
	case InstrumentOption, InstrumentSpot:
		return true
	}
	return false
}

func (t *InstrumentType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v := InstrumentType(s)
	if !v.Valid() {
		return fmt.Errorf("core: invalid instrument_type %q", s)
	}
	*t = v
	return nil
}

// MonitorStatus is the lifecycle state of a MonitorTask. It is monotone:
// active -> {triggered, expired, cancelled} only.
type MonitorStatus string

const (
	MonitorStatusActive    MonitorStatus = "active"
	MonitorStatusTriggered MonitorStatus = "triggered"
	MonitorStatusExpired   MonitorStatus = "expired"
	MonitorStatusCancelled MonitorStatus = "cancelled"
)

func (s MonitorStatus) Valid() bool {
	switch s {
	case MonitorStatusActive, MonitorStatusTriggered, MonitorStatusExpired, MonitorStatusCancelled:
		return true
	}
	return false
}

func (s *MonitorStatus) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	ms := MonitorStatus(v)
	if !ms.Valid() {
		return fmt.Errorf("core: invalid monitor status %q", v)
	}
	*s = ms
	return nil
}

// MonitorType tags a MonitorTask (and a level execution) with the role it
// plays in a strategy level's lifecycle, or "" for a bare, strategy-less
// monitor.
type MonitorType string

const (
	MonitorTypeEntry      MonitorType = "ENTRY"
	MonitorTypeTakeProfit MonitorType = "TAKE_PROFIT"
	MonitorTypeStopLoss   MonitorType = "STOP_LOSS"
	MonitorTypeNone       MonitorType = ""
)

func (t MonitorType) Valid() bool {
	switch t {
	case MonitorTypeEntry, MonitorTypeTakeProfit, MonitorTypeStopLoss, MonitorTypeNone:
		return true
	}
	return false
}

func (t *MonitorType) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	mt := MonitorType(v)
	if !mt.Valid() {
		return fmt.Errorf("core: invalid monitor_type %q", v)
	}
	*t = mt
	return nil
}

// TriggerDirection is the direction a price crossing was detected in.
type TriggerDirection string

const (
	TriggerUpCross   TriggerDirection = "up_cross"
	TriggerDownCross TriggerDirection = "down_cross"
)

func (d TriggerDirection) Valid() bool {
	switch d {
	case TriggerUpCross, TriggerDownCross:
		return true
	}
	return false
}

// TriggerType is how a StrategyLevel's monitor(s) are derived from the
// level's configuration, see the strategy engine's sync operation.
type TriggerType string

const (
	TriggerImmediate        TriggerType = "immediate"
	TriggerConditional      TriggerType = "conditional"
	TriggerBTCPrice         TriggerType = "btc_price"
	TriggerExistingPosition TriggerType = "existing_position"
	TriggerLevelClose       TriggerType = "level_close"
)

func (t TriggerType) Valid() bool {
	switch t {
	case TriggerImmediate, TriggerConditional, TriggerBTCPrice, TriggerExistingPosition, TriggerLevelClose:
		return true
	}
	return false
}

func (t *TriggerType) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	tt := TriggerType(v)
	if !tt.Valid() {
		return fmt.Errorf("core: invalid trigger_type %q", v)
	}
	*t = tt
	return nil
}

// LevelStatus is the lifecycle state of a StrategyLevel.
type LevelStatus string

const (
	LevelPending    LevelStatus = "pending"
	LevelWaiting    LevelStatus = "waiting"
	LevelMonitoring LevelStatus = "monitoring"
	LevelExecuting  LevelStatus = "executing"
	LevelCompleted  LevelStatus = "completed"
	LevelFailed     LevelStatus = "failed"
	LevelCancelled  LevelStatus = "cancelled"
)

func (s LevelStatus) Valid() bool {
	switch s {
	case LevelPending, LevelWaiting, LevelMonitoring, LevelExecuting, LevelCompleted, LevelFailed, LevelCancelled:
		return true
	}
	return false
}

// Terminal reports whether a level in this status can never transition again.
func (s LevelStatus) Terminal() bool {
	switch s {
	case LevelCompleted, LevelFailed, LevelCancelled:
		return true
	}
	return false
}

func (s *LevelStatus) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	ls := LevelStatus(v)
	if !ls.Valid() {
		return fmt.Errorf("core: invalid level status %q", v)
	}
	*s = ls
	return nil
}

// StrategyStatus is the lifecycle state of a TradingStrategy.
type StrategyStatus string

const (
	StrategyRunning StrategyStatus = "running"
	StrategyPaused  StrategyStatus = "paused"
	StrategyStopped StrategyStatus = "stopped"
)

func (s StrategyStatus) Valid() bool {
	switch s {
	case StrategyRunning, StrategyPaused, StrategyStopped:
		return true
	}
	return false
}

func (s *StrategyStatus) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	ss := StrategyStatus(v)
	if !ss.Valid() {
		return fmt.Errorf("core: invalid strategy status %q", v)
	}
	*s = ss
	return nil
}

// OrderSide mirrors the venue's buy/sell contract.
type OrderSide string

const (
	SideBuy  OrderSide = "Buy"
	SideSell OrderSide = "Sell"
)

func (s OrderSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the closing side for a position opened with s, used
// by the executor for TAKE_PROFIT/STOP_LOSS orders, which always close.
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s *OrderSide) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	os := OrderSide(v)
	if !os.Valid() {
		return fmt.Errorf("core: invalid order side %q", v)
	}
	*s = os
	return nil
}

// OrderType mirrors the venue's order type contract.
type OrderType string

const (
	OrderMarket OrderType = "Market"
	OrderLimit  OrderType = "Limit"
)

func (t OrderType) Valid() bool {
	return t == OrderMarket || t == OrderLimit
}

func (t *OrderType) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	ot := OrderType(v)
	if !ot.Valid() {
		return fmt.Errorf("core: invalid order type %q", v)
	}
	*t = ot
	return nil
}

// OptionInfo carries the option-specific identity a MonitorTask watches,
// present only when Instrument == InstrumentOption.
type OptionInfo struct {
	Symbol string `json:"symbol"`
}

// MonitorTask is a single directional price watch on one instrument. It
// fires its webhook exactly once, on the first price update that crosses
// TargetPrice in either direction.
//
// Invariants: Status is monotone (active -> {triggered, expired,
// cancelled} only); TriggeredAt is set iff Status == triggered; tasks
// with Status != active are never re-subscribed.
type MonitorTask struct {
	TaskID        string          `json:"task_id"`
	Instrument    InstrumentType  `json:"instrument_type"`
	MonitorSymbol string          `json:"monitor_symbol"`
	OptionInfo    *OptionInfo     `json:"option_info,omitempty"`
	TargetPrice   decimal.Decimal `json:"target_price"`
	WebhookURL    string          `json:"webhook_url"`
	Status        MonitorStatus   `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	CurrentPrice  *decimal.Decimal `json:"current_price,omitempty"`
	PreviousPrice *decimal.Decimal `json:"previous_price,omitempty"`
	TriggeredAt   *time.Time       `json:"triggered_at,omitempty"`

	StrategyID  string         `json:"strategy_id,omitempty"`
	LevelID     string         `json:"level_id,omitempty"`
	MonitorType MonitorType    `json:"monitor_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Symbol returns the instrument symbol this task watches, the option
// symbol for an option-instrument task, or the spot pair otherwise. It is
// an alias for MonitorSymbol kept for call-site readability.
func (t *MonitorTask) Symbol() string {
	return t.MonitorSymbol
}

// WebhookPayload is the exact body POSTed to WebhookURL on trigger.
type WebhookPayload struct {
	TaskID            string           `json:"task_id"`
	OptionSymbol      string           `json:"option_symbol,omitempty"`
	MonitorSymbol     string           `json:"monitor_symbol"`
	MonitorInstrument InstrumentType   `json:"monitor_instrument"`
	TargetPrice       decimal.Decimal  `json:"target_price"`
	TriggeredPrice    decimal.Decimal  `json:"triggered_price"`
	PreviousPrice     decimal.Decimal  `json:"previous_price"`
	TriggerDirection  TriggerDirection `json:"trigger_direction"`
	TriggeredAt       string           `json:"triggered_at"`
	StrategyID        string           `json:"strategy_id,omitempty"`
	LevelID           string           `json:"level_id,omitempty"`
	MonitorType       MonitorType      `json:"monitor_type,omitempty"`
	Metadata          map[string]any   `json:"metadata,omitempty"`
}

// LevelExecution is one append-only entry in a level's own execution
// history, recorded for every webhook the level handles, whether the
// resulting order succeeded or failed. Scanned by the strategy engine's
// sync operation to tell whether ENTRY has already succeeded.
type LevelExecution struct {
	MonitorType      MonitorType      `json:"monitor_type"`
	Side             OrderSide        `json:"side"`
	TriggerPrice     decimal.Decimal  `json:"trigger_price,omitempty"`
	TargetPrice      decimal.Decimal  `json:"target_price,omitempty"`
	TriggerDirection TriggerDirection `json:"trigger_direction,omitempty"`
	OrderID          string           `json:"order_id,omitempty"`
	Success          bool             `json:"success"`
	Message          string           `json:"message,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// StrategyLevel is one rung of a TradingStrategy's ladder: an entry
// condition plus its attached take-profit/stop-loss and optional
// successor levels chained via level_close triggers.
//
// Invariants: MonitorTaskIDs holds at most one entry per MonitorType; the
// ENTRY entry is cleared once ENTRY succeeds; TP/SL entries are cleared
// once the level reaches a terminal status; Executions preserves
// chronological order.
type StrategyLevel struct {
	LevelID      string          `json:"level_id"`
	StrategyID   string          `json:"strategy_id"`
	OptionSymbol string          `json:"option_symbol"`
	Side         OrderSide       `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`
	OrderType    OrderType       `json:"order_type"`
	LimitPrice   decimal.Decimal `json:"limit_price,omitempty"`

	TriggerType       TriggerType     `json:"trigger_type"`
	TriggerPrice      decimal.Decimal `json:"trigger_price,omitempty"`
	TakeProfit        decimal.Decimal `json:"take_profit,omitempty"`
	StopLoss          decimal.Decimal `json:"stop_loss,omitempty"`
	TriggerLevelID    string          `json:"trigger_level_id,omitempty"`
	TriggerLevelEvent MonitorType     `json:"trigger_level_event,omitempty"`

	Status         LevelStatus          `json:"status"`
	MonitorTaskIDs map[MonitorType]string `json:"monitor_task_ids,omitempty"`
	Executions     []LevelExecution     `json:"executions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntrySucceeded reports whether an ENTRY execution has already
// completed successfully for this level, used by sync to decide
// whether an ENTRY monitor still needs provisioning.
func (l *StrategyLevel) EntrySucceeded() bool {
	for _, e := range l.Executions {
		if e.MonitorType == MonitorTypeEntry && e.Success {
			return true
		}
	}
	return false
}

// TradingStrategy groups an ordered set of StrategyLevels under a single
// lifecycle (running/paused/stopped). Deleting a strategy cascades
// monitor cancellation for all of its levels.
type TradingStrategy struct {
	StrategyID  string          `json:"strategy_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Status      StrategyStatus  `json:"status"`
	Levels      []StrategyLevel `json:"levels"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Level looks up a level by id, returning nil if absent.
func (s *TradingStrategy) Level(levelID string) *StrategyLevel {
	for i := range s.Levels {
		if s.Levels[i].LevelID == levelID {
			return &s.Levels[i]
		}
	}
	return nil
}

// TradeRecord is one immutable, append-only entry in the strategy-wide
// trade log (trades.json), written once per execution attempt,
// success or failure.
type TradeRecord struct {
	ID               string           `json:"id"`
	StrategyID       string           `json:"strategy_id"`
	LevelID          string           `json:"level_id"`
	MonitorType      MonitorType      `json:"monitor_type"`
	Symbol           string           `json:"symbol"`
	Side             OrderSide        `json:"side"`
	OrderType        OrderType        `json:"order_type"`
	Quantity         decimal.Decimal  `json:"quantity"`
	TriggerPrice     decimal.Decimal  `json:"trigger_price,omitempty"`
	TargetPrice      decimal.Decimal  `json:"target_price,omitempty"`
	TriggerDirection TriggerDirection `json:"trigger_direction,omitempty"`
	OrderID          string           `json:"order_id,omitempty"`
	Success          bool             `json:"success"`
	Message          string           `json:"message,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}
