// Package core defines the domain types and interfaces shared across
// the monitor, strategy, persistence and venue packages.
package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// ILogger defines the interface for logging.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// IHealthMonitor defines the interface for health monitoring.
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// PlaceOrderRequest is the venue-agnostic request shape the Level
// Executor builds from a StrategyLevel. The venue package turns this
// into the signed REST call.
type PlaceOrderRequest struct {
	Category string          `json:"category"`
	Symbol   string          `json:"symbol"`
	Side     OrderSide       `json:"side"`
	Type     OrderType       `json:"orderType"`
	Qty      decimal.Decimal `json:"qty"`
	Price    decimal.Decimal `json:"price,omitempty"`
	LinkID   string          `json:"orderLinkId,omitempty"`
}

// OrderResult is the venue-agnostic response the Level Executor inspects
// to decide whether a level's order succeeded.
type OrderResult struct {
	RetCode     int    `json:"retCode"`
	RetMsg      string `json:"retMsg"`
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	OrderStatus string `json:"orderStatus"`
}

// Accepted reports whether the venue considered the order successfully
// placed: retCode 0 and a status that isn't an immediate rejection.
func (r OrderResult) Accepted() bool {
	if r.RetCode != 0 {
		return false
	}
	switch r.OrderStatus {
	case "Cancelled", "Rejected":
		return false
	}
	return true
}

// TickerUpdate is one price tick delivered by the streaming subscriber
// or the spot poller to the Price Monitor's callback.
type TickerUpdate struct {
	Symbol string
	Price  decimal.Decimal
}

// VenueClient is the out-of-scope trading venue's Go contract: signing,
// rate limiting and the streaming/REST transport live in the real
// exchange connector. The Level Executor and spot poller depend only on
// this interface.
type VenueClient interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, category, symbol, orderID string) error
	GetTickers(ctx context.Context, category string, symbols []string) (map[string]decimal.Decimal, error)
}

// TickerSource is implemented by anything that delivers price ticks to a
// registered callback: the streaming subscriber (options) and the spot
// poller (spot) both satisfy it, letting the Price Monitor treat them
// uniformly.
type TickerSource interface {
	Start(ctx context.Context) error
	Stop() error
	SetCallback(cb func(TickerUpdate))
	UpdateSymbols(symbols map[string]struct{}) error
}
