// Package streaming provides the option ticker WebSocket subscriber: a
// core.TickerSource backed by the venue's public options stream, used by
// the Price Monitor for every option-instrument task.
package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/peter29ljf/bybitoption/internal/alert"
	"github.com/peter29ljf/bybitoption/internal/core"
	"github.com/peter29ljf/bybitoption/pkg/websocket"
)

// tickerMessage is the subset of the venue's public ticker push this
// subscriber cares about: topic "tickers.{symbol}" carrying a mark price.
type tickerMessage struct {
	Topic string `json:"topic"`
	Data  struct {
		Symbol    string `json:"symbol"`
		MarkPrice string `json:"markPrice"`
		LastPrice string `json:"lastPrice"`
	} `json:"data"`
}

type subscribeOp struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// Subscriber maintains a diffed subscription set against the venue's
// public option ticker stream and forwards every price update to a
// single registered callback.
type Subscriber struct {
	wsURL  string
	logger core.ILogger
	alerts *alert.AlertManager

	client *websocket.Client

	mu      sync.Mutex
	symbols map[string]struct{}
	cb      func(core.TickerUpdate)
}

// NewSubscriber builds a Subscriber against wsURL. alerts may be nil.
func NewSubscriber(wsURL string, logger core.ILogger, alerts *alert.AlertManager) *Subscriber {
	return &Subscriber{
		wsURL:   wsURL,
		logger:  logger.WithField("component", "option_subscriber"),
		alerts:  alerts,
		symbols: make(map[string]struct{}),
	}
}

// SetCallback registers the function invoked for every price update.
func (s *Subscriber) SetCallback(cb func(core.TickerUpdate)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

// Start connects the underlying WebSocket client and re-subscribes to
// whatever symbol set is already configured.
func (s *Subscriber) Start(ctx context.Context) error {
	s.client = websocket.NewClient(s.wsURL, s.handleMessage, s.logger)
	s.client.SetPingConfig(20*time.Second, 10*time.Second, 40*time.Second)
	s.client.SetReconnectPolicy(60*time.Second, 10)
	s.client.SetOnConnected(s.resubscribeAll)
	s.client.SetOnExhausted(func() {
		s.logger.Error("option stream reconnection exhausted, giving up")
		if s.alerts != nil {
			s.alerts.Alert(context.Background(), "option stream down",
				"reconnection attempts exhausted; option-instrument monitor tasks are no longer receiving price updates",
				alert.Critical, nil)
		}
	})
	s.client.Start()
	return nil
}

// Stop tears down the underlying WebSocket connection.
func (s *Subscriber) Stop() error {
	if s.client != nil {
		s.client.Stop()
	}
	return nil
}

// UpdateSymbols diffs the desired symbol set against what's currently
// subscribed and sends only the incremental subscribe/unsubscribe ops.
func (s *Subscriber) UpdateSymbols(symbols map[string]struct{}) error {
	s.mu.Lock()
	var toAdd, toRemove []string
	for sym := range symbols {
		if _, ok := s.symbols[sym]; !ok {
			toAdd = append(toAdd, sym)
		}
	}
	for sym := range s.symbols {
		if _, ok := symbols[sym]; !ok {
			toRemove = append(toRemove, sym)
		}
	}
	s.symbols = make(map[string]struct{}, len(symbols))
	for sym := range symbols {
		s.symbols[sym] = struct{}{}
	}
	s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	if len(toAdd) > 0 {
		if err := s.send("subscribe", toAdd); err != nil {
			return err
		}
	}
	if len(toRemove) > 0 {
		if err := s.send("unsubscribe", toRemove); err != nil {
			return err
		}
	}
	return nil
}

func (s *Subscriber) resubscribeAll() {
	s.mu.Lock()
	args := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		args = append(args, topicFor(sym))
	}
	s.mu.Unlock()
	if len(args) == 0 {
		return
	}
	if err := s.client.Send(subscribeOp{Op: "subscribe", Args: args}); err != nil {
		s.logger.Error("option stream resubscribe failed", "error", err)
	}
}

func (s *Subscriber) send(op string, symbols []string) error {
	args := make([]string, len(symbols))
	for i, sym := range symbols {
		args[i] = topicFor(sym)
	}
	return s.client.Send(subscribeOp{Op: op, Args: args})
}

func topicFor(symbol string) string {
	return fmt.Sprintf("tickers.%s", symbol)
}

func (s *Subscriber) handleMessage(raw []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Warn("option stream malformed message, skipping", "error", err)
		return
	}
	if msg.Data.Symbol == "" {
		return // control frame (subscribe ack, pong, etc.)
	}

	priceStr := msg.Data.MarkPrice
	if priceStr == "" {
		priceStr = msg.Data.LastPrice
	}
	if priceStr == "" {
		return
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		s.logger.Warn("option stream non-numeric price, skipping", "symbol", msg.Data.Symbol, "price", priceStr, "error", err)
		return
	}

	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb == nil {
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("option stream callback panicked, continuing", "symbol", msg.Data.Symbol, "panic", r)
			}
		}()
		cb(core.TickerUpdate{Symbol: msg.Data.Symbol, Price: price})
	}()
}
