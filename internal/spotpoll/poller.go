// Package spotpoll implements the spot price poller: a core.TickerSource
// backed by periodic REST polling, used by the Price Monitor for every
// spot-instrument task (the venue has no public spot ticker stream in
// this deployment).
package spotpoll

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/peter29ljf/bybitoption/internal/core"
	"github.com/peter29ljf/bybitoption/pkg/retry"
)

// tickRetryPolicy bounds the in-tick retry a single poll gets before the
// poller falls back to waiting for the next scheduled tick. A transient
// blip shouldn't cost a full interval if it clears in a second or two.
var tickRetryPolicy = retry.RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// Poller periodically fetches spot tickers for a configured symbol set
// and forwards each update to a registered callback. It starts its
// internal loop only while the symbol set is non-empty; a panic inside
// one tick is recovered and logged, and the loop keeps running.
type Poller struct {
	venue    core.VenueClient
	logger   core.ILogger
	interval time.Duration

	mu      sync.Mutex
	symbols map[string]struct{}
	cb      func(core.TickerUpdate)
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	ctx context.Context
}

// NewPoller builds a Poller against venue, polling every interval
// (clamped to a 500ms floor, the venue's REST endpoints aren't meant
// for sub-second polling).
func NewPoller(venue core.VenueClient, logger core.ILogger, interval time.Duration) *Poller {
	if interval < 500*time.Millisecond {
		interval = 500 * time.Millisecond
	}
	return &Poller{
		venue:    venue,
		logger:   logger.WithField("component", "spot_poller"),
		interval: interval,
		symbols:  make(map[string]struct{}),
	}
}

// SetCallback registers the function invoked for every price update.
func (p *Poller) SetCallback(cb func(core.TickerUpdate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cb = cb
}

// Start records the parent context used to derive per-loop sub-contexts.
// It does not itself start polling, UpdateSymbols does that once the
// symbol set becomes non-empty.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctx = ctx
	return nil
}

// Stop halts the polling loop if running.
func (p *Poller) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	return nil
}

// UpdateSymbols replaces the polled symbol set, starting the loop if it
// transitions from empty to non-empty and stopping it on the reverse.
func (p *Poller) UpdateSymbols(symbols map[string]struct{}) error {
	p.mu.Lock()
	p.symbols = make(map[string]struct{}, len(symbols))
	for sym := range symbols {
		p.symbols[sym] = struct{}{}
	}
	empty := len(p.symbols) == 0
	wasRunning := p.running
	parent := p.ctx
	p.mu.Unlock()

	if empty && wasRunning {
		return p.Stop()
	}
	if !empty && !wasRunning && parent != nil {
		p.startLoop(parent)
	}
	return nil
}

func (p *Poller) startLoop(parent context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	p.running = true
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.runLoop(ctx)
}

// runLoop polls on a fixed interval until ctx is cancelled. pollOnce
// recovers and logs its own panics, so a bad tick never ends the loop.
func (p *Poller) runLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("spot poller tick panicked, continuing", "panic", r)
		}
	}()

	p.mu.Lock()
	symbols := make([]string, 0, len(p.symbols))
	for sym := range p.symbols {
		symbols = append(symbols, sym)
	}
	cb := p.cb
	p.mu.Unlock()
	if len(symbols) == 0 || cb == nil {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var prices map[string]decimal.Decimal
	err := retry.Do(reqCtx, tickRetryPolicy, func(error) bool { return true }, func() error {
		var rerr error
		prices, rerr = p.venue.GetTickers(reqCtx, "spot", symbols)
		return rerr
	})
	if err != nil {
		p.logger.Warn("spot poller request failed after in-tick retries, will try again next tick", "error", err)
		return
	}
	for sym, price := range prices {
		cb(core.TickerUpdate{Symbol: sym, Price: price})
	}
}
