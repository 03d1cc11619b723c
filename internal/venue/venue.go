// Package venue implements the Go contract for the trading venue the
// Level Executor and spot poller talk to: a signed REST implementation
// of core.VenueClient, so the rest of the system can be exercised
// end-to-end against it. Instrument metadata and order book/account
// state are not handled here.
package venue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/peter29ljf/bybitoption/internal/config"
	"github.com/peter29ljf/bybitoption/internal/core"
	apperrors "github.com/peter29ljf/bybitoption/pkg/errors"
	httpclient "github.com/peter29ljf/bybitoption/pkg/http"
)

// venueRequestsPerSecond caps outbound REST calls well under the
// exchange's documented per-IP limit, so a burst of level executions or
// spot-ticker polls can never trip it.
const venueRequestsPerSecond = 10

// Client is a signed REST implementation of core.VenueClient, grounded
// on the Bybit V5 request-signing scheme: HMAC-SHA256 over
// timestamp+apiKey+recvWindow+body, sent as X-BAPI-* headers. Transport
// is the shared failsafe-go-wrapped client (retry on 5xx/network,
// circuit-break on sustained failure), appropriate here because these
// are read/write venue calls, unlike the webhook dispatcher which must
// stay at-most-once. A token-bucket limiter throttles every outbound
// call so order placement and ticker polling share one request budget.
type Client struct {
	cfg     config.VenueConfig
	http    *httpclient.Client
	logger  core.ILogger
	limiter *rate.Limiter
}

// NewClient builds a venue REST client from the configured credentials
// and base URL.
func NewClient(cfg config.VenueConfig, logger core.ILogger, timeout time.Duration) *Client {
	c := &Client{
		cfg:     cfg,
		logger:  logger.WithField("component", "venue"),
		limiter: rate.NewLimiter(rate.Limit(venueRequestsPerSecond), venueRequestsPerSecond),
	}
	c.http = httpclient.NewClient(cfg.BaseURL, timeout, c)
	return c
}

var _ core.VenueClient = (*Client)(nil)

// SignRequest implements httpclient.Signer: HMAC-SHA256 over
// timestamp+apiKey+recvWindow+body, read back from the request so the
// signature covers exactly what was sent.
func (c *Client) SignRequest(req *http.Request) error {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	recvWindow := strconv.Itoa(c.cfg.RecvWindow)

	var body string
	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err == nil {
			buf := make([]byte, 0)
			chunk := make([]byte, 4096)
			for {
				n, rerr := rc.Read(chunk)
				buf = append(buf, chunk[:n]...)
				if rerr != nil {
					break
				}
			}
			body = string(buf)
		}
	}

	payload := timestamp + string(c.cfg.APIKey) + recvWindow + body
	mac := hmac.New(sha256.New, []byte(string(c.cfg.SecretKey)))
	mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))

	req.Header.Set("X-BAPI-API-KEY", string(c.cfg.APIKey))
	req.Header.Set("X-BAPI-SIGN", signature)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	return nil
}

// PlaceOrder submits a signed order create request. req.Category is
// always "option" for this system, kept as a field so the client stays
// exchange-shape-correct without hardcoding it.
func (c *Client) PlaceOrder(ctx context.Context, req core.PlaceOrderRequest) (core.OrderResult, error) {
	body := map[string]interface{}{
		"category":  req.Category,
		"symbol":    req.Symbol,
		"side":      string(req.Side),
		"orderType": string(req.Type),
		"qty":       req.Qty.String(),
	}
	if req.Type == core.OrderLimit {
		body["price"] = req.Price.String()
	}
	if req.LinkID != "" {
		body["orderLinkId"] = req.LinkID
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return core.OrderResult{}, fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}
	respBody, err := c.http.Post(ctx, "/v5/order/create", body)
	if err != nil {
		return core.OrderResult{}, fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}

	var response struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			OrderID     string `json:"orderId"`
			OrderLinkID string `json:"orderLinkId"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return core.OrderResult{}, fmt.Errorf("venue: decode response: %w", err)
	}

	result := core.OrderResult{
		RetCode:     response.RetCode,
		RetMsg:      response.RetMsg,
		OrderID:     response.Result.OrderID,
		OrderLinkID: response.Result.OrderLinkID,
	}
	if response.RetCode != 0 {
		return result, fmt.Errorf("%w: %s (%d)", apperrors.ErrVenueRejected, response.RetMsg, response.RetCode)
	}
	result.OrderStatus = "New"
	return result, nil
}

// CancelOrder submits a signed order cancel request.
func (c *Client) CancelOrder(ctx context.Context, category, symbol, orderID string) error {
	body := map[string]interface{}{
		"category": category,
		"symbol":   symbol,
		"orderId":  orderID,
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}
	respBody, err := c.http.Post(ctx, "/v5/order/cancel", body)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}

	var response struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return fmt.Errorf("venue: decode response: %w", err)
	}
	// 110001: order not found, treat as already cancelled.
	if response.RetCode != 0 && response.RetCode != 110001 {
		return fmt.Errorf("%w: %s (%d)", apperrors.ErrVenueRejected, response.RetMsg, response.RetCode)
	}
	return nil
}

// GetTickers fetches the last traded price for the given symbols via
// the venue's public tickers endpoint, used by the spot poller.
func (c *Client) GetTickers(ctx context.Context, category string, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))

	for _, symbol := range symbols {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
		}
		respBody, err := c.http.Get(ctx, "/v5/market/tickers", map[string]string{
			"category": category,
			"symbol":   symbol,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
		}

		var response struct {
			RetCode int    `json:"retCode"`
			RetMsg  string `json:"retMsg"`
			Result  struct {
				List []struct {
					Symbol    string `json:"symbol"`
					LastPrice string `json:"lastPrice"`
				} `json:"list"`
			} `json:"result"`
		}
		if err := json.Unmarshal(respBody, &response); err != nil {
			return nil, fmt.Errorf("venue: decode response: %w", err)
		}
		if response.RetCode != 0 {
			return nil, fmt.Errorf("%w: %s (%d)", apperrors.ErrVenueRejected, response.RetMsg, response.RetCode)
		}

		for _, t := range response.Result.List {
			price, err := decimal.NewFromString(t.LastPrice)
			if err != nil {
				c.logger.Warn("venue: bad price in ticker response", "symbol", t.Symbol, "raw", t.LastPrice)
				continue
			}
			out[strings.ToUpper(t.Symbol)] = price
		}
	}

	return out, nil
}
