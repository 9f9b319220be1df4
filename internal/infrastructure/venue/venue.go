// Package venue is the HTTP client for exchange order placement. One
// client serves every venue ref; the ref selects the venue-side account
// on the execution service.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/settleflow/settleflow/internal/application/botrun"
	"github.com/settleflow/settleflow/internal/domain/bot"
)

// Client implements botrun.Venue and botrun.Pricer.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With().Str("service", "venue").Logger(),
	}
}

type orderRequest struct {
	VenueRef    string          `json:"venueRef"`
	Side        string          `json:"side"`
	Price       decimal.Decimal `json:"price"`
	AmountCents int64           `json:"amountCents"`
}

type orderResponse struct {
	VenueOrder string `json:"venueOrder"`
}

func (c *Client) PlaceSell(ctx context.Context, req botrun.QuoteRequest) (bot.Leg, error) {
	return c.place(ctx, "sell", req)
}

func (c *Client) PlaceBuy(ctx context.Context, req botrun.QuoteRequest) (bot.Leg, error) {
	return c.place(ctx, "buy", req)
}

func (c *Client) place(ctx context.Context, side string, req botrun.QuoteRequest) (bot.Leg, error) {
	body, err := json.Marshal(orderRequest{
		VenueRef:    req.VenueRef,
		Side:        side,
		Price:       req.Price,
		AmountCents: req.AmountCents,
	})
	if err != nil {
		return bot.Leg{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return bot.Leg{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return bot.Leg{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return bot.Leg{}, fmt.Errorf("venue order returned status %d", resp.StatusCode)
	}

	var placed orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&placed); err != nil {
		return bot.Leg{}, err
	}
	return bot.Leg{
		VenueRef:    req.VenueRef,
		VenueOrder:  placed.VenueOrder,
		Price:       req.Price,
		AmountCents: req.AmountCents,
	}, nil
}

func (c *Client) OrderFilled(ctx context.Context, venueRef, venueOrder string) (bool, error) {
	query := url.Values{"venueRef": {venueRef}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/orders/"+url.PathEscape(venueOrder)+"?"+query.Encode(), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("venue order status returned %d", resp.StatusCode)
	}

	var status struct {
		Filled bool `json:"filled"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, err
	}
	return status.Filled, nil
}

func (c *Client) MidPrice(ctx context.Context, venueRef string) (decimal.Decimal, error) {
	query := url.Values{"venueRef": {venueRef}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/ticker?"+query.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("venue ticker returned status %d", resp.StatusCode)
	}

	var ticker struct {
		Mid decimal.Decimal `json:"mid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return decimal.Zero, err
	}
	return ticker.Mid, nil
}
