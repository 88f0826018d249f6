// Package swap proxies exchange creation to the currency-swap broker. The
// broker response is passed back verbatim, status code included, so the
// storefront sees exactly what the broker said.
package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/payhook/internal/config"
	obsmetrics "github.com/smallbiznis/payhook/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrUnconfigured  = errors.New("swap_not_configured")
	ErrMissingAmount = errors.New("swap_amount_required")
	ErrInvalidAmount = errors.New("swap_amount_invalid")
)

const maxUpstreamBody = 1 << 20

type Params struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Client struct {
	log        *zap.Logger
	cfg        config.SwapConfig
	httpClient *http.Client
	obsMetrics *obsmetrics.Metrics
}

func NewClient(p Params) *Client {
	timeout := p.Cfg.Swap.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		log:        p.Log.Named("swap.client"),
		cfg:        p.Cfg.Swap,
		httpClient: &http.Client{Timeout: timeout},
		obsMetrics: p.ObsMetrics,
	}
}

// ExchangeRequest is what the storefront asks for. Amount is a decimal string
// in major units; currencies default to usd -> btc when omitted.
type ExchangeRequest struct {
	Amount       string `json:"amount"`
	CurrencyFrom string `json:"currency_from"`
	CurrencyTo   string `json:"currency_to"`
}

// ExchangeResult mirrors the broker response for passthrough.
type ExchangeResult struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

type brokerPayload struct {
	Fixed        bool   `json:"fixed"`
	CurrencyFrom string `json:"currency_from"`
	CurrencyTo   string `json:"currency_to"`
	Amount       string `json:"amount"`
	AddressTo    string `json:"address_to"`
}

func (c *Client) CreateExchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	if c.cfg.APIKey == "" || c.cfg.WalletAddress == "" {
		c.log.Error("swap client missing configuration")
		return nil, ErrUnconfigured
	}

	amount := strings.TrimSpace(req.Amount)
	if amount == "" {
		return nil, ErrMissingAmount
	}
	if value, err := strconv.ParseFloat(amount, 64); err != nil || value <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	from := strings.ToLower(strings.TrimSpace(req.CurrencyFrom))
	if from == "" {
		from = "usd"
	}
	to := strings.ToLower(strings.TrimSpace(req.CurrencyTo))
	if to == "" {
		to = "btc"
	}

	payload, err := json.Marshal(brokerPayload{
		Fixed:        false,
		CurrencyFrom: from,
		CurrencyTo:   to,
		Amount:       amount,
		AddressTo:    c.cfg.WalletAddress,
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/create_exchange?api_key=%s",
		strings.TrimRight(c.cfg.APIBaseURL, "/"),
		url.QueryEscape(c.cfg.APIKey),
	)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Error("swap broker unreachable", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.log.Warn("swap broker rejected exchange",
			zap.Int("status", resp.StatusCode),
			zap.String("currency_from", from),
			zap.String("currency_to", to),
		)
	}
	if c.obsMetrics != nil {
		c.obsMetrics.RecordExchangeRequest(ctx, resp.StatusCode)
	}

	return &ExchangeResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
