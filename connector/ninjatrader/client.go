// Package ninjatrader implements the NinjaTrader connector. It talks to the
// local-machine HTTP bridge addon, so dispatch timeouts are configured much
// shorter than for cloud brokerages.
package ninjatrader

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tradewire/tradewire/connector"
)

const (
	brokerName     = "ninjatrader"
	defaultBaseURL = "http://127.0.0.1:8432"
)

// Client is the NinjaTrader connector
type Client struct {
	http *resty.Client
	deps connector.Deps
}

// New creates a NinjaTrader connector
func New(deps connector.Deps) connector.Connector {
	base := deps.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		http: resty.New().SetBaseURL(base),
		deps: deps,
	}
}

// Name returns the broker identifier
func (c *Client) Name() string {
	return brokerName
}

type command struct {
	Command    string  `json:"command"`
	Account    string  `json:"account"`
	Instrument string  `json:"instrument"`
	Action     string  `json:"action"`
	Quantity   float64 `json:"quantity"`
	OrderType  string  `json:"order_type"`
	LimitPrice float64 `json:"limit_price,omitempty"`
	StopPrice  float64 `json:"stop_price,omitempty"`
	OrderID    string  `json:"order_id,omitempty"`
}

type commandResult struct {
	Status    string  `json:"status"`
	OrderID   string  `json:"order_id"`
	FillPrice float64 `json:"fill_price"`
	Error     string  `json:"error"`
}

// ExecuteTrade forwards the order command to the local bridge.
func (c *Client) ExecuteTrade(ctx context.Context, ownerID string, alert *connector.NormalizedAlert) (*connector.ExecutionResult, error) {
	creds, ok, err := c.deps.Credentials.Get(ctx, ownerID, brokerName)
	if err != nil {
		return nil, fmt.Errorf("credential lookup failed: %w", err)
	}
	if !ok {
		return connector.MissingCredentials(brokerName), nil
	}

	cmd := &command{
		Command:    "PLACE",
		Account:    creds.AccountID,
		Instrument: connector.FormatSymbol(alert.Symbol, brokerName),
		Action:     strings.ToUpper(string(alert.Side)),
		Quantity:   alert.Quantity,
		OrderType:  strings.ToUpper(string(alert.OrderType)),
		LimitPrice: alert.LimitPrice,
		StopPrice:  alert.StopPrice,
		OrderID:    alert.ClientOrderID,
	}

	placed, cmdErr := c.send(ctx, cmd)
	if cmdErr != nil {
		return connector.Failed("ninjatrader bridge rejected the order", cmdErr.Error()), nil
	}

	result := &connector.ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("order %s %s %s submitted to ninjatrader", cmd.Action, connector.FormatQuantity(cmd.Quantity, 8), cmd.Instrument),
		OrderID: placed.OrderID,
		Details: map[string]any{"bridge_status": placed.Status},
	}

	if alert.StopLoss == nil && alert.TakeProfit == nil {
		return result, nil
	}
	if placed.FillPrice <= 0 {
		result.Details["bracket_skipped"] = "bridge did not report a fill price"
		return result, nil
	}
	result.Details["fill_price"] = placed.FillPrice

	fill := &connector.Fill{
		OrderID:  placed.OrderID,
		Symbol:   cmd.Instrument,
		Side:     alert.Side,
		Quantity: alert.Quantity,
		Price:    placed.FillPrice,
	}
	stop, take := connector.BracketPrices(fill, alert.StopLoss, alert.TakeProfit)
	opposite := strings.ToUpper(string(connector.OppositeSide(alert.Side)))

	if alert.StopLoss != nil {
		sl, err := c.send(ctx, &command{
			Command:    "PLACE",
			Account:    creds.AccountID,
			Instrument: cmd.Instrument,
			Action:     opposite,
			Quantity:   alert.Quantity,
			OrderType:  "STOP",
			StopPrice:  stop,
			OrderID:    placed.OrderID + "-sl",
		})
		if err != nil {
			result.Details["stop_loss_error"] = err.Error()
		} else {
			result.Details["stop_loss_order_id"] = sl.OrderID
		}
	}
	if alert.TakeProfit != nil {
		tp, err := c.send(ctx, &command{
			Command:    "PLACE",
			Account:    creds.AccountID,
			Instrument: cmd.Instrument,
			Action:     opposite,
			Quantity:   alert.Quantity,
			OrderType:  "LIMIT",
			LimitPrice: take,
			OrderID:    placed.OrderID + "-tp",
		})
		if err != nil {
			result.Details["take_profit_error"] = err.Error()
		} else {
			result.Details["take_profit_order_id"] = tp.OrderID
		}
	}
	return result, nil
}

// TestConnection asks the bridge for its status; read-only.
func (c *Client) TestConnection(ctx context.Context, creds *connector.Credentials) (*connector.TestResult, error) {
	var status map[string]any
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&status).
		Get("/status")
	if err != nil {
		return &connector.TestResult{
			Success: false,
			Message: fmt.Sprintf("ninjatrader bridge unreachable: %v", err),
		}, nil
	}
	if resp.IsError() {
		return &connector.TestResult{
			Success: false,
			Message: fmt.Sprintf("ninjatrader bridge returned status %d", resp.StatusCode()),
		}, nil
	}
	return &connector.TestResult{
		Success:     true,
		Message:     "ninjatrader bridge ok",
		AccountInfo: status,
	}, nil
}

func (c *Client) send(ctx context.Context, cmd *command) (*commandResult, error) {
	var parsed commandResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(cmd).
		SetResult(&parsed).
		Post("/command")
	if err != nil {
		return nil, connector.NewAPIError(brokerName, "REQUEST_FAILED", err.Error(), err)
	}
	if resp.IsError() || strings.EqualFold(parsed.Status, "error") {
		msg := parsed.Error
		if msg == "" {
			msg = resp.String()
		}
		return nil, connector.NewAPIError(brokerName, strconv.Itoa(resp.StatusCode()), msg, nil)
	}
	return &parsed, nil
}
