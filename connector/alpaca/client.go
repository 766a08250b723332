// Package alpaca implements the Alpaca connector against the v2 trading API.
package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tradewire/tradewire/connector"
)

const (
	brokerName     = "alpaca"
	defaultBaseURL = "https://paper-api.alpaca.markets"

	// Market orders usually fill within a request round-trip on paper
	// accounts, but the API reports "accepted" first. Poll briefly before
	// placing dependent bracket orders.
	fillPollAttempts = 3
	fillPollDelay    = 250 * time.Millisecond
)

// Client is the Alpaca connector
type Client struct {
	http *resty.Client
	deps connector.Deps
}

// New creates an Alpaca connector
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

type orderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	LimitPrice    string `json:"limit_price,omitempty"`
	StopPrice     string `json:"stop_price,omitempty"`
	TrailPrice    string `json:"trail_price,omitempty"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

type orderResponse struct {
	ID             string `json:"id"`
	ClientOrderID  string `json:"client_order_id"`
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Status         string `json:"status"`
	FilledQty      string `json:"filled_qty"`
	FilledAvgPrice string `json:"filled_avg_price"`
}

type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ExecuteTrade submits the primary order and any dependent bracket orders.
func (c *Client) ExecuteTrade(ctx context.Context, ownerID string, alert *connector.NormalizedAlert) (*connector.ExecutionResult, error) {
	creds, ok, err := c.deps.Credentials.Get(ctx, ownerID, brokerName)
	if err != nil {
		return nil, fmt.Errorf("credential lookup failed: %w", err)
	}
	if !ok {
		return connector.MissingCredentials(brokerName), nil
	}

	req := buildOrderRequest(alert)
	order, apiErr := c.placeOrder(ctx, creds, req)
	if apiErr != nil {
		return connector.Failed("alpaca rejected the order", apiErr.Error()), nil
	}

	result := &connector.ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("order %s %s %s submitted", alert.Side, req.Qty, order.Symbol),
		OrderID: order.ID,
		Details: map[string]any{
			"status":          order.Status,
			"client_order_id": order.ClientOrderID,
		},
	}

	if alert.StopLoss == nil && alert.TakeProfit == nil && !alert.TrailingStop {
		return result, nil
	}

	fill := c.awaitFill(ctx, creds, order)
	if fill == nil {
		result.Details["bracket_skipped"] = "primary order not filled within the polling window"
		return result, nil
	}
	result.Details["fill_price"] = fill.Price

	c.placeBrackets(ctx, creds, alert, fill, result)
	return result, nil
}

// placeBrackets submits the dependent stop-loss/take-profit orders. Failures
// land in the result details; the primary fill stays authoritative.
func (c *Client) placeBrackets(ctx context.Context, creds *connector.Credentials, alert *connector.NormalizedAlert, fill *connector.Fill, result *connector.ExecutionResult) {
	opposite := string(connector.OppositeSide(fill.Side))
	qty := connector.FormatQuantity(fill.Quantity, 8)
	stop, take := connector.BracketPrices(fill, alert.StopLoss, alert.TakeProfit)

	if alert.TrailingStop && alert.TrailingValue > 0 {
		trailing, err := c.placeOrder(ctx, creds, &orderRequest{
			Symbol:        fill.Symbol,
			Qty:           qty,
			Side:          opposite,
			Type:          "trailing_stop",
			TimeInForce:   "gtc",
			TrailPrice:    connector.FormatQuantity(alert.TrailingValue, 2),
			ClientOrderID: fill.OrderID + "-trail",
		})
		if err != nil {
			result.Details["trailing_stop_error"] = err.Error()
		} else {
			result.Details["trailing_stop_order_id"] = trailing.ID
		}
	} else if alert.StopLoss != nil {
		sl, err := c.placeOrder(ctx, creds, &orderRequest{
			Symbol:        fill.Symbol,
			Qty:           qty,
			Side:          opposite,
			Type:          "stop",
			TimeInForce:   "gtc",
			StopPrice:     connector.FormatQuantity(stop, 2),
			ClientOrderID: fill.OrderID + "-sl",
		})
		if err != nil {
			result.Details["stop_loss_error"] = err.Error()
		} else {
			result.Details["stop_loss_order_id"] = sl.ID
		}
	}

	if alert.TakeProfit != nil {
		tp, err := c.placeOrder(ctx, creds, &orderRequest{
			Symbol:        fill.Symbol,
			Qty:           qty,
			Side:          opposite,
			Type:          "limit",
			TimeInForce:   "gtc",
			LimitPrice:    connector.FormatQuantity(take, 2),
			ClientOrderID: fill.OrderID + "-tp",
		})
		if err != nil {
			result.Details["take_profit_error"] = err.Error()
		} else {
			result.Details["take_profit_order_id"] = tp.ID
		}
	}
}

// TestConnection fetches the account summary; it never mutates state.
func (c *Client) TestConnection(ctx context.Context, creds *connector.Credentials) (*connector.TestResult, error) {
	var account map[string]any
	resp, err := c.request(creds).
		SetContext(ctx).
		SetResult(&account).
		Get("/v2/account")
	if err != nil {
		return &connector.TestResult{Success: false, Message: fmt.Sprintf("connection failed: %v", err)}, nil
	}
	if resp.IsError() {
		return &connector.TestResult{
			Success: false,
			Message: fmt.Sprintf("alpaca returned status %d: %s", resp.StatusCode(), errorMessage(resp)),
		}, nil
	}
	return &connector.TestResult{
		Success: true,
		Message: "alpaca connection ok",
		AccountInfo: map[string]any{
			"account_number": account["account_number"],
			"status":         account["status"],
			"currency":       account["currency"],
			"buying_power":   account["buying_power"],
		},
	}, nil
}

func (c *Client) request(creds *connector.Credentials) *resty.Request {
	return c.http.R().
		SetHeader("APCA-API-KEY-ID", creds.APIKey).
		SetHeader("APCA-API-SECRET-KEY", creds.SecretKey)
}

func (c *Client) placeOrder(ctx context.Context, creds *connector.Credentials, req *orderRequest) (*orderResponse, error) {
	var order orderResponse
	resp, err := c.request(creds).
		SetContext(ctx).
		SetBody(req).
		SetResult(&order).
		Post("/v2/orders")
	if err != nil {
		return nil, connector.NewAPIError(brokerName, "REQUEST_FAILED", err.Error(), err)
	}
	if resp.IsError() {
		return nil, connector.NewAPIError(brokerName, strconv.Itoa(resp.StatusCode()), errorMessage(resp), nil)
	}
	return &order, nil
}

// awaitFill polls the order until it reports a fill price, returning nil if
// the polling window closes first.
func (c *Client) awaitFill(ctx context.Context, creds *connector.Credentials, order *orderResponse) *connector.Fill {
	current := order
	for attempt := 0; attempt < fillPollAttempts; attempt++ {
		if fill := fillFrom(current); fill != nil {
			return fill
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(fillPollDelay):
		}
		var refreshed orderResponse
		resp, err := c.request(creds).
			SetContext(ctx).
			SetResult(&refreshed).
			Get("/v2/orders/" + order.ID)
		if err != nil || resp.IsError() {
			continue
		}
		current = &refreshed
	}
	return fillFrom(current)
}

func fillFrom(order *orderResponse) *connector.Fill {
	if order.Status != "filled" || order.FilledAvgPrice == "" {
		return nil
	}
	price, err := strconv.ParseFloat(order.FilledAvgPrice, 64)
	if err != nil || price <= 0 {
		return nil
	}
	qty, err := strconv.ParseFloat(order.FilledQty, 64)
	if err != nil || qty <= 0 {
		return nil
	}
	side := connector.OrderSideBuy
	if order.Side == "sell" {
		side = connector.OrderSideSell
	}
	return &connector.Fill{
		OrderID:  order.ID,
		Symbol:   order.Symbol,
		Side:     side,
		Quantity: qty,
		Price:    price,
		FilledAt: time.Now(),
	}
}

func buildOrderRequest(alert *connector.NormalizedAlert) *orderRequest {
	req := &orderRequest{
		Symbol:        connector.FormatSymbol(alert.Symbol, brokerName),
		Qty:           connector.FormatQuantity(alert.Quantity, 8),
		Side:          string(alert.Side),
		TimeInForce:   "gtc",
		ClientOrderID: alert.ClientOrderID,
	}
	switch alert.OrderType {
	case connector.OrderTypeLimit:
		req.Type = "limit"
		req.LimitPrice = connector.FormatQuantity(alert.LimitPrice, 2)
	case connector.OrderTypeStop:
		req.Type = "stop"
		req.StopPrice = connector.FormatQuantity(alert.StopPrice, 2)
	case connector.OrderTypeStopLimit:
		req.Type = "stop_limit"
		req.LimitPrice = connector.FormatQuantity(alert.LimitPrice, 2)
		req.StopPrice = connector.FormatQuantity(alert.StopPrice, 2)
	default:
		req.Type = "market"
	}
	return req
}

func errorMessage(resp *resty.Response) string {
	var body apiErrorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Message != "" {
		return body.Message
	}
	return resp.String()
}
