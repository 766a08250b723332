// Package oanda implements the Oanda connector against the v20 REST API.
// Oanda represents direction via signed units rather than an explicit side
// field, so the converter's signed-magnitude law applies here.
package oanda

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/tradewire/tradewire/connector"
)

const (
	brokerName     = "oanda"
	defaultBaseURL = "https://api-fxpractice.oanda.com"
)

// Client is the Oanda connector
type Client struct {
	http *resty.Client
	deps connector.Deps
}

// New creates an Oanda connector
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

type orderBody struct {
	Order map[string]any `json:"order"`
}

type orderResult struct {
	OrderCreateTransaction *struct {
		ID string `json:"id"`
	} `json:"orderCreateTransaction"`
	OrderFillTransaction *struct {
		ID          string `json:"id"`
		Price       string `json:"price"`
		Units       string `json:"units"`
		TradeOpened *struct {
			TradeID string `json:"tradeID"`
		} `json:"tradeOpened"`
	} `json:"orderFillTransaction"`
	OrderCancelTransaction *struct {
		Reason string `json:"reason"`
	} `json:"orderCancelTransaction"`
	ErrorMessage string `json:"errorMessage"`
}

// ExecuteTrade submits a signed-units order, then trade-scoped stop-loss and
// take-profit orders referencing the opened trade.
func (c *Client) ExecuteTrade(ctx context.Context, ownerID string, alert *connector.NormalizedAlert) (*connector.ExecutionResult, error) {
	creds, ok, err := c.deps.Credentials.Get(ctx, ownerID, brokerName)
	if err != nil {
		return nil, fmt.Errorf("credential lookup failed: %w", err)
	}
	if !ok {
		return connector.MissingCredentials(brokerName), nil
	}

	instrument := connector.FormatSymbol(alert.Symbol, brokerName)
	units := connector.SignedUnits(alert.Side, alert.Quantity)

	order := map[string]any{
		"type":         "MARKET",
		"instrument":   instrument,
		"units":        strconv.FormatFloat(units, 'f', -1, 64),
		"timeInForce":  "FOK",
		"positionFill": "DEFAULT",
	}
	switch alert.OrderType {
	case connector.OrderTypeLimit:
		order["type"] = "LIMIT"
		order["price"] = strconv.FormatFloat(alert.LimitPrice, 'f', -1, 64)
		order["timeInForce"] = "GTC"
	case connector.OrderTypeStop:
		order["type"] = "STOP"
		order["price"] = strconv.FormatFloat(alert.StopPrice, 'f', -1, 64)
		order["timeInForce"] = "GTC"
	}
	if alert.ClientOrderID != "" {
		order["clientExtensions"] = map[string]any{"id": alert.ClientOrderID}
	}

	var parsed orderResult
	resp, err := c.request(creds).
		SetContext(ctx).
		SetBody(orderBody{Order: order}).
		SetResult(&parsed).
		Post(fmt.Sprintf("/v3/accounts/%s/orders", creds.AccountID))
	if err != nil {
		return connector.Failed("oanda request failed",
			connector.NewAPIError(brokerName, "REQUEST_FAILED", err.Error(), err).Error()), nil
	}
	if resp.IsError() {
		return connector.Failed("oanda rejected the order",
			connector.NewAPIError(brokerName, strconv.Itoa(resp.StatusCode()), errorMessage(resp), nil).Error()), nil
	}
	if parsed.OrderCancelTransaction != nil {
		return connector.Failed("oanda cancelled the order",
			fmt.Sprintf("[%s] order cancelled: %s", brokerName, parsed.OrderCancelTransaction.Reason)), nil
	}

	result := &connector.ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("order for %s units of %s submitted", order["units"], instrument),
		Details: map[string]any{},
	}
	if parsed.OrderCreateTransaction != nil {
		result.OrderID = parsed.OrderCreateTransaction.ID
	}

	fillTx := parsed.OrderFillTransaction
	if fillTx == nil || fillTx.TradeOpened == nil {
		if alert.StopLoss != nil || alert.TakeProfit != nil || alert.TrailingStop {
			result.Details["bracket_skipped"] = "order did not fill synchronously"
		}
		return result, nil
	}

	price, _ := strconv.ParseFloat(fillTx.Price, 64)
	result.Details["fill_price"] = price
	result.Details["trade_id"] = fillTx.TradeOpened.TradeID

	fill := &connector.Fill{
		OrderID:  fillTx.TradeOpened.TradeID,
		Symbol:   instrument,
		Side:     alert.Side,
		Quantity: alert.Quantity,
		Price:    price,
	}
	c.placeBrackets(ctx, creds, alert, fill, result)
	return result, nil
}

// placeBrackets submits trade-scoped dependent orders. A dependent failure is
// surfaced in the details; the primary fill remains a success.
func (c *Client) placeBrackets(ctx context.Context, creds *connector.Credentials, alert *connector.NormalizedAlert, fill *connector.Fill, result *connector.ExecutionResult) {
	stop, take := connector.BracketPrices(fill, alert.StopLoss, alert.TakeProfit)

	if alert.TrailingStop && alert.TrailingValue > 0 {
		id, err := c.placeDependent(ctx, creds, map[string]any{
			"type":        "TRAILING_STOP_LOSS",
			"tradeID":     fill.OrderID,
			"distance":    strconv.FormatFloat(alert.TrailingValue, 'f', -1, 64),
			"timeInForce": "GTC",
		})
		if err != nil {
			result.Details["trailing_stop_error"] = err.Error()
		} else {
			result.Details["trailing_stop_order_id"] = id
		}
	} else if alert.StopLoss != nil {
		id, err := c.placeDependent(ctx, creds, map[string]any{
			"type":        "STOP_LOSS",
			"tradeID":     fill.OrderID,
			"price":       strconv.FormatFloat(stop, 'f', -1, 64),
			"timeInForce": "GTC",
		})
		if err != nil {
			result.Details["stop_loss_error"] = err.Error()
		} else {
			result.Details["stop_loss_order_id"] = id
		}
	}

	if alert.TakeProfit != nil {
		id, err := c.placeDependent(ctx, creds, map[string]any{
			"type":        "TAKE_PROFIT",
			"tradeID":     fill.OrderID,
			"price":       strconv.FormatFloat(take, 'f', -1, 64),
			"timeInForce": "GTC",
		})
		if err != nil {
			result.Details["take_profit_error"] = err.Error()
		} else {
			result.Details["take_profit_order_id"] = id
		}
	}
}

func (c *Client) placeDependent(ctx context.Context, creds *connector.Credentials, order map[string]any) (string, error) {
	var parsed orderResult
	resp, err := c.request(creds).
		SetContext(ctx).
		SetBody(orderBody{Order: order}).
		SetResult(&parsed).
		Post(fmt.Sprintf("/v3/accounts/%s/orders", creds.AccountID))
	if err != nil {
		return "", connector.NewAPIError(brokerName, "REQUEST_FAILED", err.Error(), err)
	}
	if resp.IsError() {
		return "", connector.NewAPIError(brokerName, strconv.Itoa(resp.StatusCode()), errorMessage(resp), nil)
	}
	if parsed.OrderCreateTransaction != nil {
		return parsed.OrderCreateTransaction.ID, nil
	}
	return "", nil
}

// TestConnection fetches the account summary; it never mutates state.
func (c *Client) TestConnection(ctx context.Context, creds *connector.Credentials) (*connector.TestResult, error) {
	var body struct {
		Account map[string]any `json:"account"`
	}
	resp, err := c.request(creds).
		SetContext(ctx).
		SetResult(&body).
		Get(fmt.Sprintf("/v3/accounts/%s/summary", creds.AccountID))
	if err != nil {
		return &connector.TestResult{Success: false, Message: fmt.Sprintf("connection failed: %v", err)}, nil
	}
	if resp.IsError() {
		return &connector.TestResult{
			Success: false,
			Message: fmt.Sprintf("oanda returned status %d: %s", resp.StatusCode(), resp.String()),
		}, nil
	}
	return &connector.TestResult{
		Success: true,
		Message: "oanda connection ok",
		AccountInfo: map[string]any{
			"id":       body.Account["id"],
			"alias":    body.Account["alias"],
			"currency": body.Account["currency"],
			"balance":  body.Account["balance"],
		},
	}, nil
}

func (c *Client) request(creds *connector.Credentials) *resty.Request {
	return c.http.R().SetAuthToken(creds.APIKey)
}

// errorMessage extracts the v20 errorMessage field from a failure body,
// falling back to the raw body when it is not the expected JSON shape.
func errorMessage(resp *resty.Response) string {
	var body struct {
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.ErrorMessage != "" {
		return body.ErrorMessage
	}
	return resp.String()
}
