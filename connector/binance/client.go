// Package binance implements the Binance spot connector on top of the
// adshao/go-binance SDK.
package binance

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2"
	"github.com/tradewire/tradewire/connector"
)

const brokerName = "binance"

// Client is the Binance connector
type Client struct {
	deps connector.Deps
}

// New creates a Binance connector
func New(deps connector.Deps) connector.Connector {
	return &Client{deps: deps}
}

// Name returns the broker identifier
func (c *Client) Name() string {
	return brokerName
}

func (c *Client) sdk(creds *connector.Credentials) *binance.Client {
	client := binance.NewClient(creds.APIKey, creds.SecretKey)
	if c.deps.BaseURL != "" {
		client.BaseURL = c.deps.BaseURL
	}
	return client
}

// ExecuteTrade submits the primary spot order and any dependent bracket
// orders derived from the fill price.
func (c *Client) ExecuteTrade(ctx context.Context, ownerID string, alert *connector.NormalizedAlert) (*connector.ExecutionResult, error) {
	creds, ok, err := c.deps.Credentials.Get(ctx, ownerID, brokerName)
	if err != nil {
		return nil, fmt.Errorf("credential lookup failed: %w", err)
	}
	if !ok {
		return connector.MissingCredentials(brokerName), nil
	}

	client := c.sdk(creds)
	symbol := connector.FormatSymbol(alert.Symbol, brokerName)
	side := binance.SideTypeBuy
	if alert.Side == connector.OrderSideSell {
		side = binance.SideTypeSell
	}

	svc := client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Quantity(connector.FormatQuantity(alert.Quantity, 8))
	switch alert.OrderType {
	case connector.OrderTypeLimit:
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(connector.FormatQuantity(alert.LimitPrice, 8))
	case connector.OrderTypeStop, connector.OrderTypeStopLimit:
		limit := alert.LimitPrice
		if limit <= 0 {
			limit = alert.StopPrice
		}
		svc = svc.Type(binance.OrderTypeStopLossLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			StopPrice(connector.FormatQuantity(alert.StopPrice, 8)).
			Price(connector.FormatQuantity(limit, 8))
	default:
		svc = svc.Type(binance.OrderTypeMarket)
	}
	if alert.ClientOrderID != "" {
		svc = svc.NewClientOrderID(alert.ClientOrderID)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return connector.Failed("binance rejected the order",
			connector.NewAPIError(brokerName, "ORDER_REJECTED", err.Error(), err).Error()), nil
	}

	orderID := strconv.FormatInt(order.OrderID, 10)
	result := &connector.ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("order %s %s %s submitted", alert.Side, connector.FormatQuantity(alert.Quantity, 8), symbol),
		OrderID: orderID,
		Details: map[string]any{"status": string(order.Status)},
	}

	if alert.StopLoss == nil && alert.TakeProfit == nil {
		return result, nil
	}

	fillPrice, fillQty := averageFill(order)
	if order.Status != binance.OrderStatusTypeFilled || fillPrice <= 0 {
		result.Details["bracket_skipped"] = "order did not fill synchronously"
		return result, nil
	}
	result.Details["fill_price"] = fillPrice

	fill := &connector.Fill{
		OrderID:  orderID,
		Symbol:   symbol,
		Side:     alert.Side,
		Quantity: fillQty,
		Price:    fillPrice,
	}
	stop, take := connector.BracketPrices(fill, alert.StopLoss, alert.TakeProfit)
	oppositeSide := binance.SideTypeSell
	if alert.Side == connector.OrderSideSell {
		oppositeSide = binance.SideTypeBuy
	}

	if alert.StopLoss != nil {
		sl, err := client.NewCreateOrderService().
			Symbol(symbol).
			Side(oppositeSide).
			Type(binance.OrderTypeStopLossLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Quantity(connector.FormatQuantity(fillQty, 8)).
			StopPrice(connector.FormatQuantity(stop, 8)).
			Price(connector.FormatQuantity(stop, 8)).
			NewClientOrderID(orderID + "-sl").
			Do(ctx)
		if err != nil {
			result.Details["stop_loss_error"] = err.Error()
		} else {
			result.Details["stop_loss_order_id"] = strconv.FormatInt(sl.OrderID, 10)
		}
	}
	if alert.TakeProfit != nil {
		tp, err := client.NewCreateOrderService().
			Symbol(symbol).
			Side(oppositeSide).
			Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Quantity(connector.FormatQuantity(fillQty, 8)).
			Price(connector.FormatQuantity(take, 8)).
			NewClientOrderID(orderID + "-tp").
			Do(ctx)
		if err != nil {
			result.Details["take_profit_error"] = err.Error()
		} else {
			result.Details["take_profit_order_id"] = strconv.FormatInt(tp.OrderID, 10)
		}
	}
	return result, nil
}

// averageFill computes the quantity-weighted average fill price from the
// order's fill list.
func averageFill(order *binance.CreateOrderResponse) (price, qty float64) {
	var notional float64
	for _, f := range order.Fills {
		p, perr := strconv.ParseFloat(f.Price, 64)
		q, qerr := strconv.ParseFloat(f.Quantity, 64)
		if perr != nil || qerr != nil {
			continue
		}
		notional += p * q
		qty += q
	}
	if qty <= 0 {
		return 0, 0
	}
	return notional / qty, qty
}

// TestConnection fetches the spot account; read-only.
func (c *Client) TestConnection(ctx context.Context, creds *connector.Credentials) (*connector.TestResult, error) {
	account, err := c.sdk(creds).NewGetAccountService().Do(ctx)
	if err != nil {
		return &connector.TestResult{
			Success: false,
			Message: fmt.Sprintf("binance connection failed: %v", err),
		}, nil
	}
	return &connector.TestResult{
		Success: true,
		Message: "binance connection ok",
		AccountInfo: map[string]any{
			"can_trade":    account.CanTrade,
			"can_withdraw": account.CanWithdraw,
			"account_type": account.AccountType,
			"balances":     len(account.Balances),
		},
	}, nil
}
