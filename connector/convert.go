package connector

import (
	"fmt"
	"strings"
)

// DefaultQuantity is substituted when neither the alert nor the webhook
// settings carry a quantity.
const DefaultQuantity = 1.0

// Defaults are the per-webhook trade defaults folded into an alert before it
// reaches a connector.
type Defaults struct {
	Quantity      float64
	StopLoss      *BracketSpec
	TakeProfit    *BracketSpec
	TrailingStop  bool
	TrailingValue float64
}

// SideFromAction maps a generic action/side indicator to an order side.
// Long and short map to buy and sell respectively.
func SideFromAction(action string) (OrderSide, error) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "buy", "long":
		return OrderSideBuy, nil
	case "sell", "short":
		return OrderSideSell, nil
	default:
		return "", fmt.Errorf("unsupported action: %s", action)
	}
}

// OppositeSide returns the opposite order side. Dependent bracket orders are
// always the opposite side of the primary order.
func OppositeSide(side OrderSide) OrderSide {
	if side == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// SignedUnits converts a side plus non-negative magnitude into the signed
// unit value used by brokers that represent direction via sign: negative for
// sell, positive for buy, equal magnitude either way.
func SignedUnits(side OrderSide, quantity float64) float64 {
	if side == OrderSideSell {
		return -quantity
	}
	return quantity
}

// ApplyDefaults fills the gaps in a validated alert from the webhook's trade
// defaults: quantity (webhook default, else 1 unit), order type (market), and
// the stop-loss/take-profit/trailing-stop strategy when the alert itself does
// not specify one.
func ApplyDefaults(alert *NormalizedAlert, defaults *Defaults) {
	if alert.OrderType == "" {
		alert.OrderType = OrderTypeMarket
	}
	if alert.Quantity <= 0 {
		alert.Quantity = DefaultQuantity
		if defaults != nil && defaults.Quantity > 0 {
			alert.Quantity = defaults.Quantity
		}
	}
	if defaults == nil {
		return
	}
	if alert.StopLoss == nil && defaults.StopLoss != nil {
		spec := *defaults.StopLoss
		alert.StopLoss = &spec
	}
	if alert.TakeProfit == nil && defaults.TakeProfit != nil {
		spec := *defaults.TakeProfit
		alert.TakeProfit = &spec
	}
	if !alert.TrailingStop && defaults.TrailingStop {
		alert.TrailingStop = true
		alert.TrailingValue = defaults.TrailingValue
	}
}

// FormatSymbol formats a symbol according to broker requirements.
func FormatSymbol(symbol string, broker string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	switch strings.ToLower(broker) {
	case "oanda":
		// Oanda uses EUR_USD instrument names
		symbol = strings.ReplaceAll(symbol, "/", "_")
		symbol = strings.ReplaceAll(symbol, "-", "_")
		if !strings.Contains(symbol, "_") && len(symbol) == 6 {
			symbol = symbol[:3] + "_" + symbol[3:]
		}
		return symbol
	case "binance":
		// Binance uses BTCUSDT format
		symbol = strings.ReplaceAll(symbol, "/", "")
		symbol = strings.ReplaceAll(symbol, "-", "")
		symbol = strings.ReplaceAll(symbol, "_", "")
		return symbol
	default:
		return symbol
	}
}

// FormatQuantity formats a quantity for API requests.
func FormatQuantity(quantity float64, precision int) string {
	format := fmt.Sprintf("%%.%df", precision)
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf(format, quantity), "0"), ".")
}
