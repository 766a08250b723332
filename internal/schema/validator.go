// Package schema turns loosely-typed inbound payloads into validated,
// broker-agnostic alerts. One validator per supported broker format plus a
// generic fallback; validation failures enumerate every violated field so the
// list can be returned verbatim to the caller.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tradewire/tradewire/connector"
)

// FieldError describes a single violated field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries per-field messages for a rejected payload
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Messages flattens the field errors into display strings
func (e *ValidationError) Messages() []string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return msgs
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// tokenAliases are the payload field names recognized as an embedded webhook
// token, so the same payload works across delivery mechanisms.
var tokenAliases = []string{"token", "webhook_token", "webhookToken", "key", "passphrase"}

// TokenFromPayload extracts a payload-embedded webhook token, if present.
func TokenFromPayload(payload map[string]any) string {
	for _, alias := range tokenAliases {
		if v, ok := payload[alias]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// Validate validates a raw payload against the named broker's schema and
// returns the normalized alert. An unrecognized broker falls through to the
// generic schema.
func Validate(broker string, payload map[string]any) (*connector.NormalizedAlert, *ValidationError) {
	verr := &ValidationError{}
	if payload == nil {
		verr.add("payload", "request body must be a JSON object")
		return nil, verr
	}

	var alert *connector.NormalizedAlert
	switch strings.ToLower(broker) {
	case "tradingview":
		alert = validateTradingView(payload, verr)
	case "oanda":
		alert = validateOanda(payload, verr)
	case "alpaca", "binance", "ninjatrader":
		alert = validateGeneric(payload, verr)
	default:
		alert = validateGeneric(payload, verr)
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return alert, nil
}

// validateGeneric covers brokers whose alerts share the common
// symbol/action/quantity shape (alpaca, binance, ninjatrader, fallback).
func validateGeneric(payload map[string]any, verr *ValidationError) *connector.NormalizedAlert {
	alert := &connector.NormalizedAlert{}

	symbol, _ := stringField(payload, "symbol", "ticker", "instrument")
	if symbol == "" {
		verr.add("symbol", "symbol is required")
	} else {
		alert.Symbol = symbol
	}

	action, _ := stringField(payload, "action", "side")
	if action == "" {
		verr.add("action", "action is required (buy, sell, long, short)")
	} else if side, err := connector.SideFromAction(action); err != nil {
		verr.add("action", err.Error())
	} else {
		alert.Side = side
	}

	parseCommon(payload, alert, verr)
	return alert
}

// validateTradingView accepts the TradingView alert shape, where numeric
// fields arrive as strings and quantity hides behind several names.
func validateTradingView(payload map[string]any, verr *ValidationError) *connector.NormalizedAlert {
	alert := &connector.NormalizedAlert{}

	symbol, _ := stringField(payload, "ticker", "symbol")
	if symbol == "" {
		verr.add("ticker", "ticker or symbol is required")
	} else {
		alert.Symbol = symbol
	}

	action, _ := stringField(payload, "action", "side", "order_action")
	if action == "" {
		verr.add("action", "action is required (buy, sell, long, short)")
	} else if side, err := connector.SideFromAction(action); err != nil {
		verr.add("action", err.Error())
	} else {
		alert.Side = side
	}

	if qty, field, ok, err := numberField(payload, "contracts", "quantity", "qty", "position_size"); err != nil {
		verr.add(field, err.Error())
	} else if ok {
		if qty < 0 {
			verr.add(field, "quantity must be a non-negative magnitude")
		} else {
			alert.Quantity = qty
		}
	}

	parseOrderType(payload, alert, verr, "ord_type", "order_type", "type")
	parsePrices(payload, alert, verr)
	parseBrackets(payload, alert, verr)
	parseClientOrderID(payload, alert)
	return alert
}

// validateOanda accepts either an explicit side plus magnitude or an
// Oanda-style signed units value, normalizing the latter into side+magnitude.
func validateOanda(payload map[string]any, verr *ValidationError) *connector.NormalizedAlert {
	alert := &connector.NormalizedAlert{}

	symbol, _ := stringField(payload, "instrument", "symbol", "ticker")
	if symbol == "" {
		verr.add("instrument", "instrument is required")
	} else {
		alert.Symbol = symbol
	}

	units, unitsField, hasUnits, err := numberField(payload, "units")
	if err != nil {
		verr.add(unitsField, err.Error())
	}

	action, _ := stringField(payload, "action", "side")
	switch {
	case hasUnits && err == nil:
		if units == 0 {
			verr.add("units", "units must be non-zero")
		} else if units < 0 {
			alert.Side = connector.OrderSideSell
			alert.Quantity = -units
		} else {
			alert.Side = connector.OrderSideBuy
			alert.Quantity = units
		}
	case action != "":
		if side, serr := connector.SideFromAction(action); serr != nil {
			verr.add("action", serr.Error())
		} else {
			alert.Side = side
		}
		if qty, field, ok, qerr := numberField(payload, "quantity", "qty"); qerr != nil {
			verr.add(field, qerr.Error())
		} else if ok {
			if qty < 0 {
				verr.add(field, "quantity must be a non-negative magnitude")
			} else {
				alert.Quantity = qty
			}
		}
	default:
		verr.add("units", "either signed units or an action is required")
	}

	parseOrderType(payload, alert, verr, "type", "order_type")
	parsePrices(payload, alert, verr)
	parseBrackets(payload, alert, verr)
	parseClientOrderID(payload, alert)
	return alert
}

// parseCommon handles the fields shared by the generic schemas.
func parseCommon(payload map[string]any, alert *connector.NormalizedAlert, verr *ValidationError) {
	if qty, field, ok, err := numberField(payload, "quantity", "qty", "contracts", "position_size", "units"); err != nil {
		verr.add(field, err.Error())
	} else if ok {
		if qty < 0 {
			verr.add(field, "quantity must be a non-negative magnitude")
		} else {
			alert.Quantity = qty
		}
	}

	parseOrderType(payload, alert, verr, "order_type", "type", "ord_type")
	parsePrices(payload, alert, verr)
	parseBrackets(payload, alert, verr)
	parseClientOrderID(payload, alert)
}

func parseOrderType(payload map[string]any, alert *connector.NormalizedAlert, verr *ValidationError, fields ...string) {
	raw, field := stringField(payload, fields...)
	if raw == "" {
		return
	}
	switch strings.ToLower(raw) {
	case "market":
		alert.OrderType = connector.OrderTypeMarket
	case "limit":
		alert.OrderType = connector.OrderTypeLimit
	case "stop":
		alert.OrderType = connector.OrderTypeStop
	case "stop_limit", "stoplimit":
		alert.OrderType = connector.OrderTypeStopLimit
	default:
		verr.add(field, fmt.Sprintf("unsupported order type: %s", raw))
	}
}

func parsePrices(payload map[string]any, alert *connector.NormalizedAlert, verr *ValidationError) {
	if price, field, ok, err := numberField(payload, "limit_price", "price"); err != nil {
		verr.add(field, err.Error())
	} else if ok && price > 0 {
		alert.LimitPrice = price
	}
	if price, field, ok, err := numberField(payload, "stop_price"); err != nil {
		verr.add(field, err.Error())
	} else if ok && price > 0 {
		alert.StopPrice = price
	}

	switch alert.OrderType {
	case connector.OrderTypeLimit:
		if alert.LimitPrice <= 0 {
			verr.add("limit_price", "limit orders require a positive limit price")
		}
	case connector.OrderTypeStop:
		if alert.StopPrice <= 0 {
			verr.add("stop_price", "stop orders require a positive stop price")
		}
	case connector.OrderTypeStopLimit:
		if alert.LimitPrice <= 0 {
			verr.add("limit_price", "stop-limit orders require a positive limit price")
		}
		if alert.StopPrice <= 0 {
			verr.add("stop_price", "stop-limit orders require a positive stop price")
		}
	}
}

func parseBrackets(payload map[string]any, alert *connector.NormalizedAlert, verr *ValidationError) {
	if spec, err := bracketField(payload, "stop_loss"); err != nil {
		verr.add("stop_loss", err.Error())
	} else {
		alert.StopLoss = spec
	}
	if spec, err := bracketField(payload, "take_profit"); err != nil {
		verr.add("take_profit", err.Error())
	} else {
		alert.TakeProfit = spec
	}
	if v, ok := payload["trailing_stop"]; ok {
		if b, ok := v.(bool); ok {
			alert.TrailingStop = b
		}
	}
	if tv, _, ok, err := numberField(payload, "trailing_value"); err == nil && ok {
		alert.TrailingValue = tv
	}
}

// bracketField accepts either a bare number (fixed price offset) or an
// object of the form {"type": "percent", "value": 2.5}.
func bracketField(payload map[string]any, name string) (*connector.BracketSpec, error) {
	v, ok := payload[name]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case float64:
		if t <= 0 {
			return nil, fmt.Errorf("%s offset must be positive", name)
		}
		return &connector.BracketSpec{Type: connector.BracketFixed, Value: t}, nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("%s offset must be a positive number", name)
		}
		return &connector.BracketSpec{Type: connector.BracketFixed, Value: f}, nil
	case map[string]any:
		specType, _ := t["type"].(string)
		if specType == "" {
			specType = connector.BracketFixed
		}
		if specType != connector.BracketFixed && specType != connector.BracketPercent {
			return nil, fmt.Errorf("%s type must be fixed or percent", name)
		}
		value, _, ok, err := numberField(t, "value")
		if err != nil || !ok || value <= 0 {
			return nil, fmt.Errorf("%s value must be a positive number", name)
		}
		return &connector.BracketSpec{Type: specType, Value: value}, nil
	default:
		return nil, fmt.Errorf("%s must be a number or an object", name)
	}
}

func parseClientOrderID(payload map[string]any, alert *connector.NormalizedAlert) {
	if id, _ := stringField(payload, "client_order_id", "order_id", "id"); id != "" {
		alert.ClientOrderID = id
	}
}

// stringField returns the first non-empty string among the aliases, and the
// field name it was found under.
func stringField(payload map[string]any, names ...string) (string, string) {
	for _, name := range names {
		if v, ok := payload[name]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s), name
			}
		}
	}
	if len(names) > 0 {
		return "", names[0]
	}
	return "", ""
}

// numberField returns the first present numeric value among the aliases.
// Numeric strings are accepted because several alert sources quote numbers.
func numberField(payload map[string]any, names ...string) (value float64, field string, present bool, err error) {
	for _, name := range names {
		v, ok := payload[name]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t, name, true, nil
		case int:
			return float64(t), name, true, nil
		case string:
			if strings.TrimSpace(t) == "" {
				continue
			}
			f, perr := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if perr != nil {
				return 0, name, false, fmt.Errorf("%s must be a number", name)
			}
			return f, name, true, nil
		default:
			return 0, name, false, fmt.Errorf("%s must be a number", name)
		}
	}
	if len(names) > 0 {
		field = names[0]
	}
	return 0, field, false, nil
}
