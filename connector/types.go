package connector

import (
	"fmt"
	"time"
)

// OrderSide represents the direction of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType represents the type of an order
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// Bracket offset strategies. A fixed offset is an absolute price distance from
// the fill price; a percent offset is relative to the fill price.
const (
	BracketFixed   = "fixed"
	BracketPercent = "percent"
)

// BracketSpec describes a stop-loss or take-profit offset from the fill price.
type BracketSpec struct {
	Type  string  `json:"type"` // fixed, percent
	Value float64 `json:"value"`
}

// NormalizedAlert is the validated, broker-agnostic representation of an
// inbound trade signal. Quantity is always a non-negative magnitude; direction
// is carried by Side so conversions can never silently flip signs.
type NormalizedAlert struct {
	Symbol        string       `json:"symbol"`
	Side          OrderSide    `json:"side"`
	Quantity      float64      `json:"quantity"`
	OrderType     OrderType    `json:"order_type"`
	LimitPrice    float64      `json:"limit_price,omitempty"`
	StopPrice     float64      `json:"stop_price,omitempty"`
	StopLoss      *BracketSpec `json:"stop_loss,omitempty"`
	TakeProfit    *BracketSpec `json:"take_profit,omitempty"`
	TrailingStop  bool         `json:"trailing_stop,omitempty"`
	TrailingValue float64      `json:"trailing_value,omitempty"`
	ClientOrderID string       `json:"client_order_id,omitempty"`
}

// Credentials represents brokerage API credentials for one owner.
type Credentials struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	AccountID  string `json:"account_id,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	// Source marks where the credentials came from: "owner" for a stored
	// per-owner record, "config_fallback" for process configuration.
	Source string `json:"-"`
}

// CodeMissingCredentials tags a failed result caused by an owner having no
// stored credentials for the target broker. It is a configuration problem,
// not a brokerage rejection, and the transport layer reports it as such.
const CodeMissingCredentials = "missing_credentials"

// ExecutionResult is the outcome of a trade dispatch. It is returned verbatim
// as the webhook response body. Code is an internal classification marker and
// never serialized.
type ExecutionResult struct {
	Success        bool           `json:"success"`
	Message        string         `json:"message"`
	OrderID        string         `json:"order_id,omitempty"`
	Errors         []string       `json:"errors,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	ResponseTimeMs int64          `json:"response_time_ms"`
	Code           string         `json:"-"`
}

// TestResult is the outcome of a read-only connection test.
type TestResult struct {
	Success     bool           `json:"success"`
	Message     string         `json:"message"`
	AccountInfo map[string]any `json:"account_info,omitempty"`
}

// Failed builds a failed ExecutionResult from a message and error strings.
func Failed(message string, errs ...string) *ExecutionResult {
	return &ExecutionResult{
		Success: false,
		Message: message,
		Errors:  errs,
	}
}

// MissingCredentials builds the terminal failed result for an owner with no
// stored credentials for a broker, tagged with CodeMissingCredentials.
func MissingCredentials(broker string) *ExecutionResult {
	result := Failed(
		"missing credentials",
		fmt.Sprintf("missing credentials: no %s credentials stored for this account", broker),
	)
	result.Code = CodeMissingCredentials
	return result
}

// Fill captures the primary order outcome a connector needs to place
// dependent bracket orders.
type Fill struct {
	OrderID   string
	Symbol    string
	Side      OrderSide
	Quantity  float64
	Price     float64
	FilledAt  time.Time
}

// BracketPrices computes the absolute stop-loss and take-profit trigger prices
// for a fill. Stops sit below the fill for a long and above it for a short;
// take-profits the other way around.
func BracketPrices(fill *Fill, stopLoss, takeProfit *BracketSpec) (stop, take float64) {
	dir := 1.0
	if fill.Side == OrderSideSell {
		dir = -1.0
	}
	if stopLoss != nil {
		stop = fill.Price - dir*offset(fill.Price, stopLoss)
	}
	if takeProfit != nil {
		take = fill.Price + dir*offset(fill.Price, takeProfit)
	}
	return stop, take
}

func offset(fillPrice float64, spec *BracketSpec) float64 {
	if spec.Type == BracketPercent {
		return fillPrice * spec.Value / 100
	}
	return spec.Value
}
