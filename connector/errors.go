package connector

import (
	"errors"
	"fmt"
)

// Common connector errors
var (
	ErrUnsupportedBroker  = errors.New("unsupported broker")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSymbol      = errors.New("invalid symbol")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidOrderType   = errors.New("invalid order type")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrMarketClosed       = errors.New("market is closed")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrTimeout            = errors.New("request timeout")
)

// APIError represents a brokerage API failure with enough context for the
// error-insight rules to classify it.
type APIError struct {
	Broker  string `json:"broker"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Broker, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Broker, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError creates a new brokerage API error
func NewAPIError(broker, code, message string, err error) *APIError {
	return &APIError{
		Broker:  broker,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
