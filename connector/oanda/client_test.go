package oanda

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/tradewire/tradewire/connector"
)

type staticCredentials struct {
	creds *connector.Credentials
}

func (s *staticCredentials) Get(ctx context.Context, ownerID, broker string) (*connector.Credentials, bool, error) {
	if s.creds == nil {
		return nil, false, nil
	}
	return s.creds, true, nil
}

func testDeps(baseURL string) connector.Deps {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return connector.Deps{
		Credentials: &staticCredentials{creds: &connector.Credentials{APIKey: "token", AccountID: "001-001"}},
		Log:         log,
		BaseURL:     baseURL,
	}
}

func TestExecuteTradeSignedUnits(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Equal(t, "/v3/accounts/001-001/orders", r.URL.Path)

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()

		json.NewEncoder(w).Encode(map[string]any{
			"orderCreateTransaction": map[string]any{"id": "1001"},
			"orderFillTransaction": map[string]any{
				"id":          "1002",
				"price":       "1.0850",
				"units":       "-1000",
				"tradeOpened": map[string]any{"tradeID": "1003"},
			},
		})
	}))
	defer server.Close()

	client := New(testDeps(server.URL))
	result, err := client.ExecuteTrade(context.Background(), "owner-1", &connector.NormalizedAlert{
		Symbol:    "EURUSD",
		Side:      connector.OrderSideSell,
		Quantity:  1000,
		OrderType: connector.OrderTypeMarket,
	})

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "1001", result.OrderID)
	assert.Equal(t, "1003", result.Details["trade_id"])

	// Sell direction travels as a negative units string on an underscore
	// instrument name.
	order := bodies[0]["order"].(map[string]any)
	assert.Equal(t, "MARKET", order["type"])
	assert.Equal(t, "EUR_USD", order["instrument"])
	assert.Equal(t, "-1000", order["units"])
}

func TestExecuteTradeBrackets(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		n := len(bodies)
		bodies = append(bodies, body)
		mu.Unlock()

		resp := map[string]any{
			"orderCreateTransaction": map[string]any{"id": "2001"},
		}
		if n == 0 {
			resp["orderFillTransaction"] = map[string]any{
				"id":          "2002",
				"price":       "100",
				"units":       "10",
				"tradeOpened": map[string]any{"tradeID": "2003"},
			}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := New(testDeps(server.URL))
	result, err := client.ExecuteTrade(context.Background(), "owner-1", &connector.NormalizedAlert{
		Symbol:     "EURUSD",
		Side:       connector.OrderSideBuy,
		Quantity:   10,
		OrderType:  connector.OrderTypeMarket,
		StopLoss:   &connector.BracketSpec{Type: connector.BracketFixed, Value: 2},
		TakeProfit: &connector.BracketSpec{Type: connector.BracketFixed, Value: 5},
	})

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, bodies, 3)

	stop := bodies[1]["order"].(map[string]any)
	assert.Equal(t, "STOP_LOSS", stop["type"])
	assert.Equal(t, "2003", stop["tradeID"])
	assert.Equal(t, "98", stop["price"])

	take := bodies[2]["order"].(map[string]any)
	assert.Equal(t, "TAKE_PROFIT", take["type"])
	assert.Equal(t, "105", take["price"])
}

func TestExecuteTradeCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"orderCreateTransaction": map[string]any{"id": "3001"},
			"orderCancelTransaction": map[string]any{"reason": "MARKET_HALTED"},
		})
	}))
	defer server.Close()

	client := New(testDeps(server.URL))
	result, err := client.ExecuteTrade(context.Background(), "owner-1", &connector.NormalizedAlert{
		Symbol:    "EURUSD",
		Side:      connector.OrderSideBuy,
		Quantity:  10,
		OrderType: connector.OrderTypeMarket,
	})

	assert.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "MARKET_HALTED")
}

func TestExecuteTradeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"errorMessage": "Invalid value specified for 'units'"})
	}))
	defer server.Close()

	client := New(testDeps(server.URL))
	result, err := client.ExecuteTrade(context.Background(), "owner-1", &connector.NormalizedAlert{
		Symbol:    "EURUSD",
		Side:      connector.OrderSideBuy,
		Quantity:  10,
		OrderType: connector.OrderTypeMarket,
	})

	assert.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "Invalid value")
}

func TestExecuteTradeRejectedNonJSONBody(t *testing.T) {
	// Gateways in front of the API can answer with plain text; the raw body
	// must survive into the error rather than being dropped.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream connect error"))
	}))
	defer server.Close()

	client := New(testDeps(server.URL))
	result, err := client.ExecuteTrade(context.Background(), "owner-1", &connector.NormalizedAlert{
		Symbol:    "EURUSD",
		Side:      connector.OrderSideBuy,
		Quantity:  10,
		OrderType: connector.OrderTypeMarket,
	})

	assert.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "upstream connect error")
	assert.Contains(t, result.Errors[0], "502")
}
