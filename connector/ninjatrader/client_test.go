package ninjatrader

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

func testDeps(baseURL string, creds *connector.Credentials) connector.Deps {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return connector.Deps{
		Credentials: &staticCredentials{creds: creds},
		Log:         log,
		BaseURL:     baseURL,
	}
}

func simCreds() *connector.Credentials {
	return &connector.Credentials{AccountID: "Sim101"}
}

func TestExecuteTradeCommand(t *testing.T) {
	var mu sync.Mutex
	var commands []map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		assert.Equal(t, "/command", r.URL.Path)
		var cmd map[string]any
		json.NewDecoder(r.Body).Decode(&cmd)
		mu.Lock()
		commands = append(commands, cmd)
		mu.Unlock()

		json.NewEncoder(w).Encode(map[string]any{
			"status":   "accepted",
			"order_id": "nt-1",
		})
	}))
	defer server.Close()

	client := New(testDeps(server.URL, simCreds()))
	result, err := client.ExecuteTrade(context.Background(), "owner-1", &connector.NormalizedAlert{
		Symbol:    "ES",
		Side:      connector.OrderSideSell,
		Quantity:  2,
		OrderType: connector.OrderTypeMarket,
	})

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "nt-1", result.OrderID)
	assert.Equal(t, "accepted", result.Details["bridge_status"])

	assert.Len(t, commands, 1)
	cmd := commands[0]
	assert.Equal(t, "PLACE", cmd["command"])
	assert.Equal(t, "Sim101", cmd["account"])
	assert.Equal(t, "ES", cmd["instrument"])
	assert.Equal(t, "SELL", cmd["action"])
	assert.Equal(t, 2.0, cmd["quantity"])
	assert.Equal(t, "MARKET", cmd["order_type"])
}

func TestExecuteTradeBrackets(t *testing.T) {
	var mu sync.Mutex
	var commands []map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var cmd map[string]any
		json.NewDecoder(r.Body).Decode(&cmd)
		mu.Lock()
		n := len(commands)
		commands = append(commands, cmd)
		mu.Unlock()

		resp := map[string]any{"status": "filled", "order_id": "nt-1"}
		if n == 0 {
			resp["fill_price"] = 5000.0
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := New(testDeps(server.URL, simCreds()))
	result, err := client.ExecuteTrade(context.Background(), "owner-1", &connector.NormalizedAlert{
		Symbol:     "ES",
		Side:       connector.OrderSideBuy,
		Quantity:   1,
		OrderType:  connector.OrderTypeMarket,
		StopLoss:   &connector.BracketSpec{Type: connector.BracketFixed, Value: 10},
		TakeProfit: &connector.BracketSpec{Type: connector.BracketFixed, Value: 25},
	})

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 5000.0, result.Details["fill_price"])
	assert.Contains(t, result.Details, "stop_loss_order_id")
	assert.Contains(t, result.Details, "take_profit_order_id")

	// Primary plus two dependent commands, both opposite side.
	assert.Len(t, commands, 3)

	stop := commands[1]
	assert.Equal(t, "SELL", stop["action"])
	assert.Equal(t, "STOP", stop["order_type"])
	assert.Equal(t, 4990.0, stop["stop_price"])

	take := commands[2]
	assert.Equal(t, "SELL", take["action"])
	assert.Equal(t, "LIMIT", take["order_type"])
	assert.Equal(t, 5025.0, take["limit_price"])
}

func TestExecuteTradeBracketsSkippedWithoutFillPrice(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		mu.Lock()
		calls++
		mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"status": "accepted", "order_id": "nt-1"})
	}))
	defer server.Close()

	client := New(testDeps(server.URL, simCreds()))
	result, err := client.ExecuteTrade(context.Background(), "owner-1", &connector.NormalizedAlert{
		Symbol:    "ES",
		Side:      connector.OrderSideBuy,
		Quantity:  1,
		OrderType: connector.OrderTypeMarket,
		StopLoss:  &connector.BracketSpec{Type: connector.BracketFixed, Value: 10},
	})

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "bridge did not report a fill price", result.Details["bracket_skipped"])
	assert.Equal(t, 1, calls, "no dependent orders without a fill price")
}

func TestExecuteTradeBridgeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status": "error",
			"error":  "instrument ES not found in workspace",
		})
	}))
	defer server.Close()

	client := New(testDeps(server.URL, simCreds()))
	result, err := client.ExecuteTrade(context.Background(), "owner-1", &connector.NormalizedAlert{
		Symbol:    "ES",
		Side:      connector.OrderSideBuy,
		Quantity:  1,
		OrderType: connector.OrderTypeMarket,
	})

	assert.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "instrument ES not found")
}

func TestExecuteTradeMissingCredentials(t *testing.T) {
	client := New(testDeps("http://127.0.0.1:1", nil))
	result, err := client.ExecuteTrade(context.Background(), "owner-1", &connector.NormalizedAlert{
		Symbol:    "ES",
		Side:      connector.OrderSideBuy,
		Quantity:  1,
		OrderType: connector.OrderTypeMarket,
	})

	assert.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, connector.CodeMissingCredentials, result.Code)
}

func TestConnectionTest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		assert.Equal(t, "/status", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"connected": true, "account": "Sim101"})
	}))
	defer server.Close()

	client := New(testDeps(server.URL, simCreds()))
	test, err := client.TestConnection(context.Background(), simCreds())
	assert.NoError(t, err)
	assert.True(t, test.Success)
	assert.Equal(t, true, test.AccountInfo["connected"])
}

func TestConnectionTestBridgeDown(t *testing.T) {
	client := New(testDeps("http://127.0.0.1:1", simCreds()))
	test, err := client.TestConnection(context.Background(), simCreds())
	assert.NoError(t, err)
	assert.False(t, test.Success)
	assert.Contains(t, test.Message, "unreachable")
}
