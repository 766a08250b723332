package pipeline

// SamplePayload returns a broker-appropriate payload for synthetic test
// executions. The samples mirror what each source actually sends so a test
// run exercises the same validation path as a live alert.
func SamplePayload(broker string) map[string]any {
	switch broker {
	case "tradingview":
		return map[string]any{
			"ticker":    "AAPL",
			"action":    "buy",
			"contracts": 1,
			"comment":   "synthetic test alert",
		}
	case "oanda":
		return map[string]any{
			"instrument": "EUR_USD",
			"units":      100,
			"type":       "market",
		}
	case "ninjatrader":
		return map[string]any{
			"symbol":   "ES",
			"action":   "buy",
			"quantity": 1,
		}
	case "binance":
		return map[string]any{
			"symbol":   "BTCUSDT",
			"side":     "buy",
			"quantity": 0.001,
		}
	default:
		return map[string]any{
			"symbol":   "AAPL",
			"action":   "buy",
			"quantity": 1,
		}
	}
}
