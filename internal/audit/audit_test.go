package audit

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/tradewire/tradewire/connector"
	"github.com/tradewire/tradewire/internal/models"
)

func newTestStore(windowSize int) *Store {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewStoreWithWindow(NewMemoryExecutionStore(), log, windowSize)
}

func TestLogExecution(t *testing.T) {
	store := newTestStore(100)

	result := &connector.ExecutionResult{
		Success: true,
		Message: "order submitted",
		OrderID: "ord-1",
		Details: map[string]any{"status": "filled"},
	}
	meta := RequestMeta{IPAddress: "10.0.0.1", UserAgent: "test", Endpoint: "/w/:token"}

	err := store.LogExecution(1, "owner-1", "alpaca", []byte(`{"symbol":"AAPL"}`), result, meta, 42)
	assert.NoError(t, err)

	execs, err := store.Executions(1, "owner-1", 10)
	assert.NoError(t, err)
	assert.Len(t, execs, 1)

	rec := execs[0]
	assert.NotEmpty(t, rec.ExecutionID)
	assert.Equal(t, uint(1), rec.WebhookID)
	assert.Equal(t, "owner-1", rec.OwnerID)
	assert.Equal(t, "alpaca", rec.Broker)
	assert.True(t, rec.Success)
	assert.Equal(t, "ord-1", rec.OrderID)
	assert.Equal(t, int64(42), rec.ResponseTimeMs)
	assert.Contains(t, rec.Details, "filled")

	metrics := store.Metrics(1)
	assert.Len(t, metrics, 1)
	assert.True(t, metrics[0].Success)
}

func TestExecutionsFiltersAndLimit(t *testing.T) {
	store := newTestStore(100)
	ok := &connector.ExecutionResult{Success: true, Message: "ok"}

	for i := 0; i < 5; i++ {
		assert.NoError(t, store.LogExecution(1, "owner-1", "alpaca", nil, ok, RequestMeta{}, 10))
	}
	assert.NoError(t, store.LogExecution(2, "owner-2", "oanda", nil, ok, RequestMeta{}, 10))

	execs, err := store.Executions(1, "owner-1", 3)
	assert.NoError(t, err)
	assert.Len(t, execs, 3)

	execs, err = store.Executions(0, "owner-2", 50)
	assert.NoError(t, err)
	assert.Len(t, execs, 1)
	assert.Equal(t, "oanda", execs[0].Broker)
}

func TestRollingWindowEviction(t *testing.T) {
	store := newTestStore(5)
	ok := &connector.ExecutionResult{Success: true, Message: "ok"}

	for i := 0; i < 8; i++ {
		assert.NoError(t, store.LogExecution(1, "owner-1", "alpaca", nil, ok, RequestMeta{}, int64(i)))
	}

	assert.Equal(t, 5, store.WindowLen())

	// Oldest metrics evicted first: the survivors are the last five.
	metrics := store.Metrics(1)
	assert.Len(t, metrics, 5)
	assert.Equal(t, int64(3), metrics[0].ResponseTimeMs)
	assert.Equal(t, int64(7), metrics[4].ResponseTimeMs)
}

func TestFailedExecutionFeedsInsights(t *testing.T) {
	store := newTestStore(100)

	failed := connector.Failed("alpaca rejected the order", "[alpaca] 403: insufficient buying power for order")
	assert.NoError(t, store.LogExecution(1, "owner-1", "alpaca", nil, failed, RequestMeta{}, 20))
	assert.NoError(t, store.LogExecution(1, "owner-1", "alpaca", nil, failed, RequestMeta{}, 25))

	insights := store.Insights(1)
	assert.Len(t, insights, 1)
	assert.Equal(t, "insufficient_funds", insights[0].PatternType)
	assert.Equal(t, SeverityHigh, insights[0].Severity)
	assert.Equal(t, 2, insights[0].Frequency)
	assert.NotEmpty(t, insights[0].SuggestedFix)
}

func TestInsightAggregator(t *testing.T) {
	t.Run("first matching rule wins", func(t *testing.T) {
		agg := NewInsightAggregator()
		// Mentions both insufficient funds and a 403; the funds rule is first.
		agg.Record(1, "403: insufficient funds for order", time.Now())

		insights := agg.Insights(1)
		assert.Len(t, insights, 1)
		assert.Equal(t, "insufficient_funds", insights[0].PatternType)
	})

	t.Run("unmatched messages ignored", func(t *testing.T) {
		agg := NewInsightAggregator()
		agg.Record(1, "some entirely novel failure", time.Now())
		assert.Empty(t, agg.Insights(1))
	})

	t.Run("sorted severity then frequency", func(t *testing.T) {
		agg := NewInsightAggregator()
		now := time.Now()

		agg.Record(1, "order not found", now)
		agg.Record(1, "request timed out", now)
		agg.Record(1, "request timed out", now)
		agg.Record(1, "market is closed", now)
		agg.Record(1, "invalid credentials", now)

		insights := agg.Insights(1)
		assert.Len(t, insights, 4)
		assert.Equal(t, "auth_failure", insights[0].PatternType)
		assert.Equal(t, "connectivity", insights[1].PatternType)
		assert.Equal(t, "market_closed", insights[2].PatternType)
		assert.Equal(t, "missing_position", insights[3].PatternType)
	})

	t.Run("insights are per webhook", func(t *testing.T) {
		agg := NewInsightAggregator()
		agg.Record(1, "rate limit exceeded", time.Now())
		agg.Record(2, "rate limit exceeded", time.Now())

		assert.Len(t, agg.Insights(1), 1)
		assert.Len(t, agg.Insights(2), 1)
		assert.Empty(t, agg.Insights(3))
	})
}

func TestLatencyHeatmap(t *testing.T) {
	store := newTestStore(100)

	at := func(hour int) time.Time {
		return time.Date(2026, 3, 10, hour, 30, 0, 0, time.Local)
	}
	store.window = []models.PerformanceMetric{
		{WebhookID: 1, ResponseTimeMs: 50, Success: true, Timestamp: at(14)},
		{WebhookID: 1, ResponseTimeMs: 70, Success: true, Timestamp: at(14)},
		{WebhookID: 1, ResponseTimeMs: 500, Success: false, Timestamp: at(14)},
		{WebhookID: 1, ResponseTimeMs: 1200, Success: true, Timestamp: at(9)},
		{WebhookID: 2, ResponseTimeMs: 10, Success: true, Timestamp: at(14)},
	}

	heatmap := store.LatencyHeatmap(1)
	assert.Len(t, heatmap, 24)

	bucket := heatmap[14]
	assert.Equal(t, 14, bucket.Hour)
	assert.Equal(t, 3, bucket.Count)
	assert.InDelta(t, (50+70+500)/3.0, bucket.AverageResponseTime, 0.01)
	assert.Equal(t, 1, bucket.ErrorCount)
	assert.InDelta(t, 33.33, bucket.ErrorRate, 0.01)
	assert.InDelta(t, 0.3, bucket.Intensity, 0.001)
	assert.Equal(t, BandSlow, bucket.Band)

	slow := heatmap[9]
	assert.Equal(t, 1, slow.Count)
	assert.Equal(t, BandCritical, slow.Band)

	empty := heatmap[3]
	assert.Equal(t, 0, empty.Count)
	assert.Equal(t, 0.0, empty.Intensity)
	assert.Empty(t, empty.Band)
}

func TestHeatmapIntensitySaturates(t *testing.T) {
	store := newTestStore(100)

	now := time.Now()
	for i := 0; i < 15; i++ {
		store.window = append(store.window, models.PerformanceMetric{
			WebhookID: 1, ResponseTimeMs: 20, Success: true, Timestamp: now,
		})
	}

	heatmap := store.LatencyHeatmap(1)
	bucket := heatmap[now.Hour()]
	assert.Equal(t, 15, bucket.Count)
	assert.Equal(t, 1.0, bucket.Intensity)
	assert.Equal(t, BandFast, bucket.Band)
}
