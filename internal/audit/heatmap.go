package audit

// Heatmap color bands derived from average response time
const (
	BandFast     = "fast"     // < 100ms
	BandNormal   = "normal"   // < 300ms
	BandSlow     = "slow"     // < 1000ms
	BandCritical = "critical" // >= 1000ms
)

// intensitySaturation is the bucket count at which intensity reaches 1.0.
const intensitySaturation = 10

// HeatmapBucket aggregates a webhook's metrics for one hour of day,
// independent of calendar date.
type HeatmapBucket struct {
	Hour                int     `json:"hour"`
	Count               int     `json:"count"`
	TotalResponseTimeMs int64   `json:"total_response_time_ms"`
	AverageResponseTime float64 `json:"average_response_time_ms"`
	ErrorCount          int     `json:"error_count"`
	ErrorRate           float64 `json:"error_rate"`
	Intensity           float64 `json:"intensity"`
	Band                string  `json:"band"`
}

// LatencyHeatmap builds the 24 hour-of-day buckets for a webhook from the
// rolling metrics window. Buckets wrap by local hour regardless of date.
func (s *Store) LatencyHeatmap(webhookID uint) [24]HeatmapBucket {
	var buckets [24]HeatmapBucket
	for hour := range buckets {
		buckets[hour].Hour = hour
	}

	for _, m := range s.Metrics(webhookID) {
		hour := m.Timestamp.Hour()
		b := &buckets[hour]
		b.Count++
		b.TotalResponseTimeMs += m.ResponseTimeMs
		if !m.Success {
			b.ErrorCount++
		}
	}

	for hour := range buckets {
		b := &buckets[hour]
		if b.Count == 0 {
			continue
		}
		b.AverageResponseTime = float64(b.TotalResponseTimeMs) / float64(b.Count)
		b.ErrorRate = float64(b.ErrorCount) / float64(b.Count) * 100
		b.Intensity = float64(b.Count) / intensitySaturation
		if b.Intensity > 1.0 {
			b.Intensity = 1.0
		}
		b.Band = bandFor(b.AverageResponseTime)
	}
	return buckets
}

func bandFor(avgMs float64) string {
	switch {
	case avgMs < 100:
		return BandFast
	case avgMs < 300:
		return BandNormal
	case avgMs < 1000:
		return BandSlow
	default:
		return BandCritical
	}
}
