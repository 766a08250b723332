package models

import (
	"time"
)

// WebhookExecution is the immutable audit record created once per inbound
// request. Broker and owner values are captured at execution time, not a live
// reference, so deleting a webhook config never rewrites history.
type WebhookExecution struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ExecutionID    string    `json:"execution_id" gorm:"uniqueIndex;not null"`
	WebhookID      uint      `json:"webhook_id" gorm:"index"`
	OwnerID        string    `json:"owner_id" gorm:"index"`
	Broker         string    `json:"broker"`
	Payload        string    `json:"payload" gorm:"type:text"`
	Success        bool      `json:"success"`
	Message        string    `json:"message"`
	OrderID        string    `json:"order_id,omitempty"`
	Errors         string    `json:"errors,omitempty" gorm:"type:text"`
	Details        string    `json:"details,omitempty" gorm:"type:text"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	Endpoint       string    `json:"endpoint,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// PerformanceMetric is created alongside each execution and kept in a
// fixed-size rolling window for fast in-process aggregation.
type PerformanceMetric struct {
	WebhookID      uint      `json:"webhook_id"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Success        bool      `json:"success"`
	Timestamp      time.Time `json:"timestamp"`
	Endpoint       string    `json:"endpoint"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// ErrorInsight is a heuristically classified, deduplicated, frequency-counted
// record of a recurring failure pattern for a webhook. At most one insight
// exists per (webhook id, pattern type) pair.
type ErrorInsight struct {
	WebhookID    uint      `json:"webhook_id"`
	PatternType  string    `json:"pattern_type"`
	Severity     string    `json:"severity"` // low, medium, high
	SuggestedFix string    `json:"suggested_fix"`
	Frequency    int       `json:"frequency"`
	LastSeen     time.Time `json:"last_seen"`
}
