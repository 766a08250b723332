// Package audit keeps the append-only execution log, the rolling
// performance-metric window, and the heuristic error-insight aggregator.
package audit

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tradewire/tradewire/connector"
	"github.com/tradewire/tradewire/internal/models"
	"gorm.io/gorm"
)

// DefaultWindowSize is the rolling metrics window capacity.
const DefaultWindowSize = 100

// ExecutionStore abstracts execution-record persistence.
type ExecutionStore interface {
	Append(rec *models.WebhookExecution) error
	List(webhookID uint, ownerID string, limit int) ([]models.WebhookExecution, error)
}

// GormExecutionStore persists execution records through gorm.
type GormExecutionStore struct {
	db *gorm.DB
}

// NewGormExecutionStore creates a gorm-backed execution store
func NewGormExecutionStore(db *gorm.DB) *GormExecutionStore {
	return &GormExecutionStore{db: db}
}

func (s *GormExecutionStore) Append(rec *models.WebhookExecution) error {
	return s.db.Create(rec).Error
}

func (s *GormExecutionStore) List(webhookID uint, ownerID string, limit int) ([]models.WebhookExecution, error) {
	var recs []models.WebhookExecution
	query := s.db.Model(&models.WebhookExecution{})
	if webhookID > 0 {
		query = query.Where("webhook_id = ?", webhookID)
	}
	if ownerID != "" {
		query = query.Where("owner_id = ?", ownerID)
	}
	err := query.Order("created_at DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

// MemoryExecutionStore is the in-memory ExecutionStore used by tests.
type MemoryExecutionStore struct {
	mu     sync.Mutex
	nextID uint
	recs   []models.WebhookExecution
}

// NewMemoryExecutionStore creates an empty in-memory execution store
func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{}
}

func (s *MemoryExecutionStore) Append(rec *models.WebhookExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	s.recs = append(s.recs, *rec)
	return nil
}

func (s *MemoryExecutionStore) List(webhookID uint, ownerID string, limit int) ([]models.WebhookExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WebhookExecution
	for i := len(s.recs) - 1; i >= 0 && len(out) < limit; i-- {
		rec := s.recs[i]
		if webhookID > 0 && rec.WebhookID != webhookID {
			continue
		}
		if ownerID != "" && rec.OwnerID != ownerID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// RequestMeta carries the request attributes captured on each execution.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	Endpoint  string
}

// Store is the audit and metrics store. The execution log is persisted; the
// metrics window and insights are in-process, guarded by a single mutex since
// all mutations are append or single-key update.
type Store struct {
	executions ExecutionStore
	log        *logrus.Logger

	mu         sync.Mutex
	window     []models.PerformanceMetric
	windowSize int
	aggregator *InsightAggregator
}

// NewStore creates an audit store with the default rolling window size.
func NewStore(executions ExecutionStore, log *logrus.Logger) *Store {
	return NewStoreWithWindow(executions, log, DefaultWindowSize)
}

// NewStoreWithWindow creates an audit store with an explicit window capacity.
func NewStoreWithWindow(executions ExecutionStore, log *logrus.Logger, windowSize int) *Store {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Store{
		executions: executions,
		log:        log,
		windowSize: windowSize,
		aggregator: NewInsightAggregator(),
	}
}

// LogExecution appends the audit record and performance metric for one
// request, evicting the oldest metric once the window is full. Failed results
// feed their first error string to the insight aggregator.
func (s *Store) LogExecution(webhookID uint, ownerID, broker string, payload []byte, result *connector.ExecutionResult, meta RequestMeta, responseTimeMs int64) error {
	now := time.Now()

	rec := &models.WebhookExecution{
		ExecutionID:    uuid.NewString(),
		WebhookID:      webhookID,
		OwnerID:        ownerID,
		Broker:         broker,
		Payload:        string(payload),
		Success:        result.Success,
		Message:        result.Message,
		OrderID:        result.OrderID,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		Endpoint:       meta.Endpoint,
		ResponseTimeMs: responseTimeMs,
		CreatedAt:      now,
	}
	if len(result.Errors) > 0 {
		if data, err := json.Marshal(result.Errors); err == nil {
			rec.Errors = string(data)
		}
	}
	if len(result.Details) > 0 {
		if data, err := json.Marshal(result.Details); err == nil {
			rec.Details = string(data)
		}
	}
	if err := s.executions.Append(rec); err != nil {
		s.log.WithError(err).WithField("webhook_id", webhookID).Error("failed to append execution record")
		return err
	}

	metric := models.PerformanceMetric{
		WebhookID:      webhookID,
		ResponseTimeMs: responseTimeMs,
		Success:        result.Success,
		Timestamp:      now,
		Endpoint:       meta.Endpoint,
	}
	if !result.Success && len(result.Errors) > 0 {
		metric.ErrorMessage = result.Errors[0]
	}

	s.mu.Lock()
	s.window = append(s.window, metric)
	if len(s.window) > s.windowSize {
		s.window = s.window[len(s.window)-s.windowSize:]
	}
	if !result.Success {
		firstError := result.Message
		if len(result.Errors) > 0 {
			firstError = result.Errors[0]
		}
		s.aggregator.Record(webhookID, firstError, now)
	}
	s.mu.Unlock()

	return nil
}

// Executions returns persisted execution records, newest first.
func (s *Store) Executions(webhookID uint, ownerID string, limit int) ([]models.WebhookExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.executions.List(webhookID, ownerID, limit)
}

// Metrics returns the rolling-window metrics for a webhook, append order.
func (s *Store) Metrics(webhookID uint) []models.PerformanceMetric {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PerformanceMetric
	for _, m := range s.window {
		if m.WebhookID == webhookID {
			out = append(out, m)
		}
	}
	return out
}

// WindowLen reports the current rolling window length across all webhooks.
func (s *Store) WindowLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.window)
}

// Insights returns the error insights for a webhook, highest severity first,
// then most frequent.
func (s *Store) Insights(webhookID uint) []models.ErrorInsight {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aggregator.Insights(webhookID)
}
