package registry

import (
	"errors"
	"sync"

	"github.com/tradewire/tradewire/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned for unknown tokens and ids. Inactive webhooks are
// reported through the same error so disabled configs behave identically to
// unknown tokens from the caller's perspective.
var ErrNotFound = errors.New("webhook not found")

// Store abstracts webhook config persistence so the pipeline works against
// either the gorm-backed store or an in-memory map in tests.
type Store interface {
	Insert(cfg *models.WebhookConfig) error
	GetByToken(token string) (*models.WebhookConfig, error)
	GetByID(id uint) (*models.WebhookConfig, error)
	Update(cfg *models.WebhookConfig) error
	Delete(id uint) (bool, error)
	ListByOwner(ownerID string) ([]models.WebhookConfig, error)
}

// GormStore persists webhook configs through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a gorm-backed webhook store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Insert(cfg *models.WebhookConfig) error {
	return s.db.Create(cfg).Error
}

func (s *GormStore) GetByToken(token string) (*models.WebhookConfig, error) {
	var cfg models.WebhookConfig
	err := s.db.Where("token = ?", token).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *GormStore) GetByID(id uint) (*models.WebhookConfig, error) {
	var cfg models.WebhookConfig
	err := s.db.First(&cfg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *GormStore) Update(cfg *models.WebhookConfig) error {
	return s.db.Save(cfg).Error
}

func (s *GormStore) Delete(id uint) (bool, error) {
	res := s.db.Delete(&models.WebhookConfig{}, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) ListByOwner(ownerID string) ([]models.WebhookConfig, error) {
	var configs []models.WebhookConfig
	err := s.db.Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&configs).Error
	return configs, err
}

// MemoryStore is the in-memory Store used by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  uint
	byID    map[uint]*models.WebhookConfig
	byToken map[string]uint
}

// NewMemoryStore creates an empty in-memory webhook store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[uint]*models.WebhookConfig),
		byToken: make(map[string]uint),
	}
}

func (s *MemoryStore) Insert(cfg *models.WebhookConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byToken[cfg.Token]; exists {
		return errors.New("token already exists")
	}
	s.nextID++
	cfg.ID = s.nextID
	clone := *cfg
	s.byID[cfg.ID] = &clone
	s.byToken[cfg.Token] = cfg.ID
	return nil
}

func (s *MemoryStore) GetByToken(token string) (*models.WebhookConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s.byID[id]
	return &clone, nil
}

func (s *MemoryStore) GetByID(id uint) (*models.WebhookConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *cfg
	return &clone, nil
}

func (s *MemoryStore) Update(cfg *models.WebhookConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byID[cfg.ID]
	if !ok {
		return ErrNotFound
	}
	delete(s.byToken, old.Token)
	clone := *cfg
	s.byID[cfg.ID] = &clone
	s.byToken[cfg.Token] = cfg.ID
	return nil
}

func (s *MemoryStore) Delete(id uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	delete(s.byToken, cfg.Token)
	delete(s.byID, id)
	return true, nil
}

func (s *MemoryStore) ListByOwner(ownerID string) ([]models.WebhookConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var configs []models.WebhookConfig
	for _, cfg := range s.byID {
		if cfg.OwnerID == ownerID {
			configs = append(configs, *cfg)
		}
	}
	return configs, nil
}
