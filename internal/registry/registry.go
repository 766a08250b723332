// Package registry maps opaque tokens to webhook configurations and owns
// token generation.
package registry

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tradewire/tradewire/internal/models"
)

const (
	tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	tokenLength   = 32

	// maxTokenAttempts bounds the collision-retry loop. With a 62^32 token
	// space a collision is effectively unobservable, but the registry must
	// retry rather than overwrite if one ever happens.
	maxTokenAttempts = 5
)

// Service is the webhook registry
type Service struct {
	store Store
	log   *logrus.Logger
}

// NewService creates a registry backed by the given store
func NewService(store Store, log *logrus.Logger) *Service {
	return &Service{store: store, log: log}
}

// UpdateParams carries the mutable fields of a webhook config. Nil fields are
// left unchanged.
type UpdateParams struct {
	Name     *string                 `json:"name,omitempty"`
	Broker   *string                 `json:"broker,omitempty"`
	IsActive *bool                   `json:"is_active,omitempty"`
	Settings *models.WebhookSettings `json:"settings,omitempty"`
}

// Create issues a new webhook config with a freshly generated token.
func (s *Service) Create(ownerID, name, broker string, settings *models.WebhookSettings) (*models.WebhookConfig, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	if broker == "" {
		return nil, fmt.Errorf("broker is required")
	}

	cfg := &models.WebhookConfig{
		OwnerID:  ownerID,
		Name:     name,
		Broker:   broker,
		IsActive: true,
	}
	if settings != nil {
		cfg.Settings = *settings
	}

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := generateToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}
		cfg.Token = token

		if _, err := s.store.GetByToken(token); err == nil {
			s.log.WithField("attempt", attempt+1).Warn("webhook token collision, regenerating")
			continue
		}
		if err := s.store.Insert(cfg); err != nil {
			return nil, fmt.Errorf("failed to store webhook: %w", err)
		}
		s.log.WithFields(logrus.Fields{
			"webhook_id": cfg.ID,
			"owner_id":   ownerID,
			"broker":     broker,
		}).Info("webhook created")
		return cfg, nil
	}
	return nil, fmt.Errorf("failed to generate a unique token after %d attempts", maxTokenAttempts)
}

// Resolve looks up an active webhook config by token. Inactive configs are
// indistinguishable from unknown tokens.
func (s *Service) Resolve(token string) (*models.WebhookConfig, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	cfg, err := s.store.GetByToken(token)
	if err != nil {
		return nil, err
	}
	if !cfg.IsActive {
		return nil, ErrNotFound
	}
	return cfg, nil
}

// Get looks up a webhook config by id regardless of active state.
func (s *Service) Get(id uint) (*models.WebhookConfig, error) {
	return s.store.GetByID(id)
}

// Update applies a partial update to a webhook config.
func (s *Service) Update(id uint, params UpdateParams) (*models.WebhookConfig, error) {
	cfg, err := s.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	if params.Name != nil {
		cfg.Name = *params.Name
	}
	if params.Broker != nil {
		cfg.Broker = *params.Broker
	}
	if params.IsActive != nil {
		cfg.IsActive = *params.IsActive
	}
	if params.Settings != nil {
		cfg.Settings = *params.Settings
	}
	cfg.UpdatedAt = time.Now()
	if err := s.store.Update(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Delete removes a webhook config. Audit records keep the broker and owner
// values captured at execution time, so nothing else is touched.
func (s *Service) Delete(id uint) (bool, error) {
	return s.store.Delete(id)
}

// ListByOwner returns all webhook configs owned by ownerID.
func (s *Service) ListByOwner(ownerID string) ([]models.WebhookConfig, error) {
	return s.store.ListByOwner(ownerID)
}

// tokenByteCeiling is the largest multiple of the alphabet size that fits in
// a byte. Bytes at or above it are rejected so every character is drawn
// uniformly.
const tokenByteCeiling = 256 - 256%len(tokenAlphabet)

// generateToken draws tokenLength characters from the alphanumeric alphabet
// using crypto/rand with rejection sampling.
func generateToken() (string, error) {
	token := make([]byte, 0, tokenLength)
	buf := make([]byte, tokenLength)
	for len(token) < tokenLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= tokenByteCeiling {
				continue
			}
			token = append(token, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(token) == tokenLength {
				break
			}
		}
	}
	return string(token), nil
}
