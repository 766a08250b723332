// Package credentials resolves brokerage credentials for an owner. Per-owner
// records come from storage; process configuration supplies a development
// fallback that is clearly distinguished in logs.
package credentials

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tradewire/tradewire/connector"
	"github.com/tradewire/tradewire/internal/config"
	"github.com/tradewire/tradewire/internal/models"
	"gorm.io/gorm"
)

// Service implements connector.CredentialSource.
type Service struct {
	db  *gorm.DB
	cfg *config.Config
	log *logrus.Logger
}

// NewService creates a credential service. db may be nil in tests that only
// exercise the config fallback.
func NewService(db *gorm.DB, cfg *config.Config, log *logrus.Logger) *Service {
	return &Service{db: db, cfg: cfg, log: log}
}

// Get returns the owner's active credentials for a broker, falling back to
// the broker's configured default credentials when no owner record exists.
func (s *Service) Get(ctx context.Context, ownerID, broker string) (*connector.Credentials, bool, error) {
	broker = strings.ToLower(broker)

	if s.db != nil {
		var cred models.BrokerCredential
		err := s.db.WithContext(ctx).
			Where("owner_id = ? AND broker = ? AND is_active = ?", ownerID, broker, true).
			First(&cred).Error
		switch {
		case err == nil:
			return &connector.Credentials{
				APIKey:     cred.APIKey,
				SecretKey:  cred.SecretKey,
				AccountID:  cred.AccountID,
				Passphrase: cred.Passphrase,
				Source:     "owner",
			}, true, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, false, err
		}
	}

	fallback := s.cfg.Broker(broker)
	if fallback.APIKey == "" {
		return nil, false, nil
	}

	s.log.WithFields(logrus.Fields{
		"owner_id": ownerID,
		"broker":   broker,
		"source":   "config_fallback",
	}).Warn("no owner credentials stored, using configured fallback credentials")

	return &connector.Credentials{
		APIKey:     fallback.APIKey,
		SecretKey:  fallback.SecretKey,
		AccountID:  fallback.AccountID,
		Passphrase: fallback.Passphrase,
		Source:     "config_fallback",
	}, true, nil
}
