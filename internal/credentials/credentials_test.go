package credentials

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/tradewire/tradewire/internal/config"
)

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestConfigFallback(t *testing.T) {
	cfg := &config.Config{
		Brokers: map[string]config.BrokerConfig{
			"alpaca": {
				APIKey:    "fallback-key",
				SecretKey: "fallback-secret",
			},
		},
	}
	svc := NewService(nil, cfg, newTestLogger())

	creds, found, err := svc.Get(context.Background(), "owner-1", "Alpaca")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "fallback-key", creds.APIKey)
	assert.Equal(t, "config_fallback", creds.Source)
}

func TestNoCredentialsAnywhere(t *testing.T) {
	svc := NewService(nil, &config.Config{}, newTestLogger())

	creds, found, err := svc.Get(context.Background(), "owner-1", "alpaca")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, creds)
}
