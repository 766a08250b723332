package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// WebhookSettings holds the free-form per-webhook trade defaults. It is
// stored as a JSON text column.
type WebhookSettings struct {
	// TargetBroker overrides the routing target for broker-agnostic alerts
	// (e.g. a TradingView webhook whose real destination is chosen here).
	TargetBroker    string  `json:"target_broker,omitempty"`
	DefaultQuantity float64 `json:"default_quantity,omitempty"`
	StopLossType    string  `json:"stop_loss_type,omitempty"` // fixed, percent
	StopLossValue   float64 `json:"stop_loss_value,omitempty"`
	TakeProfitType  string  `json:"take_profit_type,omitempty"`
	TakeProfitValue float64 `json:"take_profit_value,omitempty"`
	TrailingStop    bool    `json:"trailing_stop,omitempty"`
	TrailingValue   float64 `json:"trailing_value,omitempty"`
	Reversal        bool    `json:"reversal,omitempty"`
	AutoAdjust      bool    `json:"auto_adjust,omitempty"`
}

// Value implements driver.Valuer for JSON storage
func (s WebhookSettings) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook settings: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner for JSON storage
func (s *WebhookSettings) Scan(value any) error {
	if value == nil {
		*s = WebhookSettings{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported settings column type %T", value)
	}
	if len(data) == 0 {
		*s = WebhookSettings{}
		return nil
	}
	return json.Unmarshal(data, s)
}

// WebhookConfig is a tokenized, owner-scoped routing rule mapping an inbound
// alert to a target brokerage and default trade parameters. A token, once
// issued, is never reused for a different owner.
type WebhookConfig struct {
	ID        uint            `json:"id" gorm:"primaryKey"`
	Token     string          `json:"token" gorm:"uniqueIndex;not null"`
	OwnerID   string          `json:"owner_id" gorm:"index;not null"`
	Name      string          `json:"name"`
	Broker    string          `json:"broker" gorm:"not null"`
	IsActive  bool            `json:"is_active" gorm:"default:true"`
	Settings  WebhookSettings `json:"settings" gorm:"type:text"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `json:"deleted_at,omitempty" gorm:"index"`
}

// BrokerCredential represents stored brokerage credentials for an owner
type BrokerCredential struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	OwnerID    string         `json:"owner_id" gorm:"index;not null"`
	Broker     string         `json:"broker" gorm:"not null"`
	APIKey     string         `json:"api_key" gorm:"not null"`
	SecretKey  string         `json:"secret_key"`
	AccountID  string         `json:"account_id,omitempty"`
	Passphrase string         `json:"passphrase,omitempty"`
	IsActive   bool           `json:"is_active" gorm:"default:true"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
