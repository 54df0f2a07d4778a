package fsp

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Configuration is the persisted profile of a financial service provider.
type Configuration struct {
	Code               string                      `gorm:"column:code;primaryKey"`
	Name               string                      `gorm:"column:name;not null"`
	Channels           datatypes.JSONSlice[string] `gorm:"column:channels"`
	BaseURL            string                      `gorm:"column:base_url"`
	APIKey             string                      `gorm:"column:api_key"`
	MinAmount          decimal.Decimal             `gorm:"column:min_amount;type:decimal(18,2);not null"`
	MaxAmount          decimal.Decimal             `gorm:"column:max_amount;type:decimal(18,2);not null"`
	TimeoutSeconds     int                         `gorm:"column:timeout_seconds;not null;default:30"`
	MaxConcurrent      int64                       `gorm:"column:max_concurrent;not null;default:5"`
	Active             bool                        `gorm:"column:active;not null"`
	CallbackSecretHash string                      `gorm:"column:callback_secret_hash"`
	CreatedAt          time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (Configuration) TableName() string {
	return "fsp_configurations"
}

type GatewayStatus string

const (
	GatewayStatusPending  GatewayStatus = "PENDING"
	GatewayStatusSuccess  GatewayStatus = "SUCCESS"
	GatewayStatusFailed   GatewayStatus = "FAILED"
	GatewayStatusRejected GatewayStatus = "REJECTED"
)

// GatewayPaymentRequest is the body posted to a provider gateway.
type GatewayPaymentRequest struct {
	ExternalID    string            `json:"external_id"`
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	Channel       string            `json:"channel"`
	RecipientName string            `json:"recipient_name"`
	Destination   map[string]string `json:"destination"`
}

func (r *GatewayPaymentRequest) Validate() error {
	if r.ExternalID == "" {
		return errors.New("external_id is required")
	}
	if r.Amount == "" {
		return errors.New("amount is required")
	}
	if r.Currency == "" {
		return errors.New("currency is required")
	}
	if r.Channel == "" {
		return errors.New("channel is required")
	}
	return nil
}

type GatewayPaymentData struct {
	ID              string        `json:"id"`
	ExternalID      string        `json:"external_id"`
	Status          GatewayStatus `json:"status"`
	ConfirmedAmount string        `json:"confirmed_amount,omitempty"`
	FailureCode     string        `json:"failure_code,omitempty"`
}

type GatewayPaymentResponse struct {
	Data GatewayPaymentData `json:"data"`
}

// CallbackPayload is what a provider posts back when an accepted payment settles.
type CallbackPayload struct {
	ProviderReference string        `json:"provider_reference"`
	ExternalID        string        `json:"external_id"`
	Status            GatewayStatus `json:"status"`
	ConfirmedAmount   string        `json:"confirmed_amount,omitempty"`
	FailureCode       string        `json:"failure_code,omitempty"`
}
