package domain

import (
	"context"
	"time"
)

// ParamField describes one field of a seller's query parameter schema.
type ParamField struct {
	Type        string   `json:"type" enum:"string,string[],number"`
	Required    bool     `json:"required,omitempty"`
	Default     any      `json:"default,omitempty"`
	Options     []string `json:"options,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Handler computes a seller's answer for resolved query parameters.
// The returned value must be JSON-serializable.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// Seller is a registered data provider: one query-able capability with a
// fixed price and parameter schema. Registered once at startup, immutable
// thereafter.
type Seller struct {
	ID             string
	Name           string
	Description    string
	Category       string
	PriceUSD       string
	Params         map[string]ParamField
	SampleResponse any
	Handler        Handler
}

// Seller categories.
const (
	CategoryWeather = "weather"
	CategoryCrypto  = "crypto"
	CategorySignals = "signals"
	CategoryCustom  = "custom"
)

// SellerInfo is the serializable view of a Seller (handler omitted).
type SellerInfo struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	Category       string                `json:"category" enum:"weather,crypto,signals,custom"`
	PriceUSD       string                `json:"priceUsd"`
	Params         map[string]ParamField `json:"params"`
	SampleResponse any                   `json:"sampleResponse,omitempty"`
}

// Info returns the seller without its handler.
func (s Seller) Info() SellerInfo {
	return SellerInfo{
		ID:             s.ID,
		Name:           s.Name,
		Description:    s.Description,
		Category:       s.Category,
		PriceUSD:       s.PriceUSD,
		Params:         s.Params,
		SampleResponse: s.SampleResponse,
	}
}

// PendingResponse is a computed-but-unpaid-for result. Only ciphertext is
// held; the plaintext never rests here.
type PendingResponse struct {
	SellerID      string
	EncryptedData string
	CreatedAt     time.Time
}

// FlowEventType enumerates lifecycle events.
type FlowEventType string

const (
	EventQueryReceived     FlowEventType = "query_received"
	EventQueryDecrypted    FlowEventType = "query_decrypted"
	EventSellerProcessing  FlowEventType = "seller_processing"
	EventResponseEncrypted FlowEventType = "response_encrypted"
	EventPaymentRequired   FlowEventType = "payment_required"
	EventPaymentConfirmed  FlowEventType = "payment_confirmed"
	EventPaymentFailed     FlowEventType = "payment_failed"
	EventDataDelivered     FlowEventType = "data_delivered"
	EventError             FlowEventType = "error"
)

// FlowEvent is an immutable audit record of one lifecycle step.
type FlowEvent struct {
	ID        string         `json:"id"`
	Timestamp int64          `json:"timestamp"`
	Type      FlowEventType  `json:"type" enum:"query_received,query_decrypted,seller_processing,response_encrypted,payment_required,payment_confirmed,payment_failed,data_delivered,error"`
	Data      map[string]any `json:"data"`
}
