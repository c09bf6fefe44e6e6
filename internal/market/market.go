package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ciphermarket/internal/domain"
	"ciphermarket/internal/events"
	"ciphermarket/internal/gateway"
	"ciphermarket/internal/registry"
	"ciphermarket/internal/store"
)

// Preview truncation lengths for event payloads and submit responses.
// Events never carry full ciphertext or plaintext.
const (
	eventPreviewLen     = 80
	responsePreviewLen  = 60
	deliveredPreviewLen = 100
)

// Market drives the query lifecycle: ciphertext in, encrypted pending
// response stored, plaintext out after payment.
type Market struct {
	Registry *registry.Registry
	Gateway  *gateway.Gateway
	Store    *store.Store
	Events   *events.Bus

	Now func() time.Time
}

func New(reg *registry.Registry, gw *gateway.Gateway, st *store.Store, bus *events.Bus) *Market {
	return &Market{
		Registry: reg,
		Gateway:  gw,
		Store:    st,
		Events:   bus,
		Now:      time.Now,
	}
}

// SubmitRequest carries one buyer query. Exactly one of EncryptedQuery,
// Query, or Params must be non-empty (EncryptedQuery wins if several are
// set).
type SubmitRequest struct {
	SellerID       string
	EncryptedQuery string
	Query          string
	Params         map[string]any
	BuyerAddress   string
}

// SubmitResult is what the buyer gets back before paying: an identifier
// and where to pay, plus truncated ciphertext previews for observability.
type SubmitResult struct {
	ResponseID      string
	PaymentURL      string
	PriceUSD        string
	SellerName      string
	QueryPreview    string
	ResponsePreview string
	ResponseLength  int
	DecryptTxHash   string
	ResolvedParams  map[string]any
}

// SettleResult is the paid-for plaintext plus decryption proof.
type SettleResult struct {
	SellerID string
	Data     any
	Raw      string
	TxHash   string
}

// Submit runs one query end to end: decrypt, dispatch to the seller,
// encrypt the result, park it in the pending store, and hand back the
// payment pointer. Each step may fail independently; a failed step emits
// a single error event and no further lifecycle events.
func (m *Market) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	seller, ok := m.Registry.Get(req.SellerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSellerNotFound, req.SellerID)
	}
	if req.EncryptedQuery == "" && req.Query == "" && len(req.Params) == 0 {
		return nil, fmt.Errorf("%w: query, encryptedQuery or params required", ErrInvalidRequest)
	}

	buyer := req.BuyerAddress
	if buyer == "" {
		buyer = "anonymous"
	}
	m.emit(domain.EventQueryReceived, map[string]any{
		"sellerId":       req.SellerID,
		"buyer":          buyer,
		"encryptedQuery": truncate(req.EncryptedQuery, eventPreviewLen),
	})

	// Recover the query text. Plaintext submissions skip the gateway.
	queryText := req.Query
	var decryptTx string
	if req.EncryptedQuery != "" {
		dec, err := m.Gateway.Decrypt(ctx, req.EncryptedQuery)
		if err != nil {
			m.emitError("query decryption failed", req.SellerID, err)
			return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
		}
		queryText = dec.Plaintext
		decryptTx = dec.TxHash
	}
	m.emit(domain.EventQueryDecrypted, map[string]any{
		"sellerId": req.SellerID,
		"query":    queryText,
		"txHash":   decryptTx,
	})

	params := m.resolveParams(seller, queryText, req.Params)
	m.emit(domain.EventSellerProcessing, map[string]any{
		"sellerId": req.SellerID,
		"seller":   seller.Name,
		"params":   params,
	})

	result, err := seller.Handler(ctx, params)
	if err != nil {
		m.emitError("seller handler failed", req.SellerID, err)
		return nil, fmt.Errorf("%w: %v", ErrHandler, err)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		m.emitError("seller result not serializable", req.SellerID, err)
		return nil, fmt.Errorf("%w: %v", ErrHandler, err)
	}

	ciphertext, err := m.Gateway.Encrypt(ctx, string(raw))
	if err != nil {
		m.emitError("response encryption failed", req.SellerID, err)
		return nil, fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	m.emit(domain.EventResponseEncrypted, map[string]any{
		"sellerId": req.SellerID,
		"length":   len(ciphertext),
		"preview":  truncate(ciphertext, eventPreviewLen),
	})

	id := uuid.NewString()
	m.Store.Put(id, domain.PendingResponse{
		SellerID:      req.SellerID,
		EncryptedData: ciphertext,
		CreatedAt:     m.Now(),
	})

	m.emit(domain.EventPaymentRequired, map[string]any{
		"sellerId":   req.SellerID,
		"responseId": id,
		"priceUsd":   seller.PriceUSD,
	})

	return &SubmitResult{
		ResponseID:      id,
		PaymentURL:      fmt.Sprintf("/data/%s?responseId=%s", req.SellerID, id),
		PriceUSD:        seller.PriceUSD,
		SellerName:      seller.Name,
		QueryPreview:    truncate(req.EncryptedQuery, responsePreviewLen),
		ResponsePreview: truncate(ciphertext, responsePreviewLen),
		ResponseLength:  len(ciphertext),
		DecryptTxHash:   decryptTx,
		ResolvedParams:  params,
	}, nil
}

// resolveParams prefers explicit structured params, then a structured
// object hidden in the query text, then free-text extraction. Structured
// maps are normalized against the seller's schema before reaching the
// handler; free-text extraction already only yields declared keys.
func (m *Market) resolveParams(seller domain.Seller, queryText string, explicit map[string]any) map[string]any {
	if len(explicit) > 0 {
		return NormalizeParams(seller, explicit)
	}
	if queryText != "" {
		var obj map[string]any
		if err := json.Unmarshal([]byte(queryText), &obj); err == nil && len(obj) > 0 {
			return NormalizeParams(seller, obj)
		}
	}
	return ExtractParams(seller, queryText)
}

// Settle consumes a pending response and returns its plaintext. Called
// only after the payment gate has authorized this exact resource; the
// entry is removed atomically before decryption so a second settle with
// the same identifier fails with NotFound.
func (m *Market) Settle(ctx context.Context, sellerID, responseID string) (*SettleResult, error) {
	pending, status := m.Store.Take(responseID, sellerID)
	switch status {
	case store.TakeMissing:
		return nil, fmt.Errorf("%w: %s", ErrResponseNotFound, responseID)
	case store.TakeSellerMismatch:
		return nil, fmt.Errorf("%w: response %s does not belong to seller %s", ErrSellerMismatch, responseID, sellerID)
	}

	dec, err := m.Gateway.Decrypt(ctx, pending.EncryptedData)
	if err != nil {
		// The entry is already consumed; payment is non-refundable here.
		m.emitError("settled response decryption failed", sellerID, err)
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	m.emit(domain.EventPaymentConfirmed, map[string]any{
		"sellerId":   sellerID,
		"responseId": responseID,
	})
	m.emit(domain.EventDataDelivered, map[string]any{
		"sellerId":   sellerID,
		"responseId": responseID,
		"preview":    truncate(dec.Plaintext, deliveredPreviewLen),
		"txHash":     dec.TxHash,
	})

	var data any
	if err := json.Unmarshal([]byte(dec.Plaintext), &data); err != nil {
		data = dec.Plaintext
	}
	return &SettleResult{
		SellerID: sellerID,
		Data:     data,
		Raw:      dec.Plaintext,
		TxHash:   dec.TxHash,
	}, nil
}

func (m *Market) emit(t domain.FlowEventType, data map[string]any) {
	if m.Events != nil {
		m.Events.Emit(t, data)
	}
}

func (m *Market) emitError(msg, sellerID string, err error) {
	m.emit(domain.EventError, map[string]any{
		"sellerId": sellerID,
		"message":  msg,
		"error":    err.Error(),
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
