// Package payment adapts the x402 pay-per-resource protocol: requirements
// advertisement, evidence verification and settlement via an external
// facilitator, and a buyer-side paying client.
package payment

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Version is the x402 protocol version spoken here.
const Version = 1

// Header names on the wire.
const (
	PaymentHeader  = "X-Payment"
	ResponseHeader = "X-Payment-Response"
)

// Requirements describes what a resource accepts as payment.
type Requirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	Resource          string `json:"resource"`
	Description       string `json:"description,omitempty"`
	MimeType          string `json:"mimeType,omitempty"`
	PayTo             string `json:"payTo"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds,omitempty"`
	Asset             string `json:"asset"`
}

// RequiredResponse is the 402 body: machine-readable requirements.
type RequiredResponse struct {
	X402Version int            `json:"x402Version"`
	Error       string         `json:"error,omitempty"`
	Accepts     []Requirements `json:"accepts"`
}

// Authorization is the transfer the buyer signs.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// Payload carries the signed authorization.
type Payload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// Evidence is the decoded X-Payment header.
type Evidence struct {
	X402Version int     `json:"x402Version"`
	Scheme      string  `json:"scheme"`
	Network     string  `json:"network"`
	Payload     Payload `json:"payload"`
}

// Receipt is the settlement result attached to gated responses.
type Receipt struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// EncodeEvidence serializes evidence for the X-Payment header.
func EncodeEvidence(ev Evidence) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeEvidence parses an X-Payment header. Base64-wrapped JSON is the
// canonical form; raw JSON is tolerated.
func DecodeEvidence(header string) (Evidence, error) {
	var ev Evidence
	raw := []byte(header)
	if decoded, err := base64.StdEncoding.DecodeString(header); err == nil {
		raw = decoded
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Evidence{}, fmt.Errorf("malformed payment header: %w", err)
	}
	return ev, nil
}

// EncodeReceipt serializes a receipt for the X-Payment-Response header.
func EncodeReceipt(r Receipt) string {
	data, _ := json.Marshal(r)
	return base64.StdEncoding.EncodeToString(data)
}

// ExtractReceipt decodes a settlement receipt header. The wire format is
// owned by the external protocol, so this is best-effort: base64-wrapped
// JSON, then raw JSON, then an opaque string.
func ExtractReceipt(header string) map[string]any {
	if header == "" {
		return nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(header); err == nil {
		var m map[string]any
		if json.Unmarshal(decoded, &m) == nil {
			return m
		}
	}
	var m map[string]any
	if json.Unmarshal([]byte(header), &m) == nil {
		return m
	}
	return map[string]any{"receipt": header}
}

// ReceiptTransaction probes a decoded receipt for the payment transaction
// reference under the key names observed in the wild.
func ReceiptTransaction(m map[string]any) string {
	for _, key := range []string{"transaction", "txHash", "transactionHash"} {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
