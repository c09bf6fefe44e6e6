package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Facilitator verifies and settles payment evidence on-chain on behalf of
// the resource server.
type Facilitator struct {
	URL        string
	HTTPClient *http.Client
}

// NewFacilitator returns a client for the given facilitator base URL.
func NewFacilitator(url string) *Facilitator {
	return &Facilitator{
		URL:        strings.TrimRight(url, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type facilitatorRequest struct {
	X402Version         int          `json:"x402Version"`
	PaymentPayload      Evidence     `json:"paymentPayload"`
	PaymentRequirements Requirements `json:"paymentRequirements"`
}

type verifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// Verify checks payment evidence against requirements without settling.
func (f *Facilitator) Verify(ctx context.Context, ev Evidence, req Requirements) error {
	var out verifyResponse
	if err := f.post(ctx, "/verify", facilitatorRequest{Version, ev, req}, &out); err != nil {
		return err
	}
	if !out.IsValid {
		reason := out.InvalidReason
		if reason == "" {
			reason = "payment evidence rejected"
		}
		return fmt.Errorf("%s", reason)
	}
	return nil
}

// Settle submits the payment for on-chain settlement and returns the
// receipt.
func (f *Facilitator) Settle(ctx context.Context, ev Evidence, req Requirements) (Receipt, error) {
	var out Receipt
	if err := f.post(ctx, "/settle", facilitatorRequest{Version, ev, req}, &out); err != nil {
		return Receipt{}, err
	}
	if !out.Success {
		reason := out.ErrorReason
		if reason == "" {
			reason = "settlement failed"
		}
		return out, fmt.Errorf("%s", reason)
	}
	return out, nil
}

func (f *Facilitator) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.URL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := f.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("facilitator %s: %w", path, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("facilitator %s: status %d: %s", path, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(res.Body).Decode(out)
}
