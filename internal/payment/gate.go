package payment

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Gate decides per request whether a gated resource is served or payment
// is demanded. With no payee configured the gate is bypassed entirely;
// that is a deliberate, loudly-logged operating mode.
type Gate struct {
	PayTo       string
	Network     string
	Asset       string
	Facilitator *Facilitator
	// PriceFor resolves the display price for a seller id.
	PriceFor func(sellerID string) (string, bool)
	// TimeoutSeconds is advertised to payers as the settlement window.
	TimeoutSeconds int
}

// Enabled reports whether gating is active.
func (g *Gate) Enabled() bool { return g != nil && g.PayTo != "" }

// RequirementsFor builds the accepted payment terms for one resource.
func (g *Gate) RequirementsFor(sellerID, resource string) (Requirements, bool) {
	price, ok := g.PriceFor(sellerID)
	if !ok {
		return Requirements{}, false
	}
	units, err := ParsePrice(price)
	if err != nil {
		return Requirements{}, false
	}
	timeout := g.TimeoutSeconds
	if timeout <= 0 {
		timeout = 60
	}
	return Requirements{
		Scheme:            "exact",
		Network:           g.Network,
		MaxAmountRequired: units.String(),
		Resource:          resource,
		Description:       "Access " + sellerID + " data",
		MimeType:          "application/json",
		PayTo:             g.PayTo,
		MaxTimeoutSeconds: timeout,
		Asset:             g.Asset,
	}, true
}

type receiptKey struct{}

// ReceiptFromContext returns the settlement receipt the middleware
// attached after a successful payment.
func ReceiptFromContext(ctx context.Context) (Receipt, bool) {
	r, ok := ctx.Value(receiptKey{}).(Receipt)
	return r, ok
}

// Middleware enforces payment on routes carrying a {sellerId} path
// parameter. Requests without satisfactory evidence get a 402 with
// machine-readable requirements; settled requests pass through with the
// receipt attached to the context and the response header.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		sellerID := chi.URLParam(r, "sellerId")
		reqs, ok := g.RequirementsFor(sellerID, r.URL.Path)
		if !ok {
			// Unknown seller: let the resource handler produce its 404.
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get(PaymentHeader)
		if header == "" {
			writePaymentRequired(w, "payment required", reqs)
			return
		}
		ev, err := DecodeEvidence(header)
		if err != nil {
			writePaymentRequired(w, err.Error(), reqs)
			return
		}
		if err := g.Facilitator.Verify(r.Context(), ev, reqs); err != nil {
			log.Printf("gate: payment verification failed for %s: %v", r.URL.Path, err)
			writePaymentRequired(w, "payment verification failed: "+err.Error(), reqs)
			return
		}
		receipt, err := g.Facilitator.Settle(r.Context(), ev, reqs)
		if err != nil {
			log.Printf("gate: settlement failed for %s: %v", r.URL.Path, err)
			writePaymentRequired(w, "settlement failed: "+err.Error(), reqs)
			return
		}
		w.Header().Set(ResponseHeader, EncodeReceipt(receipt))
		ctx := context.WithValue(r.Context(), receiptKey{}, receipt)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writePaymentRequired(w http.ResponseWriter, msg string, reqs Requirements) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	_ = json.NewEncoder(w).Encode(RequiredResponse{
		X402Version: Version,
		Error:       msg,
		Accepts:     []Requirements{reqs},
	})
}
