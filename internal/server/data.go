package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ciphermarket/internal/market"
)

// dataHandler serves the gated pickup route. By the time it runs the
// payment middleware has already verified and settled payment (or gating
// is off); all that is left is consuming the pending response.
func dataHandler(m *market.Market) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID := chi.URLParam(r, "sellerId")
		responseID := r.URL.Query().Get("responseId")
		if responseID == "" {
			writeJSONError(w, http.StatusBadRequest, "bad_request", "responseId query parameter required")
			return
		}

		res, err := m.Settle(r.Context(), sellerID, responseID)
		if err != nil {
			switch {
			case errors.Is(err, market.ErrResponseNotFound):
				writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
			case errors.Is(err, market.ErrSellerMismatch):
				writeJSONError(w, http.StatusConflict, "conflict", err.Error())
			default:
				writeJSONError(w, http.StatusInternalServerError, "internal_error", "failed to decrypt response")
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": res.Data,
			"_meta": map[string]any{
				"sellerId":   sellerID,
				"responseId": responseID,
				"decrypted":  true,
				"txHash":     res.TxHash,
			},
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": apiErrorBody{Code: code, Message: message},
	})
}
