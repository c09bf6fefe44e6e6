package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"ciphermarket/internal/events"
	"ciphermarket/internal/faucet"
	"ciphermarket/internal/gateway"
	"ciphermarket/internal/market"
	"ciphermarket/internal/payment"
	"ciphermarket/internal/registry"
)

// Config for the HTTP API handler.
type Config struct {
	Market   *market.Market
	Registry *registry.Registry
	Events   *events.Bus
	Gateway  *gateway.Gateway
	Gate     *payment.Gate
	// Payer funds orchestrator-initiated payments on the demo route.
	// Nil disables server-side payment.
	Payer *payment.Payer
	// Faucet drips testnet funds to buyer wallets. Nil disables the route.
	Faucet    *faucet.Dripper
	Explorers ExplorerLinks
	BasePath  string
	// SelfURL is the base URL the demo route uses to call its own data
	// endpoint through the payment gate.
	SelfURL string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"seller not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Ciphermarket API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Ciphermarket API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group, cfg)
	registerSellers(group, cfg.Registry)
	registerQuery(group, cfg)
	registerFaucet(group, cfg.Faucet)

	// The events stream and the gated data route speak raw HTTP: one
	// holds the connection open, the other's 402 body belongs to the
	// payment middleware, so neither goes through huma.
	router.Get(basePath+"/events", eventsHandler(cfg.Events))
	router.With(cfg.Gate.Middleware).Get("/data/{sellerId}", dataHandler(cfg.Market))

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, market.ErrInvalidRequest):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, market.ErrSellerNotFound), errors.Is(err, market.ErrResponseNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, market.ErrSellerMismatch):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, market.ErrDecrypt):
		return newAPIError(http.StatusInternalServerError, "decrypt_failed", market.ErrDecrypt.Error(), nil)
	case errors.Is(err, market.ErrEncrypt):
		return newAPIError(http.StatusInternalServerError, "encrypt_failed", market.ErrEncrypt.Error(), nil)
	case errors.Is(err, market.ErrHandler):
		return newAPIError(http.StatusInternalServerError, "handler_failed", market.ErrHandler.Error(), nil)
	default:
		// Unexpected failure: log the detail, return a generic message.
		log.Printf("server: unhandled error: %v", err)
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusPaymentRequired:
		return "payment_required"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{
			Status:     "ok",
			Sellers:    cfg.Registry.Len(),
			X402:       cfg.Gate.Enabled(),
			Encryption: string(cfg.Gateway.Mode()),
			Explorers:  cfg.Explorers,
		}}, nil
	})
}

func registerFaucet(api huma.API, dripper *faucet.Dripper) {
	huma.Register(api, huma.Operation{
		OperationID:   "faucet-drip",
		Method:        http.MethodPost,
		Path:          "/faucet",
		Summary:       "Send test USDC and ETH to a wallet",
		DefaultStatus: http.StatusOK,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusTooManyRequests,
			http.StatusServiceUnavailable,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body FaucetRequest `json:"body"`
	}) (*struct {
		Body FaucetResponse `json:"body"`
	}, error) {
		if dripper == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "faucet_unavailable",
				"faucet not configured", nil)
		}
		rec, err := dripper.Drip(ctx, input.Body.Address)
		if err != nil {
			return nil, faucetError(err)
		}
		return &struct {
			Body FaucetResponse `json:"body"`
		}{Body: FaucetResponse{
			Success:        true,
			USDCAmount:     rec.USDCAmount,
			ETHAmount:      rec.ETHAmount,
			USDCTxHash:     rec.USDCTxHash,
			ETHTxHash:      rec.ETHTxHash,
			RemainingDrips: rec.Remaining,
		}}, nil
	})
}

func faucetError(err error) huma.StatusError {
	var rl *faucet.RateLimitedError
	switch {
	case errors.Is(err, faucet.ErrInvalidAddress):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.As(err, &rl):
		return newAPIError(http.StatusTooManyRequests, "rate_limited", err.Error(),
			map[string]any{"retryAfterSeconds": int(rl.Wait.Seconds() + 0.999)})
	case errors.Is(err, faucet.ErrDepleted):
		return newAPIError(http.StatusTooManyRequests, "faucet_depleted", err.Error(), nil)
	default:
		log.Printf("server: faucet transfer failed: %v", err)
		return newAPIError(http.StatusInternalServerError, "internal_error", "faucet transfer failed", nil)
	}
}
