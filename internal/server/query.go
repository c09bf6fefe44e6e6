package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"ciphermarket/internal/domain"
	"ciphermarket/internal/market"
	"ciphermarket/internal/payment"
	"ciphermarket/internal/registry"
)

func registerSellers(api huma.API, reg *registry.Registry) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sellers",
		Method:      http.MethodGet,
		Path:        "/registry",
		Summary:     "List sellers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SellerListResponse `json:"body"`
	}, error) {
		infos := reg.ListInfo()
		return &struct {
			Body SellerListResponse `json:"body"`
		}{Body: SellerListResponse{Sellers: infos, Count: len(infos)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-seller",
		Method:      http.MethodGet,
		Path:        "/registry/{sellerId}",
		Summary:     "Get seller",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SellerID string `path:"sellerId"`
	}) (*struct {
		Body domain.SellerInfo `json:"body"`
	}, error) {
		info, ok := reg.GetInfo(input.SellerID)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "seller not found: "+input.SellerID, nil)
		}
		return &struct {
			Body domain.SellerInfo `json:"body"`
		}{Body: info}, nil
	})
}

func registerQuery(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-query",
		Method:        http.MethodPost,
		Path:          "/query",
		Summary:       "Submit encrypted query",
		DefaultStatus: http.StatusOK,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body QueryRequest `json:"body"`
	}) (*struct {
		Body QueryResponse `json:"body"`
	}, error) {
		if input.Body.SellerID == "" || input.Body.EncryptedQuery == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "sellerId and encryptedQuery required", nil)
		}
		res, err := cfg.Market.Submit(ctx, market.SubmitRequest{
			SellerID:       input.Body.SellerID,
			EncryptedQuery: input.Body.EncryptedQuery,
			BuyerAddress:   input.Body.BuyerAddress,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body QueryResponse `json:"body"`
		}{Body: QueryResponse{
			ResponseID:       res.ResponseID,
			SellerID:         input.Body.SellerID,
			SellerName:       res.SellerName,
			EncryptedPreview: res.ResponsePreview,
			PriceUSD:         res.PriceUSD,
			PaymentURL:       res.PaymentURL,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "prepare-query",
		Method:        http.MethodPost,
		Path:          "/query/prepare",
		Summary:       "Submit plaintext query for client-side payment",
		DefaultStatus: http.StatusOK,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body PrepareRequest `json:"body"`
	}) (*struct {
		Body PrepareResponse `json:"body"`
	}, error) {
		buyer := input.Body.BuyerAddress
		if buyer == "" {
			buyer = "wallet-user"
		}
		res, encryptedQuery, err := submitPlaintext(ctx, cfg, input.Body, buyer)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PrepareResponse `json:"body"`
		}{Body: PrepareResponse{
			ResponseID:        res.ResponseID,
			SellerID:          input.Body.SellerID,
			SellerName:        res.SellerName,
			EncryptedQuery:    encryptedQuery,
			EncryptedResponse: res.ResponsePreview,
			PriceUSD:          res.PriceUSD,
			PaymentURL:        res.PaymentURL,
			Transactions:      TransactionRefs{QueryDecrypt: res.DecryptTxHash},
		}}, nil
	})

	registerDemo(api, cfg)
}

// submitPlaintext encrypts the caller's plaintext query and runs it
// through the same pipeline a ciphertext submission takes, so the full
// round trip shows up on the event stream.
func submitPlaintext(ctx context.Context, cfg Config, req PrepareRequest, buyer string) (*market.SubmitResult, string, error) {
	if req.SellerID == "" || (req.Query == "" && len(req.Params) == 0) {
		return nil, "", fmt.Errorf("%w: sellerId and (query or params) required", market.ErrInvalidRequest)
	}
	if _, ok := cfg.Registry.Get(req.SellerID); !ok {
		return nil, "", fmt.Errorf("%w: %s", market.ErrSellerNotFound, req.SellerID)
	}
	queryText := req.Query
	if queryText == "" {
		data, err := json.Marshal(req.Params)
		if err != nil {
			return nil, "", fmt.Errorf("%w: params not serializable", market.ErrInvalidRequest)
		}
		queryText = string(data)
	}
	encryptedQuery, err := cfg.Gateway.Encrypt(ctx, queryText)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", market.ErrEncrypt, err)
	}
	res, err := cfg.Market.Submit(ctx, market.SubmitRequest{
		SellerID:       req.SellerID,
		EncryptedQuery: encryptedQuery,
		Params:         req.Params,
		BuyerAddress:   buyer,
	})
	if err != nil {
		return nil, "", err
	}
	return res, res.QueryPreview, nil
}

func registerDemo(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "demo-query",
		Method:        http.MethodPost,
		Path:          "/query/demo",
		Summary:       "Submit plaintext query with server-side payment",
		DefaultStatus: http.StatusOK,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusPaymentRequired,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body PrepareRequest `json:"body"`
	}) (*struct {
		Body DemoResponse `json:"body"`
	}, error) {
		res, encryptedQuery, err := submitPlaintext(ctx, cfg, input.Body, "demo-buyer")
		if err != nil {
			return nil, handleError(err)
		}
		sellerID := input.Body.SellerID

		if cfg.Gate.Enabled() && cfg.Payer == nil {
			cfg.Events.Emit(domain.EventPaymentFailed, map[string]any{
				"sellerId":   sellerID,
				"responseId": res.ResponseID,
				"reason":     "payment not configured (missing buyer key)",
			})
			return nil, newAPIError(http.StatusPaymentRequired, "payment_required",
				"payment required but not configured", map[string]any{
					"responseId": res.ResponseID,
					"priceUsd":   res.PriceUSD,
				})
		}

		data, txRefs, receipt, err := payAndFetch(ctx, cfg, cfg.SelfURL+res.PaymentURL)
		if err != nil {
			cfg.Events.Emit(domain.EventPaymentFailed, map[string]any{
				"sellerId":   sellerID,
				"responseId": res.ResponseID,
				"reason":     err.Error(),
			})
			return nil, newAPIError(http.StatusPaymentRequired, "payment_required",
				"payment failed: "+err.Error(), map[string]any{
					"responseId": res.ResponseID,
					"priceUsd":   res.PriceUSD,
				})
		}
		txRefs.QueryDecrypt = res.DecryptTxHash

		return &struct {
			Body DemoResponse `json:"body"`
		}{Body: DemoResponse{
			ResponseID:        res.ResponseID,
			SellerID:          sellerID,
			SellerName:        res.SellerName,
			EncryptedQuery:    encryptedQuery,
			EncryptedResponse: res.ResponsePreview,
			PriceUSD:          res.PriceUSD,
			DecryptedData:     data,
			Transactions:      txRefs,
			Payment:           receipt,
		}}, nil
	})
}

// payAndFetch retrieves a gated data URL, paying through the configured
// payer when one is set.
func payAndFetch(ctx context.Context, cfg Config, url string) (any, TransactionRefs, map[string]any, error) {
	var (
		res *http.Response
		err error
	)
	if cfg.Payer != nil {
		res, err = cfg.Payer.Get(ctx, url)
	} else {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if reqErr != nil {
			return nil, TransactionRefs{}, nil, reqErr
		}
		client := &http.Client{Timeout: 30 * time.Second}
		res, err = client.Do(req)
	}
	if err != nil {
		return nil, TransactionRefs{}, nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<12))
		return nil, TransactionRefs{}, nil, fmt.Errorf("data fetch returned %d: %s", res.StatusCode, body)
	}

	var payload struct {
		Data any `json:"data"`
		Meta struct {
			TxHash string `json:"txHash"`
		} `json:"_meta"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, TransactionRefs{}, nil, fmt.Errorf("parse data response: %w", err)
	}

	refs := TransactionRefs{ResponseDecrypt: payload.Meta.TxHash}
	var receipt map[string]any
	if header := res.Header.Get(payment.ResponseHeader); header != "" {
		receipt = payment.ExtractReceipt(header)
		refs.Payment = payment.ReceiptTransaction(receipt)
	}
	return payload.Data, refs, receipt, nil
}
