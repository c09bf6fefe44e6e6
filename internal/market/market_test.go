package market

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"ciphermarket/internal/config"
	"ciphermarket/internal/domain"
	"ciphermarket/internal/events"
	"ciphermarket/internal/gateway"
	"ciphermarket/internal/registry"
	"ciphermarket/internal/store"
)

func testSeller() domain.Seller {
	return domain.Seller{
		ID:       "crypto-prices",
		Name:     "Crypto Price Feed",
		Category: domain.CategoryCrypto,
		PriceUSD: "$0.001",
		Params: map[string]domain.ParamField{
			"tokens": {
				Type:    "string[]",
				Options: []string{"BTC", "ETH", "SOL"},
			},
			"currency": {
				Type:    "string",
				Default: "USD",
			},
		},
		Handler: func(_ context.Context, params map[string]any) (any, error) {
			return map[string]any{"echo": params}, nil
		},
	}
}

func newTestMarket(t *testing.T, extra ...domain.Seller) *Market {
	t.Helper()
	reg := registry.New()
	reg.MustRegister(testSeller())
	for _, s := range extra {
		reg.MustRegister(s)
	}
	gw := gateway.New(context.Background(), config.Default())
	if err := gw.SelfTest(context.Background()); err != nil {
		t.Fatalf("gateway self-test: %v", err)
	}
	return New(reg, gw, store.New(store.DefaultTTL), events.New())
}

func TestExtractParamsArrayField(t *testing.T) {
	seller := testSeller()
	cases := []struct {
		query string
		want  any
	}{
		{"BTC only please", []string{"BTC"}},
		{"give me btc and eth", []string{"BTC", "ETH"}},
		{"give me all prices", []string{"BTC", "ETH", "SOL"}},
		{"xyz nonsense", []string{"BTC", "ETH", "SOL"}},
	}
	for _, c := range cases {
		params := ExtractParams(seller, c.query)
		if !reflect.DeepEqual(params["tokens"], c.want) {
			t.Fatalf("query %q: tokens = %v, want %v", c.query, params["tokens"], c.want)
		}
		if params["currency"] != "USD" {
			t.Fatalf("query %q: currency = %v", c.query, params["currency"])
		}
	}
}

func TestExtractParamsScalarField(t *testing.T) {
	seller := domain.Seller{
		ID: "signals",
		Params: map[string]domain.ParamField{
			"asset": {
				Type:    "string",
				Options: []string{"BTC", "ETH", "SOL"},
			},
			"timeframe": {
				Type:    "string",
				Default: "4H",
				Options: []string{"1H", "4H", "1D", "1W"},
			},
		},
	}
	params := ExtractParams(seller, "signal for eth on the 1d chart")
	if params["asset"] != "ETH" {
		t.Fatalf("asset = %v", params["asset"])
	}
	if params["timeframe"] != "1D" {
		t.Fatalf("timeframe = %v", params["timeframe"])
	}

	// No match: default wins, then first option.
	params = ExtractParams(seller, "whatever")
	if params["asset"] != "BTC" {
		t.Fatalf("fallback asset = %v", params["asset"])
	}
	if params["timeframe"] != "4H" {
		t.Fatalf("fallback timeframe = %v", params["timeframe"])
	}
}

func TestNormalizeParams(t *testing.T) {
	seller := testSeller()

	params := NormalizeParams(seller, map[string]any{
		"tokens": []any{"ETH"},
		"bogus":  "x",
	})
	if _, ok := params["bogus"]; ok {
		t.Fatal("undeclared key survived normalization")
	}
	if !reflect.DeepEqual(params["tokens"], []any{"ETH"}) {
		t.Fatalf("tokens %v", params["tokens"])
	}
	if params["currency"] != "USD" {
		t.Fatalf("missing field not defaulted: currency = %v", params["currency"])
	}

	// Nothing declared matches: the result is still fully populated per
	// the schema, never the caller's map.
	params = NormalizeParams(seller, map[string]any{"bogus": "x"})
	if !reflect.DeepEqual(params["tokens"], []string{"BTC", "ETH", "SOL"}) {
		t.Fatalf("tokens fallback %v", params["tokens"])
	}
	if params["currency"] != "USD" {
		t.Fatalf("currency %v", params["currency"])
	}
}

func TestSubmitNormalizesExplicitParams(t *testing.T) {
	m := newTestMarket(t)
	res, err := m.Submit(context.Background(), SubmitRequest{
		SellerID: "crypto-prices",
		Params:   map[string]any{"tokens": []any{"SOL"}, "bogus": "x"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, ok := res.ResolvedParams["bogus"]; ok {
		t.Fatalf("handler saw undeclared key: %v", res.ResolvedParams)
	}
	if res.ResolvedParams["currency"] != "USD" {
		t.Fatalf("currency %v", res.ResolvedParams["currency"])
	}
	if !reflect.DeepEqual(res.ResolvedParams["tokens"], []any{"SOL"}) {
		t.Fatalf("tokens %v", res.ResolvedParams["tokens"])
	}
}

func TestSubmitAndSettle(t *testing.T) {
	m := newTestMarket(t)
	ctx := context.Background()

	encrypted, err := gateway.LocalEncrypt(`{"tokens":["BTC"],"currency":"EUR"}`)
	if err != nil {
		t.Fatalf("encrypt query: %v", err)
	}
	res, err := m.Submit(ctx, SubmitRequest{
		SellerID:       "crypto-prices",
		EncryptedQuery: encrypted,
		BuyerAddress:   "0xbuyer",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.ResponseID == "" {
		t.Fatal("empty response id")
	}
	wantURL := fmt.Sprintf("/data/crypto-prices?responseId=%s", res.ResponseID)
	if res.PaymentURL != wantURL {
		t.Fatalf("payment url %q, want %q", res.PaymentURL, wantURL)
	}
	if res.PriceUSD != "$0.001" {
		t.Fatalf("price %q", res.PriceUSD)
	}
	if m.Store.Len() != 1 {
		t.Fatalf("store len %d", m.Store.Len())
	}

	settled, err := m.Settle(ctx, "crypto-prices", res.ResponseID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !strings.Contains(settled.Raw, `"currency":"EUR"`) {
		t.Fatalf("settled raw %q", settled.Raw)
	}

	// At-most-once: the identifier is spent.
	if _, err := m.Settle(ctx, "crypto-prices", res.ResponseID); !errors.Is(err, ErrResponseNotFound) {
		t.Fatalf("second settle err = %v", err)
	}
}

func TestSubmitFreeTextExtraction(t *testing.T) {
	m := newTestMarket(t)
	encrypted, err := gateway.LocalEncrypt("give me btc and sol prices")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	res, err := m.Submit(context.Background(), SubmitRequest{
		SellerID:       "crypto-prices",
		EncryptedQuery: encrypted,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !reflect.DeepEqual(res.ResolvedParams["tokens"], []string{"BTC", "SOL"}) {
		t.Fatalf("resolved tokens %v", res.ResolvedParams["tokens"])
	}
}

func TestSubmitValidation(t *testing.T) {
	m := newTestMarket(t)
	ctx := context.Background()

	if _, err := m.Submit(ctx, SubmitRequest{SellerID: "nope", Query: "hi"}); !errors.Is(err, ErrSellerNotFound) {
		t.Fatalf("unknown seller err = %v", err)
	}
	if _, err := m.Submit(ctx, SubmitRequest{SellerID: "crypto-prices"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("empty submit err = %v", err)
	}
}

func TestSubmitGarbageCiphertext(t *testing.T) {
	m := newTestMarket(t)
	_, err := m.Submit(context.Background(), SubmitRequest{
		SellerID:       "crypto-prices",
		EncryptedQuery: "0xnot-an-envelope",
	})
	if !errors.Is(err, ErrDecrypt) {
		t.Fatalf("err = %v, want decrypt failure", err)
	}
	if m.Store.Len() != 0 {
		t.Fatal("failed submit left a pending entry")
	}
	history := m.Events.History()
	last := history[len(history)-1]
	if last.Type != domain.EventError {
		t.Fatalf("last event %s, want error", last.Type)
	}
}

func TestSubmitHandlerFailure(t *testing.T) {
	broken := domain.Seller{
		ID:       "broken",
		Name:     "Broken",
		PriceUSD: "$0.01",
		Handler: func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("upstream down")
		},
	}
	m := newTestMarket(t, broken)
	_, err := m.Submit(context.Background(), SubmitRequest{SellerID: "broken", Query: "anything"})
	if !errors.Is(err, ErrHandler) {
		t.Fatalf("err = %v", err)
	}
	if m.Store.Len() != 0 {
		t.Fatal("failed submit left a pending entry")
	}
}

func TestSettleSellerMismatch(t *testing.T) {
	m := newTestMarket(t)
	res, err := m.Submit(context.Background(), SubmitRequest{SellerID: "crypto-prices", Query: "all"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := m.Settle(context.Background(), "weather-global", res.ResponseID); !errors.Is(err, ErrSellerMismatch) {
		t.Fatalf("err = %v, want mismatch", err)
	}
	// The mismatch must not consume the entry.
	if _, err := m.Settle(context.Background(), "crypto-prices", res.ResponseID); err != nil {
		t.Fatalf("rightful settle: %v", err)
	}
}

func TestLifecycleEvents(t *testing.T) {
	m := newTestMarket(t)
	res, err := m.Submit(context.Background(), SubmitRequest{SellerID: "crypto-prices", Query: "btc"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := m.Settle(context.Background(), "crypto-prices", res.ResponseID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	want := []domain.FlowEventType{
		domain.EventQueryReceived,
		domain.EventQueryDecrypted,
		domain.EventSellerProcessing,
		domain.EventResponseEncrypted,
		domain.EventPaymentRequired,
		domain.EventPaymentConfirmed,
		domain.EventDataDelivered,
	}
	history := m.Events.History()
	if len(history) != len(want) {
		t.Fatalf("got %d events, want %d", len(history), len(want))
	}
	for i, evt := range history {
		if evt.Type != want[i] {
			t.Fatalf("event %d: %s, want %s", i, evt.Type, want[i])
		}
	}

	received := history[0]
	if received.Data["buyer"] != "anonymous" {
		t.Fatalf("buyer %v", received.Data["buyer"])
	}
}
