package server

import "ciphermarket/internal/domain"

// HealthResponse reports process status and the current operating modes.
type HealthResponse struct {
	Status     string        `json:"status" example:"ok"`
	Sellers    int           `json:"sellers"`
	X402       bool          `json:"x402"`
	Encryption string        `json:"encryption" enum:"real,mock"`
	Explorers  ExplorerLinks `json:"explorers"`
}

// ExplorerLinks points at the block explorers for the two chains a flow
// can touch, so clients can link tx hashes.
type ExplorerLinks struct {
	Payment   string `json:"payment,omitempty"`
	Threshold string `json:"threshold,omitempty"`
}

// QueryRequest submits a ciphertext query for a seller.
type QueryRequest struct {
	SellerID       string `json:"sellerId"`
	EncryptedQuery string `json:"encryptedQuery"`
	BuyerAddress   string `json:"buyerAddress,omitempty"`
}

// QueryResponse points the buyer at the gated pickup URL.
type QueryResponse struct {
	ResponseID       string `json:"responseId"`
	SellerID         string `json:"sellerId"`
	SellerName       string `json:"sellerName"`
	EncryptedPreview string `json:"encryptedPreview"`
	PriceUSD         string `json:"priceUsd"`
	PaymentURL       string `json:"paymentUrl"`
}

// PrepareRequest submits a plaintext query; the server runs the
// encryption round trip itself.
type PrepareRequest struct {
	SellerID     string         `json:"sellerId"`
	Query        string         `json:"query,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
	BuyerAddress string         `json:"buyerAddress,omitempty"`
}

// TransactionRefs collects the chain references produced along one flow.
type TransactionRefs struct {
	QueryDecrypt    string `json:"queryDecrypt,omitempty"`
	ResponseDecrypt string `json:"responseDecrypt,omitempty"`
	Payment         string `json:"payment,omitempty"`
}

// PrepareResponse is QueryResponse plus flow observability for clients
// that pay with their own wallet.
type PrepareResponse struct {
	ResponseID        string          `json:"responseId"`
	SellerID          string          `json:"sellerId"`
	SellerName        string          `json:"sellerName"`
	EncryptedQuery    string          `json:"encryptedQuery"`
	EncryptedResponse string          `json:"encryptedResponse"`
	PriceUSD          string          `json:"priceUsd"`
	PaymentURL        string          `json:"paymentUrl"`
	Transactions      TransactionRefs `json:"transactions"`
}

// DemoResponse is the full round trip: the server paid for and decrypted
// the data on the caller's behalf.
type DemoResponse struct {
	ResponseID        string          `json:"responseId"`
	SellerID          string          `json:"sellerId"`
	SellerName        string          `json:"sellerName"`
	EncryptedQuery    string          `json:"encryptedQuery"`
	EncryptedResponse string          `json:"encryptedResponse"`
	PriceUSD          string          `json:"priceUsd"`
	DecryptedData     any             `json:"decryptedData"`
	Transactions      TransactionRefs `json:"transactions"`
	Payment           map[string]any  `json:"payment,omitempty"`
}

// FaucetRequest asks for a testnet drip to one wallet.
type FaucetRequest struct {
	Address string `json:"address"`
}

// FaucetResponse reports what was sent and how much faucet is left.
type FaucetResponse struct {
	Success        bool   `json:"success"`
	USDCAmount     string `json:"usdcAmount"`
	ETHAmount      string `json:"ethAmount"`
	USDCTxHash     string `json:"usdcTxHash"`
	ETHTxHash      string `json:"ethTxHash,omitempty"`
	RemainingDrips int    `json:"remainingDrips"`
}

// SellerListResponse wraps the catalog.
type SellerListResponse struct {
	Sellers []domain.SellerInfo `json:"sellers"`
	Count   int                 `json:"count"`
}
