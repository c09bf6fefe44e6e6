package gateway

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"ciphermarket/internal/config"
)

// thresholdBackend drives the on-chain cooperative decryption protocol.
// Encryption is delegated to the chain's committee RPC; decryption submits
// the ciphertext as a transaction to the designated decryption address,
// waits for finality, then retrieves the recovered payload.
type thresholdBackend struct {
	rpc      *rpc.Client
	eth      *ethclient.Client
	chainID  *big.Int
	address  common.Address
	gasLimit uint64
	key      *ecdsa.PrivateKey
	from     common.Address
}

type committeeInfo struct {
	EpochID   uint64 `json:"epochId"`
	Threshold uint64 `json:"threshold"`
}

func newThresholdBackend(cfg *config.Config) (*thresholdBackend, error) {
	client, err := rpc.Dial(cfg.Threshold.RPC)
	if err != nil {
		return nil, fmt.Errorf("dial threshold rpc: %w", err)
	}
	tb := &thresholdBackend{
		rpc:      client,
		eth:      ethclient.NewClient(client),
		chainID:  big.NewInt(cfg.Threshold.ChainID),
		address:  common.HexToAddress(cfg.Threshold.Address),
		gasLimit: cfg.Threshold.GasLimit,
	}
	if raw := strings.TrimPrefix(cfg.Threshold.SubmitterKey, "0x"); raw != "" {
		key, err := crypto.HexToECDSA(raw)
		if err != nil {
			return nil, fmt.Errorf("parse submitter key: %w", err)
		}
		tb.key = key
		tb.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return tb, nil
}

func (t *thresholdBackend) Name() string { return "threshold" }

// Probe asks the chain for active committee information. An empty
// committee set means no validators can cooperate on decryption.
func (t *thresholdBackend) Probe(ctx context.Context) error {
	var committees []committeeInfo
	if err := t.rpc.CallContext(ctx, &committees, "bite_getCommitteesInfo"); err != nil {
		return fmt.Errorf("committee info: %w", err)
	}
	if len(committees) == 0 {
		return fmt.Errorf("no active decryption committees")
	}
	return nil
}

func (t *thresholdBackend) Encrypt(ctx context.Context, dataHex string) (string, error) {
	payload, err := hexutil.Decode(ensurePrefix(dataHex))
	if err != nil {
		return "", fmt.Errorf("invalid payload hex: %w", err)
	}
	var encrypted hexutil.Bytes
	req := map[string]any{
		"to":   t.address,
		"data": hexutil.Bytes(payload),
		"gas":  hexutil.Uint64(t.gasLimit),
	}
	if err := t.rpc.CallContext(ctx, &encrypted, "bite_encryptTransaction", req); err != nil {
		return "", fmt.Errorf("threshold encrypt: %w", err)
	}
	return encrypted.String(), nil
}

func (t *thresholdBackend) Decrypt(ctx context.Context, ciphertext string) (backendResult, error) {
	if t.key == nil {
		return backendResult{}, fmt.Errorf("no submitter key configured for threshold decrypt")
	}
	data, err := hexutil.Decode(ensurePrefix(ciphertext))
	if err != nil {
		return backendResult{}, fmt.Errorf("invalid ciphertext hex: %w", err)
	}
	nonce, err := t.eth.PendingNonceAt(ctx, t.from)
	if err != nil {
		return backendResult{}, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := t.eth.SuggestGasPrice(ctx)
	if err != nil {
		return backendResult{}, fmt.Errorf("suggest gas price: %w", err)
	}
	tx := types.NewTransaction(nonce, t.address, big.NewInt(0), t.gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(t.chainID), t.key)
	if err != nil {
		return backendResult{}, fmt.Errorf("sign decryption tx: %w", err)
	}
	if err := t.eth.SendTransaction(ctx, signed); err != nil {
		return backendResult{}, fmt.Errorf("submit decryption tx: %w", err)
	}
	txHash := signed.Hash()
	if err := t.waitMined(ctx, txHash); err != nil {
		return backendResult{}, err
	}
	var decrypted struct {
		Data hexutil.Bytes `json:"data"`
	}
	if err := t.rpc.CallContext(ctx, &decrypted, "bite_getDecryptedTransactionData", txHash); err != nil {
		return backendResult{}, fmt.Errorf("fetch decrypted payload: %w", err)
	}
	return backendResult{
		DataHex: strings.TrimPrefix(decrypted.Data.String(), "0x"),
		TxHash:  txHash.Hex(),
	}, nil
}

// waitMined polls for the decryption transaction receipt until finality
// or ctx cancellation. Chain finality waits are inherently variable, so
// the caller owns the timeout.
func (t *thresholdBackend) waitMined(ctx context.Context, hash common.Hash) error {
	for {
		receipt, err := t.eth.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("decryption tx %s reverted", hash.Hex())
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for decryption tx %s: %w", hash.Hex(), ctx.Err())
		case <-time.After(time.Second):
		}
	}
}

func ensurePrefix(h string) string {
	if strings.HasPrefix(h, "0x") {
		return h
	}
	return "0x" + h
}
