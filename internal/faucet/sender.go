package faucet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	erc20TransferGas = 100_000
	ethTransferGas   = 21_000
)

// erc20TransferSelector is the 4-byte selector of transfer(address,uint256).
var erc20TransferSelector = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]

// ChainSender funds drips from one keyed wallet on a payment testnet.
type ChainSender struct {
	eth     *ethclient.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address
	asset   common.Address
}

// NewChainSender dials the payment chain and prepares the funding wallet.
func NewChainSender(rpcURL, privateKeyHex, assetHex string, chainID int64) (*ChainSender, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial faucet rpc: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse faucet key: %w", err)
	}
	return &ChainSender{
		eth:     client,
		chainID: big.NewInt(chainID),
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		asset:   common.HexToAddress(assetHex),
	}, nil
}

func (s *ChainSender) TransferUSDC(ctx context.Context, to common.Address, amount *big.Int) (string, error) {
	data := make([]byte, 0, 4+64)
	data = append(data, erc20TransferSelector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return s.send(ctx, s.asset, big.NewInt(0), erc20TransferGas, data)
}

func (s *ChainSender) TransferETH(ctx context.Context, to common.Address, amount *big.Int) (string, error) {
	return s.send(ctx, to, amount, ethTransferGas, nil)
}

func (s *ChainSender) send(ctx context.Context, to common.Address, value *big.Int, gas uint64, data []byte) (string, error) {
	nonce, err := s.eth.PendingNonceAt(ctx, s.from)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := s.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}
	tx := types.NewTransaction(nonce, to, value, gas, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(s.chainID), s.key)
	if err != nil {
		return "", fmt.Errorf("sign faucet tx: %w", err)
	}
	if err := s.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("submit faucet tx: %w", err)
	}
	hash := signed.Hash()
	if err := s.waitMined(ctx, hash); err != nil {
		return "", err
	}
	return hash.Hex(), nil
}

func (s *ChainSender) waitMined(ctx context.Context, hash common.Hash) error {
	for {
		receipt, err := s.eth.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("faucet tx %s reverted", hash.Hex())
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for faucet tx %s: %w", hash.Hex(), ctx.Err())
		case <-time.After(time.Second):
		}
	}
}
