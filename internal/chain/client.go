// Package chain talks to the simulation chain over JSON-RPC: it deploys
// derivatives contracts and moves collateral in and out of collateral pools.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/simexchange/internal/crypto"
)

// Backend is the subset of the JSON-RPC client used by this package.
// *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ClientConfig holds transaction parameters.
type ClientConfig struct {
	GasLimit    uint64        // fallback when estimation fails
	ReceiptPoll time.Duration // receipt polling interval
	CallTimeout time.Duration // bound on read-only calls
}

// Client sends signed transactions from the deployer account and performs
// read-only contract calls.
type Client struct {
	backend Backend
	signer  *crypto.Signer
	cfg     ClientConfig
	logger  *slog.Logger

	// txMu serialises nonce assignment for the deployer account.
	txMu sync.Mutex
}

// Dial connects to rpcURL and checks that the node serves the signer's chain.
func Dial(ctx context.Context, rpcURL string, signer *crypto.Signer, cfg ClientConfig, logger *slog.Logger) (*Client, func(), error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	id, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, nil, fmt.Errorf("chain: chain id: %w", err)
	}
	if id.Cmp(signer.ChainID()) != 0 {
		ec.Close()
		return nil, nil, fmt.Errorf("chain: node serves chain %s, signer configured for %s", id, signer.ChainID())
	}
	return NewClient(ec, signer, cfg, logger), ec.Close, nil
}

// NewClient wraps an existing backend.
func NewClient(backend Backend, signer *crypto.Signer, cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.ReceiptPoll <= 0 {
		cfg.ReceiptPoll = time.Second
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 6_000_000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		backend: backend,
		signer:  signer,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "chain")),
	}
}

// From returns the account transactions are sent from.
func (c *Client) From() common.Address {
	return c.signer.Address()
}

// transact signs and sends a transaction calling to with data, or creating a
// contract when to is nil, and waits for its receipt. A reverted
// transaction is returned as an error together with its receipt.
func (c *Client) transact(ctx context.Context, to *common.Address, data []byte) (*types.Transaction, *types.Receipt, error) {
	tx, err := c.send(ctx, to, data)
	if err != nil {
		return nil, nil, err
	}

	receipt, err := c.waitReceipt(ctx, tx.Hash())
	if err != nil {
		return tx, nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx, receipt, fmt.Errorf("chain: transaction %s reverted", tx.Hash().Hex())
	}
	return tx, receipt, nil
}

func (c *Client) send(ctx context.Context, to *common.Address, data []byte) (*types.Transaction, error) {
	c.txMu.Lock()
	defer c.txMu.Unlock()

	from := c.signer.Address()
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("chain: nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: gas price: %w", err)
	}

	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: to, GasPrice: gasPrice, Data: data})
	if err != nil {
		// Fall back to the configured limit; the node rejects it if too low.
		c.logger.DebugContext(ctx, "gas estimation failed, using configured limit",
			slog.String("error", err.Error()),
			slog.Uint64("gas_limit", c.cfg.GasLimit),
		)
		gas = c.cfg.GasLimit
	}

	var tx *types.Transaction
	if to == nil {
		tx = types.NewContractCreation(nonce, big.NewInt(0), gas, gasPrice, data)
	} else {
		tx = types.NewTransaction(nonce, *to, big.NewInt(0), gas, gasPrice, data)
	}
	signed, err := c.signer.SignTx(tx)
	if err != nil {
		return nil, fmt.Errorf("chain: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("chain: send: %w", err)
	}

	c.logger.InfoContext(ctx, "transaction sent",
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", gas),
	)
	return signed, nil
}

// waitReceipt polls for the receipt of hash until it is mined or ctx ends.
func (c *Client) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.cfg.ReceiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			c.logger.DebugContext(ctx, "receipt lookup failed",
				slog.String("tx_hash", hash.Hex()),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chain: waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// call performs a read-only call against the latest block.
func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.signer.Address(), To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", to.Hex(), err)
	}
	return out, nil
}
