// Package evmchain implements the chain adapter over an EVM JSON-RPC
// endpoint: burn verification by transaction receipt and wrapped-token mint
// submission through the token contract.
package evmchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/semilla-platform/bridge-engine/pkg/bridge"
	"github.com/semilla-platform/bridge-engine/pkg/config"
)

// tokenDecimals is the wrapped SEMILLA ERC-20 precision.
const tokenDecimals = 18

// wrappedTokenABI covers the two surfaces the adapter touches: the minter
// call and the burn event emitted when a holder redeems.
const wrappedTokenABI = `[
  {"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"TokensBurned","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]}
]`

var _ bridge.ChainAdapter = (*Adapter)(nil)

// Adapter talks to the wrapped SEMILLA token contract on an EVM chain.
type Adapter struct {
	cfg        config.ChainConfig
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	minter     common.Address
	tokenAddr  common.Address
	token      *bind.BoundContract
	tokenABI   abi.ABI
	logger     *zap.Logger
}

// New connects to the configured RPC endpoint and binds the token contract
func New(cfg config.ChainConfig, logger *zap.Logger) (*Adapter, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM RPC: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(cfg.MinterPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load minter private key: %w", err)
	}
	minter := crypto.PubkeyToAddress(privateKey.PublicKey)

	parsed, err := abi.JSON(strings.NewReader(wrappedTokenABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token ABI: %w", err)
	}

	tokenAddr := common.HexToAddress(cfg.TokenContract)
	token := bind.NewBoundContract(tokenAddr, parsed, client, client, client)

	logger.Info("Connected to EVM chain",
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL),
		zap.String("token_contract", tokenAddr.Hex()),
		zap.String("minter_address", minter.Hex()))

	return &Adapter{
		cfg:        cfg,
		client:     client,
		privateKey: privateKey,
		minter:     minter,
		tokenAddr:  tokenAddr,
		token:      token,
		tokenABI:   parsed,
		logger:     logger,
	}, nil
}

// Close closes the RPC connection
func (a *Adapter) Close() {
	if a.client != nil {
		a.client.Close()
	}
}

// VerifyBurn checks that txHash is a confirmed, successful transaction whose
// logs contain a TokensBurned event from the wrapped token contract for at
// least minAmount.
func (a *Adapter) VerifyBurn(ctx context.Context, chainCode, txHash string, minAmount decimal.Decimal) (*bridge.BurnVerification, error) {
	receipt, err := a.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			a.logger.Info("Burn transaction not found",
				zap.String("chain_code", chainCode),
				zap.String("tx_hash", txHash))
			return &bridge.BurnVerification{Confirmed: false}, nil
		}
		return nil, fmt.Errorf("failed to fetch burn receipt: %w", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return &bridge.BurnVerification{Confirmed: false}, nil
	}

	confirmed, err := a.hasConfirmations(ctx, receipt.BlockNumber)
	if err != nil {
		return nil, err
	}
	if !confirmed {
		return &bridge.BurnVerification{Confirmed: false}, nil
	}

	burned, found := a.burnedAmount(receipt)
	if !found {
		a.logger.Warn("No burn event in transaction logs",
			zap.String("chain_code", chainCode),
			zap.String("tx_hash", txHash))
		return &bridge.BurnVerification{Confirmed: false}, nil
	}

	return &bridge.BurnVerification{
		Confirmed: burned.GreaterThanOrEqual(minAmount),
		Amount:    burned,
	}, nil
}

// SubmitMint mints wrapped SEMILLA to address through the token contract.
func (a *Adapter) SubmitMint(ctx context.Context, chainCode, address string, amount decimal.Decimal) (*bridge.MintReceipt, error) {
	auth, err := a.transactor(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := a.token.Transact(auth, "mint", common.HexToAddress(address), ToWei(amount))
	if err != nil {
		return nil, fmt.Errorf("failed to submit mint transaction: %w", err)
	}

	a.logger.Info("Mint transaction submitted",
		zap.String("chain_code", chainCode),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.String("recipient", address),
		zap.String("amount", amount.String()))

	return &bridge.MintReceipt{TxHash: tx.Hash().Hex()}, nil
}

func (a *Adapter) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(a.privateKey, big.NewInt(a.cfg.ChainID))
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	nonce, err := a.client.PendingNonceAt(ctx, a.minter)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	auth.Context = ctx
	auth.Nonce = big.NewInt(int64(nonce))
	auth.GasLimit = a.cfg.GasLimit
	return auth, nil
}

func (a *Adapter) hasConfirmations(ctx context.Context, blockNumber *big.Int) (bool, error) {
	header, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get latest block: %w", err)
	}

	depth := new(big.Int).Sub(header.Number, blockNumber)
	return depth.Cmp(new(big.Int).SetUint64(a.cfg.ConfirmationBlocks)) >= 0, nil
}

// burnedAmount sums TokensBurned events emitted by the token contract in the
// receipt.
func (a *Adapter) burnedAmount(receipt *types.Receipt) (decimal.Decimal, bool) {
	burnTopic := a.tokenABI.Events["TokensBurned"].ID

	total := decimal.Zero
	found := false
	for _, log := range receipt.Logs {
		if log.Address != a.tokenAddr || len(log.Topics) == 0 || log.Topics[0] != burnTopic {
			continue
		}
		values, err := a.tokenABI.Unpack("TokensBurned", log.Data)
		if err != nil {
			a.logger.Warn("Failed to unpack burn event", zap.Error(err))
			continue
		}
		amount, ok := values[0].(*big.Int)
		if !ok {
			continue
		}
		total = total.Add(FromWei(amount))
		found = true
	}
	return total, found
}

// ToWei converts a SEMILLA amount to the token's integer representation.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(tokenDecimals).BigInt()
}

// FromWei converts the token's integer representation to a SEMILLA amount.
func FromWei(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -tokenDecimals)
}
