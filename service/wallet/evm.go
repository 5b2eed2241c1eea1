package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/bukeqi/service/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

// DefaultEVMRPCURL is the Monad testnet endpoint.
const DefaultEVMRPCURL = "https://testnet-rpc.monad.xyz"

// EVMAddressGenerator produces checksummed 0x addresses from fresh
// secp256k1 keys. The private key is discarded: the identity is a burner.
type EVMAddressGenerator struct{}

func (EVMAddressGenerator) NewAddress() (string, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

func (EVMAddressGenerator) Validate(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("not a hex address: %q", address)
	}
	return nil
}

// RPCCaller is the subset of the go-ethereum RPC client we need.
// It allows tests to substitute the transport.
type RPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// EVMBalanceFetcher queries eth_getBalance at the latest block.
type EVMBalanceFetcher struct {
	rpc     RPCCaller
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEVMBalanceFetcher wraps an RPC caller. m may be nil.
func NewEVMBalanceFetcher(caller RPCCaller, m *metrics.Metrics, logger *slog.Logger) *EVMBalanceFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EVMBalanceFetcher{rpc: caller, metrics: m, logger: logger}
}

// DialEVM connects an EVMBalanceFetcher to a JSON-RPC endpoint.
func DialEVM(ctx context.Context, rpcURL string, m *metrics.Metrics, logger *slog.Logger) (*EVMBalanceFetcher, *rpc.Client, error) {
	client, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial EVM RPC %s: %w", rpcURL, err)
	}
	return NewEVMBalanceFetcher(client, m, logger), client, nil
}

func (f *EVMBalanceFetcher) FetchBalance(ctx context.Context, address string) (string, error) {
	start := time.Now()
	var hexWei string
	err := f.rpc.CallContext(ctx, &hexWei, "eth_getBalance", address, "latest")
	duration := time.Since(start).Seconds()

	if err != nil {
		f.record("error", duration)
		return "", fmt.Errorf("eth_getBalance failed: %w", err)
	}

	balance, err := FormatWei(hexWei)
	if err != nil {
		f.record("parse_error", duration)
		return "", err
	}

	f.record("success", duration)
	f.logger.DebugContext(ctx, "fetched balance", "address", address, "balance", balance)
	return balance, nil
}

func (f *EVMBalanceFetcher) record(status string, duration float64) {
	if f.metrics != nil {
		f.metrics.RecordBalanceRPCCall("evm", status, duration)
	}
}
