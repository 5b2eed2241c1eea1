package solana

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/brojonat/bukeqi/service/metrics"
	"github.com/brojonat/bukeqi/service/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)
}

const maxAttempts = 3

// Client resolves SOL balances for burner identities. It implements
// wallet.BalanceFetcher.
type Client struct {
	rpc     RPCClient
	logger  *slog.Logger
	metrics *metrics.Metrics
	// backoff returns how long to wait before retry number attempt (0-based).
	backoff func(attempt int, rateLimited bool) time.Duration
}

var _ wallet.BalanceFetcher = (*Client)(nil)

// NewClient creates a new Solana client. If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpc:     rpcClient,
		logger:  logger.With("component", "solana"),
		metrics: m,
		backoff: defaultBackoff,
	}
}

func defaultBackoff(attempt int, rateLimited bool) time.Duration {
	if rateLimited {
		return time.Duration(2<<uint(attempt)) * time.Second // 2s, 4s, 8s
	}
	return time.Duration(1<<uint(attempt)) * time.Second // 1s, 2s, 4s
}

// FetchBalance returns the confirmed balance of address in SOL with four
// decimal places. Transient failures are retried with exponential backoff.
func (c *Client) FetchBalance(ctx context.Context, address string) (string, error) {
	account, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return "", fmt.Errorf("invalid solana address %q: %w", address, err)
	}

	var result *rpc.GetBalanceResult
	for attempt := range maxAttempts {
		start := time.Now()
		result, err = c.rpc.GetBalance(ctx, account, rpc.CommitmentConfirmed)
		duration := time.Since(start).Seconds()

		status := "success"
		if err != nil {
			status = "error"
		}
		if c.metrics != nil {
			c.metrics.RecordBalanceRPCCall("solana", status, duration)
		}
		if err == nil {
			break
		}
		if attempt == maxAttempts-1 {
			break
		}

		rateLimited := strings.Contains(err.Error(), "429")
		wait := c.backoff(attempt, rateLimited)
		c.logger.WarnContext(ctx, "getBalance failed, retrying",
			"address", address,
			"attempt", attempt+1,
			"rate_limited", rateLimited,
			"backoff_seconds", wait.Seconds(),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	if err != nil {
		return "", fmt.Errorf("getBalance failed after %d attempts: %w", maxAttempts, err)
	}
	if result == nil {
		return "", fmt.Errorf("getBalance returned no result for %s", address)
	}

	balance := wallet.FormatUnits(new(big.Int).SetUint64(result.Value), LamportDecimals)
	c.logger.DebugContext(ctx, "fetched balance",
		"address", address,
		"lamports", result.Value,
		"balance", balance,
	)
	return balance, nil
}
