package solana

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	lamports uint64
	errs     []error // returned in order before succeeding
	calls    int
	lastKey  solana.PublicKey
}

func (m *mockRPCClient) GetBalance(
	ctx context.Context,
	account solana.PublicKey,
	commitment rpc.CommitmentType,
) (*rpc.GetBalanceResult, error) {
	m.calls++
	m.lastKey = account
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	return &rpc.GetBalanceResult{Value: m.lamports}, nil
}

func newTestClient(mock *mockRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient(mock, nil, logger)
	c.backoff = func(int, bool) time.Duration { return time.Millisecond }
	return c
}

const testAddress = "11111111111111111111111111111111"

func TestFetchBalance_Lamports(t *testing.T) {
	mock := &mockRPCClient{lamports: 2_500_000_000}
	client := newTestClient(mock)

	balance, err := client.FetchBalance(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, "2.5000", balance)
	assert.Equal(t, testAddress, mock.lastKey.String())
}

func TestFetchBalance_RetriesTransientErrors(t *testing.T) {
	mock := &mockRPCClient{
		lamports: 1_000_000,
		errs:     []error{errors.New("429 Too Many Requests"), errors.New("timeout")},
	}
	client := newTestClient(mock)

	balance, err := client.FetchBalance(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, "0.0010", balance)
	assert.Equal(t, 3, mock.calls)
}

func TestFetchBalance_GivesUp(t *testing.T) {
	boom := errors.New("connection refused")
	mock := &mockRPCClient{errs: []error{boom, boom, boom, boom}}
	client := newTestClient(mock)

	_, err := client.FetchBalance(context.Background(), testAddress)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, maxAttempts, mock.calls)
}

func TestFetchBalance_InvalidAddress(t *testing.T) {
	mock := &mockRPCClient{}
	client := newTestClient(mock)

	_, err := client.FetchBalance(context.Background(), "0xnot-base58")
	require.Error(t, err)
	assert.Equal(t, 0, mock.calls)
}

func TestFetchBalance_ContextCancelledDuringBackoff(t *testing.T) {
	mock := &mockRPCClient{errs: []error{errors.New("timeout"), errors.New("timeout")}}
	client := newTestClient(mock)
	client.backoff = func(int, bool) time.Duration { return time.Hour }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.FetchBalance(ctx, testAddress)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, mock.calls)
}

func TestDefaultBackoff(t *testing.T) {
	assert.Equal(t, time.Second, defaultBackoff(0, false))
	assert.Equal(t, 4*time.Second, defaultBackoff(2, false))
	assert.Equal(t, 2*time.Second, defaultBackoff(0, true))
	assert.Equal(t, 8*time.Second, defaultBackoff(2, true))
}

func TestAddressGenerator(t *testing.T) {
	gen := AddressGenerator{}

	a, err := gen.NewAddress()
	require.NoError(t, err)
	b, err := gen.NewAddress()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NoError(t, gen.Validate(a))
	assert.Error(t, gen.Validate("0x32...88A"))
	assert.Error(t, gen.Validate(""))
}
