package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brojonat/bukeqi/service/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newRPCServer answers every JSON-RPC call with result, echoing the id.
func newRPCServer(t *testing.T, result string, gotParams *[]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params []interface{}   `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if gotParams != nil {
			*gotParams = append([]interface{}{req.Method}, req.Params...)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEVMBalanceFetcher_OverJSONRPC(t *testing.T) {
	var got []interface{}
	srv := newRPCServer(t, "0xDE0B6B3A7640000", &got)

	fetcher, client, err := DialEVM(context.Background(), srv.URL, metrics.NewMetrics(prometheus.NewRegistry()), testLogger())
	require.NoError(t, err)
	defer client.Close()

	balance, err := fetcher.FetchBalance(context.Background(), "0x00000000000000000000000000000000000000AA")
	require.NoError(t, err)
	assert.Equal(t, "1.0000", balance)
	assert.Equal(t, []interface{}{"eth_getBalance", "0x00000000000000000000000000000000000000AA", "latest"}, got)
}

func TestEVMBalanceFetcher_MalformedQuantity(t *testing.T) {
	srv := newRPCServer(t, "not-hex", nil)

	fetcher, client, err := DialEVM(context.Background(), srv.URL, nil, testLogger())
	require.NoError(t, err)
	defer client.Close()

	_, err = fetcher.FetchBalance(context.Background(), "0x00000000000000000000000000000000000000AA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid balance quantity")
}

type mockCaller struct {
	result string
	err    error
}

func (m *mockCaller) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if m.err != nil {
		return m.err
	}
	*(result.(*string)) = m.result
	return nil
}

func TestEVMBalanceFetcher_TransportError(t *testing.T) {
	fetcher := NewEVMBalanceFetcher(&mockCaller{err: errors.New("503 Service Unavailable")}, nil, testLogger())

	_, err := fetcher.FetchBalance(context.Background(), "0xabc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eth_getBalance failed")
}

func TestEVMAddressGenerator(t *testing.T) {
	gen := EVMAddressGenerator{}

	a, err := gen.NewAddress()
	require.NoError(t, err)
	b, err := gen.NewAddress()
	require.NoError(t, err)

	assert.Len(t, a, 42)
	assert.Equal(t, "0x", a[:2])
	assert.NotEqual(t, a, b)
	assert.NoError(t, gen.Validate(a))
	assert.Error(t, gen.Validate("0x32...88A"))
	assert.Error(t, gen.Validate(""))
}
