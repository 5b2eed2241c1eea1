package storage

import (
	"context"
	"errors"
	"time"

	"github.com/brojonat/bukeqi/service/metrics"
)

// ErrNotFound is returned by Get when no record exists for the key.
var ErrNotFound = errors.New("storage: key not found")

// Well-known keys. They match the keys the browser build used so that
// exported local-storage dumps can be imported as-is.
const (
	KeyLedger        = "bukeqi_oracle_messages"
	KeyWalletAddress = "bukeqi_wallet_address"
)

// Store is a flat string key/value store standing in for browser local
// storage. Values are opaque text (JSON for the ledger).
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// instrumented records metrics around every call of the wrapped Store.
type instrumented struct {
	next    Store
	backend string
	metrics *metrics.Metrics
}

// Instrument wraps s so that each operation is counted and timed under the
// given backend label. A nil Metrics returns s unchanged.
func Instrument(s Store, backend string, m *metrics.Metrics) Store {
	if m == nil {
		return s
	}
	return &instrumented{next: s, backend: backend, metrics: m}
}

func (i *instrumented) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	v, err := i.next.Get(ctx, key)
	i.record("get", err, start)
	return v, err
}

func (i *instrumented) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := i.next.Set(ctx, key, value)
	i.record("set", err, start)
	return err
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.next.Delete(ctx, key)
	i.record("delete", err, start)
	return err
}

func (i *instrumented) record(op string, err error, start time.Time) {
	status := "success"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	i.metrics.RecordStorageOperation(i.backend, op, status, time.Since(start).Seconds())
}
