package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/brojonat/bukeqi/service/storage"
)

const (
	// UnknownBalance is shown before the first refresh and on any failure.
	UnknownBalance = "0.00"

	// defaultMockBalance seeds the simulated counter used when no chain RPC
	// is configured.
	defaultMockBalance = 100.0
)

// Identity is the pseudo-wallet a visitor submits under.
type Identity struct {
	Address   string `json:"address,omitempty"`
	Balance   string `json:"balance"`
	Connected bool   `json:"isConnected"`
	Loading   bool   `json:"isLoading"`
}

func disconnected() Identity {
	return Identity{Balance: UnknownBalance}
}

// AddressGenerator creates and validates chain-specific addresses.
type AddressGenerator interface {
	NewAddress() (string, error)
	Validate(address string) error
}

// BalanceFetcher resolves the displayed balance of an address, already
// formatted with four decimal places.
type BalanceFetcher interface {
	FetchBalance(ctx context.Context, address string) (string, error)
}

// Provider owns the session identity. With a nil BalanceFetcher the balance
// is a simulated counter that tributes are deducted from.
type Provider struct {
	mu       sync.Mutex
	store    storage.Store
	gen      AddressGenerator
	fetcher  BalanceFetcher
	logger   *slog.Logger
	identity Identity
	counter  float64
}

// NewProvider creates a Provider. fetcher may be nil.
func NewProvider(store storage.Store, gen AddressGenerator, fetcher BalanceFetcher, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		store:    store,
		gen:      gen,
		fetcher:  fetcher,
		logger:   logger.With("component", "wallet"),
		identity: disconnected(),
		counter:  defaultMockBalance,
	}
}

// Current returns a copy of the identity.
func (p *Provider) Current() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity
}

// storedAddress returns the persisted address, or "" when it is missing,
// unreadable or not a valid address.
func (p *Provider) storedAddress(ctx context.Context) string {
	raw, err := p.store.Get(ctx, storage.KeyWalletAddress)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.WarnContext(ctx, "failed to read stored wallet address", "error", err)
		}
		return ""
	}
	address := strings.TrimSpace(raw)
	if err := p.gen.Validate(address); err != nil {
		p.logger.WarnContext(ctx, "stored wallet address is invalid, ignoring", "error", err)
		return ""
	}
	return address
}

// CreateOrLoad returns the persisted identity if there is one, otherwise it
// generates a new address and persists it. It is idempotent and does not
// touch the balance.
func (p *Provider) CreateOrLoad(ctx context.Context) (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.identity.Connected {
		return p.identity, nil
	}

	address := p.storedAddress(ctx)
	if address == "" {
		generated, err := p.gen.NewAddress()
		if err != nil {
			return disconnected(), fmt.Errorf("failed to generate address: %w", err)
		}
		address = generated
		if err := p.store.Set(ctx, storage.KeyWalletAddress, address); err != nil {
			// The session keeps working; only the next restart loses it.
			p.logger.WarnContext(ctx, "failed to persist wallet address", "error", err)
		}
		p.logger.InfoContext(ctx, "created burner identity", "address", address)
	} else {
		p.logger.DebugContext(ctx, "loaded burner identity", "address", address)
	}

	p.identity = Identity{
		Address:   address,
		Balance:   UnknownBalance,
		Connected: true,
	}
	return p.identity, nil
}

// Connect creates or loads the identity and refreshes its balance.
func (p *Provider) Connect(ctx context.Context) (Identity, error) {
	id, err := p.CreateOrLoad(ctx)
	if err != nil {
		return id, err
	}
	p.RefreshBalance(ctx, id.Address)
	return p.Current(), nil
}

// Restore reconnects a previously persisted identity, if any. It never
// generates a new address.
func (p *Provider) Restore(ctx context.Context) (Identity, bool) {
	if p.storedAddress(ctx) == "" {
		return p.Current(), false
	}
	id, err := p.Connect(ctx)
	if err != nil {
		return id, false
	}
	return id, true
}

// RefreshBalance resolves the balance for address and stores it on the
// identity when address is still the connected one. It returns "0.00" on
// any failure.
func (p *Provider) RefreshBalance(ctx context.Context, address string) string {
	if address == "" {
		return UnknownBalance
	}

	p.setLoading(address, true)

	balance := UnknownBalance
	if p.fetcher == nil {
		p.mu.Lock()
		balance = formatAmount(p.counter)
		p.mu.Unlock()
	} else {
		fetched, err := p.fetcher.FetchBalance(ctx, address)
		if err != nil {
			p.logger.WarnContext(ctx, "balance refresh failed", "address", address, "error", err)
		} else {
			balance = fetched
		}
	}

	p.mu.Lock()
	if p.identity.Connected && p.identity.Address == address {
		p.identity.Balance = balance
		p.identity.Loading = false
	}
	p.mu.Unlock()

	return balance
}

func (p *Provider) setLoading(address string, loading bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.identity.Connected && p.identity.Address == address {
		p.identity.Loading = loading
	}
}

// Disconnect forgets the persisted identity and resets the provider. When
// the stored address cannot be removed the identity stays connected, so the
// session and the store agree.
func (p *Provider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.store.Delete(ctx, storage.KeyWalletAddress); err != nil {
		return fmt.Errorf("failed to remove stored wallet address: %w", err)
	}

	address := p.identity.Address
	p.identity = disconnected()
	p.counter = defaultMockBalance
	p.logger.InfoContext(ctx, "burned identity", "address", address)
	return nil
}

// DeductTribute takes amount off the simulated counter. It never blocks a
// submission and has no effect on a remotely fetched balance.
func (p *Provider) DeductTribute(amount float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if amount <= 0 || !p.identity.Connected {
		return
	}
	if p.fetcher != nil {
		p.logger.Debug("tribute is simulated, remote balance unchanged", "amount", amount)
		return
	}

	p.counter -= amount
	if p.counter < 0 {
		p.counter = 0
	}
	p.identity.Balance = formatAmount(p.counter)
}
