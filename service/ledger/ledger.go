package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/bukeqi/service/storage"
)

var (
	// ErrDuplicateID is returned when a request id is already in the ledger.
	ErrDuplicateID = errors.New("ledger: duplicate request id")

	// ErrInvalidRequest is returned for requests without id or text.
	ErrInvalidRequest = errors.New("ledger: request requires id and text")
)

// Ledger is the newest-first collection of submitted requests. It mirrors
// itself into a storage.Store after every mutation.
//
// A Ledger is not safe for concurrent use; the oracle sequencer owns it and
// serialises access.
type Ledger struct {
	store   storage.Store
	logger  *slog.Logger
	entries []Request
	ids     map[string]struct{}
}

// Load rehydrates the ledger from the store. A missing or unreadable record
// yields the default seed set, which is written back immediately.
func Load(ctx context.Context, store storage.Store, now time.Time, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{store: store, logger: logger}

	entries, err := l.read(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.WarnContext(ctx, "stored ledger unreadable, using default seed", "error", err)
		}
		l.reset(DefaultSeed(now))
		if err := l.persist(ctx); err != nil {
			logger.WarnContext(ctx, "failed to persist default seed", "error", err)
		}
		return l
	}

	l.reset(entries)
	logger.DebugContext(ctx, "ledger rehydrated", "entries", len(entries))
	return l
}

func (l *Ledger) read(ctx context.Context) ([]Request, error) {
	raw, err := l.store.Get(ctx, storage.KeyLedger)
	if err != nil {
		return nil, err
	}
	entries, err := Decode([]byte(raw))
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Decode parses and validates a serialised ledger. Entries must have ids,
// ids must be unique and at most one entry may be chosen.
func Decode(data []byte) ([]Request, error) {
	var entries []Request
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("invalid ledger JSON: %w", err)
	}
	if entries == nil {
		return nil, fmt.Errorf("ledger record is null")
	}

	seen := make(map[string]struct{}, len(entries))
	chosen := 0
	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("entry %d has no id", i)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("entry %d repeats id %q", i, e.ID)
		}
		seen[e.ID] = struct{}{}
		if e.IsChosen {
			chosen++
		}
	}
	if chosen > 1 {
		return nil, fmt.Errorf("ledger has %d chosen entries", chosen)
	}
	return entries, nil
}

func (l *Ledger) reset(entries []Request) {
	l.entries = entries
	l.ids = make(map[string]struct{}, len(entries))
	for _, e := range entries {
		l.ids[e.ID] = struct{}{}
	}
}

func (l *Ledger) persist(ctx context.Context) error {
	data, err := json.Marshal(l.entries)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	if err := l.store.Set(ctx, storage.KeyLedger, string(data)); err != nil {
		return fmt.Errorf("failed to persist ledger: %w", err)
	}
	return nil
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the entries, newest first.
func (l *Ledger) Entries() []Request {
	out := make([]Request, len(l.entries))
	copy(out, l.entries)
	return out
}

// Contains reports whether id is in the ledger.
func (l *Ledger) Contains(id string) bool {
	_, ok := l.ids[id]
	return ok
}

// Prepend inserts r at the front and persists the ledger. The in-memory
// insert stands even when persisting fails; the error is returned so the
// caller can log it.
func (l *Ledger) Prepend(ctx context.Context, r Request) error {
	if r.ID == "" || r.Text == "" {
		return ErrInvalidRequest
	}
	if l.Contains(r.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
	}

	l.entries = append([]Request{r}, l.entries...)
	l.ids[r.ID] = struct{}{}
	return l.persist(ctx)
}

// Judgment is the outcome applied to the chosen entry.
type Judgment struct {
	ChosenID     string
	Prophecy     string
	PayoutTxHash string
	RewardAmount float64
}

// Judge marks the entry named by j.ChosenID as chosen and clears the flag,
// prophecy and payout on every other entry in the same pass. It returns
// false without touching anything when the id is not in the ledger.
func (l *Ledger) Judge(ctx context.Context, j Judgment) (bool, error) {
	if !l.Contains(j.ChosenID) {
		return false, nil
	}

	for i := range l.entries {
		e := &l.entries[i]
		if e.ID == j.ChosenID {
			e.IsChosen = true
			e.Prophecy = j.Prophecy
			e.PayoutTxHash = j.PayoutTxHash
			e.RewardAmount = j.RewardAmount
			continue
		}
		e.IsChosen = false
		e.Prophecy = ""
		e.PayoutTxHash = ""
		e.RewardAmount = 0
	}
	return true, l.persist(ctx)
}

// Chosen returns the chosen entry, if any.
func (l *Ledger) Chosen() (Request, bool) {
	for _, e := range l.entries {
		if e.IsChosen {
			return e, true
		}
	}
	return Request{}, false
}
