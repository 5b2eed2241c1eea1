package oracle

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/bukeqi/service/ledger"
	"github.com/brojonat/bukeqi/service/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chosenCount(entries []ledger.Request) int {
	n := 0
	for _, e := range entries {
		if e.IsChosen {
			n++
		}
	}
	return n
}

func TestRitual_EmptyLedgerIsNoop(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), storage.KeyLedger, "[]"))
	l := ledger.Load(context.Background(), store, epoch, testLogger())
	require.Equal(t, 0, l.Len())

	selector := &stubSelector{sel: Selection{ChosenID: "1", Prophecy: "x"}}
	seq := New(l, &stubWisdom{}, selector, connectedWallet(), Options{Clock: newFakeClock(), Logger: testLogger()})
	defer seq.Close()

	asked := false
	_, err := seq.RunClosingRitual(context.Background(), func(context.Context, int) bool {
		asked = true
		return true
	})
	assert.ErrorIs(t, err, ErrLedgerEmpty)
	assert.False(t, asked)
	assert.Equal(t, 0, selector.callCount())
	assert.Equal(t, StateIdle, seq.State())
	assert.Equal(t, uint64(0), seq.Snapshot().Cycle)
}

func TestRitual_Declined(t *testing.T) {
	h := newHarness(t)
	h.selector.sel = Selection{ChosenID: "1", Prophecy: "x"}

	var gotSize int
	_, err := h.seq.RunClosingRitual(context.Background(), func(_ context.Context, n int) bool {
		gotSize = n
		return false
	})
	assert.ErrorIs(t, err, ErrRitualDeclined)
	assert.Equal(t, 2, gotSize)

	_, err = h.seq.RunClosingRitual(context.Background(), nil)
	assert.ErrorIs(t, err, ErrRitualDeclined)

	assert.Equal(t, 0, h.selector.callCount())
	assert.Equal(t, 0, chosenCount(h.seq.Ledger()))
}

func TestRitual_NotIdle(t *testing.T) {
	h := newHarness(t)
	h.submitAndSpeak(t, "hello")

	_, err := h.seq.RunClosingRitual(context.Background(), AutoConfirm)
	assert.ErrorIs(t, err, ErrNotIdle)
	assert.Equal(t, 0, h.selector.callCount())
}

func TestRitual_ChoosesExactlyOne(t *testing.T) {
	h := newHarness(t)
	h.selector.sel = Selection{ChosenID: "2", Prophecy: "Your dApp shall launch at dawn."}

	result, err := h.seq.RunClosingRitual(context.Background(), AutoConfirm)
	require.NoError(t, err)

	assert.Equal(t, "2", result.ChosenID)
	assert.Equal(t, "Your dApp shall launch at dawn.", result.Prophecy)
	assert.Len(t, result.PayoutTxHash, 42)
	assert.True(t, strings.HasPrefix(result.PayoutTxHash, "0x"))
	assert.Equal(t, 20.0, result.RewardAmount)

	entries := h.seq.Ledger()
	assert.Equal(t, 1, chosenCount(entries))
	for _, e := range entries {
		if e.ID == "2" {
			assert.True(t, e.IsChosen)
			assert.Equal(t, result.Prophecy, e.Prophecy)
			assert.Equal(t, result.PayoutTxHash, e.PayoutTxHash)
		} else {
			assert.False(t, e.IsChosen)
			assert.Empty(t, e.PayoutTxHash)
		}
	}
	assert.Len(t, h.selector.seen, 2)

	snap := h.seq.Snapshot()
	assert.Equal(t, StateSpeaking, snap.State)
	assert.Equal(t, "THE CHOSEN ONE FOUND. Your dApp shall launch at dawn.", snap.Display.Speech)

	// Ordinary reversion: no chart, so the display resets.
	h.clock.Advance(h.seq.ReadDuration(snap.Display.Speech))
	snap = h.seq.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, PhraseIdle, snap.Display.Speech)
}

func TestRitual_RejudgingMovesTheChoice(t *testing.T) {
	h := newHarness(t)

	h.selector.sel = Selection{ChosenID: "1", Prophecy: "first"}
	_, err := h.seq.RunClosingRitual(context.Background(), AutoConfirm)
	require.NoError(t, err)
	require.NoError(t, h.seq.Dismiss())

	h.selector.sel = Selection{ChosenID: "2", Prophecy: "second"}
	_, err = h.seq.RunClosingRitual(context.Background(), AutoConfirm)
	require.NoError(t, err)

	entries := h.seq.Ledger()
	assert.Equal(t, 1, chosenCount(entries))
	chosen, ok := ledger.Load(context.Background(), h.store, epoch, testLogger()).Chosen()
	require.True(t, ok)
	assert.Equal(t, "2", chosen.ID)
	assert.Equal(t, "second", chosen.Prophecy)
}

func TestRitual_Silent(t *testing.T) {
	tests := []struct {
		name string
		sel  Selection
	}{
		{"empty id", Selection{Prophecy: "The mists obscure the choice."}},
		{"unknown id", Selection{ChosenID: "does-not-exist", Prophecy: "A stranger."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			// An earlier winner must survive a silent ritual.
			h.selector.sel = Selection{ChosenID: "1", Prophecy: "earlier"}
			_, err := h.seq.RunClosingRitual(context.Background(), AutoConfirm)
			require.NoError(t, err)
			require.NoError(t, h.seq.Dismiss())
			before := h.seq.Ledger()

			h.selector.sel = tt.sel
			result, err := h.seq.RunClosingRitual(context.Background(), AutoConfirm)
			require.NoError(t, err)
			assert.Empty(t, result.ChosenID)
			assert.Equal(t, tt.sel.Prophecy, result.Prophecy)

			assert.Equal(t, before, h.seq.Ledger())
			snap := h.seq.Snapshot()
			assert.Equal(t, StateIdle, snap.State)
			assert.Equal(t, PhraseSilent, snap.Display.Speech)
		})
	}
}

func TestRitual_ProcessingDuringPause(t *testing.T) {
	h := newHarness(t)
	h.seq.opts.RitualPause = 2 * time.Second
	h.selector.sel = Selection{ChosenID: "1", Prophecy: "p"}

	done := make(chan error, 1)
	go func() {
		_, err := h.seq.RunClosingRitual(context.Background(), AutoConfirm)
		done <- err
	}()

	h.waitFor(t, StateProcessing)
	require.Eventually(t, func() bool { return h.clock.pending() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, PhraseJudgment, h.seq.Snapshot().Display.Speech)
	assert.Equal(t, 0, h.selector.callCount())

	// Submissions are refused while judging.
	_, err := h.seq.Submit(context.Background(), "late", "")
	assert.ErrorIs(t, err, ErrNotIdle)

	h.clock.Advance(2 * time.Second)
	require.NoError(t, <-done)
	assert.Equal(t, StateSpeaking, h.seq.State())
}

func TestRitual_CancelledDuringPause(t *testing.T) {
	h := newHarness(t)
	h.seq.opts.RitualPause = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.seq.RunClosingRitual(ctx, AutoConfirm)
		done <- err
	}()

	h.waitFor(t, StateProcessing)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, h.selector.callCount())
	snap := h.seq.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, PhraseIdle, snap.Display.Speech)
}

func TestRitual_CloseInterruptsSelection(t *testing.T) {
	h := newHarness(t)
	h.selector.block = true

	done := make(chan error, 1)
	go func() {
		_, err := h.seq.RunClosingRitual(context.Background(), AutoConfirm)
		done <- err
	}()

	require.Eventually(t, func() bool { return h.selector.callCount() == 1 }, time.Second, time.Millisecond)
	h.seq.Close()
	assert.ErrorIs(t, <-done, ErrClosed)
}

func TestRitual_Events(t *testing.T) {
	h := newHarness(t)
	h.selector.sel = Selection{ChosenID: "1", Prophecy: "p"}
	_, err := h.seq.RunClosingRitual(context.Background(), AutoConfirm)
	require.NoError(t, err)
	require.NoError(t, h.seq.Dismiss())

	h.selector.sel = Selection{}
	_, err = h.seq.RunClosingRitual(context.Background(), AutoConfirm)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(h.sink.kinds()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []EventKind{EventJudged, EventSilent}, h.sink.kinds())
}

func TestNewPayoutHash(t *testing.T) {
	a, err := newPayoutHash()
	require.NoError(t, err)
	b, err := newPayoutHash()
	require.NoError(t, err)

	assert.Regexp(t, `^0x[0-9a-f]{40}$`, a)
	assert.NotEqual(t, a, b)
}
