package oracle

import (
	"context"
	"testing"

	"github.com/brojonat/bukeqi/service/ledger"
	"github.com/brojonat/bukeqi/service/storage"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperties_Submission(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("submissions outside Idle never grow the ledger", prop.ForAll(
		func(texts []string) bool {
			h := newPropertyHarness()
			defer h.seq.Close()
			h.wisdom.gate = make(chan struct{})
			defer close(h.wisdom.gate)

			if _, err := h.seq.Submit(context.Background(), "first", ""); err != nil {
				return false
			}
			size := len(h.seq.Ledger())
			for _, text := range texts {
				if _, err := h.seq.Submit(context.Background(), text, ""); err == nil {
					return false
				}
			}
			return len(h.seq.Ledger()) == size
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("an accepted submission is the first ledger entry", prop.ForAll(
		func(text, intent string) bool {
			h := newPropertyHarness()
			defer h.seq.Close()

			req, err := h.seq.Submit(context.Background(), "x"+text, intent)
			if err != nil {
				return false
			}
			entries := h.seq.Ledger()
			return len(entries) == 3 &&
				entries[0].ID == req.ID &&
				entries[0].Intent == ledger.NormalizeIntent(intent)
		},
		gen.AlphaString(),
		gen.OneConstOf("", ledger.IntentMonetaryAid, ledger.IntentFateReading, "Something Else"),
	))

	properties.Property("judgment leaves exactly one chosen entry", prop.ForAll(
		func(picks []int) bool {
			h := newPropertyHarness()
			defer h.seq.Close()

			ids := []string{"1", "2"}
			for _, p := range picks {
				h.selector.sel = Selection{ChosenID: ids[p%len(ids)], Prophecy: "p"}
				if _, err := h.seq.RunClosingRitual(context.Background(), AutoConfirm); err != nil {
					return false
				}
				if err := h.seq.Dismiss(); err != nil {
					return false
				}
				if chosenCount(h.seq.Ledger()) != 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(5, gen.IntRange(0, 10)),
	))

	properties.TestingRun(t)
}

// newPropertyHarness builds a harness without testing.T cleanup so it can
// be used inside gopter properties.
func newPropertyHarness() *harness {
	h := &harness{
		clock:    newFakeClock(),
		wisdom:   &stubWisdom{resp: Response{Speech: "ok"}},
		selector: &stubSelector{},
		wallet:   connectedWallet(),
		store:    storage.NewMemoryStore(),
	}
	l := ledger.Load(context.Background(), h.store, epoch, testLogger())
	h.seq = New(l, h.wisdom, h.selector, h.wallet, Options{Clock: h.clock, SkipRitualPause: true, Logger: testLogger()})
	return h
}
