package oracle

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/bukeqi/service/ledger"
	"github.com/brojonat/bukeqi/service/storage"
	"github.com/brojonat/bukeqi/service/wallet"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeClock fires timers synchronously from Advance. With ignoreStop set,
// Stop reports failure and the timer still fires, which is how a lost
// cancellation looks to the sequencer.
type fakeClock struct {
	mu         sync.Mutex
	now        time.Time
	timers     []*fakeTimer
	ignoreStop bool
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.clock.ignoreStop || t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// pending counts timers that have neither fired nor been stopped.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// stubWisdom returns a fixed response. If gate is set, calls block until
// it is closed or the context ends.
type stubWisdom struct {
	mu     sync.Mutex
	resp   Response
	gate   chan struct{}
	calls  int
	texts  []string
	intent []string
}

func (w *stubWisdom) GetWisdom(ctx context.Context, text, intent string) Response {
	w.mu.Lock()
	w.calls++
	w.texts = append(w.texts, text)
	w.intent = append(w.intent, intent)
	gate, resp := w.gate, w.resp
	w.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Response{}
		}
	}
	return resp
}

func (w *stubWisdom) setResponse(r Response) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resp = r
}

func (w *stubWisdom) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

type stubSelector struct {
	mu    sync.Mutex
	sel   Selection
	calls int
	seen  []ledger.Request
	block bool
}

func (s *stubSelector) ChooseOne(ctx context.Context, entries []ledger.Request) Selection {
	s.mu.Lock()
	s.calls++
	s.seen = entries
	block, sel := s.block, s.sel
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return Selection{Prophecy: "Interference prevents selection."}
	}
	return sel
}

func (s *stubSelector) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubWallet struct {
	mu       sync.Mutex
	id       wallet.Identity
	deducted float64
}

func connectedWallet() *stubWallet {
	return &stubWallet{id: wallet.Identity{
		Address:   "0x00000000000000000000000000000000000000AA",
		Balance:   "100.0000",
		Connected: true,
	}}
}

func (w *stubWallet) Current() wallet.Identity {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.id
}

func (w *stubWallet) DeductTribute(amount float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deducted += amount
}

// recordingSink keeps published events in arrival order. Publishing an event
// of kind slow sleeps for delay first.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
	slow   EventKind
	delay  time.Duration
}

func (r *recordingSink) Publish(ctx context.Context, ev Event) error {
	r.mu.Lock()
	slow := ev.Kind == r.slow
	delay := r.delay
	r.mu.Unlock()
	if slow {
		time.Sleep(delay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	seq      *Sequencer
	clock    *fakeClock
	wisdom   *stubWisdom
	selector *stubSelector
	wallet   *stubWallet
	store    *storage.MemoryStore
	sink     *recordingSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:    newFakeClock(),
		wisdom:   &stubWisdom{resp: Response{Speech: "The volume flows like water."}},
		selector: &stubSelector{},
		wallet:   connectedWallet(),
		store:    storage.NewMemoryStore(),
		sink:     &recordingSink{},
	}
	l := ledger.Load(context.Background(), h.store, epoch, testLogger())
	h.seq = New(l, h.wisdom, h.selector, h.wallet, Options{
		MinSpeakDuration: DefaultMinSpeakDuration,
		PerCharDuration:  DefaultPerCharDuration,
		TributeCost:      DefaultTributeCost,
		SkipRitualPause:  true,
		Clock:            h.clock,
		Logger:           testLogger(),
		Events:           h.sink,
	})
	t.Cleanup(h.seq.Close)
	return h
}

// submitAndSpeak submits text and waits until the oracle speaks.
func (h *harness) submitAndSpeak(t *testing.T, text string) *ledger.Request {
	t.Helper()
	req, err := h.seq.Submit(context.Background(), text, "")
	require.NoError(t, err)
	h.waitFor(t, StateSpeaking)
	return req
}

func (h *harness) waitFor(t *testing.T, state State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.seq.State() == state
	}, 2*time.Second, time.Millisecond, "state never became %s", state)
}
