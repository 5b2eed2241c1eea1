package oracle

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/brojonat/bukeqi/service/ledger"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Confirmer is asked before judgment begins. entries is the ledger size.
type Confirmer func(ctx context.Context, entries int) bool

// AutoConfirm approves every ritual. Scheduled rituals use it.
func AutoConfirm(context.Context, int) bool { return true }

// RunClosingRitual judges the whole ledger and names at most one chosen
// entry. It blocks until the judgment is shown.
func (s *Sequencer) RunClosingRitual(ctx context.Context, confirm Confirmer) (*RitualResult, error) {
	n, err := s.ritualPrecheck()
	if err != nil {
		return nil, err
	}
	if confirm == nil || !confirm(ctx, n) {
		s.reject("ritual", "declined")
		return nil, ErrRitualDeclined
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		s.reject("ritual", "not_idle")
		return nil, ErrNotIdle
	}
	s.cycle++
	cycle := s.cycle
	s.stopTimerLocked()
	s.setLocked(StateProcessing, Response{Speech: PhraseJudgment})
	entries := s.ledger.Entries()
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.logger.InfoContext(ctx, "closing ritual started", "entries", len(entries), "cycle", cycle)

	rctx, cancel := s.mergeContext(ctx)
	defer cancel()

	if err := s.pause(rctx); err != nil {
		s.abortRitual(cycle)
		return nil, fmt.Errorf("closing ritual interrupted: %w", err)
	}

	sel := s.selector.ChooseOne(rctx, entries)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.cycle != cycle {
		return nil, ErrClosed
	}

	if sel.ChosenID == "" || !s.ledger.Contains(sel.ChosenID) {
		result := &RitualResult{Prophecy: sel.Prophecy}
		s.setLocked(StateIdle, Response{Speech: PhraseSilent})
		s.emitLocked(Event{Kind: EventSilent, Cycle: cycle, Result: result})
		s.recordCycle("ritual", "silent")
		s.logger.InfoContext(ctx, "no one was chosen",
			"returned_id", sel.ChosenID,
			"prophecy", sel.Prophecy,
		)
		return result, nil
	}

	payout, err := newPayoutHash()
	if err != nil {
		s.logger.WarnContext(ctx, "failed to generate payout hash", "error", err)
	}
	judgment := ledger.Judgment{
		ChosenID:     sel.ChosenID,
		Prophecy:     sel.Prophecy,
		PayoutTxHash: payout,
		RewardAmount: s.opts.TributeCost * float64(s.ledger.Len()),
	}
	if _, err := s.ledger.Judge(context.WithoutCancel(ctx), judgment); err != nil {
		s.logger.WarnContext(ctx, "failed to persist judgment", "error", err)
	}

	result := &RitualResult{
		ChosenID:     judgment.ChosenID,
		Prophecy:     judgment.Prophecy,
		PayoutTxHash: judgment.PayoutTxHash,
		RewardAmount: judgment.RewardAmount,
	}
	s.speakLocked(cycle, Response{Speech: chosenPrefix + sel.Prophecy})
	s.emitLocked(Event{Kind: EventJudged, Cycle: cycle, Result: result})
	s.recordCycle("ritual", "judged")
	s.logger.InfoContext(ctx, "the chosen one found",
		"request_id", result.ChosenID,
		"payout_tx", result.PayoutTxHash,
		"reward", result.RewardAmount,
	)
	return result, nil
}

func (s *Sequencer) ritualPrecheck() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	n := s.ledger.Len()
	if n == 0 {
		s.reject("ritual", "empty_ledger")
		return 0, ErrLedgerEmpty
	}
	if s.state != StateIdle {
		s.reject("ritual", "not_idle")
		return 0, ErrNotIdle
	}
	return n, nil
}

// abortRitual returns to Idle after an interrupted judgment, unless the
// sequencer has moved on.
func (s *Sequencer) abortRitual(cycle uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.cycle != cycle {
		return
	}
	s.recordCycle("ritual", "interrupted")
	s.setLocked(StateIdle, Response{Speech: PhraseIdle})
}

// mergeContext returns a context cancelled when either ctx or the
// sequencer is done.
func (s *Sequencer) mergeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

func (s *Sequencer) pause(ctx context.Context) error {
	if s.opts.RitualPause <= 0 {
		return ctx.Err()
	}
	done := make(chan struct{})
	t := s.clock.AfterFunc(s.opts.RitualPause, func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}

// newPayoutHash returns a cosmetic transaction reference: 0x followed by
// 40 random hex characters.
func newPayoutHash() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hexutil.Encode(b), nil
}
