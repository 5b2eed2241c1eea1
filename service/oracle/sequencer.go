package oracle

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/brojonat/bukeqi/service/ledger"
	"github.com/brojonat/bukeqi/service/metrics"
	"github.com/google/uuid"
)

var (
	ErrEmptyRequest     = errors.New("oracle: request text is empty")
	ErrIdentityRequired = errors.New("oracle: initialize your burner identity first")
	ErrNotIdle          = errors.New("oracle: the oracle is busy")
	ErrNotSpeaking      = errors.New("oracle: the oracle is not speaking")
	ErrLedgerEmpty      = errors.New("oracle: the ledger is empty")
	ErrRitualDeclined   = errors.New("oracle: closing ritual not confirmed")
	ErrClosed           = errors.New("oracle: sequencer closed")
)

// Defaults applied by New for zero-valued Options.
const (
	DefaultMinSpeakDuration = 8 * time.Second
	DefaultPerCharDuration  = 50 * time.Millisecond
	DefaultRitualPause      = 2 * time.Second
	DefaultTributeCost      = 10.0
)

// Options configures a Sequencer. Zero durations and costs take the
// defaults above; set SkipRitualPause to run the ritual without a pause.
type Options struct {
	MinSpeakDuration time.Duration
	PerCharDuration  time.Duration
	RitualPause      time.Duration
	SkipRitualPause  bool
	TributeCost      float64

	Clock   Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Events  EventSink
}

// DefaultOptions returns the timings the oracle ships with.
func DefaultOptions() Options {
	return Options{
		MinSpeakDuration: DefaultMinSpeakDuration,
		PerCharDuration:  DefaultPerCharDuration,
		RitualPause:      DefaultRitualPause,
		TributeCost:      DefaultTributeCost,
	}
}

// Sequencer drives the oracle through Idle, Processing and Speaking. It owns
// the ledger and the displayed response; every transition happens under mu.
//
// Each cycle (a submission or a ritual) increments a token. Deferred
// reversions capture the token when scheduled and do nothing if it has
// moved on, so a timer that escapes cancellation cannot clobber a newer
// cycle.
type Sequencer struct {
	mu sync.Mutex

	opts     Options
	clock    Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	events   EventSink
	wisdom   WisdomClient
	selector SelectionClient
	wallet   Wallet
	ledger   *ledger.Ledger

	state   State
	display Response
	cycle   uint64
	timer   Timer

	subs    map[int]chan Snapshot
	nextSub int

	eventq     chan Event
	eventsDone chan struct{}

	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Idle Sequencer over l.
func New(l *ledger.Ledger, wisdom WisdomClient, selector SelectionClient, w Wallet, opts Options) *Sequencer {
	if opts.MinSpeakDuration <= 0 {
		opts.MinSpeakDuration = DefaultMinSpeakDuration
	}
	if opts.PerCharDuration <= 0 {
		opts.PerCharDuration = DefaultPerCharDuration
	}
	switch {
	case opts.SkipRitualPause:
		opts.RitualPause = 0
	case opts.RitualPause <= 0:
		opts.RitualPause = DefaultRitualPause
	}
	if opts.TributeCost <= 0 {
		opts.TributeCost = DefaultTributeCost
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sequencer{
		opts:     opts,
		clock:    opts.Clock,
		logger:   opts.Logger.With("component", "oracle"),
		metrics:  opts.Metrics,
		events:   opts.Events,
		wisdom:   wisdom,
		selector: selector,
		wallet:   w,
		ledger:   l,
		state:    StateIdle,
		display:  Response{Speech: PhraseIdle},
		subs:     make(map[int]chan Snapshot),
		ctx:      ctx,
		cancel:   cancel,
	}
	if s.events != nil {
		s.startEvents()
	}
	s.recordStateLocked()
	return s
}

// Submit records a new request and starts consulting the wisdom service in
// the background. It returns the recorded request once the oracle is
// Processing. Rejections leave the sequencer untouched.
func (s *Sequencer) Submit(ctx context.Context, text, intent string) (*ledger.Request, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		s.reject("submit", "empty")
		return nil, ErrEmptyRequest
	}

	identity := s.wallet.Current()
	if !identity.Connected || identity.Address == "" {
		s.reject("submit", "identity_required")
		return nil, ErrIdentityRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.state != StateIdle {
		s.reject("submit", "not_idle")
		return nil, ErrNotIdle
	}

	req := ledger.Request{
		ID:            uuid.NewString(),
		Text:          text,
		Intent:        ledger.NormalizeIntent(intent),
		Timestamp:     s.clock.Now().UnixMilli(),
		WalletAddress: identity.Address,
	}
	if err := s.ledger.Prepend(ctx, req); err != nil {
		if errors.Is(err, ledger.ErrDuplicateID) || errors.Is(err, ledger.ErrInvalidRequest) {
			return nil, err
		}
		// The entry is in memory; only the stored copy is behind.
		s.logger.WarnContext(ctx, "failed to persist ledger", "error", err)
	}
	if s.metrics != nil {
		s.metrics.SetLedgerEntries(s.ledger.Len())
	}

	s.wallet.DeductTribute(s.opts.TributeCost)

	s.cycle++
	cycle := s.cycle
	s.stopTimerLocked()
	s.setLocked(StateProcessing, Response{Speech: PhraseProcessing})

	recorded := req
	s.emitLocked(Event{Kind: EventSubmitted, Cycle: cycle, Request: &recorded})

	s.logger.InfoContext(ctx, "tribute accepted",
		"request_id", req.ID,
		"intent", req.Intent,
		"wallet", req.WalletAddress,
		"cycle", cycle,
	)

	s.wg.Add(1)
	go s.consult(cycle, req)

	out := req
	return &out, nil
}

func (s *Sequencer) consult(cycle uint64, req ledger.Request) {
	defer s.wg.Done()

	resp := s.wisdom.GetWisdom(s.ctx, req.Text, req.Intent)
	if strings.TrimSpace(resp.Speech) == "" {
		resp = Response{Speech: PhraseCorrupted}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.cycle != cycle {
		s.logger.Debug("discarding wisdom for superseded cycle", "cycle", cycle, "current", s.cycle)
		return
	}

	s.speakLocked(cycle, resp)
	spoken := resp.clone()
	s.emitLocked(Event{Kind: EventSpoken, Cycle: cycle, Request: &req, Response: &spoken})
	s.recordCycle("submission", "spoken")
	s.logger.Info("oracle speaking",
		"request_id", req.ID,
		"cycle", cycle,
		"has_visualization", resp.Visualization != nil,
		"has_sql", resp.SQLQuery != "",
	)
}

// ReadDuration is how long a response stays on display before reverting.
func (s *Sequencer) ReadDuration(speech string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(speech)) * s.opts.PerCharDuration
	return max(s.opts.MinSpeakDuration, d)
}

// speakLocked shows resp and schedules the reversion to Idle for cycle.
func (s *Sequencer) speakLocked(cycle uint64, resp Response) {
	s.setLocked(StateSpeaking, resp)
	s.stopTimerLocked()
	s.timer = s.clock.AfterFunc(s.ReadDuration(resp.Speech), func() {
		s.revert(cycle)
	})
}

func (s *Sequencer) revert(cycle uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.cycle != cycle {
		if s.metrics != nil {
			s.metrics.RecordStaleTimer()
		}
		s.logger.Debug("ignoring stale reversion", "cycle", cycle, "current", s.cycle)
		return
	}
	if s.state != StateSpeaking {
		return
	}
	s.timer = nil
	s.setLocked(StateIdle, idleDisplay(s.display))
}

// idleDisplay keeps a chart or snippet on screen after speaking ends;
// otherwise the whole display resets.
func idleDisplay(current Response) Response {
	if !current.HasArtifacts() {
		return Response{Speech: PhraseIdle}
	}
	next := current
	next.Speech = PhraseIdle
	return next
}

// Dismiss ends a Speaking phase early.
func (s *Sequencer) Dismiss() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.state != StateSpeaking {
		return ErrNotSpeaking
	}
	s.cycle++
	s.stopTimerLocked()
	s.setLocked(StateIdle, idleDisplay(s.display))
	return nil
}

func (s *Sequencer) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Sequencer) setLocked(state State, display Response) {
	s.state = state
	s.display = display
	s.recordStateLocked()
	s.notifyLocked()
}

func (s *Sequencer) recordStateLocked() {
	if s.metrics == nil {
		return
	}
	all := make([]string, len(States))
	for i, st := range States {
		all[i] = string(st)
	}
	s.metrics.SetState(string(s.state), all)
}

func (s *Sequencer) reject(operation, reason string) {
	if s.metrics != nil {
		s.metrics.RecordRejection(operation, reason)
	}
}

func (s *Sequencer) recordCycle(kind, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordCycle(kind, outcome)
	}
}

// State returns the current state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ledger returns a copy of the ledger, newest first.
func (s *Sequencer) Ledger() []ledger.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Entries()
}

// Snapshot returns a copy of everything presentation needs.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Sequencer) snapshotLocked() Snapshot {
	return Snapshot{
		State:    s.state,
		Display:  s.display.clone(),
		Cycle:    s.cycle,
		Ledger:   s.ledger.Entries(),
		Identity: s.wallet.Current(),
	}
}

// Subscribe returns a channel that receives the current snapshot and then
// one after every change. Slow readers only see the latest snapshot. The
// channel is closed by cancel or by Close.
func (s *Sequencer) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	deliver(ch, s.snapshotLocked())

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Notify pushes a fresh snapshot to subscribers. It is used when something
// outside the sequencer, such as the identity, changes.
func (s *Sequencer) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyLocked()
}

func (s *Sequencer) notifyLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		deliver(ch, snap)
	}
}

// deliver sends snap without blocking, dropping the oldest queued snapshot
// when the channel is full.
func deliver(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Close cancels in-flight cycles, stops pending timers, closes subscriber
// channels and waits for background work to finish.
func (s *Sequencer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cycle++
	s.stopTimerLocked()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	if s.eventq != nil {
		close(s.eventq)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	if s.eventsDone != nil {
		<-s.eventsDone
	}
}
