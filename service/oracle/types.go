package oracle

import (
	"context"

	"github.com/brojonat/bukeqi/service/ledger"
	"github.com/brojonat/bukeqi/service/wallet"
)

// State is the phase of the oracle interaction cycle.
type State string

const (
	StateIdle       State = "IDLE"
	StateProcessing State = "PROCESSING"
	StateSpeaking   State = "SPEAKING"
)

// States lists every state, used to publish the state gauge.
var States = []State{StateIdle, StateProcessing, StateSpeaking}

// Fixed phrases shown by the oracle.
const (
	PhraseIdle       = "The Syndicate awaits your tribute."
	PhraseProcessing = "Processing tribute... Accessing Dune Sim Layer..."
	PhraseJudgment   = "Commencing final judgment of the cycle..."
	PhraseCorrupted  = "The data stream is corrupted."
	PhraseSilent     = "The stars are silent. No one was chosen today."
	chosenPrefix     = "THE CHOSEN ONE FOUND. "
)

// ChartKind is the rendering style of a visualization.
type ChartKind string

const (
	ChartBar  ChartKind = "bar"
	ChartLine ChartKind = "line"
)

type DataPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Visualization is a chart the oracle attaches to data requests.
type Visualization struct {
	Title      string      `json:"title"`
	Kind       ChartKind   `json:"type"`
	YAxisLabel string      `json:"yAxisLabel,omitempty"`
	Data       []DataPoint `json:"data"`
}

// Response is what the oracle displays: always speech, optionally a chart
// and a query snippet.
type Response struct {
	Speech        string         `json:"speech"`
	Visualization *Visualization `json:"visualization,omitempty"`
	SQLQuery      string         `json:"sqlQuery,omitempty"`
}

// HasArtifacts reports whether the response carries a chart or a query.
func (r Response) HasArtifacts() bool {
	return r.Visualization != nil || r.SQLQuery != ""
}

func (r Response) clone() Response {
	if r.Visualization != nil {
		v := *r.Visualization
		v.Data = append([]DataPoint(nil), v.Data...)
		r.Visualization = &v
	}
	return r
}

// Selection is the outcome of asking the selection service for a winner.
// An empty ChosenID means nobody was chosen.
type Selection struct {
	ChosenID string `json:"chosenId"`
	Prophecy string `json:"prophecy"`
}

// RitualResult is returned to whoever triggered the closing ritual.
type RitualResult struct {
	ChosenID     string  `json:"chosenId,omitempty"`
	Prophecy     string  `json:"prophecy"`
	PayoutTxHash string  `json:"payoutTxHash,omitempty"`
	RewardAmount float64 `json:"rewardAmount,omitempty"`
}

// Snapshot is a read-only copy of the sequencer for presentation.
type Snapshot struct {
	State    State            `json:"state"`
	Display  Response         `json:"display"`
	Cycle    uint64           `json:"cycle"`
	Ledger   []ledger.Request `json:"ledger"`
	Identity wallet.Identity  `json:"identity"`
}

// WisdomClient answers a single request. It never fails: degraded service
// is expressed as fallback speech.
type WisdomClient interface {
	GetWisdom(ctx context.Context, text, intent string) Response
}

// SelectionClient picks at most one winner from the ledger. Failures are
// reported as an empty ChosenID.
type SelectionClient interface {
	ChooseOne(ctx context.Context, entries []ledger.Request) Selection
}

// Wallet is the identity source the sequencer submits under.
type Wallet interface {
	Current() wallet.Identity
	DeductTribute(amount float64)
}
