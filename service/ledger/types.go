package ledger

import "strings"

// AnonymousAddress is displayed for entries that carry no submitter address.
const AnonymousAddress = "ANON"

// Known intents ("methods of help"). Other labels are accepted verbatim.
const (
	IntentOracleConsultation = "Oracle Consultation"
	IntentMonetaryAid        = "Monetary Aid"
	IntentDataAnalytics      = "Data Analytics"
	IntentCodeHelp           = "Code Help"
	IntentFateReading        = "Fate Reading"

	DefaultIntent = IntentOracleConsultation
)

// KnownIntents lists the intents offered by the submission form.
var KnownIntents = []string{
	IntentOracleConsultation,
	IntentMonetaryAid,
	IntentDataAnalytics,
	IntentCodeHelp,
	IntentFateReading,
}

// Request is a single wish recorded in the ledger.
// JSON names match the records written by the browser build.
type Request struct {
	ID            string  `json:"id"`
	Text          string  `json:"text"`
	Intent        string  `json:"methodOfHelp"`
	Timestamp     int64   `json:"timestamp"` // unix milliseconds
	WalletAddress string  `json:"walletAddress,omitempty"`
	IsChosen      bool    `json:"isChosen,omitempty"`
	Prophecy      string  `json:"prophecy,omitempty"`
	RewardAmount  float64 `json:"rewardAmount,omitempty"`
	PayoutTxHash  string  `json:"payoutTxHash,omitempty"`
}

// Submitter returns the wallet address or the anonymous sentinel.
func (r Request) Submitter() string {
	if r.WalletAddress == "" {
		return AnonymousAddress
	}
	return r.WalletAddress
}

// NormalizeIntent trims the label and falls back to DefaultIntent.
func NormalizeIntent(intent string) string {
	intent = strings.TrimSpace(intent)
	if intent == "" {
		return DefaultIntent
	}
	return intent
}
