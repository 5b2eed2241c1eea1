package ledger

import "time"

// DefaultSeed is the ledger shown on a fresh install or when the stored
// ledger cannot be read. Timestamps are relative to now.
func DefaultSeed(now time.Time) []Request {
	ms := now.UnixMilli()
	return []Request{
		{
			ID:            "1",
			Text:          "Show me the MON transaction volume for today.",
			Intent:        IntentOracleConsultation,
			Timestamp:     ms - 100_000,
			WalletAddress: "0x32...88A",
		},
		{
			ID:            "2",
			Text:          "I need funds to launch my dApp.",
			Intent:        IntentMonetaryAid,
			Timestamp:     ms - 500_000,
			WalletAddress: "0xBB...11C",
		},
	}
}
