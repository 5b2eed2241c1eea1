package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/bukeqi/client"
	"github.com/brojonat/bukeqi/service/metrics"
	"github.com/brojonat/bukeqi/service/oracle"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// ClosingRitualInput is passed by the schedule to every workflow run.
type ClosingRitualInput struct {
	Schedule string `json:"schedule,omitempty"` // cron spec that fired, for logging
}

// ClosingRitualResult summarizes one scheduled ritual.
type ClosingRitualResult struct {
	ChosenID     string    `json:"chosen_id,omitempty"`
	Prophecy     string    `json:"prophecy,omitempty"`
	PayoutTxHash string    `json:"payout_tx_hash,omitempty"`
	RewardAmount float64   `json:"reward_amount,omitempty"`
	Skipped      bool      `json:"skipped,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	RunTime      time.Time `json:"run_time"`
}

// RunRitualInput contains parameters for the RunClosingRitual activity.
type RunRitualInput struct {
	Schedule string `json:"schedule,omitempty"`
}

// RunRitualResult contains the result of the RunClosingRitual activity.
type RunRitualResult struct {
	Result  *oracle.RitualResult `json:"result,omitempty"`
	Skipped bool                 `json:"skipped,omitempty"`
	Reason  string               `json:"reason,omitempty"`
}

// RitualClient is the part of the oracle HTTP client the activity needs.
// This allows for easy mocking in tests.
type RitualClient interface {
	RunRitual(ctx context.Context, confirm bool) (*oracle.RitualResult, error)
}

var _ RitualClient = (*client.Client)(nil)

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	oracle  RitualClient
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(oracleClient RitualClient, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		oracle:  oracleClient,
		metrics: m,
		logger:  logger,
	}
}

// RunClosingRitual asks the oracle server to run the closing ritual with
// confirmation already given. An empty ledger is not an error: the run is
// reported as skipped. A busy oracle is retried by Temporal; a refusal the
// server will keep repeating is returned as non-retryable.
func (a *Activities) RunClosingRitual(ctx context.Context, input RunRitualInput) (*RunRitualResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("RunClosingRitual", time.Since(start).Seconds())
		}
	}()

	a.logger.InfoContext(ctx, "running scheduled closing ritual", "schedule", input.Schedule)

	result, err := a.oracle.RunRitual(ctx, true)
	switch {
	case err == nil:
		a.record("completed")
		a.logger.InfoContext(ctx, "closing ritual completed",
			"chosen_id", result.ChosenID,
			"payout_tx", result.PayoutTxHash,
		)
		return &RunRitualResult{Result: result}, nil

	case client.IsStatus(err, http.StatusNotFound):
		a.record("skipped")
		a.logger.InfoContext(ctx, "ledger empty, skipping closing ritual")
		return &RunRitualResult{Skipped: true, Reason: "ledger empty"}, nil

	case client.IsStatus(err, http.StatusConflict):
		a.record("busy")
		a.logger.WarnContext(ctx, "oracle busy, closing ritual will be retried", "error", err)
		return nil, fmt.Errorf("oracle busy: %w", err)

	case client.IsStatus(err, http.StatusBadRequest):
		a.record("rejected")
		a.logger.ErrorContext(ctx, "closing ritual rejected", "error", err)
		return nil, temporalsdk.NewNonRetryableApplicationError("closing ritual rejected", "RitualRejected", err)

	default:
		a.record("error")
		a.logger.ErrorContext(ctx, "closing ritual failed", "error", err)
		return nil, fmt.Errorf("failed to run closing ritual: %w", err)
	}
}

func (a *Activities) record(outcome string) {
	if a.metrics != nil {
		a.metrics.RecordRitualRun(outcome)
	}
}
