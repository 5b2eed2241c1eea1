package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// ClosingRitualWorkflow runs the oracle's closing ritual once. It is
// triggered by the closing-ritual schedule.
//
// The oracle refuses a ritual while it is processing or speaking, so the
// activity is retried with backoff long enough to outlast a speech.
func ClosingRitualWorkflow(ctx workflow.Context, input ClosingRitualInput) (*ClosingRitualResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("ClosingRitualWorkflow started", "schedule", input.Schedule)

	result := &ClosingRitualResult{
		RunTime: workflow.Now(ctx),
	}

	activityOptions := workflow.ActivityOptions{
		// Covers the ritual pause plus the selection call.
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    10 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    2 * time.Minute,
			MaximumAttempts:    6,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var out *RunRitualResult
	err := workflow.ExecuteActivity(ctx, a.RunClosingRitual, RunRitualInput{Schedule: input.Schedule}).Get(ctx, &out)
	if err != nil {
		logger.Error("closing ritual failed", "error", err)
		return result, fmt.Errorf("failed to run closing ritual: %w", err)
	}

	if out == nil {
		out = &RunRitualResult{}
	}
	if out.Skipped {
		result.Skipped = true
		result.Reason = out.Reason
		logger.Info("closing ritual skipped", "reason", out.Reason)
		return result, nil
	}

	if out.Result != nil {
		result.ChosenID = out.Result.ChosenID
		result.Prophecy = out.Result.Prophecy
		result.PayoutTxHash = out.Result.PayoutTxHash
		result.RewardAmount = out.Result.RewardAmount
	}
	if result.ChosenID == "" {
		result.Reason = "no one was chosen"
	}

	logger.Info("ClosingRitualWorkflow completed",
		"chosen_id", result.ChosenID,
		"reward", result.RewardAmount,
	)
	return result, nil
}
