package temporal

import (
	"errors"
	"testing"

	"github.com/brojonat/bukeqi/service/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

func TestClosingRitualWorkflow(t *testing.T) {
	tests := []struct {
		name           string
		mockActivity   func(*testsuite.MockCallWrapper)
		expectedError  bool
		validateResult func(*testing.T, *ClosingRitualResult)
	}{
		{
			name: "someone is chosen",
			mockActivity: func(m *testsuite.MockCallWrapper) {
				m.Return(&RunRitualResult{Result: &oracle.RitualResult{
					ChosenID:     "2",
					Prophecy:     "The code compiles.",
					PayoutTxHash: "0xfeed",
					RewardAmount: 20,
				}}, nil)
			},
			validateResult: func(t *testing.T, r *ClosingRitualResult) {
				assert.Equal(t, "2", r.ChosenID)
				assert.Equal(t, "0xfeed", r.PayoutTxHash)
				assert.Equal(t, 20.0, r.RewardAmount)
				assert.False(t, r.Skipped)
				assert.Empty(t, r.Reason)
			},
		},
		{
			name: "no one is chosen",
			mockActivity: func(m *testsuite.MockCallWrapper) {
				m.Return(&RunRitualResult{Result: &oracle.RitualResult{Prophecy: "The Void remains silent."}}, nil)
			},
			validateResult: func(t *testing.T, r *ClosingRitualResult) {
				assert.Empty(t, r.ChosenID)
				assert.Equal(t, "The Void remains silent.", r.Prophecy)
				assert.Equal(t, "no one was chosen", r.Reason)
			},
		},
		{
			name: "empty ledger",
			mockActivity: func(m *testsuite.MockCallWrapper) {
				m.Return(&RunRitualResult{Skipped: true, Reason: "ledger empty"}, nil)
			},
			validateResult: func(t *testing.T, r *ClosingRitualResult) {
				assert.True(t, r.Skipped)
				assert.Equal(t, "ledger empty", r.Reason)
			},
		},
		{
			name: "rejected",
			mockActivity: func(m *testsuite.MockCallWrapper) {
				m.Return(nil, temporalsdk.NewNonRetryableApplicationError("closing ritual rejected", "RitualRejected", nil))
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testSuite := &testsuite.WorkflowTestSuite{}
			env := testSuite.NewTestWorkflowEnvironment()

			activities := &Activities{}
			env.RegisterActivity(activities.RunClosingRitual)
			tt.mockActivity(env.OnActivity(activities.RunClosingRitual, mock.Anything, mock.Anything))

			env.ExecuteWorkflow(ClosingRitualWorkflow, ClosingRitualInput{Schedule: "0 0 * * *"})

			require.True(t, env.IsWorkflowCompleted())
			if tt.expectedError {
				assert.Error(t, env.GetWorkflowError())
				return
			}

			require.NoError(t, env.GetWorkflowError())
			var result ClosingRitualResult
			require.NoError(t, env.GetWorkflowResult(&result))
			tt.validateResult(t, &result)
		})
	}
}

func TestClosingRitualWorkflow_RetriesWhileBusy(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.RunClosingRitual)

	env.OnActivity(activities.RunClosingRitual, mock.Anything, mock.Anything).
		Return(nil, errors.New("oracle busy")).Times(2)
	env.OnActivity(activities.RunClosingRitual, mock.Anything, mock.Anything).
		Return(&RunRitualResult{Result: &oracle.RitualResult{ChosenID: "1"}}, nil).Once()

	env.ExecuteWorkflow(ClosingRitualWorkflow, ClosingRitualInput{})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ClosingRitualResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "1", result.ChosenID)
	env.AssertExpectations(t)
}

func TestClosingRitualWorkflow_GivesUp(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.RunClosingRitual)

	calls := 0
	env.OnActivity(activities.RunClosingRitual, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { calls++ }).
		Return(nil, errors.New("connection refused"))

	env.ExecuteWorkflow(ClosingRitualWorkflow, ClosingRitualInput{})

	require.True(t, env.IsWorkflowCompleted())
	assert.Error(t, env.GetWorkflowError())
	assert.Equal(t, 6, calls)
}
