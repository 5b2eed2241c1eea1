package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

var _ Scheduler = (*Client)(nil)

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

func (c *Client) workflowAction(cronExpr string) *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:        "closing-ritual-run",
		Workflow:  ClosingRitualWorkflow,
		TaskQueue: c.taskQueue,
		Args:      []interface{}{ClosingRitualInput{Schedule: cronExpr}},
	}
}

// UpsertRitualSchedule creates the closing-ritual schedule, or replaces the
// cron spec of an existing one.
func (c *Client) UpsertRitualSchedule(ctx context.Context, cronExpr string) error {
	c.logger.Debug("upserting ritual schedule",
		"schedule_id", RitualScheduleID,
		"cron", cronExpr,
	)

	handle := c.client.ScheduleClient().GetHandle(ctx, RitualScheduleID)
	if _, err := handle.Describe(ctx); err != nil {
		// Schedule doesn't exist or error getting it - create new one
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", RitualScheduleID,
			"error", err,
		)

		_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
			ID: RitualScheduleID,
			Spec: client.ScheduleSpec{
				CronExpressions: []string{cronExpr},
			},
			Action: c.workflowAction(cronExpr),
			Memo: map[string]interface{}{
				"cron":       cronExpr,
				"created_by": "bukeqi",
			},
		})
		if err != nil {
			c.logger.Error("failed to create schedule",
				"schedule_id", RitualScheduleID,
				"error", err,
			)
			return fmt.Errorf("failed to create schedule %q: %w", RitualScheduleID, err)
		}

		c.logger.Info("ritual schedule created", "schedule_id", RitualScheduleID, "cron", cronExpr)
		return nil
	}

	// Described specs come back as calendars, so the spec is replaced
	// rather than edited.
	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec = &client.ScheduleSpec{
				CronExpressions: []string{cronExpr},
			}
			input.Description.Schedule.Action = c.workflowAction(cronExpr)
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule",
			"schedule_id", RitualScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", RitualScheduleID, err)
	}

	c.logger.Info("ritual schedule updated", "schedule_id", RitualScheduleID, "cron", cronExpr)
	return nil
}

// DeleteRitualSchedule deletes the closing-ritual schedule.
func (c *Client) DeleteRitualSchedule(ctx context.Context) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, RitualScheduleID)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"schedule_id", RitualScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", RitualScheduleID, err)
	}

	c.logger.Info("ritual schedule deleted", "schedule_id", RitualScheduleID)
	return nil
}

// TriggerRitual runs the scheduled action now.
func (c *Client) TriggerRitual(ctx context.Context) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, RitualScheduleID)
	if err := handle.Trigger(ctx, client.ScheduleTriggerOptions{}); err != nil {
		return fmt.Errorf("failed to trigger schedule %q: %w", RitualScheduleID, err)
	}

	c.logger.Info("ritual schedule triggered", "schedule_id", RitualScheduleID)
	return nil
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
