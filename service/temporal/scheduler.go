package temporal

import "context"

// RitualScheduleID is the Temporal schedule that drives the closing ritual.
const RitualScheduleID = "closing-ritual"

// Scheduler manages the closing-ritual schedule.
type Scheduler interface {
	// UpsertRitualSchedule creates the schedule or replaces its cron spec.
	UpsertRitualSchedule(ctx context.Context, cronExpr string) error

	// DeleteRitualSchedule stops scheduled rituals.
	DeleteRitualSchedule(ctx context.Context) error

	// TriggerRitual starts a run immediately, outside the cron spec.
	TriggerRitual(ctx context.Context) error
}
