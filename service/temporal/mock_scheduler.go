package temporal

import (
	"context"
	"fmt"
	"sync"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu         sync.Mutex
	cron       string
	exists     bool
	triggers   int
	createErr  error
	deleteErr  error
	triggerErr error
}

var _ Scheduler = (*MockScheduler)(nil)

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{}
}

// UpsertRitualSchedule records the cron spec.
func (m *MockScheduler) UpsertRitualSchedule(ctx context.Context, cronExpr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.cron = cronExpr
	m.exists = true
	return nil
}

// DeleteRitualSchedule records that the schedule was deleted.
func (m *MockScheduler) DeleteRitualSchedule(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if !m.exists {
		return fmt.Errorf("schedule %q not found", RitualScheduleID)
	}
	m.exists = false
	m.cron = ""
	return nil
}

// TriggerRitual counts manual triggers.
func (m *MockScheduler) TriggerRitual(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.triggerErr != nil {
		return m.triggerErr
	}
	if !m.exists {
		return fmt.Errorf("schedule %q not found", RitualScheduleID)
	}
	m.triggers++
	return nil
}

// SetCreateError makes UpsertRitualSchedule return an error.
func (m *MockScheduler) SetCreateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

// SetDeleteError makes DeleteRitualSchedule return an error.
func (m *MockScheduler) SetDeleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

// SetTriggerError makes TriggerRitual return an error.
func (m *MockScheduler) SetTriggerError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggerErr = err
}

// Schedule returns the current cron spec and whether the schedule exists.
func (m *MockScheduler) Schedule() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cron, m.exists
}

// TriggerCount returns the number of manual triggers.
func (m *MockScheduler) TriggerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggers
}
