package domain

import "time"

// Task IDs for the daemon's built-in tasks.
const (
	TaskIDIngest = "ingest"
	TaskIDDetect = "detect"
)

// ScheduledTask is the persisted state of a recurring daemon task.
type ScheduledTask struct {
	ID       string
	Name     string
	Interval time.Duration

	LastRun     time.Time
	NextRun     time.Time
	LastSuccess time.Time

	// LastError is empty after a successful run.
	LastError string

	Enabled bool
}

// Due reports whether an enabled task should start at now.
// A task that never ran is due immediately.
func (t *ScheduledTask) Due(now time.Time) bool {
	if !t.Enabled || t.Interval <= 0 {
		return false
	}
	return t.NextRun.IsZero() || !t.NextRun.After(now)
}

// Complete folds a finished run into the task and schedules the next one
// an interval after the run ended.
func (t *ScheduledTask) Complete(r TaskResult) {
	t.LastRun = r.StartedAt
	t.NextRun = r.EndedAt.Add(t.Interval)
	if r.Success {
		t.LastSuccess = r.EndedAt
		t.LastError = ""
		return
	}
	t.LastError = r.Error
}

// TaskResult records one run of a task.
type TaskResult struct {
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	// ItemsProcessed is new rows for ingest and insights for detect.
	ItemsProcessed int
}

// Duration is how long the run took.
func (r TaskResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// SchedulerConfig is the daemon configuration read from [scheduler].
type SchedulerConfig struct {
	Enabled     bool
	TaskConfigs map[string]TaskConfig
}

// TaskConfig enables a task and sets its interval.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// GetTaskConfig returns the configuration for a task, or the zero value.
func (c *SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	return c.TaskConfigs[taskID]
}

// DefaultSchedulerConfig collects every six hours and detects daily.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		TaskConfigs: map[string]TaskConfig{
			TaskIDIngest: {Enabled: true, Interval: 6 * time.Hour},
			TaskIDDetect: {Enabled: true, Interval: 24 * time.Hour},
		},
	}
}
