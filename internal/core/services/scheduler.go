package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/core/ports/driving"
	"github.com/custodia-labs/sentinela/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// historyRetention is how many results are kept per task.
const historyRetention = 100

// Scheduler runs the recurring ingest and detect tasks.
// It is a pure core service with no external control API.
type Scheduler struct {
	config    domain.SchedulerConfig
	store     driven.SchedulerStore
	ingest    driving.IngestCoordinator
	detection driving.DetectionService
	tick      time.Duration
	log       *slog.Logger

	mu      sync.Mutex
	running bool
	busy    map[string]bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	ingest driving.IngestCoordinator,
	detection driving.DetectionService,
) *Scheduler {
	return &Scheduler{
		config:    config,
		store:     store,
		ingest:    ingest,
		detection: detection,
		tick:      time.Minute,
		log:       logger.For("scheduler"),
		busy:      make(map[string]bool),
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or the context ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	if !s.config.Enabled {
		s.log.Info("scheduler disabled")
	} else if err := s.initialiseTasks(ctx); err != nil {
		s.log.Error("initialise tasks", "error", err)
	}

	return s.run(ctx, stop)
}

// Stop gracefully shuts down the scheduler and waits for running tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// initialiseTasks ensures all configured tasks exist in the store.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	tasks := []struct{ id, name string }{
		{domain.TaskIDIngest, "Ingest all sources"},
		{domain.TaskIDDetect, "Run detectors"},
	}
	var errs []error
	for _, t := range tasks {
		if err := s.ensureTask(ctx, t.id, t.name, s.config.GetTaskConfig(t.id)); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", t.id, err))
		}
	}
	return errors.Join(errs...)
}

// ensureTask creates or updates a task in the store. A task that is not
// configured is stored disabled so its history survives.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  time.Now(),
		}
	} else {
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			task.NextRun = time.Now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}
	if task.Interval <= 0 {
		task.Enabled = false
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}) error {
	if s.config.Enabled {
		s.checkAndRunDueTasks(ctx)
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			if s.config.Enabled {
				s.checkAndRunDueTasks(ctx)
			}
		}
	}
}

// checkAndRunDueTasks starts every enabled task whose next run has passed.
// Ingest is started before detect so a cycle detects over fresh rows.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		s.log.Error("list tasks", "error", err)
		return
	}
	sort.Slice(tasks, func(i, j int) bool { return taskOrder(tasks[i].ID) < taskOrder(tasks[j].ID) })

	now := time.Now()
	for i := range tasks {
		task := tasks[i]
		if task.Due(now) {
			s.runTask(ctx, &task)
		}
	}
}

func taskOrder(id string) int {
	switch id {
	case domain.TaskIDIngest:
		return 0
	case domain.TaskIDDetect:
		return 1
	default:
		return 2
	}
}

// runTask executes a single task in the background. A task still running
// from an earlier tick is not started again.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.mu.Lock()
	if s.busy[task.ID] {
		s.mu.Unlock()
		return
	}
	s.busy[task.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.busy, task.ID)
			s.mu.Unlock()
		}()

		result := &domain.TaskResult{
			TaskID:    task.ID,
			StartedAt: time.Now(),
		}

		var err error
		switch task.ID {
		case domain.TaskIDIngest:
			result.ItemsProcessed, err = s.runIngest(ctx)
		case domain.TaskIDDetect:
			result.ItemsProcessed, err = s.runDetect(ctx)
		default:
			s.log.Warn("unknown task", "task", task.ID)
			return
		}

		result.EndedAt = time.Now()
		if err != nil {
			result.Error = err.Error()
			s.log.Error("task failed", "task", task.ID, "error", err)
		} else {
			result.Success = true
			s.log.Info("task finished", "task", task.ID, "items", result.ItemsProcessed,
				"duration", result.Duration())
		}
		task.Complete(*result)

		// The run is over; persist its outcome even if the daemon is shutting down.
		saveCtx := context.WithoutCancel(ctx)
		if saveErr := s.store.SaveTask(saveCtx, task); saveErr != nil {
			s.log.Error("save task", "task", task.ID, "error", saveErr)
		}
		if recordErr := s.store.RecordResult(saveCtx, result); recordErr != nil {
			s.log.Error("record task result", "task", task.ID, "error", recordErr)
		}
		if pruneErr := s.store.PruneHistory(saveCtx, historyRetention); pruneErr != nil {
			s.log.Error("prune task history", "error", pruneErr)
		}
	}()
}

// runIngest collects every source and returns the number of new rows.
// Failed sources are joined into the task error; the rest still count.
func (s *Scheduler) runIngest(ctx context.Context) (int, error) {
	if s.ingest == nil {
		return 0, nil
	}
	reports, err := s.ingest.RunAll(ctx, false)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(reports))
	for id := range reports {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := 0
	var errs []error
	for _, id := range ids {
		r := reports[id]
		rows += r.RowsNew
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", id, r.Err))
		}
	}
	return rows, errors.Join(errs...)
}

// runDetect runs the detectors and returns the number of new insights.
func (s *Scheduler) runDetect(ctx context.Context) (int, error) {
	if s.detection == nil {
		return 0, nil
	}
	report, err := s.detection.Run(ctx)
	if err != nil {
		return 0, err
	}
	var errs []error
	for _, o := range report.Failed() {
		errs = append(errs, fmt.Errorf("detector %s: %w", o.DetectorID, o.Err))
	}
	return report.New, errors.Join(errs...)
}
