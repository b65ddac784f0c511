// Package runtime supervises the collector's long-running background tasks.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "faultline-go/internal/errors"
	"faultline-go/internal/recovery"
	log "github.com/sirupsen/logrus"
)

// Reporter receives task failures and panics. *recovery.Handler satisfies it.
type Reporter interface {
	Report(ctx context.Context, err any, fields map[string]any, severity apperrors.Severity) recovery.Report
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusStopped  TaskStatus = "stopped"
	TaskStatusFailed   TaskStatus = "failed"
	TaskStatusCanceled TaskStatus = "canceled"
)

// TaskFunc runs until ctx is cancelled or its work is done.
type TaskFunc func(ctx context.Context) error

// TaskInfo is a copy of a task's state.
type TaskInfo struct {
	Name       string     `json:"name"`
	Status     TaskStatus `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Runs       int64      `json:"runs,omitempty"`
	Failures   int64      `json:"failures,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
}

type task struct {
	info   TaskInfo
	cancel context.CancelFunc
}

// TaskManager starts named tasks, records their outcome and reports
// failures. Stopping the manager cancels every task.
type TaskManager struct {
	mu       sync.RWMutex
	tasks    map[string]*task
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	reporter Reporter
}

// NewTaskManager derives task contexts from ctx. reporter may be nil.
func NewTaskManager(ctx context.Context, reporter Reporter) *TaskManager {
	ctx, cancel := context.WithCancel(ctx)
	return &TaskManager{
		tasks:    make(map[string]*task),
		ctx:      ctx,
		cancel:   cancel,
		reporter: reporter,
	}
}

// Start runs fn in its own goroutine under name. A finished task's name
// may be reused.
func (tm *TaskManager) Start(name string, fn TaskFunc) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if t, ok := tm.tasks[name]; ok && t.info.Status == TaskStatusRunning {
		return fmt.Errorf("task %s already running", name)
	}
	if tm.ctx.Err() != nil {
		return fmt.Errorf("task manager stopped")
	}

	ctx, cancel := context.WithCancel(tm.ctx)
	t := &task{
		info:   TaskInfo{Name: name, Status: TaskStatusRunning, StartedAt: time.Now()},
		cancel: cancel,
	}
	tm.tasks[name] = t

	tm.wg.Add(1)
	go tm.run(ctx, t, fn)
	return nil
}

func (tm *TaskManager) run(ctx context.Context, t *task, fn TaskFunc) {
	defer tm.wg.Done()
	defer t.cancel()
	name := t.info.Name
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in task %s: %v", name, r)
			tm.finish(t, TaskStatusFailed, err)
			tm.report(name, err, apperrors.SeverityCritical)
		}
	}()

	log.WithField("task", name).Debug("task started")
	err := fn(ctx)
	switch {
	case err == nil:
		tm.finish(t, TaskStatusStopped, nil)
		log.WithField("task", name).Debug("task stopped")
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		tm.finish(t, TaskStatusCanceled, nil)
	default:
		tm.finish(t, TaskStatusFailed, err)
		log.WithField("task", name).WithError(err).Error("task failed")
		tm.report(name, err, apperrors.SeverityHigh)
	}
}

func (tm *TaskManager) finish(t *task, status TaskStatus, err error) {
	now := time.Now()
	tm.mu.Lock()
	defer tm.mu.Unlock()
	t.info.Status = status
	t.info.FinishedAt = &now
	if err != nil {
		t.info.Failures++
		t.info.LastError = err.Error()
	}
}

func (tm *TaskManager) report(name string, err error, severity apperrors.Severity) {
	if tm.reporter == nil {
		return
	}
	tm.reporter.Report(context.Background(), err, map[string]any{"task": name}, severity)
}

// StartPeriodic runs fn now and then every interval. A failing run is
// recorded and reported but does not stop the task; a panic does.
func (tm *TaskManager) StartPeriodic(name string, interval time.Duration, fn TaskFunc) error {
	if interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", name)
	}
	return tm.Start(name, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			tm.periodicRun(ctx, name, fn)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})
}

func (tm *TaskManager) periodicRun(ctx context.Context, name string, fn TaskFunc) {
	err := fn(ctx)
	tm.mu.Lock()
	t := tm.tasks[name]
	t.info.Runs++
	if err != nil && ctx.Err() == nil {
		t.info.Failures++
		t.info.LastError = err.Error()
	}
	tm.mu.Unlock()
	if err != nil && ctx.Err() == nil {
		log.WithField("task", name).WithError(err).Warn("periodic task run failed")
		tm.report(name, err, "")
	}
}

// Stop cancels one running task.
func (tm *TaskManager) Stop(name string) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	t, ok := tm.tasks[name]
	if !ok {
		return fmt.Errorf("task %s not found", name)
	}
	if t.info.Status != TaskStatusRunning {
		return fmt.Errorf("task %s is not running", name)
	}
	t.cancel()
	return nil
}

// StopAll cancels every task; no new task can start afterwards.
func (tm *TaskManager) StopAll() {
	tm.cancel()
}

// Wait blocks until every task returned or ctx is done.
func (tm *TaskManager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tasks still running: %v", tm.running())
	}
}

func (tm *TaskManager) running() []string {
	var names []string
	for _, t := range tm.List() {
		if t.Status == TaskStatusRunning {
			names = append(names, t.Name)
		}
	}
	return names
}

// Get returns a copy of one task's state.
func (tm *TaskManager) Get(name string) (TaskInfo, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	t, ok := tm.tasks[name]
	if !ok {
		return TaskInfo{}, false
	}
	return t.info, true
}

// List returns every task sorted by name.
func (tm *TaskManager) List() []TaskInfo {
	tm.mu.RLock()
	out := make([]TaskInfo, 0, len(tm.tasks))
	for _, t := range tm.tasks {
		out = append(out, t.info)
	}
	tm.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
