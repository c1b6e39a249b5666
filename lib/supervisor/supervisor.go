// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Service is a long-running unit of work. Run must return promptly
// once ctx is cancelled. A nil return means a clean exit.
type Service interface {
	Run(ctx context.Context) error
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context) error

// Run implements Service.
func (f ServiceFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PanicError is the failure recorded for a service that panicked.
type PanicError struct {
	Task  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value)
}

// TaskError is the failure recorded for a service that returned an
// error.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Supervisor owns a set of running services. The zero value is not
// usable; create one with New.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mutex   sync.Mutex
	pending []*task
	all     []*task

	failOnce sync.Once
	failed   chan struct{}
}

// New returns a Supervisor whose services run under a fresh
// cancellation signal.
func New(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		failed: make(chan struct{}),
	}
}

// Spawn starts service in its own goroutine. It never blocks on the
// service and may be called concurrently with itself and with Stop.
func (s *Supervisor) Spawn(name string, service Service) {
	t := &task{name: name, done: make(chan struct{})}
	t.setState(StateSpawned, nil)

	s.mutex.Lock()
	s.pending = append(s.pending, t)
	s.all = append(s.all, t)
	s.mutex.Unlock()

	go s.run(t, service)
}

func (s *Supervisor) run(t *task, service Service) {
	defer close(t.done)
	defer func() {
		if value := recover(); value != nil {
			err := &PanicError{Task: t.name, Value: value, Stack: debug.Stack()}
			s.logger.Error("task panicked", "task", t.name, "panic", value, "stack", string(err.Stack))
			s.finish(t, err)
		}
	}()

	t.setState(StateRunning, nil)
	s.logger.Debug("task started", "task", t.name)
	err := service.Run(s.ctx)
	if err != nil {
		err = &TaskError{Task: t.name, Err: err}
		s.logger.Error("task failed", "task", t.name, "error", err)
	} else {
		s.logger.Info("task finished", "task", t.name)
	}
	s.finish(t, err)
}

func (s *Supervisor) finish(t *task, err error) {
	if err != nil {
		t.setState(StateFailed, err)
		s.failOnce.Do(func() { close(s.failed) })
		return
	}
	t.setState(StateCompleted, nil)
}

// Context returns the shared cancellation signal. It is cancelled by
// Stop.
func (s *Supervisor) Context() context.Context {
	return s.ctx
}

// Failed is closed when any task first fails.
func (s *Supervisor) Failed() <-chan struct{} {
	return s.failed
}

// Stop cancels every service and waits for all of them, including
// those spawned while waiting. It returns the first failure among the
// tasks it waited on, in spawn order. Calling Stop again waits for any
// tasks spawned since and reports only their failures.
func (s *Supervisor) Stop() error {
	s.cancel()

	var firstErr error
	for {
		s.mutex.Lock()
		batch := s.pending
		s.pending = nil
		s.mutex.Unlock()

		if len(batch) == 0 {
			break
		}
		for _, t := range batch {
			<-t.done
			if _, err := t.status(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Wait blocks until ctx ends or a task fails, then stops all tasks.
// It is the usual body of a daemon's main loop.
func (s *Supervisor) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
	case <-s.failed:
		s.logger.Warn("task failed, shutting down")
	}
	return s.Stop()
}

// Tasks returns a snapshot of every task ever spawned, in spawn order.
func (s *Supervisor) Tasks() []TaskStatus {
	s.mutex.Lock()
	tasks := append([]*task(nil), s.all...)
	s.mutex.Unlock()

	statuses := make([]TaskStatus, len(tasks))
	for i, t := range tasks {
		state, err := t.status()
		statuses[i] = TaskStatus{Name: t.name, State: state}
		if err != nil {
			statuses[i].Error = err.Error()
		}
	}
	return statuses
}
