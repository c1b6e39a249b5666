// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import "sync"

// TaskState is a task's position in its lifecycle:
// Spawned → Running → Completed or Failed.
type TaskState string

const (
	StateSpawned   TaskState = "spawned"
	StateRunning   TaskState = "running"
	StateCompleted TaskState = "completed"
	StateFailed    TaskState = "failed"
)

// TaskStatus is a point-in-time view of one task.
type TaskStatus struct {
	Name  string    `json:"name"`
	State TaskState `json:"state"`
	Error string    `json:"error,omitempty"`
}

type task struct {
	name string
	done chan struct{}

	mutex sync.Mutex
	state TaskState
	err   error
}

func (t *task) setState(state TaskState, err error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.state = state
	t.err = err
}

func (t *task) status() (TaskState, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state, t.err
}
