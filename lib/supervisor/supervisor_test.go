// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/tessera-net/tessera/lib/testutil"
)

const testTimeout = 5 * time.Second

func stopAsync(s *Supervisor) <-chan error {
	result := make(chan error, 1)
	go func() { result <- s.Stop() }()
	return result
}

func TestStopWithServiceBlockedInNetworkRead(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	supervisor := New(nil)
	reading := make(chan struct{})

	supervisor.Spawn("reader", ServiceFunc(func(ctx context.Context) error {
		conn, err := net.Dial("tcp", listener.Addr().String())
		if err != nil {
			return err
		}
		defer conn.Close()
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()

		close(reading)
		buffer := make([]byte, 1)
		_, err = conn.Read(buffer)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}))
	supervisor.Spawn("idle", ServiceFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}))

	testutil.RequireClosed(t, reading, testTimeout, "reader blocked in Read")
	stopErr := testutil.RequireReceive(t, stopAsync(supervisor), testTimeout, "Stop returning")
	if stopErr != nil {
		t.Errorf("Stop: %v", stopErr)
	}
	for _, status := range supervisor.Tasks() {
		if status.State != StateCompleted {
			t.Errorf("task %s is %s after Stop, want completed", status.Name, status.State)
		}
	}
}

func TestStopReturnsFirstErrorAfterAllTasksFinish(t *testing.T) {
	supervisor := New(nil)
	failure := errors.New("disk on fire")
	release := make(chan struct{})
	slowFinished := make(chan struct{})

	supervisor.Spawn("failing", ServiceFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return failure
	}))
	supervisor.Spawn("slow", ServiceFunc(func(ctx context.Context) error {
		<-ctx.Done()
		<-release
		close(slowFinished)
		return nil
	}))

	result := stopAsync(supervisor)
	testutil.RequireNoReceive(t, result, 50*time.Millisecond, "Stop returned while a task was still running")
	close(release)

	stopErr := testutil.RequireReceive(t, result, testTimeout, "Stop returning")
	if !errors.Is(stopErr, failure) {
		t.Errorf("Stop error = %v, want %v", stopErr, failure)
	}
	var taskErr *TaskError
	if !errors.As(stopErr, &taskErr) || taskErr.Task != "failing" {
		t.Errorf("Stop error %v does not name the failing task", stopErr)
	}
	testutil.RequireClosed(t, slowFinished, testTimeout, "slow task finished")
}

func TestPanicIsRecoveredAsFailure(t *testing.T) {
	supervisor := New(nil)
	supervisor.Spawn("panicky", ServiceFunc(func(context.Context) error {
		panic("boom")
	}))
	supervisor.Spawn("steady", ServiceFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}))

	testutil.RequireClosed(t, supervisor.Failed(), testTimeout, "failure signal")
	stopErr := supervisor.Stop()
	var panicErr *PanicError
	if !errors.As(stopErr, &panicErr) {
		t.Fatalf("Stop error = %v, want *PanicError", stopErr)
	}
	if panicErr.Task != "panicky" || panicErr.Value != "boom" {
		t.Errorf("PanicError = %+v", panicErr)
	}
}

func TestSpawnAfterStopObservesCancellation(t *testing.T) {
	supervisor := New(nil)
	if err := supervisor.Stop(); err != nil {
		t.Fatalf("Stop on empty supervisor: %v", err)
	}

	observed := make(chan error, 1)
	supervisor.Spawn("late", ServiceFunc(func(ctx context.Context) error {
		observed <- ctx.Err()
		return nil
	}))
	if err := testutil.RequireReceive(t, observed, testTimeout, "late task running"); !errors.Is(err, context.Canceled) {
		t.Errorf("late task saw ctx.Err() = %v, want context.Canceled", err)
	}
	if err := supervisor.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestStopWaitsForTasksSpawnedDuringShutdown(t *testing.T) {
	supervisor := New(nil)
	release := make(chan struct{})
	childDone := make(chan struct{})

	supervisor.Spawn("parent", ServiceFunc(func(ctx context.Context) error {
		<-ctx.Done()
		supervisor.Spawn("child", ServiceFunc(func(context.Context) error {
			<-release
			close(childDone)
			return nil
		}))
		return nil
	}))

	result := stopAsync(supervisor)
	testutil.RequireNoReceive(t, result, 50*time.Millisecond, "Stop returned before the child finished")
	close(release)
	if err := testutil.RequireReceive(t, result, testTimeout, "Stop returning"); err != nil {
		t.Errorf("Stop: %v", err)
	}
	testutil.RequireClosed(t, childDone, testTimeout, "child finished")
}

func TestWaitStopsOnFailure(t *testing.T) {
	supervisor := New(nil)
	supervisor.Spawn("bind", ServiceFunc(func(context.Context) error {
		return errors.New("address in use")
	}))
	supervisor.Spawn("idle", ServiceFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}))

	result := make(chan error, 1)
	go func() { result <- supervisor.Wait(context.Background()) }()
	if err := testutil.RequireReceive(t, result, testTimeout, "Wait returning"); err == nil {
		t.Error("Wait returned nil after a task failed")
	}
	if supervisor.Context().Err() == nil {
		t.Error("shared context not cancelled after Wait")
	}
}

func TestTasksReportsStates(t *testing.T) {
	supervisor := New(nil)
	running := make(chan struct{})
	supervisor.Spawn("worker", ServiceFunc(func(ctx context.Context) error {
		close(running)
		<-ctx.Done()
		return nil
	}))
	testutil.RequireClosed(t, running, testTimeout, "worker running")

	tasks := supervisor.Tasks()
	if len(tasks) != 1 || tasks[0].Name != "worker" || tasks[0].State != StateRunning {
		t.Fatalf("Tasks() = %+v", tasks)
	}
	if err := supervisor.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if state := supervisor.Tasks()[0].State; state != StateCompleted {
		t.Errorf("state after Stop = %s", state)
	}
}
