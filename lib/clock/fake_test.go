// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"

	"github.com/tessera-net/tessera/lib/testutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowMovesOnlyOnAdvance(t *testing.T) {
	fake := Fake(epoch)
	if !fake.Now().Equal(epoch) {
		t.Fatalf("Now = %v, want %v", fake.Now(), epoch)
	}
	fake.Advance(90 * time.Second)
	if want := epoch.Add(90 * time.Second); !fake.Now().Equal(want) {
		t.Fatalf("Now = %v, want %v", fake.Now(), want)
	}
}

func TestFakeAfterFiresAtDeadline(t *testing.T) {
	fake := Fake(epoch)
	fired := fake.After(10 * time.Second)

	fake.Advance(9 * time.Second)
	testutil.RequireNoReceive(t, fired, 10*time.Millisecond, "timer fired early")

	fake.Advance(time.Second)
	at := testutil.RequireReceive(t, fired, time.Second, "timer did not fire")
	if want := epoch.Add(10 * time.Second); !at.Equal(want) {
		t.Errorf("fired at %v, want %v", at, want)
	}
	if fake.PendingCount() != 0 {
		t.Errorf("PendingCount = %d after firing, want 0", fake.PendingCount())
	}
}

func TestFakeAfterNonPositiveFiresImmediately(t *testing.T) {
	fake := Fake(epoch)
	testutil.RequireReceive(t, fake.After(0), time.Second, "zero duration did not fire")
	if fake.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", fake.PendingCount())
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	fake := Fake(epoch)
	done := make(chan struct{})
	go func() {
		<-fake.After(time.Minute)
		close(done)
	}()

	fake.WaitForTimers(1)
	fake.Advance(time.Minute)
	testutil.RequireClosed(t, done, time.Second, "goroutine was not released")
}

func TestFakeSetBackwardsFiresNothing(t *testing.T) {
	fake := Fake(epoch)
	fired := fake.After(time.Second)
	fake.Set(epoch.Add(-time.Hour))
	testutil.RequireNoReceive(t, fired, 10*time.Millisecond, "timer fired on backwards Set")
	fake.Set(epoch.Add(time.Second))
	testutil.RequireReceive(t, fired, time.Second, "timer did not fire")
}
