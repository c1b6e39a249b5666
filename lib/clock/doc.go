// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Components that stamp records or wait on deadlines take a Clock
// instead of calling the time package. Tests pass a FakeClock, which
// stands still until Advance is called:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go waitForSomething(fake)
//	fake.WaitForTimers(1)
//	fake.Advance(30 * time.Second)
//
// WaitForTimers closes the race between a goroutine registering its
// deadline and the test moving time past it.
package clock
