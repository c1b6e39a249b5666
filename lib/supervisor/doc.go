// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor runs long-lived services as goroutines under one
// shared cancellation signal and shuts them down together.
//
// Each service receives a context. [Supervisor.Stop] cancels that
// context exactly once and then waits for every service, including
// services spawned while Stop is already waiting. A service spawned
// after Stop starts with an already-cancelled context, so it observes
// shutdown immediately instead of running unsupervised.
//
// A service that returns an error or panics does not stop the others.
// The first failure is reported by Stop, after every task has
// finished, and [Supervisor.Failed] is closed when it happens so the
// owner can decide to shut down early.
package supervisor
