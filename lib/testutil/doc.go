// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireClosed], and [RequireNoReceive] wrap the
// select-with-timeout pattern so tests do not call time.After directly.
// They are the only place in the test suite where real wall-clock
// timeouts are used.
//
// [SocketDir] creates a short directory for Unix domain sockets.
// [WriteFile] and [RandomBytes] build publish sources.
//
// All helpers call t.Fatalf on failure. This package has no
// dependencies inside the module.
package testutil
