// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for the tessera binaries.
// main() calls run() and hands any error to [Fatal], which writes to
// stderr directly since the structured logger may not exist yet.
package process
