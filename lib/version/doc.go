// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the tessera binaries.
//
// [GitCommit], [GitDirty], [BuildTime], and [Version] are injected
// with -ldflags -X. Development builds keep the defaults, except that
// the commit is read from the toolchain's VCS stamp when present.
package version
