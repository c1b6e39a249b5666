// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the tessera-node YAML configuration.
//
// The file comes from exactly one place: the TESSERA_CONFIG
// environment variable ([Load]) or an explicit --config path
// ([LoadFile]). There is no discovery and environment variables do not
// override values, apart from ${VAR} expansion in path fields.
//
// An environment section (development, production) overrides base
// values when [Config].Environment matches. A production config with
// no section of its own gets synchronous store writes and
// verify-after-write turned on.
package config
