// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework of the tessera CLI.
//
// A [Command] tree is dispatched by [Command.Execute], which routes on
// the first positional argument, parses pflag flags, and prints help
// with examples. Unknown commands and flags get a did-you-mean
// suggestion when one is within edit distance 3. Flag sets are usually
// built from tagged params structs with [FlagsFromParams].
package cli
