// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package fileprocessor

import (
	"errors"
	"fmt"
)

// Kind classifies processing failures by what the caller can do about
// them.
type Kind int

const (
	// KindInput means the source is missing, unreadable, not a
	// regular file, or empty. Retrying the same request will fail the
	// same way.
	KindInput Kind = iota + 1

	// KindResource means the node could not persist the chunks: disk
	// full, permissions on the chunks root, or a failed write.
	KindResource

	// KindIntegrity means a persisted chunk did not verify against its
	// proof. Processing results from such a run must not be published.
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindResource:
		return "resource"
	case KindIntegrity:
		return "integrity"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	// ErrEmptyFile is wrapped by the input error returned for sources
	// that produce zero chunks.
	ErrEmptyFile = errors.New("source is empty")

	// ErrInsufficientSpace is wrapped by the resource error returned
	// when the chunks filesystem is below its free-space floor.
	ErrInsufficientSpace = errors.New("insufficient free space")
)

// ProcessingError is returned for every failure of
// [Processor.Process] other than cancellation.
type ProcessingError struct {
	Kind   Kind
	Source string
	Err    error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing %s: %s error: %v", e.Source, e.Kind, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first ProcessingError in err's chain.
func KindOf(err error) (Kind, bool) {
	var processingError *ProcessingError
	if errors.As(err, &processingError) {
		return processingError.Kind, true
	}
	return 0, false
}

func inputError(source string, err error) error {
	return &ProcessingError{Kind: KindInput, Source: source, Err: err}
}

func resourceError(source string, err error) error {
	return &ProcessingError{Kind: KindResource, Source: source, Err: err}
}

func integrityError(source string, err error) error {
	return &ProcessingError{Kind: KindIntegrity, Source: source, Err: err}
}
