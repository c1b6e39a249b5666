// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package fileprocessor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// availableBytes returns the bytes available to unprivileged writers
// on the filesystem holding path.
func availableBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// checkFreeSpace fails when writing need more bytes under path would
// leave less than floor bytes free. A negative need means the size is
// unknown and only the floor is checked.
func checkFreeSpace(path string, need int64, floor uint64) error {
	if floor == 0 && need <= 0 {
		return nil
	}
	available, err := availableBytes(path)
	if err != nil {
		return err
	}
	required := floor
	if need > 0 {
		required += uint64(need)
	}
	if available < required {
		return fmt.Errorf("%w: %d bytes available under %s, need %d", ErrInsufficientSpace, available, path, required)
	}
	return nil
}
