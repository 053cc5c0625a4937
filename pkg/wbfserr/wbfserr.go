// Package wbfserr defines the error kinds shared by every core package:
// the split backend, the Wii disc walker, the WBFS container, and the
// scrubber all surface one of these sentinels (wrapped with context via
// fmt.Errorf's %w) rather than ad-hoc error strings, so callers can
// errors.Is against a stable contract.
package wbfserr

import "errors"

var (
	// IoError means an underlying read, write, seek, or truncate failed.
	IoError = errors.New("wbfs: io error")

	// FormatError means on-disk magic mismatch, an impossible size, or an
	// unrecognized partition layout.
	FormatError = errors.New("wbfs: format error")

	// IntegrityError means the superblock's recorded geometry disagrees
	// with the device's reported geometry and force mode was not set.
	IntegrityError = errors.New("wbfs: integrity error")

	// FullError means an add failed because the free bitmap had
	// insufficient free blocks.
	FullError = errors.New("wbfs: container full")

	// DuplicateError means an add was refused because a disc slot with
	// the same game id is already occupied.
	DuplicateError = errors.New("wbfs: duplicate game id")

	// NotFoundError means an extract was refused because no slot holds
	// the requested game id. Remove treats a missing game id as success
	// and does not return it.
	NotFoundError = errors.New("wbfs: disc not found")

	// AbortError means the caller's progress callback requested
	// cancellation.
	AbortError = errors.New("wbfs: aborted")
)
