package core

import "errors"

var (
	// ErrUnknownLayout is returned when no layout is registered under a key.
	ErrUnknownLayout = errors.New("unknown layout")

	// ErrNoValidRows is returned when a commit is refused because a dry run
	// found nothing to import.
	ErrNoValidRows = errors.New("no valid rows to import")

	// ErrHardFail is returned when a caller-defined check rejects a dry run.
	ErrHardFail = errors.New("import rejected by hard-fail check")

	// ErrItemIdentityCollision means two distinct vendor/part/name triples
	// hashed to the same item ID. The batch is aborted rather than merging
	// the two items.
	ErrItemIdentityCollision = errors.New("item identity collision")

	// ErrDuplicateKey is returned by a store when an idempotency key is
	// already present in the imported key set.
	ErrDuplicateKey = errors.New("duplicate idempotency key")

	// ErrImportBusy is returned when another commit holds the import lock and
	// the wait timeout expires.
	ErrImportBusy = errors.New("another import commit is in progress, please try again later")

	// ErrLockLost is the cancellation cause of a commit whose cross-process
	// lock expired or dropped while it was held.
	ErrLockLost = errors.New("commit lock lost")

	// ErrItemStateChanged is returned by RowWriter.PutItem when the stored
	// item no longer matches the state the row was planned against.
	ErrItemStateChanged = errors.New("item state changed concurrently")

	// ErrItemNotFound is returned by item lookups for unknown IDs.
	ErrItemNotFound = errors.New("item not found")
)
