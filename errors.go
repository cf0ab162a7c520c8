package s3transfer

import "errors"

// Exported sentinels, kept deliberately few: retrystrategy.ErrorClass
// carries most retry semantics, so these cover only the handful of
// orchestrator-level conditions a caller might branch on.
var (
	// ErrShuttingDown is returned by MakeMetaRequest once the client has
	// begun shutting down, and is used to cancel in-flight meta-requests
	// that haven't yet finished when shutdown starts.
	ErrShuttingDown = errors.New("s3transfer: client is shutting down")
	// ErrMetaRequestCancelled is the default cancellation cause used by
	// MetaRequest.Cancel when the caller doesn't supply one of its own.
	ErrMetaRequestCancelled = errors.New("s3transfer: meta-request cancelled")
)
