package tilestream

import "errors"

// Sentinel errors returned by the Manager and Resource APIs.
var (
	// ErrInvalidConfig is returned when a Config is inconsistent.
	ErrInvalidConfig = errors.New("tilestream: invalid config")

	// ErrFeedbackSize is returned when a feedback buffer does not hold one
	// byte per mip-0 tile.
	ErrFeedbackSize = errors.New("tilestream: feedback size does not match tile grid")

	// ErrBackendFailed wraps the error that stopped the upload pipeline.
	ErrBackendFailed = errors.New("tilestream: backend failed")

	// ErrClosed is returned by operations on a closed manager.
	ErrClosed = errors.New("tilestream: manager closed")

	// ErrHeapTooSmall is returned when a texture's packed tail alone needs
	// more slots than the heap has.
	ErrHeapTooSmall = errors.New("tilestream: heap too small")

	// ErrUnknownResource is returned when removing a resource the manager
	// does not own.
	ErrUnknownResource = errors.New("tilestream: resource not owned by this manager")
)
