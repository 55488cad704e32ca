package utils

import "errors"

var (
	// ErrMalformedIdentity marks a document whose reservation identity could
	// not be derived, or whose filename hint contradicts its content.
	ErrMalformedIdentity = errors.New("malformed reservation identity")

	// ErrExtractionFailed marks a document the field extractor could not turn
	// into a candidate. Not retried within a run.
	ErrExtractionFailed = errors.New("field extraction failed")

	// ErrStoreUnavailable marks a transient persistence failure; the document
	// is deferred to the next run rather than audited as processed.
	ErrStoreUnavailable = errors.New("persisted store unavailable")
)
