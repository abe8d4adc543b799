package cache

import "errors"

var (
	// ErrStoreUnavailable wraps Redis transport failures and timeouts.
	// Callers see it instead of raw driver errors so they can decide on
	// retry or degraded behaviour; this package never guesses an outcome.
	ErrStoreUnavailable = errors.New("view cache store unavailable")

	// ErrBadCachePayload signals a cached value that could not be parsed.
	// Kept distinct from ErrStoreUnavailable: the store answered, but with garbage.
	ErrBadCachePayload = errors.New("malformed view cache payload")

	// ErrInvalidKeyFormat signals a key that does not match the view count scheme.
	ErrInvalidKeyFormat = errors.New("invalid view count key format")

	// ErrUnsupportedViewerType signals a viewer type the key strategy does not
	// know. This is a programmer error, not a transient condition.
	ErrUnsupportedViewerType = errors.New("unsupported viewer type")
)
