package domain

import "errors"

// Error taxonomy for the scoring pipeline.
var (
	// ErrSchema indicates a required claim field is absent. It rejects the
	// single item, never a whole batch.
	ErrSchema = errors.New("claim schema error")

	// ErrModelUnavailable indicates a trained model could not be loaded.
	// The service degrades to fallback mode rather than failing requests.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrRangeViolation indicates a computed probability or score escaped
	// its guaranteed bounds. This is a contract violation and must surface
	// loudly, never be silently clamped.
	ErrRangeViolation = errors.New("range violation")
)
