package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Input validation errors
	ErrInvalidConfidence = errors.New("confidence must be within [0, 1]")
	ErrInvalidDifficulty = errors.New("difficulty must be within [0, 1]")
	ErrStaleTimestamp    = errors.New("validation timestamp predates agent's last update")

	// Policy errors
	ErrInvalidPolicy = errors.New("reputation policy invariant violated")

	// Query errors
	ErrInvalidLimit = errors.New("leaderboard limit must be positive")
)
