package glob

import "errors"

// Sentinel errors for glob resolution.
var (
	// ErrMalformedPattern indicates a syntactically invalid glob pattern.
	ErrMalformedPattern = errors.New("malformed glob pattern")
	// ErrNoMatches indicates an include pattern matched no files under ERROR strictness.
	ErrNoMatches = errors.New("include pattern matched no files")
	// ErrConjunctionUnsatisfied indicates the include set as a whole matched nothing.
	ErrConjunctionUnsatisfied = errors.New("no include pattern matched any files")
	// ErrEmptyInclude indicates a request with an empty include pattern set.
	ErrEmptyInclude = errors.New("include pattern set is empty")
	// ErrInvalidPolicy indicates a strictness or conjunction value outside the enum.
	ErrInvalidPolicy = errors.New("invalid matching policy")
)
