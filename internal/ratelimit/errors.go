package ratelimit

import "errors"

// ErrInvalidIdentifier is returned by the metrics operations when the caller
// identifier fails validation. Check never returns it; invalid identifiers
// are denied through the Result instead.
var ErrInvalidIdentifier = errors.New("invalid rate limit identifier")
