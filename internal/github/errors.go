package github

import "errors"

// Authorization state-machine failures. All are terminal for the current
// exchange attempt; none are retried, since OAuth codes are single-use
// regardless.
var (
	// ErrStateNotFound means the callback carried a state we never issued.
	ErrStateNotFound = errors.New("authorization state not found")

	// ErrStateAlreadyUsed means the state was consumed by an earlier
	// callback, e.g. a duplicate redirect.
	ErrStateAlreadyUsed = errors.New("authorization state already used")

	// ErrStateExpired means the state outlived its validity window.
	ErrStateExpired = errors.New("authorization state expired")
)
