package db

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable means the store could not be reached. Callers should
	// tell the user to retry later rather than report a hard failure.
	ErrUnavailable = errors.New("storage temporarily unavailable")
)

// classify maps driver errors onto the store's error taxonomy so callers can
// distinguish "no such record" from "try again later".
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case errors.Is(err, context.DeadlineExceeded),
		mongo.IsTimeout(err),
		mongo.IsNetworkError(err):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}
