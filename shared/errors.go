package shared

import (
	"context"
	"errors"
)

// IsCancellation reports whether the provided error stems from a cancelled
// fetch superseded by a newer generation. Cancellation errors are expected
// during reloads and are never logged as failures. Transport timeouts are
// deliberately excluded, those are transient fetch failures.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
