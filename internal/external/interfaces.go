package external

import (
	"context"

	"mailmerge/internal/types"
)

// EmailProvider sends a single email on behalf of the dispatcher. A nil
// return means the provider accepted the message; any rejection, including
// provider responses that report failure in the payload rather than the
// status code, is surfaced as an error.
type EmailProvider interface {
	Send(ctx context.Context, input types.SendInput) error
}
