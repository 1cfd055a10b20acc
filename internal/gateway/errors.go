package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/af-corp/fax-gateway/internal/types"
)

// ErrNotConfigured means the account has no provider credentials bound.
// Surfaced as 503; nothing but rebinding credentials fixes it.
var ErrNotConfigured = errors.New("interfax credentials not configured")

// ValidationError is malformed caller input. It never reaches the provider.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ContentUnavailableError means the record, or its attached document, does
// not exist on the provider side.
type ContentUnavailableError struct {
	Direction types.Direction
	ID        string
}

func (e *ContentUnavailableError) Error() string {
	return fmt.Sprintf("fax content not available for %s fax %s", e.Direction, e.ID)
}

// friendlyRewrites maps known provider failure substrings to messages a
// dashboard user can act on. The underlying cause is still logged.
var friendlyRewrites = []struct {
	substring string
	message   string
}{
	{
		"designated fax number",
		"Developer account restriction: you can only send faxes to designated numbers. Contact the provider or upgrade the account.",
	},
	{
		"Invalid recipient",
		"Invalid fax number format. Use international format (e.g., +1555123456).",
	},
	{
		"balance",
		"Insufficient account balance. Add credits to the fax provider account.",
	},
}

// FriendlySendMessage rewrites known provider error text for the caller;
// unrecognized messages pass through unchanged.
func FriendlySendMessage(msg string) string {
	for _, r := range friendlyRewrites {
		if strings.Contains(msg, r.substring) {
			return r.message
		}
	}
	return msg
}
