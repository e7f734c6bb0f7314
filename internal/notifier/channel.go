package notifier

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/wdalert/alertd/internal/types"
)

var (
	// ErrMissingCredential means the env var naming a credential is unset
	ErrMissingCredential = errors.New("missing credential")
	// ErrNoRecipients means a recipient-based channel has nobody to send to
	ErrNoRecipients = errors.New("no recipients configured")
	// ErrUnknownBackend means a backend name has no registered constructor
	ErrUnknownBackend = errors.New("unknown backend")
)

// Channel delivers rendered alerts somewhere. Send reports success and never
// panics on transport failures; each implementation applies its own timeout.
type Channel interface {
	// Name returns the backend identifier (e.g. "telegram", "discord").
	Name() string

	// Send delivers the rendered text for an alert.
	Send(ctx context.Context, alert types.Alert, rendered string) bool
}

// allDelivered reduces per-attempt results by logical and. An empty set of
// attempts counts as failure.
func allDelivered(results []bool) bool {
	if len(results) == 0 {
		return false
	}
	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}
