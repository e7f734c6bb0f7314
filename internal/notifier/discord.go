package notifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/wdalert/alertd/internal/types"
)

// Discord posts alerts to a single Discord webhook
type Discord struct {
	url     string
	timeout time.Duration
	client  *http.Client
	logger  zerolog.Logger
}

// NewDiscord creates a Discord webhook channel
func NewDiscord(webhookURL string, timeout time.Duration, logger zerolog.Logger) (*Discord, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("discord webhook url: %w", ErrMissingCredential)
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Discord{
		url:     webhookURL,
		timeout: timeout,
		client:  newHTTPClient(timeout),
		logger:  logger.With().Str("channel", "discord").Logger(),
	}, nil
}

// Name implements Channel.
func (d *Discord) Name() string { return "discord" }

// Send implements Channel.
func (d *Discord) Send(ctx context.Context, alert types.Alert, rendered string) bool {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if _, err := postJSON(ctx, d.client, d.url, map[string]string{"content": rendered}); err != nil {
		d.logger.Warn().
			Err(err).
			Str("event", alert.Event).
			Str("url", redactURL(d.url)).
			Msg("Discord webhook failed")
		return false
	}
	return true
}
