package notifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/wdalert/alertd/internal/types"
)

// Apprise sends alerts through an Apprise API server. The configured URL is
// the full notify endpoint, e.g. http://apprise:8000/notify/ops.
type Apprise struct {
	url     string
	title   string
	timeout time.Duration
	client  *http.Client
	logger  zerolog.Logger
}

// NewApprise creates an Apprise channel
func NewApprise(notifyURL, title string, timeout time.Duration, logger zerolog.Logger) (*Apprise, error) {
	if notifyURL == "" {
		return nil, fmt.Errorf("apprise notify url: %w", ErrMissingCredential)
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Apprise{
		url:     notifyURL,
		title:   title,
		timeout: timeout,
		client:  newHTTPClient(timeout),
		logger:  logger.With().Str("channel", "apprise").Logger(),
	}, nil
}

// Name implements Channel.
func (a *Apprise) Name() string { return "apprise" }

// Send implements Channel.
func (a *Apprise) Send(ctx context.Context, alert types.Alert, rendered string) bool {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	payload := map[string]string{
		"title":  a.formatTitle(alert),
		"body":   rendered,
		"type":   appriseType(alert.Level),
		"format": "text",
	}
	if _, err := postJSON(ctx, a.client, a.url, payload); err != nil {
		a.logger.Error().
			Err(err).
			Str("event", alert.Event).
			Str("url", redactURL(a.url)).
			Msg("Failed to send notification")
		return false
	}

	a.logger.Debug().
		Str("event", alert.Event).
		Msg("Notification sent")
	return true
}

// formatTitle prefixes the alert title with a severity marker
func (a *Apprise) formatTitle(alert types.Alert) string {
	var emoji string
	switch alert.Level {
	case types.SeverityCritical, types.SeverityError:
		emoji = "🔴"
	case types.SeverityWarning:
		emoji = "⚠️"
	default:
		emoji = "ℹ️"
	}

	title := alert.Title
	if a.title != "" {
		title = a.title + ": " + title
	}
	return fmt.Sprintf("%s %s", emoji, title)
}

// appriseType maps a severity to Apprise's notification type
func appriseType(level types.Severity) string {
	switch level {
	case types.SeverityCritical, types.SeverityError:
		return "failure"
	case types.SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}
