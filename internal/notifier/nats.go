package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/wdalert/alertd/internal/render"
	"github.com/wdalert/alertd/internal/types"
)

// Publisher is the part of *nats.Conn the NATS channel needs
type Publisher interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
}

// Envelope is the JSON message published for each alert
type Envelope struct {
	Event     string         `json:"event"`
	Level     string         `json:"level"`
	Title     string         `json:"title"`
	Text      string         `json:"text"`
	Fields    map[string]any `json:"fields,omitempty"`
	Rendered  string         `json:"rendered"`
	Timestamp time.Time      `json:"timestamp"`
}

// NATS publishes alerts to a subject. Success means the server acknowledged
// the flush within the timeout.
type NATS struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewNATS wraps an existing publisher
func NewNATS(pub Publisher, subject string, timeout time.Duration, logger zerolog.Logger) (*NATS, error) {
	if pub == nil {
		return nil, fmt.Errorf("nats publisher: %w", ErrMissingCredential)
	}
	if subject == "" {
		return nil, fmt.Errorf("nats: %w", ErrNoRecipients)
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &NATS{
		pub:     pub,
		subject: subject,
		timeout: timeout,
		logger:  logger.With().Str("channel", "nats").Str("subject", subject).Logger(),
	}, nil
}

// DialNATS connects to a server and returns a channel owning the connection.
// The initial connect is retried in the background so a broker that is down
// at startup does not disable the channel.
func DialNATS(url, subject string, timeout time.Duration, logger zerolog.Logger) (*NATS, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url: %w", ErrMissingCredential)
	}
	log := logger.With().Str("channel", "nats").Logger()

	nc, err := nats.Connect(
		url,
		nats.Name("alertd"),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	ch, err := NewNATS(nc, subject, timeout, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}
	ch.conn = nc
	return ch, nil
}

// Name implements Channel.
func (n *NATS) Name() string { return "nats" }

// Send implements Channel.
func (n *NATS) Send(ctx context.Context, alert types.Alert, rendered string) bool {
	if err := n.publish(ctx, alert, rendered); err != nil {
		n.logger.Warn().
			Err(err).
			Str("event", alert.Event).
			Msg("NATS publish failed")
		return false
	}
	return true
}

func (n *NATS) publish(ctx context.Context, alert types.Alert, rendered string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := Envelope{
		Event:     alert.Event,
		Level:     string(alert.Level),
		Title:     alert.Title,
		Text:      alert.Text,
		Rendered:  rendered,
		Timestamp: alert.Time.UTC(),
	}
	for k, v := range alert.Fields() {
		if v == nil || render.Redacted(k) {
			continue
		}
		if env.Fields == nil {
			env.Fields = make(map[string]any)
		}
		env.Fields[k] = v
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	timeout := n.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := n.pub.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Close drains the connection when the channel dialed it itself
func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
