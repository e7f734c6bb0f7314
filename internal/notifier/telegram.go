package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/wdalert/alertd/internal/types"
)

// TelegramLimit is the maximum message length accepted by sendMessage
const TelegramLimit = 4096

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramOptions configures a Telegram channel
type TelegramOptions struct {
	Token             string
	ChatIDs           []string
	ParseMode         string
	DisableWebPreview bool
	Timeout           time.Duration
	// RatePerSecond paces sendMessage calls; zero means unpaced.
	RatePerSecond float64
	APIBase       string
}

// Telegram sends alerts through a Telegram bot to every configured chat
type Telegram struct {
	opts    TelegramOptions
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewTelegram creates a Telegram channel
func NewTelegram(opts TelegramOptions, logger zerolog.Logger) (*Telegram, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("telegram bot token: %w", ErrMissingCredential)
	}
	if len(opts.ChatIDs) == 0 {
		return nil, fmt.Errorf("telegram: %w", ErrNoRecipients)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.APIBase == "" {
		opts.APIBase = defaultTelegramAPI
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}

	return &Telegram{
		opts:    opts,
		client:  newHTTPClient(opts.Timeout),
		limiter: limiter,
		logger:  logger.With().Str("channel", "telegram").Logger(),
	}, nil
}

// Name implements Channel.
func (t *Telegram) Name() string { return "telegram" }

// Send implements Channel. Every chunk is sent to every chat even after a
// failure; the result is true only if all of them succeeded.
func (t *Telegram) Send(ctx context.Context, alert types.Alert, rendered string) bool {
	chunks := SplitMessage(rendered, TelegramLimit)
	results := make([]bool, 0, len(t.opts.ChatIDs)*len(chunks))

	for _, chatID := range t.opts.ChatIDs {
		for i, chunk := range chunks {
			err := t.sendChunk(ctx, chatID, chunk)
			if err != nil {
				t.logger.Warn().
					Err(err).
					Str("event", alert.Event).
					Str("chat_id", chatID).
					Int("chunk", i+1).
					Int("chunks", len(chunks)).
					Msg("Telegram sendMessage failed")
			}
			results = append(results, err == nil)
		}
	}
	return allDelivered(results)
}

type telegramResponse struct {
	OK          *bool  `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) sendChunk(ctx context.Context, chatID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	payload := map[string]any{
		"chat_id":                  chatIDValue(chatID),
		"text":                     text,
		"disable_web_page_preview": t.opts.DisableWebPreview,
	}
	if t.opts.ParseMode != "" {
		payload["parse_mode"] = t.opts.ParseMode
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.opts.APIBase, t.opts.Token)
	body, err := postJSON(ctx, t.client, endpoint, payload)
	if err != nil {
		return err
	}

	var resp telegramResponse
	if json.Unmarshal(body, &resp) == nil && resp.OK != nil && !*resp.OK {
		return fmt.Errorf("telegram api error: %s", resp.Description)
	}
	return nil
}

// chatIDValue sends numeric ids as numbers and channel usernames as strings
func chatIDValue(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

// SplitMessage cuts msg into successive pieces of at most limit characters.
// A message within the limit is returned as a single piece.
func SplitMessage(msg string, limit int) []string {
	runes := []rune(msg)
	if limit <= 0 || len(runes) <= limit {
		return []string{msg}
	}

	chunks := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
