package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdalert/alertd/internal/types"
)

func testAlert() types.Alert {
	return types.NewAlert("disk_low", types.SeverityWarning, "Disk Low", "/data at 92%",
		map[string]any{"mount": "/data", "api_token": "secret"}, time.Unix(1700000000, 0))
}

type telegramCall struct {
	Path    string
	Payload map[string]any
}

// telegramServer records every sendMessage call; fail decides per call
// whether to reject it.
func telegramServer(t *testing.T, fail func(n int32, payload map[string]any) bool) (*httptest.Server, func() []telegramCall, *atomic.Int32) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []telegramCall
		count atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		n := count.Add(1)

		mu.Lock()
		calls = append(calls, telegramCall{Path: r.URL.Path, Payload: payload})
		mu.Unlock()

		if fail != nil && fail(n, payload) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	snapshot := func() []telegramCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]telegramCall(nil), calls...)
	}
	return srv, snapshot, &count
}

func newTestTelegram(t *testing.T, base string, chatIDs ...string) *Telegram {
	t.Helper()
	tg, err := NewTelegram(TelegramOptions{
		Token:             "123:abc",
		ChatIDs:           chatIDs,
		ParseMode:         "HTML",
		DisableWebPreview: true,
		Timeout:           2 * time.Second,
		APIBase:           base,
	}, zerolog.Nop())
	require.NoError(t, err)
	return tg
}

func TestNewTelegram_Validation(t *testing.T) {
	_, err := NewTelegram(TelegramOptions{ChatIDs: []string{"1"}}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrMissingCredential)

	_, err = NewTelegram(TelegramOptions{Token: "x"}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestTelegram_SendPayload(t *testing.T) {
	srv, calls, _ := telegramServer(t, nil)
	tg := newTestTelegram(t, srv.URL, "-1001", "@ops")

	ok := tg.Send(context.Background(), testAlert(), "hello")
	require.True(t, ok)
	require.Len(t, calls(), 2)

	first := calls()[0]
	assert.Equal(t, "/bot123:abc/sendMessage", first.Path)
	assert.Equal(t, float64(-1001), first.Payload["chat_id"])
	assert.Equal(t, "hello", first.Payload["text"])
	assert.Equal(t, "HTML", first.Payload["parse_mode"])
	assert.Equal(t, true, first.Payload["disable_web_page_preview"])

	assert.Equal(t, "@ops", calls()[1].Payload["chat_id"])
}

func TestTelegram_ChunksLongMessages(t *testing.T) {
	for _, k := range []int{1, 2, 3} {
		srv, calls, _ := telegramServer(t, nil)
		tg := newTestTelegram(t, srv.URL, "42")

		text := strings.Repeat("x", TelegramLimit*k+1)
		require.True(t, tg.Send(context.Background(), testAlert(), text))
		assert.Len(t, calls(), k+1, "k=%d", k)

		var rebuilt strings.Builder
		for _, c := range calls() {
			rebuilt.WriteString(c.Payload["text"].(string))
		}
		assert.Equal(t, text, rebuilt.String())
	}
}

func TestTelegram_ChunksPerRecipient(t *testing.T) {
	srv, calls, _ := telegramServer(t, nil)
	tg := newTestTelegram(t, srv.URL, "1", "2")

	require.True(t, tg.Send(context.Background(), testAlert(), strings.Repeat("y", TelegramLimit+1)))
	assert.Len(t, calls(), 4)
}

func TestTelegram_PartialFailureKeepsGoing(t *testing.T) {
	srv, calls, _ := telegramServer(t, func(n int32, _ map[string]any) bool { return n == 1 })
	tg := newTestTelegram(t, srv.URL, "1", "2")

	ok := tg.Send(context.Background(), testAlert(), strings.Repeat("z", TelegramLimit*2+1))
	assert.False(t, ok)
	assert.Len(t, calls(), 6, "remaining chunks and recipients are still attempted")
}

func TestTelegram_APIErrorWithOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	tg := newTestTelegram(t, srv.URL, "1")
	assert.False(t, tg.Send(context.Background(), testAlert(), "hi"))
}

func TestTelegram_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	tg, err := NewTelegram(TelegramOptions{
		Token:   "t",
		ChatIDs: []string{"1"},
		Timeout: 100 * time.Millisecond,
		APIBase: srv.URL,
	}, zerolog.Nop())
	require.NoError(t, err)

	start := time.Now()
	assert.False(t, tg.Send(context.Background(), testAlert(), "hi"))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTelegram_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	tg := newTestTelegram(t, base, "1")
	assert.False(t, tg.Send(context.Background(), testAlert(), "hi"))
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{""}, SplitMessage("", 10))
	assert.Equal(t, []string{"abc"}, SplitMessage("abc", 3))
	assert.Equal(t, []string{"abc", "d"}, SplitMessage("abcd", 3))

	// multi-byte characters count once and are never cut in half
	parts := SplitMessage(strings.Repeat("é", 7), 3)
	require.Len(t, parts, 3)
	for _, p := range parts {
		assert.True(t, utf8.ValidString(p))
	}
	assert.Equal(t, 3, utf8.RuneCountInString(parts[0]))
	assert.Equal(t, 1, utf8.RuneCountInString(parts[2]))
}

func TestAllDelivered(t *testing.T) {
	assert.False(t, allDelivered(nil))
	assert.True(t, allDelivered([]bool{true, true}))
	assert.False(t, allDelivered([]bool{true, false, true}))
}
