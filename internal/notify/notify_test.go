package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"position_opened"}, []string{"stuck"}, discardLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, "position_closed", "closed", ""))
	require.NoError(t, n.Notify(ctx, "position_opened", "opened", ""))
	require.NoError(t, n.Notify(ctx, "stuck", "stuck", ""))

	assert.Equal(t, []string{"opened", "[CRITICAL] stuck"}, s.titles)
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, nil, discardLogger())
	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Len(t, s.titles, 1)
	assert.True(t, n.Enabled())
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.titles, 1)
}

func TestDiscordSenderPostsEmbed(t *testing.T) {
	var got []discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var p discordPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		got = append(got, p)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	require.NoError(t, d.Send(context.Background(), "Opened", "short_a_long_b 0.1"))
	require.NoError(t, d.Send(context.Background(), criticalPrefix+"Stuck", "rollback failed"))

	require.Len(t, got, 2)
	assert.Equal(t, "hedgebot", got[0].Username)
	require.Len(t, got[0].Embeds, 1)
	assert.Equal(t, "Opened", got[0].Embeds[0].Title)
	assert.Equal(t, "short_a_long_b 0.1", got[0].Embeds[0].Description)
	assert.Equal(t, colorInfo, got[0].Embeds[0].Color)
	assert.Equal(t, colorCritical, got[1].Embeds[0].Color)
}

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab…", truncate("abcd", 3))
	assert.Equal(t, "éé…", truncate("éééé", 3))
}

func TestDiscordSenderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestTelegramSenderUsesBotAPI(t *testing.T) {
	var (
		mu   sync.Mutex
		text string
		chat string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"hedge","username":"hedgebot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			mu.Lock()
			text, chat = r.Form.Get("text"), r.Form.Get("chat_id")
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s, err := NewTelegramSender("TOKEN", "42")
	require.NoError(t, err)
	s.endpoint = srv.URL + "/bot%s/%s"

	require.NoError(t, s.Send(context.Background(), "Stuck", "manual intervention"))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "42", chat)
	assert.Contains(t, text, "*Stuck*")
	assert.Contains(t, text, "manual intervention")
}

func TestTelegramSenderRejectsBadChatID(t *testing.T) {
	_, err := NewTelegramSender("TOKEN", "not-a-number")
	assert.Error(t, err)
}
