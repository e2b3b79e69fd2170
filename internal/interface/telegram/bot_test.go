package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streakbot/habit-streak-bot/internal/application/service"
	"github.com/streakbot/habit-streak-bot/internal/infrastructure/external/telegram"
	"github.com/streakbot/habit-streak-bot/internal/infrastructure/persistence/sqlite"
	"github.com/streakbot/habit-streak-bot/internal/interface/telegram/handler"
	"github.com/streakbot/habit-streak-bot/pkg/timeutil"
)

// fakeAPI is a minimal Bot API server.
type fakeAPI struct {
	t *testing.T

	mu      sync.Mutex
	sent    []string
	methods []string
	updates []telegram.Update
	served  bool
	onDrain func()
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.methods = append(f.methods, method)
	f.mu.Unlock()

	var result any
	switch method {
	case "getMe":
		result = telegram.User{ID: 1, IsBot: true, FirstName: "streakbot", Username: "streakbot"}
	case "deleteWebhook":
		result = true
	case "sendMessage":
		f.mu.Lock()
		f.sent = append(f.sent, body["text"].(string))
		f.mu.Unlock()
		result = telegram.Message{MessageID: 1, Chat: &telegram.Chat{ID: 1}}
	case "getUpdates":
		f.mu.Lock()
		if !f.served {
			f.served = true
			result = f.updates
		} else {
			result = []telegram.Update{}
			if f.onDrain != nil {
				f.onDrain()
			}
		}
		f.mu.Unlock()
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	raw, err := json.Marshal(result)
	require.NoError(f.t, err)
	require.NoError(f.t, json.NewEncoder(w).Encode(telegram.APIResponse{OK: true, Result: raw}))
}

func (f *fakeAPI) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type countingMetrics struct {
	mu      sync.Mutex
	updates map[string]int
}

func (m *countingMetrics) Update(command string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updates == nil {
		m.updates = map[string]int{}
	}
	m.updates[command]++
}

func (m *countingMetrics) Retry(string) {}

func newTestBot(t *testing.T, api *fakeAPI, metrics Metrics) (*Bot, *timeutil.FixedClock) {
	t.Helper()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	store, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(filepath.Join(t.TempDir(), "bot.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := timeutil.NewFixedClockOn(timeutil.NewDate(2025, 6, 1))
	svc := service.NewHabitService(store, clock, service.Options{})

	cfg := DefaultBotConfig("TOKEN")
	cfg.BaseURL = srv.URL
	cfg.PollingTimeout = 0
	cfg.RequestTimeout = 5 * time.Second

	bot, err := NewBot(cfg, BotDependencies{Service: svc, Metrics: metrics})
	require.NoError(t, err)
	return bot, clock
}

func textUpdate(id int64, from int64, text string) *telegram.Update {
	msg := &telegram.Message{
		MessageID: id,
		From:      &telegram.User{ID: from, FirstName: "user"},
		Chat:      &telegram.Chat{ID: from, Type: "private"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		n := strings.IndexByte(text, ' ')
		if n < 0 {
			n = len(text)
		}
		msg.Entities = []telegram.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}}
	}
	return &telegram.Update{UpdateID: id, Message: msg}
}

func TestNewBot_Validation(t *testing.T) {
	_, err := NewBot(BotConfig{}, BotDependencies{})
	assert.Error(t, err)

	_, err = NewBot(DefaultBotConfig("TOKEN"), BotDependencies{})
	assert.Error(t, err)
}

func TestBot_Conversation(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{t: t}
	metrics := &countingMetrics{}
	bot, clock := newTestBot(t, api, metrics)

	steps := []struct {
		text string
		want string
	}{
		{"/start", "Hi! I keep track"},
		{"/add", "Send the name of the new habit"},
		{"Drink water", `Habit "Drink water" added (ID: 1).`},
		{"/add Go", "too short"},
		{"/add Drink water", "already have a habit"},
		{"/done 1", "1 day in a row"},
		{"/done 1", "already done today"},
		{"/today", "All habits are done for today"},
		{"/history 1", "2025-06-01"},
		{"/frobnicate", "Unknown command"},
		{"hello", "Send /start"},
	}

	for i, step := range steps {
		require.NoError(t, bot.HandleUpdate(ctx, textUpdate(int64(i+1), 42, step.text)), step.text)
	}

	sent := api.Sent()
	require.Len(t, sent, len(steps))
	for i, step := range steps {
		assert.Contains(t, sent[i], step.want, step.text)
	}

	clock.AdvanceDays(1)
	require.NoError(t, bot.HandleUpdate(ctx, textUpdate(100, 42, "/done@streakbot 1")))
	assert.Contains(t, api.Sent()[len(steps)], "2 days in a row")

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 3, metrics.updates["done"])
	assert.Equal(t, 2, metrics.updates[LabelText])
	assert.Equal(t, 1, metrics.updates[LabelUnknown])
}

func TestBot_OwnersAreIsolated(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{t: t}
	bot, _ := newTestBot(t, api, nil)

	require.NoError(t, bot.HandleUpdate(ctx, textUpdate(1, 10, "/add Evening walk")))
	require.NoError(t, bot.HandleUpdate(ctx, textUpdate(2, 20, "/done 1")))
	require.NoError(t, bot.HandleUpdate(ctx, textUpdate(3, 20, "/list")))
	require.NoError(t, bot.HandleUpdate(ctx, textUpdate(4, 10, "/list")))

	sent := api.Sent()
	require.Len(t, sent, 4)
	assert.Contains(t, sent[1], "Habit not found")
	assert.Contains(t, sent[2], "no habits yet")
	assert.Contains(t, sent[3], "Evening walk (ID: 1)")
}

func TestBot_IgnoresNonMessages(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{t: t}
	bot, _ := newTestBot(t, api, nil)

	require.NoError(t, bot.HandleUpdate(ctx, &telegram.Update{UpdateID: 1}))

	botMsg := textUpdate(2, 99, "/list")
	botMsg.Message.From.IsBot = true
	require.NoError(t, bot.HandleUpdate(ctx, botMsg))

	assert.Empty(t, api.Sent())
}

func TestBot_StartPolls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := &fakeAPI{t: t, onDrain: cancel}
	api.updates = []telegram.Update{*textUpdate(1, 7, "/add Cold shower"), *textUpdate(2, 7, "/list")}
	bot, _ := newTestBot(t, api, nil)

	done := make(chan error, 1)
	go func() { done <- bot.Start(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bot did not stop")
	}
	assert.False(t, bot.IsRunning())

	api.mu.Lock()
	assert.Equal(t, []string{"getMe", "deleteWebhook"}, api.methods[:2])
	api.mu.Unlock()

	sent := api.Sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], "Cold shower")
	assert.Contains(t, sent[1], "Cold shower (ID: 1)")
}

func TestRouter_Label(t *testing.T) {
	r := NewRouter()
	r.RegisterCommand("Done", func(context.Context, handler.Request) (string, error) { return "", nil })

	assert.Equal(t, "done", r.Label(textUpdate(1, 1, "/done 3").Message))
	assert.Equal(t, LabelUnknown, r.Label(textUpdate(1, 1, "/nope").Message))
	assert.Equal(t, LabelText, r.Label(textUpdate(1, 1, "plain").Message))
}
