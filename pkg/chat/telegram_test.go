package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type apiCall struct {
	method string
	form   map[string]string
}

type fakeTelegramAPI struct {
	mu    sync.Mutex
	calls []apiCall
}

func (f *fakeTelegramAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		form := map[string]string{}
		for k := range r.Form {
			form[k] = r.Form.Get(k)
		}
		f.mu.Lock()
		f.calls = append(f.calls, apiCall{method: method, form: form})
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "getMe":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Congruity","username":"congruity_bot"}}`))
		case "sendMessage":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":5,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		}
	})
}

func (f *fakeTelegramAPI) last(method string) (apiCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].method == method {
			return f.calls[i], true
		}
	}
	return apiCall{}, false
}

func newTestTelegram(t *testing.T) (*Telegram, *fakeTelegramAPI) {
	t.Helper()
	api := &fakeTelegramAPI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	tg, err := NewTelegram(context.Background(), zaptest.NewLogger(t), TelegramOpts{
		Token:       "123:abc",
		APIEndpoint: srv.URL + "/bot%s/%s",
	})
	require.NoError(t, err)
	return tg, api
}

func TestTelegramSend(t *testing.T) {
	tg, api := newTestTelegram(t)
	assert.Equal(t, "congruity_bot", tg.UserName())

	require.NoError(t, tg.SendText(context.Background(), 42, "<b>hi</b>"))

	call, ok := api.last("sendMessage")
	require.True(t, ok)
	assert.Equal(t, "42", call.form["chat_id"])
	assert.Equal(t, "<b>hi</b>", call.form["text"])
	assert.Equal(t, "HTML", call.form["parse_mode"])
	assert.Equal(t, "true", call.form["disable_web_page_preview"])
	assert.Empty(t, call.form["reply_markup"])
}

func TestTelegramSendKeyboard(t *testing.T) {
	tg, api := newTestTelegram(t)

	require.NoError(t, tg.Send(context.Background(), Message{ChatID: 42, Text: "pick", Keyboard: []string{"a", "b", "all"}}))
	call, ok := api.last("sendMessage")
	require.True(t, ok)

	var markup struct {
		Keyboard [][]struct {
			Text string `json:"text"`
		} `json:"keyboard"`
		OneTime bool `json:"one_time_keyboard"`
	}
	require.NoError(t, json.Unmarshal([]byte(call.form["reply_markup"]), &markup))
	assert.True(t, markup.OneTime)
	require.Len(t, markup.Keyboard, 3)
	assert.Equal(t, "all", markup.Keyboard[2][0].Text)

	require.NoError(t, tg.Send(context.Background(), Message{ChatID: 42, Text: "done", RemoveKeyboard: true}))
	call, _ = api.last("sendMessage")
	assert.Contains(t, call.form["reply_markup"], `"remove_keyboard":true`)
}

func TestTelegramSendCancelled(t *testing.T) {
	tg, api := newTestTelegram(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, tg.SendText(ctx, 42, "late"), context.Canceled)
	_, sent := api.last("sendMessage")
	assert.False(t, sent)
}

func TestTelegramRegisterCommands(t *testing.T) {
	tg, api := newTestTelegram(t)
	require.NoError(t, tg.RegisterCommands())

	call, ok := api.last("setMyCommands")
	require.True(t, ok)
	assert.Contains(t, call.form["commands"], `"command":"subscribe"`)
	assert.Contains(t, call.form["commands"], `"command":"unsubscribe"`)
}

func TestWebhookHandler(t *testing.T) {
	tg, _ := newTestTelegram(t)

	var got []Incoming
	h := tg.WebhookHandler(context.Background(), func(_ context.Context, in Incoming) {
		got = append(got, in)
	})

	body := `{"update_id":10,"message":{"message_id":1,"date":0,"chat":{"id":77,"type":"private"},"text":"/subscribe"}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, WebhookPath("123:abc"), strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Updates without a message are acknowledged and ignored.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, WebhookPath("123:abc"), strings.NewReader(`{"update_id":11}`)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, WebhookPath("123:abc"), strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, []Incoming{{ChatID: 77, Text: "/subscribe"}}, got)
}
