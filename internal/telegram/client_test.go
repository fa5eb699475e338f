package telegram_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/pollbot/internal/selector"
	"github.com/edgard/pollbot/internal/telegram"
)

const testToken = "123456:TEST-TOKEN"

type fakeAPI struct {
	t       *testing.T
	getMe   atomic.Int32
	updates string

	mu       sync.Mutex
	lastForm map[string]string
}

func (f *fakeAPI) form() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastForm
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := "/bot" + testToken + "/"
	w.Header().Set("Content-Type", "application/json")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case prefix + "getUpdates":
		assert.Equal(f.t, http.MethodGet, r.Method)
		f.lastForm = map[string]string{
			"offset":          r.URL.Query().Get("offset"),
			"timeout":         r.URL.Query().Get("timeout"),
			"allowed_updates": r.URL.Query().Get("allowed_updates"),
		}
		_, _ = io.WriteString(w, f.updates)
	case prefix + "getMe":
		f.getMe.Add(1)
		_, _ = io.WriteString(w, `{"ok":true,"result":{"id":99,"is_bot":true,"first_name":"Poll","username":"pollbot"}}`)
	case prefix + "sendMessage", prefix + "editMessageText":
		if !assert.NoError(f.t, r.ParseMultipartForm(1<<20)) {
			return
		}
		f.lastForm = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			f.lastForm[k] = v[0]
		}
		if f.lastForm["chat_id"] == "-1" {
			_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
			return
		}
		_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"message_id":42,"date":1,"chat":{"id":%s,"type":"private"},"text":"x"}}`, f.lastForm["chat_id"])
	case prefix + "sendPhoto":
		_, header, err := r.FormFile("photo")
		if !assert.NoError(f.t, err) {
			return
		}
		f.lastForm = map[string]string{"chat_id": r.FormValue("chat_id"), "filename": header.Filename}
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":43,"date":1,"chat":{"id":7,"type":"private"}}}`)
	case prefix + "getFile":
		switch r.FormValue("file_id") {
		case "voice-1":
			_, _ = io.WriteString(w, `{"ok":true,"result":{"file_id":"voice-1","file_unique_id":"u1","file_size":5,"file_path":"voice/file_1.oga"}}`)
		case "broken":
			_, _ = io.WriteString(w, `{"ok":true,"result":{"file_id":"broken","file_unique_id":"u2","file_size":5,"file_path":"voice/missing.oga"}}`)
		default:
			_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: invalid file_id"}`)
		}
	case "/file/bot" + testToken + "/voice/file_1.oga":
		_, _ = io.WriteString(w, "OggS!")
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, api *fakeAPI) *telegram.Client {
	t.Helper()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := telegram.NewClient(testToken, telegram.Options{
		ServerURL:      srv.URL,
		RequestTimeout: 5 * time.Second,
		HTTPClient:     srv.Client(),
	}, nil)
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresToken(t *testing.T) {
	t.Parallel()

	_, err := telegram.NewClient("", telegram.Options{}, nil)
	assert.Error(t, err)
}

func TestGetUpdates(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{t: t, updates: `{"ok":true,"result":[{"update_id":9007199254740993,"message":{"text":"hi"}}]}`}
	c := newTestClient(t, api)

	tree, err := c.GetUpdates(context.Background(), 101, time.Second, []string{"message"})
	require.NoError(t, err)

	assert.Equal(t, "101", api.form()["offset"])
	assert.Equal(t, "1", api.form()["timeout"])
	assert.Equal(t, `["message"]`, api.form()["allowed_updates"])

	id, ok := selector.Int(tree, ".result[0].update_id")
	require.True(t, ok)
	assert.Equal(t, int64(9007199254740993), id, "ids keep full precision")

	text, ok := selector.String(tree, ".result[0].message.text")
	require.True(t, ok)
	assert.Equal(t, "hi", text)
}

func TestGetUpdatesErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
	}{
		{name: "api error", body: `{"ok":false,"error_code":409,"description":"Conflict"}`},
		{name: "not json", body: `<html>bad gateway</html>`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, &fakeAPI{t: t, updates: tc.body})
			tree, err := c.GetUpdates(context.Background(), 0, 0, nil)
			assert.Error(t, err)
			assert.Nil(t, tree)
		})
	}
}

func TestUsernameIsCached(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{t: t}
	c := newTestClient(t, api)

	for range 3 {
		name, err := c.Username(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "pollbot", name)
	}
	assert.Equal(t, int32(1), api.getMe.Load())
}

func TestSendAndEditMessage(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{t: t}
	c := newTestClient(t, api)
	ctx := context.Background()

	sent, ok := c.SendMessage(ctx, 7, "I just *privately* received: hi", 3)
	require.True(t, ok)
	assert.Equal(t, telegram.SentMessage{ChatID: 7, MessageID: 42}, sent)
	assert.Equal(t, "7", api.form()["chat_id"])
	assert.Equal(t, "I just *privately* received: hi", api.form()["text"])
	assert.Equal(t, "Markdown", strings.Trim(api.form()["parse_mode"], `"`))

	var reply struct {
		MessageID int `json:"message_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(api.form()["reply_parameters"]), &reply))
	assert.Equal(t, 3, reply.MessageID)

	var preview struct {
		IsDisabled bool `json:"is_disabled"`
	}
	require.NoError(t, json.Unmarshal([]byte(api.form()["link_preview_options"]), &preview))
	assert.True(t, preview.IsDisabled)

	_, ok = c.SendMessage(ctx, 7, "no reply", 0)
	require.True(t, ok)

	assert.True(t, c.EditMessageText(ctx, 7, 42, "edited"))
	assert.Equal(t, "42", api.form()["message_id"])
	assert.Equal(t, "edited", api.form()["text"])

	_, ok = c.SendMessage(ctx, -1, "nowhere", 0)
	assert.False(t, ok)
	assert.False(t, c.EditMessageText(ctx, -1, 1, "nowhere"))
}

func TestSendImage(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{t: t}
	c := newTestClient(t, api)

	path := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG"), 0o600))

	assert.True(t, c.SendImage(context.Background(), 7, path))
	assert.Equal(t, "chart.png", api.form()["filename"])

	assert.False(t, c.SendImage(context.Background(), 7, filepath.Join(t.TempDir(), "missing.png")))
}

func TestGetFile(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &fakeAPI{t: t})
	ctx := context.Background()
	dir := t.TempDir()

	target := filepath.Join(dir, "audio.oga")
	require.True(t, c.GetFile(ctx, "voice-1", target))
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "OggS!", string(data))

	partial := filepath.Join(dir, "partial.oga")
	assert.False(t, c.GetFile(ctx, "broken", partial))
	assert.NoFileExists(t, partial)

	assert.False(t, c.GetFile(ctx, "unknown", filepath.Join(dir, "never.oga")))
	assert.NoFileExists(t, filepath.Join(dir, "never.oga"))
}
