// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/config"
	convctx "github.com/jeranaias/rigchat/internal/context"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// FAKE OLLAMA
// =============================================================================

type fakeOllama struct {
	down      atomic.Bool
	tagsCalls atomic.Int32
	chatLines []string
	pullLines []string
	deleteErr string
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.down.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	switch r.URL.Path {
	case "/api/tags":
		f.tagsCalls.Add(1)
		fmt.Fprint(w, `{"models":[{"name":"llama3.2:1b","size":1300000000,"details":{"family":"llama"}}]}`)
	case "/api/chat":
		for _, l := range f.chatLines {
			fmt.Fprintln(w, l)
			w.(http.Flusher).Flush()
		}
	case "/api/pull":
		for _, l := range f.pullLines {
			fmt.Fprintln(w, l)
			w.(http.Flusher).Flush()
		}
	case "/api/delete":
		if f.deleteErr != "" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"error":%q}`, f.deleteErr)
		}
	default:
		http.NotFound(w, r)
	}
}

type harness struct {
	srv    *Server
	store  storage.Store
	ollama *fakeOllama
}

func newHarness(t *testing.T, mutate func(*config.ServerConfig)) *harness {
	t.Helper()

	fake := &fakeOllama{
		chatLines: []string{
			`{"message":{"role":"assistant","content":"Hel"},"done":false}`,
			`{"message":{"role":"assistant","content":"lo!"},"done":false}`,
			`{"done":true,"eval_count":2}`,
		},
		pullLines: []string{
			`{"status":"pulling manifest"}`,
			`{"status":"downloading","digest":"sha256:abc","total":100,"completed":50}`,
			`{"status":"success"}`,
		},
	}
	upstream := httptest.NewServer(fake)
	t.Cleanup(upstream.Close)

	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:           upstream.URL,
		ConnectTimeout:    time.Second,
		StreamReadTimeout: 2 * time.Second,
		RequestTimeout:    2 * time.Second,
		HealthTimeout:     time.Second,
	})

	store, err := storage.NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	builder, err := convctx.NewBuilder(convctx.DefaultConfig(), store)
	require.NoError(t, err)
	svc := chat.NewService(store, builder, chat.NewOllamaGateway(client), "llama3.2:1b", zerolog.Nop())

	cfg := config.Default().Server
	cfg.RateLimit = 0
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := New(Options{
		Config: cfg,
		Store:  store,
		Chat:   svc,
		Ollama: client,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	return &harness{srv: srv, store: store, ollama: fake}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// events parses a text/event-stream body into its JSON payloads.
func events(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev), line)
		out = append(out, ev)
	}
	return out
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHandleHealth(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["ollama_connected"])

	h.ollama.down.Store(true)
	body = decode(t, h.do(t, http.MethodGet, "/api/health", ""))
	assert.Equal(t, false, body["ollama_connected"])
}

func TestHandleDependencies(t *testing.T) {
	h := newHarness(t, nil)

	body := decode(t, h.do(t, http.MethodGet, "/api/dependencies", ""))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["all_ok"])
	dep := body["ollama"].(map[string]any)
	assert.Equal(t, "running", dep["status"])
	assert.Equal(t, true, dep["installed"])

	h.ollama.down.Store(true)
	body = decode(t, h.do(t, http.MethodGet, "/api/dependencies", ""))
	assert.Equal(t, false, body["all_ok"])
	dep = body["ollama"].(map[string]any)
	assert.Equal(t, false, dep["running"])
	assert.NotEqual(t, "running", dep["status"])
}

// =============================================================================
// MODELS
// =============================================================================

func TestHandleModels(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(t, http.MethodGet, "/api/models", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 1, body["total_installed"])
	assert.NotEmpty(t, body["popular_models"])

	all := body["all_models"].([]any)
	assert.EqualValues(t, len(all), body["total_available"])
	var found bool
	for _, e := range all {
		entry := e.(map[string]any)
		if entry["name"] == "llama3.2:1b" {
			found = true
			assert.Equal(t, true, entry["installed"])
		}
	}
	assert.True(t, found, "installed model appears in catalog")

	// Cached until refresh is asked for.
	calls := h.ollama.tagsCalls.Load()
	h.do(t, http.MethodGet, "/api/models", "")
	assert.Equal(t, calls, h.ollama.tagsCalls.Load())
	h.do(t, http.MethodGet, "/api/models?refresh=true", "")
	assert.Equal(t, calls+1, h.ollama.tagsCalls.Load())
}

func TestHandleModels_OllamaDown(t *testing.T) {
	h := newHarness(t, nil)
	h.ollama.down.Store(true)

	w := h.do(t, http.MethodGet, "/api/models", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 0, body["total_installed"])
	assert.NotEmpty(t, body["all_models"])
}

func TestHandleModelCheck(t *testing.T) {
	h := newHarness(t, nil)

	body := decode(t, h.do(t, http.MethodGet, "/api/models/check/llama3.2:1b", ""))
	assert.Equal(t, true, body["installed"])
	assert.Equal(t, "llama3.2:1b", body["model_info"].(map[string]any)["name"])

	body = decode(t, h.do(t, http.MethodGet, "/api/models/check/mistral:7b", ""))
	assert.Equal(t, false, body["installed"])
	assert.Empty(t, body["model_info"])
}

func TestHandleModelDelete(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(t, http.MethodPost, "/api/models/delete", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, msgModelRequired, decode(t, w)["error"])

	w = h.do(t, http.MethodPost, "/api/models/delete", `{"model":"llama3.2:1b"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	h.ollama.deleteErr = "model 'nope' not found"
	w = h.do(t, http.MethodPost, "/api/models/delete", `{"model":"nope"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	h.ollama.down.Store(true)
	w = h.do(t, http.MethodPost, "/api/models/delete", `{"model":"llama3.2:1b"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, msgOllamaDown, decode(t, w)["error"])
}

func TestHandleModelInstall(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(t, http.MethodPost, "/api/models/install", `{"model":"gemma:2b"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	evs := events(t, w.Body.Bytes())
	require.Len(t, evs, 4)
	assert.Equal(t, "pulling manifest", evs[0]["status"])
	assert.EqualValues(t, 50, evs[1]["completed"])
	last := evs[len(evs)-1]
	assert.Equal(t, "success", last["status"])
	assert.Equal(t, "gemma:2b", last["model"])
	assert.EqualValues(t, 1, h.srv.Stats().ModelsPulled)
}

func TestHandleModelInstall_Errors(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(t, http.MethodPost, "/api/models/install", `{"model":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.ollama.pullLines = []string{
		`{"status":"pulling manifest"}`,
		`{"error":"pull model manifest: file does not exist"}`,
	}
	evs := events(t, h.do(t, http.MethodPost, "/api/models/install", `{"model":"nope:1b"}`).Body.Bytes())
	require.Len(t, evs, 2)
	assert.Equal(t, "error", evs[1]["status"])
	assert.Contains(t, evs[1]["error"], "Model 'nope:1b' not found in Ollama registry")

	h.ollama.down.Store(true)
	evs = events(t, h.do(t, http.MethodPost, "/api/models/install", `{"model":"gemma:2b"}`).Body.Bytes())
	require.Len(t, evs, 1)
	assert.Equal(t, msgOllamaDown, evs[0]["error"])
}

// =============================================================================
// CHAT
// =============================================================================

func TestHandleChat_StreamsAndPersists(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(t, http.MethodPost, "/api/chat", `{"message":"Hi there"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	evs := events(t, w.Body.Bytes())
	require.Len(t, evs, 3)
	assert.Equal(t, "Hel", evs[0]["content"])
	assert.Equal(t, "lo!", evs[1]["content"])

	final := evs[2]
	assert.Equal(t, true, final["done"])
	assert.Equal(t, "Hi there", final["title"])
	id, _ := final["conversation_id"].(string)
	require.NotEmpty(t, id)

	conv, err := h.store.Get(id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Hello!", conv.Messages[1].Content)
	assert.Equal(t, model.RoleAssistant, conv.Messages[1].Role)

	stats := h.srv.Stats()
	assert.EqualValues(t, 1, stats.ChatTurns)
	assert.EqualValues(t, 0, stats.FailedTurns)
}

func TestHandleChat_SynchronousErrors(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(t, http.MethodPost, "/api/chat", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])

	w = h.do(t, http.MethodPost, "/api/chat", `{"message":"hi","conversation_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, msgConvNotFound, decode(t, w)["error"])

	w = h.do(t, http.MethodPost, "/api/chat", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	metas, err := h.store.List()
	require.NoError(t, err)
	assert.Empty(t, metas, "rejected requests leave nothing behind")
}

func TestHandleChat_UpstreamFailureIsAnEvent(t *testing.T) {
	h := newHarness(t, nil)
	h.ollama.chatLines = []string{
		`{"message":{"content":"par"},"done":false}`,
		`{"error":"model runner crashed"}`,
	}

	w := h.do(t, http.MethodPost, "/api/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)

	evs := events(t, w.Body.Bytes())
	require.Len(t, evs, 2)
	last := evs[1]
	assert.Equal(t, true, last["done"])
	assert.Contains(t, last["error"], "model runner crashed")
	assert.Equal(t, string(chat.KindUpstream), last["error_kind"])
	assert.EqualValues(t, 1, h.srv.Stats().FailedTurns)
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func TestConversationLifecycle(t *testing.T) {
	h := newHarness(t, nil)

	body := decode(t, h.do(t, http.MethodGet, "/api/conversations", ""))
	assert.Equal(t, []any{}, body["conversations"])

	w := h.do(t, http.MethodPost, "/api/conversations/new", `{"title":"Planning","model":"mistral:7b"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	id := body["conversation_id"].(string)
	conv := body["conversation"].(map[string]any)
	assert.Equal(t, "Planning", conv["title"])
	assert.Equal(t, "mistral:7b", conv["model"])

	// Two turns so there is something to truncate.
	for _, msg := range []string{"first", "second"} {
		w := h.do(t, http.MethodPost, "/api/chat", fmt.Sprintf(`{"message":%q,"conversation_id":%q}`, msg, id))
		require.Equal(t, http.StatusOK, w.Code)
	}

	body = decode(t, h.do(t, http.MethodGet, "/api/conversations/"+id, ""))
	conv = body["conversation"].(map[string]any)
	assert.Len(t, conv["messages"], 4)
	assert.Equal(t, "first", conv["title"], "first user message names the conversation")

	w = h.do(t, http.MethodPost, "/api/conversations/"+id+"/truncate", `{"message_index":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	stored, err := h.store.Get(id)
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 1)

	body = decode(t, h.do(t, http.MethodGet, "/api/conversations", ""))
	assert.Len(t, body["conversations"], 1)

	body = decode(t, h.do(t, http.MethodDelete, "/api/conversations/"+id, ""))
	assert.Equal(t, true, body["existed"])
	body = decode(t, h.do(t, http.MethodDelete, "/api/conversations/"+id, ""))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["existed"])

	w = h.do(t, http.MethodGet, "/api/conversations/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleNewConversation_EmptyBody(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(t, http.MethodPost, "/api/conversations/new", "")
	require.Equal(t, http.StatusOK, w.Code)
	conv := decode(t, w)["conversation"].(map[string]any)
	assert.Equal(t, model.PlaceholderTitle, conv["title"])
	assert.Equal(t, "llama3.2:1b", conv["model"])
}

func TestHandleTruncate_Errors(t *testing.T) {
	h := newHarness(t, nil)

	conv, err := h.srv.chat.Create("", "")
	require.NoError(t, err)

	w := h.do(t, http.MethodPost, "/api/conversations/"+conv.ID+"/truncate", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, msgIndexRequired, decode(t, w)["error"])

	w = h.do(t, http.MethodPost, "/api/conversations/"+conv.ID+"/truncate", `{"message_index":3}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodPost, "/api/conversations/unknown/truncate", `{"message_index":0}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleExportConversation(t *testing.T) {
	h := newHarness(t, nil)

	conv, err := h.srv.chat.Create("Export me", "")
	require.NoError(t, err)

	// No messages yet.
	w := h.do(t, http.MethodGet, "/api/conversations/"+conv.ID+"/export", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = h.do(t, http.MethodPost, "/api/chat", fmt.Sprintf(`{"message":"hi","conversation_id":%q}`, conv.ID))
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/api/conversations/"+conv.ID+"/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "conversation_Export_me_")
	assert.Contains(t, w.Body.String(), "# Export me")
	assert.Contains(t, w.Body.String(), "Hello!")

	w = h.do(t, http.MethodGet, "/api/conversations/"+conv.ID+"/export?format=html&theme=light", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), `class="light"`)

	w = h.do(t, http.MethodGet, "/api/conversations/"+conv.ID+"/export?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodGet, "/api/conversations/unknown/export", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestSecurityHeaders(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestCORS(t *testing.T) {
	h := newHarness(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "app://.")
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "app://.", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSConfig_IsOriginAllowed(t *testing.T) {
	cfg := DefaultCORSConfig([]string{"http://localhost:5001", "*.rigchat.local"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:5001", true},
		{"http://localhost:5002", false},
		{"http://ui.rigchat.local", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := cfg.isOriginAllowed(tt.origin); got != tt.want {
			t.Errorf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, func(c *config.ServerConfig) {
		c.RateLimit = 0.001
		c.RateBurst = 2
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/stats", "").Code)
	}
	w := h.do(t, http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	defer rl.Close()

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
	assert.Equal(t, 1, rl.Remaining("10.0.0.3"))
}

func TestBodyLimit(t *testing.T) {
	h := newHarness(t, nil)
	big := `{"message":"` + strings.Repeat("a", MaxRequestBodySize) + `"}`
	w := h.do(t, http.MethodPost, "/api/chat", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RecoveryMiddleware(zerolog.Nop()))
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "203.0.113.9:4000", "", "203.0.113.9"},
		{"untrusted peer cannot spoof", "203.0.113.9:4000", "1.2.3.4", "203.0.113.9"},
		{"trusted proxy", "127.0.0.1:4000", "198.51.100.7, 10.0.0.1", "198.51.100.7"},
		{"trusted proxy bad header", "127.0.0.1:4000", "not-an-ip", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, GetClientIP(req))
		})
	}
}

func TestNoRoute(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
