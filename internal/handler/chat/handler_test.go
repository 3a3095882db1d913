package chat

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/digital-human/internal/model/avatar"
	wire "github.com/zhouzirui/digital-human/internal/model/dialogue"
	chatservice "github.com/zhouzirui/digital-human/internal/service/chat"
)

func setupRouter() (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService(zerolog.Nop())
	handler := New(chatSvc, zerolog.Nop())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func postChat(t *testing.T, r http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestHealth(t *testing.T) {
	r, _ := setupRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "mock", body.Services["llm"])
}

func TestChatReturnsValidatedReply(t *testing.T) {
	r, _ := setupRouter()

	resp := postChat(t, r, wire.ChatRequest{SessionID: "s1", UserText: "再见"})
	require.Equal(t, http.StatusOK, resp.Code)

	var reply wire.ChatResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &reply))
	assert.Equal(t, avatar.EmotionHappy, reply.Emotion)
	assert.Equal(t, avatar.BehaviorWave, reply.Action)
	assert.NotEmpty(t, reply.ReplyText)
}

func TestChatRejectsInvalidBody(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader([]byte("{")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = postChat(t, r, map[string]string{"userText": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSessionHistoryAndClear(t *testing.T) {
	r, _ := setupRouter()
	postChat(t, r, wire.ChatRequest{SessionID: "s1", UserText: "你好"})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/history", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		SessionID string            `json:"sessionId"`
		Messages  []json.RawMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "s1", body.SessionID)
	assert.Len(t, body.Messages, 2)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/v1/sessions/s1", nil))
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/history", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/v1/sessions/s1", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
