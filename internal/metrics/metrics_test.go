package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveDialogue(t *testing.T) {
	m := New()
	m.ObserveDialogue(200, 2, false, 150*time.Millisecond)
	m.ObserveDialogue(408, 1, true, time.Second)

	body := scrape(t, m)
	assert.Contains(t, body, `digital_human_dialogue_requests_total{status="200"} 1`)
	assert.Contains(t, body, "digital_human_dialogue_retries_total 3")
	assert.Contains(t, body, "digital_human_dialogue_fallbacks_total 1")
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveChat("mock")
	m.SetSessions(3)

	body := scrape(t, m)
	assert.True(t, strings.Contains(body, `digital_human_chat_requests_total{source="mock"} 1`))
	assert.True(t, strings.Contains(body, "digital_human_chat_sessions 3"))
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
