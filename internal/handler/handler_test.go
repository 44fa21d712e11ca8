package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/faqchat/internal/ai"
	"github.com/xxxsen/faqchat/internal/chat"
	"github.com/xxxsen/faqchat/internal/corpus"
	"github.com/xxxsen/faqchat/internal/pkg/errcode"
	"github.com/xxxsen/faqchat/internal/retrieval"
	"github.com/xxxsen/faqchat/internal/session"
)

type apiResponse struct {
	Code float64         `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func setupRouter(t *testing.T, loader corpus.Loader) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	p, err := ai.NewEmbedProvider("local", nil)
	require.NoError(t, err)
	engine := retrieval.NewEngine(loader, ai.NewEmbedder(p, "hash-256", 0, 0), nil)
	sessions := session.NewManager()
	svc := chat.NewService(engine, sessions,
		chat.NewAssembler("be helpful", 10, 4000, 350, 0.7),
		chat.NewOrchestrator(nil, 0, time.Millisecond, time.Millisecond),
		3, 0.25, 10)

	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), RouterDeps{
		Chat:   NewChatHandler(svc),
		FAQ:    NewFAQHandler(engine, 3),
		Health: NewHealthHandler(engine, svc, false),
	})
	return r
}

func scenarioLoader() corpus.Loader {
	return corpus.NewStaticLoader([][2]string{
		{"printer not printing", "check cable and driver"},
		{"wifi not connecting", "reset router"},
	})
}

func doRequest(t *testing.T, r http.Handler, method, path string, body interface{}) apiResponse {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestChat_SendAndHistory(t *testing.T) {
	r := setupRouter(t, scenarioLoader())

	resp := doRequest(t, r, http.MethodPost, "/api/v1/chat", map[string]string{"message": "my wifi is down"})
	require.Equal(t, float64(0), resp.Code)
	var answer struct {
		SessionID  string `json:"session_id"`
		Response   string `json:"response"`
		TurnState  string `json:"turn_state"`
		Provenance struct {
			EntryIDs []int `json:"entry_ids"`
			Fallback bool  `json:"fallback"`
		} `json:"provenance"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &answer))
	require.NotEmpty(t, answer.SessionID)
	require.Equal(t, "reset router", answer.Response)
	require.Equal(t, "FALLBACK_ANSWERED", answer.TurnState)
	require.True(t, answer.Provenance.Fallback)
	require.Equal(t, 1, answer.Provenance.EntryIDs[0])

	resp = doRequest(t, r, http.MethodGet, "/api/v1/chat/sessions/"+answer.SessionID, nil)
	require.Equal(t, float64(0), resp.Code)
	var history struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &history))
	require.Len(t, history.Messages, 2)
	require.Equal(t, "user", history.Messages[0].Role)
	require.Equal(t, "assistant", history.Messages[1].Role)

	resp = doRequest(t, r, http.MethodGet, "/api/v1/chat/sessions", nil)
	require.Equal(t, float64(0), resp.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 1)
	require.Equal(t, "my wifi is down", list[0]["title"])
}

func TestChat_InvalidMessage(t *testing.T) {
	r := setupRouter(t, scenarioLoader())
	resp := doRequest(t, r, http.MethodPost, "/api/v1/chat", map[string]string{"message": "   "})
	require.Equal(t, float64(errcode.ErrInvalid), resp.Code)
}

func TestChat_SessionNotFound(t *testing.T) {
	r := setupRouter(t, scenarioLoader())
	resp := doRequest(t, r, http.MethodGet, "/api/v1/chat/sessions/missing", nil)
	require.Equal(t, float64(errcode.ErrNotFound), resp.Code)

	resp = doRequest(t, r, http.MethodDelete, "/api/v1/chat/sessions/missing", nil)
	require.Equal(t, float64(errcode.ErrNotFound), resp.Code)
}

func TestChat_DeleteSession(t *testing.T) {
	r := setupRouter(t, scenarioLoader())
	resp := doRequest(t, r, http.MethodPost, "/api/v1/chat", map[string]string{"session_id": "s1", "message": "printer not printing"})
	require.Equal(t, float64(0), resp.Code)

	resp = doRequest(t, r, http.MethodDelete, "/api/v1/chat/sessions/s1", nil)
	require.Equal(t, float64(0), resp.Code)

	resp = doRequest(t, r, http.MethodDelete, "/api/v1/chat/sessions/s1", nil)
	require.Equal(t, float64(errcode.ErrNotFound), resp.Code)
}

func TestFAQ_Search(t *testing.T) {
	r := setupRouter(t, scenarioLoader())
	resp := doRequest(t, r, http.MethodGet, "/api/v1/faq/search?q=wifi+down&k=1", nil)
	require.Equal(t, float64(0), resp.Code)
	var result struct {
		Fingerprint string `json:"fingerprint"`
		Matches     []struct {
			Entry struct {
				Answer string `json:"answer"`
			} `json:"entry"`
		} `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	require.NotEmpty(t, result.Fingerprint)
	require.Len(t, result.Matches, 1)
	require.Equal(t, "reset router", result.Matches[0].Entry.Answer)

	resp = doRequest(t, r, http.MethodGet, "/api/v1/faq/search", nil)
	require.Equal(t, float64(errcode.ErrInvalid), resp.Code)

	resp = doRequest(t, r, http.MethodGet, "/api/v1/faq/search?q=wifi&k=zero", nil)
	require.Equal(t, float64(errcode.ErrInvalid), resp.Code)
}

func TestFAQ_ReloadAndHealth(t *testing.T) {
	r := setupRouter(t, scenarioLoader())

	resp := doRequest(t, r, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, float64(0), resp.Code)
	var health struct {
		Status    string `json:"status"`
		FAQLoaded bool   `json:"faq_loaded"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &health))
	require.False(t, health.FAQLoaded)
	require.Equal(t, "degraded", health.Status)

	resp = doRequest(t, r, http.MethodPost, "/api/v1/faq/reload", nil)
	require.Equal(t, float64(0), resp.Code)
	var status retrieval.Status
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	require.True(t, status.Loaded)
	require.Equal(t, 2, status.Entries)

	resp = doRequest(t, r, http.MethodGet, "/api/v1/health", nil)
	require.NoError(t, json.Unmarshal(resp.Data, &health))
	require.True(t, health.FAQLoaded)
	require.Equal(t, "ok", health.Status)
}
