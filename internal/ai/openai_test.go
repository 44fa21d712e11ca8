package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) (*openAIProvider, *openAIEmbedProvider) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	gen, err := createOpenAIFactory(map[string]interface{}{"api_key": "k", "base_url": server.URL})
	require.NoError(t, err)
	emb, err := createOpenAIEmbedFactory(map[string]interface{}{"api_key": "k", "base_url": server.URL})
	require.NoError(t, err)
	return gen.(*openAIProvider), emb.(*openAIEmbedProvider)
}

func TestOpenAIGenerate_SendsSystemAndHistory(t *testing.T) {
	var got openAIChatRequest
	gen, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  reset router  "}}]}`))
	})
	out, err := gen.Generate(context.Background(), "gpt-4o-mini", &GenerateRequest{
		System:    "sys",
		Messages:  []Message{{Role: "user", Content: "hi"}},
		MaxTokens: 10,
	})
	require.NoError(t, err)
	require.Equal(t, "reset router", out)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Equal(t, "hi", got.Messages[1].Content)
	require.Equal(t, 10, got.MaxTokens)
}

func TestOpenAIGenerate_ClassifiesStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, want: ErrRateLimited},
		{name: "server error", status: http.StatusBadGateway, want: ErrServiceError},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, want: ErrTimeout},
		{name: "bad request", status: http.StatusBadRequest, want: ErrFatal},
		{name: "unauthorized", status: http.StatusUnauthorized, want: ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := gen.Generate(context.Background(), "m", &GenerateRequest{})
			require.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestOpenAIGenerate_MissingKeyIsUnavailable(t *testing.T) {
	p, err := createOpenAIFactory(map[string]interface{}{})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "m", &GenerateRequest{})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAIEmbedBatch_OrdersByIndex(t *testing.T) {
	_, emb := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	})
	out, err := emb.EmbedBatch(context.Background(), "m", []string{"a", "b"}, TaskRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 0}, {0, 1}}, out)
}

func TestOpenAIEmbedBatch_CountMismatch(t *testing.T) {
	_, emb := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
	})
	_, err := emb.EmbedBatch(context.Background(), "m", []string{"a", "b"}, "")
	require.ErrorIs(t, err, ErrServiceError)
}
