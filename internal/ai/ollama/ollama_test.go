package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxforge/core/internal/apperr"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s := NewWithGetters(func() string { return srv.URL }, func() string { return "llama3" })
	s.client = srv.Client()
	return s
}

func TestSummarizeReturnsResponseField(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		assert.False(t, req.Stream)
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "short summary"})
	})

	out, err := s.Summarize(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "short summary", out)
}

func TestEmbedHitsEmbeddingsEndpoint(t *testing.T) {
	want := make([]float32, 768)
	for i := range want {
		want[i] = 0.01
	}
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(embeddingsResponse{Embedding: want})
	})

	got, err := s.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, got, 768)
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embeddingsResponse{Embedding: []float32{0.1, 0.2}})
	})

	_, err := s.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindIntegrityFailure))
}

func TestPostSurfacesConnectionFailureAsAiFailure(t *testing.T) {
	s := NewWithGetters(func() string { return "http://127.0.0.1:1" }, func() string { return "llama3" })

	_, err := s.Summarize(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAiFailure))
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, "x", orDefault("x", "default"))
	assert.Equal(t, "default", orDefault("", "default"))
}
