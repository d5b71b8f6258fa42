package gemini

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

func TestSummarizeReturnsCandidateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := generateContentResponse{}
		resp.Candidates = []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		}{{}}
		resp.Candidates[0].Content.Parts = []struct {
			Text string `json:"text"`
		}{{Text: "short summary"}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	s := New("test-key")
	s.client = srv.Client()

	var out generateContentResponse
	err := s.post(context.Background(), srv.URL, generateContentRequest{}, &out)
	require.NoError(t, err)
	assert.Equal(t, "short summary", out.Candidates[0].Content.Parts[0].Text)
}

func TestPostSurfacesNonOKStatusAsAiFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	s := New("test-key")
	s.client = srv.Client()

	var out generateContentResponse
	err := s.post(context.Background(), srv.URL, generateContentRequest{}, &out)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAiFailure))
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedContentResponse{
			Embedding: struct {
				Values []float32 `json:"values"`
			}{Values: []float32{0.1, 0.2}},
		})
	}))
	defer srv.Close()

	s := New("test-key")
	s.client = srv.Client()

	var out embedContentResponse
	err := s.post(context.Background(), srv.URL, embedContentRequest{}, &out)
	require.NoError(t, err)
	assert.Len(t, out.Embedding.Values, 2)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
