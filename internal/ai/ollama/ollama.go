// Package ollama implements the ai.Provider contract against a local
// Ollama instance, grounded on the teacher's pkg/ai/ollama.go
// dynamic-getter pattern (base URL and model are read through funcs,
// not fields, so config reloads take effect without reconstructing
// the service) and its raw /api/generate POST shape.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/inboxforge/core/internal/ai"
	"github.com/inboxforge/core/internal/apperr"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llama3"
)

// Service calls a local Ollama server. getBaseURL/getModel are plain
// funcs rather than fields so a Service built once at startup keeps
// tracking config changes the way the teacher's did.
type Service struct {
	getBaseURL func() string
	getModel   func() string
	client     *http.Client
}

func New(baseURL, model string) *Service {
	return NewWithGetters(
		func() string { return orDefault(baseURL, defaultBaseURL) },
		func() string { return orDefault(model, defaultModel) },
	)
}

func NewWithGetters(getBaseURL, getModel func() string) *Service {
	return &Service{
		getBaseURL: getBaseURL,
		getModel:   getModel,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

var _ ai.Provider = (*Service)(nil)

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options options `json:"options"`
}

type options struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Summarize posts a structured prompt to /api/generate.
func (s *Service) Summarize(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following email in two or three concise sentences. "+
			"Focus on what the sender wants and any deadline mentioned. "+
			"Reply with the summary only, no preamble.\n\n%s", truncate(text, 8000))

	reqBody := generateRequest{
		Model:  s.getModel(),
		Prompt: prompt,
		Stream: false,
		Options: options{
			Temperature: 0.3,
			NumPredict:  150,
		},
	}

	var resp generateResponse
	if err := s.post(ctx, "/api/generate", reqBody, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingsResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed calls /api/embeddings and validates the returned vector is
// exactly ai.EmbeddingDimensions long.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := embeddingsRequest{
		Model:  s.getModel(),
		Prompt: truncate(text, 8000),
	}

	var resp embeddingsResponse
	if err := s.post(ctx, "/api/embeddings", reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) != ai.EmbeddingDimensions {
		return nil, apperr.IntegrityFailure(
			fmt.Sprintf("ollama returned %d-dim embedding, want %d", len(resp.Embedding), ai.EmbeddingDimensions), nil)
	}
	return resp.Embedding, nil
}

// ExtractActionItems asks the local model to pull tasks and an urgency
// score out of text, constraining the reply to a bare JSON object.
func (s *Service) ExtractActionItems(ctx context.Context, text string) (ai.ActionItems, error) {
	prompt := fmt.Sprintf(
		"Read this email and extract any actionable tasks the recipient "+
			"needs to do, plus an urgency score from 0 (no action needed) to "+
			"10 (extremely urgent). Reply with ONLY a JSON object of the form "+
			`{"tasks": ["..."], "urgency": 0} and nothing else.`+"\n\n%s", truncate(text, 8000))

	reqBody := generateRequest{
		Model:  s.getModel(),
		Prompt: prompt,
		Stream: false,
		Options: options{
			Temperature: 0.1,
			NumPredict:  200,
		},
	}

	var resp generateResponse
	if err := s.post(ctx, "/api/generate", reqBody, &resp); err != nil {
		return ai.ActionItems{}, err
	}
	return parseActionItems(resp.Response)
}

func parseActionItems(raw string) (ai.ActionItems, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var out ai.ActionItems
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return ai.ActionItems{}, apperr.AiFailure("failed to parse action-item extraction response", err)
	}
	if out.Urgency < 0 {
		out.Urgency = 0
	}
	if out.Urgency > 10 {
		out.Urgency = 10
	}
	return out, nil
}

func (s *Service) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperr.AiFailure("failed to marshal ollama request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.getBaseURL()+path, bytes.NewReader(payload))
	if err != nil {
		return apperr.AiFailure("failed to build ollama request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return apperr.AiFailure("ollama request failed, is the server running", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.AiFailure("failed to read ollama response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return apperr.AiFailure(fmt.Sprintf("ollama returned status %d: %s", resp.StatusCode, string(respBody)), nil)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return apperr.AiFailure("failed to parse ollama response", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
