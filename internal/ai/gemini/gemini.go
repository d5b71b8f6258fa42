// Package gemini implements the ai.Provider contract against Google's
// Generative Language API, grounded on the teacher's pkg/gemini
// service (same base URL, same POST-JSON-and-walk-the-response shape),
// extended with an embeddings call the teacher never made.
package gemini

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
	baseURL        = "https://generativelanguage.googleapis.com/v1beta/models"
	summarizeModel = "gemini-2.5-flash"
	embedModel     = "text-embedding-004"
)

// Service calls the Gemini API with an API key carried as a query
// parameter, the way the teacher's GeminiService does.
type Service struct {
	apiKey string
	client *http.Client
}

func New(apiKey string) *Service {
	return &Service{
		apiKey: apiKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

var _ ai.Provider = (*Service)(nil)

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig generationConfig  `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Summarize asks Gemini for a two-to-three sentence summary of text.
func (s *Service) Summarize(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following email in two or three concise sentences. "+
			"Focus on what the sender wants and any deadline mentioned. "+
			"Reply with the summary only, no preamble.\n\n%s", truncate(text, 8000))

	reqBody := generateContentRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     0.3,
			MaxOutputTokens: 200,
		},
	}

	var resp generateContentResponse
	if err := s.post(ctx, fmt.Sprintf("%s/%s:generateContent", baseURL, summarizeModel), reqBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", apperr.AiFailure("gemini returned no candidates", nil)
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

type embedContentRequest struct {
	Model   string  `json:"model"`
	Content content `json:"content"`
}

type embedContentResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Embed calls models/text-embedding-004:embedContent and validates the
// returned vector is exactly ai.EmbeddingDimensions long.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := embedContentRequest{
		Model:   "models/" + embedModel,
		Content: content{Parts: []part{{Text: truncate(text, 8000)}}},
	}

	var resp embedContentResponse
	if err := s.post(ctx, fmt.Sprintf("%s/%s:embedContent", baseURL, embedModel), reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding.Values) != ai.EmbeddingDimensions {
		return nil, apperr.IntegrityFailure(
			fmt.Sprintf("gemini returned %d-dim embedding, want %d", len(resp.Embedding.Values), ai.EmbeddingDimensions), nil)
	}
	return resp.Embedding.Values, nil
}

// ExtractActionItems asks Gemini to pull tasks and an urgency score out
// of text, constraining the reply to a JSON object so it can be parsed
// directly rather than scraped from prose.
func (s *Service) ExtractActionItems(ctx context.Context, text string) (ai.ActionItems, error) {
	prompt := fmt.Sprintf(
		"Read this email and extract any actionable tasks the recipient "+
			"needs to do, plus an urgency score from 0 (no action needed) to "+
			"10 (extremely urgent). Reply with ONLY a JSON object of the form "+
			`{"tasks": ["..."], "urgency": 0} and nothing else.`+"\n\n%s", truncate(text, 8000))

	reqBody := generateContentRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     0.1,
			MaxOutputTokens: 300,
		},
	}

	var resp generateContentResponse
	if err := s.post(ctx, fmt.Sprintf("%s/%s:generateContent", baseURL, summarizeModel), reqBody, &resp); err != nil {
		return ai.ActionItems{}, err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return ai.ActionItems{}, apperr.AiFailure("gemini returned no candidates", nil)
	}
	return parseActionItems(resp.Candidates[0].Content.Parts[0].Text)
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

func (s *Service) post(ctx context.Context, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperr.AiFailure("failed to marshal gemini request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"?key="+s.apiKey, bytes.NewReader(payload))
	if err != nil {
		return apperr.AiFailure("failed to build gemini request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return apperr.AiFailure("gemini request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.AiFailure("failed to read gemini response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return apperr.AiFailure(fmt.Sprintf("gemini returned status %d: %s", resp.StatusCode, string(respBody)), nil)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return apperr.AiFailure("failed to parse gemini response", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
