package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/charleslwang/Lumara/internal"
	"github.com/charleslwang/Lumara/internal/postprocess"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// DefaultGeminiModel is used when the request does not name a model.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient calls the Gemini generateContent REST endpoint. Requests are
// paced with a client-side limiter so bursts of iterations do not trip the
// provider's per-minute quota before the retry layer even sees a 429.
type GeminiClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGeminiClient creates a Gemini client. Pass baseURL "" for the public
// endpoint; rpm caps client-side request pacing (0 uses 60/min).
func NewGeminiClient(baseURL string, rpm int) *GeminiClient {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	if rpm <= 0 {
		rpm = 60
	}
	return &GeminiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
	}
}

func (g *GeminiClient) Name() string { return "gemini" }

// Invoke sends one generateContent request and returns the sanitized text of
// the first candidate. Credential and model problems fail without issuing a
// request so they are never retried or billed.
func (g *GeminiClient) Invoke(ctx context.Context, cfg Config, prompt string) (string, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return "", internal.NewError(internal.KindInvalidCredential, "gemini API key is required")
	}
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = DefaultGeminiModel
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", internal.WrapError(internal.KindCancelled, err, "cancelled while pacing request")
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.7,
			TopP:            0.8,
			TopK:            40,
			MaxOutputTokens: 1024,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", internal.WrapError(internal.KindInvalidRequest, err, "failed to marshal request")
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, modelID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", internal.WrapError(internal.KindInvalidRequest, err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", cfg.APIKey)

	client := g.client
	if cfg.Timeout > 0 {
		c := *g.client
		c.Timeout = cfg.Timeout
		client = &c
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", internal.WrapError(internal.KindTransientNetwork, err, "gemini request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp geminiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		detail := errResp.Error.Message
		if detail == "" {
			detail = resp.Status
		}
		return "", classifyStatus(resp.StatusCode, "gemini", detail)
	}

	var geminiResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return "", internal.WrapError(internal.KindTransientNetwork, err, "failed to decode gemini response")
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", internal.NewError(internal.KindModelUnavailable, "gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	text := postprocess.Clean(sb.String())
	if text == "" {
		return "", internal.NewError(internal.KindModelUnavailable, "gemini returned empty text")
	}
	return text, nil
}

// classifyStatus maps an HTTP status to an error kind. Authentication and
// bad-model failures are permanent; rate limits and server errors are
// transient and eligible for retry.
func classifyStatus(status int, provider, detail string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return internal.NewError(internal.KindInvalidCredential, "%s rejected credential (status %d): %s", provider, status, detail)
	case status == http.StatusTooManyRequests:
		return internal.NewError(internal.KindRateLimited, "%s rate limited (status %d): %s", provider, status, detail)
	case status >= 500:
		return internal.NewError(internal.KindModelUnavailable, "%s unavailable (status %d): %s", provider, status, detail)
	default:
		return internal.NewError(internal.KindInvalidRequest, "%s rejected request (status %d): %s", provider, status, detail)
	}
}
