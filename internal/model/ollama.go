package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charleslwang/Lumara/internal"
	"github.com/charleslwang/Lumara/internal/postprocess"
)

// DefaultOllamaModel is used when the request does not name a model.
const DefaultOllamaModel = "llama3.2"

// OllamaClient calls a self-hosted Ollama instance. It needs no credential,
// which makes it the configuration-selected alternative to Gemini for local
// runs and offline development.
type OllamaClient struct {
	baseURL string
	client  *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// NewOllamaClient creates a client for the Ollama instance at baseURL
// (defaults to the local daemon).
func NewOllamaClient(baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (o *OllamaClient) Name() string { return "ollama" }

func (o *OllamaClient) Invoke(ctx context.Context, cfg Config, prompt string) (string, error) {
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = DefaultOllamaModel
	}

	reqBody := ollamaRequest{Model: modelID, Prompt: prompt, Stream: false}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", internal.WrapError(internal.KindInvalidRequest, err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/api/generate", o.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return "", internal.WrapError(internal.KindInvalidRequest, err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := o.client
	if cfg.Timeout > 0 {
		c := *o.client
		c.Timeout = cfg.Timeout
		client = &c
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", internal.WrapError(internal.KindTransientNetwork, err, "ollama request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		detail := errResp.Error
		if detail == "" {
			detail = resp.Status
		}
		return "", classifyStatus(resp.StatusCode, "ollama", detail)
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", internal.WrapError(internal.KindTransientNetwork, err, "failed to decode ollama response")
	}

	text := postprocess.Clean(ollamaResp.Response)
	if text == "" {
		return "", internal.NewError(internal.KindModelUnavailable, "ollama returned empty text")
	}
	return text, nil
}
