/*
Copyright © 2025 Charles Wang

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"

	"github.com/charleslwang/Lumara/internal/model"
)

// buildModelClient constructs the provider-specific model client from CLI
// parameters and wraps it with retry-with-backoff.
func buildModelClient(provider, baseURL string, rpm, maxAttempts int) (model.Client, error) {
	var inner model.Client

	switch provider {
	case "gemini":
		inner = model.NewGeminiClient(baseURL, rpm)
	case "ollama":
		inner = model.NewOllamaClient(baseURL)
	default:
		return nil, fmt.Errorf("unknown provider: %s (want gemini or ollama)", provider)
	}

	retryCfg := model.DefaultRetryConfig
	if maxAttempts > 0 {
		retryCfg.MaxAttempts = maxAttempts
	}
	return model.Retrying(inner, retryCfg), nil
}
