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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/charleslwang/Lumara/internal"
	"github.com/charleslwang/Lumara/internal/pipeline"
	"github.com/charleslwang/Lumara/internal/report"
	"github.com/charleslwang/Lumara/internal/store"
)

var (
	refinePrompt      string
	refinePromptFile  string
	refineInitial     string
	refineInitialFile string

	refineProvider string
	refineModel    string
	refineAPIKey   string
	refineBaseURL  string
	refineRPM      int

	refineIterations int
	refineThreshold  float64
	refineRetries    int

	refineOutputFile string
	refineJSONFile   string

	refineDBPath    string
	refineNoHistory bool
)

var refineCmd = &cobra.Command{
	Use:   "refine",
	Short: "Iteratively refine an AI-generated answer",
	Long: `Run the refinement pipeline: each iteration scores the current answer,
critiques it, and rewrites it to address the critique.

The run stops at the iteration limit, when the quality threshold is reached,
or on Ctrl-C (returning the best iteration seen so far).

Examples:
  lumara refine --prompt "Write a haiku about the ocean" --initial "Ocean waves crash." --iterations 3
  lumara refine --prompt-file prompt.txt --initial-file draft.txt --provider ollama --model llama3.2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := readTextArg(refinePrompt, refinePromptFile, "prompt")
		if err != nil {
			return err
		}
		initial, err := readTextArg(refineInitial, refineInitialFile, "initial")
		if err != nil {
			return err
		}

		apiKey := refineAPIKey
		if apiKey == "" {
			apiKey = viper.GetString("api_key")
		}

		client, err := buildModelClient(refineProvider, refineBaseURL, refineRPM, refineRetries)
		if err != nil {
			return err
		}

		ctrl := pipeline.New(client, pipeline.Config{
			Threshold:          refineThreshold,
			CredentialOptional: refineProvider == "ollama",
		})

		req := internal.RefinementRequest{
			ID:            uuid.New().String(),
			Prompt:        prompt,
			InitialOutput: initial,
			ModelID:       refineModel,
			APIKey:        apiKey,
			MaxIterations: refineIterations,
			Threshold:     refineThreshold,
			Timestamp:     time.Now().UTC(),
		}

		// Ctrl-C cancels between iterations; the run returns its best
		// iteration instead of dying mid-flight.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		res, err := ctrl.Run(ctx, req)
		if err != nil {
			if kind, ok := internal.KindOf(err); ok {
				return fmt.Errorf("refinement failed (%s): %w", kind, err)
			}
			return fmt.Errorf("refinement failed: %w", err)
		}

		fmt.Print(report.Render(req, res))
		fmt.Printf("\nREFINED OUTPUT\n%s\n%s\n", strings.Repeat("=", 60), res.RefinedOutput)

		if refineOutputFile != "" {
			if err := os.WriteFile(refineOutputFile, []byte(res.RefinedOutput), 0644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
		}
		if refineJSONFile != "" {
			data, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal result: %w", err)
			}
			if err := os.WriteFile(refineJSONFile, data, 0644); err != nil {
				return fmt.Errorf("failed to write JSON file: %w", err)
			}
		}

		if !refineNoHistory && refineDBPath != "" {
			db, err := store.New(refineDBPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "History disabled: %v\n", err)
				return nil
			}
			defer db.Close()
			if err := db.SaveRun(context.Background(), req, res); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to save run history: %v\n", err)
			}
		}

		return nil
	},
}

// readTextArg resolves a value given either inline or as a file path.
func readTextArg(inline, file, name string) (string, error) {
	if inline != "" && file != "" {
		return "", fmt.Errorf("--%s and --%s-file are mutually exclusive", name, name)
	}
	if inline != "" {
		return inline, nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s file: %w", name, err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("--%s or --%s-file is required", name, name)
}

func init() {
	rootCmd.AddCommand(refineCmd)

	refineCmd.Flags().StringVar(&refinePrompt, "prompt", "", "Original prompt text")
	refineCmd.Flags().StringVar(&refinePromptFile, "prompt-file", "", "File containing the original prompt")
	refineCmd.Flags().StringVar(&refineInitial, "initial", "", "Initial AI-generated answer to refine")
	refineCmd.Flags().StringVar(&refineInitialFile, "initial-file", "", "File containing the initial answer")

	refineCmd.Flags().StringVar(&refineProvider, "provider", "gemini", "Model provider (gemini or ollama)")
	refineCmd.Flags().StringVar(&refineModel, "model", "", "Model ID (provider default if empty)")
	refineCmd.Flags().StringVar(&refineAPIKey, "api-key", "", "API key (or LUMARA_API_KEY)")
	refineCmd.Flags().StringVar(&refineBaseURL, "base-url", "", "Provider base URL override")
	refineCmd.Flags().IntVar(&refineRPM, "rpm", 60, "Client-side request pacing (requests/minute, gemini only)")

	refineCmd.Flags().IntVar(&refineIterations, "iterations", 3, "Maximum refinement iterations")
	refineCmd.Flags().Float64Var(&refineThreshold, "threshold", 0, "Early-stop quality threshold on the 0-10 scale (0 disables)")
	refineCmd.Flags().IntVar(&refineRetries, "max-retries", 3, "Total attempts per model call including the first")

	refineCmd.Flags().StringVarP(&refineOutputFile, "output", "o", "", "Write the refined output to this file")
	refineCmd.Flags().StringVar(&refineJSONFile, "json", "", "Write the full result JSON to this file")

	refineCmd.Flags().StringVar(&refineDBPath, "db", "./data/lumara.db", "Database path for run history")
	refineCmd.Flags().BoolVar(&refineNoHistory, "no-history", false, "Do not persist this run")
}
