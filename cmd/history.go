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
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/charleslwang/Lumara/internal/store"
)

var historyDBPath string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage the run history",
	Long:  `List, inspect, and clear the SQLite refinement run history.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all recorded refinement runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(historyDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		entries, err := db.ListRuns(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No runs in history.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMODEL\tITERS\tOVERALL\tSTOPPED\tCREATED\tPROMPT")
		for _, e := range entries {
			snippet := e.Prompt
			if len(snippet) > 40 {
				snippet = snippet[:37] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%.1f\t%v\t%s\t%s\n",
				e.ID, e.ModelID, e.IterationCount, e.Overall, e.Stopped,
				e.CreatedAt.Format("2006-01-02 15:04"), snippet)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a run's full iteration history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(historyDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		entry, res, err := db.GetRun(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Run:     %s\n", entry.ID)
		fmt.Printf("Model:   %s\n", entry.ModelID)
		fmt.Printf("Created: %s\n", entry.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Prompt:  %s\n\n", entry.Prompt)

		for _, rec := range res.Iterations {
			fmt.Printf("--- Iteration %d (overall %.1f) ---\n", rec.Index, rec.Score.Overall)
			fmt.Printf("Critique:\n%s\n\n", rec.Critique)
			fmt.Printf("Solution:\n%s\n\n", rec.Solution)
		}

		fmt.Printf("Refined output:\n%s\n", res.RefinedOutput)
		return nil
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show run history statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(historyDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		stats, err := db.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Total runs:       %d\n", stats.TotalRuns)
		fmt.Printf("Average overall:  %.1f\n", stats.AverageOverall)
		fmt.Printf("Best overall:     %.1f\n", stats.BestOverall)
		fmt.Printf("Total iterations: %d\n", stats.TotalIterations)
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a run by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(historyDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := db.DeleteRun(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete run: %w", err)
		}
		fmt.Printf("Deleted run: %s\n", args[0])
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all runs from history",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(historyDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		n, err := db.ClearRuns(context.Background())
		if err != nil {
			return fmt.Errorf("failed to clear runs: %w", err)
		}
		fmt.Printf("Deleted %d runs\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyStatsCmd, historyDeleteCmd, historyClearCmd)

	historyCmd.PersistentFlags().StringVar(&historyDBPath, "db", "./data/lumara.db", "Database path for run history")
}
