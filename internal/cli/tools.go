package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/pulseguard/internal/bridge"
	"github.com/ppiankov/pulseguard/internal/orchestrator"
)

var (
	toolsQuery string
	toolsJSON  bool
)

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.Flags().StringVar(&toolsQuery, "query", "", "Run one assistant turn with this query and print the outcome")
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "Print the catalog as JSON")
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Connect tool providers and list their namespaced tools",
	Long:  "Connects every configured provider, prints the tool catalog as <namespace>__<tool> keys\nand, with --query, runs one assistant turn through the orchestrator.",
	RunE:  runTools,
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Supervision.Interval = 0

	ctx, cancel := signalContext(cmd.Context(), "tools")
	defer cancel()

	a, err := newAssistant(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if toolsQuery != "" {
		out, err := bridge.SubmitReady(ctx, a.bridge, "process", func(ctx context.Context) (orchestrator.Outcome, error) {
			return a.orch.Process(ctx, toolsQuery)
		})
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	cat, err := bridge.SubmitReady(ctx, a.bridge, "catalog", func(ctx context.Context) (*orchestrator.Catalog, error) {
		return a.orch.Catalog(ctx), nil
	})
	if err != nil {
		return fmt.Errorf("catalog failed: %w", err)
	}

	if toolsJSON {
		type toolJSON struct {
			Key         string `json:"key"`
			Description string `json:"description"`
			Schema      any    `json:"parameters"`
		}
		list := make([]toolJSON, 0, cat.Len())
		for _, t := range cat.Tools {
			list = append(list, toolJSON{Key: t.Key.String(), Description: t.Description, Schema: t.Schema})
		}
		data, _ := json.MarshalIndent(list, "", "  ")
		fmt.Println(string(data))
	} else {
		for _, t := range cat.Tools {
			fmt.Printf("%-40s %s\n", t.Key.String(), t.Description)
		}
	}
	for _, err := range cat.Errors {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	if cat.Len() == 0 {
		fmt.Fprintln(os.Stderr, "No tools available.")
	}
	return nil
}
