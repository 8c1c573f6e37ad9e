package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/pulseguard/internal/journal"
)

var (
	interventionsLimit int
	interventionsJSON  bool
)

func init() {
	rootCmd.AddCommand(interventionsCmd)
	interventionsCmd.Flags().IntVar(&interventionsLimit, "limit", 20, "Maximum rows to show, newest first")
	interventionsCmd.Flags().BoolVar(&interventionsJSON, "json", false, "Print rows as JSON")
}

var interventionsCmd = &cobra.Command{
	Use:   "interventions",
	Short: "List recorded intervention attempts",
	RunE:  runInterventions,
}

func runInterventions(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is not configured")
	}
	if _, err := os.Stat(cfg.Journal.Path); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "No journal at %s yet.\n", cfg.Journal.Path)
		return nil
	}

	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), interventionsLimit)
	if err != nil {
		return err
	}

	if interventionsJSON {
		data, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "No interventions recorded.")
		return nil
	}
	fmt.Printf("%-36s  %-20s  %-9s  %-9s  %-8s  %s\n", "ID", "STARTED", "HR", "RISK", "STATUS", "DETAIL")
	for _, e := range entries {
		fmt.Printf("%-36s  %-20s  %-9.1f  %-9s  %-8s  %s\n",
			e.ID,
			e.StartedAt.Local().Format(time.DateTime),
			e.HeartRate,
			e.Risk,
			e.Status,
			e.Detail,
		)
	}
	return nil
}
