// Package cli provides the command-line interface for the trading desk.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"tradedesk/internal/store"
	"tradedesk/pkg/utils"
)

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export engine data",
	}

	cmd.AddCommand(newExportHistoryCmd(app))
	return cmd
}

func newExportHistoryCmd(app *App) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Export the realized P&L history as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshots, err := store.NewSnapshotStore(app.Config.SnapshotDBPath())
			if err != nil {
				return err
			}
			defer snapshots.Close()

			snap, err := snapshots.Load(context.Background(), app.Config.Engine.SnapshotNamespace)
			if err != nil {
				return fmt.Errorf("loading snapshot: %w", err)
			}

			w := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			if err := gocsv.Marshal(snap.History, w); err != nil {
				return fmt.Errorf("writing CSV: %w", err)
			}

			var total float64
			for _, e := range snap.History {
				total += e.PnL
			}
			fmt.Fprintf(os.Stderr, "%d entries, total realized P&L %s\n",
				len(snap.History), utils.FormatUSD(total))
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}
