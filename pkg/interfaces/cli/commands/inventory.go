package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vsinha/prodplan/pkg/application/dto"
	"github.com/vsinha/prodplan/pkg/infrastructure/repositories/csv"
	"github.com/vsinha/prodplan/pkg/interfaces/cli/output"
)

var loadInventoryCmd = &cobra.Command{
	Use:   "load-inventory [file]",
	Short: "Load an inventory feed as a new snapshot",
	Long:  "Reads an inventory CSV, inventory.csv of the scenario directory by default, and stores it as a new snapshot. Every load advances the snapshot version.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(cfg.Data.Dir, csv.InventoryFile)
		if len(args) == 1 {
			path = args[0]
		}

		env, err := initEnv(cmd.Context(), "load-inventory")
		if err != nil {
			return err
		}
		defer env.Close()

		asOf, _ := parseAsOf("")
		positions, err := csv.NewLoader().LoadInventory(path, asOf)
		if positions == nil && err != nil {
			return err
		}
		rejected := multierr.Errors(err)
		for _, rowErr := range rejected {
			zap.L().Warn("skipped inventory row", zap.Error(rowErr))
		}

		version, lerr := env.Orchestrator.LoadInventory(cmd.Context(), positions)
		if lerr != nil {
			return lerr
		}

		report := output.Report{
			Name:  "inventory",
			Title: "Inventory Loaded",
			Value: map[string]interface{}{
				"file":             path,
				"positions":        len(positions),
				"snapshot_version": int64(version),
				"errors":           dto.ErrorRecords(err),
			},
			Summary: []string{
				fmt.Sprintf("File: %s", path),
				fmt.Sprintf("Positions: %d", len(positions)),
				fmt.Sprintf("Rejected rows: %d", len(rejected)),
				fmt.Sprintf("Snapshot version: %d", version),
			},
		}
		return render(cmd.OutOrStdout(), report)
	},
}

func init() {
	rootCmd.AddCommand(loadInventoryCmd)
}
