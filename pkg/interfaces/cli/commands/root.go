// Package commands implements the prodplan command line.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vsinha/prodplan/internal/config"
	"github.com/vsinha/prodplan/pkg/interfaces/cli/output"
)

var (
	cfg *config.Config

	dataDir      string
	outputFormat string
	outputDir    string
)

var rootCmd = &cobra.Command{
	Use:   "prodplan",
	Short: "Product structure and requirements planning",
	Long: "Rolls up BOM costs, nets inventory into purchase suggestions, reconciles " +
		"standard equipment against BOMs and commits suggestions as purchase batches.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if dataDir != "" {
			c.Data.Dir = dataDir
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "scenario directory (default from config)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", output.FormatText, "output format: text, json, csv, xlsx")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "output directory; required for csv and xlsx")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// render writes a report with the global output flags
func render(w io.Writer, report output.Report) error {
	if w == nil {
		w = os.Stdout
	}
	return output.Generate(report, output.Config{Format: outputFormat, OutputDir: outputDir, Out: w})
}
