package commands

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vsinha/prodplan/pkg/application/dto"
	"github.com/vsinha/prodplan/pkg/interfaces/cli/output"
)

var mrpAsOf string

var mrpCmd = &cobra.Command{
	Use:   "mrp",
	Short: "Net inventory against minimum stock and suggest purchases",
	Long:  "Nets the current inventory snapshot against component minimum stock and prints requirements, purchase suggestions and draft batches grouped by supplier.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := parseAsOf(mrpAsOf)
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context(), "mrp")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Orchestrator.RunMRP(cmd.Context(), asOf)
		if run == nil {
			return err
		}
		if err != nil {
			zap.L().Warn("mrp skipped records", zap.Error(err))
		}

		report, err := output.MRPReport(dto.NewMRPResponse(run, err))
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), report)
	},
}

func init() {
	mrpCmd.Flags().StringVar(&mrpAsOf, "as-of", "", "planning date YYYY-MM-DD (default today)")
	rootCmd.AddCommand(mrpCmd)
}

func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	t, err := time.Parse(dto.DateLayout, s)
	if err != nil {
		return time.Time{}, eris.Errorf("--as-of must be YYYY-MM-DD, got %q", s)
	}
	return t, nil
}
