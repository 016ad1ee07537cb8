package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vsinha/prodplan/pkg/application/dto"
	"github.com/vsinha/prodplan/pkg/interfaces/cli/output"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [model...]",
	Short: "Compare standard equipment against the active BOM of each model",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Orchestrator.RunReconciliation(cmd.Context(), args)
		if run == nil {
			return err
		}
		if err != nil {
			zap.L().Warn("reconciliation skipped records", zap.Error(err))
		}

		report, err := output.ReconcileReport(dto.NewReconcileRunResponse(run, err))
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), report)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}
