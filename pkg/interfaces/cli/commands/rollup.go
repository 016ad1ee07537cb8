package commands

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vsinha/prodplan/pkg/application/dto"
	"github.com/vsinha/prodplan/pkg/interfaces/cli/output"
)

var (
	rollupRetail   string
	rollupDiscount string
)

var rollupCmd = &cobra.Command{
	Use:   "rollup [model...]",
	Short: "Roll up the cost of the active revision of each model",
	Long:  "Rolls up material, labor and overhead for the active BOM revision of each model. With no models, every model with an active revision is rolled up.",
	RunE: func(cmd *cobra.Command, args []string) error {
		retail, discount, err := marginFlags()
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context(), "rollup")
		if err != nil {
			return err
		}
		defer env.Close()

		models := args
		if len(models) == 0 {
			models = activeModels(env)
		}
		for _, model := range models {
			run, err := env.Orchestrator.RunRollup(cmd.Context(), model)
			if run == nil {
				return err
			}
			if err != nil {
				zap.L().Warn("rollup skipped records", zap.String("model", model), zap.Error(err))
			}

			resp := dto.NewRollupResponse(run.Result, err)
			if !retail.IsZero() {
				m := run.Totals.Margin(retail, discount)
				resp.Margin = &m
			}
			report, rerr := output.RollupReport(resp)
			if rerr != nil {
				return rerr
			}
			report.Name = "rollup_" + model
			if err := render(cmd.OutOrStdout(), report); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rollupCmd.Flags().StringVar(&rollupRetail, "retail", "", "retail price for a margin estimate")
	rollupCmd.Flags().StringVar(&rollupDiscount, "discount", "0", "dealer discount percent applied to the retail price")
	rootCmd.AddCommand(rollupCmd)
}

func marginFlags() (decimal.Decimal, decimal.Decimal, error) {
	if rollupRetail == "" {
		return decimal.Zero, decimal.Zero, nil
	}
	retail, err := decimal.NewFromString(rollupRetail)
	if err != nil || retail.IsNegative() {
		return decimal.Zero, decimal.Zero, eris.Errorf("--retail must be a non-negative number, got %q", rollupRetail)
	}
	discount, err := decimal.NewFromString(rollupDiscount)
	if err != nil || discount.IsNegative() || discount.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, decimal.Zero, eris.Errorf("--discount must be between 0 and 100, got %q", rollupDiscount)
	}
	return retail, discount, nil
}

func activeModels(env *planEnv) []string {
	seen := map[string]bool{}
	var models []string
	for _, rev := range env.Dataset.Revisions {
		if rev.Active && !seen[rev.ModelRef] {
			seen[rev.ModelRef] = true
			models = append(models, rev.ModelRef)
		}
	}
	sort.Strings(models)
	return models
}
