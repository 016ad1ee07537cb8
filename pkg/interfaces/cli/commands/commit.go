package commands

import (
	"github.com/spf13/cobra"

	"github.com/vsinha/prodplan/pkg/application/dto"
	"github.com/vsinha/prodplan/pkg/interfaces/cli/output"
)

var commitVersion int64

var commitCmd = &cobra.Command{
	Use:   "commit <suggestion-id>...",
	Short: "Commit selected suggestions as purchase batches",
	Long: "Groups the selected suggestions by supplier and commits one purchase batch per supplier. " +
		"The commit is rejected when the snapshot moved past --version or a suggestion was already committed. " +
		"Use a sqlite or postgres store to keep batches between invocations.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "commit")
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Orchestrator.HandleCommit(cmd.Context(), dto.CommitRequest{
			SnapshotVersion:       commitVersion,
			SelectedSuggestionIDs: args,
		})
		report, rerr := output.CommitReport(resp)
		if rerr != nil {
			return rerr
		}
		if rerr := render(cmd.OutOrStdout(), report); rerr != nil {
			return rerr
		}
		return err
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch <batch-id>",
	Short: "Show a committed purchase batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		batch, err := env.Orchestrator.GetBatch(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		report, err := output.BatchReport(batch)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), report)
	},
}

func init() {
	commitCmd.Flags().Int64Var(&commitVersion, "version", 0, "snapshot version the suggestions were computed against")
	_ = commitCmd.MarkFlagRequired("version")
	rootCmd.AddCommand(commitCmd, batchCmd)
}
