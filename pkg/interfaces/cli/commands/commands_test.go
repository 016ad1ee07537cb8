package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsinha/prodplan/pkg/application/dto"
	"github.com/vsinha/prodplan/pkg/domain/entities"
	"github.com/vsinha/prodplan/pkg/domain/repositories"
)

const scenarioDir = "../../../../scenarios/d28cc"

// execute runs the root command with fresh flag values and returns
// what it printed
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PRODPLAN_LOG_LEVEL", "error")

	dataDir, outputFormat, outputDir = "", "text", ""
	rollupRetail, rollupDiscount = "", "0"
	mrpAsOf, commitVersion, servePort = "", 0, 0

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append(args, "--data", scenarioDir))
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"rollup", "mrp", "reconcile", "commit", "batch", "load-inventory", "serve", "migrate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Flags(t *testing.T) {
	for _, name := range []string{"data", "format", "output"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "root should have --%s", name)
	}

	version := commitCmd.Flags().Lookup("version")
	require.NotNil(t, version)
	assert.Equal(t, []string{"true"}, version.Annotations["cobra_annotation_bash_completion_one_required_flag"])

	port := serveCmd.Flags().Lookup("port")
	require.NotNil(t, port)
	assert.Equal(t, "0", port.DefValue)
}

func TestRollupCommand_JSON(t *testing.T) {
	t.Setenv("PRODPLAN_STORE_DRIVER", "memory")

	out, err := execute(t, "rollup", "D28CC", "--format", "json", "--retail", "5000", "--discount", "10")
	require.NoError(t, err)

	var resp dto.RollupResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "D28CC-B", resp.RevisionID)
	assert.Equal(t, "3084.7", resp.Totals.Material.String())
	require.NotNil(t, resp.Margin)
	assert.Equal(t, "4500", resp.Margin.EffectiveRetail.String())
}

func TestRollupCommand_AllModels(t *testing.T) {
	t.Setenv("PRODPLAN_STORE_DRIVER", "memory")

	out, err := execute(t, "rollup")
	require.NoError(t, err)
	assert.Contains(t, out, "Cost Rollup D28CC / D28CC-B")
	assert.Contains(t, out, "Cost Rollup HULL / HULL-2025")
}

func TestRollupCommand_Errors(t *testing.T) {
	t.Setenv("PRODPLAN_STORE_DRIVER", "memory")

	_, err := execute(t, "rollup", "D28CC", "--retail", "-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--retail")

	_, err = execute(t, "rollup", "NOPE")
	require.Error(t, err)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestMRPCommand(t *testing.T) {
	t.Setenv("PRODPLAN_STORE_DRIVER", "memory")

	out, err := execute(t, "mrp", "--as-of", "2025-03-03")
	require.NoError(t, err)
	assert.Contains(t, out, "MRP Results")

	out, err = execute(t, "mrp", "--as-of", "2025-03-03", "--format", "json")
	require.NoError(t, err)
	var resp dto.MRPResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, int64(1), resp.SnapshotVersion)
	assert.Len(t, resp.Suggestions, 3)

	_, err = execute(t, "mrp", "--as-of", "03/03/2025")
	require.Error(t, err)
}

func TestMRPCommand_CSVNeedsOutputDir(t *testing.T) {
	t.Setenv("PRODPLAN_STORE_DRIVER", "memory")

	_, err := execute(t, "mrp", "--format", "csv")
	require.Error(t, err)

	dir := t.TempDir()
	_, err = execute(t, "mrp", "--format", "csv", "--output", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "mrp_suggestions.csv"))
}

func TestReconcileCommand(t *testing.T) {
	t.Setenv("PRODPLAN_STORE_DRIVER", "memory")

	out, err := execute(t, "reconcile", "D28CC", "--format", "json")
	require.NoError(t, err)
	var resp dto.ReconcileResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.ModelSummaries, 1)
	assert.Equal(t, "D28CC", resp.ModelSummaries[0].ModelRef)
	assert.NotEmpty(t, resp.Records)
}

func TestCommitCommand_Memory(t *testing.T) {
	t.Setenv("PRODPLAN_STORE_DRIVER", "memory")

	out, err := execute(t, "mrp", "--format", "json")
	require.NoError(t, err)
	var run dto.MRPResponse
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	require.NotEmpty(t, run.Suggestions)
	id := run.Suggestions[0].ID

	out, err = execute(t, "commit", id, "--version", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Batches: 1")

	out, err = execute(t, "commit", id, "--version", "7")
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrStaleSnapshot)
	assert.Contains(t, out, dto.KindStaleSnapshot)
}

// a file-backed store keeps batches and consumed suggestions between
// invocations
func TestCommitCommand_SQLite(t *testing.T) {
	t.Setenv("PRODPLAN_STORE_DRIVER", "sqlite")
	t.Setenv("PRODPLAN_STORE_SQLITE_PATH", filepath.Join(t.TempDir(), "prodplan.db"))

	_, err := execute(t, "migrate")
	require.NoError(t, err)

	out, err := execute(t, "mrp", "--format", "json")
	require.NoError(t, err)
	var run dto.MRPResponse
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	require.NotEmpty(t, run.Suggestions)
	id := run.Suggestions[0].ID

	out, err = execute(t, "commit", id, "--version", "1", "--format", "json")
	require.NoError(t, err)
	var committed dto.CommitResponse
	require.NoError(t, json.Unmarshal([]byte(out), &committed))
	require.Len(t, committed.BatchIDs, 1)
	assert.Equal(t, int64(2), committed.SnapshotVersion)

	_, err = execute(t, "commit", id, "--version", "2")
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrAlreadyConsumed)

	out, err = execute(t, "mrp", "--format", "json")
	require.NoError(t, err)
	var after dto.MRPResponse
	require.NoError(t, json.Unmarshal([]byte(out), &after))
	assert.Equal(t, int64(2), after.SnapshotVersion)
	assert.Len(t, after.Suggestions, len(run.Suggestions)-1)

	out, err = execute(t, "batch", committed.BatchIDs[0])
	require.NoError(t, err)
	assert.Contains(t, out, "Purchase Batch "+committed.BatchIDs[0])
	assert.Contains(t, out, id)

	out, err = execute(t, "load-inventory")
	require.NoError(t, err)
	assert.Contains(t, out, "Snapshot version: 3")
}

func TestMigrateCommand_MemoryRejected(t *testing.T) {
	t.Setenv("PRODPLAN_STORE_DRIVER", "memory")

	_, err := execute(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate needs the sqlite or postgres driver")
}
