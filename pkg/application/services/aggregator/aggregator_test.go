package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsinha/prodplan/pkg/application/services/mrp"
	"github.com/vsinha/prodplan/pkg/domain/entities"
	"github.com/vsinha/prodplan/pkg/infrastructure/events"
	"github.com/vsinha/prodplan/pkg/infrastructure/metrics"
	testhelpers "github.com/vsinha/prodplan/pkg/infrastructure/testing"
)

var (
	cleatID   = entities.SuggestionID("CLEAT-SS", 1, 15, 40)
	mountID   = entities.SuggestionID("ENGINE-MOUNT", 1, 3, 8)
	harnessID = entities.SuggestionID("WIRING-HARNESS", 1, 0, 4)
)

func newTestService(t *testing.T, opts ...Option) (*Service, *testhelpers.Repositories) {
	t.Helper()
	repos, err := testhelpers.BuildD28CCRepositories(context.Background())
	require.NoError(t, err)

	opts = append([]Option{WithClock(func() time.Time { return testhelpers.AsOf })}, opts...)
	service := NewService(
		mrp.NewMRPService(mrp.DefaultConfig(), nil),
		repos.Components,
		repos.Inventory,
		repos.Batches,
		opts...,
	)
	return service, repos
}

func TestGroupBySupplier(t *testing.T) {
	suggestions := []entities.MRPSuggestion{
		{ID: "s3", ComponentRef: "WIRING-HARNESS", SupplierRef: "MARINEPWR", EstimatedCost: decimal.NewFromInt(980)},
		{ID: "s1", ComponentRef: "CLEAT-SS", SupplierRef: "SEADOG", EstimatedCost: decimal.NewFromInt(750)},
		{ID: "s2", ComponentRef: "ENGINE-MOUNT", SupplierRef: "MARINEPWR", EstimatedCost: decimal.NewFromInt(4080)},
	}

	drafts := GroupBySupplier(suggestions)

	require.Len(t, drafts, 2)
	assert.Equal(t, "MARINEPWR", drafts[0].SupplierRef)
	assert.True(t, drafts[0].TotalValue.Equal(decimal.NewFromInt(5060)), "total %s", drafts[0].TotalValue)
	require.Len(t, drafts[0].Lines, 2)
	assert.Equal(t, entities.ComponentCode("ENGINE-MOUNT"), drafts[0].Lines[0].ComponentRef)
	assert.Equal(t, entities.ComponentCode("WIRING-HARNESS"), drafts[0].Lines[1].ComponentRef)
	assert.Equal(t, "SEADOG", drafts[1].SupplierRef)
	assert.True(t, drafts[1].TotalValue.Equal(decimal.NewFromInt(750)))

	assert.Empty(t, GroupBySupplier(nil))
}

func TestCommit_GroupsAndConsumes(t *testing.T) {
	store := events.NewInMemoryEventStore(nil)
	recorder := metrics.NewRecorder()
	service, repos := newTestService(t, WithEventStore(store), WithMetrics(recorder))
	ctx := context.Background()

	result, err := service.Commit(ctx, CommitRequest{
		SnapshotVersion:       1,
		SelectedSuggestionIDs: []string{cleatID, mountID, harnessID},
	})
	require.NoError(t, err)

	assert.Equal(t, entities.SnapshotVersion(2), result.SnapshotVersion)
	require.Len(t, result.Batches, 2)
	assert.Equal(t, "MARINEPWR", result.Batches[0].SupplierRef)
	assert.True(t, result.Batches[0].TotalValue.Equal(decimal.NewFromInt(5060)))
	assert.Equal(t, "SEADOG", result.Batches[1].SupplierRef)
	assert.True(t, result.Batches[1].TotalValue.Equal(decimal.NewFromInt(750)))
	assert.ElementsMatch(t, []string{cleatID, mountID, harnessID}, result.ConsumedSuggestionIDs)

	for _, id := range result.BatchIDs {
		batch, err := repos.Batches.GetBatch(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entities.SnapshotVersion(1), batch.SnapshotVersion)
		assert.Equal(t, testhelpers.AsOf, batch.CreatedAt)
	}

	version, err := repos.Inventory.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities.SnapshotVersion(2), version)

	all, err := store.ReadAllEvents(0)
	require.NoError(t, err)
	// one batch.committed per batch plus one suggestion.consumed per line
	assert.Len(t, all, 5)
	assert.Equal(t, events.BatchCommittedEvent, all[0].Type())

	series, err := testutil.GatherAndCount(recorder.Registry(), "prodplan_commits_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}

func TestCommit_StaleSnapshot(t *testing.T) {
	service, repos := newTestService(t)
	ctx := context.Background()

	_, err := repos.Inventory.LoadPositions(ctx, []entities.InventoryPosition{{ComponentRef: "PUMP-BILGE", QtyOnHand: 2}})
	require.NoError(t, err)

	result, err := service.Commit(ctx, CommitRequest{SnapshotVersion: 1, SelectedSuggestionIDs: []string{cleatID}})

	assert.Nil(t, result)
	var stale *entities.StaleSnapshotError
	require.True(t, errors.As(err, &stale))
	assert.Equal(t, entities.SnapshotVersion(1), stale.Expected)
	assert.Equal(t, entities.SnapshotVersion(2), stale.Current)

	consumed, err := repos.Batches.ConsumedSuggestions(ctx, []string{cleatID})
	require.NoError(t, err)
	assert.Empty(t, consumed)
}

func TestCommit_AlreadyConsumed(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Commit(ctx, CommitRequest{SnapshotVersion: 1, SelectedSuggestionIDs: []string{cleatID}})
	require.NoError(t, err)

	// Same suggestion against the new version: consumption wins over staleness
	for _, version := range []entities.SnapshotVersion{1, 2} {
		_, err = service.Commit(ctx, CommitRequest{SnapshotVersion: version, SelectedSuggestionIDs: []string{mountID, cleatID}})
		var consumed *entities.AlreadyConsumedError
		require.True(t, errors.As(err, &consumed), "version %d: %v", version, err)
		assert.Equal(t, []string{cleatID}, consumed.SuggestionIDs)
		assert.True(t, errors.Is(err, entities.ErrAlreadyConsumed))
	}
}

func TestCommit_InvalidSelection(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want string
	}{
		{name: "empty", ids: nil, want: "no suggestions selected"},
		{name: "duplicate", ids: []string{cleatID, cleatID}, want: "selected twice"},
		{name: "unknown", ids: []string{cleatID, "no-such-suggestion"}, want: "unknown suggestion no-such-suggestion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, repos := newTestService(t)

			_, err := service.Commit(context.Background(), CommitRequest{SnapshotVersion: 1, SelectedSuggestionIDs: tt.ids})

			var validation *entities.ValidationError
			require.True(t, errors.As(err, &validation), "got %v", err)
			assert.Contains(t, validation.Message, tt.want)

			version, _ := repos.Inventory.CurrentVersion(context.Background())
			assert.Equal(t, entities.SnapshotVersion(1), version)
		})
	}
}

func TestCommit_ConcurrentSingleWinner(t *testing.T) {
	service, repos := newTestService(t)
	ctx := context.Background()

	selections := [][]string{
		{cleatID},
		{mountID},
		{harnessID},
		{cleatID, mountID},
		{mountID, harnessID},
		{cleatID, harnessID},
		{cleatID, mountID, harnessID},
		{harnessID},
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for _, ids := range selections {
		wg.Add(1)
		go func(ids []string) {
			defer wg.Done()
			_, err := service.Commit(ctx, CommitRequest{SnapshotVersion: 1, SelectedSuggestionIDs: ids})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, entities.ErrStaleSnapshot), errors.Is(err, entities.ErrAlreadyConsumed):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(ids)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, len(selections)-1, rejected)

	version, err := repos.Inventory.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities.SnapshotVersion(2), version)
}

func TestPending_UnselectedSuggestionsPersist(t *testing.T) {
	service, repos := newTestService(t)
	ctx := context.Background()
	mrpService := mrp.NewMRPService(mrp.DefaultConfig(), nil)

	_, err := service.Commit(ctx, CommitRequest{SnapshotVersion: 1, SelectedSuggestionIDs: []string{cleatID, mountID}})
	require.NoError(t, err)

	run, err := mrpService.RunCurrent(ctx, repos.Components, repos.Inventory, testhelpers.AsOf)
	require.NoError(t, err)
	assert.Equal(t, entities.SnapshotVersion(2), run.SnapshotVersion)

	pending, err := service.Pending(ctx, run.Suggestions)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, harnessID, pending[0].ID)

	// The leftover suggestion commits against the new version only
	_, err = service.Commit(ctx, CommitRequest{SnapshotVersion: 1, SelectedSuggestionIDs: []string{harnessID}})
	assert.True(t, errors.Is(err, entities.ErrStaleSnapshot))

	result, err := service.Commit(ctx, CommitRequest{SnapshotVersion: 2, SelectedSuggestionIDs: []string{harnessID}})
	require.NoError(t, err)
	assert.Equal(t, entities.SnapshotVersion(3), result.SnapshotVersion)
	assert.Equal(t, []string{harnessID}, result.ConsumedSuggestionIDs)
}
