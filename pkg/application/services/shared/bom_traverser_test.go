package shared

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsinha/prodplan/pkg/domain/entities"
)

type levelRecorder struct {
	visited []string
	levels  map[string]int
}

func (r *levelRecorder) VisitNode(_ context.Context, nodeCtx NodeContext) (interface{}, bool, error) {
	r.levels[nodeCtx.Node.ID] = nodeCtx.Level
	return nil, true, nil
}

func (r *levelRecorder) ProcessChildren(_ context.Context, nodeCtx NodeContext, _ interface{}, _ []interface{}) (interface{}, error) {
	r.visited = append(r.visited, nodeCtx.Node.ID)
	return nodeCtx.Node.ID, nil
}

func testNode(id, component, parent string, assembly bool) entities.BOMNode {
	return entities.BOMNode{
		ID:           id,
		ComponentRef: entities.ComponentCode(component),
		ParentID:     parent,
		Quantity:     decimal.NewFromInt(1),
		ScrapFactor:  decimal.NewFromInt(1),
		IsAssembly:   assembly,
	}
}

func TestTraverseAll_PostOrder(t *testing.T) {
	arena := NewArena([]entities.BOMNode{
		testNode("N3", "B", "N1", false),
		testNode("N1", "HULL", "", true),
		testNode("N2", "A", "N1", false),
		testNode("M1", "TRAILER", "", false),
	}, nil)

	recorder := &levelRecorder{levels: make(map[string]int)}
	results, err := NewBOMTraverser(arena, nil).TraverseAll(context.Background(), recorder)

	require.NoError(t, err)
	assert.Equal(t, []interface{}{"M1", "N1"}, results)
	assert.Equal(t, []string{"M1", "N2", "N3", "N1"}, recorder.visited)
	assert.Equal(t, 1, recorder.levels["N3"])
	assert.Equal(t, 0, recorder.levels["N1"])
}

func TestTraverseBOM_MissingComponent(t *testing.T) {
	arena := NewArena([]entities.BOMNode{
		testNode("N1", "", "", true),
		testNode("N2", "GHOST", "N1", false),
	}, nil)
	catalog := entities.NewComponentIndex(nil)

	_, err := NewBOMTraverser(arena, catalog).TraverseAll(context.Background(), &levelRecorder{levels: map[string]int{}})

	var missing *entities.MissingReferenceError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "N2", missing.NodeID)
	assert.Equal(t, entities.ComponentCode("GHOST"), missing.ComponentRef)
}

func TestTraverseBOM_Cancelled(t *testing.T) {
	arena := NewArena([]entities.BOMNode{testNode("N1", "A", "", false)}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBOMTraverser(arena, nil).TraverseAll(ctx, &levelRecorder{levels: map[string]int{}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestArena_ExcludedSubtreeUnreachable(t *testing.T) {
	arena := NewArena([]entities.BOMNode{
		testNode("N1", "DECK", "", true),
		testNode("N2", "CONSOLE", "N1", true),
		testNode("N3", "GAUGE", "N2", false),
	}, map[string]bool{"N2": true})

	collector := NewLeafCollector(arena)
	_, err := NewBOMTraverser(arena, nil).TraverseAll(context.Background(), collector)

	require.NoError(t, err)
	assert.Empty(t, collector.Leaves)
}

func TestLeafCollector(t *testing.T) {
	arena := NewArena([]entities.BOMNode{
		testNode("N1", "HULL", "", true),
		testNode("N2", "ENGINE", "N1", true),
		testNode("N3", "PROP", "N2", false),
		testNode("N4", "CLEAT", "N1", false),
	}, nil)

	collector := NewLeafCollector(arena)
	_, err := NewBOMTraverser(arena, nil).TraverseAll(context.Background(), collector)

	require.NoError(t, err)
	ids := make([]string, 0, len(collector.Leaves))
	for _, l := range collector.Leaves {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{"N3", "N4"}, ids)
}
