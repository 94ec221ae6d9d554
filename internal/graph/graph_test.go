package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unclebandit/outreach-engine/internal/graph"
	"github.com/unclebandit/outreach-engine/internal/model"
)

func newTestGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New(1, &model.FollowUpNode{ID: "initial", TemplateID: "tpl-0"})
	for i, id := range []string{"f1", "f2", "f3"} {
		err := g.AddNode(&model.FollowUpNode{
			ID:         id,
			TemplateID: "tpl-" + id,
			Sequence:   i + 1,
			Enabled:    true,
			DelayDays:  2,
		})
		require.NoError(t, err)
	}
	return g
}

func sequences(g *graph.Graph) []int {
	out := make([]int, 0, len(g.FollowUps))
	for _, n := range g.FollowUps {
		out = append(out, n.Sequence)
	}
	return out
}

func TestAddNodeRejectsDuplicateSequence(t *testing.T) {
	g := newTestGraph(t)
	err := g.AddNode(&model.FollowUpNode{ID: "clash", Sequence: 2})
	assert.Error(t, err)
}

func TestAddNodeAssignsIDAndSequence(t *testing.T) {
	g := newTestGraph(t)
	n := &model.FollowUpNode{TemplateID: "tpl-x", Enabled: true}
	require.NoError(t, g.AddNode(n))
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, 4, n.Sequence)
}

func TestAddNodeRejectsDanglingConnection(t *testing.T) {
	g := newTestGraph(t)
	err := g.AddNode(&model.FollowUpNode{
		ID:          "f4",
		Sequence:    4,
		Connections: model.Connections{OnResponse: "ghost"},
	})
	assert.Error(t, err)
}

func TestRemoveNodeRenumbersAndCascades(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.Connect("f1", model.OnResponse, "f2"))
	require.NoError(t, g.Connect("f3", model.OnNoResponse, "f2"))

	require.NoError(t, g.RemoveNode("f2"))

	assert.Equal(t, []int{1, 2}, sequences(g))
	assert.Equal(t, "f1", g.FollowUps[0].ID)
	assert.Equal(t, "f3", g.FollowUps[1].ID)

	// Connections referencing the removed node are cleared.
	assert.Empty(t, g.Node("f1").Connections.OnResponse)
	assert.Empty(t, g.Node("f3").Connections.OnNoResponse)

	assert.NoError(t, g.Validate())
}

func TestRemoveInitialNodeForbidden(t *testing.T) {
	g := newTestGraph(t)
	assert.Error(t, g.RemoveNode("initial"))
}

func TestReorderSwapsNeighbors(t *testing.T) {
	g := newTestGraph(t)

	require.NoError(t, g.Reorder("f2", graph.MoveUp))
	assert.Equal(t, "f2", g.FollowUps[0].ID)
	assert.Equal(t, "f1", g.FollowUps[1].ID)
	assert.Equal(t, []int{1, 2, 3}, sequences(g))

	// Boundary moves are no-ops.
	require.NoError(t, g.Reorder("f2", graph.MoveUp))
	assert.Equal(t, "f2", g.FollowUps[0].ID)
	require.NoError(t, g.Reorder("f3", graph.MoveDown))
	assert.Equal(t, "f3", g.FollowUps[2].ID)
}

func TestDefaultNext(t *testing.T) {
	g := newTestGraph(t)

	next := g.DefaultNext("initial")
	require.NotNil(t, next)
	assert.Equal(t, "f1", next.ID)

	next = g.DefaultNext("f1")
	require.NotNil(t, next)
	assert.Equal(t, "f2", next.ID)

	assert.Nil(t, g.DefaultNext("f3"))
	assert.Nil(t, g.DefaultNext("ghost"))
}

func TestBranchTargetFallsBackToDefault(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.Connect("f1", model.OnResponse, "f3"))

	got := g.BranchTarget("f1", model.OnResponse)
	require.NotNil(t, got)
	assert.Equal(t, "f3", got.ID)

	// No explicit onNoResponse edge, default order applies.
	got = g.BranchTarget("f1", model.OnNoResponse)
	require.NotNil(t, got)
	assert.Equal(t, "f2", got.ID)
}

func TestValidateCatchesGapsAndDuplicates(t *testing.T) {
	g := newTestGraph(t)
	assert.NoError(t, g.Validate())

	g.FollowUps[2].Sequence = 5
	assert.Error(t, g.Validate())

	g.FollowUps[2].Sequence = 2
	assert.Error(t, g.Validate())
}

func TestSequenceContiguityAfterChurn(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.AddNode(&model.FollowUpNode{ID: "f4", Sequence: 4, Enabled: true}))
	require.NoError(t, g.RemoveNode("f1"))
	require.NoError(t, g.RemoveNode("f3"))
	require.NoError(t, g.Reorder("f4", graph.MoveUp))

	assert.Equal(t, []int{1, 2}, sequences(g))
	assert.NoError(t, g.Validate())
}
