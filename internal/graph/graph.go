// Package graph holds a campaign's follow-up sequence: one initial node plus
// an ordered, optionally branching set of follow-up nodes.
package graph

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/unclebandit/outreach-engine/internal/model"
)

type Direction string

const (
	MoveUp   Direction = "up"
	MoveDown Direction = "down"
)

// Graph is the follow-up structure for one campaign. The initial node is
// always sequence 0 and cannot be removed; follow-ups are kept sorted by
// sequence, contiguous from 1.
type Graph struct {
	CampaignID int
	Initial    *model.FollowUpNode
	FollowUps  []*model.FollowUpNode
}

// New builds a graph around the given initial node. The initial node's
// sequence is forced to 0.
func New(campaignID int, initial *model.FollowUpNode) *Graph {
	if initial.ID == "" {
		initial.ID = uuid.NewString()
	}
	initial.Sequence = 0
	initial.Enabled = true
	return &Graph{CampaignID: campaignID, Initial: initial}
}

// Node looks up any node, including the initial one.
func (g *Graph) Node(id string) *model.FollowUpNode {
	if g.Initial != nil && g.Initial.ID == id {
		return g.Initial
	}
	for _, n := range g.FollowUps {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// AddNode appends a follow-up node. Duplicate sequence numbers and dangling
// connection targets are rejected. A zero sequence is assigned the next free
// slot.
func (g *Graph) AddNode(n *model.FollowUpNode) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if g.Node(n.ID) != nil {
		return fmt.Errorf("node %s already exists", n.ID)
	}
	if n.Sequence == 0 {
		n.Sequence = len(g.FollowUps) + 1
	}
	for _, existing := range g.FollowUps {
		if existing.Sequence == n.Sequence {
			return fmt.Errorf("sequence %d already taken by node %s", n.Sequence, existing.ID)
		}
	}
	if n.DelayDays < 0 {
		return fmt.Errorf("delay days must be non-negative, got %d", n.DelayDays)
	}
	if err := g.checkConnections(n); err != nil {
		return err
	}

	g.FollowUps = append(g.FollowUps, n)
	g.sortFollowUps()
	return nil
}

// RemoveNode deletes a follow-up node, cascades connection cleanup, and
// renumbers the survivors to stay contiguous from 1. Removing the initial
// node is forbidden.
func (g *Graph) RemoveNode(id string) error {
	if g.Initial != nil && g.Initial.ID == id {
		return fmt.Errorf("initial node cannot be removed")
	}
	idx := -1
	for i, n := range g.FollowUps {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("node %s not found", id)
	}

	g.FollowUps = append(g.FollowUps[:idx], g.FollowUps[idx+1:]...)

	// Drop any connection that pointed at the removed node.
	clearRefs := func(n *model.FollowUpNode) {
		if n.Connections.OnResponse == id {
			n.Connections.OnResponse = ""
		}
		if n.Connections.OnNoResponse == id {
			n.Connections.OnNoResponse = ""
		}
	}
	if g.Initial != nil {
		clearRefs(g.Initial)
	}
	for _, n := range g.FollowUps {
		clearRefs(n)
	}

	g.renumber()
	return nil
}

// Reorder swaps a node's sequence with its neighbor in the given direction.
// No-op at either boundary.
func (g *Graph) Reorder(id string, dir Direction) error {
	idx := -1
	for i, n := range g.FollowUps {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("node %s not found", id)
	}

	var other int
	switch dir {
	case MoveUp:
		other = idx - 1
	case MoveDown:
		other = idx + 1
	default:
		return fmt.Errorf("unknown direction %q", dir)
	}
	if other < 0 || other >= len(g.FollowUps) {
		return nil
	}

	a, b := g.FollowUps[idx], g.FollowUps[other]
	a.Sequence, b.Sequence = b.Sequence, a.Sequence
	g.sortFollowUps()
	return nil
}

// DefaultNext returns the follow-up with the next-higher sequence after the
// given node, or nil when the node is last. The initial node's default next
// is the first follow-up.
func (g *Graph) DefaultNext(currentID string) *model.FollowUpNode {
	cur := g.Node(currentID)
	if cur == nil {
		return nil
	}
	for _, n := range g.FollowUps {
		if n.Sequence > cur.Sequence {
			return n
		}
	}
	return nil
}

// BranchTarget resolves an explicit connection for the branch kind, falling
// back to DefaultNext when none is configured.
func (g *Graph) BranchTarget(currentID string, kind model.BranchKind) *model.FollowUpNode {
	cur := g.Node(currentID)
	if cur == nil {
		return nil
	}
	var target string
	switch kind {
	case model.OnResponse:
		target = cur.Connections.OnResponse
	case model.OnNoResponse:
		target = cur.Connections.OnNoResponse
	}
	if target != "" {
		return g.Node(target)
	}
	return g.DefaultNext(currentID)
}

// Connect sets an explicit branch edge. An empty target clears the edge.
func (g *Graph) Connect(sourceID string, kind model.BranchKind, targetID string) error {
	src := g.Node(sourceID)
	if src == nil {
		return fmt.Errorf("node %s not found", sourceID)
	}
	if targetID != "" && g.Node(targetID) == nil {
		return fmt.Errorf("node %s connects to unknown node %s", sourceID, targetID)
	}
	switch kind {
	case model.OnResponse:
		src.Connections.OnResponse = targetID
	case model.OnNoResponse:
		src.Connections.OnNoResponse = targetID
	default:
		return fmt.Errorf("unknown branch kind %q", kind)
	}
	return nil
}

// Validate checks structural invariants: an initial node exists, sequences
// are unique and contiguous from 1, and every connection target resolves.
func (g *Graph) Validate() error {
	if g.Initial == nil {
		return fmt.Errorf("graph has no initial node")
	}
	if g.Initial.Sequence != 0 {
		return fmt.Errorf("initial node must be sequence 0, got %d", g.Initial.Sequence)
	}
	seen := make(map[int]string, len(g.FollowUps))
	for _, n := range g.FollowUps {
		if other, dup := seen[n.Sequence]; dup {
			return fmt.Errorf("duplicate sequence %d on nodes %s and %s", n.Sequence, other, n.ID)
		}
		seen[n.Sequence] = n.ID
	}
	for i, n := range g.FollowUps {
		if n.Sequence != i+1 {
			return fmt.Errorf("sequence gap: node %s has sequence %d, want %d", n.ID, n.Sequence, i+1)
		}
	}
	if err := g.checkConnections(g.Initial); err != nil {
		return err
	}
	for _, n := range g.FollowUps {
		if err := g.checkConnections(n); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) checkConnections(n *model.FollowUpNode) error {
	for _, target := range []string{n.Connections.OnResponse, n.Connections.OnNoResponse} {
		if target == "" {
			continue
		}
		if target == n.ID {
			continue // self-loop tolerated, the engine caps traversal
		}
		if g.Node(target) == nil {
			return fmt.Errorf("node %s connects to unknown node %s", n.ID, target)
		}
	}
	return nil
}

func (g *Graph) sortFollowUps() {
	sort.SliceStable(g.FollowUps, func(i, j int) bool {
		return g.FollowUps[i].Sequence < g.FollowUps[j].Sequence
	})
}

func (g *Graph) renumber() {
	g.sortFollowUps()
	for i, n := range g.FollowUps {
		n.Sequence = i + 1
	}
}
