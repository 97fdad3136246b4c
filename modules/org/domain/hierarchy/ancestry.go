package hierarchy

import (
	"fmt"
	"slices"
	"sort"
)

// BuildAncestry produces the closure rows for every root's subtree. A node at
// depth k under root r with ancestor chain r=a0..a(k-1) yields (r, ai, node,
// k-i) for each i. Roots yield nothing.
func BuildAncestry(roots []*ResolvedNode, limits Limits) ([]AncestryEdge, error) {
	limits = limits.orDefault()

	type item struct {
		node  *ResolvedNode
		chain []int64
	}

	stack := make([]item, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, item{node: roots[i]})
	}

	var edges []AncestryEdge
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		depth := len(it.chain)
		if depth >= limits.MaxDepth {
			return nil, fmt.Errorf("unit %d is deeper than %d levels", it.node.ID, limits.MaxDepth)
		}
		for i, ancestor := range it.chain {
			edges = append(edges, AncestryEdge{
				FundamentalUnitID: it.chain[0],
				AncestorUnitID:    ancestor,
				DescendantUnitID:  it.node.ID,
				Depth:             depth - i,
			})
		}

		if len(it.node.Children) == 0 {
			continue
		}
		chain := append(slices.Clone(it.chain), it.node.ID)
		for i := len(it.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, item{node: it.node.Children[i], chain: chain})
		}
	}
	return edges, nil
}

// AssembleForest rebuilds the nested view of all live fundamental units.
// A unit's parent is its depth-1 ancestor; siblings are ordered by
// DisplayOrder, then ID. Units that are not reachable from a root are left out.
func AssembleForest(units []Unit, edges []AncestryEdge, limits Limits) ([]*ResolvedNode, error) {
	idx := indexUnits(units, edges)
	var rootIDs []int64
	for _, u := range idx.sortedLive() {
		if u.IsFundamental {
			rootIDs = append(rootIDs, u.ID)
		}
	}
	return idx.assemble(rootIDs, limits)
}

// AssembleSubtree rebuilds the subtree rooted at rootID.
func AssembleSubtree(rootID int64, units []Unit, edges []AncestryEdge, limits Limits) (*ResolvedNode, error) {
	idx := indexUnits(units, edges)
	if _, ok := idx.byID[rootID]; !ok {
		return nil, ErrUnitNotFound
	}
	roots, err := idx.assemble([]int64{rootID}, limits)
	if err != nil {
		return nil, err
	}
	return roots[0], nil
}

type unitIndex struct {
	byID     map[int64]Unit
	parentOf map[int64][]int64
	children map[int64][]int64
}

func indexUnits(units []Unit, edges []AncestryEdge) *unitIndex {
	idx := &unitIndex{
		byID:     make(map[int64]Unit, len(units)),
		parentOf: make(map[int64][]int64),
		children: make(map[int64][]int64),
	}
	for _, u := range units {
		if !u.IsDeleted {
			idx.byID[u.ID] = u
		}
	}
	for _, e := range edges {
		if e.Depth != 1 {
			continue
		}
		if _, ok := idx.byID[e.AncestorUnitID]; !ok {
			continue
		}
		if _, ok := idx.byID[e.DescendantUnitID]; !ok {
			continue
		}
		if slices.Contains(idx.parentOf[e.DescendantUnitID], e.AncestorUnitID) {
			continue
		}
		idx.parentOf[e.DescendantUnitID] = append(idx.parentOf[e.DescendantUnitID], e.AncestorUnitID)
		idx.children[e.AncestorUnitID] = append(idx.children[e.AncestorUnitID], e.DescendantUnitID)
	}
	for parent, kids := range idx.children {
		idx.sortIDs(kids)
		idx.children[parent] = kids
	}
	return idx
}

func (idx *unitIndex) sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := idx.byID[ids[i]], idx.byID[ids[j]]
		if a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		return a.ID < b.ID
	})
}

func (idx *unitIndex) sortedLive() []Unit {
	ids := make([]int64, 0, len(idx.byID))
	for id := range idx.byID {
		ids = append(ids, id)
	}
	idx.sortIDs(ids)
	out := make([]Unit, len(ids))
	for i, id := range ids {
		out[i] = idx.byID[id]
	}
	return out
}

func (idx *unitIndex) assemble(rootIDs []int64, limits Limits) ([]*ResolvedNode, error) {
	limits = limits.orDefault()

	type item struct {
		node  *ResolvedNode
		depth int
	}

	roots := make([]*ResolvedNode, 0, len(rootIDs))
	stack := make([]item, 0, len(rootIDs))
	visited := make(map[int64]struct{}, len(idx.byID))
	for _, id := range rootIDs {
		n := idx.newNode(id)
		roots = append(roots, n)
		visited[id] = struct{}{}
		stack = append(stack, item{node: n})
	}

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if it.depth >= limits.MaxDepth {
			return nil, fmt.Errorf("unit %d is deeper than %d levels", it.node.ID, limits.MaxDepth)
		}
		for _, childID := range idx.children[it.node.ID] {
			if _, seen := visited[childID]; seen {
				continue
			}
			visited[childID] = struct{}{}
			child := idx.newNode(childID)
			it.node.Children = append(it.node.Children, child)
			stack = append(stack, item{node: child, depth: it.depth + 1})
		}
	}
	return roots, nil
}

func (idx *unitIndex) newNode(id int64) *ResolvedNode {
	u := idx.byID[id]
	return &ResolvedNode{ID: u.ID, Name: u.Name, Comment: u.Comment, IsActive: u.IsActive}
}
