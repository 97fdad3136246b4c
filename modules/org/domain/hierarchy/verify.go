package hierarchy

import (
	"fmt"
	"sort"
)

const (
	IssueDanglingEdge         = "dangling_edge"
	IssueRootNotFundamental   = "root_not_fundamental"
	IssueFundamentalHasParent = "fundamental_has_parent"
	IssueMissingParent        = "missing_parent"
	IssueMultipleParents      = "multiple_parents"
	IssueUnreachable          = "unreachable"
	IssueMissingEdge          = "missing_edge"
	IssueUnexpectedEdge       = "unexpected_edge"
	IssueWrongDepth           = "wrong_depth"
)

type Issue struct {
	Kind   string `json:"kind"`
	UnitID int64  `json:"unit_id"`
	Detail string `json:"detail"`
}

type VerifyReport struct {
	Units  int     `json:"units"`
	Roots  int     `json:"roots"`
	Edges  int     `json:"edges"`
	Issues []Issue `json:"issues"`
}

func (r VerifyReport) Consistent() bool { return len(r.Issues) == 0 }

type edgeKey struct {
	root, ancestor, descendant int64
}

// Verify checks a persisted ancestry index against the tree it encodes: the
// parent relation is taken from depth-1 rows, the closure is recomputed from
// it and compared row by row with what is stored.
func Verify(units []Unit, edges []AncestryEdge, limits Limits) VerifyReport {
	report := VerifyReport{Edges: len(edges)}
	add := func(kind string, unitID int64, format string, args ...any) {
		report.Issues = append(report.Issues, Issue{Kind: kind, UnitID: unitID, Detail: fmt.Sprintf(format, args...)})
	}

	live := make(map[int64]Unit, len(units))
	for _, u := range units {
		if u.IsDeleted {
			continue
		}
		live[u.ID] = u
		report.Units++
		if u.IsFundamental {
			report.Roots++
		}
	}

	stored := make(map[edgeKey]int, len(edges))
	parents := make(map[int64]int)
	for _, e := range edges {
		for _, id := range []int64{e.FundamentalUnitID, e.AncestorUnitID, e.DescendantUnitID} {
			if _, ok := live[id]; !ok {
				add(IssueDanglingEdge, id, "edge (%d,%d,%d,%d) references a missing or deleted unit",
					e.FundamentalUnitID, e.AncestorUnitID, e.DescendantUnitID, e.Depth)
				break
			}
		}
		if root, ok := live[e.FundamentalUnitID]; ok && !root.IsFundamental {
			add(IssueRootNotFundamental, e.FundamentalUnitID, "edge root %d is not a fundamental unit", e.FundamentalUnitID)
		}
		if e.Depth == 1 {
			parents[e.DescendantUnitID]++
		}
		stored[edgeKey{e.FundamentalUnitID, e.AncestorUnitID, e.DescendantUnitID}] = e.Depth
	}

	for _, u := range sortedUnits(live) {
		n := parents[u.ID]
		switch {
		case u.IsFundamental && n > 0:
			add(IssueFundamentalHasParent, u.ID, "fundamental unit %d has %d parent rows", u.ID, n)
		case !u.IsFundamental && n == 0:
			add(IssueMissingParent, u.ID, "unit %d has no parent row", u.ID)
		case !u.IsFundamental && n > 1:
			add(IssueMultipleParents, u.ID, "unit %d has %d parent rows", u.ID, n)
		}
	}

	forest, err := AssembleForest(units, edges, limits)
	if err != nil {
		add(IssueUnreachable, 0, "%v", err)
		return report
	}
	reachable := make(map[int64]struct{}, len(live))
	stack := append([]*ResolvedNode(nil), forest...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		reachable[n.ID] = struct{}{}
		stack = append(stack, n.Children...)
	}
	for _, u := range sortedUnits(live) {
		if _, ok := reachable[u.ID]; !ok && !u.IsFundamental && parents[u.ID] > 0 {
			add(IssueUnreachable, u.ID, "unit %d is not reachable from any fundamental unit", u.ID)
		}
	}

	expected, err := BuildAncestry(forest, limits)
	if err != nil {
		add(IssueUnreachable, 0, "%v", err)
		return report
	}
	want := make(map[edgeKey]int, len(expected))
	for _, e := range expected {
		k := edgeKey{e.FundamentalUnitID, e.AncestorUnitID, e.DescendantUnitID}
		want[k] = e.Depth
		got, ok := stored[k]
		switch {
		case !ok:
			add(IssueMissingEdge, e.DescendantUnitID, "missing edge (%d,%d,%d,%d)", k.root, k.ancestor, k.descendant, e.Depth)
		case got != e.Depth:
			add(IssueWrongDepth, e.DescendantUnitID, "edge (%d,%d,%d) has depth %d, expected %d", k.root, k.ancestor, k.descendant, got, e.Depth)
		}
	}
	for _, e := range edges {
		k := edgeKey{e.FundamentalUnitID, e.AncestorUnitID, e.DescendantUnitID}
		if _, ok := want[k]; !ok {
			add(IssueUnexpectedEdge, e.DescendantUnitID, "unexpected edge (%d,%d,%d,%d)", k.root, k.ancestor, k.descendant, e.Depth)
		}
	}
	return report
}

func sortedUnits(m map[int64]Unit) []Unit {
	out := make([]Unit, 0, len(m))
	for _, u := range m {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
