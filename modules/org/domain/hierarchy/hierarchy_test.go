package hierarchy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func node(id int64, name string, children ...*DesiredNode) *DesiredNode {
	return &DesiredNode{ID: id, Name: name, IsActive: true, Children: children}
}

func resolved(id int64, children ...*ResolvedNode) *ResolvedNode {
	return &ResolvedNode{ID: id, Children: children}
}

func requireValidationCode(t *testing.T, err error, code string) *ValidationError {
	t.Helper()
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
	require.Equal(t, code, vErr.Code)
	return vErr
}

func TestValidate_AcceptsWellFormedForest(t *testing.T) {
	forest := []*DesiredNode{
		node(1, "HQ", node(0, "Sales"), node(3, "Ops", node(0, "Ops East"))),
		node(0, "Branch"),
	}
	forest[0].Assignments = []Assignment{
		{EmployeeID: 7, Role: RoleSupervisor},
		{EmployeeID: 7, Role: RoleMember},
	}
	require.NoError(t, Validate(forest, DefaultLimits))
	require.NoError(t, Validate(nil, DefaultLimits))
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		forest []*DesiredNode
		code   string
		path   string
	}{
		{
			name:   "empty name",
			forest: []*DesiredNode{node(0, "HQ", node(0, "   "))},
			code:   CodeEmptyName,
			path:   "units[0].children[0]",
		},
		{
			name:   "negative id",
			forest: []*DesiredNode{node(-4, "HQ")},
			code:   CodeInvalidID,
			path:   "units[0]",
		},
		{
			name:   "duplicate across roots",
			forest: []*DesiredNode{node(5, "A"), node(0, "B", node(5, "A again"))},
			code:   CodeDuplicateID,
			path:   "units[1].children[0]",
		},
		{
			name:   "child repeats ancestor id",
			forest: []*DesiredNode{node(2, "A", node(0, "B", node(2, "A loop")))},
			code:   CodeCycle,
			path:   "units[0].children[0].children[0]",
		},
		{
			name:   "null child",
			forest: []*DesiredNode{node(0, "A", nil)},
			code:   CodeInvalidBody,
			path:   "units[0].children[0]",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.forest, DefaultLimits)
			vErr := requireValidationCode(t, err, tc.code)
			if tc.path != "" {
				require.Equal(t, tc.path, vErr.Path)
			}
		})
	}
}

func TestValidate_NameLength(t *testing.T) {
	long := make([]rune, MaxNameLength+1)
	for i := range long {
		long[i] = 'ж'
	}
	err := Validate([]*DesiredNode{node(0, string(long))}, DefaultLimits)
	requireValidationCode(t, err, CodeNameTooLong)

	require.NoError(t, Validate([]*DesiredNode{node(0, string(long[:MaxNameLength]))}, DefaultLimits))

	padded := " " + string(long[:MaxNameLength-1]) + " "
	err = Validate([]*DesiredNode{node(0, padded)}, DefaultLimits)
	requireValidationCode(t, err, CodeNameTooLong)
	require.NoError(t, Validate([]*DesiredNode{node(0, " "+string(long[:MaxNameLength-1]))}, DefaultLimits))
}

func TestValidate_Assignments(t *testing.T) {
	n := node(0, "HQ")
	n.Assignments = []Assignment{{EmployeeID: 0, Role: RoleMember}}
	requireValidationCode(t, Validate([]*DesiredNode{n}, DefaultLimits), CodeInvalidEmployee)

	n.Assignments = []Assignment{{EmployeeID: 1, Role: "owner"}}
	requireValidationCode(t, Validate([]*DesiredNode{n}, DefaultLimits), CodeInvalidRole)

	n.Assignments = []Assignment{{EmployeeID: 1, Role: RoleMember}, {EmployeeID: 1, Role: RoleMember}}
	requireValidationCode(t, Validate([]*DesiredNode{n}, DefaultLimits), CodeDuplicateAssignment)
}

func TestValidate_Limits(t *testing.T) {
	root := node(0, "L0")
	cur := root
	for i := 1; i < 5; i++ {
		next := node(0, "L")
		cur.Children = []*DesiredNode{next}
		cur = next
	}
	require.NoError(t, Validate([]*DesiredNode{root}, Limits{MaxDepth: 5, MaxNodes: 100}))
	vErr := requireValidationCode(t, Validate([]*DesiredNode{root}, Limits{MaxDepth: 4, MaxNodes: 100}), CodeTooDeep)
	require.Equal(t, "units[0].children[0].children[0].children[0].children[0]", vErr.Path)

	requireValidationCode(t, Validate([]*DesiredNode{root}, Limits{MaxDepth: 10, MaxNodes: 4}), CodeTooManyNodes)
}

func TestValidate_PathologicalDepthDoesNotRecurse(t *testing.T) {
	root := node(0, "L0")
	cur := root
	for i := 0; i < 200000; i++ {
		next := node(0, "L")
		cur.Children = []*DesiredNode{next}
		cur = next
	}
	requireValidationCode(t, Validate([]*DesiredNode{root}, DefaultLimits), CodeTooDeep)
}

func TestWalkDesired_PreOrderSiblingOrder(t *testing.T) {
	forest := []*DesiredNode{
		node(0, "A", node(0, "A1", node(0, "A1a")), node(0, "A2")),
		node(0, "B"),
	}
	var got []string
	var depths, parents []int
	err := WalkDesired(forest, DefaultLimits, func(v Visit) error {
		require.Equal(t, len(got), v.Seq)
		got = append(got, v.Node.Name)
		depths = append(depths, v.Depth)
		parents = append(parents, v.ParentSeq)
		if v.Node.Name == "A1a" {
			require.Equal(t, "A1", v.Parent().Name)
		}
		if v.Depth == 0 {
			require.Nil(t, v.Parent())
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "A1", "A1a", "A2", "B"}, got)
	require.Equal(t, []int{0, 1, 2, 1, 0}, depths)
	require.Equal(t, []int{-1, 0, 1, 0, -1}, parents)
}

func TestWalkDesired_StopsOnCallbackError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := WalkDesired([]*DesiredNode{node(0, "A"), node(0, "B")}, DefaultLimits, func(Visit) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestCollectIDs(t *testing.T) {
	forest := []*DesiredNode{node(1, "HQ", node(0, "new"), node(9, "Ops", node(4, "East")))}
	ids, err := CollectIDs(forest, DefaultLimits)
	require.NoError(t, err)
	require.Equal(t, map[int64]struct{}{1: {}, 9: {}, 4: {}}, ids)
}

func TestBuildAncestry_ExampleScenario(t *testing.T) {
	edges, err := BuildAncestry([]*ResolvedNode{resolved(1, resolved(2))}, DefaultLimits)
	require.NoError(t, err)
	require.Equal(t, []AncestryEdge{{FundamentalUnitID: 1, AncestorUnitID: 1, DescendantUnitID: 2, Depth: 1}}, edges)
}

func TestBuildAncestry_ClosureOfChain(t *testing.T) {
	// 1 -> 2 -> 3 -> 4, plus 1 -> 5 and a second root 10 -> 11.
	forest := []*ResolvedNode{
		resolved(1, resolved(2, resolved(3, resolved(4))), resolved(5)),
		resolved(10, resolved(11)),
	}
	edges, err := BuildAncestry(forest, DefaultLimits)
	require.NoError(t, err)
	require.ElementsMatch(t, []AncestryEdge{
		{1, 1, 2, 1},
		{1, 1, 3, 2}, {1, 2, 3, 1},
		{1, 1, 4, 3}, {1, 2, 4, 2}, {1, 3, 4, 1},
		{1, 1, 5, 1},
		{10, 10, 11, 1},
	}, edges)

	for _, e := range edges {
		require.GreaterOrEqual(t, e.Depth, 1)
		require.NotEqual(t, e.AncestorUnitID, e.DescendantUnitID)
	}
}

func TestBuildAncestry_RootsOnlyYieldNothing(t *testing.T) {
	edges, err := BuildAncestry([]*ResolvedNode{resolved(1), resolved(2)}, DefaultLimits)
	require.NoError(t, err)
	require.Empty(t, edges)
}

func TestBuildAncestry_DepthCeiling(t *testing.T) {
	_, err := BuildAncestry([]*ResolvedNode{resolved(1, resolved(2, resolved(3)))}, Limits{MaxDepth: 2})
	require.Error(t, err)
}

func TestAssembleForest_RoundTripsBuildAncestry(t *testing.T) {
	forest := []*ResolvedNode{
		resolved(1, resolved(2, resolved(3)), resolved(5)),
		resolved(10, resolved(11)),
	}
	edges, err := BuildAncestry(forest, DefaultLimits)
	require.NoError(t, err)

	units := []Unit{
		{ID: 1, IsFundamental: true, DisplayOrder: 0},
		{ID: 2, DisplayOrder: 0},
		{ID: 3, DisplayOrder: 0},
		{ID: 5, DisplayOrder: 1},
		{ID: 10, IsFundamental: true, DisplayOrder: 1},
		{ID: 11, DisplayOrder: 0},
		{ID: 12, IsDeleted: true},
	}
	got, err := AssembleForest(units, edges, DefaultLimits)
	require.NoError(t, err)
	require.Equal(t, forest, got)
}

func TestAssembleForest_OrdersSiblingsByDisplayOrder(t *testing.T) {
	units := []Unit{
		{ID: 1, Name: "HQ", IsFundamental: true},
		{ID: 2, Name: "second", DisplayOrder: 1},
		{ID: 3, Name: "first", DisplayOrder: 0},
	}
	edges := []AncestryEdge{{1, 1, 2, 1}, {1, 1, 3, 1}}
	got, err := AssembleForest(units, edges, DefaultLimits)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "HQ", got[0].Name)
	require.Equal(t, []int64{3, 2}, []int64{got[0].Children[0].ID, got[0].Children[1].ID})
}

func TestAssembleSubtree(t *testing.T) {
	units := []Unit{
		{ID: 1, Name: "HQ", IsFundamental: true},
		{ID: 2, Name: "Sales"},
		{ID: 3, Name: "Sales East"},
	}
	edges := []AncestryEdge{{1, 1, 2, 1}, {1, 1, 3, 2}, {1, 2, 3, 1}}

	sub, err := AssembleSubtree(2, units, edges, DefaultLimits)
	require.NoError(t, err)
	require.Equal(t, int64(2), sub.ID)
	require.Len(t, sub.Children, 1)
	require.Equal(t, "Sales East", sub.Children[0].Name)

	_, err = AssembleSubtree(99, units, edges, DefaultLimits)
	require.ErrorIs(t, err, ErrUnitNotFound)
}

func TestVerify_ConsistentIndex(t *testing.T) {
	forest := []*ResolvedNode{resolved(1, resolved(2, resolved(3)))}
	edges, err := BuildAncestry(forest, DefaultLimits)
	require.NoError(t, err)
	units := []Unit{{ID: 1, IsFundamental: true}, {ID: 2}, {ID: 3}}

	report := Verify(units, edges, DefaultLimits)
	require.True(t, report.Consistent(), "%+v", report.Issues)
	require.Equal(t, 3, report.Units)
	require.Equal(t, 1, report.Roots)
	require.Equal(t, 3, report.Edges)
}

func TestVerify_DetectsCorruption(t *testing.T) {
	units := []Unit{{ID: 1, IsFundamental: true}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 9, IsDeleted: true}}
	edges := []AncestryEdge{
		{1, 1, 2, 1},
		{1, 2, 3, 1},
		{1, 1, 3, 5}, // wrong depth
		{1, 1, 9, 1}, // deleted unit
	}
	report := Verify(units, edges, DefaultLimits)
	require.False(t, report.Consistent())

	kinds := map[string]bool{}
	for _, issue := range report.Issues {
		kinds[issue.Kind] = true
	}
	require.True(t, kinds[IssueWrongDepth])
	require.True(t, kinds[IssueDanglingEdge])
	require.True(t, kinds[IssueMissingParent]) // unit 4
	require.True(t, kinds[IssueUnexpectedEdge])
}

func TestVerify_MissingEdge(t *testing.T) {
	units := []Unit{{ID: 1, IsFundamental: true}, {ID: 2}, {ID: 3}}
	edges := []AncestryEdge{{1, 1, 2, 1}, {1, 2, 3, 1}}
	report := Verify(units, edges, DefaultLimits)
	require.Len(t, report.Issues, 1)
	require.Equal(t, IssueMissingEdge, report.Issues[0].Kind)
	require.Equal(t, int64(3), report.Issues[0].UnitID)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("Supervisor")
	require.NoError(t, err)
	require.Equal(t, RoleSupervisor, r)
	require.Equal(t, "Supervisor", r.Title())

	r, err = ParseRole(" member ")
	require.NoError(t, err)
	require.Equal(t, RoleMember, r)

	_, err = ParseRole("Owner")
	require.Error(t, err)
	require.False(t, Role("").Valid())
	require.Equal(t, "", Role("x").Title())
}
