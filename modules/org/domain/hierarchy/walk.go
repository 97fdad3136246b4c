package hierarchy

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

const MaxNameLength = 255

const (
	CodeInvalidBody         = "ORG_INVALID_BODY"
	CodeEmptyName           = "ORG_EMPTY_NAME"
	CodeNameTooLong         = "ORG_NAME_TOO_LONG"
	CodeInvalidID           = "ORG_INVALID_ID"
	CodeDuplicateID         = "ORG_DUPLICATE_ID"
	CodeCycle               = "ORG_CYCLE"
	CodeInvalidRole         = "ORG_INVALID_ROLE"
	CodeInvalidEmployee     = "ORG_INVALID_EMPLOYEE"
	CodeDuplicateAssignment = "ORG_DUPLICATE_ASSIGNMENT"
	CodeTooDeep             = "ORG_TOO_DEEP"
	CodeTooManyNodes        = "ORG_TOO_MANY_NODES"
)

// ValidationError describes why a submitted forest was rejected.
// Path points at the offending node, e.g. "units[0].children[2]".
type ValidationError struct {
	Code    string
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

type frame struct {
	node   *DesiredNode
	parent *frame
	depth  int
	index  int
	seq    int
}

func (f *frame) path() string {
	parts := make([]string, 0, f.depth+1)
	for cur := f; cur != nil; cur = cur.parent {
		if cur.parent == nil {
			parts = append(parts, fmt.Sprintf("units[%d]", cur.index))
		} else {
			parts = append(parts, fmt.Sprintf("children[%d]", cur.index))
		}
	}
	slices.Reverse(parts)
	return strings.Join(parts, ".")
}

// Visit is handed to the WalkDesired callback for every node. Seq is the
// node's pre-order position; ParentSeq is -1 for roots.
type Visit struct {
	Node      *DesiredNode
	Depth     int
	Index     int
	Seq       int
	ParentSeq int
	f         *frame
}

func (v Visit) Parent() *DesiredNode {
	if v.f.parent == nil {
		return nil
	}
	return v.f.parent.node
}

func (v Visit) Path() string { return v.f.path() }

func (v Visit) hasAncestorID(id int64) bool {
	for cur := v.f.parent; cur != nil; cur = cur.parent {
		if cur.node.ID == id {
			return true
		}
	}
	return false
}

// WalkDesired visits the forest depth-first, parents before children and
// siblings in submission order.
func WalkDesired(roots []*DesiredNode, limits Limits, fn func(Visit) error) error {
	limits = limits.orDefault()

	stack := make([]*frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, &frame{node: roots[i], index: i})
	}

	visited := 0
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.node == nil {
			return &ValidationError{Code: CodeInvalidBody, Path: f.path(), Message: "node must not be null"}
		}
		if f.depth >= limits.MaxDepth {
			return &ValidationError{
				Code:    CodeTooDeep,
				Path:    f.path(),
				Message: fmt.Sprintf("hierarchy is deeper than %d levels", limits.MaxDepth),
			}
		}
		f.seq = visited
		visited++
		if visited > limits.MaxNodes {
			return &ValidationError{
				Code:    CodeTooManyNodes,
				Message: fmt.Sprintf("hierarchy has more than %d units", limits.MaxNodes),
			}
		}

		parentSeq := -1
		if f.parent != nil {
			parentSeq = f.parent.seq
		}
		v := Visit{Node: f.node, Depth: f.depth, Index: f.index, Seq: f.seq, ParentSeq: parentSeq, f: f}
		if err := fn(v); err != nil {
			return err
		}

		children := f.node.Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, &frame{node: children[i], parent: f, depth: f.depth + 1, index: i})
		}
	}
	return nil
}

// Validate rejects malformed forests before anything touches storage.
func Validate(roots []*DesiredNode, limits Limits) error {
	seen := make(map[int64]string)
	return WalkDesired(roots, limits, func(v Visit) error {
		n := v.Node
		name := strings.TrimSpace(n.Name)
		if name == "" {
			return &ValidationError{Code: CodeEmptyName, Path: v.Path(), Message: "name is required"}
		}
		// The stored name is untrimmed, so its full length counts.
		if utf8.RuneCountInString(n.Name) > MaxNameLength {
			return &ValidationError{
				Code:    CodeNameTooLong,
				Path:    v.Path(),
				Message: fmt.Sprintf("name is longer than %d characters", MaxNameLength),
			}
		}
		if n.ID < 0 {
			return &ValidationError{Code: CodeInvalidID, Path: v.Path(), Message: fmt.Sprintf("invalid id %d", n.ID)}
		}
		if n.ID > 0 {
			if v.hasAncestorID(n.ID) {
				return &ValidationError{
					Code:    CodeCycle,
					Path:    v.Path(),
					Message: fmt.Sprintf("unit %d is nested under itself", n.ID),
				}
			}
			if first, dup := seen[n.ID]; dup {
				return &ValidationError{
					Code:    CodeDuplicateID,
					Path:    v.Path(),
					Message: fmt.Sprintf("unit %d already appears at %s", n.ID, first),
				}
			}
			seen[n.ID] = v.Path()
		}
		return validateAssignments(v)
	})
}

func validateAssignments(v Visit) error {
	seen := make(map[Assignment]struct{}, len(v.Node.Assignments))
	for _, a := range v.Node.Assignments {
		if a.EmployeeID <= 0 {
			return &ValidationError{
				Code:    CodeInvalidEmployee,
				Path:    v.Path(),
				Message: fmt.Sprintf("invalid employee id %d", a.EmployeeID),
			}
		}
		if !a.Role.Valid() {
			return &ValidationError{
				Code:    CodeInvalidRole,
				Path:    v.Path(),
				Message: fmt.Sprintf("invalid role %q for employee %d", a.Role, a.EmployeeID),
			}
		}
		if _, dup := seen[a]; dup {
			return &ValidationError{
				Code:    CodeDuplicateAssignment,
				Path:    v.Path(),
				Message: fmt.Sprintf("employee %d is assigned as %s twice", a.EmployeeID, a.Role),
			}
		}
		seen[a] = struct{}{}
	}
	return nil
}

// CollectIDs returns every positive identity referenced by the forest.
func CollectIDs(roots []*DesiredNode, limits Limits) (map[int64]struct{}, error) {
	ids := make(map[int64]struct{})
	err := WalkDesired(roots, limits, func(v Visit) error {
		if v.Node.ID > 0 {
			ids[v.Node.ID] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
