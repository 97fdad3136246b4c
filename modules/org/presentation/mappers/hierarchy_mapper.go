package mappers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bizdash/orgsync/modules/org/domain/hierarchy"
	"github.com/bizdash/orgsync/modules/org/presentation/dtos"
	"github.com/bizdash/orgsync/modules/org/services"
)

type inputFrame struct {
	in   *dtos.UnitInputDTO
	out  *hierarchy.DesiredNode
	path string
}

// DesiredForest converts the wire forest into domain nodes. It walks with an
// explicit stack so deep inputs cannot exhaust the goroutine stack.
func DesiredForest(units []*dtos.UnitInputDTO) ([]*hierarchy.DesiredNode, error) {
	roots := make([]*hierarchy.DesiredNode, len(units))
	stack := make([]inputFrame, 0, len(units))
	for i := len(units) - 1; i >= 0; i-- {
		roots[i] = &hierarchy.DesiredNode{}
		stack = append(stack, inputFrame{in: units[i], out: roots[i], path: fmt.Sprintf("units[%d]", i)})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.in == nil {
			return nil, &hierarchy.ValidationError{Code: hierarchy.CodeInvalidBody, Path: f.path, Message: "unit must be an object"}
		}

		// null and 0 both mean a new unit.
		if f.in.ID != nil {
			if *f.in.ID < 0 {
				return nil, &hierarchy.ValidationError{Code: hierarchy.CodeInvalidID, Path: f.path + ".id", Message: "id must not be negative"}
			}
			f.out.ID = *f.in.ID
		}
		f.out.Name = f.in.Name
		f.out.Comment = f.in.Comment
		f.out.IsActive = f.in.IsActive == nil || *f.in.IsActive

		if len(f.in.Employees) > 0 {
			f.out.Assignments = make([]hierarchy.Assignment, 0, len(f.in.Employees))
		}
		for j := range f.in.Employees {
			a, err := assignment(&f.in.Employees[j], fmt.Sprintf("%s.employees[%d]", f.path, j))
			if err != nil {
				return nil, err
			}
			f.out.Assignments = append(f.out.Assignments, a)
		}

		f.out.Children = make([]*hierarchy.DesiredNode, len(f.in.Children))
		for j := len(f.in.Children) - 1; j >= 0; j-- {
			f.out.Children[j] = &hierarchy.DesiredNode{}
			stack = append(stack, inputFrame{
				in:   f.in.Children[j],
				out:  f.out.Children[j],
				path: fmt.Sprintf("%s.children[%d]", f.path, j),
			})
		}
	}
	return roots, nil
}

func assignment(e *dtos.EmployeeDTO, path string) (hierarchy.Assignment, error) {
	if errs, ok := e.Ok(); !ok {
		fields := make([]string, 0, len(errs))
		for field := range errs {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		code := hierarchy.CodeInvalidEmployee
		if _, bad := errs["role"]; bad {
			code = hierarchy.CodeInvalidRole
		}
		return hierarchy.Assignment{}, &hierarchy.ValidationError{
			Code:    code,
			Path:    path,
			Message: "invalid employee fields: " + strings.Join(fields, ", "),
		}
	}
	role, err := hierarchy.ParseRole(e.Role)
	if err != nil {
		return hierarchy.Assignment{}, &hierarchy.ValidationError{Code: hierarchy.CodeInvalidRole, Path: path + ".role", Message: err.Error()}
	}
	return hierarchy.Assignment{EmployeeID: e.ID, Role: role}, nil
}

func SyncRequest(dto *dtos.SyncRequestDTO, requestID string) (services.SyncRequest, error) {
	units, err := DesiredForest(dto.Units)
	if err != nil {
		return services.SyncRequest{}, err
	}
	return services.SyncRequest{
		Units:            units,
		ExpectedRevision: dto.ExpectedRevision,
		DryRun:           dto.DryRun,
		RequestID:        requestID,
	}, nil
}

type outputFrame struct {
	in  *hierarchy.ResolvedNode
	out *dtos.UnitDTO
}

// UnitTree converts resolved nodes to the read shape. Children are always a
// non-nil slice so leaves serialize as [].
func UnitTree(nodes []*hierarchy.ResolvedNode) []*dtos.UnitDTO {
	out := make([]*dtos.UnitDTO, len(nodes))
	stack := make([]outputFrame, 0, len(nodes))
	for i, n := range nodes {
		out[i] = &dtos.UnitDTO{}
		stack = append(stack, outputFrame{in: n, out: out[i]})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		f.out.ID = f.in.ID
		f.out.Name = f.in.Name
		f.out.Children = make([]*dtos.UnitDTO, len(f.in.Children))
		for j, child := range f.in.Children {
			f.out.Children[j] = &dtos.UnitDTO{}
			stack = append(stack, outputFrame{in: child, out: f.out.Children[j]})
		}
	}
	return out
}

func HierarchyToDTO(view *services.HierarchyView) *dtos.HierarchyDTO {
	return &dtos.HierarchyDTO{
		TenantName: view.TenantName,
		Revision:   view.Revision,
		Units:      UnitTree(view.Units),
	}
}

func SyncResultToDTO(res *services.SyncResult) *dtos.SyncResponseDTO {
	return &dtos.SyncResponseDTO{
		Revision:     res.Revision,
		DryRun:       res.DryRun,
		Created:      nonNil(res.Created),
		Updated:      nonNil(res.Updated),
		Deleted:      nonNil(res.Deleted),
		NewIDs:       res.NewIDs,
		ReplacedIDs:  res.ReplacedIDs,
		AncestryRows: res.AncestryRows,
		Assignments:  res.Assignments,
		Units:        UnitTree(res.Units),
	}
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
