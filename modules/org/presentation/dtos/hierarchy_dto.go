package dtos

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var validate = sync.OnceValue(func() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
})

// EmployeeDTO is an employee attached to a unit. Only ID and Role form the
// assignment; the profile fields belong to the employee directory.
type EmployeeDTO struct {
	ID       int64  `json:"id" validate:"required,gt=0"`
	Fio      string `json:"fio"`
	JobTitle string `json:"jobTitle"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone"`
	Comment  string `json:"comment"`
	IsActive bool   `json:"isActive"`
	Role     string `json:"role" validate:"required,oneof=Member Supervisor member supervisor"`
}

// Ok reports the validator failures of d keyed by JSON field name.
func (d *EmployeeDTO) Ok() (map[string]string, bool) {
	errorMessages := map[string]string{}
	errs := validate().Struct(d)
	if errs == nil {
		return errorMessages, true
	}
	verrs, ok := errs.(validator.ValidationErrors)
	if !ok {
		errorMessages["employee"] = errs.Error()
		return errorMessages, false
	}
	for _, err := range verrs {
		errorMessages[jsonField(err.Field())] = err.Tag()
	}
	return errorMessages, len(errorMessages) == 0
}

func jsonField(name string) string {
	switch name {
	case "ID":
		return "id"
	case "Role":
		return "role"
	case "Email":
		return "email"
	default:
		return name
	}
}

// UnitInputDTO is one node of a submitted forest. A null id creates a unit;
// an omitted isActive means active.
type UnitInputDTO struct {
	ID        *int64          `json:"id"`
	Name      string          `json:"name"`
	Comment   string          `json:"comment"`
	IsActive  *bool           `json:"isActive"`
	Employees []EmployeeDTO   `json:"employees"`
	Children  []*UnitInputDTO `json:"children"`
}

type SyncRequestDTO struct {
	ExpectedRevision *int64          `json:"expectedRevision"`
	DryRun           bool            `json:"dryRun"`
	Units            []*UnitInputDTO `json:"units"`
}

type SyncResponseDTO struct {
	Revision     int64            `json:"revision"`
	DryRun       bool             `json:"dryRun"`
	Created      []int64          `json:"created"`
	Updated      []int64          `json:"updated"`
	Deleted      []int64          `json:"deleted"`
	NewIDs       map[string]int64 `json:"newIds"`
	ReplacedIDs  map[int64]int64  `json:"replacedIds,omitempty"`
	AncestryRows int              `json:"ancestryRows"`
	Assignments  int              `json:"assignments"`
	Units        []*UnitDTO       `json:"units"`
}

type UnitDTO struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	Children []*UnitDTO `json:"children"`
}

type HierarchyDTO struct {
	TenantName string     `json:"tenantName"`
	Revision   int64      `json:"revision"`
	Units      []*UnitDTO `json:"units"`
}
