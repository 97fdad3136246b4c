// Package hierarchy holds the organizational unit tree model and the pure
// algorithms around it: forest validation, identity collection, ancestry
// (closure table) generation and tree assembly from persisted rows.
//
// Every traversal uses an explicit stack bounded by Limits.MaxDepth.
package hierarchy

import (
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	ErrTenantNotFound = gerrors.New("tenant not found")
	ErrUnitNotFound   = gerrors.New("organizational unit not found")
)

// Limits bounds the size of a submitted or persisted forest.
type Limits struct {
	MaxDepth int
	MaxNodes int
}

var DefaultLimits = Limits{MaxDepth: 64, MaxNodes: 10000}

func (l Limits) orDefault() Limits {
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultLimits.MaxDepth
	}
	if l.MaxNodes <= 0 {
		l.MaxNodes = DefaultLimits.MaxNodes
	}
	return l
}

type Tenant struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Revision int64     `json:"revision"`
}

// Unit is one persisted organizational unit row.
type Unit struct {
	ID            int64
	TenantID      uuid.UUID
	Name          string
	Comment       string
	IsActive      bool
	IsFundamental bool
	IsDeleted     bool
	DisplayOrder  int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UnitState is the minimal projection used to diff a submission.
type UnitState struct {
	ID        int64
	IsDeleted bool
}

// UnitWrite carries the mutable fields written by the upsert walk.
type UnitWrite struct {
	Name          string
	Comment       string
	IsActive      bool
	IsFundamental bool
	DisplayOrder  int
}

// AncestryEdge records that AncestorUnitID is Depth levels above
// DescendantUnitID inside the subtree rooted at FundamentalUnitID.
// Depth is always >= 1.
type AncestryEdge struct {
	FundamentalUnitID int64
	AncestorUnitID    int64
	DescendantUnitID  int64
	Depth             int
}

type Assignment struct {
	EmployeeID int64
	Role       Role
}

// AssignmentLink is a persisted Assignment bound to a unit.
type AssignmentLink struct {
	UnitID     int64
	EmployeeID int64
	Role       Role
}

// DesiredNode is one node of a client-submitted forest. ID 0 means "new".
type DesiredNode struct {
	ID          int64
	Name        string
	Comment     string
	IsActive    bool
	Assignments []Assignment
	Children    []*DesiredNode
}

// ResolvedNode is a node with a concrete identity, either produced by the
// upsert walk or assembled from persisted rows.
type ResolvedNode struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Comment  string          `json:"comment"`
	IsActive bool            `json:"is_active"`
	Children []*ResolvedNode `json:"children"`
}
