package services

import (
	"time"

	"github.com/google/uuid"

	"github.com/bizdash/orgsync/modules/org/domain/hierarchy"
)

// SyncRequest is the desired state of a tenant's whole forest.
type SyncRequest struct {
	Units []*hierarchy.DesiredNode
	// ExpectedRevision, when set, must equal the tenant's current revision.
	ExpectedRevision *int64
	// DryRun runs every step and rolls the transaction back.
	DryRun    bool
	RequestID string
}

type SyncResult struct {
	TenantID uuid.UUID
	Revision int64
	DryRun   bool
	Created  []int64
	Updated  []int64
	Deleted  []int64
	// NewIDs maps the path of each newly created node ("units[0].children[1]")
	// to its assigned id. Dry-run ids are provisional.
	NewIDs map[string]int64
	// ReplacedIDs maps a submitted soft-deleted id to the unit created in its place.
	ReplacedIDs  map[int64]int64
	AncestryRows int
	Assignments  int
	Units        []*hierarchy.ResolvedNode
}

type HierarchyView struct {
	TenantID   uuid.UUID                 `json:"tenant_id"`
	TenantName string                    `json:"tenant_name"`
	Revision   int64                     `json:"revision"`
	Units      []*hierarchy.ResolvedNode `json:"units"`
}

// HierarchySynchronizedEvent is published after a synchronization commits.
type HierarchySynchronizedEvent struct {
	EventID      uuid.UUID
	TenantID     uuid.UUID
	RequestID    string
	Revision     int64
	Created      []int64
	Updated      []int64
	Deleted      []int64
	AncestryRows int
	OccurredAt   time.Time
}
