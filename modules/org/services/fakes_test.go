package services

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/bizdash/orgsync/modules/org/domain/hierarchy"
)

type memState struct {
	tenants map[uuid.UUID]hierarchy.Tenant
	units   map[int64]hierarchy.Unit
	edges   map[uuid.UUID][]hierarchy.AncestryEdge
	links   map[uuid.UUID][]hierarchy.AssignmentLink
	nextID  int64
}

func (s *memState) clone() *memState {
	out := &memState{
		tenants: maps.Clone(s.tenants),
		units:   maps.Clone(s.units),
		edges:   make(map[uuid.UUID][]hierarchy.AncestryEdge, len(s.edges)),
		links:   make(map[uuid.UUID][]hierarchy.AssignmentLink, len(s.links)),
		nextID:  s.nextID,
	}
	for k, v := range s.edges {
		out.edges[k] = slices.Clone(v)
	}
	for k, v := range s.links {
		out.links[k] = slices.Clone(v)
	}
	return out
}

// memRepo is an in-memory HierarchyRepository. failOn makes the named method
// return failErr.
type memRepo struct {
	mu      sync.Mutex
	state   *memState
	failOn  string
	failErr error
	calls   map[string]int
}

func newMemRepo() *memRepo {
	return &memRepo{
		state: &memState{
			tenants: map[uuid.UUID]hierarchy.Tenant{},
			units:   map[int64]hierarchy.Unit{},
			edges:   map[uuid.UUID][]hierarchy.AncestryEdge{},
			links:   map[uuid.UUID][]hierarchy.AssignmentLink{},
		},
		calls: map[string]int{},
	}
}

func (r *memRepo) addTenant(name string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.state.tenants[id] = hierarchy.Tenant{ID: id, Name: name}
	return id
}

func (r *memRepo) enter(method string) error {
	r.calls[method]++
	if r.failOn == method {
		return r.failErr
	}
	return nil
}

func (r *memRepo) callCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

func (r *memRepo) snapshot() *memState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

func (r *memRepo) restore(s *memState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}

func (r *memRepo) unit(id int64) (hierarchy.Unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.state.units[id]
	return u, ok
}

func (r *memRepo) tenantEdges(tenantID uuid.UUID) []hierarchy.AncestryEdge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.state.edges[tenantID])
}

func (r *memRepo) tenantLinks(tenantID uuid.UUID) []hierarchy.AssignmentLink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.state.links[tenantID])
}

func (r *memRepo) LockTenant(_ context.Context, _ uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enter("LockTenant")
}

func (r *memRepo) GetTenant(_ context.Context, tenantID uuid.UUID) (hierarchy.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("GetTenant"); err != nil {
		return hierarchy.Tenant{}, err
	}
	t, ok := r.state.tenants[tenantID]
	if !ok {
		return hierarchy.Tenant{}, hierarchy.ErrTenantNotFound
	}
	return t, nil
}

func (r *memRepo) BumpRevision(_ context.Context, tenantID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("BumpRevision"); err != nil {
		return 0, err
	}
	t := r.state.tenants[tenantID]
	t.Revision++
	r.state.tenants[tenantID] = t
	return t.Revision, nil
}

func (r *memRepo) ListUnitStates(_ context.Context, tenantID uuid.UUID) ([]hierarchy.UnitState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ListUnitStates"); err != nil {
		return nil, err
	}
	var out []hierarchy.UnitState
	for _, u := range r.state.units {
		if u.TenantID == tenantID {
			out = append(out, hierarchy.UnitState{ID: u.ID, IsDeleted: u.IsDeleted})
		}
	}
	return out, nil
}

func (r *memRepo) DeleteUnits(_ context.Context, tenantID uuid.UUID, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("DeleteUnits"); err != nil {
		return err
	}
	for _, id := range ids {
		u := r.state.units[id]
		u.IsDeleted = true
		u.IsFundamental = false
		r.state.units[id] = u
	}
	r.state.links[tenantID] = slices.DeleteFunc(r.state.links[tenantID], func(l hierarchy.AssignmentLink) bool {
		return slices.Contains(ids, l.UnitID)
	})
	r.state.edges[tenantID] = slices.DeleteFunc(r.state.edges[tenantID], func(e hierarchy.AncestryEdge) bool {
		return slices.Contains(ids, e.FundamentalUnitID) || slices.Contains(ids, e.AncestorUnitID) || slices.Contains(ids, e.DescendantUnitID)
	})
	return nil
}

func (r *memRepo) DeleteAncestry(_ context.Context, tenantID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("DeleteAncestry"); err != nil {
		return 0, err
	}
	n := len(r.state.edges[tenantID])
	delete(r.state.edges, tenantID)
	return int64(n), nil
}

func (r *memRepo) SaveUnits(_ context.Context, tenantID uuid.UUID, units []UnitUpsert) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("SaveUnits"); err != nil {
		return nil, err
	}
	ids := make([]int64, len(units))
	for i, in := range units {
		u := hierarchy.Unit{TenantID: tenantID}
		if in.ID != 0 {
			existing, ok := r.state.units[in.ID]
			if !ok || existing.TenantID != tenantID || existing.IsDeleted {
				return nil, hierarchy.ErrUnitNotFound
			}
			u = existing
		} else {
			r.state.nextID++
			u.ID = r.state.nextID
		}
		u.Name = in.Name
		u.Comment = in.Comment
		u.IsActive = in.IsActive
		u.IsFundamental = in.IsFundamental
		u.DisplayOrder = in.DisplayOrder
		r.state.units[u.ID] = u
		ids[i] = u.ID
	}
	return ids, nil
}

func (r *memRepo) ReplaceAssignments(_ context.Context, tenantID uuid.UUID, links []hierarchy.AssignmentLink) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ReplaceAssignments"); err != nil {
		return 0, err
	}
	r.state.links[tenantID] = slices.Clone(links)
	return int64(len(links)), nil
}

func (r *memRepo) InsertAncestry(_ context.Context, tenantID uuid.UUID, edges []hierarchy.AncestryEdge) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("InsertAncestry"); err != nil {
		return 0, err
	}
	r.state.edges[tenantID] = append(r.state.edges[tenantID], edges...)
	return int64(len(edges)), nil
}

func (r *memRepo) ListLiveUnits(_ context.Context, tenantID uuid.UUID) ([]hierarchy.Unit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ListLiveUnits"); err != nil {
		return nil, err
	}
	var out []hierarchy.Unit
	for _, u := range r.state.units {
		if u.TenantID == tenantID && !u.IsDeleted {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memRepo) ListAncestry(_ context.Context, tenantID uuid.UUID) ([]hierarchy.AncestryEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ListAncestry"); err != nil {
		return nil, err
	}
	return slices.Clone(r.state.edges[tenantID]), nil
}

func (r *memRepo) ListSubtree(_ context.Context, tenantID uuid.UUID, unitID int64) ([]hierarchy.Unit, []hierarchy.AncestryEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ListSubtree"); err != nil {
		return nil, nil, err
	}
	inSubtree := map[int64]bool{unitID: true}
	for _, e := range r.state.edges[tenantID] {
		if e.AncestorUnitID == unitID {
			inSubtree[e.DescendantUnitID] = true
		}
	}
	var units []hierarchy.Unit
	for id := range inSubtree {
		if u, ok := r.state.units[id]; ok && u.TenantID == tenantID && !u.IsDeleted {
			units = append(units, u)
		}
	}
	var edges []hierarchy.AncestryEdge
	for _, e := range r.state.edges[tenantID] {
		if e.Depth == 1 && inSubtree[e.DescendantUnitID] && e.DescendantUnitID != unitID {
			edges = append(edges, e)
		}
	}
	return units, edges, nil
}

// memTransactor serializes transactions and restores the repository snapshot
// when fn fails.
type memTransactor struct {
	mu    sync.Mutex
	repo  *memRepo
	opens int
}

func (m *memTransactor) InTx(ctx context.Context, _ uuid.UUID, fn func(context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	snap := m.repo.snapshot()
	if err := fn(ctx); err != nil {
		m.repo.restore(snap)
		return err
	}
	return nil
}

func (m *memTransactor) InReadTx(ctx context.Context, _ uuid.UUID, fn func(context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	return fn(ctx)
}

func (m *memTransactor) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

var errInjected = errors.New("injected failure")
