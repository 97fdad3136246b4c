package services

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bizdash/orgsync/modules/org/domain/hierarchy"
	"github.com/bizdash/orgsync/pkg/composables"
	"github.com/bizdash/orgsync/pkg/eventbus"
)

// HierarchyRepository is the storage surface of the hierarchy engine. Every
// method runs on the transaction carried by ctx.
type HierarchyRepository interface {
	// LockTenant serializes writers of one tenant until the transaction ends.
	LockTenant(ctx context.Context, tenantID uuid.UUID) error
	GetTenant(ctx context.Context, tenantID uuid.UUID) (hierarchy.Tenant, error)
	BumpRevision(ctx context.Context, tenantID uuid.UUID) (int64, error)

	ListUnitStates(ctx context.Context, tenantID uuid.UUID) ([]hierarchy.UnitState, error)
	// DeleteUnits soft-deletes the units and removes their assignment links
	// and every ancestry row that names them.
	DeleteUnits(ctx context.Context, tenantID uuid.UUID, ids []int64) error
	DeleteAncestry(ctx context.Context, tenantID uuid.UUID) (int64, error)
	// SaveUnits inserts (ID == 0) or updates the units in order and returns
	// their ids in the same order.
	SaveUnits(ctx context.Context, tenantID uuid.UUID, units []UnitUpsert) ([]int64, error)
	ReplaceAssignments(ctx context.Context, tenantID uuid.UUID, links []hierarchy.AssignmentLink) (int64, error)
	InsertAncestry(ctx context.Context, tenantID uuid.UUID, edges []hierarchy.AncestryEdge) (int64, error)

	ListLiveUnits(ctx context.Context, tenantID uuid.UUID) ([]hierarchy.Unit, error)
	ListAncestry(ctx context.Context, tenantID uuid.UUID) ([]hierarchy.AncestryEdge, error)
	ListSubtree(ctx context.Context, tenantID uuid.UUID, unitID int64) ([]hierarchy.Unit, []hierarchy.AncestryEdge, error)
}

type UnitUpsert struct {
	ID int64
	hierarchy.UnitWrite
}

// Transactor opens tenant-scoped transactions.
type Transactor interface {
	InTx(ctx context.Context, tenantID uuid.UUID, fn func(context.Context) error) error
	InReadTx(ctx context.Context, tenantID uuid.UUID, fn func(context.Context) error) error
}

type poolTransactor struct{}

func (poolTransactor) InTx(ctx context.Context, tenantID uuid.UUID, fn func(context.Context) error) error {
	return composables.InTenantTx(ctx, tenantID, fn)
}

func (poolTransactor) InReadTx(ctx context.Context, tenantID uuid.UUID, fn func(context.Context) error) error {
	return composables.InTenantReadTx(ctx, tenantID, fn)
}

var errDryRun = errors.New("dry run")

type HierarchyService struct {
	repo   HierarchyRepository
	tx     Transactor
	cache  HierarchyCache
	bus    eventbus.EventBus
	log    *logrus.Logger
	limits hierarchy.Limits
	now    func() time.Time
}

type Option func(*HierarchyService)

func WithTransactor(tx Transactor) Option {
	return func(s *HierarchyService) { s.tx = tx }
}

func WithCache(c HierarchyCache) Option {
	return func(s *HierarchyService) { s.cache = c }
}

func WithEventBus(bus eventbus.EventBus) Option {
	return func(s *HierarchyService) { s.bus = bus }
}

func WithLogger(log *logrus.Logger) Option {
	return func(s *HierarchyService) { s.log = log }
}

func WithLimits(l hierarchy.Limits) Option {
	return func(s *HierarchyService) { s.limits = l }
}

func NewHierarchyService(repo HierarchyRepository, opts ...Option) *HierarchyService {
	s := &HierarchyService{
		repo:   repo,
		tx:     poolTransactor{},
		limits: hierarchy.DefaultLimits,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HierarchyService) Limits() hierarchy.Limits { return s.limits }

func (s *HierarchyService) logger(ctx context.Context) *logrus.Entry {
	if s.log != nil {
		return logrus.NewEntry(s.log)
	}
	return composables.UseLogger(ctx)
}

// Synchronize replaces the tenant's persisted forest with req.Units in one
// transaction: units missing from the submission are soft-deleted, the rest
// are inserted or updated in place, and the ancestry index is rebuilt.
func (s *HierarchyService) Synchronize(ctx context.Context, tenantID uuid.UUID, req SyncRequest) (*SyncResult, error) {
	start := s.now()
	if tenantID == uuid.Nil {
		return nil, validationError(CodeNoTenant, "tenant_id is required")
	}
	ctx, span := startSpan(ctx, "org.hierarchy.sync", tenantID, attribute.Bool("dry_run", req.DryRun))
	defer span.End()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	log := s.logger(ctx).WithFields(logrus.Fields{
		"tenant_id":  tenantID.String(),
		"request_id": req.RequestID,
	})

	if err := hierarchy.Validate(req.Units, s.limits); err != nil {
		svcErr := mapPgErrorToServiceError(err).(*ServiceError)
		failSpan(span, svcErr)
		s.finish(log, start, nil, svcErr)
		return nil, svcErr
	}

	var result *SyncResult
	err := s.tx.InTx(ctx, tenantID, func(txCtx context.Context) error {
		res, err := s.synchronize(txCtx, tenantID, req)
		if err != nil {
			return err
		}
		result = res
		if req.DryRun {
			return errDryRun
		}
		return nil
	})
	if errors.Is(err, errDryRun) {
		err = nil
	}
	if err != nil {
		svcErr := mapPgErrorToServiceError(err).(*ServiceError)
		failSpan(span, svcErr)
		s.finish(log, start, nil, svcErr)
		return nil, svcErr
	}

	span.SetAttributes(
		attribute.Int64("revision", result.Revision),
		attribute.Int("units.created", len(result.Created)),
		attribute.Int("units.deleted", len(result.Deleted)),
	)
	if !result.DryRun {
		s.publish(ctx, log, req.RequestID, result)
	}
	s.finish(log, start, result, nil)
	return result, nil
}

func (s *HierarchyService) synchronize(ctx context.Context, tenantID uuid.UUID, req SyncRequest) (*SyncResult, error) {
	desired, err := hierarchy.CollectIDs(req.Units, s.limits)
	if err != nil {
		return nil, err
	}

	if err := s.repo.LockTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	tenant, err := s.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if req.ExpectedRevision != nil && *req.ExpectedRevision != tenant.Revision {
		recordWriteConflict("revision")
		return nil, newServiceError(KindConcurrency, http.StatusConflict, CodeRevisionConflict,
			"hierarchy was changed by another update", nil)
	}

	states, err := s.repo.ListUnitStates(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	deletedByID := make(map[int64]bool, len(states))
	for _, st := range states {
		deletedByID[st.ID] = st.IsDeleted
	}

	var missing []int64
	for id := range desired {
		if _, ok := deletedByID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, unitNotFound(missing[0])
	}

	var toDelete []int64
	for id, deleted := range deletedByID {
		if _, keep := desired[id]; !deleted && !keep {
			toDelete = append(toDelete, id)
		}
	}
	slices.Sort(toDelete)
	if len(toDelete) > 0 {
		if err := s.repo.DeleteUnits(ctx, tenantID, toDelete); err != nil {
			return nil, err
		}
	}
	if _, err := s.repo.DeleteAncestry(ctx, tenantID); err != nil {
		return nil, err
	}

	plan, err := planUpserts(req.Units, deletedByID, s.limits)
	if err != nil {
		return nil, err
	}
	ids, err := s.repo.SaveUnits(ctx, tenantID, plan.upserts)
	if err != nil {
		return nil, err
	}
	roots, err := plan.resolve(ids)
	if err != nil {
		return nil, err
	}

	links := plan.links(ids)
	if _, err := s.repo.ReplaceAssignments(ctx, tenantID, links); err != nil {
		return nil, err
	}

	edges, err := hierarchy.BuildAncestry(roots, s.limits)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.InsertAncestry(ctx, tenantID, edges); err != nil {
		return nil, err
	}

	revision, err := s.repo.BumpRevision(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{
		TenantID:     tenantID,
		Revision:     revision,
		DryRun:       req.DryRun,
		Deleted:      toDelete,
		NewIDs:       make(map[string]int64),
		ReplacedIDs:  make(map[int64]int64),
		AncestryRows: len(edges),
		Assignments:  len(links),
		Units:        roots,
	}
	for i, u := range plan.upserts {
		if u.ID != 0 {
			res.Updated = append(res.Updated, ids[i])
			continue
		}
		res.Created = append(res.Created, ids[i])
		res.NewIDs[plan.paths[i]] = ids[i]
		if old := plan.nodes[i].ID; old > 0 {
			res.ReplacedIDs[old] = ids[i]
		}
	}
	return res, nil
}

// upsertPlan is the pre-order flattening of a submitted forest.
type upsertPlan struct {
	nodes   []*hierarchy.DesiredNode
	parents []int
	paths   []string
	upserts []UnitUpsert
}

func planUpserts(roots []*hierarchy.DesiredNode, deletedByID map[int64]bool, limits hierarchy.Limits) (*upsertPlan, error) {
	p := &upsertPlan{}
	err := hierarchy.WalkDesired(roots, limits, func(v hierarchy.Visit) error {
		n := v.Node
		u := UnitUpsert{UnitWrite: hierarchy.UnitWrite{
			Name:          n.Name,
			Comment:       n.Comment,
			IsActive:      n.IsActive,
			IsFundamental: v.Depth == 0,
			DisplayOrder:  v.Index,
		}}
		// A soft-deleted id gets a fresh unit; identities are never revived.
		if deleted, ok := deletedByID[n.ID]; ok && !deleted {
			u.ID = n.ID
		}
		p.nodes = append(p.nodes, n)
		p.parents = append(p.parents, v.ParentSeq)
		p.paths = append(p.paths, v.Path())
		p.upserts = append(p.upserts, u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *upsertPlan) resolve(ids []int64) ([]*hierarchy.ResolvedNode, error) {
	if len(ids) != len(p.nodes) {
		return nil, newServiceError(KindPersistence, http.StatusInternalServerError, CodeInternal,
			"unit save returned an unexpected number of ids", nil)
	}
	resolved := make([]*hierarchy.ResolvedNode, len(p.nodes))
	var roots []*hierarchy.ResolvedNode
	for i, n := range p.nodes {
		r := &hierarchy.ResolvedNode{ID: ids[i], Name: n.Name, Comment: n.Comment, IsActive: n.IsActive}
		resolved[i] = r
		if parent := p.parents[i]; parent >= 0 {
			resolved[parent].Children = append(resolved[parent].Children, r)
		} else {
			roots = append(roots, r)
		}
	}
	return roots, nil
}

func (p *upsertPlan) links(ids []int64) []hierarchy.AssignmentLink {
	var out []hierarchy.AssignmentLink
	for i, n := range p.nodes {
		for _, a := range n.Assignments {
			out = append(out, hierarchy.AssignmentLink{UnitID: ids[i], EmployeeID: a.EmployeeID, Role: a.Role})
		}
	}
	return out
}

func (s *HierarchyService) publish(ctx context.Context, log *logrus.Entry, requestID string, res *SyncResult) {
	if s.bus == nil {
		return
	}
	event := &HierarchySynchronizedEvent{
		EventID:      uuid.New(),
		TenantID:     res.TenantID,
		RequestID:    requestID,
		Revision:     res.Revision,
		Created:      res.Created,
		Updated:      res.Updated,
		Deleted:      res.Deleted,
		AncestryRows: res.AncestryRows,
		OccurredAt:   s.now().UTC(),
	}
	// The transaction is committed; handler failures are only logged.
	if err := s.bus.PublishE(context.WithoutCancel(ctx), event); err != nil && !errors.Is(err, eventbus.ErrNoSubscribers) {
		log.WithError(err).Warn("org.hierarchy.event_failed")
	}
}

func (s *HierarchyService) finish(log *logrus.Entry, start time.Time, res *SyncResult, svcErr *ServiceError) {
	elapsed := s.now().Sub(start)
	if svcErr != nil {
		recordSync(string(svcErr.Kind), elapsed.Seconds())
		fields := logrus.Fields{
			"error_kind": svcErr.Kind,
			"error_code": svcErr.Code,
			"duration":   elapsed.String(),
		}
		if svcErr.Path != "" {
			fields["path"] = svcErr.Path
		}
		entry := log.WithFields(fields)
		if svcErr.Kind == KindPersistence {
			entry.WithError(svcErr).Error("org.hierarchy.sync_failed")
		} else {
			entry.WithError(svcErr).Warn("org.hierarchy.sync_rejected")
		}
		return
	}

	result := "ok"
	if res.DryRun {
		result = "dry_run"
	} else {
		recordSyncUnits(len(res.Created), len(res.Updated), len(res.Deleted))
	}
	recordSync(result, elapsed.Seconds())
	log.WithFields(logrus.Fields{
		"revision":      res.Revision,
		"dry_run":       res.DryRun,
		"created":       len(res.Created),
		"updated":       len(res.Updated),
		"deleted":       len(res.Deleted),
		"ancestry_rows": res.AncestryRows,
		"duration":      elapsed.String(),
	}).Info("org.hierarchy.synchronized")
}

// GetHierarchy returns the tenant's live forest from one consistent snapshot.
func (s *HierarchyService) GetHierarchy(ctx context.Context, tenantID uuid.UUID) (*HierarchyView, error) {
	if tenantID == uuid.Nil {
		return nil, validationError(CodeNoTenant, "tenant_id is required")
	}
	ctx, span := startSpan(ctx, "org.hierarchy.read", tenantID)
	defer span.End()

	var view *HierarchyView
	err := s.tx.InReadTx(ctx, tenantID, func(txCtx context.Context) error {
		tenant, err := s.repo.GetTenant(txCtx, tenantID)
		if err != nil {
			return err
		}
		if s.cache != nil {
			cached, ok := s.cache.Get(txCtx, tenantID, tenant.Revision)
			recordCacheRequest(s.cache.Name(), ok)
			if ok {
				view = cached
				return nil
			}
		}

		units, err := s.repo.ListLiveUnits(txCtx, tenantID)
		if err != nil {
			return err
		}
		edges, err := s.repo.ListAncestry(txCtx, tenantID)
		if err != nil {
			return err
		}
		roots, err := hierarchy.AssembleForest(units, edges, s.limits)
		if err != nil {
			return err
		}
		if roots == nil {
			roots = []*hierarchy.ResolvedNode{}
		}
		view = &HierarchyView{
			TenantID:   tenantID,
			TenantName: tenant.Name,
			Revision:   tenant.Revision,
			Units:      roots,
		}
		if s.cache != nil {
			s.cache.Set(txCtx, view)
		}
		return nil
	})
	if err != nil {
		err = mapPgErrorToServiceError(err)
		failSpan(span, err)
		return nil, err
	}
	return view, nil
}

// GetSubtree returns one live unit with all of its descendants.
func (s *HierarchyService) GetSubtree(ctx context.Context, tenantID uuid.UUID, unitID int64) (*hierarchy.ResolvedNode, error) {
	if tenantID == uuid.Nil {
		return nil, validationError(CodeNoTenant, "tenant_id is required")
	}
	ctx, span := startSpan(ctx, "org.hierarchy.subtree", tenantID)
	defer span.End()
	if unitID <= 0 {
		return nil, validationError(hierarchy.CodeInvalidID, "unit id must be positive")
	}

	var out *hierarchy.ResolvedNode
	err := s.tx.InReadTx(ctx, tenantID, func(txCtx context.Context) error {
		if _, err := s.repo.GetTenant(txCtx, tenantID); err != nil {
			return err
		}
		units, edges, err := s.repo.ListSubtree(txCtx, tenantID, unitID)
		if err != nil {
			return err
		}
		node, err := hierarchy.AssembleSubtree(unitID, units, edges, s.limits)
		if err != nil {
			if errors.Is(err, hierarchy.ErrUnitNotFound) {
				return unitNotFound(unitID)
			}
			return err
		}
		out = node
		return nil
	})
	if err != nil {
		err = mapPgErrorToServiceError(err)
		failSpan(span, err)
		return nil, err
	}
	return out, nil
}

// VerifyHierarchy compares the persisted ancestry index with the closure of
// the parent relation it encodes.
func (s *HierarchyService) VerifyHierarchy(ctx context.Context, tenantID uuid.UUID) (hierarchy.VerifyReport, error) {
	if tenantID == uuid.Nil {
		return hierarchy.VerifyReport{}, validationError(CodeNoTenant, "tenant_id is required")
	}
	ctx, span := startSpan(ctx, "org.hierarchy.verify", tenantID)
	defer span.End()

	var report hierarchy.VerifyReport
	err := s.tx.InReadTx(ctx, tenantID, func(txCtx context.Context) error {
		if _, err := s.repo.GetTenant(txCtx, tenantID); err != nil {
			return err
		}
		units, err := s.repo.ListLiveUnits(txCtx, tenantID)
		if err != nil {
			return err
		}
		edges, err := s.repo.ListAncestry(txCtx, tenantID)
		if err != nil {
			return err
		}
		report = hierarchy.Verify(units, edges, s.limits)
		return nil
	})
	if err != nil {
		err = mapPgErrorToServiceError(err)
		failSpan(span, err)
		return hierarchy.VerifyReport{}, err
	}
	if !report.Consistent() {
		s.logger(ctx).WithFields(logrus.Fields{
			"tenant_id": tenantID.String(),
			"issues":    len(report.Issues),
		}).Warn("org.hierarchy.verify_inconsistent")
	}
	return report, nil
}
