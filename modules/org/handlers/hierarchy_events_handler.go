package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bizdash/orgsync/modules/org/services"
	"github.com/bizdash/orgsync/pkg/composables"
	"github.com/bizdash/orgsync/pkg/eventbus"
)

type SyncAuditor interface {
	InsertSyncAudit(ctx context.Context, ev *services.HierarchySynchronizedEvent) error
}

type txRunner func(ctx context.Context, tenantID uuid.UUID, fn func(context.Context) error) error

// HierarchyEventsHandler reacts to committed synchronizations: it drops the
// tenant's cached views and records an audit row.
type HierarchyEventsHandler struct {
	cache   services.HierarchyCache
	auditor SyncAuditor
	inTx    txRunner
	log     *logrus.Logger
}

func RegisterHierarchyEventHandlers(bus eventbus.EventBus, cache services.HierarchyCache, auditor SyncAuditor, log *logrus.Logger) *HierarchyEventsHandler {
	handler := &HierarchyEventsHandler{
		cache:   cache,
		auditor: auditor,
		inTx:    composables.InTenantTx,
		log:     log,
	}
	bus.Subscribe(handler.onHierarchySynchronized)
	return handler
}

func (h *HierarchyEventsHandler) onHierarchySynchronized(ctx context.Context, ev *services.HierarchySynchronizedEvent) error {
	if h == nil || ev == nil {
		return nil
	}
	if h.cache != nil {
		h.cache.InvalidateTenant(ctx, ev.TenantID)
		services.RecordCacheInvalidate("sync")
	}
	if h.auditor == nil {
		return nil
	}
	err := h.inTx(ctx, ev.TenantID, func(txCtx context.Context) error {
		return h.auditor.InsertSyncAudit(txCtx, ev)
	})
	if err != nil && h.log != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"tenant_id": ev.TenantID,
			"revision":  ev.Revision,
			"event_id":  ev.EventID,
		}).Error("org.hierarchy.audit_failed")
	}
	return err
}
