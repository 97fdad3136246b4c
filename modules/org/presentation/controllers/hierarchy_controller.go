package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/bizdash/orgsync/modules/org/domain/hierarchy"
	"github.com/bizdash/orgsync/modules/org/presentation/dtos"
	"github.com/bizdash/orgsync/modules/org/presentation/mappers"
	"github.com/bizdash/orgsync/modules/org/services"
	"github.com/bizdash/orgsync/pkg/httpapi"
)

const maxSyncBodyBytes = 16 << 20

type HierarchyService interface {
	Synchronize(ctx context.Context, tenantID uuid.UUID, req services.SyncRequest) (*services.SyncResult, error)
	GetHierarchy(ctx context.Context, tenantID uuid.UUID) (*services.HierarchyView, error)
	GetSubtree(ctx context.Context, tenantID uuid.UUID, unitID int64) (*hierarchy.ResolvedNode, error)
}

type HierarchyController struct {
	org             HierarchyService
	apiPrefix       string
	requestIDHeader string
}

func NewHierarchyController(org HierarchyService, requestIDHeader string) *HierarchyController {
	if requestIDHeader == "" {
		requestIDHeader = "X-Request-ID"
	}
	return &HierarchyController{
		org:             org,
		apiPrefix:       "/org/api",
		requestIDHeader: requestIDHeader,
	}
}

func (c *HierarchyController) Key() string {
	return c.apiPrefix
}

func (c *HierarchyController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("/tenants/{tenant}/hierarchy", c.GetHierarchy).Methods(http.MethodGet)
	api.HandleFunc("/tenants/{tenant}/hierarchy", c.SyncHierarchy).Methods(http.MethodPut)
	api.HandleFunc("/tenants/{tenant}/hierarchy/units/{id}", c.GetSubtree).Methods(http.MethodGet)
}

func (c *HierarchyController) GetHierarchy(w http.ResponseWriter, r *http.Request) {
	requestID := c.ensureRequestID(r)
	tenantID, ok := requireTenant(w, r, requestID)
	if !ok {
		return
	}
	view, err := c.org.GetHierarchy(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, mappers.HierarchyToDTO(view))
}

func (c *HierarchyController) SyncHierarchy(w http.ResponseWriter, r *http.Request) {
	requestID := c.ensureRequestID(r)
	tenantID, ok := requireTenant(w, r, requestID)
	if !ok {
		return
	}

	var body dtos.SyncRequestDTO
	if err := httpapi.DecodeJSON(r, maxSyncBodyBytes, &body); err != nil {
		if errors.Is(err, httpapi.ErrBodyTooLarge) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, requestID, hierarchy.CodeTooManyNodes, "request body too large")
			return
		}
		writeAPIError(w, http.StatusBadRequest, requestID, hierarchy.CodeInvalidBody, err.Error())
		return
	}
	if body.Units == nil {
		writeAPIError(w, http.StatusBadRequest, requestID, hierarchy.CodeInvalidBody, "units is required")
		return
	}

	req, err := mappers.SyncRequest(&body, requestID)
	if err != nil {
		var vErr *hierarchy.ValidationError
		if errors.As(err, &vErr) {
			writeAPIErrorMeta(w, http.StatusBadRequest, requestID, vErr.Code, vErr.Message, vErr.Path)
			return
		}
		writeAPIError(w, http.StatusBadRequest, requestID, hierarchy.CodeInvalidBody, err.Error())
		return
	}

	res, err := c.org.Synchronize(r.Context(), tenantID, req)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, mappers.SyncResultToDTO(res))
}

func (c *HierarchyController) GetSubtree(w http.ResponseWriter, r *http.Request) {
	requestID := c.ensureRequestID(r)
	tenantID, ok := requireTenant(w, r, requestID)
	if !ok {
		return
	}
	unitID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || unitID <= 0 {
		writeAPIError(w, http.StatusBadRequest, requestID, hierarchy.CodeInvalidID, "unit id must be a positive integer")
		return
	}
	node, err := c.org.GetSubtree(r.Context(), tenantID, unitID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, mappers.UnitTree([]*hierarchy.ResolvedNode{node})[0])
}

func (c *HierarchyController) ensureRequestID(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get(c.requestIDHeader))
	if v != "" {
		return v
	}
	v = uuid.NewString()
	r.Header.Set(c.requestIDHeader, v)
	return v
}

func requireTenant(w http.ResponseWriter, r *http.Request, requestID string) (uuid.UUID, bool) {
	tenantID, err := uuid.Parse(mux.Vars(r)["tenant"])
	if err != nil || tenantID == uuid.Nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeNoTenant, "tenant id must be a uuid")
		return uuid.Nil, false
	}
	return tenantID, true
}

func writeServiceError(w http.ResponseWriter, requestID string, err error) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		writeAPIErrorMeta(w, svcErr.Status, requestID, svcErr.Code, svcErr.Message, svcErr.Path)
		return
	}
	writeAPIError(w, http.StatusInternalServerError, requestID, services.CodeInternal, "internal error")
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	writeAPIErrorMeta(w, status, requestID, code, message, "")
}

func writeAPIErrorMeta(w http.ResponseWriter, status int, requestID, code, message, path string) {
	meta := map[string]string{}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	if path != "" {
		meta["path"] = path
	}
	_ = httpapi.WriteError(w, status, code, message, meta)
}
