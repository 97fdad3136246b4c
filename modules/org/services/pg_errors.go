package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bizdash/orgsync/modules/org/domain/hierarchy"
)

// mapPgErrorToServiceError turns any error escaping a transaction into a
// *ServiceError. Errors that already are service errors pass through.
func mapPgErrorToServiceError(err error) error {
	if err == nil {
		return nil
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	var vErr *hierarchy.ValidationError
	if errors.As(err, &vErr) {
		return fromValidation(vErr)
	}

	switch {
	case errors.Is(err, hierarchy.ErrTenantNotFound):
		return tenantNotFound()
	case errors.Is(err, hierarchy.ErrUnitNotFound), errors.Is(err, pgx.ErrNoRows):
		return newServiceError(KindNotFound, http.StatusNotFound, CodeUnitNotFound, "not found", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newServiceError(KindPersistence, http.StatusServiceUnavailable, CodeCanceled, "operation canceled", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return newServiceError(KindPersistence, http.StatusInternalServerError, CodeInternal, "storage failure", err)
	}

	switch pgErr.Code {
	case "40001": // serialization_failure
		recordWriteConflict("serialization")
		return newServiceError(KindConcurrency, http.StatusConflict, CodeConcurrentUpdate, "concurrent update, retry the request", err)
	case "40P01": // deadlock_detected
		recordWriteConflict("deadlock")
		return newServiceError(KindConcurrency, http.StatusConflict, CodeConcurrentUpdate, "concurrent update, retry the request", err)
	case "55P03": // lock_not_available (lock_timeout)
		recordWriteConflict("lock_timeout")
		return newServiceError(KindConcurrency, http.StatusConflict, CodeConcurrentUpdate, "hierarchy is locked by another update", err)
	case "57014": // query_canceled
		return newServiceError(KindPersistence, http.StatusServiceUnavailable, CodeCanceled, "operation canceled", err)
	case "23505", "23503", "23514", "23000":
		recordWriteConflict("integrity")
		return newServiceError(KindPersistence, http.StatusConflict, CodeIntegrity,
			fmt.Sprintf("integrity constraint %q violated", pgErr.ConstraintName), err)
	default:
		return newServiceError(KindPersistence, http.StatusInternalServerError, CodeInternal, fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}
