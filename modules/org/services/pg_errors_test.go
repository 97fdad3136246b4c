package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/bizdash/orgsync/modules/org/domain/hierarchy"
)

func TestMapPgErrorToServiceError(t *testing.T) {
	require.NoError(t, mapPgErrorToServiceError(nil))

	cases := []struct {
		name   string
		err    error
		kind   ErrorKind
		code   string
		status int
	}{
		{"serialization", &pgconn.PgError{Code: "40001"}, KindConcurrency, CodeConcurrentUpdate, http.StatusConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, KindConcurrency, CodeConcurrentUpdate, http.StatusConflict},
		{"lock timeout", fmt.Errorf("lock: %w", &pgconn.PgError{Code: "55P03"}), KindConcurrency, CodeConcurrentUpdate, http.StatusConflict},
		{"unique", &pgconn.PgError{Code: "23505", ConstraintName: "org_units_pkey"}, KindPersistence, CodeIntegrity, http.StatusConflict},
		{"other sqlstate", &pgconn.PgError{Code: "XX000"}, KindPersistence, CodeInternal, http.StatusInternalServerError},
		{"plain error", errors.New("conn reset"), KindPersistence, CodeInternal, http.StatusInternalServerError},
		{"canceled", context.Canceled, KindPersistence, CodeCanceled, http.StatusServiceUnavailable},
		{"no rows", pgx.ErrNoRows, KindNotFound, CodeUnitNotFound, http.StatusNotFound},
		{"tenant", hierarchy.ErrTenantNotFound, KindNotFound, CodeTenantNotFound, http.StatusNotFound},
		{
			"validation",
			&hierarchy.ValidationError{Code: hierarchy.CodeEmptyName, Path: "units[0]", Message: "name is required"},
			KindValidation, hierarchy.CodeEmptyName, http.StatusBadRequest,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := mapPgErrorToServiceError(tc.err)
			var svcErr *ServiceError
			require.ErrorAs(t, err, &svcErr)
			require.Equal(t, tc.kind, svcErr.Kind)
			require.Equal(t, tc.code, svcErr.Code)
			require.Equal(t, tc.status, svcErr.Status)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestMapPgErrorToServiceError_PassesServiceErrorsThrough(t *testing.T) {
	in := unitNotFound(5)
	out := mapPgErrorToServiceError(fmt.Errorf("wrapped: %w", in))
	require.Same(t, in, out)
}

func TestErrorKindHelpers(t *testing.T) {
	err := fmt.Errorf("outer: %w", newServiceError(KindConcurrency, http.StatusConflict, CodeRevisionConflict, "x", nil))
	require.True(t, IsConcurrency(err))
	require.False(t, IsValidation(err))
	require.False(t, IsNotFound(err))
	require.False(t, IsPersistence(err))
	require.False(t, IsNotFound(errors.New("plain")))
}
