package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bizdash/orgsync/modules/org/domain/hierarchy"
)

type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindNotFound    ErrorKind = "not_found"
	KindConcurrency ErrorKind = "concurrency"
	KindPersistence ErrorKind = "persistence"
)

const (
	CodeNoTenant         = "ORG_NO_TENANT"
	CodeTenantNotFound   = "ORG_TENANT_NOT_FOUND"
	CodeUnitNotFound     = "ORG_UNIT_NOT_FOUND"
	CodeRevisionConflict = "ORG_REVISION_CONFLICT"
	CodeConcurrentUpdate = "ORG_CONCURRENT_UPDATE"
	CodeIntegrity        = "ORG_INTEGRITY_VIOLATION"
	CodeCanceled         = "ORG_CANCELED"
	CodeInternal         = "ORG_INTERNAL"
)

type ServiceError struct {
	Kind    ErrorKind
	Status  int
	Code    string
	Message string
	// Path locates the offending node of a rejected forest, if any.
	Path  string
	Cause error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(kind ErrorKind, status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Kind: kind, Status: status, Code: code, Message: message, Cause: cause}
}

func validationError(code, message string) *ServiceError {
	return newServiceError(KindValidation, http.StatusBadRequest, code, message, nil)
}

func fromValidation(vErr *hierarchy.ValidationError) *ServiceError {
	status := http.StatusBadRequest
	if vErr.Code == hierarchy.CodeTooDeep || vErr.Code == hierarchy.CodeTooManyNodes {
		status = http.StatusRequestEntityTooLarge
	}
	return &ServiceError{
		Kind:    KindValidation,
		Status:  status,
		Code:    vErr.Code,
		Message: vErr.Message,
		Path:    vErr.Path,
		Cause:   vErr,
	}
}

func unitNotFound(id int64) *ServiceError {
	return newServiceError(KindNotFound, http.StatusNotFound, CodeUnitNotFound,
		fmt.Sprintf("unit %d does not belong to this tenant", id), hierarchy.ErrUnitNotFound)
}

func tenantNotFound() *ServiceError {
	return newServiceError(KindNotFound, http.StatusNotFound, CodeTenantNotFound, "tenant not found", hierarchy.ErrTenantNotFound)
}

func isKind(err error, kind ErrorKind) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Kind == kind
}

func IsValidation(err error) bool  { return isKind(err, KindValidation) }
func IsNotFound(err error) bool    { return isKind(err, KindNotFound) }
func IsConcurrency(err error) bool { return isKind(err, KindConcurrency) }
func IsPersistence(err error) bool { return isKind(err, KindPersistence) }
