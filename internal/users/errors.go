package users

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Messages returned to HTTP callers.
const (
	MessageUserNotFound        = "User Not Found"
	MessageMutuallyExclusive   = "Request cannot be processed because parameters are mutually exclusive."
	MessageInvalidUserField    = "Invalid Parameter Received"
	MessageServiceUnavailable  = "Service Unavailable"
	MessageInternalServerError = "Internal Server Error"
)

// UserError represents business-rule failures of user operations
type UserError struct {
	Type    string
	UserID  int64
	Message string
	Cause   error
}

func (e *UserError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("user error [%s] for user %d: %s (caused by: %v)", e.Type, e.UserID, e.Message, e.Cause)
	}
	return fmt.Sprintf("user error [%s] for user %d: %s", e.Type, e.UserID, e.Message)
}

func (e *UserError) Unwrap() error {
	return e.Cause
}

// User error types
const (
	UserErrorTypeNotFound       = "not_found"
	UserErrorTypeInvalidRequest = "invalid_request"
)

// NewUserNotFoundError creates an error for an id that is not in the store
func NewUserNotFoundError(userID int64) *UserError {
	return &UserError{
		Type:    UserErrorTypeNotFound,
		UserID:  userID,
		Message: MessageUserNotFound,
	}
}

// NewNoMatchError creates an error for a filter that matched no users
func NewNoMatchError() *UserError {
	return &UserError{
		Type:    UserErrorTypeNotFound,
		Message: MessageUserNotFound,
	}
}

// NewMutuallyExclusiveError creates an error for a search naming more than one filter
func NewMutuallyExclusiveError(params []string) *UserError {
	return &UserError{
		Type:    UserErrorTypeInvalidRequest,
		Message: MessageMutuallyExclusive,
		Cause:   fmt.Errorf("filters supplied together: %v", params),
	}
}

// NewInvalidRequestError creates an error for malformed input
func NewInvalidRequestError(message string, cause error) *UserError {
	return &UserError{
		Type:    UserErrorTypeInvalidRequest,
		Message: message,
		Cause:   cause,
	}
}

// IsNotFound reports whether err is a not-found user error
func IsNotFound(err error) bool {
	var userErr *UserError
	return errors.As(err, &userErr) && userErr.Type == UserErrorTypeNotFound
}

// IsInvalidRequest reports whether err is an invalid-request user error
func IsInvalidRequest(err error) bool {
	var userErr *UserError
	return errors.As(err, &userErr) && userErr.Type == UserErrorTypeInvalidRequest
}

// StorageError represents errors related to storage operations
type StorageError struct {
	Type      string
	Operation string
	Resource  string
	Message   string
	Cause     error
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("storage error [%s] during %s on %s: %s (caused by: %v)",
			e.Type, e.Operation, e.Resource, e.Message, e.Cause)
	}
	return fmt.Sprintf("storage error [%s] during %s on %s: %s",
		e.Type, e.Operation, e.Resource, e.Message)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Storage error types
const (
	StorageErrorTypeConnectionFailed = "connection_failed"
	StorageErrorTypeQueryFailed      = "query_failed"
	StorageErrorTypeConstraint       = "constraint_violation"
)

// NewStorageConnectionError creates an error for storage connection failures
func NewStorageConnectionError(operation, resource string, cause error) *StorageError {
	return &StorageError{
		Type:      StorageErrorTypeConnectionFailed,
		Operation: operation,
		Resource:  resource,
		Message:   "failed to connect to storage",
		Cause:     cause,
	}
}

// NewStorageQueryError creates an error for storage query failures
func NewStorageQueryError(operation, resource string, cause error) *StorageError {
	return &StorageError{
		Type:      StorageErrorTypeQueryFailed,
		Operation: operation,
		Resource:  resource,
		Message:   "storage query failed",
		Cause:     cause,
	}
}

// NewStorageConstraintError creates an error for integrity constraint violations
func NewStorageConstraintError(operation, resource string, cause error) *StorageError {
	return &StorageError{
		Type:      StorageErrorTypeConstraint,
		Operation: operation,
		Resource:  resource,
		Message:   "constraint violation",
		Cause:     cause,
	}
}

// IsStoreUnavailable reports whether err came from the store itself
func IsStoreUnavailable(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr)
}

func classifyStorageError(operation string, err error) *StorageError {
	var pgdriverErr pgdriver.Error
	if errors.As(err, &pgdriverErr) && pgdriverErr.IntegrityViolation() {
		return NewStorageConstraintError(operation, "users", err)
	}
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) && strings.HasPrefix(pgxErr.Code, "23") {
		return NewStorageConstraintError(operation, "users", err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) {
		return NewStorageConnectionError(operation, "users", err)
	}
	return NewStorageQueryError(operation, "users", err)
}
