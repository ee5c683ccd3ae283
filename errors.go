package xpg

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"xorkevin.dev/kerrors"
)

var (
	// ErrConnection is returned when the database connection fails
	ErrConnection errConnection
	// ErrEncode is returned when an application value does not fit its target type
	ErrEncode errEncode
	// ErrDecode is returned when a wire value cannot be decoded into its target type
	ErrDecode errDecode
	// ErrUnknownEnumMember is returned when a value is not a member of an enum type
	ErrUnknownEnumMember errUnknownEnumMember
	// ErrUnregisteredType is returned when a type name or OID has no codec
	ErrUnregisteredType errUnregisteredType
	// ErrUnregisteredElementType is returned when an array is requested for an unregistered element type
	ErrUnregisteredElementType errUnregisteredElementType
	// ErrDuplicateType is returned when a type name is registered twice
	ErrDuplicateType errDuplicateType
	// ErrRegistrySealed is returned when registering into a sealed registry
	ErrRegistrySealed errRegistrySealed
	// ErrInvalidType is returned for malformed type descriptors
	ErrInvalidType errInvalidType
	// ErrMissingColumn is returned when a required column is absent from a row
	ErrMissingColumn errMissingColumn
	// ErrColumnDecode is returned when a column value fails to decode
	ErrColumnDecode errColumnDecode
	// ErrUnexpectedNull is returned when a not null column holds null
	ErrUnexpectedNull errUnexpectedNull
	// ErrNoRows is returned when exactly one row was expected and none was returned
	ErrNoRows errNoRows
	// ErrMultipleRows is returned when exactly one row was expected and more were returned
	ErrMultipleRows errMultipleRows
	// ErrTransactionClosed is returned when using a committed or rolled back transaction
	ErrTransactionClosed errTransactionClosed
	// ErrTransactionAborted is returned when using a transaction whose statement was cancelled
	ErrTransactionAborted errTransactionAborted
	// ErrTransactionBusy is returned when a transaction is borrowed while a statement is in flight
	ErrTransactionBusy errTransactionBusy
	// ErrShapeMismatch is returned when a record shape disagrees with the database catalog
	ErrShapeMismatch errShapeMismatch
	// ErrInvalidQuery is returned when a statement cannot be scanned or a result has no columns
	ErrInvalidQuery errInvalidQuery
	// ErrNilParams is returned when named parameters are a nil value or nil pointer
	ErrNilParams errNilParams
	// ErrUnsupportedArg is returned when named parameters are neither a struct nor a map with string keys
	ErrUnsupportedArg errUnsupportedArg
	// ErrDuplicateKeyTag is returned when two struct fields resolve to the same parameter name
	ErrDuplicateKeyTag errDuplicateKeyTag
	// ErrMissingParam is returned when a :name has no value
	ErrMissingParam errMissingParam
)

type (
	errConnection              struct{}
	errEncode                  struct{}
	errDecode                  struct{}
	errUnknownEnumMember       struct{}
	errUnregisteredType        struct{}
	errUnregisteredElementType struct{}
	errDuplicateType           struct{}
	errRegistrySealed          struct{}
	errInvalidType             struct{}
	errMissingColumn           struct{}
	errColumnDecode            struct{}
	errUnexpectedNull          struct{}
	errNoRows                  struct{}
	errMultipleRows            struct{}
	errTransactionClosed       struct{}
	errTransactionAborted      struct{}
	errTransactionBusy         struct{}
	errShapeMismatch           struct{}
	errInvalidQuery            struct{}
	errNilParams               struct{}
	errUnsupportedArg          struct{}
	errDuplicateKeyTag         struct{}
	errMissingParam            struct{}
)

func (e errConnection) Error() string              { return "Database connection error" }
func (e errEncode) Error() string                  { return "Encode error" }
func (e errDecode) Error() string                  { return "Decode error" }
func (e errUnknownEnumMember) Error() string       { return "Unknown enum member" }
func (e errUnregisteredType) Error() string        { return "Unregistered type" }
func (e errUnregisteredElementType) Error() string { return "Unregistered array element type" }
func (e errDuplicateType) Error() string           { return "Duplicate type" }
func (e errRegistrySealed) Error() string          { return "Registry sealed" }
func (e errInvalidType) Error() string             { return "Invalid type descriptor" }
func (e errMissingColumn) Error() string           { return "Missing column" }
func (e errColumnDecode) Error() string            { return "Column decode error" }
func (e errUnexpectedNull) Error() string          { return "Unexpected null" }
func (e errNoRows) Error() string                  { return "No rows returned" }
func (e errMultipleRows) Error() string            { return "Multiple rows returned" }
func (e errTransactionClosed) Error() string       { return "Transaction closed" }
func (e errTransactionAborted) Error() string      { return "Transaction aborted" }
func (e errTransactionBusy) Error() string         { return "Transaction busy" }
func (e errShapeMismatch) Error() string           { return "Shape mismatch" }
func (e errInvalidQuery) Error() string            { return "Invalid query" }
func (e errNilParams) Error() string               { return "Nil named parameters" }
func (e errUnsupportedArg) Error() string          { return "Unsupported named parameters" }
func (e errDuplicateKeyTag) Error() string         { return "Duplicate named parameter" }
func (e errMissingParam) Error() string            { return "Missing named parameter" }

type (
	// ColumnError locates a failure at a named result column.
	ColumnError struct {
		Column string
		Err    error
	}

	// ElementError locates a failure at a zero-based array element.
	ElementError struct {
		Index int
		Err   error
	}

	// ParamError locates a failure at a zero-based statement parameter.
	ParamError struct {
		Index int
		Err   error
	}

	// BatchError locates a failure at a zero-based statement of a batch.
	BatchError struct {
		Index int
		Err   error
	}
)

func (e *ColumnError) Error() string {
	return fmt.Sprintf("column %q: %v", e.Column, e.Err)
}

func (e *ColumnError) Unwrap() error { return e.Err }

func (e *ElementError) Error() string {
	return fmt.Sprintf("element %d: %v", e.Index, e.Err)
}

func (e *ElementError) Unwrap() error { return e.Err }

func (e *ParamError) Error() string {
	return fmt.Sprintf("parameter $%d: %v", e.Index+1, e.Err)
}

func (e *ParamError) Unwrap() error { return e.Err }

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch statement %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

func encodeErr(typ string, format string, args ...any) error {
	return kerrors.WithKind(nil, ErrEncode, fmt.Sprintf("Failed encoding %s: %s", typ, fmt.Sprintf(format, args...)))
}

func decodeErr(cause error, typ string, format string, args ...any) error {
	return kerrors.WithKind(cause, ErrDecode, fmt.Sprintf("Failed decoding %s: %s", typ, fmt.Sprintf(format, args...)))
}

// classifyDriverErr tags errors that mean the connection is unusable with
// [ErrConnection]. Context errors and server-side errors keep their identity.
func classifyDriverErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return kerrors.WithMsg(err, msg)
	}
	if isConnectionErr(err) {
		return kerrors.WithKind(err, ErrConnection, msg)
	}
	return kerrors.WithMsg(err, msg)
}

func isConnectionErr(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08")
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
