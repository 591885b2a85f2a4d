package sqlgraph

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// ErrorKind classifies driver errors returned while executing a statement.
type ErrorKind uint8

// Error kinds.
const (
	KindUnknown ErrorKind = iota
	KindUniqueConstraint
	KindForeignKeyConstraint
	KindCheckConstraint
	KindNotNullConstraint
	KindSyntax
	KindUndefinedObject
	KindCanceled
	KindConnection
)

var kindNames = [...]string{
	KindUnknown:              "unknown",
	KindUniqueConstraint:     "unique_constraint",
	KindForeignKeyConstraint: "foreign_key_constraint",
	KindCheckConstraint:      "check_constraint",
	KindNotNullConstraint:    "not_null_constraint",
	KindSyntax:               "syntax",
	KindUndefinedObject:      "undefined_object",
	KindCanceled:             "canceled",
	KindConnection:           "connection",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

// PostgreSQL SQLSTATE codes.
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
	pgSyntaxError         = "42601"
	pgUndefinedColumn     = "42703"
	pgUndefinedTable      = "42P01"
	pgUndefinedFunction   = "42883"
	pgQueryCanceled       = "57014"
)

// MySQL error numbers.
const (
	mysqlBadNull                = 1048
	mysqlDuplicateEntry         = 1062
	mysqlParseError             = 1064
	mysqlNoSuchTable            = 1146
	mysqlBadField               = 1054
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlQueryInterrupted       = 1317
	mysqlCheckConstraintViolate = 3819
	mysqlMaxExecutionTime       = 3024
)

// sqlStateError is implemented by drivers exposing SQLSTATE codes, e.g. pgx.
type sqlStateError interface {
	SQLState() string
}

// Classify returns the kind of a driver error.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return KindConnection
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgKind(string(pqErr.Code))
	}
	if e, ok := asError[sqlStateError](err); ok {
		if k := pgKind(e.SQLState()); k != KindUnknown {
			return k
		}
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return mysqlKind(myErr.Number)
	}
	return messageKind(err.Error())
}

func pgKind(code string) ErrorKind {
	switch code {
	case pgUniqueViolation:
		return KindUniqueConstraint
	case pgForeignKeyViolation:
		return KindForeignKeyConstraint
	case pgCheckViolation:
		return KindCheckConstraint
	case pgNotNullViolation:
		return KindNotNullConstraint
	case pgSyntaxError:
		return KindSyntax
	case pgUndefinedColumn, pgUndefinedTable, pgUndefinedFunction:
		return KindUndefinedObject
	case pgQueryCanceled:
		return KindCanceled
	}
	if strings.HasPrefix(code, "08") {
		return KindConnection
	}
	return KindUnknown
}

func mysqlKind(n uint16) ErrorKind {
	switch n {
	case mysqlDuplicateEntry:
		return KindUniqueConstraint
	case mysqlForeignKeyParent, mysqlForeignKeyChild:
		return KindForeignKeyConstraint
	case mysqlCheckConstraintViolate:
		return KindCheckConstraint
	case mysqlBadNull:
		return KindNotNullConstraint
	case mysqlParseError:
		return KindSyntax
	case mysqlNoSuchTable, mysqlBadField:
		return KindUndefinedObject
	case mysqlQueryInterrupted, mysqlMaxExecutionTime:
		return KindCanceled
	}
	return KindUnknown
}

// messageKind falls back to message matching for drivers without typed
// errors, such as modernc.org/sqlite and SQL Server drivers.
func messageKind(msg string) ErrorKind {
	switch {
	case containsAny(msg, "UNIQUE constraint failed", "violates unique constraint", "Violation of UNIQUE KEY", "Cannot insert duplicate key"):
		return KindUniqueConstraint
	case containsAny(msg, "FOREIGN KEY constraint failed", "violates foreign key constraint", "conflicted with the FOREIGN KEY constraint"):
		return KindForeignKeyConstraint
	case containsAny(msg, "CHECK constraint failed", "violates check constraint", "conflicted with the CHECK constraint"):
		return KindCheckConstraint
	case containsAny(msg, "NOT NULL constraint failed", "violates not-null constraint", "Cannot insert the value NULL"):
		return KindNotNullConstraint
	case containsAny(msg, "syntax error", "Incorrect syntax near"):
		return KindSyntax
	case containsAny(msg, "no such table", "no such column", "no such function", "Invalid object name", "Invalid column name"):
		return KindUndefinedObject
	}
	return KindUnknown
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	switch Classify(err) {
	case KindUniqueConstraint, KindForeignKeyConstraint, KindCheckConstraint, KindNotNullConstraint:
		return true
	}
	return false
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
func IsUniqueConstraintError(err error) bool {
	return Classify(err) == KindUniqueConstraint
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool {
	return Classify(err) == KindForeignKeyConstraint
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	return Classify(err) == KindCheckConstraint
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
