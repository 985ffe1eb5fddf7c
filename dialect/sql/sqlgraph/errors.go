package sqlgraph

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// NotFoundError is returned by QueryNode when no row matches the given key.
type NotFoundError struct {
	table string
	id    any
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record with id %v not found in table %s", e.id, e.table)
}

// Table returns the table that was queried.
func (e *NotFoundError) Table() string { return e.table }

// ID returns the key that was searched for.
func (e *NotFoundError) ID() any { return e.id }

// ConstraintError represents an error from a database constraint violation,
// for example inserting the same junction row twice.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error implements the error interface.
func (e ConstraintError) Error() string { return e.msg }

// Unwrap implements the errors.Wrapper interface.
func (e *ConstraintError) Unwrap() error { return e.wrap }

// wrapConstraint wraps err with a *ConstraintError when it
// resulted from a constraint violation.
func wrapConstraint(err error) error {
	if err == nil || !IsConstraintError(err) {
		return err
	}
	return &ConstraintError{msg: err.Error(), wrap: err}
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	var e *ConstraintError
	return errors.As(err, &e) ||
		IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// sqlStateError is implemented by the Postgres driver errors
// (*pq.Error and *pgconn.PgError).
type sqlStateError interface {
	SQLState() string
}

// Postgres SQLSTATE codes for constraint violations (class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry   = 1062
	mysqlForeignKeyParent = 1451 // cannot delete or update a parent row
	mysqlForeignKeyChild  = 1452 // cannot add or update a child row
	mysqlCheckViolation   = 3819
)

// violation is a constraint kind with its codes in each dialect.
type violation struct {
	state   string
	numbers []uint16
	texts   []string // SQLite reports constraints in the message only
}

var (
	uniqueViolation = violation{
		state:   pgUniqueViolation,
		numbers: []uint16{mysqlDuplicateEntry},
		texts:   []string{"Error 1062", "violates unique constraint", "UNIQUE constraint failed"},
	}
	foreignKeyViolation = violation{
		state:   pgForeignKeyViolation,
		numbers: []uint16{mysqlForeignKeyParent, mysqlForeignKeyChild},
		texts:   []string{"Error 1451", "Error 1452", "violates foreign key constraint", "FOREIGN KEY constraint failed"},
	}
	checkViolation = violation{
		state:   pgCheckViolation,
		numbers: []uint16{mysqlCheckViolation},
		texts:   []string{"Error 3819", "violates check constraint", "CHECK constraint failed"},
	}
)

func (v violation) match(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := asError[sqlStateError](err); ok && e.SQLState() == v.state {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && slices.Contains(v.numbers, me.Number) {
		return true
	}
	msg := err.Error()
	for _, t := range v.texts {
		if strings.Contains(msg, t) {
			return true
		}
	}
	return false
}

// IsUniqueConstraintError reports if the error resulted from a uniqueness
// constraint violation, such as linking the same pair twice.
func IsUniqueConstraintError(err error) bool {
	return uniqueViolation.match(err)
}

// IsForeignKeyConstraintError reports if the error resulted from a
// foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool {
	return foreignKeyViolation.match(err)
}

// IsCheckConstraintError reports if the error resulted from a check
// constraint violation.
func IsCheckConstraintError(err error) bool {
	return checkViolation.match(err)
}

// asError finds the first error in the chain implementing T.
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
