package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error categories
const (
	CategoryConnection = "connection"
	CategoryQuery      = "query"
	CategoryTimeout    = "timeout"
	CategorySyntax     = "syntax"
)

const maxQueryLength = 500

// DatabaseError is a failed connection or record query.
//
//nolint:revive // database.DatabaseError reads better than database.Error in logs
type DatabaseError struct {
	Category string
	// Operation is connect, recipients or listings
	Operation string
	Message   string
	// SQLState is the PostgreSQL error code, when the server sent one
	SQLState string
	// Query is truncated to maxQueryLength
	Query       string
	OriginalErr error
}

func (e *DatabaseError) Error() string {
	msg := fmt.Sprintf("database %s error", e.Category)
	if e.Operation != "" {
		msg += " in " + e.Operation
	}
	msg += ": " + e.Message
	if e.SQLState != "" {
		msg += " (SQLSTATE " + e.SQLState + ")"
	} else if e.OriginalErr != nil {
		msg += fmt.Sprintf(" (%v)", e.OriginalErr)
	}
	return msg
}

func (e *DatabaseError) Unwrap() error {
	return e.OriginalErr
}

// NewConnectionError reports a failure to reach the database.
func NewConnectionError(message string, originalErr error) *DatabaseError {
	return &DatabaseError{Category: CategoryConnection, Operation: "connect", Message: message, OriginalErr: originalErr}
}

// ClassifyDatabaseError turns an error from database/sql or pgx into a
// DatabaseError. Server errors are classified by SQLSTATE class; anything
// else by its message.
func ClassifyDatabaseError(err error, operation, query string) *DatabaseError {
	if err == nil {
		return nil
	}
	e := &DatabaseError{
		Category:    CategoryQuery,
		Operation:   operation,
		Message:     err.Error(),
		Query:       truncateQuery(query),
		OriginalErr: err,
	}

	var pgErr *pgconn.PgError
	var connectErr *pgconn.ConnectError
	switch {
	case errors.As(err, &pgErr):
		e.SQLState = pgErr.Code
		e.Message = pgErr.Message
		e.Category = sqlStateCategory(pgErr.Code)
	case errors.As(err, &connectErr):
		e.Category, e.Message = CategoryConnection, "connection failed"
	case errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err):
		e.Category, e.Message = CategoryTimeout, "operation timed out"
	default:
		msg := strings.ToLower(err.Error())
		switch {
		case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
			e.Category, e.Message = CategoryTimeout, "operation timed out"
		case containsAny(msg, connectionIndicators...):
			e.Category, e.Message = CategoryConnection, "connection failed or lost"
		case containsAny(msg, "syntax error", "sqlstate 42"):
			e.Category, e.Message = CategorySyntax, "SQL syntax error"
		}
	}
	return e
}

// sqlStateCategory maps a PostgreSQL error code to a category. Class 08 is
// connection exceptions, 28 invalid authorization, 42 syntax errors and
// undefined objects, and 57014 a cancelled statement.
func sqlStateCategory(code string) string {
	switch {
	case code == "57014":
		return CategoryTimeout
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "28"):
		return CategoryConnection
	case strings.HasPrefix(code, "42"):
		return CategorySyntax
	default:
		return CategoryQuery
	}
}

var connectionIndicators = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"broken pipe",
	"bad connection",
	"unexpected eof",
	"failed to connect",
}

func containsAny(s string, indicators ...string) bool {
	for _, indicator := range indicators {
		if strings.Contains(s, indicator) {
			return true
		}
	}
	return false
}

func truncateQuery(query string) string {
	if len(query) <= maxQueryLength {
		return query
	}
	return query[:maxQueryLength] + "... (truncated)"
}

// GetDatabaseError returns the DatabaseError in err's chain, or nil.
func GetDatabaseError(err error) *DatabaseError {
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return dbErr
	}
	return nil
}
