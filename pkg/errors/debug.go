package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	pgconnv5 "github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE codes the ledger reacts to.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// ErrorDump flattens an error chain for structured logs.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	fillPostgres(&d, err)
	return d
}

// fillPostgres copies SQLSTATE details from whichever driver produced err:
// pgx v4 or v5 through gorm, lib/pq through goose.
func fillPostgres(d *ErrorDump, err error) {
	if v5 := (*pgconnv5.PgError)(nil); errors.As(err, &v5) {
		d.PGCode, d.PGConstraint, d.PGTable = v5.Code, v5.ConstraintName, v5.TableName
		d.PGColumn, d.PGDetail, d.PGMessage = v5.ColumnName, v5.Detail, v5.Message
		return
	}
	if v4 := (*pgconn.PgError)(nil); errors.As(err, &v4) {
		d.PGCode, d.PGConstraint, d.PGTable = v4.Code, v4.ConstraintName, v4.TableName
		d.PGColumn, d.PGDetail, d.PGMessage = v4.ColumnName, v4.Detail, v4.Message
		return
	}
	if pqErr := (*pq.Error)(nil); errors.As(err, &pqErr) {
		d.PGCode, d.PGConstraint, d.PGTable = string(pqErr.Code), pqErr.Constraint, pqErr.Table
		d.PGColumn, d.PGDetail, d.PGMessage = pqErr.Column, pqErr.Detail, pqErr.Message
	}
}

// IsUniqueViolation reports a unique-key failure on constraint (any
// constraint when empty). SQLite exposes no SQLSTATE, so its message is
// matched instead.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	d := Dump(err)
	if d.PGCode != "" {
		return d.PGCode == pgUniqueViolation &&
			(constraint == "" || d.PGConstraint == constraint || strings.Contains(d.PGMessage, constraint))
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return true
	case strings.Contains(msg, "duplicate key value"):
		return constraint == "" || strings.Contains(msg, constraint)
	}
	return false
}

// IsSerializationFailure reports a transaction Postgres aborted because of
// a concurrent writer. Such a transaction is safe to run again.
func IsSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	code := Dump(err).PGCode
	return code == pgSerializationFailure || code == pgDeadlockDetected
}
