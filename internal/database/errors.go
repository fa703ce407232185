// internal/database/errors.go
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ErrorKind separates failures the operator must fix in the environment from bad data.
type ErrorKind string

const (
	KindConnectivity ErrorKind = "connectivity"
	KindConstraint   ErrorKind = "constraint"
	KindDataShape    ErrorKind = "data_shape"
	KindUnknown      ErrorKind = "unknown"
)

// StoreError wraps a driver error with the store operation that produced it.
type StoreError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Classify wraps err in a StoreError. A nil err stays nil and an existing StoreError is kept.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Kind: KindOf(err), Err: err}
}

func IsConnectivity(err error) bool {
	return KindOf(err) == KindConnectivity
}

func IsConstraint(err error) bool {
	return KindOf(err) == KindConstraint
}

// KindOf inspects the concrete driver errors of every supported backend.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return kindOfSQLState(pgErr.Code)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return kindOfSQLState(string(pqErr.Code))
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return kindOfMySQL(myErr.Number)
	}

	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, gorm.ErrForeignKeyViolated),
		errors.Is(err, gorm.ErrCheckConstraintViolated):
		return KindConstraint
	case errors.Is(err, gorm.ErrInvalidData),
		errors.Is(err, gorm.ErrInvalidField),
		errors.Is(err, gorm.ErrInvalidValue),
		errors.Is(err, gorm.ErrInvalidValueOfLength):
		return KindDataShape
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindConnectivity
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return KindConnectivity
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnectivity
	}

	return kindOfMessage(err.Error())
}

func kindOfSQLState(code string) ErrorKind {
	if len(code) < 2 {
		return KindUnknown
	}
	switch code[:2] {
	case "08", "53", "57":
		return KindConnectivity
	case "23":
		return KindConstraint
	case "22", "42":
		return KindDataShape
	}
	return KindUnknown
}

func kindOfMySQL(number uint16) ErrorKind {
	switch number {
	case 1040, 1044, 1045, 1049, 1053, 1129, 1152, 1159, 1161, 2002, 2003, 2006, 2013:
		return KindConnectivity
	case 1048, 1062, 1216, 1217, 1451, 1452, 1557, 1586, 3819:
		return KindConstraint
	case 1054, 1146, 1264, 1265, 1292, 1366, 1406, 1411:
		return KindDataShape
	}
	return KindUnknown
}

// kindOfMessage covers drivers that only expose text, such as sqlite.
func kindOfMessage(msg string) ErrorKind {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "constraint failed"),
		strings.Contains(msg, "unique constraint"),
		strings.Contains(msg, "violates"):
		return KindConstraint
	case strings.Contains(msg, "database is closed"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "unable to open database"),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "i/o timeout"):
		return KindConnectivity
	case strings.Contains(msg, "datatype mismatch"),
		strings.Contains(msg, "no such table"),
		strings.Contains(msg, "no such column"),
		strings.Contains(msg, "has no column"),
		strings.Contains(msg, "invalid input syntax"),
		strings.Contains(msg, "out of range"):
		return KindDataShape
	}
	return KindUnknown
}
