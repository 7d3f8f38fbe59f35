package lstore

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrRecordNotFound is returned when a rid or value does not resolve
	// to a live record.
	ErrRecordNotFound = errors.New("lstore: record not found")
	// ErrInvalidArity is returned when an inserted row does not match the
	// table's column count. It is fatal, see IsFatal.
	ErrInvalidArity  = errors.New("lstore: invalid number of columns")
	ErrDuplicateKey  = errors.New("lstore: duplicate key")
	ErrNullIncrement = errors.New("lstore: cannot increment null value")
	ErrOverflow      = errors.New("lstore: increment overflows int64")
	ErrPageFull      = errors.New("lstore: page is full")

	ErrTableExists   = errors.New("lstore: table already exists")
	ErrTableNotFound = errors.New("lstore: table not found")
	ErrInvalidSchema = errors.New("lstore: invalid table schema")
	ErrClosed        = errors.New("lstore: database is closed")
	ErrWriteByOther  = errors.New("lstore: database opened with write mode by another process")

	errBadMagic       = errors.New("lstore: bad magic")
	errBadCompression = errors.New("lstore: bad compression codec")
)

// ContractError is the panic value raised when a caller passes a column
// number outside the table.
type ContractError struct {
	Op         string
	Column     int
	NumColumns int
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("lstore: %s: invalid column number %d (table has %d)", e.Op, e.Column, e.NumColumns)
}

// IsFatal reports whether err signals a caller bug rather than a data
// condition.
func IsFatal(err error) bool {
	var ce *ContractError
	return errors.Is(err, ErrInvalidArity) || errors.As(err, &ce)
}

func checkColumn(op string, col, numColumns int) {
	if col < 0 || col >= numColumns {
		panic(&ContractError{Op: op, Column: col, NumColumns: numColumns})
	}
}
