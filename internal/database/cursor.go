package database

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ColumnType is the storage class of a column value.
type ColumnType int

const (
	ColumnNull ColumnType = iota
	ColumnInteger
	ColumnFloat
	ColumnText
	ColumnBlob
)

func (t ColumnType) String() string {
	switch t {
	case ColumnInteger:
		return "integer"
	case ColumnFloat:
		return "float"
	case ColumnText:
		return "text"
	case ColumnBlob:
		return "blob"
	default:
		return "null"
	}
}

// Column is one typed value of the current row.
type Column struct {
	Type  ColumnType
	Int   int64
	Float float64
	Bytes []byte
}

// Text returns the column bytes as a string.
func (c Column) Text() string {
	return string(c.Bytes)
}

// Cursor iterates the rows of a query started by Conn.Run. A cursor is
// either active (it holds a statement) or closed; the zero value is closed.
//
// Rows are fetched with Next. A cursor closes itself when the rows are
// exhausted; call Close when stopping early. Close is always safe.
type Cursor struct {
	// Columns holds the current row after a successful Next.
	Columns []Column

	stmt    *sqlx.Stmt
	rows    *sqlx.Rows
	pending bool // Run already stepped onto the first row
	err     error
}

// Active reports whether the cursor still holds a statement.
func (cur *Cursor) Active() bool {
	return cur.rows != nil
}

// Next advances to the next row and materializes its columns. It returns
// false, closing the cursor, when no rows remain.
func (cur *Cursor) Next() bool {
	if cur.rows == nil {
		return false
	}

	if !cur.pending {
		if !cur.rows.Next() {
			cur.err = cur.rows.Err()
			cur.Close()
			return false
		}
	}
	cur.pending = false

	values, err := cur.rows.SliceScan()
	if err != nil {
		cur.err = err
		cur.Close()
		return false
	}

	cols := make([]Column, len(values))
	for i, v := range values {
		cols[i] = toColumn(v)
	}
	cur.Columns = cols
	return true
}

// Err returns the error, if any, that ended the iteration.
func (cur *Cursor) Err() error {
	return cur.err
}

// Close releases the statement. It is a no-op on a closed cursor.
func (cur *Cursor) Close() {
	if cur.rows == nil {
		return
	}
	_ = cur.rows.Close()
	closeStmt(cur.stmt)
	cur.rows = nil
	cur.stmt = nil
	cur.Columns = nil
	cur.pending = false
}

// Int returns column i of the current row as an integer, or 0.
func (cur *Cursor) Int(i int) int64 {
	if i < 0 || i >= len(cur.Columns) {
		return 0
	}
	return cur.Columns[i].Int
}

// Text returns column i of the current row as a string, or "".
func (cur *Cursor) Text(i int) string {
	if i < 0 || i >= len(cur.Columns) {
		return ""
	}
	return cur.Columns[i].Text()
}

// Bytes returns column i of the current row as bytes, or nil.
func (cur *Cursor) Bytes(i int) []byte {
	if i < 0 || i >= len(cur.Columns) {
		return nil
	}
	return cur.Columns[i].Bytes
}

// Float returns column i of the current row as a float, or 0.
func (cur *Cursor) Float(i int) float64 {
	if i < 0 || i >= len(cur.Columns) {
		return 0
	}
	return cur.Columns[i].Float
}

func toColumn(v any) Column {
	switch x := v.(type) {
	case nil:
		return Column{Type: ColumnNull}
	case int64:
		return Column{Type: ColumnInteger, Int: x, Float: float64(x)}
	case float64:
		return Column{Type: ColumnFloat, Int: int64(x), Float: x}
	case bool:
		if x {
			return Column{Type: ColumnInteger, Int: 1, Float: 1}
		}
		return Column{Type: ColumnInteger}
	case []byte:
		return Column{Type: ColumnBlob, Bytes: x}
	case string:
		return Column{Type: ColumnText, Bytes: []byte(x)}
	case time.Time:
		return Column{Type: ColumnText, Bytes: []byte(x.Format(time.RFC3339Nano))}
	default:
		return Column{Type: ColumnText, Bytes: fmt.Appendf(nil, "%v", x)}
	}
}

func closeStmt(stmt *sqlx.Stmt) {
	if stmt != nil {
		_ = stmt.Close()
	}
}
