package lstore

// SchemaEncoding has one bit per user column, set when the version
// carries a value for that column.
type SchemaEncoding uint64

func (s SchemaEncoding) Set(col int) SchemaEncoding { return s | 1<<uint(col) }
func (s SchemaEncoding) Has(col int) bool           { return s&(1<<uint(col)) != 0 }

// MaxColumns is bounded by the width of SchemaEncoding.
const MaxColumns = 64
