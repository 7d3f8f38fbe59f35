package lstore

import (
	"encoding/binary"
	"strconv"
)

// Value is the single column type of a table: a signed 64-bit integer
// or null. The zero Value is null.
type Value struct {
	n     int64
	valid bool
}

// Null is the absent value.
var Null = Value{}

// Int returns a present value.
func Int(n int64) Value { return Value{n: n, valid: true} }

// Ints converts a row of integers into values.
func Ints(ns ...int64) []Value {
	vs := make([]Value, len(ns))
	for i, n := range ns {
		vs[i] = Int(n)
	}
	return vs
}

func (v Value) IsNull() bool { return !v.valid }

// Int64 returns the integer and whether the value is present.
func (v Value) Int64() (int64, bool) { return v.n, v.valid }

func (v Value) Equal(o Value) bool {
	return v.valid == o.valid && v.n == o.n
}

func (v Value) String() string {
	if !v.valid {
		return "null"
	}
	return strconv.FormatInt(v.n, 10)
}

// canonical is the 9 byte form hashed by the hash index: a presence byte
// followed by the big endian integer.
func (v Value) canonical() [9]byte {
	var b [9]byte
	if v.valid {
		b[0] = 1
		binary.BigEndian.PutUint64(b[1:], uint64(v.n))
	}
	return b
}

// inRange reports whether v is present and begin <= v <= end.
func (v Value) inRange(begin, end int64) bool {
	return v.valid && begin <= v.n && v.n <= end
}
