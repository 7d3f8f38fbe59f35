package lstore

import "fmt"

type versionKind uint8

const (
	versionLatest versionKind = iota
	versionOrdinal
	versionRelative
	versionAsOf
)

// Version selects which version of a record a read returns.
type Version struct {
	kind versionKind
	n    uint64
}

// Latest selects the newest version.
var Latest = Version{}

// Ordinal selects the version current right after the k-th write of the
// record; 0 is the inserted image. Ordinals past the newest write select
// the newest version.
func Ordinal(k int) Version {
	if k < 0 {
		k = 0
	}
	return Version{kind: versionOrdinal, n: uint64(k)}
}

// Relative selects the version n updates before the newest one. The sign
// is ignored, so Relative(-1) and Relative(1) both step back once. Steps
// past the inserted image stop there.
func Relative(n int) Version {
	if n < 0 {
		n = -n
	}
	return Version{kind: versionRelative, n: uint64(n)}
}

// AsOf selects the newest version stamped at or before ts (see
// Table.Clock). Records inserted after ts are not visible.
func AsOf(ts uint64) Version {
	return Version{kind: versionAsOf, n: ts}
}

func (v Version) String() string {
	switch v.kind {
	case versionOrdinal:
		return fmt.Sprintf("ordinal %d", v.n)
	case versionRelative:
		return fmt.Sprintf("relative -%d", v.n)
	case versionAsOf:
		return fmt.Sprintf("as of %d", v.n)
	}
	return "latest"
}

// tailEntry is the bookkeeping of one tail record.
type tailEntry struct {
	addr   Address
	pred   TID
	ts     uint64
	schema SchemaEncoding
}

func (t *Table) tailEntry(tid TID) tailEntry {
	addr := t.tails[tid]
	return tailEntry{
		addr:   addr,
		pred:   TID(t.readID(addr, metaIndirection)),
		ts:     t.readID(addr, metaTimestamp),
		schema: SchemaEncoding(t.readID(addr, metaSchema)),
	}
}

func (t *Table) pred(tid TID) TID {
	return TID(t.readID(t.tails[tid], metaIndirection))
}

// chain returns the record's tids, newest first. Tids strictly decrease
// along predecessor links, so the walk ends at the base.
func (t *Table) chain(rec *record) []TID {
	var tids []TID
	for cur := t.head(rec); cur != 0; cur = t.pred(cur) {
		tids = append(tids, cur)
	}
	return tids
}

// resolve maps a version selector to the tid reads start from, 0 for the
// inserted image. It reports false when the record did not exist at that
// version.
func (t *Table) resolve(rec *record, v Version) (TID, bool) {
	head := t.head(rec)
	switch v.kind {
	case versionRelative:
		cur := head
		for i := uint64(0); i < v.n && cur != 0; i++ {
			cur = t.pred(cur)
		}
		return cur, true

	case versionOrdinal:
		if v.n == 0 {
			return 0, true
		}
		tids := t.chain(rec)
		if v.n >= uint64(len(tids)) {
			return head, true
		}
		return tids[uint64(len(tids))-v.n], true

	case versionAsOf:
		for cur := head; cur != 0; {
			e := t.tailEntry(cur)
			if e.ts <= v.n {
				return cur, true
			}
			cur = e.pred
		}
		return 0, t.readID(rec.origin, metaTimestamp) <= v.n
	}
	return head, true
}

// readColumn returns col as seen from version start, walking back past
// versions that did not touch col. Reaching the merge point answers from
// the consolidated base image; reaching the end of the chain answers from
// the inserted image.
func (t *Table) readColumn(rec *record, start TID, col int) Value {
	for cur := start; ; {
		if cur == rec.tps {
			return t.read(rec.base, col)
		}
		if cur == 0 {
			return t.read(rec.origin, col)
		}
		addr := t.tails[cur]
		if SchemaEncoding(t.readID(addr, metaSchema)).Has(col) {
			return t.read(addr, col)
		}
		cur = TID(t.readID(addr, metaIndirection))
	}
}

func (t *Table) readRow(rec *record, start TID) []Value {
	row := make([]Value, t.NumColumns)
	for col := range row {
		row[col] = t.readColumn(rec, start, col)
	}
	return row
}
