package lstore

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RID identifies a record for its whole life. RIDs start at 1 and are
// never reused.
type RID uint64

// TID identifies a tail record. Zero means "no tail record".
type TID uint64

// bookkeeping columns stored after the user columns of every segment
const (
	// own id: rid for base records, tid for tail records
	metaRID = iota
	// base: newest tid, tail: predecessor tid, 0 = base
	metaIndirection
	metaTimestamp
	metaSchema
	// rid of the base record a tail record belongs to
	metaBaseRID

	metaColumns
)

// Address is the position of a record inside the table: a segment number
// and a slot shared by every column page of that segment.
type Address struct {
	Segment uint32
	Slot    uint32
}

// segment is a logical page: one physical page per column, slot aligned.
type segment struct {
	flag  PageFlag
	pages []PageID
}

// record locates a live rid. base holds the newest consolidated image,
// origin the image written by insert. tps is the newest tid folded into
// base by the last merge.
type record struct {
	base   Address
	origin Address
	tps    TID
}

// Table stores records column by column in base and tail segments. All
// mutation goes through Query, which keeps the index in step.
type Table struct {
	Name       string
	NumColumns int
	// Key is the column holding the primary key.
	Key int

	opts *Options
	log  log.FieldLogger

	// Allows only one writer at a time; readers share.
	mu sync.RWMutex

	dir      *Directory
	segments []*segment
	curBase  int
	curTail  int

	records map[RID]*record
	// rids in insert order, compacted by merge
	order []RID
	tails map[TID]Address

	nextRID RID
	nextTID TID
	clock   uint64

	index *Index

	// tail segments sealed since the last merge
	sealed int
	// updates or deletes since the last merge
	dirty  bool
	merges int

	onSealed func(*Table)
}

// NewTable creates an empty table whose key column is indexed.
func NewTable(name string, numColumns, key int, opts *Options) (*Table, error) {
	if numColumns < 1 || numColumns > MaxColumns {
		return nil, errors.Wrapf(ErrInvalidSchema, "%d columns, want 1..%d", numColumns, MaxColumns)
	}
	if key < 0 || key >= numColumns {
		return nil, errors.Wrapf(ErrInvalidSchema, "key column %d out of %d", key, numColumns)
	}
	t := newTable(name, numColumns, key, opts.norm())
	t.index.build(key)
	return t, nil
}

func newTable(name string, numColumns, key int, opts *Options) *Table {
	t := &Table{
		Name:       name,
		NumColumns: numColumns,
		Key:        key,
		opts:       opts,
		log:        opts.Logger.WithField("table", name),
		dir:        newDirectory(capacityFor(opts.PageSize), opts.Compression),
		curBase:    -1,
		curTail:    -1,
		records:    make(map[RID]*record),
		tails:      make(map[TID]Address),
		nextRID:    1,
		nextTID:    1,
	}
	t.index = newIndex(t)
	return t
}

// Index returns the table's secondary index.
func (t *Table) Index() *Index { return t.index }

func (t *Table) meta(m int) int { return t.NumColumns + m }

func (t *Table) width() int { return t.NumColumns + metaColumns }

func (t *Table) newSegment(flag PageFlag) int {
	seg := &segment{flag: flag, pages: make([]PageID, t.width())}
	for i := range seg.pages {
		seg.pages[i], _ = t.dir.Allocate(flag)
	}
	t.segments = append(t.segments, seg)
	t.log.WithFields(log.Fields{"segment": len(t.segments) - 1, "base": flag.Has(PageBase)}).Debug("segment allocated")
	return len(t.segments) - 1
}

// appendRow writes a full row, user and bookkeeping columns, into the
// current segment of the given kind, moving to a fresh segment when the
// current one is full.
func (t *Table) appendRow(flag PageFlag, row []Value) Address {
	cur := &t.curBase
	if flag.Has(PageTail) {
		cur = &t.curTail
	}
	if *cur < 0 {
		*cur = t.newSegment(flag)
	}

	seg := t.segments[*cur]
	slot, err := t.dir.Get(seg.pages[0]).Insert(row[0])
	if errors.Is(err, ErrPageFull) {
		if flag.Has(PageTail) {
			t.seal()
		}
		*cur = t.newSegment(flag)
		seg = t.segments[*cur]
		slot, err = t.dir.Get(seg.pages[0]).Insert(row[0])
	}
	if err != nil {
		panic(errors.Wrap(err, "lstore: fresh segment rejected insert"))
	}
	for c := 1; c < len(row); c++ {
		if _, err := t.dir.Get(seg.pages[c]).Insert(row[c]); err != nil {
			panic(errors.Wrapf(err, "lstore: segment %d column %d out of step", *cur, c))
		}
	}
	return Address{Segment: uint32(*cur), Slot: uint32(slot)}
}

func (t *Table) seal() {
	t.sealed++
	if t.onSealed != nil && t.opts.MergeThreshold > 0 && t.sealed >= t.opts.MergeThreshold {
		t.onSealed(t)
	}
}

func (t *Table) read(addr Address, col int) Value {
	return t.dir.Get(t.segments[addr.Segment].pages[col]).Read(int(addr.Slot))
}

func (t *Table) write(addr Address, col int, v Value) {
	if err := t.dir.Get(t.segments[addr.Segment].pages[col]).Write(int(addr.Slot), v); err != nil {
		panic(errors.Wrapf(err, "lstore: segment %d column %d", addr.Segment, col))
	}
}

func (t *Table) readID(addr Address, m int) uint64 {
	n, _ := t.read(addr, t.meta(m)).Int64()
	return uint64(n)
}

// head returns the newest tid of a record, 0 if it was never updated.
func (t *Table) head(rec *record) TID {
	return TID(t.readID(rec.base, metaIndirection))
}

func (t *Table) isLive(rec *record) bool {
	return !t.read(rec.base, t.meta(metaRID)).IsNull()
}

// lookup returns the record of a live rid.
func (t *Table) lookup(rid RID) (*record, bool) {
	rec, ok := t.records[rid]
	if !ok || !t.isLive(rec) {
		return nil, false
	}
	return rec, true
}

// insert appends a base record. The row must have NumColumns values.
func (t *Table) insert(row []Value) RID {
	rid := t.nextRID
	t.nextRID++
	t.clock++

	full := make([]Value, t.width())
	copy(full, row)
	full[t.meta(metaRID)] = Int(int64(rid))
	full[t.meta(metaIndirection)] = Int(0)
	full[t.meta(metaTimestamp)] = Int(int64(t.clock))
	full[t.meta(metaSchema)] = Int(0)
	full[t.meta(metaBaseRID)] = Int(int64(rid))

	addr := t.appendRow(PageBase, full)
	t.records[rid] = &record{base: addr, origin: addr}
	t.order = append(t.order, rid)
	return rid
}

// update appends a tail record carrying only the changed columns and
// repoints the base record at it.
func (t *Table) update(rid RID, changes map[int]Value) error {
	rec, ok := t.lookup(rid)
	if !ok {
		return errors.Wrapf(ErrRecordNotFound, "rid %d", rid)
	}
	for col := range changes {
		checkColumn("update", col, t.NumColumns)
	}
	if len(changes) == 0 {
		return nil
	}

	t.clock++
	tid := t.nextTID
	t.nextTID++

	var schema SchemaEncoding
	full := make([]Value, t.width())
	for col, v := range changes {
		full[col] = v
		schema = schema.Set(col)
	}
	full[t.meta(metaRID)] = Int(int64(tid))
	full[t.meta(metaIndirection)] = Int(int64(t.head(rec)))
	full[t.meta(metaTimestamp)] = Int(int64(t.clock))
	full[t.meta(metaSchema)] = Int(int64(schema))
	full[t.meta(metaBaseRID)] = Int(int64(rid))

	t.tails[tid] = t.appendRow(PageTail, full)

	base := SchemaEncoding(t.readID(rec.base, metaSchema))
	t.write(rec.base, t.meta(metaSchema), Int(int64(base|schema)))
	t.write(rec.base, t.meta(metaIndirection), Int(int64(tid)))
	t.dirty = true
	return nil
}

// delete tombstones the base record. Its pages keep their space.
func (t *Table) delete(rid RID) error {
	rec, ok := t.lookup(rid)
	if !ok {
		return errors.Wrapf(ErrRecordNotFound, "rid %d", rid)
	}
	t.clock++
	page := t.dir.Get(t.segments[rec.base.Segment].pages[t.meta(metaRID)])
	if err := page.Clear(int(rec.base.Slot)); err != nil {
		panic(errors.Wrapf(err, "lstore: tombstone rid %d", rid))
	}
	t.dirty = true
	return nil
}

// scan returns, in rid order, every live record whose current value in
// col satisfies match.
func (t *Table) scan(col int, match func(Value) bool) []RID {
	var rids []RID
	for _, rid := range t.order {
		rec, ok := t.lookup(rid)
		if !ok {
			continue
		}
		if match(t.readColumn(rec, t.head(rec), col)) {
			rids = append(rids, rid)
		}
	}
	return rids
}

// Read returns the record's user columns as of version v.
func (t *Table) Read(rid RID, v Version) ([]Value, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.lookup(rid)
	if !ok {
		return nil, errors.Wrapf(ErrRecordNotFound, "rid %d", rid)
	}
	start, ok := t.resolve(rec, v)
	if !ok {
		return nil, errors.Wrapf(ErrRecordNotFound, "rid %d at %s", rid, v)
	}
	return t.readRow(rec, start), nil
}

// Clock returns the current logical timestamp, usable with AsOf.
func (t *Table) Clock() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.clock
}

type TableStats struct {
	Records  int
	Tails    int
	Segments int
	Merges   int
	Pages    DirectoryStats
}

func (t *Table) Stats() TableStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := TableStats{
		Tails:    len(t.tails),
		Segments: len(t.segments),
		Merges:   t.merges,
		Pages:    t.dir.Stats(),
	}
	for _, rec := range t.records {
		if t.isLive(rec) {
			s.Records++
		}
	}
	return s
}
