package lstore

import (
	"sort"

	log "github.com/sirupsen/logrus"
)

// Index holds, per column, an optional hash index and an optional ordered
// index over the current value of every live record. Lookups on a column
// without an index fall back to scanning the table.
//
// Exported methods take the table lock. The unexported methods expect the
// caller to hold it.
type Index struct {
	table   *Table
	hash    []*hashIndex
	ordered []*orderedIndex
}

func newIndex(t *Table) *Index {
	return &Index{
		table:   t,
		hash:    make([]*hashIndex, t.NumColumns),
		ordered: make([]*orderedIndex, t.NumColumns),
	}
}

// IndexColumn builds both indexes for col from scratch.
func (i *Index) IndexColumn(col int) {
	i.table.mu.Lock()
	defer i.table.mu.Unlock()
	i.build(col)
}

// DropIndex discards both indexes of col.
func (i *Index) DropIndex(col int) {
	i.table.mu.Lock()
	defer i.table.mu.Unlock()
	i.drop(col)
}

func (i *Index) HasIndex(col int) bool {
	i.table.mu.RLock()
	defer i.table.mu.RUnlock()
	checkColumn("has_index", col, i.table.NumColumns)
	return i.has(col)
}

// Locate returns, ascending, the rids of live records whose current value
// in col equals v.
func (i *Index) Locate(col int, v Value) []RID {
	i.table.mu.RLock()
	defer i.table.mu.RUnlock()
	return i.locate(col, v)
}

// LocateRange returns, ascending, the rids of live records whose current
// value in col lies in the inclusive range between begin and end, in
// either order.
func (i *Index) LocateRange(begin, end int64, col int) []RID {
	i.table.mu.RLock()
	defer i.table.mu.RUnlock()
	return i.locateRange(begin, end, col)
}

func (i *Index) has(col int) bool {
	return i.hash[col] != nil || i.ordered[col] != nil
}

// indexed returns the columns that currently have an index.
func (i *Index) indexed() []int {
	var cols []int
	for col := range i.hash {
		if i.has(col) {
			cols = append(cols, col)
		}
	}
	return cols
}

func (i *Index) build(col int) {
	t := i.table
	checkColumn("index_column", col, t.NumColumns)

	hash := newHashIndex(t.opts.InitialBuckets)
	ordered := newOrderedIndex(ValueComparator)
	for _, rid := range t.order {
		rec, ok := t.lookup(rid)
		if !ok {
			continue
		}
		v := t.readColumn(rec, t.head(rec), col)
		hash.insert(rid, v)
		ordered.insert(rid, v)
	}
	i.hash[col] = hash
	i.ordered[col] = ordered
	i.checkAndResize(col)

	t.log.WithFields(log.Fields{
		"column":  col,
		"records": hash.records,
		"buckets": len(hash.buckets),
	}).Debug("column indexed")
}

func (i *Index) drop(col int) {
	checkColumn("drop_index", col, i.table.NumColumns)
	i.hash[col] = nil
	i.ordered[col] = nil
}

func (i *Index) checkAndResize(col int) {
	h := i.hash[col]
	if h == nil {
		return
	}
	for h.load() > i.table.opts.LoadFactor {
		before := len(h.buckets)
		h.resize()
		i.table.log.WithFields(log.Fields{
			"column":  col,
			"records": h.records,
			"from":    before,
			"buckets": len(h.buckets),
		}).Debug("hash index resized")
	}
}

func (i *Index) locate(col int, v Value) []RID {
	checkColumn("locate", col, i.table.NumColumns)

	var rids []RID
	if h := i.hash[col]; h != nil {
		rids = h.lookup(v)
	}
	if len(rids) == 0 {
		if o := i.ordered[col]; o != nil {
			rids = o.lookup(v)
		}
	}
	if len(rids) == 0 {
		rids = i.table.scan(col, v.Equal)
	}
	return sortRIDs(rids)
}

// holds reports whether some live record has v in col. An indexed column
// answers from its index alone.
func (i *Index) holds(col int, v Value) bool {
	checkColumn("holds", col, i.table.NumColumns)
	if h := i.hash[col]; h != nil {
		return len(h.lookup(v)) > 0
	}
	if o := i.ordered[col]; o != nil {
		return len(o.lookup(v)) > 0
	}
	return len(i.table.scan(col, v.Equal)) > 0
}

func (i *Index) locateRange(begin, end int64, col int) []RID {
	checkColumn("locate_range", col, i.table.NumColumns)
	if begin > end {
		begin, end = end, begin
	}

	var rids []RID
	if o := i.ordered[col]; o != nil {
		rids = o.lookupRange(begin, end)
	}
	if len(rids) == 0 {
		rids = i.table.scan(col, func(v Value) bool { return v.inRange(begin, end) })
	}
	return sortRIDs(rids)
}

// indexEntry adds rid under v to both indexes of col, if present.
func (i *Index) indexEntry(col int, rid RID, v Value) {
	checkColumn("index_entry", col, i.table.NumColumns)
	if h := i.hash[col]; h != nil && h.insert(rid, v) {
		i.checkAndResize(col)
	}
	if o := i.ordered[col]; o != nil {
		o.insert(rid, v)
	}
}

func (i *Index) dropEntry(col int, rid RID, v Value) {
	checkColumn("drop_entry", col, i.table.NumColumns)
	if h := i.hash[col]; h != nil {
		h.remove(rid, v)
	}
	if o := i.ordered[col]; o != nil {
		o.remove(rid, v)
	}
}

func (i *Index) updateIndex(col int, rid RID, old, new Value) {
	checkColumn("update_index", col, i.table.NumColumns)
	if h := i.hash[col]; h != nil {
		h.move(rid, old, new)
		i.checkAndResize(col)
	}
	if o := i.ordered[col]; o != nil {
		o.remove(rid, old)
		o.insert(rid, new)
	}
}

func sortRIDs(rids []RID) []RID {
	sort.Slice(rids, func(a, b int) bool { return rids[a] < rids[b] })
	return rids
}
