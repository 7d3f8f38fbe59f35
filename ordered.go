package lstore

import (
	"sort"

	"github.com/google/btree"
)

const orderedDegree = 32

// orderedEntry holds every rid sharing one value, sorted.
type orderedEntry struct {
	key  Value
	rids []RID
}

// orderedIndex is a B-tree from value to the set of rids holding it.
type orderedIndex struct {
	tree *btree.BTreeG[*orderedEntry]
}

func newOrderedIndex(cmp Comparator) *orderedIndex {
	return &orderedIndex{
		tree: btree.NewG(orderedDegree, func(a, b *orderedEntry) bool {
			return cmp(a.key, b.key) < 0
		}),
	}
}

func (o *orderedIndex) insert(rid RID, v Value) {
	e, ok := o.tree.Get(&orderedEntry{key: v})
	if !ok {
		o.tree.ReplaceOrInsert(&orderedEntry{key: v, rids: []RID{rid}})
		return
	}
	i := sort.Search(len(e.rids), func(i int) bool { return e.rids[i] >= rid })
	if i < len(e.rids) && e.rids[i] == rid {
		return
	}
	e.rids = append(e.rids, 0)
	copy(e.rids[i+1:], e.rids[i:])
	e.rids[i] = rid
}

func (o *orderedIndex) remove(rid RID, v Value) {
	e, ok := o.tree.Get(&orderedEntry{key: v})
	if !ok {
		return
	}
	i := sort.Search(len(e.rids), func(i int) bool { return e.rids[i] >= rid })
	if i == len(e.rids) || e.rids[i] != rid {
		return
	}
	e.rids = append(e.rids[:i], e.rids[i+1:]...)
	if len(e.rids) == 0 {
		o.tree.Delete(e)
	}
}

func (o *orderedIndex) lookup(v Value) []RID {
	e, ok := o.tree.Get(&orderedEntry{key: v})
	if !ok {
		return nil
	}
	return append([]RID(nil), e.rids...)
}

// lookupRange returns the rids of every present value in [begin, end].
func (o *orderedIndex) lookupRange(begin, end int64) []RID {
	var rids []RID
	o.tree.AscendGreaterOrEqual(&orderedEntry{key: Int(begin)}, func(e *orderedEntry) bool {
		if !e.key.inRange(begin, end) {
			return false
		}
		rids = append(rids, e.rids...)
		return true
	})
	return rids
}
