package lstore

import (
	farm "github.com/dgryski/go-farm"
)

type hashEntry struct {
	rid   RID
	value Value
}

// hashIndex is a bucketed hash table from value to the rids holding it.
// Bucket counts are prime.
type hashIndex struct {
	buckets [][]hashEntry
	records int
}

func newHashIndex(buckets int) *hashIndex {
	return &hashIndex{buckets: make([][]hashEntry, nextPrime(buckets))}
}

func bucketOf(v Value, buckets int) int {
	c := v.canonical()
	return int(farm.Hash64(c[:]) % uint64(buckets))
}

func (h *hashIndex) load() float64 {
	return float64(h.records) / float64(len(h.buckets))
}

func (h *hashIndex) find(b int, rid RID) int {
	for i, e := range h.buckets[b] {
		if e.rid == rid {
			return i
		}
	}
	return -1
}

// insert adds rid under v. A rid already in the target bucket is not
// added twice.
func (h *hashIndex) insert(rid RID, v Value) bool {
	b := bucketOf(v, len(h.buckets))
	if i := h.find(b, rid); i >= 0 {
		h.buckets[b][i].value = v
		return false
	}
	h.buckets[b] = append(h.buckets[b], hashEntry{rid: rid, value: v})
	h.records++
	return true
}

func (h *hashIndex) remove(rid RID, v Value) bool {
	b := bucketOf(v, len(h.buckets))
	i := h.find(b, rid)
	if i < 0 {
		return false
	}
	bucket := h.buckets[b]
	h.buckets[b] = append(bucket[:i], bucket[i+1:]...)
	h.records--
	return true
}

// move re-keys rid from old to new, rewriting the entry in place when
// both values land in the same bucket.
func (h *hashIndex) move(rid RID, old, new Value) {
	from, to := bucketOf(old, len(h.buckets)), bucketOf(new, len(h.buckets))
	if from == to {
		if i := h.find(from, rid); i >= 0 {
			h.buckets[from][i].value = new
			return
		}
	} else {
		h.remove(rid, old)
	}
	h.insert(rid, new)
}

func (h *hashIndex) lookup(v Value) []RID {
	var rids []RID
	for _, e := range h.buckets[bucketOf(v, len(h.buckets))] {
		if e.value.Equal(v) {
			rids = append(rids, e.rid)
		}
	}
	return rids
}

// resize rehashes every entry into the smallest prime number of buckets
// at least twice the current count.
func (h *hashIndex) resize() {
	old := h.buckets
	h.buckets = make([][]hashEntry, nextPrime(2*len(old)))
	for _, bucket := range old {
		for _, e := range bucket {
			b := bucketOf(e.value, len(h.buckets))
			h.buckets[b] = append(h.buckets[b], e)
		}
	}
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	for i := 2; i*i <= n; i++ {
		if n%i == 0 {
			return false
		}
	}
	return true
}

// nextPrime returns the smallest prime >= n.
func nextPrime(n int) int {
	for !isPrime(n) {
		n++
	}
	return n
}
