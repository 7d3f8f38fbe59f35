package lstore

import (
	"testing"

	assertion "github.com/stretchr/testify/assert"
)

func TestOrderedIndex(t *testing.T) {
	assert := assertion.New(t)
	o := newOrderedIndex(ValueComparator)
	o.insert(3, Int(5))
	o.insert(1, Int(5))
	o.insert(1, Int(5))
	o.insert(2, Int(7))
	o.insert(4, Int(-2))
	o.insert(5, Null)

	assert.Equal([]RID{1, 3}, o.lookup(Int(5)))
	assert.Equal([]RID{5}, o.lookup(Null))
	assert.Nil(o.lookup(Int(6)))

	assert.Equal([]RID{1, 3, 2}, o.lookupRange(5, 7))
	assert.Equal([]RID{4, 1, 3, 2}, o.lookupRange(-100, 100))
	assert.Equal([]RID{2}, o.lookupRange(6, 7))
	assert.Nil(o.lookupRange(8, 100))

	o.remove(1, Int(5))
	assert.Equal([]RID{3}, o.lookup(Int(5)))
	o.remove(9, Int(5))
	o.remove(3, Int(5))
	assert.Nil(o.lookup(Int(5)))
	assert.Equal(3, o.tree.Len())

	// returned slices are copies
	rids := o.lookup(Int(7))
	rids[0] = 99
	assert.Equal([]RID{2}, o.lookup(Int(7)))
}

func TestValueComparator(t *testing.T) {
	assert := assertion.New(t)
	assert.Equal(0, ValueComparator(Null, Null))
	assert.Equal(-1, ValueComparator(Null, Int(-1<<63)))
	assert.Equal(1, ValueComparator(Int(0), Null))
	assert.Equal(-1, ValueComparator(Int(-3), Int(2)))
	assert.Equal(0, ValueComparator(Int(2), Int(2)))
}
