package lstore

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	assertion "github.com/stretchr/testify/assert"
)

func TestQueryLifecycle(t *testing.T) {
	assert := assertion.New(t)
	_, q := newTestTable(t, 5, nil)

	rid, err := q.Insert(Int(100), Null, Null, Null, Null)
	assert.NoError(err)
	assert.Equal(RID(1), rid)

	n, err := q.Update(1, Null, Int(5))
	assert.NoError(err)
	assert.Equal(1, n)

	recs := q.Select(0, Int(100), Latest)
	if assert.Len(recs, 1) {
		assert.Equal(rid, recs[0].RID)
		assert.Equal(Int(100), recs[0].Key)
		assert.Equal([]Value{Int(100), Int(5), Null, Null, Null}, recs[0].Columns)
	}
	assert.Equal(int64(5), q.Sum(100, 100, 1))
	assert.Equal(int64(0), q.SumVersion(100, 100, 1, Relative(-1)))

	n, err = q.Delete(0, Int(100))
	assert.NoError(err)
	assert.Equal(1, n)
	assert.Empty(q.Select(0, Int(100), Latest))
	assert.Equal(int64(0), q.Sum(100, 100, 1))

	_, err = q.Delete(0, Int(100))
	assert.True(errors.Is(err, ErrRecordNotFound))
	assert.False(IsFatal(err))
}

func TestQueryInsertErrors(t *testing.T) {
	assert := assertion.New(t)
	_, q := newTestTable(t, 3, nil)

	_, err := q.Insert(Int(1))
	assert.True(errors.Is(err, ErrInvalidArity))
	assert.True(IsFatal(err))
	_, err = q.Insert(Ints(1, 2, 3, 4)...)
	assert.True(errors.Is(err, ErrInvalidArity))

	_, err = q.Insert(Ints(1, 2, 3)...)
	assert.NoError(err)
	_, err = q.Insert(Ints(1, 5, 6)...)
	assert.True(errors.Is(err, ErrDuplicateKey))
	assert.False(IsFatal(err))
	assert.Equal(int64(2), q.Sum(1, 1, 1))
}

func TestQueryUpdate(t *testing.T) {
	assert := assertion.New(t)
	tbl, q := newTestTable(t, 3, nil)
	for i := int64(1); i <= 4; i++ {
		_, _ = q.Insert(Int(i), Int(i%2), Int(i*10))
	}
	tbl.Index().IndexColumn(1)

	n, err := q.Update(1, Int(1), Int(7))
	assert.NoError(err)
	assert.Equal(2, n)
	assert.Empty(q.Select(1, Int(1), Latest))
	recs := q.Select(1, Int(7), Latest)
	if assert.Len(recs, 2) {
		assert.Equal(Int(1), recs[0].Key)
		assert.Equal(Int(3), recs[1].Key)
	}

	_, err = q.Update(1, Int(42), Int(1))
	assert.True(errors.Is(err, ErrRecordNotFound))

	// moving a record onto a taken key leaves it untouched
	_, err = q.Update(1, Int(7), Int(9))
	assert.NoError(err)
	_, err = q.Update(0, Int(1), Int(2))
	assert.True(errors.Is(err, ErrDuplicateKey))
	assert.Equal(Ints(1, 9, 10), q.Select(0, Int(1), Latest)[0].Columns)

	assert.NoError(q.UpdateKey(Int(1), map[int]Value{0: Int(10), 2: Int(0)}))
	assert.Empty(q.Select(0, Int(1), Latest))
	assert.Equal(Ints(10, 9, 0), q.Select(0, Int(10), Latest)[0].Columns)
	assert.Equal(Ints(1, 1, 10), q.Select(0, Int(10), Ordinal(0))[0].Columns)

	err = q.UpdateKey(Int(99), map[int]Value{1: Int(1)})
	assert.True(errors.Is(err, ErrRecordNotFound))
	err = q.UpdateKey(Int(10), map[int]Value{0: Int(2)})
	assert.True(errors.Is(err, ErrDuplicateKey))
}

func TestQueryIncrement(t *testing.T) {
	assert := assertion.New(t)
	_, q := newTestTable(t, 3, nil)
	_, _ = q.Insert(Int(1), Int(5), Null)
	_, _ = q.Insert(Int(2), Int(5), Int(0))

	n, err := q.Increment(1, Int(5))
	assert.NoError(err)
	assert.Equal(2, n)
	assert.Equal(int64(12), q.Sum(1, 2, 1))

	assert.NoError(q.IncrementKey(Int(2), 2))
	assert.Equal(Ints(2, 6, 1), q.Select(0, Int(2), Latest)[0].Columns)

	err = q.IncrementKey(Int(1), 2)
	assert.True(errors.Is(err, ErrNullIncrement))
	_, err = q.Increment(2, Null)
	assert.True(errors.Is(err, ErrNullIncrement))
	assert.Equal(1, len(q.Select(2, Null, Latest)))

	err = q.IncrementKey(Int(3), 1)
	assert.True(errors.Is(err, ErrRecordNotFound))
}

func TestQuerySelectRange(t *testing.T) {
	assert := assertion.New(t)
	_, q := newTestTable(t, 2, nil)
	for i := int64(1); i <= 10; i++ {
		_, _ = q.Insert(Int(i), Int(i*i))
	}
	_, _ = q.Delete(0, Int(5))

	recs := q.SelectRange(7, 3, 0, Latest)
	var keys []Value
	for _, r := range recs {
		keys = append(keys, r.Key)
	}
	assert.Equal(Ints(3, 4, 6, 7), keys)

	assert.Equal(int64(9+16+36+49), q.Sum(7, 3, 1))
	assert.Equal(int64(0), q.Sum(11, 20, 1))
	assert.Len(q.SelectRange(10, 50, 1, Latest), 3)
}

func TestQueryContractViolation(t *testing.T) {
	assert := assertion.New(t)
	_, q := newTestTable(t, 3, nil)
	_, _ = q.Insert(Ints(1, 2, 3)...)

	assert.PanicsWithError("lstore: locate: invalid column number 3 (table has 3)", func() {
		q.Select(3, Int(1), Latest)
	})
	assert.Panics(func() { _, _ = q.Update(-1, Int(1), Int(2)) })
	assert.Panics(func() { _ = q.UpdateKey(Int(1), map[int]Value{7: Int(1)}) })
	assert.Panics(func() { q.Sum(0, 1, 3) })
	assert.Panics(func() { _, _ = q.Delete(5, Int(1)) })

	// the table lock is released after a panic
	_, err := q.Insert(Ints(2, 2, 3)...)
	assert.NoError(err)
}

func TestQueryConcurrentReaders(t *testing.T) {
	assert := assertion.New(t)
	_, q := newTestTable(t, 2, &Options{PageSize: 64})

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				for _, rec := range q.SelectRange(0, 1000, 0, Latest) {
					k, _ := rec.Key.Int64()
					v, _ := rec.Columns[1].Int64()
					if v != 0 && v != k {
						t.Errorf("key %d has value %d", k, v)
					}
				}
			}
		}()
	}
	for i := int64(0); i < 300; i++ {
		_, err := q.Insert(Int(i), Int(0))
		assert.NoError(err)
		assert.NoError(q.UpdateKey(Int(i), map[int]Value{1: Int(i)}))
	}
	wg.Wait()
	assert.Equal(int64(299*300/2), q.Sum(0, 1000, 1))
}

func TestQueryKeyCheckUsesIndex(t *testing.T) {
	assert := assertion.New(t)
	tbl, q := newTestTable(t, 2, nil)
	_, err := q.Insert(Ints(1, 1)...)
	assert.NoError(err)

	// a row stored without index maintenance is invisible to the key index
	tbl.mu.Lock()
	tbl.insert(Ints(2, 2))
	tbl.mu.Unlock()
	assert.True(tbl.index.holds(0, Int(1)))
	assert.False(tbl.index.holds(0, Int(2)))

	tbl.Index().DropIndex(0)
	assert.True(tbl.index.holds(0, Int(2)))
	_, err = q.Insert(Ints(2, 3)...)
	assert.True(errors.Is(err, ErrDuplicateKey))
}

func TestQueryInsertMany(t *testing.T) {
	assert := assertion.New(t)
	tbl, q := newTestTable(t, 2, nil)

	const n = 50000
	start := time.Now()
	for i := int64(0); i < n; i++ {
		if _, err := q.Insert(Int(i), Int(i)); err != nil {
			t.Fatal(err)
		}
	}
	assert.True(time.Since(start) < 10*time.Second, "took %s", time.Since(start))
	assert.Equal(n, tbl.Stats().Records)

	_, err := q.Insert(Int(n/2), Int(0))
	assert.True(errors.Is(err, ErrDuplicateKey))
	assert.NoError(q.UpdateKey(Int(n-1), map[int]Value{0: Int(n)}))
	assert.True(errors.Is(q.UpdateKey(Int(0), map[int]Value{0: Int(1)}), ErrDuplicateKey))
}

func TestQueryIncrementOverflow(t *testing.T) {
	assert := assertion.New(t)
	tbl, q := newTestTable(t, 2, nil)
	_, _ = q.Insert(Int(1), Int(math.MaxInt64))
	_, _ = q.Insert(Int(2), Int(math.MaxInt64))

	err := q.IncrementKey(Int(1), 1)
	assert.True(errors.Is(err, ErrOverflow))
	n, err := q.Increment(1, Int(math.MaxInt64))
	assert.True(errors.Is(err, ErrOverflow))
	assert.Equal(0, n)

	assert.Equal(0, tbl.Stats().Tails)
	assert.Len(q.Select(1, Int(math.MaxInt64), Latest), 2)
}

func TestQuerySelectProjection(t *testing.T) {
	assert := assertion.New(t)
	_, q := newTestTable(t, 4, nil)
	_, _ = q.Insert(Ints(1, 10, 20, 30)...)
	_, _ = q.Insert(Ints(2, 11, 21, 31)...)
	assert.NoError(q.UpdateKey(Int(1), map[int]Value{2: Int(25)}))

	recs := q.Select(0, Int(1), Latest, 2, 0)
	if assert.Len(recs, 1) {
		assert.Equal(Int(1), recs[0].Key)
		assert.Equal(Ints(25, 1), recs[0].Columns)
	}
	recs = q.Select(0, Int(1), Ordinal(0), 2)
	assert.Equal(Ints(20), recs[0].Columns)

	recs = q.SelectRange(2, 1, 0, Latest, 3)
	if assert.Len(recs, 2) {
		assert.Equal(Ints(30), recs[0].Columns)
		assert.Equal(Int(2), recs[1].Key)
		assert.Equal(Ints(31), recs[1].Columns)
	}
	assert.Equal(Ints(1, 10, 25, 30), q.Select(0, Int(1), Latest)[0].Columns)

	assert.Panics(func() { q.Select(0, Int(1), Latest, 4) })
	assert.Panics(func() { q.SelectRange(0, 5, 0, Latest, -1) })
}
