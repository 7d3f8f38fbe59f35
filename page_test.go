package lstore

import (
	"io"
	"testing"

	log "github.com/sirupsen/logrus"
	assertion "github.com/stretchr/testify/assert"
)

func quietOptions(o *Options) *Options {
	if o == nil {
		o = &Options{}
	}
	logger := log.New()
	logger.SetOutput(io.Discard)
	o.Logger = logger
	return o
}

func TestPageCapacity(t *testing.T) {
	assert := assertion.New(t)
	assert.Equal(512, capacityFor(DefaultPageSize))

	p := NewPage(capacityFor(32), PageBase)
	assert.Equal(4, p.Capacity())
	for i := 0; i < 4; i++ {
		assert.True(p.HasCapacity())
		slot, err := p.Insert(Int(int64(i * 10)))
		assert.NoError(err)
		assert.Equal(i, slot)
	}
	assert.False(p.HasCapacity())
	assert.True(p.Flag.Has(PageFull))

	_, err := p.Insert(Int(99))
	assert.Equal(ErrPageFull, err)
	assert.Equal(4, p.Count())
	assert.Equal(Int(30), p.Read(3))
	assert.True(p.Read(4).IsNull())
	assert.True(p.Read(-1).IsNull())
}

func TestPageWriteAndClear(t *testing.T) {
	assert := assertion.New(t)
	p := NewPage(8, PageBase)
	_, _ = p.Insert(Int(1))
	_, _ = p.Insert(Null)

	assert.NoError(p.Write(1, Int(7)))
	assert.Equal(Int(7), p.Read(1))
	assert.NoError(p.Clear(0))
	assert.True(p.Read(0).IsNull())
	assert.Error(p.Write(2, Int(1)))

	p.Flag |= PageFrozen
	assert.Error(p.Write(1, Int(8)))
}

func TestPageMarshal(t *testing.T) {
	for _, algo := range []CompressAlgorithm{CompSnappy, CompNone, CompLz4} {
		t.Run(algo.String(), func(t *testing.T) {
			assert := assertion.New(t)
			p := NewPage(64, PageTail)
			values := []Value{Int(0), Null, Int(-5), Int(1 << 40), Null, Int(-1 << 62)}
			for _, v := range values {
				_, err := p.Insert(v)
				assert.NoError(err)
			}

			data := p.Marshal(algo)
			p2, err := UnmarshalPage(data)
			assert.NoError(err)
			assert.Equal(64, p2.Capacity())
			assert.Equal(len(values), p2.Count())
			assert.True(p2.Flag.Has(PageTail))
			for i, v := range values {
				assert.Equal(v, p2.Read(i), "slot %d", i)
			}
		})
	}
}

func TestPageMarshalCompresses(t *testing.T) {
	assert := assertion.New(t)
	p := NewPage(512, PageBase)
	for p.HasCapacity() {
		_, _ = p.Insert(Int(42))
	}

	raw := p.Marshal(CompNone)
	packed := p.Marshal(CompSnappy)
	assert.Equal(byte(CompNone), raw[1])
	assert.Equal(byte(CompSnappy), packed[1])
	assert.True(len(packed) < len(raw))

	p2, err := UnmarshalPage(packed)
	assert.NoError(err)
	assert.Equal(512, p2.Count())
	assert.Equal(Int(42), p2.Read(511))
}

func TestUnmarshalPageErrors(t *testing.T) {
	assert := assertion.New(t)
	_, err := UnmarshalPage(nil)
	assert.Error(err)
	_, err = UnmarshalPage([]byte{1, 0})
	assert.Error(err)
	_, err = UnmarshalPage([]byte{1, 99, 4, 1, 0})
	assert.Equal(errBadCompression, err)
	// count above capacity
	_, err = UnmarshalPage([]byte{1, byte(CompNone), 2, 3, 0})
	assert.Error(err)
	// bitmap promises a value that is missing
	_, err = UnmarshalPage([]byte{1, byte(CompNone), 4, 1, 1})
	assert.Error(err)
}
