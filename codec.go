package lstore

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// minPageSize = flag + algo + capacity + count = 1 + 1 + 1 + 1
var minPageSize = 4

// Marshal encodes the page. The body is compressed with algo when that
// makes it smaller; the algorithm actually used is recorded in the
// second byte.
//
// Layout: flag | algo | body, body = uvarint capacity | uvarint count |
// presence bitmap | varint of every present slot.
func (p *Page) Marshal(algo CompressAlgorithm) []byte {
	body := p.marshalBody()
	used := CompNone
	if compress, _ := algo.codecs(); compress != nil {
		if c := compress(body); len(c) < len(body) {
			body = c
			used = algo
		}
	}

	buf := bytes.NewBuffer(make([]byte, 0, 2+len(body)))
	buf.WriteByte(byte(p.Flag &^ PageFrozen))
	buf.WriteByte(byte(used))
	buf.Write(body)
	return buf.Bytes()
}

func (p *Page) marshalBody() []byte {
	tmp := make([]byte, binary.MaxVarintLen64)
	buf := bytes.NewBuffer(nil)

	n := binary.PutUvarint(tmp, uint64(p.Capacity()))
	buf.Write(tmp[:n])
	n = binary.PutUvarint(tmp, uint64(p.count))
	buf.Write(tmp[:n])

	bitmap := make([]byte, (p.count+7)/8)
	for i := 0; i < p.count; i++ {
		if p.slots[i].valid {
			bitmap[i/8] |= 1 << uint(i%8)
		}
	}
	buf.Write(bitmap)

	for i := 0; i < p.count; i++ {
		if !p.slots[i].valid {
			continue
		}
		n = binary.PutVarint(tmp, p.slots[i].n)
		buf.Write(tmp[:n])
	}
	return buf.Bytes()
}

// UnmarshalPage decodes a page produced by Marshal.
func UnmarshalPage(data []byte) (*Page, error) {
	if data == nil {
		return nil, errors.New("empty page data")
	}
	if len(data) < minPageSize {
		return nil, errors.New("page data less than min size 4, flag + algo + capacity + count")
	}
	flag := PageFlag(data[0])
	algo := CompressAlgorithm(data[1])
	if !algo.isValid() {
		return nil, errBadCompression
	}

	body := data[2:]
	if _, decompress := algo.codecs(); decompress != nil {
		var err error
		if body, err = decompress(body); err != nil {
			return nil, errors.Wrapf(err, "failed to decompress %s page", algo)
		}
	}

	reader := bytes.NewReader(body)
	capacity, err := binary.ReadUvarint(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read page capacity")
	}
	count, err := binary.ReadUvarint(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read page count")
	}
	if capacity > maxPageSlots {
		return nil, errors.Errorf("page capacity %d exceeds max %d", capacity, maxPageSlots)
	}
	if count > capacity {
		return nil, errors.Errorf("page count %d exceeds capacity %d", count, capacity)
	}

	bitmap := make([]byte, (count+7)/8)
	if _, err := io.ReadFull(reader, bitmap); err != nil {
		return nil, errors.Wrap(err, "failed to read presence bitmap")
	}

	p := NewPage(int(capacity), flag)
	for i := 0; i < int(count); i++ {
		v := Null
		if bitmap[i/8]&(1<<uint(i%8)) != 0 {
			n, err := binary.ReadVarint(reader)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to read slot %d", i)
			}
			v = Int(n)
		}
		if _, err := p.Insert(v); err != nil {
			return nil, err
		}
	}
	p.Flag = flag
	return p, nil
}
