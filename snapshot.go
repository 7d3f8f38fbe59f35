package lstore

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/bsm/sntable"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// A snapshot stores one table in an sntable file. Fixed keys hold the
// table bookkeeping, every page is stored under keyPages + its id.
const (
	keyHeader uint64 = iota
	keySegments
	keyRecords
	keyTails

	keyPages uint64 = 16

	snapshotExt = ".snt"
)

var errTruncated = errors.New("lstore: truncated snapshot")

type encoder struct{ buf []byte }

func (e *encoder) uvarint(u uint64) { e.buf = binary.AppendUvarint(e.buf, u) }
func (e *encoder) int(n int)         { e.uvarint(uint64(n)) }

func (e *encoder) str(s string) {
	e.int(len(s))
	e.buf = append(e.buf, s...)
}

func (e *encoder) addr(a Address) {
	e.uvarint(uint64(a.Segment))
	e.uvarint(uint64(a.Slot))
}

type decoder struct {
	buf []byte
	err error
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	u, n := binary.Uvarint(d.buf)
	if n <= 0 {
		d.err = errTruncated
		return 0
	}
	d.buf = d.buf[n:]
	return u
}

func (d *decoder) int() int { return int(d.uvarint()) }

func (d *decoder) str() string {
	n := d.int()
	if d.err != nil {
		return ""
	}
	if n > len(d.buf) {
		d.err = errTruncated
		return ""
	}
	s := string(d.buf[:n])
	d.buf = d.buf[n:]
	return s
}

func (d *decoder) addr() Address {
	return Address{Segment: uint32(d.uvarint()), Slot: uint32(d.uvarint())}
}

// writeSnapshot encodes t into w. The caller holds at least t's read lock.
func writeSnapshot(t *Table, w io.Writer) error {
	sw := sntable.NewWriter(w, &sntable.WriterOptions{Compression: sntable.SnappyCompression})

	var indexed SchemaEncoding
	for _, col := range t.index.indexed() {
		indexed = indexed.Set(col)
	}
	var dirty int
	if t.dirty {
		dirty = 1
	}

	h := &encoder{}
	h.uvarint(uint64(Magic))
	h.uvarint(uint64(FormatVersion))
	h.str(t.Name)
	h.int(t.NumColumns)
	h.int(t.Key)
	h.int(t.opts.PageSize)
	h.uvarint(math.Float64bits(t.opts.LoadFactor))
	h.int(t.opts.InitialBuckets)
	h.uvarint(uint64(t.opts.Compression))
	h.uvarint(uint64(t.nextRID))
	h.uvarint(uint64(t.nextTID))
	h.uvarint(t.clock)
	h.int(t.curBase + 1)
	h.int(t.curTail + 1)
	h.int(t.sealed)
	h.int(dirty)
	h.int(t.merges)
	h.uvarint(uint64(indexed))
	h.uvarint(uint64(t.dir.next))
	if err := sw.Append(keyHeader, h.buf); err != nil {
		return err
	}

	s := &encoder{}
	s.int(len(t.segments))
	for _, seg := range t.segments {
		s.uvarint(uint64(seg.flag))
		s.int(len(seg.pages))
		for _, id := range seg.pages {
			s.uvarint(uint64(id))
		}
	}
	if err := sw.Append(keySegments, s.buf); err != nil {
		return err
	}

	r := &encoder{}
	r.int(len(t.order))
	for _, rid := range t.order {
		rec := t.records[rid]
		r.uvarint(uint64(rid))
		r.addr(rec.base)
		r.addr(rec.origin)
		r.uvarint(uint64(rec.tps))
	}
	if err := sw.Append(keyRecords, r.buf); err != nil {
		return err
	}

	tids := make([]TID, 0, len(t.tails))
	for tid := range t.tails {
		tids = append(tids, tid)
	}
	sort.Slice(tids, func(a, b int) bool { return tids[a] < tids[b] })
	tl := &encoder{}
	tl.int(len(tids))
	for _, tid := range tids {
		tl.uvarint(uint64(tid))
		tl.addr(t.tails[tid])
	}
	if err := sw.Append(keyTails, tl.buf); err != nil {
		return err
	}

	for id := PageID(0); id < t.dir.next; id++ {
		data, frozen := t.dir.encode(id)
		flag := byte(0)
		if frozen {
			flag = 1
		}
		if err := sw.Append(keyPages+uint64(id), append([]byte{flag}, data...)); err != nil {
			return err
		}
	}
	return sw.Close()
}

// readSnapshot decodes a table written by writeSnapshot. Page size, load
// factor, bucket count and compression come from the snapshot; the rest
// of opts applies as given.
func readSnapshot(r io.ReaderAt, size int64, opts *Options) (*Table, error) {
	sr, err := sntable.NewReader(r, size)
	if err != nil {
		return nil, errors.Wrap(err, "open snapshot")
	}
	get := func(key uint64) (*decoder, error) {
		b, err := sr.Get(key)
		if err != nil {
			return nil, errors.Wrapf(err, "snapshot key %d", key)
		}
		return &decoder{buf: b}, nil
	}

	h, err := get(keyHeader)
	if err != nil {
		return nil, err
	}
	if uint32(h.uvarint()) != Magic || h.err != nil {
		return nil, errBadMagic
	}
	if v := uint16(h.uvarint()); v != FormatVersion {
		return nil, errors.Errorf("lstore: unsupported snapshot version %d", v)
	}
	name := h.str()
	numColumns, key := h.int(), h.int()
	tableOpts := *opts
	tableOpts.PageSize = h.int()
	tableOpts.LoadFactor = math.Float64frombits(h.uvarint())
	tableOpts.InitialBuckets = h.int()
	tableOpts.Compression = CompressAlgorithm(h.uvarint())
	if h.err != nil {
		return nil, h.err
	}
	if numColumns < 1 || numColumns > MaxColumns || key < 0 || key >= numColumns {
		return nil, errors.Wrapf(ErrInvalidSchema, "snapshot of %q: %d columns, key %d", name, numColumns, key)
	}

	t := newTable(name, numColumns, key, tableOpts.norm())
	t.nextRID = RID(h.uvarint())
	t.nextTID = TID(h.uvarint())
	t.clock = h.uvarint()
	t.curBase = h.int() - 1
	t.curTail = h.int() - 1
	t.sealed = h.int()
	t.dirty = h.int() == 1
	t.merges = h.int()
	indexed := SchemaEncoding(h.uvarint())
	pages := PageID(h.uvarint())
	if h.err != nil {
		return nil, h.err
	}

	s, err := get(keySegments)
	if err != nil {
		return nil, err
	}
	for n := s.int(); n > 0 && s.err == nil; n-- {
		seg := &segment{flag: PageFlag(s.uvarint())}
		if width := s.int(); s.err == nil && width != t.width() {
			return nil, errors.Errorf("lstore: segment %d has %d pages, want %d", len(t.segments), width, t.width())
		}
		seg.pages = make([]PageID, t.width())
		for i := range seg.pages {
			if seg.pages[i] = PageID(s.uvarint()); seg.pages[i] >= pages {
				return nil, errors.Errorf("lstore: segment page %d out of range", seg.pages[i])
			}
		}
		t.segments = append(t.segments, seg)
	}
	if s.err != nil {
		return nil, s.err
	}

	if t.curBase >= len(t.segments) || t.curTail >= len(t.segments) {
		return nil, errors.New("lstore: current segment out of range")
	}
	validAddr := func(a Address) bool { return int(a.Segment) < len(t.segments) }

	rd, err := get(keyRecords)
	if err != nil {
		return nil, err
	}
	for n := rd.int(); n > 0 && rd.err == nil; n-- {
		rid := RID(rd.uvarint())
		rec := &record{base: rd.addr(), origin: rd.addr(), tps: TID(rd.uvarint())}
		if !validAddr(rec.base) || !validAddr(rec.origin) {
			return nil, errors.Errorf("lstore: record %d address out of range", rid)
		}
		t.records[rid] = rec
		t.order = append(t.order, rid)
	}
	if rd.err != nil {
		return nil, rd.err
	}

	tl, err := get(keyTails)
	if err != nil {
		return nil, err
	}
	for n := tl.int(); n > 0 && tl.err == nil; n-- {
		tid := TID(tl.uvarint())
		addr := tl.addr()
		if !validAddr(addr) {
			return nil, errors.Errorf("lstore: tail %d address out of range", tid)
		}
		t.tails[tid] = addr
	}
	if tl.err != nil {
		return nil, tl.err
	}

	for id := PageID(0); id < pages; id++ {
		b, err := sr.Get(keyPages + uint64(id))
		if err != nil {
			return nil, errors.Wrapf(err, "snapshot page %d", id)
		}
		if len(b) < 1 {
			return nil, errors.Wrapf(errTruncated, "snapshot page %d", id)
		}
		if err := t.dir.restore(id, b[1:], b[0] == 1); err != nil {
			return nil, err
		}
	}

	for col := 0; col < numColumns; col++ {
		if indexed.Has(col) {
			t.index.build(col)
		}
	}
	return t, nil
}

func snapshotFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*"+snapshotExt))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// saveSnapshots replaces the snapshot files in dir by one file per table.
func saveSnapshots(dir string, tables map[string]*Table, logger log.FieldLogger) error {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	var g errgroup.Group
	for i, name := range names {
		t, tmp := tables[name], filepath.Join(dir, fmt.Sprintf("table-%04d%s.tmp", i, snapshotExt))
		g.Go(func() error {
			t.mu.RLock()
			defer t.mu.RUnlock()
			return writeSnapshotFile(t, tmp)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	old, err := snapshotFiles(dir)
	if err != nil {
		return err
	}
	for _, f := range old {
		if err := os.Remove(f); err != nil {
			return errors.Wrap(err, "remove stale snapshot")
		}
	}
	for i := range names {
		final := filepath.Join(dir, fmt.Sprintf("table-%04d%s", i, snapshotExt))
		if err := os.Rename(final+".tmp", final); err != nil {
			return errors.Wrap(err, "install snapshot")
		}
	}
	logger.WithFields(log.Fields{"path": dir, "tables": len(names)}).Debug("snapshots written")
	return nil
}

func writeSnapshotFile(t *Table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create snapshot")
	}
	if err := writeSnapshot(t, f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "snapshot table %q", t.Name)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func loadSnapshots(dir string, opts *Options) ([]*Table, error) {
	files, err := snapshotFiles(dir)
	if err != nil {
		return nil, err
	}

	tables := make([]*Table, len(files))
	var g errgroup.Group
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			t, err := readSnapshotFile(path, opts)
			if err != nil {
				return errors.Wrapf(err, "load %s", filepath.Base(path))
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

func readSnapshotFile(path string, opts *Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fs, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return readSnapshot(f, fs.Size(), opts)
}
