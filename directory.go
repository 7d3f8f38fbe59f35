package lstore

import (
	"sync"

	"github.com/pkg/errors"
)

type PageID uint32

// frozenCacheSize bounds the decoded frozen pages a directory keeps.
const frozenCacheSize = 256

// frame holds a page either resident or frozen into its compressed
// encoding.
type frame struct {
	page   *Page
	frozen []byte
}

// Directory maps logical page ids to pages. Tables hand out record ids
// only; page ids never leave the table.
type Directory struct {
	capacity int
	algo     CompressAlgorithm
	frames   map[PageID]*frame
	next     PageID

	// Decoded frozen pages. Readers share the table read lock, so the
	// cache has its own.
	cacheMu sync.Mutex
	cache   map[PageID]*Page
	// cached ids, oldest first
	cached []PageID
}

type DirectoryStats struct {
	Pages       int
	Resident    int
	Frozen      int
	FrozenBytes int
}

func newDirectory(capacity int, algo CompressAlgorithm) *Directory {
	return &Directory{
		capacity: capacity,
		algo:     algo,
		frames:   make(map[PageID]*frame),
		cache:    make(map[PageID]*Page),
	}
}

// Allocate creates an empty page and registers it.
func (d *Directory) Allocate(flag PageFlag) (PageID, *Page) {
	id := d.next
	d.next++
	p := NewPage(d.capacity, flag)
	d.frames[id] = &frame{page: p}
	return id, p
}

// Get returns the page for id, decoding it if it was frozen. Decoded
// pages are read only; the most recently decoded ones are cached.
func (d *Directory) Get(id PageID) *Page {
	f, ok := d.frames[id]
	if !ok {
		panic(errors.Errorf("lstore: page %d not in directory", id))
	}
	if f.page != nil {
		return f.page
	}

	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	if p, ok := d.cache[id]; ok {
		return p
	}
	p, err := UnmarshalPage(f.frozen)
	if err != nil {
		panic(errors.Wrapf(err, "lstore: frozen page %d", id))
	}
	p.Flag |= PageFrozen

	if len(d.cached) >= frozenCacheSize {
		delete(d.cache, d.cached[0])
		d.cached = d.cached[1:]
	}
	d.cache[id] = p
	d.cached = append(d.cached, id)
	return p
}

// Freeze replaces a resident page by its compressed encoding. Freezing a
// frozen page is a no-op.
func (d *Directory) Freeze(id PageID) error {
	f, ok := d.frames[id]
	if !ok {
		return errors.Errorf("lstore: page %d not in directory", id)
	}
	if f.page == nil {
		return nil
	}
	f.frozen = f.page.Marshal(d.algo)
	f.page = nil
	return nil
}

func (d *Directory) Stats() DirectoryStats {
	s := DirectoryStats{Pages: len(d.frames)}
	for _, f := range d.frames {
		if f.page != nil {
			s.Resident++
		} else {
			s.Frozen++
			s.FrozenBytes += len(f.frozen)
		}
	}
	return s
}

// encode returns the snapshot form of a page and whether it was frozen.
func (d *Directory) encode(id PageID) ([]byte, bool) {
	f := d.frames[id]
	if f.page == nil {
		return f.frozen, true
	}
	return f.page.Marshal(CompNone), false
}

// restore registers a page read back from a snapshot.
func (d *Directory) restore(id PageID, data []byte, frozen bool) error {
	p, err := UnmarshalPage(data)
	if err != nil {
		return errors.Wrapf(err, "page %d", id)
	}
	if frozen {
		d.frames[id] = &frame{frozen: data}
	} else {
		d.frames[id] = &frame{page: p}
	}
	if id >= d.next {
		d.next = id + 1
	}
	return nil
}
