package lstore

import "github.com/pkg/errors"

var (
	// default system pagesize for most OS
	DefaultPageSize = 4096
)

// SlotSize is the byte cost of one slot: a single 64-bit word.
const SlotSize = 8

const maxPageSlots = 1 << 20

type PageFlag uint8

const (
	// page of inserted record values
	PageBase PageFlag = 1 << iota
	// page of update records
	PageTail

	// no free slot left
	PageFull
	// page encoding is compressed, see Directory.Freeze
	PageFrozen
)

func (f PageFlag) Has(flag PageFlag) bool { return f&flag != 0 }

// Page is a fixed capacity, append-only run of nullable slots belonging to
// one column.
type Page struct {
	Flag  PageFlag
	slots []Value
	// how many slots are occupied
	count int
}

// NewPage returns an empty page holding up to capacity values.
func NewPage(capacity int, flag PageFlag) *Page {
	return &Page{Flag: flag, slots: make([]Value, 0, capacity)}
}

func capacityFor(pageSize int) int {
	return pageSize / SlotSize
}

func (p *Page) Capacity() int { return cap(p.slots) }

func (p *Page) Count() int { return p.count }

func (p *Page) HasCapacity() bool {
	return p.count < cap(p.slots)
}

// Insert appends v in the next free slot and returns its position.
func (p *Page) Insert(v Value) (int, error) {
	if !p.HasCapacity() {
		return 0, ErrPageFull
	}
	p.slots = append(p.slots, v)
	p.count++
	if p.count == cap(p.slots) {
		p.Flag |= PageFull
	}
	return p.count - 1, nil
}

// Read returns the value at slot; unoccupied slots read as null.
func (p *Page) Read(slot int) Value {
	if slot < 0 || slot >= p.count {
		return Null
	}
	return p.slots[slot]
}

// Write rewrites an occupied slot in place. Only record metadata is
// rewritten this way.
func (p *Page) Write(slot int, v Value) error {
	if p.Flag.Has(PageFrozen) {
		return errors.New("lstore: write to frozen page")
	}
	if slot < 0 || slot >= p.count {
		return errors.Errorf("lstore: slot %d not occupied", slot)
	}
	p.slots[slot] = v
	return nil
}

// Clear tombstones an occupied slot.
func (p *Page) Clear(slot int) error {
	return p.Write(slot, Null)
}
