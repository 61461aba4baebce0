package mem

import (
	log "github.com/sirupsen/logrus"
	"pp3/common"
)

// Simulated paging for process images. Frames are page-sized byte
// arrays standing in for physical memory; a PageTable maps page-
// aligned virtual addresses onto them with x86-style permission bits.

const (
	PtePresent  uint32 = 1 << 0
	PteWritable uint32 = 1 << 1
	PteUser     uint32 = 1 << 2
)

type Frame [common.PageSize]byte

// PTE is one page-table entry. The flag word travels through
// checkpoint files, so its layout is part of the image format.
type PTE struct {
	frame *Frame
	flags uint32
}

func (p *PTE) Present() bool { return p.flags&PtePresent != 0 }
func (p *PTE) Flags() uint32 { return p.flags }

// Bytes exposes the backing frame: the physical-frame-to-pointer
// translation.
func (p *PTE) Bytes() []byte { return p.frame[:] }

type PageTable struct {
	entries map[uint32]*PTE
}

func NewPageTable() *PageTable {
	return &PageTable{entries: make(map[uint32]*PTE)}
}

// Walk looks up the entry mapping va. Read-only query: a miss returns
// nil, never an allocation.
func (pt *PageTable) Walk(va uint32) *PTE {
	return pt.entries[va-va%common.PageSize]
}

// Map installs a fresh frame at page-aligned va.
func (pt *PageTable) Map(va uint32, flags uint32) *Frame {
	if va%common.PageSize != 0 {
		log.Panicf("mem: map of unaligned address %#x", va)
	}
	if _, ok := pt.entries[va]; ok {
		log.Panicf("mem: remap of %#x", va)
	}
	f := new(Frame)
	pt.entries[va] = &PTE{frame: f, flags: flags | PtePresent}
	return f
}

// CopyOut writes src into the image at va, page by page.
func (pt *PageTable) CopyOut(va uint32, src []byte) error {
	for len(src) > 0 {
		pte := pt.Walk(va)
		if pte == nil || !pte.Present() {
			return common.EBADARG
		}
		po := va % common.PageSize
		n := common.PageSize - po
		if n > uint32(len(src)) {
			n = uint32(len(src))
		}
		copy(pte.Bytes()[po:po+n], src[:n])
		src = src[n:]
		va += n
	}
	return nil
}

// CopyIn reads len(dst) bytes of the image starting at va.
func (pt *PageTable) CopyIn(dst []byte, va uint32) error {
	for len(dst) > 0 {
		pte := pt.Walk(va)
		if pte == nil || !pte.Present() {
			return common.EBADARG
		}
		po := va % common.PageSize
		n := common.PageSize - po
		if n > uint32(len(dst)) {
			n = uint32(len(dst))
		}
		copy(dst[:n], pte.Bytes()[po:po+n])
		dst = dst[n:]
		va += n
	}
	return nil
}

// FetchStr reads a NUL-terminated string at va, refusing to cross an
// unmapped page and capping at max bytes.
func (pt *PageTable) FetchStr(va uint32, max int) (string, error) {
	var out []byte
	for len(out) < max {
		pte := pt.Walk(va)
		if pte == nil || !pte.Present() {
			return "", common.EBADARG
		}
		po := va % common.PageSize
		page := pte.Bytes()
		for po < common.PageSize && len(out) < max {
			c := page[po]
			if c == 0 {
				return string(out), nil
			}
			out = append(out, c)
			po++
			va++
		}
	}
	return "", common.EBADARG
}
