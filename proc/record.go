package proc

import (
	log "github.com/sirupsen/logrus"
	"pp3/common"
)

// Record is the control block as it appears in a checkpoint file.
// Every field is classified: plain values survive the round trip,
// "stale" fields are recomputed by Spawn, and opaque pointer fields
// are carried byte-for-byte but never dereferenced after a reload --
// only the context and trapframe pointers get patched to the freshly
// read copies, and even those land in the record merely as the old
// opaque values.
type Record struct {
	Pid    uint32 // stale: identity is reassigned on load
	State  uint32 // stale: scheduler state is recomputed
	Killed uint32 // value
	Sz     uint32 // value: drives the page walk on load

	PgdirPtr   uint64 // opaque: address space is rebuilt
	KstackPtr  uint64 // opaque
	ContextPtr uint64 // opaque: loader re-points the live context
	TfPtr      uint64 // opaque: loader re-points the live trapframe
	CwdPtr     uint64 // opaque: unsafe to trust after reload

	OFile [common.NOFILE]uint64 // opaque: open-file pointers

	Name [16]byte // value
}

var RecordSize = len((&Record{}).Encode())

// Record snapshots the live control block into its on-disk form.
func (p *Proc) Record() *Record {
	r := &Record{
		Pid:        p.Pid,
		State:      uint32(p.State),
		Sz:         p.Sz,
		PgdirPtr:   p.pgdirAddr,
		KstackPtr:  p.kstackAddr,
		ContextPtr: p.ctxAddr,
		TfPtr:      p.tfAddr,
	}
	if p.Killed {
		r.Killed = 1
	}
	if p.Cwd != nil {
		// Fake kernel address of the cached inode: dev and inum in
		// the low bits, good enough to be recognizably opaque.
		r.CwdPtr = 0xffff_0000_0000_0000 | uint64(p.Cwd.Dev)<<32 | uint64(p.Cwd.Inum)
	}
	for fd, f := range p.files {
		if f != nil {
			r.OFile[fd] = 0xfffe_0000_0000_0000 | uint64(fd)
		}
	}
	copy(r.Name[:], p.Name)
	return r
}

func (r *Record) Encode() []byte {
	return encodeRecord(r)
}

// DecodeRecord rebuilds a control-block record. Size mismatch is a
// corrupted checkpoint set: halt.
func DecodeRecord(buf []byte) *Record {
	if len(buf) != RecordSize {
		log.Panicf("proc: control-block record is %d bytes, want %d", len(buf), RecordSize)
	}
	r := new(Record)
	decodeRecord(buf, r)
	return r
}
