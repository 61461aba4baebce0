package proc

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"
	"pp3/common"
	"pp3/file"
	"pp3/inode"
	"pp3/mem"
)

// Spawn reconstructs a runnable process from a checkpoint: the loaded
// control-block record, the already-patched context and trapframe, and
// the still-open page-data and page-flags files. The image is rebuilt
// page by page in ascending address order, trusting the record's size
// against the stream with no further cross-check. cwd is the caller's
// directory; Spawn takes its own reference.
//
// The returned process has a fresh identity. On error nothing is left
// in the process table.
func Spawn(r *Record, ctx *Context, tf *TrapFrame, pages, flags *file.File, cwd *inode.Inode) (*Proc, error) {
	p := New(trimName(r.Name), cwd.Dup())
	p.Killed = r.Killed != 0
	*p.Ctx = *ctx
	*p.TF = *tf

	page := make([]byte, common.PageSize)
	word := make([]byte, 4)
	for va := uint32(0); va < r.Sz; va += common.PageSize {
		n, err := pages.Read(page)
		if err != nil || n != common.PageSize {
			p.Exit()
			return nil, common.EIO
		}
		n, err = flags.Read(word)
		if err != nil || n != len(word) {
			p.Exit()
			return nil, common.EIO
		}
		fl := binary.LittleEndian.Uint32(word)
		if fl&mem.PtePresent == 0 {
			log.Panicf("proc: checkpointed page at %#x not present", va)
		}
		fr := p.Pgtbl.Map(va, fl&^mem.PtePresent)
		copy(fr[:], page)
	}
	p.Sz = r.Sz
	p.State = Runnable
	log.Infof("proc: restored %q as pid %d (%d pages)",
		p.Name, p.Pid, (r.Sz+common.PageSize-1)/common.PageSize)
	return p, nil
}

func trimName(name [16]byte) string {
	for i, c := range name {
		if c == 0 {
			return string(name[:i])
		}
	}
	return string(name[:])
}
