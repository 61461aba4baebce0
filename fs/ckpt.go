package fs

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"
	"pp3/common"
	"pp3/proc"
)

// Process image checkpointing. A checkpoint is five plain files in the
// calling process's working directory, written through the ordinary
// descriptor path so the journal covers them like any other write:
//
//	pages      one raw page per mapped page, low address first
//	flags      one little-endian word of page-table flags per page
//	context    the saved kernel context registers
//	trapframe  the saved user-mode trap frame
//	proc       the process control block record
//
// Restore builds a brand-new process from the set. Pointer-valued
// record fields are carried verbatim but never followed; the loader
// re-derives every reference it actually uses.

var imageFiles = [...]string{"pages", "flags", "context", "trapframe", "proc"}

type imageSet struct {
	p   *proc.Proc
	fds [len(imageFiles)]int
}

// openImage opens all five files at once, with mode applied to each.
// Either every descriptor is bound or none is.
func openImage(p *proc.Proc, mode int) (*imageSet, error) {
	s := &imageSet{p: p}
	for i := range s.fds {
		s.fds[i] = -1
	}
	for i, name := range imageFiles {
		fd, err := Open(p, name, mode)
		if err != nil {
			s.close()
			return nil, err
		}
		s.fds[i] = fd
	}
	return s, nil
}

func (s *imageSet) close() {
	for i, fd := range s.fds {
		if fd >= 0 {
			Close(s.p, fd)
			s.fds[i] = -1
		}
	}
}

// writeFull pushes all of buf through one descriptor. The file layer
// may split large writes across transactions, so partial progress is
// normal and retried; a zero-progress write is a failure.
func (s *imageSet) writeFull(fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := Write(s.p, fd, buf)
		if err != nil {
			return err
		}
		if n <= 0 {
			return common.EIO
		}
		buf = buf[n:]
	}
	return nil
}

// readFull fills buf from one descriptor, EIO on early end of file.
func (s *imageSet) readFull(fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := Read(s.p, fd, buf)
		if err != nil {
			return err
		}
		if n <= 0 {
			return common.EIO
		}
		buf = buf[n:]
	}
	return nil
}

// Checkpoint serializes p's image and control state into the five
// checkpoint files in p's working directory, then exits p. A process
// that asks to be saved does not keep running; the restored copy is
// its continuation. Only a failure to open the set at all leaves p
// alive; once writing has begun, p exits even if the set came out
// incomplete.
//
// Every page below p.Sz must be mapped. An unmapped page there means
// the size accounting and the page table disagree, which is not a
// caller error.
func Checkpoint(p *proc.Proc) error {
	s, err := openImage(p, OCreate|OWrOnly|OTrunc)
	if err != nil {
		return err
	}

	// Stream pages and their flag words in lockstep.
	var flagw [4]byte
	for va := uint32(0); va < p.Sz; va += common.PageSize {
		pte := p.Pgtbl.Walk(va)
		if pte == nil || !pte.Present() {
			log.Panicf("proc %d: checkpoint: page %#x not mapped", p.Pid, va)
		}
		if err := s.writeFull(s.fds[0], pte.Bytes()); err != nil {
			s.close()
			p.Exit()
			return err
		}
		binary.LittleEndian.PutUint32(flagw[:], pte.Flags())
		if err := s.writeFull(s.fds[1], flagw[:]); err != nil {
			s.close()
			p.Exit()
			return err
		}
	}

	for i, rec := range [][]byte{p.Ctx.Encode(), p.TF.Encode(), p.Record().Encode()} {
		if err := s.writeFull(s.fds[2+i], rec); err != nil {
			s.close()
			p.Exit()
			return err
		}
	}

	log.WithField("pid", p.Pid).Infof("proc: checkpointed %q, %d pages",
		p.Name, p.Sz/common.PageSize)
	s.close()
	p.Exit()
	return nil
}

// Restore reads the checkpoint files from p's working directory and
// spawns a new runnable process from them. The new process gets a
// fresh pid; only the saved registers and pages carry over.
func Restore(p *proc.Proc) (*proc.Proc, error) {
	s, err := openImage(p, ORdOnly)
	if err != nil {
		return nil, err
	}
	defer s.close()

	ctxBuf := make([]byte, proc.ContextSize)
	if err := s.readFull(s.fds[2], ctxBuf); err != nil {
		return nil, err
	}
	tfBuf := make([]byte, proc.TrapFrameSize)
	if err := s.readFull(s.fds[3], tfBuf); err != nil {
		return nil, err
	}
	recBuf := make([]byte, proc.RecordSize)
	if err := s.readFull(s.fds[4], recBuf); err != nil {
		return nil, err
	}

	rec := proc.DecodeRecord(recBuf)
	ctx := proc.DecodeContext(ctxBuf)
	tf := proc.DecodeTrapFrame(tfBuf)

	pf, err := p.FdLookup(s.fds[0])
	if err != nil {
		return nil, err
	}
	ff, err := p.FdLookup(s.fds[1])
	if err != nil {
		return nil, err
	}
	return proc.Spawn(rec, ctx, tf, pf, ff, p.Cwd)
}
