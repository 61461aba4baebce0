package proc

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"pp3/common"
	"pp3/file"
	"pp3/inode"
	"pp3/jrnl"
	"pp3/mem"
)

type State int

const (
	Runnable State = iota
	Running
	Zombie
)

func (s State) String() string {
	switch s {
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case Zombie:
		return "zombie"
	}
	return "bad"
}

// Proc is one process control block. Each process has a single thread
// of control, so the descriptor table and image fields need no lock;
// the process table itself does.
type Proc struct {
	Pid    uint32
	State  State
	Killed bool
	Name   string

	Sz    uint32 // image size in bytes
	Pgtbl *mem.PageTable
	Ctx   *Context
	TF    *TrapFrame

	Cwd   *inode.Inode
	files [common.NOFILE]*file.File

	// Simulated kernel addresses of the pointer-typed control block
	// fields. They exist so checkpoint records carry honest opaque
	// values; nothing ever dereferences them.
	pgdirAddr  uint64
	kstackAddr uint64
	ctxAddr    uint64
	tfAddr     uint64
}

var ptable struct {
	mu      sync.Mutex
	procs   map[uint32]*Proc
	nextpid uint32
}

var nextKAddr atomic.Uint64

func init() {
	ptable.procs = make(map[uint32]*Proc)
	ptable.nextpid = 1
	nextKAddr.Store(0x8010_0000)
}

func kalloc() uint64 {
	return nextKAddr.Add(0x1000) - 0x1000
}

// New builds a runnable process with an empty image. cwd is donated:
// the new process owns the reference.
func New(name string, cwd *inode.Inode) *Proc {
	p := &Proc{
		Name:       name,
		State:      Runnable,
		Pgtbl:      mem.NewPageTable(),
		Ctx:        new(Context),
		TF:         new(TrapFrame),
		Cwd:        cwd,
		pgdirAddr:  kalloc(),
		kstackAddr: kalloc(),
		ctxAddr:    kalloc(),
		tfAddr:     kalloc(),
	}
	ptable.mu.Lock()
	p.Pid = ptable.nextpid
	ptable.nextpid++
	ptable.procs[p.Pid] = p
	ptable.mu.Unlock()
	return p
}

func Lookup(pid uint32) *Proc {
	ptable.mu.Lock()
	defer ptable.mu.Unlock()
	return ptable.procs[pid]
}

// Procs snapshots the process table for inspection.
func Procs() []*Proc {
	ptable.mu.Lock()
	defer ptable.mu.Unlock()
	out := make([]*Proc, 0, len(ptable.procs))
	for _, p := range ptable.procs {
		out = append(out, p)
	}
	return out
}

// Grow extends the image by n bytes, mapping fresh user pages.
func (p *Proc) Grow(n uint32) {
	oldTop := (p.Sz + common.PageSize - 1) / common.PageSize
	p.Sz += n
	newTop := (p.Sz + common.PageSize - 1) / common.PageSize
	for pg := oldTop; pg < newTop; pg++ {
		p.Pgtbl.Map(pg*common.PageSize, mem.PteWritable|mem.PteUser)
	}
}

// FdAlloc stores f in the smallest unused slot, taking ownership of
// the caller's reference on success only.
func (p *Proc) FdAlloc(f *file.File) (int, error) {
	for fd := 0; fd < common.NOFILE; fd++ {
		if p.files[fd] == nil {
			p.files[fd] = f
			return fd, nil
		}
	}
	return -1, common.EMFILE
}

// FdLookup resolves a descriptor without touching its reference.
func (p *Proc) FdLookup(fd int) (*file.File, error) {
	if fd < 0 || fd >= common.NOFILE || p.files[fd] == nil {
		return nil, common.EBADF
	}
	return p.files[fd], nil
}

// FdClear detaches the slot. The caller still owns the file's
// reference and must dispose of it separately.
func (p *Proc) FdClear(fd int) {
	if fd < 0 || fd >= common.NOFILE {
		log.Panicf("proc: clear of descriptor %d out of range", fd)
	}
	p.files[fd] = nil
}

// Exit tears the process down: every open file closed, the working
// directory released, the table slot reclaimed.
func (p *Proc) Exit() {
	for fd := 0; fd < common.NOFILE; fd++ {
		if p.files[fd] != nil {
			p.files[fd].Close()
			p.files[fd] = nil
		}
	}
	if p.Cwd != nil {
		t := jrnl.BeginTransaction()
		p.Cwd.Put(t)
		t.EndTransaction()
		p.Cwd = nil
	}
	p.State = Zombie

	ptable.mu.Lock()
	delete(ptable.procs, p.Pid)
	ptable.mu.Unlock()
	log.Debugf("proc: pid %d exited", p.Pid)
}

// CopyIn reads len(dst) bytes of user memory at va.
func (p *Proc) CopyIn(dst []byte, va uint32) error {
	if uint64(va)+uint64(len(dst)) > uint64(p.Sz) {
		return common.EBADARG
	}
	return p.Pgtbl.CopyIn(dst, va)
}

// CopyOut writes src into user memory at va.
func (p *Proc) CopyOut(va uint32, src []byte) error {
	if uint64(va)+uint64(len(src)) > uint64(p.Sz) {
		return common.EBADARG
	}
	return p.Pgtbl.CopyOut(va, src)
}

// FetchStr reads a NUL-terminated string from user memory.
func (p *Proc) FetchStr(va uint32) (string, error) {
	if va >= p.Sz {
		return "", common.EBADARG
	}
	max := p.Sz - va
	if max > 512 {
		max = 512
	}
	return p.Pgtbl.FetchStr(va, int(max))
}
