package file

import (
	"sync"

	"pp3/common"
)

const pipeSize = 512

// pipe is the bounded buffer behind a connected read/write file pair.
type pipe struct {
	mu        sync.Mutex
	cond      *sync.Cond
	data      [pipeSize]byte
	nread     uint32
	nwrite    uint32
	readopen  bool
	writeopen bool
}

// AllocPipe builds the connected pair: first the read end, then the
// write end. Either allocation failing releases whatever was made.
func AllocPipe() (*File, *File, error) {
	rf, err := Alloc()
	if err != nil {
		return nil, nil, err
	}
	wf, err := Alloc()
	if err != nil {
		rf.Close()
		return nil, nil, err
	}

	pi := &pipe{readopen: true, writeopen: true}
	pi.cond = sync.NewCond(&pi.mu)

	rf.Kind = KindPipe
	rf.Readable = true
	rf.pi = pi
	wf.Kind = KindPipe
	wf.Writable = true
	wf.pi = pi
	return rf, wf, nil
}

func (p *pipe) close(writer bool) {
	p.mu.Lock()
	if writer {
		p.writeopen = false
	} else {
		p.readopen = false
	}
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *pipe) read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.nread == p.nwrite && p.writeopen {
		p.cond.Wait()
	}
	n := 0
	for n < len(buf) && p.nread != p.nwrite {
		buf[n] = p.data[p.nread%pipeSize]
		p.nread++
		n++
	}
	p.cond.Broadcast()
	return n, nil
}

func (p *pipe) write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for n < len(buf) {
		if !p.readopen {
			return n, common.EPIPE
		}
		if p.nwrite == p.nread+pipeSize {
			p.cond.Broadcast()
			p.cond.Wait()
			continue
		}
		p.data[p.nwrite%pipeSize] = buf[n]
		p.nwrite++
		n++
	}
	p.cond.Broadcast()
	return n, nil
}
