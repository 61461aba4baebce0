package file

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"pp3/common"
	"pp3/inode"
	"pp3/jrnl"
)

type Kind int

const (
	KindNone Kind = iota
	KindInode
	KindPipe
	KindDev
)

// File is one open-file object. Descriptor tables hold references to
// these; Dup and Close move the count. The offset lives here, not in
// the descriptor, so duplicated descriptors share it.
type File struct {
	Kind     Kind
	Readable bool
	Writable bool
	Ip       *inode.Inode // KindInode and KindDev
	Off      uint32       // KindInode
	Major    uint16       // KindDev
	pi       *pipe        // KindPipe

	ref int // guarded by ftable.mu
}

var ftable struct {
	mu    sync.Mutex
	nopen int
}

// Alloc returns a blank file object with one reference, or ENFILE
// when the system-wide table is exhausted.
func Alloc() (*File, error) {
	ftable.mu.Lock()
	defer ftable.mu.Unlock()
	if ftable.nopen >= common.NFILE {
		return nil, common.ENFILE
	}
	ftable.nopen++
	return &File{ref: 1}, nil
}

// Dup takes another reference and returns f for chaining.
func (f *File) Dup() *File {
	ftable.mu.Lock()
	defer ftable.mu.Unlock()
	if f.ref < 1 {
		log.Panic("file: dup of closed file")
	}
	f.ref++
	return f
}

// Close drops a reference; the last one releases what the file holds.
// Dropping an inode reference may reclaim it, hence the transaction.
func (f *File) Close() {
	ftable.mu.Lock()
	if f.ref < 1 {
		log.Panic("file: close of closed file")
	}
	f.ref--
	if f.ref > 0 {
		ftable.mu.Unlock()
		return
	}
	ftable.nopen--
	ff := *f
	f.Kind = KindNone
	f.Ip = nil
	f.pi = nil
	ftable.mu.Unlock()

	switch ff.Kind {
	case KindPipe:
		ff.pi.close(ff.Writable)
	case KindInode, KindDev:
		if ff.Ip != nil {
			t := jrnl.BeginTransaction()
			ff.Ip.Put(t)
			t.EndTransaction()
		}
	}
}

func (f *File) Stat() (*inode.Stat, error) {
	if f.Kind == KindInode || f.Kind == KindDev {
		f.Ip.Lock()
		st := f.Ip.Stati()
		f.Ip.Unlock()
		return st, nil
	}
	return nil, common.EBADF
}

func (f *File) Read(buf []byte) (int, error) {
	if !f.Readable {
		return 0, common.EBADF
	}
	switch f.Kind {
	case KindPipe:
		return f.pi.read(buf)
	case KindDev:
		sw := getDev(f.Major)
		if sw == nil {
			return 0, common.EBADF
		}
		return sw.Read(buf)
	case KindInode:
		f.Ip.Lock()
		n := f.Ip.Readi(buf, f.Off)
		f.Off += uint32(n)
		f.Ip.Unlock()
		return n, nil
	}
	log.Panic("file: read of unset file kind")
	return 0, nil
}

// Write appends at the file offset. Inode writes are split so each
// slice's worst-case block count fits one transaction.
func (f *File) Write(buf []byte) (int, error) {
	if !f.Writable {
		return 0, common.EBADF
	}
	switch f.Kind {
	case KindPipe:
		return f.pi.write(buf)
	case KindDev:
		sw := getDev(f.Major)
		if sw == nil {
			return 0, common.EBADF
		}
		return sw.Write(buf)
	case KindInode:
		// Per chunk: data blocks, an indirect block, the inode, the
		// bitmap, plus a zeroing write per fresh block.
		max := ((common.MaxOpBlocks - 2) / 3) * common.BlockSize
		written := 0
		for written < len(buf) {
			n := len(buf) - written
			if n > max {
				n = max
			}
			t := jrnl.BeginTransaction()
			f.Ip.Lock()
			got, err := f.Ip.Writei(t, buf[written:written+n], f.Off)
			f.Off += uint32(got)
			f.Ip.Unlock()
			t.EndTransaction()
			written += got
			if err != nil {
				return written, err
			}
		}
		return written, nil
	}
	log.Panic("file: write of unset file kind")
	return 0, nil
}
