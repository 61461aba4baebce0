package bio

import (
	"os"

	"github.com/gofrs/flock"
	"pp3/common"
)

// Disk is the raw block store backing the cache: a flat file of
// fixed-size blocks. The flock keeps a second kernel instance from
// mounting the same image underneath us.
type Disk struct {
	f       *os.File
	fl      *flock.Flock
	nblocks uint32
}

func OpenDisk(path string, nblocks uint32) (*Disk, error) {
	fl := flock.New(path + ".lock")
	held, err := fl.TryLock()
	if err != nil {
		return nil, err
	}
	if !held {
		return nil, common.EIO
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		fl.Unlock()
		return nil, err
	}

	// Grow a short image to the requested size, but never shrink an
	// existing one: its superblock, not the caller, owns the geometry.
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		fl.Unlock()
		return nil, err
	}
	if existing := uint32(fi.Size() / common.BlockSize); existing > nblocks {
		nblocks = existing
	} else if err := f.Truncate(int64(nblocks) * common.BlockSize); err != nil {
		f.Close()
		fl.Unlock()
		return nil, err
	}

	return &Disk{f: f, fl: fl, nblocks: nblocks}, nil
}

func (d *Disk) NBlocks() uint32 {
	return d.nblocks
}

// Read fills a block-sized buffer from block nr.
func (d *Disk) Read(nr uint32, buf []byte) error {
	if nr >= d.nblocks || len(buf) != common.BlockSize {
		return common.EBADARG
	}
	if _, err := d.f.ReadAt(buf, int64(nr)*common.BlockSize); err != nil {
		return common.EIO
	}
	return nil
}

// Write pushes a block-sized buffer to block nr. A short write comes
// back as EIO; the caller decides how fatal that is.
func (d *Disk) Write(nr uint32, buf []byte) error {
	if nr >= d.nblocks || len(buf) != common.BlockSize {
		return common.EBADARG
	}
	n, err := d.f.WriteAt(buf, int64(nr)*common.BlockSize)
	if err != nil || n != common.BlockSize {
		return common.EIO
	}
	return nil
}

func (d *Disk) Close() error {
	err := d.f.Close()
	d.fl.Unlock()
	return err
}
