package inode

import (
	"bytes"
	"encoding/binary"

	log "github.com/sirupsen/logrus"
	"pp3/common"
	"pp3/jrnl"
)

// DirEnt is one fixed-size directory entry. Inum 0 marks a free or
// deleted slot. A directory's first two entries are always "." and
// "..".
type DirEnt struct {
	Inum uint32
	Name string
}

func (de *DirEnt) encode() []byte {
	buf := make([]byte, common.DirEntSize)
	binary.LittleEndian.PutUint32(buf, de.Inum)
	copy(buf[4:], de.Name)
	return buf
}

func decodeDirEnt(buf []byte) DirEnt {
	name := buf[4:common.DirEntSize]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return DirEnt{
		Inum: binary.LittleEndian.Uint32(buf),
		Name: string(name),
	}
}

// DirLookup searches locked directory dp for name. On a hit it
// returns a referenced, unlocked handle for the entry plus the entry's
// byte offset inside the directory.
func DirLookup(dp *Inode, name string) (*Inode, uint32) {
	if dp.Type != TDir {
		log.Panicf("inode: dirlookup on non-directory %d", dp.Inum)
	}

	ent := make([]byte, common.DirEntSize)
	for off := uint32(0); off < dp.Size; off += common.DirEntSize {
		if dp.Readi(ent, off) != common.DirEntSize {
			log.Panicf("inode: short directory read in inode %d", dp.Inum)
		}
		de := decodeDirEnt(ent)
		if de.Inum == 0 {
			continue
		}
		if de.Name == name {
			return Iget(dp.Dev, de.Inum), off
		}
	}
	return nil, 0
}

// DirLink inserts (name, inum) into locked directory dp, reusing the
// first free slot. The caller has already ruled out a duplicate name.
func DirLink(t *jrnl.TxnHandle, dp *Inode, name string, inum uint32) error {
	if len(name) == 0 || len(name) > common.DirSiz {
		return common.EBADARG
	}

	ent := make([]byte, common.DirEntSize)
	off := uint32(0)
	for ; off < dp.Size; off += common.DirEntSize {
		if dp.Readi(ent, off) != common.DirEntSize {
			log.Panicf("inode: short directory read in inode %d", dp.Inum)
		}
		if decodeDirEnt(ent).Inum == 0 {
			break
		}
	}

	de := DirEnt{Inum: inum, Name: name}
	n, err := dp.Writei(t, de.encode(), off)
	if err != nil {
		return err
	}
	if n != common.DirEntSize {
		log.Panicf("inode: short directory write in inode %d", dp.Inum)
	}
	return nil
}

// DirUnlink clears the entry at off with a full zero-filled record.
func DirUnlink(t *jrnl.TxnHandle, dp *Inode, off uint32) {
	zero := make([]byte, common.DirEntSize)
	n, err := dp.Writei(t, zero, off)
	if err != nil || n != common.DirEntSize {
		log.Panicf("inode: clearing directory entry in inode %d: %v", dp.Inum, err)
	}
}

// IsDirEmpty reports whether locked directory dp holds nothing beyond
// "." and "..".
func IsDirEmpty(dp *Inode) bool {
	ent := make([]byte, common.DirEntSize)
	for off := uint32(2 * common.DirEntSize); off < dp.Size; off += common.DirEntSize {
		if dp.Readi(ent, off) != common.DirEntSize {
			log.Panicf("inode: short directory read in inode %d", dp.Inum)
		}
		if decodeDirEnt(ent).Inum != 0 {
			return false
		}
	}
	return true
}

// ReadDir returns the live entries of a locked directory. CLI and
// test helper, not a syscall.
func ReadDir(dp *Inode) []DirEnt {
	var out []DirEnt
	ent := make([]byte, common.DirEntSize)
	for off := uint32(0); off < dp.Size; off += common.DirEntSize {
		if dp.Readi(ent, off) != common.DirEntSize {
			log.Panicf("inode: short directory read in inode %d", dp.Inum)
		}
		if de := decodeDirEnt(ent); de.Inum != 0 {
			out = append(out, de)
		}
	}
	return out
}
