package inode

import (
	"encoding/binary"
	"sync"

	log "github.com/sirupsen/logrus"
	"pp3/bio"
	"pp3/common"
	"pp3/jrnl"
)

type IType uint16

const (
	TFree IType = iota
	TDir
	TFile
	TDev
)

func (t IType) String() string {
	switch t {
	case TFree:
		return "free"
	case TDir:
		return "dir"
	case TFile:
		return "file"
	case TDev:
		return "dev"
	}
	return "bad"
}

const (
	NDirect   = 12
	dinodeSiz = 64
	IPB       = common.BlockSize / dinodeSiz // dinodes per block
	NIndirect = common.BlockSize / 4
	MaxBlocks = NDirect + NIndirect
)

// Inode is the in-core handle for one on-disk inode. The cache hands
// out at most one handle per (dev, inum); ref counts the holders.
// Everything below Valid is the cached dinode and may only be touched
// with the handle locked.
type Inode struct {
	Dev  uint32
	Inum uint32
	ref  int // guarded by itable.mu

	mu    sync.Mutex // the inode lock; held from Lock to Unlock
	Valid bool

	Type  IType
	Major uint16
	Minor uint16
	Nlink uint16
	Size  uint32
	Addrs [NDirect + 1]uint32
}

type Stat struct {
	Dev   uint32
	Inum  uint32
	Type  IType
	Nlink uint16
	Size  uint32
}

// StatSize is the wire size of an encoded Stat.
const StatSize = 16

// Encode lays the Stat out little-endian for delivery to user memory.
func (st *Stat) Encode() []byte {
	d := make([]byte, StatSize)
	binary.LittleEndian.PutUint32(d[0:], st.Dev)
	binary.LittleEndian.PutUint32(d[4:], st.Inum)
	binary.LittleEndian.PutUint16(d[8:], uint16(st.Type))
	binary.LittleEndian.PutUint16(d[10:], st.Nlink)
	binary.LittleEndian.PutUint32(d[12:], st.Size)
	return d
}

var itable struct {
	mu      sync.Mutex
	inodes  map[uint64]*Inode
	sb      *bio.Superblock
	rootDev uint32
}

func Init(sb *bio.Superblock) {
	itable.mu.Lock()
	defer itable.mu.Unlock()
	itable.inodes = make(map[uint64]*Inode)
	itable.sb = sb
	itable.rootDev = common.RootDev
}

func ikey(dev, inum uint32) uint64 {
	return uint64(dev)<<32 | uint64(inum)
}

// iblock returns the disk block holding dinode inum.
func iblock(inum uint32) uint32 {
	return itable.sb.InodeStart + inum/IPB
}

// Iget returns a referenced, unlocked handle. No disk I/O happens
// until the first Lock.
func Iget(dev, inum uint32) *Inode {
	itable.mu.Lock()
	defer itable.mu.Unlock()

	if ip, ok := itable.inodes[ikey(dev, inum)]; ok {
		ip.ref++
		return ip
	}
	ip := &Inode{Dev: dev, Inum: inum, ref: 1}
	itable.inodes[ikey(dev, inum)] = ip
	return ip
}

// Root returns a referenced handle on /.
func Root() *Inode {
	return Iget(itable.rootDev, common.RootInum)
}

// Dup adds a reference to an already-held handle.
func (ip *Inode) Dup() *Inode {
	itable.mu.Lock()
	ip.ref++
	itable.mu.Unlock()
	return ip
}

// Lock acquires the inode lock, reading the dinode on first touch.
func (ip *Inode) Lock() {
	itable.mu.Lock()
	if ip.ref < 1 {
		log.Panicf("inode: lock of unreferenced inode %d", ip.Inum)
	}
	itable.mu.Unlock()

	ip.mu.Lock()
	if !ip.Valid {
		blk := bio.Bget(iblock(ip.Inum))
		ip.load(dinodeAt(blk, ip.Inum))
		blk.Brelse()
		ip.Valid = true
		if ip.Type == TFree {
			log.Panicf("inode: lock of free inode %d", ip.Inum)
		}
	}
}

func (ip *Inode) Unlock() {
	ip.mu.Unlock()
}

// Put drops a reference. Dropping the last reference to an unlinked
// inode reclaims it, which writes through t; Put must therefore be
// called inside a transaction whenever the inode might be dead.
func (ip *Inode) Put(t *jrnl.TxnHandle) {
	itable.mu.Lock()
	if ip.ref == 1 && ip.Valid && ip.Nlink == 0 {
		// No other holder exists, so the lock cannot be contended.
		itable.mu.Unlock()
		ip.mu.Lock()
		ip.Trunc(t)
		ip.Type = TFree
		ip.Update(t)
		ip.Valid = false
		ip.mu.Unlock()
		itable.mu.Lock()
	}
	ip.ref--
	if ip.ref == 0 {
		delete(itable.inodes, ikey(ip.Dev, ip.Inum))
	}
	itable.mu.Unlock()
}

// UnlockPut is the common tail of the syscall paths: release the lock
// and the reference in one step so neither can be forgotten.
func (ip *Inode) UnlockPut(t *jrnl.TxnHandle) {
	ip.Unlock()
	ip.Put(t)
}

// Alloc claims a free dinode and returns a referenced, unlocked
// handle. Running out of inodes is a halt, not an error.
func Alloc(t *jrnl.TxnHandle, dev uint32, typ IType) *Inode {
	for inum := uint32(1); inum < itable.sb.NInodes; inum++ {
		blk := bio.Bget(iblock(inum))
		d := dinodeAt(blk, inum)
		if IType(binary.LittleEndian.Uint16(d)) == TFree {
			for i := range d {
				d[i] = 0
			}
			binary.LittleEndian.PutUint16(d, uint16(typ))
			if err := t.WriteBlock(blk); err != nil {
				log.Panicf("inode: alloc: %v", err)
			}
			blk.Brelse()
			return Iget(dev, inum)
		}
		blk.Brelse()
	}
	log.Panic("inode: out of inodes")
	return nil
}

// Update writes the cached dinode through the transaction. Callers
// hold the inode lock.
func (ip *Inode) Update(t *jrnl.TxnHandle) {
	blk := bio.Bget(iblock(ip.Inum))
	ip.store(dinodeAt(blk, ip.Inum))
	if err := t.WriteBlock(blk); err != nil {
		log.Panicf("inode: update: %v", err)
	}
	blk.Brelse()
}

func (ip *Inode) Stati() *Stat {
	return &Stat{
		Dev:   ip.Dev,
		Inum:  ip.Inum,
		Type:  ip.Type,
		Nlink: ip.Nlink,
		Size:  ip.Size,
	}
}

func dinodeAt(blk *bio.Block, inum uint32) []byte {
	off := (inum % IPB) * dinodeSiz
	return blk.Data[off : off+dinodeSiz]
}

func (ip *Inode) load(d []byte) {
	ip.Type = IType(binary.LittleEndian.Uint16(d[0:]))
	ip.Major = binary.LittleEndian.Uint16(d[2:])
	ip.Minor = binary.LittleEndian.Uint16(d[4:])
	ip.Nlink = binary.LittleEndian.Uint16(d[6:])
	ip.Size = binary.LittleEndian.Uint32(d[8:])
	for i := range ip.Addrs {
		ip.Addrs[i] = binary.LittleEndian.Uint32(d[12+4*i:])
	}
}

func (ip *Inode) store(d []byte) {
	binary.LittleEndian.PutUint16(d[0:], uint16(ip.Type))
	binary.LittleEndian.PutUint16(d[2:], ip.Major)
	binary.LittleEndian.PutUint16(d[4:], ip.Minor)
	binary.LittleEndian.PutUint16(d[6:], ip.Nlink)
	binary.LittleEndian.PutUint32(d[8:], ip.Size)
	for i := range ip.Addrs {
		binary.LittleEndian.PutUint32(d[12+4*i:], ip.Addrs[i])
	}
}
