package inode

import (
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"pp3/bio"
	"pp3/common"
)

// Mkfs lays out a fresh image: superblock, empty log, inode table,
// allocation bitmap, and a root directory holding "." and "..". Writes
// go straight to the disk; there is nothing to journal before the
// first mount.
func Mkfs(d *bio.Disk, cfg *common.Config) *bio.Superblock {
	const bpb = common.BlockSize * 8

	logLen := cfg.LogBlocks + 1 // header included
	ninodeblks := (cfg.NInodes + IPB - 1) / IPB
	nbmapblks := (cfg.NBlocks + bpb - 1) / bpb

	sb := &bio.Superblock{
		Magic:      bio.Magic,
		FSID:       [16]byte(uuid.New()),
		Size:       cfg.NBlocks,
		LogStart:   1,
		LogLen:     logLen,
		InodeStart: 1 + logLen,
		NInodes:    cfg.NInodes,
		BmapStart:  1 + logLen + ninodeblks,
		DataStart:  1 + logLen + ninodeblks + nbmapblks,
	}
	if sb.DataStart+1 >= cfg.NBlocks {
		log.Panicf("mkfs: geometry leaves no data blocks (meta ends at %d of %d)",
			sb.DataStart, cfg.NBlocks)
	}

	zero := make([]byte, common.BlockSize)
	for nr := uint32(0); nr < sb.DataStart+1; nr++ {
		if err := d.Write(nr, zero); err != nil {
			log.Panicf("mkfs: zero block %d: %v", nr, err)
		}
	}

	buf := make([]byte, common.BlockSize)
	sb.Encode(buf)
	if err := d.Write(bio.SbBlock, buf); err != nil {
		log.Panicf("mkfs: write superblock: %v", err)
	}

	// Root directory: inum 1, one data block, "." and ".." both
	// pointing home. Nlink stays 1: self-entries are never counted.
	rootBlk := sb.DataStart
	root := &Inode{
		Dev:   common.RootDev,
		Inum:  common.RootInum,
		Type:  TDir,
		Nlink: 1,
		Size:  2 * common.DirEntSize,
	}
	root.Addrs[0] = rootBlk

	ib := make([]byte, common.BlockSize)
	if err := d.Read(sb.InodeStart+common.RootInum/IPB, ib); err != nil {
		log.Panicf("mkfs: %v", err)
	}
	off := (common.RootInum % IPB) * dinodeSiz
	root.store(ib[off : off+dinodeSiz])
	if err := d.Write(sb.InodeStart+common.RootInum/IPB, ib); err != nil {
		log.Panicf("mkfs: write root inode: %v", err)
	}

	db := make([]byte, common.BlockSize)
	dot := DirEnt{Inum: common.RootInum, Name: "."}
	dotdot := DirEnt{Inum: common.RootInum, Name: ".."}
	copy(db, dot.encode())
	copy(db[common.DirEntSize:], dotdot.encode())
	if err := d.Write(rootBlk, db); err != nil {
		log.Panicf("mkfs: write root directory: %v", err)
	}

	// Everything up to and including the root block is in use.
	used := rootBlk + 1
	for b := uint32(0); b < nbmapblks; b++ {
		bm := make([]byte, common.BlockSize)
		for i := uint32(0); i < bpb && b*bpb+i < used; i++ {
			bm[i/8] |= 1 << (i % 8)
		}
		if err := d.Write(sb.BmapStart+b, bm); err != nil {
			log.Panicf("mkfs: write bitmap: %v", err)
		}
	}

	log.WithField("fsid", sb.UUID()).Infof("mkfs: formatted %d blocks", cfg.NBlocks)
	return sb
}
