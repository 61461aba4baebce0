package balloc

import (
	log "github.com/sirupsen/logrus"
	"pp3/bio"
	"pp3/common"
	"pp3/jrnl"
)

// Bitmap allocator for data blocks. One bit per block in the image;
// mkfs presets the bits covering the superblock, log, inode table and
// the bitmap itself. Mutations ride the caller's transaction.

const bitsPerBlock = common.BlockSize * 8

var layout struct {
	bmapStart uint32
	nblocks   uint32
}

func Init(sb *bio.Superblock) {
	layout.bmapStart = sb.BmapStart
	layout.nblocks = sb.Size
}

// AllocBlock claims a free block and zeroes it. Panics if the disk is
// full: the callers' accounting, not user input, drives allocation.
func AllocBlock(t *jrnl.TxnHandle) uint32 {
	for base := uint32(0); base < layout.nblocks; base += bitsPerBlock {
		blk := bio.Bget(layout.bmapStart + base/bitsPerBlock)
		for i := uint32(0); i < bitsPerBlock && base+i < layout.nblocks; i++ {
			m := byte(1) << (i % 8)
			if blk.Data[i/8]&m == 0 {
				blk.Data[i/8] |= m
				if err := t.WriteBlock(blk); err != nil {
					log.Panicf("balloc: %v", err)
				}
				blk.Brelse()
				nr := base + i
				zero(t, nr)
				return nr
			}
		}
		blk.Brelse()
	}
	log.Panic("balloc: out of blocks")
	return 0
}

func FreeBlock(t *jrnl.TxnHandle, nr uint32) {
	if nr >= layout.nblocks {
		log.Panicf("balloc: free of block %d out of range", nr)
	}
	blk := bio.Bget(layout.bmapStart + nr/bitsPerBlock)
	i := nr % bitsPerBlock
	m := byte(1) << (i % 8)
	if blk.Data[i/8]&m == 0 {
		log.Panicf("balloc: double free of block %d", nr)
	}
	blk.Data[i/8] &^= m
	if err := t.WriteBlock(blk); err != nil {
		log.Panicf("balloc: %v", err)
	}
	blk.Brelse()
}

func zero(t *jrnl.TxnHandle, nr uint32) {
	blk := bio.Bget(nr)
	for i := range blk.Data {
		blk.Data[i] = 0
	}
	if err := t.WriteBlock(blk); err != nil {
		log.Panicf("balloc: %v", err)
	}
	blk.Brelse()
}
