package inode

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"
	"pp3/balloc"
	"pp3/bio"
	"pp3/common"
	"pp3/jrnl"
)

// bmap returns the disk block backing file block bn, allocating it
// (and the indirect block) when t is non-nil. Files have no holes:
// writes only ever extend, so a read of a block inside Size always
// finds it mapped.
func (ip *Inode) bmap(t *jrnl.TxnHandle, bn uint32) uint32 {
	if bn < NDirect {
		if ip.Addrs[bn] == 0 {
			if t == nil {
				log.Panicf("inode: unmapped block %d inside inode %d", bn, ip.Inum)
			}
			ip.Addrs[bn] = balloc.AllocBlock(t)
		}
		return ip.Addrs[bn]
	}

	bn -= NDirect
	if bn >= NIndirect {
		log.Panicf("inode: block %d beyond maximum file size", bn+NDirect)
	}
	if ip.Addrs[NDirect] == 0 {
		if t == nil {
			log.Panicf("inode: unmapped indirect block in inode %d", ip.Inum)
		}
		ip.Addrs[NDirect] = balloc.AllocBlock(t)
	}

	blk := bio.Bget(ip.Addrs[NDirect])
	addr := binary.LittleEndian.Uint32(blk.Data[4*bn:])
	if addr == 0 {
		if t == nil {
			log.Panicf("inode: unmapped block %d inside inode %d", bn+NDirect, ip.Inum)
		}
		addr = balloc.AllocBlock(t)
		binary.LittleEndian.PutUint32(blk.Data[4*bn:], addr)
		if err := t.WriteBlock(blk); err != nil {
			log.Panicf("inode: bmap: %v", err)
		}
	}
	blk.Brelse()
	return addr
}

// Trunc frees the file's data and resets Size to zero. Caller holds
// the inode lock and a transaction.
func (ip *Inode) Trunc(t *jrnl.TxnHandle) {
	for i := 0; i < NDirect; i++ {
		if ip.Addrs[i] != 0 {
			balloc.FreeBlock(t, ip.Addrs[i])
			ip.Addrs[i] = 0
		}
	}
	if ip.Addrs[NDirect] != 0 {
		blk := bio.Bget(ip.Addrs[NDirect])
		for i := uint32(0); i < NIndirect; i++ {
			addr := binary.LittleEndian.Uint32(blk.Data[4*i:])
			if addr != 0 {
				balloc.FreeBlock(t, addr)
			}
		}
		blk.Brelse()
		balloc.FreeBlock(t, ip.Addrs[NDirect])
		ip.Addrs[NDirect] = 0
	}
	ip.Size = 0
	ip.Update(t)
}

// Readi copies file content starting at off into buf, returning the
// count read. Reads past the end are clipped. Caller holds the lock.
func (ip *Inode) Readi(buf []byte, off uint32) int {
	if off >= ip.Size {
		return 0
	}
	n := uint32(len(buf))
	if off+n > ip.Size {
		n = ip.Size - off
	}

	read := uint32(0)
	for read < n {
		blk := bio.Bget(ip.bmap(nil, (off+read)/common.BlockSize))
		bo := (off + read) % common.BlockSize
		m := common.BlockSize - bo
		if m > n-read {
			m = n - read
		}
		copy(buf[read:read+m], blk.Data[bo:bo+m])
		blk.Brelse()
		read += m
	}
	return int(n)
}

// Writei copies buf into the file at off, extending it as needed.
// Writes must start at or inside the current size: no holes. Caller
// holds the lock and the transaction; the block budget of one call
// must fit the transaction, which file.Write arranges by chunking.
func (ip *Inode) Writei(t *jrnl.TxnHandle, buf []byte, off uint32) (int, error) {
	if off > ip.Size {
		return 0, common.EBADARG
	}
	n := uint32(len(buf))
	if (off+n+common.BlockSize-1)/common.BlockSize > MaxBlocks {
		return 0, common.EBADARG
	}

	written := uint32(0)
	for written < n {
		blk := bio.Bget(ip.bmap(t, (off+written)/common.BlockSize))
		bo := (off + written) % common.BlockSize
		m := common.BlockSize - bo
		if m > n-written {
			m = n - written
		}
		copy(blk.Data[bo:bo+m], buf[written:written+m])
		if err := t.WriteBlock(blk); err != nil {
			blk.Brelse()
			return int(written), err
		}
		blk.Brelse()
		written += m
	}

	if off+n > ip.Size {
		ip.Size = off + n
	}
	// Addrs may have changed even when size did not.
	ip.Update(t)
	return int(n), nil
}
