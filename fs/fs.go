package fs

import (
	log "github.com/sirupsen/logrus"
	"pp3/balloc"
	"pp3/bio"
	"pp3/common"
	"pp3/inode"
	"pp3/jrnl"
)

// Open-mode bits.
const (
	ORdOnly = 0x000
	OWrOnly = 0x001
	ORdWr   = 0x002
	OCreate = 0x200
	OTrunc  = 0x400
)

var mounted *bio.Disk

// Mount opens (formatting on first use) the disk image and brings up
// the block cache, journal and inode layers. Log recovery runs before
// the first transaction.
func Mount(imagePath string, cfg *common.Config) error {
	d, err := bio.OpenDisk(imagePath, cfg.NBlocks)
	if err != nil {
		return err
	}

	buf := make([]byte, common.BlockSize)
	if err := d.Read(bio.SbBlock, buf); err != nil {
		d.Close()
		return err
	}
	sb := bio.DecodeSuperblock(buf)
	if sb.Magic != bio.Magic {
		sb = inode.Mkfs(d, cfg)
	} else if sb.Size != cfg.NBlocks {
		log.Warnf("fs: image geometry %d blocks overrides configured %d", sb.Size, cfg.NBlocks)
	}

	bio.Binit(d)
	jrnl.Init(d, sb)
	jrnl.Recover()
	inode.Init(sb)
	balloc.Init(sb)
	mounted = d

	log.WithField("fsid", sb.UUID()).Info("fs: mounted")
	return nil
}

// Unmount closes the image. Callers have already retired every
// process; nothing may touch the file system afterwards.
func Unmount() error {
	if mounted == nil {
		return common.EBADARG
	}
	d := mounted
	mounted = nil
	return d.Close()
}
