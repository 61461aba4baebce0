package bio

import (
	"bytes"
	"encoding/binary"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const Magic = 0x70703346 // "pp3F"

const SbBlock = 0

// Superblock describes the disk layout. FSID is stamped once at mkfs
// so log lines and lock files can be tied back to one image.
type Superblock struct {
	Magic      uint32
	FSID       [16]byte
	Size       uint32 // total blocks in the image
	LogStart   uint32 // journal header block
	LogLen     uint32 // journal capacity, header included
	InodeStart uint32
	NInodes    uint32
	BmapStart  uint32
	DataStart  uint32
}

func (sb *Superblock) UUID() uuid.UUID {
	return uuid.UUID(sb.FSID)
}

func (sb *Superblock) Encode(buf []byte) {
	w := new(bytes.Buffer)
	if err := binary.Write(w, binary.LittleEndian, sb); err != nil {
		log.Panicf("bio: encode superblock: %v", err)
	}
	copy(buf, w.Bytes())
}

func DecodeSuperblock(buf []byte) *Superblock {
	sb := new(Superblock)
	r := bytes.NewReader(buf)
	if err := binary.Read(r, binary.LittleEndian, sb); err != nil {
		log.Panicf("bio: decode superblock: %v", err)
	}
	return sb
}
