package jrnl

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"pp3/bio"
	"pp3/common"
)

// Write-ahead journal for metadata updates. Every mutating syscall
// brackets its block writes in BeginTransaction/EndTransaction; the
// bracket guarantees the whole batch reaches the disk or none of it
// does. Transactions running at the same time share one commit: the
// last one out writes the log.
//
// Admission is a weighted semaphore sized to the log. A transaction
// reserves its worst case (MaxOpBlocks) up front, so the combined
// writes of every admitted transaction always fit and EndTransaction
// never finds the log full. BeginTransaction may therefore block; it
// is the single suspension point shared by all metadata mutators.

var st struct {
	mu          sync.Mutex
	sem         *semaphore.Weighted
	dsk         *bio.Disk
	start       uint32 // header block
	outstanding int
	pending     []uint32 // absorbed home block numbers, pinned in cache
}

type TxnHandle struct {
	writes int
}

func Init(d *bio.Disk, sb *bio.Superblock) {
	if sb.LogLen-1 < common.MaxOpBlocks {
		log.Panicf("jrnl: log of %d blocks cannot fit one transaction", sb.LogLen)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.dsk = d
	st.start = sb.LogStart
	st.sem = semaphore.NewWeighted(int64(sb.LogLen - 1))
	st.outstanding = 0
	st.pending = nil
}

// BeginTransaction reserves log space, blocking until enough is free.
func BeginTransaction() *TxnHandle {
	if err := st.sem.Acquire(context.Background(), common.MaxOpBlocks); err != nil {
		log.Panicf("jrnl: admission: %v", err)
	}
	st.mu.Lock()
	st.outstanding++
	st.mu.Unlock()
	log.Debug("jrnl: began transaction")
	return &TxnHandle{}
}

// WriteBlock records blk as part of the transaction. The caller still
// holds the block lock and has already mutated blk.Data; the cached
// copy becomes the log's source at commit. Writes of the same block
// within one commit window are absorbed.
func (t *TxnHandle) WriteBlock(blk *bio.Block) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, nr := range st.pending {
		if nr == blk.Nr {
			// Absorbed into an already-logged slot; costs nothing.
			return nil
		}
	}
	if t.writes >= common.MaxOpBlocks {
		return errors.New("too many blocks written in one transaction")
	}
	t.writes++
	st.pending = append(st.pending, blk.Nr)
	blk.Pin()
	return nil
}

// EndTransaction closes the bracket. The last transaction out commits
// the batch; the call blocks until the batch is durable. Exactly one
// EndTransaction per BeginTransaction, on every exit path.
func (t *TxnHandle) EndTransaction() {
	st.mu.Lock()
	st.outstanding--
	if st.outstanding < 0 {
		log.Panic("jrnl: unbalanced EndTransaction")
	}
	if st.outstanding == 0 && len(st.pending) > 0 {
		commit()
	}
	st.mu.Unlock()
	st.sem.Release(common.MaxOpBlocks)
	log.Debug("jrnl: ended transaction")
}

// commit runs with st.mu held, which keeps new transactions from
// starting until the log is durable and reset.
func commit() {
	// Copy every absorbed block into the log area.
	for i, nr := range st.pending {
		if err := st.dsk.Write(st.start+1+uint32(i), bio.Bpeek(nr)); err != nil {
			log.Panicf("jrnl: write log block: %v", err)
		}
	}

	// Header write is the commit point.
	writeHead(st.pending)

	// Install to home locations, then erase the commit record.
	for _, nr := range st.pending {
		if err := bio.Bpush(nr); err != nil {
			log.Panicf("jrnl: install block %d: %v", nr, err)
		}
	}
	writeHead(nil)

	for _, nr := range st.pending {
		bio.Bunpin(nr)
	}
	log.Debugf("jrnl: committed %d blocks", len(st.pending))
	st.pending = nil
}

func writeHead(nrs []uint32) {
	buf := make([]byte, common.BlockSize)
	w := new(bytes.Buffer)
	binary.Write(w, binary.LittleEndian, uint32(len(nrs)))
	for _, nr := range nrs {
		binary.Write(w, binary.LittleEndian, nr)
	}
	copy(buf, w.Bytes())
	if err := st.dsk.Write(st.start, buf); err != nil {
		log.Panicf("jrnl: write log head: %v", err)
	}
}

// Recover replays a committed but uninstalled log at mount. Called
// before the first transaction, with the cache cold.
func Recover() {
	buf := make([]byte, common.BlockSize)
	if err := st.dsk.Read(st.start, buf); err != nil {
		log.Panicf("jrnl: read log head: %v", err)
	}
	n := binary.LittleEndian.Uint32(buf)
	if n == 0 {
		return
	}

	data := make([]byte, common.BlockSize)
	for i := uint32(0); i < n; i++ {
		nr := binary.LittleEndian.Uint32(buf[4+4*i:])
		if err := st.dsk.Read(st.start+1+i, data); err != nil {
			log.Panicf("jrnl: read log block: %v", err)
		}
		if err := st.dsk.Write(nr, data); err != nil {
			log.Panicf("jrnl: replay block %d: %v", nr, err)
		}
	}
	writeHead(nil)
	log.Infof("jrnl: replayed %d committed blocks", n)
}
