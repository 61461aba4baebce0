package bio

import (
	"sync"

	"github.com/google/btree"
	log "github.com/sirupsen/logrus"
	"pp3/common"
)

// Buffer cache. Bget hands out a locked view of a cached block; the
// caller mutates Data in place and Brelse makes it visible to the next
// Bget. Nothing here touches the disk on writes: durability is the
// journal's job, via Bpeek (log copy) and Bpush (home install). Pinned
// buffers are the ones a transaction has logged but not yet installed,
// so they are never evicted.

const maxCached = 256

type buf struct {
	nr    uint32
	data  []byte
	valid bool

	mu     sync.Mutex // held from Bget to Brelse
	refcnt uint       // guarded by cache.mu
}

// A Block is a locked window onto one cached disk block. Data aliases
// the cache frame, so mutations stick at Brelse.
type Block struct {
	Nr   uint32
	Data []byte
	b    *buf
}

var cache struct {
	mu   sync.Mutex
	tree *btree.BTreeG[*buf]
	dsk  *Disk
}

func Binit(d *Disk) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.dsk = d
	cache.tree = btree.NewG(8, func(a, b *buf) bool { return a.nr < b.nr })
}

func lookup(nr uint32) *buf {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	b, ok := cache.tree.Get(&buf{nr: nr})
	if !ok {
		evict()
		b = &buf{nr: nr, data: make([]byte, common.BlockSize)}
		cache.tree.ReplaceOrInsert(b)
	}
	b.refcnt++
	return b
}

// evict drops one idle buffer when the cache is full. Caller holds
// cache.mu.
func evict() {
	if cache.tree.Len() < maxCached {
		return
	}
	var victim *buf
	cache.tree.Ascend(func(b *buf) bool {
		if b.refcnt == 0 {
			victim = b
			return false
		}
		return true
	})
	if victim != nil {
		cache.tree.Delete(victim)
	}
}

// Bget acquires the block lock for nr and returns its cached contents,
// reading from disk on first touch.
func Bget(nr uint32) *Block {
	b := lookup(nr)
	b.mu.Lock()
	if !b.valid {
		if err := cache.dsk.Read(nr, b.data); err != nil {
			log.Panicf("bio: read block %d: %v", nr, err)
		}
		b.valid = true
	}
	return &Block{Nr: nr, Data: b.data, b: b}
}

// Brelse drops the block lock and the cache reference.
func (blk *Block) Brelse() {
	blk.b.mu.Unlock()
	cache.mu.Lock()
	blk.b.refcnt--
	cache.mu.Unlock()
}

// Pin takes an extra cache reference so the buffer survives until the
// journal installs it. Paired with Bunpin.
func (blk *Block) Pin() {
	cache.mu.Lock()
	blk.b.refcnt++
	cache.mu.Unlock()
}

func Bunpin(nr uint32) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	b, ok := cache.tree.Get(&buf{nr: nr})
	if !ok {
		log.Panicf("bio: unpin of uncached block %d", nr)
	}
	b.refcnt--
}

// Bpeek returns a copy of the cached contents of nr. Journal use only.
func Bpeek(nr uint32) []byte {
	b := lookup(nr)
	b.mu.Lock()
	if !b.valid {
		log.Panicf("bio: peek at invalid block %d", nr)
	}
	out := make([]byte, common.BlockSize)
	copy(out, b.data)
	b.mu.Unlock()
	cache.mu.Lock()
	b.refcnt--
	cache.mu.Unlock()
	return out
}

// Bpush writes the cached contents of nr through to its home location.
// Journal use only; everyone else goes through a transaction.
func Bpush(nr uint32) error {
	b := lookup(nr)
	b.mu.Lock()
	err := cache.dsk.Write(nr, b.data)
	b.mu.Unlock()
	cache.mu.Lock()
	b.refcnt--
	cache.mu.Unlock()
	return err
}
