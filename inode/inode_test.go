package inode

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pp3/balloc"
	"pp3/bio"
	"pp3/common"
	"pp3/jrnl"
)

// Tests the inode api:
//	-> Iget, Root, Dup, Lock, Put, Alloc, Update
//	-> Readi, Writei, Trunc

// Partitions:
//	-> Alloc
//		-> type recorded; distinct inums
//	-> Readi
//		-> offset 0; offset mid-file; off end (clipped); count > len
//	-> Writei
//		-> append at size; offset mid-file; offset > size (=FAIL)
//		-> within direct blocks; spilling into the indirect block
//	-> Trunc
//		-> size back to zero, blocks reclaimable
//	-> Put
//		-> nlink 0 on last ref frees the inode

func initUut(tt *testing.T) {
	path := filepath.Join(tt.TempDir(), "disk.img")
	cfg := &common.Config{NBlocks: 256, NInodes: 32, LogBlocks: 3 * common.MaxOpBlocks}
	d, err := bio.OpenDisk(path, cfg.NBlocks)
	if err != nil {
		tt.Fatalf("couldn't open disk: %v", err)
	}
	tt.Cleanup(func() { d.Close() })

	sb := Mkfs(d, cfg)
	bio.Binit(d)
	jrnl.Init(d, sb)
	Init(sb)
	balloc.Init(sb)
}

func allocFile(tt *testing.T) *Inode {
	t := jrnl.BeginTransaction()
	defer t.EndTransaction()
	ip := Alloc(t, common.RootDev, TFile)
	ip.Lock()
	ip.Nlink = 1
	ip.Update(t)
	ip.Unlock()
	return ip
}

func writeAt(tt *testing.T, ip *Inode, data string, off uint32) {
	t := jrnl.BeginTransaction()
	defer t.EndTransaction()
	ip.Lock()
	defer ip.Unlock()
	n, err := ip.Writei(t, []byte(data), off)
	if err != nil {
		tt.Fatalf("write at %d failed: %v", off, err)
	}
	if n != len(data) {
		tt.Fatalf("wrote %d of %d bytes at %d", n, len(data), off)
	}
}

func release(ip *Inode) {
	t := jrnl.BeginTransaction()
	ip.Lock()
	ip.Nlink = 0
	ip.UnlockPut(t)
	t.EndTransaction()
}

// Covers:
//	-> alloc/type
//	-> alloc/distinct
func TestAllocDistinct(tt *testing.T) {
	initUut(tt)

	i1 := allocFile(tt)
	i2 := allocFile(tt)
	if i1.Inum == i2.Inum {
		tt.Errorf("allocated inum %d twice", i1.Inum)
	}

	i1.Lock()
	if i1.Type != TFile {
		tt.Errorf("alloc didn't record the type, got %v", i1.Type)
	}
	i1.Unlock()

	release(i1)
	release(i2)
}

// Covers:
//	-> writei/append
//	-> readi/offset0
//	-> readi/countbig
func TestBasicReadWrite(tt *testing.T) {
	initUut(tt)
	ip := allocFile(tt)

	writeAt(tt, ip, "hello there", 0)

	ip.Lock()
	buf := make([]byte, 100)
	n := ip.Readi(buf, 0)
	ip.Unlock()
	if string(buf[:n]) != "hello there" {
		tt.Errorf("read back %q", buf[:n])
	}

	release(ip)
}

// Covers:
//	-> writei/midfile
//	-> readi/midfile
//	-> readi/offend
func TestOffsets(tt *testing.T) {
	initUut(tt)
	ip := allocFile(tt)

	writeAt(tt, ip, "aaaaaaaaaa", 0)
	writeAt(tt, ip, "bbb", 3)

	ip.Lock()
	buf := make([]byte, 7)
	n := ip.Readi(buf, 2)
	if string(buf[:n]) != "abbbaaa" {
		tt.Errorf("mid-file read got %q", buf[:n])
	}

	n = ip.Readi(buf, 50)
	if n != 0 {
		tt.Errorf("read %d bytes past the end", n)
	}
	ip.Unlock()

	release(ip)
}

// Covers:
//	-> writei/pastsize
func TestWritePastEndFails(tt *testing.T) {
	initUut(tt)
	ip := allocFile(tt)

	t := jrnl.BeginTransaction()
	ip.Lock()
	if _, err := ip.Writei(t, []byte("hole"), 500); err == nil {
		tt.Errorf("wrote past the end of a 0-byte file")
	}
	ip.Unlock()
	t.EndTransaction()

	release(ip)
}

// Covers:
//	-> writei/indirect
//
// Thirteen pages lands past NDirect, so the last page travels through
// the indirect block.
func TestIndirectBlocks(tt *testing.T) {
	initUut(tt)
	ip := allocFile(tt)

	page := bytes.Repeat([]byte("x"), common.BlockSize)
	for pg := uint32(0); pg < NDirect+1; pg++ {
		writeAt(tt, ip, string(page), pg*common.BlockSize)
	}
	writeAt(tt, ip, "indirect", uint32(NDirect)*common.BlockSize)

	ip.Lock()
	buf := make([]byte, 8)
	n := ip.Readi(buf, uint32(NDirect)*common.BlockSize)
	ip.Unlock()
	if string(buf[:n]) != "indirect" {
		tt.Errorf("indirect read got %q", buf[:n])
	}

	release(ip)
}

// Covers:
//	-> trunc/zero
func TestTrunc(tt *testing.T) {
	initUut(tt)
	ip := allocFile(tt)
	writeAt(tt, ip, "doomed", 0)

	t := jrnl.BeginTransaction()
	ip.Lock()
	ip.Trunc(t)
	if ip.Size != 0 {
		tt.Errorf("size %d after trunc", ip.Size)
	}
	buf := make([]byte, 6)
	if n := ip.Readi(buf, 0); n != 0 {
		tt.Errorf("read %d bytes from a truncated file", n)
	}
	ip.Unlock()
	t.EndTransaction()

	release(ip)
}

// Covers:
//	-> put/free
//
// After the last reference to an unlinked inode goes away, the slot is
// reusable: a fresh Alloc hands the same inum back.
func TestPutFreesUnlinked(tt *testing.T) {
	initUut(tt)

	ip := allocFile(tt)
	inum := ip.Inum
	release(ip)

	ip2 := allocFile(tt)
	if ip2.Inum != inum {
		tt.Errorf("freed inum %d not reused, got %d", inum, ip2.Inum)
	}
	release(ip2)
}

// Root is a directory with the self and parent entries in place.
func TestRoot(tt *testing.T) {
	initUut(tt)

	root := Root()
	root.Lock()
	if root.Type != TDir {
		tt.Errorf("root isn't a directory")
	}
	want := []DirEnt{{Inum: common.RootInum, Name: "."}, {Inum: common.RootInum, Name: ".."}}
	if got := ReadDir(root); !cmp.Equal(want, got) {
		tt.Errorf("root entries %v, wanted %v", got, want)
	}
	root.Unlock()

	t := jrnl.BeginTransaction()
	root.Put(t)
	t.EndTransaction()
}
