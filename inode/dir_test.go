package inode

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pp3/common"
	"pp3/jrnl"
)

// Tests the directory api:
//	-> DirLookup, DirLink, DirUnlink, IsDirEmpty, ReadDir

// Partitions:
//	-> DirLink
//		-> fresh name; empty name (=FAIL); overlong name (=FAIL)
//		-> freed slot reused before the directory grows
//	-> DirLookup
//		-> present; absent
//	-> DirUnlink
//		-> entry gone, lookup misses
//	-> IsDirEmpty
//		-> only . and ..; with a child

// allocDir builds a directory with the two standard entries, the way
// the create path does.
func allocDir(tt *testing.T, parent *Inode) *Inode {
	t := jrnl.BeginTransaction()
	defer t.EndTransaction()
	dp := Alloc(t, common.RootDev, TDir)
	dp.Lock()
	defer dp.Unlock()
	dp.Nlink = 1
	dp.Update(t)
	if err := DirLink(t, dp, ".", dp.Inum); err != nil {
		tt.Fatalf("couldn't link .: %v", err)
	}
	if err := DirLink(t, dp, "..", parent.Inum); err != nil {
		tt.Fatalf("couldn't link ..: %v", err)
	}
	return dp
}

// Covers:
//	-> dirlink/fresh
//	-> dirlookup/present
//	-> dirlookup/absent
func TestLinkAndLookup(tt *testing.T) {
	initUut(tt)
	root := Root()
	dp := allocDir(tt, root)
	ip := allocFile(tt)

	t := jrnl.BeginTransaction()
	dp.Lock()
	if err := DirLink(t, dp, "readme", ip.Inum); err != nil {
		tt.Fatalf("couldn't link readme: %v", err)
	}

	got, _ := DirLookup(dp, "readme")
	if got == nil || got.Inum != ip.Inum {
		tt.Errorf("lookup of a linked name missed")
	}
	if got != nil {
		got.Put(t)
	}

	if miss, _ := DirLookup(dp, "absent"); miss != nil {
		tt.Errorf("lookup invented an entry")
		miss.Put(t)
	}
	dp.Unlock()
	t.EndTransaction()
}

// Covers:
//	-> dirlink/emptyname
//	-> dirlink/longname
func TestLinkBadNames(tt *testing.T) {
	initUut(tt)
	root := Root()
	dp := allocDir(tt, root)

	t := jrnl.BeginTransaction()
	dp.Lock()
	if err := DirLink(t, dp, "", 7); err == nil {
		tt.Errorf("linked an empty name")
	}
	if err := DirLink(t, dp, strings.Repeat("n", common.DirSiz+1), 7); err == nil {
		tt.Errorf("linked an overlong name")
	}
	dp.Unlock()
	t.EndTransaction()
}

// Covers:
//	-> dirunlink/gone
//	-> dirlink/slotreuse
//	-> isdirempty/both
func TestUnlinkFreesSlot(tt *testing.T) {
	initUut(tt)
	root := Root()
	dp := allocDir(tt, root)
	ip := allocFile(tt)

	t := jrnl.BeginTransaction()
	dp.Lock()
	if err := DirLink(t, dp, "victim", ip.Inum); err != nil {
		tt.Fatalf("couldn't link victim: %v", err)
	}
	if IsDirEmpty(dp) {
		tt.Errorf("directory with a child reported empty")
	}

	child, off := DirLookup(dp, "victim")
	if child == nil {
		tt.Fatalf("lookup of victim missed")
	}
	child.Put(t)

	sizeBefore := dp.Size
	DirUnlink(t, dp, off)
	if miss, _ := DirLookup(dp, "victim"); miss != nil {
		tt.Errorf("unlinked name still resolves")
		miss.Put(t)
	}
	if !IsDirEmpty(dp) {
		tt.Errorf("directory not empty after unlink")
	}

	// The freed slot is taken before the directory grows.
	if err := DirLink(t, dp, "replacement", ip.Inum); err != nil {
		tt.Fatalf("couldn't relink: %v", err)
	}
	if dp.Size != sizeBefore {
		tt.Errorf("directory grew from %d to %d instead of reusing the slot",
			sizeBefore, dp.Size)
	}
	dp.Unlock()
	t.EndTransaction()
}

// Covers:
//	-> readdir
func TestReadDirSkipsFree(tt *testing.T) {
	initUut(tt)
	root := Root()
	dp := allocDir(tt, root)
	ip := allocFile(tt)

	t := jrnl.BeginTransaction()
	dp.Lock()
	for _, name := range []string{"a", "b", "c"} {
		if err := DirLink(t, dp, name, ip.Inum); err != nil {
			tt.Fatalf("couldn't link %s: %v", name, err)
		}
	}
	b, off := DirLookup(dp, "b")
	b.Put(t)
	DirUnlink(t, dp, off)

	var names []string
	for _, de := range ReadDir(dp) {
		names = append(names, de.Name)
	}
	want := []string{".", "..", "a", "c"}
	if !cmp.Equal(want, names) {
		tt.Errorf("readdir got %v, wanted %v", names, want)
	}
	dp.Unlock()
	t.EndTransaction()
}
