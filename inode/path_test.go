package inode

import (
	"testing"

	"pp3/common"
	"pp3/jrnl"
)

// Tests path resolution:
//	-> Namei, NameiParent

// Partitions:
//	-> Namei
//		-> "/"; "."; absolute nested; relative nested
//		-> through a non-directory (=FAIL); missing component (=FAIL)
//	-> NameiParent
//		-> final name returned; parent of a nested leaf
//		-> "/" has no final component (=FAIL)

// buildTree hangs /sub/leaf off the root and returns the pieces.
func buildTree(tt *testing.T) (sub, leaf *Inode) {
	root := Root()
	sub = allocDir(tt, root)
	leaf = allocFile(tt)

	t := jrnl.BeginTransaction()
	root.Lock()
	if err := DirLink(t, root, "sub", sub.Inum); err != nil {
		tt.Fatalf("couldn't link sub: %v", err)
	}
	root.Unlock()

	sub.Lock()
	if err := DirLink(t, sub, "leaf", leaf.Inum); err != nil {
		tt.Fatalf("couldn't link leaf: %v", err)
	}
	sub.Unlock()
	root.Put(t)
	t.EndTransaction()
	return sub, leaf
}

// Covers:
//	-> namei/root
//	-> namei/dot
func TestNameiRootAndDot(tt *testing.T) {
	initUut(tt)

	t := jrnl.BeginTransaction()
	ip, err := Namei(t, nil, "/")
	if err != nil {
		tt.Fatalf("couldn't resolve /: %v", err)
	}
	if ip.Inum != common.RootInum {
		tt.Errorf("/ resolved to inum %d", ip.Inum)
	}

	same, err := Namei(t, ip, ".")
	if err != nil {
		tt.Fatalf("couldn't resolve .: %v", err)
	}
	if same.Inum != ip.Inum {
		tt.Errorf(". left the directory")
	}
	same.Put(t)
	ip.Put(t)
	t.EndTransaction()
}

// Covers:
//	-> namei/absnested
//	-> namei/relnested
func TestNameiNested(tt *testing.T) {
	initUut(tt)
	sub, leaf := buildTree(tt)

	t := jrnl.BeginTransaction()
	ip, err := Namei(t, nil, "/sub/leaf")
	if err != nil {
		tt.Fatalf("absolute walk failed: %v", err)
	}
	if ip.Inum != leaf.Inum {
		tt.Errorf("absolute walk found inum %d, wanted %d", ip.Inum, leaf.Inum)
	}
	ip.Put(t)

	ip, err = Namei(t, sub, "leaf")
	if err != nil {
		tt.Fatalf("relative walk failed: %v", err)
	}
	if ip.Inum != leaf.Inum {
		tt.Errorf("relative walk found inum %d, wanted %d", ip.Inum, leaf.Inum)
	}
	ip.Put(t)

	// Extra slashes collapse.
	ip, err = Namei(t, nil, "//sub///leaf")
	if err != nil {
		tt.Fatalf("slash-heavy walk failed: %v", err)
	}
	ip.Put(t)
	t.EndTransaction()
}

// Covers:
//	-> namei/notdir
//	-> namei/missing
func TestNameiFailures(tt *testing.T) {
	initUut(tt)
	buildTree(tt)

	t := jrnl.BeginTransaction()
	if _, err := Namei(t, nil, "/sub/leaf/deeper"); err != common.ENOTDIR {
		tt.Errorf("walk through a file gave %v", err)
	}
	if _, err := Namei(t, nil, "/sub/ghost"); err != common.ENOENT {
		tt.Errorf("walk to a missing name gave %v", err)
	}
	t.EndTransaction()
}

// Covers:
//	-> nameiparent/name
//	-> nameiparent/nested
//	-> nameiparent/rootonly
func TestNameiParent(tt *testing.T) {
	initUut(tt)
	sub, _ := buildTree(tt)

	t := jrnl.BeginTransaction()
	dp, name, err := NameiParent(t, nil, "/sub/leaf")
	if err != nil {
		tt.Fatalf("parent walk failed: %v", err)
	}
	if dp.Inum != sub.Inum || name != "leaf" {
		tt.Errorf("parent walk gave inum %d name %q", dp.Inum, name)
	}
	dp.Put(t)

	// The final component needn't exist; only the path to it must.
	dp, name, err = NameiParent(t, nil, "/sub/newfile")
	if err != nil {
		tt.Fatalf("parent walk to a fresh name failed: %v", err)
	}
	if name != "newfile" {
		tt.Errorf("fresh-name walk gave name %q", name)
	}
	dp.Put(t)

	if _, _, err := NameiParent(t, nil, "/"); err == nil {
		tt.Errorf("/ has no final component to hand back")
	}
	t.EndTransaction()
}
