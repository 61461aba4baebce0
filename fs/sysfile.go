package fs

import (
	"math"

	log "github.com/sirupsen/logrus"
	"pp3/common"
	"pp3/file"
	"pp3/inode"
	"pp3/jrnl"
	"pp3/proc"
)

// File-system syscalls. Mostly policy: path resolution and descriptor
// bookkeeping over the inode layer, every metadata mutation inside a
// BeginTransaction/EndTransaction bracket. The bracket and the inode
// locks are released on every path, errors included; deferred
// EndTransaction is what replaces the original's goto-cleanup tails.

// create resolves path's parent and makes the final component as typ.
// Re-creating an existing plain file as a plain file is idempotent and
// returns the existing inode; any other collision is EEXIST. The
// result is locked and referenced.
//
// Locking: the parent is released before the existing child is locked.
// A freshly allocated child is initialized with the parent still held,
// which cannot contend: no other path can reach the inode until it is
// linked.
func create(t *jrnl.TxnHandle, p *proc.Proc, path string, typ inode.IType, major, minor uint16) (*inode.Inode, error) {
	dp, name, err := inode.NameiParent(t, p.Cwd, path)
	if err != nil {
		return nil, err
	}
	if len(name) > common.DirSiz {
		dp.Put(t)
		return nil, common.EBADARG
	}

	dp.Lock()
	if ip, _ := inode.DirLookup(dp, name); ip != nil {
		dp.UnlockPut(t)
		ip.Lock()
		if typ == inode.TFile && ip.Type == inode.TFile {
			return ip, nil
		}
		ip.UnlockPut(t)
		return nil, common.EEXIST
	}

	ip := inode.Alloc(t, dp.Dev, typ)
	ip.Lock()
	ip.Major = major
	ip.Minor = minor
	ip.Nlink = 1
	ip.Update(t)

	if typ == inode.TDir {
		// The new directory's ".." is a link to the parent; its own
		// "." is deliberately not counted, so the self-reference can
		// never pin the directory.
		dp.Nlink++
		dp.Update(t)
		if err := inode.DirLink(t, ip, ".", ip.Inum); err != nil {
			log.Panicf("fs: create dots: %v", err)
		}
		if err := inode.DirLink(t, ip, "..", dp.Inum); err != nil {
			log.Panicf("fs: create dots: %v", err)
		}
	}

	// Link the name in last: an allocated-but-unlinked inode has no
	// recovery path, so a failure here is a halt.
	if err := inode.DirLink(t, dp, name, ip.Inum); err != nil {
		log.Panicf("fs: create %q: %v", name, err)
	}
	dp.UnlockPut(t)
	return ip, nil
}

// Open resolves (or with OCreate, creates) path and binds it to the
// smallest free descriptor. Directories open read-only.
func Open(p *proc.Proc, path string, omode int) (int, error) {
	t := jrnl.BeginTransaction()
	defer t.EndTransaction()

	var ip *inode.Inode
	var err error
	if omode&OCreate != 0 {
		ip, err = create(t, p, path, inode.TFile, 0, 0)
		if err != nil {
			return -1, err
		}
	} else {
		if ip, err = inode.Namei(t, p.Cwd, path); err != nil {
			return -1, err
		}
		ip.Lock()
		if ip.Type == inode.TDir && omode != ORdOnly {
			ip.UnlockPut(t)
			return -1, common.EISDIR
		}
	}

	if ip.Type == inode.TDev && ip.Major >= common.NDEV {
		ip.UnlockPut(t)
		return -1, common.EBADARG
	}
	if omode&OTrunc != 0 && ip.Type == inode.TFile {
		ip.Trunc(t)
	}

	f, err := file.Alloc()
	if err != nil {
		ip.UnlockPut(t)
		return -1, err
	}
	fd, err := p.FdAlloc(f)
	if err != nil {
		f.Close()
		ip.UnlockPut(t)
		return -1, err
	}

	if ip.Type == inode.TDev {
		f.Kind = file.KindDev
		f.Major = ip.Major
	} else {
		f.Kind = file.KindInode
	}
	f.Ip = ip
	f.Off = 0
	f.Readable = omode&OWrOnly == 0
	f.Writable = omode&OWrOnly != 0 || omode&ORdWr != 0
	ip.Unlock()
	return fd, nil
}

// Mkdir is create with type directory.
func Mkdir(p *proc.Proc, path string) error {
	t := jrnl.BeginTransaction()
	defer t.EndTransaction()

	ip, err := create(t, p, path, inode.TDir, 0, 0)
	if err != nil {
		return err
	}
	ip.UnlockPut(t)
	return nil
}

// Mknod is create with type device.
func Mknod(p *proc.Proc, path string, major, minor uint16) error {
	t := jrnl.BeginTransaction()
	defer t.EndTransaction()

	ip, err := create(t, p, path, inode.TDev, major, minor)
	if err != nil {
		return err
	}
	ip.UnlockPut(t)
	return nil
}

// Chdir moves the working directory. The old reference is dropped
// only once the new path has fully resolved to a directory, so a
// failed chdir leaves the process where it was.
func Chdir(p *proc.Proc, path string) error {
	t := jrnl.BeginTransaction()
	defer t.EndTransaction()

	ip, err := inode.Namei(t, p.Cwd, path)
	if err != nil {
		return err
	}
	ip.Lock()
	if ip.Type != inode.TDir {
		ip.UnlockPut(t)
		return common.ENOTDIR
	}
	ip.Unlock()
	p.Cwd.Put(t)
	p.Cwd = ip
	return nil
}

// Link makes newpath name the same inode as oldpath. Directories
// cannot be hard-linked: that would let link counts go cyclic.
func Link(p *proc.Proc, oldpath, newpath string) error {
	t := jrnl.BeginTransaction()
	defer t.EndTransaction()

	ip, err := inode.Namei(t, p.Cwd, oldpath)
	if err != nil {
		return err
	}
	ip.Lock()
	if ip.Type == inode.TDir {
		ip.UnlockPut(t)
		return common.EISDIR
	}
	if ip.Nlink == math.MaxUint16 {
		ip.UnlockPut(t)
		return common.EMLINK
	}
	ip.Nlink++
	ip.Update(t)
	ip.Unlock()

	// From here every failure must undo the count above.
	bad := func(err error) error {
		ip.Lock()
		ip.Nlink--
		ip.Update(t)
		ip.UnlockPut(t)
		return err
	}

	dp, name, err := inode.NameiParent(t, p.Cwd, newpath)
	if err != nil {
		return bad(err)
	}
	dp.Lock()
	if dp.Dev != ip.Dev {
		dp.UnlockPut(t)
		return bad(common.EXDEV)
	}
	if old, _ := inode.DirLookup(dp, name); old != nil {
		old.Put(t)
		dp.UnlockPut(t)
		return bad(common.EEXIST)
	}
	if err := inode.DirLink(t, dp, name, ip.Inum); err != nil {
		dp.UnlockPut(t)
		return bad(err)
	}
	dp.UnlockPut(t)
	ip.Put(t)
	return nil
}

// Unlink removes path's directory entry and drops the target's link
// count. Directories must be empty; "." and ".." are never removable.
func Unlink(p *proc.Proc, path string) error {
	t := jrnl.BeginTransaction()
	defer t.EndTransaction()

	dp, name, err := inode.NameiParent(t, p.Cwd, path)
	if err != nil {
		return err
	}
	dp.Lock()

	if name == "." || name == ".." {
		dp.UnlockPut(t)
		return common.EBADARG
	}

	ip, off := inode.DirLookup(dp, name)
	if ip == nil {
		dp.UnlockPut(t)
		return common.ENOENT
	}
	ip.Lock()

	if ip.Nlink < 1 {
		log.Panicf("fs: unlink: inode %d has link count %d", ip.Inum, ip.Nlink)
	}
	if ip.Type == inode.TDir && !inode.IsDirEmpty(ip) {
		ip.UnlockPut(t)
		dp.UnlockPut(t)
		return common.ENOTEMPTY
	}

	inode.DirUnlink(t, dp, off)
	if ip.Type == inode.TDir {
		// The child's ".." no longer references the parent.
		dp.Nlink--
		dp.Update(t)
	}
	dp.UnlockPut(t)

	ip.Nlink--
	ip.Update(t)
	ip.UnlockPut(t)
	return nil
}

// Dup binds fd's file to the smallest free descriptor as well.
func Dup(p *proc.Proc, fd int) (int, error) {
	f, err := p.FdLookup(fd)
	if err != nil {
		return -1, err
	}
	nfd, err := p.FdAlloc(f)
	if err != nil {
		return -1, err
	}
	f.Dup()
	return nfd, nil
}

// Read fills buf from fd's file at its current offset.
func Read(p *proc.Proc, fd int, buf []byte) (int, error) {
	f, err := p.FdLookup(fd)
	if err != nil {
		return -1, err
	}
	return f.Read(buf)
}

// Write puts buf to fd's file at its current offset.
func Write(p *proc.Proc, fd int, buf []byte) (int, error) {
	f, err := p.FdLookup(fd)
	if err != nil {
		return -1, err
	}
	return f.Write(buf)
}

// Close vacates the slot, then drops the file reference the slot
// owned.
func Close(p *proc.Proc, fd int) error {
	f, err := p.FdLookup(fd)
	if err != nil {
		return err
	}
	p.FdClear(fd)
	f.Close()
	return nil
}

// Fstat reports the metadata behind fd.
func Fstat(p *proc.Proc, fd int) (*inode.Stat, error) {
	f, err := p.FdLookup(fd)
	if err != nil {
		return nil, err
	}
	return f.Stat()
}

// Pipe allocates a connected read/write pair in two descriptors. If
// the second slot cannot be had, the first is vacated before either
// file object is closed, so no slot outlives its file.
func Pipe(p *proc.Proc) (int, int, error) {
	rf, wf, err := file.AllocPipe()
	if err != nil {
		return -1, -1, err
	}
	fd0, err := p.FdAlloc(rf)
	if err != nil {
		rf.Close()
		wf.Close()
		return -1, -1, err
	}
	fd1, err := p.FdAlloc(wf)
	if err != nil {
		p.FdClear(fd0)
		rf.Close()
		wf.Close()
		return -1, -1, err
	}
	return fd0, fd1, nil
}
