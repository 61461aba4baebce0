package fs

import (
	"pp3/common"
	"pp3/file"
	"pp3/proc"
)

// Raw syscall surface. A Frame carries the register words a trap
// would; the argument helpers decode them against the calling
// process's user memory, and the Sys* wrappers translate the typed
// API above into the int-or-minus-one convention. Argument decoding
// happens up front, before any side effect, so a bad pointer never
// leaves half a syscall behind.

// Frame holds the argument words of one syscall.
type Frame struct {
	Args [6]uint32
}

func argInt(fr *Frame, n int) (int, error) {
	if n < 0 || n >= len(fr.Args) {
		return 0, common.EBADARG
	}
	return int(int32(fr.Args[n])), nil
}

// argPtr decodes argument n as a user address for sz bytes and checks
// it lies within the process image.
func argPtr(p *proc.Proc, fr *Frame, n, sz int) (uint32, error) {
	i, err := argInt(fr, n)
	if err != nil {
		return 0, err
	}
	va := uint32(i)
	if sz < 0 || uint64(va)+uint64(sz) > uint64(p.Sz) {
		return 0, common.EBADARG
	}
	return va, nil
}

// argStr decodes argument n as a pointer to a NUL-terminated string.
func argStr(p *proc.Proc, fr *Frame, n int) (string, error) {
	i, err := argInt(fr, n)
	if err != nil {
		return "", err
	}
	return p.FetchStr(uint32(i))
}

// argFd decodes argument n as a descriptor and resolves its file.
func argFd(p *proc.Proc, fr *Frame, n int) (int, *file.File, error) {
	fd, err := argInt(fr, n)
	if err != nil {
		return -1, nil, err
	}
	f, err := p.FdLookup(fd)
	if err != nil {
		return -1, nil, err
	}
	return fd, f, nil
}

// SysOpen: open(path, omode) -> fd.
func SysOpen(p *proc.Proc, fr *Frame) int {
	path, err := argStr(p, fr, 0)
	if err != nil {
		return -1
	}
	omode, err := argInt(fr, 1)
	if err != nil {
		return -1
	}
	fd, err := Open(p, path, omode)
	if err != nil {
		return -1
	}
	return fd
}

// SysClose: close(fd).
func SysClose(p *proc.Proc, fr *Frame) int {
	fd, _, err := argFd(p, fr, 0)
	if err != nil {
		return -1
	}
	if Close(p, fd) != nil {
		return -1
	}
	return 0
}

// SysDup: dup(fd) -> fd.
func SysDup(p *proc.Proc, fr *Frame) int {
	fd, _, err := argFd(p, fr, 0)
	if err != nil {
		return -1
	}
	nfd, err := Dup(p, fd)
	if err != nil {
		return -1
	}
	return nfd
}

// SysRead: read(fd, buf, n) -> count.
func SysRead(p *proc.Proc, fr *Frame) int {
	fd, _, err := argFd(p, fr, 0)
	if err != nil {
		return -1
	}
	n, err := argInt(fr, 2)
	if err != nil {
		return -1
	}
	va, err := argPtr(p, fr, 1, n)
	if err != nil {
		return -1
	}
	buf := make([]byte, n)
	got, err := Read(p, fd, buf)
	if err != nil {
		return -1
	}
	if err := p.CopyOut(va, buf[:got]); err != nil {
		return -1
	}
	return got
}

// SysWrite: write(fd, buf, n) -> count.
func SysWrite(p *proc.Proc, fr *Frame) int {
	fd, _, err := argFd(p, fr, 0)
	if err != nil {
		return -1
	}
	n, err := argInt(fr, 2)
	if err != nil {
		return -1
	}
	va, err := argPtr(p, fr, 1, n)
	if err != nil {
		return -1
	}
	buf := make([]byte, n)
	if err := p.CopyIn(buf, va); err != nil {
		return -1
	}
	got, err := Write(p, fd, buf)
	if err != nil {
		return -1
	}
	return got
}

// SysFstat: fstat(fd, st).
func SysFstat(p *proc.Proc, fr *Frame) int {
	fd, _, err := argFd(p, fr, 0)
	if err != nil {
		return -1
	}
	st, err := Fstat(p, fd)
	if err != nil {
		return -1
	}
	enc := st.Encode()
	va, err := argPtr(p, fr, 1, len(enc))
	if err != nil {
		return -1
	}
	if p.CopyOut(va, enc) != nil {
		return -1
	}
	return 0
}

// SysLink: link(old, new).
func SysLink(p *proc.Proc, fr *Frame) int {
	oldpath, err := argStr(p, fr, 0)
	if err != nil {
		return -1
	}
	newpath, err := argStr(p, fr, 1)
	if err != nil {
		return -1
	}
	if Link(p, oldpath, newpath) != nil {
		return -1
	}
	return 0
}

// SysUnlink: unlink(path).
func SysUnlink(p *proc.Proc, fr *Frame) int {
	path, err := argStr(p, fr, 0)
	if err != nil {
		return -1
	}
	if Unlink(p, path) != nil {
		return -1
	}
	return 0
}

// SysMkdir: mkdir(path).
func SysMkdir(p *proc.Proc, fr *Frame) int {
	path, err := argStr(p, fr, 0)
	if err != nil {
		return -1
	}
	if Mkdir(p, path) != nil {
		return -1
	}
	return 0
}

// SysMknod: mknod(path, major, minor).
func SysMknod(p *proc.Proc, fr *Frame) int {
	path, err := argStr(p, fr, 0)
	if err != nil {
		return -1
	}
	major, err := argInt(fr, 1)
	if err != nil {
		return -1
	}
	minor, err := argInt(fr, 2)
	if err != nil {
		return -1
	}
	if major < 0 || major > 0xffff || minor < 0 || minor > 0xffff {
		return -1
	}
	if Mknod(p, path, uint16(major), uint16(minor)) != nil {
		return -1
	}
	return 0
}

// SysChdir: chdir(path).
func SysChdir(p *proc.Proc, fr *Frame) int {
	path, err := argStr(p, fr, 0)
	if err != nil {
		return -1
	}
	if Chdir(p, path) != nil {
		return -1
	}
	return 0
}

// SysPipe: pipe(fds) writes both descriptors into user memory.
func SysPipe(p *proc.Proc, fr *Frame) int {
	va, err := argPtr(p, fr, 0, 8)
	if err != nil {
		return -1
	}
	fd0, fd1, err := Pipe(p)
	if err != nil {
		return -1
	}
	var enc [8]byte
	enc[0] = byte(fd0)
	enc[1] = byte(fd0 >> 8)
	enc[2] = byte(fd0 >> 16)
	enc[3] = byte(fd0 >> 24)
	enc[4] = byte(fd1)
	enc[5] = byte(fd1 >> 8)
	enc[6] = byte(fd1 >> 16)
	enc[7] = byte(fd1 >> 24)
	if p.CopyOut(va, enc[:]) != nil {
		// The descriptors are live; a caller that cannot even hold
		// the result keeps them until exit.
		return -1
	}
	return 0
}
