package fs

import (
	"bytes"
	"encoding/binary"
	"testing"

	"pp3/common"
	"pp3/proc"
)

// Tests the raw syscall surface:
//	-> Frame decoding, Sys* wrappers

// Partitions:
//	-> argStr
//		-> terminated string in user memory; unmapped pointer (=-1)
//	-> argPtr
//		-> buffer inside the image; straddling the end (=-1)
//	-> wrappers
//		-> open/write/read round trip through user memory
//		-> pipe fds delivered to user memory
//		-> failed call returns -1 with no side effects

// sysProc makes a process with a few pages to hold syscall arguments.
func sysProc(tt *testing.T) *proc.Proc {
	p := initUut(tt)
	p.Grow(4 * common.PageSize)
	return p
}

func putStr(tt *testing.T, p *proc.Proc, va uint32, s string) {
	if err := p.CopyOut(va, append([]byte(s), 0)); err != nil {
		tt.Fatalf("couldn't place %q: %v", s, err)
	}
}

// Covers:
//	-> argstr/terminated
//	-> wrappers/roundtrip
func TestSysReadWriteRoundTrip(tt *testing.T) {
	p := sysProc(tt)

	const pathVa, dataVa, readVa = 0, 100, 200
	putStr(tt, p, pathVa, "scratch")
	if err := p.CopyOut(dataVa, []byte("via registers")); err != nil {
		tt.Fatalf("couldn't stage data: %v", err)
	}

	fd := SysOpen(p, &Frame{Args: [6]uint32{pathVa, uint32(OCreate | ORdWr)}})
	if fd < 0 {
		tt.Fatalf("sys open failed")
	}
	if n := SysWrite(p, &Frame{Args: [6]uint32{uint32(fd), dataVa, 13}}); n != 13 {
		tt.Fatalf("sys write gave %d", n)
	}

	// Rewind by reopening.
	if rc := SysClose(p, &Frame{Args: [6]uint32{uint32(fd)}}); rc != 0 {
		tt.Fatalf("sys close gave %d", rc)
	}
	fd = SysOpen(p, &Frame{Args: [6]uint32{pathVa, uint32(ORdOnly)}})
	if fd < 0 {
		tt.Fatalf("sys reopen failed")
	}
	if n := SysRead(p, &Frame{Args: [6]uint32{uint32(fd), readVa, 13}}); n != 13 {
		tt.Fatalf("sys read gave %d", n)
	}

	got := make([]byte, 13)
	p.CopyIn(got, readVa)
	if !bytes.Equal(got, []byte("via registers")) {
		tt.Errorf("round trip delivered %q", got)
	}
	SysClose(p, &Frame{Args: [6]uint32{uint32(fd)}})
}

// Covers:
//	-> argstr/unmapped
//	-> argptr/straddling
//	-> wrappers/nosideeffects
func TestSysBadPointers(tt *testing.T) {
	p := sysProc(tt)

	// Path pointer past the image: no file may appear.
	if rc := SysOpen(p, &Frame{Args: [6]uint32{p.Sz + 4, uint32(OCreate | ORdWr)}}); rc != -1 {
		tt.Errorf("sys open with a wild pointer gave %d", rc)
	}

	putStr(tt, p, 0, "real")
	fd := SysOpen(p, &Frame{Args: [6]uint32{0, uint32(OCreate | ORdWr)}})
	if fd < 0 {
		tt.Fatalf("sys open failed")
	}

	// Buffer runs off the end of the image.
	if rc := SysWrite(p, &Frame{Args: [6]uint32{uint32(fd), p.Sz - 4, 64}}); rc != -1 {
		tt.Errorf("sys write off the image gave %d", rc)
	}
	st, err := Fstat(p, fd)
	if err != nil || st.Size != 0 {
		tt.Errorf("failed write still grew the file to %d", st.Size)
	}
	SysClose(p, &Frame{Args: [6]uint32{uint32(fd)}})
}

// Covers:
//	-> wrappers/pipefds
func TestSysPipe(tt *testing.T) {
	p := sysProc(tt)

	const fdsVa = 500
	if rc := SysPipe(p, &Frame{Args: [6]uint32{fdsVa}}); rc != 0 {
		tt.Fatalf("sys pipe gave %d", rc)
	}
	raw := make([]byte, 8)
	p.CopyIn(raw, fdsVa)
	fd0 := int32(binary.LittleEndian.Uint32(raw))
	fd1 := int32(binary.LittleEndian.Uint32(raw[4:]))

	writeString(tt, p, int(fd1), "wired")
	if got := readString(tt, p, int(fd0), 8); got != "wired" {
		tt.Errorf("pipe through the raw surface carried %q", got)
	}
	Close(p, int(fd0))
	Close(p, int(fd1))
}
