package proc

import (
	"bytes"
	"encoding/binary"

	log "github.com/sirupsen/logrus"
)

// Saved execution state, in the classic x86 shapes. Both are written
// to checkpoint files verbatim as little-endian records, so field
// order is load-bearing.

// Context is the kernel-side saved state of a descheduled process:
// the callee-saved registers plus the return address.
type Context struct {
	Edi uint32
	Esi uint32
	Ebx uint32
	Ebp uint32
	Eip uint32
}

// TrapFrame is the user-side state captured at kernel entry.
type TrapFrame struct {
	Edi    uint32
	Esi    uint32
	Ebp    uint32
	OEsp   uint32
	Ebx    uint32
	Edx    uint32
	Ecx    uint32
	Eax    uint32
	Gs     uint16
	Pad1   uint16
	Fs     uint16
	Pad2   uint16
	Es     uint16
	Pad3   uint16
	Ds     uint16
	Pad4   uint16
	Trapno uint32
	Err    uint32
	Eip    uint32
	Cs     uint16
	Pad5   uint16
	Eflags uint32
	Esp    uint32
	Ss     uint16
	Pad6   uint16
}

var (
	ContextSize   = binary.Size(Context{})
	TrapFrameSize = binary.Size(TrapFrame{})
)

func (c *Context) Encode() []byte {
	return encodeRecord(c)
}

func (tf *TrapFrame) Encode() []byte {
	return encodeRecord(tf)
}

// DecodeContext rebuilds a context from its on-disk record. A record
// of the wrong size means the checkpoint set is corrupt, which is a
// halt, not an error.
func DecodeContext(buf []byte) *Context {
	if len(buf) != ContextSize {
		log.Panicf("proc: context record is %d bytes, want %d", len(buf), ContextSize)
	}
	c := new(Context)
	decodeRecord(buf, c)
	return c
}

func DecodeTrapFrame(buf []byte) *TrapFrame {
	if len(buf) != TrapFrameSize {
		log.Panicf("proc: trapframe record is %d bytes, want %d", len(buf), TrapFrameSize)
	}
	tf := new(TrapFrame)
	decodeRecord(buf, tf)
	return tf
}

func encodeRecord(v any) []byte {
	w := new(bytes.Buffer)
	if err := binary.Write(w, binary.LittleEndian, v); err != nil {
		log.Panicf("proc: encode record: %v", err)
	}
	return w.Bytes()
}

func decodeRecord(buf []byte, v any) {
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, v); err != nil {
		log.Panicf("proc: decode record: %v", err)
	}
}
