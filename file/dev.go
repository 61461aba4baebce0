package file

import (
	"sync"

	"pp3/common"
)

// DevSw is one entry in the device switch: the read/write handlers
// behind an inode of device type, keyed by major number.
type DevSw struct {
	Read  func(buf []byte) (int, error)
	Write func(buf []byte) (int, error)
}

var devsw struct {
	mu  sync.Mutex
	tbl [common.NDEV]*DevSw
}

// RegisterDev installs a driver for major. Registration happens at
// boot, before any open; re-registration replaces the handler.
func RegisterDev(major uint16, sw *DevSw) {
	devsw.mu.Lock()
	defer devsw.mu.Unlock()
	devsw.tbl[major] = sw
}

func getDev(major uint16) *DevSw {
	if major >= common.NDEV {
		return nil
	}
	devsw.mu.Lock()
	defer devsw.mu.Unlock()
	return devsw.tbl[major]
}
