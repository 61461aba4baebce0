package inode

import (
	"strings"

	"pp3/common"
	"pp3/jrnl"
)

// Path resolution. Walks run inside the caller's transaction because
// dropping a reference mid-walk can reclaim a dead inode. Results come
// back referenced and unlocked; the locking order is always one inode
// at a time, parent before child, never both held.

// skipElem splits the leading element from path: "a//b/c" gives
// ("a", "b/c"). An empty element means the walk is done.
func skipElem(path string) (string, string) {
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return "", ""
	}
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i], strings.TrimLeft(path[i:], "/")
	}
	return path, ""
}

func namex(t *jrnl.TxnHandle, cwd *Inode, path string, wantParent bool) (*Inode, string, error) {
	var ip *Inode
	if strings.HasPrefix(path, "/") {
		ip = Root()
	} else {
		if cwd == nil {
			return nil, "", common.EBADARG
		}
		ip = cwd.Dup()
	}

	name, rest := skipElem(path)
	for name != "" {
		ip.Lock()
		if ip.Type != TDir {
			ip.UnlockPut(t)
			return nil, "", common.ENOTDIR
		}
		if wantParent && rest == "" {
			// Hand the parent back unlocked; the caller relocks it
			// before mutating, keeping the one-lock-at-a-time rule.
			ip.Unlock()
			return ip, name, nil
		}
		next, _ := DirLookup(ip, name)
		if next == nil {
			ip.UnlockPut(t)
			return nil, "", common.ENOENT
		}
		ip.UnlockPut(t)
		ip = next
		name, rest = skipElem(rest)
	}

	if wantParent {
		// Path had no final component ("/" or ""): nothing to create
		// or remove.
		ip.Put(t)
		return nil, "", common.ENOENT
	}
	return ip, "", nil
}

// Namei resolves path to a referenced, unlocked inode. Relative paths
// start at cwd.
func Namei(t *jrnl.TxnHandle, cwd *Inode, path string) (*Inode, error) {
	ip, _, err := namex(t, cwd, path, false)
	return ip, err
}

// NameiParent resolves the directory that holds path's final
// component, returning it unlocked along with that component's name.
func NameiParent(t *jrnl.TxnHandle, cwd *Inode, path string) (*Inode, string, error) {
	return namex(t, cwd, path, true)
}
