package common

import "errors"

// Recoverable error taxonomy. Everything here comes back to the
// caller as a negative syscall result; anything worse panics.
var (
	EBADARG   = errors.New("bad argument")
	EBADF     = errors.New("invalid file descriptor")
	ENOENT    = errors.New("no such file or directory")
	EEXIST    = errors.New("file exists")
	ENOTDIR   = errors.New("not a directory")
	EISDIR    = errors.New("is a directory")
	ENOTEMPTY = errors.New("directory not empty")
	EXDEV     = errors.New("cross-device link")
	EMFILE    = errors.New("descriptor table full")
	ENFILE    = errors.New("file table full")
	EMLINK    = errors.New("too many links")
	EPIPE     = errors.New("broken pipe")
	EIO       = errors.New("i/o failure")
)
