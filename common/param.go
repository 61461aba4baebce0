package common

// Compile-time layout parameters. Disk geometry lives in Config so
// tests can shrink it; these are baked into on-disk record sizes and
// the process image format, so changing them invalidates old images.
const (
	BlockSize = 4096 // bytes per disk block
	PageSize  = 4096 // bytes per memory page

	DirSiz     = 14         // max filename length, fixed-size directory entries
	DirEntSize = 4 + DirSiz // uint32 inum + name

	NOFILE = 16  // descriptor slots per process
	NFILE  = 100 // open file objects, system wide
	NPROC  = 64  // process table size
	NDEV   = 10  // device switch entries

	RootInum = 1 // inode number of /
	RootDev  = 0 // device number of the boot disk

	MaxOpBlocks = 10 // max blocks one syscall may write
)
