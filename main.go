package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"pp3/common"
	"pp3/file"
	"pp3/fs"
	"pp3/inode"
	"pp3/proc"
)

// Console device: reads come from stdin, writes go to stdout. It is
// bound to major 1 so "mknod console 1 0" works out of the box.
const consoleMajor = 1

func consoleInit() {
	rdr := bufio.NewReader(os.Stdin)
	file.RegisterDev(consoleMajor, &file.DevSw{
		Read:  func(buf []byte) (int, error) { return rdr.Read(buf) },
		Write: func(buf []byte) (int, error) { return os.Stdout.Write(buf) },
	})
}

func parseMode(words []string) (int, bool) {
	omode := fs.ORdOnly
	for _, w := range words {
		switch w {
		case "r":
			omode |= fs.ORdOnly
		case "w":
			omode |= fs.OWrOnly
		case "rw":
			omode |= fs.ORdWr
		case "create":
			omode |= fs.OCreate
		case "trunc":
			omode |= fs.OTrunc
		default:
			return 0, false
		}
	}
	return omode, true
}

func runCli(p *proc.Proc) {
	rdr := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		ri, err := rdr.ReadString('\n')
		if err != nil {
			return
		}
		i := strings.Fields(ri)
		if len(i) == 0 {
			continue
		}

		switch i[0] {
		case "open":
			if len(i) < 2 {
				goto badcmd
			}
			omode, ok := parseMode(i[2:])
			if !ok {
				goto badcmd
			}
			fd, err := fs.Open(p, i[1], omode)
			if err != nil {
				fmt.Printf("open: %v\n", err)
				continue
			}
			fmt.Printf("fd %d\n", fd)

		case "close":
			if len(i) != 2 {
				goto badcmd
			}
			fd, err := strconv.Atoi(i[1])
			if err != nil {
				goto badcmd
			}
			if err := fs.Close(p, fd); err != nil {
				fmt.Printf("close: %v\n", err)
			}

		case "dup":
			if len(i) != 2 {
				goto badcmd
			}
			fd, err := strconv.Atoi(i[1])
			if err != nil {
				goto badcmd
			}
			nfd, err := fs.Dup(p, fd)
			if err != nil {
				fmt.Printf("dup: %v\n", err)
				continue
			}
			fmt.Printf("fd %d\n", nfd)

		case "read":
			if len(i) != 3 {
				goto badcmd
			}
			fd, err1 := strconv.Atoi(i[1])
			n, err2 := strconv.Atoi(i[2])
			if err1 != nil || err2 != nil || n < 0 {
				goto badcmd
			}
			buf := make([]byte, n)
			got, err := fs.Read(p, fd, buf)
			if err != nil {
				fmt.Printf("read: %v\n", err)
				continue
			}
			fmt.Printf("%d bytes: %q\n", got, buf[:got])

		case "write":
			if len(i) < 3 {
				goto badcmd
			}
			fd, err := strconv.Atoi(i[1])
			if err != nil {
				goto badcmd
			}
			data := []byte(strings.Join(i[2:], " "))
			got, err := fs.Write(p, fd, data)
			if err != nil {
				fmt.Printf("write: %v\n", err)
				continue
			}
			fmt.Printf("%d bytes\n", got)

		case "stat":
			if len(i) != 2 {
				goto badcmd
			}
			fd, err := strconv.Atoi(i[1])
			if err != nil {
				goto badcmd
			}
			st, err := fs.Fstat(p, fd)
			if err != nil {
				fmt.Printf("stat: %v\n", err)
				continue
			}
			fmt.Printf("inum %d type %s nlink %d size %d\n",
				st.Inum, st.Type, st.Nlink, st.Size)

		case "mkdir":
			if len(i) != 2 {
				goto badcmd
			}
			if err := fs.Mkdir(p, i[1]); err != nil {
				fmt.Printf("mkdir: %v\n", err)
			}

		case "mknod":
			if len(i) != 4 {
				goto badcmd
			}
			major, err1 := strconv.ParseUint(i[2], 10, 16)
			minor, err2 := strconv.ParseUint(i[3], 10, 16)
			if err1 != nil || err2 != nil {
				goto badcmd
			}
			if err := fs.Mknod(p, i[1], uint16(major), uint16(minor)); err != nil {
				fmt.Printf("mknod: %v\n", err)
			}

		case "cd":
			if len(i) != 2 {
				goto badcmd
			}
			if err := fs.Chdir(p, i[1]); err != nil {
				fmt.Printf("cd: %v\n", err)
			}

		case "link":
			if len(i) != 3 {
				goto badcmd
			}
			if err := fs.Link(p, i[1], i[2]); err != nil {
				fmt.Printf("link: %v\n", err)
			}

		case "unlink":
			if len(i) != 2 {
				goto badcmd
			}
			if err := fs.Unlink(p, i[1]); err != nil {
				fmt.Printf("unlink: %v\n", err)
			}

		case "ls":
			path := "."
			if len(i) == 2 {
				path = i[1]
			} else if len(i) > 2 {
				goto badcmd
			}
			ls(p, path)

		case "pipe":
			fd0, fd1, err := fs.Pipe(p)
			if err != nil {
				fmt.Printf("pipe: %v\n", err)
				continue
			}
			fmt.Printf("read fd %d, write fd %d\n", fd0, fd1)

		case "grow":
			if len(i) != 2 {
				goto badcmd
			}
			n, err := strconv.ParseUint(i[1], 10, 32)
			if err != nil {
				goto badcmd
			}
			p.Grow(uint32(n))
			fmt.Printf("size now %d bytes\n", p.Sz)

		case "ckpt":
			if err := fs.Checkpoint(p); err != nil {
				fmt.Printf("ckpt: %v\n", err)
			}
			if p.State == proc.Zombie {
				// The saved process is gone; keep the shell alive
				// on a fresh one.
				p = proc.New("init", inode.Root())
			}

		case "restore":
			np, err := fs.Restore(p)
			if err != nil {
				fmt.Printf("restore: %v\n", err)
				continue
			}
			fmt.Printf("pid %d (%s), %d bytes\n", np.Pid, np.Name, np.Sz)

		case "ps":
			for _, q := range proc.Procs() {
				fmt.Printf("%5d  %-8s %-16s %d bytes\n",
					q.Pid, q.State, q.Name, q.Sz)
			}

		case "exit":
			return

		default:
			goto badcmd
		}
		continue

	badcmd:
		fmt.Printf("Invalid arguments!\n")
	}
}

func ls(p *proc.Proc, path string) {
	fd, err := fs.Open(p, path, fs.ORdOnly)
	if err != nil {
		fmt.Printf("ls: %v\n", err)
		return
	}
	defer fs.Close(p, fd)

	f, err := p.FdLookup(fd)
	if err != nil || f.Ip == nil {
		fmt.Printf("ls: %v\n", err)
		return
	}
	f.Ip.Lock()
	defer f.Ip.Unlock()
	if f.Ip.Type != inode.TDir {
		fmt.Printf("%s  inum %d size %d\n", path, f.Ip.Inum, f.Ip.Size)
		return
	}
	for _, de := range inode.ReadDir(f.Ip) {
		fmt.Printf("%-14s inum %d\n", de.Name, de.Inum)
	}
}

func main() {
	image := flag.String("image", "pp3.img", "disk image path")
	config := flag.String("config", "", "yaml geometry override")
	level := flag.String("loglevel", "info", "logrus level")
	flag.Parse()

	lv, err := log.ParseLevel(*level)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(lv)

	cfg := common.DefaultConfig()
	if *config != "" {
		if cfg, err = common.LoadConfig(*config); err != nil {
			log.Fatal(err)
		}
	}

	if err := fs.Mount(*image, cfg); err != nil {
		log.Fatal(err)
	}
	defer fs.Unmount()

	consoleInit()
	runCli(proc.New("init", inode.Root()))
}
