package zipfs

import (
	"os"
	"strings"
	"time"

	"bazil.org/ziprofs/internal/archive"
	"bazil.org/ziprofs/internal/realfs"
)

// Read and execute bits for every entry served out of an archive.
const readOnlyPerm = 0o555

// Attr is the attribute record of one path.
type Attr struct {
	Inode  uint64
	Mode   os.FileMode
	Nlink  uint32
	Uid    uint32
	Gid    uint32
	Size   uint64
	Blocks uint64
	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
}

func attrFromStat(st realfs.Stat) Attr {
	a := Attr{
		Inode: st.Inode,
		Mode:  st.Mode,
		Nlink: st.Nlink,
		Uid:   st.Uid,
		Gid:   st.Gid,
		Atime: st.Atime,
		Mtime: st.Mtime,
		Ctime: st.Ctime,
	}
	if st.Size > 0 {
		a.Size = uint64(st.Size)
	}
	a.Blocks = (a.Size + 511) / 512
	return a
}

// archiveRootAttr presents the archive file itself as a directory.
func archiveRootAttr(st realfs.Stat) Attr {
	a := attrFromStat(st)
	a.Mode = os.ModeDir | a.Mode.Perm()&readOnlyPerm
	return a
}

// entryAttr translates key inside h. Entries inherit ownership and times
// from the archive file; file entries take their own modification time when
// the archive recorded one.
func entryAttr(h *ArchiveHandle, st realfs.Stat, key string) (Attr, error) {
	a := attrFromStat(st)
	// inodes belong to the archive file, not its entries
	a.Inode = 0

	if e, ok := h.reader.Stat(key); ok && !e.IsDir() {
		a.Mode = readOnlyPerm
		a.Size = e.Size
		a.Blocks = (a.Size + 511) / 512
		a.Nlink = 1
		if !e.Modified.IsZero() {
			a.Mtime = e.Modified
		}
		return a, nil
	}

	dir, ok := h.reader.Stat(key + "/")
	if !ok && !hasChildren(h.reader.Entries(), key) {
		return Attr{}, newError(ErrNotFound, nil)
	}
	a.Mode = os.ModeDir | readOnlyPerm
	a.Size = 0
	a.Blocks = 0
	if ok && !dir.Modified.IsZero() {
		a.Mtime = dir.Modified
	}
	return a, nil
}

func hasChildren(entries []archive.Entry, key string) bool {
	prefix := key + "/"
	for _, e := range entries {
		if strings.HasPrefix(e.Name, prefix) {
			return true
		}
	}
	return false
}
