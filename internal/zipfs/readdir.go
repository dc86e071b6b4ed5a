package zipfs

import (
	"sort"
	"strings"

	"bazil.org/ziprofs/internal/archive"
)

// DirEntry is one name in a directory listing.
type DirEntry struct {
	Name string
	Dir  bool
}

var dotEntries = []DirEntry{{Name: ".", Dir: true}, {Name: "..", Dir: true}}

// listEntries synthesizes the immediate children of prefix from a flat
// entry list. Leaves come first in archive order, then subdirectories
// sorted by name.
func listEntries(entries []archive.Entry, prefix string) []DirEntry {
	if prefix != "" {
		prefix += "/"
	}
	res := append([]DirEntry(nil), dotEntries...)
	seen := make(map[string]bool)
	var subdirs []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name, prefix) || len(e.Name) <= len(prefix) {
			continue
		}
		suffix := e.Name[len(prefix):]
		if i := strings.IndexByte(suffix, '/'); i >= 0 {
			name := suffix[:i]
			if name != "" && !isDot(name) && !seen[name] {
				seen[name] = true
				subdirs = append(subdirs, name)
			}
			continue
		}
		if isDot(suffix) || seen[suffix] {
			continue
		}
		seen[suffix] = true
		res = append(res, DirEntry{Name: suffix})
	}
	sort.Strings(subdirs)
	for _, name := range subdirs {
		res = append(res, DirEntry{Name: name, Dir: true})
	}
	return res
}

func isDot(name string) bool {
	return name == "." || name == ".."
}
