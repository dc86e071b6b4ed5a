package zipfs

import (
	"path"
	"path/filepath"
	"strings"
)

// Location is a virtual path resolved against the real root.
type Location struct {
	// Real is the host path the virtual path maps to when no archive is
	// involved.
	Real string

	// Archive is the host path of the enclosing archive, empty for a
	// pass-through location.
	Archive string

	// Key names the entry inside Archive. Empty means the archive root.
	Key string
}

// InArchive reports whether the location lies in (or is) an archive.
func (l Location) InArchive() bool {
	return l.Archive != ""
}

type resolver struct {
	root     string
	check    bool
	validity *validityCache
}

// Resolve maps a virtual path to its location. The shallowest path segment
// that ends in Suffix and holds a valid archive becomes the archive; archives
// stored inside it are not descended into.
func (r *resolver) Resolve(vpath string) Location {
	vpath = path.Clean("/" + vpath)
	loc := Location{Real: filepath.Join(r.root, filepath.FromSlash(vpath))}
	if vpath == "/" {
		return loc
	}

	segments := strings.Split(vpath[1:], "/")
	prefix := r.root
	for i, seg := range segments {
		prefix = filepath.Join(prefix, seg)
		if !strings.HasSuffix(seg, Suffix) {
			continue
		}
		if !r.isArchive(prefix) {
			continue
		}
		loc.Archive = prefix
		loc.Key = strings.Join(segments[i+1:], "/")
		return loc
	}
	return loc
}

func (r *resolver) isArchive(p string) bool {
	return !r.check || r.validity.IsValid(p)
}
