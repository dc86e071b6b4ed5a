// Package fusefs serves a zipfs filesystem over FUSE.
package fusefs

import (
	"path"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"bazil.org/ziprofs/internal/zipfs"
	"golang.org/x/net/context"
)

// attrValid is how long the kernel may cache attributes and lookups. The
// core only notices a rewritten archive on the next request.
const attrValid = time.Second

// Filesystem is the core as the adapter needs it.
type Filesystem interface {
	zipfs.Operations
	Seekable(handle uint64) bool
}

// FS exposes a zipfs filesystem as a bazil.org/fuse filesystem. Every node
// carries its virtual path; all decisions are made by the core.
type FS struct {
	core Filesystem
}

var _ fs.FS = (*FS)(nil)
var _ fs.FSStatfser = (*FS)(nil)

// New wraps core.
func New(core Filesystem) *FS {
	return &FS{core: core}
}

func (f *FS) Root() (fs.Node, error) {
	return &Node{fs: f, path: "/"}, nil
}

func (f *FS) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	st, err := f.core.Statfs("/")
	if err != nil {
		return errno(err)
	}
	resp.Blocks = st.Blocks
	resp.Bfree = st.Bfree
	resp.Bavail = st.Bavail
	resp.Files = st.Files
	resp.Ffree = st.Ffree
	resp.Bsize = st.Bsize
	resp.Frsize = st.Frsize
	resp.Namelen = st.Namelen
	return nil
}

func errno(err error) error {
	return fuse.Errno(zipfs.Errno(err))
}

// Node is one path of the mounted tree, file or directory.
type Node struct {
	fs   *FS
	path string
}

var _ fs.Node = (*Node)(nil)
var _ fs.NodeRequestLookuper = (*Node)(nil)
var _ fs.NodeAccesser = (*Node)(nil)
var _ fs.NodeOpener = (*Node)(nil)
var _ fs.HandleReadDirAller = (*Node)(nil)

func fuseAttr(attr zipfs.Attr, a *fuse.Attr) {
	a.Inode = attr.Inode
	a.Size = attr.Size
	a.Blocks = attr.Blocks
	a.Mode = attr.Mode
	a.Nlink = attr.Nlink
	a.Uid = attr.Uid
	a.Gid = attr.Gid
	a.Atime = attr.Atime
	a.Mtime = attr.Mtime
	a.Ctime = attr.Ctime
}

func (n *Node) Attr(ctx context.Context, a *fuse.Attr) error {
	attr, err := n.fs.core.Getattr(n.path)
	if err != nil {
		return errno(err)
	}
	fuseAttr(attr, a)
	a.Valid = attrValid
	return nil
}

func (n *Node) Lookup(ctx context.Context, req *fuse.LookupRequest, resp *fuse.LookupResponse) (fs.Node, error) {
	child := path.Join(n.path, req.Name)
	if _, err := n.fs.core.Getattr(child); err != nil {
		return nil, errno(err)
	}
	resp.EntryValid = attrValid
	return &Node{fs: n.fs, path: child}, nil
}

func (n *Node) Access(ctx context.Context, req *fuse.AccessRequest) error {
	if err := n.fs.core.Access(n.path, req.Mask); err != nil {
		return errno(err)
	}
	return nil
}

func (n *Node) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	if req.Dir {
		// listings are computed per ReadDirAll, nothing to hold open
		return n, nil
	}
	h, err := n.fs.core.Open(n.path, int(req.Flags))
	if err != nil {
		return nil, errno(err)
	}
	if !n.fs.core.Seekable(h) {
		// compressed entries only read forward
		resp.Flags |= fuse.OpenNonSeekable
	}
	return &Handle{fs: n.fs, path: n.path, id: h}, nil
}

func (n *Node) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entries, err := n.fs.core.Readdir(n.path)
	if err != nil {
		return nil, errno(err)
	}
	res := make([]fuse.Dirent, 0, len(entries))
	for _, e := range entries {
		de := fuse.Dirent{Name: e.Name, Type: fuse.DT_File}
		if e.Dir {
			de.Type = fuse.DT_Dir
		}
		res = append(res, de)
	}
	return res, nil
}

// Handle is one open file, real or inside an archive.
type Handle struct {
	fs   *FS
	path string
	id   uint64
}

var _ fs.Handle = (*Handle)(nil)
var _ fs.HandleReader = (*Handle)(nil)
var _ fs.HandleReleaser = (*Handle)(nil)

func (h *Handle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	data, err := h.fs.core.Read(h.path, h.id, req.Size, req.Offset)
	if err != nil {
		return errno(err)
	}
	resp.Data = data
	return nil
}

func (h *Handle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	if err := h.fs.core.Release(h.path, h.id); err != nil {
		return errno(err)
	}
	return nil
}
