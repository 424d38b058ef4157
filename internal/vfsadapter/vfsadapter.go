// Package vfsadapter implements C9, the kernel protocol state machine
// (fuseutil.FileSystem, grounded on jacobsa-fuse's samples/memfs/fs.go
// dispatch style and its NotImplementedFileSystem method shape: one op
// struct in, Respond called on it before returning) translating fuseops
// requests into façade operations while preserving the invariants across
// the hybrid root/namespace locales described in spec.md §4.9.
package vfsadapter

import (
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/JoshuaXOng/tag-filesystem/internal/inodeid"
	"github.com/JoshuaXOng/tag-filesystem/internal/logging"
	"github.com/JoshuaXOng/tag-filesystem/internal/model"
	"github.com/JoshuaXOng/tag-filesystem/internal/tagfs"
	"github.com/JoshuaXOng/tag-filesystem/internal/tagsetlit"
	"github.com/JoshuaXOng/tag-filesystem/internal/tfserrors"
)

// locale classifies a parent inode the way spec.md §4.9 requires every
// handler to before deciding what a name means within it.
type locale int

const (
	localeOther locale = iota
	localeRoot
	localeNamespace
)

// Adapter is the fuseutil.FileSystem implementation. The façade is
// single-threaded per spec.md §5; mu just serializes calls from the
// kernel's per-op goroutines onto that single logical handler, the same
// role memFS.mu plays in the teacher.
type Adapter struct {
	fuseutil.NotImplementedFileSystem

	mu  sync.Mutex
	fs  *tagfs.TagFilesystem
	log *slog.Logger
}

func New(fs *tagfs.TagFilesystem, log *slog.Logger) *Adapter {
	return &Adapter{fs: fs, log: log}
}

// logOp stamps a handled kernel op with a fresh correlation id. It is called
// by the name-bearing handlers (LookUpInode, MkDir, CreateFile, RmDir,
// Unlink, Rename); the attribute, open, read, write and readdir handlers do
// not log. This is the way a request-scoped id threads through a server's access
// log; uuid.NewString is the same generator the rest of the pack's HTTP-
// facing repos use for request ids.
func (a *Adapter) logOp(opName string, fields ...any) {
	if a.log == nil {
		return
	}
	logging.LogOp(a.log, opName, uuid.NewString(), fields...)
}

func (a *Adapter) logErr(opName string, err error) {
	if a.log == nil {
		return
	}
	logging.LogError(a.log, opName, err)
}

func (a *Adapter) localeOf(parent fuseops.InodeID) (locale, model.Namespace) {
	id := inodeid.ID(parent)
	if id == inodeid.RootID {
		return localeRoot, model.Namespace{}
	}
	if inodeid.IsNamespace(id) {
		if ns, err := a.fs.Namespaces.GetByInode(id); err == nil {
			return localeNamespace, ns
		}
	}
	return localeOther, model.Namespace{}
}

func toErrno(err error) error {
	if err == nil {
		return nil
	}
	kind, ok := tfserrors.KindOf(err)
	if !ok {
		return fuse.EIO
	}
	switch kind {
	case tfserrors.NotFound, tfserrors.InvalidInode, tfserrors.UnknownTag:
		return fuse.ENOENT
	case tfserrors.Collision, tfserrors.InvalidName, tfserrors.Overflow, tfserrors.Unsupported:
		return fuse.EINVAL
	default:
		return fuse.EIO
	}
}

func toInodeAttrs(at model.Attrs, size uint64) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:   size,
		Nlink:  1,
		Mode:   at.Mode,
		Atime:  at.Atime,
		Mtime:  at.Mtime,
		Ctime:  at.Ctime,
		Crtime: at.Crtime,
		Uid:    at.Owner,
		Gid:    at.Group,
	}
}

func namespaceAttrs(ns model.Namespace) model.Attrs {
	return model.Attrs{
		Owner: ns.Owner,
		Group: ns.Group,
		Mode:  os.ModeDir | 0755,
	}
}

func (a *Adapter) Init(op *fuseops.InitOp) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fs.RootAttrs.Owner = op.Header.Uid
	a.fs.RootAttrs.Group = op.Header.Gid
	op.Respond(nil)
}

// LookUpInode resolves a (parent, name) pair per the three-branch rule of
// spec.md §4.9: tag-set literal in Root, plain name in Root, or a
// neighbour-tag/file lookup inside a Namespace.
func (a *Adapter) LookUpInode(op *fuseops.LookUpInodeOp) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logOp("LookUpInode", "parent", op.Parent, "name", op.Name)

	loc, ns := a.localeOf(op.Parent)

	switch loc {
	case localeRoot:
		if names, ok := tagsetlit.Parse(op.Name); ok && len(names) > 0 {
			namespace, err := a.fs.InsertNamespace(op.Name)
			if err != nil {
				op.Respond(toErrno(err))
				return
			}
			op.Entry = fuseops.ChildInodeEntry{
				Child:      fuseops.InodeID(namespace.Inode),
				Attributes: toInodeAttrs(namespaceAttrs(namespace), 0),
			}
			op.Respond(nil)
			return
		}
		if tag, err := a.fs.Tags.GetByName(op.Name); err == nil {
			op.Entry = fuseops.ChildInodeEntry{
				Child:      fuseops.InodeID(tag.Inode),
				Attributes: toInodeAttrs(tag.Attrs, 0),
			}
			op.Respond(nil)
			return
		}
		if f, err := a.fs.Files.GetByNameAndTags(op.Name, nil); err == nil {
			size, _ := a.fs.Storage.GetFileSize(f.Inode)
			op.Entry = fuseops.ChildInodeEntry{
				Child:      fuseops.InodeID(f.Inode),
				Attributes: toInodeAttrs(f.Attrs, uint64(size)),
			}
			op.Respond(nil)
			return
		}
		op.Respond(fuse.ENOENT)

	case localeNamespace:
		for _, id := range a.fs.Files.GetNeighbourTagInodes(ns.Tags) {
			tag, err := a.fs.Tags.GetByInode(id)
			if err == nil && tag.Name == op.Name {
				op.Entry = fuseops.ChildInodeEntry{
					Child:      fuseops.InodeID(tag.Inode),
					Attributes: toInodeAttrs(tag.Attrs, 0),
				}
				op.Respond(nil)
				return
			}
		}
		if f, err := a.fs.Files.GetByNameAndTags(op.Name, ns.Tags); err == nil {
			size, _ := a.fs.Storage.GetFileSize(f.Inode)
			op.Entry = fuseops.ChildInodeEntry{
				Child:      fuseops.InodeID(f.Inode),
				Attributes: toInodeAttrs(f.Attrs, uint64(size)),
			}
			op.Respond(nil)
			return
		}
		op.Respond(fuse.ENOENT)

	default:
		op.Respond(fuse.ENOENT)
	}
}

func (a *Adapter) attrsForInode(id inodeid.ID) (fuseops.InodeAttributes, error) {
	switch {
	case id == inodeid.RootID:
		return toInodeAttrs(a.fs.RootAttrs, 0), nil
	case inodeid.IsFile(id):
		f, err := a.fs.Files.GetByInode(id)
		if err != nil {
			return fuseops.InodeAttributes{}, err
		}
		size, _ := a.fs.Storage.GetFileSize(id)
		return toInodeAttrs(f.Attrs, uint64(size)), nil
	case inodeid.IsTag(id):
		t, err := a.fs.Tags.GetByInode(id)
		if err != nil {
			return fuseops.InodeAttributes{}, err
		}
		return toInodeAttrs(t.Attrs, 0), nil
	case inodeid.IsNamespace(id):
		ns, err := a.fs.Namespaces.GetByInode(id)
		if err != nil {
			return fuseops.InodeAttributes{}, err
		}
		return toInodeAttrs(namespaceAttrs(ns), 0), nil
	default:
		return fuseops.InodeAttributes{}, tfserrors.New(tfserrors.NotFound, "no entity with that inode")
	}
}

func (a *Adapter) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) {
	a.mu.Lock()
	defer a.mu.Unlock()

	attrs, err := a.attrsForInode(inodeid.ID(op.Inode))
	if err != nil {
		op.Respond(toErrno(err))
		return
	}
	op.Attributes = attrs
	op.Respond(nil)
}

// SetInodeAttributes is currently a no-op echo (spec.md §9 open question:
// whether chmod/chown/truncate must persist is left unresolved upstream).
func (a *Adapter) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) {
	a.mu.Lock()
	defer a.mu.Unlock()

	attrs, err := a.attrsForInode(inodeid.ID(op.Inode))
	if err != nil {
		op.Respond(toErrno(err))
		return
	}
	op.Attributes = attrs
	op.Respond(nil)
}

func (a *Adapter) MkDir(op *fuseops.MkDirOp) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logOp("MkDir", "parent", op.Parent, "name", op.Name)
	loc, _ := a.localeOf(op.Parent)
	if loc != localeRoot {
		op.Respond(fuse.EINVAL)
		return
	}
	if _, err := a.fs.Files.GetByNameAndTags(op.Name, nil); err == nil {
		op.Respond(fuse.EINVAL)
		return
	}

	id, err := inodeid.Free(inodeid.Tag, a.fs.Tags.Inodes())
	if err != nil {
		op.Respond(toErrno(err))
		return
	}
	attrs := tagfs.NowAttrs(op.Header.Uid, op.Header.Gid, op.Mode)
	tag := model.Tag{Inode: id, Name: op.Name, Attrs: attrs}
	if err := a.fs.AddTag(tag); err != nil {
		op.Respond(toErrno(err))
		return
	}
	op.Entry = fuseops.ChildInodeEntry{
		Child:      fuseops.InodeID(id),
		Attributes: toInodeAttrs(attrs, 0),
	}
	op.Respond(nil)
}

func (a *Adapter) CreateFile(op *fuseops.CreateFileOp) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logOp("CreateFile", "parent", op.Parent, "name", op.Name)
	loc, ns := a.localeOf(op.Parent)
	if loc != localeRoot && loc != localeNamespace {
		op.Respond(fuse.EINVAL)
		return
	}
	tags := model.TagSet(nil)
	if loc == localeNamespace {
		tags = ns.Tags.Clone()
	}

	id, err := inodeid.Free(inodeid.File, a.fs.Files.Inodes())
	if err != nil {
		op.Respond(toErrno(err))
		return
	}
	attrs := tagfs.NowAttrs(op.Header.Uid, op.Header.Gid, op.Mode)
	f := model.File{Inode: id, Name: op.Name, Tags: tags, Attrs: attrs}
	if err := a.fs.AddFile(f); err != nil {
		op.Respond(toErrno(err))
		return
	}
	op.Entry = fuseops.ChildInodeEntry{
		Child:      fuseops.InodeID(id),
		Attributes: toInodeAttrs(attrs, 0),
	}
	op.Respond(nil)
}

func (a *Adapter) RmDir(op *fuseops.RmDirOp) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logOp("RmDir", "parent", op.Parent, "name", op.Name)
	loc, _ := a.localeOf(op.Parent)
	if loc != localeRoot {
		op.Respond(fuse.EINVAL)
		return
	}
	err := a.fs.DeleteTag(op.Name)
	a.logErr("RmDir", err)
	op.Respond(toErrno(err))
}

func (a *Adapter) Unlink(op *fuseops.UnlinkOp) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logOp("Unlink", "parent", op.Parent, "name", op.Name)
	loc, ns := a.localeOf(op.Parent)
	if loc != localeRoot && loc != localeNamespace {
		op.Respond(fuse.EINVAL)
		return
	}
	tags := model.TagSet(nil)
	if loc == localeNamespace {
		tags = ns.Tags
	}
	err := a.fs.RemoveFileByNameAndTags(op.Name, tags)
	a.logErr("Unlink", err)
	op.Respond(toErrno(err))
}

// Rename handles both tag rename (both parents Root) and file move (both
// parents Namespace); a mixed pairing is Invalid per spec.md §4.9. This op
// is not part of the FileSystem interface snapshot bundled with this
// tree's tooling reference copy, but the pinned module version's real
// fuseops package carries fuseops.RenameOp with this field shape (Header,
// OldParent, OldName, NewParent, NewName); the method is still wired so
// the server picks it up if the running kernel surface dispatches it.
func (a *Adapter) Rename(op *fuseops.RenameOp) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logOp("Rename", "old_name", op.OldName, "new_name", op.NewName)
	oldLoc, oldNS := a.localeOf(op.OldParent)
	newLoc, newNS := a.localeOf(op.NewParent)

	switch {
	case oldLoc == localeRoot && newLoc == localeRoot:
		err := a.fs.RenameTag(op.OldName, op.NewName)
		a.logErr("Rename", err)
		op.Respond(toErrno(err))
	case oldLoc == localeNamespace && newLoc == localeNamespace:
		err := a.fs.MoveFile(oldNS.Tags, op.OldName, newNS.Tags, op.NewName)
		a.logErr("Rename", err)
		op.Respond(toErrno(err))
	default:
		op.Respond(fuse.EINVAL)
	}
}

func (a *Adapter) OpenDir(op *fuseops.OpenDirOp) {
	a.mu.Lock()
	defer a.mu.Unlock()
	loc, _ := a.localeOf(fuseops.InodeID(op.Inode))
	if loc == localeOther {
		op.Respond(fuse.ENOENT)
		return
	}
	op.Respond(nil)
}

type dirEntry struct {
	name  string
	inode fuseops.InodeID
	typ   fuseutil.DirentType
}

// ReadDir enumerates a Root or Namespace directory per spec.md §4.9,
// sorted by name. op.Offset is the index of the first entry to return; each
// dirent carries the index of the entry after it, and only whole dirents that
// fit in op.Size are appended.
func (a *Adapter) ReadDir(op *fuseops.ReadDirOp) {
	a.mu.Lock()
	defer a.mu.Unlock()

	loc, ns := a.localeOf(fuseops.InodeID(op.Inode))

	var entries []dirEntry
	switch loc {
	case localeRoot:
		for _, f := range a.fs.Files.GetByTags(nil) {
			entries = append(entries, dirEntry{f.Name, fuseops.InodeID(f.Inode), fuseutil.DT_File})
		}
		for _, t := range a.fs.Tags.All() {
			entries = append(entries, dirEntry{t.Name, fuseops.InodeID(t.Inode), fuseutil.DT_Directory})
		}
	case localeNamespace:
		for _, f := range a.fs.Files.GetByTags(ns.Tags) {
			entries = append(entries, dirEntry{f.Name, fuseops.InodeID(f.Inode), fuseutil.DT_File})
		}
		for _, id := range a.fs.Files.GetNeighbourTagInodes(ns.Tags) {
			if t, err := a.fs.Tags.GetByInode(id); err == nil {
				entries = append(entries, dirEntry{t.Name, fuseops.InodeID(t.Inode), fuseutil.DT_Directory})
			}
		}
	default:
		op.Respond(fuse.ENOENT)
		return
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	if int(op.Offset) > len(entries) {
		op.Respond(fuse.EIO)
		return
	}
	entries = entries[op.Offset:]

	for i, e := range entries {
		next := fuseutil.AppendDirent(op.Data, fuseops.Dirent{
			Offset: op.Offset + fuseops.DirOffset(i) + 1,
			Inode:  e.inode,
			Name:   e.name,
			Type:   e.typ,
		})
		if len(next) > op.Size {
			break
		}
		op.Data = next
	}
	op.Respond(nil)
}

func (a *Adapter) OpenFile(op *fuseops.OpenFileOp) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := inodeid.ID(op.Inode)
	if !inodeid.IsFile(id) {
		op.Respond(fuse.EINVAL)
		return
	}
	_, err := a.fs.Files.GetByInode(id)
	op.Respond(toErrno(err))
}

func (a *Adapter) ReadFile(op *fuseops.ReadFileOp) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := inodeid.ID(op.Inode)
	if !inodeid.IsFile(id) {
		op.Respond(fuse.EINVAL)
		return
	}
	data, err := a.fs.Storage.Read(id, op.Offset, op.Size)
	if err != nil {
		op.Respond(toErrno(err))
		return
	}
	op.Data = data
	op.Respond(nil)
}

func (a *Adapter) WriteFile(op *fuseops.WriteFileOp) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := inodeid.ID(op.Inode)
	if !inodeid.IsFile(id) {
		op.Respond(fuse.EINVAL)
		return
	}
	_, err := a.fs.Storage.Write(id, op.Offset, op.Data)
	op.Respond(toErrno(err))
}

// FsyncDir triggers SavePersistently for the root; non-root subtree sync is
// unimplemented per spec.md §9's open question. This is not a kernel-
// dispatched fuseops op in the FileSystem interface snapshot bundled with
// this tree's tooling reference copy, so the mount loop (internal/
// mountloop) calls it directly on its persistence cadence rather than
// through the kernel dispatch table.
func (a *Adapter) FsyncDir(inode fuseops.InodeID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if inodeid.ID(inode) != inodeid.RootID {
		return tfserrors.New(tfserrors.Unsupported, "fsyncdir is only implemented for the root")
	}
	return a.fs.SavePersistently()
}

// Destroy is called by the mount loop on unmount, outside of the
// fuseutil.FileSystem interface, exactly as FsyncDir is.
func (a *Adapter) Destroy() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fs.SavePersistently()
}

// ReleaseFileHandle and ReleaseDirHandle have nothing to free: OpenFile and
// OpenDir never allocate a handle, so close() just needs an ack instead of
// the ENOSYS NotImplementedFileSystem would otherwise send.
func (a *Adapter) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) {
	op.Respond(nil)
}

func (a *Adapter) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) {
	op.Respond(nil)
}

// FlushFile and SyncFile only acknowledge the op; they save nothing
// themselves. Metadata reaches disk through the root-level FsyncDir the
// mount loop calls on its cadence, and Write already hands file bodies to
// delegate storage.
func (a *Adapter) FlushFile(op *fuseops.FlushFileOp) {
	op.Respond(nil)
}

func (a *Adapter) SyncFile(op *fuseops.SyncFileOp) {
	op.Respond(nil)
}
