// Package tagfs implements C8, the façade (teacher's samples/memfs.memFS
// generalized from a single inode table to the four-store tag-indexed
// model): cross-cutting invariant checks that span the file, tag and
// namespace stores, inode resolution, and persistence orchestration.
package tagfs

import (
	"os"
	"time"

	"github.com/JoshuaXOng/tag-filesystem/internal/codec"
	"github.com/JoshuaXOng/tag-filesystem/internal/delegatestore"
	"github.com/JoshuaXOng/tag-filesystem/internal/filestore"
	"github.com/JoshuaXOng/tag-filesystem/internal/inodeid"
	"github.com/JoshuaXOng/tag-filesystem/internal/model"
	"github.com/JoshuaXOng/tag-filesystem/internal/nsstore"
	"github.com/JoshuaXOng/tag-filesystem/internal/snapshot"
	"github.com/JoshuaXOng/tag-filesystem/internal/tagsetlit"
	"github.com/JoshuaXOng/tag-filesystem/internal/tagstore"
	"github.com/JoshuaXOng/tag-filesystem/internal/tfserrors"
)

// TagFilesystem holds the four stores plus storage and snapshots. It is not
// safe for concurrent use; per spec §5, all kernel-driven mutation happens
// on a single serialized handler, and the background persistence loop only
// ever touches Snapshots, never the stores directly — it goes through
// SavePersistently, which itself is just a reader of the stores.
type TagFilesystem struct {
	Files      *filestore.Store
	Tags       *tagstore.Store
	Namespaces *nsstore.Store
	Storage    delegatestore.Delegate
	Snapshots  *snapshot.Store

	RootAttrs model.Attrs
}

// New constructs an empty façade. Callers that want to resume from a prior
// mount should follow with LoadPersisted.
func New(storage delegatestore.Delegate, snapshots *snapshot.Store, rootAttrs model.Attrs) *TagFilesystem {
	return &TagFilesystem{
		Files:      filestore.New(),
		Tags:       tagstore.New(),
		Namespaces: nsstore.New(),
		Storage:    storage,
		Snapshots:  snapshots,
		RootAttrs:  rootAttrs,
	}
}

// LoadPersisted populates Files and Tags from the most recent snapshot, if
// one exists. A NotFound-kind error (no snapshot ever written) is not
// propagated; any other failure is.
func (fs *TagFilesystem) LoadPersisted() error {
	p, err := fs.Snapshots.Load()
	if err != nil {
		if tfserrors.Is(err, tfserrors.NotFound) {
			return nil
		}
		return err
	}
	for _, f := range p.Files {
		if err := fs.Files.Add(f); err != nil {
			return err
		}
	}
	for _, t := range p.Tags {
		if err := fs.Tags.Add(t); err != nil {
			return err
		}
	}
	return nil
}

// SavePersistently serializes the file and tag catalog through the codec
// and promotes it via the blue/green snapshot store.
func (fs *TagFilesystem) SavePersistently() error {
	p := codec.Persisted{
		RootInode: inodeid.RootID,
		Files:     fs.Files.All(),
		Tags:      fs.Tags.All(),
	}
	return fs.Snapshots.Save(p)
}

// checkIfFileIsValid enforces I2 (no existing file with the same identity),
// I3 for the untagged case (an empty-tag-set file's name must not collide
// with any existing tag, not just tags already in range of some other
// file), and I4 (a tagged file's name must not collide with any tag in
// range: its own tags, or any neighbour tag of its tags).
func (fs *TagFilesystem) checkIfFileIsValid(f model.File) error {
	if f.Name == "" {
		return tfserrors.New(tfserrors.InvalidName, "file name must not be empty")
	}
	if existing, err := fs.Files.GetByNameAndTags(f.Name, f.Tags); err == nil && existing.Inode != f.Inode {
		return tfserrors.Newf(tfserrors.Collision, "file %q with tags %v already exists", f.Name, f.Tags)
	}

	if len(f.Tags) == 0 {
		if _, err := fs.Tags.GetByName(f.Name); err == nil {
			return tfserrors.Newf(tfserrors.InvalidName, "file name %q collides with an existing tag", f.Name)
		}
		return nil
	}

	inRange := append(model.TagSet(nil), f.Tags...)
	inRange = append(inRange, fs.Files.GetNeighbourTagInodes(f.Tags)...)
	for _, tagID := range inRange {
		tag, err := fs.Tags.GetByInode(tagID)
		if err != nil {
			continue
		}
		if tag.Name == f.Name {
			return tfserrors.Newf(tfserrors.InvalidName, "file name %q collides with in-range tag", f.Name)
		}
	}
	return nil
}

// checkIfTagIsValid enforces I3 (no other tag shares the name, and no
// untagged file shares the name) and I4 (no file in any tag set containing
// t shares t's name).
func (fs *TagFilesystem) checkIfTagIsValid(t model.Tag) error {
	if t.Name == "" {
		return tfserrors.New(tfserrors.InvalidName, "tag name must not be empty")
	}
	if existing, err := fs.Tags.GetByName(t.Name); err == nil && existing.Inode != t.Inode {
		return tfserrors.Newf(tfserrors.Collision, "tag named %q already exists", t.Name)
	}
	if _, err := fs.Files.GetByNameAndTags(t.Name, nil); err == nil {
		return tfserrors.Newf(tfserrors.InvalidName, "tag name %q collides with an untagged file", t.Name)
	}
	for _, tagSet := range fs.Files.GetTagSets() {
		if !tagSet.Contains(t.Inode) {
			continue
		}
		for _, f := range fs.Files.GetByTags(tagSet) {
			if f.Name == t.Name {
				return tfserrors.Newf(tfserrors.InvalidName, "tag name %q collides with file %q in a tag set it belongs to", t.Name, f.Name)
			}
		}
	}
	return nil
}

// AddFile validates f and inserts it, also initializing a zero-byte
// delegate storage entry.
func (fs *TagFilesystem) AddFile(f model.File) error {
	if err := fs.checkIfFileIsValid(f); err != nil {
		return err
	}
	if err := fs.Files.Add(f); err != nil {
		return err
	}
	type creator interface {
		CreateEmpty(inodeid.ID) error
	}
	if c, ok := fs.Storage.(creator); ok {
		if err := c.CreateEmpty(f.Inode); err != nil {
			_ = fs.Files.RemoveByInode(f.Inode)
			return err
		}
	}
	return nil
}

// AddTag validates t and inserts it.
func (fs *TagFilesystem) AddTag(t model.Tag) error {
	if err := fs.checkIfTagIsValid(t); err != nil {
		return err
	}
	return fs.Tags.Add(t)
}

// RemoveFileByNameAndTags removes a file from both the file store and
// delegate storage.
func (fs *TagFilesystem) RemoveFileByNameAndTags(name string, tags model.TagSet) error {
	f, err := fs.Files.GetByNameAndTags(name, tags)
	if err != nil {
		return err
	}
	if err := fs.Files.RemoveByNameAndTags(name, tags); err != nil {
		return err
	}
	return fs.Storage.Delete(f.Inode)
}

// DeleteTag removes a tag, drops it from every file that carries it, and
// purges/rerenders every namespace that references it.
func (fs *TagFilesystem) DeleteTag(name string) error {
	tag, err := fs.Tags.GetByName(name)
	if err != nil {
		return err
	}
	if err := fs.Tags.RemoveByName(name); err != nil {
		return err
	}

	for _, tagSet := range fs.Files.GetTagSets() {
		if !tagSet.Contains(tag.Inode) {
			continue
		}
		dropErr := fs.Files.DoByTags(tagSet, func(files []model.File) ([]model.File, error) {
			for i := range files {
				files[i].Tags = removeTag(files[i].Tags, tag.Inode)
			}
			return files, nil
		})
		if dropErr != nil {
			return dropErr
		}
	}

	fs.Namespaces.DoForAll(func(h *nsstore.NamespaceUpdateHandle) {
		if !h.Tags().Contains(tag.Inode) {
			return
		}
		h.RemoveTag(tag.Inode)
		h.SetName(renderNamespaceName(fs, h.Tags()))
	})
	return nil
}

func removeTag(tags model.TagSet, id inodeid.ID) model.TagSet {
	out := tags[:0]
	for _, t := range tags {
		if t != id {
			out = append(out, t)
		}
	}
	return out
}

// MoveFile reassigns a file's (name, tags) identity, validating the new
// identity and reverting on failure.
func (fs *TagFilesystem) MoveFile(oldTags model.TagSet, oldName string, newTags model.TagSet, newName string) error {
	old, err := fs.Files.GetByNameAndTags(oldName, oldTags)
	if err != nil {
		return err
	}

	applyErr := fs.Files.DoByInode(old.Inode, func(h *filestore.UpdateHandle) error {
		if err := h.TrySetName(newName); err != nil {
			return err
		}
		if err := h.TrySetTags(newTags); err != nil {
			_ = h.TrySetName(oldName)
			return err
		}
		return nil
	})
	if applyErr != nil {
		return applyErr
	}

	moved, _ := fs.Files.GetByInode(old.Inode)
	if err := fs.checkIfFileIsValid(moved); err != nil {
		revertErr := fs.Files.DoByInode(old.Inode, func(h *filestore.UpdateHandle) error {
			if err := h.TrySetName(oldName); err != nil {
				return err
			}
			return h.TrySetTags(oldTags)
		})
		if revertErr != nil {
			return tfserrors.Wrap(tfserrors.IoError, revertErr, "reverting failed move left file in an unknown identity")
		}
		return err
	}
	return nil
}

// RenameTag renames a tag, re-validates, reverts on failure, and on
// success fans the new name out to every namespace that references it.
func (fs *TagFilesystem) RenameTag(old, new string) error {
	tag, err := fs.Tags.GetByName(old)
	if err != nil {
		return err
	}

	applyErr := fs.Tags.DoByInode(tag.Inode, func(h *tagstore.TagUpdateHandle) error {
		return h.TrySetName(new)
	})
	if applyErr != nil {
		return applyErr
	}

	renamed, _ := fs.Tags.GetByInode(tag.Inode)
	if err := fs.checkIfTagIsValid(renamed); err != nil {
		revertErr := fs.Tags.DoByInode(tag.Inode, func(h *tagstore.TagUpdateHandle) error {
			return h.TrySetName(old)
		})
		if revertErr != nil {
			return tfserrors.Wrap(tfserrors.IoError, revertErr, "reverting failed tag rename left tag in an unknown identity")
		}
		return err
	}

	fs.Namespaces.DoForAll(func(h *nsstore.NamespaceUpdateHandle) {
		if h.Tags().Contains(tag.Inode) {
			h.SetName(renderNamespaceName(fs, h.Tags()))
		}
	})
	return nil
}

// InsertNamespace parses literal as a tag-set directory literal, resolves
// each name to an inode, and materializes (or reuses) the namespace.
func (fs *TagFilesystem) InsertNamespace(literal string) (model.Namespace, error) {
	names, ok := tagsetlit.Parse(literal)
	if !ok {
		return model.Namespace{}, tfserrors.Newf(tfserrors.InvalidName, "%q is not a tag-set literal", literal)
	}

	tags := make(model.TagSet, 0, len(names))
	for _, name := range names {
		tag, err := fs.Tags.GetByName(name)
		if err != nil {
			return model.Namespace{}, tfserrors.Newf(tfserrors.UnknownTag, "unknown tag %q", name)
		}
		tags = append(tags, tag.Inode)
	}

	if existing, ok := fs.Namespaces.GetByTags(tags); ok {
		return existing, nil
	}

	id, err := inodeid.Free(inodeid.Namespace, fs.Namespaces.Inodes())
	if err != nil {
		return model.Namespace{}, err
	}
	ns := model.Namespace{
		Inode: id,
		Name:  renderNamespaceName(fs, tags),
		Tags:  tags,
		Owner: fs.RootAttrs.Owner,
		Group: fs.RootAttrs.Group,
	}
	if err := fs.Namespaces.Add(ns); err != nil {
		return model.Namespace{}, err
	}
	return ns, nil
}

func renderNamespaceName(fs *TagFilesystem, tags model.TagSet) string {
	names := make([]string, 0, len(tags))
	for _, id := range tags {
		if t, err := fs.Tags.GetByInode(id); err == nil {
			names = append(names, t.Name)
		}
	}
	return tagsetlit.Render(names)
}

// NowAttrs returns a fresh Attrs stamped with the current time for all four
// timestamp fields, the shape every create/mkdir handler needs.
func NowAttrs(owner, group uint32, mode os.FileMode) model.Attrs {
	now := time.Now()
	return model.Attrs{
		Owner:  owner,
		Group:  group,
		Mode:   mode,
		Atime:  now,
		Mtime:  now,
		Ctime:  now,
		Crtime: now,
	}
}
