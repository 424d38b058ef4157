// Package tagstore implements C3 (IndexedTags): the store of TfsTag
// entities indexed by inode and by name, with the same transactional
// discipline as filestore but over only name/inode as variable fields.
package tagstore

import (
	"github.com/JoshuaXOng/tag-filesystem/internal/inodeid"
	"github.com/JoshuaXOng/tag-filesystem/internal/model"
	"github.com/JoshuaXOng/tag-filesystem/internal/tfserrors"
)

// Store is the tag index. The zero value is not usable; use New.
type Store struct {
	byInode map[inodeid.ID]*model.Tag
	byName  map[string]inodeid.ID
}

func New() *Store {
	return &Store{
		byInode: make(map[inodeid.ID]*model.Tag),
		byName:  make(map[string]inodeid.ID),
	}
}

func (s *Store) GetByInode(id inodeid.ID) (model.Tag, error) {
	t, ok := s.byInode[id]
	if !ok {
		return model.Tag{}, tfserrors.Newf(tfserrors.NotFound, "no tag with inode %d", id)
	}
	return *t, nil
}

func (s *Store) GetByName(name string) (model.Tag, error) {
	id, ok := s.byName[name]
	if !ok {
		return model.Tag{}, tfserrors.Newf(tfserrors.NotFound, "no tag named %q", name)
	}
	return *s.byInode[id], nil
}

// All enumerates every tag currently stored, in no particular order.
func (s *Store) All() []model.Tag {
	out := make([]model.Tag, 0, len(s.byInode))
	for _, t := range s.byInode {
		out = append(out, *t)
	}
	return out
}

// Inodes returns the set of inodes currently in use, for callers that need
// to avoid collisions when allocating a fresh one.
func (s *Store) Inodes() map[inodeid.ID]struct{} {
	out := make(map[inodeid.ID]struct{}, len(s.byInode))
	for id := range s.byInode {
		out[id] = struct{}{}
	}
	return out
}

func (s *Store) Add(t model.Tag) error {
	if _, exists := s.byInode[t.Inode]; exists {
		return tfserrors.Newf(tfserrors.Collision, "tag inode %d already exists", t.Inode)
	}
	if _, exists := s.byName[t.Name]; exists {
		return tfserrors.Newf(tfserrors.Collision, "tag named %q already exists", t.Name)
	}
	s.insert(t)
	return nil
}

func (s *Store) insert(t model.Tag) {
	stored := t
	s.byInode[stored.Inode] = &stored
	s.byName[stored.Name] = stored.Inode
}

func (s *Store) remove(id inodeid.ID) (model.Tag, bool) {
	t, ok := s.byInode[id]
	if !ok {
		return model.Tag{}, false
	}
	removed := *t
	delete(s.byInode, id)
	delete(s.byName, removed.Name)
	return removed, true
}

func (s *Store) RemoveByInode(id inodeid.ID) error {
	if _, ok := s.remove(id); !ok {
		return tfserrors.Newf(tfserrors.NotFound, "no tag with inode %d", id)
	}
	return nil
}

func (s *Store) RemoveByName(name string) error {
	id, ok := s.byName[name]
	if !ok {
		return tfserrors.Newf(tfserrors.NotFound, "no tag named %q", name)
	}
	s.remove(id)
	return nil
}

// TagUpdateHandle is handed to the callback of DoByInode/DoByName.
type TagUpdateHandle struct {
	store *Store
	tag   *model.Tag
}

// TrySetName changes the tag's name, checking uniqueness against the rest
// of the store.
func (h *TagUpdateHandle) TrySetName(name string) error {
	if name == "" {
		return tfserrors.New(tfserrors.InvalidName, "tag name must not be empty")
	}
	if _, exists := h.store.byName[name]; exists {
		return tfserrors.Newf(tfserrors.Collision, "tag named %q already exists", name)
	}
	h.tag.Name = name
	return nil
}

// TrySetInode changes the tag's own inode, checking uniqueness against the
// rest of the store.
func (h *TagUpdateHandle) TrySetInode(id inodeid.ID) error {
	if !inodeid.IsTag(id) {
		return tfserrors.Newf(tfserrors.InvalidInode, "%d is not a tag inode", id)
	}
	if _, exists := h.store.byInode[id]; exists {
		return tfserrors.Newf(tfserrors.Collision, "tag inode %d already exists", id)
	}
	h.tag.Inode = id
	return nil
}

// Tag returns a copy of the handle's current field values.
func (h *TagUpdateHandle) Tag() model.Tag { return *h.tag }

// DoByInode is filestore.Store.DoByInode's counterpart for tags.
func (s *Store) DoByInode(id inodeid.ID, fn func(*TagUpdateHandle) error) error {
	t, ok := s.remove(id)
	if !ok {
		return tfserrors.Newf(tfserrors.NotFound, "no tag with inode %d", id)
	}
	handle := &TagUpdateHandle{store: s, tag: &t}
	fnErr := fn(handle)
	s.insert(t)
	return fnErr
}

// DoByName is DoByInode addressed by name instead of inode.
func (s *Store) DoByName(name string, fn func(*TagUpdateHandle) error) error {
	id, ok := s.byName[name]
	if !ok {
		return tfserrors.Newf(tfserrors.NotFound, "no tag named %q", name)
	}
	return s.DoByInode(id, fn)
}
