// Package nsstore implements C4 (IndexedNamespaces): the in-memory map of
// ephemeral, materialized-query directories. Namespaces are never persisted
// (spec.md §9): they live only as long as the mount.
package nsstore

import (
	"github.com/JoshuaXOng/tag-filesystem/internal/inodeid"
	"github.com/JoshuaXOng/tag-filesystem/internal/model"
	"github.com/JoshuaXOng/tag-filesystem/internal/tfserrors"
)

// Store is the namespace index. The zero value is not usable; use New.
type Store struct {
	byInode map[inodeid.ID]*model.Namespace
}

func New() *Store {
	return &Store{byInode: make(map[inodeid.ID]*model.Namespace)}
}

func (s *Store) GetByInode(id inodeid.ID) (model.Namespace, error) {
	n, ok := s.byInode[id]
	if !ok {
		return model.Namespace{}, tfserrors.Newf(tfserrors.NotFound, "no namespace with inode %d", id)
	}
	return cloneNS(*n), nil
}

// GetByTags finds an already-materialized namespace for the given tag set,
// if one exists (lookup should reuse it rather than double-allocating).
func (s *Store) GetByTags(tags model.TagSet) (model.Namespace, bool) {
	for _, n := range s.byInode {
		if n.Tags.Equal(tags) {
			return cloneNS(*n), true
		}
	}
	return model.Namespace{}, false
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

// Add inserts a new namespace, failing with Collision on inode reuse.
func (s *Store) Add(n model.Namespace) error {
	if _, exists := s.byInode[n.Inode]; exists {
		return tfserrors.Newf(tfserrors.Collision, "namespace inode %d already exists", n.Inode)
	}
	stored := cloneNS(n)
	s.byInode[stored.Inode] = &stored
	return nil
}

// RemoveByInode drops a namespace, e.g. once its tag set becomes empty
// after a tag delete and the implementation chooses to drop rather than
// keep the now-empty-set namespace (spec.md S5 allows either).
func (s *Store) RemoveByInode(id inodeid.ID) {
	delete(s.byInode, id)
}

// NamespaceUpdateHandle is handed to the callback of DoForAll, letting it
// re-render the display name and prune tag references in place.
type NamespaceUpdateHandle struct {
	ns *model.Namespace
}

func (h *NamespaceUpdateHandle) SetName(name string)         { h.ns.Name = name }
func (h *NamespaceUpdateHandle) Tags() model.TagSet          { return h.ns.Tags }
func (h *NamespaceUpdateHandle) SetTags(tags model.TagSet)   { h.ns.Tags = tags.Clone() }
func (h *NamespaceUpdateHandle) RemoveTag(id inodeid.ID) {
	out := h.ns.Tags[:0]
	for _, t := range h.ns.Tags {
		if t != id {
			out = append(out, t)
		}
	}
	h.ns.Tags = out
}

// DoForAll iterates every namespace with a mutable update handle. Used by
// the façade during tag rename/delete to re-render derived names and drop
// references to a deleted tag (spec.md §4.4).
func (s *Store) DoForAll(fn func(*NamespaceUpdateHandle)) {
	for _, n := range s.byInode {
		fn(&NamespaceUpdateHandle{ns: n})
	}
}

func cloneNS(n model.Namespace) model.Namespace {
	n.Tags = n.Tags.Clone()
	return n
}
