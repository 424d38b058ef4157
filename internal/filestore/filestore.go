// Package filestore implements C2 (IndexedFiles): the store of TfsFile
// entities indexed by inode, by tag set, and by (name, tag set), with the
// transactional single- and bulk-mutation primitives spec.md §4.2
// describes.
//
// The indexing style — a primary map plus secondary maps kept in lock-step
// by every mutator — follows the teacher's memfs inode table
// (samples/memfs/inode.go), generalized from "slice of children by name" to
// three independent indices.
package filestore

import (
	"github.com/JoshuaXOng/tag-filesystem/internal/inodeid"
	"github.com/JoshuaXOng/tag-filesystem/internal/model"
	"github.com/JoshuaXOng/tag-filesystem/internal/tfserrors"
)

type tagSetBucket struct {
	tags  model.TagSet
	files []inodeid.ID // no duplicates
}

// Store is the file index. The zero value is not usable; use New.
type Store struct {
	byInode    map[inodeid.ID]*model.File
	byTagSet   map[string]*tagSetBucket
	byNameTags map[string]inodeid.ID
}

func New() *Store {
	return &Store{
		byInode:    make(map[inodeid.ID]*model.File),
		byTagSet:   make(map[string]*tagSetBucket),
		byNameTags: make(map[string]inodeid.ID),
	}
}

func nameTagsKey(name string, tags model.TagSet) string {
	return name + "\x00" + tags.Key()
}

// GetByInode returns a copy of the file with the given inode.
func (s *Store) GetByInode(id inodeid.ID) (model.File, error) {
	f, ok := s.byInode[id]
	if !ok {
		return model.File{}, tfserrors.Newf(tfserrors.NotFound, "no file with inode %d", id)
	}
	return cloneFile(*f), nil
}

// GetByTags returns copies of every file whose tag set equals tags exactly.
func (s *Store) GetByTags(tags model.TagSet) []model.File {
	bucket, ok := s.byTagSet[tags.Key()]
	if !ok {
		return nil
	}
	out := make([]model.File, 0, len(bucket.files))
	for _, id := range bucket.files {
		out = append(out, cloneFile(*s.byInode[id]))
	}
	return out
}

// GetByNameAndTags returns the single file with the given (name, tags).
func (s *Store) GetByNameAndTags(name string, tags model.TagSet) (model.File, error) {
	id, ok := s.byNameTags[nameTagsKey(name, tags)]
	if !ok {
		return model.File{}, tfserrors.Newf(tfserrors.NotFound, "no file %q with tags %v", name, tags)
	}
	return cloneFile(*s.byInode[id]), nil
}

// All enumerates every file currently stored, in no particular order.
func (s *Store) All() []model.File {
	out := make([]model.File, 0, len(s.byInode))
	for _, f := range s.byInode {
		out = append(out, cloneFile(*f))
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

// GetTagSets enumerates every tag set currently populated by at least one
// file.
func (s *Store) GetTagSets() []model.TagSet {
	out := make([]model.TagSet, 0, len(s.byTagSet))
	for _, bucket := range s.byTagSet {
		if len(bucket.files) > 0 {
			out = append(out, bucket.tags.Clone())
		}
	}
	return out
}

// GetNeighbourTagInodes returns the union, over every stored tag set S
// that is a superset of tags, of S minus tags: the tags reachable by
// navigating one level deeper than the namespace for tags.
func (s *Store) GetNeighbourTagInodes(tags model.TagSet) []inodeid.ID {
	seen := make(map[inodeid.ID]struct{})
	for _, bucket := range s.byTagSet {
		if len(bucket.files) == 0 || !isSuperset(bucket.tags, tags) {
			continue
		}
		for _, id := range bucket.tags {
			if !tags.Contains(id) {
				seen[id] = struct{}{}
			}
		}
	}
	out := make([]inodeid.ID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

func isSuperset(s, sub model.TagSet) bool {
	for _, id := range sub {
		if !s.Contains(id) {
			return false
		}
	}
	return true
}

// Add inserts a new file, failing with Collision if any index would be
// violated.
func (s *Store) Add(f model.File) error {
	if _, exists := s.byInode[f.Inode]; exists {
		return tfserrors.Newf(tfserrors.Collision, "file inode %d already exists", f.Inode)
	}
	key := nameTagsKey(f.Name, f.Tags)
	if _, exists := s.byNameTags[key]; exists {
		return tfserrors.Newf(tfserrors.Collision, "file %q with tags %v already exists", f.Name, f.Tags)
	}
	s.insert(cloneFile(f))
	return nil
}

func (s *Store) insert(f model.File) {
	stored := f
	s.byInode[stored.Inode] = &stored

	tsKey := stored.Tags.Key()
	bucket, ok := s.byTagSet[tsKey]
	if !ok {
		bucket = &tagSetBucket{tags: stored.Tags.Clone()}
		s.byTagSet[tsKey] = bucket
	}
	bucket.files = append(bucket.files, stored.Inode)

	s.byNameTags[nameTagsKey(stored.Name, stored.Tags)] = stored.Inode
}

func (s *Store) remove(id inodeid.ID) (model.File, bool) {
	f, ok := s.byInode[id]
	if !ok {
		return model.File{}, false
	}
	removed := cloneFile(*f)
	delete(s.byInode, id)

	tsKey := removed.Tags.Key()
	if bucket, ok := s.byTagSet[tsKey]; ok {
		bucket.files = removeID(bucket.files, id)
		if len(bucket.files) == 0 {
			delete(s.byTagSet, tsKey)
		}
	}
	delete(s.byNameTags, nameTagsKey(removed.Name, removed.Tags))
	return removed, true
}

func removeID(ids []inodeid.ID, target inodeid.ID) []inodeid.ID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// RemoveByInode deletes the file with the given inode.
func (s *Store) RemoveByInode(id inodeid.ID) error {
	if _, ok := s.remove(id); !ok {
		return tfserrors.Newf(tfserrors.NotFound, "no file with inode %d", id)
	}
	return nil
}

// RemoveByTags deletes every file whose tag set equals tags exactly.
func (s *Store) RemoveByTags(tags model.TagSet) error {
	bucket, ok := s.byTagSet[tags.Key()]
	if !ok {
		return tfserrors.Newf(tfserrors.NotFound, "no files with tags %v", tags)
	}
	for _, id := range append([]inodeid.ID(nil), bucket.files...) {
		s.remove(id)
	}
	return nil
}

// RemoveByNameAndTags deletes the single file identified by (name, tags).
func (s *Store) RemoveByNameAndTags(name string, tags model.TagSet) error {
	id, ok := s.byNameTags[nameTagsKey(name, tags)]
	if !ok {
		return tfserrors.Newf(tfserrors.NotFound, "no file %q with tags %v", name, tags)
	}
	s.remove(id)
	return nil
}

// UpdateHandle is handed to the callback of DoByInode. Every setter commits
// immediately against the rest of the store (the file under update has
// already been removed from all indices) and rolls its own field back to
// the prior value on collision.
type UpdateHandle struct {
	store   *Store
	file    *model.File
}

// TrySetName changes the file's name, checking (name, current tags)
// uniqueness against the rest of the store.
func (h *UpdateHandle) TrySetName(name string) error {
	if name == "" {
		return tfserrors.New(tfserrors.InvalidName, "file name must not be empty")
	}
	key := nameTagsKey(name, h.file.Tags)
	if _, exists := h.store.byNameTags[key]; exists {
		return tfserrors.Newf(tfserrors.Collision, "file %q with tags %v already exists", name, h.file.Tags)
	}
	h.file.Name = name
	return nil
}

// TrySetTags changes the file's tag set, checking (current name, tags)
// uniqueness against the rest of the store.
func (h *UpdateHandle) TrySetTags(tags model.TagSet) error {
	key := nameTagsKey(h.file.Name, tags)
	if _, exists := h.store.byNameTags[key]; exists {
		return tfserrors.Newf(tfserrors.Collision, "file %q with tags %v already exists", h.file.Name, tags)
	}
	h.file.Tags = tags.Clone()
	return nil
}

// TrySetInode changes the file's own inode, checking inode uniqueness
// against the rest of the store.
func (h *UpdateHandle) TrySetInode(id inodeid.ID) error {
	if !inodeid.IsFile(id) {
		return tfserrors.Newf(tfserrors.InvalidInode, "%d is not a file inode", id)
	}
	if _, exists := h.store.byInode[id]; exists {
		return tfserrors.Newf(tfserrors.Collision, "file inode %d already exists", id)
	}
	h.file.Inode = id
	return nil
}

// File returns a copy of the handle's current (possibly already-mutated)
// field values, for callers that want to inspect state without another
// store round-trip.
func (h *UpdateHandle) File() model.File { return cloneFile(*h.file) }

// DoByInode performs a transactional single-file update: the file is
// removed from all indices, handed to fn via an UpdateHandle whose setters
// validate against the remaining store state, and reinserted (with
// whatever fields fn left it with) once fn returns. No intermediate state
// is ever observable by another reader because stores are only ever
// accessed from the single façade thread (spec.md §5).
func (s *Store) DoByInode(id inodeid.ID, fn func(*UpdateHandle) error) error {
	f, ok := s.remove(id)
	if !ok {
		return tfserrors.Newf(tfserrors.NotFound, "no file with inode %d", id)
	}
	handle := &UpdateHandle{store: s, file: &f}
	fnErr := fn(handle)
	s.insert(f)
	return fnErr
}

// DoByTags performs a bulk transactional update over every file with tag
// set tags. fn receives the owned slice (removed from the store) and
// returns the slice to reinsert. If reinserting any element would collide
// with a remaining store entry or with another element of the returned
// slice, every modification is discarded and the original set is restored
// verbatim: the operation is all-or-nothing.
func (s *Store) DoByTags(tags model.TagSet, fn func([]model.File) ([]model.File, error)) error {
	bucket, ok := s.byTagSet[tags.Key()]
	if !ok {
		return tfserrors.Newf(tfserrors.NotFound, "no files with tags %v", tags)
	}

	original := make([]model.File, 0, len(bucket.files))
	for _, id := range bucket.files {
		original = append(original, cloneFile(*s.byInode[id]))
	}
	for _, f := range original {
		s.remove(f.Inode)
	}

	updated, fnErr := fn(cloneFiles(original))
	if fnErr != nil {
		for _, f := range original {
			s.insert(f)
		}
		return fnErr
	}

	if err := s.tryInsertAll(updated); err != nil {
		for _, f := range original {
			s.insert(f)
		}
		return err
	}
	return nil
}

// tryInsertAll inserts every file in fs, checking for collisions against
// both the current store state and the other files in fs itself; on any
// collision it unwinds what it already inserted and returns the error.
func (s *Store) tryInsertAll(fs []model.File) error {
	inserted := make([]inodeid.ID, 0, len(fs))
	rollback := func() {
		for _, id := range inserted {
			s.remove(id)
		}
	}

	seenInode := make(map[inodeid.ID]struct{})
	seenNameTags := make(map[string]struct{})
	for _, f := range fs {
		if _, dup := seenInode[f.Inode]; dup {
			rollback()
			return tfserrors.Newf(tfserrors.Collision, "duplicate inode %d within update", f.Inode)
		}
		seenInode[f.Inode] = struct{}{}

		ntKey := nameTagsKey(f.Name, f.Tags)
		if _, dup := seenNameTags[ntKey]; dup {
			rollback()
			return tfserrors.Newf(tfserrors.Collision, "duplicate (name, tags) %q/%v within update", f.Name, f.Tags)
		}
		seenNameTags[ntKey] = struct{}{}

		if err := s.Add(f); err != nil {
			rollback()
			return err
		}
		inserted = append(inserted, f.Inode)
	}
	return nil
}

func cloneFile(f model.File) model.File {
	f.Tags = f.Tags.Clone()
	return f
}

func cloneFiles(fs []model.File) []model.File {
	out := make([]model.File, len(fs))
	for i, f := range fs {
		out[i] = cloneFile(f)
	}
	return out
}
