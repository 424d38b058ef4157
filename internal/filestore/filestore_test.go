package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshuaXOng/tag-filesystem/internal/inodeid"
	"github.com/JoshuaXOng/tag-filesystem/internal/model"
	"github.com/JoshuaXOng/tag-filesystem/internal/tfserrors"
)

func TestAddAndGetByInode(t *testing.T) {
	s := New()
	f := model.File{Inode: 4, Name: "a.txt", Tags: model.TagSet{2, 5}}
	require.NoError(t, s.Add(f))

	got, err := s.GetByInode(4)
	require.NoError(t, err)
	assert.Equal(t, f.Name, got.Name)
	assert.ElementsMatch(t, f.Tags, got.Tags)
}

func TestAddRejectsDuplicateInode(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(model.File{Inode: 4, Name: "a.txt"}))
	err := s.Add(model.File{Inode: 4, Name: "b.txt"})
	assert.True(t, tfserrors.Is(err, tfserrors.Collision))
}

func TestAddRejectsDuplicateNameAndTags(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(model.File{Inode: 4, Name: "a.txt", Tags: model.TagSet{2}}))
	err := s.Add(model.File{Inode: 7, Name: "a.txt", Tags: model.TagSet{2}})
	assert.True(t, tfserrors.Is(err, tfserrors.Collision))
}

func TestGetByTagsExactMatchOnly(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(model.File{Inode: 4, Name: "a.txt", Tags: model.TagSet{2, 5}}))
	require.NoError(t, s.Add(model.File{Inode: 6, Name: "b.txt", Tags: model.TagSet{2}}))

	got := s.GetByTags(model.TagSet{2, 5})
	require.Len(t, got, 1)
	assert.Equal(t, "a.txt", got[0].Name)
}

func TestGetNeighbourTagInodes(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(model.File{Inode: 4, Name: "a.txt", Tags: model.TagSet{2, 5}}))
	require.NoError(t, s.Add(model.File{Inode: 6, Name: "b.txt", Tags: model.TagSet{2, 8}}))
	require.NoError(t, s.Add(model.File{Inode: 9, Name: "c.txt", Tags: model.TagSet{11}}))

	neighbours := s.GetNeighbourTagInodes(model.TagSet{2})
	assert.ElementsMatch(t, []inodeid.ID{5, 8}, neighbours)
}

func TestRemoveByNameAndTags(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(model.File{Inode: 4, Name: "a.txt", Tags: model.TagSet{2}}))
	require.NoError(t, s.RemoveByNameAndTags("a.txt", model.TagSet{2}))

	_, err := s.GetByInode(4)
	assert.True(t, tfserrors.Is(err, tfserrors.NotFound))
}

func TestDoByInodeCommitsMutation(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(model.File{Inode: 4, Name: "a.txt", Tags: model.TagSet{2}}))

	err := s.DoByInode(4, func(h *UpdateHandle) error {
		return h.TrySetName("renamed.txt")
	})
	require.NoError(t, err)

	got, err := s.GetByInode(4)
	require.NoError(t, err)
	assert.Equal(t, "renamed.txt", got.Name)
}

func TestDoByInodeRollsBackOnCollision(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(model.File{Inode: 4, Name: "a.txt", Tags: model.TagSet{2}}))
	require.NoError(t, s.Add(model.File{Inode: 6, Name: "b.txt", Tags: model.TagSet{2}}))

	err := s.DoByInode(4, func(h *UpdateHandle) error {
		return h.TrySetName("b.txt")
	})
	assert.True(t, tfserrors.Is(err, tfserrors.Collision))

	got, err := s.GetByInode(4)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Name, "failed rename must leave the original name intact")
}

func TestDoByTagsAllOrNothing(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(model.File{Inode: 4, Name: "a.txt", Tags: model.TagSet{2}}))
	require.NoError(t, s.Add(model.File{Inode: 6, Name: "b.txt", Tags: model.TagSet{2}}))

	err := s.DoByTags(model.TagSet{2}, func(files []model.File) ([]model.File, error) {
		for i := range files {
			files[i].Tags = model.TagSet{9}
		}
		files[0].Name = files[1].Name
		return files, nil
	})
	assert.Error(t, err, "two files renamed to the same (name, tags) pair must collide")

	got := s.GetByTags(model.TagSet{2})
	assert.Len(t, got, 2, "a rejected bulk update must leave the original tag set intact")
}

func TestDoByTagsAppliesSuccessfulUpdate(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(model.File{Inode: 4, Name: "a.txt", Tags: model.TagSet{2}}))
	require.NoError(t, s.Add(model.File{Inode: 6, Name: "b.txt", Tags: model.TagSet{2}}))

	err := s.DoByTags(model.TagSet{2}, func(files []model.File) ([]model.File, error) {
		for i := range files {
			files[i].Tags = model.TagSet{9}
		}
		return files, nil
	})
	require.NoError(t, err)

	assert.Empty(t, s.GetByTags(model.TagSet{2}))
	assert.Len(t, s.GetByTags(model.TagSet{9}), 2)
}
