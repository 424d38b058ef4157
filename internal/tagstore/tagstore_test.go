package tagstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshuaXOng/tag-filesystem/internal/model"
	"github.com/JoshuaXOng/tag-filesystem/internal/tfserrors"
)

func TestAddAndGetByName(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(model.Tag{Inode: 2, Name: "red"}))

	got, err := s.GetByName("red")
	require.NoError(t, err)
	assert.Equal(t, model.Tag{Inode: 2, Name: "red"}, got)
}

func TestAddRejectsDuplicateName(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(model.Tag{Inode: 2, Name: "red"}))
	err := s.Add(model.Tag{Inode: 5, Name: "red"})
	assert.True(t, tfserrors.Is(err, tfserrors.Collision))
}

func TestRemoveByNameClearsBothIndices(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(model.Tag{Inode: 2, Name: "red"}))
	require.NoError(t, s.RemoveByName("red"))

	_, err := s.GetByInode(2)
	assert.True(t, tfserrors.Is(err, tfserrors.NotFound))
	_, err = s.GetByName("red")
	assert.True(t, tfserrors.Is(err, tfserrors.NotFound))
}

func TestDoByNameRenameCommits(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(model.Tag{Inode: 2, Name: "red"}))

	err := s.DoByName("red", func(h *TagUpdateHandle) error {
		return h.TrySetName("crimson")
	})
	require.NoError(t, err)

	_, err = s.GetByName("red")
	assert.True(t, tfserrors.Is(err, tfserrors.NotFound))
	got, err := s.GetByName("crimson")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Inode)
}

func TestDoByNameRollsBackOnCollision(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(model.Tag{Inode: 2, Name: "red"}))
	require.NoError(t, s.Add(model.Tag{Inode: 3, Name: "blue"}))

	err := s.DoByName("red", func(h *TagUpdateHandle) error {
		return h.TrySetName("blue")
	})
	assert.True(t, tfserrors.Is(err, tfserrors.Collision))

	got, err := s.GetByName("red")
	require.NoError(t, err)
	assert.Equal(t, "red", got.Name)
}
