package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshuaXOng/tag-filesystem/internal/codec"
	"github.com/JoshuaXOng/tag-filesystem/internal/inodeid"
	"github.com/JoshuaXOng/tag-filesystem/internal/model"
	"github.com/JoshuaXOng/tag-filesystem/internal/tfserrors"
)

func TestLoadWithNoPriorSaveIsNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load()
	assert.True(t, tfserrors.Is(err, tfserrors.NotFound))
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	p := codec.Persisted{
		RootInode: inodeid.RootID,
		Tags:      []model.Tag{{Inode: 4, Name: "red"}},
	}
	require.NoError(t, store.Save(p))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestSaveAlternatesSlots(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(codec.Persisted{RootInode: inodeid.RootID}))
	_, err = os.Stat(filepath.Join(dir, blueFile))
	require.NoError(t, err)

	require.NoError(t, store.Save(codec.Persisted{RootInode: inodeid.RootID, Tags: []model.Tag{{Inode: 4, Name: "a"}}}))
	_, err = os.Stat(filepath.Join(dir, greenFile))
	require.NoError(t, err)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, got.Tags, 1)
}

func TestLoadDetectsChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(codec.Persisted{RootInode: inodeid.RootID}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, blueFile), []byte("corrupted"), 0644))

	_, err = store.Load()
	assert.True(t, tfserrors.Is(err, tfserrors.ChecksumError))
}
