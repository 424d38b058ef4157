package delegatestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSDelegateWriteReadRoundTrip(t *testing.T) {
	d, err := NewFSDelegate(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, d.CreateEmpty(4))

	n, err := d.Write(4, 0, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got, err := d.Read(4, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	size, err := d.GetFileSize(4)
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)
}

func TestFSDelegateWriteExtendsWithHole(t *testing.T) {
	d, err := NewFSDelegate(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, d.CreateEmpty(4))

	_, err = d.Write(4, 10, []byte("tail"))
	require.NoError(t, err)

	size, err := d.GetFileSize(4)
	require.NoError(t, err)
	assert.EqualValues(t, 14, size)

	got, err := d.Read(4, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 10), got)
}

func TestFSDelegateReadMissingFileIsEmpty(t *testing.T) {
	d, err := NewFSDelegate(t.TempDir())
	require.NoError(t, err)

	got, err := d.Read(99, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFSDelegateCreateEmptyRejectsCollision(t *testing.T) {
	d, err := NewFSDelegate(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, d.CreateEmpty(4))
	assert.Error(t, d.CreateEmpty(4))
}

func TestFSDelegateDeleteMissingFileIsNotAnError(t *testing.T) {
	d, err := NewFSDelegate(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, d.Delete(99))
}

func TestStubDelegateWriteReadRoundTrip(t *testing.T) {
	d := NewStubDelegate()
	require.NoError(t, d.CreateEmpty(4))

	_, err := d.Write(4, 2, []byte("ab"))
	require.NoError(t, err)

	got, err := d.Read(4, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 'a', 'b'}, got)
}
