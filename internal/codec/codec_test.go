package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshuaXOng/tag-filesystem/internal/inodeid"
	"github.com/JoshuaXOng/tag-filesystem/internal/model"
	"github.com/JoshuaXOng/tag-filesystem/internal/tfserrors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := Persisted{
		RootInode: inodeid.RootID,
		Files: []model.File{
			{Inode: 3, Name: "a.txt", Tags: model.TagSet{4}},
		},
		Tags: []model.Tag{
			{Inode: 4, Name: "red"},
		},
	}

	data, err := Encode(p)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestEncodeIsCanonicalAndDeterministic(t *testing.T) {
	p := Persisted{RootInode: inodeid.RootID}
	a, err := Encode(p)
	require.NoError(t, err)
	b, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecodeMalformedData(t *testing.T) {
	_, err := Decode([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}

func TestDecodeRejectsFileWithWrongInodeClass(t *testing.T) {
	data, err := Encode(Persisted{
		RootInode: inodeid.RootID,
		Files:     []model.File{{Inode: 4, Name: "a.txt"}}, // 4 is tag-class, not file-class
	})
	require.NoError(t, err)

	_, err = Decode(data)
	assert.True(t, tfserrors.Is(err, tfserrors.DecodeError))
}

func TestDecodeRejectsFileReferencingNonTagInode(t *testing.T) {
	data, err := Encode(Persisted{
		RootInode: inodeid.RootID,
		Files:     []model.File{{Inode: 3, Name: "a.txt", Tags: model.TagSet{3}}}, // 3 is file-class
	})
	require.NoError(t, err)

	_, err = Decode(data)
	assert.True(t, tfserrors.Is(err, tfserrors.DecodeError))
}

func TestDecodeRejectsInvalidUTF8Name(t *testing.T) {
	data, err := Encode(Persisted{
		RootInode: inodeid.RootID,
		Tags:      []model.Tag{{Inode: 4, Name: "\xff\xfe"}},
	})
	require.NoError(t, err)

	_, err = Decode(data)
	assert.True(t, tfserrors.Is(err, tfserrors.DecodeError))
}

func TestDecodeRejectsOverflowedTimestamp(t *testing.T) {
	data, err := Encode(Persisted{
		RootInode: inodeid.RootID,
		Tags: []model.Tag{{
			Inode: 4,
			Name:  "red",
			Attrs: model.Attrs{Mtime: time.Unix(maxDecodableUnix+1, 0).UTC()},
		}},
	})
	require.NoError(t, err)

	_, err = Decode(data)
	assert.True(t, tfserrors.Is(err, tfserrors.DecodeError))
}
