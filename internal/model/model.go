// Package model holds the three entity types of TFS's data model
// (spec.md §3): TfsFile, TfsTag and TfsNamespace. They are plain value
// types; all uniqueness and transactional discipline lives in the store
// packages that index them.
package model

import (
	"os"
	"time"

	"github.com/JoshuaXOng/tag-filesystem/internal/inodeid"
)

// TagSet is an ordered set of tag inodes: the identity component of a file
// alongside its name. Order is preserved as given, though canonical
// rendering sorts by tag name (see internal/tagsetlit); equality for
// indexing purposes is set equality — Key renders a stable, order- and
// duplicate-independent lookup key.
type TagSet []inodeid.ID

// Key returns a canonical string key for use as a map key in the files
// store's tag-set index. Two TagSets with the same members in any order,
// with or without repeats, produce the same Key.
func (s TagSet) Key() string {
	sorted := append(TagSet(nil), s...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	buf := make([]byte, 0, len(sorted)*21)
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendUint(buf, uint64(id))
	}
	return string(buf)
}

func appendUint(buf []byte, v uint64) []byte {
	if v == 0 {
		return append(buf, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return append(buf, tmp[i:]...)
}

// Contains reports whether id is a member of the set.
func (s TagSet) Contains(id inodeid.ID) bool {
	for _, m := range s {
		if m == id {
			return true
		}
	}
	return false
}

// Equal reports set equality, ignoring order and duplicates.
func (s TagSet) Equal(other TagSet) bool { return s.Key() == other.Key() }

// Clone returns an independent copy.
func (s TagSet) Clone() TagSet { return append(TagSet(nil), s...) }

// Attrs holds the owner/group/mode/timestamp fields shared by every entity
// kind, mirroring the field set of fuseops.InodeAttributes.
type Attrs struct {
	Owner  uint32    `cbor:"1,keyasint"`
	Group  uint32    `cbor:"2,keyasint"`
	Mode   os.FileMode `cbor:"3,keyasint"`
	Atime  time.Time `cbor:"4,keyasint"`
	Mtime  time.Time `cbor:"5,keyasint"`
	Ctime  time.Time `cbor:"6,keyasint"`
	Crtime time.Time `cbor:"7,keyasint"`
}

// File is a TfsFile: a name scoped to a tag set, with body bytes living
// externally in delegate storage.
type File struct {
	Inode inodeid.ID `cbor:"1,keyasint"`
	Name  string     `cbor:"2,keyasint"`
	Tags  TagSet     `cbor:"3,keyasint"`
	Attrs Attrs      `cbor:"4,keyasint"`
}

// Tag is a TfsTag: a named, taggable dimension with no tag set of its own.
type Tag struct {
	Inode inodeid.ID `cbor:"1,keyasint"`
	Name  string     `cbor:"2,keyasint"`
	Attrs Attrs      `cbor:"3,keyasint"`
}

// Namespace is a TfsNamespace: an ephemeral materialized directory for a
// tag-set query. Namespaces are never persisted; they are regenerated on
// lookup (spec.md §9).
type Namespace struct {
	Inode inodeid.ID
	Name  string
	Tags  TagSet
	Owner uint32
	Group uint32
}
