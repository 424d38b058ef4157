// Package codec implements C7: the binary, schema-driven serialization of
// persisted filesystem state, per spec.md §4.7. Encoding uses
// github.com/fxamacker/cbor/v2, a dependency already present in the
// retrieval pack (cubxxw-gvisor's go.mod) for exactly this purpose: a
// pure-Go, codegen-free, struct-tag-driven binary codec.
package codec

import (
	"time"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"

	"github.com/JoshuaXOng/tag-filesystem/internal/inodeid"
	"github.com/JoshuaXOng/tag-filesystem/internal/model"
	"github.com/JoshuaXOng/tag-filesystem/internal/tfserrors"
)

// maxDecodableUnix bounds a decoded timestamp to year 9999, the same
// ceiling time.Time's own string formatting assumes; anything past it can
// only be corruption, not a timestamp TFS itself ever wrote.
const maxDecodableUnix = 253402300799

// Persisted is the on-disk schema: everything snapshot.go checksums and
// writes, and everything a fresh mount needs to reconstruct filestore and
// tagstore state. Namespaces are deliberately absent (spec.md §9: they are
// never persisted).
type Persisted struct {
	RootInode inodeid.ID   `cbor:"1,keyasint"`
	Files     []model.File `cbor:"2,keyasint"`
	Tags      []model.Tag  `cbor:"3,keyasint"`
}

var encMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// Encode renders p to its canonical CBOR byte form.
func Encode(p Persisted) ([]byte, error) {
	b, err := encMode.Marshal(p)
	if err != nil {
		return nil, tfserrors.Wrap(tfserrors.EncodeError, err, "encoding persisted state")
	}
	return b, nil
}

// Decode is Encode's inverse. Besides the wire-format unmarshal, it checks
// every entry against the invariants a well-formed Persisted must satisfy —
// inode class, name encoding, timestamp range — and fails with the first
// violation found rather than handing the caller a structurally valid but
// semantically corrupt snapshot.
func Decode(data []byte) (Persisted, error) {
	var p Persisted
	if err := cbor.Unmarshal(data, &p); err != nil {
		return Persisted{}, tfserrors.Wrap(tfserrors.DecodeError, err, "decoding persisted state")
	}
	if err := validatePersisted(p); err != nil {
		return Persisted{}, err
	}
	return p, nil
}

func validatePersisted(p Persisted) error {
	if p.RootInode != inodeid.RootID {
		return tfserrors.Newf(tfserrors.DecodeError, "decoded root inode %d is not the reserved root id", p.RootInode)
	}
	for _, f := range p.Files {
		if _, err := inodeid.NewFile(uint64(f.Inode)); err != nil {
			return tfserrors.Wrap(tfserrors.DecodeError, err, "decoded file has an invalid inode class")
		}
		for _, tagID := range f.Tags {
			if _, err := inodeid.NewTag(uint64(tagID)); err != nil {
				return tfserrors.Wrap(tfserrors.DecodeError, err, "decoded file references a non-tag inode")
			}
		}
		if !utf8.ValidString(f.Name) {
			return tfserrors.Newf(tfserrors.DecodeError, "decoded file %d has a non-UTF-8 name", f.Inode)
		}
		if err := validateAttrs(f.Attrs); err != nil {
			return err
		}
	}
	for _, t := range p.Tags {
		if _, err := inodeid.NewTag(uint64(t.Inode)); err != nil {
			return tfserrors.Wrap(tfserrors.DecodeError, err, "decoded tag has an invalid inode class")
		}
		if !utf8.ValidString(t.Name) {
			return tfserrors.Newf(tfserrors.DecodeError, "decoded tag %d has a non-UTF-8 name", t.Inode)
		}
		if err := validateAttrs(t.Attrs); err != nil {
			return err
		}
	}
	return nil
}

func validateAttrs(a model.Attrs) error {
	for _, ts := range []time.Time{a.Atime, a.Mtime, a.Ctime, a.Crtime} {
		if ts.IsZero() {
			continue
		}
		if ts.Unix() < 0 || ts.Unix() > maxDecodableUnix {
			return tfserrors.Newf(tfserrors.DecodeError, "decoded timestamp %s overflows the supported range", ts)
		}
	}
	return nil
}
