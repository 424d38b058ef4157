// Package inodeid implements TFS's typed inode space (spec.md C1 /
// spec.md §4.1): a 64-bit id space partitioned by residue class into file,
// tag and namespace inodes, with no central allocation registry beyond
// "does this id already exist in its owning store".
//
// The scheme mirrors the teacher's fuseops.InodeID: a single flat uint64
// address space with one reserved low value. Here the kind tag is encoded
// arithmetically instead of via a wrapper type, per spec.md §4.1's stated
// rationale (unforgeable kind tagging, stable across a snapshot round-trip).
package inodeid

import (
	"crypto/rand"
	"encoding/binary"
	"math"

	"github.com/JoshuaXOng/tag-filesystem/internal/tfserrors"
)

// ID is a TFS inode number. The kernel-facing value is identical; this type
// exists so call sites can't mix it up with an arbitrary uint64.
type ID uint64

// RootID is the reserved root directory inode, matching the convention set
// by fuseops.RootInodeID: low, fixed, never allocated by the free-id
// generator.
const RootID ID = 1

// Class identifies which store owns an inode.
type Class int

const (
	File Class = iota
	Tag
	Namespace
)

func (c Class) remainder() uint64 {
	return uint64(c)
}

// classBase is the first id eligible for allocation in any class: the
// smallest multiple-of-3-plus-remainder value strictly greater than RootID.
const classBase = uint64(RootID) + 1

// classOf reports which class id belongs to, true only for ids eligible for
// allocation (i.e. not the reserved root).
func classOf(id ID) (Class, bool) {
	if id <= RootID {
		return 0, false
	}
	return Class(uint64(id) % 3), true
}

// NewFile constructs a file-class ID, failing with InvalidInode if id's
// residue class disagrees.
func NewFile(id uint64) (ID, error) { return typed(id, File) }

// NewTag constructs a tag-class ID.
func NewTag(id uint64) (ID, error) { return typed(id, Tag) }

// NewNamespace constructs a namespace-class ID.
func NewNamespace(id uint64) (ID, error) { return typed(id, Namespace) }

func typed(id uint64, want Class) (ID, error) {
	got, ok := classOf(ID(id))
	if !ok || got != want {
		return 0, tfserrors.Newf(tfserrors.InvalidInode,
			"inode %d is not a valid %v id", id, want)
	}
	return ID(id), nil
}

// IsFile, IsTag, IsNamespace are pure predicates on an already-constructed
// ID, used by the façade and VFS adapter to dispatch on inode class without
// consulting any store.
func IsFile(id ID) bool      { c, ok := classOf(id); return ok && c == File }
func IsTag(id ID) bool       { c, ok := classOf(id); return ok && c == Tag }
func IsNamespace(id ID) bool { c, ok := classOf(id); return ok && c == Namespace }

// maxAllocatable is the largest multiple of 3 not above math.MaxUint64
// (which is itself a multiple of 3, so the two are equal). Free draws
// raw % maxAllocatable, at most MaxUint64-1, so rounding down to a multiple
// of 3 and adding a remainder of at most 2 never overflows.
const maxAllocatable = (math.MaxUint64 / 3) * 3

// Free returns an id in the given class that is not present in existing, by
// uniform random rejection sampling over the class's arithmetic progression,
// per spec.md §4.1. existing is a borrowed read-only view; Free never
// mutates it.
func Free(class Class, existing map[ID]struct{}) (ID, error) {
	rem := class.remainder()
	for attempts := 0; attempts < 10_000; attempts++ {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, tfserrors.Wrap(tfserrors.IoError, err, "reading randomness for inode allocation")
		}
		raw := binary.BigEndian.Uint64(buf[:]) % maxAllocatable
		candidate := ID((raw/3)*3 + rem)
		if candidate <= RootID {
			continue
		}
		if _, taken := existing[candidate]; taken {
			continue
		}
		return candidate, nil
	}
	return 0, tfserrors.Newf(tfserrors.IoError, "exhausted attempts allocating a free %v inode", class)
}

func (c Class) String() string {
	switch c {
	case File:
		return "file"
	case Tag:
		return "tag"
	case Namespace:
		return "namespace"
	default:
		return "unknown"
	}
}
