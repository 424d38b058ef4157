// Package delegatestore implements C5 (DelegateStorage): the byte-content
// backing store for file bodies, addressed by file inode and backed by the
// host filesystem, per spec.md §4.5.
//
// Each file's bytes live at <root>/<file-inode-id>. Writes use
// create-or-open plus seek-write, pre-extending the file with
// go-fallocate (a dependency of the teacher itself) when a write lands
// past the current end of file; an advisory flock (golang.org/x/sys/unix,
// also a teacher dependency) guards each read/write pair against another
// process touching the same backing directory.
package delegatestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/detailyang/go-fallocate"
	"golang.org/x/sys/unix"

	"github.com/JoshuaXOng/tag-filesystem/internal/inodeid"
	"github.com/JoshuaXOng/tag-filesystem/internal/tfserrors"
)

// Delegate is the DelegateStorage contract: get_file_size, read, write,
// delete, each addressed by file inode.
type Delegate interface {
	GetFileSize(inode inodeid.ID) (int64, error)
	Read(inode inodeid.ID, offset int64, size int) ([]byte, error)
	Write(inode inodeid.ID, offset int64, data []byte) (int, error)
	Delete(inode inodeid.ID) error
}

// FSDelegate is the host-filesystem-backed implementation.
type FSDelegate struct {
	root string
}

// NewFSDelegate roots the delegate store at root, creating it if absent.
// The tfs command passes <config-root>/delegate_storage; no per-mount
// subdirectory is added, so every mount sharing a config root shares one
// delegate directory.
func NewFSDelegate(root string) (*FSDelegate, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, tfserrors.Wrap(tfserrors.IoError, err, "creating delegate storage root")
	}
	return &FSDelegate{root: root}, nil
}

func (d *FSDelegate) path(inode inodeid.ID) string {
	return filepath.Join(d.root, strconv.FormatUint(uint64(inode), 10))
}

func (d *FSDelegate) GetFileSize(inode inodeid.ID) (int64, error) {
	info, err := os.Stat(d.path(inode))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, tfserrors.Wrap(tfserrors.IoError, err, "statting delegate file")
	}
	return info.Size(), nil
}

// Read performs a short read at EOF rather than erroring.
func (d *FSDelegate) Read(inode inodeid.ID, offset int64, size int) ([]byte, error) {
	f, err := os.Open(d.path(inode))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, tfserrors.Wrap(tfserrors.IoError, err, "opening delegate file for read")
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err == nil {
		defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	}

	buf := make([]byte, size)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, tfserrors.Wrap(tfserrors.IoError, err, "reading delegate file")
	}
	return buf[:n], nil
}

// Write extends the file on demand, zero-filling any gap between the
// previous end of file and offset, matching the semantics WriteFileRequest
// documents in the teacher's file_system.go.
func (d *FSDelegate) Write(inode inodeid.ID, offset int64, data []byte) (int, error) {
	f, err := os.OpenFile(d.path(inode), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return 0, tfserrors.Wrap(tfserrors.IoError, err, "opening delegate file for write")
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err == nil {
		defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	}

	wantSize := offset + int64(len(data))
	if info, statErr := f.Stat(); statErr == nil && wantSize > info.Size() {
		// Best-effort preallocation; ENOSYS/EOPNOTSUPP on some backing
		// filesystems is not fatal, the subsequent WriteAt still extends
		// the file via a hole.
		_ = fallocate.Fallocate(f, info.Size(), wantSize-info.Size())
	}

	n, err := f.WriteAt(data, offset)
	if err != nil {
		return n, tfserrors.Wrap(tfserrors.IoError, err, "writing delegate file")
	}
	return n, nil
}

func (d *FSDelegate) Delete(inode inodeid.ID) error {
	if err := os.Remove(d.path(inode)); err != nil && !os.IsNotExist(err) {
		return tfserrors.Wrap(tfserrors.IoError, err, "deleting delegate file")
	}
	return nil
}

// CreateEmpty initializes a zero-byte entry for a newly created file, so
// GetFileSize/Read behave consistently before the first Write.
func (d *FSDelegate) CreateEmpty(inode inodeid.ID) error {
	f, err := os.OpenFile(d.path(inode), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		return tfserrors.Newf(tfserrors.Collision, "delegate file for inode %d already exists", inode)
	}
	if err != nil {
		return tfserrors.Wrap(tfserrors.IoError, err, "creating delegate file")
	}
	return f.Close()
}

// StubDelegate is an in-memory implementation satisfying the same
// contract, for tests that don't want to touch the host filesystem
// (spec.md §4.5: "a stub implementation returning empty bytes satisfies
// the same interface for tests").
type StubDelegate struct {
	data map[inodeid.ID][]byte
}

func NewStubDelegate() *StubDelegate {
	return &StubDelegate{data: make(map[inodeid.ID][]byte)}
}

func (d *StubDelegate) GetFileSize(inode inodeid.ID) (int64, error) {
	return int64(len(d.data[inode])), nil
}

func (d *StubDelegate) Read(inode inodeid.ID, offset int64, size int) ([]byte, error) {
	body := d.data[inode]
	if offset < 0 || offset >= int64(len(body)) {
		return nil, nil
	}
	end := offset + int64(size)
	if end > int64(len(body)) {
		end = int64(len(body))
	}
	return append([]byte(nil), body[offset:end]...), nil
}

func (d *StubDelegate) Write(inode inodeid.ID, offset int64, data []byte) (int, error) {
	body := d.data[inode]
	needed := int(offset) + len(data)
	if needed > len(body) {
		grown := make([]byte, needed)
		copy(grown, body)
		body = grown
	}
	copy(body[offset:], data)
	d.data[inode] = body
	return len(data), nil
}

func (d *StubDelegate) Delete(inode inodeid.ID) error {
	delete(d.data, inode)
	return nil
}

func (d *StubDelegate) CreateEmpty(inode inodeid.ID) error {
	if _, exists := d.data[inode]; exists {
		return fmt.Errorf("delegate file for inode %d already exists", inode)
	}
	d.data[inode] = []byte{}
	return nil
}
