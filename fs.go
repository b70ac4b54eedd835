package fatdisk

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

// ErrUnsupported is returned for operations the disk format has no representation for.
var ErrUnsupported = errors.New("not supported by the disk format")

var _ afero.Fs = (*Fs)(nil)

// Fs exposes an open Session as afero.Fs.
// Files can only be opened for reading, directories can be created and removed.
// Relative paths are resolved against the working directory of the session.
type Fs struct {
	session *Session
}

// NewFs wraps the session. The session must stay open while the Fs is used.
func NewFs(session *Session) *Fs {
	return &Fs{session: session}
}

func pathError(op, name string, err error) error {
	return &os.PathError{Op: op, Path: name, Err: err}
}

// lookupError reports paths which could not be resolved as os.ErrNotExist.
func lookupError(op, name string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrWrongType) {
		err = os.ErrNotExist
	}
	return pathError(op, name, err)
}

func (fs *Fs) Create(name string) (afero.File, error) {
	return nil, pathError("create", name, ErrReadOnly)
}

// Mkdir creates a single directory. The parent has to exist already.
// An existing directory is not an error.
func (fs *Fs) Mkdir(name string, perm os.FileMode) error {
	if err := fs.session.Mkdir(name); err != nil {
		return pathError("mkdir", name, err)
	}
	return nil
}

func (fs *Fs) MkdirAll(path string, perm os.FileMode) error {
	current := "/"
	for _, segment := range splitPath(fs.session.abs(path)) {
		current = AbsPath(current, segment)
		if err := fs.Mkdir(current, perm); err != nil {
			return err
		}
	}
	return nil
}

func (fs *Fs) Open(name string) (afero.File, error) {
	file, err := fs.session.Open(name)
	if err != nil {
		return nil, lookupError("open", name, err)
	}
	return file, nil
}

func (fs *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, pathError("open", name, ErrReadOnly)
	}
	return fs.Open(name)
}

// Remove deletes a file or an empty directory.
func (fs *Fs) Remove(name string) error {
	info, err := fs.Stat(name)
	if err != nil {
		return err
	}

	if info.IsDir() {
		dir, err := fs.session.ListDir(name)
		if err != nil {
			return pathError("remove", name, err)
		}
		if len(dir.Children()) > 0 {
			return pathError("remove", name, syscall.ENOTEMPTY)
		}
	}

	return fs.RemoveAll(name)
}

// RemoveAll deletes a file or a directory including everything in it.
// A missing path is not an error.
func (fs *Fs) RemoveAll(path string) error {
	if err := fs.session.Remove(path); err != nil {
		return pathError("remove", path, err)
	}
	return nil
}

func (fs *Fs) Rename(oldname, newname string) error {
	return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: ErrUnsupported}
}

func (fs *Fs) Stat(name string) (os.FileInfo, error) {
	entry, _, err := fs.session.resolve(splitPath(fs.session.abs(name)))
	if err != nil {
		return nil, lookupError("stat", name, err)
	}
	return entry.FileInfo(), nil
}

func (fs *Fs) Name() string {
	return "fatdisk"
}

func (fs *Fs) Chmod(name string, mode os.FileMode) error {
	return pathError("chmod", name, ErrUnsupported)
}

func (fs *Fs) Chown(name string, uid, gid int) error {
	return pathError("chown", name, ErrUnsupported)
}

func (fs *Fs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return pathError("chtimes", name, ErrUnsupported)
}
