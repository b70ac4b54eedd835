package fatdisk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/aligator/fatdisk/checkpoint"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// blockDevice is the part of the image file used for all reads and writes after opening.
// It mainly exists to be able to inject failing devices in tests.
// Generated mock using mockgen:
//  mockgen -source=session.go -destination=session_mock.go -package fatdisk
type blockDevice interface {
	io.ReaderAt
	io.WriterAt
}

// Session is a disk image opened for reading and writing.
// It owns the image exclusively until Close is called.
type Session struct {
	log  logrus.FieldLogger
	host afero.Fs
	path string

	image afero.File
	dev   blockDevice

	boot  *BootRecord
	table *Table
	wd    string
}

// CreateSession creates a new empty image at path on the host.
func CreateSession(host afero.Fs, path string, params Params, log logrus.FieldLogger) (*Session, error) {
	exists, err := afero.Exists(host, path)
	if err != nil {
		return nil, checkpoint.From(err)
	}
	if exists {
		return nil, checkpoint.Newf(ErrAlreadyExists, "%v", path)
	}

	boot, err := NewBootRecord(params)
	if err != nil {
		return nil, checkpoint.Wrap(err, fmt.Errorf("could not create boot record for %v", path))
	}

	table, err := NewTable(boot.Variant(), boot.TableEntries(), boot.RootCluster())
	if err != nil {
		return nil, checkpoint.From(err)
	}

	image, err := host.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, checkpoint.From(err)
	}

	s := &Session{
		log:   log,
		host:  host,
		path:  path,
		image: image,
		dev:   image,
		boot:  boot,
		table: table,
		wd:    "/",
	}

	if err := s.format(); err != nil {
		_ = image.Close()
		_ = host.Remove(path)
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"path":    path,
		"variant": boot.Variant(),
		"size":    boot.ImageSize(),
	}).Info("created disk")
	return s, nil
}

func (s *Session) format() error {
	if err := s.image.Truncate(s.boot.ImageSize()); err != nil {
		return checkpoint.From(err)
	}

	root := s.boot.RootCluster()
	return s.writeDirectory(NewDirectory(root, root))
}

// OpenSession opens an existing image.
func OpenSession(host afero.Fs, path string, log logrus.FieldLogger) (*Session, error) {
	info, err := host.Stat(path)
	if os.IsNotExist(err) {
		return nil, checkpoint.Newf(ErrNotFound, "%v", path)
	}
	if err != nil {
		return nil, checkpoint.From(err)
	}
	if info.IsDir() {
		return nil, checkpoint.Newf(ErrWrongType, "%v is a directory", path)
	}

	image, err := host.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, checkpoint.From(err)
	}

	s := &Session{
		log:   log,
		host:  host,
		path:  path,
		image: image,
		dev:   image,
		wd:    "/",
	}

	if err := s.load(); err != nil {
		_ = image.Close()
		return nil, checkpoint.Wrap(err, fmt.Errorf("could not open %v", path))
	}

	s.log.WithFields(logrus.Fields{
		"path":    path,
		"variant": s.boot.Variant(),
	}).Info("opened disk")
	return s, nil
}

func (s *Session) load() error {
	header := make([]byte, fat32HeaderSize)
	n, err := s.dev.ReadAt(header, 0)
	if err != nil && err != io.EOF {
		return checkpoint.From(err)
	}

	s.boot, err = ParseBootRecord(header[:n])
	if err != nil {
		return err
	}

	info, err := s.image.Stat()
	if err != nil {
		return checkpoint.From(err)
	}
	if info.Size() < s.boot.FirstSectorOffset() {
		return checkpoint.Newf(ErrValidation, "image has %d bytes but the allocation table ends at %d", info.Size(), s.boot.FirstSectorOffset())
	}

	if err := s.reloadTable(); err != nil {
		return err
	}

	if _, err := s.readRoot(); err != nil {
		return checkpoint.Wrap(err, fmt.Errorf("%w: could not read the root directory", ErrValidation))
	}
	return nil
}

// reloadTable replaces the in memory table by the one stored in the image.
func (s *Session) reloadTable() error {
	region := io.NewSectionReader(s.dev, s.boot.HeaderSize(), s.boot.FATSectionSize())
	table, err := ReadTable(s.boot.Variant(), region, s.boot.TableEntries())
	if err != nil {
		return err
	}
	s.table = table
	return nil
}

// Close releases the image. The session cannot be used afterwards.
func (s *Session) Close() error {
	err := s.image.Close()
	s.log.WithField("path", s.path).Info("closed disk")
	return checkpoint.From(err)
}

func (s *Session) Boot() *BootRecord { return s.boot }
func (s *Session) Path() string      { return s.path }

// WorkingDir is the absolute path used to resolve relative paths.
func (s *Session) WorkingDir() string { return s.wd }

func (s *Session) abs(p string) string {
	return AbsPath(s.wd, p)
}

// clustersFor is the number of clusters needed to store size bytes.
func (s *Session) clustersFor(size int64) int {
	bc := s.boot.BytesInCluster()
	return int((size + bc - 1) / bc)
}

func (s *Session) readCluster(cluster uint32, buf []byte) error {
	n, err := s.dev.ReadAt(buf, s.boot.ClusterOffset(cluster))
	if n == len(buf) {
		return nil
	}
	if err != nil && err != io.EOF {
		return checkpoint.Wrap(err, fmt.Errorf("could not read cluster %d", cluster))
	}
	return checkpoint.Newf(ErrCorruptChain, "cluster %d lies beyond the end of the image", cluster)
}

func (s *Session) readChain(chain []uint32) ([]byte, error) {
	bc := s.boot.BytesInCluster()
	data := make([]byte, int64(len(chain))*bc)
	for i, c := range chain {
		if err := s.readCluster(c, data[int64(i)*bc:int64(i+1)*bc]); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// writeChain writes data into the clusters of chain. The last cluster gets padded with zeros.
func (s *Session) writeChain(chain []uint32, data []byte) error {
	bc := s.boot.BytesInCluster()
	if int64(len(data)) > int64(len(chain))*bc {
		return checkpoint.Newf(ErrSpaceExhausted, "%d bytes do not fit into %d clusters", len(data), len(chain))
	}

	buf := make([]byte, bc)
	for i, c := range chain {
		for j := range buf {
			buf[j] = 0
		}
		if start := int64(i) * bc; start < int64(len(data)) {
			copy(buf, data[start:])
		}

		if _, err := s.dev.WriteAt(buf, s.boot.ClusterOffset(c)); err != nil {
			return checkpoint.Wrap(err, fmt.Errorf("could not write cluster %d", c))
		}
	}
	return nil
}

// flush writes the boot record and the table into the image.
func (s *Session) flush() error {
	if _, err := s.dev.WriteAt(s.boot.Bytes(), 0); err != nil {
		return checkpoint.Wrap(err, errors.New("could not write boot record"))
	}

	var buf bytes.Buffer
	if _, err := s.table.WriteTo(&buf); err != nil {
		return err
	}
	region := make([]byte, s.boot.FATSectionSize())
	copy(region, buf.Bytes())

	if _, err := s.dev.WriteAt(region, s.boot.HeaderSize()); err != nil {
		return checkpoint.Wrap(err, errors.New("could not write allocation table"))
	}

	s.log.WithField("free", s.table.FreeCount()).Debug("flushed allocation table")
	return nil
}

func (s *Session) readDirectory(e DirectoryEntry) (*Directory, error) {
	if !e.IsDir() {
		return nil, checkpoint.Newf(ErrWrongType, "%q is not a directory", e.DisplayName())
	}

	chain, err := s.table.Chain(e.Cluster())
	if err != nil {
		return nil, err
	}
	data, err := s.readChain(chain)
	if err != nil {
		return nil, err
	}

	return ParseDirectory(data)
}

func (s *Session) readRoot() (*Directory, error) {
	return s.readDirectory(NewDirEntry(".", s.boot.RootCluster()))
}

// writeDirectory stores all staged changes of d in its own chain, which grows or shrinks as needed.
func (s *Session) writeDirectory(d *Directory) error {
	chain, err := s.table.Resize(d.SelfCluster(), s.clustersFor(int64(d.EncodedSize())))
	if err != nil {
		return err
	}

	if err := s.writeChain(chain, d.Bytes()); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"cluster": d.SelfCluster(),
		"count":   len(chain),
	}).Debug("wrote directory")
	return s.flush()
}

// resolve walks the segments from the root.
// It returns the entry and the directory containing it. The root resolves to its own "." entry.
func (s *Session) resolve(segments []string) (DirectoryEntry, *Directory, error) {
	dir, err := s.readRoot()
	if err != nil {
		return DirectoryEntry{}, nil, err
	}

	entry := dir.Self()
	for i, name := range segments {
		if i > 0 {
			if !entry.IsDir() {
				return DirectoryEntry{}, nil, checkpoint.Newf(ErrWrongType, "%q is not a directory", entry.DisplayName())
			}
			if dir, err = s.readDirectory(entry); err != nil {
				return DirectoryEntry{}, nil, err
			}
		}

		var ok bool
		if entry, ok = dir.Lookup(lookupName(name)); !ok {
			return DirectoryEntry{}, nil, checkpoint.Newf(ErrNotFound, "no entry %q", name)
		}
	}

	return entry, dir, nil
}

func (s *Session) openDirectory(segments []string) (*Directory, error) {
	entry, _, err := s.resolve(segments)
	if err != nil {
		return nil, err
	}
	return s.readDirectory(entry)
}

// parentOf opens the directory which contains the last segment.
func (s *Session) parentOf(segments []string) (*Directory, string, error) {
	if len(segments) == 0 {
		return nil, "", checkpoint.Newf(ErrInvalidName, "the root directory has no parent")
	}

	parent, err := s.openDirectory(segments[:len(segments)-1])
	if err != nil {
		return nil, "", err
	}
	return parent, segments[len(segments)-1], nil
}

// newEntry builds the entry for a new file or directory named name.
func newEntry(name string, attribute byte, size uint32) (DirectoryEntry, error) {
	base, ext := splitName(name)
	if base == "" {
		return DirectoryEntry{}, checkpoint.Newf(ErrInvalidName, "%q", name)
	}
	return NewDirectoryEntry(base, ext, attribute, 0, size), nil
}

// mutate runs fn and brings the in memory table back to the stored state if it fails.
func (s *Session) mutate(op, p string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}

	if reloadErr := s.reloadTable(); reloadErr != nil {
		s.log.WithError(reloadErr).Error("could not restore the allocation table")
	}
	return checkpoint.Wrap(err, fmt.Errorf("%v %v", op, p))
}

// ListDir reads the directory at p.
func (s *Session) ListDir(p string) (*Directory, error) {
	p = s.abs(p)
	dir, err := s.openDirectory(splitPath(p))
	return dir, checkpoint.Wrap(err, fmt.Errorf("list %v", p))
}

// Chdir changes the working directory. It does not get validated again afterwards.
func (s *Session) Chdir(p string) error {
	p = s.abs(p)
	if _, err := s.openDirectory(splitPath(p)); err != nil {
		return checkpoint.Wrap(err, fmt.Errorf("chdir %v", p))
	}
	s.wd = p
	return nil
}

// Mkdir creates a directory. Nothing happens if it already exists.
func (s *Session) Mkdir(p string) error {
	p = s.abs(p)
	return s.mutate("mkdir", p, func() error {
		segments := splitPath(p)
		if len(segments) == 0 {
			return nil
		}

		parent, name, err := s.parentOf(segments)
		if err != nil {
			return err
		}

		entry, err := newEntry(name, AttrDirectory, 0)
		if err != nil {
			return err
		}

		if existing, ok := parent.Lookup(entry.DisplayName()); ok {
			if existing.IsDir() {
				return nil
			}
			return checkpoint.Newf(ErrWrongType, "%q is a file", existing.DisplayName())
		}

		child := NewDirectory(0, parent.SelfCluster())
		chain, err := s.table.Allocate(s.clustersFor(int64(child.EncodedSize())))
		if err != nil {
			return err
		}
		child.RelocateSelf(chain[0])
		if err := s.writeChain(chain, child.Bytes()); err != nil {
			return err
		}

		s.log.WithFields(logrus.Fields{
			"path":    p,
			"cluster": chain[0],
			"count":   len(chain),
		}).Debug("allocated directory")

		if err := parent.StageAppend(entry.withCluster(chain[0])); err != nil {
			return err
		}
		return s.writeDirectory(parent)
	})
}

// Remove deletes a file or a directory with all of its content.
// Removing something which does not exist succeeds without changing anything.
func (s *Session) Remove(p string) error {
	p = s.abs(p)
	return s.mutate("remove", p, func() error {
		segments := splitPath(p)
		if len(segments) == 0 {
			return checkpoint.Newf(ErrInvalidName, "cannot remove the root directory")
		}

		parent, name, err := s.parentOf(segments)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrWrongType) {
			return nil
		}
		if err != nil {
			return err
		}

		entry, ok := parent.Lookup(lookupName(name))
		if !ok {
			return nil
		}
		if entry.IsSelf() || entry.IsParent() {
			return checkpoint.Newf(ErrInvalidName, "cannot remove %q", name)
		}

		if err := s.release(entry); err != nil {
			return err
		}
		parent.StageDelete(entry)
		return s.writeDirectory(parent)
	})
}

// release frees the chain of e. Directories get emptied depth first before.
func (s *Session) release(e DirectoryEntry) error {
	if e.IsDir() {
		dir, err := s.readDirectory(e)
		if err != nil {
			return err
		}
		for _, child := range dir.Children() {
			if err := s.release(child); err != nil {
				return err
			}
		}
	}

	s.log.WithFields(logrus.Fields{
		"name":    e.DisplayName(),
		"cluster": e.Cluster(),
	}).Debug("freeing chain")
	return s.table.Free(e.Cluster())
}

// CopyIn copies the host file src into the image at dst.
func (s *Session) CopyIn(src, dst string) error {
	dst = s.abs(dst)
	return s.mutate("copy in", dst, func() error {
		info, err := s.host.Stat(src)
		if os.IsNotExist(err) {
			return checkpoint.Newf(ErrNotFound, "host file %v", src)
		}
		if err != nil {
			return checkpoint.From(err)
		}
		if info.IsDir() {
			return checkpoint.Newf(ErrWrongType, "host file %v is a directory", src)
		}

		data, err := afero.ReadFile(s.host, src)
		if err != nil {
			return checkpoint.From(err)
		}
		if int64(len(data)) > math.MaxUint32 {
			return checkpoint.Newf(ErrSpaceExhausted, "%v has %d bytes which exceeds the maximum file size", src, len(data))
		}

		segments := splitPath(dst)
		if len(segments) == 0 {
			return checkpoint.Newf(ErrAlreadyExists, "the root directory")
		}
		parent, name, err := s.parentOf(segments)
		if err != nil {
			return err
		}

		entry, err := newEntry(name, 0, uint32(len(data)))
		if err != nil {
			return err
		}
		if _, ok := parent.Lookup(entry.DisplayName()); ok {
			return checkpoint.Newf(ErrAlreadyExists, "%q", entry.DisplayName())
		}

		chain, err := s.table.Allocate(s.clustersFor(int64(len(data))))
		if err != nil {
			return err
		}
		if len(chain) > 0 {
			if err := s.writeChain(chain, data); err != nil {
				return err
			}
			entry = entry.withCluster(chain[0])
		}

		s.log.WithFields(logrus.Fields{
			"path":    dst,
			"cluster": entry.Cluster(),
			"count":   len(chain),
		}).Debug("allocated file")

		if err := parent.StageAppend(entry); err != nil {
			return err
		}
		return s.writeDirectory(parent)
	})
}

// CopyOut copies the file at src out of the image into the host file dst.
func (s *Session) CopyOut(src, dst string) error {
	src = s.abs(src)
	exists, err := afero.Exists(s.host, dst)
	if err != nil {
		return checkpoint.From(err)
	}
	if exists {
		return checkpoint.Wrap(checkpoint.Newf(ErrAlreadyExists, "host file %v", dst), fmt.Errorf("copy out %v", src))
	}

	data, err := s.readFile(src)
	if err != nil {
		return checkpoint.Wrap(err, fmt.Errorf("copy out %v", src))
	}

	return checkpoint.From(afero.WriteFile(s.host, dst, data, 0644))
}

// Cat returns the content of the file at p as text.
func (s *Session) Cat(p string) (string, error) {
	p = s.abs(p)
	data, err := s.readFile(p)
	if err != nil {
		return "", checkpoint.Wrap(err, fmt.Errorf("cat %v", p))
	}
	return string(data), nil
}

func (s *Session) readFile(p string) ([]byte, error) {
	entry, _, err := s.resolve(splitPath(p))
	if err != nil {
		return nil, err
	}
	if entry.IsDir() {
		return nil, checkpoint.Newf(ErrWrongType, "%q is a directory", entry.DisplayName())
	}
	if entry.Size() == 0 {
		return []byte{}, nil
	}

	return s.readFileAt(entry.Cluster(), int64(entry.Size()), 0, int64(entry.Size()))
}

// readFileAt reads up to readSize bytes of a file starting at offset.
// It returns io.EOF if less than readSize bytes were left.
func (s *Session) readFileAt(cluster uint32, fileSize, offset, readSize int64) ([]byte, error) {
	if offset >= fileSize {
		return nil, io.EOF
	}

	end := offset + readSize
	truncated := end > fileSize
	if truncated {
		end = fileSize
	}

	chain, err := s.table.Chain(cluster)
	if err != nil {
		return nil, err
	}

	bc := s.boot.BytesInCluster()
	if int64(len(chain))*bc < fileSize {
		return nil, checkpoint.Newf(ErrCorruptChain, "file of %d bytes starting at cluster %d has only %d clusters", fileSize, cluster, len(chain))
	}

	first := offset / bc
	last := (end - 1) / bc
	data := make([]byte, 0, end-offset)
	buf := make([]byte, bc)
	for i := first; i <= last; i++ {
		if err := s.readCluster(chain[i], buf); err != nil {
			return nil, err
		}

		from, to := int64(0), bc
		if i == first {
			from = offset % bc
		}
		if i == last {
			to = (end-1)%bc + 1
		}
		data = append(data, buf[from:to]...)
	}

	if truncated {
		return data, io.EOF
	}
	return data, nil
}

// readDirEntries returns the entries of the directory starting at cluster without "." and "..".
func (s *Session) readDirEntries(cluster uint32) ([]DirectoryEntry, error) {
	dir, err := s.readDirectory(NewDirEntry("", cluster))
	if err != nil {
		return nil, err
	}
	return dir.Children(), nil
}

// SpaceInfo returns the usage of the disk.
func (s *Session) SpaceInfo() DiskSpaceInfo {
	total := int64(s.boot.SectorsOnDisk()) * int64(s.boot.BytesInSector())
	free := int64(s.table.FreeCount()) * s.boot.BytesInCluster()
	return DiskSpaceInfo{
		Variant: s.boot.Variant(),
		Total:   total,
		Free:    free,
		Used:    total - free,
	}
}

// Open opens the file or directory at p for reading.
func (s *Session) Open(p string) (*File, error) {
	p = s.abs(p)
	entry, _, err := s.resolve(splitPath(p))
	if err != nil {
		return nil, checkpoint.Wrap(err, fmt.Errorf("open %v", p))
	}

	return &File{
		src:          s,
		path:         p,
		isDirectory:  entry.IsDir(),
		firstCluster: entry.Cluster(),
		stat:         entry.FileInfo(),
	}, nil
}

// FS returns the session as io/fs.FS.
func (s *Session) FS() GoFs {
	return GoFs{session: s}
}
