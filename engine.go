package fatdisk

import (
	"fmt"

	"github.com/aligator/fatdisk/checkpoint"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Option configures an Engine.
type Option func(e *Engine)

// WithLogger sets the logger used by the engine and all sessions it opens.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithHostFs sets the filesystem which contains the images and the files to copy from and to.
func WithHostFs(host afero.Fs) Option {
	return func(e *Engine) {
		e.host = host
	}
}

// Engine is the entry point for a shell. It is either closed or has exactly one open session.
// Every operation returns a Result instead of failing.
type Engine struct {
	host afero.Fs
	log  logrus.FieldLogger

	session *Session
}

// NewEngine creates a closed engine. By default it works on the OS filesystem.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		host: afero.NewOsFs(),
		log:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) ok(format string, args ...interface{}) Result {
	return Result{Message: fmt.Sprintf(format, args...)}
}

func (e *Engine) fail(err error, format string, args ...interface{}) Result {
	msg := fmt.Sprintf(format, args...)
	e.log.WithField("cause", checkpoint.Message(err)).Warn(msg)
	return Result{
		Message: msg + ": " + checkpoint.Message(err),
		Err:     err,
	}
}

func (e *Engine) notOpen(op string) Result {
	return e.fail(checkpoint.Newf(ErrNotOpen, "%v", op), "could not %v", op)
}

// IsOpen reports if a disk is open.
func (e *Engine) IsOpen() bool {
	return e.session != nil
}

// Session returns the open session or nil.
func (e *Engine) Session() *Session {
	return e.session
}

// CreateDisk creates a new image and opens it. An already open disk gets closed first.
func (e *Engine) CreateDisk(path string, params Params) Result {
	e.Close()

	s, err := CreateSession(e.host, path, params, e.log)
	if err != nil {
		return e.fail(err, "could not create disk %v", path)
	}
	e.session = s
	return e.ok("created %v disk %v", s.Boot().Variant(), path)
}

// OpenDisk opens an existing image. An already open disk gets closed first.
func (e *Engine) OpenDisk(path string) Result {
	e.Close()

	s, err := OpenSession(e.host, path, e.log)
	if err != nil {
		return e.fail(err, "could not open disk %v", path)
	}
	e.session = s
	return e.ok("opened %v disk %v", s.Boot().Variant(), path)
}

// Close closes the open disk. Closing a closed engine does nothing.
func (e *Engine) Close() Result {
	if e.session == nil {
		return e.ok("no disk open")
	}

	s := e.session
	e.session = nil
	if err := s.Close(); err != nil {
		return e.fail(err, "could not close disk %v", s.Path())
	}
	return e.ok("closed disk %v", s.Path())
}

// WorkingDir returns the working directory of the open disk or "" if it is closed.
func (e *Engine) WorkingDir() string {
	if e.session == nil {
		return ""
	}
	return e.session.WorkingDir()
}

// ListDir returns the directory at path or nil if it is not available.
func (e *Engine) ListDir(path string) *Directory {
	if e.session == nil {
		e.notOpen("list " + path)
		return nil
	}

	dir, err := e.session.ListDir(path)
	if err != nil {
		e.fail(err, "could not list %v", path)
		return nil
	}
	return dir
}

func (e *Engine) GoToDir(path string) Result {
	if e.session == nil {
		return e.notOpen("change directory")
	}

	if err := e.session.Chdir(path); err != nil {
		return e.fail(err, "could not change directory to %v", path)
	}
	return e.ok("%v", e.session.WorkingDir())
}

func (e *Engine) MkDir(path string) Result {
	if e.session == nil {
		return e.notOpen("create directory")
	}

	if err := e.session.Mkdir(path); err != nil {
		return e.fail(err, "could not create directory %v", path)
	}
	return e.ok("created directory %v", path)
}

func (e *Engine) DeleteFile(path string) Result {
	if e.session == nil {
		return e.notOpen("delete")
	}

	if err := e.session.Remove(path); err != nil {
		return e.fail(err, "could not delete %v", path)
	}
	return e.ok("deleted %v", path)
}

// Cat returns the content of a file as payload.
func (e *Engine) Cat(path string) Result {
	if e.session == nil {
		return e.notOpen("cat")
	}

	text, err := e.session.Cat(path)
	if err != nil {
		return e.fail(err, "could not read %v", path)
	}
	r := e.ok("read %v", path)
	r.Payload = text
	return r
}

func (e *Engine) CopyFileFromSystem(systemPath, diskPath string) Result {
	if e.session == nil {
		return e.notOpen("copy file")
	}

	if err := e.session.CopyIn(systemPath, diskPath); err != nil {
		return e.fail(err, "could not copy %v to %v", systemPath, diskPath)
	}
	return e.ok("copied %v to %v", systemPath, diskPath)
}

func (e *Engine) CopyFileToSystem(diskPath, systemPath string) Result {
	if e.session == nil {
		return e.notOpen("copy file")
	}

	if err := e.session.CopyOut(diskPath, systemPath); err != nil {
		return e.fail(err, "could not copy %v to %v", diskPath, systemPath)
	}
	return e.ok("copied %v to %v", diskPath, systemPath)
}

// GetDiskSpaceInfo returns nil if no disk is open.
func (e *Engine) GetDiskSpaceInfo() *DiskSpaceInfo {
	if e.session == nil {
		return nil
	}

	info := e.session.SpaceInfo()
	return &info
}
