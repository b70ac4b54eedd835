// Package checkpoint decorates errors with the file and line they passed through,
// which results in something similar to a stacktrace when printed.
// Every error added to a checkpoint can still be checked by errors.Is and retrieved by errors.As.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// From wraps err by a new checkpoint which records the caller.
// It returns nil if err == nil.
func From(err error) error {
	// io.EOF must stay io.EOF so readers can compare it directly.
	// https://github.com/golang/go/issues/39155
	if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
		return err
	}

	return newCheckpoint(err, nil, 2)
}

// Wrap adds a checkpoint to prev which is described by err.
// errors.Is matches both, the describing err and anything in the prev chain:
//  var ErrMkdir = errors.New("could not create directory")
//
//  func mkdir() error {
//  	err := allocate()
//  	return checkpoint.Wrap(err, ErrMkdir)
//  }
// Wrap returns nil if prev == nil, so it can be used directly on return values.
func Wrap(prev, err error) error {
	if prev == nil || prev == io.EOF {
		return prev
	}

	return newCheckpoint(err, prev, 2)
}

// Newf creates a checkpoint for a new error of the given kind.
// The kind is matched by errors.Is, the formatted text only adds detail:
//  checkpoint.Newf(ErrNotFound, "no entry %q in %v", name, dir)
func Newf(kind error, format string, args ...interface{}) error {
	return newCheckpoint(fmt.Errorf("%w: "+format, append([]interface{}{kind}, args...)...), nil, 2)
}

func newCheckpoint(err, prev error, skip int) *checkpoint {
	_, file, line, ok := runtime.Caller(skip)

	return &checkpoint{
		err:  err,
		prev: prev,

		callerOk: ok,
		file:     filepath.Base(file),
		line:     line,
	}
}

type checkpoint struct {
	err  error
	prev error

	callerOk bool
	file     string
	line     int
}

func (e *checkpoint) location() string {
	if !e.callerOk {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", e.file, e.line)
}

func (e *checkpoint) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n\t%v", e.location(), e.err)

	if e.prev == nil {
		return b.String()
	}

	// Errors which did not pass a checkpoint have no location.
	prevErrString := e.prev.Error()
	if _, ok := e.prev.(*checkpoint); !ok {
		prevErrString = "File: unknown\n\t" + strings.ReplaceAll(prevErrString, "\n", "\n\t")
	}
	b.WriteString("\n")
	b.WriteString(prevErrString)
	return b.String()
}

// Message returns only the describing messages of all checkpoints without any location, joined by ": ".
func Message(err error) string {
	var parts []string
	for err != nil {
		c, ok := err.(*checkpoint)
		if !ok {
			parts = append(parts, err.Error())
			break
		}
		if c.err != nil {
			parts = append(parts, c.err.Error())
		}
		err = c.prev
	}
	return strings.Join(parts, ": ")
}

func (e *checkpoint) Unwrap() error {
	return e.prev
}

func (e *checkpoint) Is(target error) bool {
	return errors.Is(e.err, target)
}

func (e *checkpoint) As(target interface{}) bool {
	return errors.As(e.err, target)
}
