package fatdisk

import "errors"

// These errors describe what went wrong inside of the image or the session.
// All errors returned by this package can be matched against them by errors.Is.
var (
	ErrValidation     = errors.New("invalid disk structure")
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrWrongType      = errors.New("wrong file type")
	ErrSpaceExhausted = errors.New("not enough free clusters")
	ErrCorruptChain   = errors.New("corrupt cluster chain")
	ErrNotOpen        = errors.New("no disk is open")
	ErrDuplicateName  = errors.New("duplicate name in directory")
	ErrInvalidName    = errors.New("invalid name")
)
