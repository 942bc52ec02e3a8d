package velocitylog

import "errors"

var (
	ErrClosed           = errors.New("velocitylog: tree is closed")
	ErrEmptyKey         = errors.New("velocitylog: key must not be empty")
	ErrCorruptEntry     = errors.New("velocitylog: corrupt entry")
	ErrCorruptSSTable   = errors.New("velocitylog: corrupt sstable")
	ErrChecksumMismatch = errors.New("velocitylog: sstable metadata checksum mismatch")
)
