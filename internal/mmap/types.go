package mmap

import "errors"

// AccessPattern is a paging hint passed to the kernel.
type AccessPattern int

const (
	// AccessDefault clears any previous hint.
	AccessDefault AccessPattern = iota
	// AccessSequential is used when a snapshot is scanned front to back.
	AccessSequential
	// AccessRandom is used for point lookups into a mapped blob.
	AccessRandom
	// AccessWillNeed asks the kernel to prefetch the range.
	AccessWillNeed
	// AccessDontNeed releases cached pages once a scan is done.
	AccessDontNeed
)

var (
	// ErrClosed is returned when a closed mapping is accessed.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned for files whose size cannot be mapped.
	ErrInvalidSize = errors.New("mmap: invalid file size")
	// ErrInvalidOffset is returned for negative read offsets.
	ErrInvalidOffset = errors.New("mmap: invalid offset")
)
