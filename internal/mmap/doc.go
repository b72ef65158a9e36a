// Package mmap maps snapshot blobs read-only into memory.
//
// The local blob store hands mapped bytes to the snapshot reader so that a
// restore decodes rows straight out of the page cache:
//
//	m, err := mmap.Open(path)
//	if err != nil { ... }
//	defer m.Close()
//
//	_ = m.Advise(mmap.AccessSequential)
//	rows := m.Bytes()
//
// Unix builds use mmap(2) and madvise(2). Windows uses
// CreateFileMapping/MapViewOfFile and ignores access hints.
//
// A Mapping is safe for concurrent reads. Close is idempotent, but slices
// returned by Bytes must not be touched after it returns.
package mmap
