// Package fs abstracts the file operations of the delta log so tests can
// inject I/O faults.
//
// Production code uses fs.Default ([LocalFS]). Tests wrap it in a
// [FaultyFS]:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("deltas.log", fs.Fault{FailAfterBytes: 1024})
//
// Operations take no context.Context: local file calls are not
// interruptible. Remote objects go through package blobstore, which does.
package fs
