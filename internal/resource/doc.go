// Package resource limits what a store may consume.
//
//   - Memory: row bytes held by the in-memory table. AcquireMemory never
//     blocks; it fails with ErrMemoryLimitExceeded so writes can be rejected.
//   - Background workers: concurrent snapshot jobs (weighted semaphore).
//   - IO: snapshot throughput (token bucket), so snapshots do not starve
//     foreground writes.
//
// A nil *Controller is valid and imposes no limits:
//
//	var rc *resource.Controller
//	_ = rc.AcquireMemory(1 << 30) // always nil
package resource
