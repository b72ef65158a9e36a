// Package ttl tracks candidate expiry times and reports the labels that
// expired.
//
// Labels are grouped into time buckets of a fixed granularity, each bucket a
// roaring64 bitmap, so a sweep touches only the buckets that are due.
package ttl

import (
	"slices"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/openviking/rowstore/data"
)

// DefaultGranularity is the bucket width used when none is given.
const DefaultGranularity = time.Second

// Index maps labels to expiry times. It is safe for concurrent use.
type Index struct {
	mu          sync.Mutex
	granularity uint64
	buckets     map[uint64]*roaring64.Bitmap
	keys        []uint64 // sorted bucket keys
	expiry      map[uint64]uint64
}

// New returns an empty index with buckets of the given width.
func New(granularity time.Duration) *Index {
	if granularity <= 0 {
		granularity = DefaultGranularity
	}
	return &Index{
		granularity: uint64(granularity),
		buckets:     make(map[uint64]*roaring64.Bitmap),
		expiry:      make(map[uint64]uint64),
	}
}

func (x *Index) bucketOf(expireNs uint64) uint64 {
	return expireNs / x.granularity
}

// Set records that label expires at expireNs (unix nanoseconds). Zero
// clears any expiry.
func (x *Index) Set(label, expireNs uint64) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.removeLocked(label)
	if expireNs == 0 {
		return
	}
	key := x.bucketOf(expireNs)
	bm, ok := x.buckets[key]
	if !ok {
		bm = roaring64.New()
		x.buckets[key] = bm
		i, _ := slices.BinarySearch(x.keys, key)
		x.keys = slices.Insert(x.keys, i, key)
	}
	bm.Add(label)
	x.expiry[label] = expireNs
}

// Remove forgets label.
func (x *Index) Remove(label uint64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(label)
}

func (x *Index) removeLocked(label uint64) {
	old, ok := x.expiry[label]
	if !ok {
		return
	}
	delete(x.expiry, label)
	key := x.bucketOf(old)
	bm := x.buckets[key]
	bm.Remove(label)
	if bm.IsEmpty() {
		x.dropBucketLocked(key)
	}
}

func (x *Index) dropBucketLocked(key uint64) {
	delete(x.buckets, key)
	if i, ok := slices.BinarySearch(x.keys, key); ok {
		x.keys = slices.Delete(x.keys, i, i+1)
	}
}

// ExpireAt returns the expiry of label.
func (x *Index) ExpireAt(label uint64) (uint64, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.expiry[label]
	return e, ok
}

// Expired removes and returns every label whose expiry is at or before
// nowNs, in ascending label order.
func (x *Index) Expired(nowNs uint64) []data.TTLData {
	x.mu.Lock()
	defer x.mu.Unlock()

	due := roaring64.New()
	nowKey := x.bucketOf(nowNs)
	for len(x.keys) > 0 && x.keys[0] <= nowKey {
		key := x.keys[0]
		bm := x.buckets[key]
		if key < nowKey {
			// Every expiry in the bucket precedes nowNs.
			due.Or(bm)
			x.dropBucketLocked(key)
			continue
		}
		// The current bucket may hold expiries after nowNs.
		var hit []uint64
		it := bm.Iterator()
		for it.HasNext() {
			label := it.Next()
			if x.expiry[label] <= nowNs {
				hit = append(hit, label)
			}
		}
		for _, label := range hit {
			bm.Remove(label)
			due.Add(label)
		}
		if bm.IsEmpty() {
			x.dropBucketLocked(key)
		}
		break
	}

	if due.IsEmpty() {
		return nil
	}
	out := make([]data.TTLData, 0, due.GetCardinality())
	it := due.Iterator()
	for it.HasNext() {
		label := it.Next()
		delete(x.expiry, label)
		out = append(out, data.TTLData{Label: label})
	}
	return out
}

// Len returns the number of labels with an expiry.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.expiry)
}

// Buckets returns the number of non-empty time buckets.
func (x *Index) Buckets() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.keys)
}
