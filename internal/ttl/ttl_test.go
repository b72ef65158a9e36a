package ttl

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openviking/rowstore/data"
)

const sec = uint64(time.Second)

func labels(ds []data.TTLData) []uint64 {
	out := make([]uint64, len(ds))
	for i, d := range ds {
		out[i] = d.Label
	}
	return out
}

func TestIndex_Expired(t *testing.T) {
	x := New(time.Second)
	x.Set(1, 10*sec)
	x.Set(2, 10*sec+sec/2)
	x.Set(3, 12*sec)
	x.Set(4, 5*sec)
	require.Equal(t, 4, x.Len())

	assert.Empty(t, x.Expired(4*sec))

	// Half of bucket 10 is due.
	assert.Equal(t, []uint64{1, 4}, labels(x.Expired(10*sec+sec/4)))
	assert.Equal(t, 2, x.Len())

	assert.Equal(t, []uint64{2, 3}, labels(x.Expired(20*sec)))
	assert.Zero(t, x.Len())
	assert.Zero(t, x.Buckets())
}

func TestIndex_SetMovesLabel(t *testing.T) {
	x := New(time.Second)
	x.Set(7, 3*sec)
	x.Set(7, 30*sec)

	e, ok := x.ExpireAt(7)
	require.True(t, ok)
	assert.Equal(t, 30*sec, e)
	assert.Equal(t, 1, x.Buckets())

	assert.Empty(t, x.Expired(10*sec))
	assert.Equal(t, []uint64{7}, labels(x.Expired(30*sec)))
}

func TestIndex_ClearAndRemove(t *testing.T) {
	x := New(0)
	x.Set(1, 5*sec)
	x.Set(2, 5*sec)
	x.Set(1, 0)
	x.Remove(2)
	x.Remove(99)

	assert.Zero(t, x.Len())
	assert.Zero(t, x.Buckets())
	_, ok := x.ExpireAt(1)
	assert.False(t, ok)
	assert.Empty(t, x.Expired(100*sec))
}

func TestIndex_FarFutureNanosecondBuckets(t *testing.T) {
	x := New(time.Nanosecond)
	far := uint64(1)<<63 + 5
	x.Set(1, far)
	x.Set(2, 1000)

	assert.Equal(t, []uint64{2}, labels(x.Expired(1000)))
	assert.Equal(t, 1, x.Len())
	assert.Empty(t, x.Expired(far-1))

	assert.Equal(t, []uint64{1}, labels(x.Expired(math.MaxUint64)))
	assert.Zero(t, x.Buckets())
}

func TestIndex_Concurrent(t *testing.T) {
	x := New(time.Millisecond)
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				label := uint64(w*1000 + i)
				x.Set(label, uint64(i+1)*uint64(time.Millisecond))
				if i%3 == 0 {
					x.Remove(label)
				}
			}
		}()
	}
	wg.Wait()

	expired := x.Expired(uint64(time.Hour))
	assert.Len(t, expired, 8*(500-167))
	assert.Zero(t, x.Len())
}
