package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/openviking/rowstore/data"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniform fills dst with random values in range [0, 1).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// UniformVectors generates random vectors with values in range [0, 1).
// Uses a single backing array for efficiency.
func (r *RNG) UniformVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	backing := make([]float32, num*dimensions)
	vectors := make([][]float32, num)
	for i := range num {
		vec := backing[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
		vectors[i] = vec
	}
	return vectors
}

// UnitVector generates a single L2-normalized random vector.
func (r *RNG) UnitVector(dimensions int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unitVectorLocked(dimensions)
}

func (r *RNG) unitVectorLocked(dimensions int) []float32 {
	vec := make([]float32, dimensions)
	var norm float64
	for j := range vec {
		v := r.rand.NormFloat64()
		vec[j] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1.0 / math.Sqrt(norm))
	for j := range vec {
		vec[j] *= inv
	}
	return vec
}

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// String returns a random lowercase alphanumeric string of length n.
func (r *RNG) String(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stringLocked(n)
}

func (r *RNG) stringLocked(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[r.rand.Intn(len(alphabet))]
	}
	return string(b)
}

// Sparse returns n random terms with matching weights in (0, 1].
func (r *RNG) Sparse(n int) ([]string, []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sparseLocked(n)
}

func (r *RNG) sparseLocked(n int) ([]string, []float32) {
	if n == 0 {
		return nil, nil
	}
	terms := make([]string, n)
	values := make([]float32, n)
	for i := range n {
		terms[i] = r.stringLocked(1 + r.rand.Intn(8))
		values[i] = 1 - r.rand.Float32()
	}
	return terms, values
}

func (r *RNG) fieldsLocked() string {
	return fmt.Sprintf(`{"category":%q,"rank":%d}`, r.stringLocked(4), r.rand.Intn(1000))
}

// Candidate returns a random candidate with the given label and vector
// dimension. Sparse terms, fields and expiry are each present about half
// the time.
func (r *RNG) Candidate(label uint64, dim int) data.CandidateData {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := data.CandidateData{
		Label:  label,
		Vector: r.unitVectorLocked(dim),
	}
	if dim == 0 {
		c.Vector = nil
	}
	if r.rand.Intn(2) == 0 {
		c.SparseRawTerms, c.SparseValues = r.sparseLocked(1 + r.rand.Intn(6))
	}
	if r.rand.Intn(2) == 0 {
		c.Fields = r.fieldsLocked()
	}
	if r.rand.Intn(2) == 0 {
		c.ExpireNsTs = uint64(r.rand.Int63n(math.MaxInt64>>1) + 1)
	}
	return c
}

// Candidates returns n random candidates labelled 1..n.
func (r *RNG) Candidates(n, dim int) []data.CandidateData {
	out := make([]data.CandidateData, n)
	for i := range n {
		out[i] = r.Candidate(uint64(i+1), dim)
	}
	return out
}

// Delta returns a random upsert or delete delta for label.
func (r *RNG) Delta(label uint64, dim int) data.DeltaRecord {
	if r.Intn(4) == 0 {
		r.mu.Lock()
		old := r.fieldsLocked()
		r.mu.Unlock()
		return data.NewDeleteDelta(label, old)
	}
	c := r.Candidate(label, dim)
	return c.Delta("")
}
