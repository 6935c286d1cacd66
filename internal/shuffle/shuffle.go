// Package shuffle implements the Fisher-Yates permutation used by the
// upload-stream generator to randomize event order within a tick.
package shuffle

import "math/rand/v2"

// Shuffle permutes s in place using Fisher-Yates with uniform draws from r:
// for i from len(s)-1 down to 1, swap s[i] with s[j] for a uniformly drawn
// j in [0, i]. Every permutation is produced with equal probability.
func Shuffle[T any](r *rand.Rand, s []T) {
	for i := len(s) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// Seq is a lazy view over s in shuffled order: element i of Seq is the i-th
// element Shuffle would have yielded, without mutating or copying s. NewSeq
// materializes the permutation once, at construction, as an internal index
// array rather than shuffling s itself — useful when s must stay in its
// original order for other readers.
type Seq[T any] struct {
	items []T
	order []int
}

// NewSeq builds a shuffled view over items using r. items is not mutated.
func NewSeq[T any](r *rand.Rand, items []T) *Seq[T] {
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	Shuffle(r, order)

	return &Seq[T]{items: items, order: order}
}

// Len returns the number of elements in the sequence.
func (s *Seq[T]) Len() int {
	return len(s.order)
}

// At returns the i-th element of the shuffled sequence.
func (s *Seq[T]) At(i int) T {
	return s.items[s.order[i]]
}

// All iterates the sequence in shuffled order.
func (s *Seq[T]) All(yield func(int, T) bool) {
	for i := range s.order {
		if !yield(i, s.At(i)) {
			return
		}
	}
}
