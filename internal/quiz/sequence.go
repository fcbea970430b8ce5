package quiz

// Per-attempt question ordering. The seed is the attempt id, so an
// attempt always presents questions in the same order across reloads
// while distinct attempts get independent orders.
//
// The hash and generator are carried over from the legacy web client;
// existing attempts must keep their ordering, so the exact arithmetic
// matters more than statistical quality. Do not swap in math/rand.

const (
	lcgMultiplier = 9301
	lcgIncrement  = 49297
	lcgModulus    = 233280
)

// seedHash folds a seed string into a 32-bit range: each character code
// is left-shifted by (index mod 24) bits and summed modulo 2^32-1.
func seedHash(seed string) int64 {
	var h int64
	for i, r := range seed {
		h = (h + int64(r)<<(uint(i)%24)) % 4294967295
	}
	return h
}

type lcg struct{ state int64 }

func newLCG(seed string) *lcg { return &lcg{state: seedHash(seed)} }

// next returns a pseudo-random float in [0, 1).
func (g *lcg) next() float64 {
	g.state = (g.state*lcgMultiplier + lcgIncrement) % lcgModulus
	return float64(g.state) / lcgModulus
}

// Shuffle returns the questions reordered deterministically by seed.
// The input slice is not modified.
func Shuffle(seed string, qs []Question) []Question {
	g := newLCG(seed)
	remaining := make([]Question, len(qs))
	copy(remaining, qs)

	out := make([]Question, 0, len(qs))
	for len(remaining) > 0 {
		i := int(g.next() * float64(len(remaining)))
		out = append(out, remaining[i])
		remaining = append(remaining[:i], remaining[i+1:]...)
	}
	return out
}
