package game

import "math/rand/v2"

// Rand is the subset of *rand.Rand used by the rules. Tests pass a seeded source.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

type globalRand struct{}

func (globalRand) IntN(n int) int   { return rand.IntN(n) }
func (globalRand) Float64() float64 { return rand.Float64() }

// DefaultRand draws from the process-wide generator.
var DefaultRand Rand = globalRand{}
