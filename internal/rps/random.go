package rps

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand/v2"
)

// Chooser draws the machine player's move.
type Chooser interface {
	Choose() Choice
}

// ChooserFunc adapts a function to Chooser.
type ChooserFunc func() Choice

func (f ChooserFunc) Choose() Choice { return f() }

// CryptoChooser draws uniformly from crypto/rand and falls back to the
// runtime's pseudo-random source when the system reader fails.
type CryptoChooser struct{}

func (CryptoChooser) Choose() Choice {
	if n, err := rand.Int(rand.Reader, big.NewInt(int64(len(Choices)))); err == nil {
		return Choices[n.Int64()]
	}
	return Choices[mrand.IntN(len(Choices))]
}

// Fixed always returns the same move; handy in tests.
func Fixed(c Choice) Chooser {
	return ChooserFunc(func() Choice { return c })
}
