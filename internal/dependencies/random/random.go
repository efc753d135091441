package random

import (
	"crypto/rand"
	"encoding/binary"
)

// Random provides random number generation that can be mocked for testing
type Random interface {
	// Intn returns a random int in [0, n)
	Intn(n int) int

	// String generates a random string of the given length from the given alphabet
	String(length int, alphabet string) string
}

// CryptoRandom implements Random using crypto/rand
type CryptoRandom struct{}

// New creates a new CryptoRandom
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// Intn returns a uniformly distributed int in [0, n). Values that would
// bias the modulo are rejected and redrawn.
func (r *CryptoRandom) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	bound := uint64(n)
	limit := ^uint64(0) - (^uint64(0) % bound)
	var b [8]byte
	for {
		// crypto/rand.Read does not fail on supported platforms
		_, _ = rand.Read(b[:])
		v := binary.LittleEndian.Uint64(b[:])
		if v < limit {
			return int(v % bound)
		}
	}
}

// String generates a random string of the given length from the given alphabet.
// Each character is drawn independently, so entropy is length*log2(len(alphabet)) bits.
func (r *CryptoRandom) String(length int, alphabet string) string {
	if length <= 0 || len(alphabet) == 0 {
		return ""
	}
	if len(alphabet) == 64 {
		return r.string64(length, alphabet)
	}
	result := make([]byte, length)
	for i := range result {
		result[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(result)
}

// string64 maps the low six bits of each random byte, which is unbiased
// for a 64 symbol alphabet and needs one read for the whole value.
func (r *CryptoRandom) string64(length int, alphabet string) string {
	result := make([]byte, length)
	_, _ = rand.Read(result)
	for i, b := range result {
		result[i] = alphabet[b&63]
	}
	return string(result)
}
