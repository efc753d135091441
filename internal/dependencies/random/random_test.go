package random

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const urlSafe = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

func TestIntnRange(t *testing.T) {
	r := New()
	seen := make(map[int]bool)
	for i := 0; i < 2000; i++ {
		v := r.Intn(10)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 10)
		seen[v] = true
	}
	assert.Len(t, seen, 10)
	assert.Equal(t, 0, r.Intn(0))
	assert.Equal(t, 0, r.Intn(-3))
}

func TestStringUsesAlphabet(t *testing.T) {
	r := New()

	for _, alphabet := range []string{urlSafe, "abc"} {
		s := r.String(43, alphabet)
		assert.Len(t, s, 43)
		for _, c := range s {
			assert.True(t, strings.ContainsRune(alphabet, c), "unexpected %q", c)
		}
	}

	assert.Empty(t, r.String(0, urlSafe))
	assert.Empty(t, r.String(5, ""))
}

func TestStringDistinct(t *testing.T) {
	r := New()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s := r.String(43, urlSafe)
		assert.False(t, seen[s])
		seen[s] = true
	}
}
