package bloom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashKnownValues(t *testing.T) {
	tests := []struct {
		data []byte
		seed uint32
		want uint32
	}{
		{[]byte(""), Seed, 0xbc9f1d34},
		{[]byte("a"), Seed, 0x286e9db0},
		{[]byte("ab"), Seed, 0x31d65412},
		{[]byte("abc"), Seed, 0xef75eb8d},
		{[]byte("abcd"), Seed, 0xb9c83353},
		{[]byte("hello"), Seed, 0xf795964e},
		{[]byte("hello world"), Seed, 0xaad1c127},
		{[]byte{0, 0, 0, 0}, Seed, 0x3365f68d},
		{[]byte(""), 0, 0},
		{[]byte("a"), 0, 0xca6c9dd6},
		{[]byte("abcd"), 0, 0x9e87a0d0},
		{[]byte("hello"), 0, 0xc0eb4c52},
		{[]byte("hello world"), 0, 0xd1a4a44a},
	}
	for _, tc := range tests {
		assert.Equalf(t, tc.want, Hash(tc.data, tc.seed), "Hash(%q, %#x)", tc.data, tc.seed)
	}
}

func TestKeyHashUsesSeed(t *testing.T) {
	for _, key := range []string{"", "a", "abcd", "velocitylog"} {
		assert.Equal(t, Hash([]byte(key), Seed), KeyHash([]byte(key)))
	}
}

func TestHashDeterministic(t *testing.T) {
	data := []byte("the quick brown fox")
	first := Hash(data, 7)
	for r := 0; r < 100; r++ {
		require.Equal(t, first, Hash(data, 7))
	}
	assert.Equal(t, []byte("the quick brown fox"), data, "Hash must not modify its input")
}

func TestHashSeedMatters(t *testing.T) {
	data := []byte("abcd")
	assert.NotEqual(t, Hash(data, 0), Hash(data, 1))
}

// A 2 or 3 byte tail contributes only the total length, never its own bytes.
func TestHashShortTailIgnoresTailBytes(t *testing.T) {
	assert.Equal(t, Hash([]byte("ab"), Seed), Hash([]byte("zz"), Seed))
	assert.Equal(t, Hash([]byte("abc"), Seed), Hash([]byte("xyz"), Seed))
	assert.Equal(t, Hash([]byte("abcdef"), Seed), Hash([]byte("abcdXY"), Seed))
	assert.Equal(t, Hash([]byte("abcdefg"), Seed), Hash([]byte("abcdXYZ"), Seed))

	assert.NotEqual(t, Hash([]byte("a"), Seed), Hash([]byte("z"), Seed))
	assert.NotEqual(t, Hash([]byte("abcde"), Seed), Hash([]byte("abcdz"), Seed))
	assert.NotEqual(t, Hash([]byte("abcd"), Seed), Hash([]byte("zbcd"), Seed))
}

func TestHashEmptyInput(t *testing.T) {
	assert.Equal(t, uint32(0x1234), Hash(nil, 0x1234))
	assert.Equal(t, Seed, KeyHash([]byte{}))
}
