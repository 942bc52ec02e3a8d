package bloom

import (
	"math"
	"math/bits"
)

const (
	// MaxProbes is the largest probe count a filter can carry. A trailer byte
	// above it marks a filter this package does not understand.
	MaxProbes = 30

	// MinBits is the smallest bit array a generated filter uses. Very small
	// key sets would otherwise see a high false positive rate.
	MinBits = 64
)

// Filter is a generated filter: nBytes of bit array followed by a single
// trailer byte holding the probe count.
//
// A Filter is immutable once generated and is safe for concurrent readers.
type Filter []byte

// MayContain reports whether key may have been added to the filter. False
// positives are possible, false negatives are not.
//
// A filter shorter than two bytes matches nothing. A filter whose trailer
// holds a probe count above MaxProbes matches everything.
func (f Filter) MayContain(key []byte) bool {
	if len(f) < 2 {
		return false
	}
	k := f[len(f)-1]
	if k > MaxProbes {
		return true
	}
	nBits := uint64(len(f)-1) * 8

	h := KeyHash(key)
	delta := h>>17 | h<<15
	for j := uint8(0); j < k; j++ {
		bitPos := uint64(h) % nBits
		if f[bitPos/8]&(1<<(bitPos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

// NumBits returns the size of the bit array, or 0 for a malformed filter.
func (f Filter) NumBits() int {
	if len(f) < 2 {
		return 0
	}
	return (len(f) - 1) * 8
}

// Probes returns the probe count stored in the trailer byte, or 0 for a
// malformed filter.
func (f Filter) Probes() uint8 {
	if len(f) < 2 {
		return 0
	}
	return f[len(f)-1]
}

// BitsSet counts the set bits in the bit array.
func (f Filter) BitsSet() int {
	if len(f) < 2 {
		return 0
	}
	n := 0
	for _, b := range f[:len(f)-1] {
		n += bits.OnesCount8(b)
	}
	return n
}

// ProbesForBitsPerKey returns the probe count used for bitsPerKey:
// round(bitsPerKey * 0.69), clamped to [1, MaxProbes].
//
// Builders that truncate instead of rounding pick one probe fewer for many
// sizes (6 instead of 7 at 10 bits per key), so their filters are not
// byte-identical to ours. Either side can still query the other's filters,
// since the probe count is read from the trailer.
func ProbesForBitsPerKey(bitsPerKey int) uint8 {
	if bitsPerKey < 0 {
		bitsPerKey = 0
	}
	// 0.69 is approximately ln(2).
	k := math.Round(float64(bitsPerKey) * 0.69)
	if k < 1 {
		k = 1
	}
	if k > MaxProbes {
		k = MaxProbes
	}
	return uint8(k)
}

// BloomFilter accumulates key hashes and emits Filters from them. Each call
// to Generate consumes the keys added since the previous call, so one
// BloomFilter can build a filter per SSTable in turn.
//
// A BloomFilter is not safe for concurrent use.
type BloomFilter struct {
	bitsPerKey int
	k          uint8
	keyHashes  []uint32
}

// New returns a BloomFilter using bitsPerKey bits of filter per added key.
// Ten bits per key gives a false positive rate of roughly 1%.
func New(bitsPerKey int) *BloomFilter {
	if bitsPerKey < 0 {
		bitsPerKey = 0
	}
	return &BloomFilter{
		bitsPerKey: bitsPerKey,
		k:          ProbesForBitsPerKey(bitsPerKey),
	}
}

// BitsPerKey returns the sizing parameter the builder was created with.
func (bf *BloomFilter) BitsPerKey() int { return bf.bitsPerKey }

// Probes returns the probe count written into every generated filter.
func (bf *BloomFilter) Probes() uint8 { return bf.k }

// Len returns the number of keys added since the last Generate.
func (bf *BloomFilter) Len() int { return len(bf.keyHashes) }

// Add records key for the next Generate. Only the hash of key is kept.
func (bf *BloomFilter) Add(key []byte) {
	bf.keyHashes = append(bf.keyHashes, KeyHash(key))
}

// Generate builds a filter over every key added since the previous call and
// resets the builder. The returned slice is not referenced by the builder.
func (bf *BloomFilter) Generate() Filter {
	nBits := uint64(len(bf.keyHashes)) * uint64(bf.bitsPerKey)
	if nBits < MinBits {
		nBits = MinBits
	}
	nBytes := (nBits + 7) / 8
	nBits = nBytes * 8

	f := make(Filter, nBytes+1)
	f[nBytes] = bf.k

	for _, h := range bf.keyHashes {
		delta := h>>17 | h<<15
		for j := uint8(0); j < bf.k; j++ {
			bitPos := uint64(h) % nBits
			f[bitPos/8] |= 1 << (bitPos % 8)
			h += delta
		}
	}

	// keep the backing array for the next round.
	bf.keyHashes = bf.keyHashes[:0]
	return f
}

// Contains reports whether key may be in filter. It only reads filter, which
// need not have been produced by this builder.
func (bf *BloomFilter) Contains(filter []byte, key []byte) bool {
	return Filter(filter).MayContain(key)
}
