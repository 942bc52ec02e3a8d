/*
Package bloom builds and queries self-describing Bloom filters.

A storage engine keeps one filter per immutable file and checks it before
reading anything from disk: a negative answer means the key is definitely
absent, a positive answer means it may be present.

# Building

Keys are added to a BloomFilter, which keeps only their 32-bit hashes.
Generate lays the hashes out into a Filter and clears the builder so it can
be reused for the next file:

	bf := bloom.New(10)
	for _, k := range keys {
		bf.Add(k)
	}
	f := bf.Generate()

# Layout

	+----------------------------+  nBytes >= 8
	| bit array (LSB0)           |  bit i is byte i/8, mask 1<<(i%8)
	+----------------------------+  1 byte
	| k (probe count, 1..30)     |
	+----------------------------+

The bit array holds max(keys*bitsPerKey, 64) bits rounded up to a whole byte.
Each key sets k bits derived from one hash h by double hashing, stepping by
delta = h>>17 | h<<15 with 32-bit wraparound.

A Filter carries its own probe count, so a reader needs only the bytes. A
trailer above 30 is reserved and matches every key; a buffer shorter than two
bytes matches none.
*/
package bloom
