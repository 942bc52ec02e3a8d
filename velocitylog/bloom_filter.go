package velocitylog

import (
	bloom "github.com/blackredscarf/bloom-filter"
)

// newFilterBuilder returns the builder used to generate SSTable filters.
// One builder serves every table written by a goroutine.
func newFilterBuilder(bitsPerKey int) *bloom.BloomFilter {
	return bloom.New(bitsPerKey)
}

// mayContain checks the table's filter for key and records the outcome.
func (s *SSTable) mayContain(key string) bool {
	FilterChecksTotal.Inc()
	if !s.filter.MayContain([]byte(key)) {
		FilterNegativesTotal.Inc()
		return false
	}
	return true
}
