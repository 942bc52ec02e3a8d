package velocitylog

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	bloom "github.com/blackredscarf/bloom-filter"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestSSTable writes the standard test memtable and, when reopen is set,
// returns the table read back from disk instead of the one just written.
func writeTestSSTable(t *testing.T, reopen bool) *SSTable {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "test.sst")

	memtable := NewMemtable()
	populateMemtableWithTestData(memtable)

	sstable, err := WriteSSTable(memtable.Entries(), filename, bloom.New(DefaultBitsPerKey))
	require.NoError(t, err)
	if reopen {
		require.NoError(t, sstable.Close())
		sstable, err = OpenSSTable(filename)
		require.NoError(t, err)
	}
	t.Cleanup(func() { sstable.Close() })
	return sstable
}

func TestSSTable(t *testing.T) {
	t.Parallel()

	for _, reopen := range []bool{false, true} {
		t.Run(fmt.Sprintf("reopen=%v", reopen), func(t *testing.T) {
			sstable := writeTestSSTable(t, reopen)

			entry, err := sstable.Get("key1")
			require.NoError(t, err)
			require.NotNil(t, entry)
			assert.Equal(t, []byte("value1"), entry.Value)
			assert.NotZero(t, entry.Timestamp, "Timestamp should be set")

			entry, err = sstable.Get("key3")
			require.NoError(t, err)
			require.NotNil(t, entry)
			assert.Equal(t, []byte("value3"), entry.Value)

			// read deleted entry
			entry, err = sstable.Get("key2")
			require.NoError(t, err)
			require.NotNil(t, entry)
			assert.Equal(t, CommandDelete, entry.Command)
			assert.Nil(t, entry.Value)

			// read the non-existent key
			entry, err = sstable.Get("key6")
			require.NoError(t, err)
			assert.Nil(t, entry)

			assert.Equal(t, 5, sstable.Len())
		})
	}
}

func TestSSTableRangeScan(t *testing.T) {
	t.Parallel()

	for _, reopen := range []bool{false, true} {
		t.Run(fmt.Sprintf("reopen=%v", reopen), func(t *testing.T) {
			sstable := writeTestSSTable(t, reopen)

			entries, err := sstable.RangeScan("key1", "key5")
			require.NoError(t, err)
			require.Len(t, entries, 5)

			assert.Equal(t, []byte("value1"), entries[0].Value)
			assert.Equal(t, CommandDelete, entries[1].Command)
			assert.Equal(t, []byte("value3"), entries[2].Value)
			assert.Equal(t, CommandDelete, entries[3].Command)
			assert.Equal(t, []byte("value5"), entries[4].Value)

			// start key between stored keys.
			entries, err = sstable.RangeScan("key10", "key3")
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, "key2", entries[0].Key)
			assert.Equal(t, "key3", entries[1].Key)
		})
	}
}

func TestSSTableRangeScanNonExistentRange(t *testing.T) {
	t.Parallel()

	for _, reopen := range []bool{false, true} {
		t.Run(fmt.Sprintf("reopen=%v", reopen), func(t *testing.T) {
			sstable := writeTestSSTable(t, reopen)

			entries, err := sstable.RangeScan("key6", "key10")
			require.NoError(t, err)
			assert.Nil(t, entries)
		})
	}
}

func TestSSTableEntries(t *testing.T) {
	t.Parallel()

	sstable := writeTestSSTable(t, true)
	entries, err := sstable.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("key%d", i+1), e.Key)
	}
}

func TestSSTableFilterRoundTrip(t *testing.T) {
	t.Parallel()

	written := writeTestSSTable(t, false)
	filter := append(bloom.Filter(nil), written.Filter()...)

	reopened, err := OpenSSTable(written.Name())
	require.NoError(t, err)
	defer reopened.Close()

	// the filter is stored verbatim and still answers for every key.
	assert.Equal(t, filter, reopened.Filter())
	assert.Equal(t, bloom.ProbesForBitsPerKey(DefaultBitsPerKey), reopened.Filter().Probes())
	for i := 1; i <= 5; i++ {
		assert.True(t, reopened.Filter().MayContain([]byte(fmt.Sprintf("key%d", i))))
	}
}

func TestSSTableEmpty(t *testing.T) {
	t.Parallel()

	filename := filepath.Join(t.TempDir(), "empty.sst")
	sstable, err := WriteSSTable(nil, filename, bloom.New(DefaultBitsPerKey))
	require.NoError(t, err)
	require.NoError(t, sstable.Close())

	sstable, err = OpenSSTable(filename)
	require.NoError(t, err)
	defer sstable.Close()

	assert.Len(t, sstable.Filter(), 9)
	entry, err := sstable.Get("anything")
	require.NoError(t, err)
	assert.Nil(t, entry)
	entries, err := sstable.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSSTableBuilderReuse(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	builder := bloom.New(DefaultBitsPerKey)

	first, err := WriteSSTable([]*Entry{{Key: "apple", Value: []byte("1")}}, filepath.Join(dir, "a.sst"), builder)
	require.NoError(t, err)
	defer first.Close()
	assert.Zero(t, builder.Len())

	second, err := WriteSSTable([]*Entry{{Key: "banana", Value: []byte("2")}}, filepath.Join(dir, "b.sst"), builder)
	require.NoError(t, err)
	defer second.Close()

	assert.True(t, first.Filter().MayContain([]byte("apple")))
	assert.True(t, second.Filter().MayContain([]byte("banana")))
	assert.False(t, second.Filter().MayContain([]byte("apple")))
}

func TestSSTableCorruptMetadata(t *testing.T) {
	t.Parallel()

	sstable := writeTestSSTable(t, false)
	data, err := os.ReadFile(sstable.Name())
	require.NoError(t, err)

	dir := t.TempDir()

	// flip a bit inside the filter block.
	flipped := append([]byte(nil), data...)
	flipped[sizeFieldBytes] ^= 0x01
	name := filepath.Join(dir, "flipped.sst")
	require.NoError(t, os.WriteFile(name, flipped, 0o644))
	_, err = OpenSSTable(name)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	// truncated inside the metadata.
	name = filepath.Join(dir, "truncated.sst")
	require.NoError(t, os.WriteFile(name, data[:sizeFieldBytes+4], 0o644))
	_, err = OpenSSTable(name)
	assert.ErrorIs(t, err, ErrCorruptSSTable)

	// empty file.
	name = filepath.Join(dir, "empty.sst")
	require.NoError(t, os.WriteFile(name, nil, 0o644))
	_, err = OpenSSTable(name)
	assert.ErrorIs(t, err, ErrCorruptSSTable)
}

func TestSSTableFilterSkipsLookups(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "metrics.sst")
	var entries []*Entry
	for i := 0; i < 1000; i++ {
		entries = append(entries, &Entry{Key: fmt.Sprintf("present-%04d", i), Value: []byte("v")})
	}
	sstable, err := WriteSSTable(entries, filename, bloom.New(DefaultBitsPerKey))
	require.NoError(t, err)
	defer sstable.Close()

	checks := testutil.ToFloat64(FilterChecksTotal)
	negatives := testutil.ToFloat64(FilterNegativesTotal)
	falsePositives := testutil.ToFloat64(FilterFalsePositivesTotal)

	const lookups = 1000
	for i := 0; i < lookups; i++ {
		entry, err := sstable.Get(fmt.Sprintf("missing-%04d", i))
		require.NoError(t, err)
		require.Nil(t, entry)
	}

	assert.Equal(t, float64(lookups), testutil.ToFloat64(FilterChecksTotal)-checks)
	skipped := testutil.ToFloat64(FilterNegativesTotal) - negatives
	passed := testutil.ToFloat64(FilterFalsePositivesTotal) - falsePositives
	assert.Equal(t, float64(lookups), skipped+passed)
	assert.Greater(t, skipped, float64(lookups)*0.95)
}

func TestIndexCodecInit(t *testing.T) {
	assert.NotNil(t, indexEncoder)
	assert.NotNil(t, indexDecoder)

	assert.PanicsWithValue(t, "velocitylog: init: concurrency must be at least 1", func() {
		mustInit(zstd.NewWriter(nil, zstd.WithEncoderConcurrency(0)))
	})
}
