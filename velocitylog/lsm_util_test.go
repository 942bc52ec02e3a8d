package velocitylog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSTableFileNames(t *testing.T) {
	name := sstableFileName("/data", 2, 17)
	assert.Equal(t, filepath.Join("/data", "sstable_2_000017.sst"), name)

	base := filepath.Base(name)
	require.True(t, isSSTableFile(base))
	level, seq, err := parseSSTableFileName(base)
	require.NoError(t, err)
	assert.Equal(t, 2, level)
	assert.Equal(t, uint64(17), seq)

	assert.False(t, isSSTableFile("sstable_0_000001.sst.tmp"))
	assert.False(t, isSSTableFile("wal_0001.log"))

	_, _, err = parseSSTableFileName("sstable_x_1.sst")
	assert.Error(t, err)
	_, _, err = parseSSTableFileName("sstable_9_1.sst")
	assert.Error(t, err)
}

func TestProcessAndReturnEntry(t *testing.T) {
	value, err := processAndReturnEntry(del("k", 1))
	require.NoError(t, err)
	assert.Nil(t, value)

	value, err = processAndReturnEntry(&Entry{Key: "k", Command: CommandPut})
	require.NoError(t, err)
	assert.NotNil(t, value)
	assert.Empty(t, value)
}
