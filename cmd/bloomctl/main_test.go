package main

import (
	"bytes"
	"encoding/hex"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	bloom "github.com/blackredscarf/bloom-filter"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestBuildFilter(t *testing.T) {
	filter, n, err := buildFilter(strings.NewReader("hello\n"), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "014400010410400007", hex.EncodeToString(filter))

	filter, n, err = buildFilter(strings.NewReader(""), 10)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "000000000000000007", hex.EncodeToString(filter))
}

func TestInspectFilter(t *testing.T) {
	filter, _, err := buildFilter(strings.NewReader("hello\n"), 10)
	require.NoError(t, err)

	r := inspectFilter(filter)
	assert.Equal(t, 9, r.Bytes)
	assert.Equal(t, 64, r.Bits)
	assert.Equal(t, uint8(7), r.Probes)
	assert.Equal(t, 7, r.BitsSet)
	assert.InDelta(t, 7.0/64, r.FillRatio, 1e-12)
	assert.InDelta(t, math.Pow(7.0/64, 7), r.EstimatedFPRate, 1e-12)
	assert.False(t, r.Reserved)

	r = inspectFilter(bloom.Filter{0xff, 31})
	assert.True(t, r.Reserved)
	assert.Equal(t, 1.0, r.EstimatedFPRate)

	assert.Equal(t, filterReport{Bytes: 1}, inspectFilter(bloom.Filter{7}))
}

func TestFilterCommands(t *testing.T) {
	dir := t.TempDir()
	keys := filepath.Join(dir, "keys.txt")
	out := filepath.Join(dir, "filter.bin")
	require.NoError(t, os.WriteFile(keys, []byte("hello\nworld\n"), 0o644))

	assert.Contains(t, execute(t, "build", "--out", out, keys), "wrote 2 keys")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "114500414410401007", hex.EncodeToString(data))

	got := execute(t, "query", "--filter", out, "hello", "world", "absent")
	assert.Equal(t, "hello\tmaybe\nworld\tmaybe\nabsent\tabsent\n", got)

	var report filterReport
	require.NoError(t, json.Unmarshal([]byte(execute(t, "inspect", out)), &report))
	assert.Equal(t, 9, report.Bytes)
	assert.Equal(t, uint8(7), report.Probes)
	assert.Equal(t, 12, report.BitsSet)
}

func TestKVCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "db")

	execute(t, "kv", "put", "--dir", db, "apple", "red")
	execute(t, "kv", "put", "--dir", db, "banana", "yellow")
	execute(t, "kv", "put", "--dir", db, "cherry", "dark red")
	assert.Equal(t, "red\n", execute(t, "kv", "get", "--dir", db, "apple"))

	execute(t, "kv", "delete", "--dir", db, "banana")
	assert.Equal(t, "apple\tred\ncherry\tdark red\n", execute(t, "kv", "scan", "--dir", db, "a", "z"))
}
