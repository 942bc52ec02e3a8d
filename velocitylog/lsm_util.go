package velocitylog

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Checks if the given entry is a tombstone if the command is DELETE return nil otherwise return a copy of the value.
func processAndReturnEntry(entry *Entry) ([]byte, error) {
	if entry.Command == CommandDelete {
		return nil, nil
	}
	return append([]byte{}, entry.Value...), nil
}

// Checks if the given filename is an SSTable file.
func isSSTableFile(filename string) bool {
	return strings.HasPrefix(filename, SSTableFilePrefix) && strings.HasSuffix(filename, SSTableFileSuffix)
}

// sstableFileName returns the path of the SSTable with the given level and sequence number.
func sstableFileName(directory string, level int, seq uint64) string {
	return filepath.Join(directory, fmt.Sprintf("%s%d_%06d%s", SSTableFilePrefix, level, seq, SSTableFileSuffix))
}

// parseSSTableFileName extracts the level and sequence number from an SSTable file name.
func parseSSTableFileName(filename string) (level int, seq uint64, err error) {
	name := strings.TrimSuffix(strings.TrimPrefix(filename, SSTableFilePrefix), SSTableFileSuffix)
	if _, err := fmt.Sscanf(name, "%d_%d", &level, &seq); err != nil {
		return 0, 0, fmt.Errorf("parse sstable name %q: %w", filename, err)
	}
	if level < 0 || level >= MaxLevels {
		return 0, 0, fmt.Errorf("parse sstable name %q: level %d out of range", filename, level)
	}
	return level, seq, nil
}
