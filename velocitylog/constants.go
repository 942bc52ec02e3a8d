package velocitylog

const (
	DefaultBitsPerKey        = 10              // ~1% false positives per SSTable filter.
	DefaultMaxMemtableSize   = 4 * 1024 * 1024 // 4 MiB
	DefaultMaxTablesPerLevel = 4               // Tables in a level before it is compacted into the next.
	InitialOffset            = 0               // Initial offset for the data entries.
	SSTableFilePrefix        = "sstable_"      // Prefix for SSTable files.
	SSTableFileSuffix        = ".sst"          // Suffix for SSTable files.
	WALDirectorySuffix       = "_wal"          // Suffix for WAL directory.
	MaxLevels                = 6               // Maximum number of levels in the LSM tree.
	WALMaxFileSize           = 128000          // 128 KB
	WALMaxSegments           = 1000            // Maximum number of WAL segments.
)
