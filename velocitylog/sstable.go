package velocitylog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	bloom "github.com/blackredscarf/bloom-filter"
)

type SSTable struct {
	filter     bloom.Filter // Bloom filter over every key in the table.
	index      []IndexEntry // Sorted index from key to entry offset.
	file       *os.File     // File handle for on-disk ssTable file storage.
	fileSize   int64        // Size of the file in bytes.
	dataOffset int64        // Offset from where the actual entries start in the file.
}

// SSTableIterator walks the entries of an SSTable in key order.
type SSTableIterator struct {
	r     *bufio.Reader // buffered reader over the data region.
	Value *Entry        // current entry.
	err   error
}

/*
WriteSSTable writes a sorted list of entries to filename in SSTable format.
The format of the SSTable file is as follows:
 1. Filter size (int64)
 2. Filter data (bloom.Filter, stored verbatim)
 3. Index size (int64)
 4. Index data (zstd compressed Index protobuf)
 5. Metadata checksum (xxh3 of the filter and index data)
 6. Data entries

The data entries are written in the following format:
 1. Size of the entry (int64)
 2. Entry data (Entry protobuf)

The keys are added to builder, which is left empty for the next table.
*/
func WriteSSTable(entries []*Entry, filename string, builder *bloom.BloomFilter) (*SSTable, error) {
	filter, index, entriesData := generateMetaDataAndEntriesBuffer(entries, builder)
	indexData := indexEncoder.EncodeAll(marshalIndex(index), nil)

	dataOffset, err := WriteToSSTable(filename, filter, indexData, entriesData)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	return &SSTable{
		filter:     filter,
		index:      index,
		file:       file,
		fileSize:   dataOffset + int64(len(entriesData)),
		dataOffset: dataOffset,
	}, nil
}

// OpenSSTable opens an SSTable file and returns an SSTable object for reading.
func OpenSSTable(filename string) (*SSTable, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	filter, index, dataOffset, err := readSSTableMetadata(file, info.Size())
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}

	return &SSTable{
		filter:     filter,
		index:      index,
		file:       file,
		fileSize:   info.Size(),
		dataOffset: dataOffset,
	}, nil
}

// Close closes the SSTable file.
func (s *SSTable) Close() error {
	return s.file.Close()
}

// Name returns the path of the SSTable file.
func (s *SSTable) Name() string {
	return s.file.Name()
}

// Filter returns the table's bloom filter.
func (s *SSTable) Filter() bloom.Filter {
	return s.filter
}

// Len returns the number of entries in the table.
func (s *SSTable) Len() int {
	return len(s.index)
}

// Get returns the entry for the given key from the SSTable, tombstones included.
// Returns nil if the key is not found. A key the filter rules out costs no I/O.
func (s *SSTable) Get(key string) (*Entry, error) {
	if !s.mayContain(key) {
		return nil, nil
	}
	offset, found := findOffsetForKey(key, s.index)
	if !found {
		FilterFalsePositivesTotal.Inc()
		return nil, nil
	}
	return s.readEntryAt(offset)
}

// RangeScan returns all the entries in the SSTable that have keys in the range [startKey, endKey].
func (s *SSTable) RangeScan(startKey, endKey string) ([]*Entry, error) {
	var results []*Entry
	for i := findStartIndexForRangeScan(s.index, startKey); i < len(s.index); i++ {
		if s.index[i].Key > endKey {
			break
		}
		entry, err := s.readEntryAt(s.index[i].Offset)
		if err != nil {
			return nil, err
		}
		results = append(results, entry)
	}
	return results, nil
}

// Entries returns all the entries in the SSTable.
func (s *SSTable) Entries() ([]*Entry, error) {
	results := make([]*Entry, 0, len(s.index))
	it := s.Front()
	for it.Next() {
		results = append(results, it.Value)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// readEntryAt reads the entry at offset, relative to the start of the data region.
func (s *SSTable) readEntryAt(offset int64) (*Entry, error) {
	data, err := readBlock(s.file, s.dataOffset+offset, s.fileSize)
	if err != nil {
		return nil, fmt.Errorf("read entry at %d: %w", offset, err)
	}
	return UnmarshalEntry(data)
}

// Front returns an iterator positioned before the first entry of the SSTable.
func (s *SSTable) Front() *SSTableIterator {
	section := io.NewSectionReader(s.file, s.dataOffset, s.fileSize-s.dataOffset)
	return &SSTableIterator{r: bufio.NewReader(section)}
}

// Next advances to the next entry. It returns false at the end of the table or on error.
func (it *SSTableIterator) Next() bool {
	if it.err != nil {
		return false
	}
	var size int64
	if err := binary.Read(it.r, binary.LittleEndian, &size); err != nil {
		if !errors.Is(err, io.EOF) {
			it.err = err
		}
		return false
	}
	if size < 0 {
		it.err = fmt.Errorf("%w: negative entry length", ErrCorruptSSTable)
		return false
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(it.r, data); err != nil {
		it.err = fmt.Errorf("%w: %w", ErrCorruptSSTable, err)
		return false
	}
	entry, err := UnmarshalEntry(data)
	if err != nil {
		it.err = err
		return false
	}
	it.Value = entry
	return true
}

// Err returns the error that stopped the iterator, if any.
func (it *SSTableIterator) Err() error {
	return it.err
}
