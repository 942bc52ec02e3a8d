package velocitylog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	bloom "github.com/blackredscarf/bloom-filter"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"
)

// sizeFieldBytes is the width of every length prefix in an SSTable file.
const sizeFieldBytes = 8

// The index block is decoded once per open and compressed well, so it trades
// encode speed for size.
var (
	indexEncoder = mustInit(zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)))
	indexDecoder = mustInit(zstd.NewReader(nil))
)

// mustInit panics if a package level codec cannot be built.
func mustInit[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("velocitylog: init: %v", err))
	}
	return v
}

// Generate the filter, index and entries buffer for an SSTable from a sorted list of entries.
// Every key is added to builder, which is reset by Generate and can be reused for the next table.
func generateMetaDataAndEntriesBuffer(entries []*Entry, builder *bloom.BloomFilter) (bloom.Filter, []IndexEntry, []byte) {
	var (
		index         = make([]IndexEntry, 0, len(entries))
		currentOffset = int64(InitialOffset)
		buf           []byte
	)

	for _, entry := range entries {
		data := MarshalEntry(entry)

		index = append(index, IndexEntry{Key: entry.Key, Offset: currentOffset})
		builder.Add([]byte(entry.Key))

		// entry size is written as a 64-bit integer in little-endian format.
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(data)))
		buf = append(buf, data...)

		currentOffset += sizeFieldBytes + int64(len(data))
	}
	return builder.Generate(), index, buf
}

// metadataChecksum covers the filter and the compressed index block.
func metadataChecksum(filter, indexData []byte) uint64 {
	h := xxh3.New()
	h.Write(filter)
	h.Write(indexData)
	return h.Sum64()
}

// WriteToSSTable writes the filter, index and entries to filename and returns the offset of the data region.
// The file is written under a temporary name and renamed into place once synced.
func WriteToSSTable(filename string, filter bloom.Filter, indexData []byte, entriesData []byte) (int64, error) {
	tmp := filename + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp)

	w := bufio.NewWriter(file)
	var dataOffset int64 = InitialOffset

	// filter block.
	if err := binary.Write(w, binary.LittleEndian, int64(len(filter))); err != nil {
		file.Close()
		return 0, err
	}
	w.Write(filter)
	dataOffset += sizeFieldBytes + int64(len(filter))

	// index block.
	if err := binary.Write(w, binary.LittleEndian, int64(len(indexData))); err != nil {
		file.Close()
		return 0, err
	}
	w.Write(indexData)
	dataOffset += sizeFieldBytes + int64(len(indexData))

	// checksum over both blocks.
	if err := binary.Write(w, binary.LittleEndian, metadataChecksum(filter, indexData)); err != nil {
		file.Close()
		return 0, err
	}
	dataOffset += sizeFieldBytes

	w.Write(entriesData)
	if err := w.Flush(); err != nil {
		file.Close()
		return 0, err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return 0, err
	}
	if err := file.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, filename); err != nil {
		return 0, err
	}
	return dataOffset, nil
}

// readDataSize reads a length prefix at off.
func readDataSize(r io.ReaderAt, off int64) (int64, error) {
	var b [sizeFieldBytes]byte
	if _, err := r.ReadAt(b[:], off); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// readBlock reads a length prefixed block at off, refusing lengths that run past fileSize.
func readBlock(r io.ReaderAt, off, fileSize int64) ([]byte, error) {
	size, err := readDataSize(r, off)
	if err != nil {
		return nil, err
	}
	if size < 0 || size > fileSize-off-sizeFieldBytes {
		return nil, fmt.Errorf("%w: block at offset %d has length %d", ErrCorruptSSTable, off, size)
	}
	data := make([]byte, size)
	if _, err := r.ReadAt(data, off+sizeFieldBytes); err != nil {
		return nil, err
	}
	return data, nil
}

// readSSTableMetadata reads the filter, index and data offset from the SSTable file.
func readSSTableMetadata(r io.ReaderAt, fileSize int64) (bloom.Filter, []IndexEntry, int64, error) {
	var dataOffset int64 = InitialOffset

	filter, err := readBlock(r, dataOffset, fileSize)
	if err != nil {
		return nil, nil, 0, wrapShortRead(err)
	}
	dataOffset += sizeFieldBytes + int64(len(filter))

	indexData, err := readBlock(r, dataOffset, fileSize)
	if err != nil {
		return nil, nil, 0, wrapShortRead(err)
	}
	dataOffset += sizeFieldBytes + int64(len(indexData))

	checksum, err := readDataSize(r, dataOffset)
	if err != nil {
		return nil, nil, 0, wrapShortRead(err)
	}
	dataOffset += sizeFieldBytes
	if uint64(checksum) != metadataChecksum(filter, indexData) {
		return nil, nil, 0, ErrChecksumMismatch
	}

	raw, err := indexDecoder.DecodeAll(indexData, nil)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: index: %w", ErrCorruptSSTable, err)
	}
	index, err := unmarshalIndex(raw)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: index: %w", ErrCorruptSSTable, err)
	}
	return bloom.Filter(filter), index, dataOffset, nil
}

func wrapShortRead(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated metadata", ErrCorruptSSTable)
	}
	return err
}

// findOffsetForKey finds the offset of the key in the SSTable index using binary search.
func findOffsetForKey(key string, index []IndexEntry) (int64, bool) {
	low, high := 0, len(index)-1
	for low <= high {
		mid := low + (high-low)/2
		if index[mid].Key == key {
			return index[mid].Offset, true
		}
		if index[mid].Key < key {
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return 0, false
}

// findStartIndexForRangeScan returns the position of the smallest key in the index that is >= startKey.
// It returns len(index) when every key is smaller.
func findStartIndexForRangeScan(index []IndexEntry, startKey string) int {
	low, high := 0, len(index)-1
	for low <= high {
		mid := low + (high-low)/2
		if index[mid].Key == startKey {
			return mid
		} else if index[mid].Key < startKey {
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return low
}
