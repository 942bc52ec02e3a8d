package velocitylog

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Command is the operation an Entry records.
type Command int32

const (
	CommandPut    Command = 0
	CommandDelete Command = 1
)

// Entry is a single versioned write. It is the record stored in the WAL, the
// memtable and the data region of an SSTable.
type Entry struct {
	Key       string
	Command   Command
	Value     []byte
	Timestamp int64
}

// IndexEntry maps a key to the offset of its entry inside the data region.
type IndexEntry struct {
	Key    string
	Offset int64
}

// Field numbers of the protobuf messages
//
//	message Entry      { string key = 1; Command command = 2; bytes value = 3; int64 timestamp = 4; }
//	message IndexEntry { string key = 1; int64 offset = 2; }
//	message Index      { repeated IndexEntry entries = 1; }
const (
	entryKeyField       protowire.Number = 1
	entryCommandField   protowire.Number = 2
	entryValueField     protowire.Number = 3
	entryTimestampField protowire.Number = 4

	indexKeyField    protowire.Number = 1
	indexOffsetField protowire.Number = 2

	indexEntriesField protowire.Number = 1
)

// MarshalEntry encodes the entry in protobuf wire format.
func MarshalEntry(e *Entry) []byte {
	b := make([]byte, 0, len(e.Key)+len(e.Value)+24)
	b = protowire.AppendTag(b, entryKeyField, protowire.BytesType)
	b = protowire.AppendString(b, e.Key)
	if e.Command != CommandPut {
		b = protowire.AppendTag(b, entryCommandField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Command))
	}
	if e.Value != nil {
		b = protowire.AppendTag(b, entryValueField, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Value)
	}
	b = protowire.AppendTag(b, entryTimestampField, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Timestamp))
	return b
}

// UnmarshalEntry decodes data produced by MarshalEntry. Unknown fields are
// skipped.
func UnmarshalEntry(data []byte) (*Entry, error) {
	e := &Entry{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrCorruptEntry, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == entryKeyField && typ == protowire.BytesType:
			e.Key, n = protowire.ConsumeString(data)
		case num == entryCommandField && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			e.Command = Command(v)
		case num == entryValueField && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(data)
			// copy so the entry does not pin the caller's buffer.
			e.Value = append([]byte{}, v...)
		case num == entryTimestampField && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			e.Timestamp = int64(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrCorruptEntry, protowire.ParseError(n))
		}
		data = data[n:]
	}
	return e, nil
}

// marshalIndex encodes the index as a protobuf Index message.
func marshalIndex(index []IndexEntry) []byte {
	var b, item []byte
	for _, ie := range index {
		item = item[:0]
		item = protowire.AppendTag(item, indexKeyField, protowire.BytesType)
		item = protowire.AppendString(item, ie.Key)
		item = protowire.AppendTag(item, indexOffsetField, protowire.VarintType)
		item = protowire.AppendVarint(item, uint64(ie.Offset))

		b = protowire.AppendTag(b, indexEntriesField, protowire.BytesType)
		b = protowire.AppendBytes(b, item)
	}
	return b
}

func unmarshalIndex(data []byte) ([]IndexEntry, error) {
	var index []IndexEntry
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		if num != indexEntriesField || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
			continue
		}

		item, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]

		ie, err := unmarshalIndexEntry(item)
		if err != nil {
			return nil, err
		}
		index = append(index, ie)
	}
	return index, nil
}

func unmarshalIndexEntry(data []byte) (IndexEntry, error) {
	var ie IndexEntry
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return IndexEntry{}, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == indexKeyField && typ == protowire.BytesType:
			ie.Key, n = protowire.ConsumeString(data)
		case num == indexOffsetField && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			ie.Offset = int64(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return IndexEntry{}, protowire.ParseError(n)
		}
		data = data[n:]
	}
	return ie, nil
}
