package velocitylog

import (
	"time"

	"github.com/huandu/skiplist"
)

// Memtable is a memory table that supports fast writes, reads, deletes, and range scans.
// It uses a skip list as the underlying data structure to store key-value pairs.
type Memtable struct {
	data *skiplist.SkipList // Skip list to store entries, ordered by key.
	size int64              // Size of the memtable in bytes.
}

// NewMemtable creates a new memtable.
func NewMemtable() *Memtable {
	return &Memtable{
		data: skiplist.New(skiplist.String),
		size: 0,
	}
}

// Put inserts a key-value pair into the memtable, Not Thread-Safe Implementation.
func (m *Memtable) Put(key string, value []byte) {
	m.set(&Entry{
		Key:       key,
		Command:   CommandPut,
		Value:     append([]byte{}, value...),
		Timestamp: time.Now().UnixNano(),
	})
}

// Delete records a tombstone for key, Not Thread-Safe Implementation.
func (m *Memtable) Delete(key string) {
	m.set(&Entry{
		Key:       key,
		Command:   CommandDelete,
		Timestamp: time.Now().UnixNano(),
	})
}

// set inserts entry as is, keeping its timestamp. Used by Put, Delete and WAL replay.
func (m *Memtable) set(entry *Entry) {
	if existing := m.data.Get(entry.Key); existing != nil {
		// the key is already accounted for, only the value changes.
		m.size -= int64(len(existing.Value.(*Entry).Value))
	} else {
		m.size += int64(len(entry.Key))
	}
	m.data.Set(entry.Key, entry)
	m.size += int64(len(entry.Value))
}

// Get retrieves the entry for a given key from the memtable, Not Thread-Safe Implementation.
// Tombstones are returned too; the caller checks the Command field.
func (m *Memtable) Get(key string) *Entry {
	elem := m.data.Get(key)
	if elem == nil {
		return nil
	}
	return elem.Value.(*Entry)
}

// RangeScan returns all entries in the memtable within the given key range, Not Thread-Safe Implementation.
// Both startKey and endKey are inclusive. Tombstones are included.
func (m *Memtable) RangeScan(startKey, endKey string) []*Entry {
	var results []*Entry
	// Find returns the first element with a key >= startKey.
	for elem := m.data.Find(startKey); elem != nil; elem = elem.Next() {
		if elem.Key().(string) > endKey {
			break
		}
		results = append(results, elem.Value.(*Entry))
	}
	return results
}

// SizeInBytes returns the size of the memtable in bytes. Not Thread-Safe Implementation.
func (m *Memtable) SizeInBytes() int64 {
	return m.size
}

// Clear resets the memtable to an empty state. Not Thread-Safe Implementation.
func (m *Memtable) Clear() {
	m.data.Init()
	m.size = 0
}

func (m *Memtable) Len() int {
	return m.data.Len()
}

// Entries returns every entry, tombstones included, in key order. Not Thread-Safe Implementation.
func (m *Memtable) Entries() []*Entry {
	results := make([]*Entry, 0, m.data.Len())
	for elem := m.data.Front(); elem != nil; elem = elem.Next() {
		results = append(results, elem.Value.(*Entry))
	}
	return results
}
