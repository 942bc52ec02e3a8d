package velocitylog

import (
	"container/heap"
)

// heap entry for k-way merge algorithm
type heapEntry struct {
	entry     *Entry
	listIndex int // index of entry source, lower is newer
	index     int // index of entry in the list
}

// heap implementation for k-way merge algorithm
type mergeHeap []heapEntry

// Len returns the length of the heap
func (h mergeHeap) Len() int {
	return len(h)
}

// Less orders by key, then by source, newest first. Timestamps are not
// compared so a merge picks the same version of a key as LSMTree.Get.
func (h mergeHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.entry.Key != b.entry.Key {
		return a.entry.Key < b.entry.Key
	}
	return a.listIndex < b.listIndex
}

// Swap two entries in the heap
func (h mergeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

// Push an entry into the heap
func (h *mergeHeap) Push(x interface{}) {
	*h = append(*h, x.(heapEntry))
}

// Pop the min entry from the heap
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[0 : n-1]
	return entry
}

// mergeEntries performs a k-way merge over sorted, possibly overlapping ranges and
// keeps only the most recent entry for each key. ranges are ordered newest source first
// and each range holds a key at most once. Tombstones are kept unless dropTombstones is set.
func mergeEntries(ranges [][]*Entry, dropTombstones bool) []*Entry {
	minHeap := &mergeHeap{}
	heap.Init(minHeap)

	for i, rangeEntries := range ranges {
		if len(rangeEntries) > 0 {
			heap.Push(minHeap, heapEntry{entry: rangeEntries[0], listIndex: i, index: 0})
		}
	}

	var (
		results []*Entry
		lastKey string
		started bool
	)
	for minHeap.Len() > 0 {
		minEntry := heap.Pop(minHeap).(heapEntry)

		// the first entry popped for a key is the most recent one.
		if !started || minEntry.entry.Key != lastKey {
			started = true
			lastKey = minEntry.entry.Key
			if !dropTombstones || minEntry.entry.Command != CommandDelete {
				results = append(results, minEntry.entry)
			}
		}

		// add the next element from the same list to the heap
		if next := minEntry.index + 1; next < len(ranges[minEntry.listIndex]) {
			heap.Push(minHeap, heapEntry{entry: ranges[minEntry.listIndex][next], listIndex: minEntry.listIndex, index: next})
		}
	}
	return results
}

// mergeRanges merges the ranges into a sorted list of live key-value pairs.
func mergeRanges(ranges [][]*Entry) []KVPair {
	var results []KVPair
	for _, entry := range mergeEntries(ranges, true) {
		results = append(results, KVPair{Key: entry.Key, Value: entry.Value})
	}
	return results
}
