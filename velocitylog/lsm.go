package velocitylog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	bloom "github.com/blackredscarf/bloom-filter"
	wal "github.com/danish45007/GoLogMatrix"
	"go.uber.org/zap"
)

// level represents a level in the LSM tree.
type level struct {
	sstablesLock sync.RWMutex // Lock to protect the sstables.
	sstables     []*SSTable   // SSTables in the level, oldest first.
}

// KVPair struct represents a key-value pair for upstream applications.
type KVPair struct {
	Key   string
	Value []byte
}

type LSMTree struct {
	opts            Options
	log             *zap.SugaredLogger
	memLock         sync.RWMutex // Lock to protect the memtable.
	memtable        *Memtable
	closed          bool               // Set by Close, protected by memLock.
	directory       string             // Directory to store the SSTable files.
	wal             *wal.WAL           // Write-ahead log for the LSM tree.
	levels          []*level           // List of levels in the LSM tree.
	currentSSTSeq   atomic.Uint64      // Next sequence number for the SSTable.
	skipCheckpoint  atomic.Bool        // Set during WAL replay and by a close without flush.
	compactionChan  chan int           // Channel for triggering compaction at a level.
	flushingLock    sync.RWMutex       // Lock to protect the flushing queue.
	flushingQueue   []*Memtable        // Queue of memtables to be flushed to SSTable. Used to serve reads while flushing.
	flushingChan    chan *Memtable     // Channel for triggering flushing of memtables to SSTables.
	ctx             context.Context    // Context for the LSM tree.
	cancel          context.CancelFunc // Cancel function for the context.
	flushWG         sync.WaitGroup     // Tracks the flushing goroutine.
	compactionWG    sync.WaitGroup     // Tracks the compaction goroutine.
	flushFilter     *bloom.BloomFilter // Filter builder owned by the flushing goroutine.
	compactorFilter *bloom.BloomFilter // Filter builder owned by the compaction goroutine.
}

///////////////////////////////////////////////////////////////////////////////////
// Public API for LSM Tree
///////////////////////////////////////////////////////////////////////////////////

// Open opens a LSMTree in directory, creating it if needed.
// On startup the tree opens every SSTable found in directory, and replays the
// WAL into the memtable when WithRecoveryFromWAL is set.
func Open(directory string, opts ...Option) (*LSMTree, error) {
	o := newOptions(opts...)

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, err
	}

	// setup the WAL for LSM tree.
	w, err := wal.OpenWAL(directory+WALDirectorySuffix, o.SyncWAL, WALMaxFileSize, WALMaxSegments)
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}

	levels := make([]*level, MaxLevels)
	for i := range levels {
		levels[i] = &level{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	lsm := &LSMTree{
		opts:            o,
		log:             o.Logger,
		memtable:        NewMemtable(),
		directory:       directory,
		wal:             w,
		levels:          levels,
		compactionChan:  make(chan int, 100),
		flushingChan:    make(chan *Memtable, 100),
		ctx:             ctx,
		cancel:          cancel,
		flushFilter:     newFilterBuilder(o.BitsPerKey),
		compactorFilter: newFilterBuilder(o.BitsPerKey),
	}

	if err := lsm.loadSSTables(); err != nil {
		cancel()
		w.Close()
		return nil, err
	}

	lsm.flushWG.Add(1)
	go lsm.backgroundMemtableFlushing()
	lsm.compactionWG.Add(1)
	go lsm.backgroundCompaction()

	// recover any entries that were written into WAL but not flushed to SSTable.
	if o.RecoverFromWAL {
		if err := lsm.recoverFromWAL(); err != nil {
			// leave the WAL as it was, a flush would checkpoint past the bad entry.
			lsm.close(false)
			return nil, err
		}
	}

	// levels that were already full when the tree was last closed.
	for i := range lsm.levels {
		lsm.maybeScheduleCompaction(i)
	}
	return lsm, nil
}

// Close flushes the memtable, waits for background work to finish and
// releases every file. A second Close returns ErrClosed.
func (l *LSMTree) Close() error {
	return l.close(true)
}

// close shuts the tree down. Without flush the active memtable is dropped and
// only the WAL holds its entries, as after a crash.
func (l *LSMTree) close(flush bool) error {
	l.memLock.Lock()
	if l.closed {
		l.memLock.Unlock()
		return ErrClosed
	}
	l.closed = true
	if flush {
		if l.memtable.Len() > 0 {
			l.enqueueFlush(l.memtable)
		}
		l.memtable = NewMemtable()
	} else {
		l.skipCheckpoint.Store(true)
	}
	l.memLock.Unlock()

	// the flusher drains the queue before exiting.
	close(l.flushingChan)
	l.flushWG.Wait()

	l.cancel()
	l.compactionWG.Wait()

	var errs []error
	if err := l.wal.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close wal: %w", err))
	}
	for _, lvl := range l.levels {
		lvl.sstablesLock.Lock()
		for _, sst := range lvl.sstables {
			if err := sst.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		lvl.sstables = nil
		lvl.sstablesLock.Unlock()
	}
	return errors.Join(errs...)
}

// Put, Insert a key-value pair into the LSM tree.
func (l *LSMTree) Put(key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	return l.apply(&Entry{
		Key:       key,
		Command:   CommandPut,
		Value:     append([]byte{}, value...),
		Timestamp: time.Now().UnixNano(),
	}, true)
}

// Delete, Delete a key from the LSM tree.
func (l *LSMTree) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return l.apply(&Entry{
		Key:       key,
		Command:   CommandDelete,
		Timestamp: time.Now().UnixNano(),
	}, true)
}

// Get, Retrieve a value for a given key from the LSM tree.
// if the key is not found returns nil, otherwise returns the value.
// it will search the memtable first, then the memtables waiting to be flushed, then the SSTables.
func (l *LSMTree) Get(key string) ([]byte, error) {
	l.memLock.RLock()
	if l.closed {
		l.memLock.RUnlock()
		return nil, ErrClosed
	}
	entry := l.memtable.Get(key)
	l.memLock.RUnlock()
	if entry != nil {
		return processAndReturnEntry(entry)
	}

	// search in reverse order to look for the most recent memtable.
	l.flushingLock.RLock()
	for i := len(l.flushingQueue) - 1; i >= 0; i-- {
		if entry = l.flushingQueue[i].Get(key); entry != nil {
			l.flushingLock.RUnlock()
			return processAndReturnEntry(entry)
		}
	}
	l.flushingLock.RUnlock()

	for _, lvl := range l.levels {
		entry, err := lvl.get(key)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return processAndReturnEntry(entry)
		}
	}
	return nil, nil
}

// RangeScan, returns all key-value pairs in the LSM tree within the given key range [startKey, endKey]
// the entries are returned in sorted order
func (l *LSMTree) RangeScan(startKey string, endKey string) ([]KVPair, error) {
	// newest source first.
	ranges := [][]*Entry{}

	// acquire all the locks together to ensure a consistent view of the LSM tree for the range scan.
	l.memLock.RLock()
	defer l.memLock.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}
	l.flushingLock.RLock()
	defer l.flushingLock.RUnlock()
	for _, lvl := range l.levels {
		lvl.sstablesLock.RLock()
		defer lvl.sstablesLock.RUnlock()
	}

	if entries := l.memtable.RangeScan(startKey, endKey); len(entries) > 0 {
		ranges = append(ranges, entries)
	}
	for i := len(l.flushingQueue) - 1; i >= 0; i-- {
		if entries := l.flushingQueue[i].RangeScan(startKey, endKey); len(entries) > 0 {
			ranges = append(ranges, entries)
		}
	}
	for _, lvl := range l.levels {
		for i := len(lvl.sstables) - 1; i >= 0; i-- {
			entries, err := lvl.sstables[i].RangeScan(startKey, endKey)
			if err != nil {
				return nil, err
			}
			if len(entries) > 0 {
				ranges = append(ranges, entries)
			}
		}
	}
	return mergeRanges(ranges), nil
}

// Stats returns the number of SSTables in each level.
func (l *LSMTree) Stats() []int {
	counts := make([]int, len(l.levels))
	for i, lvl := range l.levels {
		lvl.sstablesLock.RLock()
		counts[i] = len(lvl.sstables)
		lvl.sstablesLock.RUnlock()
	}
	return counts
}

///////////////////////////////////////////////////////////////////////////////////
// Internals
///////////////////////////////////////////////////////////////////////////////////

// apply writes entry to the WAL (unless replaying it) and the memtable, and
// rotates the memtable once it is over the size limit.
func (l *LSMTree) apply(entry *Entry, writeWAL bool) error {
	l.memLock.Lock()
	defer l.memLock.Unlock()
	if l.closed {
		return ErrClosed
	}

	if writeWAL {
		if err := l.wal.WriteEntity(MarshalEntry(entry)); err != nil {
			return fmt.Errorf("write wal: %w", err)
		}
	}
	l.memtable.set(entry)

	if l.memtable.SizeInBytes() > l.opts.MaxMemtableSize {
		l.enqueueFlush(l.memtable)
		l.memtable = NewMemtable()
	}
	return nil
}

// enqueueFlush hands mt to the flushing goroutine. The caller holds memLock.
func (l *LSMTree) enqueueFlush(mt *Memtable) {
	l.flushingLock.Lock()
	l.flushingQueue = append(l.flushingQueue, mt)
	l.flushingLock.Unlock()
	l.flushingChan <- mt
}

// get searches the level's tables, newest first.
func (lvl *level) get(key string) (*Entry, error) {
	lvl.sstablesLock.RLock()
	defer lvl.sstablesLock.RUnlock()
	for i := len(lvl.sstables) - 1; i >= 0; i-- {
		entry, err := lvl.sstables[i].Get(key)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return entry, nil
		}
	}
	return nil, nil
}

func (l *LSMTree) nextSeq() uint64 {
	return l.currentSSTSeq.Add(1) - 1
}

// loadSSTables opens the SSTables in the directory, ordering each level by sequence number.
func (l *LSMTree) loadSSTables() error {
	files, err := os.ReadDir(l.directory)
	if err != nil {
		return err
	}

	type found struct {
		seq uint64
		sst *SSTable
	}
	byLevel := make([][]found, MaxLevels)
	var maxSeq uint64
	var loaded []*SSTable
	for _, f := range files {
		if f.IsDir() || !isSSTableFile(f.Name()) {
			continue
		}
		lvl, seq, err := parseSSTableFileName(f.Name())
		if err != nil {
			l.log.Warnf("skipping %s: %v", f.Name(), err)
			continue
		}
		sst, err := OpenSSTable(sstableFileName(l.directory, lvl, seq))
		if err != nil {
			for _, s := range loaded {
				s.Close()
			}
			return err
		}
		loaded = append(loaded, sst)
		byLevel[lvl] = append(byLevel[lvl], found{seq: seq, sst: sst})
		maxSeq = max(maxSeq, seq+1)
	}

	for i, tables := range byLevel {
		slices.SortFunc(tables, func(a, b found) int {
			switch {
			case a.seq < b.seq:
				return -1
			case a.seq > b.seq:
				return 1
			}
			return 0
		})
		for _, t := range tables {
			l.levels[i].sstables = append(l.levels[i].sstables, t.sst)
		}
	}
	l.currentSSTSeq.Store(maxSeq)
	l.log.Infof("opened %s with %d sstables, next sequence %d", l.directory, len(loaded), maxSeq)
	return nil
}

// recoverFromWAL replays the WAL entries written after the last checkpoint into the memtable.
// Every segment is read: ReadAll only looks at the current one and returns nothing
// when no checkpoint has been written yet.
func (l *LSMTree) recoverFromWAL() error {
	// stays set on failure so the tree is closed without a checkpoint.
	l.skipCheckpoint.Store(true)

	walEntries, err := l.wal.ReadAllFromOffset(0, true)
	if err != nil {
		return fmt.Errorf("read wal: %w", err)
	}
	var replayed int
	for _, walEntry := range walEntries {
		if walEntry.GetIsCheckPoint() {
			continue
		}
		entry, err := UnmarshalEntry(walEntry.GetData())
		if err != nil {
			return fmt.Errorf("replay wal: %w", err)
		}
		if err := l.apply(entry, false); err != nil {
			return err
		}
		replayed++
	}
	l.skipCheckpoint.Store(false)
	l.log.Infof("recovered %d entries from the wal", replayed)
	return nil
}

// checkpointWAL marks everything written to the WAL so far as flushed, provided
// no memtable still holds unflushed entries. Nothing is written while skipCheckpoint
// is set, or while a writer holds memLock: that writer may be waiting on the
// flushing goroutine. A later flush writes the checkpoint instead.
func (l *LSMTree) checkpointWAL() {
	if l.skipCheckpoint.Load() || !l.memLock.TryLock() {
		return
	}
	defer l.memLock.Unlock()

	l.flushingLock.RLock()
	pending := len(l.flushingQueue)
	l.flushingLock.RUnlock()
	if pending > 0 || l.memtable.Len() > 0 {
		return
	}
	if err := l.wal.CreateCheckPoint(nil); err != nil {
		l.log.Warnf("checkpoint wal: %v", err)
	}
}

// backgroundMemtableFlushing writes queued memtables to level 0 until the channel is closed.
func (l *LSMTree) backgroundMemtableFlushing() {
	defer l.flushWG.Done()
	for mt := range l.flushingChan {
		if err := l.flushMemtable(mt); err != nil {
			// the memtable stays in the queue so reads still see it.
			l.log.Errorf("flush memtable: %v", err)
		}
	}
}

func (l *LSMTree) flushMemtable(mt *Memtable) error {
	entries := mt.Entries()
	if len(entries) > 0 {
		name := sstableFileName(l.directory, 0, l.nextSeq())
		sst, err := WriteSSTable(entries, name, l.flushFilter)
		if err != nil {
			return err
		}

		// publish the table before the memtable leaves the queue so reads never miss it.
		l.levels[0].sstablesLock.Lock()
		l.levels[0].sstables = append(l.levels[0].sstables, sst)
		l.levels[0].sstablesLock.Unlock()

		MemtableFlushesTotal.Inc()
		l.log.Infof("flushed %d entries to %s (filter %d bytes, %d probes)",
			len(entries), name, len(sst.Filter()), sst.Filter().Probes())
	}

	l.flushingLock.Lock()
	if i := slices.Index(l.flushingQueue, mt); i >= 0 {
		l.flushingQueue = slices.Delete(l.flushingQueue, i, i+1)
	}
	l.flushingLock.Unlock()

	l.checkpointWAL()
	l.maybeScheduleCompaction(0)
	return nil
}

// maybeScheduleCompaction asks the compaction goroutine to compact lvl if it is full.
func (l *LSMTree) maybeScheduleCompaction(lvl int) {
	if lvl >= MaxLevels-1 {
		return
	}
	l.levels[lvl].sstablesLock.RLock()
	full := len(l.levels[lvl].sstables) >= l.opts.MaxTablesPerLevel
	l.levels[lvl].sstablesLock.RUnlock()
	if !full {
		return
	}
	select {
	case l.compactionChan <- lvl:
	default:
		// a pending request will pick the level up.
	}
}

// backgroundCompaction runs compactions until the tree is closed.
func (l *LSMTree) backgroundCompaction() {
	defer l.compactionWG.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case lvl := <-l.compactionChan:
			if err := l.compactLevel(lvl); err != nil {
				l.log.Errorf("compact level %d: %v", lvl, err)
			}
		}
	}
}

// compactLevel merges every table in lvl into a single table on the next level.
// Only the compaction goroutine removes tables, so the tables it read are still
// the oldest ones in lvl when it swaps them out.
func (l *LSMTree) compactLevel(lvl int) error {
	if lvl < 0 || lvl >= MaxLevels-1 {
		return nil
	}
	src, dst := l.levels[lvl], l.levels[lvl+1]

	src.sstablesLock.RLock()
	tables := slices.Clone(src.sstables)
	src.sstablesLock.RUnlock()
	if len(tables) < l.opts.MaxTablesPerLevel {
		return nil
	}

	// newest table first.
	ranges := make([][]*Entry, 0, len(tables))
	for i := len(tables) - 1; i >= 0; i-- {
		entries, err := tables[i].Entries()
		if err != nil {
			return fmt.Errorf("read %s: %w", tables[i].Name(), err)
		}
		ranges = append(ranges, entries)
	}
	// tombstones still shadow older versions in deeper levels, except in the last one.
	merged := mergeEntries(ranges, lvl+1 == MaxLevels-1)

	var out *SSTable
	if len(merged) > 0 {
		var err error
		out, err = WriteSSTable(merged, sstableFileName(l.directory, lvl+1, l.nextSeq()), l.compactorFilter)
		if err != nil {
			return err
		}
	}

	src.sstablesLock.Lock()
	dst.sstablesLock.Lock()
	src.sstables = slices.Clone(src.sstables[len(tables):])
	if out != nil {
		dst.sstables = append(dst.sstables, out)
	}
	dst.sstablesLock.Unlock()
	src.sstablesLock.Unlock()

	for _, sst := range tables {
		name := sst.Name()
		if err := sst.Close(); err != nil {
			l.log.Warnf("close %s: %v", name, err)
		}
		if err := os.Remove(name); err != nil {
			l.log.Warnf("remove %s: %v", name, err)
		}
	}

	CompactionsTotal.WithLabelValues(strconv.Itoa(lvl)).Inc()
	l.log.Infof("compacted %d tables from level %d into level %d (%d entries)", len(tables), lvl, lvl+1, len(merged))

	l.maybeScheduleCompaction(lvl)
	l.maybeScheduleCompaction(lvl + 1)
	return nil
}
