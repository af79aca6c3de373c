package storage

import (
	"sync"

	"github.com/golang/snappy"

	"github.com/puppy86/CS-Node/csdb"
	"github.com/puppy86/CS-Node/log"
)

// chainEntry is the sparse-array record rescan keeps per sequence number
// (spec §4.8.1 step 3).
type chainEntry struct {
	present      bool
	hash         csdb.PoolHash
	previousHash csdb.PoolHash
}

// Storage is the content-addressed pool store: a flat key/value engine
// plus the chain-state bookkeeping (last_hash, pool_count) rescan
// reconstructs at startup, and an asynchronous single-writer queue that
// decouples PoolSave from the actual disk write (spec §4.8).
type Storage struct {
	engine   KVStore
	compress bool
	logger   *log.Logger

	queueMu sync.Mutex
	queue   []*csdb.Pool
	signal  chan struct{}
	quit    chan struct{}
	done    chan struct{}

	chainMu   sync.RWMutex
	lastHash  csdb.PoolHash
	poolCount int
	open      bool

	errMu   sync.Mutex
	lastErr *Error
}

// ProgressFunc is invoked after each pool is scanned during Open; it
// returns true to cancel the rescan (spec §4.8.1 step 4, §7).
type ProgressFunc func(scanned int) (cancel bool)

// Open attaches engine, spawns the writer goroutine, and runs the startup
// rescan (spec §4.8.1). progress may be nil.
func Open(engine KVStore, compress bool, progress ProgressFunc) (*Storage, error) {
	s := &Storage{
		engine:   engine,
		compress: compress,
		logger:   log.Default().Module("storage"),
		signal:   make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		open:     true,
	}
	go s.writerLoop()

	if err := s.rescan(progress); err != nil {
		return nil, err
	}
	return s, nil
}

// LastHash returns the chain head as of the last successful commit or
// rescan.
func (s *Storage) LastHash() csdb.PoolHash {
	s.chainMu.RLock()
	defer s.chainMu.RUnlock()
	return s.lastHash.Clone()
}

// PoolCount returns the total number of pools known to the store,
// including ones not on the main chain (spec §4.8.1: "pool 4 is counted
// in pool_count but not in the chain").
func (s *Storage) PoolCount() int {
	s.chainMu.RLock()
	defer s.chainMu.RUnlock()
	return s.poolCount
}

// LastError returns the last error recorded by a mutating call on this
// instance (spec §4.8.5), or nil if none.
func (s *Storage) LastError() *Error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

func (s *Storage) setErr(code Code, msg string) *Error {
	e := newError(code, msg)
	s.errMu.Lock()
	s.lastErr = e
	s.errMu.Unlock()
	return e
}

// Close signals the writer goroutine to drain and stop, then closes the
// underlying engine.
func (s *Storage) Close() error {
	s.chainMu.Lock()
	s.open = false
	s.chainMu.Unlock()

	close(s.quit)
	s.notify()
	<-s.done
	return s.engine.Close()
}

func (s *Storage) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// rescan implements spec §4.8.1.
func (s *Storage) rescan(progress ProgressFunc) error {
	it := s.engine.NewKVIterator(nil, nil)
	defer it.Release()

	var entries []chainEntry
	count := 0

	for it.Next() {
		key := it.Key()
		value := it.Value()
		raw, err := s.decodeStored(value)
		if err != nil {
			return s.setErr(DataIntegrityError, "rescan: "+err.Error())
		}

		realHash := csdb.CalcFromData(raw)
		pool, err := csdb.FromBinary(raw)
		if err != nil {
			return s.setErr(DataIntegrityError, "rescan: invalid pool: "+err.Error())
		}
		if !pool.Hash().Equal(realHash) || !realHash.Equal(csdb.PoolHash(key)) {
			return s.setErr(DataIntegrityError, "rescan: hash mismatch")
		}

		seq := int(pool.Sequence())
		for seq >= len(entries) {
			entries = append(entries, chainEntry{})
		}
		entries[seq] = chainEntry{present: true, hash: realHash, previousHash: pool.PreviousHash()}

		count++
		if progress != nil && progress(count) {
			return s.setErr(UserCancelled, "rescan cancelled")
		}
	}
	if err := it.Error(); err != nil {
		return s.setErr(DatabaseError, err.Error())
	}

	s.chainMu.Lock()
	s.poolCount = count
	s.lastHash = nil
	if len(entries) > 0 && entries[0].present {
		last := entries[0].hash
		for i := 1; i < len(entries); i++ {
			if !entries[i].present || !entries[i].previousHash.Equal(entries[i-1].hash) {
				break
			}
			last = entries[i].hash
		}
		s.lastHash = last
	}
	s.chainMu.Unlock()
	return nil
}

// PoolSave enqueues pool for asynchronous commit (spec §4.8.3). It
// returns immediately once the pool is queued; the actual write happens
// on the writer goroutine.
func (s *Storage) PoolSave(pool *csdb.Pool) error {
	s.chainMu.RLock()
	open := s.open
	s.chainMu.RUnlock()
	if !open {
		return s.setErr(NotOpen, "storage is closed")
	}

	hash := pool.Hash()
	if hash.Empty() {
		return s.setErr(InvalidParameter, "invalid pool")
	}
	if has, _ := s.engine.Has(hash); has {
		return s.setErr(InvalidParameter, "pool already present")
	}

	s.queueMu.Lock()
	s.queue = append(s.queue, pool)
	s.queueMu.Unlock()
	s.notify()
	return nil
}

// writerLoop is the single writer goroutine (spec §4.8.2). It wakes on
// signal, drains the FIFO queue, and exits once quit is closed and the
// queue is empty.
func (s *Storage) writerLoop() {
	defer close(s.done)
	for {
		<-s.signal
		for {
			s.queueMu.Lock()
			if len(s.queue) == 0 {
				s.queueMu.Unlock()
				break
			}
			pool := s.queue[0]
			s.queue = s.queue[1:]
			s.queueMu.Unlock()

			s.commit(pool)
		}

		select {
		case <-s.quit:
			return
		default:
		}
	}
}

func (s *Storage) commit(pool *csdb.Pool) {
	if pool.IsMutable() {
		pool.Compose()
	}
	hash := pool.Hash()
	raw := pool.ToBinary()
	stored := s.encodeForStorage(raw)

	if err := s.engine.Put(hash, stored); err != nil {
		s.setErr(DatabaseError, err.Error())
		s.logger.Error("pool commit failed", "error", err, "sequence", pool.Sequence())
		return
	}

	s.chainMu.Lock()
	s.poolCount++
	if s.lastHash.Equal(pool.PreviousHash()) {
		s.lastHash = hash
	}
	s.chainMu.Unlock()
}

func (s *Storage) encodeForStorage(raw []byte) []byte {
	if !s.compress {
		return raw
	}
	return snappy.Encode(nil, raw)
}

func (s *Storage) decodeStored(stored []byte) ([]byte, error) {
	if !s.compress {
		return stored, nil
	}
	return snappy.Decode(nil, stored)
}

// PoolLoad loads and decodes a pool by hash (spec §4.8.4).
func (s *Storage) PoolLoad(hash csdb.PoolHash) (*csdb.Pool, error) {
	value, err := s.engine.Get(hash)
	if err != nil {
		if err == ErrKVNotFound {
			return nil, s.setErr(DatabaseError, "pool not found")
		}
		return nil, s.setErr(DatabaseError, err.Error())
	}
	raw, err := s.decodeStored(value)
	if err != nil {
		return nil, s.setErr(DataIntegrityError, err.Error())
	}
	pool, err := csdb.FromBinary(raw)
	if err != nil {
		return nil, s.setErr(DataIntegrityError, err.Error())
	}
	return pool, nil
}

// Transactions walks the chain backward from offset (or from LastHash if
// offset is the zero value), collecting at most limit transactions whose
// source or target equals addr (spec §4.8.4).
func (s *Storage) Transactions(addr csdb.Address, limit int, offset csdb.TransactionID) ([]csdb.Transaction, error) {
	var out []csdb.Transaction

	hash := offset.PoolHash
	startIndex := offset.Index
	if hash.Empty() {
		hash = s.LastHash()
		startIndex = -1 // walk from the end of the tip pool
	}

	for !hash.Empty() && len(out) < limit {
		pool, err := s.PoolLoad(hash)
		if err != nil {
			return out, err
		}
		txs := pool.Transactions()
		from := len(txs) - 1
		if startIndex >= 0 {
			from = int(startIndex) - 1
		}
		for i := from; i >= 0 && len(out) < limit; i-- {
			t := txs[i]
			if t.Source == addr || t.Target == addr {
				out = append(out, t)
			}
		}
		hash = pool.PreviousHash()
		startIndex = -1
	}
	return out, nil
}

// GetFromBlockchain searches the chain backward from the tip for a
// transaction with source == addr and the given inner id (spec §4.8.4).
func (s *Storage) GetFromBlockchain(addr csdb.Address, innerID int64) (csdb.Transaction, bool, error) {
	hash := s.LastHash()
	for !hash.Empty() {
		pool, err := s.PoolLoad(hash)
		if err != nil {
			return csdb.Transaction{}, false, err
		}
		txs := pool.Transactions()
		for i := len(txs) - 1; i >= 0; i-- {
			if txs[i].Source == addr && txs[i].InnerID == innerID {
				return txs[i], true, nil
			}
		}
		hash = pool.PreviousHash()
	}
	return csdb.Transaction{}, false, nil
}

// GetLastBySource walks pools from the tip backward, asking each pool
// for its own last-by-source transaction, and returns the first hit
// (spec §4.8.4).
func (s *Storage) GetLastBySource(addr csdb.Address) (csdb.Transaction, bool, error) {
	hash := s.LastHash()
	for !hash.Empty() {
		pool, err := s.PoolLoad(hash)
		if err != nil {
			return csdb.Transaction{}, false, err
		}
		if t, ok := pool.GetLastBySource(addr); ok {
			return t, true, nil
		}
		hash = pool.PreviousHash()
	}
	return csdb.Transaction{}, false, nil
}

// GetLastByTarget is GetLastBySource's target-side counterpart.
func (s *Storage) GetLastByTarget(addr csdb.Address) (csdb.Transaction, bool, error) {
	hash := s.LastHash()
	for !hash.Empty() {
		pool, err := s.PoolLoad(hash)
		if err != nil {
			return csdb.Transaction{}, false, err
		}
		if t, ok := pool.GetLastByTarget(addr); ok {
			return t, true, nil
		}
		hash = pool.PreviousHash()
	}
	return csdb.Transaction{}, false, nil
}
