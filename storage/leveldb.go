package storage

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore is the production KVStore, backed by goleveldb. It stands
// in for the embedded database the original node uses: an on-disk,
// ordered, crash-safe key/value engine.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if absent) a goleveldb database at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Get(key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrKVNotFound
	}
	return v, err
}

func (s *LevelDBStore) Put(key, value []byte) error { return s.db.Put(key, value, nil) }
func (s *LevelDBStore) Delete(key []byte) error      { return s.db.Delete(key, nil) }

func (s *LevelDBStore) Has(key []byte) (bool, error) {
	ok, err := s.db.Has(key, nil)
	if err != nil && err != errors.ErrNotFound {
		return false, err
	}
	return ok, nil
}

func (s *LevelDBStore) Close() error { return s.db.Close() }

func (s *LevelDBStore) NewBatch() Batch {
	return &leveldbBatch{db: s.db, batch: new(leveldb.Batch)}
}

func (s *LevelDBStore) NewKVIterator(prefix, start []byte) KVIterator {
	var rng *util.Range
	if len(prefix) > 0 {
		rng = util.BytesPrefix(prefix)
	}
	it := s.db.NewIterator(rng, nil)
	if len(start) > 0 {
		valid := it.Seek(start)
		return &leveldbIterator{it: it, seeked: true, seekValid: valid}
	}
	return &leveldbIterator{it: it}
}

type leveldbBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
	n     int
}

func (b *leveldbBatch) Put(key, value []byte) { b.batch.Put(key, value); b.n++ }
func (b *leveldbBatch) Delete(key []byte)     { b.batch.Delete(key); b.n++ }
func (b *leveldbBatch) Write() error          { return b.db.Write(b.batch, nil) }
func (b *leveldbBatch) Reset()                { b.batch.Reset(); b.n = 0 }
func (b *leveldbBatch) Len() int              { return b.n }

// leveldbIterator adapts goleveldb's iterator to KVIterator. goleveldb
// positions Seek's target immediately, so when a start key was given the
// first Next() call must report that position rather than advancing
// past it.
type leveldbIterator struct {
	it        iterator.Iterator
	seeked    bool
	seekValid bool
}

func (it *leveldbIterator) Next() bool {
	if it.seeked {
		it.seeked = false
		return it.seekValid
	}
	return it.it.Next()
}

func (it *leveldbIterator) Key() []byte {
	k := it.it.Key()
	if k == nil {
		return nil
	}
	cp := make([]byte, len(k))
	copy(cp, k)
	return cp
}

func (it *leveldbIterator) Value() []byte {
	v := it.it.Value()
	if v == nil {
		return nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp
}

func (it *leveldbIterator) Release() { it.it.Release() }
func (it *leveldbIterator) Error() error { return it.it.Error() }
