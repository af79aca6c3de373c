// Package blockchain is a thin facade over storage.Storage that adds a
// balances cache, mutex-serialized per spec §5 ("Blockchain facade
// serializes its own operations with a mutex around the cache and the
// storage handle").
package blockchain

import (
	"sync"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/puppy86/CS-Node/csdb"
	"github.com/puppy86/CS-Node/storage"
)

// DefaultCacheBytes is the balances cache size used when none is given.
const DefaultCacheBytes = 32 * 1024 * 1024

// Blockchain wraps a Storage with a balances cache, so repeated balance
// lookups for hot addresses don't walk the chain every time.
type Blockchain struct {
	mu      sync.Mutex
	store   *storage.Storage
	balance *fastcache.Cache
}

// New creates a Blockchain facade around an already-open Storage.
func New(store *storage.Storage, cacheBytes int) *Blockchain {
	if cacheBytes <= 0 {
		cacheBytes = DefaultCacheBytes
	}
	return &Blockchain{store: store, balance: fastcache.New(cacheBytes)}
}

// WriteLastBlock hands a composed (or still-mutable) pool to storage for
// asynchronous commit, and invalidates any cached balance for addresses
// the pool touches (spec §2 data-flow: "Solver emits composed blocks →
// Blockchain.writeLastBlock → Storage.pool_save").
func (b *Blockchain) WriteLastBlock(pool *csdb.Pool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range pool.Transactions() {
		b.balance.Del(t.Source[:])
		b.balance.Del(t.Target[:])
	}
	return b.store.PoolSave(pool)
}

// GetBalance returns the cached balance for addr if known, otherwise
// resolves it from the balance carried by the most recent transaction
// whose source is addr and caches the result. Transactions in which addr
// is only the target are not consulted.
func (b *Blockchain) GetBalance(addr csdb.Address) (csdb.Amount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cached, ok := b.balance.HasGet(nil, addr[:]); ok {
		return decodeAmount(cached), nil
	}

	t, found, err := b.store.GetLastBySource(addr)
	if err != nil {
		return csdb.Amount{}, err
	}
	if !found || !t.HasBalance() {
		return csdb.Zero, nil
	}
	b.balance.Set(addr[:], encodeAmount(t.Balance))
	return t.Balance, nil
}

// LastHash exposes the underlying store's chain head.
func (b *Blockchain) LastHash() csdb.PoolHash { return b.store.LastHash() }

func encodeAmount(a csdb.Amount) []byte {
	out := make([]byte, 12)
	out[0] = byte(a.Integral)
	out[1] = byte(a.Integral >> 8)
	out[2] = byte(a.Integral >> 16)
	out[3] = byte(a.Integral >> 24)
	for i := 0; i < 8; i++ {
		out[4+i] = byte(a.Fraction >> (8 * i))
	}
	return out
}

func decodeAmount(b []byte) csdb.Amount {
	if len(b) < 12 {
		return csdb.Amount{}
	}
	integral := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16 | int32(b[3])<<24
	var fraction uint64
	for i := 0; i < 8; i++ {
		fraction |= uint64(b[4+i]) << (8 * i)
	}
	return csdb.Amount{Integral: integral, Fraction: fraction}
}
