package blockchain

import (
	"testing"
	"time"

	"github.com/puppy86/CS-Node/csdb"
	"github.com/puppy86/CS-Node/storage"
)

func addr(b byte) csdb.Address {
	var a csdb.Address
	a[0] = b
	return a
}

func waitForPoolCount(t *testing.T, s *storage.Storage, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.PoolCount() >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for pool count to reach %d", want)
}

func newTestBlockchain(t *testing.T) (*Blockchain, *storage.Storage) {
	t.Helper()
	s, err := storage.Open(storage.NewMemoryKVStore(), false, nil)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, 0), s
}

func TestGetBalanceUncachedResolvesFromStore(t *testing.T) {
	bc, s := newTestBlockchain(t)
	who := addr(1)

	tx := csdb.NewTransaction(who, addr(2), 1, csdb.Amount{Integral: 1}, 1)
	tx.SetBalance(csdb.Amount{Integral: 42, Fraction: 7})
	p := csdb.NewPool(nil, 0)
	p.AddTransaction(tx, false)
	p.Compose()

	if err := bc.WriteLastBlock(p); err != nil {
		t.Fatalf("WriteLastBlock: %v", err)
	}
	waitForPoolCount(t, s, 1)

	bal, err := bc.GetBalance(who)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal != (csdb.Amount{Integral: 42, Fraction: 7}) {
		t.Fatalf("got balance %+v, want {42 7}", bal)
	}
}

func TestGetBalanceUnknownAddressIsZero(t *testing.T) {
	bc, _ := newTestBlockchain(t)
	bal, err := bc.GetBalance(addr(99))
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal != csdb.Zero {
		t.Fatalf("expected zero balance for an unknown address, got %+v", bal)
	}
}

func TestGetBalanceIsCached(t *testing.T) {
	bc, s := newTestBlockchain(t)
	who := addr(3)

	tx := csdb.NewTransaction(who, addr(4), 1, csdb.Amount{Integral: 1}, 1)
	tx.SetBalance(csdb.Amount{Integral: 10})
	p := csdb.NewPool(nil, 0)
	p.AddTransaction(tx, false)
	p.Compose()
	bc.WriteLastBlock(p)
	waitForPoolCount(t, s, 1)

	if _, err := bc.GetBalance(who); err != nil {
		t.Fatalf("first GetBalance: %v", err)
	}
	// Second call should hit the cache; verify it still returns the
	// correct value (the cache-hit path is exercised either way).
	bal, err := bc.GetBalance(who)
	if err != nil {
		t.Fatalf("second GetBalance: %v", err)
	}
	if bal != (csdb.Amount{Integral: 10}) {
		t.Fatalf("cached balance mismatch: got %+v", bal)
	}
}

func TestWriteLastBlockInvalidatesCache(t *testing.T) {
	bc, s := newTestBlockchain(t)
	who := addr(5)

	tx1 := csdb.NewTransaction(who, addr(6), 1, csdb.Amount{Integral: 1}, 1)
	tx1.SetBalance(csdb.Amount{Integral: 1})
	p1 := csdb.NewPool(nil, 0)
	p1.AddTransaction(tx1, false)
	p1.Compose()
	bc.WriteLastBlock(p1)
	waitForPoolCount(t, s, 1)
	bc.GetBalance(who) // populate cache

	tx2 := csdb.NewTransaction(who, addr(6), 1, csdb.Amount{Integral: 2}, 2)
	tx2.SetBalance(csdb.Amount{Integral: 99})
	p2 := csdb.NewPool(p1.Hash(), 1)
	p2.AddTransaction(tx2, false)
	p2.Compose()
	bc.WriteLastBlock(p2)
	waitForPoolCount(t, s, 2)

	bal, err := bc.GetBalance(who)
	if err != nil {
		t.Fatalf("GetBalance after second write: %v", err)
	}
	if bal != (csdb.Amount{Integral: 99}) {
		t.Fatalf("expected the cache to have been invalidated, got %+v", bal)
	}
}
