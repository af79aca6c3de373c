package csdb

import "testing"

func TestPoolHashInvariant(t *testing.T) {
	p := NewPool(nil, 0)
	tx := NewTransaction(sampleAddr(1), sampleAddr(2), 1, Amount{Integral: 1}, 1)
	if err := p.AddTransaction(tx, false); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}

	h1 := p.Hash()
	h2 := p.Hash()
	if !h1.Equal(h2) {
		t.Fatal("Hash should be stable across calls once composed")
	}
	if !p.IsComposed() {
		t.Fatal("calling Hash should compose the pool")
	}
}

func TestPoolAddTransactionRejectsDuplicateInnerID(t *testing.T) {
	p := NewPool(nil, 0)
	src := sampleAddr(1)
	tx1 := NewTransaction(src, sampleAddr(2), 1, Amount{Integral: 1}, 5)
	tx2 := NewTransaction(src, sampleAddr(3), 1, Amount{Integral: 1}, 5)

	if err := p.AddTransaction(tx1, false); err != nil {
		t.Fatalf("first AddTransaction: %v", err)
	}
	if err := p.AddTransaction(tx2, false); err == nil {
		t.Fatal("expected a duplicate unsigned InnerID from the same source to be rejected")
	}
	if err := p.AddTransaction(tx2, true); err != nil {
		t.Fatalf("allowDuplicateInnerID should override rejection: %v", err)
	}
}

func TestPoolAddTransactionAllowsDuplicateInnerIDWhenSigned(t *testing.T) {
	p := NewPool(nil, 0)
	src := sampleAddr(1)
	tx1 := NewTransaction(src, sampleAddr(2), 1, Amount{Integral: 1}, 5)
	tx1.Signed = true
	tx2 := NewTransaction(src, sampleAddr(3), 1, Amount{Integral: 1}, 5)

	if err := p.AddTransaction(tx1, false); err != nil {
		t.Fatalf("first AddTransaction: %v", err)
	}
	if err := p.AddTransaction(tx2, false); err != nil {
		t.Fatalf("a signed existing transaction should not block a new one with the same InnerID: %v", err)
	}
}

func TestPoolAddTransactionRejectedAfterCompose(t *testing.T) {
	p := NewPool(nil, 0)
	p.Compose()
	tx := NewTransaction(sampleAddr(1), sampleAddr(2), 1, Amount{Integral: 1}, 1)
	if err := p.AddTransaction(tx, false); err == nil {
		t.Fatal("expected AddTransaction to fail on a composed pool")
	}
}

func TestPoolToBinaryFromBinaryRoundTrip(t *testing.T) {
	p := NewPool(nil, 3)
	p.SetWriterPublicKey(sampleAddr(9))
	tx := NewTransaction(sampleAddr(1), sampleAddr(2), 1, Amount{Integral: 1, Fraction: 2}, 1)
	p.AddTransaction(tx, false)
	p.SetUserField(1, IntegerField(42))
	p.SetSignature([]byte("sig-bytes"))

	bin := p.ToBinary()
	loaded, err := FromBinary(bin)
	if err != nil {
		t.Fatalf("FromBinary: %v", err)
	}
	if !loaded.Hash().Equal(p.Hash()) {
		t.Fatal("loaded pool's hash should match the original's")
	}
	if loaded.Sequence() != p.Sequence() {
		t.Fatal("sequence mismatch after round trip")
	}
	if loaded.TransactionCount() != 1 {
		t.Fatalf("expected 1 transaction after round trip, got %d", loaded.TransactionCount())
	}
	if string(loaded.Signature()) != "sig-bytes" {
		t.Fatalf("signature mismatch: got %q", loaded.Signature())
	}
}

func TestPoolLinksTo(t *testing.T) {
	genesis := NewPool(nil, 0)
	genesis.Compose()

	next := NewPool(genesis.Hash(), 1)
	if !next.LinksTo(genesis) {
		t.Fatal("a pool with matching previous_hash and sequence+1 should link")
	}

	wrongSeq := NewPool(genesis.Hash(), 2)
	if wrongSeq.LinksTo(genesis) {
		t.Fatal("a pool with a skipped sequence should not link")
	}

	wrongHash := NewPool(CalcFromData([]byte("other")), 1)
	if wrongHash.LinksTo(genesis) {
		t.Fatal("a pool with a mismatched previous_hash should not link")
	}
}

func TestPoolGetLastBySourceAndTarget(t *testing.T) {
	p := NewPool(nil, 0)
	addr := sampleAddr(1)
	tx1 := NewTransaction(addr, sampleAddr(9), 1, Amount{Integral: 1}, 1)
	tx2 := NewTransaction(addr, sampleAddr(9), 1, Amount{Integral: 2}, 2)
	p.AddTransaction(tx1, false)
	p.AddTransaction(tx2, false)

	last, ok := p.GetLastBySource(addr)
	if !ok || last.InnerID != 2 {
		t.Fatalf("expected the last-inserted transaction (InnerID 2), got %+v ok=%v", last, ok)
	}

	lastTarget, ok := p.GetLastByTarget(sampleAddr(9))
	if !ok || lastTarget.InnerID != 2 {
		t.Fatalf("expected the last-inserted transaction by target, got %+v ok=%v", lastTarget, ok)
	}
}

func TestMetaFromBinaryMatchesFullDecode(t *testing.T) {
	p := NewPool(CalcFromData([]byte("prev")), 7)
	p.AddTransaction(NewTransaction(sampleAddr(1), sampleAddr(2), 1, Amount{Integral: 1}, 1), false)
	bin := p.ToBinary()

	meta, err := MetaFromBinary(bin)
	if err != nil {
		t.Fatalf("MetaFromBinary: %v", err)
	}
	if meta.Sequence != 7 || meta.TxCount != 1 {
		t.Fatalf("meta mismatch: %+v", meta)
	}
	if !meta.PreviousHash.Equal(p.PreviousHash()) {
		t.Fatal("meta previous hash mismatch")
	}
}
