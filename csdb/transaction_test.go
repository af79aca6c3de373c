package csdb

import "testing"

func sampleAddr(b byte) Address {
	var a Address
	a[0] = b
	return a
}

func TestTransactionIDValid(t *testing.T) {
	valid := TransactionID{PoolHash: CalcFromData([]byte("x")), Index: 0}
	if !valid.Valid() {
		t.Fatal("expected a non-empty hash and non-negative index to be valid")
	}
	noHash := TransactionID{Index: 0}
	if noHash.Valid() {
		t.Fatal("an empty pool hash should not be valid")
	}
	negIndex := TransactionID{PoolHash: CalcFromData([]byte("x")), Index: -1}
	if negIndex.Valid() {
		t.Fatal("a negative index should not be valid")
	}
}

func TestTransactionEncodeDecodeRoundTrip(t *testing.T) {
	tx := NewTransaction(sampleAddr(1), sampleAddr(2), 5, Amount{Integral: 10, Fraction: 500}, 99)
	tx.Signed = true
	tx.SetBalance(Amount{Integral: 1, Fraction: 1})
	tx.SetUserField(7, StringField("memo"))

	buf := tx.encode(nil)
	got, n, err := DecodeTransaction(buf)
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("expected to consume all %d bytes, consumed %d", len(buf), n)
	}
	if got.Source != tx.Source || got.Target != tx.Target {
		t.Fatal("source/target mismatch")
	}
	if got.Currency != tx.Currency || got.Amount != tx.Amount {
		t.Fatalf("currency/amount mismatch: got %+v", got)
	}
	if !got.HasBalance() || got.Balance != tx.Balance {
		t.Fatalf("balance mismatch: got %+v hasBalance=%v", got.Balance, got.HasBalance())
	}
	if got.InnerID != tx.InnerID || got.Signed != tx.Signed {
		t.Fatal("inner id / signed mismatch")
	}
	field, ok := got.UserField(7)
	if !ok || field.Str != "memo" {
		t.Fatalf("expected user field 7 to round trip, got %+v ok=%v", field, ok)
	}
}

func TestTransactionEncodeDecodeWithoutBalance(t *testing.T) {
	tx := NewTransaction(sampleAddr(3), sampleAddr(4), 1, Amount{Integral: 1}, 1)
	buf := tx.encode(nil)
	got, _, err := DecodeTransaction(buf)
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}
	if got.HasBalance() {
		t.Fatal("expected HasBalance to be false when none was set")
	}
}

func TestDecodeTransactionShortBuffer(t *testing.T) {
	_, _, err := DecodeTransaction(make([]byte, 4))
	if err == nil {
		t.Fatal("expected an error decoding a too-short transaction buffer")
	}
}
