package book

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dbPath := fmt.Sprintf("./tmp_test_ledger_%s.db", t.Name())
	os.RemoveAll(dbPath)
	t.Cleanup(func() { os.RemoveAll(dbPath) })

	store, err := OpenStore(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ledger, err := NewLedger(store)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

func TestValidateOrderParams(t *testing.T) {
	if err := validateOrderParams(tokenA, tokenB, wei(1), wei(1)); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}
	if err := validateOrderParams(tokenA, tokenB, nil, wei(1)); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("nil amountIn: err = %v, want ErrInvalidAmount", err)
	}
	if err := validateOrderParams(tokenA, tokenB, wei(1), wei(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amountOut: err = %v, want ErrInvalidAmount", err)
	}
	if err := validateOrderParams(native, native, wei(1), wei(1)); !errors.Is(err, ErrInvalidPair) {
		t.Errorf("identical assets: err = %v, want ErrInvalidPair", err)
	}
}

func TestLedgerGetUnknownID(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.Get(1)
	if !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestLedgerAppendAndGetSnapshot(t *testing.T) {
	l := newTestLedger(t)
	now := time.UnixMilli(1700000000000)

	o, err := l.append(maker, tokenA, tokenB, wei(10), wei(5), now)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if o.ID != 1 || o.CreatedAt != now.UnixMilli() {
		t.Errorf("order = %+v", o)
	}

	snap, err := l.Get(o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// Snapshot must be isolated from ledger mutation
	snap.AmountIn.SetInt64(999)
	again, _ := l.Get(o.ID)
	if again.AmountIn.Cmp(wei(10)) != 0 {
		t.Error("caller mutation leaked into ledger record")
	}
}

func TestLedgerTerminalRecordsResolve(t *testing.T) {
	l := newTestLedger(t)

	o, err := l.append(maker, tokenA, tokenB, wei(10), wei(5), time.Now())
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	l.setStatus(o.ID, StatusCancelled)
	if err := l.persist(o.ID); err != nil {
		t.Fatalf("persist: %v", err)
	}

	// "existed but terminal" still resolves, unlike never-allocated ids
	rec, err := l.Get(o.ID)
	if err != nil {
		t.Fatalf("get terminal: %v", err)
	}
	if rec.Status != StatusCancelled || rec.Active() {
		t.Errorf("status = %s, want cancelled", rec.Status)
	}
}

func TestLedgerSequenceSurvivesReopen(t *testing.T) {
	dbPath := fmt.Sprintf("./tmp_test_ledger_%s.db", t.Name())
	os.RemoveAll(dbPath)
	t.Cleanup(func() { os.RemoveAll(dbPath) })

	store, err := OpenStore(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ledger, err := NewLedger(store)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := ledger.append(maker, tokenA, tokenB, wei(10), wei(5), time.Now()); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := ledger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = OpenStore(dbPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	ledger, err = NewLedger(store)
	if err != nil {
		t.Fatalf("reopen ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })

	if ledger.Len() != 3 {
		t.Errorf("records after reopen = %d, want 3", ledger.Len())
	}
	o, err := ledger.append(maker, tokenA, tokenB, wei(10), wei(5), time.Now())
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if o.ID != 4 {
		t.Errorf("id after reopen = %d, want 4", o.ID)
	}
}

func TestOrderKeyRoundTrip(t *testing.T) {
	for _, id := range []uint64{1, 42, 18446744073709551615} {
		got, err := orderIDFromKey(orderKey(id))
		if err != nil {
			t.Fatalf("id %d: %v", id, err)
		}
		if got != id {
			t.Errorf("round trip: got %d, want %d", got, id)
		}
	}
	if _, err := orderIDFromKey([]byte("seq")); err == nil {
		t.Error("expected error for non-order key")
	}
}
