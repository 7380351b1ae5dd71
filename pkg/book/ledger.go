package book

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"swapbook/pkg/asset"
)

// Ledger is the authoritative store of every order ever created. It
// allocates ids (strictly increasing, never reused, starting at 1), keeps
// the full history in memory, and persists each record to Pebble. Terminal
// records are never deleted.
//
// Reads take the ledger's own lock so queries stay consistent while the
// engine mutates; lifecycle mutations are additionally serialized by the
// engine.
type Ledger struct {
	mu     sync.RWMutex
	store  *Store
	orders map[uint64]*Order
	lastID uint64
}

// NewLedger opens the ledger over a store, loading all records and the id
// sequence into memory.
func NewLedger(store *Store) (*Ledger, error) {
	lastID, err := store.LoadSequence()
	if err != nil {
		return nil, err
	}
	records, err := store.LoadAllOrders()
	if err != nil {
		return nil, err
	}

	orders := make(map[uint64]*Order, len(records))
	for _, o := range records {
		orders[o.ID] = o
	}

	return &Ledger{
		store:  store,
		orders: orders,
		lastID: lastID,
	}, nil
}

func (l *Ledger) Close() error {
	return l.store.Close()
}

// validateOrderParams enforces the creation invariants: both amounts
// strictly positive, assets distinct.
func validateOrderParams(tokenIn, tokenOut asset.Asset, amountIn, amountOut *big.Int) error {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return fmt.Errorf("%w: amountIn %s", ErrInvalidAmount, amountIn)
	}
	if amountOut == nil || amountOut.Sign() <= 0 {
		return fmt.Errorf("%w: amountOut %s", ErrInvalidAmount, amountOut)
	}
	if tokenIn == tokenOut {
		return fmt.Errorf("%w: both sides are %s", ErrInvalidPair, tokenIn)
	}
	return nil
}

// append allocates the next id and stores a new active order. The record
// and the advanced sequence hit disk in one atomic batch before the
// in-memory state changes.
func (l *Ledger) append(maker common.Address, tokenIn, tokenOut asset.Asset, amountIn, amountOut *big.Int, now time.Time) (*Order, error) {
	if err := validateOrderParams(tokenIn, tokenOut, amountIn, amountOut); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	o := &Order{
		ID:        l.lastID + 1,
		Maker:     maker,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: new(big.Int).Set(amountOut),
		Status:    StatusActive,
		CreatedAt: now.UnixMilli(),
	}

	if err := l.store.AppendOrder(o); err != nil {
		return nil, err
	}

	l.lastID = o.ID
	l.orders[o.ID] = o
	return o, nil
}

// Get returns a snapshot of the order, terminal or not. Ids that were never
// allocated fail with ErrOrderNotFound.
func (l *Ledger) Get(id uint64) (Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	o, ok := l.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	}
	return o.snapshot(), nil
}

// live returns the mutable record. Engine use only, under the engine lock.
func (l *Ledger) live(id uint64) (*Order, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.orders[id]
	return o, ok
}

// setStatus flips the lifecycle state in memory. The engine calls this
// before any outbound transfer (and back again when rolling a failed
// operation), so concurrent readers always observe the effects-first state.
func (l *Ledger) setStatus(id uint64, st Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if o, ok := l.orders[id]; ok {
		o.Status = st
	}
}

// persist writes the order's current state durably.
func (l *Ledger) persist(id uint64) error {
	l.mu.RLock()
	o, ok := l.orders[id]
	var cp Order
	if ok {
		cp = o.snapshot()
	}
	l.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	}
	return l.store.SaveOrder(&cp)
}

// forEach visits every record under the read lock. Used at startup to
// rebuild the active index and escrow tallies.
func (l *Ledger) forEach(fn func(*Order)) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, o := range l.orders {
		fn(o)
	}
}

// Len returns the number of orders ever created.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.orders)
}
