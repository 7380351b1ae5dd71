package book

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapbook/pkg/asset"
	"swapbook/pkg/bank"
	"swapbook/pkg/util"
)

// settlementKey marks a context as belonging to an in-flight settlement.
// The engine stamps the context before any outbound transfer; transfer
// hooks inherit it, so a lifecycle call made from inside a transfer is
// recognized and rejected before it can touch the lock.
type settlementKey struct{}

func stampSettlement(ctx context.Context) context.Context {
	return context.WithValue(ctx, settlementKey{}, true)
}

func inSettlement(ctx context.Context) bool {
	v, _ := ctx.Value(settlementKey{}).(bool)
	return v
}

// Engine owns the order lifecycle and the escrow it implies: deposit on
// create, atomic two-way swap on fill, refund on cancel. Lifecycle
// operations are serialized by one mutex and follow
// checks-effects-interactions: the
// order is marked terminal and de-indexed before any value leaves custody.
//
// Every operation is all-or-nothing. Outbound transfers are journaled and
// reversed, and ledger/index state restored, if any later step fails.
type Engine struct {
	mu     sync.Mutex
	ledger *Ledger
	index  *activeIndex
	vault  *bank.Adapter
	clock  util.Clock
	log    *zap.SugaredLogger

	// escrow tallies custody per asset; used as a checked-arithmetic guard
	// and exposed for audit.
	escrow map[asset.Asset]*big.Int

	emitter Emitter
}

// NewEngine builds an engine over an opened ledger, rebuilding the active
// index and escrow tallies from the records on disk.
func NewEngine(ledger *Ledger, vault *bank.Adapter, clock util.Clock, logger *zap.SugaredLogger) *Engine {
	e := &Engine{
		ledger: ledger,
		index:  newActiveIndex(),
		vault:  vault,
		clock:  clock,
		log:    logger,
		escrow: make(map[asset.Asset]*big.Int),
	}

	ledger.forEach(func(o *Order) {
		if o.Active() {
			e.index.add(o)
			e.escrowAdd(o.TokenIn, o.AmountIn)
		}
	})

	return e
}

// SetEmitter installs the event side channel. Events fire after the
// operation has fully committed.
func (e *Engine) SetEmitter(em Emitter) {
	e.emitter = em
}

// Create publishes a new order, taking AmountIn of tokenIn into escrow.
//
// If tokenIn is native, attached must equal amountIn: the value arrives
// with the call itself. Otherwise attached must be zero and the escrow is
// pulled from the maker through a pre-granted allowance. Returns the new
// order snapshot; its ID is also carried by the OrderCreated event.
func (e *Engine) Create(ctx context.Context, maker common.Address, tokenIn, tokenOut asset.Asset, amountIn, amountOut, attached *big.Int) (Order, error) {
	if inSettlement(ctx) {
		return Order{}, fmt.Errorf("create: %w", ErrReentrantCall)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateOrderParams(tokenIn, tokenOut, amountIn, amountOut); err != nil {
		return Order{}, fmt.Errorf("create: %w", err)
	}
	if err := checkAttached(tokenIn, amountIn, attached); err != nil {
		return Order{}, fmt.Errorf("create: %w", err)
	}

	session := e.vault.Begin()
	sctx := stampSettlement(ctx)

	if err := session.PullIn(sctx, tokenIn, maker, amountIn); err != nil {
		return Order{}, fmt.Errorf("create: escrow %s of %s: %w: %v", amountIn, tokenIn, ErrTransferFailed, err)
	}

	o, err := e.ledger.append(maker, tokenIn, tokenOut, amountIn, amountOut, e.clock.Now())
	if err != nil {
		session.Rollback()
		return Order{}, fmt.Errorf("create: %w", err)
	}

	e.index.add(o)
	e.escrowAdd(o.TokenIn, o.AmountIn)

	e.log.Infow("order_created",
		"id", o.ID,
		"maker", o.Maker.Hex(),
		"pair", o.Pair().String(),
		"amount_in", o.AmountIn.String(),
		"amount_out", o.AmountOut.String(),
	)
	e.emit(OrderCreated{
		ID:        o.ID,
		Maker:     o.Maker,
		TokenIn:   o.TokenIn,
		TokenOut:  o.TokenOut,
		AmountIn:  new(big.Int).Set(o.AmountIn),
		AmountOut: new(big.Int).Set(o.AmountOut),
	})

	return o.snapshot(), nil
}

// Fill settles an active order: the taker pays AmountOut of TokenOut to the
// maker and receives the escrowed AmountIn of TokenIn.
//
// If TokenOut is native, attached must equal AmountOut; otherwise attached
// must be zero and payment is pulled from the taker's allowance. The order
// goes terminal before any transfer; if any transfer or the durable write
// fails, every effect is rolled back.
func (e *Engine) Fill(ctx context.Context, id uint64, taker common.Address, attached *big.Int) error {
	if inSettlement(ctx) {
		return fmt.Errorf("fill order %d: %w", id, ErrReentrantCall)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.ledger.live(id)
	if !ok {
		return fmt.Errorf("fill order %d: %w", id, ErrOrderNotFound)
	}
	if !o.Active() {
		return fmt.Errorf("fill order %d: %w (%s)", id, ErrOrderInactive, o.Status)
	}
	if err := checkAttached(o.TokenOut, o.AmountOut, attached); err != nil {
		return fmt.Errorf("fill order %d: %w", id, err)
	}
	if err := e.escrowCheck(o.TokenIn, o.AmountIn); err != nil {
		return fmt.Errorf("fill order %d: %w", id, err)
	}

	// Effects before interactions: from here the order is unfillable and
	// uncancellable even if a transfer below re-enters through a hook.
	e.ledger.setStatus(id, StatusFilled)
	e.index.remove(o)

	session := e.vault.Begin()
	sctx := stampSettlement(ctx)

	err := session.PullIn(sctx, o.TokenOut, taker, o.AmountOut)
	if err == nil {
		err = session.PushOut(sctx, o.TokenOut, o.Maker, o.AmountOut)
	}
	if err == nil {
		err = session.PushOut(sctx, o.TokenIn, taker, o.AmountIn)
	}
	if err != nil {
		e.unwind(session, o)
		return fmt.Errorf("fill order %d: %w: %v", id, ErrTransferFailed, err)
	}
	if err := e.ledger.persist(id); err != nil {
		e.unwind(session, o)
		return fmt.Errorf("fill order %d: %w", id, err)
	}

	e.escrowSub(o.TokenIn, o.AmountIn)

	e.log.Infow("order_filled",
		"id", id,
		"maker", o.Maker.Hex(),
		"taker", taker.Hex(),
		"pair", o.Pair().String(),
	)
	e.emit(OrderFilled{ID: id, Taker: taker})

	return nil
}

// Cancel returns an active order's escrow to the maker. Only the maker may
// cancel. Same terminal-mark-first ordering and rollback as Fill.
func (e *Engine) Cancel(ctx context.Context, id uint64, caller common.Address) error {
	if inSettlement(ctx) {
		return fmt.Errorf("cancel order %d: %w", id, ErrReentrantCall)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.ledger.live(id)
	if !ok {
		return fmt.Errorf("cancel order %d: %w", id, ErrOrderNotFound)
	}
	if !o.Active() {
		return fmt.Errorf("cancel order %d: %w (%s)", id, ErrOrderInactive, o.Status)
	}
	if caller != o.Maker {
		return fmt.Errorf("cancel order %d: caller %s: %w", id, caller.Hex(), ErrNotMaker)
	}
	if err := e.escrowCheck(o.TokenIn, o.AmountIn); err != nil {
		return fmt.Errorf("cancel order %d: %w", id, err)
	}

	e.ledger.setStatus(id, StatusCancelled)
	e.index.remove(o)

	session := e.vault.Begin()
	sctx := stampSettlement(ctx)

	if err := session.PushOut(sctx, o.TokenIn, o.Maker, o.AmountIn); err != nil {
		e.unwind(session, o)
		return fmt.Errorf("cancel order %d: %w: %v", id, ErrTransferFailed, err)
	}
	if err := e.ledger.persist(id); err != nil {
		e.unwind(session, o)
		return fmt.Errorf("cancel order %d: %w", id, err)
	}

	e.escrowSub(o.TokenIn, o.AmountIn)

	e.log.Infow("order_cancelled", "id", id, "maker", o.Maker.Hex())
	e.emit(OrderCancelled{ID: id})

	return nil
}

// GetOrder returns the order record, terminal or not.
func (e *Engine) GetOrder(id uint64) (Order, error) {
	return e.ledger.Get(id)
}

// ActiveOrders returns all active order ids in ascending id order.
func (e *Engine) ActiveOrders() []uint64 {
	return e.index.listActive()
}

// OrdersByPair returns active ids trading exactly tokenIn for tokenOut.
// Direction matters: an ETH→token order never shows up under (token, ETH).
func (e *Engine) OrdersByPair(tokenIn, tokenOut asset.Asset) []uint64 {
	return e.index.listByPair(asset.Pair{In: tokenIn, Out: tokenOut})
}

// Escrowed returns the total amount of the asset currently held in custody
// for active orders.
func (e *Engine) Escrowed(a asset.Asset) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if bal, ok := e.escrow[a]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// checkAttached enforces the native-value rules shared by create and fill:
// exactly the required amount when the asset is native, exactly zero when
// it is a token.
func checkAttached(a asset.Asset, required, attached *big.Int) error {
	if attached == nil {
		attached = new(big.Int)
	}
	if a.IsNative() {
		if attached.Cmp(required) != 0 {
			return fmt.Errorf("%w: attached %s, need %s", ErrValueMismatch, attached, required)
		}
		return nil
	}
	if attached.Sign() != 0 {
		return fmt.Errorf("%w: attached %s", ErrUnexpectedValue, attached)
	}
	return nil
}

func (e *Engine) escrowAdd(a asset.Asset, amount *big.Int) {
	bal, ok := e.escrow[a]
	if !ok {
		bal = new(big.Int)
		e.escrow[a] = bal
	}
	bal.Add(bal, amount)
}

// escrowCheck guards the release against accounting corruption: custody
// must hold at least what the order claims before anything pays out.
func (e *Engine) escrowCheck(a asset.Asset, amount *big.Int) error {
	bal, ok := e.escrow[a]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: escrow of %s below %s", ErrOverflow, a, amount)
	}
	return nil
}

func (e *Engine) escrowSub(a asset.Asset, amount *big.Int) {
	if bal, ok := e.escrow[a]; ok {
		bal.Sub(bal, amount)
	}
}

// unwind restores a terminal-marked order to active and reverses every
// journaled transfer. Called when fill or cancel fails after the
// effects-first mark.
func (e *Engine) unwind(session *bank.Session, o *Order) {
	session.Rollback()
	e.ledger.setStatus(o.ID, StatusActive)
	e.index.add(o)
}

func (e *Engine) emit(ev Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}
