package bank

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"swapbook/pkg/asset"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrRecipientRejected     = errors.New("recipient rejected transfer")
)

// ReceiveHook is invoked when value is credited to the address it is
// registered for. Returning an error rejects the whole transfer, the way a
// contract recipient can revert on receive. Hooks run with the caller's
// context so a settlement in progress is visible to them.
type ReceiveHook func(ctx context.Context, a asset.Asset, from, to common.Address, amount *big.Int) error

// Bank models the chain's asset-transfer primitives: native-currency
// balances, per-token balances, and ERC-20 style allowances. The settlement
// engine's custody account is an ordinary address here.
//
// Thread-safe. All amounts are copied on the way in and out.
type Bank struct {
	mu     sync.Mutex
	native map[common.Address]*big.Int
	tokens map[common.Address]map[common.Address]*big.Int                    // token -> holder -> balance
	allow  map[common.Address]map[common.Address]map[common.Address]*big.Int // token -> owner -> spender -> remaining
	hooks  map[common.Address]ReceiveHook
}

func New() *Bank {
	return &Bank{
		native: make(map[common.Address]*big.Int),
		tokens: make(map[common.Address]map[common.Address]*big.Int),
		allow:  make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
		hooks:  make(map[common.Address]ReceiveHook),
	}
}

// Mint credits token balance out of thin air (TestToken.mint equivalent,
// used by demo wiring and tests).
func (b *Bank) Mint(token, to common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(asset.Token(token), to, amount)
}

// MintNative credits native currency (faucet equivalent).
func (b *Bank) MintNative(to common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(asset.Native(), to, amount)
}

// Approve grants spender the right to pull up to amount of owner's tokens.
// Overwrites any previous allowance, like ERC-20 approve.
func (b *Bank) Approve(token, owner, spender common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	owners, ok := b.allow[token]
	if !ok {
		owners = make(map[common.Address]map[common.Address]*big.Int)
		b.allow[token] = owners
	}
	spenders, ok := owners[owner]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		owners[owner] = spenders
	}
	spenders[spender] = new(big.Int).Set(amount)
}

// Allowance returns the remaining amount spender may pull from owner.
func (b *Bank) Allowance(token, owner, spender common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.allow[token][owner][spender]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// BalanceOf returns holder's balance of the given asset.
func (b *Bank) BalanceOf(a asset.Asset, holder common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balance(a, holder))
}

// SetReceiveHook registers a hook fired on every credit to addr. Passing nil
// removes the hook.
func (b *Bank) SetReceiveHook(addr common.Address, hook ReceiveHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if hook == nil {
		delete(b.hooks, addr)
		return
	}
	b.hooks[addr] = hook
}

// TransferFrom moves tokens from `from` to `to` on behalf of spender,
// consuming spender's allowance. Mirrors ERC-20 transferFrom.
func (b *Bank) TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *big.Int) error {
	b.mu.Lock()

	remaining, ok := b.allow[token][from][spender]
	if !ok || remaining.Cmp(amount) < 0 {
		b.mu.Unlock()
		return fmt.Errorf("%w: token %s spender %s", ErrInsufficientAllowance, token.Hex(), spender.Hex())
	}
	if err := b.move(asset.Token(token), from, to, amount); err != nil {
		b.mu.Unlock()
		return err
	}
	remaining.Sub(remaining, amount)
	hook := b.hooks[to]
	b.mu.Unlock()

	if err := b.runHook(ctx, hook, asset.Token(token), from, to, amount); err != nil {
		b.restoreAllowance(token, from, spender, amount)
		return err
	}
	return nil
}

// restoreAllowance re-credits a consumed allowance when a transferFrom is
// being reversed.
func (b *Bank) restoreAllowance(token, owner, spender common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if remaining, ok := b.allow[token][owner][spender]; ok {
		remaining.Add(remaining, amount)
	}
}

// Transfer moves tokens from the caller's own balance.
func (b *Bank) Transfer(ctx context.Context, token, from, to common.Address, amount *big.Int) error {
	return b.send(ctx, asset.Token(token), from, to, amount)
}

// SendNative moves native currency.
func (b *Bank) SendNative(ctx context.Context, from, to common.Address, amount *big.Int) error {
	return b.send(ctx, asset.Native(), from, to, amount)
}

func (b *Bank) send(ctx context.Context, a asset.Asset, from, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	if err := b.move(a, from, to, amount); err != nil {
		b.mu.Unlock()
		return err
	}
	hook := b.hooks[to]
	b.mu.Unlock()

	return b.runHook(ctx, hook, a, from, to, amount)
}

// runHook invokes the recipient hook outside the bank lock so it may call
// back into bank or engine. A rejecting hook reverses the credit before the
// error is returned, leaving balances untouched.
func (b *Bank) runHook(ctx context.Context, hook ReceiveHook, a asset.Asset, from, to common.Address, amount *big.Int) error {
	if hook == nil {
		return nil
	}
	if err := hook(ctx, a, from, to, amount); err != nil {
		b.forceMove(a, to, from, amount)
		return fmt.Errorf("%w: %v", ErrRecipientRejected, err)
	}
	return nil
}

// forceMove reverses a completed movement without consulting allowances or
// hooks. Used only for compensation when a later step of an atomic operation
// fails.
func (b *Bank) forceMove(a asset.Asset, from, to common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// The debited side was just credited with this exact amount, so the move
	// cannot fail; a failure here means the journal is corrupt.
	if err := b.move(a, from, to, amount); err != nil {
		panic(fmt.Sprintf("bank: compensation failed: %v", err))
	}
}

// move debits and credits under the lock held by the caller.
func (b *Bank) move(a asset.Asset, from, to common.Address, amount *big.Int) error {
	bal := b.balance(a, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s of %s, need %s",
			ErrInsufficientBalance, from.Hex(), bal, a, amount)
	}
	bal.Sub(bal, amount)
	b.credit(a, to, amount)
	return nil
}

func (b *Bank) credit(a asset.Asset, to common.Address, amount *big.Int) {
	b.balance(a, to).Add(b.balance(a, to), amount)
}

// balance returns the live (mutable) balance entry, creating it at zero.
func (b *Bank) balance(a asset.Asset, holder common.Address) *big.Int {
	if a.IsNative() {
		bal, ok := b.native[holder]
		if !ok {
			bal = new(big.Int)
			b.native[holder] = bal
		}
		return bal
	}

	token, _ := a.TokenAddress()
	holders, ok := b.tokens[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		b.tokens[token] = holders
	}
	bal, ok := holders[holder]
	if !ok {
		bal = new(big.Int)
		holders[holder] = bal
	}
	return bal
}
