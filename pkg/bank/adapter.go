package bank

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"swapbook/pkg/asset"
)

// Adapter gives the settlement engine one move-value surface over the bank:
// pull escrow/payment into custody, push settlement proceeds out. Native
// currency and tokens go through the same two calls.
type Adapter struct {
	bank    *Bank
	custody common.Address
}

func NewAdapter(b *Bank, custody common.Address) *Adapter {
	return &Adapter{bank: b, custody: custody}
}

// Custody returns the address holding escrowed funds.
func (a *Adapter) Custody() common.Address { return a.custody }

// Begin opens a transfer session for one lifecycle operation. Every
// completed movement is journaled; Rollback reverses them newest-first so a
// failed operation leaves no balance change behind.
func (a *Adapter) Begin() *Session {
	return &Session{adapter: a}
}

type move struct {
	asset  asset.Asset
	from   common.Address
	to     common.Address
	amount *big.Int

	// viaAllowance marks movements that consumed the owner's allowance, so
	// rollback can restore it.
	viaAllowance bool
}

// Session is the per-operation journal of movements.
type Session struct {
	adapter *Adapter
	journal []move
}

// PullIn moves amount of the asset from `from` into custody. Tokens are
// pulled through the pre-granted allowance; native currency moves directly
// (the engine has already checked it against the attached value).
func (s *Session) PullIn(ctx context.Context, a asset.Asset, from common.Address, amount *big.Int) error {
	custody := s.adapter.custody

	var err error
	if a.IsNative() {
		err = s.adapter.bank.SendNative(ctx, from, custody, amount)
	} else {
		token, _ := a.TokenAddress()
		err = s.adapter.bank.TransferFrom(ctx, token, custody, from, custody, amount)
	}
	if err != nil {
		return err
	}

	s.journal = append(s.journal, move{
		asset:        a,
		from:         from,
		to:           custody,
		amount:       new(big.Int).Set(amount),
		viaAllowance: !a.IsNative(),
	})
	return nil
}

// PushOut moves amount of the asset from custody to the recipient. The
// recipient may reject the transfer (hooked address), in which case no
// balance changes.
func (s *Session) PushOut(ctx context.Context, a asset.Asset, to common.Address, amount *big.Int) error {
	custody := s.adapter.custody

	var err error
	if a.IsNative() {
		err = s.adapter.bank.SendNative(ctx, custody, to, amount)
	} else {
		token, _ := a.TokenAddress()
		err = s.adapter.bank.Transfer(ctx, token, custody, to, amount)
	}
	if err != nil {
		return err
	}

	s.journal = append(s.journal, move{asset: a, from: custody, to: to, amount: new(big.Int).Set(amount)})
	return nil
}

// Rollback reverses every journaled movement, newest first. Reversal skips
// recipient hooks: funds simply return where they came from, and any
// allowance consumed on the way in is restored.
func (s *Session) Rollback() {
	for i := len(s.journal) - 1; i >= 0; i-- {
		m := s.journal[i]
		s.adapter.bank.forceMove(m.asset, m.to, m.from, m.amount)
		if m.viaAllowance {
			token, _ := m.asset.TokenAddress()
			s.adapter.bank.restoreAllowance(token, m.from, s.adapter.custody, m.amount)
		}
	}
	s.journal = nil
}
