package asset

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Asset identifies something the engine can move: the chain's native
// currency, or a fungible token addressed by its contract. The two share one
// representation so escrow and settlement code never branches on a magic
// address constant.
type Asset struct {
	token  common.Address
	native bool
}

// Native returns the native-currency asset (ETH).
func Native() Asset {
	return Asset{native: true}
}

// Token returns the asset for a fungible token contract.
func Token(addr common.Address) Asset {
	return Asset{token: addr}
}

// FromAddress maps the wire representation: the zero address is the
// native-currency sentinel, anything else is a token contract.
func FromAddress(addr common.Address) Asset {
	if addr == (common.Address{}) {
		return Native()
	}
	return Token(addr)
}

func (a Asset) IsNative() bool { return a.native }

// TokenAddress returns the token contract address. ok is false for the
// native asset.
func (a Asset) TokenAddress() (common.Address, bool) {
	if a.native {
		return common.Address{}, false
	}
	return a.token, true
}

// Address returns the wire representation: zero address for native,
// contract address for tokens. Inverse of FromAddress.
func (a Asset) Address() common.Address {
	if a.native {
		return common.Address{}
	}
	return a.token
}

func (a Asset) String() string {
	if a.native {
		return "ETH"
	}
	return a.token.Hex()
}

func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Address().Hex())
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	var hex string
	if err := json.Unmarshal(data, &hex); err != nil {
		return err
	}
	if !common.IsHexAddress(hex) {
		return fmt.Errorf("invalid asset address: %q", hex)
	}
	*a = FromAddress(common.HexToAddress(hex))
	return nil
}

// Pair is a directional asset pair: an ETH→token order and a token→ETH
// order live in different pairs.
type Pair struct {
	In  Asset
	Out Asset
}

func (p Pair) String() string {
	return fmt.Sprintf("%s->%s", p.In, p.Out)
}
