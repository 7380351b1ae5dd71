package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestGenerateKeyDerivesAddress(t *testing.T) {
	s, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if s.Address() == (common.Address{}) {
		t.Error("generated address is zero")
	}
}

func TestFromPrivateKeyHexDeterministic(t *testing.T) {
	// Well-known hardhat test key
	const key = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	const want = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

	s, err := FromPrivateKeyHex(key)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Address().Hex() != want {
		t.Errorf("address = %s, want %s", s.Address().Hex(), want)
	}

	// Same key without the 0x prefix
	s2, err := FromPrivateKeyHex(key[2:])
	if err != nil {
		t.Fatalf("parse without prefix: %v", err)
	}
	if s2.Address() != s.Address() {
		t.Error("prefix handling changed the derived address")
	}

	if s.PrivateKeyHex() != key[2:] {
		t.Errorf("private key round trip = %s", s.PrivateKeyHex())
	}
}

func TestFromPrivateKeyHexRejectsGarbage(t *testing.T) {
	if _, err := FromPrivateKeyHex("zz"); err == nil {
		t.Error("expected error for invalid key")
	}
}
