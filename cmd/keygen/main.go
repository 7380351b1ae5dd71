package main

import (
	"flag"
	"fmt"
	"os"

	"swapbook/pkg/crypto"
)

// keygen generates maker/taker keypairs for use with DEMO_KEYS, or derives
// the address for an existing private key.
func main() {
	fromKey := flag.String("from", "", "derive the address for an existing private key instead of generating")
	n := flag.Int("n", 1, "number of keypairs to generate")
	flag.Parse()

	if *fromKey != "" {
		signer, err := crypto.FromPrivateKeyHex(*fromKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid private key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Address: %s\n", signer.Address().Hex())
		return
	}

	for i := 0; i < *n; i++ {
		signer, err := crypto.GenerateKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "keygen failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Address: %s\n", signer.Address().Hex())
		fmt.Printf("Private Key: %s (KEEP SECRET!)\n\n", signer.PrivateKeyHex())
	}
}
