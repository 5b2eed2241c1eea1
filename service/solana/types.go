package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// LamportDecimals is the number of decimal places between lamports and SOL.
const LamportDecimals = 9

// DefaultRPCURL is the public devnet endpoint.
const DefaultRPCURL = "https://api.devnet.solana.com"

// AddressGenerator produces base58 public keys from fresh ed25519 keypairs.
// The private key is discarded: the identity is a burner.
type AddressGenerator struct{}

func (AddressGenerator) NewAddress() (string, error) {
	account, err := solana.NewRandomPrivateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate keypair: %w", err)
	}
	return account.PublicKey().String(), nil
}

func (AddressGenerator) Validate(address string) error {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("not a base58 public key: %w", err)
	}
	return nil
}
