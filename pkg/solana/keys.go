package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	// AddressLength is an ed25519 public key.
	AddressLength = 32
	// SecretLength is an ed25519 keypair: 32-byte seed + 32-byte public key.
	SecretLength = 64
)

// GenerateKeypair creates a fresh ed25519 keypair and returns the
// base58 public address and the base58 exportable secret.
func GenerateKeypair() (address string, secret string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate keypair: %v", err)
	}
	return base58.Encode(pub), base58.Encode(priv), nil
}

// ValidAddress reports whether addr is a well-formed base58 address.
func ValidAddress(addr string) bool {
	bytes, err := base58.Decode(addr)
	return err == nil && len(bytes) == AddressLength
}

// DecodeAddress decodes a base58 address into its 32 raw bytes.
func DecodeAddress(addr string) ([]byte, error) {
	bytes, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("bad address %q: %v", addr, err)
	}
	if len(bytes) != AddressLength {
		return nil, fmt.Errorf("bad address %q: %d bytes", addr, len(bytes))
	}
	return bytes, nil
}

// DecodeSecret decodes a base58 exportable secret into a signing key.
// Callers must Zero the returned key when done with it.
func DecodeSecret(secret string) (ed25519.PrivateKey, error) {
	bytes, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("bad secret key: %v", err)
	}
	if len(bytes) != SecretLength {
		Zero(bytes)
		return nil, fmt.Errorf("bad secret key: %d bytes", len(bytes))
	}
	return ed25519.PrivateKey(bytes), nil
}

// AddressOf derives the base58 address for a signing key.
func AddressOf(key ed25519.PrivateKey) string {
	return base58.Encode(key.Public().(ed25519.PublicKey))
}

// Zero wipes key material in place.
func Zero(bytes []byte) {
	for i := range bytes {
		bytes[i] = 0
	}
}
