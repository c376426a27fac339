package solana

import (
	"testing"
)

func TestGenerateKeypair(t *testing.T) {
	address, secret, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if !ValidAddress(address) {
		t.Errorf("GenerateKeypair: invalid address: %s", address)
	}
	key, err := DecodeSecret(secret)
	if err != nil {
		t.Fatalf("DecodeSecret: %v", err)
	}
	if AddressOf(key) != address {
		t.Errorf("AddressOf: %s vs %s", AddressOf(key), address)
	}
}

func TestValidAddress(t *testing.T) {
	if !ValidAddress(SystemProgramID) {
		t.Errorf("ValidAddress: rejected system program id")
	}
	bad := []string{
		"",
		"0OIl",        // not base58
		"abc",         // too short
		"CPFGknWp1zrhEEw5UMfsVcy1pUN97HPBCHvXU9RkqcrQzzzz", // too long
	}
	for _, addr := range bad {
		if ValidAddress(addr) {
			t.Errorf("ValidAddress: accepted %q", addr)
		}
	}
}

func TestDecodeSecretRejectsWrongLength(t *testing.T) {
	// a valid address is only 32 bytes, not a 64-byte secret
	_, err := DecodeSecret(SystemProgramID)
	if err == nil {
		t.Errorf("DecodeSecret: accepted a 32-byte value")
	}
}

func TestZero(t *testing.T) {
	bytes := []byte{1, 2, 3, 4}
	Zero(bytes)
	for i, b := range bytes {
		if b != 0 {
			t.Errorf("Zero: byte %d not cleared", i)
		}
	}
}
