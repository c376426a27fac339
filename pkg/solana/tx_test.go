package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"testing"
)

func TestCompactU16(t *testing.T) {
	cases := map[int][]byte{
		0:     {0x00},
		1:     {0x01},
		127:   {0x7f},
		128:   {0x80, 0x01},
		255:   {0xff, 0x01},
		16384: {0x80, 0x80, 0x01},
	}
	for v, want := range cases {
		got := appendCompactU16(nil, v)
		if !bytes.Equal(got, want) {
			t.Errorf("appendCompactU16(%d): %x vs %x", v, got, want)
		}
		back, n := ParseCompactU16(got)
		if back != v || n != len(want) {
			t.Errorf("ParseCompactU16(%x): got %d/%d", got, back, n)
		}
	}
}

func TestTransferMessage(t *testing.T) {
	from, _, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	user, _, _ := GenerateKeypair()
	house, _, _ := GenerateKeypair()
	blockhash, _, _ := GenerateKeypair() // any 32 base58 bytes will do

	msg, err := TransferMessage(from, blockhash, []Transfer{
		{To: user, Lamports: 950_000},
		{To: house, Lamports: 50_000},
	})
	if err != nil {
		t.Fatalf("TransferMessage: %v", err)
	}

	// header: exactly one signer, one readonly (program) account
	if msg[0] != 1 || msg[1] != 0 || msg[2] != 1 {
		t.Errorf("wrong header: %v", msg[0:3])
	}

	// account table: from, user, house, program
	numKeys, n := ParseCompactU16(msg[3:])
	if numKeys != 4 {
		t.Fatalf("wrong key count: %d", numKeys)
	}
	keys := msg[3+n:]
	fromKey, _ := DecodeAddress(from)
	programKey, _ := DecodeAddress(SystemProgramID)
	if !bytes.Equal(keys[0:32], fromKey) {
		t.Errorf("fee payer is not the first account")
	}
	if !bytes.Equal(keys[3*32:4*32], programKey) {
		t.Errorf("system program is not the last account")
	}

	// two transfer instructions follow the blockhash
	rest := keys[4*32+32:]
	numInstr, n := ParseCompactU16(rest)
	if numInstr != 2 {
		t.Fatalf("wrong instruction count: %d", numInstr)
	}
	instr := rest[n:]
	if instr[0] != 3 { // program index
		t.Errorf("wrong program index: %d", instr[0])
	}
	// accounts: [from, user]
	if instr[1] != 2 || instr[2] != 0 || instr[3] != 1 {
		t.Errorf("wrong account indexes: %v", instr[1:4])
	}
	// data: u32 transfer tag, u64 lamports
	if instr[4] != 12 {
		t.Fatalf("wrong data length: %d", instr[4])
	}
	if binary.LittleEndian.Uint32(instr[5:9]) != systemTransferIndex {
		t.Errorf("wrong instruction tag")
	}
	if binary.LittleEndian.Uint64(instr[9:17]) != 950_000 {
		t.Errorf("wrong lamports: %d", binary.LittleEndian.Uint64(instr[9:17]))
	}
}

func TestTransferMessageDeduplicatesRecipients(t *testing.T) {
	from, _, _ := GenerateKeypair()
	to, _, _ := GenerateKeypair()
	blockhash, _, _ := GenerateKeypair()

	msg, err := TransferMessage(from, blockhash, []Transfer{
		{To: to, Lamports: 1}, {To: to, Lamports: 2},
	})
	if err != nil {
		t.Fatalf("TransferMessage: %v", err)
	}
	numKeys, _ := ParseCompactU16(msg[3:])
	if numKeys != 3 { // from, to, program
		t.Errorf("wrong key count: %d", numKeys)
	}
}

func TestTransferMessageRejectsBadInput(t *testing.T) {
	from, _, _ := GenerateKeypair()
	to, _, _ := GenerateKeypair()
	blockhash, _, _ := GenerateKeypair()

	if _, err := TransferMessage(from, blockhash, nil); err == nil {
		t.Errorf("accepted empty transfer list")
	}
	if _, err := TransferMessage(from, blockhash, []Transfer{{To: to, Lamports: 0}}); err == nil {
		t.Errorf("accepted zero-lamport transfer")
	}
	if _, err := TransferMessage("bogus", blockhash, []Transfer{{To: to, Lamports: 1}}); err == nil {
		t.Errorf("accepted bad fee payer address")
	}
}

func TestSignedTransaction(t *testing.T) {
	from, secret, _ := GenerateKeypair()
	to, _, _ := GenerateKeypair()
	blockhash, _, _ := GenerateKeypair()

	msg, err := TransferMessage(from, blockhash, []Transfer{{To: to, Lamports: 42}})
	if err != nil {
		t.Fatal(err)
	}
	key, err := DecodeSecret(secret)
	if err != nil {
		t.Fatal(err)
	}
	txn := SignedTransaction(key, msg)

	numSigs, n := ParseCompactU16(txn)
	if numSigs != 1 {
		t.Fatalf("wrong signature count: %d", numSigs)
	}
	sig := txn[n : n+64]
	body := txn[n+64:]
	if !bytes.Equal(body, msg) {
		t.Errorf("message not carried verbatim after signatures")
	}
	pub := key.Public().(ed25519.PublicKey)
	if !ed25519.Verify(pub, body, sig) {
		t.Errorf("signature does not verify")
	}
}
