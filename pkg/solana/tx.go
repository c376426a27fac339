package solana

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
)

// Legacy transaction wire format, enough to express a fee-payer
// signing one or more System Program transfers. Layout:
//
//	signatures: compact-u16 count, 64 bytes each
//	message:
//	  header: 3 bytes (required sigs, readonly signed, readonly unsigned)
//	  account keys: compact-u16 count, 32 bytes each
//	  recent blockhash: 32 bytes
//	  instructions: compact-u16 count, each
//	    program index (1 byte)
//	    account indexes: compact-u16 count, 1 byte each
//	    data: compact-u16 length, bytes

// SystemProgramID is the native program that executes transfers.
const SystemProgramID = "11111111111111111111111111111111"

// systemTransferIndex is the System Program's transfer instruction tag.
const systemTransferIndex uint32 = 2

// Transfer moves Lamports from the fee payer to To.
type Transfer struct {
	To       string // base58 address
	Lamports int64
}

// TransferMessage builds the unsigned message for a transaction in
// which `from` (fee payer and only signer) sends each Transfer via the
// System Program.
func TransferMessage(from string, recentBlockhash string, transfers []Transfer) ([]byte, error) {
	if len(transfers) == 0 {
		return nil, fmt.Errorf("transfer message: no transfers")
	}
	fromKey, err := DecodeAddress(from)
	if err != nil {
		return nil, err
	}
	hash, err := DecodeAddress(recentBlockhash) // blockhashes are 32 base58 bytes too
	if err != nil {
		return nil, fmt.Errorf("bad blockhash: %v", err)
	}
	programKey, err := DecodeAddress(SystemProgramID)
	if err != nil {
		return nil, err
	}

	// account table: writable signer, then writable non-signers,
	// then the readonly program. duplicate recipients collapse to
	// one entry.
	keys := [][]byte{fromKey}
	indexOf := map[string]byte{from: 0}
	for _, t := range transfers {
		if t.Lamports <= 0 {
			return nil, fmt.Errorf("transfer message: non-positive lamports for %s", t.To)
		}
		if _, have := indexOf[t.To]; have {
			continue
		}
		toKey, err := DecodeAddress(t.To)
		if err != nil {
			return nil, err
		}
		indexOf[t.To] = byte(len(keys))
		keys = append(keys, toKey)
	}
	programIndex := byte(len(keys))
	keys = append(keys, programKey)

	msg := []byte{1, 0, 1} // one required signature, program is readonly
	msg = appendCompactU16(msg, len(keys))
	for _, key := range keys {
		msg = append(msg, key...)
	}
	msg = append(msg, hash...)

	msg = appendCompactU16(msg, len(transfers))
	for _, t := range transfers {
		msg = append(msg, programIndex)
		msg = appendCompactU16(msg, 2)
		msg = append(msg, 0, indexOf[t.To])
		data := make([]byte, 12)
		binary.LittleEndian.PutUint32(data[0:4], systemTransferIndex)
		binary.LittleEndian.PutUint64(data[4:12], uint64(t.Lamports))
		msg = appendCompactU16(msg, len(data))
		msg = append(msg, data...)
	}
	return msg, nil
}

// SignedTransaction wraps a message with its single fee-payer
// signature, ready for broadcast.
func SignedTransaction(key ed25519.PrivateKey, message []byte) []byte {
	sig := ed25519.Sign(key, message)
	txn := appendCompactU16(nil, 1)
	txn = append(txn, sig...)
	txn = append(txn, message...)
	return txn
}

// appendCompactU16 appends the shortvec encoding of v.
func appendCompactU16(buf []byte, v int) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v&0x7f|0x80))
		v >>= 7
	}
	return append(buf, byte(v))
}

// ParseCompactU16 decodes a shortvec value, returning it and the
// number of bytes consumed (0 if truncated).
func ParseCompactU16(buf []byte) (int, int) {
	v := 0
	for i := 0; i < len(buf) && i < 3; i++ {
		v |= int(buf[i]&0x7f) << (7 * i)
		if buf[i]&0x80 == 0 {
			return v, i + 1
		}
	}
	return 0, 0
}
