package solgate

import (
	"github.com/shopspring/decimal"
)

// L1 represents access to Solana's L1 functionality.
//
// Implemented by pkg/node against a Solana RPC node; tests use the
// mock in the same package. Only the capability surface needed by the
// payment monitor and settlement engine is exposed here.
type L1 interface {
	MakeAddress() (Address, Privkey, error)
	ListSignatures(addr Address, limit int) ([]string, error)
	GetTransaction(signature string) (TxnInfo, error)
	GetBalance(addr Address) (int64, error)
	GetRentExemptReserve() (int64, error)
	GetLatestBlockhash() (string, error)
	EstimateFee(message []byte) (int64, error)
	Simulate(rawTxn []byte) error
	SendRaw(rawTxn []byte, maxRetries int) (signature string, err error)
	Confirm(signature string) error
}

// NodeEmitter delivers push notifications whenever a watched address
// changes on-chain. A nil/failed subscription is not fatal: the
// monitor's poll timer is the recovery path.
type NodeEmitter interface {
	Subscribe(addr Address, ch chan<- Address) (cancel func(), err error)
}

type Address string
type Privkey string
type CoinAmount = decimal.Decimal

// One SOL in lamports, the chain's smallest unit.
const LamportsPerSol int64 = 1_000_000_000

var ZeroCoins = decimal.NewFromInt(0) // 0 SOL
var OneSol = decimal.NewFromInt(1)    // 1.0 SOL

// TxnInfo describes a confirmed transaction's balance effects, enough
// to compute the net transfer into a watched address.
type TxnInfo struct {
	AccountKeys  []Address
	PreBalances  []int64 // lamports, same order as AccountKeys
	PostBalances []int64 // lamports, same order as AccountKeys
}

// BalanceDelta returns the net lamport change at addr, or zero if the
// transaction doesn't touch addr.
func (t TxnInfo) BalanceDelta(addr Address) int64 {
	for i, key := range t.AccountKeys {
		if key != addr {
			continue
		}
		if i < len(t.PreBalances) && i < len(t.PostBalances) {
			return t.PostBalances[i] - t.PreBalances[i]
		}
		return 0
	}
	return 0
}

// LamportsToCoin converts exactly, no floating point.
func LamportsToCoin(lamports int64) CoinAmount {
	return decimal.New(lamports, -9)
}

// CoinToLamports truncates any sub-lamport fraction.
func CoinToLamports(amount CoinAmount) int64 {
	return amount.Shift(9).IntPart()
}
