package node

import (
	"fmt"
	"sync"

	solgate "github.com/solgatepay/solgate/pkg"
)

// interface guard ensures L1Mock implements solgate.L1
var _ solgate.L1 = &L1Mock{}

// NewL1Mock returns a scriptable solgate.L1 implementor for tests.
// Script the chain by filling in the public maps/fields; every mutator
// is safe for concurrent use so tests can poke it while the monitor
// runs.
func NewL1Mock() *L1Mock {
	return &L1Mock{
		Signatures:   make(map[solgate.Address][]string),
		Transactions: make(map[string]solgate.TxnInfo),
		Balances:     make(map[solgate.Address]int64),
		Reserve:      890_880, // rent-exempt minimum for a zero-data account
		Blockhash:    "GfVcyD4kkTrj6UVnjif94GcBLQPeiGvDmRHgKxkZkx2Y",
		Fee:          5_000,
	}
}

type L1Mock struct {
	mu           sync.Mutex
	Signatures   map[solgate.Address][]string // newest first
	Transactions map[string]solgate.TxnInfo
	Balances     map[solgate.Address]int64
	Reserve      int64
	Blockhash    string
	Fee          int64
	FeeErr       error // getFeeForMessage outage
	SimulateErr  error
	SendErr      error
	ConfirmErr   error
	SentTxns     [][]byte // every rawTxn passed to SendRaw
	nextAddr     int
	nextSig      int
}

func (l *L1Mock) MakeAddress() (solgate.Address, solgate.Privkey, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextAddr += 1
	addr := solgate.Address(fmt.Sprintf("mockAddress%d", l.nextAddr))
	return addr, solgate.Privkey("mockPrivkey"), nil
}

// AddPayment scripts a confirmed inbound transfer: a new signature at
// the head of addr's history whose effect credits addr with lamports.
func (l *L1Mock) AddPayment(addr solgate.Address, lamports int64) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextSig += 1
	sig := fmt.Sprintf("mockSig%d", l.nextSig)
	before := l.Balances[addr]
	l.Balances[addr] = before + lamports
	l.Transactions[sig] = solgate.TxnInfo{
		AccountKeys:  []solgate.Address{"mockPayer", addr},
		PreBalances:  []int64{lamports + 5_000, before},
		PostBalances: []int64{0, before + lamports},
	}
	l.Signatures[addr] = append([]string{sig}, l.Signatures[addr]...)
	return sig
}

// SetBalance overrides addr's live balance, e.g. to script a reorg
// that rolls back a payment after it was recorded.
func (l *L1Mock) SetBalance(addr solgate.Address, lamports int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Balances[addr] = lamports
}

// AddPrunedSignature scripts a signature whose transaction the node
// cannot return.
func (l *L1Mock) AddPrunedSignature(addr solgate.Address) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextSig += 1
	sig := fmt.Sprintf("mockSig%d", l.nextSig)
	l.Signatures[addr] = append([]string{sig}, l.Signatures[addr]...)
	return sig
}

func (l *L1Mock) ListSignatures(addr solgate.Address, limit int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sigs := l.Signatures[addr]
	if len(sigs) > limit {
		sigs = sigs[:limit]
	}
	return append([]string{}, sigs...), nil
}

func (l *L1Mock) GetTransaction(signature string) (solgate.TxnInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	txn, found := l.Transactions[signature]
	if !found {
		return solgate.TxnInfo{}, solgate.NewErr(solgate.NotFound, "no such transaction: %v", signature)
	}
	return txn, nil
}

func (l *L1Mock) GetBalance(addr solgate.Address) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Balances[addr], nil
}

func (l *L1Mock) GetRentExemptReserve() (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Reserve, nil
}

func (l *L1Mock) GetLatestBlockhash() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Blockhash, nil
}

func (l *L1Mock) EstimateFee(message []byte) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FeeErr != nil {
		return 0, l.FeeErr
	}
	return l.Fee, nil
}

func (l *L1Mock) Simulate(rawTxn []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.SimulateErr
}

func (l *L1Mock) SendRaw(rawTxn []byte, maxRetries int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SendErr != nil {
		return "", l.SendErr
	}
	l.nextSig += 1
	l.SentTxns = append(l.SentTxns, rawTxn)
	return fmt.Sprintf("mockSettleSig%d", l.nextSig), nil
}

func (l *L1Mock) Confirm(signature string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ConfirmErr
}

// SentCount reports how many transactions were broadcast.
func (l *L1Mock) SentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.SentTxns)
}

// interface guard ensures EmitterMock implements solgate.NodeEmitter
var _ solgate.NodeEmitter = &EmitterMock{}

// EmitterMock records subscriptions and lets tests push notifications.
type EmitterMock struct {
	mu       sync.Mutex
	channels map[solgate.Address]chan<- solgate.Address
	FailNext bool // make the next Subscribe fail
}

func NewEmitterMock() *EmitterMock {
	return &EmitterMock{channels: make(map[solgate.Address]chan<- solgate.Address)}
}

func (e *EmitterMock) Subscribe(addr solgate.Address, ch chan<- solgate.Address) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailNext {
		e.FailNext = false
		return nil, fmt.Errorf("mock subscribe failure")
	}
	e.channels[addr] = ch
	return func() {
		e.mu.Lock()
		delete(e.channels, addr)
		e.mu.Unlock()
	}, nil
}

// Notify pushes a change notification for addr, if subscribed.
func (e *EmitterMock) Notify(addr solgate.Address) bool {
	e.mu.Lock()
	ch, found := e.channels[addr]
	e.mu.Unlock()
	if !found {
		return false
	}
	select {
	case ch <- addr:
	default:
	}
	return true
}

// Subscribed reports whether addr has a live subscription.
func (e *EmitterMock) Subscribed(addr solgate.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, found := e.channels[addr]
	return found
}
