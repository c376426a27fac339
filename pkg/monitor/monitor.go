package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	solgate "github.com/solgatepay/solgate/pkg"
)

// interface guard ensures Monitor implements solgate.InvoiceWatcher
var _ solgate.InvoiceWatcher = &Monitor{}

// Monitor keeps a registry of unsettled invoices and runs one watcher
// goroutine per invoice. Each watcher wakes on a poll timer and on
// node push notifications, detects inbound payments and, once the
// invoice completes, forwards the funds (settlement). All work for a
// single invoice is serialised by the watcher's mutex, so overlapping
// triggers cannot double-detect or double-settle.
type Monitor struct {
	store   solgate.Store
	l1      solgate.L1
	bus     solgate.MessageBus
	emitter solgate.NodeEmitter // may be nil (poll only)
	config  solgate.Config

	mu       sync.Mutex // guards watchers
	watchers map[string]*watcher
}

type watcher struct {
	invoiceID string
	addr      solgate.Address
	amount    solgate.CoinAmount
	userID    int64

	mu     sync.Mutex // serialises detection and settlement
	cursor string     // newest signature already examined
	push   chan solgate.Address
	done   chan struct{}

	// transaction lookup retry state, so a signature the node cannot
	// return does not pin the cursor forever
	retrySig   string
	retryCount int

	subMu     sync.Mutex // guards cancelSub
	cancelSub func()     // nil if the push subscription failed
}

// setSub installs the push subscription, or cancels it immediately if
// the watcher was shut down while subscribing.
func (w *watcher) setSub(cancel func()) {
	w.subMu.Lock()
	select {
	case <-w.done:
		w.subMu.Unlock()
		cancel()
	default:
		w.cancelSub = cancel
		w.subMu.Unlock()
	}
}

func NewPaymentMonitor(store solgate.Store, l1 solgate.L1, bus solgate.MessageBus, emitter solgate.NodeEmitter, config solgate.Config) *Monitor {
	return &Monitor{
		store:    store,
		l1:       l1,
		bus:      bus,
		emitter:  emitter,
		config:   config,
		watchers: make(map[string]*watcher),
	}
}

// Implements conductor.Service
func (m *Monitor) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		m.recoverWatches()
		started <- true
		<-stop
		m.mu.Lock()
		for id, w := range m.watchers {
			delete(m.watchers, id)
			w.shutdown()
		}
		m.mu.Unlock()
		stopped <- true
	}()
	return nil
}

// recoverWatches re-registers every pending invoice after a restart,
// so payments made while the service was down are picked up on the
// first poll cycle.
func (m *Monitor) recoverWatches() {
	invoices, err := m.store.ListPendingInvoices()
	if err != nil {
		log.Println("Monitor: ListPendingInvoices:", err)
		return
	}
	for _, inv := range invoices {
		m.Watch(inv.InvoiceID, inv.WalletAddress, inv.Amount, inv.UserID)
	}
	if len(invoices) > 0 {
		log.Printf("Monitor: recovered %d pending invoices\n", len(invoices))
	}
}

// Watch starts monitoring an invoice's address for payment. Watching
// an invoice that is already watched is a no-op.
func (m *Monitor) Watch(invoiceID string, addr solgate.Address, amount solgate.CoinAmount, userID int64) {
	m.mu.Lock()
	if _, have := m.watchers[invoiceID]; have {
		m.mu.Unlock()
		return
	}
	w := &watcher{
		invoiceID: invoiceID,
		addr:      addr,
		amount:    amount,
		userID:    userID,
		push:      make(chan solgate.Address, 1),
		done:      make(chan struct{}),
	}
	m.watchers[invoiceID] = w
	m.mu.Unlock()

	if m.emitter != nil {
		cancel, err := m.emitter.Subscribe(addr, w.push)
		if err != nil {
			// not fatal: the poll timer still covers detection
			log.Printf("Monitor: subscribe failed for %s, polling only: %v\n", invoiceID, err)
		} else {
			w.setSub(cancel)
		}
	}
	go m.watch(w)
}

// Unwatch removes an invoice from the registry and releases its
// resources. Safe to call for an unknown invoice.
func (m *Monitor) Unwatch(invoiceID string) {
	m.mu.Lock()
	w := m.watchers[invoiceID]
	delete(m.watchers, invoiceID)
	m.mu.Unlock()
	if w != nil {
		w.shutdown()
	}
}

func (m *Monitor) IsWatching(invoiceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, have := m.watchers[invoiceID]
	return have
}

func (w *watcher) shutdown() {
	close(w.done)
	w.subMu.Lock()
	cancel := w.cancelSub
	w.cancelSub = nil
	w.subMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// watch is the per-invoice loop: an immediate check, then a check per
// poll tick or push notification, until the invoice is unwatched.
func (m *Monitor) watch(w *watcher) {
	ticker := time.NewTicker(time.Duration(m.config.Monitor.PollSecs) * time.Second)
	defer ticker.Stop()
	m.check(w)
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			m.check(w)
		case <-w.push:
			m.check(w)
		}
	}
}

// check runs one detection cycle and, if the invoice has completed
// and not yet settled, a settlement attempt. Holding w.mu across both
// makes the whole cycle atomic per invoice.
func (m *Monitor) check(w *watcher) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m.detect(w)
	if !m.IsWatching(w.invoiceID) {
		return // unwatched while we held the lock
	}
	invoice, err := m.store.GetInvoice(w.invoiceID)
	if solgate.IsNotFoundError(err) {
		// the ledger no longer knows this invoice, stop watching it
		m.Unwatch(w.invoiceID)
		return
	}
	if err != nil {
		log.Printf("Monitor: GetInvoice '%s': %v\n", w.invoiceID, err)
		return
	}
	if invoice.Status == solgate.StatusCompleted && !invoice.Settled() {
		m.settle(w, invoice)
	}
}
