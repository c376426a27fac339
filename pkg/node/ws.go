package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	solgate "github.com/solgatepay/solgate/pkg"
)

// interface guard ensures WSEmitter implements solgate.NodeEmitter
var _ solgate.NodeEmitter = &WSEmitter{}

const wsCallTimeout = 10 * time.Second

// WSEmitter subscribes to account-change notifications over the
// node's websocket endpoint (accountSubscribe) and fans them out to
// per-invoice watcher channels. A dead socket is not fatal: Subscribe
// fails closed and the monitor's poll timer keeps detection alive.
type WSEmitter struct {
	commitment string
	conn       *websocket.Conn
	mu         sync.Mutex // guards writes, pending, subs, closed
	nextID     uint64
	pending    map[uint64]chan *json.RawMessage
	subs       map[int64]subEntry
	closed     bool
}

type subEntry struct {
	addr solgate.Address
	ch   chan<- solgate.Address
}

type wsFrame struct {
	Id     *uint64          `json:"id"`
	Result *json.RawMessage `json:"result"`
	Error  *rpcError        `json:"error"`
	Method string           `json:"method"`
	Params *struct {
		Subscription int64 `json:"subscription"`
	} `json:"params"`
}

func NewWSEmitter(config solgate.Config) (*WSEmitter, error) {
	nodeConf := config.NodeOf()
	if nodeConf.WSURL == "" {
		return nil, fmt.Errorf("no WS URL configured for network %q", config.Solgate.Network)
	}
	conn, _, err := websocket.DefaultDialer.Dial(nodeConf.WSURL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %v", nodeConf.WSURL, err)
	}
	emitter := &WSEmitter{
		commitment: nodeConf.Commitment,
		conn:       conn,
		pending:    make(map[uint64]chan *json.RawMessage),
		subs:       make(map[int64]subEntry),
	}
	go emitter.readLoop()
	return emitter, nil
}

// Implements conductor.Service
func (e *WSEmitter) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		started <- true
		<-stop
		e.mu.Lock()
		e.closed = true
		e.conn.Close()
		e.mu.Unlock()
		stopped <- true
	}()
	return nil
}

// Subscribe registers for change notifications at addr. Each
// notification is a non-blocking send of addr on ch (a dirty flag;
// watchers re-check, they don't consume payloads).
func (e *WSEmitter) Subscribe(addr solgate.Address, ch chan<- solgate.Address) (func(), error) {
	wait, err := e.call("accountSubscribe", []any{addr, map[string]any{
		"encoding":   "base64",
		"commitment": e.commitment,
	}})
	if err != nil {
		return nil, err
	}
	var result *json.RawMessage
	select {
	case result = <-wait:
	case <-time.After(wsCallTimeout):
		return nil, fmt.Errorf("accountSubscribe %s: timed out", addr)
	}
	if result == nil {
		return nil, fmt.Errorf("accountSubscribe %s: connection lost", addr)
	}
	var subID int64
	if err := json.Unmarshal(*result, &subID); err != nil {
		return nil, fmt.Errorf("accountSubscribe %s: bad subscription id: %v", addr, err)
	}

	e.mu.Lock()
	e.subs[subID] = subEntry{addr, ch}
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		delete(e.subs, subID)
		e.mu.Unlock()
		// best-effort: the reply (if any) is dropped by the read loop
		e.call("accountUnsubscribe", []any{subID})
	}
	return cancel, nil
}

// call writes one request frame and returns a channel carrying its
// (buffered) reply. The caller may abandon the channel.
func (e *WSEmitter) call(method string, params []any) (chan *json.RawMessage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("websocket closed")
	}
	e.nextID += 1
	id := e.nextID
	payload, err := json.Marshal(rpcRequest{JsonRPC: "2.0", Method: method, Params: params, Id: id})
	if err != nil {
		return nil, err
	}
	wait := make(chan *json.RawMessage, 1)
	e.pending[id] = wait
	err = e.conn.WriteMessage(websocket.TextMessage, payload)
	if err != nil {
		delete(e.pending, id)
		return nil, fmt.Errorf("websocket write: %v", err)
	}
	return wait, nil
}

func (e *WSEmitter) readLoop() {
	for {
		_, data, err := e.conn.ReadMessage()
		if err != nil {
			e.mu.Lock()
			if !e.closed {
				log.Println("WSEmitter: read failed, push notifications stopped:", err)
				e.closed = true
				e.conn.Close()
			}
			// unblock any waiting callers
			for id, wait := range e.pending {
				close(wait)
				delete(e.pending, id)
			}
			e.mu.Unlock()
			return
		}
		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Println("WSEmitter: bad frame:", err)
			continue
		}
		switch {
		case frame.Method == "accountNotification" && frame.Params != nil:
			e.mu.Lock()
			entry, found := e.subs[frame.Params.Subscription]
			e.mu.Unlock()
			if found {
				// dirty-flag semantics: dropping when full is fine
				select {
				case entry.ch <- entry.addr:
				default:
				}
			}
		case frame.Id != nil:
			e.mu.Lock()
			wait, found := e.pending[*frame.Id]
			delete(e.pending, *frame.Id)
			e.mu.Unlock()
			if found {
				if frame.Error != nil {
					log.Printf("WSEmitter: call error: %d %s\n", frame.Error.Code, frame.Error.Message)
					close(wait)
				} else {
					wait <- frame.Result
				}
			}
		}
	}
}
