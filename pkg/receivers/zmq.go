package receivers

import (
	"context"
	"fmt"
	"log"

	"github.com/pebbe/zmq4"
	solgate "github.com/solgatepay/solgate/pkg"
	"github.com/tjstebbing/conductor"
)

// ZMQEmitter publishes bus messages on a ZMQ PUB socket, so payment
// processors and shop backends can react to invoice events without
// polling the web API. The topic frame is "TYPE:SUBTYPE" (for
// example "INV:SETTLED"), followed by the message ID and the JSON
// payload.
type ZMQEmitter struct {
	Rec  chan solgate.Message
	sock *zmq4.Socket
}

// Implements solgate.MessageSubscriber
func (e ZMQEmitter) GetChan() chan solgate.Message {
	return e.Rec
}

// Implements conductor.Service
func (e ZMQEmitter) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		started <- true
		for {
			select {
			case <-stop:
				close(e.Rec)
				e.sock.Close()
				close(stopped)
				return
			case msg := <-e.Rec:
				topic := fmt.Sprintf("%s:%s", msg.EventType.Type(), msg.EventType)
				_, err := e.sock.SendMessage(topic, msg.ID, msg.Message)
				if err != nil {
					log.Println("ZMQEmitter: send failed:", err)
				}
			}
		}
	}()
	return nil
}

func NewZMQEmitter(bind string) (ZMQEmitter, error) {
	sock, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return ZMQEmitter{}, err
	}
	err = sock.Bind(bind)
	if err != nil {
		return ZMQEmitter{}, err
	}
	return ZMQEmitter{make(chan solgate.Message, 1000), sock}, nil
}

// Reads config and sets up any configured ZMQ emitters
func SetupZMQEmitters(cond *conductor.Conductor, bus solgate.MessageBus, conf solgate.Config) {
	for name, c := range conf.ZMQEmitters {
		e, err := NewZMQEmitter(c.Bind)
		if err != nil {
			log.Printf("ZMQEmitter %s: cannot bind %s: %v\n", name, c.Bind, err)
			continue
		}
		cond.Service(fmt.Sprintf("ZMQEmitter %s", c.Bind), e)
		bus.Register(e, eventTypesFor(fmt.Sprintf("ZMQEmitter %s", name), c.Types)...)
	}
}
