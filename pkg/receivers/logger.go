package receivers

import (
	"context"
	"fmt"
	"log"

	solgate "github.com/solgatepay/solgate/pkg"
	"github.com/tjstebbing/conductor"
	"gopkg.in/natefinch/lumberjack.v2"
)

type MessageLogger struct {
	// MessageLogger receives solgate.Message via Rec
	Rec chan solgate.Message
	// and logs them via Log
	Log *log.Logger
}

// Implements solgate.MessageSubscriber
func (l MessageLogger) GetChan() chan solgate.Message {
	return l.Rec
}

// Implements conductor.Service
func (l MessageLogger) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		started <- true
		for {
			select {
			// handle stopping the service
			case <-stop:
				close(l.Rec)
				close(stopped)
				return
			case msg := <-l.Rec:
				l.Log.Printf("%s:%s (%s): %s\n",
					msg.EventType.Type(),
					msg.EventType,
					msg.ID,
					msg.Message)
			}
		}
	}()
	return nil
}

func NewMessageLogger(path string) MessageLogger {
	// create a MessageLogger with a rotating log file
	l := MessageLogger{
		make(chan solgate.Message, 1000),
		log.New(&lumberjack.Logger{
			Filename: path,
			Compress: true,
		}, "", log.Ltime|log.Lmicroseconds),
	}
	return l
}

// Reads config and sets up any configured loggers
func SetupLoggers(cond *conductor.Conductor, bus solgate.MessageBus, conf solgate.Config) {
	for name, c := range conf.Loggers {
		l := NewMessageLogger(c.Path)
		cond.Service(fmt.Sprintf("Logger %s", c.Path), l)
		bus.Register(l, eventTypesFor(fmt.Sprintf("Logger %s", name), c.Types)...)
	}
}
