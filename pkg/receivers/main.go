package receivers

import (
	"fmt"

	solgate "github.com/solgatepay/solgate/pkg"
	"github.com/tjstebbing/conductor"
)

// Sets up standard receivers: integration endpoints that subscribe to
// the message bus and forward events out of the process.
func SetUpReceivers(cond *conductor.Conductor, bus solgate.MessageBus, conf solgate.Config) {
	// Set up configured loggers
	SetupLoggers(cond, bus, conf)

	// Set up configured ZMQ emitters
	SetupZMQEmitters(cond, bus, conf)
}

// eventTypesFor resolves configured type names ("INV", "ACC", ...)
// against the known event categories, warning about the rest.
func eventTypesFor(name string, configured []string) []solgate.EventType {
	types := []solgate.EventType{}
	for _, t := range configured {
		match := false
		for _, x := range solgate.EVENT_TYPES {
			if t == x.Type() {
				match = true
				types = append(types, x)
			}
		}
		if !match {
			fmt.Printf("⚠️  %s: ignoring invalid message type: %s\n", name, t)
		}
	}
	return types
}
