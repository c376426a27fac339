package main

import (
	"log"

	solgate "github.com/solgatepay/solgate/pkg"
	"github.com/solgatepay/solgate/pkg/monitor"
	"github.com/solgatepay/solgate/pkg/node"
	"github.com/solgatepay/solgate/pkg/receivers"
	"github.com/solgatepay/solgate/pkg/store"
	"github.com/solgatepay/solgate/pkg/webapi"
	"github.com/tjstebbing/conductor"
)

func Server(conf solgate.Config) {

	c := conductor.NewConductor(
		conductor.HookSignals(),
		conductor.Noisy(),
	)

	// Start the MessageBus Service
	bus := solgate.NewMessageBus()
	c.Service("MessageBus", bus)

	// Set up all configured receivers
	receivers.SetUpReceivers(c, bus, conf)

	// Set up the L1 interface to the Solana node
	l1, err := node.NewSolanaRPC(conf)
	if err != nil {
		panic(err)
	}

	// Account-change push notifications over the node's websocket.
	// A failed dial is not fatal: the monitor polls regardless.
	var emitter solgate.NodeEmitter
	wsEmitter, err := node.NewWSEmitter(conf)
	if err != nil {
		log.Println("WS notifications unavailable, polling only:", err)
	} else {
		emitter = wsEmitter
		c.Service("WS Listener", wsEmitter)
	}

	// Setup a Store
	db, err := store.NewSQLite(conf.Store.DBFile)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	// Start the Payment Monitor (detection + settlement); it re-arms
	// watches for all pending invoices on startup.
	mon := monitor.NewPaymentMonitor(db, l1, bus, emitter, conf)
	c.Service("Payment Monitor", mon)

	api := solgate.NewAPI(db, l1, bus, mon, conf)

	// Start the Payment API
	p, err := webapi.NewWebAPI(conf, api)
	if err != nil {
		panic(err)
	}
	c.Service("Payment API", p)

	<-c.Start()
}
