package solgate

// Solgate event types

// bus.Send(INV_PAYMENT_RECEIVED, invoice)
// bus.Send(ACC_CREATED, acc)

// Interface for any event
type EventType interface {
	Type() string
}

// slice of all msg types for config funcs lookup
var EVENT_TYPES []EventType = []EventType{EVENT_ALL("ALL"),
	EVENT_SYS("SYS"),
	EVENT_ACC("ACC"),
	EVENT_INV("INV")}

// Special category, do not use directly, represents *
type EVENT_ALL string

func (e EVENT_ALL) Type() string {
	return "ALL"
}

// System Events
type EVENT_SYS string

func (e EVENT_SYS) Type() string {
	return "SYS"
}

const (
	SYS_STARTUP EVENT_SYS = "STARTUP"
	SYS_ERR     EVENT_SYS = "ERR"
	SYS_MSG     EVENT_SYS = "MSG"
)

// Account Events
type EVENT_ACC string

func (e EVENT_ACC) Type() string {
	return "ACC"
}

const (
	ACC_CREATED        EVENT_ACC = "CREATED"
	ACC_UPDATED        EVENT_ACC = "UPDATED"
	ACC_EARNINGS       EVENT_ACC = "EARNINGS"
	ACC_KEY_REGENERATE EVENT_ACC = "KEY_REGENERATE"
)

// Invoice Events
type EVENT_INV string

func (e EVENT_INV) Type() string {
	return "INV"
}

const (
	INV_CREATED           EVENT_INV = "CREATED"
	INV_PAYMENT_RECEIVED  EVENT_INV = "PAYMENT_RECEIVED"
	INV_COMPLETED         EVENT_INV = "COMPLETED"
	INV_SETTLED           EVENT_INV = "SETTLED"
	INV_SETTLEMENT_FAILED EVENT_INV = "SETTLEMENT_FAILED"
)
