package session

// Status is the lifecycle state of a session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusGenerating Status = "generating"
	StatusWaiting    Status = "waiting"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusFailed     Status = "failed"
)

// Role is the side of the transfer a session plays. It is empty while idle.
type Role string

const (
	RoleNone     Role = ""
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// Event drives status transitions.
type Event int

const (
	EventInitiate Event = iota
	EventCodeReady
	EventJoin
	EventOfferSent
	EventTransportConnected
	EventChannelOpen
	EventTransportFailed
	EventRejected
	EventReset
)

var eventNames = [...]string{
	EventInitiate:           "initiate",
	EventCodeReady:          "code_ready",
	EventJoin:               "join",
	EventOfferSent:          "offer_sent",
	EventTransportConnected: "transport_connected",
	EventChannelOpen:        "channel_open",
	EventTransportFailed:    "transport_failed",
	EventRejected:           "rejected",
	EventReset:              "reset",
}

func (e Event) String() string {
	if e >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "unknown"
}

var transitions = map[Status]map[Event]Status{
	StatusIdle: {
		EventInitiate: StatusGenerating,
		EventJoin:     StatusConnecting,
	},
	StatusGenerating: {
		EventCodeReady:       StatusWaiting,
		EventTransportFailed: StatusFailed,
		EventRejected:        StatusFailed,
	},
	StatusWaiting: {
		EventOfferSent:       StatusConnecting,
		EventTransportFailed: StatusFailed,
		EventRejected:        StatusFailed,
	},
	StatusConnecting: {
		EventTransportConnected: StatusConnected,
		EventChannelOpen:        StatusConnected,
		EventTransportFailed:    StatusFailed,
		EventRejected:           StatusFailed,
	},
	StatusConnected: {
		EventTransportConnected: StatusConnected,
		EventChannelOpen:        StatusConnected,
		EventTransportFailed:    StatusFailed,
	},
	StatusFailed: {},
}

// Transition returns the status that follows current on ev. Reset always
// leads to idle. Pairs without a transition return (current, false).
func Transition(current Status, ev Event) (Status, bool) {
	if ev == EventReset {
		return StatusIdle, true
	}
	next, ok := transitions[current][ev]
	if !ok {
		return current, false
	}
	return next, true
}

// InFlight reports whether a handshake or connection is underway.
func (s Status) InFlight() bool {
	switch s {
	case StatusGenerating, StatusWaiting, StatusConnecting, StatusConnected:
		return true
	}
	return false
}
