package telnet

import "github.com/stesla/telwire/internal/event"

const (
	// EventData carries application data as []byte.
	EventData event.Name = "telnet.event.data"
	// EventCommand carries a Command received from the peer.
	EventCommand event.Name = "telnet.event.command"
	// EventOption carries OptionData whenever a side of an option turns on
	// or off, or when the peer refuses our request to enable it.
	EventOption event.Name = "telnet.event.option"
	// EventSubnegotiation carries a Subnegotiation for an active option
	// that has no handler.
	EventSubnegotiation event.Name = "telnet.event.subnegotiation"
	// EventDiagnostic carries a Diagnostic for protocol violations that
	// did not stop processing.
	EventDiagnostic event.Name = "telnet.event.diagnostic"
)

type OptionData struct {
	Opt     byte
	Side    Side
	Enabled bool
	Refused bool
}

type Diagnostic struct {
	Opt byte
	Err error
}

func (d Diagnostic) Error() string {
	return OptionName(d.Opt) + ": " + d.Err.Error()
}

func (d Diagnostic) Unwrap() error { return d.Err }
