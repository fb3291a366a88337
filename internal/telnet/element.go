package telnet

import (
	"fmt"
	"strconv"
)

// Element is one unit of the Telnet stream. It is one of Command,
// Negotiation, Subnegotiation or Data.
type Element interface {
	fmt.Stringer
	element()
}

// Command is a two-byte IAC sequence such as IAC NOP or IAC GA.
type Command byte

// Negotiation is IAC <Cmd> <Opt> where Cmd is WILL, WONT, DO or DONT.
type Negotiation struct {
	Cmd byte
	Opt byte
}

// Subnegotiation is IAC SB <Opt> <Data> IAC SE. Data is unescaped.
type Subnegotiation struct {
	Opt  byte
	Data []byte
}

// Data is a run of ordinary bytes. It may contain 0xFF; escaping is the
// codec's job.
type Data []byte

func (Command) element()        {}
func (Negotiation) element()    {}
func (Subnegotiation) element() {}
func (Data) element()           {}

func (c Command) String() string { return "IAC " + CommandName(byte(c)) }

func (n Negotiation) String() string {
	return fmt.Sprintf("IAC %s %s", CommandName(n.Cmd), OptionName(n.Opt))
}

func (s Subnegotiation) String() string {
	return fmt.Sprintf("IAC SB %s %q IAC SE", OptionName(s.Opt), s.Data)
}

func (d Data) String() string { return strconv.Quote(string(d)) }

// Side names one direction of an option. Us is the option as performed by
// this end (we say WILL, they say DO); Them is the option as performed by
// the peer (they say WILL, we say DO).
type Side int

const (
	Us Side = iota
	Them
)

func (s Side) String() string {
	switch s {
	case Us:
		return "us"
	case Them:
		return "them"
	default:
		return "side(" + strconv.Itoa(int(s)) + ")"
	}
}

// Intent is something the application asks a Session to send: Data,
// Command, Subnegotiation or Request. Raw negotiations are not intents;
// they are produced only by the option state machines.
type Intent interface {
	intent()
}

// Request asks for an option to be enabled or disabled on one side.
type Request struct {
	Opt    byte
	Side   Side
	Enable bool
}

func (Command) intent()        {}
func (Subnegotiation) intent() {}
func (Data) intent()           {}
func (Request) intent()        {}
