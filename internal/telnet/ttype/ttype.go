// Package ttype implements the TERMINAL-TYPE option (RFC 1091).
package ttype

import (
	"errors"
	"fmt"
	"slices"

	"github.com/stesla/telwire/internal/event"
	"github.com/stesla/telwire/internal/telnet"
)

const (
	IS   = 0
	SEND = 1
)

const (
	// EventTerminalType carries each name the peer reports, as a string.
	EventTerminalType event.Name = "telnet.ttype.terminal-type"
	// EventTerminalTypes carries the full []string once a cycling
	// Requester sees the peer's list repeat.
	EventTerminalTypes event.Name = "telnet.ttype.terminal-types"
)

// Send is the subnegotiation that asks the peer for its terminal type.
func Send() telnet.Subnegotiation {
	return telnet.Subnegotiation{Opt: telnet.TerminalType, Data: []byte{SEND}}
}

// Requester asks for the peer's terminal type as soon as the peer agrees
// to the option. With Cycle set it keeps asking until a name repeats,
// which is how a peer signals the end of its list.
type Requester struct {
	Cycle bool

	names []string
}

func (r *Requester) OptionChanged(s *telnet.Session, change telnet.OptionData) error {
	if change.Side != telnet.Them || !change.Enabled {
		return nil
	}
	r.names = nil
	return s.Do(Send())
}

func (r *Requester) Subnegotiate(s *telnet.Session, data []byte) ([]event.Event, error) {
	if len(data) == 0 || data[0] != IS {
		return nil, fmt.Errorf("ttype: expected IS, got %v", data)
	}
	name := string(data[1:])
	events := []event.Event{{Name: EventTerminalType, Data: name}}
	if !r.Cycle {
		return events, nil
	}
	if slices.Contains(r.names, name) {
		events = append(events, event.Event{Name: EventTerminalTypes, Data: slices.Clone(r.names)})
		return events, nil
	}
	r.names = append(r.names, name)
	return events, s.Do(Send())
}

// Responder answers SEND with our terminal types in turn. After the last
// one it repeats it once, then starts over.
type Responder struct {
	Types []string

	i int
}

func (r *Responder) Subnegotiate(s *telnet.Session, data []byte) ([]event.Event, error) {
	if len(data) != 1 || data[0] != SEND {
		return nil, errors.New("ttype: expected SEND")
	}
	return nil, s.Do(telnet.Subnegotiation{
		Opt:  telnet.TerminalType,
		Data: append([]byte{IS}, r.next()...),
	})
}

func (r *Responder) next() string {
	if len(r.Types) == 0 {
		return "UNKNOWN"
	}
	if r.i >= len(r.Types) {
		r.i = 0
		return r.Types[len(r.Types)-1]
	}
	t := r.Types[r.i]
	r.i++
	return t
}
