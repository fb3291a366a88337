// Package naws implements Negotiate About Window Size (RFC 1073).
package naws

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/stesla/telwire/internal/event"
	"github.com/stesla/telwire/internal/telnet"
)

const EventWindowSize event.Name = "telnet.naws.window-size"

// WindowSize is a terminal size in characters. Zero means unknown.
type WindowSize struct {
	Width  uint16
	Height uint16
}

func (w WindowSize) encode() []byte {
	p := make([]byte, 4)
	binary.BigEndian.PutUint16(p, w.Width)
	binary.BigEndian.PutUint16(p[2:], w.Height)
	return p
}

// Receiver decodes the sizes the peer reports. Register it with
// AllowThem(true).
type Receiver struct{}

func (Receiver) Subnegotiate(_ *telnet.Session, data []byte) ([]event.Event, error) {
	if len(data) != 4 {
		return nil, fmt.Errorf("naws: payload is %d bytes, want 4", len(data))
	}
	ws := WindowSize{
		Width:  binary.BigEndian.Uint16(data),
		Height: binary.BigEndian.Uint16(data[2:]),
	}
	return []event.Event{{Name: EventWindowSize, Data: ws}}, nil
}

// Reporter sends our window size whenever the option turns on and
// whenever it changes. Register it with AllowUs(true).
type Reporter struct {
	size WindowSize
}

func (r *Reporter) Subnegotiate(*telnet.Session, []byte) ([]event.Event, error) {
	return nil, errors.New("naws: unexpected subnegotiation")
}

func (r *Reporter) OptionChanged(s *telnet.Session, change telnet.OptionData) error {
	if change.Side == telnet.Us && change.Enabled {
		return s.Do(telnet.Subnegotiation{Opt: telnet.NAWS, Data: r.size.encode()})
	}
	return nil
}

// Update records a new size and reports it if the option is on.
func (r *Reporter) Update(s *telnet.Session, size WindowSize) error {
	if size == r.size {
		return nil
	}
	r.size = size
	if !s.Enabled(telnet.NAWS, telnet.Us) {
		return nil
	}
	return s.Do(telnet.Subnegotiation{Opt: telnet.NAWS, Data: size.encode()})
}
