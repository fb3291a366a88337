// Package mccp implements MCCP2, the MUD Client Compression Protocol. The
// server compresses everything it sends after IAC SB MCCP2 IAC SE; the
// client decompresses everything it receives after that sequence.
package mccp

import (
	"errors"

	"github.com/klauspost/compress/zlib"
	"github.com/stesla/telwire/internal/event"
	"github.com/stesla/telwire/internal/telnet"
)

const (
	// EventStarted is dispatched with a telnet.Side when compression
	// begins in that direction: Us for output, Them for input.
	EventStarted event.Name = "telnet.mccp.started"
)

// Server compresses our output once the client agrees to MCCP2. Register
// it with AllowUs(true) and request the Us side.
type Server struct {
	// Level is the zlib compression level. Zero means the default.
	Level int
}

func (h *Server) Subnegotiate(*telnet.Session, []byte) ([]event.Event, error) {
	return nil, errors.New("mccp: client sent a subnegotiation")
}

func (h *Server) OptionChanged(s *telnet.Session, change telnet.OptionData) error {
	if change.Side != telnet.Us || !change.Enabled {
		return nil
	}
	if _, out := s.Filtered(); out {
		// compression cannot be restarted once the stream has begun
		return nil
	}
	level := h.Level
	if level == 0 {
		level = zlib.DefaultCompression
	}
	z, err := NewCompressor(level)
	if err != nil {
		return err
	}
	if err := s.Do(telnet.Subnegotiation{Opt: telnet.MCCP2}); err != nil {
		return err
	}
	if err := s.InstallCompressor(z); err != nil {
		return err
	}
	s.Logger().Debug().Int("level", level).Msg("compressing output")
	s.Emit(event.Event{Name: EventStarted, Data: telnet.Us})
	return nil
}

// Client decompresses the server's output. Register it with
// AllowThem(true).
type Client struct{}

func (Client) Subnegotiate(s *telnet.Session, data []byte) ([]event.Event, error) {
	if !s.Enabled(telnet.MCCP2, telnet.Them) {
		return nil, errors.New("mccp: start sequence for a disabled option")
	}
	if in, _ := s.Filtered(); in {
		return nil, errors.New("mccp: compression already started")
	}
	if err := s.InstallDecompressor(NewDecompressor()); err != nil {
		return nil, err
	}
	return []event.Event{{Name: EventStarted, Data: telnet.Them}}, nil
}
