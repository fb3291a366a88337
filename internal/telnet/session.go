package telnet

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stesla/telwire/internal/event"
)

type Config struct {
	// Logger receives protocol tracing. The zero value logs nothing.
	Logger zerolog.Logger
	// MaxSubnegotiation bounds a buffered subnegotiation payload. Zero
	// means DefaultMaxSubnegotiation.
	MaxSubnegotiation int
}

// Session is the protocol engine for one connection. It does no I/O: bytes
// from the peer go in through Receive, and bytes for the peer come out of
// Receive, Send and Flush. A Session is not safe for concurrent use.
type Session struct {
	log     zerolog.Logger
	codec   Codec
	options *registry

	inbound  Filter
	outbound Filter

	plain  []byte
	out    []byte
	events []event.Event

	err    error
	closed bool
}

func NewSession(cfg Config) *Session {
	return &Session{
		log:     cfg.Logger,
		codec:   Codec{MaxSubnegotiation: cfg.MaxSubnegotiation},
		options: newRegistry(),
	}
}

func (s *Session) Logger() *zerolog.Logger { return &s.log }

// Register installs h as the handler for opt and returns the option so the
// caller can say which sides it will allow. Both sides start out refused.
// Registering again replaces the handler and keeps the negotiated state.
func (s *Session) Register(opt byte, h Handler) OptionState {
	return s.options.register(opt, h)
}

func (s *Session) Option(opt byte) (OptionState, bool) {
	o, err := s.options.registered(opt)
	if err != nil {
		return nil, false
	}
	return o, true
}

func (s *Session) State(opt byte, side Side) QState {
	o, ok := s.options.get(opt)
	if !ok {
		return No
	}
	return o.State(side)
}

func (s *Session) Enabled(opt byte, side Side) bool {
	return s.State(opt, side) == Yes
}

// Receive decodes a chunk from the peer. It returns the events the chunk
// produced, any bytes that must be sent in reply, and the session's fatal
// error once one has occurred. Events and replies queued by earlier calls
// to Do are returned as well.
func (s *Session) Receive(p []byte) ([]event.Event, []byte, error) {
	if s.closed {
		return nil, nil, ErrClosed
	}
	if s.err == nil {
		s.receive(p)
	}
	// Flush can latch an outbound filter error, so read err after it.
	out := s.Flush()
	return s.Events(), out, s.err
}

func (s *Session) receive(p []byte) {
	for len(p) > 0 && s.err == nil {
		if s.inbound != nil {
			plain, _ := s.inflate(p)
			s.decode(plain)
			return
		}
		e, n := s.codec.Next(p)
		p = p[n:]
		if e == nil {
			return
		}
		s.route(e)
	}
}

func (s *Session) decode(p []byte) {
	for len(p) > 0 {
		e, n := s.codec.Next(p)
		p = p[n:]
		if e == nil {
			return
		}
		s.route(e)
	}
}

// Do queues an intent. Requests run through the option state machine and
// may queue nothing at all if the request is already satisfied or pending.
func (s *Session) Do(i Intent) error {
	if s.closed {
		return ErrClosed
	}
	if s.err != nil {
		return s.err
	}
	switch i := i.(type) {
	case Data:
		s.write(i)
	case Command:
		if !ValidCommand(byte(i)) {
			return fmt.Errorf("%s: %w", CommandName(byte(i)), ErrInvalidCommand)
		}
		s.write(i)
	case Subnegotiation:
		o, err := s.options.registered(i.Opt)
		if err != nil {
			return err
		}
		if !o.active() {
			return fmt.Errorf("%s: %w", OptionName(i.Opt), ErrOptionInactive)
		}
		s.write(i)
	case Request:
		o, err := s.options.registered(i.Opt)
		if err != nil {
			return err
		}
		reply, change := o.request(i.Side, i.Enable)
		if reply != nil {
			s.write(reply)
		}
		if change != nil {
			s.changed(o, *change)
		}
	default:
		return fmt.Errorf("unknown intent %T", i)
	}
	return nil
}

// Send is Do followed by Flush.
func (s *Session) Send(i Intent) ([]byte, error) {
	if err := s.Do(i); err != nil {
		return nil, err
	}
	return s.Flush(), nil
}

// Flush returns the bytes queued for the peer.
func (s *Session) Flush() []byte {
	s.deflate()
	out := s.out
	s.out = nil
	return out
}

// Events returns the events queued since the last call.
func (s *Session) Events() []event.Event {
	events := s.events
	s.events = nil
	return events
}

// Emit queues ev after the events produced so far. Handlers use it for
// events that must keep their place relative to received data.
func (s *Session) Emit(ev event.Event) {
	s.events = append(s.events, ev)
}

// Reset forces one side of a registered option back to No without sending
// anything, as if the peer had never agreed to it.
func (s *Session) Reset(opt byte, side Side) error {
	o, err := s.options.registered(opt)
	if err != nil {
		return err
	}
	if change := o.reset(side); change != nil {
		s.changed(o, *change)
	}
	return nil
}

// Err returns the error that stopped the session, if any.
func (s *Session) Err() error { return s.err }

// Close releases the filters. The session cannot be used afterwards. A
// session that may have a decompressor installed must be closed, or the
// decompressor's reader goroutine is left blocked.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for _, f := range []Filter{s.inbound, s.outbound} {
		if f != nil {
			errs = append(errs, f.Close())
		}
	}
	return errors.Join(errs...)
}

func (s *Session) write(e Element) {
	s.log.Trace().Stringer("element", e).Msg("send")
	if s.outbound != nil {
		s.plain = AppendElement(s.plain, e)
	} else {
		s.out = AppendElement(s.out, e)
	}
}

func (s *Session) fail(err error) {
	if s.err != nil {
		return
	}
	s.err = err
	s.log.Warn().Err(err).Msg("session stopped")
}
