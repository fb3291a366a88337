package telnet

import (
	"fmt"

	"github.com/stesla/telwire/internal/event"
)

// Handler receives the subnegotiations of one option. It runs only while
// the option is active on at least one side. Events it returns are
// delivered after the element that triggered them; an error is reported as
// an EventDiagnostic and does not stop the session.
type Handler interface {
	Subnegotiate(s *Session, data []byte) ([]event.Event, error)
}

// ChangeHandler is implemented by handlers that want to act when either
// side of their option turns on or off.
type ChangeHandler interface {
	OptionChanged(s *Session, change OptionData) error
}

type HandlerFunc func(s *Session, data []byte) ([]event.Event, error)

func (fn HandlerFunc) Subnegotiate(s *Session, data []byte) ([]event.Event, error) {
	return fn(s, data)
}

// registry maps option codes to their descriptors. Options the peer
// mentions without being registered get a descriptor that refuses both
// sides, so the Q method still keeps us from answering in a loop.
type registry struct {
	m map[byte]*optionState
}

func newRegistry() *registry {
	return &registry{m: map[byte]*optionState{}}
}

func (r *registry) register(opt byte, h Handler) *optionState {
	o := r.lookup(opt)
	o.registered = true
	o.handler = h
	return o
}

func (r *registry) get(opt byte) (*optionState, bool) {
	o, ok := r.m[opt]
	return o, ok
}

func (r *registry) lookup(opt byte) *optionState {
	o, ok := r.m[opt]
	if !ok {
		o = &optionState{opt: opt}
		r.m[opt] = o
	}
	return o
}

func (r *registry) registered(opt byte) (*optionState, error) {
	o, ok := r.m[opt]
	if !ok || !o.registered {
		return nil, fmt.Errorf("%s: %w", OptionName(opt), ErrUnregistered)
	}
	return o, nil
}

// route dispatches one decoded element.
func (s *Session) route(e Element) {
	s.log.Trace().Stringer("element", e).Msg("receive")
	switch e := e.(type) {
	case Data:
		s.emit(EventData, []byte(e))
	case Command:
		s.emit(EventCommand, e)
	case Negotiation:
		s.negotiate(e)
	case Subnegotiation:
		s.subnegotiate(e)
	}
}

func (s *Session) negotiate(n Negotiation) {
	o := s.options.lookup(n.Opt)
	if !o.registered {
		s.log.Debug().
			Str("cmd", CommandName(n.Cmd)).
			Str("option", OptionName(n.Opt)).
			Msg("negotiation for unregistered option")
	}
	reply, change := o.receive(n.Cmd)
	if reply != nil {
		s.write(reply)
	}
	if change != nil {
		s.changed(o, *change)
	}
}

func (s *Session) subnegotiate(sb Subnegotiation) {
	o, ok := s.options.get(sb.Opt)
	if !ok || !o.active() {
		s.diagnose(sb.Opt, fmt.Errorf("subnegotiation: %w", ErrOptionInactive))
		return
	}
	if o.handler == nil {
		s.emit(EventSubnegotiation, sb)
		return
	}
	events, err := o.handler.Subnegotiate(s, sb.Data)
	s.events = append(s.events, events...)
	if err != nil {
		s.diagnose(sb.Opt, err)
	}
}

func (s *Session) changed(o *optionState, change OptionData) {
	s.log.Debug().
		Str("option", OptionName(change.Opt)).
		Stringer("side", change.Side).
		Bool("enabled", change.Enabled).
		Bool("refused", change.Refused).
		Msg("option changed")
	s.emit(EventOption, change)
	if h, ok := o.handler.(ChangeHandler); ok {
		if err := h.OptionChanged(s, change); err != nil {
			s.diagnose(o.opt, err)
		}
	}
}

func (s *Session) diagnose(opt byte, err error) {
	s.log.Debug().Err(err).Str("option", OptionName(opt)).Msg("diagnostic")
	s.emit(EventDiagnostic, Diagnostic{Opt: opt, Err: err})
}

func (s *Session) emit(name event.Name, data any) {
	s.events = append(s.events, event.Event{Name: name, Data: data})
}
