// Package newenviron implements the NEW-ENVIRON option (RFC 1572).
package newenviron

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/stesla/telwire/internal/event"
	"github.com/stesla/telwire/internal/telnet"
)

const (
	IS   = 0
	SEND = 1
	INFO = 2
)

const (
	VAR     = 0
	VALUE   = 1
	ESC     = 2
	USERVAR = 3
)

// Type is the namespace of a variable: well-known VARs or USERVARs.
type Type byte

const (
	Var     Type = VAR
	UserVar Type = USERVAR
)

func (t Type) String() string {
	if t == UserVar {
		return "USERVAR"
	}
	return "VAR"
}

const (
	// EventEnvironment carries the []Variable the peer sent in reply to
	// SEND.
	EventEnvironment event.Name = "telnet.newenviron.environment"
	// EventUpdate carries the []Variable of an unsolicited INFO.
	EventUpdate event.Name = "telnet.newenviron.update"
)

// Request names a variable to ask for. An empty Name asks for every
// variable of its Type.
type Request struct {
	Type Type
	Name string
}

// Variable is one entry of an IS or INFO list. Defined is false for a
// variable sent without a value, which is how INFO reports a deletion.
type Variable struct {
	Type    Type
	Name    string
	Value   string
	Defined bool
}

// Send asks the peer for reqs, or for its whole environment when reqs is
// empty.
func Send(reqs ...Request) telnet.Subnegotiation {
	data := []byte{SEND}
	for _, r := range reqs {
		data = append(data, byte(r.Type))
		data = appendEscaped(data, r.Name)
	}
	return telnet.Subnegotiation{Opt: telnet.NewEnviron, Data: data}
}

func message(cmd byte, vars []Variable) telnet.Subnegotiation {
	data := []byte{cmd}
	for _, v := range vars {
		data = append(data, byte(v.Type))
		data = appendEscaped(data, v.Name)
		if v.Defined {
			data = append(data, VALUE)
			data = appendEscaped(data, v.Value)
		}
	}
	return telnet.Subnegotiation{Opt: telnet.NewEnviron, Data: data}
}

func appendEscaped(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case VAR, VALUE, ESC, USERVAR:
			dst = append(dst, ESC, c)
		default:
			dst = append(dst, c)
		}
	}
	return dst
}

// decode splits a list into entries. Names end at VAR, USERVAR or, when
// values is set, VALUE; ESC makes the byte after it literal.
func decode(data []byte, values bool) ([]Variable, error) {
	var vars []Variable
	for i := 0; i < len(data); {
		v := Variable{}
		switch data[i] {
		case VAR:
			v.Type = Var
		case USERVAR:
			v.Type = UserVar
		default:
			return nil, fmt.Errorf("newenviron: expected VAR or USERVAR, got %d", data[i])
		}
		v.Name, i = readString(data, i+1, values)
		if values && i < len(data) && data[i] == VALUE {
			v.Defined = true
			v.Value, i = readString(data, i+1, false)
		}
		vars = append(vars, v)
	}
	return vars, nil
}

func readString(data []byte, i int, stopAtValue bool) (string, int) {
	var b strings.Builder
	for ; i < len(data); i++ {
		switch c := data[i]; {
		case c == ESC:
			if i+1 < len(data) {
				i++
				b.WriteByte(data[i])
			}
		case c == VAR, c == USERVAR, stopAtValue && c == VALUE:
			return b.String(), i
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), i
}

// Requester asks for the peer's environment as soon as the peer agrees to
// the option. Register it with AllowThem(true).
type Requester struct {
	// Requests limits what is asked for. Empty asks for everything.
	Requests []Request
}

func (r Requester) OptionChanged(s *telnet.Session, change telnet.OptionData) error {
	if change.Side != telnet.Them || !change.Enabled {
		return nil
	}
	return s.Do(Send(r.Requests...))
}

func (r Requester) Subnegotiate(_ *telnet.Session, data []byte) ([]event.Event, error) {
	if len(data) == 0 {
		return nil, errors.New("newenviron: empty subnegotiation")
	}
	var name event.Name
	switch data[0] {
	case IS:
		name = EventEnvironment
	case INFO:
		name = EventUpdate
	default:
		return nil, fmt.Errorf("newenviron: expected IS or INFO, got %d", data[0])
	}
	vars, err := decode(data[1:], true)
	if err != nil {
		return nil, err
	}
	return []event.Event{{Name: name, Data: vars}}, nil
}

type key struct {
	typ  Type
	name string
}

// Responder answers SEND from the variables it holds and reports changes
// made while the option is enabled with INFO. Register it with
// AllowUs(true).
type Responder struct {
	vars map[key]string
}

// Set defines a variable. s may be nil while no session is attached.
func (r *Responder) Set(s *telnet.Session, typ Type, name, value string) error {
	if r.vars == nil {
		r.vars = map[key]string{}
	}
	r.vars[key{typ, name}] = value
	return r.inform(s, Variable{Type: typ, Name: name, Value: value, Defined: true})
}

// Delete removes a variable. s may be nil while no session is attached.
func (r *Responder) Delete(s *telnet.Session, typ Type, name string) error {
	if _, ok := r.vars[key{typ, name}]; !ok {
		return nil
	}
	delete(r.vars, key{typ, name})
	return r.inform(s, Variable{Type: typ, Name: name})
}

func (r *Responder) Lookup(typ Type, name string) (string, bool) {
	value, ok := r.vars[key{typ, name}]
	return value, ok
}

func (r *Responder) inform(s *telnet.Session, v Variable) error {
	if s == nil || !s.Enabled(telnet.NewEnviron, telnet.Us) {
		return nil
	}
	return s.Do(message(INFO, []Variable{v}))
}

// Subnegotiate answers SEND with IS. Variables we do not hold are left out
// of the reply.
func (r *Responder) Subnegotiate(s *telnet.Session, data []byte) ([]event.Event, error) {
	if len(data) == 0 || data[0] != SEND {
		return nil, errors.New("newenviron: expected SEND")
	}
	reqs, err := decode(data[1:], false)
	if err != nil {
		return nil, err
	}
	var vars []Variable
	if len(reqs) == 0 {
		vars = append(r.all(Var), r.all(UserVar)...)
	}
	for _, req := range reqs {
		if req.Name == "" {
			vars = append(vars, r.all(req.Type)...)
		} else if value, ok := r.vars[key{req.Type, req.Name}]; ok {
			vars = append(vars, Variable{Type: req.Type, Name: req.Name, Value: value, Defined: true})
		}
	}
	return nil, s.Do(message(IS, vars))
}

func (r *Responder) all(typ Type) []Variable {
	var vars []Variable
	for k, value := range r.vars {
		if k.typ == typ {
			vars = append(vars, Variable{Type: typ, Name: k.name, Value: value, Defined: true})
		}
	}
	slices.SortFunc(vars, func(a, b Variable) int { return strings.Compare(a.Name, b.Name) })
	return vars
}
