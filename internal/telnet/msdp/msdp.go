// Package msdp implements the Mud Server Data Protocol. A message is a
// list of variables; a value is a string, an array of strings or a table
// of nested variables.
package msdp

import (
	"bytes"
	"fmt"

	"github.com/stesla/telwire/internal/event"
	"github.com/stesla/telwire/internal/telnet"
)

const (
	VAR         = 1
	VAL         = 2
	TABLE_OPEN  = 3
	TABLE_CLOSE = 4
	ARRAY_OPEN  = 5
	ARRAY_CLOSE = 6
)

const EventVariables event.Name = "telnet.msdp.variables"

type Variable struct {
	Name  string
	Value Value
}

type Value interface {
	appendTo(dst []byte) []byte
}

type (
	String string
	Array  []string
	Table  []Variable
)

func (s String) appendTo(dst []byte) []byte {
	return append(dst, s...)
}

func (a Array) appendTo(dst []byte) []byte {
	dst = append(dst, ARRAY_OPEN)
	for _, v := range a {
		dst = append(dst, VAL)
		dst = append(dst, v...)
	}
	return append(dst, ARRAY_CLOSE)
}

func (t Table) appendTo(dst []byte) []byte {
	dst = append(dst, TABLE_OPEN)
	for _, v := range t {
		dst = v.appendTo(dst)
	}
	return append(dst, TABLE_CLOSE)
}

func (v Variable) appendTo(dst []byte) []byte {
	dst = append(dst, VAR)
	dst = append(dst, v.Name...)
	dst = append(dst, VAL)
	if v.Value == nil {
		return dst
	}
	return v.Value.appendTo(dst)
}

// Encode returns the subnegotiation payload for vars.
func Encode(vars ...Variable) []byte {
	var p []byte
	for _, v := range vars {
		p = v.appendTo(p)
	}
	return p
}

// Message returns vars as an MSDP subnegotiation.
func Message(vars ...Variable) telnet.Subnegotiation {
	return telnet.Subnegotiation{Opt: telnet.MSDP, Data: Encode(vars...)}
}

// Decode parses a subnegotiation payload. Several VALs after one VAR are
// read as an array, which is how some servers send lists.
func Decode(data []byte) ([]Variable, error) {
	p := parser{data: data}
	vars, err := p.variables(false)
	if err != nil {
		return nil, err
	}
	return vars, nil
}

type parser struct {
	data []byte
	pos  int
}

func (p *parser) accept(b byte) bool {
	if p.pos < len(p.data) && p.data[p.pos] == b {
		p.pos++
		return true
	}
	return false
}

func (p *parser) text() string {
	start := p.pos
	for p.pos < len(p.data) && (p.data[p.pos] < VAR || p.data[p.pos] > ARRAY_CLOSE) {
		p.pos++
	}
	return string(p.data[start:p.pos])
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("msdp: offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) variables(inTable bool) (vars []Variable, err error) {
	for p.pos < len(p.data) {
		switch {
		case p.accept(VAR):
			name := p.text()
			if !p.accept(VAL) {
				return nil, p.errorf("variable %q has no value", name)
			}
			value, err := p.value()
			if err != nil {
				return nil, err
			}
			vars = append(vars, Variable{Name: name, Value: value})
		case inTable && p.accept(TABLE_CLOSE):
			return vars, nil
		default:
			return nil, p.errorf("unexpected byte %d", p.data[p.pos])
		}
	}
	if inTable {
		return nil, p.errorf("unterminated table")
	}
	return vars, nil
}

func (p *parser) value() (Value, error) {
	switch {
	case p.accept(TABLE_OPEN):
		vars, err := p.variables(true)
		return Table(vars), err
	case p.accept(ARRAY_OPEN):
		var a Array
		for {
			if p.accept(ARRAY_CLOSE) {
				return a, nil
			}
			if !p.accept(VAL) {
				return nil, p.errorf("unterminated array")
			}
			a = append(a, p.text())
		}
	}
	s := p.text()
	if p.pos >= len(p.data) || p.data[p.pos] != VAL {
		return String(s), nil
	}
	a := Array{s}
	for p.accept(VAL) {
		a = append(a, p.text())
	}
	return a, nil
}

// Handler decodes MSDP messages from the peer. It serves either side of
// the option.
type Handler struct{}

func (Handler) Subnegotiate(_ *telnet.Session, data []byte) ([]event.Event, error) {
	vars, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return []event.Event{{Name: EventVariables, Data: vars}}, nil
}

// Format renders vars for logging.
func Format(vars []Variable) string {
	var b bytes.Buffer
	for i, v := range vars {
		if i > 0 {
			b.WriteByte(' ')
		}
		formatVariable(&b, v)
	}
	return b.String()
}

func formatVariable(b *bytes.Buffer, v Variable) {
	b.WriteString(v.Name)
	b.WriteByte('=')
	switch t := v.Value.(type) {
	case String:
		fmt.Fprintf(b, "%q", string(t))
	case Array:
		fmt.Fprintf(b, "%q", []string(t))
	case Table:
		b.WriteByte('{')
		b.WriteString(Format(t))
		b.WriteByte('}')
	}
}
