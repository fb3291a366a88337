package telnet

import "bytes"

// DefaultMaxSubnegotiation bounds the payload the codec will buffer for a
// single subnegotiation. Bytes beyond the limit are discarded.
const DefaultMaxSubnegotiation = 64 * 1024

type decodeState int

const (
	decodeByte decodeState = 0 + iota
	decodeIAC
	decodeOptionNegotiation
	decodeSBOption
	decodeSB
	decodeSBIAC
)

// Codec converts between Telnet bytes and Elements. Decoding is stateful:
// a sequence split across calls to Next is held until it is complete.
// The zero value is ready to use.
type Codec struct {
	MaxSubnegotiation int

	ds     decodeState
	cmd    byte
	sbopt  byte
	sbdata []byte
	data   []byte
}

// Next decodes at most one element from p and reports how many bytes of p
// it consumed. A nil element means every byte was absorbed and more input
// is needed. Pending data is returned as a Data element when a command is
// recognised or when p runs out, so adjacent Data elements may appear
// where the input was split.
func (c *Codec) Next(p []byte) (Element, int) {
	for i, b := range p {
		switch c.ds {
		case decodeByte:
			if b == IAC {
				c.ds = decodeIAC
			} else {
				c.data = append(c.data, b)
			}
		case decodeIAC:
			if b == IAC {
				c.data = append(c.data, IAC)
				c.ds = decodeByte
				continue
			}
			if len(c.data) > 0 {
				// b is left for the next call
				return c.flush(), i
			}
			switch b {
			case WILL, WONT, DO, DONT:
				c.cmd = b
				c.ds = decodeOptionNegotiation
			case SB:
				c.ds = decodeSBOption
			default:
				c.ds = decodeByte
				return Command(b), i + 1
			}
		case decodeOptionNegotiation:
			c.ds = decodeByte
			return Negotiation{Cmd: c.cmd, Opt: b}, i + 1
		case decodeSBOption:
			c.sbopt = b
			c.sbdata = nil
			c.ds = decodeSB
		case decodeSB:
			if b == IAC {
				c.ds = decodeSBIAC
			} else {
				c.appendSB(b)
			}
		case decodeSBIAC:
			switch b {
			case IAC:
				c.appendSB(IAC)
				c.ds = decodeSB
			case SE:
				c.ds = decodeByte
				return c.subnegotiation(), i + 1
			default:
				// IAC <cmd> inside a subnegotiation ends it; b is then read
				// as the byte following a plain IAC.
				c.ds = decodeIAC
				return c.subnegotiation(), i
			}
		}
	}
	if len(c.data) > 0 {
		return c.flush(), len(p)
	}
	return nil, len(p)
}

// Decode returns every element that p completes.
func (c *Codec) Decode(p []byte) (elems []Element) {
	for len(p) > 0 {
		e, n := c.Next(p)
		p = p[n:]
		if e == nil {
			break
		}
		elems = append(elems, e)
	}
	return
}

// Pending reports whether the codec is holding part of a sequence.
func (c *Codec) Pending() bool {
	return c.ds != decodeByte
}

func (c *Codec) flush() Data {
	d := Data(c.data)
	c.data = nil
	return d
}

func (c *Codec) appendSB(b byte) {
	limit := c.MaxSubnegotiation
	if limit <= 0 {
		limit = DefaultMaxSubnegotiation
	}
	if len(c.sbdata) < limit {
		c.sbdata = append(c.sbdata, b)
	}
}

func (c *Codec) subnegotiation() Subnegotiation {
	sb := Subnegotiation{Opt: c.sbopt, Data: c.sbdata}
	c.sbdata = nil
	return sb
}

// Encode returns the wire form of e.
func Encode(e Element) []byte {
	return AppendElement(nil, e)
}

// AppendElement appends the wire form of e to dst. Literal IAC bytes in
// data and subnegotiation payloads are doubled.
//
// Elements are not validated. A Command for which ValidCommand is false
// produces a frame that does not decode back to the same Command, and empty
// Data produces no bytes at all. Session.Do refuses the former.
func AppendElement(dst []byte, e Element) []byte {
	switch e := e.(type) {
	case Command:
		return append(dst, IAC, byte(e))
	case Negotiation:
		return append(dst, IAC, e.Cmd, e.Opt)
	case Subnegotiation:
		dst = append(dst, IAC, SB, e.Opt)
		dst = appendEscaped(dst, e.Data)
		return append(dst, IAC, SE)
	case Data:
		return appendEscaped(dst, e)
	}
	return dst
}

// ValidCommand reports whether b can be sent as a bare IAC command. The
// bytes that frame escapes, negotiations and subnegotiations cannot.
func ValidCommand(b byte) bool {
	switch b {
	case IAC, SB, SE, WILL, WONT, DO, DONT:
		return false
	}
	return true
}

func appendEscaped(dst, p []byte) []byte {
	for len(p) > 0 {
		i := bytes.IndexByte(p, IAC)
		if i < 0 {
			return append(dst, p...)
		}
		dst = append(dst, p[:i+1]...)
		dst = append(dst, IAC)
		p = p[i+1:]
	}
	return dst
}
