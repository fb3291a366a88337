package telnet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/stesla/telwire/internal/event"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

const (
	EventCharsetAccepted event.Name = "telnet.event.charset-accepted"
	EventCharsetRejected event.Name = "telnet.event.charset-rejected"
	// EventEncoding carries EncodingData. It is queued in stream order, so
	// a Conn applies the change between the data received before it and
	// the data received after it.
	EventEncoding event.Name = "telnet.event.encoding"
)

type CharsetData struct {
	Encoding encoding.Encoding
}

// EncodingData names new text encodings for either direction. A nil field
// leaves that direction alone.
type EncodingData struct {
	Read  encoding.Encoding
	Write encoding.Encoding
}

type Encodable interface {
	SetReadEncoding(encoding.Encoding)
	SetWriteEncoding(encoding.Encoding)
}

func SetEncoding(e Encodable, enc encoding.Encoding) {
	e.SetReadEncoding(enc)
	e.SetWriteEncoding(enc)
}

var ASCII encoding.Encoding

func init() {
	ASCII, _ = ianaindex.IANA.Encoding("US-ASCII")
}

// updateEncoding queues the encodings implied by TRANSMIT-BINARY and the
// negotiated charset. Without binary mode a direction is NVT ASCII; with
// it, bytes pass through untouched unless both sides are binary and a
// charset was agreed.
func updateEncoding(s *Session, charset encoding.Encoding) {
	them, us := s.Enabled(TransmitBinary, Them), s.Enabled(TransmitBinary, Us)
	if charset != nil && them && us {
		s.Emit(event.Event{Name: EventEncoding, Data: EncodingData{Read: charset, Write: charset}})
		return
	}
	data := EncodingData{Read: ASCII, Write: ASCII}
	if them {
		data.Read = encoding.Nop
	}
	if us {
		data.Write = encoding.Nop
	}
	s.Emit(event.Event{Name: EventEncoding, Data: data})
}

type TransmitBinaryHandler struct {
	// Charset, when set, supplies the encoding to use once both sides are
	// in binary mode.
	Charset *CharsetHandler
}

func (h *TransmitBinaryHandler) Subnegotiate(*Session, []byte) ([]event.Event, error) {
	return nil, errors.New("unexpected subnegotiation")
}

func (h *TransmitBinaryHandler) OptionChanged(s *Session, _ OptionData) error {
	var charset encoding.Encoding
	if h.Charset != nil {
		charset = h.Charset.enc
	}
	updateEncoding(s, charset)
	return nil
}

type CharsetHandler struct {
	IsServer bool
	// Offer is requested as soon as the peer lets us send CHARSET.
	Offer []encoding.Encoding

	enc                encoding.Encoding
	requestedEncodings []encoding.Encoding
}

// Encoding returns the agreed charset, or nil.
func (h *CharsetHandler) Encoding() encoding.Encoding { return h.enc }

func (h *CharsetHandler) OptionChanged(s *Session, change OptionData) error {
	if change.Side == Us && change.Enabled && len(h.Offer) > 0 {
		return h.RequestEncoding(s, h.Offer...)
	}
	return nil
}

func (h *CharsetHandler) RequestEncoding(s *Session, encodings ...encoding.Encoding) error {
	if !s.Enabled(Charset, Us) {
		return errors.New("charset option not enabled")
	}
	data := []byte{CharsetRequest}
	for _, enc := range encodings {
		name, err := ianaindex.IANA.Name(enc)
		if err != nil {
			return err
		}
		data = append(data, ";"+name...)
	}
	h.requestedEncodings = encodings
	return s.Do(Subnegotiation{Opt: Charset, Data: data})
}

func (h *CharsetHandler) Subnegotiate(s *Session, data []byte) ([]event.Event, error) {
	if len(data) == 0 {
		return nil, errors.New("empty charset subnegotiation")
	}
	switch cmd, data := data[0], data[1:]; cmd {
	case CharsetAccepted:
		h.requestedEncodings = nil
		enc := h.getEncoding(data)
		if enc == nil {
			return nil, fmt.Errorf("peer accepted unknown charset %q", data)
		}
		h.accept(s, enc)
		return []event.Event{{Name: EventCharsetAccepted, Data: CharsetData{Encoding: enc}}}, nil
	case CharsetRejected:
		h.requestedEncodings = nil
		return []event.Event{{Name: EventCharsetRejected}}, nil
	case CharsetRequest:
		return h.handleCharsetRequest(s, data)
	case CharsetTTableIs:
		return nil, s.Do(Subnegotiation{Opt: Charset, Data: []byte{CharsetTTableRejected}})
	default:
		return nil, fmt.Errorf("unknown charset command %d", cmd)
	}
}

func (h *CharsetHandler) handleCharsetRequest(s *Session, data []byte) ([]event.Event, error) {
	reject := func() ([]event.Event, error) {
		return []event.Event{{Name: EventCharsetRejected}},
			s.Do(Subnegotiation{Opt: Charset, Data: []byte{CharsetRejected}})
	}

	if len(h.requestedEncodings) > 0 {
		// both ends asked at once; RFC 2066 has the server's request win
		if h.IsServer {
			return reject()
		}
		h.requestedEncodings = nil
	}

	const ttable = "[TTABLE]"
	if len(data) > len(ttable)+2 && bytes.HasPrefix(data, []byte(ttable)) {
		// skip the version byte, TTABLE itself is not supported
		data = data[len(ttable)+1:]
	}

	var charset []byte
	var enc encoding.Encoding
	if len(data) > 1 {
		charset, enc = h.selectEncoding(bytes.Split(data[1:], data[0:1]))
	}
	if enc == nil {
		return reject()
	}

	if err := s.Do(Subnegotiation{Opt: Charset, Data: append([]byte{CharsetAccepted}, charset...)}); err != nil {
		return nil, err
	}
	h.accept(s, enc)
	return []event.Event{{Name: EventCharsetAccepted, Data: CharsetData{Encoding: enc}}}, nil
}

func (h *CharsetHandler) accept(s *Session, enc encoding.Encoding) {
	h.enc = enc
	if s.Enabled(TransmitBinary, Them) && s.Enabled(TransmitBinary, Us) {
		updateEncoding(s, enc)
	}
}

func (h *CharsetHandler) selectEncoding(names [][]byte) ([]byte, encoding.Encoding) {
	for _, name := range names {
		if enc := h.getEncoding(name); enc != nil {
			return name, enc
		}
	}
	return nil, nil
}

func (*CharsetHandler) getEncoding(name []byte) encoding.Encoding {
	switch s := string(name); s {
	case "US-ASCII":
		return ASCII
	default:
		enc, _ := ianaindex.IANA.Encoding(s)
		return enc
	}
}

// textStream applies an encoding transform across chunk boundaries,
// holding back an incomplete multi-byte sequence until the next chunk.
type textStream struct {
	t       transform.Transformer
	pending []byte
}

func newDecoder(enc encoding.Encoding) *textStream {
	if enc == nil || enc == encoding.Nop {
		return nil
	}
	return &textStream{t: enc.NewDecoder()}
}

func newEncoder(enc encoding.Encoding) *textStream {
	if enc == nil || enc == encoding.Nop {
		return nil
	}
	return &textStream{t: encoding.ReplaceUnsupported(enc.NewEncoder())}
}

func (x *textStream) apply(p []byte) []byte {
	if x == nil {
		return p
	}
	src := append(x.pending, p...)
	x.pending = nil
	dst := make([]byte, 0, len(src))
	buf := make([]byte, 2*len(src)+8)
	for len(src) > 0 {
		nDst, nSrc, err := x.t.Transform(buf, src, false)
		dst = append(dst, buf[:nDst]...)
		src = src[nSrc:]
		switch {
		case err == nil:
			if nSrc == 0 {
				return dst
			}
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				buf = make([]byte, 2*len(buf))
			}
		case errors.Is(err, transform.ErrShortSrc):
			x.pending = bytes.Clone(src)
			return dst
		default:
			if nSrc == 0 {
				src = src[1:]
			}
		}
	}
	return dst
}
