package telnet

import (
	"bytes"
	"io"
	"testing"

	"github.com/stesla/telwire/internal/event"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

func subnegotiation(opt byte, data ...byte) []byte {
	return Encode(Subnegotiation{Opt: opt, Data: data})
}

func TestTransmitBinary(t *testing.T) {
	var output bytes.Buffer
	tcp := &mockConn{Writer: io.Discard}
	telnet := Wrap(tcp)
	telnet.Register(TransmitBinary, &TransmitBinaryHandler{}).Allow(true, true)

	tcp.Reader = bytes.NewReader([]byte{IAC, DO, TransmitBinary, IAC, WILL, TransmitBinary, 128, 129, 255, 255, '\r', 'x'})
	buf := make([]byte, bufsize)
	n, err := telnet.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{128, 129, 255, '\r', 'x'}, buf[:n])

	tcp.Writer = &output
	n, err = telnet.Write([]byte{IAC, 254, '\n'})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte{IAC, IAC, 254, '\n', IAC, GA}, output.Bytes())

	tcp.Writer = io.Discard
	tcp.Reader = bytes.NewReader([]byte{IAC, DONT, TransmitBinary, IAC, WONT, TransmitBinary, 'a', 128, 'b'})
	n, err = telnet.Read(buf)
	require.NoError(t, err)
	require.NotContains(t, string(buf[:n]), "\x80")
	require.Equal(t, byte('a'), buf[0])
}

func TestCharsetServerRequests(t *testing.T) {
	h := &CharsetHandler{IsServer: true, Offer: []encoding.Encoding{unicode.UTF8}}
	s := NewSession(Config{})
	s.Register(Charset, h).Allow(true, true)

	_, out, err := s.Receive([]byte{IAC, DO, Charset})
	require.NoError(t, err)
	expected := []byte{IAC, WILL, Charset}
	expected = append(expected, subnegotiation(Charset, append([]byte{CharsetRequest}, ";UTF-8"...)...)...)
	require.Equal(t, expected, out)

	events, _, err := s.Receive(subnegotiation(Charset, append([]byte{CharsetAccepted}, "UTF-8"...)...))
	require.NoError(t, err)
	require.Equal(t, []event.Event{{Name: EventCharsetAccepted, Data: CharsetData{Encoding: unicode.UTF8}}}, events)
	require.Equal(t, unicode.UTF8, h.Encoding())
}

func TestCharsetClientAccepts(t *testing.T) {
	var tests = []struct {
		name     string
		request  string
		accepted string
	}{
		{"first known", ";UTF-8;US-ASCII", "UTF-8"},
		{"skips unknown", ";X-UNKNOWN;US-ASCII", "US-ASCII"},
		{"other separator", " UTF-8", "UTF-8"},
		{"ttable version", "[TTABLE]\x01;UTF-8", "UTF-8"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := NewSession(Config{})
			s.Register(Charset, &CharsetHandler{}).Allow(true, true)
			_, _, err := s.Receive([]byte{IAC, WILL, Charset})
			require.NoError(t, err)

			events, out, err := s.Receive(subnegotiation(Charset, append([]byte{CharsetRequest}, test.request...)...))
			require.NoError(t, err)
			require.Equal(t, subnegotiation(Charset, append([]byte{CharsetAccepted}, test.accepted...)...), out)
			require.Len(t, eventsNamed(events, EventCharsetAccepted), 1)
		})
	}
}

func TestCharsetRejects(t *testing.T) {
	s := NewSession(Config{})
	s.Register(Charset, &CharsetHandler{}).Allow(true, true)
	_, _, err := s.Receive([]byte{IAC, WILL, Charset})
	require.NoError(t, err)

	events, out, err := s.Receive(subnegotiation(Charset, append([]byte{CharsetRequest}, ";X-NOPE"...)...))
	require.NoError(t, err)
	require.Equal(t, subnegotiation(Charset, CharsetRejected), out)
	require.Equal(t, []event.Event{{Name: EventCharsetRejected}}, events)

	_, out, err = s.Receive(subnegotiation(Charset, CharsetTTableIs, 1))
	require.NoError(t, err)
	require.Equal(t, subnegotiation(Charset, CharsetTTableRejected), out)
}

func TestCharsetServerWinsCollision(t *testing.T) {
	h := &CharsetHandler{IsServer: true, Offer: []encoding.Encoding{unicode.UTF8}}
	s := NewSession(Config{})
	s.Register(Charset, h).Allow(true, true)
	_, _, err := s.Receive([]byte{IAC, DO, Charset})
	require.NoError(t, err)

	_, out, err := s.Receive(subnegotiation(Charset, append([]byte{CharsetRequest}, ";UTF-8"...)...))
	require.NoError(t, err)
	require.Equal(t, subnegotiation(Charset, CharsetRejected), out)
}

func TestCharsetAppliesInBinaryMode(t *testing.T) {
	ch := &CharsetHandler{IsServer: true, Offer: []encoding.Encoding{unicode.UTF8}}
	s := NewSession(Config{})
	s.Register(Charset, ch).Allow(true, true)
	s.Register(TransmitBinary, &TransmitBinaryHandler{Charset: ch}).Allow(true, true)

	_, _, err := s.Receive([]byte{IAC, DO, Charset})
	require.NoError(t, err)
	_, _, err = s.Receive(subnegotiation(Charset, append([]byte{CharsetAccepted}, "UTF-8"...)...))
	require.NoError(t, err)

	events, _, err := s.Receive([]byte{IAC, DO, TransmitBinary})
	require.NoError(t, err)
	require.Equal(t, []event.Event{
		{Name: EventOption, Data: OptionData{Opt: TransmitBinary, Side: Us, Enabled: true}},
		{Name: EventEncoding, Data: EncodingData{Read: ASCII, Write: encoding.Nop}},
	}, events)

	events, _, err = s.Receive([]byte{IAC, WILL, TransmitBinary})
	require.NoError(t, err)
	encodings := eventsNamed(events, EventEncoding)
	require.Len(t, encodings, 1)
	require.Equal(t, EncodingData{Read: unicode.UTF8, Write: unicode.UTF8}, encodings[0].Data)
}

func TestTextStreamHoldsPartialRune(t *testing.T) {
	x := newDecoder(unicode.UTF8)
	snowman := []byte("☃")
	require.Empty(t, x.apply(snowman[:1]))
	require.Empty(t, x.apply(snowman[1:2]))
	require.Equal(t, snowman, x.apply(snowman[2:]))
	require.Nil(t, newDecoder(encoding.Nop))
}

func TestSetEncoding(t *testing.T) {
	var w bytes.Buffer
	conn := Wrap(&mockConn{Reader: bytes.NewReader([]byte{'c', 'a', 'f', 0xe9}), Writer: &w})
	SetEncoding(conn, charmap.ISO8859_1)

	buf := make([]byte, bufsize)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "café", string(buf[:n]))

	_, err = conn.Write([]byte("né"))
	require.NoError(t, err)
	require.Equal(t, []byte{'n', 0xe9, IAC, GA}, w.Bytes())
}
