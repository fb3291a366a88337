package telnet

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stesla/telwire/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	io.Reader
	io.Writer
}

func (m *mockConn) Close() error                       { return nil }
func (m *mockConn) LocalAddr() net.Addr                { return nil }
func (m *mockConn) RemoteAddr() net.Addr               { return nil }
func (m *mockConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }

const bufsize = 16

func TestReadIntoEmptySlice(t *testing.T) {
	telnet := Wrap(nil)
	buf := []byte{}
	n, err := telnet.Read(buf)
	require.Equal(t, 0, n)
	require.NoError(t, err)
}

func TestRead(t *testing.T) {
	var tests = []struct {
		vals     [][]byte
		expected []byte
	}{
		{[][]byte{[]byte("foo")}, []byte("foo")},
		{[][]byte{{'h', IAC}, {NOP, 'i'}}, []byte("hi")},
		{[][]byte{{'h', IAC}, {IAC, 'i'}}, []byte{'h', IAC, 'i'}},
		{[][]byte{[]byte("foo\r"), []byte("\nbar")}, []byte("foo\nbar")},
		{[][]byte{[]byte("foo\r"), []byte("\x00bar")}, []byte("foo\rbar")},
		{[][]byte{{'h', IAC, SB}, {Echo, IAC}, {SE, 'i'}}, []byte("hi")},
		{
			func() (result [][]byte) {
				for c := range byte(127) {
					result = append(result, []byte{'\r', c})
				}
				return
			}(),
			[]byte("\r\n"),
		},
	}
	for _, test := range tests {
		tcp := &mockConn{Writer: io.Discard}
		telnet := Wrap(tcp)
		buf := make([]byte, bufsize)
		n := 0
		for _, val := range test.vals {
			tcp.Reader = bytes.NewReader(val)
			nv, err := telnet.Read(buf[n:])
			require.NoError(t, err)
			n += nv
		}
		require.Equal(t, test.expected, buf[:n])
	}
}

type boomReader struct {
	n   int
	err error
}

func (r boomReader) Read(b []byte) (n int, err error) {
	for i := 0; i < r.n && i < len(b); i++ {
		b[i] = 'A' + byte(i)
	}
	return r.n, r.err
}

func TestReadWithUnderlyingError(t *testing.T) {
	tcp := &mockConn{Reader: boomReader{3, errors.New("boom")}}
	telnet := Wrap(tcp)
	buf := make([]byte, bufsize)
	n, err := telnet.Read(buf)
	require.EqualError(t, err, "boom")
	require.Equal(t, 3, n)
	require.Equal(t, "ABC", string(buf[:n]))
}

func TestEOFWaitsForNextRead(t *testing.T) {
	tcp := &mockConn{Reader: boomReader{3, io.EOF}}
	telnet := Wrap(tcp)
	buf := make([]byte, bufsize)
	n, err := telnet.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, "ABC", string(buf[:n]))
	n, err = telnet.Read(buf[n:])
	require.Equal(t, io.EOF, err)
	require.Equal(t, 0, n)
}

func TestReadLeavesRemainder(t *testing.T) {
	tcp := &mockConn{Reader: bytes.NewReader([]byte("abcdef"))}
	telnet := Wrap(tcp)
	buf := make([]byte, 4)
	n, err := telnet.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "abcd", string(buf[:n]))
	n, err = telnet.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ef", string(buf[:n]))
}

func TestWrite(t *testing.T) {
	var tests = []struct {
		val, expected []byte
	}{
		{[]byte("foo"), []byte("foo")},
		{[]byte{'h', IAC, 'i'}, []byte{'h', IAC, IAC, 'i'}},
		{[]byte("foo\nbar"), []byte("foo\r\nbar")},
		{[]byte("foo\rbar"), []byte("foo\r\x00bar")},
	}
	for _, test := range tests {
		var buf bytes.Buffer
		tcp := &mockConn{Writer: &buf}
		telnet := Wrap(tcp)
		n, err := telnet.Write(test.val)
		require.NoError(t, err)
		require.Equal(t, len(test.val), n)
		require.Equal(t, append(test.expected, IAC, GA), buf.Bytes())
	}
}

func TestReadDispatchesEvents(t *testing.T) {
	var tests = []struct {
		val, expected []byte
		event         event.Event
	}{
		{[]byte{'a', IAC, GA, 'a'}, []byte("aa"), event.Event{Name: EventCommand, Data: Command(GA)}},
		{
			[]byte{'b', IAC, DO, Echo, 'b'}, []byte("bb"),
			event.Event{Name: EventOption, Data: OptionData{Opt: Echo, Side: Us, Enabled: true}},
		},
		{
			[]byte{'c', IAC, WILL, Echo, 'c'}, []byte("cc"),
			event.Event{Name: EventOption, Data: OptionData{Opt: Echo, Side: Them, Enabled: true}},
		},
		{
			[]byte{'d', IAC, SB, Echo, 'f', 'o', 'o', IAC, SE, 'd'}, []byte("dd"),
			event.Event{Name: EventSubnegotiation, Data: Subnegotiation{Opt: Echo, Data: []byte("foo")}},
		},
	}
	for _, test := range tests {
		var captured []event.Event
		tcp := &mockConn{Reader: bytes.NewReader(test.val), Writer: io.Discard}
		telnet := Wrap(tcp)
		telnet.Register(Echo, nil).Allow(true, true)
		if test.event.Name == EventSubnegotiation {
			require.NoError(t, telnet.WithSession(func(s *Session) error {
				_, _, err := s.Receive([]byte{IAC, DO, Echo})
				return err
			}))
		}
		telnet.ListenFunc(test.event.Name, func(_ context.Context, ev event.Event) error {
			captured = append(captured, ev)
			return nil
		})
		buf := make([]byte, bufsize)
		n, err := telnet.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, test.expected, buf[:n])
		assert.Equal(t, []event.Event{test.event}, captured)
	}
}

func TestReadRepliesToNegotiation(t *testing.T) {
	var output bytes.Buffer
	tcp := &mockConn{Reader: bytes.NewReader([]byte{IAC, DO, 200}), Writer: &output}
	telnet := Wrap(tcp)
	n, err := telnet.Read(make([]byte, bufsize))
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, []byte{IAC, WONT, 200}, output.Bytes())
}

func TestListenerError(t *testing.T) {
	tcp := &mockConn{Reader: bytes.NewReader([]byte{'x', IAC, NOP}), Writer: io.Discard}
	telnet := Wrap(tcp)
	telnet.ListenFunc(EventCommand, func(context.Context, event.Event) error {
		return errors.New("listener failed")
	})
	buf := make([]byte, bufsize)
	n, err := telnet.Read(buf)
	require.EqualError(t, err, "listener failed")
	require.Equal(t, "x", string(buf[:n]))
}

func TestSuppressGoAhead(t *testing.T) {
	var output bytes.Buffer
	tcp := &mockConn{Reader: bytes.NewReader([]byte{IAC, DO, SuppressGoAhead}), Writer: &output}
	telnet := Wrap(tcp)
	telnet.Register(SuppressGoAhead, nil).AllowUs(true)
	_, err := telnet.Read(make([]byte, bufsize))
	require.NoError(t, err)
	require.Equal(t, []byte{IAC, WILL, SuppressGoAhead}, output.Bytes())

	output.Reset()
	_, err = telnet.Write([]byte("xyzzy"))
	require.NoError(t, err)
	require.Equal(t, []byte("xyzzy"), output.Bytes())
}

func TestDo(t *testing.T) {
	var output bytes.Buffer
	tcp := &mockConn{Writer: &output}
	telnet := Wrap(tcp)
	telnet.Register(NAWS, nil)
	require.NoError(t, telnet.Do(Request{Opt: NAWS, Side: Them, Enable: true}))
	require.Equal(t, []byte{IAC, DO, NAWS}, output.Bytes())
	require.ErrorIs(t, telnet.Do(Request{Opt: Linemode, Side: Them, Enable: true}), ErrUnregistered)
}
