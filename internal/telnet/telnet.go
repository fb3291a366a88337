package telnet

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/stesla/telwire/internal/event"
	"golang.org/x/text/encoding"
)

// Conn is a net.Conn that speaks Telnet. Read returns application data
// only; everything else the peer sends is dispatched as events on the
// conn's Dispatcher. Write sends data as NVT text.
type Conn interface {
	net.Conn
	event.Dispatcher
	Encodable

	// Context carries the conn's logger and is passed to listeners.
	Context() context.Context
	// Register installs a handler for opt. Call it before the conn is
	// shared between goroutines.
	Register(opt byte, h Handler) OptionState
	// Do sends an intent through the session and flushes the output.
	Do(i Intent) error
	// WithSession runs fn with exclusive use of the session, then sends
	// its output and dispatches its events.
	WithSession(fn func(*Session) error) error
}

type conn struct {
	net.Conn
	event.Dispatcher

	ctx     context.Context
	mu      sync.Mutex
	session *Session

	binary bool
	cr     bool
	eof    bool
	rbuf   []byte

	decoder *textStream
	encoder *textStream
}

func Dial(address string, cfg Config) (Conn, error) {
	tcpconn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	return wrap(tcpconn, cfg), nil
}

func Wrap(c net.Conn) Conn {
	return wrap(c, Config{})
}

func WrapConfig(c net.Conn, cfg Config) Conn {
	return wrap(c, cfg)
}

func wrap(c net.Conn, cfg Config) *conn {
	return &conn{
		Conn:       c,
		Dispatcher: event.NewDispatcher(),
		ctx:        cfg.Logger.WithContext(context.Background()),
		session:    NewSession(cfg),
	}
}

func (c *conn) Context() context.Context { return c.ctx }

func (c *conn) Register(opt byte, h Handler) OptionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Register(opt, h)
}

func (c *conn) Do(i Intent) error {
	return c.WithSession(func(s *Session) error { return s.Do(i) })
}

func (c *conn) WithSession(fn func(*Session) error) error {
	return c.exchange(func(s *Session) ([]event.Event, []byte, error) {
		err := fn(s)
		return s.Events(), s.Flush(), err
	})
}

func (c *conn) SetReadEncoding(enc encoding.Encoding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decoder = newDecoder(enc)
}

func (c *conn) SetWriteEncoding(enc encoding.Encoding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encoder = newEncoder(enc)
}

// Read returns the data decoded from one read of the underlying conn, so
// it can return 0 bytes when a chunk held only Telnet commands. io.EOF is
// held back until the data before it has been read.
func (c *conn) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(c.rbuf) == 0 {
		if c.eof {
			return 0, io.EOF
		}
		buf := make([]byte, len(p))
		nr, rerr := c.Conn.Read(buf)
		if nr > 0 {
			err = c.receive(buf[:nr])
		}
		if rerr == io.EOF {
			c.eof = true
		} else if rerr != nil && err == nil {
			err = rerr
		}
	}
	n = copy(p, c.rbuf)
	c.rbuf = c.rbuf[n:]
	return
}

// Write sends p as data. Without TRANSMIT-BINARY, line endings are
// translated to CR LF and bare CR to CR NUL, and IAC GA follows the data
// unless SUPPRESS-GO-AHEAD is on.
func (c *conn) Write(p []byte) (n int, err error) {
	err = c.exchange(func(s *Session) ([]event.Event, []byte, error) {
		text := c.encoder.apply(p)
		if !s.Enabled(TransmitBinary, Us) {
			text = translateNewlines(text)
		}
		err := s.Do(Data(text))
		if err == nil && !s.Enabled(SuppressGoAhead, Us) {
			err = s.Do(Command(GA))
		}
		return s.Events(), s.Flush(), err
	})
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	serr := c.session.Close()
	c.mu.Unlock()
	if err := c.Conn.Close(); err != nil {
		return err
	}
	return serr
}

func (c *conn) receive(p []byte) error {
	return c.exchange(func(s *Session) ([]event.Event, []byte, error) {
		return s.Receive(p)
	})
}

// exchange runs fn under the lock, writes its output in the order the
// session produced it, and dispatches its events once the lock is released
// so listeners can call back into the conn.
func (c *conn) exchange(fn func(*Session) ([]event.Event, []byte, error)) error {
	c.mu.Lock()
	events, out, err := fn(c.session)
	if len(out) > 0 {
		if _, werr := c.Conn.Write(out); werr != nil && err == nil {
			err = werr
		}
	}
	for _, ev := range events {
		c.handle(ev)
	}
	c.mu.Unlock()

	for _, ev := range events {
		if derr := c.Dispatch(c.ctx, ev); derr != nil && err == nil {
			err = derr
		}
	}
	return err
}

func (c *conn) handle(ev event.Event) {
	switch t := ev.Data.(type) {
	case []byte:
		if ev.Name == EventData {
			c.appendText(t)
		}
	case OptionData:
		if t.Opt == TransmitBinary && t.Side == Them {
			c.binary = t.Enabled
			c.cr = false
		}
	case EncodingData:
		if t.Read != nil {
			c.decoder = newDecoder(t.Read)
		}
		if t.Write != nil {
			c.encoder = newEncoder(t.Write)
		}
	}
}

func (c *conn) appendText(p []byte) {
	if !c.binary {
		p = c.translateCR(p)
	}
	c.rbuf = append(c.rbuf, c.decoder.apply(p)...)
}

// translateCR undoes NVT line endings: CR NUL is CR and CR LF is LF. Any
// other byte after CR is dropped along with it.
func (c *conn) translateCR(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for _, b := range p {
		if c.cr {
			c.cr = false
			switch b {
			case '\x00':
				out = append(out, '\r')
			case '\n':
				out = append(out, '\n')
			}
			continue
		}
		if b == '\r' {
			c.cr = true
		} else {
			out = append(out, b)
		}
	}
	return out
}

func translateNewlines(p []byte) []byte {
	buf := make([]byte, 0, 2*len(p))
	for _, b := range p {
		switch b {
		case '\n':
			buf = append(buf, '\r', '\n')
		case '\r':
			buf = append(buf, '\r', '\x00')
		default:
			buf = append(buf, b)
		}
	}
	return buf
}
