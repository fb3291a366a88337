package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stesla/telwire/internal/event"
	"github.com/stesla/telwire/internal/telnet"
	"github.com/stesla/telwire/internal/telnet/mccp"
	"github.com/stesla/telwire/internal/telnet/msdp"
	"github.com/stesla/telwire/internal/telnet/naws"
	"github.com/stesla/telwire/internal/telnet/newenviron"
	"github.com/stesla/telwire/internal/telnet/ttype"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

type session struct {
	conn    telnet.Conn
	logger  zerolog.Logger
	options Options
	metrics metricsListener

	charset        telnet.CharsetHandler
	transmitBinary telnet.TransmitBinaryHandler
}

func newSession(conn telnet.Conn, logger zerolog.Logger, role string, options Options) *session {
	s := &session{
		conn:    conn,
		logger:  logger,
		options: options,
		metrics: newMetricsListener(role),
	}
	s.transmitBinary.Charset = &s.charset
	s.conn.Listen(event.Any, LogHandler{Logger: s.logger})
	s.conn.Listen(event.Any, s.metrics)

	if options.SuppressGoAhead {
		s.conn.Register(telnet.SuppressGoAhead, nil).Allow(true, true)
	}
	if options.EndOfRecord {
		s.conn.Register(telnet.EndOfRecord, nil).Allow(true, true)
	}
	if options.TransmitBinary {
		s.conn.Register(telnet.TransmitBinary, &s.transmitBinary).Allow(true, true)
	}
	if options.Charset {
		s.conn.Register(telnet.Charset, &s.charset).Allow(true, true)
	}
	return s
}

func (s *session) Close() error {
	return s.conn.Close()
}

func (s *session) Read(p []byte) (n int, err error) {
	return s.conn.Read(p)
}

func (s *session) Write(p []byte) (n int, err error) {
	return s.conn.Write(p)
}

// negotiateOptions asks for both sides of the options every peer gets,
// plus extra.
func (s *session) negotiateOptions(extra ...telnet.Request) {
	var requests []telnet.Request
	for _, opt := range []struct {
		opt     byte
		enabled bool
	}{
		{telnet.SuppressGoAhead, s.options.SuppressGoAhead},
		{telnet.EndOfRecord, s.options.EndOfRecord},
		{telnet.TransmitBinary, s.options.TransmitBinary},
		{telnet.Charset, s.options.Charset},
	} {
		if opt.enabled {
			requests = append(requests,
				telnet.Request{Opt: opt.opt, Side: telnet.Us, Enable: true},
				telnet.Request{Opt: opt.opt, Side: telnet.Them, Enable: true})
		}
	}
	requests = append(requests, extra...)

	err := s.conn.WithSession(func(ts *telnet.Session) error {
		for _, r := range requests {
			if err := ts.Do(r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("error negotiating options")
	}
}

type downstreamSession struct {
	*session
	*bufio.Scanner

	config        Config
	root          zerolog.Logger
	windowSize    naws.WindowSize
	terminalTypes []string
	environ       []newenviron.Variable
	upstream      *upstreamSession
}

func newDownstreamSession(conn telnet.Conn, root zerolog.Logger, cfg Config) *downstreamSession {
	logger := root.With().Str("client", conn.RemoteAddr().String()).Logger()
	s := &downstreamSession{
		session: newSession(conn, logger, "client", cfg.Options),
		Scanner: bufio.NewScanner(conn),
		config:  cfg,
		root:    root,
	}
	s.charset.IsServer = true
	s.charset.Offer = []encoding.Encoding{unicode.UTF8}

	o := cfg.Options
	if o.Echo {
		conn.Register(telnet.Echo, nil).AllowUs(true)
	}
	if o.NAWS {
		conn.Register(telnet.NAWS, naws.Receiver{}).AllowThem(true)
		conn.ListenFunc(naws.EventWindowSize, s.handleWindowSize)
	}
	if o.TerminalType {
		conn.Register(telnet.TerminalType, &ttype.Requester{Cycle: true}).AllowThem(true)
		conn.ListenFunc(ttype.EventTerminalTypes, s.handleTerminalTypes)
	}
	if o.NewEnviron {
		conn.Register(telnet.NewEnviron, newenviron.Requester{}).AllowThem(true)
		conn.ListenFunc(newenviron.EventEnvironment, s.handleEnviron)
		conn.ListenFunc(newenviron.EventUpdate, s.handleEnviron)
	}
	if o.MCCP {
		conn.Register(telnet.MCCP2, &mccp.Server{}).AllowUs(true)
	}
	if o.MSDP {
		conn.Register(telnet.MSDP, msdp.Handler{}).AllowUs(true)
	}
	return s
}

func (s *downstreamSession) negotiateOptions() {
	var extra []telnet.Request
	o := s.options
	if o.NAWS {
		extra = append(extra, telnet.Request{Opt: telnet.NAWS, Side: telnet.Them, Enable: true})
	}
	if o.TerminalType {
		extra = append(extra, telnet.Request{Opt: telnet.TerminalType, Side: telnet.Them, Enable: true})
	}
	if o.NewEnviron {
		extra = append(extra, telnet.Request{Opt: telnet.NewEnviron, Side: telnet.Them, Enable: true})
	}
	if o.MCCP {
		extra = append(extra, telnet.Request{Opt: telnet.MCCP2, Side: telnet.Us, Enable: true})
	}
	if o.MSDP {
		extra = append(extra, telnet.Request{Opt: telnet.MSDP, Side: telnet.Us, Enable: true})
	}
	s.session.negotiateOptions(extra...)
}

// The handlers below run on the goroutine reading the downstream conn,
// which is also the goroutine that sets s.upstream.

func (s *downstreamSession) handleWindowSize(_ context.Context, ev event.Event) error {
	s.windowSize = ev.Data.(naws.WindowSize)
	if s.upstream != nil {
		s.upstream.updateWindowSize(s.windowSize)
	}
	return nil
}

func (s *downstreamSession) handleTerminalTypes(_ context.Context, ev event.Event) error {
	s.terminalTypes = ev.Data.([]string)
	return nil
}

// handleEnviron keeps the client's variables in arrival order so they can
// be replayed to a server connected later.
func (s *downstreamSession) handleEnviron(_ context.Context, ev event.Event) error {
	vars := ev.Data.([]newenviron.Variable)
	s.environ = append(s.environ, vars...)
	if s.upstream != nil {
		s.upstream.updateEnviron(vars)
	}
	return nil
}

func (s *downstreamSession) authenticate() bool {
	if s.config.PasswordHash == "" {
		return true
	}
	if !s.Scan() {
		return false
	}
	password, ok := strings.CutPrefix(s.Text(), "login ")
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.config.PasswordHash), []byte(password)) == nil
}

func (s *downstreamSession) findUpstream() (*upstreamSession, error) {
	for s.Scan() {
		switch command, rest, _ := strings.Cut(s.Text(), " "); command {
		case "connect":
			addr := strings.TrimSpace(rest)
			fmt.Fprintf(s, "connecting to %v...\n", addr)
			upstream := &upstreamSession{}
			if err := upstream.Initialize(addr, s); err != nil {
				fmt.Fprintf(s, "error connecting (%v): %v\n", addr, err)
				continue
			}
			return upstream, nil
		case "quit":
			return nil, io.EOF
		default:
			fmt.Fprintln(s, "unrecognized command:", s.Text())
		}
	}
	// the only case where we ever get here is if we fail to scan, which will
	// only happen if the client disconnected
	return nil, io.EOF
}

func (s *downstreamSession) runForever() {
	s.logger.Debug().Msg("connected")
	defer s.logger.Debug().Msg("disconnected")
	defer s.metrics.connected()()

	s.negotiateOptions()
	if !s.authenticate() {
		return
	}
	upstream, err := s.findUpstream()
	if err != nil {
		return
	}
	s.upstream = upstream
	defer upstream.conn.Close()
	io.Copy(upstream, s)
}

type upstreamSession struct {
	*session
	naws    naws.Reporter
	environ newenviron.Responder

	mux        sync.Mutex
	downstream []io.WriteCloser
}

func (s *upstreamSession) Initialize(addr string, d *downstreamSession) error {
	logger := d.root.With().Str("server", addr).Logger()
	conn, err := telnet.Dial(addr, telnet.Config{
		Logger:            logger,
		MaxSubnegotiation: d.config.MaxSubnegotiation,
	})
	if err != nil {
		return err
	}
	s.session = newSession(conn, logger, "server", d.config.Options)

	o := d.config.Options
	if o.Echo {
		conn.Register(telnet.Echo, nil).AllowThem(true)
	}
	if o.NAWS {
		conn.Register(telnet.NAWS, &s.naws).AllowUs(true)
		s.updateWindowSize(d.windowSize)
	}
	if o.TerminalType {
		types := d.terminalTypes
		if len(types) == 0 {
			types = d.config.TerminalTypes
		}
		conn.Register(telnet.TerminalType, &ttype.Responder{Types: types}).AllowUs(true)
	}
	if o.NewEnviron {
		conn.Register(telnet.NewEnviron, &s.environ).AllowUs(true)
		s.updateEnviron(d.environ)
	}
	if o.MCCP {
		conn.Register(telnet.MCCP2, mccp.Client{}).AllowThem(true)
	}
	if o.MSDP {
		conn.Register(telnet.MSDP, msdp.Handler{}).AllowThem(true)
		conn.ListenFunc(msdp.EventVariables, func(_ context.Context, ev event.Event) error {
			return d.forwardVariables(ev.Data.([]msdp.Variable))
		})
	}
	s.AddDownstream(d)
	go s.runForever()
	return nil
}

func (s *upstreamSession) updateWindowSize(ws naws.WindowSize) {
	err := s.conn.WithSession(func(ts *telnet.Session) error {
		return s.naws.Update(ts, ws)
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("error reporting window size")
	}
}

func (s *upstreamSession) updateEnviron(vars []newenviron.Variable) {
	err := s.conn.WithSession(func(ts *telnet.Session) error {
		for _, v := range vars {
			var err error
			if v.Defined {
				err = s.environ.Set(ts, v.Type, v.Name, v.Value)
			} else {
				err = s.environ.Delete(ts, v.Type, v.Name)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("error forwarding environment")
	}
}

// forwardVariables relays MSDP from the server to the client when the
// client has agreed to MSDP.
func (s *downstreamSession) forwardVariables(vars []msdp.Variable) error {
	err := s.conn.Do(msdp.Message(vars...))
	if errors.Is(err, telnet.ErrOptionInactive) {
		s.logger.Debug().Msg("dropping msdp variables")
		return nil
	}
	return err
}

func (s *upstreamSession) AddDownstream(w io.WriteCloser) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.downstream = append(s.downstream, w)
}

func (s *upstreamSession) Close() error {
	s.conn.Close()
	s.mux.Lock()
	defer s.mux.Unlock()
	for _, w := range s.downstream {
		w.Close()
	}
	return nil
}

const proxyBufSize = 4096

func (s *upstreamSession) runForever() {
	defer s.Close()
	defer s.metrics.connected()()
	s.logger.Debug().Msg("connected")
	s.negotiateOptions()
	for {
		var buf = make([]byte, proxyBufSize)
		n, err := s.Read(buf)
		if n > 0 {
			s.sendDownstream(buf[:n])
		}
		if err != nil {
			break
		}
	}
	s.logger.Debug().Msg("disconnected")
}

func (s *upstreamSession) sendDownstream(buf []byte) {
	s.mux.Lock()
	defer s.mux.Unlock()
	for _, w := range s.downstream {
		w.Write(buf)
	}
}
