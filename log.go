package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/stesla/telwire/internal/event"
	"github.com/stesla/telwire/internal/telnet"
	"github.com/stesla/telwire/internal/telnet/msdp"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// newLogger writes JSON unless out is a terminal.
func newLogger(out *os.File, level zerolog.Level) zerolog.Logger {
	var w io.Writer = out
	if isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()) {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

type LogHandler struct {
	zerolog.Logger
}

func (h LogHandler) Listen(_ context.Context, ev event.Event) error {
	log := h.Trace().Str("event", string(ev.Name))
	switch t := ev.Data.(type) {
	case []byte:
		log.Bytes("data", t)
	case telnet.OptionData:
		log.Str("option", telnet.OptionName(t.Opt)).
			Stringer("side", t.Side).
			Bool("enabled", t.Enabled).
			Bool("refused", t.Refused)
	case telnet.Subnegotiation:
		log.Str("option", telnet.OptionName(t.Opt)).Bytes("data", t.Data)
	case telnet.Diagnostic:
		log.Str("option", telnet.OptionName(t.Opt)).Err(t.Err)
	case telnet.CharsetData:
		log.Str("encoding", encodingName(t.Encoding))
	case []msdp.Variable:
		log.Str("variables", msdp.Format(t))
	default:
		log.Any("data", t)
	}
	log.Send()
	return nil
}

func encodingName(enc encoding.Encoding) string {
	name, err := ianaindex.IANA.Name(enc)
	if err != nil {
		return "unknown"
	}
	return name
}
