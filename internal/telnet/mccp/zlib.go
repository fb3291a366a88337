package mccp

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/stesla/telwire/internal/telnet"
)

type compressor struct {
	buf bytes.Buffer
	w   *zlib.Writer
}

// NewCompressor returns a filter that deflates each chunk and sync-flushes
// it, so every chunk can be inflated as soon as it arrives.
func NewCompressor(level int) (telnet.Filter, error) {
	c := &compressor{}
	w, err := zlib.NewWriterLevel(&c.buf, level)
	if err != nil {
		return nil, err
	}
	c.w = w
	return c, nil
}

func (c *compressor) Transform(p []byte) ([]byte, error) {
	if _, err := c.w.Write(p); err != nil {
		return nil, err
	}
	if err := c.w.Flush(); err != nil {
		return nil, err
	}
	out := bytes.Clone(c.buf.Bytes())
	c.buf.Reset()
	return out, nil
}

func (c *compressor) Close() error {
	return c.w.Close()
}

// decompressor inflates a zlib stream that arrives in arbitrary pieces.
// The zlib reader pulls its input, so it runs on its own goroutine and
// blocks on feed whenever it has consumed everything handed over so far.
// Transform hands over one chunk and waits until the reader is blocked
// again, so the two sides never run at the same time.
//
// Once the stream ends, the bytes after it and everything received later
// are passed through unchanged.
type decompressor struct {
	feed  feed
	in    chan []byte
	idle  chan struct{}
	out   bytes.Buffer
	err   error
	ended bool
	rest  []byte

	started bool
	done    bool
}

// NewDecompressor returns a filter that inflates the zlib stream a server
// starts after IAC SB MCCP2 IAC SE. The first Transform starts a reader
// goroutine that lives until the stream ends or fails, so a decompressor
// abandoned mid-stream must be closed. Session.Close does that for an
// installed filter.
func NewDecompressor() telnet.Filter {
	in := make(chan []byte)
	idle := make(chan struct{})
	return &decompressor{
		feed: feed{in: in, idle: idle},
		in:   in,
		idle: idle,
	}
}

func (d *decompressor) Transform(p []byte) ([]byte, error) {
	if d.done {
		return d.finished(p)
	}
	if !d.started {
		d.started = true
		go d.run()
		if _, ok := <-d.idle; !ok {
			d.done = true
			return d.finished(p)
		}
	}

	d.in <- bytes.Clone(p)
	if _, ok := <-d.idle; !ok {
		d.done = true
	}
	out := bytes.Clone(d.out.Bytes())
	d.out.Reset()
	if d.done {
		if d.err != nil {
			return out, d.err
		}
		out = append(out, d.rest...)
		d.rest = nil
	}
	return out, nil
}

func (d *decompressor) finished(p []byte) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	return p, nil
}

// Ended reports whether the compressed stream has finished cleanly.
func (d *decompressor) Ended() bool { return d.done && d.ended }

func (d *decompressor) Close() error {
	if d.started && !d.done {
		close(d.in)
		for range d.idle {
		}
		d.done = true
	}
	return nil
}

func (d *decompressor) run() {
	defer close(d.idle)
	zr, err := zlib.NewReader(&d.feed)
	if err != nil {
		d.err = err
		return
	}
	buf := make([]byte, 4096)
	for {
		n, err := zr.Read(buf)
		d.out.Write(buf[:n])
		if err == io.EOF {
			d.ended = true
			d.rest = d.feed.buf
			return
		}
		if err != nil {
			d.err = err
			return
		}
	}
}

// feed is the zlib reader's input. It implements io.ByteReader so the
// inflater never reads past the end of the stream.
type feed struct {
	in   <-chan []byte
	idle chan<- struct{}
	buf  []byte
	eof  bool
}

func (f *feed) fill() bool {
	for len(f.buf) == 0 {
		if f.eof {
			return false
		}
		f.idle <- struct{}{}
		chunk, ok := <-f.in
		if !ok {
			f.eof = true
			return false
		}
		f.buf = chunk
	}
	return true
}

func (f *feed) ReadByte() (byte, error) {
	if !f.fill() {
		return 0, io.EOF
	}
	b := f.buf[0]
	f.buf = f.buf[1:]
	return b, nil
}

func (f *feed) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !f.fill() {
		return 0, io.EOF
	}
	n := copy(p, f.buf)
	f.buf = f.buf[n:]
	return n, nil
}
