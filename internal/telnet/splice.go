package telnet

import "fmt"

// A Filter transforms one direction of the byte stream, typically by
// compressing or decompressing it. Transform is called with each chunk in
// order and may hold state between calls.
type Filter interface {
	Transform(p []byte) ([]byte, error)
	Close() error
}

// InstallCompressor routes every element written after this call through
// f. Output already queued is sent as it is. A direction can be spliced
// only once for the life of the session.
func (s *Session) InstallCompressor(f Filter) error {
	if s.outbound != nil {
		return fmt.Errorf("outbound: %w", ErrFilterInstalled)
	}
	s.outbound = f
	s.log.Debug().Msg("outbound filter installed")
	return nil
}

// InstallDecompressor routes every byte received after the element being
// processed through f. When called from a handler, the rest of the current
// chunk is already filtered.
func (s *Session) InstallDecompressor(f Filter) error {
	if s.inbound != nil {
		return fmt.Errorf("inbound: %w", ErrFilterInstalled)
	}
	s.inbound = f
	s.log.Debug().Msg("inbound filter installed")
	return nil
}

// Filtered reports which directions have a filter installed.
func (s *Session) Filtered() (inbound, outbound bool) {
	return s.inbound != nil, s.outbound != nil
}

// deflate moves encoded output that is waiting for the outbound filter to
// the send queue.
func (s *Session) deflate() {
	if s.outbound == nil || len(s.plain) == 0 {
		return
	}
	p, err := s.outbound.Transform(s.plain)
	s.plain = nil
	if err != nil {
		s.fail(fmt.Errorf("outbound: %w: %w", ErrStreamCorrupt, err))
		return
	}
	s.out = append(s.out, p...)
}

// inflate runs received bytes through the inbound filter.
func (s *Session) inflate(p []byte) ([]byte, bool) {
	plain, err := s.inbound.Transform(p)
	if err != nil {
		// whatever decoded before the failure is still delivered
		s.fail(fmt.Errorf("inbound: %w: %w", ErrStreamCorrupt, err))
		return plain, false
	}
	return plain, true
}
