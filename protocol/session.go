package protocol

import "sync"

// Session is the codec state of one connection: the inbound frame
// accumulator and the negotiated msize. Inbound (Feed, Write, Next) and
// outbound (Encode) may run on different goroutines; each direction on its
// own must not be used concurrently.
type Session struct {
	inMu   sync.Mutex
	reader *FrameReader
	err    error

	mu    sync.Mutex
	msize uint32
	// pending is set between a decoded Tversion and the reply to it
	pending bool
	closed  bool
}

func NewSession() *Session {
	return &Session{reader: NewFrameReader()}
}

// MaxMessageSize returns the negotiated msize, or zero before any version
// message has been seen.
func (s *Session) MaxMessageSize() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.msize
}

// MaxPayload is the largest Rread or Twrite data the current msize allows.
func (s *Session) MaxPayload() uint32 {
	msize := s.MaxMessageSize()
	if msize == 0 {
		msize = DefaultMsize
	}

	if msize <= IOHDRSIZE {
		return 0
	}

	return msize - IOHDRSIZE
}

// Feed submits inbound bytes and returns every message they complete, in
// arrival order. Messages decoded before a failure are returned alongside
// the error. Any failure is final: every later call returns it again.
func (s *Session) Feed(chunk []byte) ([]Message, error) {
	if _, err := s.Write(chunk); err != nil {
		return nil, err
	}

	var msgs []Message
	for {
		m, err := s.Next()
		if err != nil {
			return msgs, err
		}

		if m == nil {
			return msgs, nil
		}

		msgs = append(msgs, m)
	}
}

// Write appends inbound bytes without decoding anything.
func (s *Session) Write(chunk []byte) (int, error) {
	if s.isClosed() {
		return 0, ErrSessionClosed
	}

	s.inMu.Lock()
	defer s.inMu.Unlock()

	return s.reader.Write(chunk)
}

// Buffered returns the number of inbound bytes not yet part of a decoded
// message.
func (s *Session) Buffered() int {
	s.inMu.Lock()
	defer s.inMu.Unlock()

	return s.reader.Buffered()
}

// Next decodes the next complete inbound frame, or returns nil when more
// bytes are needed. A frame that fails to decode ends the session: the
// stream cannot be trusted past it, so the same error is returned from
// then on.
func (s *Session) Next() (Message, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	s.inMu.Lock()
	defer s.inMu.Unlock()

	if s.err != nil {
		return nil, s.err
	}

	s.reader.SetMaxFrameSize(s.MaxMessageSize())

	frame, err := s.reader.Next()
	if err != nil || frame == nil {
		return nil, err
	}

	m, err := Decode(frame)
	if err != nil {
		s.err = err
		return nil, err
	}

	s.observeInbound(m)

	return m, nil
}

// Encode submits an outbound message and returns its frame. Version
// messages are bounded by DefaultMsize and, once encoded, set the msize
// every later Encode is bounded by. The Rversion or Rerror answering a
// decoded Tversion is bounded by DefaultMsize too, so a Tversion offering
// a uselessly small msize can still be refused.
func (s *Session) Encode(m Message) ([]byte, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	s.mu.Lock()
	limit, pending := s.msize, s.pending
	s.mu.Unlock()

	reply := false
	if m != nil {
		t := m.Type()
		reply = pending && (t == TypeRversion || t == TypeRerror)

		if t.IsVersion() || reply {
			limit = DefaultMsize
		}
	}

	b, err := Encode(m, limit)
	if err != nil {
		return nil, err
	}

	if reply {
		s.mu.Lock()
		s.pending = false
		s.mu.Unlock()
	}

	s.observe(m)

	return b, nil
}

// Close discards buffered bytes and the negotiated msize. Later calls
// return ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.msize = 0
	s.pending = false
	s.mu.Unlock()

	s.inMu.Lock()
	s.reader.Reset()
	s.err = nil
	s.inMu.Unlock()

	return nil
}

func (s *Session) observe(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch v := m.(type) {
	case *Tversion:
		s.msize = v.Msize
	case *Rversion:
		s.msize = v.Msize
	}
}

// observeInbound is observe for decoded messages. A decoded Tversion
// leaves its reply pending.
func (s *Session) observeInbound(m Message) {
	s.observe(m)

	if _, ok := m.(*Tversion); ok {
		s.mu.Lock()
		s.pending = true
		s.mu.Unlock()
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}
