package engine

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
	"roomrelay/pkg/utils"

	"github.com/pion/rtp"
)

// captureTransport siphons one producer's RTP to a loopback UDP
// endpoint for the recording subprocess. It never touches ICE or DTLS.
type captureTransport struct {
	id   string
	rtr  *router
	sink *udpSink

	mu        sync.Mutex
	consumers map[string]*consumer
	closed    bool
}

func newCaptureTransport(r *router) *captureTransport {
	return &captureTransport{
		id:        utils.GenerateID("capture"),
		rtr:       r,
		sink:      &udpSink{},
		consumers: make(map[string]*consumer),
	}
}

func (t *captureTransport) ID() string { return t.id }

// Connect dials the subprocess's listen address. Consumers stay paused
// until the caller resumes them, so no packet is written before this.
func (t *captureTransport) Connect(ctx context.Context, ip string, port int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("capture transport %s is closed", t.id)
	}

	conn, err := net.Dial("udp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("failed to dial capture endpoint: %w", err)
	}
	t.sink.setConn(conn)

	t.rtr.eng.logger.Debugw("capture transport connected",
		"transport_id", t.id,
		"addr", conn.RemoteAddr(),
	)
	return nil
}

func (t *captureTransport) Consume(ctx context.Context, producerID string, caps domain.RTPCapabilities) (ports.Consumer, error) {
	p, ok := t.rtr.producer(producerID)
	if !ok {
		return nil, domain.ErrProducerNotFound
	}
	if !caps.SupportsMime(p.params.Codec.MimeType) {
		return nil, domain.ErrIncompatibleCapabilities
	}

	id := utils.GenerateID("consumer")
	c := newConsumer(id, p, t.sink)
	c.onClose = func() {
		t.mu.Lock()
		delete(t.consumers, id)
		t.mu.Unlock()
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		c.Close()
		return nil, fmt.Errorf("capture transport %s is closed", t.id)
	}
	t.consumers[id] = c
	t.mu.Unlock()

	p.addSink(c)
	return c, nil
}

func (t *captureTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	consumers := make([]*consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
	t.rtr.dropTransport(t.id)
	return t.sink.close()
}

// udpSink marshals forwarded packets onto the capture socket. Writes
// before Connect are dropped; the consumers feeding the sink are
// paused during that window anyway.
type udpSink struct {
	mu   sync.Mutex
	conn net.Conn
}

func (s *udpSink) setConn(conn net.Conn) {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.mu.Unlock()
}

func (s *udpSink) WriteRTP(pkt *rtp.Packet) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	b, err := pkt.Marshal()
	if err != nil {
		return err
	}
	_, err = conn.Write(b)
	return err
}

func (s *udpSink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
