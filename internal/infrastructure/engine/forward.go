package engine

import (
	"sync"

	"roomrelay/internal/core/domain"
	"roomrelay/pkg/utils"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// rtpSink receives the packets forwarded to one consumer. Client
// consumers sit on a TrackLocalStaticRTP, capture consumers on a UDP
// writer.
type rtpSink interface {
	WriteRTP(*rtp.Packet) error
}

// producer is one peer's outbound stream. It reads RTP off the remote
// track and fans packets out to every unpaused consumer.
type producer struct {
	id     string
	kind   domain.MediaKind
	params domain.RTPParameters
	rtr    *router

	mu     sync.RWMutex
	sinks  map[string]*consumer
	source *webrtc.TrackRemote
	srcPC  *webrtc.PeerConnection
	closed bool
}

func newProducer(r *router, kind domain.MediaKind, params domain.RTPParameters) *producer {
	return &producer{
		id:     utils.GenerateID("producer"),
		kind:   kind,
		params: params,
		rtr:    r,
		sinks:  make(map[string]*consumer),
	}
}

func (p *producer) ID() string                       { return p.id }
func (p *producer) Kind() domain.MediaKind           { return p.kind }
func (p *producer) Parameters() domain.RTPParameters { return p.params }

// attach binds the remote track once it arrives and starts the
// forwarding loop.
func (p *producer) attach(track *webrtc.TrackRemote, pc *webrtc.PeerConnection) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.source = track
	p.srcPC = pc
	p.mu.Unlock()

	go p.forward(track)
}

func (p *producer) forward(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500) // MTU size
	pkt := &rtp.Packet{}
	var count uint64

	for {
		if p.isClosed() {
			return
		}

		n, _, err := track.Read(buf)
		if err != nil {
			p.rtr.eng.logger.Debugw("producer track read ended",
				"producer_id", p.id,
				"error", err,
			)
			return
		}

		if err := pkt.Unmarshal(buf[:n]); err != nil {
			p.rtr.eng.logger.Warnw("error unmarshaling RTP packet",
				"producer_id", p.id,
				"error", err,
			)
			continue
		}

		p.fanout(pkt)

		count++
		if count%500 == 0 {
			p.mu.RLock()
			subscribers := len(p.sinks)
			p.mu.RUnlock()
			p.rtr.eng.logger.Debugw("forwarding RTP",
				"producer_id", p.id,
				"subscribers", subscribers,
				"sequence", pkt.SequenceNumber,
				"packets_forwarded", count,
			)
		}
	}
}

func (p *producer) fanout(pkt *rtp.Packet) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.sinks {
		if c.Paused() {
			continue
		}
		if err := c.sink.WriteRTP(pkt); err != nil {
			p.rtr.eng.logger.Warnw("error writing RTP to consumer",
				"producer_id", p.id,
				"consumer_id", c.id,
				"error", err,
			)
		}
	}
}

// requestKeyframe asks the source for a fresh keyframe via PLI. Used
// when a video consumer resumes, so it does not wait on a stale GOP.
func (p *producer) requestKeyframe() {
	p.mu.RLock()
	track, pc := p.source, p.srcPC
	p.mu.RUnlock()
	if p.kind != domain.MediaKindVideo || track == nil || pc == nil {
		return
	}

	err := pc.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
	})
	if err != nil {
		p.rtr.eng.logger.Warnw("failed to send PLI", "producer_id", p.id, "error", err)
	}
}

func (p *producer) addSink(c *consumer) {
	p.mu.Lock()
	p.sinks[c.id] = c
	p.mu.Unlock()
}

func (p *producer) removeSink(id string) {
	p.mu.Lock()
	delete(p.sinks, id)
	p.mu.Unlock()
}

func (p *producer) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Close stops forwarding and closes every consumer attached to the
// producer.
func (p *producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	sinks := make([]*consumer, 0, len(p.sinks))
	for _, c := range p.sinks {
		sinks = append(sinks, c)
	}
	p.mu.Unlock()

	p.rtr.unregisterProducer(p.id)
	for _, c := range sinks {
		c.Close()
	}
	return nil
}

// consumer is one sink's view of a producer. Consumers start paused;
// packets flow only after an explicit Resume.
type consumer struct {
	id   string
	prod *producer
	sink rtpSink

	mu      sync.Mutex
	paused  bool
	closed  bool
	onClose func()
}

func newConsumer(id string, p *producer, sink rtpSink) *consumer {
	return &consumer{
		id:     id,
		prod:   p,
		sink:   sink,
		paused: true,
	}
}

func (c *consumer) ID() string                       { return c.id }
func (c *consumer) Kind() domain.MediaKind           { return c.prod.kind }
func (c *consumer) ProducerID() string               { return c.prod.id }
func (c *consumer) Parameters() domain.RTPParameters { return c.prod.params }

func (c *consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *consumer) Pause() error {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
	return nil
}

func (c *consumer) Resume() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrConsumerNotFound
	}
	c.paused = false
	c.mu.Unlock()

	c.prod.requestKeyframe()
	return nil
}

func (c *consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.paused = true
	onClose := c.onClose
	c.mu.Unlock()

	c.prod.removeSink(c.id)
	if onClose != nil {
		onClose()
	}
	return nil
}
