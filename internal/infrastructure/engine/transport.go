package engine

import (
	"context"
	"fmt"
	"sync"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
	"roomrelay/pkg/utils"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
)

// orphanTrack is a remote track that arrived before its Produce call.
type orphanTrack struct {
	track    *webrtc.TrackRemote
	receiver *webrtc.RTPReceiver
}

// webrtcTransport is the client-facing transport. Send transports
// receive the peer's media through OnTrack; recv transports carry
// consumer tracks and renegotiate as consumers are added.
type webrtcTransport struct {
	id        string
	direction domain.TransportDirection
	rtr       *router
	pc        *webrtc.PeerConnection

	mu        sync.Mutex
	localSDP  string
	pending   map[domain.MediaKind][]*producer
	orphans   map[domain.MediaKind][]orphanTrack
	producers []*producer
	consumers map[string]*consumer
	closed    bool
}

func newTransport(ctx context.Context, r *router, direction domain.TransportDirection) (*webrtcTransport, error) {
	pc, err := r.eng.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   r.eng.iceServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	})
	if err != nil {
		r.eng.peerConnectionFailed(err)
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	r.eng.peerConnectionCreated()

	t := &webrtcTransport{
		id:        utils.GenerateID("transport"),
		direction: direction,
		rtr:       r,
		pc:        pc,
		pending:   make(map[domain.MediaKind][]*producer),
		orphans:   make(map[domain.MediaKind][]orphanTrack),
		consumers: make(map[string]*consumer),
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		r.eng.logger.Debugw("transport connection state changed",
			"transport_id", t.id,
			"direction", direction,
			"state", state,
		)
	})

	if direction == domain.DirectionSend {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				pc.Close()
				return nil, fmt.Errorf("failed to add %s transceiver: %w", kind, err)
			}
		}
		pc.OnTrack(t.handleTrack)
		if err := t.negotiate(ctx); err != nil {
			pc.Close()
			return nil, err
		}
	}

	return t, nil
}

func (t *webrtcTransport) ID() string { return t.id }

// Info returns the transport's current local offer. Recv transports
// have no offer until the first consumer triggers negotiation.
func (t *webrtcTransport) Info() ports.TransportInfo {
	t.mu.Lock()
	sdp := t.localSDP
	t.mu.Unlock()
	return ports.TransportInfo{ID: t.id, SDP: sdp}
}

func (t *webrtcTransport) Connect(ctx context.Context, dtls domain.DTLSParameters) error {
	if dtls.SDP == "" {
		return fmt.Errorf("transport %s: connect requires an sdp answer", t.id)
	}
	return t.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  dtls.SDP,
	})
}

func (t *webrtcTransport) Produce(ctx context.Context, kind domain.MediaKind, params domain.RTPParameters) (ports.Producer, error) {
	if t.direction != domain.DirectionSend {
		return nil, fmt.Errorf("transport %s: produce requires a send transport", t.id)
	}

	p := newProducer(t.rtr, kind, params)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport %s is closed", t.id)
	}
	t.producers = append(t.producers, p)

	// The track may already have arrived if the client started
	// sending right after the handshake.
	var orphan *orphanTrack
	if q := t.orphans[kind]; len(q) > 0 {
		orphan = &q[0]
		t.orphans[kind] = q[1:]
	} else {
		t.pending[kind] = append(t.pending[kind], p)
	}
	t.mu.Unlock()

	t.rtr.registerProducer(p)
	if orphan != nil {
		p.attach(orphan.track, t.pc)
		go t.drainReceiverRTCP(orphan.receiver)
	}

	t.rtr.eng.logger.Debugw("producer created",
		"transport_id", t.id,
		"producer_id", p.ID(),
		"kind", kind,
	)
	return p, nil
}

func (t *webrtcTransport) Consume(ctx context.Context, producerID string, caps domain.RTPCapabilities) (ports.Consumer, error) {
	if t.direction != domain.DirectionRecv {
		return nil, fmt.Errorf("transport %s: consume requires a recv transport", t.id)
	}

	p, ok := t.rtr.producer(producerID)
	if !ok {
		return nil, domain.ErrProducerNotFound
	}

	id := utils.GenerateID("consumer")
	local, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{
		MimeType:  p.params.Codec.MimeType,
		ClockRate: uint32(p.params.Codec.ClockRate),
		Channels:  uint16(p.params.Codec.Channels),
	}, id, "roomrelay")
	if err != nil {
		return nil, fmt.Errorf("failed to create local track: %w", err)
	}

	sender, err := t.pc.AddTrack(local)
	if err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	c := newConsumer(id, p, local)
	c.onClose = func() { t.dropConsumer(id) }

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		c.Close()
		return nil, fmt.Errorf("transport %s is closed", t.id)
	}
	t.consumers[id] = c
	t.mu.Unlock()

	p.addSink(c)
	go t.watchSenderRTCP(sender, p)

	// Adding a track changes the local description, so the client
	// needs a fresh offer.
	if err := t.negotiate(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (t *webrtcTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	producers := t.producers
	consumers := make([]*consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
	for _, p := range producers {
		p.Close()
	}

	t.rtr.dropTransport(t.id)
	return t.pc.Close()
}

// negotiate creates a fresh offer and waits for ICE gathering so the
// offer carries its candidates inline.
func (t *webrtcTransport) negotiate(ctx context.Context) error {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return ctx.Err()
	}

	local := t.pc.LocalDescription()
	t.mu.Lock()
	t.localSDP = local.SDP
	t.mu.Unlock()
	return nil
}

func (t *webrtcTransport) handleTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	kind := domain.MediaKindAudio
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		kind = domain.MediaKindVideo
	}

	t.mu.Lock()
	var p *producer
	if q := t.pending[kind]; len(q) > 0 {
		for i, cand := range q {
			if cand.params.SSRC == 0 || cand.params.SSRC == uint32(track.SSRC()) {
				p = cand
				t.pending[kind] = append(q[:i:i], q[i+1:]...)
				break
			}
		}
	}
	if p == nil {
		t.orphans[kind] = append(t.orphans[kind], orphanTrack{track: track, receiver: receiver})
	}
	t.mu.Unlock()

	t.rtr.eng.logger.Infow("remote track arrived",
		"transport_id", t.id,
		"kind", kind,
		"ssrc", track.SSRC(),
		"codec", track.Codec().MimeType,
		"claimed", p != nil,
	)

	if p != nil {
		p.attach(track, t.pc)
		go t.drainReceiverRTCP(receiver)
	}
}

// drainReceiverRTCP keeps the receiver's report stream flowing so the
// interceptor chain stays live.
func (t *webrtcTransport) drainReceiverRTCP(receiver *webrtc.RTPReceiver) {
	for {
		if _, _, err := receiver.ReadRTCP(); err != nil {
			return
		}
	}
}

// watchSenderRTCP relays keyframe requests from the subscriber back to
// the producer's source.
func (t *webrtcTransport) watchSenderRTCP(sender *webrtc.RTPSender, p *producer) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range packets {
			if _, ok := pkt.(*rtcp.PictureLossIndication); ok {
				p.requestKeyframe()
			}
		}
	}
}

func (t *webrtcTransport) dropConsumer(id string) {
	t.mu.Lock()
	delete(t.consumers, id)
	t.mu.Unlock()
}
