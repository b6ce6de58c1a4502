package services

import (
	"context"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"

	"go.uber.org/zap"
)

// MediaService exposes the SFU handshake: clients never exchange media
// descriptions with each other; the server is the sole source of truth
// for who produces what.
type MediaService struct {
	rooms    RoomLookup
	notifier ports.Notifier
	logger   *zap.SugaredLogger

	// onProducer lets the recording orchestrator attach a capture
	// pipeline to producers that appear mid-recording.
	onProducer func(roomID domain.RoomID, peerID domain.PeerID, producerID string)
}

func NewMediaService(rooms RoomLookup, notifier ports.Notifier, logger *zap.SugaredLogger) *MediaService {
	return &MediaService{rooms: rooms, notifier: notifier, logger: logger}
}

// BindProducerObserver registers the mid-recording capture hook.
func (s *MediaService) BindProducerObserver(f func(roomID domain.RoomID, peerID domain.PeerID, producerID string)) {
	s.onProducer = f
}

func (s *MediaService) CreateTransport(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, direction domain.TransportDirection) (*ports.TransportInfo, error) {
	room, err := s.rooms.Room(roomID)
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	peer, ok := room.peer(peerID)
	if !ok {
		return nil, domain.ErrPeerNotFound
	}

	transport, err := room.router.CreateTransport(ctx, direction)
	if err != nil {
		return nil, err
	}
	peer.transports[transport.ID()] = transport

	info := transport.Info()
	s.logger.Debugw("transport created",
		"room_id", roomID, "peer_id", peerID,
		"transport_id", info.ID, "direction", direction)
	return &info, nil
}

func (s *MediaService) ConnectTransport(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, transportID string, dtls domain.DTLSParameters) error {
	room, err := s.rooms.Room(roomID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	peer, ok := room.peer(peerID)
	if !ok {
		return domain.ErrPeerNotFound
	}
	transport, ok := peer.transports[transportID]
	if !ok {
		return domain.ErrTransportNotFound
	}
	return transport.Connect(ctx, dtls)
}

// Produce registers the peer's outbound stream and announces it to
// everyone else so current and future peers can resync consumers.
func (s *MediaService) Produce(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, transportID string, kind domain.MediaKind, params domain.RTPParameters) (string, error) {
	room, err := s.rooms.Room(roomID)
	if err != nil {
		return "", err
	}

	room.mu.Lock()
	peer, ok := room.peer(peerID)
	if !ok {
		room.mu.Unlock()
		return "", domain.ErrPeerNotFound
	}
	transport, ok := peer.transports[transportID]
	if !ok {
		room.mu.Unlock()
		return "", domain.ErrTransportNotFound
	}

	producer, err := transport.Produce(ctx, kind, params)
	if err != nil {
		room.mu.Unlock()
		return "", err
	}
	peer.producers[producer.ID()] = producer
	room.mu.Unlock()

	s.notifier.BroadcastExcept(roomID, peerID, "new-producer", domain.ProducerSummary{
		PeerID:     peerID,
		ProducerID: producer.ID(),
		Kind:       kind,
	})
	if s.onProducer != nil {
		s.onProducer(roomID, peerID, producer.ID())
	}
	s.logger.Infow("producer added",
		"room_id", roomID, "peer_id", peerID,
		"producer_id", producer.ID(), "kind", kind)
	return producer.ID(), nil
}

// Consume attaches an inbound view of a remote producer. The consumer
// starts paused; the client resumes it once its transport is wired.
func (s *MediaService) Consume(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, transportID, producerID string, caps domain.RTPCapabilities) (*ports.ConsumeResult, error) {
	room, err := s.rooms.Room(roomID)
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	peer, ok := room.peer(peerID)
	if !ok {
		return nil, domain.ErrPeerNotFound
	}
	transport, ok := peer.transports[transportID]
	if !ok {
		return nil, domain.ErrTransportNotFound
	}
	if _, _, ok := room.findProducer(producerID); !ok {
		return nil, domain.ErrProducerNotFound
	}
	if !room.router.CanConsume(producerID, caps) {
		return nil, domain.ErrIncompatibleCapabilities
	}

	consumer, err := transport.Consume(ctx, producerID, caps)
	if err != nil {
		return nil, err
	}
	peer.consumers[consumer.ID()] = consumer

	return &ports.ConsumeResult{
		ConsumerID: consumer.ID(),
		ProducerID: producerID,
		Kind:       consumer.Kind(),
		Parameters: consumer.Parameters(),
		// Adding the consumer changed the transport's offer, so the
		// client has to renegotiate against the fresh one.
		TransportSDP: transport.Info().SDP,
	}, nil
}

func (s *MediaService) ResumeConsumer(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, consumerID string) error {
	room, err := s.rooms.Room(roomID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	peer, ok := room.peer(peerID)
	if !ok {
		return domain.ErrPeerNotFound
	}
	consumer, ok := peer.consumers[consumerID]
	if !ok {
		return domain.ErrConsumerNotFound
	}
	return consumer.Resume()
}
