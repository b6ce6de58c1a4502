package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RoomConfig tunes the registry.
type RoomConfig struct {
	// EvictionDelay is how long an empty room survives before its
	// routing context is destroyed.
	EvictionDelay time.Duration
}

// RoomLookup resolves live rooms for the other services. Only the
// registry creates or destroys routing contexts.
type RoomLookup interface {
	Room(id domain.RoomID) (*Room, error)
}

// RoomService is the in-memory directory of active rooms. It owns room
// creation and teardown, peer membership, host migration and the
// inactivity eviction timer.
type RoomService struct {
	cfg     RoomConfig
	pool    *RouterPool
	caps    *CapabilityRegistry
	tracker *SessionTracker

	store    ports.MetadataStore
	events   ports.EventPublisher
	notifier ports.Notifier
	metrics  Metrics
	logger   *zap.SugaredLogger

	mu       sync.RWMutex
	rooms    map[domain.RoomID]*Room
	creating singleflight.Group

	// isRecording and autoStop are wired after construction to avoid a
	// package-level cycle with the recording orchestrator.
	isRecording func(domain.RoomID) bool
	autoStop    func(context.Context, domain.RoomID)
}

func NewRoomService(
	cfg RoomConfig,
	pool *RouterPool,
	caps *CapabilityRegistry,
	tracker *SessionTracker,
	store ports.MetadataStore,
	events ports.EventPublisher,
	notifier ports.Notifier,
	metrics Metrics,
	logger *zap.SugaredLogger,
) *RoomService {
	if cfg.EvictionDelay <= 0 {
		cfg.EvictionDelay = 5 * time.Minute
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &RoomService{
		cfg:      cfg,
		pool:     pool,
		caps:     caps,
		tracker:  tracker,
		store:    store,
		events:   events,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		rooms:    make(map[domain.RoomID]*Room),
	}
}

// BindRecording wires the recording orchestrator hooks in after both
// services exist.
func (s *RoomService) BindRecording(isRecording func(domain.RoomID) bool, autoStop func(context.Context, domain.RoomID)) {
	s.isRecording = isRecording
	s.autoStop = autoStop
}

// Room implements RoomLookup.
func (s *RoomService) Room(id domain.RoomID) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

// awaitRemoval blocks until the given closed room has left the
// registry. The window between a room closing and its registry removal
// is a few statements long; polling outlasts it without coordination.
func (s *RoomService) awaitRemoval(ctx context.Context, roomID domain.RoomID, stale *Room) error {
	for {
		s.mu.RLock()
		current := s.rooms[roomID]
		s.mu.RUnlock()
		if current != stale {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
}

// getOrCreateRoom returns the existing room or allocates one from the
// router pool. Concurrent calls for the same id observe a single room:
// creation suspends on router allocation, so the whole path runs under
// a per-key singleflight.
func (s *RoomService) getOrCreateRoom(ctx context.Context, id domain.RoomID, password string) (*Room, error) {
	s.mu.RLock()
	room, ok := s.rooms[id]
	s.mu.RUnlock()
	if ok {
		return room, nil
	}

	v, err, _ := s.creating.Do(string(id), func() (interface{}, error) {
		s.mu.RLock()
		existing, ok := s.rooms[id]
		s.mu.RUnlock()
		if ok {
			return existing, nil
		}

		router, err := s.pool.Take(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrResourceExhausted, err)
		}

		room := newRoom(id, password, router)
		s.mu.Lock()
		s.rooms[id] = room
		s.mu.Unlock()
		s.metrics.RoomOpened()
		s.logger.Infow("room created", "room_id", id, "router_id", router.ID())

		now := time.Now()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.store.SaveRoomCreated(ctx, id, now); err != nil {
				s.logger.Warnw("failed to persist room creation", "room_id", id, "error", err)
			}
			if err := s.events.PublishRoomEvent(ctx, ports.RoomEvent{
				Type: ports.EventRoomCreated, RoomID: id, At: now,
			}); err != nil {
				s.logger.Warnw("failed to publish room created event", "room_id", id, "error", err)
			}
		}()
		return room, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Room), nil
}

// JoinRoom admits a peer, creating the room on demand. The first
// non-recorder peer becomes host; the first peer overall opens a new
// session and cancels any pending eviction.
func (s *RoomService) JoinRoom(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, password string, info domain.PeerInfo) (*ports.JoinResult, error) {
	started := time.Now()

	// A room can be evicted between lookup and lock; a stale handle is
	// never reused. Recorder joins do not resurrect rooms.
	for {
		room, err := s.getOrCreateRoom(ctx, roomID, password)
		if err != nil {
			return nil, err
		}

		room.mu.Lock()
		if room.closed {
			room.mu.Unlock()
			if info.Recorder {
				return nil, domain.ErrRoomNotFound
			}
			// The evictor drops the entry from the registry right
			// after marking the room closed; wait out the hand-off so
			// the next attempt re-creates instead of re-reading this
			// corpse.
			if err := s.awaitRemoval(ctx, roomID, room); err != nil {
				return nil, err
			}
			continue
		}

		if room.password != "" && room.password != password {
			room.mu.Unlock()
			return nil, domain.ErrInvalidPassword
		}

		room.cancelEvictionLocked()

		if room.peers.Len() == 0 {
			room.session = s.tracker.Open(roomID)
		}

		peer := newPeer(peerID, info)
		if room.hostID == "" && !info.Recorder {
			room.hostID = peerID
			peer.IsHost = true
		}
		room.peers.Set(peerID, peer)
		if room.session != nil {
			room.session.CountParticipant()
		}

		result := &ports.JoinResult{
			Capabilities: s.caps.Capabilities(),
			IsHost:       peer.IsHost,
			Peers:        room.peerSummaries(peerID),
			Producers:    room.producerSummaries(peerID),
		}
		if room.session != nil {
			result.SessionID = room.session.ID
		}
		room.mu.Unlock()

		s.metrics.PeerJoined()
		s.metrics.ObserveJoin(time.Since(started))
		s.logger.Infow("peer joined",
			"room_id", roomID, "peer_id", peerID,
			"username", info.Username, "host", result.IsHost, "recorder", info.Recorder)
		return result, nil
	}
}

// LeavePeer removes a peer, closing everything it owns. Departure of
// the host triggers migration; departure of the last peer flushes the
// session and arms the eviction timer.
func (s *RoomService) LeavePeer(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID) error {
	room, err := s.Room(roomID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	peer, ok := room.peer(peerID)
	if !ok {
		room.mu.Unlock()
		return domain.ErrPeerNotFound
	}

	peer.closeMedia()
	room.peers.Delete(peerID)

	var newHost domain.PeerID
	hostChanged := false
	if room.hostID == peerID {
		newHost, hostChanged = room.migrateHost()
	}

	emptied := room.peers.Len() == 0
	var session *domain.Session
	if emptied {
		room.hostID = ""
		session = room.session
		room.session = nil
		room.evictTimer = time.AfterFunc(s.cfg.EvictionDelay, func() {
			s.evictRoom(room)
		})
	}
	room.mu.Unlock()

	s.metrics.PeerLeft()
	s.notifier.Broadcast(roomID, "user-left", map[string]interface{}{"peerId": peerID})
	if hostChanged {
		s.notifier.Broadcast(roomID, "host-changed", map[string]interface{}{"newHostId": newHost})
		s.logger.Infow("host migrated", "room_id", roomID, "new_host", newHost)
	}
	if session != nil {
		// Flush chat/poll/notes history asynchronously; the departing
		// peer's request must not wait on the store.
		go s.tracker.Close(context.Background(), session)
	}
	s.logger.Infow("peer left", "room_id", roomID, "peer_id", peerID, "room_empty", emptied)
	return nil
}

// evictRoom fires after the inactivity delay. A rejoin between the
// timer firing and the lock resolves toward doing nothing; the routing
// context is destroyed exactly once.
func (s *RoomService) evictRoom(room *Room) {
	room.mu.Lock()
	if room.closed || room.peers.Len() > 0 {
		room.mu.Unlock()
		return
	}
	room.closed = true
	room.evictTimer = nil
	room.mu.Unlock()

	// Leave the registry before the slow stop sequence runs, so a
	// joiner arriving mid-eviction re-creates the room instead of
	// finding this closed one.
	s.mu.Lock()
	if current, ok := s.rooms[room.ID]; ok && current == room {
		delete(s.rooms, room.ID)
	}
	s.mu.Unlock()

	if s.isRecording != nil && s.isRecording(room.ID) && s.autoStop != nil {
		s.autoStop(context.Background(), room.ID)
	}

	room.router.Close()
	s.metrics.RoomClosed()
	s.logger.Infow("room evicted after inactivity", "room_id", room.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.events.PublishRoomEvent(ctx, ports.RoomEvent{
		Type: ports.EventRoomClosed, RoomID: room.ID, At: time.Now(),
	}); err != nil {
		s.logger.Warnw("failed to publish room closed event", "room_id", room.ID, "error", err)
	}
}

// ListRooms snapshots the registry for the admin surface.
func (s *RoomService) ListRooms(ctx context.Context) []ports.RoomSummary {
	s.mu.RLock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()

	out := make([]ports.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		summary := ports.RoomSummary{
			ID:        r.ID,
			PeerCount: r.peers.Len(),
			HostID:    r.hostID,
		}
		if r.session != nil {
			summary.SessionID = r.session.ID
		}
		r.mu.Unlock()
		if s.isRecording != nil {
			summary.Recording = s.isRecording(r.ID)
		}
		out = append(out, summary)
	}
	return out
}

// CountMessage attributes one chat message to the room's session.
func (s *RoomService) CountMessage(roomID domain.RoomID) {
	s.countActivity(roomID, func(sess *domain.Session) { sess.CountMessage() })
}

// CountPoll attributes one poll to the room's session.
func (s *RoomService) CountPoll(roomID domain.RoomID) {
	s.countActivity(roomID, func(sess *domain.Session) { sess.CountPoll() })
}

func (s *RoomService) countActivity(roomID domain.RoomID, f func(*domain.Session)) {
	room, err := s.Room(roomID)
	if err != nil {
		return
	}
	room.mu.Lock()
	sess := room.session
	room.mu.Unlock()
	if sess != nil {
		f(sess)
	}
}

// Shutdown tears every room down: peers dropped, routers destroyed,
// pool drained. Active recordings must be stopped by the caller first.
func (s *RoomService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.rooms = make(map[domain.RoomID]*Room)
	s.mu.Unlock()

	for _, room := range rooms {
		room.mu.Lock()
		if room.closed {
			room.mu.Unlock()
			continue
		}
		room.closed = true
		room.cancelEvictionLocked()
		for el := room.peers.Front(); el != nil; el = el.Next() {
			el.Value.closeMedia()
		}
		session := room.session
		room.session = nil
		room.mu.Unlock()

		if session != nil {
			s.tracker.Close(ctx, session)
		}
		room.router.Close()
		s.metrics.RoomClosed()
	}
	s.pool.Close()
	s.logger.Infow("room registry shut down", "rooms_closed", len(rooms))
	return nil
}
