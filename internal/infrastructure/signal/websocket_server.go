package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
	"roomrelay/internal/core/services"
	apperrors "roomrelay/pkg/errors"
	"roomrelay/pkg/utils"
	"roomrelay/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Config holds signaling server tunables.
type Config struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MessagesPerSecond and Burst bound each client's request rate.
	MessagesPerSecond float64
	Burst             int
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.MessagesPerSecond <= 0 {
		c.MessagesPerSecond = 20
	}
	if c.Burst <= 0 {
		c.Burst = 40
	}
	return c
}

// client is one websocket connection. Writes go through writeMu since
// the broadcast path and the response path race otherwise.
type client struct {
	peerID   domain.PeerID
	conn     *websocket.Conn
	limiter  *rate.Limiter
	writeMu  sync.Mutex
	roomID   domain.RoomID
	username string
}

// WebSocketServer is the signaling edge: it owns the connection
// registry, dispatches client commands to the services and implements
// ports.Notifier for room broadcasts.
type WebSocketServer struct {
	cfg       Config
	rooms     ports.RoomService
	media     ports.MediaService
	recording ports.RecordingService
	tokens    *services.TokenService

	mu          sync.RWMutex
	clients     map[domain.PeerID]*client
	roomClients map[domain.RoomID]map[domain.PeerID]*client

	logger *zap.SugaredLogger
}

func NewWebSocketServer(
	cfg Config,
	rooms ports.RoomService,
	media ports.MediaService,
	recording ports.RecordingService,
	tokens *services.TokenService,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	return &WebSocketServer{
		cfg:         cfg.withDefaults(),
		rooms:       rooms,
		media:       media,
		recording:   recording,
		tokens:      tokens,
		clients:     make(map[domain.PeerID]*client),
		roomClients: make(map[domain.RoomID]map[domain.PeerID]*client),
		logger:      logger,
	}
}

// BindServices wires the service layer in after construction. The
// server is the services' Notifier, so it has to exist before they do;
// it must not accept connections until this has been called.
func (s *WebSocketServer) BindServices(rooms ports.RoomService, media ports.MediaService, recording ports.RecordingService) {
	s.rooms = rooms
	s.media = media
	s.recording = recording
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &client{
		peerID:  domain.PeerID(utils.GeneratePeerID()),
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst),
	}

	s.mu.Lock()
	s.clients[c.peerID] = c
	s.mu.Unlock()

	s.logger.Infow("client connected", "peer_id", c.peerID, "remote", r.RemoteAddr)
	c.send(s.cfg.WriteTimeout, Broadcast{Event: "connected", Data: map[string]interface{}{
		"peerId": c.peerID,
	}})

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	requestChan := make(chan Request, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var req Request
			if err := conn.ReadJSON(&req); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
			requestChan <- req
		}
	}()

	for {
		select {
		case req := <-requestChan:
			s.serveRequest(r.Context(), c, req)

		case <-pingTicker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				s.logger.Infow("error sending ping", "peer_id", c.peerID, "error", err)
				s.disconnect(c)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading from client", "peer_id", c.peerID, "error", err)
			}
			s.disconnect(c)
			return
		}
	}
}

func (s *WebSocketServer) serveRequest(ctx context.Context, c *client, req Request) {
	if !c.limiter.Allow() {
		s.respondError(c, req.ID, apperrors.NewRateLimitError())
		return
	}

	data, err := s.dispatch(ctx, c, req)
	if err != nil {
		s.logger.Infow("request failed",
			"peer_id", c.peerID, "method", req.Method, "error", err)
		s.respondError(c, req.ID, err)
		return
	}
	c.send(s.cfg.WriteTimeout, Response{ID: req.ID, OK: true, Data: data})
}

func (s *WebSocketServer) dispatch(ctx context.Context, c *client, req Request) (interface{}, error) {
	switch req.Method {
	case "join-room":
		return s.handleJoinRoom(ctx, c, req.Data)
	case "leave-room":
		return nil, s.handleLeaveRoom(ctx, c)
	case "create-transport":
		var p createTransportPayload
		if err := unmarshal(req.Data, &p); err != nil {
			return nil, err
		}
		if p.Direction != domain.DirectionSend && p.Direction != domain.DirectionRecv {
			return nil, apperrors.NewInvalidInputError("direction must be send or recv")
		}
		return s.media.CreateTransport(ctx, c.roomID, c.peerID, p.Direction)
	case "connect-transport":
		var p connectTransportPayload
		if err := unmarshal(req.Data, &p); err != nil {
			return nil, err
		}
		return nil, s.media.ConnectTransport(ctx, c.roomID, c.peerID, p.TransportID, p.DTLSParameters)
	case "produce":
		var p producePayload
		if err := unmarshal(req.Data, &p); err != nil {
			return nil, err
		}
		producerID, err := s.media.Produce(ctx, c.roomID, c.peerID, p.TransportID, p.Kind, p.RTPParameters)
		if err != nil {
			return nil, err
		}
		return map[string]string{"producerId": producerID}, nil
	case "consume":
		var p consumePayload
		if err := unmarshal(req.Data, &p); err != nil {
			return nil, err
		}
		return s.media.Consume(ctx, c.roomID, c.peerID, p.TransportID, p.ProducerID, p.RTPCapabilities)
	case "resume-consumer":
		var p resumeConsumerPayload
		if err := unmarshal(req.Data, &p); err != nil {
			return nil, err
		}
		return nil, s.media.ResumeConsumer(ctx, c.roomID, c.peerID, p.ConsumerID)
	case "chat-message":
		return nil, s.handleChatMessage(c, req.Data)
	case "transcript":
		return nil, s.handleTranscript(c, req.Data)
	case "create-poll":
		return nil, s.handleCreatePoll(c, req.Data)
	case "start-recording":
		var p startRecordingPayload
		if err := unmarshal(req.Data, &p); err != nil {
			return nil, err
		}
		if p.Mode == "" {
			p.Mode = domain.RecordingModePerPeer
		}
		if p.Mode != domain.RecordingModePerPeer && p.Mode != domain.RecordingModeCombined {
			return nil, apperrors.NewInvalidInputError("mode must be per-peer or combined")
		}
		return s.recording.StartRecording(ctx, c.roomID, c.peerID, p.Mode)
	case "stop-recording":
		return s.recording.StopRecording(ctx, c.roomID)
	default:
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *WebSocketServer) handleJoinRoom(ctx context.Context, c *client, data json.RawMessage) (interface{}, error) {
	var p joinRoomPayload
	if err := unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := validation.ValidateRoomID(string(p.RoomID)); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	if err := validation.ValidateUsername(p.Username); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	if err := validation.ValidatePassword(p.Password); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}

	claims, err := s.tokens.ValidateJoinToken(p.Token, p.RoomID)
	if err != nil {
		return nil, err
	}
	recorder := p.Recorder || claims.Recorder

	if c.roomID != "" {
		return nil, apperrors.NewInvalidInputError("already joined a room")
	}

	result, err := s.rooms.JoinRoom(ctx, p.RoomID, c.peerID, p.Password, domain.PeerInfo{
		Username: p.Username,
		Recorder: recorder,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	c.roomID = p.RoomID
	c.username = p.Username
	peers, ok := s.roomClients[p.RoomID]
	if !ok {
		peers = make(map[domain.PeerID]*client)
		s.roomClients[p.RoomID] = peers
	}
	peers[c.peerID] = c
	s.mu.Unlock()

	s.BroadcastExcept(p.RoomID, c.peerID, "user-joined", domain.PeerSummary{
		ID:       c.peerID,
		Username: p.Username,
		IsHost:   result.IsHost,
		JoinedAt: time.Now(),
	})
	return result, nil
}

func (s *WebSocketServer) handleLeaveRoom(ctx context.Context, c *client) error {
	roomID := c.roomID
	if roomID == "" {
		return apperrors.NewInvalidInputError("not in a room")
	}

	s.mu.Lock()
	c.roomID = ""
	if peers, ok := s.roomClients[roomID]; ok {
		delete(peers, c.peerID)
		if len(peers) == 0 {
			delete(s.roomClients, roomID)
		}
	}
	s.mu.Unlock()

	return s.rooms.LeavePeer(ctx, roomID, c.peerID)
}

func (s *WebSocketServer) handleChatMessage(c *client, data json.RawMessage) error {
	var p chatMessagePayload
	if err := unmarshal(data, &p); err != nil {
		return err
	}
	if c.roomID == "" {
		return apperrors.NewInvalidInputError("not in a room")
	}
	if p.Text == "" {
		return apperrors.NewInvalidInputError("text is required")
	}

	s.rooms.CountMessage(c.roomID)
	s.Broadcast(c.roomID, "chat-message", map[string]interface{}{
		"peerId":   c.peerID,
		"username": c.username,
		"text":     p.Text,
		"at":       time.Now(),
	})
	return nil
}

func (s *WebSocketServer) handleTranscript(c *client, data json.RawMessage) error {
	var p transcriptPayload
	if err := unmarshal(data, &p); err != nil {
		return err
	}
	if c.roomID == "" {
		return apperrors.NewInvalidInputError("not in a room")
	}

	s.recording.AppendTranscript(c.roomID, domain.TranscriptEntry{
		PeerID: c.peerID,
		Text:   p.Text,
		At:     time.Now(),
	})
	return nil
}

func (s *WebSocketServer) handleCreatePoll(c *client, data json.RawMessage) error {
	var p createPollPayload
	if err := unmarshal(data, &p); err != nil {
		return err
	}
	if c.roomID == "" {
		return apperrors.NewInvalidInputError("not in a room")
	}
	if p.Question == "" {
		return apperrors.NewInvalidInputError("question is required")
	}

	s.rooms.CountPoll(c.roomID)
	s.Broadcast(c.roomID, "poll-created", map[string]interface{}{
		"peerId":   c.peerID,
		"username": c.username,
		"question": p.Question,
		"options":  p.Options,
	})
	return nil
}

// disconnect tears the client down and removes it from its room. The
// room service handles host migration and eviction scheduling.
func (s *WebSocketServer) disconnect(c *client) {
	s.mu.Lock()
	delete(s.clients, c.peerID)
	roomID := c.roomID
	c.roomID = ""
	if roomID != "" {
		if peers, ok := s.roomClients[roomID]; ok {
			delete(peers, c.peerID)
			if len(peers) == 0 {
				delete(s.roomClients, roomID)
			}
		}
	}
	s.mu.Unlock()

	if roomID != "" {
		if err := s.rooms.LeavePeer(context.Background(), roomID, c.peerID); err != nil {
			s.logger.Infow("error removing peer from room",
				"peer_id", c.peerID, "room_id", roomID, "error", err)
		}
	}
	s.logger.Infow("client disconnected", "peer_id", c.peerID)
}

// Broadcast implements ports.Notifier.
func (s *WebSocketServer) Broadcast(roomID domain.RoomID, event string, payload interface{}) {
	s.BroadcastExcept(roomID, "", event, payload)
}

// BroadcastExcept implements ports.Notifier. Delivery is best-effort;
// a failed write only logs, the read loop notices dead connections.
func (s *WebSocketServer) BroadcastExcept(roomID domain.RoomID, except domain.PeerID, event string, payload interface{}) {
	s.mu.RLock()
	targets := make([]*client, 0, len(s.roomClients[roomID]))
	for peerID, c := range s.roomClients[roomID] {
		if peerID == except {
			continue
		}
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	msg := Broadcast{Event: event, Data: payload}
	for _, c := range targets {
		if err := c.send(s.cfg.WriteTimeout, msg); err != nil {
			s.logger.Debugw("broadcast write failed",
				"room_id", roomID, "peer_id", c.peerID, "event", event, "error", err)
		}
	}
}

// ConnectedClients reports the current connection count.
func (s *WebSocketServer) ConnectedClients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (c *client) send(timeout time.Duration, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteJSON(v)
}

func (s *WebSocketServer) respondError(c *client, id uint64, err error) {
	c.send(s.cfg.WriteTimeout, Response{ID: id, OK: false, Error: errorInfo(err)})
}

func unmarshal(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return apperrors.NewInvalidInputError("payload is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.NewInvalidInputError(fmt.Sprintf("invalid payload: %v", err))
	}
	return nil
}
