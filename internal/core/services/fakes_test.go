package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
)

// The fakes below stand in for the media engine, the muxing subprocess
// and the persistence collaborators so the services can be exercised
// without a real router or ffmpeg.

var fakeSeq atomic.Int64

func fakeID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, fakeSeq.Add(1))
}

func testCapabilities() domain.RTPCapabilities {
	return domain.RTPCapabilities{Codecs: []domain.RTPCodec{
		{MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2},
		{MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000},
	}}
}

func audioParams() domain.RTPParameters {
	return domain.RTPParameters{Codec: domain.RTPCodec{
		MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2,
	}}
}

func videoParams() domain.RTPParameters {
	return domain.RTPParameters{Codec: domain.RTPCodec{
		MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000,
	}}
}

type fakeEngine struct {
	routerCalls atomic.Int64
	fatal       chan error

	mu      sync.Mutex
	routers []*fakeRouter
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{fatal: make(chan error, 1)}
}

func (e *fakeEngine) Capabilities() domain.RTPCapabilities { return testCapabilities() }

func (e *fakeEngine) CreateRouter(ctx context.Context) (ports.Router, error) {
	e.routerCalls.Add(1)
	r := &fakeRouter{id: fakeID("router")}
	e.mu.Lock()
	e.routers = append(e.routers, r)
	e.mu.Unlock()
	return r, nil
}

func (e *fakeEngine) Fatal() <-chan error { return e.fatal }
func (e *fakeEngine) Close() error        { return nil }

type fakeRouter struct {
	id     string
	closed atomic.Bool

	// canConsume overrides the default allow-everything predicate.
	canConsume func(producerID string, caps domain.RTPCapabilities) bool
	// captureConnectErr makes every capture transport's Connect fail.
	captureConnectErr error

	mu       sync.Mutex
	captures []*fakeCaptureTransport
}

func (r *fakeRouter) ID() string { return r.id }

func (r *fakeRouter) CreateTransport(ctx context.Context, direction domain.TransportDirection) (ports.Transport, error) {
	return &fakeTransport{id: fakeID("transport"), direction: direction}, nil
}

func (r *fakeRouter) CreateCaptureTransport(ctx context.Context) (ports.CaptureTransport, error) {
	t := &fakeCaptureTransport{id: fakeID("capture"), connectErr: r.captureConnectErr}
	r.mu.Lock()
	r.captures = append(r.captures, t)
	r.mu.Unlock()
	return t, nil
}

func (r *fakeRouter) CanConsume(producerID string, caps domain.RTPCapabilities) bool {
	if r.canConsume != nil {
		return r.canConsume(producerID, caps)
	}
	return true
}

func (r *fakeRouter) Close() error {
	r.closed.Store(true)
	return nil
}

type fakeTransport struct {
	id        string
	direction domain.TransportDirection
	sdp       string

	mu        sync.Mutex
	connected bool
	dtls      domain.DTLSParameters
}

func (t *fakeTransport) ID() string { return t.id }

func (t *fakeTransport) Info() ports.TransportInfo {
	return ports.TransportInfo{ID: t.id, SDP: t.sdp}
}

func (t *fakeTransport) Connect(ctx context.Context, dtls domain.DTLSParameters) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	t.dtls = dtls
	return nil
}

func (t *fakeTransport) Produce(ctx context.Context, kind domain.MediaKind, params domain.RTPParameters) (ports.Producer, error) {
	return &fakeProducer{id: fakeID("producer"), kind: kind, params: params}, nil
}

func (t *fakeTransport) Consume(ctx context.Context, producerID string, caps domain.RTPCapabilities) (ports.Consumer, error) {
	return newFakeConsumer(producerID, domain.MediaKindAudio, audioParams()), nil
}

func (t *fakeTransport) Close() error { return nil }

type fakeCaptureTransport struct {
	id         string
	connectErr error

	mu        sync.Mutex
	ip        string
	port      int
	closed    bool
	consumers []*fakeConsumer
}

func (t *fakeCaptureTransport) ID() string { return t.id }

func (t *fakeCaptureTransport) Connect(ctx context.Context, ip string, port int) error {
	if t.connectErr != nil {
		return t.connectErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ip = ip
	t.port = port
	return nil
}

func (t *fakeCaptureTransport) Consume(ctx context.Context, producerID string, caps domain.RTPCapabilities) (ports.Consumer, error) {
	kind := domain.MediaKindAudio
	params := audioParams()
	if strings.Contains(producerID, "video") {
		kind = domain.MediaKindVideo
		params = videoParams()
	}
	c := newFakeConsumer(producerID, kind, params)
	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	return c, nil
}

func (t *fakeCaptureTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

type fakeProducer struct {
	id     string
	kind   domain.MediaKind
	params domain.RTPParameters
	closed atomic.Bool
}

func (p *fakeProducer) ID() string                       { return p.id }
func (p *fakeProducer) Kind() domain.MediaKind           { return p.kind }
func (p *fakeProducer) Parameters() domain.RTPParameters { return p.params }
func (p *fakeProducer) Close() error                     { p.closed.Store(true); return nil }

type fakeConsumer struct {
	id         string
	producerID string
	kind       domain.MediaKind
	params     domain.RTPParameters

	mu     sync.Mutex
	paused bool
	closed bool
}

func newFakeConsumer(producerID string, kind domain.MediaKind, params domain.RTPParameters) *fakeConsumer {
	return &fakeConsumer{
		id:         fakeID("consumer"),
		producerID: producerID,
		kind:       kind,
		params:     params,
		paused:     true,
	}
}

func (c *fakeConsumer) ID() string                       { return c.id }
func (c *fakeConsumer) Kind() domain.MediaKind           { return c.kind }
func (c *fakeConsumer) ProducerID() string               { return c.producerID }
func (c *fakeConsumer) Parameters() domain.RTPParameters { return c.params }

func (c *fakeConsumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *fakeConsumer) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	return nil
}

func (c *fakeConsumer) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	return nil
}

func (c *fakeConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type broadcastEvent struct {
	RoomID  domain.RoomID
	Except  domain.PeerID
	Event   string
	Payload interface{}
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (n *fakeNotifier) Broadcast(roomID domain.RoomID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, broadcastEvent{RoomID: roomID, Event: event, Payload: payload})
}

func (n *fakeNotifier) BroadcastExcept(roomID domain.RoomID, except domain.PeerID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, broadcastEvent{RoomID: roomID, Except: except, Event: event, Payload: payload})
}

func (n *fakeNotifier) named(event string) []broadcastEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []broadcastEvent
	for _, e := range n.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakeStore struct {
	mu         sync.Mutex
	created    map[domain.RoomID]time.Time
	sessions   []domain.SessionRecord
	recordings []domain.RecordingMetadata
}

func newFakeStore() *fakeStore {
	return &fakeStore{created: make(map[domain.RoomID]time.Time)}
}

func (s *fakeStore) SaveRoomCreated(ctx context.Context, roomID domain.RoomID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.created[roomID]; !ok {
		s.created[roomID] = at
	}
	return nil
}

func (s *fakeStore) SaveSession(ctx context.Context, rec domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, rec)
	return nil
}

func (s *fakeStore) SaveRecording(ctx context.Context, meta domain.RecordingMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordings = append(s.recordings, meta)
	return nil
}

func (s *fakeStore) ListRecordings(ctx context.Context, roomID domain.RoomID) ([]domain.RecordingMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RecordingMetadata
	for _, m := range s.recordings {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *fakeStore) lastSession() domain.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[len(s.sessions)-1]
}

func (s *fakeStore) recordingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recordings)
}

type fakeObjectStore struct {
	mu    sync.Mutex
	names []string
}

func (o *fakeObjectStore) Save(ctx context.Context, name string, data io.Reader) error {
	if _, err := io.Copy(io.Discard, data); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names = append(o.names, name)
	return nil
}

func (o *fakeObjectStore) SaveFile(ctx context.Context, name, path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names = append(o.names, name)
	return nil
}

func (o *fakeObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.names...), nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []ports.RoomEvent
}

func (p *fakePublisher) PublishRoomEvent(ctx context.Context, event ports.RoomEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) typed(t ports.RoomEventType) []ports.RoomEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []ports.RoomEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeRecorder pretends to be the muxing subprocess: Start writes a
// file of the configured size and reports ready immediately.
type fakeRecorder struct {
	spec     ports.CaptureSpec
	fileSize int64
	// gate, when set, holds Start until the channel closes.
	gate chan struct{}

	ready  chan struct{}
	exited chan error

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopOnce sync.Once
}

func (r *fakeRecorder) Start(ctx context.Context) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
	if r.fileSize > 0 {
		if err := os.WriteFile(r.spec.OutputPath, bytes.Repeat([]byte("x"), int(r.fileSize)), 0o644); err != nil {
			return err
		}
	}
	close(r.ready)
	return nil
}

func (r *fakeRecorder) Ready() <-chan struct{} { return r.ready }
func (r *fakeRecorder) Exited() <-chan error   { return r.exited }

func (r *fakeRecorder) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		r.mu.Unlock()
		close(r.exited)
	})
	return nil
}

func (r *fakeRecorder) OutputPath() string { return r.spec.OutputPath }

func (r *fakeRecorder) wasStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *fakeRecorder) wasStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

type fakeRecorderFactory struct {
	mu        sync.Mutex
	recorders []*fakeRecorder
	// sizes is consumed one entry per New call; exhausted entries fall
	// back to defaultSize.
	sizes       []int64
	defaultSize int64
	failNew     error
	// startGate is handed to every recorder, holding Start until the
	// channel closes.
	startGate chan struct{}
}

func (f *fakeRecorderFactory) New(spec ports.CaptureSpec) (ports.Recorder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNew != nil {
		return nil, f.failNew
	}
	size := f.defaultSize
	if len(f.sizes) > 0 {
		size = f.sizes[0]
		f.sizes = f.sizes[1:]
	}
	r := &fakeRecorder{
		spec:     spec,
		fileSize: size,
		gate:     f.startGate,
		ready:    make(chan struct{}),
		exited:   make(chan error, 1),
	}
	f.recorders = append(f.recorders, r)
	return r, nil
}

func (f *fakeRecorderFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recorders)
}

func (f *fakeRecorderFactory) specs() []ports.CaptureSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ports.CaptureSpec, len(f.recorders))
	for i, r := range f.recorders {
		out[i] = r.spec
	}
	return out
}

// fakeRoomLookup resolves rooms from a fixed map, bypassing the
// registry.
type fakeRoomLookup struct {
	rooms map[domain.RoomID]*Room
}

func (l *fakeRoomLookup) Room(id domain.RoomID) (*Room, error) {
	room, ok := l.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}
