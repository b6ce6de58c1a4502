package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
	"roomrelay/pkg/retry"
	"roomrelay/pkg/utils"

	"go.uber.org/zap"
)

// RecordingConfig tunes the capture pipeline.
type RecordingConfig struct {
	MaxConcurrent    int
	OutputDir        string
	ReadinessTimeout time.Duration
	DrainInterval    time.Duration
	// MinFileSize separates a usable capture from a failed one.
	MinFileSize    int64
	CapturePortMin int
	CapturePortMax int
}

func (c *RecordingConfig) withDefaults() RecordingConfig {
	out := *c
	if out.MaxConcurrent <= 0 {
		out.MaxConcurrent = 4
	}
	if out.OutputDir == "" {
		out.OutputDir = os.TempDir()
	}
	if out.ReadinessTimeout <= 0 {
		out.ReadinessTimeout = 3 * time.Second
	}
	if out.DrainInterval <= 0 {
		out.DrainInterval = 500 * time.Millisecond
	}
	if out.MinFileSize <= 0 {
		out.MinFileSize = 1024
	}
	if out.CapturePortMin <= 0 {
		out.CapturePortMin = 50000
	}
	if out.CapturePortMax <= out.CapturePortMin {
		out.CapturePortMax = out.CapturePortMin + 999
	}
	return out
}

// peerCapture is one capture pipeline: the transports and consumers
// borrowed against a peer's producers, the subprocess muxing them, and
// where the output lands.
type peerCapture struct {
	peerID     domain.PeerID
	username   string
	inputs     []ports.CaptureInput
	transports []ports.CaptureTransport
	consumers  []ports.Consumer
	recorder   ports.Recorder
	outputPath string
	allocPorts []int
}

// recordingSession is the per-room recording state machine:
// idle -> starting -> active -> stopping -> finalized.
type recordingSession struct {
	id        domain.RecordingID
	roomID    domain.RoomID
	startedAt time.Time
	startedBy domain.PeerID
	mode      domain.RecordingMode

	mu          sync.Mutex
	state       domain.RecordingState
	captures    []*peerCapture
	captured    map[string]bool // producer ids already piped
	transcripts []domain.TranscriptEntry
}

// RecordingService drives server-side capture: it borrows producers
// from the topology, siphons them through capture transports into
// muxing subprocesses, and finalizes the artifacts.
type RecordingService struct {
	cfg      RecordingConfig
	rooms    RoomLookup
	caps     *CapabilityRegistry
	factory  ports.RecorderFactory
	store    ports.MetadataStore
	objects  ports.ObjectStore
	events   ports.EventPublisher
	notifier ports.Notifier
	metrics  Metrics
	retryCfg retry.Config
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[domain.RoomID]*recordingSession
	portsMu  sync.Mutex
	inUse    map[int]bool
	nextPort int
}

func NewRecordingService(
	cfg RecordingConfig,
	rooms RoomLookup,
	caps *CapabilityRegistry,
	factory ports.RecorderFactory,
	store ports.MetadataStore,
	objects ports.ObjectStore,
	events ports.EventPublisher,
	notifier ports.Notifier,
	metrics Metrics,
	logger *zap.SugaredLogger,
) *RecordingService {
	resolved := cfg.withDefaults()
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &RecordingService{
		cfg:      resolved,
		rooms:    rooms,
		caps:     caps,
		factory:  factory,
		store:    store,
		objects:  objects,
		events:   events,
		notifier: notifier,
		metrics:  metrics,
		retryCfg: retry.DefaultConfig(),
		logger:   logger,
		sessions: make(map[domain.RoomID]*recordingSession),
		inUse:    make(map[int]bool),
		nextPort: resolved.CapturePortMin,
	}
}

// allocPort hands out an even RTP port from the capture range.
func (s *RecordingService) allocPort() (int, error) {
	s.portsMu.Lock()
	defer s.portsMu.Unlock()
	span := s.cfg.CapturePortMax - s.cfg.CapturePortMin
	for i := 0; i <= span; i += 2 {
		port := s.nextPort
		s.nextPort += 2
		if s.nextPort > s.cfg.CapturePortMax {
			s.nextPort = s.cfg.CapturePortMin
		}
		if !s.inUse[port] {
			s.inUse[port] = true
			return port, nil
		}
	}
	return 0, fmt.Errorf("capture port range %d-%d exhausted", s.cfg.CapturePortMin, s.cfg.CapturePortMax)
}

func (s *RecordingService) releasePorts(ports []int) {
	s.portsMu.Lock()
	defer s.portsMu.Unlock()
	for _, p := range ports {
		delete(s.inUse, p)
	}
}

// IsRecording reports whether the room has a live recording session.
func (s *RecordingService) IsRecording(roomID domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[roomID]
	return ok
}

// AppendTranscript buffers a transcript entry for the room's active
// recording; entries land in the sidecar metadata at finalize time.
func (s *RecordingService) AppendTranscript(roomID domain.RoomID, entry domain.TranscriptEntry) {
	s.mu.Lock()
	sess := s.sessions[roomID]
	s.mu.Unlock()
	if sess == nil {
		return
	}
	sess.mu.Lock()
	sess.transcripts = append(sess.transcripts, entry)
	sess.mu.Unlock()
}

// StartRecording builds a capture pipeline for every non-recorder peer
// that is currently producing. Per-peer failures degrade to omission;
// in combined mode a subprocess failure aborts the whole recording.
func (s *RecordingService) StartRecording(ctx context.Context, roomID domain.RoomID, initiator domain.PeerID, mode domain.RecordingMode) (*ports.StartRecordingResult, error) {
	if mode == "" {
		mode = domain.RecordingModePerPeer
	}

	room, err := s.rooms.Room(roomID)
	if err != nil {
		return nil, err
	}

	// Presence in the session map is the at-most-one-recording guard;
	// check-and-set happens under one lock.
	sess := &recordingSession{
		id:        domain.RecordingID(utils.GenerateRecordingID()),
		roomID:    roomID,
		startedAt: time.Now(),
		startedBy: initiator,
		mode:      mode,
		state:     domain.RecordingStarting,
		captured:  make(map[string]bool),
	}
	s.mu.Lock()
	if _, exists := s.sessions[roomID]; exists {
		s.mu.Unlock()
		return nil, domain.ErrAlreadyRecording
	}
	if len(s.sessions) >= s.cfg.MaxConcurrent {
		s.mu.Unlock()
		return nil, domain.ErrRecordingCapacity
	}
	s.sessions[roomID] = sess
	s.mu.Unlock()

	abort := func(err error) (*ports.StartRecordingResult, error) {
		s.mu.Lock()
		if s.sessions[roomID] == sess {
			delete(s.sessions, roomID)
		}
		s.mu.Unlock()
		return nil, err
	}

	room.mu.Lock()
	targets := room.captureTargets()
	room.mu.Unlock()

	if err := os.MkdirAll(s.outputDir(sess), 0o755); err != nil {
		return abort(fmt.Errorf("creating recording output dir: %w", err))
	}

	if mode == domain.RecordingModeCombined {
		capture, err := s.buildCombinedCapture(ctx, room, sess, targets)
		if err != nil {
			// Sole subprocess failed: the whole recording aborts.
			s.logger.Errorw("combined capture failed, aborting recording",
				"room_id", roomID, "recording_id", sess.id, "error", err)
			return abort(err)
		}
		if capture != nil && !s.commitCapture(sess, capture) {
			return nil, domain.ErrNotRecording
		}
	} else {
		for _, target := range targets {
			capture, err := s.buildPeerCapture(ctx, room, sess, target.peerID, target.username, target.producers, "")
			if err != nil {
				// One peer's pipeline failing never aborts the rest.
				s.logger.Warnw("peer capture failed, omitting peer from recording",
					"room_id", roomID, "recording_id", sess.id,
					"peer_id", target.peerID, "error", err)
				continue
			}
			if !s.commitCapture(sess, capture) {
				return nil, domain.ErrNotRecording
			}
		}
	}

	sess.mu.Lock()
	if sess.state != domain.RecordingStarting {
		// A stop raced the start and already finalized the session.
		sess.mu.Unlock()
		return nil, domain.ErrNotRecording
	}
	sess.state = domain.RecordingActive
	sess.mu.Unlock()

	s.metrics.RecordingStarted()
	s.notifier.Broadcast(roomID, "recording-started", map[string]interface{}{
		"recordingId": sess.id,
		"startedAt":   sess.startedAt,
	})
	s.logger.Infow("recording started",
		"room_id", roomID, "recording_id", sess.id,
		"mode", mode, "captures", len(sess.captures), "initiator", initiator)
	return &ports.StartRecordingResult{RecordingID: sess.id, StartedAt: sess.startedAt}, nil
}

func (s *RecordingService) outputDir(sess *recordingSession) string {
	return filepath.Join(s.cfg.OutputDir, string(sess.id))
}

// sortProducers orders audio before video so capture input indexes are
// stable.
func sortProducers(producers []ports.Producer) {
	sort.SliceStable(producers, func(i, j int) bool {
		return producers[i].Kind() == domain.MediaKindAudio && producers[j].Kind() != domain.MediaKindAudio
	})
}

func outputExt(inputs []ports.CaptureInput) string {
	for _, in := range inputs {
		if in.Kind == domain.MediaKindVideo {
			return ".webm"
		}
	}
	return ".opus"
}

// tapProducers allocates one capture transport and one paused consumer
// per producer. On error everything built so far is torn down.
func (s *RecordingService) tapProducers(ctx context.Context, room *Room, peerID domain.PeerID, producers []ports.Producer) (c *peerCapture, err error) {
	capture := &peerCapture{peerID: peerID}
	defer func() {
		if err != nil {
			s.teardownCapture(capture)
		}
	}()

	caps := s.caps.Capabilities()
	for _, producer := range producers {
		port, perr := s.allocPort()
		if perr != nil {
			return nil, perr
		}
		capture.allocPorts = append(capture.allocPorts, port)

		transport, terr := room.router.CreateCaptureTransport(ctx)
		if terr != nil {
			return nil, fmt.Errorf("creating capture transport: %w", terr)
		}
		capture.transports = append(capture.transports, transport)

		consumer, cerr := transport.Consume(ctx, producer.ID(), caps)
		if cerr != nil {
			return nil, fmt.Errorf("creating capture consumer: %w", cerr)
		}
		capture.consumers = append(capture.consumers, consumer)

		params := consumer.Parameters()
		codecName, clockRate, channels := codecDescription(params.Codec)
		capture.inputs = append(capture.inputs, ports.CaptureInput{
			PeerID:      peerID,
			Kind:        consumer.Kind(),
			Port:        port,
			PayloadType: params.Codec.PayloadType,
			CodecName:   codecName,
			ClockRate:   clockRate,
			Channels:    channels,
		})
	}
	return capture, nil
}

// codecDescription extracts the rtpmap fields from a codec mime type
// ("audio/opus" -> opus).
func codecDescription(c domain.RTPCodec) (name string, clockRate, channels int) {
	name = c.MimeType
	if parts := strings.SplitN(c.MimeType, "/", 2); len(parts) == 2 {
		name = parts[1]
	}
	return name, c.ClockRate, c.Channels
}

// startCaptureProcess spawns the subprocess and sequences the ordering
// hazard: wait for readiness, then connect the transports that start
// the RTP flow, then resume the paused consumers.
func (s *RecordingService) startCaptureProcess(ctx context.Context, capture *peerCapture, spec ports.CaptureSpec) (err error) {
	recorder, ferr := s.factory.New(spec)
	if ferr != nil {
		return fmt.Errorf("building recorder: %w", ferr)
	}
	capture.recorder = recorder
	capture.outputPath = spec.OutputPath

	if err := recorder.Start(ctx); err != nil {
		return fmt.Errorf("spawning recorder: %w", err)
	}
	// Past this point a failure must reap the subprocess too; tearing
	// down the media objects alone would leave it running forever.
	defer func() {
		if err != nil {
			if serr := recorder.Stop(context.Background()); serr != nil {
				s.logger.Warnw("stopping recorder after failed pipeline start",
					"output", spec.OutputPath, "error", serr)
			}
		}
	}()

	select {
	case <-recorder.Ready():
	case err := <-recorder.Exited():
		if err == nil {
			err = fmt.Errorf("recorder exited before becoming ready")
		}
		return err
	case <-time.After(s.cfg.ReadinessTimeout):
		// Bounded fallback only; the readiness handshake is primary.
		s.logger.Warnw("recorder readiness timeout elapsed, proceeding",
			"output", spec.OutputPath, "timeout", s.cfg.ReadinessTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	for i, transport := range capture.transports {
		if err := transport.Connect(ctx, "127.0.0.1", capture.inputs[i].Port); err != nil {
			return fmt.Errorf("connecting capture transport: %w", err)
		}
	}
	for _, consumer := range capture.consumers {
		if err := consumer.Resume(); err != nil {
			return fmt.Errorf("resuming capture consumer: %w", err)
		}
	}
	return nil
}

// buildPeerCapture sets up one pipeline for one peer. suffix
// disambiguates mid-session attachments of single producers.
func (s *RecordingService) buildPeerCapture(ctx context.Context, room *Room, sess *recordingSession, peerID domain.PeerID, username string, producers []ports.Producer, suffix string) (*peerCapture, error) {
	sortProducers(producers)

	room.mu.Lock()
	capture, err := s.tapProducers(ctx, room, peerID, producers)
	room.mu.Unlock()
	if err != nil {
		return nil, err
	}
	capture.username = username

	name := fmt.Sprintf("%s_%s", sess.id, peerID)
	if suffix != "" {
		name += "_" + suffix
	}
	spec := ports.CaptureSpec{
		RecordingID: sess.id,
		Inputs:      capture.inputs,
		OutputPath:  filepath.Join(s.outputDir(sess), name+outputExt(capture.inputs)),
	}
	if err := s.startCaptureProcess(ctx, capture, spec); err != nil {
		s.teardownCapture(capture)
		return nil, err
	}

	sess.mu.Lock()
	for _, producer := range producers {
		sess.captured[producer.ID()] = true
	}
	sess.mu.Unlock()
	return capture, nil
}

// buildCombinedCapture sets up the single shared pipeline: every
// peer's producers are declared up front so the session description
// can enumerate all inputs before the subprocess spawns.
func (s *RecordingService) buildCombinedCapture(ctx context.Context, room *Room, sess *recordingSession, targets []captureTarget) (*peerCapture, error) {
	var producers []ports.Producer
	for _, t := range targets {
		ps := append([]ports.Producer(nil), t.producers...)
		sortProducers(ps)
		producers = append(producers, ps...)
	}
	if len(producers) == 0 {
		return nil, nil
	}

	room.mu.Lock()
	capture, err := s.tapProducers(ctx, room, "", producers)
	room.mu.Unlock()
	if err != nil {
		return nil, err
	}
	// Re-attribute inputs to their owning peers for the sidecar.
	idx := 0
	for _, t := range targets {
		for range t.producers {
			capture.inputs[idx].PeerID = t.peerID
			idx++
		}
	}

	spec := ports.CaptureSpec{
		RecordingID: sess.id,
		Inputs:      capture.inputs,
		OutputPath:  filepath.Join(s.outputDir(sess), fmt.Sprintf("%s_combined.webm", sess.id)),
		Combined:    true,
	}
	if err := s.startCaptureProcess(ctx, capture, spec); err != nil {
		s.teardownCapture(capture)
		return nil, err
	}

	sess.mu.Lock()
	for _, producer := range producers {
		sess.captured[producer.ID()] = true
	}
	sess.mu.Unlock()
	return capture, nil
}

// commitCapture publishes a freshly built pipeline to its session. A
// stop that raced the start wins: once the session has left the
// starting state the pipeline unwinds, subprocess included, instead of
// outliving the finalized session.
func (s *RecordingService) commitCapture(sess *recordingSession, capture *peerCapture) bool {
	sess.mu.Lock()
	if sess.state == domain.RecordingStarting {
		sess.captures = append(sess.captures, capture)
		sess.mu.Unlock()
		return true
	}
	sess.mu.Unlock()

	if capture.recorder != nil {
		if err := capture.recorder.Stop(context.Background()); err != nil {
			s.logger.Warnw("stopping recorder for superseded start",
				"recording_id", sess.id, "output", capture.outputPath, "error", err)
		}
	}
	s.teardownCapture(capture)
	return false
}

// teardownCapture closes a pipeline's media objects and returns its
// ports. It never touches the subprocess; callers stop that first.
func (s *RecordingService) teardownCapture(capture *peerCapture) {
	for _, c := range capture.consumers {
		c.Close()
	}
	for _, t := range capture.transports {
		t.Close()
	}
	capture.consumers = nil
	capture.transports = nil
	s.releasePorts(capture.allocPorts)
	capture.allocPorts = nil
}

// OnProducerAdded attaches a capture pipeline to a producer that
// appeared after recording began. Re-entrant at producer granularity;
// existing captures are untouched. Combined recordings declare their
// inputs up front and do not accept late producers.
func (s *RecordingService) OnProducerAdded(roomID domain.RoomID, peerID domain.PeerID, producerID string) {
	s.mu.Lock()
	sess := s.sessions[roomID]
	s.mu.Unlock()
	if sess == nil {
		return
	}

	sess.mu.Lock()
	active := sess.state == domain.RecordingActive
	perPeer := sess.mode == domain.RecordingModePerPeer
	already := sess.captured[producerID]
	if active && perPeer && !already {
		// Reserve before the goroutine runs so a duplicate notification
		// cannot double-capture.
		sess.captured[producerID] = true
	}
	sess.mu.Unlock()

	if !active || already {
		return
	}
	if !perPeer {
		s.logger.Debugw("late producer ignored by combined recording",
			"room_id", roomID, "peer_id", peerID, "producer_id", producerID)
		return
	}

	go func() {
		room, err := s.rooms.Room(roomID)
		if err != nil {
			return
		}
		room.mu.Lock()
		peer, ok := room.peer(peerID)
		var producer ports.Producer
		var username string
		if ok {
			username = peer.Info.Username
			producer = peer.producers[producerID]
		}
		room.mu.Unlock()
		if producer == nil {
			return
		}

		capture, err := s.buildPeerCapture(context.Background(), room, sess, peerID, username,
			[]ports.Producer{producer}, utils.ShortID(producer.ID(), 8))
		if err != nil {
			s.logger.Warnw("failed to attach mid-session capture",
				"room_id", roomID, "peer_id", peerID,
				"producer_id", producerID, "error", err)
			sess.mu.Lock()
			delete(sess.captured, producerID)
			sess.mu.Unlock()
			return
		}
		sess.mu.Lock()
		if sess.state == domain.RecordingActive {
			sess.captures = append(sess.captures, capture)
			sess.mu.Unlock()
			s.logger.Infow("mid-session capture attached",
				"room_id", roomID, "peer_id", peerID, "producer_id", producerID)
			return
		}
		sess.mu.Unlock()
		// Recording stopped while we were attaching; unwind.
		if capture.recorder != nil {
			capture.recorder.Stop(context.Background())
		}
		s.teardownCapture(capture)
	}()
}

// StopRecording drains and finalizes the room's recording: pause, short
// drain, escalating subprocess shutdown, close media objects, filter
// undersized files, persist artifacts and sidecar metadata.
func (s *RecordingService) StopRecording(ctx context.Context, roomID domain.RoomID) (*ports.StopRecordingResult, error) {
	s.mu.Lock()
	sess := s.sessions[roomID]
	s.mu.Unlock()
	if sess == nil {
		return nil, domain.ErrNotRecording
	}

	sess.mu.Lock()
	if sess.state != domain.RecordingActive && sess.state != domain.RecordingStarting {
		sess.mu.Unlock()
		return nil, domain.ErrNotRecording
	}
	sess.state = domain.RecordingStopping
	captures := append([]*peerCapture(nil), sess.captures...)
	transcripts := append([]domain.TranscriptEntry(nil), sess.transcripts...)
	sess.mu.Unlock()

	// Stop delivering RTP first so the muxers flush cleanly.
	for _, capture := range captures {
		for _, consumer := range capture.consumers {
			if err := consumer.Pause(); err != nil {
				s.logger.Warnw("pausing capture consumer failed",
					"recording_id", sess.id, "consumer_id", consumer.ID(), "error", err)
			}
		}
	}
	select {
	case <-time.After(s.cfg.DrainInterval):
	case <-ctx.Done():
	}

	var wg sync.WaitGroup
	for _, capture := range captures {
		if capture.recorder == nil {
			continue
		}
		wg.Add(1)
		go func(c *peerCapture) {
			defer wg.Done()
			if err := c.recorder.Stop(ctx); err != nil {
				s.logger.Warnw("recorder stop escalated",
					"recording_id", sess.id, "output", c.outputPath, "error", err)
			}
		}(capture)
	}
	wg.Wait()

	// Only after process exit may the media objects close.
	for _, capture := range captures {
		s.teardownCapture(capture)
	}

	endedAt := time.Now()
	var files []domain.RecordingFile
	for _, capture := range captures {
		fi, err := os.Stat(capture.outputPath)
		if err != nil {
			s.logger.Warnw("capture produced no output",
				"recording_id", sess.id, "peer_id", capture.peerID,
				"output", capture.outputPath, "error", err)
			continue
		}
		if fi.Size() < s.cfg.MinFileSize {
			s.logger.Warnw("capture output below minimum size, treating as failed",
				"recording_id", sess.id, "peer_id", capture.peerID,
				"output", capture.outputPath, "size", fi.Size())
			continue
		}
		name := filepath.Base(capture.outputPath)
		files = append(files, domain.RecordingFile{
			PeerID:   capture.peerID,
			Username: capture.username,
			File:     name,
			Size:     fi.Size(),
		})
		s.metrics.RecordingBytes(fi.Size())

		if err := retry.Retry(ctx, s.retryCfg, func() error {
			return s.objects.SaveFile(ctx, name, capture.outputPath)
		}); err != nil {
			s.logger.Errorw("failed to upload recording artifact",
				"recording_id", sess.id, "file", name, "error", err)
		}
	}

	meta := domain.RecordingMetadata{
		RecordingID: sess.id,
		RoomID:      roomID,
		StartedAt:   sess.startedAt,
		EndedAt:     endedAt,
		StartedBy:   sess.startedBy,
		Mode:        sess.mode,
		Files:       files,
		Transcripts: transcripts,
	}
	if sidecar, err := json.MarshalIndent(meta, "", "  "); err == nil {
		name := fmt.Sprintf("%s.json", sess.id)
		if err := retry.Retry(ctx, s.retryCfg, func() error {
			return s.objects.Save(ctx, name, bytes.NewReader(sidecar))
		}); err != nil {
			s.logger.Errorw("failed to upload recording sidecar",
				"recording_id", sess.id, "error", err)
		}
	}
	if err := retry.Retry(ctx, s.retryCfg, func() error {
		return s.store.SaveRecording(ctx, meta)
	}); err != nil {
		s.logger.Errorw("failed to persist recording metadata",
			"recording_id", sess.id, "error", err)
	}

	sess.mu.Lock()
	sess.state = domain.RecordingFinalized
	sess.mu.Unlock()
	s.mu.Lock()
	delete(s.sessions, roomID)
	s.mu.Unlock()

	s.metrics.RecordingStopped()
	s.notifier.Broadcast(roomID, "recording-stopped", map[string]interface{}{
		"recordingId": sess.id,
		"files":       files,
	})
	if err := s.events.PublishRoomEvent(ctx, ports.RoomEvent{
		Type: ports.EventRecordingFinalized, RoomID: roomID,
		RecordingID: sess.id, At: endedAt,
	}); err != nil {
		s.logger.Warnw("failed to publish recording finalized event",
			"recording_id", sess.id, "error", err)
	}
	s.logger.Infow("recording finalized",
		"room_id", roomID, "recording_id", sess.id,
		"files", len(files), "duration", endedAt.Sub(sess.startedAt))
	return &ports.StopRecordingResult{RecordingID: sess.id, Files: files}, nil
}

// StopAll finalizes every active recording; used on shutdown and by the
// registry's eviction hook.
func (s *RecordingService) StopAll(ctx context.Context) {
	s.mu.Lock()
	rooms := make([]domain.RoomID, 0, len(s.sessions))
	for id := range s.sessions {
		rooms = append(rooms, id)
	}
	s.mu.Unlock()

	for _, roomID := range rooms {
		if _, err := s.StopRecording(ctx, roomID); err != nil && err != domain.ErrNotRecording {
			s.logger.Warnw("failed to stop recording during shutdown",
				"room_id", roomID, "error", err)
		}
	}
}
