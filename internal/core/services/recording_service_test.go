package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingFixture struct {
	service  *RecordingService
	factory  *fakeRecorderFactory
	store    *fakeStore
	objects  *fakeObjectStore
	notifier *fakeNotifier
	events   *fakePublisher
}

func newRecordingFixture(t *testing.T, cfg RecordingConfig, rooms map[domain.RoomID]*Room) *recordingFixture {
	t.Helper()
	if cfg.OutputDir == "" {
		cfg.OutputDir = t.TempDir()
	}
	if cfg.MinFileSize == 0 {
		cfg.MinFileSize = 16
	}
	if cfg.DrainInterval == 0 {
		cfg.DrainInterval = time.Millisecond
	}

	factory := &fakeRecorderFactory{defaultSize: 2048}
	store := newFakeStore()
	objects := &fakeObjectStore{}
	notifier := &fakeNotifier{}
	events := &fakePublisher{}
	service := NewRecordingService(
		cfg,
		&fakeRoomLookup{rooms: rooms},
		NewCapabilityRegistry(newFakeEngine()),
		factory,
		store,
		objects,
		events,
		notifier,
		NopMetrics{},
		zap.NewNop().Sugar(),
	)
	return &recordingFixture{
		service:  service,
		factory:  factory,
		store:    store,
		objects:  objects,
		notifier: notifier,
		events:   events,
	}
}

func testRoom(id domain.RoomID, peers ...*Peer) *Room {
	room := newRoom(id, "", &fakeRouter{id: fakeID("router")})
	for _, p := range peers {
		room.peers.Set(p.ID, p)
	}
	return room
}

func producingPeer(id domain.PeerID, username string, kinds ...domain.MediaKind) *Peer {
	p := newPeer(id, domain.PeerInfo{Username: username})
	for _, kind := range kinds {
		params := audioParams()
		if kind == domain.MediaKindVideo {
			params = videoParams()
		}
		prod := &fakeProducer{
			id:     fmt.Sprintf("prod_%s_%s_%d", id, kind, fakeSeq.Add(1)),
			kind:   kind,
			params: params,
		}
		p.producers[prod.id] = prod
	}
	return p
}

func TestStartRecording_PerPeer(t *testing.T) {
	room := testRoom("demo",
		producingPeer("peer_alice", "alice", domain.MediaKindAudio, domain.MediaKindVideo),
		producingPeer("peer_bob", "bob", domain.MediaKindAudio),
	)
	f := newRecordingFixture(t, RecordingConfig{}, map[domain.RoomID]*Room{"demo": room})
	ctx := context.Background()

	result, err := f.service.StartRecording(ctx, "demo", "peer_alice", domain.RecordingModePerPeer)
	require.NoError(t, err)
	assert.NotEmpty(t, result.RecordingID)
	assert.True(t, f.service.IsRecording("demo"))

	specs := f.factory.specs()
	require.Len(t, specs, 2)
	require.Len(t, specs[0].Inputs, 2)
	assert.Equal(t, domain.MediaKindAudio, specs[0].Inputs[0].Kind)
	assert.Equal(t, domain.MediaKindVideo, specs[0].Inputs[1].Kind)
	assert.True(t, strings.HasSuffix(specs[0].OutputPath, "peer_alice.webm"))
	require.Len(t, specs[1].Inputs, 1)
	assert.True(t, strings.HasSuffix(specs[1].OutputPath, "peer_bob.opus"))
	for _, spec := range specs {
		assert.False(t, spec.Combined)
		for _, in := range spec.Inputs {
			assert.Zero(t, in.Port%2, "rtp capture ports must be even")
			if in.Kind == domain.MediaKindAudio {
				assert.Equal(t, "opus", in.CodecName)
				assert.Equal(t, 2, in.Channels)
			} else {
				assert.Equal(t, "VP8", in.CodecName)
			}
		}
	}
	assert.Len(t, f.notifier.named("recording-started"), 1)

	stop, err := f.service.StopRecording(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, result.RecordingID, stop.RecordingID)
	require.Len(t, stop.Files, 2)
	for _, file := range stop.Files {
		assert.EqualValues(t, 2048, file.Size)
	}
	assert.False(t, f.service.IsRecording("demo"))
	assert.Len(t, f.notifier.named("recording-stopped"), 1)
	assert.Len(t, f.events.typed(ports.EventRecordingFinalized), 1)

	require.Equal(t, 1, f.store.recordingCount())
	meta := f.store.recordings[0]
	assert.Equal(t, domain.RecordingModePerPeer, meta.Mode)
	assert.Equal(t, domain.PeerID("peer_alice"), meta.StartedBy)
	assert.Len(t, meta.Files, 2)

	// Two artifacts plus the sidecar metadata document were uploaded.
	names, err := f.objects.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, names, 3)
	assert.Contains(t, names, fmt.Sprintf("%s.json", result.RecordingID))

	// Every capture transport the recording borrowed is closed again.
	router := room.router.(*fakeRouter)
	router.mu.Lock()
	defer router.mu.Unlock()
	require.NotEmpty(t, router.captures)
	for _, capture := range router.captures {
		capture.mu.Lock()
		assert.True(t, capture.closed)
		assert.Equal(t, "127.0.0.1", capture.ip)
		capture.mu.Unlock()
	}
}

func TestStartRecording_Combined(t *testing.T) {
	room := testRoom("demo",
		producingPeer("peer_alice", "alice", domain.MediaKindAudio, domain.MediaKindVideo),
		producingPeer("peer_bob", "bob", domain.MediaKindAudio, domain.MediaKindVideo),
	)
	f := newRecordingFixture(t, RecordingConfig{}, map[domain.RoomID]*Room{"demo": room})
	ctx := context.Background()

	_, err := f.service.StartRecording(ctx, "demo", "peer_alice", domain.RecordingModeCombined)
	require.NoError(t, err)

	specs := f.factory.specs()
	require.Len(t, specs, 1)
	spec := specs[0]
	assert.True(t, spec.Combined)
	require.Len(t, spec.Inputs, 4)
	assert.True(t, strings.HasSuffix(spec.OutputPath, "_combined.webm"))

	// Inputs stay attributed to their owning peers, audio before video
	// within each peer.
	assert.Equal(t, domain.PeerID("peer_alice"), spec.Inputs[0].PeerID)
	assert.Equal(t, domain.MediaKindAudio, spec.Inputs[0].Kind)
	assert.Equal(t, domain.PeerID("peer_alice"), spec.Inputs[1].PeerID)
	assert.Equal(t, domain.PeerID("peer_bob"), spec.Inputs[2].PeerID)
	assert.Equal(t, domain.MediaKindAudio, spec.Inputs[2].Kind)

	stop, err := f.service.StopRecording(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, stop.Files, 1)
}

func TestStartRecording_CombinedWithoutProducers(t *testing.T) {
	room := testRoom("demo", newPeer("peer_alice", domain.PeerInfo{Username: "alice"}))
	f := newRecordingFixture(t, RecordingConfig{}, map[domain.RoomID]*Room{"demo": room})
	ctx := context.Background()

	_, err := f.service.StartRecording(ctx, "demo", "peer_alice", domain.RecordingModeCombined)
	require.NoError(t, err)
	assert.Zero(t, f.factory.count())

	stop, err := f.service.StopRecording(ctx, "demo")
	require.NoError(t, err)
	assert.Empty(t, stop.Files)
	assert.Equal(t, 1, f.store.recordingCount())
}

func TestStartRecording_Guards(t *testing.T) {
	room := testRoom("demo", producingPeer("peer_alice", "alice", domain.MediaKindAudio))
	other := testRoom("other", producingPeer("peer_bob", "bob", domain.MediaKindAudio))
	f := newRecordingFixture(t, RecordingConfig{MaxConcurrent: 1}, map[domain.RoomID]*Room{
		"demo": room, "other": other,
	})
	ctx := context.Background()

	_, err := f.service.StartRecording(ctx, "missing", "peer_alice", domain.RecordingModePerPeer)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	_, err = f.service.StartRecording(ctx, "demo", "peer_alice", "")
	require.NoError(t, err)

	_, err = f.service.StartRecording(ctx, "demo", "peer_alice", domain.RecordingModePerPeer)
	assert.ErrorIs(t, err, domain.ErrAlreadyRecording)

	_, err = f.service.StartRecording(ctx, "other", "peer_bob", domain.RecordingModePerPeer)
	assert.ErrorIs(t, err, domain.ErrRecordingCapacity)
}

func TestStopRecording_NotRecording(t *testing.T) {
	f := newRecordingFixture(t, RecordingConfig{}, map[domain.RoomID]*Room{})

	_, err := f.service.StopRecording(context.Background(), "demo")
	assert.ErrorIs(t, err, domain.ErrNotRecording)
}

func TestStopRecording_FiltersUndersizedOutputs(t *testing.T) {
	room := testRoom("demo",
		producingPeer("peer_alice", "alice", domain.MediaKindAudio),
		producingPeer("peer_bob", "bob", domain.MediaKindAudio),
	)
	f := newRecordingFixture(t, RecordingConfig{MinFileSize: 64}, map[domain.RoomID]*Room{"demo": room})
	f.factory.sizes = []int64{2048, 4}
	ctx := context.Background()

	_, err := f.service.StartRecording(ctx, "demo", "peer_alice", domain.RecordingModePerPeer)
	require.NoError(t, err)

	stop, err := f.service.StopRecording(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, stop.Files, 1)
	assert.Equal(t, domain.PeerID("peer_alice"), stop.Files[0].PeerID)
}

func TestOnProducerAdded_AttachesMidSession(t *testing.T) {
	room := testRoom("demo", producingPeer("peer_alice", "alice", domain.MediaKindAudio))
	f := newRecordingFixture(t, RecordingConfig{}, map[domain.RoomID]*Room{"demo": room})
	ctx := context.Background()

	_, err := f.service.StartRecording(ctx, "demo", "peer_alice", domain.RecordingModePerPeer)
	require.NoError(t, err)
	require.Equal(t, 1, f.factory.count())

	late := &fakeProducer{id: "prod_peer_alice_video_late", kind: domain.MediaKindVideo, params: videoParams()}
	room.mu.Lock()
	peer, ok := room.peer("peer_alice")
	require.True(t, ok)
	peer.producers[late.id] = late
	room.mu.Unlock()

	f.service.OnProducerAdded("demo", "peer_alice", late.id)
	assert.Eventually(t, func() bool { return f.factory.count() == 2 }, time.Second, 5*time.Millisecond)
	specs := f.factory.specs()
	assert.True(t, strings.HasSuffix(specs[1].OutputPath, ".webm"))

	// A duplicate notification for the same producer never double-taps.
	f.service.OnProducerAdded("demo", "peer_alice", late.id)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, f.factory.count())

	_, err = f.service.StopRecording(ctx, "demo")
	require.NoError(t, err)
}

func TestOnProducerAdded_IgnoredByCombined(t *testing.T) {
	room := testRoom("demo", producingPeer("peer_alice", "alice", domain.MediaKindAudio))
	f := newRecordingFixture(t, RecordingConfig{}, map[domain.RoomID]*Room{"demo": room})
	ctx := context.Background()

	_, err := f.service.StartRecording(ctx, "demo", "peer_alice", domain.RecordingModeCombined)
	require.NoError(t, err)
	require.Equal(t, 1, f.factory.count())

	late := &fakeProducer{id: "prod_peer_alice_video_late", kind: domain.MediaKindVideo, params: videoParams()}
	room.mu.Lock()
	peer, _ := room.peer("peer_alice")
	peer.producers[late.id] = late
	room.mu.Unlock()

	f.service.OnProducerAdded("demo", "peer_alice", late.id)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.factory.count())
}

func TestAppendTranscript(t *testing.T) {
	room := testRoom("demo", producingPeer("peer_alice", "alice", domain.MediaKindAudio))
	f := newRecordingFixture(t, RecordingConfig{}, map[domain.RoomID]*Room{"demo": room})
	ctx := context.Background()

	// Entries outside a recording are dropped silently.
	f.service.AppendTranscript("demo", domain.TranscriptEntry{PeerID: "peer_alice", Text: "lost"})

	_, err := f.service.StartRecording(ctx, "demo", "peer_alice", domain.RecordingModePerPeer)
	require.NoError(t, err)
	f.service.AppendTranscript("demo", domain.TranscriptEntry{PeerID: "peer_alice", Text: "hello", At: time.Now()})
	f.service.AppendTranscript("demo", domain.TranscriptEntry{PeerID: "peer_alice", Text: "world", At: time.Now()})

	_, err = f.service.StopRecording(ctx, "demo")
	require.NoError(t, err)

	require.Equal(t, 1, f.store.recordingCount())
	transcripts := f.store.recordings[0].Transcripts
	require.Len(t, transcripts, 2)
	assert.Equal(t, "hello", transcripts[0].Text)
}

func TestStopAll(t *testing.T) {
	f := newRecordingFixture(t, RecordingConfig{}, map[domain.RoomID]*Room{
		"alpha": testRoom("alpha", producingPeer("peer_a", "a", domain.MediaKindAudio)),
		"beta":  testRoom("beta", producingPeer("peer_b", "b", domain.MediaKindAudio)),
	})
	ctx := context.Background()

	_, err := f.service.StartRecording(ctx, "alpha", "peer_a", domain.RecordingModePerPeer)
	require.NoError(t, err)
	_, err = f.service.StartRecording(ctx, "beta", "peer_b", domain.RecordingModePerPeer)
	require.NoError(t, err)

	f.service.StopAll(ctx)
	assert.False(t, f.service.IsRecording("alpha"))
	assert.False(t, f.service.IsRecording("beta"))
	assert.Equal(t, 2, f.store.recordingCount())
}

func TestStartRecording_CombinedSpawnFailureAborts(t *testing.T) {
	room := testRoom("demo",
		producingPeer("peer_alice", "alice", domain.MediaKindAudio),
	)
	f := newRecordingFixture(t, RecordingConfig{}, map[domain.RoomID]*Room{"demo": room})
	f.factory.failNew = errors.New("ffmpeg rejected filter graph")

	_, err := f.service.StartRecording(context.Background(), "demo", "peer_alice", domain.RecordingModeCombined)
	require.Error(t, err)
	assert.False(t, f.service.IsRecording("demo"))
	assert.Empty(t, f.notifier.named("recording-started"))

	// The tapped capture transports from the failed attempt are closed.
	router := room.router.(*fakeRouter)
	router.mu.Lock()
	require.NotEmpty(t, router.captures)
	for _, capture := range router.captures {
		capture.mu.Lock()
		assert.True(t, capture.closed)
		capture.mu.Unlock()
	}
	router.mu.Unlock()

	// The aborted attempt does not wedge the room.
	f.factory.failNew = nil
	_, err = f.service.StartRecording(context.Background(), "demo", "peer_alice", domain.RecordingModeCombined)
	require.NoError(t, err)
	assert.True(t, f.service.IsRecording("demo"))
}

func TestStartRecording_ConnectFailureStopsSubprocess(t *testing.T) {
	room := testRoom("demo",
		producingPeer("peer_alice", "alice", domain.MediaKindAudio),
	)
	room.router.(*fakeRouter).captureConnectErr = errors.New("udp dial refused")
	f := newRecordingFixture(t, RecordingConfig{}, map[domain.RoomID]*Room{"demo": room})

	// Per-peer mode degrades to omitting the peer, but the subprocess
	// spawned before the transport failure must not survive it.
	_, err := f.service.StartRecording(context.Background(), "demo", "peer_alice", domain.RecordingModePerPeer)
	require.NoError(t, err)

	require.Equal(t, 1, f.factory.count())
	f.factory.mu.Lock()
	rec := f.factory.recorders[0]
	f.factory.mu.Unlock()
	assert.True(t, rec.wasStarted())
	assert.True(t, rec.wasStopped())
}

func TestStopRecording_DuringStartReapsPipeline(t *testing.T) {
	room := testRoom("demo",
		producingPeer("peer_alice", "alice", domain.MediaKindAudio),
	)
	f := newRecordingFixture(t, RecordingConfig{}, map[domain.RoomID]*Room{"demo": room})
	gate := make(chan struct{})
	f.factory.startGate = gate

	startErr := make(chan error, 1)
	go func() {
		_, err := f.service.StartRecording(context.Background(), "demo", "peer_alice", domain.RecordingModePerPeer)
		startErr <- err
	}()
	require.Eventually(t, func() bool { return f.factory.count() == 1 },
		time.Second, time.Millisecond, "start never reached the spawn")

	// Stop wins while the start is suspended in the subprocess spawn.
	_, err := f.service.StopRecording(context.Background(), "demo")
	require.NoError(t, err)
	assert.False(t, f.service.IsRecording("demo"))

	// The late start must unwind its pipeline, subprocess included,
	// instead of resurrecting the finalized session.
	close(gate)
	assert.ErrorIs(t, <-startErr, domain.ErrNotRecording)
	assert.False(t, f.service.IsRecording("demo"))

	f.factory.mu.Lock()
	rec := f.factory.recorders[0]
	f.factory.mu.Unlock()
	assert.True(t, rec.wasStopped())

	router := room.router.(*fakeRouter)
	router.mu.Lock()
	require.NotEmpty(t, router.captures)
	for _, capture := range router.captures {
		capture.mu.Lock()
		assert.True(t, capture.closed)
		capture.mu.Unlock()
	}
	router.mu.Unlock()
}
