package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config holds media engine configuration
type Config struct {
	// WorkerCount caps the number of live routers. Each router owns
	// its peer connections and forwarding goroutines, so this is the
	// engine's concurrency budget.
	WorkerCount int

	PortRange struct {
		Min uint16
		Max uint16
	}

	ICEServers []string
}

// Engine is the pion-backed implementation of ports.Engine. It runs
// in-process: routers, transports and forwarders are plain goroutines
// sharing one webrtc.API.
type Engine struct {
	cfg        Config
	api        *webrtc.API
	caps       domain.RTPCapabilities
	iceServers []webrtc.ICEServer

	slots chan struct{}

	pcFailures atomic.Int32

	fatal     chan error
	fatalOnce sync.Once

	closed    chan struct{}
	closeOnce sync.Once

	logger *zap.SugaredLogger
}

// New builds the engine: one media engine with the fixed codec set,
// one setting engine pinning the UDP port range.
func New(cfg Config, logger *zap.SugaredLogger) (*Engine, error) {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 16
	}

	media := &webrtc.MediaEngine{}
	if err := registerCodecs(media); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	setting := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		if err := setting.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max); err != nil {
			return nil, fmt.Errorf("invalid port range: %w", err)
		}
	}

	var iceServers []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		iceServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	return &Engine{
		cfg:        cfg,
		api:        webrtc.NewAPI(webrtc.WithMediaEngine(media), webrtc.WithSettingEngine(setting)),
		caps:       defaultCapabilities(),
		iceServers: iceServers,
		slots:      make(chan struct{}, cfg.WorkerCount),
		fatal:      make(chan error, 1),
		closed:     make(chan struct{}),
		logger:     logger,
	}, nil
}

// Capabilities returns the codec set negotiated at startup.
func (e *Engine) Capabilities() domain.RTPCapabilities {
	return e.caps
}

// CreateRouter allocates a routing context, taking one worker slot.
// The slot is returned when the router closes.
func (e *Engine) CreateRouter(ctx context.Context) (ports.Router, error) {
	select {
	case <-e.closed:
		return nil, fmt.Errorf("engine is closed")
	default:
	}

	select {
	case e.slots <- struct{}{}:
	default:
		return nil, fmt.Errorf("router limit (%d) reached: %w", e.cfg.WorkerCount, domain.ErrResourceExhausted)
	}

	r := newRouter(e)
	e.logger.Debugw("router created", "router_id", r.ID())
	return r, nil
}

// Fatal reports the engine's own death. The in-process engine has no
// separate worker to crash, so this only fires on internal failures
// reported through fail.
func (e *Engine) Fatal() <-chan error {
	return e.fatal
}

func (e *Engine) fail(err error) {
	e.fatalOnce.Do(func() {
		e.logger.Errorw("engine fatal", "error", err)
		e.fatal <- err
		close(e.fatal)
	})
}

// maxConsecutivePCFailures is how many peer connection allocations may
// fail in a row before the shared webrtc.API is considered broken.
const maxConsecutivePCFailures = 5

// peerConnectionFailed tracks consecutive allocation failures. The API
// and its port range are shared state, so a run of failures means the
// engine itself cannot serve transports anymore.
func (e *Engine) peerConnectionFailed(err error) {
	if e.pcFailures.Add(1) >= maxConsecutivePCFailures {
		e.fail(fmt.Errorf("peer connection allocation failing repeatedly: %w", err))
	}
}

func (e *Engine) peerConnectionCreated() {
	e.pcFailures.Store(0)
}

func (e *Engine) Close() error {
	e.closeOnce.Do(func() { close(e.closed) })
	return nil
}

func (e *Engine) releaseSlot() {
	select {
	case <-e.slots:
	default:
	}
}

func registerCodecs(m *webrtc.MediaEngine) error {
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return err
	}

	return m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo)
}

func defaultCapabilities() domain.RTPCapabilities {
	return domain.RTPCapabilities{
		Codecs: []domain.RTPCodec{
			{
				MimeType:    "audio/opus",
				PayloadType: 111,
				ClockRate:   48000,
				Channels:    2,
				Parameters:  map[string]string{"minptime": "10", "useinbandfec": "1"},
			},
			{
				MimeType:    "video/VP8",
				PayloadType: 96,
				ClockRate:   90000,
			},
		},
	}
}
