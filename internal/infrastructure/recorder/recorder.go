package recorder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"roomrelay/internal/core/ports"

	"go.uber.org/zap"
)

// Config holds ffmpeg subprocess configuration
type Config struct {
	// BinaryPath is the ffmpeg executable. Resolved through PATH when
	// it carries no directory component.
	BinaryPath string

	// GracefulTimeout bounds the quit-command stage of Stop before
	// escalating to SIGTERM.
	GracefulTimeout time.Duration

	// KillTimeout bounds the SIGTERM stage before SIGKILL.
	KillTimeout time.Duration

	// ProbeInterval is the poll interval of the readiness probe.
	ProbeInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BinaryPath == "" {
		c.BinaryPath = "ffmpeg"
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = 5 * time.Second
	}
	if c.KillTimeout <= 0 {
		c.KillTimeout = 3 * time.Second
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 50 * time.Millisecond
	}
	return c
}

// Factory builds one ffmpeg recorder per capture spec.
type Factory struct {
	cfg    Config
	logger *zap.SugaredLogger
}

func NewFactory(cfg Config, logger *zap.SugaredLogger) (*Factory, error) {
	cfg = cfg.withDefaults()
	if _, err := exec.LookPath(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("ffmpeg not found at %q: %w", cfg.BinaryPath, err)
	}
	return &Factory{cfg: cfg, logger: logger}, nil
}

func (f *Factory) New(spec ports.CaptureSpec) (ports.Recorder, error) {
	if len(spec.Inputs) == 0 {
		return nil, fmt.Errorf("capture spec for %s has no inputs", spec.RecordingID)
	}
	if spec.OutputPath == "" {
		return nil, fmt.Errorf("capture spec for %s has no output path", spec.RecordingID)
	}
	return &ffmpegRecorder{
		cfg:    f.cfg,
		spec:   spec,
		ready:  make(chan struct{}),
		exited: make(chan error, 1),
		logger: f.logger.With("recording_id", spec.RecordingID, "output", spec.OutputPath),
	}, nil
}

// ffmpegRecorder wraps one ffmpeg process reading RTP off loopback
// ports and muxing to disk.
type ffmpegRecorder struct {
	cfg    Config
	spec   ports.CaptureSpec
	logger *zap.SugaredLogger

	cmd   *exec.Cmd
	stdin io.WriteCloser

	ready     chan struct{}
	readyOnce sync.Once
	exited    chan error
	stopOnce  sync.Once
}

func (r *ffmpegRecorder) OutputPath() string { return r.spec.OutputPath }

// Start writes the session description next to the output file, spawns
// ffmpeg against it and kicks off the readiness probe.
func (r *ffmpegRecorder) Start(ctx context.Context) error {
	sdpBody, err := SynthesizeSDP(r.spec.Inputs)
	if err != nil {
		return err
	}

	sdpPath := r.spec.OutputPath + ".sdp"
	if err := os.WriteFile(sdpPath, []byte(sdpBody), 0o644); err != nil {
		return fmt.Errorf("failed to write session description: %w", err)
	}

	cmd := exec.Command(r.cfg.BinaryPath, buildArgs(r.spec, sdpPath)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	r.cmd = cmd
	r.stdin = stdin
	r.logger.Infow("ffmpeg started", "pid", cmd.Process.Pid, "inputs", len(r.spec.Inputs))

	go r.relayStderr(stderr)
	go r.wait()
	go r.probeReady()
	return nil
}

func (r *ffmpegRecorder) Ready() <-chan struct{} { return r.ready }
func (r *ffmpegRecorder) Exited() <-chan error   { return r.exited }

// Stop walks the quit, SIGTERM, SIGKILL escalation and returns once
// the process is gone.
func (r *ffmpegRecorder) Stop(ctx context.Context) error {
	if r.cmd == nil {
		return nil
	}

	var stopErr error
	r.stopOnce.Do(func() {
		select {
		case <-r.exited:
			return
		default:
		}

		// ffmpeg finalizes container indexes on the quit command, so
		// give it the clean path first.
		if _, err := io.WriteString(r.stdin, "q"); err == nil {
			select {
			case <-r.exited:
				return
			case <-ctx.Done():
			case <-time.After(r.cfg.GracefulTimeout):
				r.logger.Warnw("ffmpeg ignored quit command, sending SIGTERM")
			}
		}

		if err := r.cmd.Process.Signal(syscall.SIGTERM); err == nil {
			select {
			case <-r.exited:
				return
			case <-ctx.Done():
			case <-time.After(r.cfg.KillTimeout):
				r.logger.Warnw("ffmpeg ignored SIGTERM, killing")
			}
		}

		if err := r.cmd.Process.Kill(); err != nil && !isProcessDone(err) {
			stopErr = fmt.Errorf("failed to kill ffmpeg: %w", err)
			return
		}
		<-r.exited
	})
	return stopErr
}

func (r *ffmpegRecorder) wait() {
	err := r.cmd.Wait()
	if err != nil {
		r.logger.Warnw("ffmpeg exited with error", "error", err)
		r.exited <- err
	} else {
		r.logger.Infow("ffmpeg exited cleanly")
	}
	close(r.exited)
}

// probeReady detects when ffmpeg has bound its capture ports by trying
// to bind them itself: once every port refuses us, ffmpeg owns them
// and packets can flow.
func (r *ffmpegRecorder) probeReady() {
	ticker := time.NewTicker(r.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.exited:
			return
		case <-ticker.C:
		}

		bound := true
		for _, in := range r.spec.Inputs {
			if !portTaken(in.Port) {
				bound = false
				break
			}
		}
		if bound {
			r.readyOnce.Do(func() {
				r.logger.Debugw("ffmpeg listening on capture ports")
				close(r.ready)
			})
			return
		}
	}
}

func (r *ffmpegRecorder) relayStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		r.logger.Debugw("ffmpeg", "line", scanner.Text())
	}
}

// portTaken reports whether something already listens on the loopback
// UDP port.
func portTaken(port int) bool {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		return true
	}
	conn.Close()
	return false
}

func isProcessDone(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}
