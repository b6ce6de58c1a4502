package ports

import (
	"context"

	"roomrelay/internal/core/domain"
)

// CaptureInput declares one RTP stream the subprocess must listen for.
// Ports are allocated by the orchestrator before the subprocess spawns
// so the session description can enumerate every input up front.
type CaptureInput struct {
	PeerID      domain.PeerID
	Kind        domain.MediaKind
	Port        int
	PayloadType uint8
	CodecName   string
	ClockRate   int
	Channels    int
}

// CaptureSpec is the contract handed to a muxing subprocess: what to
// listen for and where to write.
type CaptureSpec struct {
	RecordingID domain.RecordingID
	Inputs      []CaptureInput
	OutputPath  string
	// Combined selects the single-subprocess mix/tile strategy.
	Combined bool
}

// Recorder wraps one transcoding/muxing subprocess.
type Recorder interface {
	// Start spawns the subprocess. It returns once the process is
	// running; readiness of the capture ports is signalled separately.
	Start(ctx context.Context) error

	// Ready is closed when the subprocess is listening on its capture
	// ports. Implementations should prefer an explicit handshake; a
	// bounded grace delay is only the fallback.
	Ready() <-chan struct{}

	// Exited is closed when the subprocess terminates, delivering its
	// exit error first if it failed.
	Exited() <-chan error

	// Stop drives the graceful-quit, terminate, kill escalation. It
	// returns once the process has exited and never hangs beyond the
	// configured escalation bounds.
	Stop(ctx context.Context) error

	OutputPath() string
}

// RecorderFactory builds one Recorder per capture spec.
type RecorderFactory interface {
	New(spec CaptureSpec) (Recorder, error)
}
