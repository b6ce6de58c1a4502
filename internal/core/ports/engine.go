package ports

import (
	"context"

	"roomrelay/internal/core/domain"
)

// Engine is the media-routing engine boundary. The engine is treated as
// a correct black box: it negotiates capabilities once, hands out
// routers, and reports its own death on Fatal.
type Engine interface {
	// Capabilities returns the codec set negotiated at startup. The
	// result is immutable for the engine's lifetime.
	Capabilities() domain.RTPCapabilities

	// CreateRouter allocates a routing context. Routers are expensive;
	// callers should prefer the pre-warmed pool.
	CreateRouter(ctx context.Context) (Router, error)

	// Fatal is closed (after sending the cause) if the engine's core
	// process dies. All router state is invalid at that point and the
	// process must exit.
	Fatal() <-chan error

	Close() error
}

// Router is the per-room routing context interconnecting peers.
type Router interface {
	ID() string

	// CreateTransport allocates a client-facing transport.
	CreateTransport(ctx context.Context, direction domain.TransportDirection) (Transport, error)

	// CreateCaptureTransport allocates a server-internal plain RTP
	// transport bound to loopback, used only by the recording pipeline.
	CreateCaptureTransport(ctx context.Context) (CaptureTransport, error)

	// CanConsume is the compatibility predicate gating consumer
	// creation against a producer's encoding.
	CanConsume(producerID string, caps domain.RTPCapabilities) bool

	// Close destroys the routing context and everything attached to it.
	// Must be called exactly once, after the room left the registry.
	Close() error
}

// TransportInfo carries the connection parameters a client needs to
// reach a transport. SDP is the transport's current local offer; it
// changes when consumers are added and the transport renegotiates.
type TransportInfo struct {
	ID             string                   `json:"id"`
	SDP            string                   `json:"sdp,omitempty"`
	ICEParameters  map[string]string        `json:"iceParameters,omitempty"`
	ICECandidates  []map[string]interface{} `json:"iceCandidates,omitempty"`
	DTLSParameters domain.DTLSParameters    `json:"dtlsParameters,omitempty"`
}

// Transport is a client-facing send or receive transport.
type Transport interface {
	ID() string
	Info() TransportInfo

	// Connect applies the client's answer to the transport's current
	// offer. It is called again after renegotiation, so repeat calls
	// are allowed.
	Connect(ctx context.Context, dtls domain.DTLSParameters) error

	// Produce registers the peer's outbound stream of the given kind.
	Produce(ctx context.Context, kind domain.MediaKind, params domain.RTPParameters) (Producer, error)

	// Consume attaches an inbound view of a remote producer. Consumers
	// are created paused and must be resumed explicitly.
	Consume(ctx context.Context, producerID string, caps domain.RTPCapabilities) (Consumer, error)

	Close() error
}

// CaptureTransport siphons a producer's RTP to a local UDP endpoint. It
// is never exposed to clients; the recording session owns it.
type CaptureTransport interface {
	ID() string

	// Connect points the transport at the subprocess's listen address
	// and starts the packet flow for resumed consumers. Per the
	// recording sequence this must only be called once the subprocess
	// is listening.
	Connect(ctx context.Context, ip string, port int) error

	// Consume taps the producer. The consumer starts paused.
	Consume(ctx context.Context, producerID string, caps domain.RTPCapabilities) (Consumer, error)

	Close() error
}

// Producer is one peer's outbound stream of a given kind.
type Producer interface {
	ID() string
	Kind() domain.MediaKind
	Parameters() domain.RTPParameters
	Close() error
}

// Consumer is one transport's inbound view of a remote producer.
type Consumer interface {
	ID() string
	Kind() domain.MediaKind
	ProducerID() string
	Parameters() domain.RTPParameters
	Paused() bool
	Pause() error
	Resume() error
	Close() error
}
