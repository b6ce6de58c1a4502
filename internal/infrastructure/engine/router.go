package engine

import (
	"context"
	"fmt"
	"sync"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
	"roomrelay/pkg/utils"
)

// router is the per-room routing context. It owns the producer
// registry consumers are matched against, and tears down every
// transport when the room closes.
type router struct {
	id  string
	eng *Engine

	mu         sync.RWMutex
	producers  map[string]*producer
	transports map[string]*webrtcTransport
	captures   map[string]*captureTransport
	closed     bool
}

func newRouter(eng *Engine) *router {
	return &router{
		id:         utils.GenerateID("router"),
		eng:        eng,
		producers:  make(map[string]*producer),
		transports: make(map[string]*webrtcTransport),
		captures:   make(map[string]*captureTransport),
	}
}

func (r *router) ID() string { return r.id }

func (r *router) CreateTransport(ctx context.Context, direction domain.TransportDirection) (ports.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("router %s is closed", r.id)
	}

	t, err := newTransport(ctx, r, direction)
	if err != nil {
		return nil, err
	}
	r.transports[t.ID()] = t
	return t, nil
}

func (r *router) CreateCaptureTransport(ctx context.Context) (ports.CaptureTransport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("router %s is closed", r.id)
	}

	t := newCaptureTransport(r)
	r.captures[t.ID()] = t
	return t, nil
}

// CanConsume reports whether the producer exists and its codec is in
// the consumer's capability set.
func (r *router) CanConsume(producerID string, caps domain.RTPCapabilities) bool {
	r.mu.RLock()
	p, ok := r.producers[producerID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return caps.SupportsMime(p.params.Codec.MimeType)
}

func (r *router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	transports := make([]*webrtcTransport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	captures := make([]*captureTransport, 0, len(r.captures))
	for _, t := range r.captures {
		captures = append(captures, t)
	}
	r.mu.Unlock()

	for _, t := range captures {
		if err := t.Close(); err != nil {
			r.eng.logger.Warnw("failed to close capture transport", "router_id", r.id, "transport_id", t.ID(), "error", err)
		}
	}
	for _, t := range transports {
		if err := t.Close(); err != nil {
			r.eng.logger.Warnw("failed to close transport", "router_id", r.id, "transport_id", t.ID(), "error", err)
		}
	}

	r.eng.releaseSlot()
	r.eng.logger.Debugw("router closed", "router_id", r.id)
	return nil
}

func (r *router) registerProducer(p *producer) {
	r.mu.Lock()
	r.producers[p.id] = p
	r.mu.Unlock()
}

func (r *router) unregisterProducer(id string) {
	r.mu.Lock()
	delete(r.producers, id)
	r.mu.Unlock()
}

func (r *router) producer(id string) (*producer, bool) {
	r.mu.RLock()
	p, ok := r.producers[id]
	r.mu.RUnlock()
	return p, ok
}

func (r *router) dropTransport(id string) {
	r.mu.Lock()
	delete(r.transports, id)
	delete(r.captures, id)
	r.mu.Unlock()
}
