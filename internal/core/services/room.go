package services

import (
	"sync"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"

	"github.com/elliotchance/orderedmap/v2"
)

// Peer is the runtime state of one connected participant. All mutable
// fields are guarded by the owning Room's lock.
type Peer struct {
	ID       domain.PeerID
	Info     domain.PeerInfo
	JoinedAt time.Time
	IsHost   bool

	transports map[string]ports.Transport
	producers  map[string]ports.Producer
	consumers  map[string]ports.Consumer
}

func newPeer(id domain.PeerID, info domain.PeerInfo) *Peer {
	return &Peer{
		ID:         id,
		Info:       info,
		JoinedAt:   time.Now(),
		transports: make(map[string]ports.Transport),
		producers:  make(map[string]ports.Producer),
		consumers:  make(map[string]ports.Consumer),
	}
}

// closeMedia tears down everything the peer owns, consumers first so no
// consumer outlives its transport.
func (p *Peer) closeMedia() {
	for id, c := range p.consumers {
		c.Close()
		delete(p.consumers, id)
	}
	for id, prod := range p.producers {
		prod.Close()
		delete(p.producers, id)
	}
	for id, t := range p.transports {
		t.Close()
		delete(p.transports, id)
	}
}

func (p *Peer) summary() domain.PeerSummary {
	return domain.PeerSummary{
		ID:       p.ID,
		Username: p.Info.Username,
		IsHost:   p.IsHost,
		JoinedAt: p.JoinedAt,
	}
}

// Room is the runtime state of one active room: its routing context,
// its peers in join order, and the bookkeeping the registry needs. A
// single mutex serializes every mutation of the room; rooms never block
// on one another.
type Room struct {
	ID       domain.RoomID
	password string

	mu      sync.Mutex
	router  ports.Router
	hostID  domain.PeerID
	peers   *orderedmap.OrderedMap[domain.PeerID, *Peer]
	session *domain.Session

	evictTimer *time.Timer
	closed     bool
}

func newRoom(id domain.RoomID, password string, router ports.Router) *Room {
	return &Room{
		ID:       id,
		password: password,
		router:   router,
		peers:    orderedmap.NewOrderedMap[domain.PeerID, *Peer](),
	}
}

// peer returns the peer by id. Caller holds r.mu.
func (r *Room) peer(id domain.PeerID) (*Peer, bool) {
	return r.peers.Get(id)
}

// findProducer locates a producer anywhere in the room. Caller holds r.mu.
func (r *Room) findProducer(producerID string) (*Peer, ports.Producer, bool) {
	for el := r.peers.Front(); el != nil; el = el.Next() {
		if prod, ok := el.Value.producers[producerID]; ok {
			return el.Value, prod, true
		}
	}
	return nil, nil, false
}

// electHost picks the non-recorder peer with the earliest join
// timestamp; insertion order breaks ties. Caller holds r.mu.
func (r *Room) electHost() (*Peer, bool) {
	var best *Peer
	for el := r.peers.Front(); el != nil; el = el.Next() {
		p := el.Value
		if p.Info.Recorder {
			continue
		}
		if best == nil || p.JoinedAt.Before(best.JoinedAt) {
			best = p
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// migrateHost reassigns the host after the current host left. Caller
// holds r.mu. Returns the new host id and whether one was assigned.
func (r *Room) migrateHost() (domain.PeerID, bool) {
	next, ok := r.electHost()
	if !ok {
		r.hostID = ""
		return "", false
	}
	r.hostID = next.ID
	next.IsHost = true
	return next.ID, true
}

// peerSummaries lists all peers except the given one. Caller holds r.mu.
func (r *Room) peerSummaries(except domain.PeerID) []domain.PeerSummary {
	out := make([]domain.PeerSummary, 0, r.peers.Len())
	for el := r.peers.Front(); el != nil; el = el.Next() {
		if el.Key == except {
			continue
		}
		out = append(out, el.Value.summary())
	}
	return out
}

// producerSummaries lists every active producer except the given
// peer's, so a joiner can resync its consumer set. Caller holds r.mu.
func (r *Room) producerSummaries(except domain.PeerID) []domain.ProducerSummary {
	var out []domain.ProducerSummary
	for el := r.peers.Front(); el != nil; el = el.Next() {
		if el.Key == except {
			continue
		}
		for id, prod := range el.Value.producers {
			out = append(out, domain.ProducerSummary{
				PeerID:     el.Key,
				ProducerID: id,
				Kind:       prod.Kind(),
			})
		}
	}
	return out
}

// captureTarget is a read-only borrow of one peer's producers for the
// recording orchestrator. The orchestrator never mutates peer state.
type captureTarget struct {
	peerID    domain.PeerID
	username  string
	producers []ports.Producer
}

// captureTargets snapshots every non-recorder peer that has at least
// one producer. Caller holds r.mu.
func (r *Room) captureTargets() []captureTarget {
	var out []captureTarget
	for el := r.peers.Front(); el != nil; el = el.Next() {
		p := el.Value
		if p.Info.Recorder || len(p.producers) == 0 {
			continue
		}
		t := captureTarget{peerID: p.ID, username: p.Info.Username}
		for _, prod := range p.producers {
			t.producers = append(t.producers, prod)
		}
		out = append(out, t)
	}
	return out
}

func (r *Room) cancelEvictionLocked() {
	if r.evictTimer != nil {
		r.evictTimer.Stop()
		r.evictTimer = nil
	}
}
