package services

import (
	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
)

// CapabilityRegistry caches the codec set the engine negotiated at
// startup. The set never changes afterwards, so every room shares one
// read-only snapshot.
type CapabilityRegistry struct {
	caps domain.RTPCapabilities
}

func NewCapabilityRegistry(engine ports.Engine) *CapabilityRegistry {
	return &CapabilityRegistry{caps: engine.Capabilities()}
}

// Capabilities returns a defensive copy of the negotiated codec set.
func (r *CapabilityRegistry) Capabilities() domain.RTPCapabilities {
	out := domain.RTPCapabilities{Codecs: make([]domain.RTPCodec, len(r.caps.Codecs))}
	copy(out.Codecs, r.caps.Codecs)
	return out
}

// Compatible reports whether a client capability set can consume a
// stream encoded with the given parameters.
func (r *CapabilityRegistry) Compatible(caps domain.RTPCapabilities, params domain.RTPParameters) bool {
	return caps.SupportsMime(params.Codec.MimeType)
}
