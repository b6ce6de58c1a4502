package domain

import "strings"

type RoomID string
type PeerID string
type SessionID string
type RecordingID string

// MediaKind distinguishes the two stream kinds a peer can produce.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// RTPCodec describes one codec the engine can route.
type RTPCodec struct {
	MimeType    string            `json:"mimeType"`
	PayloadType uint8             `json:"payloadType"`
	ClockRate   int               `json:"clockRate"`
	Channels    int               `json:"channels,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// Kind derives the media kind from the codec mime type ("audio/opus" -> audio).
func (c RTPCodec) Kind() MediaKind {
	if strings.HasPrefix(strings.ToLower(c.MimeType), "audio/") {
		return MediaKindAudio
	}
	return MediaKindVideo
}

// RTPCapabilities is the codec set a router or client endpoint supports.
type RTPCapabilities struct {
	Codecs []RTPCodec `json:"codecs"`
}

// SupportsMime reports whether the capability set contains the given mime type.
func (caps RTPCapabilities) SupportsMime(mimeType string) bool {
	for _, c := range caps.Codecs {
		if strings.EqualFold(c.MimeType, mimeType) {
			return true
		}
	}
	return false
}

// CodecForKind returns the first codec of the given kind, if any.
func (caps RTPCapabilities) CodecForKind(kind MediaKind) (RTPCodec, bool) {
	for _, c := range caps.Codecs {
		if c.Kind() == kind {
			return c, true
		}
	}
	return RTPCodec{}, false
}

// RTPParameters describes one concrete stream: the codec in use plus its SSRC.
type RTPParameters struct {
	Codec RTPCodec `json:"codec"`
	SSRC  uint32   `json:"ssrc,omitempty"`
	CNAME string   `json:"cname,omitempty"`
}

// DTLSParameters is the client half of the transport security
// handshake. SDP carries the client's answer to the transport's offer;
// the fingerprint list is informational and may be empty when the
// answer already embeds it.
type DTLSParameters struct {
	Role         string            `json:"role,omitempty"`
	SDP          string            `json:"sdp,omitempty"`
	Fingerprints []DTLSFingerprint `json:"fingerprints,omitempty"`
}

type DTLSFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// TransportDirection tells the engine which way media will flow on a
// client transport.
type TransportDirection string

const (
	DirectionSend TransportDirection = "send"
	DirectionRecv TransportDirection = "recv"
)
