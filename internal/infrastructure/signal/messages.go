package signal

import (
	"encoding/json"
	"errors"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/services"
	apperrors "roomrelay/pkg/errors"
)

// Request is one client command. IDs are client-chosen and echoed back
// so responses can be matched to in-flight requests.
type Request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Response answers exactly one request.
type Response struct {
	ID    uint64      `json:"id"`
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error *ErrorInfo  `json:"error,omitempty"`
}

// Broadcast is a server-initiated room event. It carries no ID.
type Broadcast struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type joinRoomPayload struct {
	RoomID   domain.RoomID `json:"roomId"`
	Username string        `json:"username"`
	Password string        `json:"password,omitempty"`
	Token    string        `json:"token,omitempty"`
	Recorder bool          `json:"recorder,omitempty"`
}

type createTransportPayload struct {
	Direction domain.TransportDirection `json:"direction"`
}

type connectTransportPayload struct {
	TransportID    string                `json:"transportId"`
	DTLSParameters domain.DTLSParameters `json:"dtlsParameters"`
}

type producePayload struct {
	TransportID   string               `json:"transportId"`
	Kind          domain.MediaKind     `json:"kind"`
	RTPParameters domain.RTPParameters `json:"rtpParameters"`
}

type consumePayload struct {
	TransportID     string                 `json:"transportId"`
	ProducerID      string                 `json:"producerId"`
	RTPCapabilities domain.RTPCapabilities `json:"rtpCapabilities"`
}

type resumeConsumerPayload struct {
	ConsumerID string `json:"consumerId"`
}

type chatMessagePayload struct {
	Text string `json:"text"`
}

type transcriptPayload struct {
	Text string `json:"text"`
}

type createPollPayload struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

type startRecordingPayload struct {
	Mode domain.RecordingMode `json:"mode,omitempty"`
}

// errorInfo maps service errors onto the wire codes clients switch on.
func errorInfo(err error) *ErrorInfo {
	code := apperrors.ErrCodeInternal
	switch {
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrPeerNotFound),
		errors.Is(err, domain.ErrTransportNotFound),
		errors.Is(err, domain.ErrProducerNotFound),
		errors.Is(err, domain.ErrConsumerNotFound):
		code = apperrors.ErrCodeNotFound
	case errors.Is(err, domain.ErrInvalidPassword):
		code = apperrors.ErrCodeInvalidPassword
	case errors.Is(err, domain.ErrIncompatibleCapabilities):
		code = apperrors.ErrCodeIncompatible
	case errors.Is(err, domain.ErrAlreadyRecording):
		code = apperrors.ErrCodeAlreadyRecording
	case errors.Is(err, domain.ErrNotRecording):
		code = apperrors.ErrCodeNotRecording
	case errors.Is(err, domain.ErrRecordingCapacity),
		errors.Is(err, domain.ErrResourceExhausted):
		code = apperrors.ErrCodeCapacityExceeded
	case errors.Is(err, services.ErrInvalidToken),
		errors.Is(err, services.ErrExpiredToken):
		code = apperrors.ErrCodeUnauthorized
	default:
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			code = appErr.Code
		}
	}
	return &ErrorInfo{Code: string(code), Message: err.Error()}
}
