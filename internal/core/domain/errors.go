package domain

import "errors"

var (
	ErrRoomNotFound             = errors.New("room not found")
	ErrPeerNotFound             = errors.New("peer not found")
	ErrTransportNotFound        = errors.New("transport not found")
	ErrProducerNotFound         = errors.New("producer not found")
	ErrConsumerNotFound         = errors.New("consumer not found")
	ErrInvalidPassword          = errors.New("invalid room password")
	ErrIncompatibleCapabilities = errors.New("incompatible rtp capabilities")
	ErrAlreadyRecording         = errors.New("room is already being recorded")
	ErrNotRecording             = errors.New("room is not being recorded")
	ErrRecordingCapacity        = errors.New("concurrent recording capacity exceeded")
	ErrResourceExhausted        = errors.New("router allocation failed")
	ErrEngineFatal              = errors.New("media engine died")
)
