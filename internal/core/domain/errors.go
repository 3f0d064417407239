package domain

import "errors"

var (
	ErrAlreadyStreaming = errors.New("stream already started")
	ErrNotStreaming     = errors.New("stream not started")
	ErrAlreadyRecording = errors.New("recording already active")
	ErrNotRecording     = errors.New("recording not active")
	ErrNoFrame          = errors.New("no recent frame")
	ErrStopped          = errors.New("supervisor stopped")
)
