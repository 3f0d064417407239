package domain

import (
	"fmt"
	"net/url"
	"time"
)

type SessionID string

// StreamTarget describes the camera stream a supervisor pulls from.
// It is built once from configuration and never mutated.
type StreamTarget struct {
	URL               string
	Transport         string // "tcp" or "udp"
	ConnectTimeout    time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

// Redacted returns the target URL with any password stripped, safe for logs.
func (t StreamTarget) Redacted() string {
	u, err := url.Parse(t.URL)
	if err != nil {
		return "(unparsable url)"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.String()
}

// CameraAddress holds the component form of an RTSP camera endpoint
// (Amcrest-style). BuildURL assembles the full stream URL from it.
type CameraAddress struct {
	Username string
	Password string
	Host     string
	Port     int
	Channel  int
	Subtype  int // 0 = main stream, 1 = sub stream
}

func (a CameraAddress) BuildURL() string {
	return fmt.Sprintf("rtsp://%s:%s@%s:%d/cam/realmonitor?channel=%d&subtype=%d",
		a.Username, a.Password, a.Host, a.Port, a.Channel, a.Subtype)
}

type SupervisorPhase string

const (
	PhaseIdle     SupervisorPhase = "idle"
	PhaseStarting SupervisorPhase = "starting"
	PhaseRunning  SupervisorPhase = "running"
	PhaseStopping SupervisorPhase = "stopping"
)

// StreamStatus is the snapshot exposed to the web layer. Connected reflects
// subprocess liveness, not stream content validity.
type StreamStatus struct {
	Streaming bool `json:"streaming"`
	Recording bool `json:"recording"`
	Connected bool `json:"connected"`
}
