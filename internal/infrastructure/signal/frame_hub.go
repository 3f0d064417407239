package signal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"camward/internal/core/ports"
	"camward/pkg/optimize"
	"camward/pkg/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// FrameMessage is the push format for live preview frames.
type FrameMessage struct {
	Type       string `json:"type"`
	Image      string `json:"image"`
	Sequence   uint64 `json:"sequence"`
	CapturedAt int64  `json:"captured_at"`
}

type HubConfig struct {
	// FrameInterval is the push cadence, normally 1/frame-rate.
	FrameInterval time.Duration
	PingInterval  time.Duration
	PongTimeout   time.Duration
	WriteTimeout  time.Duration
	SendBuffer    int
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		FrameInterval: time.Second,
		PingInterval:  30 * time.Second,
		PongTimeout:   60 * time.Second,
		WriteTimeout:  10 * time.Second,
		SendBuffer:    16,
	}
}

type viewer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// FrameHub pushes the supervisor's latest frame to every connected
// WebSocket viewer. Viewers that cannot keep up lose frames, never
// block the broadcast.
type FrameHub struct {
	cfg        HubConfig
	supervisor ports.Supervisor
	buffers    *optimize.BufferPool
	logger     *zap.SugaredLogger

	viewers map[string]*viewer
	mu      sync.RWMutex

	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func NewFrameHub(cfg HubConfig, supervisor ports.Supervisor, logger *zap.SugaredLogger) *FrameHub {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 16
	}
	return &FrameHub{
		cfg:        cfg,
		supervisor: supervisor,
		buffers:    optimize.NewBufferPool(1 << 20),
		logger:     logger,
		viewers:    make(map[string]*viewer),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the broadcast loop. While the supervisor reports no
// fresh frame nothing is pushed, so the loop is idle-safe.
func (h *FrameHub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()
	go h.broadcastLoop(ctx)
}

func (h *FrameHub) Stop() {
	h.mu.Lock()
	started := h.started
	h.mu.Unlock()
	if !started {
		return
	}
	h.stopOnce.Do(func() { close(h.stopCh) })
	<-h.done

	h.mu.Lock()
	viewers := make([]*viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mu.Unlock()
	for _, v := range viewers {
		v.conn.Close()
	}
}

func (h *FrameHub) broadcastLoop(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(h.cfg.FrameInterval)
	defer ticker.Stop()

	var lastSequence uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			lastSequence = h.pushLatest(lastSequence)
		}
	}
}

// pushLatest broadcasts the current frame unless it is absent, stale or
// already pushed. Returns the sequence of the last pushed frame.
func (h *FrameHub) pushLatest(lastSequence uint64) uint64 {
	if h.ViewerCount() == 0 {
		return lastSequence
	}

	frame, err := h.supervisor.CurrentFrame()
	if err != nil {
		return lastSequence
	}
	if frame.Sequence == lastSequence {
		return lastSequence
	}

	payload, err := h.encodeFrame(frame.Data, frame.Sequence, frame.CapturedAt)
	if err != nil {
		h.logger.Errorw("failed to encode frame message", "error", err)
		return lastSequence
	}

	h.mu.RLock()
	dropped := 0
	for _, v := range h.viewers {
		select {
		case v.send <- payload:
		default:
			dropped++
		}
	}
	h.mu.RUnlock()

	if dropped > 0 {
		h.logger.Debugw("dropped frame for slow viewers", "count", dropped, "sequence", frame.Sequence)
	}
	return frame.Sequence
}

func (h *FrameHub) encodeFrame(data []byte, sequence uint64, capturedAt time.Time) ([]byte, error) {
	buf := h.buffers.Get()
	defer h.buffers.Put(buf)

	enc := base64.NewEncoder(base64.StdEncoding, buf)
	enc.Write(data)
	enc.Close()

	return json.Marshal(FrameMessage{
		Type:       "video_frame",
		Image:      buf.String(),
		Sequence:   sequence,
		CapturedAt: capturedAt.Unix(),
	})
}

// HandleFrames upgrades the request and serves the viewer until it
// disconnects. Blocks for the lifetime of the connection.
func (h *FrameHub) HandleFrames(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	v := &viewer{
		id:   utils.GenerateViewerID(),
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
	}

	h.mu.Lock()
	h.viewers[v.id] = v
	count := len(h.viewers)
	h.mu.Unlock()
	h.logger.Infow("viewer connected", "viewer_id", v.id, "viewers", count)

	writerDone := make(chan struct{})
	go h.writeLoop(v, writerDone)

	conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		return nil
	})

	// Viewers only consume; the read loop exists to run control frames
	// and to notice the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Infow("viewer read failed", "viewer_id", v.id, "error", err)
			}
			break
		}
	}

	h.mu.Lock()
	delete(h.viewers, v.id)
	count = len(h.viewers)
	h.mu.Unlock()

	close(v.send)
	<-writerDone
	h.logger.Infow("viewer disconnected", "viewer_id", v.id, "viewers", count)
}

func (h *FrameHub) writeLoop(v *viewer, done chan<- struct{}) {
	defer close(done)

	pingTicker := time.NewTicker(h.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case payload, ok := <-v.send:
			if !ok {
				v.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
				v.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			v.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := v.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debugw("viewer write failed", "viewer_id", v.id, "error", err)
				v.conn.Close()
				return
			}
		case <-pingTicker.C:
			v.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				v.conn.Close()
				return
			}
		}
	}
}

func (h *FrameHub) ViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

func (h *FrameHub) ViewerIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.viewers))
	for id := range h.viewers {
		ids = append(ids, id)
	}
	return ids
}
