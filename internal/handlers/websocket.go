package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Brownie44l1/digit-api/internal/app"
	"github.com/Brownie44l1/digit-api/internal/logger"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	maxEvent   = 1024
	sendBuffer = 256
)

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SessionConfig is shared by every interactive session.
type SessionConfig struct {
	CanvasSize   int
	BrushWidth   int
	DefaultModel string
}

// Sessions serves interactive drawing sessions. Each websocket connection
// gets its own controller, canvas and model handle.
type Sessions struct {
	loader app.Loader
	prep   *preprocess.Preprocessor
	models ModelLister
	cfg    SessionConfig
	logger *logger.Logger

	mu     sync.RWMutex
	active map[string]*app.Controller
}

func NewSessions(loader app.Loader, prep *preprocess.Preprocessor, models ModelLister, cfg SessionConfig, logger *logger.Logger) *Sessions {
	return &Sessions{
		loader: loader,
		prep:   prep,
		models: models,
		cfg:    cfg,
		logger: logger,
		active: make(map[string]*app.Controller),
	}
}

// Count returns the number of connected sessions.
func (s *Sessions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// Close shuts down every session's controller.
func (s *Sessions) Close() {
	s.mu.Lock()
	controllers := make([]*app.Controller, 0, len(s.active))
	for id, c := range s.active {
		controllers = append(controllers, c)
		delete(s.active, id)
	}
	s.mu.Unlock()

	for _, c := range controllers {
		c.Close()
	}
}

type outMessage struct {
	Type    string    `json:"type"`
	Session string    `json:"session,omitempty"`
	State   *app.View `json:"state,omitempty"`
	Notice  string    `json:"notice,omitempty"`
	Message string    `json:"message,omitempty"`
	Models  []string  `json:"models,omitempty"`
	Filter  string    `json:"filter,omitempty"`
	Size    int       `json:"size,omitempty"`
	Brush   int       `json:"brush,omitempty"`
}

// wsReporter queues messages for the connection's writer goroutine. Report
// and Notify run under the controller lock, so they never touch the socket.
type wsReporter struct {
	id     string
	out    chan outMessage
	write  func(outMessage) error
	logger *logger.Logger
}

func newWSReporter(id string, conn *websocket.Conn, logger *logger.Logger) *wsReporter {
	return &wsReporter{
		id:  id,
		out: make(chan outMessage, sendBuffer),
		write: func(msg outMessage) error {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			return conn.WriteJSON(msg)
		},
		logger: logger,
	}
}

func (r *wsReporter) Report(st app.State) {
	v := st.View()
	r.send(outMessage{Type: "state", Session: r.id, State: &v, Message: st.Message})
}

func (r *wsReporter) Notify(n app.Notice) {
	r.send(outMessage{Type: "notice", Session: r.id, Notice: n.Kind.String(), Message: n.Message})
}

// send drops msg when the client has stopped draining the queue.
func (r *wsReporter) send(msg outMessage) {
	select {
	case r.out <- msg:
	default:
		r.logger.Warning("Session %s: send queue full, dropping %s message", r.id, msg.Type)
	}
}

// run is the only goroutine writing data frames; gorilla allows one
// concurrent writer.
func (r *wsReporter) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.out:
			if err := r.write(msg); err != nil {
				r.logger.Warning("Session %s: error sending message: %v", r.id, err)
			}
		}
	}
}

func (s *Sessions) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	id := uuid.New().String()
	reporter := newWSReporter(id, conn, s.logger)
	ctl := app.NewController(s.loader, s.prep, app.MultiReporter{
		reporter,
		app.LogReporter{Logger: s.logger, Prefix: "session " + id + " "},
	}, app.Options{
		CanvasSize: s.cfg.CanvasSize,
		BrushWidth: s.cfg.BrushWidth,
		Logger:     s.logger,
	})

	s.mu.Lock()
	s.active[id] = ctl
	s.mu.Unlock()
	s.logger.Info("Session %s connected. Total: %d", id, s.Count())

	defer func() {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
		ctl.Close()
		s.logger.Info("Session %s disconnected. Total: %d", id, s.Count())
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go reporter.run(ctx)
	go ping(ctx, conn)

	hello := outMessage{
		Type:    "session",
		Session: id,
		Filter:  s.prep.Filter(),
		Size:    s.cfg.CanvasSize,
		Brush:   s.cfg.BrushWidth,
	}
	if names, err := s.models.Available(); err == nil {
		hello.Models = names
	} else {
		s.logger.Warning("Session %s: listing models: %v", id, err)
	}
	reporter.send(hello)

	ctl.SelectModel(s.cfg.DefaultModel)

	conn.SetReadLimit(maxEvent)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var ev app.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warning("Session %s: read error: %v", id, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		err := ctl.Dispatch(ctx, ev)
		switch {
		case err == nil:
		case errors.Is(err, app.ErrPredictBeforeReady), errors.Is(err, app.ErrInference):
			// Already reported as a notice or a state.
		default:
			reporter.send(outMessage{Type: "error", Session: id, Message: err.Error()})
		}
	}
}

func ping(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
