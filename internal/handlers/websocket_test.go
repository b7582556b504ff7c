package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Brownie44l1/digit-api/internal/app"
	"github.com/Brownie44l1/digit-api/internal/logger"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
	"github.com/gorilla/websocket"
)

func dialSession(t *testing.T, models stubModels, defaultModel string) (*Sessions, *websocket.Conn) {
	t.Helper()
	prep, err := preprocess.New("")
	if err != nil {
		t.Fatalf("preprocess.New: %v", err)
	}
	sessions := NewSessions(models, prep, models, SessionConfig{
		CanvasSize:   280,
		BrushWidth:   20,
		DefaultModel: defaultModel,
	}, logger.Discard())

	srv := httptest.NewServer(sessions)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return sessions, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) outMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg outMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

// readUntil skips messages until one matches.
func readUntil(t *testing.T, conn *websocket.Conn, match func(outMessage) bool) outMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := readMessage(t, conn)
		if match(msg) {
			return msg
		}
	}
	t.Fatalf("expected message not received")
	return outMessage{}
}

func statePhase(phase app.Phase) func(outMessage) bool {
	return func(m outMessage) bool {
		return m.Type == "state" && m.State != nil && m.State.Phase == phase.String()
	}
}

func TestSessionDrawAndPredict(t *testing.T) {
	stub := &stubClassifier{name: "my_model", scores: scoresFor(4)}
	sessions, conn := dialSession(t, stubModels{"my_model": stub}, "my_model")

	hello := readMessage(t, conn)
	if hello.Type != "session" || hello.Session == "" {
		t.Fatalf("expected session greeting, got %+v", hello)
	}
	if len(hello.Models) != 1 || hello.Models[0] != "my_model" || hello.Filter != "bilinear" || hello.Size != 280 || hello.Brush != 20 {
		t.Fatalf("unexpected greeting %+v", hello)
	}

	ready := readUntil(t, conn, statePhase(app.Ready))
	if !ready.State.Ready || ready.State.Model != "my_model" {
		t.Fatalf("unexpected ready state %+v", ready.State)
	}
	if sessions.Count() != 1 {
		t.Fatalf("expected one active session, got %d", sessions.Count())
	}

	for _, ev := range []app.Event{
		{Type: app.EventDrawStart, X: 100, Y: 60},
		{Type: app.EventDrawMove, X: 100, Y: 220},
		{Type: app.EventDrawEnd},
		{Type: app.EventPredict},
	} {
		if err := conn.WriteJSON(ev); err != nil {
			t.Fatalf("WriteJSON: %v", err)
		}
	}

	predicted := readUntil(t, conn, statePhase(app.Predicted))
	if predicted.State.Value != "4" || predicted.State.Tone != app.ToneSuccess {
		t.Fatalf("unexpected prediction %+v", predicted.State)
	}

	inked := false
	for _, v := range stub.lastTensor() {
		if v > 0 {
			inked = true
			break
		}
	}
	if !inked {
		t.Fatalf("drawn stroke did not reach the model")
	}

	if err := conn.WriteJSON(app.Event{Type: app.EventClear}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	cleared := readUntil(t, conn, statePhase(app.Ready))
	if cleared.State.Value != "-" {
		t.Fatalf("clear should reset the value, got %+v", cleared.State)
	}
}

func TestSessionLoadFailure(t *testing.T) {
	_, conn := dialSession(t, stubModels{}, "missing")

	failed := readUntil(t, conn, statePhase(app.Failed))
	if failed.State.Status != "Model error" || failed.State.Ready {
		t.Fatalf("unexpected failure state %+v", failed.State)
	}
	if !strings.Contains(failed.Message, "not found") {
		t.Fatalf("expected load error message, got %q", failed.Message)
	}

	if err := conn.WriteJSON(app.Event{Type: app.EventPredict}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	notice := readMessage(t, conn)
	if notice.Type != "notice" || notice.Notice != app.PredictBeforeReady.String() {
		t.Fatalf("expected predict_before_ready notice, got %+v", notice)
	}
}

func TestSessionUnknownEvent(t *testing.T) {
	_, conn := dialSession(t, stubModels{"my_model": {name: "my_model", scores: scoresFor(0)}}, "my_model")
	readUntil(t, conn, statePhase(app.Ready))

	if err := conn.WriteJSON(map[string]string{"type": "erase_everything"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	msg := readMessage(t, conn)
	if msg.Type != "error" || !strings.Contains(msg.Message, "unknown event") {
		t.Fatalf("expected error message, got %+v", msg)
	}
}

func TestReporterDoesNotBlockOnStalledClient(t *testing.T) {
	release := make(chan struct{})
	r := &wsReporter{
		id:     "stalled",
		out:    make(chan outMessage, 2),
		write:  func(outMessage) error { <-release; return nil },
		logger: logger.Discard(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.run(ctx)
	defer close(release)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.Report(app.State{Phase: app.Ready, ModelReady: true})
		}
		r.Notify(app.Notice{Kind: app.PredictBeforeReady})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Report blocked while the client was not reading")
	}
}

func TestReporterPreservesOrder(t *testing.T) {
	written := make(chan outMessage, 8)
	r := &wsReporter{
		id:     "ordered",
		out:    make(chan outMessage, 8),
		write:  func(m outMessage) error { written <- m; return nil },
		logger: logger.Discard(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.run(ctx)

	r.Report(app.State{Phase: app.Loading})
	r.Report(app.State{Phase: app.Ready, ModelReady: true})
	r.Notify(app.Notice{Kind: app.PredictBeforeReady, Message: "not loaded"})

	want := []string{"state:loading", "state:ready", "notice:"}
	for i, w := range want {
		select {
		case m := <-written:
			got := m.Type + ":"
			if m.State != nil {
				got += m.State.Phase
			}
			if got != w {
				t.Fatalf("message %d: expected %s, got %s", i, w, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("message %d not written", i)
		}
	}
}
