package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-arcbase/pkg/control"
	"github.com/teslashibe/go-arcbase/pkg/nav"
	"github.com/teslashibe/go-arcbase/pkg/protocol"
)

// fakeController serves canned status and history
type fakeController struct {
	state   *nav.State
	history []control.MoveRecord
}

func (f *fakeController) Status() control.Status {
	return control.Status{State: f.state.Snapshot(), Intent: nav.PathFollow}
}

func (f *fakeController) History() []control.MoveRecord {
	return f.history
}

func (f *fakeController) Config() control.Config {
	return control.DefaultConfig()
}

func newTestServer(t *testing.T) (*Server, *nav.State) {
	t.Helper()
	state := nav.NewState(nil)
	ctrl := &fakeController{state: state}
	for i := 0; i < 5; i++ {
		ctrl.history = append(ctrl.history, control.MoveRecord{ID: string(rune('a' + i))})
	}
	s, err := NewServer(DefaultConfig(), ctrl, state, nil)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return s, state
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestAPIStatus(t *testing.T) {
	s, state := newTestServer(t)
	state.UpdateOdom(nav.Pose2D{X: 1.5})

	code, body := doRequest(t, s.App(), "GET", "/api/status", "")
	if code != 200 {
		t.Fatalf("Status = %d, want 200", code)
	}

	var st struct {
		Intent string `json:"intent"`
		State  struct {
			Odom nav.Pose2D `json:"odom"`
		} `json:"state"`
	}
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatalf("Unmarshal() error = %v (%s)", err, body)
	}
	if st.Intent != "path_follow" || st.State.Odom.X != 1.5 {
		t.Errorf("status: got %+v", st)
	}
}

func TestAPIMoves(t *testing.T) {
	s, _ := newTestServer(t)

	code, body := doRequest(t, s.App(), "GET", "/api/moves?limit=2", "")
	if code != 200 {
		t.Fatalf("Status = %d, want 200", code)
	}
	var resp struct {
		Moves []control.MoveRecord `json:"moves"`
		Count int                  `json:"count"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if resp.Count != 2 || resp.Moves[0].ID != "d" || resp.Moves[1].ID != "e" {
		t.Errorf("moves: got %+v", resp)
	}

	if code, _ := doRequest(t, s.App(), "GET", "/api/moves?limit=-1", ""); code != 400 {
		t.Errorf("negative limit: Status = %d, want 400", code)
	}
}

func TestAPIConfig(t *testing.T) {
	s, _ := newTestServer(t)

	code, body := doRequest(t, s.App(), "GET", "/api/config", "")
	if code != 200 || !strings.Contains(body, "move_interval") {
		t.Errorf("config: %d %s", code, body)
	}

	s.ConfigView = func() any { return map[string]string{"custom": "yes"} }
	_, body = doRequest(t, s.App(), "GET", "/api/config", "")
	if !strings.Contains(body, "custom") {
		t.Errorf("ConfigView not used: %s", body)
	}
}

func TestAPIStats(t *testing.T) {
	s, _ := newTestServer(t)
	s.AddStats("motor", func() any { return map[string]int{"acks": 7} })

	code, body := doRequest(t, s.App(), "GET", "/api/stats", "")
	if code != 200 {
		t.Fatalf("Status = %d, want 200", code)
	}
	var stats struct {
		StatusHub struct {
			Clients int  `json:"clients"`
			Running bool `json:"running"`
		} `json:"status_hub"`
		Motor struct {
			Acks int `json:"acks"`
		} `json:"motor"`
	}
	if err := json.Unmarshal([]byte(body), &stats); err != nil {
		t.Fatalf("Unmarshal() error = %v (%s)", err, body)
	}
	if stats.Motor.Acks != 7 {
		t.Errorf("motor stats: got %+v", stats.Motor)
	}
	if stats.StatusHub.Clients != 0 || stats.StatusHub.Running {
		t.Errorf("status hub stats: got %+v", stats.StatusHub)
	}
}

func TestAPIInject(t *testing.T) {
	s, state := newTestServer(t)
	app := s.App()

	tests := []struct {
		path string
		body string
	}{
		{"/api/odom", `{"x":1,"y":2,"heading":0.5}`},
		{"/api/path", `{"poses":[{"x":3,"y":3,"heading":0}]}`},
		{"/api/goal_status", `{"codes":[1]}`},
	}
	for _, tt := range tests {
		if code, body := doRequest(t, app, "POST", tt.path, tt.body); code != fiber.StatusAccepted {
			t.Errorf("POST %s: Status = %d (%s), want 202", tt.path, code, body)
		}
	}

	snap := state.Snapshot()
	if snap.Odom != (nav.Pose2D{X: 1, Y: 2, Heading: 0.5}) {
		t.Errorf("odom: got %v", snap.Odom)
	}
	if snap.Target.X != 3 || !snap.Follow {
		t.Errorf("target: got %v follow=%v", snap.Target, snap.Follow)
	}
	if !snap.Authorized {
		t.Error("goal_status [1] should authorize")
	}

	if code, _ := doRequest(t, app, "POST", "/api/goal", `{"heading":1.0}`); code != fiber.StatusAccepted {
		t.Errorf("POST /api/goal: Status = %d", code)
	}
	if snap := state.Snapshot(); !snap.GoalActive || snap.Target != snap.Odom {
		t.Errorf("goal should collapse target onto odom: %+v", snap)
	}
}

func TestAPIInject_BadBody(t *testing.T) {
	s, state := newTestServer(t)

	if code, _ := doRequest(t, s.App(), "POST", "/api/odom", `"nope"`); code != 400 {
		t.Errorf("malformed body: Status = %d, want 400", code)
	}
	if code, _ := doRequest(t, s.App(), "POST", "/api/path", ""); code != 400 {
		t.Errorf("empty body: Status = %d, want 400", code)
	}
	if state.Snapshot().OdomUpdates != 0 {
		t.Error("rejected body must not touch state")
	}
}

func TestStatusWebSocket(t *testing.T) {
	s, _ := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-done
	}()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/status", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	msg := readMessage(t, ws)
	if msg.Type != protocol.TypeStatus {
		t.Fatalf("first message: got %s, want status", msg.Type)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.statusHub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.PublishMove(control.MoveRecord{ID: "m1"})

	// periodic status frames may interleave with the move
	for {
		msg := readMessage(t, ws)
		if msg.Type != protocol.TypeMove {
			continue
		}
		var rec control.MoveRecord
		if err := msg.ParseData(&rec); err != nil || rec.ID != "m1" {
			t.Errorf("move: got %+v (%v)", rec, err)
		}
		break
	}
}

func readMessage(t *testing.T, ws *websocket.Conn) *protocol.Message {
	t.Helper()
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	return msg
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	cfg.Port = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty port")
	}
	cfg.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled server should not need a port: %v", err)
	}
}
