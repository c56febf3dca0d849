package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"huddle/pkg/channel"
	"huddle/pkg/dispatch"
	"huddle/pkg/fanout"
	"huddle/pkg/limit"
	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/registry"
	"huddle/pkg/store"
	"huddle/pkg/stream"
)

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger.InitWithLevel("error")
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	loader := func(ch string) (models.InitState, error) {
		out := models.InitState{}
		for _, et := range registry.All() {
			envs, err := store.ReadByChannel(et.Name, ch)
			if err != nil {
				return nil, err
			}
			out[et.Name] = envs
		}
		return out, nil
	}
	channels := channel.NewManager(loader, 0)
	bcast := fanout.New(channels)
	relay := stream.NewRelay(bcast, stream.EchoFactory(8))
	disp := dispatch.New(channels, bcast, relay)
	srv := httptest.NewServer(NewServer(channels, disp, bcast, limit.NewPool(0, 0), nil))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var out map[string]any
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return out
}

// readEvent skips frames until one with the wanted type arrives.
func readEvent(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := read(t, conn)
		if msg["type"] == want {
			return msg
		}
	}
	t.Fatalf("event %q never arrived", want)
	return nil
}

func join(t *testing.T, conn *websocket.Conn, user, name string) map[string]any {
	t.Helper()
	send(t, conn, map[string]any{
		"type": "join-channel", "channelName": "room",
		"userUuid": user, "displayName": name,
	})
	return readEvent(t, conn, "init-state")
}

func TestJoinDeliversInitStateAndRoster(t *testing.T) {
	srv := startServer(t)
	a := dial(t, srv)

	init := join(t, a, "alice", "Alice")
	if init["channel"] != "room" {
		t.Fatalf("init-state channel = %v", init["channel"])
	}
	state, ok := init["state"].(map[string]any)
	if !ok {
		t.Fatalf("init-state state type %T", init["state"])
	}
	if _, ok := state["goals"]; !ok {
		t.Fatalf("init-state missing goals collection: %v", state)
	}
	roster := readEvent(t, a, "roster")
	users := roster["users"].([]any)
	if len(users) != 1 {
		t.Fatalf("roster users = %v", users)
	}
}

func TestJoinReconcilesClientState(t *testing.T) {
	srv := startServer(t)
	a := dial(t, srv)
	join(t, a, "alice", "Alice")
	send(t, a, map[string]any{
		"type": "add-goal", "channelName": "room", "userUuid": "alice",
		"id": "g1", "data": map[string]any{"text": "server copy"},
	})
	// heartbeat round-trip so the add has been persisted before bob joins
	send(t, a, map[string]any{"type": "heartbeat", "channelName": "room", "userUuid": "alice"})
	readEvent(t, a, "pong")

	// bob reconnects carrying a fresher local edit of g1 and a row so
	// stale it must be discarded
	b := dial(t, srv)
	future := time.Now().Add(10*time.Second).UnixMilli()
	send(t, b, map[string]any{
		"type": "join-channel", "channelName": "room",
		"userUuid": "bob", "displayName": "Bob",
		"state": map[string]any{
			"goals": []map[string]any{
				{"id": "g1", "channel": "room", "data": map[string]any{"text": "local edit"}, "serverTimestamp": future},
				{"id": "g-old", "channel": "room", "data": map[string]any{"text": "ancient"}, "serverTimestamp": 1},
			},
		},
	})
	init := readEvent(t, b, "init-state")
	state := init["state"].(map[string]any)
	goals := state["goals"].([]any)
	if len(goals) != 1 {
		t.Fatalf("reconciled goals = %v", goals)
	}
	first := goals[0].(map[string]any)
	if first["id"] != "g1" {
		t.Fatalf("reconciled id = %v", first["id"])
	}
	if data := first["data"].(map[string]any); data["text"] != "local edit" {
		t.Fatalf("fresher local edit lost: %v", data)
	}
}

func TestMutationBroadcastExcludesSender(t *testing.T) {
	srv := startServer(t)
	a := dial(t, srv)
	b := dial(t, srv)
	join(t, a, "alice", "Alice")
	join(t, b, "bob", "Bob")
	// drain alice's roster update from bob's join
	readEvent(t, a, "user-joined")

	send(t, a, map[string]any{
		"type": "add-goal", "channelName": "room", "userUuid": "alice",
		"id": "g1", "data": map[string]any{"text": "ship"},
	})
	got := readEvent(t, b, "add-goal")
	if got["id"] != "g1" {
		t.Fatalf("broadcast id = %v", got["id"])
	}
	if got["serverTimestamp"] == nil {
		t.Fatalf("broadcast missing serverTimestamp: %v", got)
	}

	// sender must not see its own add; a heartbeat round-trip proves the
	// pipe held nothing else
	send(t, a, map[string]any{"type": "heartbeat", "channelName": "room", "userUuid": "alice"})
	next := read(t, a)
	if next["type"] == "add-goal" {
		t.Fatalf("sender received own broadcast")
	}
}

func TestHeartbeatPong(t *testing.T) {
	srv := startServer(t)
	a := dial(t, srv)
	join(t, a, "alice", "Alice")
	send(t, a, map[string]any{"type": "heartbeat", "channelName": "room", "userUuid": "alice"})
	pong := readEvent(t, a, "pong")
	if pong["serverTimestamp"] == nil {
		t.Fatalf("pong missing serverTimestamp")
	}
}

func TestUnknownEventReturnsTypedError(t *testing.T) {
	srv := startServer(t)
	a := dial(t, srv)
	join(t, a, "alice", "Alice")
	send(t, a, map[string]any{"type": "add-widget", "channelName": "room", "userUuid": "alice"})
	msg := readEvent(t, a, "error")
	e := msg["error"].(map[string]any)
	if e["kind"] != "unknown_operation" {
		t.Fatalf("error kind = %v", e["kind"])
	}
	if e["event"] != "add-widget" {
		t.Fatalf("error event = %v", e["event"])
	}
}

func TestLockedChannelRejectsSecondJoin(t *testing.T) {
	srv := startServer(t)
	a := dial(t, srv)
	join(t, a, "alice", "Alice")
	send(t, a, map[string]any{"type": "room-lock-toggle", "channelName": "room", "userUuid": "alice"})
	readEvent(t, a, "room-lock-toggle")

	b := dial(t, srv)
	send(t, b, map[string]any{
		"type": "join-channel", "channelName": "room",
		"userUuid": "bob", "displayName": "Bob",
	})
	msg := readEvent(t, b, "error")
	e := msg["error"].(map[string]any)
	if e["kind"] != "channel_state_error" {
		t.Fatalf("error kind = %v", e["kind"])
	}
}

func TestDisconnectAnnouncesDeparture(t *testing.T) {
	srv := startServer(t)
	a := dial(t, srv)
	b := dial(t, srv)
	join(t, a, "alice", "Alice")
	join(t, b, "bob", "Bob")
	readEvent(t, a, "user-joined")

	_ = b.Close()
	left := readEvent(t, a, "user-left")
	if left["userUuid"] != "bob" {
		t.Fatalf("user-left uuid = %v", left["userUuid"])
	}
}
