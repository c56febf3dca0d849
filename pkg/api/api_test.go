package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"huddle/pkg/channel"
	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/store"
)

type nopSender struct{ id string }

func (n *nopSender) SocketID() string       { return n.id }
func (n *nopSender) Send(string, any) error { return nil }

func startAPI(t *testing.T) (*httptest.Server, *channel.Manager) {
	t.Helper()
	logger.InitWithLevel("error")
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	m := channel.NewManager(func(string) (models.InitState, error) {
		return models.InitState{}, nil
	}, 0)
	h := New(m, http.NotFoundHandler(), t.TempDir(), "test")
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, m
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return out
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := startAPI(t)
	if got := getJSON(t, srv.URL+"/healthz", http.StatusOK); got["status"] != "ok" {
		t.Fatalf("healthz = %v", got)
	}
	got := getJSON(t, srv.URL+"/readyz", http.StatusOK)
	if got["version"] != "test" {
		t.Fatalf("readyz = %v", got)
	}
}

func TestListChannels(t *testing.T) {
	srv, m := startAPI(t)
	if _, _, err := m.Join("standup", "u1", "Ada", &nopSender{id: "s1"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	got := getJSON(t, srv.URL+"/v1/channels", http.StatusOK)
	chans := got["channels"].([]any)
	if len(chans) != 1 {
		t.Fatalf("channels = %v", chans)
	}
	first := chans[0].(map[string]any)
	if first["channel"] != "standup" || first["members"] != float64(1) {
		t.Fatalf("summary = %v", first)
	}
}

func TestListEntities(t *testing.T) {
	srv, _ := startAPI(t)
	if _, err := store.Create("goals", models.Envelope{ID: "g1", Channel: "standup", Data: map[string]any{"text": "demo"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got := getJSON(t, srv.URL+"/v1/channels/standup/goals", http.StatusOK)
	ents := got["entities"].([]any)
	if len(ents) != 1 {
		t.Fatalf("entities = %v", ents)
	}

	getJSON(t, srv.URL+"/v1/channels/standup/widgets", http.StatusNotFound)
	getJSON(t, srv.URL+"/v1/channels/bad%20name/goals", http.StatusBadRequest)
}
