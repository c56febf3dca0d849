package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"huddle/pkg/channel"
	"huddle/pkg/logger"
	"huddle/pkg/registry"
	"huddle/pkg/store"
)

// Router serves the read-only REST surface next to the websocket
// endpoint. All mutation goes through /ws; these views exist for
// debugging, dashboards and the export pipeline.
type Router struct {
	channels *channel.Manager
	version  string
}

// New builds the full HTTP handler: /ws, /v1 views, health, metrics and
// docs.
func New(channels *channel.Manager, wsHandler http.Handler, docsDir, version string) http.Handler {
	a := &Router{channels: channels, version: version}
	r := mux.NewRouter()
	r.Handle("/ws", wsHandler)
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.readyz).Methods(http.MethodGet)
	r.HandleFunc("/v1/channels", a.listChannels).Methods(http.MethodGet)
	r.HandleFunc("/v1/channels/{channel}/{entityType}", a.listEntities).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	r.Handle("/openapi.yaml", http.FileServer(http.Dir(docsDir)))
	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (a *Router) readyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !store.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + ver + `"}`))
}

// listChannels returns a summary of the channels currently active in
// memory: member count and lock state per channel.
func (a *Router) listChannels(w http.ResponseWriter, _ *http.Request) {
	type summary struct {
		Channel string `json:"channel"`
		Members int    `json:"members"`
		Locked  bool   `json:"locked"`
	}
	names := a.channels.ActiveChannels()
	out := make([]summary, 0, len(names))
	for _, name := range names {
		out = append(out, summary{
			Channel: name,
			Members: len(a.channels.Roster(name)),
			Locked:  a.channels.Locked(name),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": out})
}

// listEntities returns the stored envelopes of one entity type in one
// channel, in the same order the channel snapshot would carry them.
func (a *Router) listEntities(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	channelName := vars["channel"]
	entityType := vars["entityType"]
	if !channel.ValidName(channelName) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid channel name"})
		return
	}
	if _, ok := registry.Lookup(entityType); !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown entity type: " + entityType})
		return
	}
	envs, err := store.ReadByChannel(entityType, channelName)
	if err != nil {
		logger.Error("list_entities_failed", "channel", channelName, "type", entityType, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "storage read failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel":  channelName,
		"type":     entityType,
		"entities": envs,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
