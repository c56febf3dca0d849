package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"huddle/pkg/channel"
	"huddle/pkg/fanout"
	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/telemetry"
)

// ChunkSource supplies incremental content from an external generator.
// Next blocks until a chunk is ready; it returns io.EOF on normal
// completion and any other error on mid-stream failure.
type ChunkSource interface {
	Next(ctx context.Context) (string, error)
}

// SourceFactory opens a generation stream for one request. The relay
// calls it when a streaming add arrives; the payload is the entity data
// of the initiating event (prompt and friends).
type SourceFactory func(ctx context.Context, channelName, id string, data map[string]any) (ChunkSource, error)

// Relay bridges external token generation into a channel's event stream
// as ephemeral draft broadcasts. Partial output is never persisted; the
// consuming layer issues one real update after observing end=true.
type Relay struct {
	bcast   *fanout.Broadcaster
	factory SourceFactory

	mu       sync.Mutex
	sessions map[string]string // channel:id -> session uuid
}

func NewRelay(bcast *fanout.Broadcaster, factory SourceFactory) *Relay {
	return &Relay{bcast: bcast, factory: factory, sessions: make(map[string]string)}
}

func sessionKey(channelName, id string) string {
	return channelName + ":" + id
}

// Open starts a generation session for (channel, id) and streams drafts
// until completion. The initiating add is not broadcast; every chunk
// goes to the whole channel, sender included, under the draft event
// name. Duplicate opens for a live id are rejected.
func (r *Relay) Open(ctx context.Context, channelName, id, userUUID, draftEvent string, data map[string]any, sender channel.Sender) error {
	key := sessionKey(channelName, id)
	sid := uuid.NewString()
	r.mu.Lock()
	if _, live := r.sessions[key]; live {
		r.mu.Unlock()
		return fmt.Errorf("streaming session already open for %s", key)
	}
	r.sessions[key] = sid
	r.mu.Unlock()
	telemetry.StreamSessions.Inc()

	src, err := r.factory(ctx, channelName, id, data)
	if err != nil {
		r.closeSession(key)
		return fmt.Errorf("failed to open generation stream: %w", err)
	}

	go r.pump(ctx, key, channelName, id, userUUID, draftEvent, src, sender)
	logger.Info("stream_session_opened", "channel", channelName, "id", id, "session", sid)
	return nil
}

// pump drains the source. On normal completion exactly one terminal
// chunk with end=true goes out and nothing follows for that id; on
// failure the original sender gets one streaming error and the session
// stops with nothing persisted.
func (r *Relay) pump(ctx context.Context, key, channelName, id, userUUID, draftEvent string, src ChunkSource, sender channel.Sender) {
	defer r.closeSession(key)
	for {
		content, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.bcast.Raw(channelName, draftEvent, models.StreamChunk{ID: id, Channel: channelName, End: true}, "")
				telemetry.StreamChunks.Inc()
				logger.Info("stream_session_completed", "channel", channelName, "id", id)
				return
			}
			logger.Error("stream_source_failed", "channel", channelName, "id", id, "error", err)
			if sender != nil {
				_ = sender.Send("error", map[string]any{
					"error": map[string]any{
						"kind":    "streaming_error",
						"message": "generation failed mid-stream",
						"id":      id,
					},
				})
			}
			return
		}
		if !r.alive(key) {
			// Session torn down underneath us; drop the late chunk.
			return
		}
		r.bcast.Raw(channelName, draftEvent, models.StreamChunk{ID: id, Channel: channelName, Content: content}, "")
		telemetry.StreamChunks.Inc()
	}
}

func (r *Relay) alive(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[key]
	return ok
}

func (r *Relay) closeSession(key string) {
	r.mu.Lock()
	if _, ok := r.sessions[key]; ok {
		delete(r.sessions, key)
		telemetry.StreamSessions.Dec()
	}
	r.mu.Unlock()
}

// OpenSessions returns the number of live generation sessions.
func (r *Relay) OpenSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
