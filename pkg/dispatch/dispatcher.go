package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"huddle/pkg/channel"
	"huddle/pkg/errs"
	"huddle/pkg/fanout"
	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/registry"
	"huddle/pkg/store"
	"huddle/pkg/stream"
	"huddle/pkg/telemetry"
	"huddle/pkg/utils"
	"huddle/pkg/validation"
)

// Control events handled outside the entity registry.
const (
	EventHeartbeat  = "heartbeat"
	EventPong       = "pong"
	EventLockToggle = "room-lock-toggle"
	EventUpload     = "upload-to-cloud"
	EventError      = "error"
)

// Request is one inbound mutation event after transport decoding. IDs is
// populated only for reorder events.
type Request struct {
	Event   string
	Channel string
	User    string
	Env     models.Envelope
	IDs     []string
}

// Dispatcher routes inbound events through validate, persist and
// broadcast. Failures are replied to the originating sender only and
// never fan out; the channel's other members see successful mutations
// under the original event name.
type Dispatcher struct {
	channels *channel.Manager
	bcast    *fanout.Broadcaster
	relay    *stream.Relay
}

func New(channels *channel.Manager, bcast *fanout.Broadcaster, relay *stream.Relay) *Dispatcher {
	return &Dispatcher{channels: channels, bcast: bcast, relay: relay}
}

// Handle processes one event. The returned error mirrors what was sent
// back to the sender; callers use it for tests and logging, not replies.
func (d *Dispatcher) Handle(ctx context.Context, req Request, sender channel.Sender) error {
	switch req.Event {
	case EventHeartbeat:
		if sender != nil {
			_ = sender.Send(EventPong, map[string]any{"serverTimestamp": utils.NowMillis()})
		}
		return nil
	case EventLockToggle:
		return d.handleLockToggle(req, sender)
	case EventUpload:
		return d.handleUpload(req, sender)
	}

	route, ok := registry.Resolve(req.Event)
	if !ok {
		return d.fail(sender, errs.E(errs.UnknownOperation, req.Event, req.Channel, req.User,
			fmt.Sprintf("unrecognized event: %s", req.Event), nil))
	}
	if !d.channels.Exists(req.Channel) {
		return d.fail(sender, errs.E(errs.ChannelState, req.Event, req.Channel, req.User,
			fmt.Sprintf("channel not active: %s", req.Channel), nil))
	}

	req.Env.Channel = req.Channel
	if req.Env.UserUUID == "" {
		req.Env.UserUUID = req.User
	}

	var err error
	switch route.Op {
	case registry.OpReorder:
		err = d.handleReorder(route.Type, req, sender)
	case registry.OpDraft:
		err = d.handleDraft(route.Type, req, sender)
	case registry.OpAdd:
		if route.Type.Streaming {
			err = d.handleStreamAdd(ctx, route.Type, req, sender)
		} else {
			err = d.handleAdd(route.Type, req, sender)
		}
	case registry.OpUpdate:
		err = d.handleMerge(route.Type, req, sender, false)
	case registry.OpVote:
		err = d.handleMerge(route.Type, req, sender, true)
	case registry.OpRemove:
		err = d.handleRemove(route.Type, req, sender)
	default:
		err = d.fail(sender, errs.E(errs.UnknownOperation, req.Event, req.Channel, req.User,
			fmt.Sprintf("no handler for operation %s", route.Op), nil))
	}
	if err == nil {
		telemetry.EventsTotal.WithLabelValues(route.Type.Name, string(route.Op)).Inc()
	}
	return err
}

func (d *Dispatcher) handleAdd(t *registry.EntityType, req Request, sender channel.Sender) error {
	if req.Env.ID == "" {
		req.Env.ID = utils.GenID()
	}
	if verr := validation.ValidateEnvelope(t, registry.OpAdd, req.Env); verr != nil {
		return d.fail(sender, errs.E(errs.Validation, req.Event, req.Channel, req.User, verr.Error(), nil))
	}
	persisted, err := store.Create(t.Name, req.Env)
	if err != nil {
		return d.fail(sender, errs.E(errs.Persistence, req.Event, req.Channel, req.User, "create failed", err))
	}
	d.bcast.Envelope(req.Channel, req.Event, persisted, req.User)
	return nil
}

func (d *Dispatcher) handleMerge(t *registry.EntityType, req Request, sender channel.Sender, vote bool) error {
	if verr := validation.ValidateEnvelope(t, registry.OpUpdate, req.Env); verr != nil {
		return d.fail(sender, errs.E(errs.Validation, req.Event, req.Channel, req.User, verr.Error(), nil))
	}
	var (
		merged models.Envelope
		found  bool
		err    error
	)
	if vote {
		merged, found, err = store.VoteMerge(t.Name, req.Channel, req.Env.ID, req.Env.Data, req.Env.Timestamp)
	} else {
		merged, found, err = store.Update(t.Name, req.Channel, req.Env.ID, req.Env.Data, req.Env.Timestamp)
	}
	if err != nil {
		return d.fail(sender, errs.E(errs.Persistence, req.Event, req.Channel, req.User, "update failed", err))
	}
	if !found {
		// Entity already removed; the mutation resolves as a quiet no-op.
		return nil
	}
	merged.UserUUID = req.User
	d.bcast.Envelope(req.Channel, req.Event, merged, req.User)
	return nil
}

func (d *Dispatcher) handleRemove(t *registry.EntityType, req Request, sender channel.Sender) error {
	if verr := validation.ValidateEnvelope(t, registry.OpRemove, req.Env); verr != nil {
		return d.fail(sender, errs.E(errs.Validation, req.Event, req.Channel, req.User, verr.Error(), nil))
	}
	if err := store.Delete(t.Name, req.Channel, req.Env.ID); err != nil {
		return d.fail(sender, errs.E(errs.Persistence, req.Event, req.Channel, req.User, "delete failed", err))
	}
	d.bcast.Envelope(req.Channel, req.Event, req.Env, req.User)
	return nil
}

func (d *Dispatcher) handleReorder(t *registry.EntityType, req Request, sender channel.Sender) error {
	if verr := validation.ValidateReorder(req.IDs); verr != nil {
		return d.fail(sender, errs.E(errs.Validation, req.Event, req.Channel, req.User, verr.Error(), nil))
	}
	ordered, err := store.Reorder(t.Name, req.Channel, req.IDs)
	if err != nil {
		return d.fail(sender, errs.E(errs.Persistence, req.Event, req.Channel, req.User, "reorder failed", err))
	}
	ids := make([]string, 0, len(ordered))
	for _, env := range ordered {
		ids = append(ids, env.ID)
	}
	d.bcast.Raw(req.Channel, req.Event, map[string]any{
		"channel":         req.Channel,
		"userUuid":        req.User,
		"ids":             ids,
		"serverTimestamp": utils.NowMillis(),
	}, req.User)
	return nil
}

// handleDraft relays in-progress edits without touching storage.
func (d *Dispatcher) handleDraft(t *registry.EntityType, req Request, sender channel.Sender) error {
	if verr := validation.ValidateEnvelope(t, registry.OpDraft, req.Env); verr != nil {
		return d.fail(sender, errs.E(errs.Validation, req.Event, req.Channel, req.User, verr.Error(), nil))
	}
	d.bcast.Envelope(req.Channel, req.Event, req.Env, req.User)
	return nil
}

// handleStreamAdd opens a generation session instead of persisting. No
// initiating broadcast goes out; members learn about the entity from the
// draft chunks that follow.
func (d *Dispatcher) handleStreamAdd(ctx context.Context, t *registry.EntityType, req Request, sender channel.Sender) error {
	if req.Env.ID == "" {
		req.Env.ID = utils.GenID()
	}
	if verr := validation.ValidateEnvelope(t, registry.OpAdd, req.Env); verr != nil {
		return d.fail(sender, errs.E(errs.Validation, req.Event, req.Channel, req.User, verr.Error(), nil))
	}
	draftEvent := t.Events[registry.OpDraft]
	if err := d.relay.Open(ctx, req.Channel, req.Env.ID, req.User, draftEvent, req.Env.Data, sender); err != nil {
		return d.fail(sender, errs.E(errs.Streaming, req.Event, req.Channel, req.User, "failed to open streaming session", err))
	}
	return nil
}

// handleLockToggle flips the channel lock and announces the new state to
// every member, the toggling sender included.
func (d *Dispatcher) handleLockToggle(req Request, sender channel.Sender) error {
	locked, err := d.channels.ToggleLock(req.Channel)
	if err != nil {
		return d.fail(sender, errs.E(errs.ChannelState, req.Event, req.Channel, req.User, "lock toggle failed", err))
	}
	logger.AuditEvent(slog.LevelInfo, "channel_lock_toggled", req.Channel, req.User, socketID(sender), "locked", locked)
	d.bcast.Raw(req.Channel, EventLockToggle, map[string]any{
		"channel":         req.Channel,
		"locked":          locked,
		"userUuid":        req.User,
		"serverTimestamp": utils.NowMillis(),
	}, "")
	return nil
}

// handleUpload rebuilds the cached channel snapshot from storage so the
// export pipeline reads current state. No broadcast.
func (d *Dispatcher) handleUpload(req Request, sender channel.Sender) error {
	if err := d.channels.RefreshCache(req.Channel); err != nil {
		return d.fail(sender, errs.E(errs.ChannelState, req.Event, req.Channel, req.User, "snapshot refresh failed", err))
	}
	logger.AuditEvent(slog.LevelInfo, "channel_snapshot_refreshed", req.Channel, req.User, socketID(sender))
	return nil
}

// fail audits the failure, bumps the error counter and replies to the
// originating sender only.
func (d *Dispatcher) fail(sender channel.Sender, e *errs.Error) error {
	telemetry.EventErrors.WithLabelValues(string(e.Kind)).Inc()
	logger.AuditEvent(slog.LevelError, "dispatch_failed", e.Channel, e.User, socketID(sender),
		"event", e.Event, "kind", string(e.Kind), "error", e.Error())
	if sender != nil {
		_ = sender.Send(EventError, map[string]any{
			"error": map[string]any{
				"kind":    string(e.Kind),
				"message": errs.Public(e),
				"event":   e.Event,
			},
		})
	}
	return e
}

func socketID(s channel.Sender) string {
	if s == nil {
		return ""
	}
	return s.SocketID()
}
