package fanout

import (
	"huddle/pkg/channel"
	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/telemetry"
	"huddle/pkg/utils"
)

// Event names for the presence message kinds. Entity envelopes go out
// under their original inbound event name.
const (
	EventRoster = "roster"
	EventJoined = "user-joined"
	EventLeft   = "user-left"
)

// Broadcaster fans messages out to the live sockets of a channel.
// Delivery to each socket is independent and best-effort: one failed or
// slow recipient never blocks the rest, and nothing is retried.
type Broadcaster struct {
	channels *channel.Manager
}

func New(channels *channel.Manager) *Broadcaster {
	return &Broadcaster{channels: channels}
}

// Envelope sends an entity envelope to every member of the channel
// except excludeUser (empty string excludes nobody). The authoritative
// server timestamp is stamped at send time when the dispatcher has not
// already set one.
func (b *Broadcaster) Envelope(channelName, event string, env models.Envelope, excludeUser string) {
	if env.ServerTimestamp == 0 {
		env.ServerTimestamp = utils.NowMillis()
	}
	b.deliver(channelName, event, env, excludeUser)
}

// Roster sends the full member list to everyone in the channel.
func (b *Broadcaster) Roster(channelName string) {
	users := b.channels.Roster(channelName)
	b.deliver(channelName, EventRoster, map[string]any{
		"channel":         channelName,
		"users":           users,
		"serverTimestamp": utils.NowMillis(),
	}, "")
}

// Joined announces a new member to everyone already present.
func (b *Broadcaster) Joined(channelName string, user models.ChannelUser) {
	b.deliver(channelName, EventJoined, map[string]any{
		"channel":         channelName,
		"user":            user,
		"serverTimestamp": utils.NowMillis(),
	}, user.UserUUID)
}

// Left announces a departure to the remaining members.
func (b *Broadcaster) Left(channelName, userUUID string) {
	b.deliver(channelName, EventLeft, map[string]any{
		"channel":         channelName,
		"userUuid":        userUUID,
		"serverTimestamp": utils.NowMillis(),
	}, userUUID)
}

// Raw sends an arbitrary payload under the given event name; used for
// lock-state changes and streaming drafts where the payload is not an
// entity envelope.
func (b *Broadcaster) Raw(channelName, event string, payload any, excludeUser string) {
	b.deliver(channelName, event, payload, excludeUser)
}

func (b *Broadcaster) deliver(channelName, event string, payload any, excludeUser string) {
	members := b.channels.Members(channelName, excludeUser)
	telemetry.BroadcastsTotal.Inc()
	for _, s := range members {
		if err := s.Send(event, payload); err != nil {
			// Skip and move on; the read pump will reap dead sockets.
			telemetry.BroadcastDrops.Inc()
			logger.Warn("broadcast_send_failed", "channel", channelName, "event", event, "socket", s.SocketID(), "error", err)
		}
	}
}
