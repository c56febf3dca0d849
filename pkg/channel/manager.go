package channel

import (
	"fmt"
	"regexp"
	"sync"

	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/telemetry"
	"huddle/pkg/utils"
)

// Sender is one live connection registered in a channel. Implementations
// must be safe for concurrent Send calls.
type Sender interface {
	SocketID() string
	Send(event string, payload any) error
}

// Loader builds the cached initial state for a channel by reading every
// registered entity type from storage.
type Loader func(channel string) (models.InitState, error)

// state is the in-memory, ephemeral side of one active channel. Created
// lazily on first successful join, destroyed when the last user leaves;
// persisted entities are unaffected by that destruction.
type state struct {
	users   map[string]models.ChannelUser
	sockets map[string]Sender
	cached  models.InitState
	locked  bool
}

// Manager is the process-wide registry of active channels. All channel
// maps are guarded by one mutex; handlers run on arbitrary goroutines.
type Manager struct {
	mu       sync.Mutex
	channels map[string]*state
	loader   Loader
	maxUsers int
}

var nameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// ValidName reports whether a channel name matches the allow-listed
// character pattern.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

func NewManager(loader Loader, maxUsers int) *Manager {
	return &Manager{channels: make(map[string]*state), loader: loader, maxUsers: maxUsers}
}

// Join registers a user and socket in a channel. A brand-new channel is
// loaded from storage first (EMPTY to ACTIVE). The returned snapshot is
// sent only to the joining connection; the roster goes to everyone.
func (m *Manager) Join(channelName, userUUID, displayName string, s Sender) (models.InitState, []models.ChannelUser, error) {
	if !ValidName(channelName) {
		return nil, nil, fmt.Errorf("invalid channel name: %q", channelName)
	}
	if userUUID == "" {
		return nil, nil, fmt.Errorf("missing userUuid")
	}

	m.mu.Lock()
	st, ok := m.channels[channelName]
	if !ok {
		// First join: load the full snapshot outside the lock, then
		// install it unless someone beat us to it. The lock is held from
		// the install (or the re-check) through registration below, so a
		// concurrent last-user leave cannot strand us on a state object
		// already evicted from the map.
		m.mu.Unlock()
		cached, err := m.loader(channelName)
		if err != nil {
			return nil, nil, fmt.Errorf("channel state load failed: %w", err)
		}
		m.mu.Lock()
		if st, ok = m.channels[channelName]; !ok {
			st = &state{
				users:   make(map[string]models.ChannelUser),
				sockets: make(map[string]Sender),
				cached:  cached,
			}
			m.channels[channelName] = st
			telemetry.ActiveChannels.Inc()
			logger.Info("channel_activated", "channel", channelName)
		}
	}
	defer m.mu.Unlock()
	if st.locked {
		return nil, nil, &LockedError{Channel: channelName}
	}
	if _, rejoining := st.users[userUUID]; !rejoining && m.maxUsers > 0 && len(st.users) >= m.maxUsers {
		return nil, nil, &FullError{Channel: channelName, Max: m.maxUsers}
	}
	u := models.ChannelUser{
		UserUUID:    userUUID,
		DisplayName: displayName,
		Color:       mutedColor(),
		JoinedAt:    utils.NowMillis(),
	}
	if prev, ok := st.users[userUUID]; ok {
		// Reconnect keeps the original color so the roster stays stable.
		u.Color = prev.Color
	}
	st.users[userUUID] = u
	st.sockets[userUUID] = s
	logger.Info("user_joined", "channel", channelName, "user", userUUID, "members", len(st.users))
	return copySnapshot(st.cached), rosterLocked(st), nil
}

// Leave removes a user from a channel. When the last user goes, the
// channel entry itself is destroyed. The remaining roster is returned so
// the caller can announce the departure; ok is false when the user or
// channel was not present (a disconnect for a never-joined socket is a
// no-op).
func (m *Manager) Leave(channelName, userUUID string) (remaining []models.ChannelUser, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, found := m.channels[channelName]
	if !found {
		return nil, false
	}
	if _, present := st.users[userUUID]; !present {
		return nil, false
	}
	delete(st.users, userUUID)
	delete(st.sockets, userUUID)
	if len(st.users) == 0 {
		delete(m.channels, channelName)
		telemetry.ActiveChannels.Dec()
		logger.Info("channel_deactivated", "channel", channelName)
		return nil, true
	}
	logger.Info("user_left", "channel", channelName, "user", userUUID, "members", len(st.users))
	return rosterLocked(st), true
}

// DropSocket finds and removes a socket by id across all channels,
// returning where it was registered. Used on transport disconnect when
// the client never sent an explicit leave.
func (m *Manager) DropSocket(socketID string) (channelName, userUUID string, found bool) {
	m.mu.Lock()
	for ch, st := range m.channels {
		for uid, s := range st.sockets {
			if s.SocketID() == socketID {
				m.mu.Unlock()
				_, _ = m.Leave(ch, uid)
				return ch, uid, true
			}
		}
	}
	m.mu.Unlock()
	return "", "", false
}

// Exists reports whether the channel currently holds any members.
func (m *Manager) Exists(channelName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.channels[channelName]
	return ok
}

// Locked reports the channel's lock flag; absent channels are unlocked.
func (m *Manager) Locked(channelName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.channels[channelName]; ok {
		return st.locked
	}
	return false
}

// ToggleLock flips the lock flag and refreshes the cached snapshot
// wholesale from storage. Locked channels reject new joins only; members
// already connected keep full CRUD access.
func (m *Manager) ToggleLock(channelName string) (locked bool, err error) {
	m.mu.Lock()
	st, ok := m.channels[channelName]
	if !ok {
		m.mu.Unlock()
		return false, fmt.Errorf("channel not active: %s", channelName)
	}
	st.locked = !st.locked
	locked = st.locked
	m.mu.Unlock()
	logger.Info("channel_lock_toggled", "channel", channelName, "locked", locked)
	return locked, m.RefreshCache(channelName)
}

// RefreshCache re-runs the loader for every entity type and replaces the
// cached snapshot wholesale.
func (m *Manager) RefreshCache(channelName string) error {
	cached, err := m.loader(channelName)
	if err != nil {
		return fmt.Errorf("cache refresh failed: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.channels[channelName]
	if !ok {
		return fmt.Errorf("channel not active: %s", channelName)
	}
	st.cached = cached
	return nil
}

// Roster returns the current members of a channel.
func (m *Manager) Roster(channelName string) []models.ChannelUser {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.channels[channelName]; ok {
		return rosterLocked(st)
	}
	return nil
}

// Snapshot returns a copy of the cached initial state.
func (m *Manager) Snapshot(channelName string) models.InitState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.channels[channelName]; ok {
		return copySnapshot(st.cached)
	}
	return nil
}

// Members returns the live senders in a channel, excluding one user when
// exclude is non-empty. The slice is a copy; delivery happens outside
// the manager lock.
func (m *Manager) Members(channelName, exclude string) []Sender {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.channels[channelName]
	if !ok {
		return nil
	}
	out := make([]Sender, 0, len(st.sockets))
	for uid, s := range st.sockets {
		if exclude != "" && uid == exclude {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Member returns one user's presence entry, if joined.
func (m *Manager) Member(channelName, userUUID string) (models.ChannelUser, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.channels[channelName]
	if !ok {
		return models.ChannelUser{}, false
	}
	u, ok := st.users[userUUID]
	return u, ok
}

// Socket returns the live sender for one user, if connected.
func (m *Manager) Socket(channelName, userUUID string) (Sender, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.channels[channelName]
	if !ok {
		return nil, false
	}
	s, ok := st.sockets[userUUID]
	return s, ok
}

// ActiveChannels lists the names of channels currently in memory.
func (m *Manager) ActiveChannels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.channels))
	for name := range m.channels {
		out = append(out, name)
	}
	return out
}

func rosterLocked(st *state) []models.ChannelUser {
	out := make([]models.ChannelUser, 0, len(st.users))
	for _, u := range st.users {
		out = append(out, u)
	}
	return out
}

func copySnapshot(in models.InitState) models.InitState {
	out := make(models.InitState, len(in))
	for k, v := range in {
		out[k] = append([]models.Envelope(nil), v...)
	}
	return out
}

// LockedError rejects a join against a locked channel.
type LockedError struct{ Channel string }

func (e *LockedError) Error() string {
	return fmt.Sprintf("channel is locked: %s", e.Channel)
}

// FullError rejects a join against a channel at its member cap.
type FullError struct {
	Channel string
	Max     int
}

func (e *FullError) Error() string {
	return fmt.Sprintf("channel %s is full (max %d)", e.Channel, e.Max)
}
