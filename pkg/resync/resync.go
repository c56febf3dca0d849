package resync

import (
	"sync"
	"time"

	"huddle/pkg/models"
)

// DefaultTolerance is how far behind the newest observed server
// timestamp a live message may lag before it is treated as a stale
// replay.
const DefaultTolerance = 30 * time.Second

// MergeSnapshot reconciles a reconnecting client's local view of one
// collection with the authoritative snapshot. Per id the side with the
// higher server timestamp wins; equal timestamps favor the authoritative
// side. The result keeps the authoritative ordering, with local-only
// survivors appended in their original relative order.
func MergeSnapshot(local, authoritative []models.Envelope) []models.Envelope {
	byID := make(map[string]models.Envelope, len(local))
	for _, env := range local {
		byID[env.ID] = env
	}
	out := make([]models.Envelope, 0, len(authoritative)+len(local))
	seen := make(map[string]struct{}, len(authoritative))
	for _, env := range authoritative {
		seen[env.ID] = struct{}{}
		if mine, ok := byID[env.ID]; ok && mine.ServerTimestamp > env.ServerTimestamp {
			out = append(out, mine)
			continue
		}
		out = append(out, env)
	}
	for _, env := range local {
		if _, ok := seen[env.ID]; !ok {
			out = append(out, env)
		}
	}
	return out
}

// FreshnessGate tracks the highest server timestamp seen on a connection
// and rejects messages that lag too far behind it, filtering replays of
// old broadcasts after a reconnect race.
type FreshnessGate struct {
	mu        sync.Mutex
	maxSeen   int64
	tolerance time.Duration
}

// NewFreshnessGate builds a gate with the given tolerance; zero or
// negative falls back to DefaultTolerance.
func NewFreshnessGate(tolerance time.Duration) *FreshnessGate {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &FreshnessGate{tolerance: tolerance}
}

// Admit reports whether a message stamped serverTimestamp (unix ms) is
// fresh enough to apply, advancing the high-water mark when it is ahead.
// Unstamped messages are always admitted.
func (g *FreshnessGate) Admit(serverTimestamp int64) bool {
	if serverTimestamp == 0 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if serverTimestamp > g.maxSeen {
		g.maxSeen = serverTimestamp
		return true
	}
	return g.maxSeen-serverTimestamp <= g.tolerance.Milliseconds()
}

// MaxSeen returns the highest admitted server timestamp.
func (g *FreshnessGate) MaxSeen() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxSeen
}
