package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/registry"
	"huddle/pkg/utils"

	"github.com/cockroachdb/pebble"
)

var db *pebble.DB

var dbPath string

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package. Failure here is the
// single fatal startup condition for the server.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

// Key format: entity:<type>:<channel>:<id>. Point lookups hit the key
// directly; per-channel scans iterate the entity:<type>:<channel>:
// prefix.
func entityKey(entityType, channel, id string) []byte {
	return []byte("entity:" + entityType + ":" + channel + ":" + id)
}

func channelPrefix(entityType, channel string) []byte {
	return []byte("entity:" + entityType + ":" + channel + ":")
}

// Create inserts an envelope, assigning the authoritative server
// timestamp at persistence time. A duplicate (channel, id) overwrites the
// existing row, so creating twice never yields two rows. Ordered types
// get a dense order slot: an overwrite keeps the existing row's position,
// a fresh row appends unless the caller placed it explicitly.
func Create(entityType string, env models.Envelope) (models.Envelope, error) {
	if db == nil {
		return env, fmt.Errorf("pebble not opened; call store.Open first")
	}
	env.ServerTimestamp = utils.NowMillis()
	if t, ok := registry.Lookup(entityType); ok && t.Ordered {
		if err := placeOrdered(entityType, &env); err != nil {
			return env, err
		}
	}
	data, err := json.Marshal(env)
	if err != nil {
		return env, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	key := entityKey(entityType, env.Channel, env.ID)
	if err := db.Set(key, data, pebble.Sync); err != nil {
		logger.Error("create_failed", "type", entityType, "channel", env.Channel, "id", env.ID, "error", err)
		return env, err
	}
	logger.Debug("entity_created", "type", entityType, "channel", env.Channel, "id", env.ID)
	return env, nil
}

// placeOrdered picks the order slot for a row about to be written. An
// overwrite of an existing id keeps that row's slot so siblings never
// drift; a fresh row with a client-supplied order is clamped into
// [0, n] and siblings at or past the slot shift up by one. The channel
// is dense either way.
func placeOrdered(entityType string, env *models.Envelope) error {
	sibs, err := ReadByChannel(entityType, env.Channel)
	if err != nil {
		return err
	}
	pos := -1
	others := make([]models.Envelope, 0, len(sibs))
	for _, s := range sibs {
		if s.ID == env.ID {
			if n, ok := s.Order(); ok {
				pos = n
			}
			continue
		}
		others = append(others, s)
	}
	if pos < 0 {
		pos = len(others)
		if n, ok := env.Order(); ok && n >= 0 && n < len(others) {
			pos = n
		}
	}
	env.SetOrder(pos)
	for i := range others {
		want := i
		if i >= pos {
			want = i + 1
		}
		if cur, ok := others[i].Order(); ok && cur == want {
			continue
		}
		others[i].SetOrder(want)
		data, err := json.Marshal(others[i])
		if err != nil {
			return fmt.Errorf("failed to marshal envelope: %w", err)
		}
		if err := db.Set(entityKey(entityType, env.Channel, others[i].ID), data, pebble.Sync); err != nil {
			logger.Error("order_shift_failed", "type", entityType, "channel", env.Channel, "id", others[i].ID, "error", err)
			return err
		}
	}
	return nil
}

// Get returns one envelope by (channel, id); found is false when absent.
func Get(entityType, channel, id string) (models.Envelope, bool, error) {
	var env models.Envelope
	if db == nil {
		return env, false, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get(entityKey(entityType, channel, id))
	if err != nil {
		if err == pebble.ErrNotFound {
			return env, false, nil
		}
		return env, false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &env); err != nil {
		return env, false, fmt.Errorf("invalid envelope JSON at %s/%s: %w", channel, id, err)
	}
	return env, true, nil
}

// ReadByChannel returns every envelope of one entity type in a channel.
// Ordered types sort by their stored order value; everything else sorts
// by server timestamp then id so listings are stable.
func ReadByChannel(entityType, channel string) ([]models.Envelope, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := channelPrefix(entityType, channel)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Envelope
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		v := append([]byte(nil), iter.Value()...)
		var env models.Envelope
		if err := json.Unmarshal(v, &env); err != nil {
			logger.Error("read_channel_bad_row", "type", entityType, "channel", channel, "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, env)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sortEnvelopes(entityType, out)
	return out, nil
}

func sortEnvelopes(entityType string, envs []models.Envelope) {
	t, ok := registry.Lookup(entityType)
	if ok && t.Ordered {
		sort.SliceStable(envs, func(i, j int) bool {
			oi, _ := envs[i].Order()
			oj, _ := envs[j].Order()
			return oi < oj
		})
		return
	}
	sort.SliceStable(envs, func(i, j int) bool {
		if envs[i].ServerTimestamp != envs[j].ServerTimestamp {
			return envs[i].ServerTimestamp < envs[j].ServerTimestamp
		}
		return envs[i].ID < envs[j].ID
	})
}

// Update shallow-merges partial data into the stored envelope and
// refreshes the server timestamp. A missing id is an idempotent no-op:
// the race against a concurrent delete resolves in favor of the delete.
func Update(entityType, channel, id string, partial map[string]any, claimedTS int64) (models.Envelope, bool, error) {
	env, found, err := Get(entityType, channel, id)
	if err != nil {
		return env, false, err
	}
	if !found {
		logger.Debug("update_missing_noop", "type", entityType, "channel", channel, "id", id)
		return env, false, nil
	}
	if env.Data == nil {
		env.Data = map[string]any{}
	}
	for k, v := range partial {
		env.Data[k] = v
	}
	if claimedTS != 0 {
		env.Timestamp = claimedTS
	}
	env.ServerTimestamp = utils.NowMillis()
	data, err := json.Marshal(env)
	if err != nil {
		return env, false, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := db.Set(entityKey(entityType, channel, id), data, pebble.Sync); err != nil {
		logger.Error("update_failed", "type", entityType, "channel", channel, "id", id, "error", err)
		return env, false, err
	}
	return env, true, nil
}

// VoteMerge merges vote data into an envelope without participating in
// order maintenance. The order field is stripped from the partial so a
// vote can never disturb sibling ordering.
func VoteMerge(entityType, channel, id string, partial map[string]any, claimedTS int64) (models.Envelope, bool, error) {
	if partial != nil {
		delete(partial, "order")
	}
	return Update(entityType, channel, id, partial, claimedTS)
}

// Delete removes an envelope. For ordered types the surviving siblings
// are re-read sorted by their current order and rewritten 0..n-1 so the
// dense-order invariant holds after every removal.
func Delete(entityType, channel, id string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := db.Delete(entityKey(entityType, channel, id), pebble.Sync); err != nil {
		logger.Error("delete_failed", "type", entityType, "channel", channel, "id", id, "error", err)
		return err
	}
	logger.Debug("entity_deleted", "type", entityType, "channel", channel, "id", id)
	t, ok := registry.Lookup(entityType)
	if !ok || !t.Ordered {
		return nil
	}
	_, err := RepackChannel(entityType, channel)
	return err
}

// Reorder writes an explicit new permutation for a channel's siblings.
// Ids in the list that no longer exist are silently skipped (assumed
// concurrently deleted); survivors not named in the list keep their
// relative order after the listed ones. The result is always dense.
func Reorder(entityType, channel string, ids []string) ([]models.Envelope, error) {
	envs, err := ReadByChannel(entityType, channel)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Envelope, len(envs))
	for i := range envs {
		byID[envs[i].ID] = &envs[i]
	}
	ranked := make([]*models.Envelope, 0, len(envs))
	taken := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		env, ok := byID[id]
		if !ok {
			logger.Debug("reorder_skip_missing", "type", entityType, "channel", channel, "id", id)
			continue
		}
		ranked = append(ranked, env)
		taken[id] = struct{}{}
	}
	for i := range envs {
		if _, ok := taken[envs[i].ID]; !ok {
			ranked = append(ranked, &envs[i])
		}
	}
	now := utils.NowMillis()
	for i, env := range ranked {
		env.SetOrder(i)
		env.ServerTimestamp = now
		data, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal envelope: %w", err)
		}
		if err := db.Set(entityKey(entityType, channel, env.ID), data, pebble.Sync); err != nil {
			logger.Error("reorder_write_failed", "type", entityType, "channel", channel, "id", env.ID, "error", err)
			return nil, err
		}
	}
	out := make([]models.Envelope, 0, len(ranked))
	for _, env := range ranked {
		out = append(out, *env)
	}
	return out, nil
}

// RepackChannel rewrites sibling order values to a dense 0..n-1 sequence
// sorted by their current order. Returns how many rows changed; rows
// already dense are left untouched.
func RepackChannel(entityType, channel string) (int, error) {
	envs, err := ReadByChannel(entityType, channel)
	if err != nil {
		return 0, err
	}
	changed := 0
	for i := range envs {
		if cur, ok := envs[i].Order(); ok && cur == i {
			continue
		}
		envs[i].SetOrder(i)
		data, err := json.Marshal(envs[i])
		if err != nil {
			return changed, fmt.Errorf("failed to marshal envelope: %w", err)
		}
		if err := db.Set(entityKey(entityType, channel, envs[i].ID), data, pebble.Sync); err != nil {
			logger.Error("repack_write_failed", "type", entityType, "channel", channel, "id", envs[i].ID, "error", err)
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// Channels returns the distinct channel names holding at least one row
// of the given entity type. Used by the maintenance sweeps.
func Channels(entityType string) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte("entity:" + entityType + ":")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	seen := map[string]struct{}{}
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		rest := strings.TrimPrefix(string(iter.Key()), string(prefix))
		if i := strings.IndexByte(rest, ':'); i > 0 {
			ch := rest[:i]
			if _, ok := seen[ch]; !ok {
				seen[ch] = struct{}{}
				out = append(out, ch)
			}
		}
	}
	return out, iter.Error()
}
