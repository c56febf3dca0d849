package store

import (
	"testing"

	"huddle/pkg/logger"
	"huddle/pkg/models"
)

func openTestStore(t *testing.T) {
	t.Helper()
	logger.InitWithLevel("error")
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = Close() })
}

func mustCreate(t *testing.T, typ, ch, id string, data map[string]any) models.Envelope {
	t.Helper()
	env, err := Create(typ, models.Envelope{ID: id, Channel: ch, Data: data})
	if err != nil {
		t.Fatalf("create %s/%s failed: %v", typ, id, err)
	}
	return env
}

func orderOf(t *testing.T, env models.Envelope) int {
	t.Helper()
	n, ok := env.Order()
	if !ok {
		t.Fatalf("envelope %s has no order", env.ID)
	}
	return n
}

func TestCreateAssignsDenseOrder(t *testing.T) {
	openTestStore(t)
	for i, id := range []string{"g1", "g2", "g3"} {
		env := mustCreate(t, "goals", "room", id, map[string]any{"text": id})
		if got := orderOf(t, env); got != i {
			t.Fatalf("goal %s order = %d, want %d", id, got, i)
		}
		if env.ServerTimestamp == 0 {
			t.Fatalf("server timestamp not assigned")
		}
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	openTestStore(t)
	mustCreate(t, "chat", "room", "c1", map[string]any{"text": "first"})
	mustCreate(t, "chat", "room", "c1", map[string]any{"text": "second"})
	envs, err := ReadByChannel("chat", "room")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(envs) != 1 {
		t.Fatalf("duplicate create yielded %d rows, want 1", len(envs))
	}
	if envs[0].Data["text"] != "second" {
		t.Fatalf("overwrite lost: %v", envs[0].Data["text"])
	}
}

func assertDense(t *testing.T, typ, ch string, wantIDs []string) {
	t.Helper()
	envs, err := ReadByChannel(typ, ch)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(envs) != len(wantIDs) {
		t.Fatalf("got %d rows, want %d", len(envs), len(wantIDs))
	}
	for i, env := range envs {
		if env.ID != wantIDs[i] {
			t.Fatalf("pos %d = %s, want %s", i, env.ID, wantIDs[i])
		}
		if got := orderOf(t, env); got != i {
			t.Fatalf("%s order = %d, want %d", env.ID, got, i)
		}
	}
}

func TestCreateDuplicateKeepsOrderedSlot(t *testing.T) {
	openTestStore(t)
	mustCreate(t, "goals", "room", "g1", map[string]any{"text": "a"})
	mustCreate(t, "goals", "room", "g2", map[string]any{"text": "b"})

	// re-adding g1 overwrites the row in place, it never moves to the end
	env := mustCreate(t, "goals", "room", "g1", map[string]any{"text": "a2"})
	if got := orderOf(t, env); got != 0 {
		t.Fatalf("duplicate create moved g1 to order %d", got)
	}
	assertDense(t, "goals", "room", []string{"g1", "g2"})

	envs, _ := ReadByChannel("goals", "room")
	if envs[0].Data["text"] != "a2" {
		t.Fatalf("overwrite lost: %v", envs[0].Data["text"])
	}
}

func TestCreateClampsClientSuppliedOrder(t *testing.T) {
	openTestStore(t)
	mustCreate(t, "goals", "room", "g1", map[string]any{"text": "a"})
	mustCreate(t, "goals", "room", "g2", map[string]any{"text": "b"})

	// out-of-range placement clamps to append
	env := models.Envelope{ID: "g3", Channel: "room", Data: map[string]any{"text": "c"}}
	env.SetOrder(9)
	out, err := Create("goals", env)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if got := orderOf(t, out); got != 2 {
		t.Fatalf("g3 order = %d, want 2", got)
	}

	// in-range placement inserts and shifts siblings
	env = models.Envelope{ID: "g0", Channel: "room", Data: map[string]any{"text": "z"}}
	env.SetOrder(0)
	if _, err := Create("goals", env); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	assertDense(t, "goals", "room", []string{"g0", "g1", "g2", "g3"})
}

func TestUpdateMergesAndMissingIsNoop(t *testing.T) {
	openTestStore(t)
	mustCreate(t, "goals", "room", "g1", map[string]any{"text": "a", "votes": 1})

	merged, found, err := Update("goals", "room", "g1", map[string]any{"votes": 2}, 0)
	if err != nil || !found {
		t.Fatalf("update failed: found=%v err=%v", found, err)
	}
	if merged.Data["text"] != "a" {
		t.Fatalf("shallow merge dropped untouched field")
	}
	if v, ok := merged.Data["votes"]; !ok || v != 2 {
		t.Fatalf("votes = %v, want 2", v)
	}

	_, found, err = Update("goals", "room", "ghost", map[string]any{"votes": 9}, 0)
	if err != nil {
		t.Fatalf("missing-id update errored: %v", err)
	}
	if found {
		t.Fatalf("missing-id update reported found")
	}
}

func TestDeleteRepacksOrderedSiblings(t *testing.T) {
	openTestStore(t)
	for _, id := range []string{"g1", "g2", "g3", "g4"} {
		mustCreate(t, "goals", "room", id, map[string]any{"text": id})
	}
	if err := Delete("goals", "room", "g2"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	envs, err := ReadByChannel("goals", "room")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(envs) != 3 {
		t.Fatalf("got %d rows, want 3", len(envs))
	}
	wantIDs := []string{"g1", "g3", "g4"}
	for i, env := range envs {
		if env.ID != wantIDs[i] {
			t.Fatalf("pos %d = %s, want %s", i, env.ID, wantIDs[i])
		}
		if got := orderOf(t, env); got != i {
			t.Fatalf("%s order = %d, want %d", env.ID, got, i)
		}
	}
}

func TestReorderPermutationAndSkips(t *testing.T) {
	openTestStore(t)
	for _, id := range []string{"d1", "d2", "d3", "d4"} {
		mustCreate(t, "documents", "room", id, map[string]any{"title": id})
	}
	// d9 vanished; d4 unlisted and must keep relative position after the
	// listed ones.
	out, err := Reorder("documents", "room", []string{"d3", "d9", "d1", "d2"})
	if err != nil {
		t.Fatalf("reorder failed: %v", err)
	}
	wantIDs := []string{"d3", "d1", "d2", "d4"}
	if len(out) != len(wantIDs) {
		t.Fatalf("got %d rows, want %d", len(out), len(wantIDs))
	}
	for i, env := range out {
		if env.ID != wantIDs[i] {
			t.Fatalf("pos %d = %s, want %s", i, env.ID, wantIDs[i])
		}
		if got := orderOf(t, env); got != i {
			t.Fatalf("%s order = %d, want %d", env.ID, got, i)
		}
	}
	// persisted view matches the returned permutation
	envs, err := ReadByChannel("documents", "room")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	for i, env := range envs {
		if env.ID != wantIDs[i] {
			t.Fatalf("stored pos %d = %s, want %s", i, env.ID, wantIDs[i])
		}
	}
}

func TestVoteMergeNeverTouchesOrder(t *testing.T) {
	openTestStore(t)
	mustCreate(t, "goals", "room", "g1", map[string]any{"text": "a"})
	mustCreate(t, "goals", "room", "g2", map[string]any{"text": "b"})

	merged, found, err := VoteMerge("goals", "room", "g1", map[string]any{"votes": 5, "order": 99}, 0)
	if err != nil || !found {
		t.Fatalf("vote failed: found=%v err=%v", found, err)
	}
	if got := orderOf(t, merged); got != 0 {
		t.Fatalf("vote moved order to %d", got)
	}
	if merged.Data["votes"] != 5 {
		t.Fatalf("votes = %v, want 5", merged.Data["votes"])
	}
}

func TestRepackChannelCountsChanges(t *testing.T) {
	openTestStore(t)
	for _, id := range []string{"s1", "s2", "s3"} {
		mustCreate(t, "sections", "room", id, map[string]any{"title": id})
	}
	// introduce drift through a partial update
	if _, _, err := Update("sections", "room", "s3", map[string]any{"order": 7}, 0); err != nil {
		t.Fatalf("drift failed: %v", err)
	}
	changed, err := RepackChannel("sections", "room")
	if err != nil {
		t.Fatalf("repack failed: %v", err)
	}
	if changed != 1 {
		t.Fatalf("repack changed %d rows, want 1", changed)
	}
}

func TestChannelsListsDistinctChannels(t *testing.T) {
	openTestStore(t)
	mustCreate(t, "chat", "alpha", "c1", map[string]any{"text": "x"})
	mustCreate(t, "chat", "alpha", "c2", map[string]any{"text": "y"})
	mustCreate(t, "chat", "beta", "c3", map[string]any{"text": "z"})
	chs, err := Channels("chat")
	if err != nil {
		t.Fatalf("channels failed: %v", err)
	}
	if len(chs) != 2 {
		t.Fatalf("got %d channels, want 2: %v", len(chs), chs)
	}
}
