package fanout

import (
	"fmt"
	"sync"
	"testing"

	"huddle/pkg/channel"
	"huddle/pkg/models"
)

type recorder struct {
	id   string
	fail bool

	mu     sync.Mutex
	events []string
}

func (r *recorder) SocketID() string { return r.id }

func (r *recorder) Send(event string, _ any) error {
	if r.fail {
		return fmt.Errorf("socket gone")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func setup(t *testing.T) (*channel.Manager, *Broadcaster, *recorder, *recorder) {
	t.Helper()
	m := channel.NewManager(func(string) (models.InitState, error) {
		return models.InitState{}, nil
	}, 0)
	b := New(m)
	alice := &recorder{id: "s-alice"}
	bob := &recorder{id: "s-bob"}
	if _, _, err := m.Join("room", "alice", "Alice", alice); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if _, _, err := m.Join("room", "bob", "Bob", bob); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	return m, b, alice, bob
}

func TestEnvelopeExcludesSender(t *testing.T) {
	_, b, alice, bob := setup(t)
	b.Envelope("room", "add-goal", models.Envelope{ID: "g1", Channel: "room"}, "alice")
	if len(alice.got()) != 0 {
		t.Fatalf("sender received its own broadcast: %v", alice.got())
	}
	got := bob.got()
	if len(got) != 1 || got[0] != "add-goal" {
		t.Fatalf("bob events = %v", got)
	}
}

func TestEnvelopeStampsServerTimestamp(t *testing.T) {
	m := channel.NewManager(func(string) (models.InitState, error) {
		return models.InitState{}, nil
	}, 0)
	b := New(m)
	var stamped int64
	probe := &payloadProbe{fn: func(p any) {
		if env, ok := p.(models.Envelope); ok {
			stamped = env.ServerTimestamp
		}
	}}
	if _, _, err := m.Join("room", "u1", "x", probe); err != nil {
		t.Fatalf("join: %v", err)
	}
	b.Envelope("room", "add-chat", models.Envelope{ID: "c1", Channel: "room"}, "")
	if stamped == 0 {
		t.Fatalf("server timestamp not stamped at send")
	}
}

type payloadProbe struct {
	fn func(any)
}

func (p *payloadProbe) SocketID() string { return "probe" }

func (p *payloadProbe) Send(_ string, payload any) error {
	p.fn(payload)
	return nil
}

func TestRosterGoesToEveryone(t *testing.T) {
	_, b, alice, bob := setup(t)
	b.Roster("room")
	if len(alice.got()) != 1 || len(bob.got()) != 1 {
		t.Fatalf("roster delivery: alice=%v bob=%v", alice.got(), bob.got())
	}
}

func TestJoinedExcludesJoiner(t *testing.T) {
	m, b, alice, bob := setup(t)
	u, _ := m.Member("room", "bob")
	b.Joined("room", u)
	if len(bob.got()) != 0 {
		t.Fatalf("joiner received its own announcement")
	}
	got := alice.got()
	if len(got) != 1 || got[0] != EventJoined {
		t.Fatalf("alice events = %v", got)
	}
}

func TestDeliveryIsBestEffort(t *testing.T) {
	m := channel.NewManager(func(string) (models.InitState, error) {
		return models.InitState{}, nil
	}, 0)
	b := New(m)
	dead := &recorder{id: "s-dead", fail: true}
	live := &recorder{id: "s-live"}
	m.Join("room", "dead", "x", dead)
	m.Join("room", "live", "y", live)
	b.Envelope("room", "add-chat", models.Envelope{ID: "c1", Channel: "room"}, "")
	if len(live.got()) != 1 {
		t.Fatalf("failed socket blocked delivery to the rest")
	}
}
