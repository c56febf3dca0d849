package registry

import "testing"

func TestResolveCoversEveryDeclaredEvent(t *testing.T) {
	for _, et := range All() {
		for op, ev := range et.Events {
			r, ok := Resolve(ev)
			if !ok {
				t.Fatalf("event %q not resolvable", ev)
			}
			if r.Type.Name != et.Name {
				t.Fatalf("event %q resolved to type %q, want %q", ev, r.Type.Name, et.Name)
			}
			if r.Op != op {
				t.Fatalf("event %q resolved to op %q, want %q", ev, r.Op, op)
			}
		}
	}
}

func TestResolveUnknownEvent(t *testing.T) {
	if _, ok := Resolve("add-widget"); ok {
		t.Fatalf("expected unknown event to fail resolution")
	}
	if _, ok := Resolve(""); ok {
		t.Fatalf("expected empty event to fail resolution")
	}
}

func TestOrderedAndStreamingFlags(t *testing.T) {
	ordered := map[string]bool{"goals": true, "documents": true, "sections": true}
	for _, et := range All() {
		if et.Ordered != ordered[et.Name] {
			t.Fatalf("type %q ordered=%v, want %v", et.Name, et.Ordered, ordered[et.Name])
		}
		if et.Streaming && et.Name != "llm" {
			t.Fatalf("type %q unexpectedly streaming", et.Name)
		}
	}
	llm, ok := Lookup("llm")
	if !ok || !llm.Streaming {
		t.Fatalf("llm must be the streaming type")
	}
	if llm.Events[OpDraft] != "draft-llm" {
		t.Fatalf("llm draft event = %q", llm.Events[OpDraft])
	}
}

func TestLookupByName(t *testing.T) {
	if _, ok := Lookup("goals"); !ok {
		t.Fatalf("goals not found")
	}
	if _, ok := Lookup("nope"); ok {
		t.Fatalf("unexpected type found")
	}
	if len(Names()) != len(All()) {
		t.Fatalf("Names/All length mismatch")
	}
}
