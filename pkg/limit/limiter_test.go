package limit

import "testing"

func TestPoolAllowsWithinBurst(t *testing.T) {
	p := NewPool(1, 3)
	for i := 0; i < 3; i++ {
		if !p.Allow("s1") {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	if p.Allow("s1") {
		t.Fatalf("request beyond burst allowed")
	}
	// independent key has its own bucket
	if !p.Allow("s2") {
		t.Fatalf("fresh key denied")
	}
}

func TestForgetResetsBucket(t *testing.T) {
	p := NewPool(1, 1)
	if !p.Allow("s1") {
		t.Fatalf("first request denied")
	}
	if p.Allow("s1") {
		t.Fatalf("second request allowed")
	}
	p.Forget("s1")
	if !p.Allow("s1") {
		t.Fatalf("request denied after Forget")
	}
}

func TestZeroConfigFallsBackToDefaults(t *testing.T) {
	p := NewPool(0, 0)
	if p.rps != 50 || p.burst != 100 {
		t.Fatalf("defaults = %v/%v", p.rps, p.burst)
	}
}
