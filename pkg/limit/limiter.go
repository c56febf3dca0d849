package limit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Pool hands out one token-bucket limiter per socket id so a single
// chatty client cannot starve a channel. Zero-value config falls back to
// permissive defaults.
type Pool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func NewPool(rps float64, burst int) *Pool {
	if rps <= 0 {
		rps = 50
	}
	if burst <= 0 {
		burst = 100
	}
	return &Pool{m: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (p *Pool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = l
	return l
}

// Allow reports whether one more event from key fits the budget.
func (p *Pool) Allow(key string) bool {
	return p.get(key).Allow()
}

// Forget drops the limiter for a disconnected socket.
func (p *Pool) Forget(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
}
