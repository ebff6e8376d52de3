package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterPool keeps one token bucket per API key (or per remote address for
// unauthenticated probes). Explicit RPS/Burst config applies to every caller;
// otherwise backend services, which batch reaction and comment writes, get
// more headroom than browser-held frontend keys.
type limiterPool struct {
	mu  sync.Mutex
	m   map[string]*rate.Limiter
	cfg SecConfig
}

func (p *limiterPool) limitsFor(role Role) (float64, int) {
	rps, burst := p.cfg.RPS, p.cfg.Burst
	if rps > 0 && burst > 0 {
		return rps, burst
	}
	defRPS, defBurst := 5.0, 10
	if role == RoleBackend || role == RoleAdmin {
		defRPS, defBurst = 50.0, 100
	}
	if rps <= 0 {
		rps = defRPS
	}
	if burst <= 0 {
		burst = defBurst
	}
	return rps, burst
}

func (p *limiterPool) Allow(role Role, key string) bool {
	p.mu.Lock()
	if p.m == nil {
		p.m = make(map[string]*rate.Limiter)
	}
	l, ok := p.m[key]
	if !ok {
		rps, burst := p.limitsFor(role)
		l = rate.NewLimiter(rate.Limit(rps), burst)
		p.m[key] = l
	}
	p.mu.Unlock()
	return l.Allow()
}
