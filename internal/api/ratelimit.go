package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// LimitConfig sets the per-client token bucket. Cheap reads cost one token;
// requests that run a batch, respawn the world or render a frame cost
// HeavyCost tokens.
type LimitConfig struct {
	Rate      float64       // tokens refilled per second
	Burst     int           // bucket size
	HeavyCost int           // tokens charged for batch, reset and frame requests
	IdleTTL   time.Duration // buckets unused this long are swept
}

// DefaultLimitConfig lets a page poll /api/state several times a second and
// still run a batch or fetch a frame every second or so.
var DefaultLimitConfig = LimitConfig{
	Rate:      20,
	Burst:     40,
	HeavyCost: 5,
	IdleTTL:   10 * time.Minute,
}

// LimiterStats counts limiter decisions since start.
type LimiterStats struct {
	Allowed  uint64 `json:"allowed"`
	Rejected uint64 `json:"rejected"`
}

type clientBucket struct {
	tokens   *rate.Limiter
	lastUsed atomic.Int64 // unix nano
}

// RequestLimiter keeps one token bucket per client IP.
type RequestLimiter struct {
	cfg     LimitConfig
	buckets sync.Map // client ip -> *clientBucket

	allowed  atomic.Uint64
	rejected atomic.Uint64

	quit     chan struct{}
	quitOnce sync.Once
}

// NewRequestLimiter starts the sweeper that drops idle buckets. Stop ends it.
func NewRequestLimiter(cfg LimitConfig) *RequestLimiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultLimitConfig.IdleTTL
	}
	if cfg.HeavyCost <= 0 {
		cfg.HeavyCost = 1
	}
	l := &RequestLimiter{cfg: cfg, quit: make(chan struct{})}
	go l.sweepLoop()
	return l
}

// Stop ends the sweeper. Safe to call more than once.
func (l *RequestLimiter) Stop() {
	l.quitOnce.Do(func() { close(l.quit) })
}

// Allow spends cost tokens from ip's bucket. A cost above the burst is
// charged as the whole bucket.
func (l *RequestLimiter) Allow(ip string, cost int) bool {
	now := time.Now()
	if !l.bucket(ip, now).tokens.AllowN(now, min(cost, l.cfg.Burst)) {
		l.rejected.Add(1)
		return false
	}
	l.allowed.Add(1)
	return true
}

// Stats returns the allow and reject counters.
func (l *RequestLimiter) Stats() LimiterStats {
	return LimiterStats{Allowed: l.allowed.Load(), Rejected: l.rejected.Load()}
}

// Middleware answers 429 with Retry-After once a client's bucket is empty.
func (l *RequestLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientIP(r), l.cost(r)) {
			RecordConnectionRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			writeError(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cost prices a request by the work it triggers in the engine.
func (l *RequestLimiter) cost(r *http.Request) int {
	switch {
	case r.Method == http.MethodPost && (r.URL.Path == "/api/batch" || r.URL.Path == "/api/reset"):
		return l.cfg.HeavyCost
	case r.URL.Path == "/frame.png":
		return l.cfg.HeavyCost
	}
	return 1
}

func (l *RequestLimiter) bucket(ip string, now time.Time) *clientBucket {
	v, ok := l.buckets.Load(ip)
	if !ok {
		fresh := &clientBucket{tokens: rate.NewLimiter(rate.Limit(l.cfg.Rate), l.cfg.Burst)}
		v, _ = l.buckets.LoadOrStore(ip, fresh)
	}
	b := v.(*clientBucket)
	b.lastUsed.Store(now.UnixNano())
	return b
}

func (l *RequestLimiter) sweepLoop() {
	ticker := time.NewTicker(l.cfg.IdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-l.quit:
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

func (l *RequestLimiter) sweep(now time.Time) {
	cutoff := now.Add(-l.cfg.IdleTTL).UnixNano()
	l.buckets.Range(func(ip, v any) bool {
		if v.(*clientBucket).lastUsed.Load() < cutoff {
			l.buckets.Delete(ip)
		}
		return true
	})
}

// ClientIP is the first X-Forwarded-For hop, then X-Real-IP, then the
// socket address. Forwarding headers are trusted as sent.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ConnLimiter caps open websocket connections per client IP.
type ConnLimiter struct {
	mu    sync.Mutex
	open  map[string]int
	limit int
}

func NewConnLimiter(limit int) *ConnLimiter {
	return &ConnLimiter{open: make(map[string]int), limit: limit}
}

// Acquire takes a slot for ip. Every successful Acquire needs a Release.
func (c *ConnLimiter) Acquire(ip string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open[ip] >= c.limit {
		return false
	}
	c.open[ip]++
	return true
}

// Release returns ip's slot. Clients with no open connections are forgotten.
func (c *ConnLimiter) Release(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.open[ip]; n > 1 {
		c.open[ip] = n - 1
	} else {
		delete(c.open, ip)
	}
}

// Open reports ip's open connections.
func (c *ConnLimiter) Open(ip string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open[ip]
}

// DefaultCORSOrigins are the chi/cors patterns used when RouterConfig leaves
// CORSOrigins nil.
var DefaultCORSOrigins = []string{
	"http://localhost:*",
	"http://127.0.0.1:*",
}

// IsLocalOrigin gates websocket upgrades: pages served from this machine,
// and clients that send no Origin at all.
func IsLocalOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	for _, host := range []string{"http://localhost", "http://127.0.0.1"} {
		if rest, ok := strings.CutPrefix(origin, host); ok && (rest == "" || rest[0] == ':') {
			return true
		}
	}
	return false
}
