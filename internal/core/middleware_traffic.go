package core

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"breathewatch/internal/types"
)

// limiterIdleTTL is how long an idle client's bucket is kept before eviction.
const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client IP.
type clientLimiter struct {
	mu        sync.Mutex
	clients   map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		clients: make(map[string]*limiterEntry),
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

// reserve reports whether key may proceed, the tokens left, and how long to
// wait before retrying when denied.
func (c *clientLimiter) reserve(key string) (allowed bool, remaining int, retryAfter time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) > limiterIdleTTL {
		for k, e := range c.clients {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(c.clients, k)
			}
		}
		c.lastSweep = now
	}

	e, ok := c.clients[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.clients[key] = e
	}
	e.lastSeen = now

	if e.limiter.AllowN(now, 1) {
		return true, int(math.Max(0, math.Floor(e.limiter.TokensAt(now)))), 0
	}

	r := e.limiter.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, 0, wait
}

// RateLimit enforces a per-client token bucket on the routes it wraps.
// It is a pass-through when RATE_LIMIT_RPS is zero.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := s.clients.clientIP(r)
		allowed, remaining, retryAfter := s.limiter.reserve(ip)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.limiter.burst))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			secs := int(math.Ceil(retryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))

			types.LoggerFromContext(r.Context(), s.Logger).Warn("rate limit exceeded",
				"ip", ip, "method", r.Method, "path", r.URL.Path)
			Error(w, r, types.NewAppError(types.ErrCodeRateLimit,
				"Too many requests. Please retry later.", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientResolver derives the rate-limit key for a request. By default it is
// the socket peer. With trustProxy set, X-Forwarded-For is walked from the
// right and the first hop that is not a trusted proxy wins; the direct peer
// is always treated as trusted in that mode.
type clientResolver struct {
	trustProxy bool
	trusted    []netip.Prefix
}

func newClientResolver(trustProxy bool, cidrs []string) (clientResolver, error) {
	res := clientResolver{trustProxy: trustProxy}
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			return clientResolver{}, fmt.Errorf("invalid trusted proxy CIDR %q: %w", c, err)
		}
		res.trusted = append(res.trusted, p.Masked())
	}
	return res, nil
}

func (c clientResolver) clientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !c.trustProxy {
		return peer
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		addr, err := netip.ParseAddr(hop)
		if err != nil {
			// An unparsable hop is client-supplied and must not become a key.
			break
		}
		if !c.isTrusted(addr) {
			return addr.Unmap().String()
		}
	}
	return peer
}

func (c clientResolver) isTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range c.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// remoteHost strips the port from RemoteAddr. Lambda Function URLs set it
// to the bare source IP.
func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
