package mw

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// AbuseTracker counts requests per client IP over a sliding window and
// temporarily blocks addresses that exceed the threshold. It sits above
// the plain rate limiter: the limiter smooths bursts, the tracker
// ejects clients that keep hammering anyway.
type AbuseTracker struct {
	window    time.Duration
	threshold int
	blockFor  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	clients map[string]*clientRecord
}

type clientRecord struct {
	hits         []time.Time
	blockedUntil time.Time
}

// AbuseConfig holds the tracker's tuning knobs.
type AbuseConfig struct {
	Window    time.Duration // sliding window length
	Threshold int           // requests per window before blocking
	BlockFor  time.Duration // how long an offender stays blocked
	Logger    *slog.Logger
}

// NewAbuseTracker creates a tracker. Zero values get safe defaults.
func NewAbuseTracker(cfg AbuseConfig) *AbuseTracker {
	if cfg.Window == 0 {
		cfg.Window = time.Minute
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 300
	}
	if cfg.BlockFor == 0 {
		cfg.BlockFor = 15 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AbuseTracker{
		window:    cfg.Window,
		threshold: cfg.Threshold,
		blockFor:  cfg.BlockFor,
		logger:    cfg.Logger,
		clients:   make(map[string]*clientRecord),
	}
}

// Middleware returns the HTTP middleware handler.
func (t *AbuseTracker) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractIP(r)
			if t.record(ip) {
				w.Header().Set("Retry-After", formatSeconds(t.blockFor))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// record registers one hit and reports whether the client is blocked.
func (t *AbuseTracker) record(ip string) bool {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.clients[ip]
	if !ok {
		rec = &clientRecord{}
		t.clients[ip] = rec
	}

	if now.Before(rec.blockedUntil) {
		return true
	}

	// Drop hits that slid out of the window.
	cutoff := now.Add(-t.window)
	kept := rec.hits[:0]
	for _, hit := range rec.hits {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}
	rec.hits = append(kept, now)

	if len(rec.hits) > t.threshold {
		rec.blockedUntil = now.Add(t.blockFor)
		rec.hits = nil
		t.logger.Warn("client temporarily blocked for abuse",
			"ip", ip,
			"threshold", t.threshold,
			"window", t.window.String(),
			"block_for", t.blockFor.String(),
		)
		return true
	}
	return false
}

// Start launches the periodic sweep that drops idle client records,
// keeping memory bounded by the number of recently active IPs.
func (t *AbuseTracker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(t.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.sweep(time.Now())
			}
		}
	}()
}

func (t *AbuseTracker) sweep(now time.Time) {
	cutoff := now.Add(-t.window)

	t.mu.Lock()
	defer t.mu.Unlock()
	for ip, rec := range t.clients {
		if now.Before(rec.blockedUntil) {
			continue
		}
		idle := true
		for _, hit := range rec.hits {
			if hit.After(cutoff) {
				idle = false
				break
			}
		}
		if idle {
			delete(t.clients, ip)
		}
	}
}

// extractIP returns the client address without the port. Assumes
// middleware.RealIP already resolved proxy headers into RemoteAddr.
func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func formatSeconds(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
