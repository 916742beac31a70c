package mw

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// IPBlocklist rejects requests from operator-listed addresses. The list
// lives in S3 as a JSON array of IPs and CIDR ranges so it can be
// edited without a deploy: fetched lazily, cached by etag, and failing
// open when storage is unreachable.
type IPBlocklist struct {
	s3Client *s3.Client
	bucket   string
	key      string

	mu           sync.RWMutex
	blocked      map[string]bool
	blockedCIDRs []*net.IPNet
	etag         string
	lastCheck    time.Time
	lastError    time.Time
	initialized  bool
	cacheTTL     time.Duration
	errorBackoff time.Duration
	logger       *slog.Logger
}

// BlocklistConfig holds configuration for the IP blocklist.
type BlocklistConfig struct {
	S3Client     *s3.Client
	Bucket       string
	Key          string
	CacheTTL     time.Duration
	ErrorBackoff time.Duration
	Logger       *slog.Logger
}

// NewIPBlocklist creates the middleware. The list is loaded on first
// request, not at construction.
func NewIPBlocklist(cfg BlocklistConfig) *IPBlocklist {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = 1 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &IPBlocklist{
		s3Client:     cfg.S3Client,
		bucket:       cfg.Bucket,
		key:          cfg.Key,
		blocked:      make(map[string]bool),
		cacheTTL:     cfg.CacheTTL,
		errorBackoff: cfg.ErrorBackoff,
		logger:       cfg.Logger,
	}
}

// Middleware returns the HTTP middleware handler.
func (b *IPBlocklist) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if b.s3Client == nil {
				next.ServeHTTP(w, r)
				return
			}

			b.maybeRefresh(r.Context())

			ip := extractIP(r)
			if b.isBlocked(ip) {
				b.logger.Warn("blocked request from blocklisted IP", "ip", ip, "path", r.URL.Path)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (b *IPBlocklist) maybeRefresh(ctx context.Context) {
	b.mu.RLock()
	needsRefresh := !b.initialized || time.Since(b.lastCheck) > b.cacheTTL
	inBackoff := !b.lastError.IsZero() && time.Since(b.lastError) < b.errorBackoff
	b.mu.RUnlock()

	if !needsRefresh || inBackoff {
		return
	}
	// Refresh in the background so no request waits on S3.
	go b.refresh(ctx)
}

func (b *IPBlocklist) refresh(ctx context.Context) {
	b.mu.Lock()
	if b.initialized && time.Since(b.lastCheck) < b.cacheTTL {
		b.mu.Unlock()
		return
	}
	currentEtag := b.etag
	b.mu.Unlock()

	input := &s3.GetObjectInput{
		Bucket: &b.bucket,
		Key:    &b.key,
	}
	if currentEtag != "" {
		input.IfNoneMatch = &currentEtag
	}

	resp, err := b.s3Client.GetObject(ctx, input)
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			b.markChecked(true)
			b.logger.Debug("no blocklist object in bucket", "bucket", b.bucket, "key", b.key)
			return
		}
		var notModified interface{ ErrorCode() string }
		if errors.As(err, &notModified) && notModified.ErrorCode() == "NotModified" {
			b.markChecked(false)
			return
		}
		b.markChecked(true)
		b.logger.Error("blocklist fetch failed", "error", err, "bucket", b.bucket)
		return
	}
	defer resp.Body.Close()

	var entries []string
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		b.markChecked(true)
		b.logger.Error("blocklist is not a JSON string array", "error", err)
		return
	}

	blocked := make(map[string]bool)
	var cidrs []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				b.logger.Warn("invalid CIDR in blocklist", "entry", entry)
				continue
			}
			cidrs = append(cidrs, ipNet)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			blocked[ip.String()] = true
		} else {
			b.logger.Warn("invalid IP in blocklist", "entry", entry)
		}
	}

	b.mu.Lock()
	b.blocked = blocked
	b.blockedCIDRs = cidrs
	b.initialized = true
	b.lastCheck = time.Now()
	b.lastError = time.Time{}
	if resp.ETag != nil {
		b.etag = *resp.ETag
	}
	b.mu.Unlock()

	b.logger.Info("blocklist refreshed", "ips", len(blocked), "cidrs", len(cidrs))
}

// markChecked records a completed check; failed marks it as an error so
// the backoff applies before the next attempt.
func (b *IPBlocklist) markChecked(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = true
	b.lastCheck = time.Now()
	if failed {
		b.lastError = time.Now()
	}
}

func (b *IPBlocklist) isBlocked(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.blocked[ip.String()] {
		return true
	}
	for _, cidr := range b.blockedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
