// Package config handles application configuration.
package config

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// Authentication
	JWTSecret string
	JWTExpiry time.Duration

	// Admin API key (raw value from env; compared via derived hash)
	AdminKey           []byte
	adminKeyConfigured bool

	// Alipay
	AlipayAppID      string
	AlipayPrivateKey string // PKCS#8 PEM, application private key
	AlipayPublicKey  string // PKIX PEM, Alipay's public key (for notify verification)
	AlipayGatewayURL string
	AlipayNotifyURL  string

	// PayPal
	PayPalClientID string
	PayPalSecret   string
	PayPalBaseURL  string // live or sandbox API base

	// Resend email delivery
	ResendAPIKey        string
	ResendFromAddress   string
	ResendWebhookSecret string // svix signing secret for inbound events

	// Downloads
	GitHubRepo        string // owner/repo serving release assets
	ChinaDownloadBase string // mirror base URL for the China proxy

	// CORS
	CORSOrigins []string

	// Cleanup
	CleanupEnabled  bool
	CleanupInterval time.Duration
	PendingOrderTTL time.Duration

	// Abuse protection
	AbuseWindow       time.Duration // sliding window for per-IP counting
	AbuseThreshold    int           // requests per window before blocking
	AbuseBlockFor     time.Duration // temporary block duration
	BlocklistBucket   string        // optional S3 bucket with operator blocklist
	BlocklistKey      string
	StorageEndpoint   string
	StorageAccessKey  string
	StorageSecretKey  string
	StorageRegion     string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:leadgrid.db?_journal=WAL&_timeout=5000"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTExpiry: getEnvDuration("JWT_EXPIRY", 24*time.Hour),

		AlipayAppID:      getEnv("ALIPAY_APP_ID", ""),
		AlipayPrivateKey: getEnv("ALIPAY_PRIVATE_KEY", ""),
		AlipayPublicKey:  getEnv("ALIPAY_PUBLIC_KEY", ""),
		AlipayGatewayURL: getEnv("ALIPAY_GATEWAY_URL", "https://openapi.alipay.com/gateway.do"),
		AlipayNotifyURL:  getEnv("ALIPAY_NOTIFY_URL", ""),

		PayPalClientID: getEnv("PAYPAL_CLIENT_ID", ""),
		PayPalSecret:   getEnv("PAYPAL_SECRET", ""),
		PayPalBaseURL:  getEnv("PAYPAL_BASE_URL", "https://api-m.paypal.com"),

		ResendAPIKey:        getEnv("RESEND_API_KEY", ""),
		ResendFromAddress:   getEnv("RESEND_FROM_ADDRESS", "LeadGrid <noreply@leadgrid.app>"),
		ResendWebhookSecret: getEnv("RESEND_WEBHOOK_SECRET", ""),

		GitHubRepo:        getEnv("GITHUB_RELEASE_REPO", "leadgrid/desktop-releases"),
		ChinaDownloadBase: getEnv("CHINA_DOWNLOAD_BASE", ""),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"https://leadgrid.app", "https://www.leadgrid.app"}),

		CleanupEnabled:  getEnvBool("CLEANUP_ENABLED", true),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", 1*time.Hour),
		PendingOrderTTL: getEnvDuration("PENDING_ORDER_TTL", 2*time.Hour),

		AbuseWindow:    getEnvDuration("ABUSE_WINDOW", 1*time.Minute),
		AbuseThreshold: getEnvInt("ABUSE_THRESHOLD", 300),
		AbuseBlockFor:  getEnvDuration("ABUSE_BLOCK_FOR", 15*time.Minute),

		BlocklistBucket:  getEnv("BLOCKLIST_BUCKET", ""),
		BlocklistKey:     getEnv("BLOCKLIST_KEY", "config/blocklist.json"),
		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if adminKey := getEnv("ADMIN_API_KEY", ""); adminKey != "" {
		cfg.AdminKey = deriveKey(adminKey, "admin-api-key")
		cfg.adminKeyConfigured = true
	}

	return cfg, nil
}

// AdminEnabled reports whether the admin surface is configured.
func (c *Config) AdminEnabled() bool {
	return c.adminKeyConfigured
}

// VerifyAdminKey compares a presented admin key against the configured
// one. Comparison happens on derived keys so timing leaks nothing about
// the raw secret.
func (c *Config) VerifyAdminKey(presented string) bool {
	if !c.adminKeyConfigured {
		return false
	}
	derived := deriveKey(presented, "admin-api-key")
	if len(derived) != len(c.AdminKey) {
		return false
	}
	var diff byte
	for i := range derived {
		diff |= derived[i] ^ c.AdminKey[i]
	}
	return diff == 0
}

// AlipayEnabled reports whether the Alipay gateway is configured.
func (c *Config) AlipayEnabled() bool {
	return c.AlipayAppID != "" && c.AlipayPrivateKey != ""
}

// PayPalEnabled reports whether the PayPal gateway is configured.
func (c *Config) PayPalEnabled() bool {
	return c.PayPalClientID != "" && c.PayPalSecret != ""
}

// BlocklistEnabled reports whether the S3-backed operator blocklist is
// configured.
func (c *Config) BlocklistEnabled() bool {
	return c.BlocklistBucket != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// deriveKey produces a 32-byte key from a secret using HKDF-SHA256 so
// comparisons never touch the raw secret bytes.
func deriveKey(secret, purpose string) []byte {
	salt := []byte("leadgrid-api-key-v1")
	hkdfReader := hkdf.New(sha256.New, []byte(secret), salt, []byte(purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		panic("hkdf: failed to derive key: " + err.Error())
	}
	return key
}
