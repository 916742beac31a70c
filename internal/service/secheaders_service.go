package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// securityHeaders are the response headers the checker reports on, in
// display order.
var securityHeaders = []string{
	"Strict-Transport-Security",
	"Content-Security-Policy",
	"X-Content-Type-Options",
	"X-Frame-Options",
	"Referrer-Policy",
	"Permissions-Policy",
	"Cross-Origin-Opener-Policy",
	"Cross-Origin-Resource-Policy",
}

// SecHeadersService fetches a site and reports which standard security
// response headers it sets. Backs the free checker tool on the website.
type SecHeadersService struct {
	client *http.Client
	logger *slog.Logger
}

func NewSecHeadersService(logger *slog.Logger) *SecHeadersService {
	return &SecHeadersService{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// HeaderResult is a single header's presence and value.
type HeaderResult struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
	Value   string `json:"value,omitempty"`
}

// SecHeadersReport is the result of checking one URL.
type SecHeadersReport struct {
	URL        string         `json:"url"`
	StatusCode int            `json:"status_code"`
	Headers    []HeaderResult `json:"headers"`
	Present    int            `json:"present"`
	Total      int            `json:"total"`
}

// Check fetches the target over HTTPS (scheme is forced when missing)
// and reports each security header's presence.
func (s *SecHeadersService) Check(ctx context.Context, target string) (*SecHeadersReport, error) {
	normalized, err := normalizeTarget(target)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, normalized, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "leadgrid-header-check/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", normalized, err)
	}
	defer resp.Body.Close()

	report := &SecHeadersReport{
		URL:        normalized,
		StatusCode: resp.StatusCode,
		Total:      len(securityHeaders),
	}
	for _, name := range securityHeaders {
		value := resp.Header.Get(name)
		result := HeaderResult{Name: name, Present: value != "", Value: value}
		if result.Present {
			report.Present++
		}
		report.Headers = append(report.Headers, result)
	}
	return report, nil
}

func normalizeTarget(target string) (string, error) {
	if target == "" {
		return "", fmt.Errorf("url is required")
	}
	if !hasScheme(target) {
		target = "https://" + target
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid url scheme")
	}
	return u.String(), nil
}

func hasScheme(target string) bool {
	for i := 0; i < len(target); i++ {
		switch {
		case target[i] == ':':
			return i > 0 && len(target) > i+2 && target[i+1] == '/' && target[i+2] == '/'
		case target[i] == '/' || target[i] == '?' || target[i] == '#':
			return false
		}
	}
	return false
}
