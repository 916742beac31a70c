package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/leadgrid/leadgrid-api/internal/config"
	"github.com/leadgrid/leadgrid-api/internal/constants"
)

// DownloadService resolves desktop installer assets from GitHub
// releases and decides between redirecting the client and streaming
// the bytes through us. Small assets are streamed so clients behind
// networks that block the release CDN still get them; large ones are
// redirected to keep the API out of the data path.
type DownloadService struct {
	cfg     *config.Config
	client  *http.Client
	apiBase string
	logger  *slog.Logger
}

func NewDownloadService(cfg *config.Config, logger *slog.Logger) *DownloadService {
	return &DownloadService{
		cfg: cfg,
		client: &http.Client{
			Timeout: 2 * time.Minute, // streaming a full installer
		},
		apiBase: "https://api.github.com",
		logger:  logger,
	}
}

// ReleaseAsset is one downloadable file from the latest release.
type ReleaseAsset struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"browser_download_url"`
}

// Release describes the latest published release.
type Release struct {
	TagName     string         `json:"tag_name"`
	Name        string         `json:"name"`
	PublishedAt time.Time      `json:"published_at"`
	Assets      []ReleaseAsset `json:"assets"`
}

// Download is a resolved asset ready to serve. Exactly one of
// RedirectURL and Body is set; the caller must close Body when present.
type Download struct {
	Name        string
	Size        int64
	ContentType string
	RedirectURL string
	Body        io.ReadCloser
}

// LatestRelease fetches the newest release of the configured repo.
func (s *DownloadService) LatestRelease(ctx context.Context) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", s.apiBase, s.cfg.GitHubRepo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build release request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch latest release: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch latest release: unexpected status %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decode release: %w", err)
	}
	return &release, nil
}

// Resolve returns the named asset from the latest release, or the
// first asset when name is empty.
func (s *DownloadService) Resolve(ctx context.Context, assetName string) (*Download, error) {
	release, err := s.LatestRelease(ctx)
	if err != nil {
		return nil, err
	}
	if len(release.Assets) == 0 {
		return nil, fmt.Errorf("release %s has no assets", release.TagName)
	}

	asset := release.Assets[0]
	if assetName != "" {
		found := false
		for _, a := range release.Assets {
			if a.Name == assetName {
				asset, found = a, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("asset %q not found in release %s", assetName, release.TagName)
		}
	}

	if asset.Size > constants.DownloadRedirectThreshold {
		return &Download{Name: asset.Name, Size: asset.Size, RedirectURL: asset.DownloadURL}, nil
	}
	return s.stream(ctx, asset)
}

// ResolveChina serves the asset from the configured China mirror,
// streaming regardless of size since the mirror is the whole point.
func (s *DownloadService) ResolveChina(ctx context.Context, assetName string) (*Download, error) {
	if s.cfg.ChinaDownloadBase == "" {
		return s.Resolve(ctx, assetName)
	}
	release, err := s.LatestRelease(ctx)
	if err != nil {
		return nil, err
	}
	if assetName == "" {
		if len(release.Assets) == 0 {
			return nil, fmt.Errorf("release %s has no assets", release.TagName)
		}
		assetName = release.Assets[0].Name
	}
	url := fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.cfg.ChinaDownloadBase, "/"), release.TagName, assetName)
	return s.stream(ctx, ReleaseAsset{Name: assetName, DownloadURL: url})
}

func (s *DownloadService) stream(ctx context.Context, asset ReleaseAsset) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.DownloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch asset: unexpected status %d", resp.StatusCode)
	}

	size := asset.Size
	if size == 0 {
		size = resp.ContentLength
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Download{
		Name:        asset.Name,
		Size:        size,
		ContentType: contentType,
		Body:        resp.Body,
	}, nil
}
