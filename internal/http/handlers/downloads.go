package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/leadgrid/leadgrid-api/internal/service"
)

// DownloadHandler serves desktop installer metadata and the download
// proxy routes. The proxy routes are raw chi handlers because they
// stream bytes or issue redirects, which does not fit the typed API
// surface.
type DownloadHandler struct {
	downloads *service.DownloadService
	logger    *slog.Logger
}

func NewDownloadHandler(downloads *service.DownloadService, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{downloads: downloads, logger: logger}
}

// LatestReleaseOutput describes the newest published desktop build.
type LatestReleaseOutput struct {
	Body struct {
		TagName     string `json:"tag_name"`
		Name        string `json:"name"`
		PublishedAt string `json:"published_at"`
		Assets      []struct {
			Name string `json:"name"`
			Size int64  `json:"size"`
		} `json:"assets"`
	}
}

// LatestRelease reports the current release tag and its assets so the
// website can render version and file size without hitting GitHub from
// the browser.
func (h *DownloadHandler) LatestRelease(ctx context.Context, _ *struct{}) (*LatestReleaseOutput, error) {
	release, err := h.downloads.LatestRelease(ctx)
	if err != nil {
		h.logger.Error("latest release lookup failed", "error", err)
		return nil, mapServiceError(err)
	}

	out := &LatestReleaseOutput{}
	out.Body.TagName = release.TagName
	out.Body.Name = release.Name
	out.Body.PublishedAt = release.PublishedAt.Format(time.RFC3339)
	for _, a := range release.Assets {
		out.Body.Assets = append(out.Body.Assets, struct {
			Name string `json:"name"`
			Size int64  `json:"size"`
		}{Name: a.Name, Size: a.Size})
	}
	return out, nil
}

// Proxy handles GET /api/v1/download-proxy?asset=name. Large assets
// are answered with a redirect to the upstream URL, small ones are
// streamed through.
func (h *DownloadHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.downloads.Resolve)
}

// ChinaProxy handles GET /api/v1/china-download-proxy?asset=name and
// always streams from the mirror.
func (h *DownloadHandler) ChinaProxy(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.downloads.ResolveChina)
}

func (h *DownloadHandler) serve(w http.ResponseWriter, r *http.Request, resolve func(context.Context, string) (*service.Download, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	assetName := r.URL.Query().Get("asset")
	dl, err := resolve(ctx, assetName)
	if err != nil {
		h.logger.Error("download resolve failed", "asset", assetName, "error", err)
		http.Error(w, "download unavailable", http.StatusBadGateway)
		return
	}

	if dl.RedirectURL != "" {
		http.Redirect(w, r, dl.RedirectURL, http.StatusTemporaryRedirect)
		return
	}
	defer dl.Body.Close()

	contentType := dl.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Name))
	if dl.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	}
	if _, err := io.Copy(w, dl.Body); err != nil {
		// Client likely went away mid-stream; nothing to send back.
		h.logger.Debug("download stream interrupted", "asset", dl.Name, "error", err)
	}
}
