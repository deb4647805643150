package http

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"membership-backend/internal/logger"
	"membership-backend/internal/storage"
)

// DownloadFile serves a proof image from mock storage. The link must carry
// the signature produced by MockStorageService.URL.
func (h *Handlers) DownloadFile(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	q := r.URL.Query()
	if !h.files.Verify(key, q.Get("expires"), q.Get("signature")) {
		h.errorJSON(w, r, http.StatusForbidden, "Link has expired or is invalid", nil)
		return
	}

	file, err := h.files.ReadFile(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.errorJSON(w, r, http.StatusNotFound, "File not found", nil)
			return
		}
		logger.ErrorContext(r.Context(), "Failed to open stored file", "key", key, "error", err)
		h.errorJSON(w, r, http.StatusInternalServerError, "Failed to read file", nil)
		return
	}
	defer file.Close()

	contentType := "application/octet-stream"
	switch strings.ToLower(filepath.Ext(key)) {
	case ".jpg", ".jpeg":
		contentType = "image/jpeg"
	case ".png":
		contentType = "image/png"
	case ".gif":
		contentType = "image/gif"
	case ".webp":
		contentType = "image/webp"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, file); err != nil {
		logger.Debug("File download interrupted", "key", key, "error", err)
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			logger.WarnContext(r.Context(), "Health check failed", "error", err)
			h.writeJSON(w, http.StatusServiceUnavailable, envelope{"status": "unavailable"}, nil)
			return
		}
	}
	h.writeJSON(w, http.StatusOK, envelope{"status": "available"}, nil)
}
