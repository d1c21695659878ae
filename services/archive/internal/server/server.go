package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"imagevault/internal/ratelimit"
	"imagevault/internal/servicetoken"
	"imagevault/internal/util"
	"imagevault/pkg/domain"
	"imagevault/services/archive/internal/app"
)

const (
	defaultMaxUploadBytes = 20 << 20
	multipartMemory       = 8 << 20
)

// UploadLimiter throttles uploads per owner.
type UploadLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Verifier       *servicetoken.Verifier
	UploadLimiter  UploadLimiter
	MaxUploadBytes int64
}

// Server exposes the archive over internal HTTP endpoints.
type Server struct {
	app            *app.App
	verifier       *servicetoken.Verifier
	limiter        UploadLimiter
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("archive app is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("service token verifier is required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		app:            cfg.App,
		verifier:       cfg.Verifier,
		limiter:        cfg.UploadLimiter,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithPrivateHeaders(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.Handle("POST /internal/owners/{owner}/images", s.withOwner(s.handleUpload))
	s.mux.Handle("GET /internal/owners/{owner}/images", s.withOwner(s.handleList))
	s.mux.Handle("GET /internal/owners/{owner}/images/search", s.withOwner(s.handleSearch))
	s.mux.Handle("GET /internal/owners/{owner}/images/{id}", s.withOwner(s.handleGet))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ownerHandler func(http.ResponseWriter, *http.Request, int64)

// withOwner authenticates the caller and binds the request to the owner in
// the path. The token's owner claim must name the same owner.
func (s *Server) withOwner(next ownerHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := servicetoken.BearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := s.verifier.Verify(token)
		if err != nil {
			util.LoggerFromContext(r.Context()).Warn("service token rejected", "err", err)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ownerID, err := strconv.ParseInt(r.PathValue("owner"), 10, 64)
		if err != nil || ownerID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid owner id")
			return
		}
		if claims.OwnerID != ownerID {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("caller", claims.Issuer))
		next(w, r.WithContext(ctx), ownerID)
	})
}

type uploadResponse struct {
	DisplayID int          `json:"displayId"`
	Image     domain.Image `json:"image"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, ownerID int64) {
	if !s.allowUpload(w, r, ownerID) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}

	upload, err := s.app.SaveUpload(r.Context(), ownerID, r.FormValue("contentRef"), data, r.FormValue("label"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{DisplayID: upload.DisplayID, Image: upload.Image})
}

func (s *Server) allowUpload(w http.ResponseWriter, r *http.Request, ownerID int64) bool {
	if s.limiter == nil {
		return true
	}
	decision, err := s.limiter.Allow(r.Context(), "owner:"+strconv.FormatInt(ownerID, 10))
	if err != nil {
		// Fail open while Redis is unavailable.
		util.LoggerFromContext(r.Context()).Error("upload rate limiter unavailable", "err", err)
		return true
	}
	if decision.Allowed {
		return true
	}
	retry := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, "too many uploads")
	return false
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, ownerID int64) {
	items, err := s.app.ListImages(r.Context(), ownerID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, ownerID int64) {
	items, err := s.app.FindImages(r.Context(), ownerID, r.URL.Query().Get("q"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, ownerID int64) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image id")
		return
	}
	img, rc, err := s.app.GetImage(r.Context(), ownerID, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	defer rc.Close()

	h := w.Header()
	h.Set("Content-Type", "image/jpeg")
	h.Set(domain.HeaderImageID, strconv.FormatInt(img.ID, 10))
	h.Set(domain.HeaderImageCreatedAt, img.CreatedAt.UTC().Format(time.RFC3339))
	if img.HasLabel() {
		h.Set(domain.HeaderImageLabel, url.QueryEscape(img.LabelOrEmpty()))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		util.LoggerFromContext(r.Context()).Warn("image stream interrupted", "image_id", img.ID, "err", err)
	}
}

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "search query is empty")
	case errors.Is(err, app.ErrInvalidUpload):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "image not found")
	case errors.Is(err, app.ErrBlobMissing):
		writeError(w, http.StatusGone, "image file missing")
	case errors.Is(err, app.ErrStorageWriteFailed):
		writeError(w, http.StatusServiceUnavailable, "storage write failed")
	default:
		util.LoggerFromContext(r.Context()).Error("archive request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

func errorCode(status int, msg string) string {
	switch strings.ToLower(strings.TrimSpace(msg)) {
	case "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case "forbidden":
		return "IMAGE_FORBIDDEN"
	case "image not found":
		return "IMAGE_NOT_FOUND"
	case "image file missing":
		return "IMAGE_BLOB_MISSING"
	case "search query is empty":
		return "IMAGE_EMPTY_QUERY"
	case "storage write failed":
		return "IMAGE_STORAGE_WRITE_FAILED"
	case "file too large":
		return "IMAGE_FILE_TOO_LARGE"
	case "file is required (field: file)":
		return "IMAGE_FILE_REQUIRED"
	case "invalid form data":
		return "IMAGE_INVALID_UPLOAD_FORM"
	case "too many uploads":
		return "IMAGE_RATE_LIMITED"
	}

	switch status {
	case http.StatusBadRequest:
		return "IMAGE_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "IMAGE_FORBIDDEN"
	case http.StatusNotFound:
		return "IMAGE_NOT_FOUND"
	case http.StatusTooManyRequests:
		return "IMAGE_RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
