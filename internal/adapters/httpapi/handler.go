// Package httpapi exposes the session and patient registry over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"capturecore/internal/blob"
	"capturecore/internal/core"
	"capturecore/pkg/domain"
)

// Registry is the service surface the handler drives.
type Registry interface {
	CreateSession(ctx context.Context, patientID string) (domain.Session, error)
	RequestUploadSlot(ctx context.Context, sessionID, baseURL string) (core.UploadSlot, error)
	StoreChunkBytes(ctx context.Context, chunkID string, r io.Reader) (blob.Info, error)
	ChunkBytes(ctx context.Context, chunkID string) (blob.Info, io.ReadCloser, error)
	ChunkInfo(ctx context.Context, chunkID string) (blob.Info, error)
	ConfirmChunkUploaded(ctx context.Context, sessionID, chunkID string) (domain.Session, error)
	ListPatients(ctx context.Context, userID string) ([]domain.Patient, error)
	AddPatient(ctx context.Context, name string) (domain.Patient, error)
	ListSessionsForPatient(ctx context.Context, patientID string) ([]domain.Session, error)
}

// DefaultMaxChunkBytes caps chunk uploads when Handler.MaxChunkBytes is unset.
const DefaultMaxChunkBytes int64 = 32 << 20

// HealthMessage is the plain-text body of GET /.
const HealthMessage = "Backend is running!"

// Handler routes the registry endpoints.
type Handler struct {
	Registry Registry
	Logger   *slog.Logger
	// PublicBaseURL overrides the request-derived base used in upload slot urls.
	PublicBaseURL string
	MaxChunkBytes int64
}

// NewHandler constructs a registry HTTP handler.
func NewHandler(reg Registry, logger *slog.Logger) *Handler {
	return &Handler{Registry: reg, Logger: logger}
}

type createSessionRequest struct {
	PatientID string `json:"patientId"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type uploadSlotRequest struct {
	SessionID string `json:"sessionId"`
}

type confirmRequest struct {
	SessionID string `json:"sessionId"`
	ChunkID   string `json:"chunkId"`
}

type addPatientRequest struct {
	Name string `json:"name"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type sessionResponse struct {
	SessionID string    `json:"sessionId"`
	PatientID string    `json:"patientId"`
	ChunkIDs  []string  `json:"chunkIds"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Registry == nil {
		writeError(w, http.StatusInternalServerError, "registry not configured")
		return
	}

	path := r.URL.Path
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	switch {
	case path == "/":
		if !allow(w, r, http.MethodGet) {
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, HealthMessage)
	case path == "/v1/upload-session":
		if allow(w, r, http.MethodPost) {
			h.handleCreateSession(w, r)
		}
	case path == "/v1/get-presigned-url":
		if allow(w, r, http.MethodPost) {
			h.handleUploadSlot(w, r)
		}
	case strings.HasPrefix(path, core.ChunkPathPrefix):
		h.handleChunk(w, r, strings.TrimPrefix(path, core.ChunkPathPrefix))
	case path == "/v1/notify-chunk-uploaded":
		if allow(w, r, http.MethodPost) {
			h.handleConfirm(w, r)
		}
	case path == "/v1/patients":
		if allow(w, r, http.MethodGet) {
			h.handleListPatients(w, r)
		}
	case path == "/v1/add-patient-ext":
		if allow(w, r, http.MethodPost) {
			h.handleAddPatient(w, r)
		}
	case strings.HasPrefix(path, "/v1/fetch-session-by-patient/"):
		if allow(w, r, http.MethodGet) {
			h.handleSessionsByPatient(w, r, strings.TrimPrefix(path, "/v1/fetch-session-by-patient/"))
		}
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.Registry.CreateSession(r.Context(), req.PatientID)
	if err != nil {
		h.fail(w, r, err, map[domain.ErrorKind]failure{
			domain.KindNotFound: {http.StatusBadRequest, "Invalid patient ID"},
		})
		return
	}
	writeJSON(w, http.StatusOK, createSessionResponse{SessionID: sess.ID})
}

func (h *Handler) handleUploadSlot(w http.ResponseWriter, r *http.Request) {
	var req uploadSlotRequest
	if !decode(w, r, &req) {
		return
	}
	slot, err := h.Registry.RequestUploadSlot(r.Context(), req.SessionID, h.baseURL(r))
	if err != nil {
		h.fail(w, r, err, map[domain.ErrorKind]failure{
			domain.KindNotFound: {http.StatusBadRequest, "Invalid session ID"},
		})
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func (h *Handler) handleChunk(w http.ResponseWriter, r *http.Request, chunkID string) {
	if chunkID == "" || strings.Contains(chunkID, "/") {
		writeError(w, http.StatusNotFound, "Invalid chunk ID")
		return
	}
	switch r.Method {
	case http.MethodPut:
		h.handleStoreChunk(w, r, chunkID)
	case http.MethodGet:
		h.handleFetchChunk(w, r, chunkID)
	case http.MethodHead:
		h.handleChunkInfo(w, r, chunkID)
	default:
		w.Header().Set("Allow", "GET, HEAD, PUT")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleStoreChunk(w http.ResponseWriter, r *http.Request, chunkID string) {
	limit := h.MaxChunkBytes
	if limit <= 0 {
		limit = DefaultMaxChunkBytes
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	defer func() { _ = body.Close() }()

	if _, err := h.Registry.StoreChunkBytes(r.Context(), chunkID, body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("chunk exceeds %d bytes", tooLarge.Limit))
			return
		}
		h.fail(w, r, err, map[domain.ErrorKind]failure{
			domain.KindNotFound: {http.StatusNotFound, "Invalid chunk ID"},
		})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Chunk uploaded successfully"})
}

func (h *Handler) handleFetchChunk(w http.ResponseWriter, r *http.Request, chunkID string) {
	info, rc, err := h.Registry.ChunkBytes(r.Context(), chunkID)
	if err != nil {
		h.fail(w, r, err, map[domain.ErrorKind]failure{
			domain.KindNotFound: {http.StatusNotFound, "Invalid chunk ID"},
		})
		return
	}
	defer func() { _ = rc.Close() }()
	writeChunkHeaders(w, info)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger().Warn("chunk download interrupted", "chunk_id", chunkID, "error", err)
	}
}

func (h *Handler) handleChunkInfo(w http.ResponseWriter, r *http.Request, chunkID string) {
	info, err := h.Registry.ChunkInfo(r.Context(), chunkID)
	if err != nil {
		h.fail(w, r, err, map[domain.ErrorKind]failure{
			domain.KindNotFound: {http.StatusNotFound, "Invalid chunk ID"},
		})
		return
	}
	writeChunkHeaders(w, info)
	w.WriteHeader(http.StatusOK)
}

func writeChunkHeaders(w http.ResponseWriter, info blob.Info) {
	contentType := info.ContentType
	if contentType == "" {
		contentType = core.ChunkContentType
	}
	w.Header().Set("Content-Type", contentType)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if info.ETag != "" {
		w.Header().Set("ETag", strconv.Quote(info.ETag))
	}
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := h.Registry.ConfirmChunkUploaded(r.Context(), req.SessionID, req.ChunkID); err != nil {
		h.fail(w, r, err, map[domain.ErrorKind]failure{
			domain.KindNotFound:          {http.StatusBadRequest, "Invalid session or chunk ID"},
			domain.KindOwnershipMismatch: {http.StatusBadRequest, "Chunk does not belong to this session"},
		})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Notification received"})
}

func (h *Handler) handleListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.Registry.ListPatients(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	if patients == nil {
		patients = []domain.Patient{}
	}
	writeJSON(w, http.StatusOK, patients)
}

func (h *Handler) handleAddPatient(w http.ResponseWriter, r *http.Request) {
	var req addPatientRequest
	if !decode(w, r, &req) {
		return
	}
	patient, err := h.Registry.AddPatient(r.Context(), req.Name)
	if err != nil {
		h.fail(w, r, err, map[domain.ErrorKind]failure{
			domain.KindInvalidArgument: {http.StatusBadRequest, "Patient name is required"},
		})
		return
	}
	writeJSON(w, http.StatusCreated, patient)
}

func (h *Handler) handleSessionsByPatient(w http.ResponseWriter, r *http.Request, patientID string) {
	sessions, err := h.Registry.ListSessionsForPatient(r.Context(), patientID)
	if err != nil {
		h.fail(w, r, err, map[domain.ErrorKind]failure{
			domain.KindNotFound: {http.StatusNotFound, "Patient not found"},
		})
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		chunks := s.ChunkIDs
		if chunks == nil {
			chunks = []string{}
		}
		out = append(out, sessionResponse{SessionID: s.ID, PatientID: s.PatientID, ChunkIDs: chunks, CreatedAt: s.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// baseURL is the configured public base or scheme://host of the request.
func (h *Handler) baseURL(r *http.Request) string {
	if h.PublicBaseURL != "" {
		return strings.TrimRight(h.PublicBaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host
}

type failure struct {
	status  int
	message string
}

// fail writes the response registered for err's kind, or a logged 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, byKind map[domain.ErrorKind]failure) {
	if f, ok := byKind[domain.KindOf(err)]; ok {
		writeError(w, f.status, f.message)
		return
	}
	h.logger().Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return h.Logger
}

// decode reads a JSON body into dst. An empty body leaves dst zero-valued.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
