package tryon

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"md-fashion-studio/modules/common/model"
	"md-fashion-studio/modules/export"
	"md-fashion-studio/modules/generation"
	"md-fashion-studio/modules/intake"
)

const maxUploadMemory = 32 << 20

// 에러 코드
const (
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeBusy            = "BUSY"
	ErrCodeInvalidStep     = "INVALID_STEP"
	ErrCodeCategoryLocked  = "CATEGORY_LOCKED"
	ErrCodeNotReady        = "NOT_READY"
	ErrCodeEmptyPrompt     = "EMPTY_PROMPT"
	ErrCodeReadFailed      = "READ_FAILED"
	ErrCodeGeneration      = "GENERATION_FAILED"
	ErrCodeNotExportable   = "NOT_EXPORTABLE"
	ErrCodeArchiveDisabled = "ARCHIVE_DISABLED"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// Response - 공통 응답
type Response struct {
	Success   bool                `json:"success"`
	Error     string              `json:"error,omitempty"`
	ErrorCode string              `json:"errorCode,omitempty"`
	Notice    string              `json:"notice,omitempty"`
	Session   *Snapshot           `json:"session,omitempty"`
	Export    *model.ExportRecord `json:"export,omitempty"`
}

type categoryRequest struct {
	Category string `json:"category"`
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type Handler struct {
	manager  *Manager
	archiver *export.Archiver
	now      func() time.Time
}

func NewHandler(manager *Manager, archiver *export.Archiver) *Handler {
	return &Handler{
		manager:  manager,
		archiver: archiver,
		now:      time.Now,
	}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/sessions", h.CreateSession).Methods("POST")
	r.HandleFunc("/api/sessions/{sessionId}", h.GetSession).Methods("GET")
	r.HandleFunc("/api/sessions/{sessionId}", h.DeleteSession).Methods("DELETE")
	r.HandleFunc("/api/sessions/{sessionId}/category", h.SelectCategory).Methods("POST")
	r.HandleFunc("/api/sessions/{sessionId}/images/{slot}", h.UploadImage).Methods("POST")
	r.HandleFunc("/api/sessions/{sessionId}/prompt", h.SetPrompt).Methods("PUT")
	r.HandleFunc("/api/sessions/{sessionId}/tryon", h.TryOn).Methods("POST")
	r.HandleFunc("/api/sessions/{sessionId}/background", h.EditBackground).Methods("POST")
	r.HandleFunc("/api/sessions/{sessionId}/skip", h.Skip).Methods("POST")
	r.HandleFunc("/api/sessions/{sessionId}/reset", h.Reset).Methods("POST")
	r.HandleFunc("/api/sessions/{sessionId}/export", h.Export).Methods("GET")
	r.HandleFunc("/api/sessions/{sessionId}/export/archive", h.Archive).Methods("POST")
	log.Println("✅ Try-on session routes registered")
}

// CreateSession - POST /api/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	session := h.manager.Create()
	snap := session.Controller.Snapshot()
	writeJSON(w, http.StatusCreated, Response{Success: true, Session: &snap})
}

// GetSession - GET /api/sessions/{sessionId}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	snap := session.Controller.Snapshot()
	writeJSON(w, http.StatusOK, Response{Success: true, Session: &snap})
}

// DeleteSession - DELETE /api/sessions/{sessionId}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(mux.Vars(r)["sessionId"]); err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

// SelectCategory - POST /api/sessions/{sessionId}/category
func (h *Handler) SelectCategory(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ [TryOn] Invalid category request: %v", err)
		writeError(w, fmt.Errorf("%w: invalid request format", errBadRequest), nil)
		return
	}

	category, err := model.ParseCategory(req.Category)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", ErrInvalidCategory, err), nil)
		return
	}

	snap, err := session.Controller.SelectCategory(category)
	h.respond(w, snap, err)
}

// UploadImage - POST /api/sessions/{sessionId}/images/{slot} (multipart "file")
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	slot, err := ParseSlot(mux.Vars(r)["slot"])
	if err != nil {
		writeError(w, err, nil)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		log.Printf("❌ [TryOn] Failed to parse multipart form: %v", err)
		writeError(w, fmt.Errorf("%w: invalid multipart form", errBadRequest), nil)
		return
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, fmt.Errorf("%w: file is required", errBadRequest), nil)
		return
	}

	snap, err := session.Controller.IngestImage(r.Context(), slot, files[0])
	h.respond(w, snap, err)
}

// SetPrompt - PUT /api/sessions/{sessionId}/prompt
func (h *Handler) SetPrompt(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request format", errBadRequest), nil)
		return
	}

	snap, err := session.Controller.SetPrompt(req.Prompt)
	h.respond(w, snap, err)
}

// TryOn - POST /api/sessions/{sessionId}/tryon
func (h *Handler) TryOn(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := session.Controller.TryOn(r.Context())
	h.respond(w, snap, err)
}

// EditBackground - POST /api/sessions/{sessionId}/background
func (h *Handler) EditBackground(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := session.Controller.EditBackground(r.Context())
	h.respond(w, snap, err)
}

// Skip - POST /api/sessions/{sessionId}/skip
func (h *Handler) Skip(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := session.Controller.Skip()
	h.respond(w, snap, err)
}

// Reset - POST /api/sessions/{sessionId}/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := session.Controller.Reset()
	h.respond(w, snap, err)
}

// Export - GET /api/sessions/{sessionId}/export?format=jpg|webp
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err), nil)
		return
	}

	img, ok := session.Controller.Exportable()
	if !ok {
		snap := session.Controller.Snapshot()
		writeError(w, errNotExportable, &snap)
		return
	}

	data, err := export.Render(img, format)
	if err != nil {
		log.Printf("❌ [TryOn] Session %s: export failed: %v", session.ID, err)
		writeError(w, err, nil)
		return
	}

	fileName := export.Filename(h.now(), format)
	log.Printf("📦 [TryOn] Session %s: exporting %s (%d bytes)", session.ID, fileName, len(data))

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Archive - POST /api/sessions/{sessionId}/export/archive
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	img, ok := session.Controller.Exportable()
	if !ok {
		snap := session.Controller.Snapshot()
		writeError(w, errNotExportable, &snap)
		return
	}

	state := session.Controller.State()
	record, err := h.archiver.Archive(r.Context(), export.Request{
		SessionID: session.ID,
		Image:     img,
		Category:  state.ActiveCategory,
		BgPrompt:  state.BgPrompt,
	})
	if err != nil {
		log.Printf("❌ [TryOn] Session %s: archive failed: %v", session.ID, err)
		writeError(w, err, nil)
		return
	}

	snap := session.Controller.Snapshot()
	writeJSON(w, http.StatusOK, Response{Success: true, Session: &snap, Export: record})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	session, err := h.manager.Get(mux.Vars(r)["sessionId"])
	if err != nil {
		writeError(w, err, nil)
		return nil, false
	}
	return session, true
}

func (h *Handler) respond(w http.ResponseWriter, snap Snapshot, err error) {
	if err != nil {
		writeError(w, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Session: &snap})
}

var (
	errBadRequest    = errors.New("bad request")
	errNotExportable = errors.New("no result image to export")
)

// statusFor - 에러 → HTTP 상태 코드, 에러 코드
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound, ErrCodeSessionNotFound
	case errors.Is(err, ErrBusy):
		return http.StatusConflict, ErrCodeBusy
	case errors.Is(err, ErrCategoryLocked):
		return http.StatusConflict, ErrCodeCategoryLocked
	case errors.Is(err, ErrInvalidStep):
		return http.StatusConflict, ErrCodeInvalidStep
	case errors.Is(err, errNotExportable):
		return http.StatusConflict, ErrCodeNotExportable
	case errors.Is(err, ErrNotReady):
		return http.StatusUnprocessableEntity, ErrCodeNotReady
	case errors.Is(err, ErrEmptyPrompt):
		return http.StatusUnprocessableEntity, ErrCodeEmptyPrompt
	case errors.Is(err, intake.ErrRead):
		return http.StatusBadRequest, ErrCodeReadFailed
	case errors.Is(err, errBadRequest), errors.Is(err, ErrInvalidSlot), errors.Is(err, ErrInvalidCategory):
		return http.StatusBadRequest, ErrCodeInvalidRequest
	case errors.Is(err, generation.ErrTryOn), errors.Is(err, generation.ErrBackgroundEdit):
		return http.StatusBadGateway, ErrCodeGeneration
	case errors.Is(err, export.ErrArchiveDisabled):
		return http.StatusServiceUnavailable, ErrCodeArchiveDisabled
	}
	return http.StatusInternalServerError, ErrCodeInternalError
}

func writeError(w http.ResponseWriter, err error, snap *Snapshot) {
	status, code := statusFor(err)
	writeJSON(w, status, Response{
		Success:   false,
		Error:     err.Error(),
		ErrorCode: code,
		Notice:    NoticeFor(err),
		Session:   snap,
	})
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("❌ Failed to encode response: %v", err)
	}
}
