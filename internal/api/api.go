package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/yok-tottii/mic-calibrator/internal/audio"
	"github.com/yok-tottii/mic-calibrator/internal/i18n"
	"github.com/yok-tottii/mic-calibrator/internal/logger"
	"github.com/yok-tottii/mic-calibrator/internal/selection"
	"github.com/yok-tottii/mic-calibrator/internal/wizard"
)

// Calibrator is the calibration service behind the API
type Calibrator interface {
	StartSession(ctx context.Context) (wizard.Snapshot, error)
	GetStatus(id string) (wizard.Snapshot, error)
	Confirm(ctx context.Context, id string, deviceID int) (wizard.Snapshot, error)
	Retest(ctx context.Context, id string, reenumerate bool) (wizard.Snapshot, error)
	Abort(ctx context.Context, id string) (wizard.Snapshot, error)
	Subscribe(id string) (<-chan wizard.Snapshot, func(), error)
	Devices(ctx context.Context) ([]audio.Device, error)
	Selection() (selection.Record, error)
	UseDevice(ctx context.Context, deviceID int) (selection.Record, error)
}

// Handler manages API endpoints
type Handler struct {
	calib Calibrator
	tr    *i18n.Translator
	log   *logger.Logger
}

// New creates a new API handler
func New(calib Calibrator, tr *i18n.Translator, log *logger.Logger) *Handler {
	if tr == nil {
		tr = i18n.New(i18n.LanguageEnglish)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{calib: calib, tr: tr, log: log.Named("api")}
}

// RegisterRoutes registers all API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/calibration", h.handleStart)
	mux.HandleFunc("GET /api/calibration/{id}", h.handleStatus)
	mux.HandleFunc("POST /api/calibration/{id}/confirm", h.handleConfirm)
	mux.HandleFunc("POST /api/calibration/{id}/retest", h.handleRetest)
	mux.HandleFunc("POST /api/calibration/{id}/abort", h.handleAbort)
	mux.HandleFunc("GET /api/calibration/{id}/events", h.handleEvents)
	mux.HandleFunc("GET /api/devices", h.handleDevices)
	mux.HandleFunc("GET /api/selection", h.handleGetSelection)
	mux.HandleFunc("POST /api/selection", h.handleUseDevice)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonTagName)
	return v
}

type confirmRequest struct {
	DeviceID *int `json:"device_id" validate:"required,gte=0"`
}

type retestRequest struct {
	Reenumerate bool `json:"reenumerate"`
}

type useRequest struct {
	DeviceID *int `json:"device_id" validate:"required,gte=0"`
}

// decodeAndValidate reads a JSON body into dst. An empty body is accepted
// when optional is set.
func decodeAndValidate(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return &requestError{err: err}
	}
	if err := validate.Struct(dst); err != nil {
		return &requestError{err: err}
	}
	return nil
}

// handleStart handles POST /api/calibration
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.calib.StartSession(r.Context())
	if err != nil {
		h.writeError(w, err, snapshotOrNil(snap))
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// handleStatus handles GET /api/calibration/{id}
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.calib.GetStatus(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleConfirm handles POST /api/calibration/{id}/confirm
func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		h.writeError(w, err, nil)
		return
	}

	snap, err := h.calib.Confirm(r.Context(), r.PathValue("id"), *req.DeviceID)
	if err != nil {
		h.writeError(w, err, snapshotOrNil(snap))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleRetest handles POST /api/calibration/{id}/retest
func (h *Handler) handleRetest(w http.ResponseWriter, r *http.Request) {
	var req retestRequest
	if err := decodeAndValidate(r, &req, true); err != nil {
		h.writeError(w, err, nil)
		return
	}

	snap, err := h.calib.Retest(r.Context(), r.PathValue("id"), req.Reenumerate)
	if err != nil {
		h.writeError(w, err, snapshotOrNil(snap))
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// handleAbort handles POST /api/calibration/{id}/abort
func (h *Handler) handleAbort(w http.ResponseWriter, r *http.Request) {
	snap, err := h.calib.Abort(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, snapshotOrNil(snap))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleDevices handles GET /api/devices
func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.calib.Devices(r.Context())
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

type selectionResponse struct {
	Selection selection.Record    `json:"selection"`
	Match     selection.MatchKind `json:"match"`
	Device    *audio.Device       `json:"device,omitempty"`
}

// handleGetSelection handles GET /api/selection
func (h *Handler) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	rec, err := h.calib.Selection()
	if err != nil {
		h.writeError(w, err, nil)
		return
	}

	resp := selectionResponse{Selection: rec, Match: selection.MatchNone}
	devices, err := h.calib.Devices(r.Context())
	if err != nil {
		h.log.Warn("cannot match selection against devices: %v", err)
	} else {
		device, kind := selection.Match(rec, devices)
		resp.Match = kind
		if kind != selection.MatchNone {
			resp.Device = &device
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUseDevice handles POST /api/selection
func (h *Handler) handleUseDevice(w http.ResponseWriter, r *http.Request) {
	var req useRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		h.writeError(w, err, nil)
		return
	}

	rec, err := h.calib.UseDevice(r.Context(), *req.DeviceID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func snapshotOrNil(snap wizard.Snapshot) *wizard.Snapshot {
	if snap.SessionID == "" {
		return nil
	}
	return &snap
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
