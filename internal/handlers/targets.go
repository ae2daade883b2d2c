package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/flatmapit/dicom-maker/internal/models"
	"github.com/flatmapit/dicom-maker/internal/services"
	"github.com/flatmapit/dicom-maker/internal/storage"
)

type TargetHandler struct {
	dicomService *services.DICOMService
}

func NewTargetHandler(dicomService *services.DICOMService) *TargetHandler {
	return &TargetHandler{
		dicomService: dicomService,
	}
}

// CreateTarget creates a new archive target
func (h *TargetHandler) CreateTarget(w http.ResponseWriter, r *http.Request) {
	var req models.TargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	target, err := h.dicomService.CreateTarget(r.Context(), &req)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create target")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(target)
}

// ListTargets retrieves all archive targets
func (h *TargetHandler) ListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.dicomService.ListTargets(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list targets")
		http.Error(w, "Failed to list targets", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(targets)
}

// GetTarget retrieves a specific archive target
func (h *TargetHandler) GetTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := h.targetID(w, r)
	if !ok {
		return
	}

	target, err := h.dicomService.GetTarget(r.Context(), id)
	if err != nil {
		http.Error(w, "Target not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(target)
}

// UpdateTarget updates an archive target
func (h *TargetHandler) UpdateTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := h.targetID(w, r)
	if !ok {
		return
	}

	var req models.TargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	target, err := h.dicomService.UpdateTarget(r.Context(), id, &req)
	if err != nil {
		log.Error().Err(err).Str("target_id", id.String()).Msg("Failed to update target")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(target)
}

// DeleteTarget removes an archive target
func (h *TargetHandler) DeleteTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := h.targetID(w, r)
	if !ok {
		return
	}

	if err := h.dicomService.DeleteTarget(r.Context(), id); err != nil {
		log.Error().Err(err).Str("target_id", id.String()).Msg("Failed to delete target")
		http.Error(w, "Failed to delete target", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// VerifyTarget runs C-ECHO against a target. ?refresh=true bypasses
// the cached result.
func (h *TargetHandler) VerifyTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := h.targetID(w, r)
	if !ok {
		return
	}

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	status, err := h.dicomService.Verify(r.Context(), id, refresh)
	if err != nil {
		log.Error().Err(err).Str("target_id", id.String()).Msg("Verification failed")
		http.Error(w, "Verification failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

type sendRequest struct {
	StudyUID string `json:"study_uid"`
}

// SendStudy transmits a stored study to a target
func (h *TargetHandler) SendStudy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.targetID(w, r)
	if !ok {
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StudyUID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	report, err := h.dicomService.Send(r.Context(), id, req.StudyUID)
	if err != nil {
		if errors.Is(err, storage.ErrStudyNotFound) {
			http.Error(w, "Study not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("target_id", id.String()).Str("study_uid", req.StudyUID).Msg("Send failed")
		http.Error(w, "Send failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// TargetHistory lists recent transmissions for a target
func (h *TargetHandler) TargetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.targetID(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	txs, err := h.dicomService.History(r.Context(), id, limit)
	if err != nil {
		log.Error().Err(err).Str("target_id", id.String()).Msg("Failed to list history")
		http.Error(w, "Failed to list history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txs)
}

func (h *TargetHandler) targetID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid target ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
