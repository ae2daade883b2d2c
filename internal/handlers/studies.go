package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/flatmapit/dicom-maker/internal/generator"
	"github.com/flatmapit/dicom-maker/internal/services"
	"github.com/flatmapit/dicom-maker/internal/storage"
)

type StudyHandler struct {
	dicomService *services.DICOMService
}

func NewStudyHandler(dicomService *services.DICOMService) *StudyHandler {
	return &StudyHandler{
		dicomService: dicomService,
	}
}

// createStudyRequest names the generation knobs exposed over HTTP
type createStudyRequest struct {
	SeriesCount        int    `json:"series_count,omitempty"`
	InstancesPerSeries int    `json:"instances_per_series,omitempty"`
	Modality           string `json:"modality,omitempty"`
	PatientName        string `json:"patient_name,omitempty"`
	PatientID          string `json:"patient_id,omitempty"`
	AccessionNumber    string `json:"accession_number,omitempty"`
	StudyDescription   string `json:"study_description,omitempty"`
	Seed               uint64 `json:"seed,omitempty"`
}

// CreateStudy generates and stores a new synthetic study
func (h *StudyHandler) CreateStudy(w http.ResponseWriter, r *http.Request) {
	var req createStudyRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	study, err := h.dicomService.CreateStudy(r.Context(), generator.Options{
		SeriesCount:        req.SeriesCount,
		InstancesPerSeries: req.InstancesPerSeries,
		Modality:           req.Modality,
		PatientName:        req.PatientName,
		PatientID:          req.PatientID,
		AccessionNumber:    req.AccessionNumber,
		StudyDescription:   req.StudyDescription,
		Seed:               req.Seed,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate study")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(study)
}

// ListStudies retrieves all stored studies
func (h *StudyHandler) ListStudies(w http.ResponseWriter, r *http.Request) {
	studies := h.dicomService.ListStudies(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(studies)
}

// GetStudy retrieves a stored study by its study instance UID
func (h *StudyHandler) GetStudy(w http.ResponseWriter, r *http.Request) {
	studyUID := chi.URLParam(r, "studyUID")

	study, err := h.dicomService.GetStudy(r.Context(), studyUID)
	if err != nil {
		if errors.Is(err, storage.ErrStudyNotFound) {
			http.Error(w, "Study not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("study_uid", studyUID).Msg("Failed to get study")
		http.Error(w, "Failed to get study", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(study)
}

// ExportStudy renders a stored study to PNG files on disk
func (h *StudyHandler) ExportStudy(w http.ResponseWriter, r *http.Request) {
	studyUID := chi.URLParam(r, "studyUID")

	result, err := h.dicomService.ExportStudy(r.Context(), studyUID)
	if err != nil {
		if errors.Is(err, storage.ErrStudyNotFound) {
			http.Error(w, "Study not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("study_uid", studyUID).Msg("Failed to export study")
		http.Error(w, "Failed to export study", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// DeleteStudy removes a stored study
func (h *StudyHandler) DeleteStudy(w http.ResponseWriter, r *http.Request) {
	studyUID := chi.URLParam(r, "studyUID")

	if err := h.dicomService.DeleteStudy(r.Context(), studyUID); err != nil {
		if errors.Is(err, storage.ErrStudyNotFound) {
			http.Error(w, "Study not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("study_uid", studyUID).Msg("Failed to delete study")
		http.Error(w, "Failed to delete study", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
