package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/flatmapit/dicom-maker/internal/cache"
	"github.com/flatmapit/dicom-maker/internal/config"
	"github.com/flatmapit/dicom-maker/internal/generator"
	"github.com/flatmapit/dicom-maker/internal/repository"
	"github.com/flatmapit/dicom-maker/internal/services"
	"github.com/flatmapit/dicom-maker/internal/storage"
	"github.com/flatmapit/dicom-maker/internal/uid"
)

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()

	store, err := storage.NewStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	mc := cache.NewMemoryCache()
	t.Cleanup(func() { mc.Close() })

	gen := generator.New(uid.NewGenerator(""), zerolog.Nop())
	svc := services.NewDICOMService(
		repository.NewTargetRepository(),
		repository.NewTransmissionRepository(),
		gen, store, mc,
		config.DICOMConfig{
			CallingAET:     "TEST_SCU",
			MaxPDU:         16384,
			RequestTimeout: time.Second,
			Retries:        1,
		},
		time.Minute,
		zerolog.Nop(),
	)

	h := NewStudyHandler(svc)
	r := chi.NewRouter()
	r.Post("/studies", h.CreateStudy)
	r.Get("/studies", h.ListStudies)
	r.Get("/studies/{studyUID}", h.GetStudy)
	r.Delete("/studies/{studyUID}", h.DeleteStudy)
	return r
}

func createStudy(t *testing.T, r *chi.Mux, body string) generator.StudyRecord {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/studies", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("CreateStudy status = %d, body %s", rec.Code, rec.Body.String())
	}

	var study generator.StudyRecord
	if err := json.NewDecoder(rec.Body).Decode(&study); err != nil {
		t.Fatalf("decode study: %v", err)
	}
	return study
}

func TestCreateStudyEndpoint(t *testing.T) {
	r := newTestRouter(t)

	study := createStudy(t, r, `{"modality":"CT","series_count":2,"instances_per_series":1}`)

	if study.Modality != "CT" {
		t.Errorf("Modality = %q, want CT", study.Modality)
	}
	if len(study.Series) != 2 {
		t.Errorf("series count = %d, want 2", len(study.Series))
	}
	if study.StudyInstanceUID == "" {
		t.Error("StudyInstanceUID is empty")
	}
}

func TestCreateStudyRejectsUnknownModality(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/studies", strings.NewReader(`{"modality":"PT"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListAndGetStudy(t *testing.T) {
	r := newTestRouter(t)
	study := createStudy(t, r, `{"modality":"MR"}`)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/studies", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ListStudies status = %d", rec.Code)
	}
	var studies []generator.StudyRecord
	if err := json.NewDecoder(rec.Body).Decode(&studies); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(studies) != 1 || studies[0].StudyInstanceUID != study.StudyInstanceUID {
		t.Errorf("list = %d studies, want the one created", len(studies))
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/studies/"+study.StudyInstanceUID, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GetStudy status = %d, want 200", rec.Code)
	}
}

func TestGetStudyNotFound(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/studies/1.2.3.4", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteStudy(t *testing.T) {
	r := newTestRouter(t)
	study := createStudy(t, r, `{}`)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/studies/"+study.StudyInstanceUID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DeleteStudy status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/studies/"+study.StudyInstanceUID, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status after delete = %d, want 404", rec.Code)
	}
}
