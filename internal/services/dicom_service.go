package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flatmapit/dicom-maker/internal/cache"
	"github.com/flatmapit/dicom-maker/internal/config"
	"github.com/flatmapit/dicom-maker/internal/export"
	"github.com/flatmapit/dicom-maker/internal/generator"
	"github.com/flatmapit/dicom-maker/internal/metrics"
	"github.com/flatmapit/dicom-maker/internal/models"
	"github.com/flatmapit/dicom-maker/internal/repository"
	"github.com/flatmapit/dicom-maker/internal/storage"
	"github.com/flatmapit/dicom-maker/pkg/dimse"
)

// VerifyStatus is the cached result of a C-ECHO verification
type VerifyStatus struct {
	Outcome   string    `json:"outcome"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	Cached    bool      `json:"cached"`
}

// InstanceReport is the per-instance result of a send operation
type InstanceReport struct {
	SOPInstanceUID string `json:"sop_instance_uid"`
	Status         uint16 `json:"status"`
	Succeeded      bool   `json:"succeeded"`
}

// SendReport is the result of transmitting a study to a target
type SendReport struct {
	StudyUID  string           `json:"study_uid"`
	Outcome   string           `json:"outcome"`
	Attempts  int              `json:"attempts"`
	Error     string           `json:"error,omitempty"`
	Instances []InstanceReport `json:"instances,omitempty"`
}

// DICOMService handles business logic for study generation and
// archive transmission
type DICOMService struct {
	targetRepo *repository.TargetRepository
	txRepo     *repository.TransmissionRepository
	gen        *generator.Generator
	store      *storage.Store
	cache      cache.Cache
	exporter   *export.Exporter
	cfg        config.DICOMConfig
	verifyTTL  time.Duration
	log        zerolog.Logger
}

// NewDICOMService creates a new DICOM service
func NewDICOMService(
	targetRepo *repository.TargetRepository,
	txRepo *repository.TransmissionRepository,
	gen *generator.Generator,
	store *storage.Store,
	c cache.Cache,
	cfg config.DICOMConfig,
	verifyTTL time.Duration,
	logger zerolog.Logger,
) *DICOMService {
	return &DICOMService{
		targetRepo: targetRepo,
		txRepo:     txRepo,
		gen:        gen,
		store:      store,
		cache:      c,
		exporter:   export.NewExporter(logger),
		cfg:        cfg,
		verifyTTL:  verifyTTL,
		log:        logger,
	}
}

// CreateStudy generates a synthetic study and persists it
func (s *DICOMService) CreateStudy(ctx context.Context, opts generator.Options) (*generator.StudyRecord, error) {
	study, err := s.gen.CreateStudy(opts)
	if err != nil {
		return nil, err
	}

	if err := s.store.Save(study); err != nil {
		return nil, fmt.Errorf("failed to persist study: %w", err)
	}

	metrics.StudiesGenerated.WithLabelValues(study.Modality).Inc()
	metrics.InstancesStored.Add(float64(study.InstanceCount()))
	return study, nil
}

// ListStudies returns all stored studies
func (s *DICOMService) ListStudies(ctx context.Context) []*generator.StudyRecord {
	return s.store.List()
}

// GetStudy returns one stored study
func (s *DICOMService) GetStudy(ctx context.Context, studyUID string) (*generator.StudyRecord, error) {
	return s.store.Get(studyUID)
}

// DeleteStudy removes a study and its files
func (s *DICOMService) DeleteStudy(ctx context.Context, studyUID string) error {
	if err := s.store.Delete(studyUID); err != nil {
		return err
	}
	if err := s.cache.Clear(ctx, "study:"+studyUID+":*"); err != nil {
		s.log.Warn().Err(err).Str("study_uid", studyUID).Msg("Failed to clear study cache")
	}
	return nil
}

// ExportResult reports where a study's PNG export landed
type ExportResult struct {
	StudyUID string `json:"study_uid"`
	Path     string `json:"path"`
	Images   int    `json:"images"`
}

// ExportStudy renders a stored study to PNG files under the configured
// export directory
func (s *DICOMService) ExportStudy(ctx context.Context, studyUID string) (*ExportResult, error) {
	study, err := s.store.Get(studyUID)
	if err != nil {
		return nil, err
	}
	instances, err := s.store.LoadInstances(studyUID)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(s.cfg.ExportDir, studyUID)
	images, err := s.exporter.StudyToPNG(study, instances, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to export study: %w", err)
	}

	return &ExportResult{StudyUID: studyUID, Path: dir, Images: images}, nil
}

// CreateTarget creates a new archive target
func (s *DICOMService) CreateTarget(ctx context.Context, req *models.TargetRequest) (*models.Target, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	target := &models.Target{
		Name:      req.Name,
		Host:      req.Host,
		Port:      req.Port,
		CalledAET: req.CalledAET,
		MaxPDU:    req.MaxPDU,
		Retries:   req.Retries,
	}
	if target.MaxPDU == 0 {
		target.MaxPDU = s.cfg.MaxPDU
	}
	if target.Retries == 0 {
		target.Retries = s.cfg.Retries
	}

	if err := s.targetRepo.Create(ctx, target); err != nil {
		return nil, err
	}
	return target, nil
}

// ListTargets returns all archive targets
func (s *DICOMService) ListTargets(ctx context.Context) ([]models.Target, error) {
	return s.targetRepo.List(ctx)
}

// GetTarget returns one archive target
func (s *DICOMService) GetTarget(ctx context.Context, id uuid.UUID) (*models.Target, error) {
	return s.targetRepo.GetByID(ctx, id)
}

// UpdateTarget updates an archive target and invalidates its cached
// verification status
func (s *DICOMService) UpdateTarget(ctx context.Context, id uuid.UUID, req *models.TargetRequest) (*models.Target, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	target, err := s.targetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	target.Name = req.Name
	target.Host = req.Host
	target.Port = req.Port
	target.CalledAET = req.CalledAET
	if req.MaxPDU != 0 {
		target.MaxPDU = req.MaxPDU
	}
	if req.Retries != 0 {
		target.Retries = req.Retries
	}

	if err := s.targetRepo.Update(ctx, target); err != nil {
		return nil, err
	}
	if err := s.cache.Delete(ctx, cache.VerifyKey(id.String())); err != nil {
		s.log.Warn().Err(err).Str("target_id", id.String()).Msg("Failed to invalidate verify cache")
	}
	return target, nil
}

// DeleteTarget removes an archive target
func (s *DICOMService) DeleteTarget(ctx context.Context, id uuid.UUID) error {
	if err := s.targetRepo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cache.VerifyKey(id.String())); err != nil {
		s.log.Warn().Err(err).Str("target_id", id.String()).Msg("Failed to invalidate verify cache")
	}
	return nil
}

// Verify runs C-ECHO against a target. A recent result is served from
// cache unless refresh is set.
func (s *DICOMService) Verify(ctx context.Context, targetID uuid.UUID, refresh bool) (*VerifyStatus, error) {
	key := cache.VerifyKey(targetID.String())

	if !refresh {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var status VerifyStatus
			if err := json.Unmarshal(data, &status); err == nil {
				status.Cached = true
				return &status, nil
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn().Err(err).Msg("Verify cache lookup failed")
		}
	}

	target, err := s.targetRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	client := dimse.NewClient(s.associationConfig(target), target.Retries, s.log)
	res := client.Verify(ctx)
	elapsed := time.Since(started)

	status := &VerifyStatus{
		Outcome:   string(res.Outcome),
		Attempts:  res.Attempts,
		CheckedAt: time.Now().UTC(),
	}
	if res.Err != nil {
		status.Error = res.Err.Error()
	}

	s.recordTransmission(ctx, target.ID, "verify", "", status.Outcome, res.Attempts, status.Error, nil, elapsed)
	metrics.Transmissions.WithLabelValues("verify", status.Outcome).Inc()
	metrics.TransmissionDuration.WithLabelValues("verify").Observe(elapsed.Seconds())

	if err := s.targetRepo.UpdateVerifyStatus(ctx, target.ID, status.Outcome, status.Error); err != nil {
		s.log.Warn().Err(err).Msg("Failed to record verify status")
	}

	if data, err := json.Marshal(status); err == nil {
		if err := s.cache.Set(ctx, key, data, s.verifyTTL); err != nil {
			s.log.Warn().Err(err).Msg("Failed to cache verify status")
		}
	}

	return status, nil
}

// Send transmits every instance of a stored study to a target
func (s *DICOMService) Send(ctx context.Context, targetID uuid.UUID, studyUID string) (*SendReport, error) {
	target, err := s.targetRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	stored, err := s.store.LoadInstances(studyUID)
	if err != nil {
		return nil, err
	}

	instances := make([]dimse.Instance, len(stored))
	for i, inst := range stored {
		instances[i] = dimse.Instance{
			SOPClassUID:    inst.SOPClassUID,
			SOPInstanceUID: inst.SOPInstanceUID,
			Dataset:        inst.Dataset,
		}
	}

	started := time.Now()
	client := dimse.NewClient(s.associationConfig(target), target.Retries, s.log)
	res := client.Transmit(ctx, instances)
	elapsed := time.Since(started)

	report := &SendReport{
		StudyUID: studyUID,
		Outcome:  string(res.Outcome),
		Attempts: res.Attempts,
	}
	if res.Err != nil {
		report.Error = res.Err.Error()
	}
	for _, ir := range res.Instances {
		report.Instances = append(report.Instances, InstanceReport{
			SOPInstanceUID: ir.SOPInstanceUID,
			Status:         ir.Status,
			Succeeded:      ir.Succeeded(),
		})
		result := "failure"
		if ir.Succeeded() {
			result = "success"
		}
		metrics.InstancesSent.WithLabelValues(result).Inc()
	}

	s.recordTransmission(ctx, target.ID, "send", studyUID, report.Outcome, res.Attempts, report.Error, report.Instances, elapsed)
	metrics.Transmissions.WithLabelValues("send", report.Outcome).Inc()
	metrics.TransmissionDuration.WithLabelValues("send").Observe(elapsed.Seconds())

	return report, nil
}

func (s *DICOMService) associationConfig(target *models.Target) dimse.AssociationConfig {
	return dimse.AssociationConfig{
		Host:       target.Host,
		Port:       target.Port,
		CallingAET: s.cfg.CallingAET,
		CalledAET:  target.CalledAET,
		MaxPDU:     target.MaxPDU,
		Timeout:    s.cfg.RequestTimeout,
		Logger:     s.log,
	}
}

func (s *DICOMService) recordTransmission(ctx context.Context, targetID uuid.UUID, operation, studyUID, outcome string,
	attempts int, errMsg string, instances []InstanceReport, elapsed time.Duration) {

	tx := &models.Transmission{
		TargetID:     targetID,
		Operation:    operation,
		StudyUID:     studyUID,
		Outcome:      outcome,
		Attempts:     attempts,
		ErrorMessage: errMsg,
		Duration:     elapsed.Milliseconds(),
	}
	if len(instances) > 0 {
		if data, err := json.Marshal(instances); err == nil {
			tx.Instances = data
		}
	}

	if err := s.txRepo.Create(ctx, tx); err != nil {
		s.log.Warn().Err(err).Str("operation", operation).Msg("Failed to record transmission")
	}
}

// History returns the recent transmissions for a target
func (s *DICOMService) History(ctx context.Context, targetID uuid.UUID, limit int) ([]models.Transmission, error) {
	return s.txRepo.ListByTarget(ctx, targetID, limit)
}
