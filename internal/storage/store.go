// Package storage persists generated studies on disk. Each study lives
// under its own directory keyed by study UID, one Part 10 file per
// instance, with a JSON index of study metadata for listing. A Store is an
// explicit value owned by the caller, not a process-global registry.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/flatmapit/dicom-maker/internal/dicom"
	"github.com/flatmapit/dicom-maker/internal/generator"
)

// ErrStudyNotFound is returned when a study UID has no entry in the index.
var ErrStudyNotFound = errors.New("storage: study not found")

const indexFile = "studies.json"

// StoredInstance is one instance loaded back from disk, ready for
// transmission.
type StoredInstance struct {
	SOPClassUID    string
	SOPInstanceUID string
	Dataset        *dicom.Dataset
}

// Store is a directory-backed study repository. All methods are safe for
// concurrent use.
type Store struct {
	root string
	log  zerolog.Logger

	mu    sync.Mutex
	index map[string]*generator.StudyRecord
}

// NewStore opens (creating if needed) a store rooted at dir and loads its
// index.
func NewStore(dir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	s := &Store{root: dir, log: log, index: make(map[string]*generator.StudyRecord)}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.root, indexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage: read index: %w", err)
	}
	var studies []*generator.StudyRecord
	if err := json.Unmarshal(data, &studies); err != nil {
		return fmt.Errorf("storage: parse index: %w", err)
	}
	for _, st := range studies {
		s.index[st.StudyInstanceUID] = st
	}
	return nil
}

// writeIndex persists the index. Caller holds s.mu.
func (s *Store) writeIndex() error {
	studies := make([]*generator.StudyRecord, 0, len(s.index))
	for _, st := range s.index {
		studies = append(studies, st)
	}
	sort.Slice(studies, func(i, j int) bool {
		return studies[i].CreatedAt.Before(studies[j].CreatedAt)
	})
	data, err := json.MarshalIndent(studies, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal index: %w", err)
	}
	tmp := filepath.Join(s.root, indexFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("storage: write index: %w", err)
	}
	return os.Rename(tmp, filepath.Join(s.root, indexFile))
}

// Save writes every instance of study as a Part 10 file under
// <root>/<studyUID>/series_<n>/<sopInstanceUID>.dcm and records the study
// in the index.
func (s *Store) Save(study *generator.StudyRecord) error {
	studyDir := filepath.Join(s.root, study.StudyInstanceUID)
	for _, series := range study.Series {
		seriesDir := filepath.Join(studyDir, fmt.Sprintf("series_%d", series.SeriesNumber))
		if err := os.MkdirAll(seriesDir, 0o755); err != nil {
			return fmt.Errorf("storage: create series dir: %w", err)
		}
		for _, inst := range series.Instances {
			encoded, err := dicom.EncodeFile(inst.Dataset, dicom.ImplicitVRLittleEndian)
			if err != nil {
				return fmt.Errorf("storage: encode %s: %w", inst.SOPInstanceUID, err)
			}
			path := filepath.Join(seriesDir, inst.SOPInstanceUID+".dcm")
			if err := os.WriteFile(path, encoded, 0o644); err != nil {
				return fmt.Errorf("storage: write %s: %w", inst.SOPInstanceUID, err)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[study.StudyInstanceUID] = study
	if err := s.writeIndex(); err != nil {
		return err
	}
	s.log.Info().
		Str("study_uid", study.StudyInstanceUID).
		Int("instances", study.InstanceCount()).
		Str("dir", studyDir).
		Msg("study saved")
	return nil
}

// List returns all indexed studies ordered by creation time.
func (s *Store) List() []*generator.StudyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	studies := make([]*generator.StudyRecord, 0, len(s.index))
	for _, st := range s.index {
		studies = append(studies, st)
	}
	sort.Slice(studies, func(i, j int) bool {
		return studies[i].CreatedAt.Before(studies[j].CreatedAt)
	})
	return studies
}

// Get returns the indexed study record for studyUID.
func (s *Store) Get(studyUID string) (*generator.StudyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.index[studyUID]
	if !ok {
		return nil, ErrStudyNotFound
	}
	return st, nil
}

// Delete removes a study's files and index entry.
func (s *Store) Delete(studyUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[studyUID]; !ok {
		return ErrStudyNotFound
	}
	if err := os.RemoveAll(filepath.Join(s.root, studyUID)); err != nil {
		return fmt.Errorf("storage: remove study dir: %w", err)
	}
	delete(s.index, studyUID)
	return s.writeIndex()
}

// LoadInstances reads back every instance file of a study in series then
// instance order, decoding each Part 10 file.
func (s *Store) LoadInstances(studyUID string) ([]StoredInstance, error) {
	study, err := s.Get(studyUID)
	if err != nil {
		return nil, err
	}
	var out []StoredInstance
	for _, series := range study.Series {
		seriesDir := filepath.Join(s.root, studyUID, fmt.Sprintf("series_%d", series.SeriesNumber))
		for _, inst := range series.Instances {
			data, err := os.ReadFile(filepath.Join(seriesDir, inst.SOPInstanceUID+".dcm"))
			if err != nil {
				return nil, fmt.Errorf("storage: read %s: %w", inst.SOPInstanceUID, err)
			}
			meta, ds, err := dicom.DecodeFile(data)
			if err != nil {
				return nil, fmt.Errorf("storage: decode %s: %w", inst.SOPInstanceUID, err)
			}
			out = append(out, StoredInstance{
				SOPClassUID:    meta.SOPClassUID,
				SOPInstanceUID: meta.SOPInstanceUID,
				Dataset:        ds,
			})
		}
	}
	return out, nil
}
