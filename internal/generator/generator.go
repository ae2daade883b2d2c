// Package generator fabricates complete synthetic studies: a patient, a
// study, series and instances with fully populated datasets and pixel data,
// ready for encoding and transmission. All identifiers are fictitious.
package generator

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/flatmapit/dicom-maker/internal/dicom"
	"github.com/flatmapit/dicom-maker/internal/image"
	"github.com/flatmapit/dicom-maker/internal/uid"
)

// Options controls one study generation request. Zero counts default to 1;
// empty overrides are synthesized.
type Options struct {
	SeriesCount        int
	InstancesPerSeries int
	Modality           string

	PatientName      string
	PatientID        string
	AccessionNumber  string
	StudyDescription string

	// Seed makes generation reproducible when non-zero.
	Seed uint64
}

// PatientRecord is the synthetic subject shared by every instance of a
// study.
type PatientRecord struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	BirthDate string `json:"birthDate"`
	Sex       string `json:"sex"`
}

// InstanceRecord is one generated image with its fully populated dataset.
type InstanceRecord struct {
	SOPInstanceUID string `json:"sopInstanceUid"`
	SOPClassUID    string `json:"sopClassUid"`
	InstanceNumber int    `json:"instanceNumber"`

	Dataset *dicom.Dataset `json:"-"`
}

// SeriesRecord owns its instances; numbering is sequential from 1.
type SeriesRecord struct {
	SeriesInstanceUID string            `json:"seriesInstanceUid"`
	SeriesNumber      int               `json:"seriesNumber"`
	Modality          string            `json:"modality"`
	Description       string            `json:"description"`
	Instances         []*InstanceRecord `json:"instances"`
}

// StudyRecord is one complete generated examination.
type StudyRecord struct {
	StudyInstanceUID string          `json:"studyInstanceUid"`
	StudyID          string          `json:"studyId"`
	StudyDate        string          `json:"studyDate"`
	StudyTime        string          `json:"studyTime"`
	AccessionNumber  string          `json:"accessionNumber"`
	Description      string          `json:"description"`
	Modality         string          `json:"modality"`
	Patient          PatientRecord   `json:"patient"`
	Series           []*SeriesRecord `json:"series"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// InstanceCount returns the total number of instances across all series.
func (s *StudyRecord) InstanceCount() int {
	n := 0
	for _, se := range s.Series {
		n += len(se.Instances)
	}
	return n
}

// Generator builds studies. Safe for concurrent use: each CreateStudy call
// derives its own random source and shares only the UID generator.
type Generator struct {
	uids *uid.Generator
	log  zerolog.Logger
	now  func() time.Time
}

// New returns a generator minting identifiers from uids.
func New(uids *uid.Generator, log zerolog.Logger) *Generator {
	return &Generator{uids: uids, log: log, now: time.Now}
}

// CreateStudy fabricates a study per opts. Every instance dataset carries
// the full mandatory element set and validated pixel geometry for the
// modality; any value synthesized in place of a missing override is logged.
func (g *Generator) CreateStudy(opts Options) (*StudyRecord, error) {
	if opts.SeriesCount <= 0 {
		opts.SeriesCount = 1
	}
	if opts.InstancesPerSeries <= 0 {
		opts.InstancesPerSeries = 1
	}
	if opts.Modality == "" {
		opts.Modality = "CR"
	}
	profile, err := dicom.ProfileFor(opts.Modality)
	if err != nil {
		return nil, err
	}

	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, 0))

	now := g.now()
	patient := g.synthesizePatient(opts, rng)

	studyUID, err := g.uids.New(uid.ScopeStudy)
	if err != nil {
		return nil, fmt.Errorf("generator: study UID: %w", err)
	}
	study := &StudyRecord{
		StudyInstanceUID: studyUID,
		StudyID:          fmt.Sprintf("S%07d", rng.IntN(10000000)),
		StudyDate:        now.Format("20060102"),
		StudyTime:        now.Format("150405"),
		AccessionNumber:  opts.AccessionNumber,
		Description:      opts.StudyDescription,
		Modality:         profile.Code,
		Patient:          patient,
		CreatedAt:        now,
	}
	if study.AccessionNumber == "" {
		study.AccessionNumber = fmt.Sprintf("ACC%09d", rng.IntN(1000000000))
		g.logSubstitution(studyUID, "AccessionNumber", study.AccessionNumber)
	}
	if study.Description == "" {
		study.Description = fmt.Sprintf("Synthetic %s Study", profile.Description)
		g.logSubstitution(studyUID, "StudyDescription", study.Description)
	}

	totalInstances := opts.SeriesCount * opts.InstancesPerSeries
	instanceIndex := 0
	for sn := 1; sn <= opts.SeriesCount; sn++ {
		seriesUID, err := g.uids.New(uid.ScopeSeries)
		if err != nil {
			return nil, fmt.Errorf("generator: series UID: %w", err)
		}
		series := &SeriesRecord{
			SeriesInstanceUID: seriesUID,
			SeriesNumber:      sn,
			Modality:          profile.Code,
			Description:       fmt.Sprintf("Synthetic Series %d", sn),
		}
		for in := 1; in <= opts.InstancesPerSeries; in++ {
			instanceIndex++
			inst, err := g.buildInstance(study, series, profile, in, instanceIndex, totalInstances, seed)
			if err != nil {
				return nil, err
			}
			series.Instances = append(series.Instances, inst)
		}
		study.Series = append(study.Series, series)
	}

	g.log.Info().
		Str("study_uid", study.StudyInstanceUID).
		Str("modality", profile.Code).
		Int("series", len(study.Series)).
		Int("instances", study.InstanceCount()).
		Msg("study generated")
	return study, nil
}

func (g *Generator) synthesizePatient(opts Options, rng *rand.Rand) PatientRecord {
	sex := "F"
	if rng.IntN(2) == 0 {
		sex = "M"
	}
	p := PatientRecord{
		Name: opts.PatientName,
		ID:   opts.PatientID,
		Sex:  sex,
		BirthDate: time.Date(1930+rng.IntN(76), time.Month(1+rng.IntN(12)), 1+rng.IntN(28),
			0, 0, 0, 0, time.UTC).Format("20060102"),
	}
	if p.Name == "" {
		p.Name = patientName(sex, rng)
		g.logSubstitution("", "PatientName", p.Name)
	}
	if p.ID == "" {
		p.ID = fmt.Sprintf("SYN%08d", rng.IntN(100000000))
		g.logSubstitution("", "PatientID", p.ID)
	}
	return p
}

func (g *Generator) buildInstance(study *StudyRecord, series *SeriesRecord, profile dicom.ModalityProfile,
	number, index, total int, seed uint64) (*InstanceRecord, error) {

	sopUID, err := g.uids.New(uid.ScopeInstance)
	if err != nil {
		return nil, fmt.Errorf("generator: instance UID: %w", err)
	}

	ds := dicom.NewDataset()
	ds.SetString(dicom.TagSOPClassUID, dicom.VRUniqueIdentifier, profile.SOPClassUID)
	ds.SetString(dicom.TagSOPInstanceUID, dicom.VRUniqueIdentifier, sopUID)
	ds.SetString(dicom.TagStudyDate, dicom.VRDate, study.StudyDate)
	ds.SetString(dicom.TagSeriesDate, dicom.VRDate, study.StudyDate)
	ds.SetString(dicom.TagStudyTime, dicom.VRTime, study.StudyTime)
	ds.SetString(dicom.TagSeriesTime, dicom.VRTime, study.StudyTime)
	ds.SetString(dicom.TagAccessionNumber, dicom.VRShortString, study.AccessionNumber)
	ds.SetString(dicom.TagModality, dicom.VRCodeString, profile.Code)
	ds.SetString(dicom.TagStudyDescription, dicom.VRLongString, study.Description)
	ds.SetString(dicom.TagSeriesDescription, dicom.VRLongString, series.Description)
	ds.SetString(dicom.TagPatientName, dicom.VRPersonName, study.Patient.Name)
	ds.SetString(dicom.TagPatientID, dicom.VRLongString, study.Patient.ID)
	ds.SetString(dicom.TagPatientBirthDate, dicom.VRDate, study.Patient.BirthDate)
	ds.SetString(dicom.TagPatientSex, dicom.VRCodeString, study.Patient.Sex)
	ds.SetString(dicom.TagStudyInstanceUID, dicom.VRUniqueIdentifier, study.StudyInstanceUID)
	ds.SetString(dicom.TagSeriesInstanceUID, dicom.VRUniqueIdentifier, series.SeriesInstanceUID)
	ds.SetString(dicom.TagStudyID, dicom.VRShortString, study.StudyID)
	ds.SetInt(dicom.TagSeriesNumber, series.SeriesNumber)
	ds.SetInt(dicom.TagInstanceNumber, number)

	ds.SetUint16(dicom.TagSamplesPerPixel, dicom.VRUnsignedShort, 1)
	ds.SetString(dicom.TagPhotometricInterpretation, dicom.VRCodeString, "MONOCHROME2")
	ds.SetUint16(dicom.TagRows, dicom.VRUnsignedShort, profile.Rows)
	ds.SetUint16(dicom.TagColumns, dicom.VRUnsignedShort, profile.Columns)
	ds.SetUint16(dicom.TagBitsAllocated, dicom.VRUnsignedShort, profile.BitsAllocated())
	ds.SetUint16(dicom.TagBitsStored, dicom.VRUnsignedShort, profile.BitsStored)
	ds.SetUint16(dicom.TagHighBit, dicom.VRUnsignedShort, profile.BitsStored-1)
	ds.SetUint16(dicom.TagPixelRepresentation, dicom.VRUnsignedShort, 0)

	label := fmt.Sprintf("%s %d/%d SYNTHETIC", profile.Code, index, total)
	pixels, err := image.Synthesize(profile, seed+uint64(index), label)
	if err != nil {
		return nil, fmt.Errorf("generator: pixel synthesis: %w", err)
	}
	ds.SetBytes(dicom.TagPixelData, dicom.VROtherWord, pixels)

	if err := ds.Validate(profile.SOPClassUID); err != nil {
		return nil, err
	}
	for _, ev := range ds.Events() {
		g.log.Debug().
			Str("sop_instance_uid", sopUID).
			Str("tag", ev.Tag.String()).
			Str("kind", string(ev.Kind)).
			Msg(ev.Detail)
	}

	return &InstanceRecord{
		SOPInstanceUID: sopUID,
		SOPClassUID:    profile.SOPClassUID,
		InstanceNumber: number,
		Dataset:        ds,
	}, nil
}

func (g *Generator) logSubstitution(studyUID, field, value string) {
	ev := g.log.Info().Str("field", field).Str("value", value)
	if studyUID != "" {
		ev = ev.Str("study_uid", studyUID)
	}
	ev.Msg("synthesized value for absent field")
}
