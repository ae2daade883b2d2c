// Package export renders stored studies into reviewable artifacts:
// per-instance grayscale PNG files alongside JSON and text metadata.
package export

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/flatmapit/dicom-maker/internal/dicom"
	"github.com/flatmapit/dicom-maker/internal/generator"
	"github.com/flatmapit/dicom-maker/internal/storage"
)

// Exporter writes PNG renditions of stored studies
type Exporter struct {
	log zerolog.Logger
}

// NewExporter creates a new exporter
func NewExporter(log zerolog.Logger) *Exporter {
	return &Exporter{log: log}
}

type studyMetadata struct {
	StudyInstanceUID string `json:"study_instance_uid"`
	PatientName      string `json:"patient_name"`
	PatientID        string `json:"patient_id"`
	StudyDate        string `json:"study_date"`
	StudyTime        string `json:"study_time"`
	AccessionNumber  string `json:"accession_number"`
	SeriesCount      int    `json:"series_count"`
	TotalImages      int    `json:"total_images"`
}

type seriesMetadata struct {
	SeriesNumber      int    `json:"series_number"`
	SeriesInstanceUID string `json:"series_instance_uid"`
	Modality          string `json:"modality"`
	Description       string `json:"description"`
	ImageCount        int    `json:"image_count"`
}

// StudyToPNG writes one PNG plus a metadata text file per instance under
// dir, with study- and series-level JSON metadata, mirroring the study's
// series layout. Returns the number of images written.
func (e *Exporter) StudyToPNG(study *generator.StudyRecord, instances []storage.StoredInstance, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create export directory: %w", err)
	}

	datasets := make(map[string]*dicom.Dataset, len(instances))
	for _, inst := range instances {
		datasets[inst.SOPInstanceUID] = inst.Dataset
	}

	meta := studyMetadata{
		StudyInstanceUID: study.StudyInstanceUID,
		PatientName:      study.Patient.Name,
		PatientID:        study.Patient.ID,
		StudyDate:        study.StudyDate,
		StudyTime:        study.StudyTime,
		AccessionNumber:  study.AccessionNumber,
		SeriesCount:      len(study.Series),
		TotalImages:      study.InstanceCount(),
	}
	if err := writeJSON(filepath.Join(dir, "study_metadata.json"), meta); err != nil {
		return 0, err
	}

	written := 0
	for _, series := range study.Series {
		seriesDir := filepath.Join(dir, fmt.Sprintf("series_%d", series.SeriesNumber))
		if err := os.MkdirAll(seriesDir, 0o755); err != nil {
			return written, fmt.Errorf("failed to create series directory: %w", err)
		}

		sm := seriesMetadata{
			SeriesNumber:      series.SeriesNumber,
			SeriesInstanceUID: series.SeriesInstanceUID,
			Modality:          series.Modality,
			Description:       series.Description,
			ImageCount:        len(series.Instances),
		}
		if err := writeJSON(filepath.Join(seriesDir, "series_metadata.json"), sm); err != nil {
			return written, err
		}

		for i, inst := range series.Instances {
			ds, ok := datasets[inst.SOPInstanceUID]
			if !ok {
				return written, fmt.Errorf("no stored dataset for instance %s", inst.SOPInstanceUID)
			}
			name := fmt.Sprintf("image_%03d_instance_%d", i+1, inst.InstanceNumber)
			if err := e.writeInstance(ds, seriesDir, name); err != nil {
				return written, err
			}
			written++
		}
	}

	e.log.Info().
		Str("study_uid", study.StudyInstanceUID).
		Str("dir", dir).
		Int("images", written).
		Msg("Study exported to PNG")
	return written, nil
}

func (e *Exporter) writeInstance(ds *dicom.Dataset, dir, name string) error {
	img, err := renderGray(ds)
	if err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, name+".png"))
	if err != nil {
		return fmt.Errorf("failed to create PNG file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	return writeInstanceMetadata(ds, filepath.Join(dir, name+"_metadata.txt"))
}

// renderGray converts the dataset's pixel data into an 8-bit grayscale
// image, min-max normalized the way the viewer-facing exports expect.
func renderGray(ds *dicom.Dataset) (*image.Gray, error) {
	rows, ok := ds.Uint16(dicom.TagRows)
	if !ok {
		return nil, fmt.Errorf("dataset has no rows element")
	}
	cols, ok := ds.Uint16(dicom.TagColumns)
	if !ok {
		return nil, fmt.Errorf("dataset has no columns element")
	}
	bitsAllocated, ok := ds.Uint16(dicom.TagBitsAllocated)
	if !ok {
		return nil, fmt.Errorf("dataset has no bits allocated element")
	}
	elem, ok := ds.Element(dicom.TagPixelData)
	if !ok {
		return nil, fmt.Errorf("dataset has no pixel data")
	}

	count := int(rows) * int(cols)
	bytesPerSample := int(bitsAllocated) / 8
	if bytesPerSample != 1 && bytesPerSample != 2 {
		return nil, fmt.Errorf("unsupported bits allocated: %d", bitsAllocated)
	}
	if len(elem.Value) < count*bytesPerSample {
		return nil, fmt.Errorf("pixel data is %d bytes, need %d", len(elem.Value), count*bytesPerSample)
	}

	samples := make([]uint16, count)
	for i := range samples {
		if bytesPerSample == 1 {
			samples[i] = uint16(elem.Value[i])
		} else {
			samples[i] = binary.LittleEndian.Uint16(elem.Value[i*2:])
		}
	}

	lo, hi := samples[0], samples[0]
	for _, s := range samples[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	span := int(hi) - int(lo)
	if span == 0 {
		span = 1
	}

	img := image.NewGray(image.Rect(0, 0, int(cols), int(rows)))
	for i, s := range samples {
		img.Pix[i] = uint8((int(s) - int(lo)) * 255 / span)
	}
	return img, nil
}

func writeInstanceMetadata(ds *dicom.Dataset, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metadata file: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "DICOM Image Metadata\n")
	fmt.Fprintf(f, "====================\n\n")
	lines := []struct {
		label string
		tag   dicom.Tag
	}{
		{"Instance Number", dicom.TagInstanceNumber},
		{"SOP Instance UID", dicom.TagSOPInstanceUID},
		{"Modality", dicom.TagModality},
		{"Rows", dicom.TagRows},
		{"Columns", dicom.TagColumns},
		{"Bits Allocated", dicom.TagBitsAllocated},
		{"Bits Stored", dicom.TagBitsStored},
		{"Photometric Interpretation", dicom.TagPhotometricInterpretation},
		{"Patient Name", dicom.TagPatientName},
		{"Patient ID", dicom.TagPatientID},
		{"Study Date", dicom.TagStudyDate},
		{"Study Time", dicom.TagStudyTime},
		{"Accession Number", dicom.TagAccessionNumber},
	}
	for _, line := range lines {
		var value string
		if elem, ok := ds.Element(line.tag); ok && elem.VR == dicom.VRUnsignedShort {
			n, _ := ds.Uint16(line.tag)
			value = fmt.Sprintf("%d", n)
		} else {
			value = ds.String(line.tag)
		}
		fmt.Fprintf(f, "%s: %s\n", line.label, value)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
