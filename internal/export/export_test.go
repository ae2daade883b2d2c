package export

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/flatmapit/dicom-maker/internal/generator"
	"github.com/flatmapit/dicom-maker/internal/storage"
	"github.com/flatmapit/dicom-maker/internal/uid"
)

func exportTestStudy(t *testing.T, modality string, series, instances int) (*generator.StudyRecord, []storage.StoredInstance) {
	t.Helper()

	gen := generator.New(uid.NewGenerator(""), zerolog.Nop())
	study, err := gen.CreateStudy(generator.Options{
		Modality:           modality,
		SeriesCount:        series,
		InstancesPerSeries: instances,
	})
	if err != nil {
		t.Fatalf("CreateStudy: %v", err)
	}

	var stored []storage.StoredInstance
	for _, s := range study.Series {
		for _, inst := range s.Instances {
			stored = append(stored, storage.StoredInstance{
				SOPClassUID:    inst.SOPClassUID,
				SOPInstanceUID: inst.SOPInstanceUID,
				Dataset:        inst.Dataset,
			})
		}
	}
	return study, stored
}

func TestStudyToPNGLayout(t *testing.T) {
	study, stored := exportTestStudy(t, "CT", 2, 2)
	dir := t.TempDir()

	exp := NewExporter(zerolog.Nop())
	images, err := exp.StudyToPNG(study, stored, dir)
	if err != nil {
		t.Fatalf("StudyToPNG: %v", err)
	}
	if images != 4 {
		t.Errorf("images = %d, want 4", images)
	}

	if _, err := os.Stat(filepath.Join(dir, "study_metadata.json")); err != nil {
		t.Errorf("study metadata missing: %v", err)
	}

	for _, s := range study.Series {
		seriesDir := filepath.Join(dir, fmt.Sprintf("series_%d", s.SeriesNumber))
		if _, err := os.Stat(filepath.Join(seriesDir, "series_metadata.json")); err != nil {
			t.Errorf("series %d metadata missing: %v", s.SeriesNumber, err)
		}
		for i, inst := range s.Instances {
			base := filepath.Join(seriesDir, fmt.Sprintf("image_%03d_instance_%d", i+1, inst.InstanceNumber))
			if _, err := os.Stat(base + ".png"); err != nil {
				t.Errorf("PNG missing for instance %d: %v", inst.InstanceNumber, err)
			}
			if _, err := os.Stat(base + "_metadata.txt"); err != nil {
				t.Errorf("metadata missing for instance %d: %v", inst.InstanceNumber, err)
			}
		}
	}
}

func TestStudyToPNGImageDecodes(t *testing.T) {
	study, stored := exportTestStudy(t, "MR", 1, 1)
	dir := t.TempDir()

	exp := NewExporter(zerolog.Nop())
	if _, err := exp.StudyToPNG(study, stored, dir); err != nil {
		t.Fatalf("StudyToPNG: %v", err)
	}

	path := filepath.Join(dir, "series_1", "image_001_instance_1.png")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open PNG: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode PNG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 256 || bounds.Dy() != 256 {
		t.Errorf("PNG size = %dx%d, want 256x256", bounds.Dx(), bounds.Dy())
	}
}

func TestStudyToPNGMetadataContent(t *testing.T) {
	study, stored := exportTestStudy(t, "US", 1, 1)
	dir := t.TempDir()

	exp := NewExporter(zerolog.Nop())
	if _, err := exp.StudyToPNG(study, stored, dir); err != nil {
		t.Fatalf("StudyToPNG: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "series_1", "image_001_instance_1_metadata.txt"))
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	text := string(data)

	for _, want := range []string{
		"Modality: US",
		"Rows: 480",
		"Columns: 640",
		"SOP Instance UID: " + study.Series[0].Instances[0].SOPInstanceUID,
		"Patient Name: " + study.Patient.Name,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metadata missing %q in:\n%s", want, text)
		}
	}
}

func TestStudyToPNGMissingDataset(t *testing.T) {
	study, _ := exportTestStudy(t, "CR", 1, 1)

	exp := NewExporter(zerolog.Nop())
	if _, err := exp.StudyToPNG(study, nil, t.TempDir()); err == nil {
		t.Error("StudyToPNG succeeded without stored datasets")
	}
}
