package dicom

import (
	"fmt"
	"sort"
	"strings"
)

// ModalityProfile describes how instances of a modality are shaped: the
// storage SOP class negotiated for them and the pixel geometry synthesized
// into them.
type ModalityProfile struct {
	Code        string
	Description string
	SOPClassUID string
	Rows        uint16
	Columns     uint16
	BitsStored  uint16
}

// BitsAllocated returns the allocation for the profile's bit depth, always
// a whole number of bytes per sample.
func (p ModalityProfile) BitsAllocated() uint16 {
	if p.BitsStored <= 8 {
		return 8
	}
	return 16
}

// BytesPerFrame returns the pixel data size of one frame.
func (p ModalityProfile) BytesPerFrame() int {
	return int(p.Rows) * int(p.Columns) * int(p.BitsAllocated()/8)
}

var modalityProfiles = map[string]ModalityProfile{
	"CR": {"CR", "Computed Radiography", "1.2.840.10008.5.1.4.1.1.1", 1024, 1024, 12},
	"CT": {"CT", "Computed Tomography", "1.2.840.10008.5.1.4.1.1.2", 512, 512, 16},
	"MR": {"MR", "Magnetic Resonance", "1.2.840.10008.5.1.4.1.1.4", 256, 256, 16},
	"US": {"US", "Ultrasound", "1.2.840.10008.5.1.4.1.1.6.1", 480, 640, 8},
	"DX": {"DX", "Digital Radiography", "1.2.840.10008.5.1.4.1.1.1.1", 1024, 1024, 16},
	"MG": {"MG", "Mammography", "1.2.840.10008.5.1.4.1.1.1.2", 1024, 1024, 16},
}

// ProfileFor returns the profile for a modality code. Unknown codes are an
// error rather than a silent fallback.
func ProfileFor(code string) (ModalityProfile, error) {
	p, ok := modalityProfiles[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return ModalityProfile{}, fmt.Errorf("dicom: unknown modality %q (supported: %s)",
			code, strings.Join(ModalityCodes(), ", "))
	}
	return p, nil
}

// ModalityCodes returns the supported modality codes in sorted order.
func ModalityCodes() []string {
	codes := make([]string, 0, len(modalityProfiles))
	for c := range modalityProfiles {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
