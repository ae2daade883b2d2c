package dicom

import "fmt"

// Tag identifies a DICOM data element by (group, element).
type Tag struct {
	Group   uint16
	Element uint16
}

// String returns the tag in (GGGG,EEEE) format.
func (t Tag) String() string {
	return fmt.Sprintf("(%04X,%04X)", t.Group, t.Element)
}

// Less reports whether t sorts before other in ascending tag order.
func (t Tag) Less(other Tag) bool {
	if t.Group != other.Group {
		return t.Group < other.Group
	}
	return t.Element < other.Element
}

// Tags used by the generator, codec and message layer.
var (
	// File meta (group 0002)
	TagFileMetaGroupLength        = Tag{0x0002, 0x0000}
	TagFileMetaVersion            = Tag{0x0002, 0x0001}
	TagMediaStorageSOPClassUID    = Tag{0x0002, 0x0002}
	TagMediaStorageSOPInstanceUID = Tag{0x0002, 0x0003}
	TagTransferSyntaxUID          = Tag{0x0002, 0x0010}
	TagImplementationClassUID     = Tag{0x0002, 0x0012}
	TagImplementationVersionName  = Tag{0x0002, 0x0013}

	// Identification
	TagSOPClassUID    = Tag{0x0008, 0x0016}
	TagSOPInstanceUID = Tag{0x0008, 0x0018}
	TagStudyDate      = Tag{0x0008, 0x0020}
	TagSeriesDate     = Tag{0x0008, 0x0021}
	TagStudyTime      = Tag{0x0008, 0x0030}
	TagSeriesTime     = Tag{0x0008, 0x0031}
	TagAccessionNumber = Tag{0x0008, 0x0050}
	TagModality        = Tag{0x0008, 0x0060}
	TagStudyDescription  = Tag{0x0008, 0x1030}
	TagSeriesDescription = Tag{0x0008, 0x103E}

	// Patient
	TagPatientName      = Tag{0x0010, 0x0010}
	TagPatientID        = Tag{0x0010, 0x0020}
	TagPatientBirthDate = Tag{0x0010, 0x0030}
	TagPatientSex       = Tag{0x0010, 0x0040}

	// Relationship
	TagStudyInstanceUID  = Tag{0x0020, 0x000D}
	TagSeriesInstanceUID = Tag{0x0020, 0x000E}
	TagStudyID           = Tag{0x0020, 0x0010}
	TagSeriesNumber      = Tag{0x0020, 0x0011}
	TagInstanceNumber    = Tag{0x0020, 0x0013}

	// Image pixel
	TagSamplesPerPixel           = Tag{0x0028, 0x0002}
	TagPhotometricInterpretation = Tag{0x0028, 0x0004}
	TagRows                      = Tag{0x0028, 0x0010}
	TagColumns                   = Tag{0x0028, 0x0011}
	TagBitsAllocated             = Tag{0x0028, 0x0100}
	TagBitsStored                = Tag{0x0028, 0x0101}
	TagHighBit                   = Tag{0x0028, 0x0102}
	TagPixelRepresentation       = Tag{0x0028, 0x0103}
	TagPixelData                 = Tag{0x7FE0, 0x0010}
)

// tagNames is used in validation and event messages.
var tagNames = map[Tag]string{
	TagSOPClassUID:       "SOPClassUID",
	TagSOPInstanceUID:    "SOPInstanceUID",
	TagStudyDate:         "StudyDate",
	TagStudyTime:         "StudyTime",
	TagAccessionNumber:   "AccessionNumber",
	TagModality:          "Modality",
	TagStudyDescription:  "StudyDescription",
	TagSeriesDescription: "SeriesDescription",
	TagPatientName:       "PatientName",
	TagPatientID:         "PatientID",
	TagPatientBirthDate:  "PatientBirthDate",
	TagPatientSex:        "PatientSex",
	TagStudyInstanceUID:  "StudyInstanceUID",
	TagSeriesInstanceUID: "SeriesInstanceUID",
	TagStudyID:           "StudyID",
	TagSeriesNumber:      "SeriesNumber",
	TagInstanceNumber:    "InstanceNumber",
	TagPixelData:         "PixelData",
}

// Name returns the dictionary name of t, or its (GGGG,EEEE) form when the
// tag is not in the dictionary.
func (t Tag) Name() string {
	if n, ok := tagNames[t]; ok {
		return n
	}
	return t.String()
}
