package dicom

// Value representation codes. Only the VRs actually used by the generator
// and codec are named here; unknown tags decode as UN.
const (
	VRApplicationEntity = "AE"
	VRCodeString        = "CS"
	VRDate              = "DA"
	VRIntegerString     = "IS"
	VRLongString        = "LO"
	VROtherByte         = "OB"
	VROtherWord         = "OW"
	VRPersonName        = "PN"
	VRShortString       = "SH"
	VRTime              = "TM"
	VRUniqueIdentifier  = "UI"
	VRUnknown           = "UN"
	VRUnsignedLong      = "UL"
	VRUnsignedShort     = "US"
)

// longVRs use the explicit-VR long form: 2-byte VR code, 2 reserved bytes,
// 4-byte length.
var longVRs = map[string]bool{
	VROtherByte: true,
	VROtherWord: true,
	VRUnknown:   true,
}

// IsLongVR reports whether vr uses the 4-byte length form in explicit VR.
func IsLongVR(vr string) bool {
	return longVRs[vr]
}

// PadByte returns the byte used to pad odd-length values of vr to even
// length. UID strings and binary data pad with NUL, text with space.
func PadByte(vr string) byte {
	switch vr {
	case VRUniqueIdentifier, VROtherByte, VROtherWord, VRUnknown:
		return 0x00
	default:
		return 0x20
	}
}

// vrByTag is the dictionary used to recover VRs when decoding implicit VR
// streams. Tags absent from the table decode as UN.
var vrByTag = map[Tag]string{
	TagFileMetaGroupLength:        VRUnsignedLong,
	TagFileMetaVersion:            VROtherByte,
	TagMediaStorageSOPClassUID:    VRUniqueIdentifier,
	TagMediaStorageSOPInstanceUID: VRUniqueIdentifier,
	TagTransferSyntaxUID:          VRUniqueIdentifier,
	TagImplementationClassUID:     VRUniqueIdentifier,
	TagImplementationVersionName:  VRShortString,

	TagSOPClassUID:       VRUniqueIdentifier,
	TagSOPInstanceUID:    VRUniqueIdentifier,
	TagStudyDate:         VRDate,
	TagSeriesDate:        VRDate,
	TagStudyTime:         VRTime,
	TagSeriesTime:        VRTime,
	TagAccessionNumber:   VRShortString,
	TagModality:          VRCodeString,
	TagStudyDescription:  VRLongString,
	TagSeriesDescription: VRLongString,

	TagPatientName:      VRPersonName,
	TagPatientID:        VRLongString,
	TagPatientBirthDate: VRDate,
	TagPatientSex:       VRCodeString,

	TagStudyInstanceUID:  VRUniqueIdentifier,
	TagSeriesInstanceUID: VRUniqueIdentifier,
	TagStudyID:           VRShortString,
	TagSeriesNumber:      VRIntegerString,
	TagInstanceNumber:    VRIntegerString,

	TagSamplesPerPixel:           VRUnsignedShort,
	TagPhotometricInterpretation: VRCodeString,
	TagRows:                      VRUnsignedShort,
	TagColumns:                   VRUnsignedShort,
	TagBitsAllocated:             VRUnsignedShort,
	TagBitsStored:                VRUnsignedShort,
	TagHighBit:                   VRUnsignedShort,
	TagPixelRepresentation:       VRUnsignedShort,
	TagPixelData:                 VROtherWord,
}

// VRFor returns the dictionary VR for tag, defaulting to UN.
func VRFor(tag Tag) string {
	if vr, ok := vrByTag[tag]; ok {
		return vr
	}
	return VRUnknown
}
