package dicom

// Well-known UIDs used across the codec and the network layer.
const (
	// Transfer syntaxes
	ImplicitVRLittleEndian = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"

	// Application context for association negotiation
	ApplicationContextUID = "1.2.840.10008.3.1.1.1"

	// Verification SOP class (C-ECHO)
	VerificationSOPClassUID = "1.2.840.10008.1.1"

	// Implementation identity carried in the file meta header and in
	// association user information.
	ImplementationClassUID    = "1.2.826.0.1.3680043.8.498.1"
	ImplementationVersionName = "DICOM_MAKER_10"
)

// SupportedTransferSyntax reports whether the codec can encode and decode
// the given transfer syntax.
func SupportedTransferSyntax(uid string) bool {
	return uid == ImplicitVRLittleEndian || uid == ExplicitVRLittleEndian
}
