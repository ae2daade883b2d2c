package dicom

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Part 10 file layout constants.
const (
	preambleLength = 128
	magic          = "DICM"
)

// EncodeDataset serializes ds in the given transfer syntax. Elements are
// written in ascending tag order; values must already be even-length.
func EncodeDataset(ds *Dataset, transferSyntax string) ([]byte, error) {
	if !SupportedTransferSyntax(transferSyntax) {
		return nil, encodingErr(Tag{}, "unsupported transfer syntax %q", transferSyntax)
	}
	explicit := transferSyntax == ExplicitVRLittleEndian
	var buf bytes.Buffer
	for _, e := range ds.Sorted() {
		if err := writeElement(&buf, e, explicit); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeDataset parses a full element stream in the given transfer syntax.
// Tags must appear in strictly ascending order; truncation and order
// violations surface as EncodingError.
func DecodeDataset(data []byte, transferSyntax string) (*Dataset, error) {
	if !SupportedTransferSyntax(transferSyntax) {
		return nil, encodingErr(Tag{}, "unsupported transfer syntax %q", transferSyntax)
	}
	explicit := transferSyntax == ExplicitVRLittleEndian
	ds := NewDataset()
	r := bytes.NewReader(data)
	var prev Tag
	first := true
	for r.Len() > 0 {
		e, err := readElement(r, explicit)
		if err != nil {
			return nil, err
		}
		if !first && !prev.Less(e.Tag) {
			return nil, encodingErr(e.Tag, "tag out of order after %s", prev)
		}
		prev, first = e.Tag, false
		ds.elements[e.Tag] = e
	}
	return ds, nil
}

func writeElement(buf *bytes.Buffer, e *Element, explicit bool) error {
	if len(e.Value)%2 == 1 {
		return encodingErr(e.Tag, "odd value length %d", len(e.Value))
	}
	var hdr [8]byte
	binary.LittleEndian.PutUint16(hdr[0:2], e.Tag.Group)
	binary.LittleEndian.PutUint16(hdr[2:4], e.Tag.Element)
	if !explicit {
		binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(e.Value)))
		buf.Write(hdr[:])
		buf.Write(e.Value)
		return nil
	}
	if len(e.VR) != 2 {
		return encodingErr(e.Tag, "invalid VR %q", e.VR)
	}
	hdr[4], hdr[5] = e.VR[0], e.VR[1]
	if IsLongVR(e.VR) {
		// long form: 2 reserved bytes then 4-byte length
		hdr[6], hdr[7] = 0, 0
		buf.Write(hdr[:])
		var length [4]byte
		binary.LittleEndian.PutUint32(length[:], uint32(len(e.Value)))
		buf.Write(length[:])
	} else {
		if len(e.Value) > 0xFFFF {
			return encodingErr(e.Tag, "value length %d exceeds short form for VR %s", len(e.Value), e.VR)
		}
		binary.LittleEndian.PutUint16(hdr[6:8], uint16(len(e.Value)))
		buf.Write(hdr[:])
	}
	buf.Write(e.Value)
	return nil
}

func readElement(r *bytes.Reader, explicit bool) (*Element, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, encodingErr(Tag{}, "truncated element header")
	}
	tag := Tag{
		Group:   binary.LittleEndian.Uint16(hdr[0:2]),
		Element: binary.LittleEndian.Uint16(hdr[2:4]),
	}
	var vr string
	var length uint32
	if explicit {
		vr = string(hdr[4:6])
		if IsLongVR(vr) {
			var lb [4]byte
			if _, err := io.ReadFull(r, lb[:]); err != nil {
				return nil, encodingErr(tag, "truncated long-form length")
			}
			length = binary.LittleEndian.Uint32(lb[:])
		} else {
			length = uint32(binary.LittleEndian.Uint16(hdr[6:8]))
		}
	} else {
		vr = VRFor(tag)
		length = binary.LittleEndian.Uint32(hdr[4:8])
	}
	if length%2 == 1 {
		return nil, encodingErr(tag, "odd value length %d", length)
	}
	value := make([]byte, length)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, encodingErr(tag, "truncated value, want %d bytes", length)
	}
	return &Element{Tag: tag, VR: vr, Value: value}, nil
}

// FileMeta identifies a stored instance: the header written ahead of the
// main dataset in a Part 10 file, always encoded in explicit VR little
// endian regardless of the main dataset's transfer syntax.
type FileMeta struct {
	SOPClassUID    string
	SOPInstanceUID string
	TransferSyntax string
}

// EncodeFile serializes ds as a Part 10 file: 128-byte preamble, "DICM",
// explicit-VR group-0002 file meta with a computed group length, then the
// main dataset in the transfer syntax named by the meta header.
func EncodeFile(ds *Dataset, transferSyntax string) ([]byte, error) {
	sopClass := ds.String(TagSOPClassUID)
	sopInstance := ds.String(TagSOPInstanceUID)
	if sopClass == "" || sopInstance == "" {
		return nil, encodingErr(TagSOPInstanceUID, "file meta requires SOP class and instance UIDs")
	}
	body, err := EncodeDataset(ds, transferSyntax)
	if err != nil {
		return nil, err
	}

	meta := NewDataset()
	meta.SetBytes(TagFileMetaVersion, VROtherByte, []byte{0x00, 0x01})
	meta.SetString(TagMediaStorageSOPClassUID, VRUniqueIdentifier, sopClass)
	meta.SetString(TagMediaStorageSOPInstanceUID, VRUniqueIdentifier, sopInstance)
	meta.SetString(TagTransferSyntaxUID, VRUniqueIdentifier, transferSyntax)
	meta.SetString(TagImplementationClassUID, VRUniqueIdentifier, ImplementationClassUID)
	meta.SetString(TagImplementationVersionName, VRShortString, ImplementationVersionName)
	metaBytes, err := EncodeDataset(meta, ExplicitVRLittleEndian)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, preambleLength))
	buf.WriteString(magic)
	groupLength := NewDataset()
	var gl [4]byte
	binary.LittleEndian.PutUint32(gl[:], uint32(len(metaBytes)))
	groupLength.SetBytes(TagFileMetaGroupLength, VRUnsignedLong, gl[:])
	glBytes, err := EncodeDataset(groupLength, ExplicitVRLittleEndian)
	if err != nil {
		return nil, err
	}
	buf.Write(glBytes)
	buf.Write(metaBytes)
	buf.Write(body)
	return buf.Bytes(), nil
}

// DecodeFile parses a Part 10 file, returning the file meta identity and
// the main dataset decoded in the transfer syntax the meta header names.
func DecodeFile(data []byte) (*FileMeta, *Dataset, error) {
	if len(data) < preambleLength+len(magic) {
		return nil, nil, encodingErr(Tag{}, "file shorter than preamble")
	}
	if string(data[preambleLength:preambleLength+len(magic)]) != magic {
		return nil, nil, encodingErr(Tag{}, "missing DICM magic")
	}
	r := bytes.NewReader(data[preambleLength+len(magic):])

	glElem, err := readElement(r, true)
	if err != nil {
		return nil, nil, err
	}
	if glElem.Tag != TagFileMetaGroupLength || len(glElem.Value) != 4 {
		return nil, nil, encodingErr(glElem.Tag, "expected file meta group length")
	}
	metaLen := binary.LittleEndian.Uint32(glElem.Value)
	metaBytes := make([]byte, metaLen)
	if _, err := io.ReadFull(r, metaBytes); err != nil {
		return nil, nil, encodingErr(TagFileMetaGroupLength, "truncated file meta, want %d bytes", metaLen)
	}
	metaDS, err := DecodeDataset(metaBytes, ExplicitVRLittleEndian)
	if err != nil {
		return nil, nil, err
	}
	meta := &FileMeta{
		SOPClassUID:    metaDS.String(TagMediaStorageSOPClassUID),
		SOPInstanceUID: metaDS.String(TagMediaStorageSOPInstanceUID),
		TransferSyntax: metaDS.String(TagTransferSyntaxUID),
	}
	if !SupportedTransferSyntax(meta.TransferSyntax) {
		return nil, nil, encodingErr(TagTransferSyntaxUID, "unsupported transfer syntax %q", meta.TransferSyntax)
	}

	rest := make([]byte, r.Len())
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, nil, encodingErr(Tag{}, "truncated main dataset")
	}
	ds, err := DecodeDataset(rest, meta.TransferSyntax)
	if err != nil {
		return nil, nil, err
	}
	return meta, ds, nil
}
