package dimse

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/flatmapit/dicom-maker/internal/dicom"
)

// Upper layer PDU type codes.
const (
	pduTypeAssociateRQ byte = 0x01
	pduTypeAssociateAC byte = 0x02
	pduTypeAssociateRJ byte = 0x03
	pduTypePDataTF     byte = 0x04
	pduTypeReleaseRQ   byte = 0x05
	pduTypeReleaseRP   byte = 0x06
	pduTypeAbort       byte = 0x07
)

// Item and sub-item type codes used inside associate PDUs.
const (
	itemApplicationContext  byte = 0x10
	itemPresentationContext byte = 0x20
	itemPresentationResult  byte = 0x21
	itemAbstractSyntax      byte = 0x30
	itemTransferSyntax      byte = 0x40
	itemUserInformation     byte = 0x50
	itemMaxPDULength        byte = 0x51
	itemImplementationUID   byte = 0x52
	itemImplementationName  byte = 0x55
)

const maxAcceptablePDU = 16 * 1024 * 1024

// rawPDU is one framed protocol data unit: type code, reserved byte,
// big-endian length, payload.
type rawPDU struct {
	Type byte
	Data []byte
}

func writePDU(w io.Writer, typ byte, data []byte) error {
	header := make([]byte, 6, 6+len(data))
	header[0] = typ
	binary.BigEndian.PutUint32(header[2:6], uint32(len(data)))
	_, err := w.Write(append(header, data...))
	return err
}

func readPDU(r io.Reader) (*rawPDU, error) {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[2:6])
	if length > maxAcceptablePDU {
		return nil, protocolErr("PDU length %d exceeds sanity limit", length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("truncated PDU payload: %w", err)
	}
	return &rawPDU{Type: header[0], Data: data}, nil
}

// proposedContext is one presentation context offered in A-ASSOCIATE-RQ.
type proposedContext struct {
	id               byte
	abstractSyntax   string
	transferSyntaxes []string
}

// acceptedContext is the peer's answer for one proposed context.
type acceptedContext struct {
	id             byte
	result         byte
	abstractSyntax string
	transferSyntax string
}

func (c *acceptedContext) accepted() bool { return c.result == 0x00 }

// paddedAETitle space-pads an application entity title to the fixed
// 16-byte field.
func paddedAETitle(title string) []byte {
	out := []byte(fmt.Sprintf("%-16s", title))
	return out[:16]
}

func appendItem(buf []byte, typ byte, value []byte) []byte {
	buf = append(buf, typ, 0x00)
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(value)))
	buf = append(buf, length[:]...)
	return append(buf, value...)
}

// buildAssociateRQ serializes the A-ASSOCIATE-RQ payload: protocol version,
// AE title fields, application context, proposed presentation contexts, and
// user information with our max PDU length and implementation identity.
func buildAssociateRQ(calling, called string, maxPDU uint32, contexts []proposedContext) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, 0x00, 0x01) // protocol version 1
	buf = append(buf, 0x00, 0x00)
	buf = append(buf, paddedAETitle(called)...)
	buf = append(buf, paddedAETitle(calling)...)
	buf = append(buf, make([]byte, 32)...)

	buf = appendItem(buf, itemApplicationContext, []byte(dicom.ApplicationContextUID))

	for _, pc := range contexts {
		var body []byte
		body = append(body, pc.id, 0x00, 0x00, 0x00)
		body = appendItem(body, itemAbstractSyntax, []byte(pc.abstractSyntax))
		for _, ts := range pc.transferSyntaxes {
			body = appendItem(body, itemTransferSyntax, []byte(ts))
		}
		buf = appendItem(buf, itemPresentationContext, body)
	}

	var userInfo []byte
	var maxPDUValue [4]byte
	binary.BigEndian.PutUint32(maxPDUValue[:], maxPDU)
	userInfo = appendItem(userInfo, itemMaxPDULength, maxPDUValue[:])
	userInfo = appendItem(userInfo, itemImplementationUID, []byte(dicom.ImplementationClassUID))
	userInfo = appendItem(userInfo, itemImplementationName, []byte(dicom.ImplementationVersionName))
	return appendItem(buf, itemUserInformation, userInfo)
}

func trimUID(raw []byte) string {
	return strings.TrimRight(string(raw), "\x00 ")
}

// parseAssociateAC extracts the per-context results and the peer's max PDU
// length from an A-ASSOCIATE-AC payload.
func parseAssociateAC(data []byte) (map[byte]*acceptedContext, uint32, error) {
	if len(data) < 68 {
		return nil, 0, protocolErr("associate-AC payload too short: %d bytes", len(data))
	}
	contexts := make(map[byte]*acceptedContext)
	var peerMaxPDU uint32

	offset := 68
	for offset+4 <= len(data) {
		itemType := data[offset]
		itemLength := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		valueStart := offset + 4
		valueEnd := valueStart + itemLength
		if valueEnd > len(data) {
			return nil, 0, protocolErr("associate-AC item 0x%02X exceeds payload", itemType)
		}
		value := data[valueStart:valueEnd]

		switch itemType {
		case itemPresentationResult:
			if len(value) < 4 {
				return nil, 0, protocolErr("presentation context result too short")
			}
			ctx := &acceptedContext{id: value[0], result: value[2]}
			sub := 4
			for sub+4 <= len(value) {
				subType := value[sub]
				subLength := int(binary.BigEndian.Uint16(value[sub+2 : sub+4]))
				subEnd := sub + 4 + subLength
				if subEnd > len(value) {
					return nil, 0, protocolErr("presentation context sub-item exceeds item")
				}
				if subType == itemTransferSyntax {
					ctx.transferSyntax = trimUID(value[sub+4 : subEnd])
				}
				sub = subEnd
			}
			contexts[ctx.id] = ctx
		case itemUserInformation:
			sub := 0
			for sub+4 <= len(value) {
				subType := value[sub]
				subLength := int(binary.BigEndian.Uint16(value[sub+2 : sub+4]))
				subEnd := sub + 4 + subLength
				if subEnd > len(value) {
					return nil, 0, protocolErr("user information sub-item exceeds item")
				}
				if subType == itemMaxPDULength && subLength == 4 {
					peerMaxPDU = binary.BigEndian.Uint32(value[sub+4 : subEnd])
				}
				sub = subEnd
			}
		}
		offset = valueEnd
	}
	return contexts, peerMaxPDU, nil
}

// parseAssociateRJ decodes an A-ASSOCIATE-RJ payload into a RejectError.
func parseAssociateRJ(data []byte) *RejectError {
	rej := &RejectError{}
	if len(data) >= 4 {
		rej.Result = data[1]
		rej.Source = data[2]
		rej.Reason = data[3]
	}
	return rej
}

// releasePayload is the fixed 4-reserved-byte payload of A-RELEASE-RQ/RP.
var releasePayload = make([]byte, 4)

// abortPayload builds an A-ABORT payload with the given source and reason.
func abortPayload(source, reason byte) []byte {
	return []byte{0x00, 0x00, source, reason}
}
