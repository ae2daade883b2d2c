package dimse

import (
	"context"
	"encoding/binary"
	"strings"
)

// DIMSE command field codes.
const (
	CommandCStoreRQ  uint16 = 0x0001
	CommandCStoreRSP uint16 = 0x8001
	CommandCEchoRQ   uint16 = 0x0030
	CommandCEchoRSP  uint16 = 0x8030
)

// Command data set type values.
const (
	dataSetPresent uint16 = 0x0000
	dataSetAbsent  uint16 = 0x0101
)

// command is a DIMSE command set: group 0000 elements, always encoded in
// implicit VR little endian regardless of the negotiated transfer syntax.
type command struct {
	AffectedSOPClassUID    string
	CommandField           uint16
	MessageID              uint16
	MessageIDRespondedTo   uint16
	Priority               uint16
	DataSetType            uint16
	Status                 uint16
	AffectedSOPInstanceUID string
}

func (c *command) hasDataset() bool { return c.DataSetType != dataSetAbsent }

func appendCommandElement(buf []byte, element uint16, value []byte) []byte {
	var hdr [8]byte
	binary.LittleEndian.PutUint16(hdr[0:2], 0x0000)
	binary.LittleEndian.PutUint16(hdr[2:4], element)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(value)))
	return append(append(buf, hdr[:]...), value...)
}

func appendCommandUID(buf []byte, element uint16, uid string) []byte {
	value := []byte(uid)
	if len(value)%2 == 1 {
		value = append(value, 0x00)
	}
	return appendCommandElement(buf, element, value)
}

func appendCommandUint16(buf []byte, element uint16, v uint16) []byte {
	var value [2]byte
	binary.LittleEndian.PutUint16(value[:], v)
	return appendCommandElement(buf, element, value[:])
}

// encodeCommand serializes c with a leading command group length element.
func encodeCommand(c *command) []byte {
	var body []byte
	if c.AffectedSOPClassUID != "" {
		body = appendCommandUID(body, 0x0002, c.AffectedSOPClassUID)
	}
	body = appendCommandUint16(body, 0x0100, c.CommandField)
	if c.CommandField&0x8000 == 0 {
		body = appendCommandUint16(body, 0x0110, c.MessageID)
		body = appendCommandUint16(body, 0x0700, c.Priority)
	} else {
		body = appendCommandUint16(body, 0x0120, c.MessageIDRespondedTo)
		body = appendCommandUint16(body, 0x0900, c.Status)
	}
	body = appendCommandUint16(body, 0x0800, c.DataSetType)
	if c.AffectedSOPInstanceUID != "" {
		body = appendCommandUID(body, 0x1000, c.AffectedSOPInstanceUID)
	}

	var groupLength [4]byte
	binary.LittleEndian.PutUint32(groupLength[:], uint32(len(body)))
	return append(appendCommandElement(nil, 0x0000, groupLength[:]), body...)
}

// decodeCommand parses a command set. Unknown elements are skipped; a
// malformed stream is a ProtocolError.
func decodeCommand(data []byte) (*command, error) {
	c := &command{DataSetType: dataSetAbsent}
	offset := 0
	for offset < len(data) {
		if offset+8 > len(data) {
			return nil, protocolErr("truncated command element header")
		}
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		length := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		valueStart := offset + 8
		valueEnd := valueStart + length
		if valueEnd > len(data) {
			return nil, protocolErr("command element (%04X,%04X) exceeds payload", group, element)
		}
		value := data[valueStart:valueEnd]

		if group == 0x0000 {
			switch element {
			case 0x0002:
				c.AffectedSOPClassUID = strings.TrimRight(string(value), "\x00 ")
			case 0x0100:
				c.CommandField = commandUint16(value)
			case 0x0110:
				c.MessageID = commandUint16(value)
			case 0x0120:
				c.MessageIDRespondedTo = commandUint16(value)
			case 0x0700:
				c.Priority = commandUint16(value)
			case 0x0800:
				c.DataSetType = commandUint16(value)
			case 0x0900:
				c.Status = commandUint16(value)
			case 0x1000:
				c.AffectedSOPInstanceUID = strings.TrimRight(string(value), "\x00 ")
			}
		}
		offset = valueEnd
	}
	return c, nil
}

func commandUint16(value []byte) uint16 {
	if len(value) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(value[:2])
}

// PDV message control header bits.
const (
	pdvCommand      byte = 0x01
	pdvLastFragment byte = 0x02
)

// sendMessage transmits one DIMSE message: the command set, then the
// optional data set, each fragmented into PDVs no larger than the
// negotiated max PDU allows. Exactly one fragment per stream carries the
// last-fragment flag.
func (a *Association) sendMessage(ctx context.Context, contextID byte, cmd *command, dataset []byte) error {
	if a.state != StateEstablished {
		return protocolErr("send in state %s", a.state)
	}
	stop := a.applyDeadline(ctx)
	defer stop()
	if err := a.sendStream(ctx, contextID, encodeCommand(cmd), true); err != nil {
		return err
	}
	if len(dataset) > 0 {
		return a.sendStream(ctx, contextID, dataset, false)
	}
	return nil
}

func (a *Association) sendStream(ctx context.Context, contextID byte, data []byte, isCommand bool) error {
	// usable capacity: PDU payload minus the 6-byte PDV header
	maxFragment := int(a.maxPDU) - 6
	if maxFragment <= 0 {
		return protocolErr("negotiated max PDU %d leaves no room for data", a.maxPDU)
	}

	for offset := 0; offset < len(data); {
		chunk := len(data) - offset
		last := true
		if chunk > maxFragment {
			chunk = maxFragment
			last = false
		}

		control := byte(0)
		if isCommand {
			control |= pdvCommand
		}
		if last {
			control |= pdvLastFragment
		}

		pdv := make([]byte, 6, 6+chunk)
		binary.BigEndian.PutUint32(pdv[0:4], uint32(chunk+2))
		pdv[4] = contextID
		pdv[5] = control
		pdv = append(pdv, data[offset:offset+chunk]...)

		if err := writePDU(a.conn, pduTypePDataTF, pdv); err != nil {
			return a.failTransport(ctx, "send message", err)
		}
		offset += chunk
	}
	return nil
}

// receiveMessage reassembles one DIMSE message from P-DATA-TF PDUs,
// returning the decoded command set and the data set bytes (nil when the
// command announces no data set). A peer abort or protocol violation
// closes the association.
func (a *Association) receiveMessage(ctx context.Context, contextID byte) (*command, []byte, error) {
	stop := a.applyDeadline(ctx)
	defer stop()

	var commandData, datasetData []byte
	var cmd *command
	commandDone, datasetDone := false, false

	for {
		pdu, err := readPDU(a.conn)
		if err != nil {
			return nil, nil, a.failTransport(ctx, "receive message", err)
		}

		switch pdu.Type {
		case pduTypePDataTF:
			offset := 0
			for offset < len(pdu.Data) {
				if offset+6 > len(pdu.Data) {
					a.abortOnError()
					return nil, nil, protocolErr("malformed PDV header")
				}
				pdvLength := int(binary.BigEndian.Uint32(pdu.Data[offset : offset+4]))
				end := offset + 4 + pdvLength
				if pdvLength < 2 || end > len(pdu.Data) {
					a.abortOnError()
					return nil, nil, protocolErr("PDV length %d exceeds PDU payload", pdvLength)
				}
				if id := pdu.Data[offset+4]; id != contextID {
					a.abortOnError()
					return nil, nil, protocolErr("PDV for unexpected presentation context %d", id)
				}
				control := pdu.Data[offset+5]
				fragment := pdu.Data[offset+6 : end]

				if control&pdvCommand != 0 {
					commandData = append(commandData, fragment...)
					if control&pdvLastFragment != 0 {
						cmd, err = decodeCommand(commandData)
						if err != nil {
							a.abortOnError()
							return nil, nil, err
						}
						commandDone = true
						datasetDone = !cmd.hasDataset()
					}
				} else {
					datasetData = append(datasetData, fragment...)
					if control&pdvLastFragment != 0 {
						datasetDone = true
					}
				}
				offset = end
			}
		case pduTypeAbort:
			abort := &AbortError{}
			if len(pdu.Data) >= 4 {
				abort.Source = pdu.Data[2]
				abort.Reason = pdu.Data[3]
			}
			a.conn.Close()
			a.state = StateClosed
			return nil, nil, abort
		default:
			a.abortOnError()
			return nil, nil, protocolErr("unexpected PDU type 0x%02X during data transfer", pdu.Type)
		}

		if commandDone && datasetDone {
			return cmd, datasetData, nil
		}
	}
}

// exchange sends a request and blocks for its response, enforcing
// message-ID correlation. A response for a different message forces an
// abort.
func (a *Association) exchange(ctx context.Context, contextID byte, req *command, dataset []byte) (*command, error) {
	if err := a.sendMessage(ctx, contextID, req, dataset); err != nil {
		return nil, err
	}
	rsp, _, err := a.receiveMessage(ctx, contextID)
	if err != nil {
		return nil, err
	}
	if rsp.MessageIDRespondedTo != req.MessageID {
		a.Abort()
		return nil, protocolErr("response for message %d, expected %d",
			rsp.MessageIDRespondedTo, req.MessageID)
	}
	return rsp, nil
}

func (a *Association) newMessageID() uint16 {
	id := a.nextID
	a.nextID++
	return id
}
