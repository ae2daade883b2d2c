package dimse

import "fmt"

// Error kind tags carried by every failure value produced in this package,
// stable for programmatic handling and log fields.
const (
	KindNetwork  = "network"
	KindProtocol = "protocol"
	KindRejected = "association-rejected"
	KindAborted  = "aborted"
	KindDIMSE    = "dimse-failure"
)

// NetworkError wraps transport-level failures: connect refused or reset,
// read/write timeouts, unexpected EOF.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("dimse: network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Kind() string { return KindNetwork }

// ProtocolError reports a peer that violated the upper layer protocol:
// unexpected PDU type, malformed command set, mismatched message ID. The
// association is always aborted when one is raised.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "dimse: protocol error: " + e.Msg }

func (e *ProtocolError) Kind() string { return KindProtocol }

func protocolErr(format string, args ...any) *ProtocolError {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// Association reject reason codes for the service-user source.
const (
	RejectReasonNoReasonGiven               byte = 0x01
	RejectReasonAppContextNotSupported      byte = 0x02
	RejectReasonCallingAETitleNotRecognized byte = 0x03
	RejectReasonCalledAETitleNotRecognized  byte = 0x07
)

// RejectError carries a peer's A-ASSOCIATE-RJ verbatim. A rejection is
// configuration feedback, never retried by this package.
type RejectError struct {
	Result byte // 1 permanent, 2 transient
	Source byte
	Reason byte
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("dimse: association rejected (%s): %s",
		e.resultString(), e.ReasonString())
}

func (e *RejectError) Kind() string { return KindRejected }

func (e *RejectError) resultString() string {
	switch e.Result {
	case 1:
		return "permanent"
	case 2:
		return "transient"
	default:
		return fmt.Sprintf("result 0x%02X", e.Result)
	}
}

// ReasonString renders the reject reason for the service-user source; other
// sources fall back to the raw code.
func (e *RejectError) ReasonString() string {
	if e.Source != 1 {
		return fmt.Sprintf("source 0x%02X reason 0x%02X", e.Source, e.Reason)
	}
	switch e.Reason {
	case RejectReasonNoReasonGiven:
		return "no reason given"
	case RejectReasonAppContextNotSupported:
		return "application context not supported"
	case RejectReasonCallingAETitleNotRecognized:
		return "calling AE title not recognized"
	case RejectReasonCalledAETitleNotRecognized:
		return "called AE title not recognized"
	default:
		return fmt.Sprintf("reason 0x%02X", e.Reason)
	}
}

// AbortError reports an A-ABORT received from the peer.
type AbortError struct {
	Source byte
	Reason byte
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("dimse: association aborted by peer (source 0x%02X, reason 0x%02X)",
		e.Source, e.Reason)
}

func (e *AbortError) Kind() string { return KindAborted }

// DIMSEError reports a non-success response status for one operation.
type DIMSEError struct {
	Operation string
	Status    uint16
}

func (e *DIMSEError) Error() string {
	return fmt.Sprintf("dimse: %s failed with status 0x%04X", e.Operation, e.Status)
}

func (e *DIMSEError) Kind() string { return KindDIMSE }

// StatusSuccess is the only fully successful DIMSE status.
const StatusSuccess uint16 = 0x0000

// IsWarningStatus reports whether a status is in the warning class
// (operation completed with coercions or elements discarded).
func IsWarningStatus(status uint16) bool {
	return status == 0x0001 || status&0xF000 == 0xB000
}

// IsFailureStatus reports whether a status is in a failure class.
func IsFailureStatus(status uint16) bool {
	return status != StatusSuccess && !IsWarningStatus(status)
}
