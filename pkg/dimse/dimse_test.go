package dimse

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/flatmapit/dicom-maker/internal/dicom"
)

// scpOptions shapes the mock peer's behavior for one test.
type scpOptions struct {
	reject           *RejectError
	silent           bool // accept TCP, never answer the association request
	stallAfterAccept bool // accept the association, then never respond
	maxPDU           uint32
	echoStatus       uint16
	wrongMsgID       bool // respond to a message ID the client never sent
	storeStatus      func(sopInstanceUID string, n int) uint16
}

// mockSCP is a minimal acceptor: it accepts every proposed presentation
// context with implicit VR little endian and answers echo and store
// requests per its options, recording what it saw.
type mockSCP struct {
	t  *testing.T
	ln net.Listener

	opts scpOptions

	mu            sync.Mutex
	connections   int
	storeCount    int
	released      bool
	dataFragments int
	lastFlags     int
	lastDataset   []byte
}

func startMockSCP(t *testing.T, opts scpOptions) *mockSCP {
	t.Helper()
	if opts.maxPDU == 0 {
		opts.maxPDU = 16384
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &mockSCP{t: t, ln: ln, opts: opts}
	go s.acceptLoop()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *mockSCP) addr() (string, int) {
	addr := s.ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func (s *mockSCP) config(timeout time.Duration) AssociationConfig {
	host, port := s.addr()
	return AssociationConfig{
		Host:       host,
		Port:       port,
		CallingAET: "DICOM_MAKER",
		CalledAET:  "MOCK_SCP",
		Timeout:    timeout,
		Logger:     zerolog.Nop(),
	}
}

func (s *mockSCP) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.connections++
		s.mu.Unlock()
		go s.serve(conn)
	}
}

func (s *mockSCP) serve(conn net.Conn) {
	defer conn.Close()

	rq, err := readPDU(conn)
	if err != nil || rq.Type != pduTypeAssociateRQ {
		return
	}
	if s.opts.silent {
		// hold the connection open without answering
		io.Copy(io.Discard, conn)
		return
	}
	if s.opts.reject != nil {
		rej := s.opts.reject
		writePDU(conn, pduTypeAssociateRJ, []byte{0x00, rej.Result, rej.Source, rej.Reason})
		return
	}

	contexts := parseProposedContexts(rq.Data)
	writePDU(conn, pduTypeAssociateAC, s.buildAC(contexts))

	if s.opts.stallAfterAccept {
		io.Copy(io.Discard, conn)
		return
	}

	var commandData, datasetData []byte
	commandDone, datasetDone := false, false
	var contextID byte
	var cmd *command

	for {
		pdu, err := readPDU(conn)
		if err != nil {
			return
		}
		switch pdu.Type {
		case pduTypeReleaseRQ:
			s.mu.Lock()
			s.released = true
			s.mu.Unlock()
			writePDU(conn, pduTypeReleaseRP, releasePayload)
			return
		case pduTypeAbort:
			return
		case pduTypePDataTF:
			offset := 0
			for offset < len(pdu.Data) {
				pdvLength := int(binary.BigEndian.Uint32(pdu.Data[offset : offset+4]))
				end := offset + 4 + pdvLength
				contextID = pdu.Data[offset+4]
				control := pdu.Data[offset+5]
				fragment := pdu.Data[offset+6 : end]

				if control&pdvCommand != 0 {
					commandData = append(commandData, fragment...)
					if control&pdvLastFragment != 0 {
						cmd, _ = decodeCommand(commandData)
						commandDone = true
						datasetDone = !cmd.hasDataset()
					}
				} else {
					datasetData = append(datasetData, fragment...)
					s.mu.Lock()
					s.dataFragments++
					if control&pdvLastFragment != 0 {
						s.lastFlags++
					}
					s.mu.Unlock()
					if control&pdvLastFragment != 0 {
						datasetDone = true
					}
				}
				offset = end
			}
		default:
			return
		}

		if commandDone && datasetDone {
			s.respond(conn, contextID, cmd, datasetData)
			commandData, datasetData = nil, nil
			commandDone, datasetDone = false, false
			cmd = nil
		}
	}
}

func (s *mockSCP) respond(conn net.Conn, contextID byte, cmd *command, dataset []byte) {
	respondedTo := cmd.MessageID
	if s.opts.wrongMsgID {
		respondedTo = cmd.MessageID + 41
	}
	rsp := &command{
		AffectedSOPClassUID:  cmd.AffectedSOPClassUID,
		MessageIDRespondedTo: respondedTo,
		DataSetType:          dataSetAbsent,
	}

	switch cmd.CommandField {
	case CommandCEchoRQ:
		rsp.CommandField = CommandCEchoRSP
		rsp.Status = s.opts.echoStatus
	case CommandCStoreRQ:
		s.mu.Lock()
		s.storeCount++
		n := s.storeCount
		s.lastDataset = append([]byte(nil), dataset...)
		s.mu.Unlock()
		rsp.CommandField = CommandCStoreRSP
		rsp.AffectedSOPInstanceUID = cmd.AffectedSOPInstanceUID
		if s.opts.storeStatus != nil {
			rsp.Status = s.opts.storeStatus(cmd.AffectedSOPInstanceUID, n)
		}
	default:
		return
	}

	encoded := encodeCommand(rsp)
	pdv := make([]byte, 6, 6+len(encoded))
	binary.BigEndian.PutUint32(pdv[0:4], uint32(len(encoded)+2))
	pdv[4] = contextID
	pdv[5] = pdvCommand | pdvLastFragment
	pdv = append(pdv, encoded...)
	writePDU(conn, pduTypePDataTF, pdv)
}

// buildAC accepts every proposed context with implicit VR little endian.
func (s *mockSCP) buildAC(contextIDs []byte) []byte {
	buf := make([]byte, 68)
	binary.BigEndian.PutUint16(buf[0:2], 0x0001)
	copy(buf[4:20], paddedAETitle("MOCK_SCP"))
	copy(buf[20:36], paddedAETitle("DICOM_MAKER"))

	buf = appendItem(buf, itemApplicationContext, []byte(dicom.ApplicationContextUID))
	for _, id := range contextIDs {
		var body []byte
		body = append(body, id, 0x00, 0x00, 0x00)
		body = appendItem(body, itemTransferSyntax, []byte(dicom.ImplicitVRLittleEndian))
		buf = appendItem(buf, itemPresentationResult, body)
	}

	var userInfo []byte
	var maxPDU [4]byte
	binary.BigEndian.PutUint32(maxPDU[:], s.opts.maxPDU)
	userInfo = appendItem(userInfo, itemMaxPDULength, maxPDU[:])
	return appendItem(buf, itemUserInformation, userInfo)
}

// parseProposedContexts extracts proposed presentation context IDs from an
// A-ASSOCIATE-RQ payload.
func parseProposedContexts(data []byte) []byte {
	var ids []byte
	offset := 68
	for offset+4 <= len(data) {
		itemType := data[offset]
		itemLength := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		valueEnd := offset + 4 + itemLength
		if valueEnd > len(data) {
			break
		}
		if itemType == itemPresentationContext && itemLength >= 1 {
			ids = append(ids, data[offset+4])
		}
		offset = valueEnd
	}
	return ids
}

func testInstances(t *testing.T, count, pixelBytes int) []Instance {
	t.Helper()
	instances := make([]Instance, count)
	for i := range instances {
		ds := dicom.NewDataset()
		sopUID := "1.2.826.0.1.3680043.8.498.3.100" + strconv.Itoa(i)
		ds.SetString(dicom.TagSOPClassUID, dicom.VRUniqueIdentifier, "1.2.840.10008.5.1.4.1.1.2")
		ds.SetString(dicom.TagSOPInstanceUID, dicom.VRUniqueIdentifier, sopUID)
		ds.SetString(dicom.TagModality, dicom.VRCodeString, "CT")
		ds.SetString(dicom.TagPatientName, dicom.VRPersonName, "DOE^JANE")
		ds.SetString(dicom.TagPatientID, dicom.VRLongString, "PID-1")
		ds.SetString(dicom.TagStudyInstanceUID, dicom.VRUniqueIdentifier, "1.2.826.0.1.3680043.8.498.1.100")
		ds.SetString(dicom.TagSeriesInstanceUID, dicom.VRUniqueIdentifier, "1.2.826.0.1.3680043.8.498.2.100")
		ds.SetInt(dicom.TagInstanceNumber, i+1)
		if pixelBytes > 0 {
			ds.SetBytes(dicom.TagPixelData, dicom.VROtherWord, make([]byte, pixelBytes))
		}
		instances[i] = Instance{
			SOPClassUID:    "1.2.840.10008.5.1.4.1.1.2",
			SOPInstanceUID: sopUID,
			Dataset:        ds,
		}
	}
	return instances
}

func TestVerifySuccess(t *testing.T) {
	scp := startMockSCP(t, scpOptions{})
	client := NewClient(scp.config(5*time.Second), 0, zerolog.Nop())

	res := client.Verify(t.Context())
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, err = %v", res.Outcome, res.Err)
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
	scp.mu.Lock()
	defer scp.mu.Unlock()
	if !scp.released {
		t.Error("association was not released gracefully")
	}
}

func TestVerifyRejectedNotRetried(t *testing.T) {
	scp := startMockSCP(t, scpOptions{
		reject: &RejectError{Result: 1, Source: 1, Reason: RejectReasonCallingAETitleNotRecognized},
	})
	client := NewClient(scp.config(5*time.Second), 3, zerolog.Nop())

	res := client.Verify(t.Context())
	if res.Outcome != OutcomeRejected {
		t.Fatalf("outcome = %s, want rejected", res.Outcome)
	}
	var rej *RejectError
	if !errors.As(res.Err, &rej) {
		t.Fatalf("err = %T, want *RejectError", res.Err)
	}
	if rej.Reason != RejectReasonCallingAETitleNotRecognized {
		t.Errorf("reason = 0x%02X", rej.Reason)
	}
	if rej.ReasonString() != "calling AE title not recognized" {
		t.Errorf("reason string = %q", rej.ReasonString())
	}
	if res.Attempts != 1 {
		t.Errorf("rejection must not be retried, attempts = %d", res.Attempts)
	}
}

func TestTransmitRejectedNoStoreAttempted(t *testing.T) {
	scp := startMockSCP(t, scpOptions{
		reject: &RejectError{Result: 1, Source: 1, Reason: RejectReasonCallingAETitleNotRecognized},
	})
	client := NewClient(scp.config(5*time.Second), 2, zerolog.Nop())

	res := client.Transmit(t.Context(), testInstances(t, 2, 64))
	if res.Outcome != OutcomeRejected {
		t.Fatalf("outcome = %s, want rejected", res.Outcome)
	}
	scp.mu.Lock()
	defer scp.mu.Unlock()
	if scp.storeCount != 0 {
		t.Errorf("store exchanges attempted after reject: %d", scp.storeCount)
	}
}

func TestTransmitAllSuccess(t *testing.T) {
	scp := startMockSCP(t, scpOptions{})
	client := NewClient(scp.config(5*time.Second), 0, zerolog.Nop())

	instances := testInstances(t, 3, 128)
	res := client.Transmit(t.Context(), instances)
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, err = %v", res.Outcome, res.Err)
	}
	if len(res.Instances) != 3 {
		t.Fatalf("instance results = %d, want 3", len(res.Instances))
	}
	for i, ir := range res.Instances {
		if ir.SOPInstanceUID != instances[i].SOPInstanceUID {
			t.Errorf("result %d attributed to %q, want %q", i, ir.SOPInstanceUID, instances[i].SOPInstanceUID)
		}
		if ir.Status != StatusSuccess {
			t.Errorf("result %d status = 0x%04X", i, ir.Status)
		}
	}
}

func TestTransmitPartialFailureContinues(t *testing.T) {
	scp := startMockSCP(t, scpOptions{
		storeStatus: func(_ string, n int) uint16 {
			if n == 2 {
				return 0xC001
			}
			return StatusSuccess
		},
	})
	client := NewClient(scp.config(5*time.Second), 0, zerolog.Nop())

	res := client.Transmit(t.Context(), testInstances(t, 3, 64))
	if res.Outcome != OutcomePartial {
		t.Fatalf("outcome = %s, want partial", res.Outcome)
	}
	want := []uint16{StatusSuccess, 0xC001, StatusSuccess}
	for i, ir := range res.Instances {
		if ir.Status != want[i] {
			t.Errorf("instance %d status = 0x%04X, want 0x%04X", i, ir.Status, want[i])
		}
	}
	scp.mu.Lock()
	defer scp.mu.Unlock()
	if scp.storeCount != 3 {
		t.Errorf("store exchanges = %d, want 3 (failure must not stop remaining instances)", scp.storeCount)
	}
	if !scp.released {
		t.Error("association was not released after partial failure")
	}
}

func TestVerifyTimeoutExhaustsRetries(t *testing.T) {
	scp := startMockSCP(t, scpOptions{silent: true})
	client := NewClient(scp.config(150*time.Millisecond), 2, zerolog.Nop())
	client.retryDelay = 10 * time.Millisecond

	res := client.Verify(t.Context())
	if res.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", res.Outcome)
	}
	var netErr *NetworkError
	if !errors.As(res.Err, &netErr) {
		t.Fatalf("err = %T (%v), want *NetworkError", res.Err, res.Err)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3 (1 + 2 retries)", res.Attempts)
	}
	scp.mu.Lock()
	defer scp.mu.Unlock()
	if scp.connections != 3 {
		t.Errorf("connections = %d, want 3 (fresh association per retry)", scp.connections)
	}
}

func TestMessageIDMismatchIsProtocolError(t *testing.T) {
	scp := startMockSCP(t, scpOptions{wrongMsgID: true})
	client := NewClient(scp.config(2*time.Second), 0, zerolog.Nop())

	res := client.Verify(t.Context())
	if res.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", res.Outcome)
	}
	var protoErr *ProtocolError
	if !errors.As(res.Err, &protoErr) {
		t.Fatalf("err = %T (%v), want *ProtocolError", res.Err, res.Err)
	}
}

func TestTransmitFragmentation(t *testing.T) {
	scp := startMockSCP(t, scpOptions{maxPDU: 16384})
	client := NewClient(scp.config(5*time.Second), 0, zerolog.Nop())

	instances := testInstances(t, 1, 32768)
	encoded, err := dicom.EncodeDataset(instances[0].Dataset, dicom.ImplicitVRLittleEndian)
	if err != nil {
		t.Fatal(err)
	}

	res := client.Transmit(t.Context(), instances)
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, err = %v", res.Outcome, res.Err)
	}

	scp.mu.Lock()
	defer scp.mu.Unlock()
	if scp.dataFragments < 2 {
		t.Errorf("data fragments = %d, want >= 2 for a dataset larger than max PDU", scp.dataFragments)
	}
	if scp.lastFlags != 1 {
		t.Errorf("last-fragment flags = %d, want exactly 1", scp.lastFlags)
	}
	if !bytes.Equal(scp.lastDataset, encoded) {
		t.Errorf("reassembled dataset differs from encoded stream (%d vs %d bytes)",
			len(scp.lastDataset), len(encoded))
	}
}

func TestNegotiatedMaxPDUIsMinimum(t *testing.T) {
	scp := startMockSCP(t, scpOptions{maxPDU: 8192})
	cfg := scp.config(5 * time.Second)
	cfg.MaxPDU = 32768

	assoc, err := Connect(t.Context(), cfg, []string{dicom.VerificationSOPClassUID})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer assoc.Close()
	if assoc.MaxPDU() != 8192 {
		t.Errorf("negotiated max PDU = %d, want 8192", assoc.MaxPDU())
	}
	if assoc.State() != StateEstablished {
		t.Errorf("state = %s, want established", assoc.State())
	}
	if err := assoc.Release(t.Context()); err != nil {
		t.Errorf("release failed: %v", err)
	}
	if assoc.State() != StateClosed {
		t.Errorf("state after release = %s, want closed", assoc.State())
	}
}

func TestCommandRoundTrip(t *testing.T) {
	req := &command{
		AffectedSOPClassUID:    "1.2.840.10008.5.1.4.1.1.2",
		CommandField:           CommandCStoreRQ,
		MessageID:              7,
		DataSetType:            dataSetPresent,
		AffectedSOPInstanceUID: "1.2.826.0.1.3680043.8.498.3.1",
	}
	decoded, err := decodeCommand(encodeCommand(req))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.AffectedSOPClassUID != req.AffectedSOPClassUID ||
		decoded.CommandField != req.CommandField ||
		decoded.MessageID != req.MessageID ||
		decoded.DataSetType != req.DataSetType ||
		decoded.AffectedSOPInstanceUID != req.AffectedSOPInstanceUID {
		t.Errorf("round trip changed command: %+v vs %+v", decoded, req)
	}
	if !decoded.hasDataset() {
		t.Error("store request should announce a dataset")
	}

	rsp := &command{
		CommandField:         CommandCEchoRSP,
		MessageIDRespondedTo: 7,
		Status:               StatusSuccess,
		DataSetType:          dataSetAbsent,
	}
	decoded, err = decodeCommand(encodeCommand(rsp))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.MessageIDRespondedTo != 7 || decoded.hasDataset() {
		t.Errorf("response round trip: %+v", decoded)
	}
}

func TestCommandDecodeTruncated(t *testing.T) {
	encoded := encodeCommand(&command{CommandField: CommandCEchoRQ, MessageID: 1, DataSetType: dataSetAbsent})
	if _, err := decodeCommand(encoded[:len(encoded)-3]); err == nil {
		t.Fatal("truncated command should not decode")
	}
}

func TestAssociationConfigValidation(t *testing.T) {
	cases := []AssociationConfig{
		{Port: 104, CallingAET: "A", CalledAET: "B"},
		{Host: "localhost", CallingAET: "A", CalledAET: "B"},
		{Host: "localhost", Port: 104, CalledAET: "B"},
		{Host: "localhost", Port: 104, CallingAET: "THIS_TITLE_IS_TOO_LONG", CalledAET: "B"},
	}
	for i, cfg := range cases {
		if _, err := Connect(t.Context(), cfg, []string{dicom.VerificationSOPClassUID}); err == nil {
			t.Errorf("case %d: invalid config accepted", i)
		}
	}
}

func TestConnectCancellationAbortsPromptly(t *testing.T) {
	scp := startMockSCP(t, scpOptions{silent: true})

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Connect(ctx, scp.config(5*time.Second), []string{dicom.VerificationSOPClassUID})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Connect succeeded against a silent peer")
	}
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %T (%v), want *NetworkError", err, err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled in the chain", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Connect blocked %v after cancel, want prompt return", elapsed)
	}
}

func TestReceiveCancellationAbortsPromptly(t *testing.T) {
	scp := startMockSCP(t, scpOptions{echoStatus: StatusSuccess, stallAfterAccept: true})

	assoc, err := Connect(t.Context(), scp.config(5*time.Second), []string{dicom.VerificationSOPClassUID})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer assoc.Close()

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err = assoc.CEcho(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("CEcho err = %v, want context.Canceled in the chain", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("CEcho blocked %v after cancel, want prompt return", elapsed)
	}
	if got := assoc.State(); got != StateClosed {
		t.Errorf("state after cancel = %s, want closed", got)
	}
}
