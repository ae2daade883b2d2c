package dimse

import (
	"context"

	"github.com/flatmapit/dicom-maker/internal/dicom"
)

// CEcho performs one verification exchange on an established association.
// A non-success status is returned as *DIMSEError.
func (a *Association) CEcho(ctx context.Context) error {
	pc, err := a.contextFor(dicom.VerificationSOPClassUID)
	if err != nil {
		a.Abort()
		return err
	}

	req := &command{
		AffectedSOPClassUID: dicom.VerificationSOPClassUID,
		CommandField:        CommandCEchoRQ,
		MessageID:           a.newMessageID(),
		DataSetType:         dataSetAbsent,
	}
	rsp, err := a.exchange(ctx, pc.id, req, nil)
	if err != nil {
		return err
	}
	if rsp.CommandField != CommandCEchoRSP {
		a.Abort()
		return protocolErr("expected C-ECHO-RSP, got command 0x%04X", rsp.CommandField)
	}
	if rsp.Status != StatusSuccess {
		return &DIMSEError{Operation: "C-ECHO", Status: rsp.Status}
	}
	a.log.Debug().Msg("C-ECHO succeeded")
	return nil
}
