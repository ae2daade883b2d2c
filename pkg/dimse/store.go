package dimse

import (
	"context"

	"github.com/flatmapit/dicom-maker/internal/dicom"
)

// Instance is one image offered for transmission.
type Instance struct {
	SOPClassUID    string
	SOPInstanceUID string
	Dataset        *dicom.Dataset
}

// CStore transmits one instance on an established association, encoding
// its dataset in the transfer syntax negotiated for the instance's SOP
// class. The peer's status is returned; warning statuses are reported, not
// treated as failure.
func (a *Association) CStore(ctx context.Context, inst Instance) (uint16, error) {
	pc, err := a.contextFor(inst.SOPClassUID)
	if err != nil {
		a.Abort()
		return 0, err
	}

	encoded, err := dicom.EncodeDataset(inst.Dataset, pc.transferSyntax)
	if err != nil {
		return 0, err
	}

	req := &command{
		AffectedSOPClassUID:    inst.SOPClassUID,
		CommandField:           CommandCStoreRQ,
		MessageID:              a.newMessageID(),
		DataSetType:            dataSetPresent,
		AffectedSOPInstanceUID: inst.SOPInstanceUID,
	}
	rsp, err := a.exchange(ctx, pc.id, req, encoded)
	if err != nil {
		return 0, err
	}
	if rsp.CommandField != CommandCStoreRSP {
		a.Abort()
		return 0, protocolErr("expected C-STORE-RSP, got command 0x%04X", rsp.CommandField)
	}

	switch {
	case rsp.Status == StatusSuccess:
		a.log.Debug().
			Str("sop_instance_uid", inst.SOPInstanceUID).
			Msg("C-STORE succeeded")
	case IsWarningStatus(rsp.Status):
		a.log.Warn().
			Str("sop_instance_uid", inst.SOPInstanceUID).
			Uint16("status", rsp.Status).
			Msg("C-STORE completed with warning")
	default:
		a.log.Debug().
			Str("sop_instance_uid", inst.SOPInstanceUID).
			Uint16("status", rsp.Status).
			Msg("C-STORE failed")
	}
	return rsp.Status, nil
}
