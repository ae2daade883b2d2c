package dimse

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/flatmapit/dicom-maker/internal/dicom"
)

// Outcome classifies the overall result of a verify or transmit operation.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomePartial  Outcome = "partial"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// InstanceResult is the per-instance outcome of a transmit.
type InstanceResult struct {
	SOPInstanceUID string
	Status         uint16
}

// Succeeded reports whether the peer stored the instance (success or
// warning status).
func (r InstanceResult) Succeeded() bool {
	return r.Status == StatusSuccess || IsWarningStatus(r.Status)
}

// Result reports one whole operation: the outcome, how many association
// attempts were made, per-instance statuses for transmit, and the terminal
// error for rejected or failed outcomes.
type Result struct {
	Outcome   Outcome
	Attempts  int
	Instances []InstanceResult
	Err       error
}

// Client drives verify and transmit operations against one archive. It
// owns the retry policy: every retry opens a brand-new association, a peer
// reject is never retried.
type Client struct {
	cfg        AssociationConfig
	retries    int
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewClient returns a client allowing up to retries additional association
// attempts after a transport or protocol failure.
func NewClient(cfg AssociationConfig, retries int, logger zerolog.Logger) *Client {
	if retries < 0 {
		retries = 0
	}
	cfg.Logger = logger
	return &Client{
		cfg:        cfg,
		retries:    retries,
		retryDelay: time.Second,
		log: logger.With().
			Str("called_aet", cfg.CalledAET).
			Logger(),
	}
}

// retryable reports whether a failure warrants a fresh association. Peer
// rejects and DIMSE statuses are definitive answers, not transient faults.
func retryable(err error) bool {
	var netErr *NetworkError
	var protoErr *ProtocolError
	var abortErr *AbortError
	return errors.As(err, &netErr) || errors.As(err, &protoErr) || errors.As(err, &abortErr)
}

func (c *Client) wait(ctx context.Context) error {
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Verify opens an association for the verification SOP class and performs
// one C-ECHO exchange.
func (c *Client) Verify(ctx context.Context) *Result {
	res := &Result{}
	for attempt := 0; ; attempt++ {
		res.Attempts = attempt + 1
		err := c.verifyOnce(ctx)
		if err == nil {
			res.Outcome = OutcomeSuccess
			return res
		}

		var rej *RejectError
		if errors.As(err, &rej) {
			res.Outcome = OutcomeRejected
			res.Err = err
			return res
		}
		if !retryable(err) || attempt >= c.retries {
			res.Outcome = OutcomeFailed
			res.Err = err
			return res
		}
		c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("verify attempt failed, retrying")
		if werr := c.wait(ctx); werr != nil {
			res.Outcome = OutcomeFailed
			res.Err = err
			return res
		}
	}
}

func (c *Client) verifyOnce(ctx context.Context) error {
	assoc, err := Connect(ctx, c.cfg, []string{dicom.VerificationSOPClassUID})
	if err != nil {
		return err
	}
	defer assoc.Close()

	if err := assoc.CEcho(ctx); err != nil {
		return err
	}
	return assoc.Release(ctx)
}

// Transmit sends every instance in the given order over one association,
// proposing one presentation context per distinct SOP class. A failure
// status for one instance does not stop the remaining instances; the
// result enumerates every per-instance status.
func (c *Client) Transmit(ctx context.Context, instances []Instance) *Result {
	res := &Result{}
	if len(instances) == 0 {
		res.Outcome = OutcomeSuccess
		res.Attempts = 0
		return res
	}

	for attempt := 0; ; attempt++ {
		res.Attempts = attempt + 1
		results, err := c.transmitOnce(ctx, instances)
		if err == nil {
			res.Instances = results
			res.Outcome = OutcomeSuccess
			for _, ir := range results {
				if !ir.Succeeded() {
					res.Outcome = OutcomePartial
					break
				}
			}
			return res
		}

		var rej *RejectError
		if errors.As(err, &rej) {
			res.Outcome = OutcomeRejected
			res.Err = err
			return res
		}
		if !retryable(err) || attempt >= c.retries {
			res.Outcome = OutcomeFailed
			res.Err = err
			return res
		}
		c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("transmit attempt failed, retrying")
		if werr := c.wait(ctx); werr != nil {
			res.Outcome = OutcomeFailed
			res.Err = err
			return res
		}
	}
}

func (c *Client) transmitOnce(ctx context.Context, instances []Instance) ([]InstanceResult, error) {
	seen := make(map[string]bool)
	var sopClasses []string
	for _, inst := range instances {
		if !seen[inst.SOPClassUID] {
			seen[inst.SOPClassUID] = true
			sopClasses = append(sopClasses, inst.SOPClassUID)
		}
	}
	sort.Strings(sopClasses)

	assoc, err := Connect(ctx, c.cfg, sopClasses)
	if err != nil {
		return nil, err
	}
	defer assoc.Close()

	results := make([]InstanceResult, 0, len(instances))
	for _, inst := range instances {
		status, err := assoc.CStore(ctx, inst)
		if err != nil {
			return nil, err
		}
		results = append(results, InstanceResult{
			SOPInstanceUID: inst.SOPInstanceUID,
			Status:         status,
		})
	}
	if err := assoc.Release(ctx); err != nil {
		c.log.Warn().Err(err).Msg("release after transmit failed")
	}
	return results, nil
}
