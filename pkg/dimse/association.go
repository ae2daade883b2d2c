// Package dimse implements the client side of the DICOM upper layer
// protocol: association negotiation over TCP, P-DATA-TF message exchange
// with PDV fragmentation, and the C-ECHO and C-STORE services on top.
package dimse

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/flatmapit/dicom-maker/internal/dicom"
)

// State is the association lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateEstablished
	StateReleasing
	StateRejected
	StateAborting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateEstablished:
		return "established"
	case StateReleasing:
		return "releasing"
	case StateRejected:
		return "rejected"
	case StateAborting:
		return "aborting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	defaultMaxPDU  = 16384
	defaultTimeout = 30 * time.Second
	maxAETitleLen  = 16
)

// AssociationConfig identifies the peer and tunes the association.
type AssociationConfig struct {
	Host       string
	Port       int
	CallingAET string
	CalledAET  string
	MaxPDU     uint32        // proposed max PDU length, default 16384
	Timeout    time.Duration // per blocking point, default 30s
	Logger     zerolog.Logger
}

func (c *AssociationConfig) validate() error {
	if c.Host == "" || c.Port <= 0 {
		return fmt.Errorf("dimse: host and port are required")
	}
	if c.CallingAET == "" || len(c.CallingAET) > maxAETitleLen {
		return fmt.Errorf("dimse: calling AE title must be 1-16 characters, got %q", c.CallingAET)
	}
	if c.CalledAET == "" || len(c.CalledAET) > maxAETitleLen {
		return fmt.Errorf("dimse: called AE title must be 1-16 characters, got %q", c.CalledAET)
	}
	return nil
}

// Association is one negotiated session with a peer. It is a strictly
// sequential state machine: one outstanding exchange at a time, no reuse
// after Close.
type Association struct {
	cfg      AssociationConfig
	conn     net.Conn
	state    State
	maxPDU   uint32 // negotiated: min of both proposals
	contexts map[byte]*acceptedContext
	nextID   uint16
	log      zerolog.Logger
}

// Connect dials the peer and negotiates an association proposing one
// presentation context per abstract syntax, implicit VR little endian
// only. A peer reject is returned as *RejectError without retry; a timeout
// waiting for the response is a deemed rejection reported as *NetworkError.
func Connect(ctx context.Context, cfg AssociationConfig, abstractSyntaxes []string) (*Association, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPDU == 0 {
		cfg.MaxPDU = defaultMaxPDU
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if len(abstractSyntaxes) == 0 {
		return nil, fmt.Errorf("dimse: at least one abstract syntax is required")
	}

	a := &Association{
		cfg:    cfg,
		state:  StateIdle,
		maxPDU: cfg.MaxPDU,
		nextID: 1,
		log: cfg.Logger.With().
			Str("called_aet", cfg.CalledAET).
			Str("peer", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)).
			Logger(),
	}

	dialer := &net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	if err != nil {
		a.state = StateClosed
		return nil, &NetworkError{Op: "connect", Err: err}
	}
	a.conn = conn
	a.state = StateRequesting

	var contexts []proposedContext
	id := byte(1)
	for _, as := range abstractSyntaxes {
		contexts = append(contexts, proposedContext{
			id:               id,
			abstractSyntax:   as,
			transferSyntaxes: []string{dicom.ImplicitVRLittleEndian},
		})
		id += 2 // odd context IDs, per the upper layer protocol
	}

	if err := a.negotiate(ctx, contexts); err != nil {
		return nil, err
	}

	a.log.Debug().
		Uint32("max_pdu", a.maxPDU).
		Int("contexts", len(a.contexts)).
		Msg("association established")
	return a, nil
}

func (a *Association) negotiate(ctx context.Context, contexts []proposedContext) error {
	stop := a.applyDeadline(ctx)
	defer stop()
	rq := buildAssociateRQ(a.cfg.CallingAET, a.cfg.CalledAET, a.cfg.MaxPDU, contexts)
	if err := writePDU(a.conn, pduTypeAssociateRQ, rq); err != nil {
		return a.failTransport(ctx, "associate request", err)
	}

	pdu, err := readPDU(a.conn)
	if err != nil {
		return a.failTransport(ctx, "associate response", err)
	}

	switch pdu.Type {
	case pduTypeAssociateAC:
		accepted, peerMaxPDU, err := parseAssociateAC(pdu.Data)
		if err != nil {
			a.abortOnError()
			return err
		}
		a.contexts = make(map[byte]*acceptedContext)
		anyAccepted := false
		for _, pc := range contexts {
			ac, ok := accepted[pc.id]
			if !ok {
				continue
			}
			ac.abstractSyntax = pc.abstractSyntax
			a.contexts[pc.id] = ac
			if ac.accepted() {
				anyAccepted = true
			}
		}
		if !anyAccepted {
			a.abortOnError()
			return protocolErr("peer accepted the association but rejected every presentation context")
		}
		if peerMaxPDU > 0 && peerMaxPDU < a.maxPDU {
			a.maxPDU = peerMaxPDU
		}
		a.state = StateEstablished
		return nil
	case pduTypeAssociateRJ:
		rej := parseAssociateRJ(pdu.Data)
		a.state = StateRejected
		a.conn.Close()
		a.state = StateClosed
		return rej
	default:
		a.abortOnError()
		return protocolErr("expected associate-AC or -RJ, got PDU type 0x%02X", pdu.Type)
	}
}

// contextFor returns the accepted presentation context for an abstract
// syntax.
func (a *Association) contextFor(abstractSyntax string) (*acceptedContext, error) {
	for _, ctx := range a.contexts {
		if ctx.abstractSyntax == abstractSyntax && ctx.accepted() {
			return ctx, nil
		}
	}
	return nil, protocolErr("no accepted presentation context for %s", abstractSyntax)
}

// MaxPDU returns the negotiated maximum PDU length.
func (a *Association) MaxPDU() uint32 { return a.maxPDU }

// State returns the current lifecycle state.
func (a *Association) State() State { return a.state }

// applyDeadline arms the transport deadline for one blocking point: the
// sooner of the context deadline and the configured per-step timeout.
// Cancellation forces the deadline into the past so an in-flight read or
// write fails immediately; the returned stop releases the watcher.
func (a *Association) applyDeadline(ctx context.Context) (stop func() bool) {
	deadline := time.Now().Add(a.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	a.conn.SetDeadline(deadline)
	return context.AfterFunc(ctx, func() {
		a.conn.SetDeadline(time.Unix(1, 0))
	})
}

// failTransport maps a transport failure back to its cause. Cancellation
// sends A-ABORT and reports the context error; anything else closes the
// transport without the courtesy write to a possibly dead peer.
func (a *Association) failTransport(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		a.Abort()
		return &NetworkError{Op: op, Err: ctxErr}
	}
	a.abortOnError()
	return &NetworkError{Op: op, Err: err}
}

// Release performs the graceful close handshake. Any unexpected PDU while
// waiting for the release response aborts instead.
func (a *Association) Release(ctx context.Context) error {
	if a.state != StateEstablished {
		return fmt.Errorf("dimse: release in state %s", a.state)
	}
	a.state = StateReleasing
	stop := a.applyDeadline(ctx)
	defer stop()

	if err := writePDU(a.conn, pduTypeReleaseRQ, releasePayload); err != nil {
		return a.failTransport(ctx, "release request", err)
	}
	pdu, err := readPDU(a.conn)
	if err != nil {
		return a.failTransport(ctx, "release response", err)
	}
	if pdu.Type != pduTypeReleaseRP {
		a.abortOnError()
		return protocolErr("expected release-RP, got PDU type 0x%02X", pdu.Type)
	}
	err = a.conn.Close()
	a.state = StateClosed
	a.log.Debug().Msg("association released")
	return err
}

// Abort sends A-ABORT and closes the transport immediately. Safe to call
// in any state.
func (a *Association) Abort() error {
	if a.state == StateClosed {
		return nil
	}
	a.state = StateAborting
	a.conn.SetDeadline(time.Now().Add(time.Second))
	writePDU(a.conn, pduTypeAbort, abortPayload(0x00, 0x00))
	err := a.conn.Close()
	a.state = StateClosed
	return err
}

// Close aborts unless the association already closed gracefully.
func (a *Association) Close() error {
	if a.state == StateClosed {
		return nil
	}
	return a.Abort()
}

// abortOnError closes the transport after a failure without attempting the
// abort courtesy write to a possibly dead peer.
func (a *Association) abortOnError() {
	a.state = StateAborting
	a.conn.Close()
	a.state = StateClosed
}
