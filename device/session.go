package device

import (
	"context"
	"time"

	"ledctl/protocol"
)

// RemoteState is the controller's operating mode as tracked by this
// session. It is a tagged variant, not a free integer, so illegal
// transitions are caught at the call site rather than represented.
type RemoteState int

const (
	// LocalUnknown is the state every session starts in: the front panel
	// may or may not be in local mode, and this session has not yet
	// driven a transition.
	LocalUnknown RemoteState = iota
	// RemoteOff is reached by 0x15:0 and is terminal within the session:
	// no further 0x15 transition is attempted from here.
	RemoteOff
	RemoteOutputOff
	RemoteArmed
	RemoteFiring
)

func (s RemoteState) String() string {
	switch s {
	case LocalUnknown:
		return "LocalUnknown"
	case RemoteOff:
		return "RemoteOff"
	case RemoteOutputOff:
		return "RemoteOutputOff"
	case RemoteArmed:
		return "RemoteArmed"
	case RemoteFiring:
		return "RemoteFiring"
	default:
		return "Invalid"
	}
}

// gated reports whether s is one of the three states general (non-0x15)
// operations are permitted from. RemoteOff is deliberately excluded even
// though its name starts with "Remote": the state diagram treats it as
// terminal, rejecting every subsequent command.
func (s RemoteState) gated() bool {
	return s == RemoteOutputOff || s == RemoteArmed || s == RemoteFiring
}

// Mode is the argument to EnterRemote, mirroring the four 0x15 payloads.
type Mode int

const (
	ModeOff Mode = iota
	ModeOutputOff
	ModeArmed
	ModeFiring
)

func (m Mode) code() RemoteStateCode {
	switch m {
	case ModeOff:
		return RemoteCodeOff
	case ModeOutputOff:
		return RemoteCodeOutputOff
	case ModeArmed:
		return RemoteCodeArmed
	case ModeFiring:
		return RemoteCodeFiring
	default:
		return RemoteCodeOff
	}
}

func (m Mode) resultState() RemoteState {
	switch m {
	case ModeOff:
		return RemoteOff
	case ModeOutputOff:
		return RemoteOutputOff
	case ModeArmed:
		return RemoteArmed
	case ModeFiring:
		return RemoteFiring
	default:
		return RemoteOff
	}
}

// Session owns one Transport, the current RemoteState, and the cached
// smart-card identity and per-stage parameters.
type Session struct {
	transport protocol.Transport
	engine    *protocol.Engine
	timeout   time.Duration

	state    RemoteState
	identity *DeviceIdentity
	stages   [6]*StageParameters // index 1..5; 0 unused

	closed bool
}

// DefaultOperationalTimeout is used by session operations when the
// caller doesn't need a different per-call deadline.
const DefaultOperationalTimeout = 500 * time.Millisecond

// Open constructs a Session over transport with state LocalUnknown.
// Operational calls use a single attempt (no retry); retrying is a
// detection-probe concern, not a safety-critical operational one.
func Open(transport protocol.Transport) *Session {
	return &Session{
		transport: transport,
		engine:    protocol.NewEngine(transport),
		timeout:   DefaultOperationalTimeout,
		state:     LocalUnknown,
	}
}

// OpenForDetection constructs a Session whose engine retries transient
// failures up to 2 attempts, the protocol's default for detection
// probes (as opposed to the single-attempt default Open uses for
// operational calls, where an unacknowledged safety-relevant command
// should fail fast rather than be silently retried).
func OpenForDetection(transport protocol.Transport) *Session {
	s := Open(transport)
	s.engine = s.engine.WithAttempts(2)
	return s
}

// State returns the last successfully acknowledged RemoteState.
func (s *Session) State() RemoteState { return s.state }

// ProbeIdentification performs the minimal handshake a detection probe
// needs: enter RemoteOutputOff (if not already in a gated state) then
// read the firmware revision. It does not read model/serial/wavelength,
// since a probe run once per candidate port/baud must stay cheap.
func (s *Session) ProbeIdentification(ctx context.Context, timeout time.Duration) (uint16, *protocol.Error) {
	if !s.state.gated() {
		if err := s.EnterRemote(ctx, ModeOutputOff, timeout); err != nil {
			return 0, err
		}
	}
	return exec(ctx, s.engine, timeout, protocol.Command{Code: cmdFirmwareRevision})
}

func (s *Session) requireOpen() *protocol.Error {
	if s.closed {
		return &protocol.Error{Kind: protocol.ConnectionClosed, Msg: "session is closed"}
	}
	return nil
}

func (s *Session) requireGated() *protocol.Error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if !s.state.gated() {
		return &protocol.Error{
			Kind: protocol.PreconditionViolated,
			Msg:  "operation requires an active remote state (OutputOff, Armed, or Firing), got " + s.state.String(),
		}
	}
	return nil
}

// EnterRemote issues 0x15 with the payload for mode; on Ok it updates
// RemoteState. RemoteOff is terminal: once reached, every subsequent
// EnterRemote call (including re-entering OutputOff) is rejected
// locally without touching the wire. Turning off (ModeOff) itself
// requires the session to already be in a gated remote state, since
// 0x15:0 is the one 0x15 payload the data-model invariant does not
// exempt from that gating.
func (s *Session) EnterRemote(ctx context.Context, mode Mode, timeout time.Duration) *protocol.Error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if s.state == RemoteOff {
		return &protocol.Error{Kind: protocol.PreconditionViolated, Msg: "session is in terminal RemoteOff state"}
	}
	if mode == ModeOff {
		if err := s.requireGated(); err != nil {
			return err
		}
	}
	if _, err := exec(ctx, s.engine, timeout, protocol.Command{Code: cmdSetRemoteState, Data: uint16(mode.code())}); err != nil {
		return err
	}
	s.state = mode.resultState()
	return nil
}

// ReadRawRemoteState issues 0x13. Its return encoding is undocumented in
// the protocol reference material, so the 16-bit value is returned
// opaque; it is never used to update the tracked RemoteState, which is
// driven only by acknowledged 0x15 writes.
func (s *Session) ReadRawRemoteState(ctx context.Context, timeout time.Duration) (uint16, *protocol.Error) {
	if err := s.requireGated(); err != nil {
		return 0, err
	}
	return exec(ctx, s.engine, timeout, protocol.Command{Code: cmdReadRemoteState})
}

// ReadIdentity reads firmware/model/serial/wavelength. If the session is
// still LocalUnknown it first enters RemoteOutputOff, per the protocol's
// guidance to do so before reading identity.
func (s *Session) ReadIdentity(ctx context.Context, timeout time.Duration) (DeviceIdentity, *protocol.Error) {
	if s.state == LocalUnknown {
		if err := s.EnterRemote(ctx, ModeOutputOff, timeout); err != nil {
			return DeviceIdentity{}, err
		}
	}
	if err := s.requireGated(); err != nil {
		return DeviceIdentity{}, err
	}
	id, err := readIdentity(ctx, s.engine, timeout)
	if err != nil {
		return DeviceIdentity{}, err
	}
	s.identity = &id
	return id, nil
}

// ReadStage returns stage n's parameters (1..5), reading and caching
// them on first access. The cache is immutable thereafter and is only
// invalidated by Close.
func (s *Session) ReadStage(ctx context.Context, timeout time.Duration, n int) (StageParameters, *protocol.Error) {
	if n < 1 || n > 5 {
		return StageParameters{}, &protocol.Error{Kind: protocol.PreconditionViolated, Msg: "stage index out of range 1..5"}
	}
	if err := s.requireOpen(); err != nil {
		return StageParameters{}, err
	}
	if cached := s.stages[n]; cached != nil {
		return *cached, nil
	}
	if err := s.requireGated(); err != nil {
		return StageParameters{}, err
	}
	params, err := readStageParameters(ctx, s.engine, timeout, n)
	if err != nil {
		return StageParameters{}, err
	}
	s.stages[n] = &params
	return params, nil
}

// Arm transitions to RemoteArmed.
func (s *Session) Arm(ctx context.Context, timeout time.Duration) *protocol.Error {
	return s.EnterRemote(ctx, ModeArmed, timeout)
}

// TurnOff is the preferred safe stop: 0x15 data 0x0001 (RemoteOutputOff).
func (s *Session) TurnOff(ctx context.Context, timeout time.Duration) *protocol.Error {
	return s.EnterRemote(ctx, ModeOutputOff, timeout)
}

func (s *Session) writeFireCurrent(ctx context.Context, timeout time.Duration, mA uint16) *protocol.Error {
	_, err := exec(ctx, s.engine, timeout, protocol.Command{Code: cmdFireCurrentWrite, Data: mA})
	return err
}

// fireCurrentForStage returns stage n's fire current, using the full
// StageParameters cache if ReadStage already populated it, otherwise
// issuing only the single fire-current read (not the full 8-register
// stage read ReadStage performs) — FireStage's wire-transaction budget
// is "read fire current", not "read the whole stage".
func (s *Session) fireCurrentForStage(ctx context.Context, timeout time.Duration, n int) (uint16, *protocol.Error) {
	if n < 1 || n > 5 {
		return 0, &protocol.Error{Kind: protocol.PreconditionViolated, Msg: "stage index out of range 1..5"}
	}
	if cached := s.stages[n]; cached != nil {
		return cached.FireCurrentMA, nil
	}
	if err := s.requireGated(); err != nil {
		return 0, err
	}
	return exec(ctx, s.engine, timeout, protocol.Command{Code: stageCommand(n, stageOffsetFire)})
}

// FireStage ensures stage n's fire current is known (reading it if
// absent), transitions to RemoteFiring if not already there, then
// writes that current.
func (s *Session) FireStage(ctx context.Context, timeout time.Duration, n int) *protocol.Error {
	fireMA, err := s.fireCurrentForStage(ctx, timeout, n)
	if err != nil {
		return err
	}
	if s.state != RemoteFiring {
		if err := s.EnterRemote(ctx, ModeFiring, timeout); err != nil {
			return err
		}
	}
	return s.writeFireCurrent(ctx, timeout, fireMA)
}

// FireCurrent validates mA against the cached stage-5 fire current (when
// known — an unknown limit is not locally enforceable), ensures
// RemoteFiring, and writes mA. fire_current(0) is accepted and produces
// the same observable effect as TurnOff's alternative stop method.
func (s *Session) FireCurrent(ctx context.Context, timeout time.Duration, mA uint16) *protocol.Error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if limit := s.stages[5]; limit != nil && mA > limit.FireCurrentMA {
		return &protocol.Error{
			Kind: protocol.PreconditionViolated,
			Msg:  "fire current exceeds known stage-5 fire current limit",
		}
	}
	if s.state != RemoteFiring {
		if err := s.EnterRemote(ctx, ModeFiring, timeout); err != nil {
			return err
		}
	}
	return s.writeFireCurrent(ctx, timeout, mA)
}

// Close is best-effort: from a gated remote state it attempts 0x15:0,
// ignoring any failure, then releases the transport. Close never raises.
func (s *Session) Close() {
	if s.closed {
		return
	}
	if s.state.gated() {
		_, _ = exec(context.Background(), s.engine, s.timeout, protocol.Command{Code: cmdSetRemoteState, Data: uint16(RemoteCodeOff)})
	}
	_ = s.transport.Close()
	s.closed = true
	s.identity = nil
	s.stages = [6]*StageParameters{}
}

// Snapshot is a read-only copy of the session's current state, useful
// for a host's status display without exposing mutable internals.
type Snapshot struct {
	State    RemoteState
	Identity *DeviceIdentity
	Stages   [6]*StageParameters
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{State: s.state}
	if s.identity != nil {
		id := *s.identity
		snap.Identity = &id
	}
	for i, p := range s.stages {
		if p != nil {
			cp := *p
			snap.Stages[i] = &cp
		}
	}
	return snap
}
