// SPDX-FileCopyrightText: 2019, 2020, 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/openetp/etp-go/pkg/capability"
	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/multipart"
	"github.com/openetp/etp-go/pkg/transport"
)

// closeTimeout bounds sending the CloseSession message while closing.
const closeTimeout = time.Second

var (
	// ErrSessionClosed is returned for operations on a closed Session.
	ErrSessionClosed = errors.New("session is closed")

	// ErrNotNegotiated is returned for protocols which were not negotiated or before the negotiation completed.
	ErrNotNegotiated = errors.New("protocol was not negotiated")
)

// declaration is a protocol this endpoint supports in a role, before the negotiation.
type declaration struct {
	protocol int32
	role     string
	caps     *capability.Set
}

// Session is one ETP session over a transport.MessageSwitch.
//
// After creation, protocols must be declared and handlers be registered. Start negotiates the session. Afterwards,
// incoming requests are dispatched to the registered handlers and outgoing requests can be sent.
type Session struct {
	address string
	conf    Configuration

	instanceID uuid.UUID
	local      *capability.Set

	messageSwitch transport.MessageSwitch
	connCloser    io.Closer
	stageHandler  *stageHandler

	routes       *routeTable
	declarations map[int32]declaration
	declMutex    sync.Mutex

	// Set once by the negotiation's post hook, read-only afterwards.
	endpoint        *capability.Negotiated
	protocols       map[int32]*Protocol
	sessionID       string
	peerApplication string
	peerInstanceID  string
	handlerTimeout  time.Duration
	negotiated      chan struct{}

	// Send path, guarded by sendMutex.
	sendMutex sync.Mutex
	nextID    uint64
	limits    capability.Limits
	outgoing  chan<- []byte
	lastSend  int64

	// Receive path, only accessed by the read loop.
	lastInboundID uint64
	lastReceive   int64

	// Exchanges, guarded by exMutex.
	exMutex      sync.Mutex
	exchanges    map[uint64]*exchange
	calls        map[uint64]*Call
	requestParts map[int32]*multipart.Assembler[msgs.Message]
	responses    *multipart.Assembler[msgs.Message]
	workers      map[int32]*worker

	statusChan chan Status

	ctx    context.Context
	cancel context.CancelFunc

	started  uint32
	closeSyn chan struct{}
	closeOne sync.Once
	done     chan struct{}
	err      error
}

// NewSession creates a Session on top of a transport.MessageSwitch. The connCloser is closed after the Session
// ended and might be nil. The address is only used for identification.
func NewSession(address string, ms transport.MessageSwitch, connCloser io.Closer, conf Configuration) *Session {
	instanceID := conf.InstanceID
	if instanceID == uuid.Nil {
		instanceID = uuid.New()
	}

	local := conf.Capabilities.ToSet()
	local.Freeze()

	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		address: address,
		conf:    conf,

		instanceID: instanceID,
		local:      local,

		messageSwitch: ms,
		connCloser:    connCloser,

		routes:       newRouteTable(),
		declarations: make(map[int32]declaration),

		negotiated: make(chan struct{}),

		limits: capability.Negotiate(local, nil).Limits(),

		exchanges:    make(map[uint64]*exchange),
		calls:        make(map[uint64]*Call),
		requestParts: make(map[int32]*multipart.Assembler[msgs.Message]),
		workers:      make(map[int32]*worker),

		statusChan: make(chan Status, 64),

		ctx:    ctx,
		cancel: cancel,

		closeSyn: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Session) String() string {
	var b strings.Builder

	_, _ = fmt.Fprintf(&b, "ETP(")
	_, _ = fmt.Fprintf(&b, "address=%s, ", s.address)
	if s.isNegotiated() {
		_, _ = fmt.Fprintf(&b, "session=%s, ", s.sessionID)
	}
	if s.conf.ActivePeer {
		_, _ = fmt.Fprintf(&b, "peer=active")
	} else {
		_, _ = fmt.Fprintf(&b, "peer=passive")
	}
	_, _ = fmt.Fprintf(&b, ")")

	return b.String()
}

func (s *Session) log() *log.Entry {
	return log.WithField("session", s.String())
}

// Declare a protocol this endpoint supports in the given role together with its protocol capabilities. All
// protocols must be declared before Start. Recognized capabilities of the wrong kind are reported as an error.
func (s *Session) Declare(protocol int32, role string, caps *capability.Set) error {
	if atomic.LoadUint32(&s.started) != 0 {
		return fmt.Errorf("protocol %d cannot be declared after the start", protocol)
	}
	if protocol == msgs.ProtocolCore {
		return fmt.Errorf("the core protocol cannot be declared")
	}
	if msgs.Counterpart(role) == "" {
		return fmt.Errorf("protocol %d has an unknown role %q", protocol, role)
	}

	if err := capability.ProtocolSchema(protocol).Check(caps); err != nil {
		return fmt.Errorf("protocol %d capabilities: %w", protocol, err)
	}

	frozen := caps.Clone()
	frozen.Freeze()

	s.declMutex.Lock()
	defer s.declMutex.Unlock()

	if _, exists := s.declarations[protocol]; exists {
		return fmt.Errorf("protocol %d was already declared", protocol)
	}
	s.declarations[protocol] = declaration{protocol: protocol, role: role, caps: frozen}
	return nil
}

// Register a Route. Registering two handlers for the same message type and role is a protocol violation.
func (s *Session) Register(r Route) error {
	return s.routes.register(r)
}

// Start the Session and block until the negotiation has finished, failed or the context was canceled.
func (s *Session) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&s.started, 0, 1) {
		return fmt.Errorf("session was already started")
	}

	incoming, outgoing, _ := s.messageSwitch.Exchange()
	s.outgoing = outgoing

	if s.conf.ActivePeer {
		s.nextID = 2
	} else {
		s.nextID = 1
	}
	atomic.StoreInt64(&s.lastSend, time.Now().UnixNano())
	atomic.StoreInt64(&s.lastReceive, time.Now().UnixNano())

	stages := []stageSetup{
		{
			stage: &negotiationStage{},
			preHook: func(_ *stageHandler, _ *state) error {
				s.log().Debug("Starting Negotiation Stage")
				return nil
			},
			postHook: func(_ *stageHandler, st *state) error {
				s.applyNegotiation(st)
				return nil
			},
		},
		{
			stage: &establishedStage{},
			preHook: func(_ *stageHandler, _ *state) error {
				s.log().Debug("Starting Established Stage")
				return nil
			},
		},
	}
	s.stageHandler = newStageHandler(stages, s, incoming)

	go s.handle()

	select {
	case <-s.negotiated:
		s.log().WithFields(log.Fields{
			"peer":      s.peerApplication,
			"protocols": s.Protocols(),
		}).Info("Session established")
		s.conf.Metrics.sessionOpened()
		s.report(Status{Type: SessionOpened, Session: s})
		return nil

	case <-s.done:
		if err := s.Err(); err != nil {
			return err
		}
		return ErrSessionClosed

	case <-ctx.Done():
		_ = s.Close()
		return ctx.Err()
	}
}

// applyNegotiation stores the negotiation's result. It is called from the negotiation stage's post hook.
func (s *Session) applyNegotiation(st *state) {
	s.sendMutex.Lock()
	s.limits = st.endpoint.Limits()
	limits := s.limits
	s.sendMutex.Unlock()

	s.exMutex.Lock()
	s.endpoint = st.endpoint
	s.protocols = st.protocols
	s.sessionID = st.sessionID
	s.peerApplication = st.peerApplication
	s.peerInstanceID = st.peerInstanceID

	s.handlerTimeout = s.conf.HandlerTimeout
	if s.handlerTimeout == 0 {
		s.handlerTimeout = limits.ResponseTimeout
	}

	s.responses = multipart.NewAssembler[msgs.Message](0, limits.MultipartTimeout, s.callTimedOut)
	for id, p := range s.protocols {
		protocol := p.ID
		s.requestParts[id] = multipart.NewAssembler[msgs.Message](limits.MaxConcurrentMultipart, limits.MultipartTimeout,
			func(key uint64, err error) { s.requestTimedOut(protocol, key, err) })
		s.workers[id] = newWorker(s.done)
	}
	s.exMutex.Unlock()

	close(s.negotiated)
}

func (s *Session) isNegotiated() bool {
	select {
	case <-s.negotiated:
		return true
	default:
		return false
	}
}

func (s *Session) handle() {
	stageHandlerErr := s.stageHandler.errs()

	var sessionErr error

	defer func() {
		s.log().Info("Closing down session")
		s.teardown(sessionErr)
	}()

	for {
		select {
		case <-s.closeSyn:
			s.log().Debug("Received close signal")
			return

		case err, ok := <-stageHandlerErr:
			if !ok {
				return
			}

			switch {
			case err == nil:
				continue
			case errors.Is(err, errStageClose):
				s.log().Debug("Stage closed down")
			case errors.Is(err, io.EOF):
				s.log().Info("Received EOF")
			default:
				s.log().WithError(err).Error("Error occurred")
				sessionErr = err
			}
			return
		}
	}
}

// transportErr is the reason of a finished transport.MessageSwitch, which defaults to io.EOF.
func (s *Session) transportErr() error {
	_, _, errChan := s.messageSwitch.Exchange()

	select {
	case err := <-errChan:
		return err
	default:
		return io.EOF
	}
}

// teardown cancels all open exchanges and closes the underlying layers.
func (s *Session) teardown(sessionErr error) {
	// Canceling first releases responders blocked in sendBatch, which hold their exchange's mutex.
	s.cancel()
	s.stageHandler.close()

	s.exMutex.Lock()
	calls := s.calls
	s.calls = make(map[uint64]*Call)
	exchanges := s.exchanges
	s.exchanges = make(map[uint64]*exchange)
	if s.responses != nil {
		s.responses.Close()
	}
	for _, asm := range s.requestParts {
		asm.Close()
	}
	s.exMutex.Unlock()

	for _, c := range calls {
		c.finish(nil, ErrSessionClosed)
		s.conf.Metrics.exchangeClosed("canceled")
	}
	for _, ex := range exchanges {
		ex.mutex.Lock()
		if ex.state != ExchangeClosed {
			ex.state = ExchangeClosed
			ex.release()
			s.conf.Metrics.exchangeClosed("canceled")
		}
		ex.mutex.Unlock()
	}

	var closeErrs error
	if err := s.messageSwitch.Close(); err != nil && !errors.Is(err, transport.ErrFinished) {
		closeErrs = multierror.Append(closeErrs, err)
	}
	if s.connCloser != nil {
		if err := s.connCloser.Close(); err != nil {
			closeErrs = multierror.Append(closeErrs, err)
		}
	}
	if closeErrs != nil {
		s.log().WithError(closeErrs).Debug("Error occurred while closing")
	}

	if s.isNegotiated() {
		s.conf.Metrics.sessionClosed()
	}

	s.err = sessionErr
	s.report(Status{Type: SessionClosed, Session: s, Err: sessionErr})
	close(s.done)
}

// Close the Session. A CloseSession message is sent to the peer if the Session was established.
func (s *Session) Close() error {
	if atomic.CompareAndSwapUint32(&s.started, 0, 1) {
		// Never started, thus there is neither a stage nor a pending exchange.
		s.closeOne.Do(func() {
			close(s.closeSyn)
			_ = s.messageSwitch.Close()
			if s.connCloser != nil {
				_ = s.connCloser.Close()
			}
			s.cancel()
			close(s.done)
		})
		return nil
	}

	s.closeOne.Do(func() {
		if s.isNegotiated() {
			s.sendCloseSession()
		}
		close(s.closeSyn)
	})

	<-s.done
	return nil
}

// sendCloseSession informs the peer. A stalled transport is waited for at most closeTimeout; the pending send is
// released afterwards by closing closeSyn.
func (s *Session) sendCloseSession() {
	sent := make(chan error, 1)
	go func() {
		_, err := s.sendCore(msgs.Header{MessageType: msgs.MsgCloseSession}, &msgs.CloseSession{Reason: "closed"})
		sent <- err
	}()

	select {
	case err := <-sent:
		if err != nil {
			s.log().WithError(err).Debug("Sending CloseSession failed")
		}
	case <-time.After(closeTimeout):
		s.log().Warn("Sending CloseSession timed out, transport seems to be stalled")
	}
}

// Done is closed after the Session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err is the reason of a failed Session. It is nil for a gracefully closed or a still running Session.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Status channel of this Session. Statuses are dropped if the channel is not read.
func (s *Session) Status() <-chan Status {
	return s.statusChan
}

func (s *Session) report(st Status) {
	select {
	case s.statusChan <- st:
	default:
		s.log().WithField("status", st).Debug("Dropped status, channel is full")
	}
}

// Address of the peer.
func (s *Session) Address() string {
	return s.address
}

// ID of the Session, as chosen by the passive peer. Empty before the negotiation.
func (s *Session) ID() string {
	if !s.isNegotiated() {
		return ""
	}
	return s.sessionID
}

// InstanceID of this endpoint.
func (s *Session) InstanceID() uuid.UUID {
	return s.instanceID
}

// PeerApplication is the peer's application name and version.
func (s *Session) PeerApplication() string {
	if !s.isNegotiated() {
		return ""
	}
	return s.peerApplication
}

// Capabilities are the negotiated endpoint capabilities, nil before the negotiation.
func (s *Session) Capabilities() *capability.Negotiated {
	if !s.isNegotiated() {
		return nil
	}
	return s.endpoint
}

// Limits are the resolved endpoint capabilities. Before the negotiation, only the local ones are considered.
func (s *Session) Limits() capability.Limits {
	s.sendMutex.Lock()
	defer s.sendMutex.Unlock()

	return s.limits
}

// Protocol returns a negotiated protocol.
func (s *Session) Protocol(id int32) (*Protocol, bool) {
	if !s.isNegotiated() {
		return nil, false
	}
	p, ok := s.protocols[id]
	return p, ok
}

// Protocols lists the IDs of all negotiated protocols.
func (s *Session) Protocols() (ids []int32) {
	if !s.isNegotiated() {
		return nil
	}
	for id := range s.protocols {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return
}
