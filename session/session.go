// Package session keeps the local view of one project session in sync with
// the build service: it decodes socket frames, reduces them into State,
// gates outbound messages on the session status and recovers the socket.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xiaoyuanzhu-com/buildchat/log"
	"github.com/xiaoyuanzhu-com/buildchat/notifications"
	"github.com/xiaoyuanzhu-com/buildchat/transport"
)

var (
	// ErrEmptyMessage is returned by Submit for a message without text or images
	ErrEmptyMessage = errors.New("message is empty")

	// ErrCreateInProgress is returned by Submit while a provisional session is being created
	ErrCreateInProgress = errors.New("session creation already in progress")

	// ErrProvisional is returned by operations that need a persisted session
	ErrProvisional = errors.New("session has not been created yet")

	// ErrNoCollaborator is returned when a provisional session has no API to create itself with
	ErrNoCollaborator = errors.New("no session api configured")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("session closed")
)

// RejectedError is returned by Submit when the status does not allow sending
type RejectedError struct {
	Status Status
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("cannot send while %s: %s", e.Status, e.Reason)
}

// Conn is the transport a session drives
type Conn interface {
	Connect(ctx context.Context) error
	Send(v any) error
	Disconnect()
}

// Dialer creates an unconnected transport for sessionID that reports to h
type Dialer func(sessionID string, h transport.Handler) (Conn, error)

// Collaborator is the HTTP API of the build service
type Collaborator interface {
	CreateSession(ctx context.Context, first OutboundMessage) (string, error)
	GetSession(ctx context.Context, id string) (*Seed, error)
}

// Navigator opens another session, typically replacing the current one
type Navigator interface {
	Navigate(nav Navigation)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(Navigation)

func (f NavigatorFunc) Navigate(nav Navigation) { f(nav) }

// Options configures a Session
type Options struct {
	SessionID string
	// Deferred is sent once, when the session first reports READY
	Deferred *OutboundMessage

	Dial         Dialer
	Collaborator Collaborator
	Navigator    Navigator
	Policy       *Policy
}

// Session synchronizes one project session. All state changes happen on a
// single loop goroutine; callers interact through methods that post to it.
type Session struct {
	opts   Options
	policy Policy
	log    zerolog.Logger

	inbox *mailbox[input]
	hub   *notifications.Hub[State]

	snapMu sync.RWMutex
	snap   State

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	// owned by the loop goroutine
	cur          State
	dirty        bool
	conn         Conn
	gen          int
	connected    bool
	queue        Queue
	deferred     *OutboundMessage
	creating     bool
	autoAttempts int
	timer        *time.Timer
}

// Start creates a session and begins connecting when its id is persisted
func Start(opts Options) (*Session, error) {
	if opts.SessionID == "" {
		opts.SessionID = NewSessionID
	}
	initial := InitialState(opts.SessionID)
	if !initial.Provisional() && opts.Dial == nil {
		return nil, errors.New("session: Dial is required")
	}

	policy := DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:     opts,
		policy:   policy,
		log:      log.GetLogger("session").With().Str("session", opts.SessionID).Logger(),
		inbox:    newMailbox[input](),
		hub:      notifications.NewHub[State](),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		cur:      initial,
		snap:     initial,
		deferred: opts.Deferred,
	}
	go s.run()
	return s, nil
}

// ID returns the session id, NewSessionID for a provisional session
func (s *Session) ID() string {
	return s.opts.SessionID
}

// Snapshot returns the latest published state
func (s *Session) Snapshot() State {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap.Clone()
}

// Subscribe delivers every published state; a slow reader only sees the latest
func (s *Session) Subscribe() (<-chan State, func()) {
	return s.hub.Subscribe()
}

// Done is closed once the session loop has stopped
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Submit appends msg to the transcript and queues it for transmission.
// It fails without side effects when the status does not allow sending.
func (s *Session) Submit(ctx context.Context, msg OutboundMessage) error {
	if msg.empty() {
		return ErrEmptyMessage
	}
	msg.Role = RoleUser
	if msg.Images == nil {
		msg.Images = []string{}
	}
	return s.call(ctx, func(reply chan error) input { return submitInput{msg: msg, reply: reply} })
}

// Reconnect replaces the transport with a fresh one for the same session
func (s *Session) Reconnect(ctx context.Context) error {
	return s.call(ctx, func(reply chan error) input { return reconnectInput{reply: reply} })
}

// ConsumeNavigation clears the pending preview navigation
func (s *Session) ConsumeNavigation() {
	s.inbox.Put(consumeNavInput{})
}

// Close disconnects the transport and stops the loop. No state is published
// after Close returns.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.hub.Shutdown()
	})
}

func (s *Session) call(ctx context.Context, build func(chan error) input) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	reply := make(chan error, 1)
	s.inbox.Put(build(reply))
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loop inputs
type input interface{}

type (
	openInput struct{ gen int }
	frameInput struct {
		gen  int
		data []byte
	}
	closeInput struct {
		gen    int
		code   int
		reason string
	}
	errorInput struct {
		gen int
		err error
	}
	connectResult struct {
		gen int
		err error
	}
	seedResult struct {
		gen  int
		seed *Seed
		err  error
	}
	autoReconnectInput struct{ gen int }
	consumeNavInput    struct{}
	submitInput        struct {
		msg   OutboundMessage
		reply chan error
	}
	reconnectInput struct{ reply chan error }
	createdInput   struct {
		localID string
		msg     OutboundMessage
		id      string
		err     error
	}
)

// connHandler tags transport callbacks with the generation they belong to
type connHandler struct {
	inbox *mailbox[input]
	gen   int
}

func (h connHandler) OnOpen()                 { h.inbox.Put(openInput{gen: h.gen}) }
func (h connHandler) OnFrame(data []byte)     { h.inbox.Put(frameInput{gen: h.gen, data: data}) }
func (h connHandler) OnClose(c int, r string) { h.inbox.Put(closeInput{gen: h.gen, code: c, reason: r}) }
func (h connHandler) OnError(err error)       { h.inbox.Put(errorInput{gen: h.gen, err: err}) }

func (s *Session) run() {
	defer close(s.done)

	s.begin()
	s.publish()

	for {
		select {
		case <-s.ctx.Done():
			s.teardown()
			return
		case <-s.inbox.Ready():
			for _, in := range s.inbox.Drain() {
				if s.ctx.Err() != nil {
					break
				}
				s.handle(in)
			}
			s.publish()
		}
	}
}

func (s *Session) begin() {
	if s.cur.Provisional() {
		s.log.Debug().Msg("provisional session, waiting for first message")
		return
	}
	if s.opts.Collaborator == nil {
		s.connect()
		return
	}

	s.apply(Connecting{})
	gen, id := s.gen, s.cur.SessionID
	go func() {
		seed, err := s.opts.Collaborator.GetSession(s.ctx, id)
		s.inbox.Put(seedResult{gen: gen, seed: seed, err: err})
	}()
}

func (s *Session) handle(in input) {
	switch in := in.(type) {
	case seedResult:
		if in.err != nil {
			s.log.Warn().Err(in.err).Msg("failed to fetch session, connecting anyway")
		} else if in.seed != nil {
			s.apply(Seeded{Seed: *in.seed})
		}
		if in.gen == s.gen && s.conn == nil {
			s.connect()
		}

	case connectResult:
		if in.gen != s.gen || in.err == nil {
			return
		}
		s.dropConn()
		s.log.Warn().Err(in.err).Msg("session socket failed to open")
		s.apply(Disconnected{Reason: connectFailureReason(in.err)})

	case openInput:
		if in.gen != s.gen {
			return
		}
		s.connected = true
		s.log.Info().Msg("session socket open")

	case frameInput:
		if in.gen != s.gen {
			return
		}
		s.handleFrame(in.data)

	case errorInput:
		if in.gen != s.gen {
			return
		}
		s.log.Debug().Err(in.err).Msg("session socket error")

	case closeInput:
		if in.gen != s.gen {
			return
		}
		s.handleClose(in.code, in.reason)

	case autoReconnectInput:
		if in.gen == s.gen && s.conn == nil {
			s.connect()
		}

	case submitInput:
		err := s.handleSubmit(in.msg)
		// callers observe their own submission in the next Snapshot
		s.publish()
		in.reply <- err

	case reconnectInput:
		if s.cur.Provisional() {
			in.reply <- ErrProvisional
			return
		}
		s.autoAttempts = 0
		s.connect()
		s.publish()
		in.reply <- nil

	case createdInput:
		s.handleCreated(in)

	case consumeNavInput:
		s.apply(NavigationConsumed{})
	}
}

func (s *Session) handleFrame(data []byte) {
	ev, err := Decode(data)
	if err != nil {
		s.log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping frame")
		return
	}
	s.apply(ev)

	st, ok := ev.(StatusChanged)
	if !ok {
		return
	}
	s.queue.Acknowledge()
	s.autoAttempts = 0

	if st.Status == StatusReady && s.deferred != nil {
		msg := *s.deferred
		s.deferred = nil
		s.log.Info().Msg("delivering deferred message")
		s.enqueue(msg)
	}
	s.flush()
}

func (s *Session) handleClose(code int, reason string) {
	s.dropConn()
	d := s.policy.Decide(code, s.autoAttempts)
	s.log.Info().Int("code", code).Str("reason", reason).Str("action", d.Action.String()).Msg("session socket closed")

	switch d.Action {
	case ActionReconnect:
		s.autoAttempts++
		if d.Delay <= 0 {
			s.connect()
			return
		}
		s.apply(Disconnected{})
		gen := s.gen
		s.timer = time.AfterFunc(d.Delay, func() {
			s.inbox.Put(autoReconnectInput{gen: gen})
		})
	default:
		s.apply(Disconnected{Reason: d.Reason})
	}
}

func (s *Session) handleSubmit(msg OutboundMessage) error {
	st := s.cur.Status
	if !st.CanSend() {
		return &RejectedError{Status: st, Reason: st.Reason()}
	}

	if !s.cur.Provisional() {
		s.enqueue(msg)
		s.flush()
		return nil
	}

	if s.creating {
		return ErrCreateInProgress
	}
	if s.opts.Collaborator == nil {
		return ErrNoCollaborator
	}
	localID := s.addOptimistic(msg)
	s.creating = true
	go func() {
		id, err := s.opts.Collaborator.CreateSession(s.ctx, msg)
		s.inbox.Put(createdInput{localID: localID, msg: msg, id: id, err: err})
	}()
	return nil
}

func (s *Session) handleCreated(in createdInput) {
	s.creating = false
	if in.err == nil && in.id == "" {
		in.err = errors.New("empty session id")
	}
	if in.err != nil {
		s.log.Error().Err(in.err).Msg("failed to create session")
		s.apply(UserMessageRetracted{LocalID: in.localID})
		s.apply(Failed{Reason: fmt.Sprintf("create session: %v", in.err)})
		return
	}

	q, err := EncodeDeferred(in.msg)
	if err != nil {
		s.apply(UserMessageRetracted{LocalID: in.localID})
		s.apply(Failed{Reason: err.Error()})
		return
	}
	nav := Navigation{SessionID: in.id, Query: q}
	s.log.Info().Str("created", in.id).Msg("session created")
	if s.opts.Navigator != nil {
		// The navigator usually closes this session, which waits for the loop
		go s.opts.Navigator.Navigate(nav)
	}
}

func (s *Session) addOptimistic(msg OutboundMessage) string {
	localID := uuid.NewString()
	s.apply(UserMessageAdded{Message: Message{
		LocalID: localID,
		Role:    RoleUser,
		Content: msg.Content,
		Images:  msg.Images,
	}})
	return localID
}

func (s *Session) enqueue(msg OutboundMessage) {
	localID := s.addOptimistic(msg)
	s.queue.Push(localID, msg)
}

// flush transmits the head of the queue when the session allows it. A failed
// send leaves the message queued for the next READY.
func (s *Session) flush() {
	p, ok := s.queue.Next(s.cur.Status, s.connected && s.conn != nil)
	if !ok {
		return
	}
	if err := s.conn.Send(p.msg); err != nil {
		s.log.Warn().Err(err).Int("queued", s.queue.Len()).Msg("send failed, message kept queued")
		return
	}
	s.queue.MarkSent()
}

// connect replaces any current transport with a new one
func (s *Session) connect() {
	s.teardown()
	s.apply(Connecting{})

	gen := s.gen
	conn, err := s.opts.Dial(s.cur.SessionID, connHandler{inbox: s.inbox, gen: gen})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create transport")
		s.apply(Disconnected{Reason: err.Error()})
		return
	}
	s.conn = conn

	ctx := s.ctx
	go func() {
		s.inbox.Put(connectResult{gen: gen, err: conn.Connect(ctx)})
	}()
}

// teardown disconnects the transport and invalidates its pending events
func (s *Session) teardown() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.dropConn()
}

func (s *Session) dropConn() {
	if s.conn != nil {
		s.conn.Disconnect()
		s.conn = nil
	}
	s.connected = false
	s.queue.Acknowledge()
}

func (s *Session) apply(ev Event) {
	s.cur = Reduce(s.cur, ev)
	s.dirty = true
}

func (s *Session) publish() {
	if !s.dirty {
		return
	}
	s.dirty = false
	snap := s.cur.Clone()
	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()
	s.hub.Notify(snap)
}

func connectFailureReason(err error) string {
	switch {
	case errors.Is(err, transport.ErrAuthenticationMissing):
		return "not signed in"
	case errors.Is(err, transport.ErrConnectTimeout):
		return "connection timed out"
	case errors.Is(err, context.Canceled):
		return "connection cancelled"
	default:
		return err.Error()
	}
}
