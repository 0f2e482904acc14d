package signaling

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/okemsocial/okem_social/websocket"
)

const DefaultRingTimeout = 45 * time.Second

// UserRelay delivers events to every connection of a user.
// *websocket.Registry satisfies it.
type UserRelay interface {
	SendToUser(userID uint, ev websocket.Event) websocket.Delivery
	SendToUserExcept(userID uint, except uuid.UUID, ev websocket.Event) websocket.Delivery
}

type CallState int

const (
	Idle CallState = iota
	RingingOutbound
	RingingInbound
	InCall
)

func (s CallState) String() string {
	switch s {
	case RingingOutbound:
		return "ringing_outbound"
	case RingingInbound:
		return "ringing_inbound"
	case InCall:
		return "in_call"
	default:
		return "idle"
	}
}

type phase int

const (
	phasePending phase = iota
	phaseActive
)

// session is one side of a call. Both participants always hold an entry
// pointing at each other, from the offer onwards.
type session struct {
	peer     uint
	isVideo  bool
	outbound bool
	phase    phase
	// conn is the connection that placed or answered the call. It stays
	// uuid.Nil while an inbound call is still ringing on every device.
	conn      uuid.UUID
	startedAt time.Time
}

// MissedCallFunc is told about calls the target never picked up.
type MissedCallFunc func(callerID, targetID uint, isVideo bool)

// CallManager owns the call-session map. At most one session exists per
// user, so busy detection is a single lookup and teardown is symmetric.
type CallManager struct {
	relay       UserRelay
	now         func() time.Time
	ringTimeout time.Duration
	onMissed    MissedCallFunc

	mu       sync.Mutex
	sessions map[uint]*session
}

type CallOption func(*CallManager)

func WithClock(now func() time.Time) CallOption {
	return func(m *CallManager) { m.now = now }
}

// WithRingTimeout sets how long an unanswered call may ring. Zero disables
// expiry.
func WithRingTimeout(d time.Duration) CallOption {
	return func(m *CallManager) { m.ringTimeout = d }
}

func WithMissedCallHook(fn MissedCallFunc) CallOption {
	return func(m *CallManager) { m.onMissed = fn }
}

func NewCallManager(relay UserRelay, opts ...CallOption) *CallManager {
	m := &CallManager{
		relay:       relay,
		now:         time.Now,
		ringTimeout: DefaultRingTimeout,
		sessions:    make(map[uint]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CallUser offers a call from caller to target.
func (m *CallManager) CallUser(caller uint, callerConn uuid.UUID, target uint, offer json.RawMessage, isVideo bool) error {
	if caller == 0 {
		return ErrUnauthorized
	}
	if target == 0 {
		return Errorf(CodeInvalidArgument, "target user is required")
	}
	if target == caller {
		return Errorf(CodeInvalidArgument, "cannot call yourself")
	}
	if len(offer) == 0 {
		return Errorf(CodeInvalidArgument, "offer is required")
	}

	now := m.now()
	m.mu.Lock()
	if _, busy := m.sessions[target]; busy {
		m.mu.Unlock()
		return Errorf(CodeBusy, "User is busy")
	}
	if _, busy := m.sessions[caller]; busy {
		m.mu.Unlock()
		return Errorf(CodeBusy, "You are already in a call")
	}
	m.sessions[caller] = &session{peer: target, isVideo: isVideo, outbound: true, phase: phasePending, conn: callerConn, startedAt: now}
	m.sessions[target] = &session{peer: caller, isVideo: isVideo, phase: phasePending, startedAt: now}
	m.mu.Unlock()

	delivery := m.relay.SendToUser(target, websocket.Event{
		Type: EventIncomingCall,
		Data: IncomingCallPayload{FromUserID: caller, Offer: offer, IsVideo: isVideo},
	})
	if delivery == websocket.NoActiveConnection {
		m.mu.Lock()
		m.removePairLocked(caller, target)
		m.mu.Unlock()
		m.missed(caller, target, isVideo)
		return ErrTargetOffline
	}

	log.Infof("📞 Call initiated: %d -> %d (video: %v)", caller, target, isVideo)
	return nil
}

// AnswerCall accepts the pending call from caller. The first device to
// answer wins; the callee's other devices are told the call was claimed.
func (m *CallManager) AnswerCall(callee uint, calleeConn uuid.UUID, caller uint, answer json.RawMessage) error {
	if callee == 0 {
		return ErrUnauthorized
	}
	if len(answer) == 0 {
		return Errorf(CodeInvalidArgument, "answer is required")
	}

	m.mu.Lock()
	cs, ok := m.sessions[caller]
	if !ok || !cs.outbound || cs.peer != callee {
		m.mu.Unlock()
		return Errorf(CodeNotFound, "No pending call from user %d", caller)
	}
	if cs.phase == phaseActive {
		m.mu.Unlock()
		return Errorf(CodeInvalidArgument, "call already answered")
	}
	now := m.now()
	cs.phase = phaseActive
	cs.startedAt = now
	m.sessions[callee] = &session{peer: caller, isVideo: cs.isVideo, phase: phaseActive, conn: calleeConn, startedAt: now}
	m.mu.Unlock()

	m.relay.SendToUserExcept(callee, calleeConn, websocket.Event{
		Type: EventCallClaimed,
		Data: CallClaimedPayload{FromUserID: caller},
	})
	delivery := m.relay.SendToUser(caller, websocket.Event{
		Type: EventCallAnswered,
		Data: CallAnsweredPayload{FromUserID: callee, Answer: answer},
	})

	log.Infof("📞 Call answered: %d -> %d", callee, caller)
	if delivery == websocket.NoActiveConnection {
		return ErrTargetOffline
	}
	return nil
}

// SendIceCandidate relays a candidate without touching session state, so
// candidates trickling in before the answer still get through.
func (m *CallManager) SendIceCandidate(sender, target uint, candidate json.RawMessage) error {
	if sender == 0 {
		return ErrUnauthorized
	}
	if target == 0 || len(candidate) == 0 {
		return Errorf(CodeInvalidArgument, "target user and candidate are required")
	}
	return m.relayOrFail(target, websocket.Event{
		Type: EventIceCandidateReceived,
		Data: IceCandidatePayload{FromUserID: sender, Candidate: candidate},
	})
}

func (m *CallManager) HangUp(user, target uint) error {
	return m.end(user, target, websocket.Event{
		Type: EventCallEnded,
		Data: CallEndedPayload{FromUserID: user, Reason: ReasonHangup},
	})
}

func (m *CallManager) RejectCall(user, target uint) error {
	return m.end(user, target, websocket.Event{
		Type: EventCallRejected,
		Data: CallRejectedPayload{FromUserID: user},
	})
}

func (m *CallManager) end(user, target uint, ev websocket.Event) error {
	if user == 0 {
		return ErrUnauthorized
	}
	if target == 0 {
		return Errorf(CodeInvalidArgument, "target user is required")
	}

	m.mu.Lock()
	peer, hadSession := m.teardownLocked(user)
	if s, ok := m.sessions[target]; ok && s.peer == user {
		delete(m.sessions, target)
	}
	m.mu.Unlock()

	m.relay.SendToUser(target, ev)
	if hadSession && peer != target {
		m.relay.SendToUser(peer, ev)
	}

	log.Infof("📞 Call %s: %d -> %d", ev.Type, user, target)
	return nil
}

// Disconnect runs when one of user's call connections closes. remaining is
// how many call connections the user still has. The session ends if it was
// bound to the closing connection, or if it is still ringing and the user
// has no device left to answer on. It reports whether a session ended.
func (m *CallManager) Disconnect(user uint, conn uuid.UUID, remaining int) bool {
	if user == 0 {
		return false
	}

	m.mu.Lock()
	s, ok := m.sessions[user]
	if !ok || !(s.conn == conn || (s.conn == uuid.Nil && remaining == 0)) {
		m.mu.Unlock()
		return false
	}
	ringing := s.phase == phasePending
	peer, _ := m.teardownLocked(user)
	m.mu.Unlock()

	// The map is already clean; whatever happens to the relay cannot leave
	// a stale entry behind.
	m.relay.SendToUser(peer, websocket.Event{
		Type: EventCallEnded,
		Data: CallEndedPayload{FromUserID: user, Reason: ReasonDisconnected},
	})
	if ringing {
		if s.outbound {
			m.missed(user, peer, s.isVideo)
		} else {
			m.missed(peer, user, s.isVideo)
		}
	}

	log.Infof("📞 User %d disconnected, call with %d ended", user, peer)
	return true
}

func (m *CallManager) ToggleVideo(user, target uint, enabled bool) error {
	return m.toggle(EventPeerVideoToggled, user, target, enabled)
}

func (m *CallManager) ToggleAudio(user, target uint, enabled bool) error {
	return m.toggle(EventPeerAudioToggled, user, target, enabled)
}

func (m *CallManager) toggle(eventType string, user, target uint, enabled bool) error {
	if user == 0 {
		return ErrUnauthorized
	}
	if target == 0 {
		return Errorf(CodeInvalidArgument, "target user is required")
	}
	return m.relayOrFail(target, websocket.Event{
		Type: eventType,
		Data: PeerTogglePayload{FromUserID: user, Enabled: enabled},
	})
}

// ExpirePending ends calls that have been ringing longer than the ring
// timeout. The caller gets CallTimeout and the callee CallEnded.
func (m *CallManager) ExpirePending(now time.Time) int {
	if m.ringTimeout <= 0 {
		return 0
	}

	type expiredCall struct {
		caller, target uint
		isVideo        bool
	}

	m.mu.Lock()
	var expired []expiredCall
	for id, s := range m.sessions {
		if s.outbound && s.phase == phasePending && now.Sub(s.startedAt) >= m.ringTimeout {
			expired = append(expired, expiredCall{caller: id, target: s.peer, isVideo: s.isVideo})
		}
	}
	for _, e := range expired {
		m.removePairLocked(e.caller, e.target)
	}
	m.mu.Unlock()

	for _, e := range expired {
		m.relay.SendToUser(e.caller, websocket.Event{
			Type: EventCallTimeout,
			Data: CallTimeoutPayload{TargetUserID: e.target},
		})
		m.relay.SendToUser(e.target, websocket.Event{
			Type: EventCallEnded,
			Data: CallEndedPayload{FromUserID: e.caller, Reason: ReasonTimeout},
		})
		m.missed(e.caller, e.target, e.isVideo)
		log.Infof("📞 Call %d -> %d timed out", e.caller, e.target)
	}
	return len(expired)
}

func (m *CallManager) State(user uint) CallState {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[user]
	switch {
	case !ok:
		return Idle
	case s.phase == phaseActive:
		return InCall
	case s.outbound:
		return RingingOutbound
	default:
		return RingingInbound
	}
}

func (m *CallManager) Peer(user uint) (uint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[user]
	if !ok {
		return 0, false
	}
	return s.peer, true
}

// ActiveSessions returns the number of users currently ringing or in a call.
func (m *CallManager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// teardownLocked removes user's entry and its peer's matching entry.
func (m *CallManager) teardownLocked(user uint) (uint, bool) {
	s, ok := m.sessions[user]
	if !ok {
		return 0, false
	}
	delete(m.sessions, user)
	if ps, ok := m.sessions[s.peer]; ok && ps.peer == user {
		delete(m.sessions, s.peer)
	}
	return s.peer, true
}

func (m *CallManager) removePairLocked(a, b uint) {
	if s, ok := m.sessions[a]; ok && s.peer == b {
		delete(m.sessions, a)
	}
	if s, ok := m.sessions[b]; ok && s.peer == a {
		delete(m.sessions, b)
	}
}

func (m *CallManager) relayOrFail(target uint, ev websocket.Event) error {
	if m.relay.SendToUser(target, ev) == websocket.NoActiveConnection {
		return ErrTargetOffline
	}
	return nil
}

func (m *CallManager) missed(caller, target uint, isVideo bool) {
	if m.onMissed != nil {
		m.onMissed(caller, target, isVideo)
	}
}
