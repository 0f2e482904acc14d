package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"github.com/okemsocial/okem_social/signaling"
)

type CallState int

const (
	Idle CallState = iota
	Calling
	Ringing
	Connected
)

func (s CallState) String() string {
	switch s {
	case Calling:
		return "calling"
	case Ringing:
		return "ringing"
	case Connected:
		return "connected"
	}
	return "idle"
}

// PeerConnection is the local media side of a call. Descriptions and
// candidates are passed through as the opaque JSON the browser produced.
type PeerConnection interface {
	SetRemoteDescription(sdp json.RawMessage) error
	AddICECandidate(candidate json.RawMessage) error
}

// CallObserver is told about transitions the server caused.
type CallObserver interface {
	OnIncomingCall(from uint, isVideo bool)
	OnConnected(peer uint)
	OnCallEnded(peer uint, reason string)
	OnPeerToggle(peer uint, kind string, enabled bool)
}

// NopCallObserver ignores every callback.
type NopCallObserver struct{}

func (NopCallObserver) OnIncomingCall(uint, bool)       {}
func (NopCallObserver) OnConnected(uint)                {}
func (NopCallObserver) OnCallEnded(uint, string)        {}
func (NopCallObserver) OnPeerToggle(uint, string, bool) {}

// Reasons reported to OnCallEnded besides the server's CallEnded reasons.
const (
	EndRejected = "rejected"
	EndTimeout  = "timeout"
	EndClaimed  = "claimed"
	EndError    = "error"
	EndLocal    = "local"
)

var (
	ErrCallInProgress = errors.New("client: a call is already in progress")
	ErrNoIncomingCall = errors.New("client: no incoming call")
	ErrNoCall         = errors.New("client: no active call")
)

// CallClient tracks one user's call through the /signaling/call endpoint.
type CallClient struct {
	transport Transport
	pc        PeerConnection
	observer  CallObserver

	mu          sync.Mutex
	state       CallState
	peer        uint
	isVideo     bool
	remoteOffer json.RawMessage
	remoteSet   bool
	pending     []json.RawMessage
}

func NewCallClient(transport Transport, pc PeerConnection, observer CallObserver) *CallClient {
	if observer == nil {
		observer = NopCallObserver{}
	}
	return &CallClient{transport: transport, pc: pc, observer: observer}
}

func (c *CallClient) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Peer is the other party of the current call, zero when idle.
func (c *CallClient) Peer() uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// Call offers a call to target.
func (c *CallClient) Call(ctx context.Context, target uint, offer json.RawMessage, isVideo bool) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return ErrCallInProgress
	}
	c.state, c.peer, c.isVideo = Calling, target, isVideo
	c.mu.Unlock()

	err := c.transport.Send(ctx, signaling.ActionCallUser, signaling.CallUserRequest{
		TargetUserID: target,
		Offer:        offer,
		IsVideo:      isVideo,
	})
	if err != nil {
		c.resetIf(target)
	}
	return err
}

// Accept answers the ringing call. The caller's offer becomes the remote
// description and any buffered candidates are applied.
func (c *CallClient) Accept(ctx context.Context, answer json.RawMessage) error {
	c.mu.Lock()
	if c.state != Ringing {
		c.mu.Unlock()
		return ErrNoIncomingCall
	}
	caller := c.peer
	if err := c.applyRemoteLocked(c.remoteOffer); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = Connected
	c.mu.Unlock()

	if err := c.transport.Send(ctx, signaling.ActionAnswerCall, signaling.AnswerCallRequest{
		CallerUserID: caller,
		Answer:       answer,
	}); err != nil {
		c.resetIf(caller)
		return err
	}
	c.observer.OnConnected(caller)
	return nil
}

func (c *CallClient) Reject(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Ringing {
		c.mu.Unlock()
		return ErrNoIncomingCall
	}
	caller := c.peer
	c.resetLocked()
	c.mu.Unlock()

	return c.transport.Send(ctx, signaling.ActionRejectCall, signaling.TargetRequest{TargetUserID: caller})
}

// HangUp ends an outgoing or connected call.
func (c *CallClient) HangUp(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Idle {
		c.mu.Unlock()
		return ErrNoCall
	}
	if c.state == Ringing {
		c.mu.Unlock()
		return c.Reject(ctx)
	}
	peer := c.peer
	c.resetLocked()
	c.mu.Unlock()

	c.observer.OnCallEnded(peer, EndLocal)
	return c.transport.Send(ctx, signaling.ActionHangUp, signaling.TargetRequest{TargetUserID: peer})
}

// SendCandidate forwards a local ICE candidate to the peer.
func (c *CallClient) SendCandidate(ctx context.Context, candidate json.RawMessage) error {
	peer, err := c.activePeer()
	if err != nil {
		return err
	}
	return c.transport.Send(ctx, signaling.ActionSendIceCandidate, signaling.IceCandidateRequest{
		TargetUserID: peer,
		Candidate:    candidate,
	})
}

func (c *CallClient) ToggleAudio(ctx context.Context, enabled bool) error {
	return c.toggle(ctx, signaling.ActionToggleAudio, enabled)
}

func (c *CallClient) ToggleVideo(ctx context.Context, enabled bool) error {
	return c.toggle(ctx, signaling.ActionToggleVideo, enabled)
}

func (c *CallClient) toggle(ctx context.Context, action string, enabled bool) error {
	peer, err := c.activePeer()
	if err != nil {
		return err
	}
	return c.transport.Send(ctx, action, signaling.ToggleRequest{TargetUserID: peer, Enabled: enabled})
}

func (c *CallClient) activePeer() (uint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Calling && c.state != Connected {
		return 0, ErrNoCall
	}
	return c.peer, nil
}

// HandleEvent applies one server event.
func (c *CallClient) HandleEvent(ctx context.Context, ev Event) {
	if err := c.handle(ctx, ev); err != nil {
		log.Warnf("[call] %v", err)
	}
}

func (c *CallClient) handle(ctx context.Context, ev Event) error {
	switch ev.Type {
	case signaling.EventIncomingCall:
		var p signaling.IncomingCallPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		return c.incoming(ctx, p)

	case signaling.EventCallAnswered:
		var p signaling.CallAnsweredPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		return c.answered(p)

	case signaling.EventIceCandidateReceived:
		var p signaling.IceCandidatePayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		return c.remoteCandidate(p)

	case signaling.EventCallEnded:
		var p signaling.CallEndedPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		c.endFrom(p.FromUserID, p.Reason)

	case signaling.EventCallRejected:
		var p signaling.CallRejectedPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		c.endFrom(p.FromUserID, EndRejected)

	case signaling.EventCallTimeout:
		var p signaling.CallTimeoutPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		c.endFrom(p.TargetUserID, EndTimeout)

	case signaling.EventCallClaimed:
		var p signaling.CallClaimedPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		c.endFrom(p.FromUserID, EndClaimed)

	case signaling.EventCallError:
		var p signaling.CallErrorPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		c.endFrom(0, EndError)
		return fmt.Errorf("server error [%s]: %s", p.Code, p.Message)

	case signaling.EventPeerAudioToggled, signaling.EventPeerVideoToggled:
		var p signaling.PeerTogglePayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		kind := "audio"
		if ev.Type == signaling.EventPeerVideoToggled {
			kind = "video"
		}
		c.observer.OnPeerToggle(p.FromUserID, kind, p.Enabled)
	}
	return nil
}

// incoming rings, or automatically rejects when another call is in
// progress.
func (c *CallClient) incoming(ctx context.Context, p signaling.IncomingCallPayload) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return c.transport.Send(ctx, signaling.ActionRejectCall, signaling.TargetRequest{TargetUserID: p.FromUserID})
	}
	c.state, c.peer, c.isVideo = Ringing, p.FromUserID, p.IsVideo
	c.remoteOffer = p.Offer
	c.mu.Unlock()

	c.observer.OnIncomingCall(p.FromUserID, p.IsVideo)
	return nil
}

func (c *CallClient) answered(p signaling.CallAnsweredPayload) error {
	c.mu.Lock()
	if c.state != Calling || c.peer != p.FromUserID {
		c.mu.Unlock()
		return nil
	}
	if err := c.applyRemoteLocked(p.Answer); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = Connected
	c.mu.Unlock()

	c.observer.OnConnected(p.FromUserID)
	return nil
}

func (c *CallClient) remoteCandidate(p signaling.IceCandidatePayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle || c.peer != p.FromUserID {
		return nil
	}
	if !c.remoteSet {
		c.pending = append(c.pending, p.Candidate)
		return nil
	}
	return c.pc.AddICECandidate(p.Candidate)
}

// applyRemoteLocked sets the remote description and flushes candidates
// buffered before it.
func (c *CallClient) applyRemoteLocked(sdp json.RawMessage) error {
	if err := c.pc.SetRemoteDescription(sdp); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	c.remoteSet = true
	pending := c.pending
	c.pending = nil
	for _, cand := range pending {
		if err := c.pc.AddICECandidate(cand); err != nil {
			return fmt.Errorf("add buffered candidate: %w", err)
		}
	}
	return nil
}

// endFrom returns to Idle when the event concerns the current peer. A zero
// peer matches any call.
func (c *CallClient) endFrom(peer uint, reason string) {
	c.mu.Lock()
	if c.state == Idle || (peer != 0 && peer != c.peer) {
		c.mu.Unlock()
		return
	}
	ended := c.peer
	c.resetLocked()
	c.mu.Unlock()

	c.observer.OnCallEnded(ended, reason)
}

func (c *CallClient) resetIf(peer uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peer == peer {
		c.resetLocked()
	}
}

func (c *CallClient) resetLocked() {
	c.state = Idle
	c.peer = 0
	c.isVideo = false
	c.remoteOffer = nil
	c.remoteSet = false
	c.pending = nil
}
