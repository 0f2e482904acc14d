package handlers

import (
	"context"
	"errors"
	"time"

	fiberws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2/log"
	"github.com/okemsocial/okem_social/middleware"
	"github.com/okemsocial/okem_social/signaling"
	"github.com/okemsocial/okem_social/websocket"
)

const (
	authFrameType  = "auth"
	authTimeout    = 10 * time.Second
	requestTimeout = 10 * time.Second
)

// SignalingHandler runs the read loops of the four websocket endpoints and
// dispatches inbound envelopes to the owning hub.
type SignalingHandler struct {
	calls        *signaling.CallManager
	callRegistry *websocket.Registry
	chat         *signaling.ChatHub
	notifier     *signaling.Notifier
	posts        *signaling.PostFeed

	// pongWait bounds how long a silent connection is kept. Zero disables
	// the read deadline.
	pongWait time.Duration
}

func NewSignalingHandler(calls *signaling.CallManager, callRegistry *websocket.Registry, chat *signaling.ChatHub, notifier *signaling.Notifier, posts *signaling.PostFeed, pongWait time.Duration) *SignalingHandler {
	return &SignalingHandler{
		calls:        calls,
		callRegistry: callRegistry,
		chat:         chat,
		notifier:     notifier,
		posts:        posts,
		pongWait:     pongWait,
	}
}

type endpoint struct {
	name       string
	registry   *websocket.Registry
	connect    func(ctx context.Context, c *websocket.Client) error
	dispatch   func(ctx context.Context, c *websocket.Client, env websocket.Envelope) error
	errorEvent func(action string, err error) websocket.Event
	disconnect func(c *websocket.Client)
}

func (h *SignalingHandler) ServeCall(conn *fiberws.Conn)          { h.serve(conn, h.callEndpoint()) }
func (h *SignalingHandler) ServeChat(conn *fiberws.Conn)          { h.serve(conn, h.chatEndpoint()) }
func (h *SignalingHandler) ServeNotifications(conn *fiberws.Conn) { h.serve(conn, h.notificationEndpoint()) }
func (h *SignalingHandler) ServePosts(conn *fiberws.Conn)         { h.serve(conn, h.postEndpoint()) }

func (h *SignalingHandler) callEndpoint() endpoint {
	return endpoint{
		name:       "call",
		registry:   h.callRegistry,
		dispatch:   h.dispatchCall,
		errorEvent: callErrorEvent,
		disconnect: h.disconnectCall,
	}
}

func (h *SignalingHandler) chatEndpoint() endpoint {
	return endpoint{
		name:       "chat",
		registry:   h.chat.Registry(),
		connect:    h.chat.Connect,
		dispatch:   h.dispatchChat,
		errorEvent: errorEvent,
		disconnect: func(c *websocket.Client) { h.chat.Disconnect(c) },
	}
}

func (h *SignalingHandler) notificationEndpoint() endpoint {
	return endpoint{
		name:     "notifications",
		registry: h.notifier.Registry(),
		connect: func(_ context.Context, c *websocket.Client) error {
			h.notifier.Connect(c)
			return nil
		},
		dispatch:   dispatchNone,
		errorEvent: errorEvent,
		disconnect: func(c *websocket.Client) { h.notifier.Disconnect(c) },
	}
}

func (h *SignalingHandler) postEndpoint() endpoint {
	return endpoint{
		name:       "posts",
		registry:   h.posts.Registry(),
		dispatch:   h.dispatchPosts,
		errorEvent: errorEvent,
		disconnect: func(c *websocket.Client) { h.posts.Registry().Unregister(c) },
	}
}

func (h *SignalingHandler) serve(conn *fiberws.Conn, ep endpoint) {
	userID, err := h.authenticate(conn)
	if err != nil {
		log.Warnf("[%s] websocket auth failed: %v", ep.name, err)
		_ = conn.WriteJSON(ep.errorEvent(authFrameType, signaling.ErrUnauthorized))
		_ = conn.Close()
		return
	}

	h.extendDeadline(conn)
	conn.SetPongHandler(func(string) error {
		h.extendDeadline(conn)
		return nil
	})

	client := ep.registry.Register(userID, conn)
	defer ep.disconnect(client)
	log.Infof("[%s] user %d connected (%s)", ep.name, userID, client.ID)

	if ep.connect != nil {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		err := ep.connect(ctx, client)
		cancel()
		if err != nil {
			log.Errorf("[%s] connect user %d: %v", ep.name, userID, err)
			ep.registry.SendToClient(client, ep.errorEvent("connect", err))
		}
	}

	for {
		var env websocket.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if fiberws.IsUnexpectedCloseError(err, fiberws.CloseGoingAway, fiberws.CloseNormalClosure) {
				log.Warnf("[%s] read error for user %d: %v", ep.name, userID, err)
			}
			return
		}
		h.extendDeadline(conn)
		if env.Type == authFrameType {
			continue
		}

		h.handle(ep, client, env)
	}
}

// handle dispatches one envelope. Failures go back to the sending
// connection only.
func (h *SignalingHandler) handle(ep endpoint, c *websocket.Client, env websocket.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	err := ep.dispatch(ctx, c, env)
	if err == nil {
		return
	}
	if signaling.CodeOf(err) == signaling.CodeInternal {
		log.Errorf("[%s] %s from user %d: %v", ep.name, env.Type, c.UserID, err)
	} else {
		log.Debugf("[%s] %s from user %d rejected: %v", ep.name, env.Type, c.UserID, err)
	}
	ep.registry.SendToClient(c, ep.errorEvent(env.Type, err))
}

// authenticate takes the identity resolved at upgrade time, or else reads
// a {"type":"auth","token":...} frame.
func (h *SignalingHandler) authenticate(conn *fiberws.Conn) (uint, error) {
	if id, ok := conn.Locals(middleware.LocalUserID).(uint); ok && id != 0 {
		return id, nil
	}

	_ = conn.SetReadDeadline(time.Now().Add(authTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var env websocket.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		return 0, err
	}
	if env.Type != authFrameType || env.Token == "" {
		return 0, errors.New("first frame must be an auth frame")
	}
	return middleware.UserIDFromToken(env.Token)
}

func (h *SignalingHandler) extendDeadline(conn *fiberws.Conn) {
	if h.pongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	}
}

func (h *SignalingHandler) disconnectCall(c *websocket.Client) {
	remaining := h.callRegistry.Unregister(c)
	h.calls.Disconnect(c.UserID, c.ID, remaining)
}

func (h *SignalingHandler) dispatchCall(_ context.Context, c *websocket.Client, env websocket.Envelope) error {
	switch env.Type {
	case signaling.ActionCallUser:
		var req signaling.CallUserRequest
		if err := signaling.Decode(env.Data, &req); err != nil {
			return err
		}
		return h.calls.CallUser(c.UserID, c.ID, req.TargetUserID, req.Offer, req.IsVideo)

	case signaling.ActionAnswerCall:
		var req signaling.AnswerCallRequest
		if err := signaling.Decode(env.Data, &req); err != nil {
			return err
		}
		return h.calls.AnswerCall(c.UserID, c.ID, req.CallerUserID, req.Answer)

	case signaling.ActionSendIceCandidate:
		var req signaling.IceCandidateRequest
		if err := signaling.Decode(env.Data, &req); err != nil {
			return err
		}
		return h.calls.SendIceCandidate(c.UserID, req.TargetUserID, req.Candidate)

	case signaling.ActionHangUp, signaling.ActionRejectCall:
		var req signaling.TargetRequest
		if err := signaling.Decode(env.Data, &req); err != nil {
			return err
		}
		if env.Type == signaling.ActionHangUp {
			return h.calls.HangUp(c.UserID, req.TargetUserID)
		}
		return h.calls.RejectCall(c.UserID, req.TargetUserID)

	case signaling.ActionToggleVideo, signaling.ActionToggleAudio:
		var req signaling.ToggleRequest
		if err := signaling.Decode(env.Data, &req); err != nil {
			return err
		}
		if env.Type == signaling.ActionToggleVideo {
			return h.calls.ToggleVideo(c.UserID, req.TargetUserID, req.Enabled)
		}
		return h.calls.ToggleAudio(c.UserID, req.TargetUserID, req.Enabled)
	}
	return unknownAction(env.Type)
}

func (h *SignalingHandler) dispatchChat(ctx context.Context, c *websocket.Client, env websocket.Envelope) error {
	switch env.Type {
	case signaling.ActionSendMessage:
		var req signaling.SendMessageRequest
		if err := signaling.Decode(env.Data, &req); err != nil {
			return err
		}
		_, err := h.chat.SendMessage(ctx, c, req)
		return err

	case signaling.ActionTyping:
		var req signaling.ConversationRequest
		if err := signaling.Decode(env.Data, &req); err != nil {
			return err
		}
		return h.chat.Typing(ctx, c, req.ConversationID)

	case signaling.ActionSeen:
		var req signaling.SeenRequest
		if err := signaling.Decode(env.Data, &req); err != nil {
			return err
		}
		return h.chat.Seen(ctx, c, req.ConversationID, req.MessageID)

	case signaling.ActionJoinConversation:
		var req signaling.ConversationRequest
		if err := signaling.Decode(env.Data, &req); err != nil {
			return err
		}
		return h.chat.JoinConversation(ctx, c, req.ConversationID)
	}
	return unknownAction(env.Type)
}

func (h *SignalingHandler) dispatchPosts(_ context.Context, c *websocket.Client, env websocket.Envelope) error {
	var req signaling.PostRequest
	switch env.Type {
	case signaling.ActionJoinPost:
		if err := signaling.Decode(env.Data, &req); err != nil {
			return err
		}
		return h.posts.JoinPost(c, req.PostID)
	case signaling.ActionLeavePost:
		if err := signaling.Decode(env.Data, &req); err != nil {
			return err
		}
		return h.posts.LeavePost(c, req.PostID)
	}
	return unknownAction(env.Type)
}

// The notification socket is push only.
func dispatchNone(_ context.Context, _ *websocket.Client, env websocket.Envelope) error {
	return unknownAction(env.Type)
}

func unknownAction(action string) error {
	return signaling.Errorf(signaling.CodeInvalidArgument, "unknown action %q", action)
}

func callErrorEvent(_ string, err error) websocket.Event {
	return websocket.Event{
		Type: signaling.EventCallError,
		Data: signaling.CallErrorPayload{Message: signaling.PublicMessage(err), Code: signaling.CodeOf(err)},
	}
}

func errorEvent(action string, err error) websocket.Event {
	return websocket.Event{
		Type: signaling.EventError,
		Data: signaling.ErrorPayload{Action: action, Code: signaling.CodeOf(err), Message: signaling.PublicMessage(err)},
	}
}
