package signaling

import (
	"encoding/json"
	"time"

	"github.com/okemsocial/okem_social/models"
)

// Client to server actions.
const (
	ActionCallUser         = "CallUser"
	ActionAnswerCall       = "AnswerCall"
	ActionSendIceCandidate = "SendIceCandidate"
	ActionHangUp           = "HangUp"
	ActionRejectCall       = "RejectCall"
	ActionToggleVideo      = "ToggleVideo"
	ActionToggleAudio      = "ToggleAudio"

	ActionSendMessage      = "SendMessage"
	ActionTyping           = "Typing"
	ActionSeen             = "Seen"
	ActionJoinConversation = "JoinConversation"

	ActionJoinPost  = "JoinPost"
	ActionLeavePost = "LeavePost"
)

// Server to client events.
const (
	EventIncomingCall         = "IncomingCall"
	EventCallAnswered         = "CallAnswered"
	EventIceCandidateReceived = "IceCandidateReceived"
	EventCallEnded            = "CallEnded"
	EventCallRejected         = "CallRejected"
	EventCallError            = "CallError"
	EventCallTimeout          = "CallTimeout"
	EventCallClaimed          = "CallClaimed"
	EventPeerVideoToggled     = "PeerVideoToggled"
	EventPeerAudioToggled     = "PeerAudioToggled"

	EventReceiveMessage = "ReceiveMessage"
	EventUserTyping     = "UserTyping"
	EventMessageSeen    = "MessageSeen"

	EventNotificationReceived = "NotificationReceived"

	EventError = "Error"
)

const (
	ReasonHangup       = "hangup"
	ReasonDisconnected = "disconnected"
	ReasonTimeout      = "timeout"
)

type IncomingCallPayload struct {
	FromUserID uint            `json:"from_user_id"`
	Offer      json.RawMessage `json:"offer"`
	IsVideo    bool            `json:"is_video"`
}

type CallAnsweredPayload struct {
	FromUserID uint            `json:"from_user_id"`
	Answer     json.RawMessage `json:"answer"`
}

type IceCandidatePayload struct {
	FromUserID uint            `json:"from_user_id"`
	Candidate  json.RawMessage `json:"candidate"`
}

type CallEndedPayload struct {
	FromUserID uint   `json:"from_user_id"`
	Reason     string `json:"reason"`
}

type CallRejectedPayload struct {
	FromUserID uint `json:"from_user_id"`
}

type CallTimeoutPayload struct {
	TargetUserID uint `json:"target_user_id"`
}

// CallClaimedPayload tells a user's other devices that the call from
// FromUserID was answered elsewhere.
type CallClaimedPayload struct {
	FromUserID uint `json:"from_user_id"`
}

type PeerTogglePayload struct {
	FromUserID uint `json:"from_user_id"`
	Enabled    bool `json:"enabled"`
}

type CallErrorPayload struct {
	Message string `json:"message"`
	Code    Code   `json:"code"`
}

type ErrorPayload struct {
	Action  string `json:"action,omitempty"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

type SenderPayload struct {
	ID        uint    `json:"id"`
	Email     string  `json:"email"`
	FullName  string  `json:"full_name"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

type MessagePayload struct {
	ID              uint          `json:"id"`
	ConversationID  uint          `json:"conversation_id"`
	Sender          SenderPayload `json:"sender"`
	Content         *string       `json:"content"`
	AttachmentURL   *string       `json:"attachment_url"`
	CreatedAt       time.Time     `json:"created_at"`
	IsDeleted       bool          `json:"is_deleted"`
	IsMine          bool          `json:"is_mine"`
	ClientMessageID string        `json:"client_message_id,omitempty"`
}

func NewMessagePayload(msg *models.Message, viewerID uint) MessagePayload {
	p := MessagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Sender:         SenderPayload{ID: msg.SenderID},
		Content:        msg.Content,
		AttachmentURL:  msg.AttachmentURL,
		CreatedAt:      msg.CreatedAt,
		IsDeleted:      msg.IsDeleted,
		IsMine:         viewerID != 0 && viewerID == msg.SenderID,
	}
	if msg.Sender != nil {
		p.Sender.Email = msg.Sender.Email
		p.Sender.FullName = msg.Sender.FullName
		p.Sender.AvatarURL = msg.Sender.AvatarURL
	}
	return p
}

type TypingPayload struct {
	UserID         uint `json:"user_id"`
	ConversationID uint `json:"conversation_id"`
}

type SeenPayload struct {
	UserID         uint `json:"user_id"`
	ConversationID uint `json:"conversation_id"`
	MessageID      uint `json:"message_id"`
}

type NotificationPayload struct {
	ID        uint      `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	URL       *string   `json:"url"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

func NewNotificationPayload(n *models.Notification) NotificationPayload {
	return NotificationPayload{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Content:   n.Content,
		URL:       n.URL,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}
