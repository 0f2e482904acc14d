package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Inbound payloads, one per client action. Field names follow the outbound
// events so clients can reuse their types.

type CallUserRequest struct {
	TargetUserID uint            `json:"target_user_id" validate:"required"`
	Offer        json.RawMessage `json:"offer" validate:"required"`
	IsVideo      bool            `json:"is_video"`
}

type AnswerCallRequest struct {
	CallerUserID uint            `json:"caller_user_id" validate:"required"`
	Answer       json.RawMessage `json:"answer" validate:"required"`
}

type IceCandidateRequest struct {
	TargetUserID uint            `json:"target_user_id" validate:"required"`
	Candidate    json.RawMessage `json:"candidate" validate:"required"`
}

type TargetRequest struct {
	TargetUserID uint `json:"target_user_id" validate:"required"`
}

type ToggleRequest struct {
	TargetUserID uint `json:"target_user_id" validate:"required"`
	Enabled      bool `json:"enabled"`
}

type SendMessageRequest struct {
	ConversationID  uint    `json:"conversation_id" validate:"required"`
	Content         *string `json:"content" validate:"omitempty,max=5000"`
	AttachmentURL   *string `json:"attachment_url" validate:"omitempty,url,max=2048"`
	ClientMessageID string  `json:"client_message_id" validate:"omitempty,max=64"`
}

type ConversationRequest struct {
	ConversationID uint `json:"conversation_id" validate:"required"`
}

type SeenRequest struct {
	ConversationID uint `json:"conversation_id" validate:"required"`
	MessageID      uint `json:"message_id" validate:"required"`
}

type PostRequest struct {
	PostID uint `json:"post_id" validate:"required"`
}

// Decode unmarshals an envelope payload into v and validates it.
func Decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return Errorf(CodeInvalidArgument, "missing payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return Errorf(CodeInvalidArgument, "malformed payload")
	}
	return validateStruct(v)
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Errorf(CodeInvalidArgument, "invalid payload")
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return Errorf(CodeInvalidArgument, "invalid payload: %s", strings.Join(fields, ", "))
}
