package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/openhack/teamup/internal/platform/errors"
	"github.com/openhack/teamup/internal/platform/id"
)

const (
	// MaxMessageBodyRunes caps one chat message body.
	MaxMessageBodyRunes = 2000
	// MaxClientMessageIDRunes caps the sender-chosen idempotency key.
	MaxClientMessageIDRunes = 128
)

var (
	// ErrMessageBodyEmpty indicates an empty message body.
	ErrMessageBodyEmpty = apperrors.New(apperrors.CodeMessageBodyEmpty, "message body is required")
	// ErrMessageBodyTooLong indicates a body over the rune cap.
	ErrMessageBodyTooLong = apperrors.New(apperrors.CodeMessageBodyTooLong, "message body is too long")
	// ErrClientMessageIDInvalid indicates a missing or oversized client message id.
	ErrClientMessageIDInvalid = apperrors.New(apperrors.CodeInvalidArgument, "client_message_id is required and at most 128 characters")
)

// Message is one persisted chat message. Seq is assigned per room at append
// time and is strictly increasing within the room.
type Message struct {
	ID              string
	RoomID          RoomID
	Seq             int64
	SenderID        string
	SenderName      string
	Body            string
	ClientMessageID string
	SentAt          time.Time
}

// NewMessageInput describes one message before the store assigns its sequence.
type NewMessageInput struct {
	RoomID          RoomID
	SenderID        string
	SenderName      string
	Body            string
	ClientMessageID string
}

// NewMessage validates and builds an unsequenced message.
func NewMessage(input NewMessageInput, now func() time.Time, idGenerator func() (string, error)) (Message, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	body := strings.TrimSpace(input.Body)
	if body == "" {
		return Message{}, ErrMessageBodyEmpty
	}
	if utf8.RuneCountInString(body) > MaxMessageBodyRunes {
		return Message{}, ErrMessageBodyTooLong
	}
	clientMessageID := strings.TrimSpace(input.ClientMessageID)
	if clientMessageID == "" || utf8.RuneCountInString(clientMessageID) > MaxClientMessageIDRunes {
		return Message{}, ErrClientMessageIDInvalid
	}
	senderID := strings.TrimSpace(input.SenderID)
	if senderID == "" {
		return Message{}, apperrors.New(apperrors.CodeInvalidArgument, "sender id is required")
	}

	messageID, err := idGenerator()
	if err != nil {
		return Message{}, err
	}
	senderName := strings.TrimSpace(input.SenderName)
	if senderName == "" {
		senderName = senderID
	}
	return Message{
		ID:              messageID,
		RoomID:          input.RoomID,
		SenderID:        senderID,
		SenderName:      senderName,
		Body:            body,
		ClientMessageID: clientMessageID,
		SentAt:          now().UTC(),
	}, nil
}
