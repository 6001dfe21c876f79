package channel

import (
	"errors"
	"fmt"

	"github.com/kgellert/hodatay-client/internal/domain/conversation"
	"github.com/kgellert/hodatay-client/internal/domain/message"
	"github.com/kgellert/hodatay-client/internal/domain/user"
)

type EventType string

const (
	EventNewMessage      EventType = "newMessage"
	EventNewConversation EventType = "newConversation"
	EventMemberAdded     EventType = "userAddedToGroup"
	EventMemberRemoved   EventType = "userRemovedFromGroup"
	EventGroupDeleted    EventType = "groupDeleted"
	EventUserUpdated     EventType = "userUpdated"
)

var ErrInvalidEvent = errors.New("invalid event")

// Event is the closed union of everything the server pushes over the
// channel. Exactly the payload fields for the given Type are set; Validate
// enforces that before an event crosses into the engine.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversationId,omitempty"`

	Message      *message.Message           `json:"message,omitempty"`
	Conversation *conversation.Conversation `json:"conversation,omitempty"`
	AddedUserID  string                     `json:"addedUser,omitempty"`
	AddedByID    string                     `json:"addedByUser,omitempty"`
	UserID       string                     `json:"userId,omitempty"`
	User         *user.Profile              `json:"user,omitempty"`
}

func (e *Event) Validate() error {
	switch e.Type {
	case EventNewMessage:
		if e.ConversationID == "" || e.Message == nil {
			return fmt.Errorf("%w: %s requires conversationId and message", ErrInvalidEvent, e.Type)
		}
	case EventNewConversation:
		if e.Conversation == nil || e.Conversation.ID == "" {
			return fmt.Errorf("%w: %s requires conversation", ErrInvalidEvent, e.Type)
		}
	case EventMemberAdded:
		if e.ConversationID == "" || e.AddedUserID == "" {
			return fmt.Errorf("%w: %s requires conversationId and addedUser", ErrInvalidEvent, e.Type)
		}
	case EventMemberRemoved:
		if e.ConversationID == "" || e.UserID == "" {
			return fmt.Errorf("%w: %s requires conversationId and userId", ErrInvalidEvent, e.Type)
		}
	case EventGroupDeleted:
		if e.ConversationID == "" {
			return fmt.Errorf("%w: %s requires conversationId", ErrInvalidEvent, e.Type)
		}
	case EventUserUpdated:
		if e.User == nil || e.User.ID == "" {
			return fmt.Errorf("%w: %s requires user", ErrInvalidEvent, e.Type)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}

	return nil
}

// subscribeFrame is the client->server control message joining rooms.
type subscribeFrame struct {
	Type            string   `json:"type"`
	ConversationIDs []string `json:"conversation_ids"`
}
