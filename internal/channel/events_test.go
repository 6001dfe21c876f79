package channel

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kgellert/hodatay-client/internal/domain/conversation"
	"github.com/kgellert/hodatay-client/internal/domain/message"
	"github.com/kgellert/hodatay-client/internal/domain/user"
)

func TestEventValidate(t *testing.T) {
	msg := &message.Message{ID: "m1", SenderID: "u1", CreatedAt: time.Now()}
	conv := &conversation.Conversation{ID: "c1", CreatorID: "u1"}

	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{
			name:  "valid new message",
			event: Event{Type: EventNewMessage, ConversationID: "c1", Message: msg},
		},
		{
			name:    "new message without payload",
			event:   Event{Type: EventNewMessage, ConversationID: "c1"},
			wantErr: true,
		},
		{
			name:    "new message without conversation id",
			event:   Event{Type: EventNewMessage, Message: msg},
			wantErr: true,
		},
		{
			name:  "valid new conversation",
			event: Event{Type: EventNewConversation, Conversation: conv},
		},
		{
			name:    "new conversation without id",
			event:   Event{Type: EventNewConversation, Conversation: &conversation.Conversation{}},
			wantErr: true,
		},
		{
			name:  "valid member added",
			event: Event{Type: EventMemberAdded, ConversationID: "c1", AddedUserID: "u2"},
		},
		{
			name:    "member added without user",
			event:   Event{Type: EventMemberAdded, ConversationID: "c1"},
			wantErr: true,
		},
		{
			name:  "valid member removed",
			event: Event{Type: EventMemberRemoved, ConversationID: "c1", UserID: "u2"},
		},
		{
			name:  "valid group deleted",
			event: Event{Type: EventGroupDeleted, ConversationID: "c1"},
		},
		{
			name:  "valid user updated",
			event: Event{Type: EventUserUpdated, User: &user.Profile{ID: "u1"}},
		},
		{
			name:    "unknown type",
			event:   Event{Type: "presenceChanged", ConversationID: "c1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() succeeded unexpectedly")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() failed: %v", err)
			}
		})
	}
}

func TestEventRoundTrip(t *testing.T) {
	in := Event{
		Type:           EventNewMessage,
		ConversationID: "c1",
		Message: &message.Message{
			ID:        "m1",
			SenderID:  "u1",
			Content:   "hi",
			CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out Event
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if err := out.Validate(); err != nil {
		t.Fatalf("decoded event invalid: %v", err)
	}
	if out.Message.Content != "hi" {
		t.Errorf("content = %q", out.Message.Content)
	}
}
