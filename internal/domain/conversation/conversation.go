package conversation

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/kgellert/hodatay-client/internal/domain/message"
)

type UnreadEntry struct {
	UserID string `json:"userId"`
	Count  int64  `json:"count"`
}

// UnreadList accepts both wire shapes: a bare integer (older backends,
// attributed to the current user by the store) and a per-user list.
type UnreadList []UnreadEntry

func (u *UnreadList) UnmarshalJSON(data []byte) error {
	var entries []UnreadEntry
	if err := json.Unmarshal(data, &entries); err == nil {
		*u = entries
		return nil
	}

	var count int64
	if err := json.Unmarshal(data, &count); err != nil {
		return fmt.Errorf("unread: neither list nor count: %w", err)
	}

	*u = UnreadList{{Count: count}}
	return nil
}

type Conversation struct {
	ID             string     `json:"conversationId"`
	CreatorID      string     `json:"creatorId"`
	ReceiverID     string     `json:"receiverId,omitempty"`
	IsGroup        bool       `json:"isGroup"`
	GroupMembers   []string   `json:"groupMembers,omitempty"`
	FormerMembers  []string   `json:"formerMembers,omitempty"`
	GroupName      string     `json:"groupName,omitempty"`
	GroupAvatarURL string     `json:"groupAvatarUrl,omitempty"`

	LastMessage *message.Message `json:"lastMessage,omitempty"`
	LastChange  time.Time        `json:"lastChange"`

	Unread UnreadList `json:"unread,omitempty"`

	IsDeleted bool       `json:"isDeleted,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`

	PinnedMessages    []string `json:"pinnedMessages,omitempty"`
	MuteNotifications []string `json:"muteNotifications,omitempty"`
	ListImage         []string `json:"listImage,omitempty"`
	ListFile          []string `json:"listFile,omitempty"`

	// Local means the entry was created optimistically on this client and
	// has not been confirmed by the server yet.
	Local bool `json:"-"`
}

// Members returns the active member ids: creator and receiver for a direct
// chat, the member list for a group.
func (c *Conversation) Members() []string {
	if c.IsGroup {
		return c.GroupMembers
	}
	members := []string{c.CreatorID}
	if c.ReceiverID != "" && c.ReceiverID != c.CreatorID {
		members = append(members, c.ReceiverID)
	}
	return members
}

func (c *Conversation) IsMember(userID string) bool {
	return slices.Contains(c.Members(), userID)
}

func (c *Conversation) IsFormerMember(userID string) bool {
	return slices.Contains(c.FormerMembers, userID)
}

// VisibleTo reports whether the conversation belongs in userID's rendered
// list: soft-deleted entries and entries the user has left or been removed
// from stay in the store but are never shown.
func (c *Conversation) VisibleTo(userID string) bool {
	return !c.IsDeleted && !c.IsFormerMember(userID)
}

func (c *Conversation) UnreadFor(userID string) int64 {
	for _, e := range c.Unread {
		if e.UserID == userID {
			return e.Count
		}
	}
	return 0
}

func (c *Conversation) HasUnread(userID string) bool {
	return c.UnreadFor(userID) > 0
}

// Clone returns a copy safe to hand to read-only consumers.
func (c *Conversation) Clone() Conversation {
	out := *c
	out.GroupMembers = slices.Clone(c.GroupMembers)
	out.FormerMembers = slices.Clone(c.FormerMembers)
	out.Unread = slices.Clone(c.Unread)
	out.PinnedMessages = slices.Clone(c.PinnedMessages)
	out.MuteNotifications = slices.Clone(c.MuteNotifications)
	out.ListImage = slices.Clone(c.ListImage)
	out.ListFile = slices.Clone(c.ListFile)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	if c.DeletedAt != nil {
		t := *c.DeletedAt
		out.DeletedAt = &t
	}
	return out
}
