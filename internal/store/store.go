package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kgellert/hodatay-client/internal/directory"
	"github.com/kgellert/hodatay-client/internal/domain/conversation"
	"github.com/kgellert/hodatay-client/internal/domain/message"
)

var ErrConversationNotFound = errors.New("conversation not found")

type MembershipAction string

const (
	MemberAdded   MembershipAction = "added"
	MemberRemoved MembershipAction = "removed"
)

type Lister interface {
	GetConversations(ctx context.Context) ([]conversation.Conversation, error)
}

// Store is the canonical holder of the signed-in user's conversations. Every
// write goes through one of its mutators; each mutator takes the lock, so a
// mutation is atomic against the current snapshot. Readers get clones.
type Store struct {
	userID    string
	api       Lister
	directory *directory.Cache
	log       *slog.Logger

	mu            sync.Mutex
	conversations []conversation.Conversation
}

func New(userID string, api Lister, dir *directory.Cache, log *slog.Logger) *Store {
	return &Store{
		userID:    userID,
		api:       api,
		directory: dir,
		log:       log,
	}
}

func (s *Store) UserID() string { return s.userID }

// Refresh replaces state with the authoritative list. Local optimistic
// entries survive when they are strictly newer than the refreshed row for
// the same id (or absent from it entirely), resolved by the same Merge rule
// events use.
func (s *Store) Refresh(ctx context.Context) (int, error) {
	const op = "store.Refresh"

	fetched, err := s.api.GetConversations(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]conversation.Conversation, 0, len(fetched))
	seen := make(map[string]int, len(fetched))

	for _, conv := range fetched {
		s.normalizeUnread(&conv)
		if _, dup := seen[conv.ID]; dup {
			continue
		}
		seen[conv.ID] = len(next)
		next = append(next, conv)
	}

	for _, cur := range s.conversations {
		if i, ok := seen[cur.ID]; ok {
			next[i] = conversation.Merge(cur, next[i])
			continue
		}
		if cur.Local {
			next = append(next, cur)
		}
	}

	s.conversations = next
	s.sortLocked()

	return len(fetched), nil
}

// ApplyNewMessage upserts the last-message summary. Stale events (createdAt
// older than the current lastChange) leave both the summary and the sort key
// untouched; unread still only moves forward for fresh events. Returns false
// when the conversation is unknown so the caller can schedule a re-sync.
func (s *Store) ApplyNewMessage(conversationID string, msg message.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(conversationID)
	if conv == nil {
		s.log.Debug("message for unknown conversation", slog.String("conversation_id", conversationID))
		return false
	}

	if msg.CreatedAt.Before(conv.LastChange) {
		return true
	}

	m := msg
	conv.LastMessage = &m
	conv.LastChange = msg.CreatedAt
	conv.Local = false

	for _, member := range conv.Members() {
		if member == msg.SenderID {
			continue
		}
		s.bumpUnreadLocked(conv, member)
	}

	s.sortLocked()

	return true
}

// ApplyLocalMessage records an optimistic send before the server ack: the
// summary and sort key move immediately, the entry is flagged Local so a
// later Refresh cannot silently roll it back.
func (s *Store) ApplyLocalMessage(conversationID, content, msgType string) (message.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(conversationID)
	if conv == nil {
		return message.Message{}, false
	}

	msg := message.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       s.userID,
		Content:        content,
		Type:           msgType,
		CreatedAt:      time.Now(),
	}

	conv.LastMessage = &msg
	conv.LastChange = msg.CreatedAt
	conv.Local = true

	s.sortLocked()

	return msg, true
}

// ApplyMembershipChange moves userID between the active and former member
// sets. Removing the current user hides the conversation from views at once;
// the entry itself stays until the next refresh or group deletion.
func (s *Store) ApplyMembershipChange(conversationID, userID string, action MembershipAction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(conversationID)
	if conv == nil {
		s.log.Debug("membership change for unknown conversation",
			slog.String("conversation_id", conversationID))
		return false
	}

	switch action {
	case MemberAdded:
		if i := slices.Index(conv.FormerMembers, userID); i >= 0 {
			conv.FormerMembers = slices.Delete(conv.FormerMembers, i, i+1)
		}
		if conv.IsGroup && !slices.Contains(conv.GroupMembers, userID) {
			conv.GroupMembers = append(conv.GroupMembers, userID)
		}
	case MemberRemoved:
		if conv.IsGroup {
			if i := slices.Index(conv.GroupMembers, userID); i >= 0 {
				conv.GroupMembers = slices.Delete(conv.GroupMembers, i, i+1)
			}
		}
		if !slices.Contains(conv.FormerMembers, userID) {
			conv.FormerMembers = append(conv.FormerMembers, userID)
		}
	}

	return true
}

// ApplyNewConversation inserts at the head of the list. Duplicate delivery
// from overlapping channels is absorbed: an existing id wins and the call
// reports false.
func (s *Store) ApplyNewConversation(conv conversation.Conversation) bool {
	if conv.ID == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(conv.ID) != nil {
		return false
	}

	s.normalizeUnread(&conv)
	s.conversations = append([]conversation.Conversation{conv}, s.conversations...)
	s.sortLocked()

	return true
}

// ApplyGroupDeleted removes the conversation entirely.
func (s *Store) ApplyGroupDeleted(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			s.conversations = slices.Delete(s.conversations, i, i+1)
			return true
		}
	}

	return false
}

// MarkRead zeroes the current user's unread entry only; other members'
// counters are server-owned state and never touched from here.
func (s *Store) MarkRead(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(conversationID)
	if conv == nil {
		return false
	}

	for i := range conv.Unread {
		if conv.Unread[i].UserID == s.userID {
			conv.Unread[i].Count = 0
			return true
		}
	}

	return true
}

func (s *Store) findLocked(id string) *conversation.Conversation {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return &s.conversations[i]
		}
	}
	return nil
}

func (s *Store) bumpUnreadLocked(conv *conversation.Conversation, userID string) {
	for i := range conv.Unread {
		if conv.Unread[i].UserID == userID {
			conv.Unread[i].Count++
			return
		}
	}
	conv.Unread = append(conv.Unread, conversation.UnreadEntry{UserID: userID, Count: 1})
}

// normalizeUnread attributes a bare-integer unread (entry with no user id)
// to the current user and collapses duplicates, so every later mutation can
// address counters per user.
func (s *Store) normalizeUnread(conv *conversation.Conversation) {
	if len(conv.Unread) == 0 {
		return
	}

	merged := make(conversation.UnreadList, 0, len(conv.Unread))
	index := make(map[string]int, len(conv.Unread))

	for _, e := range conv.Unread {
		if e.UserID == "" {
			e.UserID = s.userID
		}
		if i, ok := index[e.UserID]; ok {
			if e.Count > merged[i].Count {
				merged[i].Count = e.Count
			}
			continue
		}
		index[e.UserID] = len(merged)
		merged = append(merged, e)
	}

	conv.Unread = merged
}

// sortLocked keeps the list ordered the way a messenger renders it: latest
// activity first, conversations with no activity after all the rest, ties
// left in place.
func (s *Store) sortLocked() {
	slices.SortStableFunc(s.conversations, func(a, b conversation.Conversation) int {
		aEmpty, bEmpty := a.LastChange.IsZero(), b.LastChange.IsZero()
		switch {
		case aEmpty && bEmpty:
			return 0
		case aEmpty:
			return 1
		case bEmpty:
			return -1
		case a.LastChange.After(b.LastChange):
			return -1
		case b.LastChange.After(a.LastChange):
			return 1
		default:
			return 0
		}
	})
}

// Visible returns the rendered view: no soft-deleted entries, nothing the
// current user has left or been removed from. Entries are clones.
func (s *Store) Visible() []conversation.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]conversation.Conversation, 0, len(s.conversations))
	for i := range s.conversations {
		if !s.conversations[i].VisibleTo(s.userID) {
			continue
		}
		out = append(out, s.conversations[i].Clone())
	}

	return out
}

func (s *Store) Get(conversationID string) (conversation.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv := s.findLocked(conversationID); conv != nil {
		return conv.Clone(), true
	}

	return conversation.Conversation{}, false
}

func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.conversations))
	for i := range s.conversations {
		ids = append(ids, s.conversations[i].ID)
	}

	return ids
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.conversations)
}

func (s *Store) UnreadCount(conversationID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv := s.findLocked(conversationID); conv != nil {
		return conv.UnreadFor(s.userID)
	}

	return 0
}

// DisplayTitle resolves what the list renders for a conversation: the group
// name when set, otherwise names derived from the members via the directory
// cache (which degrades to a placeholder, never an error).
func (s *Store) DisplayTitle(conv conversation.Conversation) string {
	if conv.IsGroup {
		if conv.GroupName != "" {
			return conv.GroupName
		}
		names := make([]string, 0, len(conv.GroupMembers))
		for _, id := range conv.GroupMembers {
			names = append(names, s.directory.DisplayName(id))
		}
		return strings.Join(names, ", ")
	}

	other := conv.CreatorID
	if other == s.userID {
		other = conv.ReceiverID
	}

	return s.directory.DisplayName(other)
}

func (s *Store) DisplayAvatar(conv conversation.Conversation) string {
	if conv.IsGroup {
		return conv.GroupAvatarURL
	}

	other := conv.CreatorID
	if other == s.userID {
		other = conv.ReceiverID
	}

	return s.directory.AvatarURL(other)
}
