package message

import "time"

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	CreatedAt      time.Time `json:"createdAt"`
	DeliveredTo    []string  `json:"deliveredTo,omitempty"`
	ReadBy         []string  `json:"readBy,omitempty"`
}
