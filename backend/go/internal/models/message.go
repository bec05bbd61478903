package models

import (
	"time"

	"github.com/rs/xid"
)

// Sender 标识聊天消息的发送方。
type Sender string

const (
	SenderUser Sender = "user" // 用户发送的消息
	SenderBot  Sender = "bot"  // 人格分身生成的回复
)

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderBot
}

// ChatMessage 是某个档案聊天记录中的一条消息。
type ChatMessage struct {
	// ID 由创建时间派生，在同一份聊天记录内唯一且可排序。
	ID        string    `json:"id" bson:"id"`
	Text      string    `json:"text" bson:"text"`
	Sender    Sender    `json:"sender" bson:"sender"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// NewChatMessage creates an unsaved message with a fresh time-ordered id.
// The store sets Timestamp when the message is persisted.
func NewChatMessage(sender Sender, text string) *ChatMessage {
	return &ChatMessage{
		ID:     NewMessageID(),
		Text:   text,
		Sender: sender,
	}
}

// NewMessageID returns an id that sorts by creation time.
func NewMessageID() string {
	return xid.New().String()
}
