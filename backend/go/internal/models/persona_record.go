package models

import (
	"time"

	"gorm.io/datatypes"
)

// --- MySQL 持久化模型 ---

// ProfileRecord 是 Profile 在关系型数据库中的行结构。
// Answers 以 JSON 对象保存，键顺序与 Profile.Answers 一致。
type ProfileRecord struct {
	ID        string         `gorm:"primaryKey;size:64"`
	Answers   datatypes.JSON `gorm:"type:longtext;not null"` // MySQL 的 JSON 类型会重排键，这里按原文保存
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time
}

// ChatMessageRecord 是聊天记录中的一行。Seq 自增，决定追加顺序。
type ChatMessageRecord struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement"`
	ProfileID string    `gorm:"index:idx_chat_profile;not null;size:64"`
	MessageID string    `gorm:"not null;size:32"`
	Text      string    `gorm:"type:text;not null"`
	Sender    Sender    `gorm:"type:varchar(8);not null"`
	Timestamp time.Time `gorm:"not null"`
}

// --- 自定义表名 ---

func (ProfileRecord) TableName() string {
	return "persona_profiles"
}

func (ChatMessageRecord) TableName() string {
	return "persona_chat_messages"
}

// ToChatMessage converts the row back to the domain message.
func (r *ChatMessageRecord) ToChatMessage() *ChatMessage {
	return &ChatMessage{
		ID:        r.MessageID,
		Text:      r.Text,
		Sender:    r.Sender,
		Timestamp: r.Timestamp,
	}
}
