package models

import "time"

// TurnEvent 在一轮对话成功完成后发布，供下游分析使用。
type TurnEvent struct {
	ProfileID    string       `json:"profileId"`
	UserMessage  *ChatMessage `json:"userMessage"`
	BotMessage   *ChatMessage `json:"botMessage"`
	FactsLearned FactSet      `json:"factsLearned,omitempty"`
	// Degraded 表示回复来自兜底文案而不是补全服务。
	Degraded   bool      `json:"degraded"`
	OccurredAt time.Time `json:"occurredAt"`
}
