package models

import (
	"strings"
	"time"
)

// SpeakerRole 定义了消息发送者的角色。
type SpeakerRole string

const (
	SpeakerUser  SpeakerRole = "user"  // 用户角色。
	SpeakerModel SpeakerRole = "model" // 模型角色。
)

// Content 包含了构成单个消息的多个部分。
type Content struct {
	// 可选。构成单个消息的部分列表。
	Parts []*Part `json:"parts,omitempty"`
	// 可选。内容的生产者。必须是 'user' 或 'model'。
	Role SpeakerRole `json:"role,omitempty"`
}

// Part 定义了消息的单个部分。人格对话只使用文本。
type Part struct {
	Text string `json:"text,omitempty"`
}

// GenerateContentRequest 定义了生成内容的请求结构。
type GenerateContentRequest struct {
	Content []Content `json:"content,omitempty"` // 请求的内容列表。
}

// NewTextRequest 构造只包含一段用户文本的请求。
func NewTextRequest(prompt string) *GenerateContentRequest {
	return &GenerateContentRequest{
		Content: []Content{{
			Role:  SpeakerUser,
			Parts: []*Part{{Text: prompt}},
		}},
	}
}

// GenerateContentResponse 定义了生成内容的响应结构。
type GenerateContentResponse struct {
	Content      []Content `json:"content,omitempty"`      // 响应的内容列表。
	CreateTime   time.Time `json:"createTime,omitempty"`   // 响应创建时间。
	ResponseID   string    `json:"responseId,omitempty"`   // 响应ID。
	ModelVersion string    `json:"modelVersion,omitempty"` // 模型版本。
}

// Text concatenates the text parts of the first content entry, which is the
// first candidate for providers that return several. A nil response yields "".
func (r *GenerateContentResponse) Text() string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Content[0].Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}
