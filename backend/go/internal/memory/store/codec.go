package store

import (
	"encoding/json"
	"fmt"

	"PersonaGen/backend/go/internal/models"
)

// 文件与 Redis 后端共用的 JSON 编码，格式为 {"id","answers","createdAt"}。

func encodeProfile(p *models.Profile) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	return data, nil
}

func decodeProfile(data []byte) (*models.Profile, error) {
	p := &models.Profile{Answers: models.NewAnswers()}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if p.Answers == nil {
		p.Answers = models.NewAnswers()
	}
	return p, nil
}

func encodeMessage(msg *models.ChatMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

func decodeMessage(data []byte) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}
