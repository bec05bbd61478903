// Package prompt 根据人格档案构建发送给补全服务的提示词。
package prompt

import (
	"errors"
	"strings"

	"PersonaGen/backend/go/internal/models"
)

// ErrNilProfile is returned when Build is called without a profile.
var ErrNilProfile = errors.New("prompt: profile is nil")

const (
	header = "You are an AI personality twin that mimics the user's communication style and personality. Here's their personality profile:\n\n"
	frame  = "\n\nBased on this personality profile, respond to messages in a way that matches their tone, decision-making style, and communication preferences. Be conversational and authentic to their personality.\n\nUser message: "
)

// Build renders the persona prompt: one "key: value" line per answer in the
// profile's order, the instruction frame, then utterance verbatim.
func Build(profile *models.Profile, utterance string) (string, error) {
	if profile == nil {
		return "", ErrNilProfile
	}

	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString(Context(profile.Answers))
	sb.WriteString(frame)
	sb.WriteString(utterance)
	return sb.String(), nil
}

// Context renders answers as newline separated "key: value" lines.
func Context(answers *models.Answers) string {
	if answers == nil {
		return ""
	}
	lines := make([]string, 0, answers.Len())
	for pair := answers.Oldest(); pair != nil; pair = pair.Next() {
		lines = append(lines, pair.Key+": "+pair.Value)
	}
	return strings.Join(lines, "\n")
}
