// Package extractor 从用户的一句话中抽取结构化的个人事实。
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"PersonaGen/backend/go/internal/models"
	"PersonaGen/backend/go/pkg/logger"
)

// maxFacts caps how many facts one utterance can contribute.
const maxFacts = 20

const instruction = `Extract personal facts about the user from the message below.
Return ONLY a flat JSON object mapping short snake_case keys to short string values,
for example {"favorite_food": "sushi", "city": "Lisbon"}.
Only include facts the user states about themselves. If there are none, return {}.

Message: %s`

// Completer 是抽取器对补全服务的依赖。
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Extractor turns one utterance into a FactSet. It never fails: any problem
// with the completion call or its output yields an empty set.
type Extractor struct {
	completer Completer
	log       *logger.Logger
}

// New creates an Extractor backed by completer.
func New(completer Completer, log *logger.Logger) *Extractor {
	return &Extractor{completer: completer, log: log}
}

// Extract asks the completion service for the facts in utterance.
func (e *Extractor) Extract(ctx context.Context, utterance string) models.FactSet {
	if strings.TrimSpace(utterance) == "" {
		return models.FactSet{}
	}

	text, err := e.completer.Complete(ctx, BuildPrompt(utterance))
	if err != nil {
		e.log.WithError(models.NewErrorInfo(err, "extraction_error")).Warn("fact extraction call failed")
		return models.FactSet{}
	}

	facts := ParseFacts(text)
	if len(facts) == 0 {
		e.log.Debug("no facts extracted")
	}
	return facts
}

// BuildPrompt renders the fixed extraction instruction around utterance.
func BuildPrompt(utterance string) string {
	return fmt.Sprintf(instruction, utterance)
}

// ParseFacts parses untrusted completion output. Code fences are stripped,
// then the whole text and finally the outermost {...} span are tried.
// Numbers and booleans are stringified; nested values, nulls and blank keys or
// values are dropped. Anything unparseable yields an empty set.
func ParseFacts(text string) models.FactSet {
	raw := parseJSONObject(text)
	facts := models.FactSet{}
	for k, v := range raw {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		value, ok := scalarString(v)
		if !ok || value == "" {
			continue
		}
		facts[key] = value
	}
	if len(facts) > maxFacts {
		keep := facts.Keys()[:maxFacts]
		trimmed := make(models.FactSet, maxFacts)
		for _, k := range keep {
			trimmed[k] = facts[k]
		}
		facts = trimmed
	}
	return facts
}

func parseJSONObject(text string) map[string]interface{} {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		var cleaned []string
		for _, l := range lines {
			if !strings.HasPrefix(strings.TrimSpace(l), "```") {
				cleaned = append(cleaned, l)
			}
		}
		text = strings.TrimSpace(strings.Join(cleaned, "\n"))
	}

	var result map[string]interface{}
	if json.Unmarshal([]byte(text), &result) == nil && result != nil {
		return result
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		result = nil
		if json.Unmarshal([]byte(text[start:end+1]), &result) == nil && result != nil {
			return result
		}
	}
	return nil
}

func scalarString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}
