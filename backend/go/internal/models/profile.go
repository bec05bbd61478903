package models

import (
	"sort"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Answers maps a question key to the user's answer. Iteration follows insertion
// order, which is also the order the persona prompt renders them in.
type Answers = orderedmap.OrderedMap[string, string]

// NewAnswers returns an empty answer set.
func NewAnswers() *Answers {
	return orderedmap.New[string, string]()
}

// AnswersFromPairs builds an answer set from alternating key/value strings.
// A trailing key without a value is ignored.
func AnswersFromPairs(kv ...string) *Answers {
	a := NewAnswers()
	for i := 0; i+1 < len(kv); i += 2 {
		a.Set(kv[i], kv[i+1])
	}
	return a
}

// CloneAnswers returns a copy that shares nothing with src. A nil src yields an
// empty set.
func CloneAnswers(src *Answers) *Answers {
	dst := NewAnswers()
	if src == nil {
		return dst
	}
	for pair := src.Oldest(); pair != nil; pair = pair.Next() {
		dst.Set(pair.Key, pair.Value)
	}
	return dst
}

// Profile 是用户人格档案的持久化记录。
type Profile struct {
	ID        string    `json:"id"`
	Answers   *Answers  `json:"answers"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	return &Profile{
		ID:        p.ID,
		Answers:   CloneAnswers(p.Answers),
		CreatedAt: p.CreatedAt,
	}
}

// FactSet holds the facts extracted from one utterance. It is never persisted
// on its own; only its effect on Profile.Answers is.
type FactSet map[string]string

// Keys returns the fact keys in sorted order so merges append new keys
// deterministically.
func (f FactSet) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MergeFacts overlays facts onto answers in place: existing keys keep their
// position and take the new value, new keys are appended.
func MergeFacts(answers *Answers, facts FactSet) {
	for _, k := range facts.Keys() {
		answers.Set(k, facts[k])
	}
}

// AddMissingFacts sets only the facts whose key is not in answers yet and
// reports whether anything was added.
func AddMissingFacts(answers *Answers, facts FactSet) bool {
	added := false
	for _, k := range facts.Keys() {
		if _, exists := answers.Get(k); exists {
			continue
		}
		answers.Set(k, facts[k])
		added = true
	}
	return added
}
