// Package analysis extracts learning signals from conversation text.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/knograph/knograph/pkg/llm"
	"github.com/knograph/knograph/pkg/logger"
	"github.com/knograph/knograph/pkg/store"
)

// ConceptFinding is one concept the analyzer observed in the conversation,
// with its estimated proficiency and the kind of learning signal.
type ConceptFinding struct {
	Name        string  `json:"name"`
	Proficiency float64 `json:"proficiency"`
	EventType   string  `json:"event_type"`
	Details     string  `json:"details"`
}

// Analysis is the structured result of analyzing a conversation.
//
// Misconceptions is a single string: models that answer with a list of
// misconceptions have it comma-joined by the JSON normalization layer
// (llm.FlattenStringArrays), so both shapes land here.
type Analysis struct {
	DetectedTopic        string           `json:"detected_topic"`
	OverallUnderstanding float64          `json:"overall_understanding"`
	Misconceptions       string           `json:"misconceptions"`
	Concepts             []ConceptFinding `json:"concepts"`
}

// relevancePrompt asks for a bare yes/no so the gate stays cheap.
const relevancePrompt = `Does the following text discuss programming, software development, or computer science concepts?

Text:
---
%s
---

Answer with exactly one word: yes or no.`

const analysisPrompt = `You are a programming tutor's assistant. Analyze this conversation and identify which programming concepts the learner engaged with and how well they understood each one.

For each concept, provide:
- name: The concept name (short, lowercase, e.g. "recursion", "goroutines")
- proficiency: Demonstrated proficiency from 0 (none) to 5 (expert)
- event_type: One of [learned, practiced, confused, mastered]
- details: One sentence of evidence from the conversation

Also provide:
- detected_topic: The broader topic the conversation is about (language, framework or subject area)%s
- overall_understanding: Overall understanding from 0 to 5
- misconceptions: Any misconceptions the learner showed, or "" if none

Conversation:
---
%s
---

Return ONLY valid JSON:
{"detected_topic": "...", "overall_understanding": 0, "misconceptions": "...", "concepts": [{"name": "...", "proficiency": 0, "event_type": "...", "details": "..."}]}`

// Analyzer turns raw conversation text into concept findings using an LLM.
type Analyzer struct {
	LLM llm.Client
	log *logger.Logger
}

func NewAnalyzer(client llm.Client, log *logger.Logger) *Analyzer {
	return &Analyzer{LLM: client, log: log}
}

// IsProgrammingRelated reports whether the text is worth analyzing. An
// unparseable model answer counts as not related rather than failing the
// caller.
func (a *Analyzer) IsProgrammingRelated(ctx context.Context, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, nil
	}

	response, err := a.LLM.Complete(ctx, fmt.Sprintf(relevancePrompt, text))
	if err != nil {
		return false, fmt.Errorf("relevance check: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(response))
	switch {
	case strings.HasPrefix(answer, "yes"):
		return true, nil
	case strings.HasPrefix(answer, "no"):
		return false, nil
	default:
		a.log.Warn("unparseable relevance answer", "answer", answer)
		return false, nil
	}
}

// AnalyzeConversation extracts concept findings from the conversation.
// topicHint, when non-empty, steers topic detection. Malformed findings are
// normalized or dropped, and a completion that is not JSON at all yields an
// empty analysis; only transport and API errors fail the call.
func (a *Analyzer) AnalyzeConversation(ctx context.Context, text, topicHint string) (*Analysis, error) {
	if strings.TrimSpace(text) == "" {
		return &Analysis{}, nil
	}

	hint := ""
	if topicHint != "" {
		hint = fmt.Sprintf(" (the caller suggests %q)", topicHint)
	}

	var result Analysis
	if err := a.LLM.CompleteJSON(ctx, fmt.Sprintf(analysisPrompt, hint, text), &result); err != nil {
		if errors.Is(err, llm.ErrMalformedOutput) {
			a.log.Warn("unparseable analysis output, returning empty analysis", "error", err)
			return &Analysis{}, nil
		}
		return nil, fmt.Errorf("analyze conversation: %w", err)
	}

	result.Concepts = a.normalizeFindings(result.Concepts)
	result.OverallUnderstanding = clamp(result.OverallUnderstanding)
	if result.DetectedTopic == "" {
		result.DetectedTopic = topicHint
	}
	return &result, nil
}

// normalizeFindings drops nameless findings, clamps proficiency to the 0-5
// scale and maps unrecognized event types to "learned".
func (a *Analyzer) normalizeFindings(findings []ConceptFinding) []ConceptFinding {
	valid := findings[:0]
	for _, f := range findings {
		f.Name = strings.TrimSpace(f.Name)
		if f.Name == "" {
			a.log.Warn("dropping finding with empty name")
			continue
		}
		f.Proficiency = clamp(f.Proficiency)
		f.EventType = strings.ToLower(strings.TrimSpace(f.EventType))
		switch store.EventType(f.EventType) {
		case store.EventLearned, store.EventPracticed, store.EventConfused, store.EventMastered:
		default:
			a.log.Warn("normalizing unrecognized event type", "concept", f.Name, "event_type", f.EventType)
			f.EventType = string(store.EventLearned)
		}
		valid = append(valid, f)
	}
	return valid
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 5:
		return 5
	default:
		return v
	}
}
