// Copyright 2025 Consent DocGen Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sections

import (
	"fmt"
	"sort"
	"strings"
)

// ContextPassage is one retrieved protocol passage fed into the prompt
type ContextPassage struct {
	Content  string
	SourceID string
	Score    float64
}

// FeedbackStrategy controls how reviewer feedback is combined with the
// section's original prompt template during regeneration
type FeedbackStrategy string

const (
	// FeedbackAppend keeps the original template and adds the feedback as
	// additional instructions (default)
	FeedbackAppend FeedbackStrategy = "append"
	// FeedbackReplace uses the feedback as the instruction, keeping only
	// the section framing and retrieved context
	FeedbackReplace FeedbackStrategy = "replace"
)

// PromptConfig holds configuration for prompt generation
type PromptConfig struct {
	MaxTokens        int
	MaxPassages      int
	FeedbackStrategy FeedbackStrategy
}

// DefaultPromptConfig returns default configuration
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		MaxTokens:        6000,
		MaxPassages:      10,
		FeedbackStrategy: FeedbackAppend,
	}
}

const systemPreamble = `You are a medical writer preparing an Informed Consent Form from a clinical study protocol.

Guidelines:
- Write for a prospective study participant with no medical training
- Use second person ("you") and plain language; explain unavoidable medical terms
- Use only facts present in the protocol excerpts below; never invent study details
- If the excerpts do not cover something, say the study team will provide that information

`

// BuildPrompt assembles the full model prompt for one section from its
// spec, the retrieved protocol passages, and the protocol metadata. The
// initial generation pass uses this; regeneration goes through
// BuildPromptWithFeedback.
func BuildPrompt(spec Spec, passages []ContextPassage, metadata map[string]string, config PromptConfig) string {
	return BuildPromptWithFeedback(spec, passages, metadata, "", config)
}

// BuildPromptWithFeedback assembles the prompt including optional reviewer
// feedback applied according to the configured strategy
func BuildPromptWithFeedback(spec Spec, passages []ContextPassage, metadata map[string]string, feedback string, config PromptConfig) string {
	limited := limitPassages(passages, config.MaxPassages)

	var prompt strings.Builder
	prompt.WriteString(systemPreamble)

	prompt.WriteString(fmt.Sprintf("Section to write: %s\n", spec.Title))
	if spec.TargetLengthHint != "" {
		prompt.WriteString(fmt.Sprintf("Target length: %s\n", spec.TargetLengthHint))
	}
	prompt.WriteString("\n")

	if len(metadata) > 0 {
		prompt.WriteString("--- Study Information ---\n")
		for _, key := range sortedKeys(metadata) {
			prompt.WriteString(fmt.Sprintf("%s: %s\n", key, metadata[key]))
		}
		prompt.WriteString("\n")
	}

	if len(limited) > 0 {
		prompt.WriteString("--- Protocol Excerpts ---\n")
		for i, passage := range limited {
			prompt.WriteString(fmt.Sprintf("Excerpt %d [%s]: %s\n\n", i+1, passage.SourceID, passage.Content))
		}
	}

	feedback = strings.TrimSpace(feedback)
	switch {
	case feedback == "":
		prompt.WriteString(fmt.Sprintf("Instructions: %s\n", spec.PromptTemplate))
	case config.FeedbackStrategy == FeedbackReplace:
		prompt.WriteString(fmt.Sprintf("Instructions: %s\n", feedback))
	default:
		prompt.WriteString(fmt.Sprintf("Instructions: %s\n", spec.PromptTemplate))
		prompt.WriteString(fmt.Sprintf("\nReviewer feedback on the previous draft (address this in the rewrite): %s\n", feedback))
	}

	prompt.WriteString("\nWrite the section text now, without a heading:")

	finalPrompt := prompt.String()
	if EstimateTokens(finalPrompt) > config.MaxTokens {
		finalPrompt = TruncateToTokenLimit(finalPrompt, config.MaxTokens)
	}

	return finalPrompt
}

// limitPassages keeps the highest-scoring passages up to maxPassages,
// preserving retrieval order among the survivors
func limitPassages(passages []ContextPassage, maxPassages int) []ContextPassage {
	if len(passages) <= maxPassages {
		return passages
	}

	type indexed struct {
		passage ContextPassage
		pos     int
	}
	ranked := make([]indexed, len(passages))
	for i, p := range passages {
		ranked[i] = indexed{passage: p, pos: i}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].passage.Score > ranked[j].passage.Score
	})
	ranked = ranked[:maxPassages]
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].pos < ranked[j].pos
	})

	limited := make([]ContextPassage, len(ranked))
	for i, r := range ranked {
		limited[i] = r.passage
	}
	return limited
}

// EstimateTokens gives a rough token count for a prompt. One token is
// roughly four characters of English text.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// TruncateToTokenLimit cuts text to approximately maxTokens tokens,
// breaking at the last space before the limit when possible
func TruncateToTokenLimit(text string, maxTokens int) string {
	maxChars := maxTokens * 4
	if len(text) <= maxChars {
		return text
	}

	truncated := text[:maxChars]
	if idx := strings.LastIndex(truncated, " "); idx > 0 {
		truncated = truncated[:idx]
	}
	return truncated
}

// WordCount counts whitespace-separated words in generated content
func WordCount(text string) int {
	return len(strings.Fields(text))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
