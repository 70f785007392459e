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

// Package chunker splits raw protocol text into spans small enough to
// embed, preferring paragraph and sentence boundaries so retrieved
// context stays readable. Normally chunking happens in the upstream
// extraction pipeline; this covers ingesting a plain-text protocol
// directly.
package chunker

import (
	"strings"
)

// DefaultChunkSize is the target chunk length in characters, roughly 300
// tokens of protocol text
const DefaultChunkSize = 1200

// Split breaks text into chunks of at most chunkSize characters. Chunks
// end on paragraph boundaries where possible, sentence boundaries
// otherwise. Blank input yields no chunks.
func Split(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	text = Normalize(text)
	if text == "" {
		return nil
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if chunk := strings.TrimSpace(current.String()); chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		if len(paragraph) > chunkSize {
			flush()
			chunks = append(chunks, splitLongParagraph(paragraph, chunkSize)...)
			continue
		}

		if current.Len() > 0 && current.Len()+len(paragraph)+2 > chunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(paragraph)
	}
	flush()

	return chunks
}

// splitLongParagraph packs sentences into chunks of at most chunkSize.
// A single sentence longer than chunkSize becomes its own oversized
// chunk rather than being cut mid-word.
func splitLongParagraph(paragraph string, chunkSize int) []string {
	var chunks []string
	var current strings.Builder

	for _, sentence := range splitSentences(paragraph) {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > chunkSize {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	return chunks
}

// splitSentences splits a paragraph on terminal punctuation. Protocol
// text is full of abbreviations ("e.g.", "q.d.", "Dr."), so this stays
// deliberately conservative: only a terminator followed by a space and
// an uppercase letter counts.
func splitSentences(text string) []string {
	var sentences []string
	start := 0

	for i := 0; i < len(text)-1; i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if text[i+1] != ' ' {
			continue
		}
		rest := strings.TrimLeft(text[i+1:], " ")
		if rest == "" || rest[0] < 'A' || rest[0] > 'Z' {
			continue
		}
		sentences = append(sentences, strings.TrimSpace(text[start:i+1]))
		start = i + 1
	}

	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// Normalize cleans extracted protocol text: normalizes line endings,
// strips markdown-style heading markers left by the extraction step,
// and collapses runs of blank lines.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		for strings.HasPrefix(trimmed, "#") {
			trimmed = strings.TrimPrefix(trimmed, "#")
		}
		lines[i] = strings.TrimSpace(trimmed)
	}
	text = strings.Join(lines, "\n")

	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}
