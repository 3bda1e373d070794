// Package chunk splits normalized text into overlapping, sentence-aware
// segments sized for embedding.
package chunk

import (
	"strings"
	"unicode/utf8"
)

const (
	// minChunkSize guards against pathological configuration.
	minChunkSize = 200
)

// Split packs sentence-like units greedily into chunks of at most size
// characters, seeding each chunk after the first with the trailing overlap
// characters of its predecessor. A sentence is never split at a size
// boundary: one oversized sentence becomes the sole content of a chunk that
// may exceed size. Any non-empty input yields at least one chunk.
func Split(text string, size, overlap int) []string {
	if size < minChunkSize {
		size = minChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > size/2 {
		overlap = size / 2
	}

	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return nil
	}

	sentences := splitSentences(cleaned)

	// A lone sentence longer than size cannot be packed; hard-cut a prefix so
	// the input still yields one chunk.
	if len(sentences) == 1 && utf8.RuneCountInString(sentences[0]) > size {
		return []string{string([]rune(cleaned)[:size])}
	}

	var chunks []string
	var current []string
	currentLen := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		joined := strings.TrimSpace(strings.Join(current, " "))
		if joined != "" {
			chunks = append(chunks, joined)
		}
		if overlap > 0 && joined != "" {
			runes := []rune(joined)
			keep := runes[max(0, len(runes)-overlap):]
			current = []string{string(keep)}
			currentLen = len(keep)
		} else {
			current = nil
			currentLen = 0
		}
	}

	for _, sent := range sentences {
		sentLen := utf8.RuneCountInString(sent)
		if currentLen+sentLen+1 <= size {
			current = append(current, sent)
			currentLen += sentLen + 1
		} else {
			flush()
			current = append(current, sent)
			currentLen += sentLen + 1
		}
	}
	flush()

	// A single sentence longer than size with no inner delimiters produces no
	// flushes above; fall back to a hard prefix so non-empty input always
	// yields a chunk.
	if len(chunks) == 0 {
		runes := []rune(cleaned)
		if len(runes) > size {
			runes = runes[:size]
		}
		chunks = []string{string(runes)}
	}

	return chunks
}

// sentence boundary punctuation, kept attached to the preceding unit
func isBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', ';', '；', ':', '\n':
		return true
	}
	return false
}

// splitSentences cuts after boundary punctuation followed by whitespace. The
// delimiter stays with the left unit.
func splitSentences(s string) []string {
	runes := []rune(s)
	var units []string
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		if isBoundary(runes[i]) && runes[i+1] == ' ' {
			unit := strings.TrimSpace(string(runes[start : i+1]))
			if unit != "" {
				units = append(units, unit)
			}
			start = i + 1
		}
	}
	tail := strings.TrimSpace(string(runes[start:]))
	if tail != "" {
		units = append(units, tail)
	}
	return units
}
