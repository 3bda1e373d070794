// Package classify derives document metadata (title, type, date, keyword
// tags) from raw extracted text. The output enriches chunk metadata and
// powers filtered retrieval; classification never blocks ingestion, any
// failure degrades to partial results.
package classify

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/tmc/langchaingo/llms"
)

// Metadata is the classification result. Zero values mean "unknown": an
// empty Date with Year/Month 0 when no date was found, an empty tag list
// when extraction produced nothing usable.
type Metadata struct {
	Title   string   `json:"title"`
	DocType string   `json:"doc_type"`
	Date    string   `json:"date,omitempty"`
	Year    int      `json:"year,omitempty"`
	Month   int      `json:"month,omitempty"`
	Tags    []string `json:"tags"`
}

const (
	titleMaxLen    = 120
	defaultMaxTags = 8
	minTokenLen    = 3

	// classification only looks at the head of the document
	classifyWindow = 4000
)

// docTypes is the closed label set, checked in priority order. The keyword
// lists are bilingual because the corpus mixes Vietnamese and English
// study material.
var docTypes = []struct {
	label    string
	keywords []string
}{
	{"exam", []string{"đề thi", "đề kiểm tra", "kiểm tra giữa kỳ", "kiểm tra cuối kỳ", "exam", "midterm", "final test"}},
	{"exercise", []string{"bài tập", "luyện tập", "exercise", "homework", "problem set"}},
	{"syllabus", []string{"đề cương", "chương trình học", "syllabus", "curriculum"}},
	{"slide", []string{"slide", "trình chiếu", "presentation"}},
	{"report", []string{"báo cáo", "luận văn", "tiểu luận", "report", "thesis"}},
	{"lecture", []string{"bài giảng", "giáo trình", "lecture", "chapter", "textbook"}},
}

const docTypeOther = "other"

// Classifier is safe for concurrent use. The llm is optional; when nil the
// document type falls back to heuristics only.
type Classifier struct {
	llm     llms.Model
	maxTags int
}

type Option func(*Classifier)

func WithLLM(llm llms.Model) Option {
	return func(c *Classifier) { c.llm = llm }
}

func WithMaxTags(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.maxTags = n
		}
	}
}

func New(opts ...Option) *Classifier {
	c := &Classifier{maxTags: defaultMaxTags}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify is deterministic for a fixed input except for the LLM document
// type fallback, which only fires when no heuristic keyword matches.
func (c *Classifier) Classify(ctx context.Context, text string) Metadata {
	return Metadata{
		Title:   extractTitle(text),
		DocType: c.classifyDocType(ctx, text),
		Date:    "",
		Tags:    c.extractTags(text),
	}.withDate(FindDate(text))
}

func (m Metadata) withDate(date string) Metadata {
	if date == "" {
		return m
	}
	m.Date = date
	if t, err := time.Parse("2006-01-02", date); err == nil {
		m.Year = t.Year()
		m.Month = int(t.Month())
	}
	return m
}

func extractTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if runes := []rune(line); len(runes) > titleMaxLen {
			return string(runes[:titleMaxLen])
		}
		return line
	}
	return ""
}

var (
	dmySlashRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	dmyDashRe  = regexp.MustCompile(`\b(\d{1,2})-(\d{1,2})-(\d{4})\b`)
	ymdDashRe  = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	ymdSlashRe = regexp.MustCompile(`\b(\d{4})/(\d{1,2})/(\d{1,2})\b`)
)

// FindDate scans for the first recognizable date and normalizes it to ISO
// YYYY-MM-DD. Patterns are tried in a fixed order; day and month are
// clamped into valid calendar ranges. Returns "" when nothing matches.
func FindDate(text string) string {
	if m := dmySlashRe.FindStringSubmatch(text); m != nil {
		return normalizeDate(m[3], m[2], m[1])
	}
	if m := dmyDashRe.FindStringSubmatch(text); m != nil {
		return normalizeDate(m[3], m[2], m[1])
	}
	if m := ymdDashRe.FindStringSubmatch(text); m != nil {
		return normalizeDate(m[1], m[2], m[3])
	}
	if m := ymdSlashRe.FindStringSubmatch(text); m != nil {
		return normalizeDate(m[1], m[2], m[3])
	}
	return ""
}

func normalizeDate(year, month, day string) string {
	y := atoi(year)
	m := clamp(atoi(month), 1, 12)
	d := clamp(atoi(day), 1, daysIn(y, m))
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (c *Classifier) classifyDocType(ctx context.Context, text string) string {
	lowered := strings.ToLower(head(text, classifyWindow))
	for _, dt := range docTypes {
		for _, kw := range dt.keywords {
			if strings.Contains(lowered, kw) {
				return dt.label
			}
		}
	}
	if c.llm == nil {
		return docTypeOther
	}
	return c.classifyDocTypeLLM(ctx, lowered)
}

// classifyDocTypeLLM asks the model for a single label and only accepts an
// exact member of the closed set. Everything else, including errors,
// collapses to "other".
func (c *Classifier) classifyDocTypeLLM(ctx context.Context, text string) string {
	labels := make([]string, 0, len(docTypes)+1)
	for _, dt := range docTypes {
		labels = append(labels, dt.label)
	}
	labels = append(labels, docTypeOther)

	prompt := fmt.Sprintf(
		"Phân loại tài liệu học tập sau vào đúng một nhãn trong danh sách: %s.\n"+
			"Chỉ trả lời duy nhất một nhãn, không giải thích.\n\nTài liệu:\n%s",
		strings.Join(labels, ", "), head(text, 1500))

	answer, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt)
	if err != nil {
		return docTypeOther
	}
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(answer)))
	if len(fields) == 0 {
		return docTypeOther
	}
	for _, label := range labels {
		if fields[0] == label {
			return label
		}
	}
	return docTypeOther
}

func head(s string, n int) string {
	if runes := []rune(s); len(runes) > n {
		return string(runes[:n])
	}
	return s
}

var vnStop = map[string]bool{
	"và": true, "hoặc": true, "của": true, "cho": true, "trong": true,
	"trên": true, "tại": true, "bởi": true, "với": true, "là": true,
	"một": true, "những": true, "các": true, "được": true, "đã": true,
	"sẽ": true, "đang": true, "này": true, "kia": true, "đó": true,
	"khi": true, "từ": true, "theo": true, "về": true, "có": true,
	"không": true, "đến": true, "hay": true, "nên": true, "cần": true,
	"nếu": true, "thì": true, "ra": true, "vào": true, "cũng": true,
}

var enStop = map[string]bool{
	"the": true, "and": true, "or": true, "of": true, "to": true,
	"in": true, "for": true, "on": true, "at": true, "by": true,
	"with": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "as": true, "it": true,
	"that": true, "this": true, "from": true, "we": true, "you": true,
	"they": true, "he": true, "she": true, "i": true, "but": true,
	"not": true, "have": true, "has": true, "had": true, "will": true,
	"shall": true, "can": true, "could": true, "may": true, "might": true,
	"do": true, "does": true, "did": true,
}

// IsStopword reports whether the lower-cased token is in the bilingual
// stopword list. Shared with the quiz generator's answer-word selection.
func IsStopword(token string) bool {
	return vnStop[token] || enStop[token]
}

// extractTags does lightweight keyword extraction: top bigrams first, then
// top unigrams, deduplicated and capped at maxTags.
func (c *Classifier) extractTags(text string) []string {
	tokens := tokenize(head(text, classifyWindow))
	if len(tokens) == 0 {
		return nil
	}

	unigrams := make(map[string]int)
	bigrams := make(map[string]int)
	for i, tok := range tokens {
		unigrams[tok]++
		if i+1 < len(tokens) {
			bigrams[tok+" "+tokens[i+1]]++
		}
	}

	tags := make([]string, 0, c.maxTags)
	seen := make(map[string]bool)
	for _, t := range append(topN(bigrams, c.maxTags), topN(unigrams, c.maxTags)...) {
		if seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
		if len(tags) == c.maxTags {
			break
		}
	}
	return tags
}

func tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	var tokens []string
	for _, tok := range strings.Fields(cleaned) {
		if len([]rune(tok)) < minTokenLen || isNumeric(tok) || IsStopword(tok) {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// topN returns the n most frequent keys. Ties break lexically so the
// result is stable across runs.
func topN(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}
