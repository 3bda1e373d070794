// Package quiz builds multiple-choice questions from indexed document
// content. The rule-based mode turns sentences into cloze questions; the
// LLM mode prompts a chat model for a strict JSON array and parses it
// defensively.
package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"study-assistant-backend/model"
	"study-assistant-backend/service/rag/classify"

	"github.com/tmc/langchaingo/llms"
)

var (
	ErrNoContent    = errors.New("document has no indexed content")
	ErrNoQuestions  = errors.New("could not build any question from the document")
	ErrLLMBadOutput = errors.New("llm did not return a usable question array")
)

const (
	defaultNumQuestions = 5
	choicesPerQuestion  = 4
	clozeBlank          = "_____"

	// answer-word length bounds, in runes
	minAnswerLen = 4
	maxAnswerLen = 18

	minSentenceLen = 40
	maxLLMChunks   = 12
)

type Question struct {
	ID          string   `json:"id"`
	Question    string   `json:"question"`
	Choices     []string `json:"choices"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation,omitempty"`
}

type Request struct {
	DocumentID   string
	NumQuestions int
	Difficulty   string // easy | medium | hard
	Language     string // vi | en
	Mode         string // rule | llm | hybrid
}

// ChunkSource supplies document text in chunk_index order.
type ChunkSource interface {
	DocumentChunks(ctx context.Context, documentID string, limit int) ([]model.Chunk, error)
}

type Generator struct {
	source ChunkSource
	llm    llms.Model

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Generator)

func WithLLM(llm llms.Model) Option {
	return func(g *Generator) { g.llm = llm }
}

// WithSeed fixes the random source so tests get reproducible quizzes.
func WithSeed(seed int64) Option {
	return func(g *Generator) { g.rng = rand.New(rand.NewSource(seed)) }
}

func New(source ChunkSource, opts ...Option) *Generator {
	g := &Generator{
		source: source,
		rng:    rand.New(rand.NewSource(rand.Int63())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Generate(ctx context.Context, req Request) ([]Question, error) {
	if req.DocumentID == "" {
		return nil, errors.New("document id is required")
	}
	if req.NumQuestions < 1 {
		req.NumQuestions = defaultNumQuestions
	}
	if req.Language == "" {
		req.Language = "vi"
	}

	fetchLimit := req.NumQuestions * 6
	if fetchLimit < 10 {
		fetchLimit = 10
	}
	chunks, err := g.source.DocumentChunks(ctx, req.DocumentID, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks for document %s: %w", req.DocumentID, err)
	}
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) != "" {
			texts = append(texts, c.Content)
		}
	}
	if len(texts) == 0 {
		return nil, ErrNoContent
	}

	switch req.Mode {
	case "llm":
		return g.generateLLM(ctx, req, texts)
	case "hybrid":
		if qs, err := g.generateLLM(ctx, req, texts); err == nil {
			return qs, nil
		} else {
			slog.Warn("llm quiz generation failed, falling back to rule mode",
				"document_id", req.DocumentID, "err", err)
		}
		fallthrough
	default:
		return g.generateRule(req, texts)
	}
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

func (g *Generator) generateRule(req Request, texts []string) ([]Question, error) {
	sentences := sentencePool(texts)
	pool := wordPool(texts)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.rng.Shuffle(len(sentences), func(i, j int) {
		sentences[i], sentences[j] = sentences[j], sentences[i]
	})

	var questions []Question
	for _, sent := range sentences {
		if len(questions) >= req.NumQuestions {
			break
		}
		if q, ok := g.buildCloze(sent, req.Language, pool, len(questions)+1); ok {
			questions = append(questions, q)
		}
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	return questions, nil
}

var sentenceSplitRe = regexp.MustCompile(`[\.!?。！？;；:]\s+`)

func sentencePool(texts []string) []string {
	var out []string
	for _, t := range texts {
		for _, s := range splitSentences(t) {
			s = strings.TrimSpace(s)
			if len([]rune(s)) > 20 {
				out = append(out, s)
			}
		}
	}
	return out
}

// splitSentences cuts after a sentence delimiter followed by whitespace,
// keeping the delimiter on the left piece.
func splitSentences(text string) []string {
	locs := sentenceSplitRe.FindAllStringIndex(text, -1)
	var out []string
	prev := 0
	for _, loc := range locs {
		cut := loc[0] + boundaryLen(text[loc[0]:])
		out = append(out, text[prev:cut])
		prev = loc[1]
	}
	out = append(out, text[prev:])
	return out
}

func boundaryLen(s string) int {
	_, size := firstRune(s)
	return size
}

func firstRune(s string) (rune, int) {
	for _, r := range s {
		return r, len(string(r))
	}
	return 0, 0
}

func wordPool(texts []string) []string {
	var pool []string
	for _, w := range wordRe.FindAllString(strings.Join(texts, " "), -1) {
		if n := len([]rune(w)); n >= minAnswerLen && n <= maxAnswerLen {
			pool = append(pool, w)
		}
	}
	return pool
}

// buildCloze blanks one content word of the sentence and offers three
// distractors drawn from the document's own vocabulary. Callers hold g.mu.
func (g *Generator) buildCloze(sentence, lang string, pool []string, qid int) (Question, bool) {
	if len([]rune(sentence)) < minSentenceLen {
		return Question{}, false
	}

	var candidates []string
	for _, tok := range wordRe.FindAllString(sentence, -1) {
		n := len([]rune(tok))
		if n < minAnswerLen || n > maxAnswerLen {
			continue
		}
		if isNumeric(tok) || classify.IsStopword(strings.ToLower(tok)) {
			continue
		}
		candidates = append(candidates, tok)
	}
	if len(candidates) == 0 {
		return Question{}, false
	}
	answer := candidates[g.rng.Intn(len(candidates))]
	question := strings.Replace(sentence, answer, clozeBlank, 1)

	distractors := g.pickDistractors(answer, pool)
	choices := append(distractors, answer)
	g.rng.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})
	answerIndex := 0
	for i, c := range choices {
		if c == answer {
			answerIndex = i
			break
		}
	}

	explanation := "Điền từ còn thiếu dựa trên câu trong tài liệu."
	if lang == "en" {
		explanation = "Fill the missing word from the document context."
	}
	return Question{
		ID:          fmt.Sprintf("q%d", qid),
		Question:    question,
		Choices:     choices,
		AnswerIndex: answerIndex,
		Explanation: explanation,
	}, true
}

func (g *Generator) pickDistractors(answer string, pool []string) []string {
	shuffled := make([]string, len(pool))
	copy(shuffled, pool)
	g.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	var distractors []string
	seen := map[string]bool{strings.ToLower(answer): true}
	for _, w := range shuffled {
		if seen[strings.ToLower(w)] || classify.IsStopword(strings.ToLower(w)) {
			continue
		}
		seen[strings.ToLower(w)] = true
		distractors = append(distractors, w)
		if len(distractors) == choicesPerQuestion-1 {
			break
		}
	}
	for len(distractors) < choicesPerQuestion-1 {
		distractors = append(distractors, reverse(answer))
	}
	return distractors
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func (g *Generator) generateLLM(ctx context.Context, req Request, texts []string) ([]Question, error) {
	if g.llm == nil {
		return nil, errors.New("no llm configured for quiz generation")
	}

	if len(texts) > maxLLMChunks {
		texts = texts[:maxLLMChunks]
	}
	prompt := buildQuizPrompt(req, texts)
	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt)
	if err != nil {
		return nil, fmt.Errorf("quiz llm call failed: %w", err)
	}

	raw := parseJSONArray(out)
	if len(raw) == 0 {
		return nil, ErrLLMBadOutput
	}

	questions := make([]Question, 0, req.NumQuestions)
	for i, item := range raw {
		q := strings.TrimSpace(item.Question)
		if q == "" || len(item.Choices) < 2 {
			continue
		}
		choices := item.Choices
		if len(choices) > choicesPerQuestion {
			choices = choices[:choicesPerQuestion]
		}
		for len(choices) < choicesPerQuestion {
			choices = append(choices, "(không có)")
		}
		idx := item.AnswerIndex
		if idx < 0 {
			idx = 0
		}
		if idx >= choicesPerQuestion {
			idx = choicesPerQuestion - 1
		}
		questions = append(questions, Question{
			ID:          fmt.Sprintf("q%d", i+1),
			Question:    q,
			Choices:     choices,
			AnswerIndex: idx,
			Explanation: strings.TrimSpace(item.Explanation),
		})
		if len(questions) >= req.NumQuestions {
			break
		}
	}
	if len(questions) == 0 {
		return nil, ErrLLMBadOutput
	}
	return questions, nil
}

func buildQuizPrompt(req Request, texts []string) string {
	var b strings.Builder
	if req.Language == "en" {
		fmt.Fprintf(&b, "Create %d multiple-choice questions (difficulty: %s) from the context below. ", req.NumQuestions, req.Difficulty)
		b.WriteString("Answer with a pure JSON array only, each element ")
		b.WriteString(`{"question","choices":[4 strings],"answer_index","explanation"}.`)
		b.WriteString("\n\nContext:\n")
	} else {
		fmt.Fprintf(&b, "Tạo %d câu hỏi trắc nghiệm (độ khó: %s) từ ngữ cảnh dưới đây. ", req.NumQuestions, req.Difficulty)
		b.WriteString("Chỉ trả lời bằng JSON thuần dạng mảng, mỗi phần tử ")
		b.WriteString(`{"question","choices":[4 chuỗi],"answer_index","explanation"}.`)
		b.WriteString("\n\nNgữ cảnh:\n")
	}
	b.WriteString(strings.Join(texts, "\n\n---\n"))
	return b.String()
}

type rawQuestion struct {
	Question    string   `json:"question"`
	Choices     []string `json:"choices"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation"`
}

// parseJSONArray extracts the first JSON array embedded in the model output.
// Models love to wrap JSON in prose or code fences.
func parseJSONArray(s string) []rawQuestion {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	var out []rawQuestion
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
