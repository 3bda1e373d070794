package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"study-assistant-backend/config"
	"study-assistant-backend/utils"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const extractivePreface = "(Không có LLM cục bộ; trả lời theo ngữ cảnh gần nhất)"

// newLLM builds the chat model for the configured provider. Provider "none"
// yields a nil model, which routes every answer through the extractive
// fallback. Unlike embeddings, a missing credential here is a startup error
// only for explicitly selected remote providers.
func newLLM(ctx context.Context, cfg config.RAGConfig) (llms.Model, error) {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, errors.New("openai.api_key is required for the OpenAI chat model")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.OpenAI.APIKey),
			openai.WithModel(cfg.OpenAI.ChatModel),
			openai.WithHTTPClient(utils.DefaultHTTPClient()),
		}
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		return openai.New(opts...)
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("gemini.api_key is required for the Gemini chat model")
		}
		return googleai.New(ctx,
			googleai.WithAPIKey(cfg.Gemini.APIKey),
			googleai.WithDefaultModel(cfg.Gemini.ChatModel),
		)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Ollama.ChatModel)}
		if cfg.Ollama.ServerURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.Ollama.ServerURL))
		}
		return ollama.New(opts...)
	default:
		return nil, nil
	}
}

// Answer produces a grounded Vietnamese answer from the retrieved contexts.
// The model is told to answer only from the supplied context. Any model
// failure degrades to the deterministic extractive fallback; availability
// wins over completeness for this step. A non-empty sessionID folds recent
// conversation turns into the prompt and records the new turn afterwards.
func (e *Engine) Answer(ctx context.Context, query string, contexts []string, sessionID string) string {
	answer := e.generate(ctx, query, contexts, sessionID)
	if sessionID != "" {
		e.memory.Append(sessionID, Turn{Query: query, Answer: answer})
	}
	return answer
}

func (e *Engine) generate(ctx context.Context, query string, contexts []string, sessionID string) string {
	if e.llm == nil {
		return extractiveAnswer(contexts)
	}

	prompt := e.buildPrompt(query, contexts, sessionID)
	out, err := llms.GenerateFromSinglePrompt(ctx, e.llm, prompt)
	if err != nil {
		slog.Warn("llm answer failed, using extractive fallback", "provider", e.cfg.LLMProvider, "err", err)
		return extractiveAnswer(contexts)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return extractiveAnswer(contexts)
	}
	return out
}

func (e *Engine) buildPrompt(query string, contexts []string, sessionID string) string {
	var b strings.Builder
	b.WriteString("Bạn là trợ lý hữu ích. Chỉ sử dụng NGỮ CẢNH được cung cấp để trả lời. ")
	b.WriteString("Nếu không có trong ngữ cảnh, hãy nói bạn không biết. Trả lời bằng TIẾNG VIỆT.\n\n")

	if sessionID != "" {
		if turns := e.memory.Turns(sessionID); len(turns) > 0 {
			b.WriteString("Hội thoại trước đó:\n")
			for _, t := range turns {
				fmt.Fprintf(&b, "Hỏi: %s\nĐáp: %s\n", t.Query, t.Answer)
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "Câu hỏi: %s\n\n", query)
	b.WriteString("Ngữ cảnh:\n")
	b.WriteString(strings.Join(contexts, "\n---\n"))
	b.WriteString("\n\nTrả lời:")
	return b.String()
}

// extractiveAnswer is the deterministic no-LLM path: a preface plus the two
// closest contexts verbatim.
func extractiveAnswer(contexts []string) string {
	if len(contexts) > 2 {
		contexts = contexts[:2]
	}
	return extractivePreface + "\n\n" + strings.Join(contexts, "\n\n")
}
