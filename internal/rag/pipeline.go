package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/d3vah/askdocs-go/internal/budget"
	"github.com/d3vah/askdocs-go/internal/logging"
	"github.com/d3vah/askdocs-go/internal/store"
)

// Config holds the dependencies required to construct a Pipeline.
type Config struct {
	// Embedder converts the question into its query-side embedding.
	Embedder Embedder

	// Searcher runs the hybrid search against the document index.
	Searcher Searcher

	// ChatModel is the generation backend constructed by the provider factory.
	ChatModel model.BaseChatModel

	// DefaultTopK is the number of hits to retrieve when the caller passes 0.
	// Defaults to 5 if zero.
	DefaultTopK int

	// History is the optional question/answer store used to persist and
	// replay prior turns. If nil, each question is stateless.
	History store.ConversationStore

	// HistoryScope keys the conversation thread in the history store
	// (typically the index name). Ignored when History is nil.
	HistoryScope string

	// HistoryDepth is the number of prior turns (question+answer pairs) to
	// inject per question. Defaults to 10 if zero.
	HistoryDepth int

	// MaxContextTokens is the estimated token budget for the full input
	// (history + prompt). History is trimmed oldest-first to fit; the prompt
	// itself is never altered — an over-budget prompt only produces a WARN.
	// Defaults to budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Pipeline runs the full question-answering flow: embed, hybrid search,
// prompt composition, and streaming generation. Each call is independent;
// the only state reused across calls is the already-initialised client
// handles, so a Pipeline is safe for concurrent use.
type Pipeline struct {
	// embedder converts the question text into a dense vector.
	embedder Embedder

	// searcher runs the hybrid search.
	searcher Searcher

	// chatModel is the generation backend.
	chatModel model.BaseChatModel

	// defaultTopK is the hit count used when the caller passes 0.
	defaultTopK int

	// history is the optional question/answer store.
	history store.ConversationStore

	// historyScope keys the conversation thread in the history store.
	historyScope string

	// historyDepth is the number of recent turns to inject per question.
	historyDepth int

	// maxContextTokens is the estimated token budget for the input context.
	maxContextTokens int
}

// New constructs a Pipeline from the provided Config.
func New(cfg *Config) (*Pipeline, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("rag: searcher must not be nil")
	}
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("rag: chat model must not be nil")
	}

	topK := cfg.DefaultTopK
	if topK <= 0 {
		topK = 5
	}
	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = 10
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &Pipeline{
		embedder:         cfg.Embedder,
		searcher:         cfg.Searcher,
		chatModel:        cfg.ChatModel,
		defaultTopK:      topK,
		history:          cfg.History,
		historyScope:     cfg.HistoryScope,
		historyDepth:     depth,
		maxContextTokens: maxCtx,
	}, nil
}

// Retrieve embeds the question and returns the top-k hybrid search hits in
// engine order. If topK is 0 the default configured at construction is used.
func (p *Pipeline) Retrieve(ctx context.Context, question string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = p.defaultTopK
	}

	embeddings, err := p.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding question failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for question")
	}

	hits, err := p.searcher.Search(ctx, question, embeddings[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: hybrid search failed: %w", err)
	}

	return hits, nil
}

// Answer runs the full flow for one question and streams the generated
// answer to w, chunk by chunk in arrival order with no modification.
// The complete answer text is also returned so callers can persist or
// post-process it. Provider errors and cancellation propagate as-is.
func (p *Pipeline) Answer(ctx context.Context, question string, topK int, w io.Writer) (string, error) {
	hits, err := p.Retrieve(ctx, question, topK)
	if err != nil {
		return "", err
	}

	prompt := BuildPrompt(question, hits)
	messages := p.buildMessages(ctx, prompt)

	sr, err := p.chatModel.Stream(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("rag: stream failed: %w", err)
	}
	defer sr.Close()

	var answer strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return answer.String(), fmt.Errorf("rag: stream receive error: %w", err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		if _, err := io.WriteString(w, msg.Content); err != nil {
			return answer.String(), fmt.Errorf("rag: write error: %w", err)
		}
		answer.WriteString(msg.Content)
	}

	// Persist the turn to the history store (non-fatal on error).
	if p.history != nil {
		log := logging.FromContext(ctx)
		if err := p.history.Append(ctx, p.historyScope, store.RoleUser, question); err != nil {
			log.Warn("history: failed to persist question", slog.Any("error", err))
		}
		if err := p.history.Append(ctx, p.historyScope, store.RoleAssistant, answer.String()); err != nil {
			log.Warn("history: failed to persist answer", slog.Any("error", err))
		}
	}

	return answer.String(), nil
}

// buildMessages assembles the message slice sent to the generation provider:
// trimmed prior turns (when a history store is configured) followed by the
// composed prompt as the user message. The prompt is passed through intact —
// only history is trimmed to fit the token budget.
func (p *Pipeline) buildMessages(ctx context.Context, prompt string) []*schema.Message {
	userMsg := schema.UserMessage(prompt)

	var historyMsgs []*schema.Message
	if p.history != nil {
		prior, err := p.history.Recent(ctx, p.historyScope, p.historyDepth*2)
		if err != nil {
			logging.FromContext(ctx).Warn("history: failed to load prior turns", slog.Any("error", err))
		} else {
			for _, m := range prior {
				switch m.Role {
				case store.RoleUser:
					historyMsgs = append(historyMsgs, schema.UserMessage(m.Content))
				case store.RoleAssistant:
					historyMsgs = append(historyMsgs, schema.AssistantMessage(m.Content, nil))
				}
			}
		}
	}

	fixed := []*schema.Message{userMsg}
	if budget.EstimateMessages(fixed) > p.maxContextTokens {
		logging.FromContext(ctx).Warn("budget: composed prompt exceeds context budget, sending unmodified",
			slog.Int("estimated_tokens", budget.EstimateMessages(fixed)),
			slog.Int("max_tokens", p.maxContextTokens),
		)
	}

	before := len(historyMsgs)
	historyMsgs = budget.TrimHistory(fixed, historyMsgs, p.maxContextTokens)
	if dropped := before - len(historyMsgs); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped history turns to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(historyMsgs)),
		)
	}

	result := make([]*schema.Message, 0, len(historyMsgs)+1)
	result = append(result, historyMsgs...)
	result = append(result, userMsg)
	return result
}
