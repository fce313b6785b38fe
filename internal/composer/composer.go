// Package composer answers a prompt with a single completion call, grounding
// it in retrieved chunks when retrieval is enabled. Retrieval failures never
// fail an answer: the composer logs them and answers ungrounded.
package composer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/scoperag-go/internal/apperr"
	"github.com/54b3r/scoperag-go/internal/budget"
	"github.com/54b3r/scoperag-go/internal/logging"
	"github.com/54b3r/scoperag-go/internal/rag"
	"github.com/54b3r/scoperag-go/internal/retrieval"
)

const (
	// persona is the base system instruction.
	persona = "You are a helpful assistant."

	// contextHeader introduces the grounding context in the system instruction.
	contextHeader = "\nUse the following context to answer the user's question:\n\n"
)

// Retriever returns the chunks visible to a scope for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query, scopeID string, k int) ([]retrieval.Hit, error)
}

// Answer is a composed response.
type Answer struct {
	// Text is the model output.
	Text string
	// Citations is the sorted, de-duplicated set of source filenames used as
	// grounding context. Never nil.
	Citations []string
	// Grounded reports whether retrieved context was sent to the model.
	Grounded bool
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets the fallback logger used when the request context carries none.
func WithLogger(log *slog.Logger) Option {
	return func(c *Composer) { c.log = log }
}

// WithMetrics records generate outcomes and prompt sizes.
func WithMetrics(m *Metrics) Option {
	return func(c *Composer) { c.metrics = m }
}

// WithTopK sets the number of chunks retrieved per prompt. Values <= 0 use
// the retriever's default.
func WithTopK(k int) Option {
	return func(c *Composer) { c.topK = k }
}

// WithMaxContextTokens sets the estimated input budget. Lowest-ranked chunks
// are dropped until the prompt fits. Values <= 0 disable trimming.
func WithMaxContextTokens(n int) Option {
	return func(c *Composer) { c.maxContextTokens = n }
}

// Composer builds grounded prompts and calls the completion model.
// It is safe for concurrent use.
type Composer struct {
	// chat is the completion model.
	chat model.BaseChatModel
	// retriever supplies grounding chunks. May be nil.
	retriever Retriever
	// topK is passed through to the retriever.
	topK int
	// maxContextTokens bounds the estimated prompt size.
	maxContextTokens int
	// log is used when the request context carries no logger.
	log *slog.Logger
	// metrics is optional.
	metrics *Metrics
}

// New constructs a Composer. retriever may be nil, in which case every
// answer is ungrounded.
func New(chat model.BaseChatModel, retriever Retriever, opts ...Option) (*Composer, error) {
	if chat == nil {
		return nil, fmt.Errorf("composer: chat model must not be nil")
	}
	c := &Composer{
		chat:             chat,
		retriever:        retriever,
		maxContextTokens: budget.DefaultMaxContextTokens,
		log:              slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Answer responds to prompt. When ragEnabled is set, chunks visible to
// scopeID ground the answer and their filenames are returned as citations.
func (c *Composer) Answer(ctx context.Context, prompt, scopeID string, ragEnabled bool) (Answer, error) {
	if strings.TrimSpace(prompt) == "" {
		return Answer{}, apperr.Validation("composer.answer", "prompt is required")
	}
	if scopeID == "" {
		scopeID = rag.GlobalScope
	}
	log := c.logger(ctx)

	var hits []retrieval.Hit
	degraded := false
	if ragEnabled && c.retriever != nil {
		var err error
		hits, err = c.retriever.Retrieve(ctx, prompt, scopeID, c.topK)
		if err != nil {
			log.Warn("composer: retrieval failed, answering without context",
				slog.String("scope", scopeID),
				slog.Any("error", err),
			)
			hits = nil
			degraded = true
		}
	}

	hits = c.fit(ctx, prompt, hits)
	messages := buildMessages(prompt, hits)
	tokens := budget.EstimateMessages(messages)
	c.metrics.prompt(tokens)

	log.Debug("composer: calling model",
		slog.Int("chunks", len(hits)),
		slog.Int("estimated_tokens", tokens),
	)

	out, err := c.chat.Generate(ctx, messages)
	if err != nil {
		c.metrics.outcome(outcomeError)
		return Answer{}, apperr.Dependency("composer.answer", "completion model call failed", err)
	}
	if out == nil {
		c.metrics.outcome(outcomeError)
		return Answer{}, apperr.Dependency("composer.answer", "completion model returned no message", nil)
	}

	if degraded {
		c.metrics.outcome(outcomeDegraded)
	} else {
		c.metrics.outcome(outcomeOK)
	}
	return Answer{
		Text:      out.Content,
		Citations: citations(hits),
		Grounded:  len(hits) > 0,
	}, nil
}

// fit drops the lowest-ranked hits until the estimated prompt size fits the
// context budget.
func (c *Composer) fit(ctx context.Context, prompt string, hits []retrieval.Hit) []retrieval.Hit {
	if len(hits) == 0 || c.maxContextTokens <= 0 {
		return hits
	}
	reserved := budget.EstimateMessages(buildMessages(prompt, nil)) + budget.Estimate(contextHeader)
	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = formatHit(h)
	}
	kept := len(budget.FitChunks(blocks, reserved, c.maxContextTokens))
	if dropped := len(hits) - kept; dropped > 0 {
		c.logger(ctx).Warn("budget: dropped retrieved chunks to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", kept),
			slog.Int("max_tokens", c.maxContextTokens),
		)
	}
	return hits[:kept]
}

// logger returns the request-scoped logger when one is attached.
func (c *Composer) logger(ctx context.Context) *slog.Logger {
	if l := logging.FromContext(ctx); l != slog.Default() {
		return l
	}
	return c.log
}

// buildMessages returns the system instruction followed by the prompt.
func buildMessages(prompt string, hits []retrieval.Hit) []*schema.Message {
	system := persona
	if ctxText := buildContext(hits); ctxText != "" {
		system += contextHeader + ctxText
	}
	return []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(prompt),
	}
}

// buildContext concatenates hits in rank order.
func buildContext(hits []retrieval.Hit) string {
	var sb strings.Builder
	for _, h := range hits {
		sb.WriteString(formatHit(h))
	}
	return sb.String()
}

// formatHit renders one grounding block.
func formatHit(h retrieval.Hit) string {
	return "Source: " + h.Filename + "\nContent: " + h.Content + "\n\n"
}

// citations returns the sorted, de-duplicated filenames of hits.
func citations(hits []retrieval.Hit) []string {
	seen := make(map[string]struct{}, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.Filename]; ok {
			continue
		}
		seen[h.Filename] = struct{}{}
		out = append(out, h.Filename)
	}
	sort.Strings(out)
	return out
}
