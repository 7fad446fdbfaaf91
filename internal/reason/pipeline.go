package reason

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bookmentor/pkg/domain"
	"bookmentor/pkg/llm"
)

// LLMClient is the slice of the provider client the pipeline needs.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteStructured(ctx context.Context, systemPrompt, contextBlock, question string, out llm.Schema) error
}

// BookSource provides the hierarchical book-structure lookups.
type BookSource interface {
	Parts(ctx context.Context) (string, error)
	Chapters(ctx context.Context, part int) (string, error)
	Subchapters(ctx context.Context, part, chapter int) (string, error)
	SubchapterContent(ctx context.Context, id string) (string, error)
}

// Config wires the pipeline dependencies.
type Config struct {
	LLM   LLMClient
	Books BookSource
	// FixedSubchapters feeds EvaluateAnswer: the one-shot mode skips the
	// narrowing stages and judges against these subchapters directly.
	FixedSubchapters []string
}

// Pipeline narrows a book to the most relevant subchapter in three
// LLM-guided stages and produces a final judgment in a fourth. A
// failure at any stage aborts the whole run; partial reasoning is
// never returned.
type Pipeline struct {
	llm              LLMClient
	books            BookSource
	fixedSubchapters []string
}

// New constructs the pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("reason: llm client required")
	}
	if cfg.Books == nil {
		return nil, fmt.Errorf("reason: book source required")
	}
	return &Pipeline{
		llm:              cfg.LLM,
		books:            cfg.Books,
		fixedSubchapters: cfg.FixedSubchapters,
	}, nil
}

// Answer runs all four stages for one question.
//
// A null chapter or subchapter selection does not abort the run: the
// next lookup is replaced by an empty listing, so the final stage sees
// an empty excerpt and judges accordingly.
func (p *Pipeline) Answer(ctx context.Context, question string) (domain.Answer, error) {
	parts, err := p.books.Parts(ctx)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("fetch parts: %w", err)
	}
	var partChoice llm.PartChoice
	if err := p.llm.CompleteStructured(ctx, systemPromptPart, "Book part descriptions: "+parts, question, &partChoice); err != nil {
		return domain.Answer{}, fmt.Errorf("part selection: %w", err)
	}
	slog.Info("part selected", "part", *partChoice.SelectedPart)

	chapters, err := p.books.Chapters(ctx, *partChoice.SelectedPart)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("fetch chapters: %w", err)
	}
	var chapterChoice llm.ChapterChoice
	if err := p.llm.CompleteStructured(ctx, systemPromptChapter, "Chapter descriptions: "+chapters, question, &chapterChoice); err != nil {
		return domain.Answer{}, fmt.Errorf("chapter selection: %w", err)
	}

	subchapters := "[]"
	if chapterChoice.SelectedChapter != nil {
		slog.Info("chapter selected", "chapter", *chapterChoice.SelectedChapter)
		subchapters, err = p.books.Subchapters(ctx, *partChoice.SelectedPart, *chapterChoice.SelectedChapter)
		if err != nil {
			return domain.Answer{}, fmt.Errorf("fetch subchapters: %w", err)
		}
	} else {
		slog.Info("no confident chapter choice, continuing with empty listing")
	}
	var subChoice llm.SubchapterChoice
	if err := p.llm.CompleteStructured(ctx, systemPromptSubchapter, "Subchapter descriptions: "+subchapters, question, &subChoice); err != nil {
		return domain.Answer{}, fmt.Errorf("subchapter selection: %w", err)
	}

	excerpt := ""
	if subChoice.SelectedSubchapter != nil {
		id := *subChoice.SelectedSubchapter
		slog.Info("subchapter selected", "subchapter", id)
		content, err := p.books.SubchapterContent(ctx, id)
		if err != nil {
			return domain.Answer{}, fmt.Errorf("fetch subchapter %s content: %w", id, err)
		}
		excerpt = tagExcerpt(id, content)
	}

	var judgment llm.FinalJudgment
	if err := p.llm.CompleteStructured(ctx, systemPromptFinal, "Book excerpt:\n"+excerpt, question, &judgment); err != nil {
		return domain.Answer{}, fmt.Errorf("final judgment: %w", err)
	}

	return domain.Answer{
		Question:  question,
		Answer:    judgment.Render(),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EvaluateAnswer judges one question/answer pair against the fixed
// subchapter list, skipping the narrowing stages. This stands in for
// page-level summaries the book service does not expose yet and stays
// available as a configured mode.
func (p *Pipeline) EvaluateAnswer(ctx context.Context, question, userAnswer string) (string, error) {
	if len(p.fixedSubchapters) == 0 {
		return "", fmt.Errorf("reason: no fixed subchapters configured")
	}
	var sb strings.Builder
	for _, id := range p.fixedSubchapters {
		content, err := p.books.SubchapterContent(ctx, id)
		if err != nil {
			return "", fmt.Errorf("fetch subchapter %s content: %w", id, err)
		}
		sb.WriteString(tagExcerpt(id, content))
		sb.WriteString("\n")
	}
	prompt := fmt.Sprintf("Book excerpts:\n%s\nQuestion: %s\nReader's answer: %s\n\nEvaluate the reader's answer according to the INSTRUCTIONS.",
		sb.String(), question, userAnswer)
	return p.llm.Complete(ctx, "INSTRUCTIONS: "+systemPromptFinal, prompt)
}

func tagExcerpt(id, content string) string {
	return fmt.Sprintf("<content_book subchapter=%q>\n%s\n</content_book>", id, content)
}
