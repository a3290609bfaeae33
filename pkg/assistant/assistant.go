// Package assistant answers questions about saved labels from retrieved evidence.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/sirupsen/logrus"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/internal"
	"github.com/rxevidence/rxevidence/pkg/models"
)

var log = internal.GetLogger()

// NoEvidenceAnswer is returned, without a generation call, when retrieval finds nothing.
const NoEvidenceAnswer = "No relevant information found in the saved labels."

var answerTemplate = template.Must(
	template.New("answer").
		Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
		Parse(answerPromptTemplate),
)

var _ models.Assistant = &Assistant{}

type Assistant struct {
	llm       models.LLM
	retriever models.Retriever
	rewrite   bool
}

func NewAssistant(
	llm models.LLM,
	retriever models.Retriever,
	cfg config.AssistantConfig,
) *Assistant {
	return &Assistant{
		llm:       llm,
		retriever: retriever,
		rewrite:   !cfg.DisableQueryRewrite,
	}
}

// Rewrite rephrases question in FDA label register for retrieval. An empty
// completion falls back to the question as asked.
func (a *Assistant) Rewrite(ctx context.Context, question string) (string, error) {
	prompt, err := internal.ParsePrompt(rewritePromptTemplate, rewritePromptData{Question: question})
	if err != nil {
		return "", fmt.Errorf("failed to render rewrite prompt: %w", err)
	}

	a.logTokens("rewrite", prompt)

	rewritten, err := a.llm.Call(ctx, rewriteSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("query rewrite failed: %w", err)
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return question, nil
	}

	log.Debugf("rewrote query %q as %q", question, rewritten)

	return rewritten, nil
}

// Generate answers question from matches. Evidence is numbered from 1 in the
// order given and the answer cites those numbers.
func (a *Assistant) Generate(
	ctx context.Context,
	question string,
	matches []models.Match,
) (string, error) {
	prompt, err := RenderEvidencePrompt(question, matches)
	if err != nil {
		return "", err
	}

	a.logTokens("answer", prompt)

	answer, err := a.llm.Call(ctx, answerSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("answer generation failed: %w", err)
	}

	return strings.TrimSpace(answer), nil
}

// Answer retrieves evidence for question and generates a cited answer. The
// rewritten question is used for retrieval only; generation sees the original.
func (a *Assistant) Answer(
	ctx context.Context,
	question string,
	k int,
	labelID *int64,
) (*models.AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty: %w", models.ErrBadRequest)
	}

	query := question
	if a.rewrite {
		var err error
		query, err = a.Rewrite(ctx, question)
		if err != nil {
			return nil, err
		}
	}

	result, err := a.retriever.Search(ctx, query, k, labelID)
	if err != nil {
		return nil, err
	}

	if len(result.Matches) == 0 {
		return &models.AnswerResult{
			Answer:       NoEvidenceAnswer,
			Citations:    []models.Citation{},
			UsedFallback: result.UsedFallback,
		}, nil
	}

	answer, err := a.Generate(ctx, question, result.Matches)
	if err != nil {
		return nil, err
	}

	return &models.AnswerResult{
		Answer:       answer,
		Citations:    Citations(result.Matches),
		UsedFallback: result.UsedFallback,
	}, nil
}

// RenderEvidencePrompt renders the question and the numbered evidence block.
func RenderEvidencePrompt(question string, matches []models.Match) (string, error) {
	var sb strings.Builder
	err := answerTemplate.Execute(&sb, struct {
		Question string
		Matches  []models.Match
	}{Question: question, Matches: matches})
	if err != nil {
		return "", fmt.Errorf("failed to render answer prompt: %w", err)
	}
	return sb.String(), nil
}

// Citations lists matches in evidence order, so Citations[i] is evidence [i+1].
func Citations(matches []models.Match) []models.Citation {
	citations := make([]models.Citation, len(matches))
	for i, m := range matches {
		citations[i] = models.Citation{
			ID:         m.ID,
			LabelID:    m.LabelID,
			Section:    m.Section,
			ChunkIndex: m.ChunkIndex,
			Distance:   m.Distance,
		}
	}
	return citations
}

func (a *Assistant) logTokens(step, prompt string) {
	if !log.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	n, err := a.llm.GetTokenCount(prompt)
	if err != nil {
		log.Debugf("failed to count %s prompt tokens: %v", step, err)
		return
	}
	log.Debugf("%s prompt is %d tokens", step, n)
}
