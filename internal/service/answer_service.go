package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

const (
	// SummaryQuery drives the broad retrieval behind a summary.
	SummaryQuery = "main topics, key points, conclusions and important details of the document"
	// SummaryInstruction replaces the user question when summarising.
	SummaryInstruction = "Produce a comprehensive summary of the document. Cover its purpose, main topics, key points and conclusions. Use clear paragraphs."
)

const systemPromptTemplate = `You are a helpful AI assistant answering questions about a document the user uploaded.
Answer ONLY from the context below. Do not use outside knowledge.
If the context does not contain the answer, say that the document does not cover it.
Context: %s`

// AnswerService asks the language model for an answer grounded in the
// retrieved chunks. It persists nothing.
type AnswerService struct {
	gen     ai.IGenerator
	timeout time.Duration
}

func NewAnswerService(gen ai.IGenerator, timeout time.Duration) *AnswerService {
	return &AnswerService{gen: gen, timeout: timeout}
}

type contextDoc struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Page   *int   `json:"page,omitempty"`
}

func BuildSystemPrompt(matches []model.ChunkMatch) (string, error) {
	docs := make([]contextDoc, 0, len(matches))
	for _, m := range matches {
		docs = append(docs, contextDoc{Text: m.Text, Source: m.Source, Page: m.Page})
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(systemPromptTemplate, raw), nil
}

func (s *AnswerService) Synthesize(ctx context.Context, query string, matches []model.ChunkMatch) (string, error) {
	system, err := BuildSystemPrompt(matches)
	if err != nil {
		return "", err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	resp, err := s.gen.Complete(ctx, system, query)
	if err != nil {
		logutil.GetLogger(ctx).Error("generate answer failed", zap.Error(err))
		return "", appErr.Wrap(appErr.ErrGenerationService, err)
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("%w: empty ai response", appErr.ErrGenerationService)
	}
	return text, nil
}
