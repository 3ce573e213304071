package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

func buildAnswerPrompt(question string, chunks []domain.ScoredChunk) string {
	var contextBuilder strings.Builder
	for idx, chunk := range chunks {
		if chunk.Chunk == nil {
			continue
		}
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] chunk=%s document=%s score=%.3f\n%s\n\n",
			idx+1,
			chunk.ChunkID,
			chunk.Chunk.DocumentID,
			chunk.Score,
			chunk.Chunk.Text,
		))
	}

	return fmt.Sprintf(`Answer the question using only the numbered context passages below.
Cite every passage you rely on by its number in square brackets, for example [1].
If the context is insufficient, say so directly.

Question:
%s

Context:
%s
`, question, contextBuilder.String())
}
