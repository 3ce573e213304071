package fusion

import (
	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/text"
)

// Features is the per-chunk signal a Reranker sees. All values are in [0,1].
type Features struct {
	Fused           float64
	KeywordOverlap  float64
	SourceAgreement float64
}

// Reranker is an optional stage applied after Merge. It must not drop or
// duplicate chunks.
type Reranker interface {
	Rerank(question string, fused []domain.ScoredChunk) []domain.ScoredChunk
}

// LinearReranker rescores the head of the fused list with a weighted sum of
// Features. Chunks past TopN keep their fused order behind the head, with
// scores scaled below the lowest head score so the list stays descending.
type LinearReranker struct {
	FusedWeight     float64
	OverlapWeight   float64
	AgreementWeight float64
	TopN            int
	Analyzer        text.Analyzer
}

func NewLinearReranker(topN int) *LinearReranker {
	return &LinearReranker{
		FusedWeight:     0.60,
		OverlapWeight:   0.30,
		AgreementWeight: 0.10,
		TopN:            topN,
		Analyzer:        text.DefaultAnalyzer,
	}
}

func (r *LinearReranker) Rerank(question string, fused []domain.ScoredChunk) []domain.ScoredChunk {
	if len(fused) == 0 {
		return fused
	}
	topN := r.TopN
	if topN <= 0 || topN > len(fused) {
		topN = len(fused)
	}

	head := make([]domain.ScoredChunk, topN)
	copy(head, fused[:topN])
	keywords := r.Analyzer.Keywords(question)

	minScore, maxScore := head[0].Score, head[0].Score
	for _, chunk := range head[1:] {
		if chunk.Score < minScore {
			minScore = chunk.Score
		}
		if chunk.Score > maxScore {
			maxScore = chunk.Score
		}
	}
	rangeScore := maxScore - minScore
	normalize := func(v float64) float64 {
		if rangeScore <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return (v - minScore) / rangeScore
	}

	for i := range head {
		f := Features{Fused: normalize(head[i].Score)}
		if head[i].Chunk != nil {
			f.KeywordOverlap = keywordOverlap(keywords, r.Analyzer.TokenSet(head[i].Chunk.Text))
		}
		if len(head[i].Sources) > 1 {
			f.SourceAgreement = 1
		}
		head[i].Score = r.score(f)
	}
	SortScored(head)

	if topN == len(fused) {
		return head
	}
	out := make([]domain.ScoredChunk, 0, len(fused))
	out = append(out, head...)
	floor := head[len(head)-1].Score
	tailMax := fused[topN].Score
	for _, chunk := range fused[topN:] {
		if tailMax > 0 {
			chunk.Score = floor * chunk.Score / tailMax
		} else {
			chunk.Score = 0
		}
		out = append(out, chunk)
	}
	return out
}

func (r *LinearReranker) score(f Features) float64 {
	return r.FusedWeight*f.Fused + r.OverlapWeight*f.KeywordOverlap + r.AgreementWeight*f.SourceAgreement
}

func keywordOverlap(keywords []string, chunk map[string]struct{}) float64 {
	if len(keywords) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for _, kw := range keywords {
		if _, ok := chunk[kw]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(keywords))
}
