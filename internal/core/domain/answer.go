package domain

import (
	"fmt"
	"strings"
	"time"
)

type AnswerMode string

const (
	ModeExtraction AnswerMode = "extraction"
	ModeSynthesis  AnswerMode = "synthesis"
)

// InsufficientAnswer is returned whenever nothing relevant was retrieved.
const InsufficientAnswer = "Insufficient information in the indexed documents to answer this question."

func ParseAnswerMode(raw string) (AnswerMode, error) {
	switch AnswerMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeExtraction:
		return ModeExtraction, nil
	case ModeSynthesis:
		return ModeSynthesis, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse answer mode", fmt.Errorf("unknown mode %q", raw))
	}
}

type QueryRequest struct {
	Question string     `json:"question"`
	TopK     int        `json:"top_k"`
	Mode     AnswerMode `json:"mode"`
	// Vector optionally carries a precomputed query embedding.
	Vector []float32 `json:"vector,omitempty"`
}

type QAResult struct {
	Question       string     `json:"question"`
	Answer         string     `json:"answer"`
	Confidence     float64    `json:"confidence"`
	Sources        []string   `json:"sources"`
	Mode           AnswerMode `json:"mode"`
	FallbackReason string     `json:"fallback_reason,omitempty"`
	NodeID         string     `json:"node_id,omitempty"`
	Category       string     `json:"category,omitempty"`
	AnswerCategory string     `json:"answer_category,omitempty"`
	FollowUp       bool       `json:"follow_up,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (r QAResult) Insufficient() bool {
	return len(r.Sources) == 0 && r.Answer == InsufficientAnswer
}

func NewInsufficientResult(question string, mode AnswerMode) QAResult {
	return QAResult{
		Question:   question,
		Answer:     InsufficientAnswer,
		Confidence: 0,
		Sources:    []string{},
		Mode:       mode,
		CreatedAt:  time.Now().UTC(),
	}
}
