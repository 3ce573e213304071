package domain

import (
	"fmt"
	"time"
)

const (
	DefaultChunkTargetSize = 500
	DefaultChunkOverlap    = 50
)

// Document is normalized text supplied by the ingestion side.
type Document struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Chunk is a bounded segment of a document. Offset and Length count
// characters (runes) in the source document text.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	Offset     int    `json:"offset"`
	Length     int    `json:"length"`
}

type ChunkingParams struct {
	TargetSize int `json:"target_size"`
	Overlap    int `json:"overlap"`
}

func DefaultChunkingParams() ChunkingParams {
	return ChunkingParams{
		TargetSize: DefaultChunkTargetSize,
		Overlap:    DefaultChunkOverlap,
	}
}

func (p ChunkingParams) Validate() error {
	if p.TargetSize <= 0 {
		return WrapError(ErrInvalidConfig, "chunking params", fmt.Errorf("target_size must be positive, got %d", p.TargetSize))
	}
	if p.Overlap < 0 {
		return WrapError(ErrInvalidConfig, "chunking params", fmt.Errorf("overlap must not be negative, got %d", p.Overlap))
	}
	if p.Overlap >= p.TargetSize {
		return WrapError(ErrInvalidConfig, "chunking params", fmt.Errorf("overlap %d must be smaller than target_size %d", p.Overlap, p.TargetSize))
	}
	return nil
}

// CorpusRequest describes one full corpus build.
type CorpusRequest struct {
	Documents []Document      `json:"documents"`
	Chunking  ChunkingParams  `json:"chunking"`
	Fusion    FusionOverrides `json:"fusion"`
}

type CorpusStatus struct {
	Ready         bool         `json:"ready"`
	Building      bool         `json:"building"`
	Version       uint64       `json:"version"`
	Fingerprint   string       `json:"fingerprint,omitempty"`
	Documents     int          `json:"documents"`
	Chunks        int          `json:"chunks"`
	Dimensions    int          `json:"dimensions"`
	Algorithms    []Algorithm  `json:"algorithms"`
	Fusion        FusionConfig `json:"fusion"`
	FromSnapshot  bool         `json:"from_snapshot"`
	BuiltAt       time.Time    `json:"built_at"`
	BuildDuration string       `json:"build_duration,omitempty"`
}

// CorpusEvent announces that the corpus at Source changed and should be rebuilt.
type CorpusEvent struct {
	Source    string    `json:"source"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
