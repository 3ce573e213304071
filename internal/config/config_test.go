package config

import (
	"testing"
	"time"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

func TestLoadIncludesRetrievalDefaults(t *testing.T) {
	t.Setenv("CHUNK_TARGET_SIZE", "")
	t.Setenv("FUSION_SEMANTIC_WEIGHT", "")
	t.Setenv("RETRIEVAL_ALGORITHMS", "")
	t.Setenv("QA_DEFAULT_MODE", "")
	t.Setenv("SYNTHESIS_TIMEOUT", "")

	cfg := Load()
	if cfg.ChunkingParams() != domain.DefaultChunkingParams() {
		t.Fatalf("expected default chunking params, got %+v", cfg.ChunkingParams())
	}
	if cfg.FusionConfig() != domain.DefaultFusionConfig() {
		t.Fatalf("expected default fusion config, got %+v", cfg.FusionConfig())
	}
	algs, err := cfg.Algorithms()
	if err != nil || len(algs) != 2 || algs[0] != domain.AlgorithmLexical || algs[1] != domain.AlgorithmSemantic {
		t.Fatalf("expected lexical+semantic, got %v (%v)", algs, err)
	}
	if cfg.QADefaultMode != "extraction" {
		t.Fatalf("expected extraction default mode, got %q", cfg.QADefaultMode)
	}
	if cfg.SynthesisTimeout != 20*time.Second {
		t.Fatalf("expected 20s synthesis timeout, got %s", cfg.SynthesisTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate, got %v", err)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CHUNK_TARGET_SIZE", "300")
	t.Setenv("CHUNK_OVERLAP", "30")
	t.Setenv("FUSION_BONUS", "0.25")
	t.Setenv("RETRIEVAL_ALGORITHMS", " lexical , lexical ")
	t.Setenv("SYNTHESIS_TIMEOUT", "5s")
	t.Setenv("SNAPSHOT_BACKEND", "Badger")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")

	cfg := Load()
	if cfg.ChunkTargetSize != 300 || cfg.ChunkOverlap != 30 {
		t.Fatalf("unexpected chunking %d/%d", cfg.ChunkTargetSize, cfg.ChunkOverlap)
	}
	if cfg.FusionBonus != 0.25 || cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("unexpected floats bonus=%v rps=%v", cfg.FusionBonus, cfg.APIRateLimitRPS)
	}
	algs, err := cfg.Algorithms()
	if err != nil || len(algs) != 1 || algs[0] != domain.AlgorithmLexical {
		t.Fatalf("expected deduplicated lexical, got %v (%v)", algs, err)
	}
	if cfg.SemanticEnabled() {
		t.Fatalf("semantic must be disabled")
	}
	if cfg.SynthesisTimeout != 5*time.Second || cfg.SnapshotBackend != SnapshotBackendBadger {
		t.Fatalf("unexpected timeout=%s backend=%s", cfg.SynthesisTimeout, cfg.SnapshotBackend)
	}
}

func TestLoadFallsBackOnUnparsableValues(t *testing.T) {
	t.Setenv("QA_TOP_K", "many")
	t.Setenv("SYNTHESIS_TIMEOUT", "soon")
	t.Setenv("RERANK_ENABLED", "perhaps")

	cfg := Load()
	if cfg.QATopK != 5 || cfg.SynthesisTimeout != 20*time.Second || cfg.RerankEnabled {
		t.Fatalf("expected fallbacks, got topk=%d timeout=%s rerank=%v", cfg.QATopK, cfg.SynthesisTimeout, cfg.RerankEnabled)
	}
}

func TestValidateRejectsInvalidSettings(t *testing.T) {
	cases := map[string]func(*Config){
		"overlap":   func(c *Config) { c.ChunkOverlap = c.ChunkTargetSize },
		"weight":    func(c *Config) { c.FusionLexicalWeight = -1 },
		"algorithm": func(c *Config) { c.RetrievalAlgorithms = []string{"dense"} },
		"mode":      func(c *Config) { c.QADefaultMode = "poetry" },
		"backend":   func(c *Config) { c.SnapshotBackend = "s3" },
		"watch":     func(c *Config) { c.CorpusWatch = true; c.CorpusDir = "" },
		"bm25":      func(c *Config) { c.BM25B = 2 },
	}
	for name, mutate := range cases {
		cfg := Load()
		mutate(&cfg)
		if err := cfg.Validate(); !domain.IsKind(err, domain.ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}
