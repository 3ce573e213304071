package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/retrieval/lexical"
	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/resilience"
)

const (
	SnapshotBackendFile   = "file"
	SnapshotBackendBadger = "badger"
	SnapshotBackendNone   = "none"
)

type Config struct {
	APIPort           string
	WorkerMetricsPort string
	LogLevel          string
	LogFormat         string

	APIKey            string
	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxInFlight    int
	APIInFlightWait   time.Duration
	APIMaxBodyBytes   int64

	ChunkTargetSize int
	ChunkOverlap    int

	FusionLexicalWeight  float64
	FusionSemanticWeight float64
	FusionBonus          float64
	FusionMinScore       float64

	BM25K1    float64
	BM25B     float64
	BM25Delta float64

	RetrievalAlgorithms []string
	RetrievalCandidates int
	RerankEnabled       bool
	RerankTopN          int

	QATopK            int
	QADefaultMode     string
	AnswerBudgetChars int
	SynthesisTimeout  time.Duration

	OllamaURL         string
	OllamaGenModel    string
	OllamaEmbedModel  string
	OllamaTimeout     time.Duration
	OllamaTemperature float64
	LLMRateLimitRPS   float64
	LLMRateLimitBurst int

	EmbedCacheSize int
	EmbedBatchSize int
	BuildWorkers   int

	SnapshotBackend string
	SnapshotPath    string
	SnapshotTTL     time.Duration

	PostgresDSN string

	NATSURL        string
	NATSSubject    string
	NATSQueueGroup string

	CorpusDir           string
	CorpusWatch         bool
	CorpusWatchDebounce time.Duration

	FlowPath    string
	DefaultFlow string

	Resilience resilience.Config
}

func Load() Config {
	def := resilience.DefaultConfig()
	return Config{
		APIPort:           mustEnv("API_PORT", "8080"),
		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9091"),
		LogLevel:          mustEnv("LOG_LEVEL", "info"),
		LogFormat:         mustEnv("LOG_FORMAT", "json"),

		APIKey:            mustEnv("API_KEY", ""),
		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIMaxInFlight:    mustEnvInt("API_MAX_IN_FLIGHT", 32),
		APIInFlightWait:   mustEnvDuration("API_IN_FLIGHT_WAIT", 250*time.Millisecond),
		APIMaxBodyBytes:   int64(mustEnvInt("API_MAX_BODY_BYTES", 32<<20)),

		ChunkTargetSize: mustEnvInt("CHUNK_TARGET_SIZE", domain.DefaultChunkTargetSize),
		ChunkOverlap:    mustEnvInt("CHUNK_OVERLAP", domain.DefaultChunkOverlap),

		FusionLexicalWeight:  mustEnvFloat("FUSION_LEXICAL_WEIGHT", domain.DefaultLexicalWeight),
		FusionSemanticWeight: mustEnvFloat("FUSION_SEMANTIC_WEIGHT", domain.DefaultSemanticWeight),
		FusionBonus:          mustEnvFloat("FUSION_BONUS", domain.DefaultFusionBonus),
		FusionMinScore:       mustEnvFloat("FUSION_MIN_SCORE", domain.DefaultMinScore),

		BM25K1:    mustEnvFloat("BM25_K1", lexical.DefaultParams().K1),
		BM25B:     mustEnvFloat("BM25_B", lexical.DefaultParams().B),
		BM25Delta: mustEnvFloat("BM25_DELTA", lexical.DefaultParams().Delta),

		RetrievalAlgorithms: mustEnvList("RETRIEVAL_ALGORITHMS", []string{"lexical", "semantic"}),
		RetrievalCandidates: mustEnvInt("RETRIEVAL_CANDIDATES", 30),
		RerankEnabled:       mustEnvBool("RERANK_ENABLED", false),
		RerankTopN:          mustEnvInt("RERANK_TOP_N", 20),

		QATopK:            mustEnvInt("QA_TOP_K", 5),
		QADefaultMode:     mustEnv("QA_DEFAULT_MODE", string(domain.ModeExtraction)),
		AnswerBudgetChars: mustEnvInt("ANSWER_BUDGET_CHARS", 600),
		SynthesisTimeout:  mustEnvDuration("SYNTHESIS_TIMEOUT", 20*time.Second),

		OllamaURL:         mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:    mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		OllamaEmbedModel:  mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		OllamaTimeout:     mustEnvDuration("OLLAMA_TIMEOUT", 60*time.Second),
		OllamaTemperature: mustEnvFloat("OLLAMA_TEMPERATURE", 0),
		LLMRateLimitRPS:   mustEnvFloat("LLM_RATE_LIMIT_RPS", 0),
		LLMRateLimitBurst: mustEnvInt("LLM_RATE_LIMIT_BURST", 1),

		EmbedCacheSize: mustEnvInt("EMBED_CACHE_SIZE", 1024),
		EmbedBatchSize: mustEnvInt("EMBED_BATCH_SIZE", 32),
		BuildWorkers:   mustEnvInt("BUILD_WORKERS", 4),

		SnapshotBackend: strings.ToLower(mustEnv("SNAPSHOT_BACKEND", SnapshotBackendFile)),
		SnapshotPath:    mustEnv("SNAPSHOT_PATH", "./data/snapshots"),
		SnapshotTTL:     mustEnvDuration("SNAPSHOT_TTL", 0),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:        mustEnv("NATS_URL", ""),
		NATSSubject:    mustEnv("NATS_SUBJECT", "corpus.changed"),
		NATSQueueGroup: mustEnv("NATS_QUEUE_GROUP", "corpus-rebuilders"),

		CorpusDir:           mustEnv("CORPUS_DIR", ""),
		CorpusWatch:         mustEnvBool("CORPUS_WATCH", false),
		CorpusWatchDebounce: mustEnvDuration("CORPUS_WATCH_DEBOUNCE", 500*time.Millisecond),

		FlowPath:    mustEnv("FLOW_PATH", ""),
		DefaultFlow: mustEnv("DEFAULT_FLOW", ""),

		Resilience: resilience.Config{
			RetryMaxAttempts:        mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", def.RetryMaxAttempts),
			RetryInitialBackoff:     mustEnvDuration("RESILIENCE_RETRY_INITIAL_BACKOFF", def.RetryInitialBackoff),
			RetryMaxBackoff:         mustEnvDuration("RESILIENCE_RETRY_MAX_BACKOFF", def.RetryMaxBackoff),
			RetryMultiplier:         mustEnvFloat("RESILIENCE_RETRY_MULTIPLIER", def.RetryMultiplier),
			BreakerEnabled:          mustEnvBool("RESILIENCE_BREAKER_ENABLED", def.BreakerEnabled),
			BreakerMinRequests:      uint32(mustEnvInt("RESILIENCE_BREAKER_MIN_REQUESTS", int(def.BreakerMinRequests))),
			BreakerFailureRatio:     mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", def.BreakerFailureRatio),
			BreakerOpenTimeout:      mustEnvDuration("RESILIENCE_BREAKER_OPEN_TIMEOUT", def.BreakerOpenTimeout),
			BreakerHalfOpenMaxCalls: uint32(mustEnvInt("RESILIENCE_BREAKER_HALF_OPEN_MAX_CALLS", int(def.BreakerHalfOpenMaxCalls))),
		},
	}
}

func (c Config) ChunkingParams() domain.ChunkingParams {
	return domain.ChunkingParams{TargetSize: c.ChunkTargetSize, Overlap: c.ChunkOverlap}
}

func (c Config) FusionConfig() domain.FusionConfig {
	return domain.FusionConfig{
		Weights: domain.Weights{
			Lexical:  c.FusionLexicalWeight,
			Semantic: c.FusionSemanticWeight,
		},
		Bonus:    c.FusionBonus,
		MinScore: c.FusionMinScore,
	}
}

func (c Config) LexicalParams() lexical.Params {
	p := lexical.DefaultParams()
	p.K1 = c.BM25K1
	p.B = c.BM25B
	p.Delta = c.BM25Delta
	return p
}

// Algorithms parses RETRIEVAL_ALGORITHMS, dropping duplicates.
func (c Config) Algorithms() ([]domain.Algorithm, error) {
	out := make([]domain.Algorithm, 0, len(c.RetrievalAlgorithms))
	seen := make(map[domain.Algorithm]bool, len(c.RetrievalAlgorithms))
	for _, raw := range c.RetrievalAlgorithms {
		alg, err := domain.ParseAlgorithm(raw)
		if err != nil {
			return nil, err
		}
		if seen[alg] {
			continue
		}
		seen[alg] = true
		out = append(out, alg)
	}
	if len(out) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "retrieval algorithms", errors.New("at least one algorithm is required"))
	}
	return out, nil
}

func (c Config) SemanticEnabled() bool {
	algs, err := c.Algorithms()
	if err != nil {
		return false
	}
	for _, alg := range algs {
		if alg == domain.AlgorithmSemantic {
			return true
		}
	}
	return false
}

// Validate fails fast on settings that would otherwise surface only at the
// first corpus build or query.
func (c Config) Validate() error {
	const op = "validate config"
	var errs []error

	if err := c.ChunkingParams().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.FusionConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Algorithms(); err != nil {
		errs = append(errs, err)
	}
	if _, err := domain.ParseAnswerMode(c.QADefaultMode); err != nil {
		errs = append(errs, fmt.Errorf("QA_DEFAULT_MODE: %w", err))
	}
	if c.BM25K1 <= 0 || c.BM25B < 0 || c.BM25B > 1 || c.BM25Delta < 0 {
		errs = append(errs, fmt.Errorf("bm25 params out of range: k1=%v b=%v delta=%v", c.BM25K1, c.BM25B, c.BM25Delta))
	}
	if c.QATopK <= 0 {
		errs = append(errs, fmt.Errorf("QA_TOP_K must be positive, got %d", c.QATopK))
	}
	if c.SynthesisTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SYNTHESIS_TIMEOUT must be positive, got %s", c.SynthesisTimeout))
	}
	if c.SemanticEnabled() && strings.TrimSpace(c.OllamaEmbedModel) == "" {
		errs = append(errs, errors.New("OLLAMA_EMBED_MODEL is required when semantic retrieval is enabled"))
	}
	switch c.SnapshotBackend {
	case SnapshotBackendFile, SnapshotBackendBadger, SnapshotBackendNone:
	default:
		errs = append(errs, fmt.Errorf("unknown SNAPSHOT_BACKEND %q", c.SnapshotBackend))
	}
	if c.CorpusWatch && c.CorpusDir == "" {
		errs = append(errs, errors.New("CORPUS_WATCH requires CORPUS_DIR"))
	}
	if err := c.Resilience.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	return domain.WrapError(domain.ErrInvalidConfig, op, errors.Join(errs...))
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
