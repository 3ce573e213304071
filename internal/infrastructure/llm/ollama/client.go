package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/resilience"
)

const (
	opGenerate = "ollama_generate"
	opEmbed    = "ollama_embed"
)

// Config describes one Ollama endpoint. RateLimitRPS <= 0 disables client
// side throttling.
type Config struct {
	BaseURL      string
	GenModel     string
	EmbedModel   string
	Timeout      time.Duration
	Temperature  float64
	RateLimitRPS float64
	RateBurst    int
}

type Client struct {
	baseURL     string
	genModel    string
	embedModel  string
	temperature float64
	httpClient  *http.Client
	limiter     *rate.Limiter
	exec        *resilience.Executor
}

func New(cfg Config, exec *resilience.Executor) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		genModel:    cfg.GenModel,
		embedModel:  cfg.EmbedModel,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     limiter,
		exec:        exec,
	}
}

// Completer implements ports.Completer on /api/generate.
type Completer struct {
	client *Client
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

// Complete returns the model response as is; callers decide what an empty
// or whitespace-only completion means.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	request := map[string]any{
		"model":  c.client.genModel,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": c.client.temperature,
		},
	}
	var response struct {
		Response string `json:"response"`
	}
	if err := c.client.call(ctx, "/api/generate", request, &response, opGenerate); err != nil {
		return "", err
	}
	return response.Response, nil
}

// Embedder implements ports.Embedder on /api/embed.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Model() string { return e.client.embedModel }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "/api/embed", request, &response, opEmbed); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return vectors[0], nil
}
