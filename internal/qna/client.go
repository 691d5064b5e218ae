package qna

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 4 << 10

// Candidate is one ranked answer for an utterance.
type Candidate struct {
	Answer    string
	Score     float64
	Questions []string
	ID        int
	Source    string
}

// Backend looks up ranked answers for an utterance.
type Backend interface {
	Lookup(ctx context.Context, question string) ([]Candidate, error)
}

// Client calls the generateAnswer endpoint of a knowledge base.
type Client struct {
	cfg        Config
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	endpoint := host + "/knowledgebases/" + url.PathEscape(strings.TrimSpace(cfg.KnowledgeBaseID)) + "/generateAnswer"

	c := &Client{
		cfg:        cfg,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "qna")
	return c, nil
}

type generateAnswerRequest struct {
	Question       string  `json:"question"`
	Top            int     `json:"top"`
	ScoreThreshold float64 `json:"scoreThreshold"`
}

type generateAnswerResponse struct {
	Answers []struct {
		Questions []string `json:"questions"`
		Answer    string   `json:"answer"`
		Score     float64  `json:"score"`
		ID        int      `json:"id"`
		Source    string   `json:"source"`
	} `json:"answers"`
}

// Lookup sends the utterance to the knowledge base and returns candidates
// ordered by descending score. Scores are normalized to [0, 1]; the
// service's zero-score "no match" placeholder is dropped.
func (c *Client) Lookup(ctx context.Context, question string) ([]Candidate, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil
	}

	body, err := json.Marshal(generateAnswerRequest{
		Question:       question,
		Top:            c.cfg.Top,
		ScoreThreshold: c.cfg.ScoreThreshold * 100,
	})
	if err != nil {
		return nil, fmt.Errorf("encode generateAnswer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generateAnswer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "EndpointKey "+c.cfg.EndpointKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &BackendUnavailableError{Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close generateAnswer body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &BackendUnavailableError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("generateAnswer: %s", strings.TrimSpace(string(snippet))),
		}
	}

	var decoded generateAnswerResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &BackendUnavailableError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode generateAnswer response: %w", err)}
	}

	candidates := make([]Candidate, 0, len(decoded.Answers))
	for _, a := range decoded.Answers {
		if a.Score <= 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			Answer:    a.Answer,
			Score:     a.Score / 100,
			Questions: a.Questions,
			ID:        a.ID,
			Source:    a.Source,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	c.logger.Debug("generateAnswer completed", "candidates", len(candidates))
	return candidates, nil
}

var _ Backend = (*Client)(nil)
