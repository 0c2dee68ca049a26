package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/cv-ranker/internal/ai"
	"github.com/spigell/cv-ranker/internal/logger"
	"github.com/spigell/cv-ranker/internal/utils"
)

const (
	providerName          = "gemini"
	defaultModel          = "gemini-2.5-flash"
	defaultEmbeddingModel = "text-embedding-004"
	defaultMaxRetries     = 3
	defaultTimeout        = 60 * time.Second
	defaultMaxLogLength   = 200

	baseBackoff   = 2 * time.Second
	maxRetryDelay = 30 * time.Second
)

var wait = utils.WaitFor

var quotedDelay = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*(?:s\b|sec|second)`)

// models is the part of genai.Models the client needs.
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Config holds the Gemini settings. MaxRetries is the total number of
// attempts per call.
type Config struct {
	APIKey         string
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding-model"`
	MaxRetries     int           `mapstructure:"max-retries"`
	MaxLogLength   int           `mapstructure:"max-log-length"`
	Timeout        time.Duration `mapstructure:"-"`
}

// Client talks to the Gemini API for both text generation and embeddings.
type Client struct {
	models         models
	model          string
	embeddingModel string
	maxRetries     int
	timeout        time.Duration
	maxLogLen      int
	logger         *zap.Logger
}

// NewClient creates a client for the Gemini API backend.
func NewClient(ctx context.Context, cfg Config, l *zap.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newClient(client.Models, cfg, l), nil
}

func newClient(m models, cfg Config, l *zap.Logger) *Client {
	c := &Client{
		models:         m,
		model:          strings.TrimSpace(cfg.Model),
		embeddingModel: strings.TrimSpace(cfg.EmbeddingModel),
		maxRetries:     cfg.MaxRetries,
		timeout:        cfg.Timeout,
		maxLogLen:      cfg.MaxLogLength,
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = defaultEmbeddingModel
	}
	if c.maxRetries <= 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxLogLen <= 0 {
		c.maxLogLen = defaultMaxLogLength
	}
	c.logger = logger.WithFields(l, logger.CommonFields(providerName, c.model)...)
	return c
}

func (c *Client) Model() string { return c.model }

func (c *Client) EmbeddingModel() string { return c.embeddingModel }

// GenerateContent sends message with the system instruction and returns the
// joined text of the answer. The model is asked for JSON output.
func (c *Client) GenerateContent(ctx context.Context, system, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("message must not be empty")
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	}
	if system = strings.TrimSpace(system); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	c.logger.Debug("gemini generate content request",
		zap.Int("message_length", utf8.RuneCountInString(message)),
		zap.String("message_preview", utils.TruncateForLog(message, c.maxLogLen)),
	)

	var output string
	err := c.retry(ctx, "generate content", func(callCtx context.Context) error {
		resp, err := c.models.GenerateContent(callCtx, c.model, genai.Text(message), config)
		if err != nil {
			return err
		}
		output = responseText(resp)
		if output == "" {
			return errEmptyResponse
		}
		return nil
	})
	if err != nil {
		return "", ai.NewTransportError("gemini generate", err)
	}

	c.logger.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(output)),
		zap.String("response_preview", utils.TruncateForLog(output, c.maxLogLen)),
	)
	return output, nil
}

// Embed returns the embedding of text from the embedding model.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ai.NewTransportError("gemini embed", errors.New("text must not be empty"))
	}

	config := &genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"}

	var values []float32
	err := c.retry(ctx, "embed content", func(callCtx context.Context) error {
		resp, err := c.models.EmbedContent(callCtx, c.embeddingModel, genai.Text(text), config)
		if err != nil {
			return err
		}
		if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
			return errEmptyResponse
		}
		values = resp.Embeddings[0].Values
		return nil
	})
	if err != nil {
		return nil, ai.NewTransportError("gemini embed", err)
	}

	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out, nil
}

var errEmptyResponse = errors.New("gemini api returned empty response")

func (c *Client) retry(ctx context.Context, op string, call func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := call(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}

		delay, ok := retryDelay(err, attempt)
		if !ok || attempt == c.maxRetries {
			break
		}

		c.logger.Warn("gemini call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := wait(ctx, delay); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

// retryDelay decides whether err is worth another attempt and how long to
// wait first. Server errors, timeouts and empty answers back off
// exponentially. Quota errors are retried only when the quoted delay is short.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	backoff := min(baseBackoff<<(attempt-1), maxRetryDelay)

	if errors.Is(err, errEmptyResponse) || errors.Is(err, context.DeadlineExceeded) {
		return backoff, true
	}

	apiErr, ok := asAPIError(err)
	if !ok {
		return 0, false
	}

	switch {
	case apiErr.Code >= http.StatusInternalServerError:
		return backoff, true
	case apiErr.Code == http.StatusTooManyRequests:
		delay, quoted := quotedRetryDelay(apiErr)
		if !quoted {
			return backoff, true
		}
		return delay, delay <= maxRetryDelay
	default:
		return 0, false
	}
}

func asAPIError(err error) (*genai.APIError, bool) {
	var value genai.APIError
	if errors.As(err, &value) {
		return &value, true
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return ptr, true
	}
	return nil, false
}

// quotedRetryDelay reads the delay from RetryInfo details or the message.
func quotedRetryDelay(apiErr *genai.APIError) (time.Duration, bool) {
	for _, detail := range apiErr.Details {
		kind, _ := detail["@type"].(string)
		if !strings.HasSuffix(kind, "RetryInfo") {
			continue
		}
		if raw, ok := detail["retryDelay"].(string); ok {
			if d, err := time.ParseDuration(raw); err == nil {
				return d, true
			}
		}
	}

	if m := quotedDelay.FindStringSubmatch(apiErr.Message); m != nil {
		seconds, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return time.Duration(seconds * float64(time.Second)), true
		}
	}
	return 0, false
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}
	return strings.TrimSpace(builder.String())
}

var (
	_ ai.Embedder     = (*Client)(nil)
	_ ai.Standardizer = (*Standardizer)(nil)
)
