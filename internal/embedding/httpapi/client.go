// Package httpapi is an embedder for OpenAI-compatible /embeddings endpoints.
package httpapi

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/cv-ranker/internal/ai"
	"github.com/spigell/cv-ranker/internal/logger"
	"github.com/spigell/cv-ranker/internal/utils"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
	userAgent       = "spigell/cv-ranker"
	providerName    = "http"
	maxErrorBody    = 512
)

// Client calls a single embeddings endpoint.
type Client struct {
	url    string
	model  string
	token  string
	logger *zap.Logger

	HTTPClient *http.Client
	UserAgent  string
}

type embeddingRequest struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// New builds a client. An empty token sends no Authorization header.
func New(url, model, token string, timeout time.Duration, l *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:        url,
		model:      model,
		token:      token,
		logger:     logger.WithFields(l, logger.CommonFields(providerName, model)...),
		HTTPClient: &http.Client{Timeout: timeout},
		UserAgent:  userAgent,
	}
}

// Embed returns the vector of text. Every failure is a TransportError.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	payload, err := json.Marshal(embeddingRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req = c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)

	c.logger.Debug("make request", zap.String("url", c.url), zap.String("input", utils.TruncateForLog(text, 80)))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, ai.NewTransportError("http embed", err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return nil, ai.NewTransportError("http embed", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ai.NewTransportError("http embed", fmt.Errorf("bad status: %s: %s", resp.Status, utils.TruncateForLog(string(data), maxErrorBody)))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, ai.NewTransportError("http embed", fmt.Errorf("decode response: %w", err))
	}
	if parsed.Error != nil {
		return nil, ai.NewTransportError("http embed", errors.New(parsed.Error.Message))
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, ai.NewTransportError("http embed", errors.New("response contains no embedding"))
	}

	return parsed.Data[0].Embedding, nil
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(reader)
}
