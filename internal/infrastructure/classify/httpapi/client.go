// Package httpapi is the HTTP client for the external document-classification
// service. The service itself is a black box: this client sends a blob
// reference and receives a document type.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, callTimeout time.Duration, executor *resilience.Executor) *Client {
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: callTimeout},
		executor:   executor,
	}
}

type classifyRequest struct {
	BlobRef string `json:"blob_ref"`
}

type classifyResponse struct {
	DocumentType string `json:"document_type"`
}

func (c *Client) Classify(ctx context.Context, blobRef string) (domain.DocumentType, error) {
	var result domain.DocumentType
	call := func(ctx context.Context) error {
		docType, err := c.classifyOnce(ctx, blobRef)
		if err != nil {
			return err
		}
		result = docType
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "classifier.classify", call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}
	return result, nil
}

func (c *Client) classifyOnce(ctx context.Context, blobRef string) (domain.DocumentType, error) {
	body, err := json.Marshal(classifyRequest{BlobRef: blobRef})
	if err != nil {
		return "", fmt.Errorf("marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/classify", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.WrapError(domain.ErrTransientEffect, "classify request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", domain.WrapError(domain.ErrTransientEffect, "classify",
			fmt.Errorf("classifier status %s", resp.Status))
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", domain.WrapError(domain.ErrValidation, "classify",
			fmt.Errorf("classifier status %s: %s", resp.Status, strings.TrimSpace(string(snippet))))
	}

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode classify response: %w", err)
	}
	if out.DocumentType == "" {
		return domain.DocUnclassified, nil
	}
	return domain.DocumentType(out.DocumentType), nil
}
