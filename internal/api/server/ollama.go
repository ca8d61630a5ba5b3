package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bz888/modeler/internal/api/client"
)

const DefaultOllamaHost = "http://localhost:11434"

// Upstream is the model runtime the server forwards to.
type Upstream interface {
	Chat(ctx context.Context, req *UpstreamChatRequest, fn func([]byte) error) error
	// Models returns the raw tags document.
	Models(ctx context.Context) ([]byte, error)
}

type UpstreamChatRequest struct {
	Model    string           `json:"model"`
	Messages []client.Message `json:"messages"`
	Stream   bool             `json:"stream"`
}

// StatusError is a non-200 answer from the upstream.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Code, e.Body)
}

type OllamaClient struct {
	base *url.URL
	http *http.Client
}

func NewOllamaClient(host string) (*OllamaClient, error) {
	if host == "" {
		host = DefaultOllamaHost
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	base, err := url.Parse(host)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid ollama host %q", host)
	}
	return &OllamaClient{base: base, http: &http.Client{}}, nil
}

func (c *OllamaClient) Chat(ctx context.Context, req *UpstreamChatRequest, fn func([]byte) error) error {
	return c.stream(ctx, http.MethodPost, "/api/chat", req, fn)
}

func (c *OllamaClient) stream(ctx context.Context, method string, path string, data any, fn func([]byte) error) error {
	var buf io.Reader
	if data != nil {
		bts, err := json.Marshal(data)
		if err != nil {
			return err
		}
		buf = bytes.NewBuffer(bts)
	}

	requestURL := c.base.ResolveReference(&url.URL{Path: path})
	request, err := http.NewRequestWithContext(ctx, method, requestURL.String(), buf)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/x-ndjson")
	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return &StatusError{Code: response.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	scanner := bufio.NewScanner(response.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

func (c *OllamaClient) Models(ctx context.Context) ([]byte, error) {
	requestURL := c.base.ResolveReference(&url.URL{Path: "/api/tags"})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
