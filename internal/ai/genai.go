package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// GenAIProvider talks to the Gemini API through the official SDK.
type GenAIProvider struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration

	mu     sync.Mutex
	client *genai.Client
}

func NewGenAIProvider(baseURL, apiKey, model string, timeout time.Duration) *GenAIProvider {
	if model == "" {
		model = defaultGeminiModel
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &GenAIProvider{APIKey: apiKey, Model: model, BaseURL: baseURL, Timeout: timeout}
}

func (p *GenAIProvider) Name() string { return "genai" }

func (p *GenAIProvider) Validate() error {
	if strings.TrimSpace(p.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func (p *GenAIProvider) clientFor(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:  p.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPClient: &http.Client{
			Timeout:   p.Timeout,
			Transport: errorBodyTransport{base: http.DefaultTransport},
		},
	}
	if p.BaseURL != "" {
		// the SDK appends the API version itself
		root, version := splitAPIVersion(p.BaseURL)
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: root, APIVersion: version}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("genai: create client: %w", err)
	}
	p.client = c
	return c, nil
}

func (p *GenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	c, err := p.clientFor(ctx)
	if err != nil {
		return "", err
	}

	var errBody []byte
	ctx = context.WithValue(ctx, errorBodyKey{}, &errBody)

	resp, err := c.Models.GenerateContent(ctx, p.Model, genai.Text(prompt), nil)
	if err != nil {
		if ue := upstreamFromAPIError(p.Name(), err, errBody); ue != nil {
			return "", ue
		}
		return "", fmt.Errorf("genai: generate content: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return FallbackReply, nil
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil || len(cand.Content.Parts) == 0 || cand.Content.Parts[0] == nil {
		return FallbackReply, nil
	}
	if text := cand.Content.Parts[0].Text; text != "" {
		return text, nil
	}
	return FallbackReply, nil
}

var apiVersionSegment = regexp.MustCompile(`^v\d+((alpha|beta)\d*)?$`)

// splitAPIVersion turns "https://host/v1" into ("https://host", "v1"). URLs
// without a version segment come back unchanged with an empty version.
func splitAPIVersion(base string) (root, version string) {
	base = strings.TrimRight(base, "/")
	i := strings.LastIndex(base, "/")
	if i < 0 {
		return base, ""
	}
	if seg := base[i+1:]; apiVersionSegment.MatchString(seg) {
		return base[:i], seg
	}
	return base, ""
}

type errorBodyKey struct{}

// errorBodyTransport copies non-2xx response bodies into the *[]byte stored
// under errorBodyKey in the request context.
type errorBodyTransport struct {
	base http.RoundTripper
}

func (t errorBodyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return resp, err
	}
	dst, ok := req.Context().Value(errorBodyKey{}).(*[]byte)
	if !ok || dst == nil {
		return resp, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	*dst = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// upstreamFromAPIError maps an SDK APIError to UpstreamError, preferring the
// raw upstream body when it was captured.
func upstreamFromAPIError(provider string, err error, raw []byte) *UpstreamError {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var ptr *genai.APIError
		if !errors.As(err, &ptr) || ptr == nil {
			return nil
		}
		apiErr = *ptr
	}

	body := raw
	if len(bytes.TrimSpace(body)) == 0 {
		b, mErr := json.Marshal(struct {
			Error genai.APIError `json:"error"`
		}{apiErr})
		if mErr != nil {
			b = []byte(apiErr.Message)
		}
		body = b
	}
	return &UpstreamError{Provider: provider, StatusCode: apiErr.Code, Body: body}
}
