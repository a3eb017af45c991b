// Package openai implements the upstream AI client against an
// OpenAI-compatible chat completions API.
//
// Providers differ in which models accept structured-output negotiation and
// availability fluctuates, so a single call is attempted as an explicit
// ordered matrix: each candidate model is tried with the JSON response
// format, and a model that rejects the format itself is retried once in
// plain-text mode before moving on. The caller never sees provider quirks,
// only the last error after exhaustion.
package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tiktoken "github.com/pkoukk/tiktoken-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/rehearsal-coach/internal/adapter/observability"
	"github.com/fairyhunter13/rehearsal-coach/internal/config"
	"github.com/fairyhunter13/rehearsal-coach/internal/domain"
)

// DefaultModel is used when OPENAI_MODEL is unset and heads the fallback list.
const DefaultModel = "gpt-4.1-mini"

// fallbackModels are appended after the configured model, deduplicated.
var fallbackModels = []string{DefaultModel, "gpt-4o-mini"}

// UpstreamError carries the last failure after the fallback matrix is
// exhausted. Status is the HTTP status of the failing attempt, 0 for
// transport-level failures.
type UpstreamError struct {
	Status int
	Detail string
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return e.Detail
	}
	return fmt.Sprintf("openai error: %d %s", e.Status, e.Detail)
}

// Client implements domain.AIClient.
type Client struct {
	cfg config.Config
	hc  *http.Client
	enc *tiktoken.Tiktoken
}

var _ domain.AIClient = (*Client)(nil)

// New constructs a client with the configured chat timeout.
func New(cfg config.Config) *Client {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		slog.Warn("tiktoken encoding unavailable; prompt token metric disabled", slog.Any("error", err))
		enc = nil
	}
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("OpenAI %s %s", r.Method, r.URL.Host)
		}),
	)
	return &Client{
		cfg: cfg,
		hc:  &http.Client{Timeout: cfg.ChatTimeout, Transport: transport},
		enc: enc,
	}
}

// Model reports the model heading the candidate list.
func (c *Client) Model() string {
	if c.cfg.OpenAIModel != "" {
		return c.cfg.OpenAIModel
	}
	return DefaultModel
}

// Candidates returns the ordered, de-duplicated model list tried by Ask.
func (c *Client) Candidates() []string {
	out := make([]string, 0, 1+len(fallbackModels))
	seen := map[string]bool{}
	if c.cfg.OpenAIModel != "" {
		out = append(out, c.cfg.OpenAIModel)
		seen[c.cfg.OpenAIModel] = true
	}
	for _, m := range fallbackModels {
		if !seen[m] {
			out = append(out, m)
			seen[m] = true
		}
	}
	return out
}

// attempt is one (model, format) entry of the fallback matrix.
type attempt struct {
	model      string
	structured bool
}

// Ask sends the payload upstream and returns the parsed structured object.
// Content that fails to parse as JSON yields an empty object, never an
// error. After every candidate is exhausted the last recorded failure is
// returned as an *UpstreamError.
func (c *Client) Ask(ctx domain.Context, systemPrompt string, payload any) (map[string]any, error) {
	if c.cfg.OpenAIAPIKey == "" {
		slog.Error("OpenAI API key missing", slog.String("provider", "openai"))
		return nil, &UpstreamError{Detail: "OPENAI_API_KEY is missing"}
	}

	userContent, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("op=openai.ask: marshal payload: %w", err)
	}
	c.observePromptTokens(systemPrompt, string(userContent))

	var lastErr *UpstreamError
	for _, model := range c.Candidates() {
		attempts := []attempt{{model: model, structured: true}}
		for len(attempts) > 0 {
			at := attempts[0]
			attempts = attempts[1:]

			obj, aerr := c.call(ctx, at, systemPrompt, string(userContent))
			if aerr == nil {
				slog.Info("upstream call succeeded",
					slog.String("provider", "openai"),
					slog.String("model", at.model),
					slog.Bool("structured", at.structured))
				return obj, nil
			}
			lastErr = aerr
			slog.Warn("upstream attempt failed",
				slog.String("provider", "openai"),
				slog.String("model", at.model),
				slog.Bool("structured", at.structured),
				slog.Int("status", aerr.Status),
				slog.String("detail", snippet(aerr.Detail, 256)))

			// A model rejecting the structured format gets exactly one
			// plain-text retry; anything else moves to the next candidate.
			if at.structured && formatUnsupported(aerr) {
				attempts = append(attempts, attempt{model: at.model, structured: false})
			}
			if ctx.Err() != nil {
				return nil, &UpstreamError{Detail: ctx.Err().Error()}
			}
		}
	}

	if lastErr == nil {
		lastErr = &UpstreamError{Detail: "no candidate models"}
	}
	slog.Error("upstream exhausted all candidates",
		slog.String("provider", "openai"),
		slog.Int("status", lastErr.Status),
		slog.String("detail", snippet(lastErr.Detail, 256)))
	return nil, lastErr
}

// call performs a single chat completion attempt.
func (c *Client) call(ctx domain.Context, at attempt, systemPrompt, userContent string) (map[string]any, *UpstreamError) {
	body := map[string]any{
		"model":       at.model,
		"temperature": 0.5,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userContent},
		},
	}
	if at.structured {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	b, _ := json.Marshal(body)

	format := "text"
	if at.structured {
		format = "json"
	}

	start := time.Now()
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OpenAIBaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, &UpstreamError{Detail: err.Error()}
	}
	r.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)
	r.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(r)
	observability.UpstreamAttemptDuration.WithLabelValues(at.model, format).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.UpstreamAttemptsTotal.WithLabelValues(at.model, format, "transport_error").Inc()
		return nil, &UpstreamError{Detail: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.UpstreamAttemptsTotal.WithLabelValues(at.model, format, "read_error").Inc()
		return nil, &UpstreamError{Detail: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.UpstreamAttemptsTotal.WithLabelValues(at.model, format, fmt.Sprintf("http_%d", resp.StatusCode)).Inc()
		return nil, &UpstreamError{Status: resp.StatusCode, Detail: snippet(string(bodyBytes), 512)}
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		observability.UpstreamAttemptsTotal.WithLabelValues(at.model, format, "decode_error").Inc()
		return nil, &UpstreamError{Detail: err.Error()}
	}
	observability.UpstreamAttemptsTotal.WithLabelValues(at.model, format, "ok").Inc()

	raw := "{}"
	if len(out.Choices) > 0 && out.Choices[0].Message.Content != "" {
		raw = out.Choices[0].Message.Content
	}
	// Parse failures of upstream content are absorbed: the composer fills
	// every field from defaults anyway.
	obj := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		slog.Warn("upstream content was not a JSON object; using empty object",
			slog.String("model", at.model),
			slog.String("content", snippet(raw, 128)))
		obj = map[string]any{}
	}
	return obj, nil
}

// formatUnsupported reports whether the failure means this model rejects
// structured-response negotiation itself.
func formatUnsupported(e *UpstreamError) bool {
	return e.Status >= 400 && e.Status < 500 && strings.Contains(strings.ToLower(e.Detail), "response_format")
}

func (c *Client) observePromptTokens(systemPrompt, userContent string) {
	if c.enc == nil {
		return
	}
	n := len(c.enc.Encode(systemPrompt, nil, nil)) + len(c.enc.Encode(userContent, nil, nil))
	observability.UpstreamPromptTokens.Observe(float64(n))
}

func snippet(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
