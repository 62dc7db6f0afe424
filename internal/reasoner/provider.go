package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brightloop/schedulerd/internal/domain"
	"github.com/brightloop/schedulerd/internal/platform/logger"
)

// Usage is the optional token-usage object a Provider call may return,
// forwarded by the Job Processor to updateJobTokenUsage.
type Usage struct {
	InputTokens       int
	OutputTokens      int
	TotalTokens       int
	ReasoningTokens   int
	CachedInputTokens int
	// Calls is the number of provider.GenerateJSON invocations this usage
	// rolls up (1 normally, 2 when a repair attempt ran), so EngineStats
	// can track reasonerCalls without re-deriving it from event order.
	Calls int
}

// ToTokenUsage converts a provider call's Usage into the domain.TokenUsage
// delta shape updateJobTokenUsage expects.
func (u Usage) ToTokenUsage() domain.TokenUsage {
	return domain.TokenUsage{
		InputTokens:       int64(u.InputTokens),
		OutputTokens:      int64(u.OutputTokens),
		ReasoningTokens:   int64(u.ReasoningTokens),
		CachedInputTokens: int64(u.CachedInputTokens),
		TotalTokens:       int64(u.TotalTokens),
	}
}

// Provider is the reasoning-provider contract: a system prompt, a user
// prompt, and a JSON schema in; a structured object and optional usage out.
type Provider interface {
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, Usage, error)
}

// openAIProvider is grounded on internal/services/openai_client.go's
// openAIClient: same request/response envelope (the Responses API's
// text.format json_schema structured-output mode), same retry loop shape
// (exponential backoff honoring Retry-After, capped and jittered).
type openAIProvider struct {
	log         *logger.Logger
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
	maxRetries  int
}

// NewOpenAIProvider constructs a Provider reading OPENAI_API_KEY,
// OPENAI_BASE_URL, and OPENAI_TIMEOUT_SECONDS from the environment; model
// and temperature come from the AI_AGENT_* config the caller already
// loaded, not duplicated here.
func NewOpenAIProvider(log *logger.Logger, model string, temperature float64, maxRetries int) (Provider, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	timeoutSec := 60
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}
	return &openAIProvider{
		log:         log.With("component", "reasoner.Provider"),
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		httpClient:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries:  maxRetries,
	}, nil
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("reasoner provider http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr *httpError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

func jitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

type responsesRequest struct {
	Model string `json:"model"`
	Input []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"input"`
	Text struct {
		Format map[string]any `json:"format"`
	} `json:"text"`
	Temperature float64 `json:"temperature,omitempty"`
}

type responsesUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	TotalTokens         int `json:"total_tokens"`
	OutputTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details"`
	InputTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string         `json:"refusal,omitempty"`
	Usage   responsesUsage `json:"usage"`
}

func (c *openAIProvider) doOnce(ctx context.Context, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/responses", &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *openAIProvider) do(ctx context.Context, body any) (responsesResponse, error) {
	var out responsesResponse
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		resp, raw, err := c.doOnce(ctx, body)
		if err == nil {
			if uErr := json.Unmarshal(raw, &out); uErr != nil {
				return out, fmt.Errorf("reasoner provider decode error: %w; raw=%s", uErr, string(raw))
			}
			return out, nil
		}
		if !isRetryableErr(err) || attempt == c.maxRetries {
			return out, err
		}
		sleepFor := backoff
		if resp != nil {
			if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
				if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
					sleepFor = time.Duration(secs) * time.Second
				}
			}
		}
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)
		c.log.Warn("reasoner provider request retrying", "attempt", attempt+1, "max_retries", c.maxRetries, "sleep", sleepFor.String())
		time.Sleep(sleepFor)
		backoff *= 2
	}
	return out, fmt.Errorf("unreachable retry loop")
}

func (c *openAIProvider) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, Usage, error) {
	if schemaName == "" {
		return nil, Usage{}, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, Usage{}, errors.New("schema required")
	}

	req := responsesRequest{Model: c.model, Temperature: c.temperature}
	req.Input = []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, Usage{}, err
	}
	if resp.Refusal != "" {
		return nil, Usage{}, fmt.Errorf("model refused: %s", resp.Refusal)
	}

	var jsonText string
	for _, item := range resp.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" && c.Text != "" {
				jsonText += c.Text
			}
		}
	}
	if jsonText == "" {
		return nil, Usage{}, errors.New("empty response: no output_text found in response")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(jsonText), &obj); err != nil {
		return nil, Usage{}, fmt.Errorf("failed to parse model JSON: %w; text=%s", err, jsonText)
	}
	usage := Usage{
		InputTokens:       resp.Usage.InputTokens,
		OutputTokens:      resp.Usage.OutputTokens,
		TotalTokens:       resp.Usage.TotalTokens,
		ReasoningTokens:   resp.Usage.OutputTokensDetails.ReasoningTokens,
		CachedInputTokens: resp.Usage.InputTokensDetails.CachedTokens,
	}
	return obj, usage, nil
}
