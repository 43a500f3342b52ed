// Package llmgateway implements the LLM Gateway (§4.E): a single strict
// JSON-mode chat-completion contract shared by every pipeline stage that
// calls out to a language model, with a bounded parse-repair retry,
// exponential backoff with jitter, and per-call cost accounting.
package llmgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"
)

// Default configuration values, grounded on the teacher's extraction client.
const (
	defaultMaxRetries  = 3
	defaultBaseBackoff = 500 * time.Millisecond
	// callBudget is the total wall-clock budget for one Call, including
	// every retry, per §4.E ("total budget 30s per call").
	callBudget = 30 * time.Second
)

// Usage reports the token accounting for one completed Call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns the combined input and output token count.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// ErrInvalidOutput is returned when the model's response is still not
// valid JSON against the requested schema after one repair attempt.
var ErrInvalidOutput = fmt.Errorf("llm_invalid_output")

// Request is one Call's input.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	// Schema is a JSON Schema document describing the expected response
	// shape. It is embedded in the prompt to steer JSON-mode output; the
	// Gateway does not perform full schema validation, only JSON-syntax
	// validation plus the one repair retry §4.E specifies.
	Schema      string
	Temperature float64
	MaxTokens   int
}

// Model is the subset of langchaingo's chat-completion surface the
// Gateway needs. Both llms/anthropic.LLM and llms/openai.LLM satisfy it.
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// PricePerMillion holds a model's USD cost per million input/output tokens,
// used to compute cost_usd without depending on the provider echoing it.
type PricePerMillion struct {
	Input  float64
	Output float64
}

// Gateway wraps one chat-completion backend with the retry/backoff/rate
// limiting policy common to every call site in the pipeline.
type Gateway struct {
	model      Model
	modelName  string
	price      PricePerMillion
	limiter    *rate.Limiter
	maxRetries int
}

// New constructs a Gateway around an already-configured langchaingo model
// client (an *anthropic.LLM or *openai.LLM). ratePerSecond/burst bound
// outbound call volume per §4.E/§5's fixed parallelism limits.
func New(model Model, modelName string, price PricePerMillion, ratePerSecond float64, burst int) *Gateway {
	if ratePerSecond <= 0 {
		ratePerSecond = 50.0 / 60.0
	}
	if burst <= 0 {
		burst = 5
	}
	return &Gateway{
		model:      model,
		modelName:  modelName,
		price:      price,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		maxRetries: defaultMaxRetries,
	}
}

// Call executes the strict-JSON-mode contract: the caller gets back the
// raw JSON text of the model's response, token usage, and USD cost. A
// parse failure triggers exactly one repair retry that echoes the parse
// error back to the model; exhausting it returns ErrInvalidOutput.
// Errors wrapped as retryableError, network errors and deadline expiries
// retry with exponential backoff and jitter, bounded by callBudget total
// (including the repair retry); any other model error is returned after
// the first attempt.
func (g *Gateway) Call(ctx context.Context, req Request) (json.RawMessage, Usage, float64, error) {
	ctx, cancel := context.WithTimeout(ctx, callBudget)
	defer cancel()

	systemPrompt := req.SystemPrompt
	if req.Schema != "" {
		systemPrompt = systemPrompt + "\n\nRespond ONLY with a JSON object matching this schema:\n" + req.Schema
	}

	usage := Usage{}
	raw, usage, err := g.completeWithRepair(ctx, systemPrompt, req.UserPrompt, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, usage, 0, err
	}
	cost := g.cost(usage)
	return raw, usage, cost, nil
}

func (g *Gateway) completeWithRepair(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (json.RawMessage, Usage, error) {
	text, usage, err := g.generate(ctx, systemPrompt, userPrompt, temperature, maxTokens)
	if err != nil {
		return nil, usage, err
	}

	raw, parseErr := extractJSON(text)
	if parseErr == nil {
		return raw, usage, nil
	}

	repairPrompt := fmt.Sprintf(
		"Your previous response could not be parsed as JSON. Parse error: %s\n\nYour previous response was:\n%s\n\nRespond again with ONLY a valid JSON object.",
		parseErr, text,
	)
	text2, usage2, err := g.generate(ctx, systemPrompt, repairPrompt, temperature, maxTokens)
	usage.InputTokens += usage2.InputTokens
	usage.OutputTokens += usage2.OutputTokens
	if err != nil {
		return nil, usage, err
	}

	raw2, parseErr2 := extractJSON(text2)
	if parseErr2 != nil {
		return nil, usage, fmt.Errorf("%w: %s", ErrInvalidOutput, parseErr2)
	}
	return raw2, usage, nil
}

// generate performs one model round trip with rate limiting and retry on
// transient errors, honoring ctx (and so the remaining call budget).
func (g *Gateway) generate(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, Usage, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", Usage{}, fmt.Errorf("rate limiter: %w", err)
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, userPrompt),
	}
	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			backoff += time.Duration(rand.Int63n(int64(backoff) / 2))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", Usage{}, ctx.Err()
			}
		}

		resp, err := g.model.GenerateContent(ctx, messages, opts...)
		if err == nil {
			return extractResponse(resp)
		}
		lastErr = err
		if !isRetryable(err) {
			return "", Usage{}, err
		}
	}
	return "", Usage{}, fmt.Errorf("llm call failed after %d retries: %w", g.maxRetries, lastErr)
}

func extractResponse(resp *llms.ContentResponse) (string, Usage, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("empty response from model")
	}
	choice := resp.Choices[0]
	usage := Usage{}
	if info := choice.GenerationInfo; info != nil {
		usage.InputTokens = intFromAny(info["InputTokens"], info["PromptTokens"])
		usage.OutputTokens = intFromAny(info["OutputTokens"], info["CompletionTokens"])
	}
	return choice.Content, usage, nil
}

func intFromAny(candidates ...any) int {
	for _, c := range candidates {
		switch v := c.(type) {
		case int:
			if v != 0 {
				return v
			}
		case int64:
			if v != 0 {
				return int(v)
			}
		case float64:
			if v != 0 {
				return int(v)
			}
		}
	}
	return 0
}

func (g *Gateway) cost(u Usage) float64 {
	in := float64(u.InputTokens) / 1_000_000 * g.price.Input
	out := float64(u.OutputTokens) / 1_000_000 * g.price.Output
	return in + out
}

// extractJSON strips markdown code-fence wrapping (common in chat-model
// output despite JSON-mode instructions) and validates the result parses.
func extractJSON(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if !json.Valid([]byte(trimmed)) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	return json.RawMessage(trimmed), nil
}

// retryableError marks an error as safe to retry with backoff.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	for e := err; e != nil; {
		if _, ok := e.(*retryableError); ok {
			return true
		}
		unwrapper, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = unwrapper.Unwrap()
	}
	// Network and context-deadline errors surfaced directly by the
	// langchaingo client (rather than wrapped by us) are also retried; a
	// cancelled parent context and any other error are not.
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
}
