package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/markwise/internal/apperr"
	"github.com/pavelanni/markwise/internal/llm/prompts"
	"github.com/pavelanni/markwise/internal/llm/reply"
	"github.com/pavelanni/markwise/internal/model"
)

const repromptText = "Your previous reply could not be parsed. Respond again with ONLY the JSON object in the requested structure, with no prose and no code fences."

// Config configures the model gateway.
type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	Temperature   float32
	Timeout       time.Duration // per completion call
	MaxRetries    int           // extra attempts on upstream failure
	RetryBackoff  time.Duration // initial backoff, doubled per attempt
	JSONMode      bool          // request response_format json_object
	MathMarkup    bool
	ExamMaxTokens int
	MarkMaxTokens int
	PromptVariant prompts.PromptVariant
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api *openai.Client
	cfg Config
}

// New creates a new LLM client. Zero values in cfg fall back to defaults.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.ExamMaxTokens <= 0 {
		cfg.ExamMaxTokens = 2000
	}
	if cfg.MarkMaxTokens <= 0 {
		cfg.MarkMaxTokens = 1000
	}
	if cfg.PromptVariant == "" {
		cfg.PromptVariant = prompts.PromptStandard
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &Client{
		api: openai.NewClientWithConfig(config),
		cfg: cfg,
	}
}

// Ping checks that the endpoint is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// GenerateExam asks the model for a question set. Questions without a number
// are numbered by position; missing marks become 0.
func (c *Client) GenerateExam(ctx context.Context, p prompts.ExamParams) ([]model.Question, error) {
	prompt, err := prompts.BuildExamPrompt(p)
	if err != nil {
		return nil, fmt.Errorf("build exam prompt: %w", err)
	}

	exam, err := ask(ctx, c, prompt, c.cfg.ExamMaxTokens, reply.ParseExam)
	if err != nil {
		return nil, err
	}

	questions := make([]model.Question, 0, len(exam.Questions))
	for i, eq := range exam.Questions {
		q := model.Question{
			Number:             eq.Number,
			Text:               c.markup(eq.Text),
			LearningObjectives: eq.LearningObjectives,
			MarkScheme:         c.markup(eq.MarkScheme),
		}
		if q.Number == "" {
			q.Number = strconv.Itoa(i + 1)
		}
		if eq.Marks != nil {
			q.Marks = *eq.Marks
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// MarkResponse asks the model to mark one student response. The configured
// prompt variant is used unless p names one.
func (c *Client) MarkResponse(ctx context.Context, p prompts.MarkParams) (*reply.Marking, error) {
	if p.Variant == "" {
		p.Variant = c.cfg.PromptVariant
	}
	prompt, err := prompts.BuildMarkPrompt(p)
	if err != nil {
		return nil, fmt.Errorf("build mark prompt: %w", err)
	}

	m, err := ask(ctx, c, prompt, c.cfg.MarkMaxTokens, reply.ParseMarking)
	if err != nil {
		return nil, err
	}
	m.Feedback = c.markup(m.Feedback)
	m.Justification = c.markup(m.Justification)
	return m, nil
}

// ask sends prompt and decodes the reply with parse. A malformed reply is
// re-prompted once with the previous answer in context.
func ask[T any](ctx context.Context, c *Client, prompt string, maxTokens int, parse func(string) (T, error)) (T, error) {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}

	var zero T
	raw, err := c.complete(ctx, msgs, maxTokens)
	if err != nil {
		return zero, err
	}
	v, err := parse(raw)
	if err == nil || !apperr.Is(err, apperr.KindMalformed) {
		return v, err
	}

	slog.Warn("malformed model reply, re-prompting", "error", err)
	msgs = append(msgs,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: raw},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: repromptText},
	)
	raw, err = c.complete(ctx, msgs, maxTokens)
	if err != nil {
		return zero, err
	}
	return parse(raw)
}

// complete runs one chat completion, retrying transient upstream failures
// with exponential backoff. Each attempt gets its own timeout.
func (c *Client) complete(ctx context.Context, msgs []openai.ChatCompletionMessage, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: c.cfg.Temperature,
	}
	if c.cfg.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var raw string
	attempt := 0
	op := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		resp, err := c.api.CreateChatCompletion(callCtx, req)
		if err != nil {
			if ctx.Err() != nil || !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		// No choices reads as an empty reply, which the caller re-prompts.
		if len(resp.Choices) == 0 {
			slog.Warn("model returned no choices", "attempt", attempt)
			raw = ""
			return nil
		}
		raw = resp.Choices[0].Message.Content
		return nil
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("LLM call failed, retrying", "attempt", attempt, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, c.retryPolicy(ctx), notify); err != nil {
		return "", apperr.Upstream(fmt.Errorf("chat completion after %d attempt(s): %w", attempt, err))
	}
	slog.Debug("LLM response", "raw", raw)
	return raw, nil
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)
}

// retryable reports whether err is a network failure, a timeout, a rate
// limit or a server-side error.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return !errors.Is(err, context.Canceled)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func (c *Client) markup(s string) string {
	if !c.cfg.MathMarkup {
		return s
	}
	return MathMarkup(s)
}
