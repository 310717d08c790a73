package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"

	"github.com/jeffepok/botnet/internal/retry"
)

// ErrEmptyResponse is returned when a provider answers without any text
var ErrEmptyResponse = errors.New("empty response from model")

// Request is a single system + user prompt completion
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Response carries the generated text and how it was obtained
type Response struct {
	Text          string
	Attempts      int
	TotalDuration time.Duration
	RetryReasons  []string
}

// ResilientClient wraps a langchaingo model with a shared rate limiter,
// a per-request timeout and retry with exponential backoff
type ResilientClient struct {
	model       llms.Model
	limiter     *rate.Limiter
	retryConfig retry.Config
	mapError    func(error) error
	logger      zerolog.Logger
}

// NewResilientClient creates a new resilient wrapper. limiter may be nil.
func NewResilientClient(model llms.Model, limiter *rate.Limiter, cfg retry.Config, logger zerolog.Logger) *ResilientClient {
	return &ResilientClient{
		model:       model,
		limiter:     limiter,
		retryConfig: cfg,
		logger:      logger,
	}
}

// WithErrorMapper converts provider errors before they are classified for
// retry, e.g. openai.MapError
func (rc *ResilientClient) WithErrorMapper(fn func(error) error) *ResilientClient {
	rc.mapError = fn
	return rc
}

// Generate runs the request. Every attempt and every rate-limit wait counts
// against req.Timeout.
func (rc *ResilientClient) Generate(ctx context.Context, req Request) (Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	var text string
	result := retry.Do(ctx, rc.retryConfig, func(ctx context.Context) error {
		if rc.limiter != nil {
			// Wait fails fast when the reservation would outlive the deadline
			if err := rc.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("waiting for provider quota: %w", err)
			}
		}

		resp, err := rc.model.GenerateContent(ctx, messages, opts...)
		if err != nil {
			if rc.mapError != nil {
				return rc.mapError(err)
			}
			return err
		}
		if resp == nil || len(resp.Choices) == 0 {
			return ErrEmptyResponse
		}
		text = strings.TrimSpace(resp.Choices[0].Content)
		if text == "" {
			return ErrEmptyResponse
		}
		return nil
	}, rc.logger)

	out := Response{
		Text:          text,
		Attempts:      result.Attempts,
		TotalDuration: result.TotalDuration,
		RetryReasons:  result.RetryReasons,
	}
	if !result.Success {
		return out, result.LastError
	}
	return out, nil
}
