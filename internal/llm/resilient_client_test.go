package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/jeffepok/botnet/internal/retry"
)

// scriptedModel replays responses and errors in order
type scriptedModel struct {
	responses []string
	errs      []error
	calls     int
	lastOpts  llms.CallOptions
	lastMsgs  []llms.MessageContent
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	i := m.calls
	m.calls++
	m.lastMsgs = messages
	m.lastOpts = llms.CallOptions{}
	for _, o := range options {
		o(&m.lastOpts)
	}
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	text := ""
	if i < len(m.responses) {
		text = m.responses[i]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// blockingModel never answers before ctx is done
type blockingModel struct{}

func (blockingModel) GenerateContent(ctx context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b blockingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, b, prompt, options...)
}

func testRetry() retry.Config {
	return retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestResilientClient_PassesOptions(t *testing.T) {
	model := &scriptedModel{responses: []string{"  hello world  "}}
	client := NewResilientClient(model, nil, testRetry(), zerolog.Nop())

	resp, err := client.Generate(context.Background(), Request{
		System: "sys", Prompt: "user", MaxTokens: 280, Temperature: 0.8, Timeout: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world", resp.Text)
	assert.Equal(t, 280, model.lastOpts.MaxTokens)
	assert.InDelta(t, 0.8, model.lastOpts.Temperature, 1e-9)
	require.Len(t, model.lastMsgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.lastMsgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.lastMsgs[1].Role)
}

func TestResilientClient_RetriesTransientErrors(t *testing.T) {
	model := &scriptedModel{
		errs:      []error{errors.New("API returned unexpected status code: 429"), nil},
		responses: []string{"", "second time lucky"},
	}
	client := NewResilientClient(model, nil, testRetry(), zerolog.Nop())

	resp, err := client.Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "second time lucky", resp.Text)
	assert.Equal(t, 2, resp.Attempts)
}

func TestResilientClient_MapsProviderErrors(t *testing.T) {
	model := &scriptedModel{
		errs:      []error{errors.New("Rate limit reached for requests"), nil},
		responses: []string{"", "mapped and retried"},
	}
	client := NewResilientClient(model, nil, testRetry(), zerolog.Nop()).WithErrorMapper(openai.MapError)

	resp, err := client.Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "mapped and retried", resp.Text)
	assert.Equal(t, 2, resp.Attempts)

	model = &scriptedModel{errs: []error{errors.New("invalid api key provided")}}
	client = NewResilientClient(model, nil, testRetry(), zerolog.Nop()).WithErrorMapper(openai.MapError)
	_, err = client.Generate(context.Background(), Request{Prompt: "p"})
	assert.True(t, llms.IsAuthenticationError(err))
	assert.Equal(t, 1, model.calls)
}

func TestResilientClient_EmptyResponseIsError(t *testing.T) {
	model := &scriptedModel{responses: []string{"   "}}
	client := NewResilientClient(model, nil, testRetry(), zerolog.Nop())

	_, err := client.Generate(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestResilientClient_Timeout(t *testing.T) {
	client := NewResilientClient(blockingModel{}, nil, testRetry(), zerolog.Nop())

	start := time.Now()
	_, err := client.Generate(context.Background(), Request{Prompt: "p", Timeout: 20 * time.Millisecond})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResilientClient_RateLimitWaitBeyondDeadline(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, limiter.Allow()) // drain the burst

	model := &scriptedModel{responses: []string{"never"}}
	client := NewResilientClient(model, limiter, testRetry(), zerolog.Nop())

	_, err := client.Generate(context.Background(), Request{Prompt: "p", Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, 0, model.calls)
}
