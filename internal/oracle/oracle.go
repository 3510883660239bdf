// Package oracle answers free-form chat prompts through an OpenAI-compatible
// completion API. Failures are folded into the answer text: callers always
// get a string to put in a chat bubble, never an error.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lanchat/relay/internal/observability"
)

// Oracle produces an answer for a prompt. Implementations never return an
// error; upstream failures become user-facing answer text.
type Oracle interface {
	Ask(ctx context.Context, prompt string) string
}

// OverBudgetAnswer is returned without calling the API once the configured
// budget is exhausted.
const OverBudgetAnswer = "The free assistant budget has been used up. Please try again next month."

// Config configures the chat oracle.
type Config struct {
	// APIKey authenticates against the completion endpoint.
	APIKey string

	// BaseURL overrides the API endpoint; any OpenAI-compatible service works.
	BaseURL string

	// Model is the completion model identifier.
	Model string

	// SystemPrompt is prepended to every request when non-empty.
	SystemPrompt string

	// RequestTimeout bounds a single completion call. Default: 60s.
	RequestTimeout time.Duration

	// Cost and MaxBudget drive the spend estimate; see BudgetTracker.
	Cost      Cost
	MaxBudget float64
}

// ChatOracle implements Oracle against an OpenAI-compatible chat-completion
// endpoint, with budget tracking across requests.
//
// ChatOracle is safe for concurrent use; each Ask call is an independent
// request and the budget tracker serializes its own state.
type ChatOracle struct {
	client  *openai.Client
	model   string
	system  string
	timeout time.Duration
	budget  *BudgetTracker
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a chat oracle. If logger is nil, slog.Default() is used.
func New(cfg Config, logger *slog.Logger, metrics *observability.Metrics) *ChatOracle {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &ChatOracle{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		system:  cfg.SystemPrompt,
		timeout: cfg.RequestTimeout,
		budget:  NewBudgetTracker(cfg.Cost, cfg.MaxBudget),
		logger:  logger,
		metrics: metrics,
	}
}

// Ask sends the prompt and returns the answer text. Over-budget requests are
// refused with OverBudgetAnswer before any API call; transport and API errors
// come back as readable answer strings.
func (o *ChatOracle) Ask(ctx context.Context, prompt string) string {
	if !o.budget.Allow() {
		o.countRequest("over_budget")
		return OverBudgetAnswer
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if o.system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: o.system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	})
	if o.metrics != nil {
		o.metrics.OracleRequestDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		o.countRequest("error")
		o.logger.Warn("oracle request failed", "error", err)
		return fmt.Sprintf("Assistant error: %v", err)
	}
	if len(resp.Choices) == 0 {
		o.countRequest("error")
		return "Assistant error: empty response"
	}

	answer := resp.Choices[0].Message.Content

	// The upstream may not report usage; estimate from character counts.
	estimated := int64(len(prompt) + len(answer))
	o.budget.Record(estimated)
	tokens, spent := o.budget.Usage()
	o.logger.Debug("oracle answered",
		"estimated_tokens", estimated,
		"total_tokens", tokens,
		"total_spend_usd", spent,
	)

	o.countRequest("answered")
	return answer
}

func (o *ChatOracle) countRequest(status string) {
	if o.metrics != nil {
		o.metrics.OracleRequests.WithLabelValues(status).Inc()
	}
}
