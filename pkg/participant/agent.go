package participant

import (
	"context"
	"errors"
	"fmt"

	"consensus/pkg/agent/llm"
	"consensus/pkg/logx"
	"consensus/pkg/metrics"
	"consensus/pkg/retry"
	"consensus/pkg/utils"
)

// ErrRetriesExhausted is returned by Decide when every attempt failed.
// The agent sits out the round; the wrapped error is the last failure.
var ErrRetriesExhausted = errors.New("retries exhausted")

// State is the decision state of an agent.
type State string

const (
	// StateIdle is an agent that has not produced a position yet.
	StateIdle State = "IDLE"
	// StateCommitted is an agent whose last successful decision set its position or target.
	StateCommitted State = "COMMITTED"
)

// Decision is one agent's accepted answer for a round.
type Decision[P any] struct {
	Index    int
	Value    P
	Attempts int
}

// Options configures the conversational part shared by every agent kind.
type Options struct {
	Index       int
	Name        string // defaults to Name(Index)
	Variant     string // metrics label
	System      string
	Client      llm.LLMClient
	Retry       retry.Config
	MaxTokens   int
	Temperature float32
	Recorder    metrics.Recorder
	Logger      *logx.Logger
}

// conversant is the LLM-facing half of an agent: memory, retries and token accounting.
type conversant struct {
	index       int
	name        string
	variant     string
	client      llm.LLMClient
	memory      *Memory
	policy      *retry.Policy
	maxTokens   int
	temperature float32
	recorder    metrics.Recorder
	logger      *logx.Logger
	tokens      int
	state       State
}

func newConversant(opts Options, keepMemory bool) conversant {
	name := opts.Name
	if name == "" {
		name = Name(opts.Index)
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.Nop()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logx.NewLogger(name)
	}
	retryCfg := opts.Retry
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig
	}
	return conversant{
		index:       opts.Index,
		name:        name,
		variant:     opts.Variant,
		client:      opts.Client,
		memory:      NewMemory(opts.System, keepMemory),
		policy:      retry.NewPolicy(retryCfg, nil),
		maxTokens:   maxTokens,
		temperature: opts.Temperature,
		recorder:    recorder,
		logger:      logger,
		state:       StateIdle,
	}
}

// Index returns the agent's position in its instance.
func (c *conversant) Index() int { return c.index }

// Name returns the agent's display name.
func (c *conversant) Name() string { return c.name }

// State returns the decision state.
func (c *conversant) State() State { return c.state }

// Tokens returns the total tokens spent by this agent.
func (c *conversant) Tokens() int { return c.tokens }

// History returns every turn of the agent's conversation, failed attempts included.
func (c *conversant) History() []llm.CompletionMessage { return c.memory.History() }

// ask sends prompt until accept takes a reply or the retry budget runs out.
func (c *conversant) ask(ctx context.Context, prompt string, accept func(reply string) error) (int, error) {
	ctx = logx.WithContext(ctx, c.logger.GetAgentID())
	maxAttempts := c.policy.Config.MaxAttempts

	attempts, err := c.policy.Do(ctx, func(attempt int) error {
		msgs, err := c.memory.Prepare(prompt, attempt)
		if err != nil {
			return err
		}
		req := llm.CompletionRequest{Messages: msgs, MaxTokens: c.maxTokens, Temperature: c.temperature}

		logx.Debug(ctx, "participant", "attempt %d/%d with %d messages", attempt, maxAttempts, len(msgs))
		resp, err := c.client.Complete(ctx, req)
		if err != nil {
			c.logger.Warn("agent %s failed to answer: %v, attempt %d/%d", c.name, err, attempt, maxAttempts)
			return fmt.Errorf("complete: %w", err)
		}
		c.account(msgs, resp)

		if err := c.memory.Commit(resp.Content); err != nil {
			return err
		}
		if err := accept(resp.Content); err != nil {
			var parseErr *ParseError
			if errors.As(err, &parseErr) {
				c.recorder.IncParseFailure(c.variant)
			}
			c.logger.Warn("agent %s gave an unusable answer: %v, attempt %d/%d", c.name, err, attempt, maxAttempts)
			return err
		}
		return nil
	})

	switch {
	case err == nil:
		c.state = StateCommitted
		c.recorder.ObserveDecision(c.variant, metrics.OutcomeDecided, attempts)
		return attempts, nil
	case ctx.Err() != nil:
		c.recorder.ObserveDecision(c.variant, metrics.OutcomeCanceled, attempts)
		return attempts, fmt.Errorf("agent %s: %w", c.name, ctx.Err())
	default:
		c.recorder.ObserveDecision(c.variant, metrics.OutcomeExhausted, attempts)
		c.logger.Error("agent %s still failing after %d attempts, prompt was:\n%s", c.name, attempts, prompt)
		return attempts, fmt.Errorf("agent %s: %w: %w", c.name, ErrRetriesExhausted, err)
	}
}

// account adds the tokens of one exchange, estimating when the provider reports none.
func (c *conversant) account(msgs []llm.CompletionMessage, resp llm.CompletionResponse) {
	if total := resp.Usage.Total(); total > 0 {
		c.tokens += total
		return
	}
	contents := make([]string, 0, len(msgs)+1)
	for i := range msgs {
		contents = append(contents, msgs[i].Content)
	}
	contents = append(contents, resp.Content)
	c.tokens += utils.CountMessages(contents...)
}
