package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/dachslabs/qaforge/internal/core/ports/driven"
	"github.com/dachslabs/qaforge/internal/logger"
)

// modelCaller wraps the generative service with the shared rate limiter
// and exponential-backoff retry used by every model-calling stage.
type modelCaller struct {
	llm        driven.LLMService
	limiter    *rate.Limiter
	maxRetries uint64
}

// newModelCaller builds a caller. ratePerSecond of zero disables
// throttling; maxRetries of zero means a single attempt.
func newModelCaller(llm driven.LLMService, ratePerSecond float64, maxRetries int) *modelCaller {
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &modelCaller{
		llm:        llm,
		limiter:    limiter,
		maxRetries: uint64(maxRetries),
	}
}

// chat performs one system/user exchange, retrying transient failures.
func (m *modelCaller) chat(ctx context.Context, system, user string, opts driven.ChatOptions) (string, error) {
	var reply string

	op := func() error {
		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		out, err := m.llm.Chat(ctx, []driven.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		}, opts)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			logger.Debug("model call failed, will retry: %v", err)
			return err
		}
		reply = out
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), m.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return "", fmt.Errorf("model call: %w", err)
	}
	return reply, nil
}
