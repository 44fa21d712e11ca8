package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/faqchat/internal/ai"
)

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeTransient
	outcomeFatal
)

func classify(ctx context.Context, err error) outcome {
	switch {
	case err == nil:
		return outcomeSuccess
	case ctx.Err() != nil:
		return outcomeFatal
	case ai.IsTransient(err):
		return outcomeTransient
	default:
		return outcomeFatal
	}
}

// Orchestrator calls the generative backend with a bounded number of
// attempts. Transient failures are retried after an exponential delay,
// anything else ends the loop at once.
type Orchestrator struct {
	generator      ai.IGenerator
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewOrchestrator(generator ai.IGenerator, maxRetries int, initialBackoff, maxBackoff time.Duration) *Orchestrator {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Orchestrator{
		generator:      generator,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
	}
}

// Complete returns the generated text and the number of attempts made.
func (o *Orchestrator) Complete(ctx context.Context, req *ai.GenerateRequest) (string, int, error) {
	if o.generator == nil {
		return "", 0, fmt.Errorf("%w: no generative backend configured", ai.ErrUnavailable)
	}
	logger := logutil.GetLogger(ctx)
	delays := o.newBackOff()
	var lastErr error
	for attempt := 1; attempt <= o.maxRetries+1; attempt++ {
		text, err := o.generator.Generate(ctx, req)
		switch classify(ctx, err) {
		case outcomeSuccess:
			return text, attempt, nil
		case outcomeFatal:
			return "", attempt, err
		}
		lastErr = err
		if attempt > o.maxRetries {
			break
		}
		wait := delays.NextBackOff()
		logger.Warn("completion attempt failed, retry", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", attempt, ctx.Err()
		case <-timer.C:
		}
	}
	return "", o.maxRetries + 1, fmt.Errorf("completion retries exhausted: %w", lastErr)
}

func (o *Orchestrator) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if o.initialBackoff > 0 {
		b.InitialInterval = o.initialBackoff
	}
	if o.maxBackoff > 0 {
		b.MaxInterval = o.maxBackoff
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}
