package generator

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/jitender-insights/AI-FlowChart-Generator/apperr"
)

// BreakerSettings tunes BreakerLLM.
type BreakerSettings struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	MinRequests      uint32
	FailureThreshold float64
}

// DefaultBreakerSettings trips after half of at least five calls failed transiently.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:             "completion",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		MinRequests:      5,
		FailureThreshold: 0.5,
	}
}

// BreakerLLM stops calling a failing completion service for a while. Only transient failures
// count against the service; a rejected credential or a caller that went away does not trip
// the breaker.
type BreakerLLM struct {
	next LLMClient
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerLLM(next LLMClient, s BreakerSettings, logger *zap.Logger) *BreakerLLM {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			return !apperr.Is(err, apperr.KindCompletionTransient)
		},
	})
	return &BreakerLLM{next: next, cb: cb}
}

func (b *BreakerLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		raw, err := b.next.Complete(ctx, prompt)
		return raw, ClassifyCompletionError(err)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", apperr.Wrap(apperr.KindCompletionTransient, "complete", err, "completion service temporarily disabled after repeated failures")
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// State exposes the breaker state for health reporting.
func (b *BreakerLLM) State() string {
	return b.cb.State().String()
}
