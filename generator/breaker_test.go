package generator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jitender-insights/AI-FlowChart-Generator/apperr"
)

func testBreakerSettings() BreakerSettings {
	s := DefaultBreakerSettings()
	s.MinRequests = 2
	s.Timeout = time.Hour
	return s
}

func TestBreakerOpensOnTransientFailures(t *testing.T) {
	llm := &countingLLM{err: apperr.New(apperr.KindCompletionTransient, "complete", "503")}
	b := NewBreakerLLM(llm, testBreakerSettings(), zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := b.Complete(context.Background(), Prompt{User: "x"})
		require.Error(t, err)
	}
	assert.Equal(t, "open", b.State())

	_, err := b.Complete(context.Background(), Prompt{User: "x"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindCompletionTransient, apperr.KindOf(err))
	assert.Equal(t, 2, llm.calls, "open breaker must not reach the client")
}

func TestBreakerIgnoresPermanentFailures(t *testing.T) {
	llm := &countingLLM{err: apperr.New(apperr.KindCompletionPermanent, "complete", "401")}
	b := NewBreakerLLM(llm, testBreakerSettings(), nil)

	for i := 0; i < 4; i++ {
		_, err := b.Complete(context.Background(), Prompt{User: "x"})
		assert.Equal(t, apperr.KindCompletionPermanent, apperr.KindOf(err))
	}
	assert.Equal(t, "closed", b.State())
	assert.Equal(t, 4, llm.calls)
}

func TestBreakerPassesReply(t *testing.T) {
	b := NewBreakerLLM(&countingLLM{reply: "ok"}, DefaultBreakerSettings(), nil)
	out, err := b.Complete(context.Background(), Prompt{User: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestBreakerIgnoresCanceledCalls(t *testing.T) {
	llm := &countingLLM{err: ClassifyCompletionError(context.Canceled)}
	b := NewBreakerLLM(llm, testBreakerSettings(), nil)

	for i := 0; i < 5; i++ {
		_, err := b.Complete(context.Background(), Prompt{User: "x"})
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, "closed", b.State())

	llm.err, llm.reply = nil, "ok"
	out, err := b.Complete(context.Background(), Prompt{User: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 6, llm.calls)
}
